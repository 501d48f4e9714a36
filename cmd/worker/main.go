package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"attendly/internal/app"
	"attendly/internal/config"
	"attendly/internal/logging"
)

// Worker rewarms attendance reports from queued mark events and sweeps
// expired one-time codes on a schedule.
func main() {
	cfg := config.Load()
	logger := logging.Must(cfg.Env).Named("worker")
	defer func() { _ = logger.Sync() }()

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	if cfg.QueueBackend == "memory" {
		logger.Warn("memory queue is process local; this worker will not see api events")
	}

	sched := cron.New(cron.WithLogger(cronLogger{logger.Named("cron")}))
	if _, err := sched.AddFunc(cfg.OTPSweepSchedule, func() {
		n, err := a.Codes.SweepExpired(ctx)
		if err != nil {
			logger.Error("otp sweep failed", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Info("expired otps swept", zap.Int64("count", n))
		}
	}); err != nil {
		logger.Fatal("invalid OTP_SWEEP_SCHEDULE", zap.String("schedule", cfg.OTPSweepSchedule), zap.Error(err))
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	messages, err := a.Queue.Consume(ctx)
	if err != nil {
		logger.Fatal("queue consume init failed", zap.Error(err))
	}

	logger.Info("worker started, waiting for messages")
	a.Reports.Consume(ctx, messages)
	logger.Info("worker stopped")
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ l *zap.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
