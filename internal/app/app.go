// Package app assembles the services shared by the api and worker processes.
package app

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"attendly/internal/attendance"
	"attendly/internal/config"
	"attendly/internal/credential"
	"attendly/internal/directory"
	"attendly/internal/notify"
	"attendly/internal/otp"
	"attendly/internal/queue"
	"attendly/internal/store"
	"attendly/internal/timetable"
)

// App holds the wired services and the connections they depend on. DB and
// Redis are nil when the matching backend is not in use.
type App struct {
	DB    *store.DB
	Redis *store.Redis
	Queue queue.Queue

	Directory directory.Directory
	Slots     *timetable.Service
	Ledger    *attendance.Service
	Reports   *attendance.Reporter
	Codes     *otp.Service
	Resets    *credential.Resetter

	// Seed is the in-process directory when STORE_BACKEND=memory.
	Seed *directory.Memory
	// MemoryCredentials backs password resets when STORE_BACKEND=memory.
	MemoryCredentials *credential.Memory
}

type repos struct {
	dir     directory.Directory
	slots   timetable.Repository
	records attendance.Repository
	codes   otp.Repository
	creds   credential.Store
}

// New connects the configured backends and builds every service on top.
func New(ctx context.Context, cfg config.App, logger *zap.Logger) (*App, error) {
	a := &App{}

	var r repos
	switch cfg.StoreBackend {
	case "memory":
		a.Seed = directory.NewMemory()
		a.MemoryCredentials = credential.NewMemory()
		r = repos{
			dir:     a.Seed,
			slots:   timetable.NewMemory(),
			records: attendance.NewMemory(),
			codes:   otp.NewMemory(),
			creds:   a.MemoryCredentials,
		}
		logger.Warn("using in-memory store; data is lost on restart")
	case "postgres", "":
		db, err := store.NewDB(cfg.DatabaseURL)
		if err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "connect postgres")
		}
		a.DB = db
		if err := db.Migrate(ctx); err != nil {
			a.Close()
			return nil, errors.Wrap(err, "migrate schema")
		}
		r = repos{
			dir:     directory.NewPostgres(db.Client),
			slots:   timetable.NewPostgres(db.Client),
			records: attendance.NewPostgres(db.Client),
			codes:   otp.NewPostgres(db.Client),
			creds:   credential.NewPostgres(db.Client),
		}
	default:
		return nil, errors.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	var cache attendance.ReportCache = attendance.NopCache{}
	if cfg.QueueBackend != "memory" || (cfg.StoreBackend != "memory" && cfg.ReportCacheTTL > 0) {
		a.Redis = store.NewRedis(store.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	}
	switch {
	case cfg.ReportCacheTTL <= 0:
	case a.Redis != nil:
		cache = attendance.NewRedisCache(a.Redis.Client, cfg.ReportCacheTTL)
	default:
		cache = attendance.NewMemoryCache(cfg.ReportCacheTTL)
	}

	switch cfg.QueueBackend {
	case "memory":
		a.Queue = queue.NewInMemory(256)
	case "redis", "":
		rq := queue.NewRedisQueue(a.Redis.Client, queue.DefaultKey)
		rq.OnError = func(err error) { logger.Warn("queue error", zap.Error(err)) }
		a.Queue = rq
	default:
		a.Close()
		return nil, errors.Errorf("unknown QUEUE_BACKEND %q", cfg.QueueBackend)
	}

	sink, err := newSink(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Directory = r.dir
	a.Slots = timetable.NewService(r.slots, r.dir, logger.Named("timetable"))
	a.Ledger = attendance.NewService(r.records, a.Slots, r.dir, cache, a.Queue, logger.Named("attendance"))
	a.Reports = attendance.NewReporter(r.records, a.Slots, r.dir, cache, logger.Named("reports"))
	a.Codes = otp.NewService(r.codes, r.dir, sink, cfg.OTPTTL, logger.Named("otp"))
	a.Resets = credential.NewResetter(r.dir, a.Codes, r.creds, logger.Named("credential"))
	return a, nil
}

func newSink(cfg config.App, logger *zap.Logger) (notify.Sink, error) {
	switch cfg.NotifyBackend {
	case "sendgrid":
		if cfg.SendGridAPIKey == "" {
			return nil, errors.New("NOTIFY_BACKEND=sendgrid requires SENDGRID_API_KEY")
		}
		return notify.NewSendGrid(cfg.SendGridAPIKey, cfg.MailFromName, cfg.MailFrom, logger.Named("sendgrid")), nil
	case "log", "":
		return notify.NewLog(logger.Named("mail")), nil
	}
	return nil, errors.Errorf("unknown NOTIFY_BACKEND %q", cfg.NotifyBackend)
}

// Health reports the reachability of each configured backend.
func (a *App) Health(ctx context.Context) map[string]bool {
	out := make(map[string]bool, 2)
	if a.DB != nil {
		out["db"] = a.DB.Healthy(ctx)
	}
	if a.Redis != nil {
		out["redis"] = a.Redis.Healthy(ctx)
	}
	return out
}

// Close releases the backend connections.
func (a *App) Close() {
	_ = a.Redis.Close()
	_ = a.DB.Close()
}
