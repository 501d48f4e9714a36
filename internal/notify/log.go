package notify

import (
	"context"

	"go.uber.org/zap"
)

// Log writes messages to the logger instead of sending them. It is meant
// for local development, where the text body is the only way to read a code.
type Log struct {
	log *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	return &Log{log: logger}
}

func (l *Log) Send(_ context.Context, msg Message) error {
	l.log.Info("email",
		zap.String("to", msg.To.String()),
		zap.String("subject", msg.Subject),
		zap.String("text", msg.Text))
	return nil
}
