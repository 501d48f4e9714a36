package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig selects the server and logical database.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Redis holds the client shared by the report cache and the event queue.
type Redis struct {
	Client *redis.Client
}

// NewRedis builds a client with short dial and I/O timeouts. Blocking
// commands such as BRPOP extend the read timeout by their own wait.
func NewRedis(cfg RedisConfig) *Redis {
	return &Redis{Client: redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})}
}

// Healthy pings the server, giving up after a second.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return r.Client.Ping(ctx).Err() == nil
}

func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
