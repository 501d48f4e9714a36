package attendance

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// ReportCache keeps per-slot tallies between marks. Subjects are not
// cached; they are resolved from the slots on every read.
//
// Every Invalidate bumps a per-student generation. A writer reads the
// generation before loading records and passes it to Set, which drops the
// write if an invalidation happened in between.
type ReportCache interface {
	Get(ctx context.Context, studentID string) (Tally, bool, error)
	Generation(ctx context.Context, studentID string) (int64, error)
	Set(ctx context.Context, studentID string, gen int64, t Tally) error
	Invalidate(ctx context.Context, studentID string) error
}

// RedisCache stores tallies as JSON under attendance:report:<student id>
// and the generation under attendance:report:<student id>:gen.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache builds a cache whose entries live for ttl.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

// generations outlive cached entries so a slow writer still sees a bump.
const generationTTL = 24 * time.Hour

func reportKey(studentID string) string {
	return "attendance:report:" + studentID
}

func generationKey(studentID string) string {
	return reportKey(studentID) + ":gen"
}

// setIfCurrent writes KEYS[1] only while KEYS[2] still holds ARGV[1].
var setIfCurrent = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

func (c *RedisCache) Get(ctx context.Context, studentID string) (Tally, bool, error) {
	raw, err := c.client.Get(ctx, reportKey(studentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "read cached tally")
	}
	var t Tally
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, false, errors.Wrap(err, "decode cached tally")
	}
	return t, true, nil
}

func (c *RedisCache) Generation(ctx context.Context, studentID string) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(studentID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, errors.Wrap(err, "read report generation")
}

func (c *RedisCache) Set(ctx context.Context, studentID string, gen int64, t Tally) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return errors.Wrap(err, "encode tally")
	}
	keys := []string{reportKey(studentID), generationKey(studentID)}
	err = setIfCurrent.Run(ctx, c.client, keys, strconv.FormatInt(gen, 10), raw, c.ttl.Milliseconds()).Err()
	return errors.Wrap(err, "cache tally")
}

func (c *RedisCache) Invalidate(ctx context.Context, studentID string) error {
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, generationKey(studentID))
		p.Expire(ctx, generationKey(studentID), generationTTL)
		p.Del(ctx, reportKey(studentID))
		return nil
	})
	return errors.Wrap(err, "invalidate tally")
}

// MemoryCache is an in-process ReportCache for single-process deployments.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memEntry
	gens    map[string]int64
	now     func() time.Time
}

type memEntry struct {
	tally   Tally
	expires time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memEntry),
		gens:    make(map[string]int64),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, studentID string) (Tally, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[studentID]
	if !ok || !c.now().Before(e.expires) {
		delete(c.entries, studentID)
		return nil, false, nil
	}
	return e.tally.clone(), true, nil
}

func (c *MemoryCache) Generation(_ context.Context, studentID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[studentID], nil
}

func (c *MemoryCache) Set(_ context.Context, studentID string, gen int64, t Tally) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[studentID] != gen {
		return nil
	}
	c.entries[studentID] = memEntry{tally: t.clone(), expires: c.now().Add(c.ttl)}
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, studentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[studentID]++
	delete(c.entries, studentID)
	return nil
}

// NopCache never holds anything.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (Tally, bool, error) {
	return nil, false, nil
}

func (NopCache) Generation(context.Context, string) (int64, error) {
	return 0, nil
}

func (NopCache) Set(context.Context, string, int64, Tally) error {
	return nil
}

func (NopCache) Invalidate(context.Context, string) error {
	return nil
}
