package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/igasovic/PKM-sub000/internal/platform/logger"
)

// Lease is a best-effort mutual exclusion lock with a TTL.
type Lease interface {
	// Acquire returns a token when the lease was taken, "" when someone else holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, error)
	Release(ctx context.Context, key, token string) error
	Close() error
}

type redisLease struct {
	log *logger.Logger
	rdb *goredis.Client
}

// Deletes the key only while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewLease connects to addr. An empty addr yields a lease that always succeeds.
func NewLease(addr string, log *logger.Logger) (Lease, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return localLease{}, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisLease{
		log: log.With("service", "RedisLease"),
		rdb: rdb,
	}, nil
}

func (l *redisLease) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("redis lease acquire %s: %w", key, err)
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

func (l *redisLease) Release(ctx context.Context, key, token string) error {
	if token == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil && err != goredis.Nil {
		return fmt.Errorf("redis lease release %s: %w", key, err)
	}
	return nil
}

func (l *redisLease) Close() error { return l.rdb.Close() }

type localLease struct{}

func (localLease) Acquire(context.Context, string, time.Duration) (string, error) { return "local", nil }
func (localLease) Release(context.Context, string, string) error                 { return nil }
func (localLease) Close() error                                                  { return nil }
