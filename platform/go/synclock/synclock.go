// Package synclock serialises sync runs per QuickBooks connection.
//
// Two implementations are provided: Redis for multi-instance deployments and
// an in-process table for single-instance and test use. Both fail fast with
// ErrLocked instead of waiting for the holder. A held lock is renewed in the
// background until released, so TTL only bounds how long a crashed holder
// blocks the key.
package synclock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another sync holds the key.
var ErrLocked = errors.New("sync already in progress")

var errLeaseLost = errors.New("lease lost")

const keyPrefix = "qbsync:lock:"

// Release frees a held lock.
type Release func(ctx context.Context) error

// Config selects the backend. An empty RedisAddress selects the in-process locker.
type Config struct {
	RedisAddress  string        `env:"REDIS_ADDRESS"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	TTL           time.Duration `env:"SYNC_LOCK_TTL" envDefault:"5m"`
}

// RedisLocker obtains locks through redislock.
type RedisLocker struct {
	locker *redislock.Client
	ttl    time.Duration
}

// NewRedisLocker wraps an existing redis client.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if client == nil {
		panic("synclock: redis client is required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLocker{locker: redislock.New(client), ttl: ttl}
}

// Acquire takes the lock for key or returns ErrLocked.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (Release, error) {
	lock, err := l.locker.Obtain(ctx, keyPrefix+key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLocked
	}
	if err != nil {
		return nil, fmt.Errorf("obtain redis lock: %w", err)
	}

	stop := keepAlive(l.ttl, func(ctx context.Context) error {
		return lock.Refresh(ctx, l.ttl, nil)
	})

	return func(ctx context.Context) error {
		stop()
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return err
		}
		return nil
	}, nil
}

// LocalLocker is an in-process lock table with TTL expiry.
type LocalLocker struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	held  map[string]localLease
	token uint64
}

type localLease struct {
	token     uint64
	expiresAt time.Time
}

// NewLocalLocker builds an in-process locker.
func NewLocalLocker(ttl time.Duration) *LocalLocker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &LocalLocker{ttl: ttl, now: time.Now, held: make(map[string]localLease)}
}

// Acquire takes the lock for key or returns ErrLocked.
func (l *LocalLocker) Acquire(ctx context.Context, key string) (Release, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if lease, ok := l.held[key]; ok && now.Before(lease.expiresAt) {
		return nil, ErrLocked
	}

	l.token++
	token := l.token
	l.held[key] = localLease{token: token, expiresAt: now.Add(l.ttl)}

	stop := keepAlive(l.ttl, func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		lease, ok := l.held[key]
		if !ok || lease.token != token {
			return errLeaseLost
		}
		lease.expiresAt = l.now().Add(l.ttl)
		l.held[key] = lease
		return nil
	})

	return func(context.Context) error {
		stop()
		l.mu.Lock()
		defer l.mu.Unlock()
		// an expired lease may already belong to someone else
		if lease, ok := l.held[key]; ok && lease.token == token {
			delete(l.held, key)
		}
		return nil
	}, nil
}

// keepAlive calls extend every third of ttl until the returned stop func is
// called or extend fails. stop is idempotent and waits for the renewer to exit.
func keepAlive(ttl time.Duration, extend func(ctx context.Context) error) func() {
	interval := ttl / 3
	if interval < time.Millisecond {
		interval = time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := extend(ctx); err != nil {
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

// Locker is satisfied by RedisLocker and LocalLocker.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// Open builds the locker selected by cfg. The returned close func releases the redis client, if any.
func Open(ctx context.Context, cfg Config) (Locker, func() error, error) {
	if cfg.RedisAddress == "" {
		return NewLocalLocker(cfg.TTL), func() error { return nil }, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddress, err)
	}
	return NewRedisLocker(client, cfg.TTL), client.Close, nil
}
