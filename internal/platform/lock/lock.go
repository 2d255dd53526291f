// Package lock provides the per-slug advisory lock that serializes manifest
// read-modify-write cycles. With REDIS_ADDR set the lock is shared across
// worker processes; otherwise a process-local lock is used, which is enough
// for single-worker deployments.
package lock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	pkgerrors "github.com/yungbote/vidscribe-backend/internal/pkg/errors"
	"github.com/yungbote/vidscribe-backend/internal/platform/envutil"
	"github.com/yungbote/vidscribe-backend/internal/platform/logger"
)

// Locker acquires a named advisory lock. Release is returned on success;
// ErrConflictLocked is returned when the lock cannot be acquired within wait.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl, wait time.Duration) (release func(), err error)
}

// New returns a Redis-backed locker when REDIS_ADDR is configured and
// reachable, falling back to a process-local locker otherwise.
func New(log *logger.Logger) Locker {
	addr := strings.TrimSpace(envutil.String("REDIS_ADDR", ""))
	if addr == "" {
		return NewLocal()
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("Redis unreachable; using process-local locks", "addr", addr, "error", err)
		_ = rdb.Close()
		return NewLocal()
	}
	log.Info("Advisory locks backed by Redis", "addr", addr)
	return &redisLocker{log: log.With("service", "RedisLocker"), rdb: rdb}
}

type redisLocker struct {
	log *logger.Logger
	rdb *goredis.Client
}

const pollInterval = 50 * time.Millisecond

func (l *redisLocker) Acquire(ctx context.Context, name string, ttl, wait time.Duration) (func(), error) {
	key := "lock:" + name
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock: setnx %s: %w", key, err)
		}
		if ok {
			release := func() {
				// Delete only if we still own it; a stale delete would drop
				// someone else's lock after TTL expiry.
				const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
				rctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := l.rdb.Eval(rctx, script, []string{key}, token).Err(); err != nil {
					l.log.Warn("Lock release failed", "key", key, "error", err)
				}
			}
			return release, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock: %s: %w", name, pkgerrors.ErrConflictLocked)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// NewLocal returns a process-local locker.
func NewLocal() Locker {
	return &localLocker{locks: make(map[string]*localEntry)}
}

type localEntry struct {
	mu   sync.Mutex
	refs int
}

type localLocker struct {
	mu    sync.Mutex
	locks map[string]*localEntry
}

func (l *localLocker) Acquire(ctx context.Context, name string, ttl, wait time.Duration) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[name]
	if !ok {
		entry = &localEntry{}
		l.locks[name] = entry
	}
	entry.refs++
	l.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		entry.mu.Lock()
		close(acquired)
	}()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	release := func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, name)
		}
		l.mu.Unlock()
	}

	select {
	case <-acquired:
		return release, nil
	case <-timer.C:
		go func() {
			<-acquired
			release()
		}()
		return nil, fmt.Errorf("lock: %s: %w", name, pkgerrors.ErrConflictLocked)
	case <-ctx.Done():
		go func() {
			<-acquired
			release()
		}()
		return nil, ctx.Err()
	}
}
