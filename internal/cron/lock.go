package cron

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockTTL = 25 * time.Hour

// Lock guards a single job so only one worker instance runs it at a time.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
	// Holder reports the instance currently owning the lock, or "" when free.
	Holder(ctx context.Context) (string, error)
}

// LockProvider hands out the lock for a job name.
type LockProvider interface {
	For(job string) Lock
}

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// JobLocks derives one Redis lock per job from a shared key prefix, so a
// long replenish never holds back the reactivation sweep.
type JobLocks struct {
	client   redisStore
	prefix   string
	ttl      time.Duration
	instance string
}

// NewJobLocks builds the per-job lock provider. instance identifies this
// worker in the stored lock value.
func NewJobLocks(client redisStore, prefix string, ttl time.Duration, instance string) (*JobLocks, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if strings.TrimSpace(prefix) == "" {
		return nil, errors.New("lock key prefix is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if strings.TrimSpace(instance) == "" {
		instance = "unknown"
	}
	return &JobLocks{client: client, prefix: prefix, ttl: ttl, instance: instance}, nil
}

// For returns the lock guarding the named job.
func (l *JobLocks) For(job string) Lock {
	return &RedisLock{
		client:   l.client,
		key:      l.prefix + ":" + job,
		ttl:      l.ttl,
		instance: l.instance,
	}
}

// RedisLock is a SETNX lock whose value is "<instance>/<token>".
type RedisLock struct {
	client   redisStore
	key      string
	ttl      time.Duration
	instance string
	owner    string
}

// Acquire tries to own the lock for the configured TTL.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := l.instance + "/" + uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", l.key, err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// Release deletes the key only while this lock still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	defer func() { l.owner = "" }()
	value, err := l.client.Get(ctx, l.key)
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read lock owner: %w", err)
	}
	if value != l.owner {
		return nil
	}
	if err := l.client.Del(ctx, l.key); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	return nil
}

func (l *RedisLock) Holder(ctx context.Context) (string, error) {
	value, err := l.client.Get(ctx, l.key)
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read lock owner: %w", err)
	}
	instance, _, _ := strings.Cut(value, "/")
	return instance, nil
}
