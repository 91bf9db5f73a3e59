package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

var ErrLockHeld = errors.New("lock held by another owner")

// Lock is a single-holder lease stored under one key. Only the owner that
// acquired it can release it.
type Lock struct {
	client goredis.Cmdable
	key    string
	ttl    time.Duration
}

type Lease struct {
	lock  *Lock
	token string
}

func NewLock(client goredis.Cmdable, key string, ttl time.Duration) *Lock {
	return &Lock{client: client, key: key, ttl: ttl}
}

func (l *Lock) Acquire(ctx context.Context) (*Lease, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lease{lock: l, token: token}, nil
}

var releaseScript = goredis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

func (l *Lease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.lock.client, []string{l.lock.key}, l.token).Err()
}

// TryLock acquires the lock and returns its release function. It returns
// ErrLockHeld when another owner has it.
func (l *Lock) TryLock(ctx context.Context) (func(context.Context) error, error) {
	lease, err := l.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return lease.Release, nil
}
