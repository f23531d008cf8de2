package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrLockHeld = errors.New("lock held by another caller")

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by someone else is left alone.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`

// Lock is a best-effort SETNX lock with a TTL. It narrows duplicate work; it
// is never the only thing keeping data consistent.
type Lock struct {
	client redis.Cmdable
	key    string
	token  string
}

func AcquireLock(ctx context.Context, client redis.Cmdable, key string, ttl time.Duration) (*Lock, error) {
	token, err := GenerateCode(16)
	if err != nil {
		return nil, fmt.Errorf("lock token: %w", err)
	}

	ok, err := client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{client: client, key: key, token: token}, nil
}

func (l *Lock) Release(ctx context.Context) error {
	if err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}
