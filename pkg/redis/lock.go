package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("redis lock not acquired")

// releaseScript deletes the lock only when it still holds our token, so an
// expired lock re-acquired by another process is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// KeyedLock is a best-effort distributed mutex keyed by an arbitrary string.
// It serializes ledger mutations for the same affiliate or subscription
// across processes; single-process deployments can use the in-memory locker
// shipped with the ledger packages instead.
type KeyedLock struct {
	client    redis.UniversalClient
	ttl       time.Duration
	retryWait time.Duration
}

// NewKeyedLock creates a keyed lock. The TTL bounds how long a crashed
// holder can block other workers.
func NewKeyedLock(client redis.UniversalClient, ttl time.Duration) *KeyedLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &KeyedLock{
		client:    client,
		ttl:       ttl,
		retryWait: 50 * time.Millisecond,
	}
}

// Lock acquires the lock for key, polling until acquired or ctx is done.
// The returned function releases the lock.
func (l *KeyedLock) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, errors.Join(ErrLockNotAcquired, err)
		}
		if ok {
			return func() {
				// Release on background context so an already-cancelled
				// request context still frees the lock.
				releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_, _ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Result()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrLockNotAcquired, ctx.Err())
		case <-time.After(l.retryWait):
		}
	}
}
