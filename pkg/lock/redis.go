package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a crashed holder can keep a run locked.
const DefaultTTL = 5 * time.Minute

const keyPrefix = "flowgate:lock:"

// releaseScript deletes the key only when it still carries the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the expiry only while the key still carries the caller's token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a Locker shared by every process connected to the same Redis. A held
// lock renews its lease every third of the ttl until it is released, so the ttl only
// bounds how long a crashed holder blocks the run.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedis creates a Redis-backed locker. A non-positive ttl uses DefaultTTL.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) TryLock(ctx context.Context, key string) (Unlocker, error) {
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, keyPrefix+key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	if !ok {
		return nil, ErrHeld
	}

	l := &redisLock{
		client: r.client,
		key:    keyPrefix + key,
		token:  token,
		ttl:    r.ttl,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	go l.renew()

	return l, nil
}

type redisLock struct {
	client redis.UniversalClient
	key    string
	token  string
	ttl    time.Duration

	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func (l *redisLock) renew() {
	defer close(l.done)

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			renewed, err := renewScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
			cancel()

			// The key expired or was taken over; there is nothing left to renew.
			if err == nil && renewed == 0 {
				return
			}
		}
	}
}

func (l *redisLock) Unlock(ctx context.Context) error {
	l.once.Do(func() { close(l.stop) })
	<-l.done

	err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}

	return nil
}
