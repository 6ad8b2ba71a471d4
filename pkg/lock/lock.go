package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotAcquired = errors.New("lock not acquired")

// Only delete the key if we still own it.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// RunLock serializes an operation within the process and, when a redis
// client is configured, across instances as well.
type RunLock struct {
	client *redis.Client // nil means process-local only
	key    string
	ttl    time.Duration

	mu    sync.Mutex
	held  bool
	token string
}

func New(client *redis.Client, key string, ttl time.Duration) *RunLock {
	return &RunLock{client: client, key: key, ttl: ttl}
}

func (l *RunLock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return ErrNotAcquired
	}

	if l.client != nil {
		token := uuid.NewString()
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotAcquired
		}
		l.token = token
	}

	l.held = true
	return nil
}

func (l *RunLock) Release(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return
	}
	if l.client != nil {
		// Best effort; the TTL covers a lost connection.
		l.client.Eval(ctx, releaseScript, []string{l.key}, l.token)
		l.token = ""
	}
	l.held = false
}
