package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Lock names for the two passes
const (
	RulesPassLock  = "rules-pass"
	AlertsPassLock = "alerts-pass"
)

// PassLock excludes concurrent runs of the same pass. TryAcquire never
// blocks: ok is false when another holder has the lock.
type PassLock interface {
	TryAcquire(ctx context.Context, name string) (release func(), ok bool, err error)
}

// LocalLock is an in-process PassLock
type LocalLock struct {
	mutex sync.Mutex
	held  map[string]bool
}

func NewLocalLock() *LocalLock {
	return &LocalLock{held: make(map[string]bool)}
}

func (l *LocalLock) TryAcquire(ctx context.Context, name string) (func(), bool, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.held[name] {
		return nil, false, nil
	}
	l.held[name] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mutex.Lock()
			delete(l.held, name)
			l.mutex.Unlock()
		})
	}, true, nil
}

// releaseScript deletes the key only while it still holds our token.
// KEYS[1] = lock key, ARGV[1] = token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the TTL only while the key still holds our token.
// KEYS[1] = lock key, ARGV[1] = token, ARGV[2] = ttl in milliseconds
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// LockClient is the part of a Redis client the lock needs. Every
// redis.Cmdable satisfies it.
type LockClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisLock is a PassLock shared by every process using the same Redis.
// The holder renews the TTL every third of it, so the TTL only bounds how
// long a crashed holder can block later passes.
type RedisLock struct {
	client    LockClient
	keyPrefix string
	ttl       time.Duration
	logger    *logrus.Logger
}

// NewRedisLock creates a lock over an existing client
func NewRedisLock(client LockClient, keyPrefix string, ttl time.Duration, logger *logrus.Logger) *RedisLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLock{client: client, keyPrefix: keyPrefix, ttl: ttl, logger: logger}
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

func (l *RedisLock) TryAcquire(ctx context.Context, name string) (func(), bool, error) {
	key := l.keyPrefix + name
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go l.renew(key, token, stop, stopped)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-stopped

			// the pass context may already be done
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			released, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
			switch {
			case err != nil:
				l.logger.WithError(err).WithField("lock", key).Warn("Failed to release pass lock, it will expire with its TTL")
			case released == 0:
				l.logger.WithField("lock", key).Warn("Pass lock was taken over before release")
			}
		})
	}, true, nil
}

// renew keeps the key alive until stop closes or the token is gone
func (l *RedisLock) renew(key, token string, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			held, err := renewScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				l.logger.WithError(err).WithField("lock", key).Warn("Failed to renew pass lock")
				continue
			}
			if held == 0 {
				l.logger.WithField("lock", key).Warn("Pass lock was taken over, no longer renewing")
				return
			}
		}
	}
}
