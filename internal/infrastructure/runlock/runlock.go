package runlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned when another run currently holds the lock
var ErrHeld = errors.New("runlock: already held by another run")

// releaseScript deletes the key only when this holder's token still owns
// it, so an expired lock reacquired by a later run is never released here.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`)

// RedisLock is an advisory cross-process lock held for the duration of a
// reconciliation run. The TTL bounds how long a crashed run can block its
// successors.
type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
}

// Config holds the lock's Redis connection settings
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	Key      string
	TTL      time.Duration
}

// NewRedisLock connects to Redis and prepares a lock for key
func NewRedisLock(cfg Config) (*RedisLock, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("runlock: failed to connect to Redis: %w", err)
	}

	return NewRedisLockWithClient(client, cfg.Key, cfg.TTL), nil
}

// NewRedisLockWithClient prepares a lock over an existing Redis client
func NewRedisLockWithClient(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	if key == "" {
		key = "picksync:run"
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisLock{
		client: client,
		key:    key,
		ttl:    ttl,
	}
}

// Acquire takes the lock, failing with ErrHeld when another run owns it
func (l *RedisLock) Acquire(ctx context.Context) error {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("runlock: failed to acquire: %w", err)
	}
	if !ok {
		return ErrHeld
	}

	l.token = token
	return nil
}

// Release drops the lock if this run still holds it
func (l *RedisLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}

	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("runlock: failed to release: %w", err)
	}

	l.token = ""
	return nil
}

// Close closes the underlying Redis client
func (l *RedisLock) Close() error {
	return l.client.Close()
}
