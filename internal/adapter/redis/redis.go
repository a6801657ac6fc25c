package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/jun/dijitalmektup/internal/adapter"
	"github.com/jun/dijitalmektup/internal/logger"
	"github.com/jun/dijitalmektup/internal/model"
	"github.com/jun/dijitalmektup/internal/session"
	"github.com/redis/go-redis/v9"
)

// Store implements adapter.KVStore, adapter.PubSub and session.Locker on Redis.
type Store struct {
	client redis.UniversalClient
	log    *logger.Logger
	ttl    time.Duration
}

// NewStore connects to endpoint. Outside dev mode the connection uses TLS, as
// ElastiCache endpoints require it.
func NewStore(ctx context.Context, devMode bool, endpoint string, log *logger.Logger) (*Store, error) {
	var client redis.UniversalClient
	if devMode {
		client = redis.NewClient(&redis.Options{
			Addr: endpoint,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:      endpoint,
			TLSConfig: &tls.Config{},
		})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", endpoint, err)
	}
	return NewStoreWithClient(client, log), nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(client redis.UniversalClient, log *logger.Logger) *Store {
	return &Store{client: client, log: log, ttl: session.DefaultTTL}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, adapter.ErrNotFound
		}
		return nil, err
	}
	return val, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *Store) Publish(ctx context.Context, channel string, message []byte) error {
	return s.client.Publish(ctx, channel, message).Err()
}

func (s *Store) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	pubsub := s.client.Subscribe(ctx, channel)
	// Ensure subscription is established
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return err
	}

	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()

		for {
			select {
			case <-ctx.Done():
				s.log.With("channel", channel).Debug("pubsub channel closed")
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()
	return nil
}

// Lock keys share a hash tag per resource for cluster compatibility.
func lockKey(resource string) string {
	return "lock:{" + resource + "}"
}

// releaseScript deletes the lock only when the caller still holds it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the lock only when the caller still holds it.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

func (s *Store) AcquireLock(ctx context.Context, resource, holder string) (*model.LockSession, error) {
	key := lockKey(resource)
	ok, err := s.client.SetNX(ctx, key, holder, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		current, err := s.client.Get(ctx, key).Result()
		if err != nil || current != holder {
			return nil, session.ErrLocked
		}
		return s.Heartbeat(ctx, resource, holder)
	}
	return &model.LockSession{Resource: resource, Holder: holder, ExpiresAt: time.Now().Add(s.ttl).Unix()}, nil
}

func (s *Store) Heartbeat(ctx context.Context, resource, holder string) (*model.LockSession, error) {
	n, err := refreshScript.Run(ctx, s.client, []string{lockKey(resource)}, holder, s.ttl.Milliseconds()).Int()
	if err != nil {
		return nil, fmt.Errorf("failed to send heartbeat: %w", err)
	}
	if n == 0 {
		return nil, session.ErrLocked
	}
	return &model.LockSession{Resource: resource, Holder: holder, ExpiresAt: time.Now().Add(s.ttl).Unix()}, nil
}

func (s *Store) ReleaseLock(ctx context.Context, resource, holder string) error {
	n, err := releaseScript.Run(ctx, s.client, []string{lockKey(resource)}, holder).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("lock on %s not held by %s", resource, holder)
	}
	return nil
}

func (s *Store) GetLockStatus(ctx context.Context, resource string) (*model.LockSession, error) {
	key := lockKey(resource)
	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get lock status: %w", err)
	}

	holder, err := getCmd.Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.LockSession{
		Resource:  resource,
		Holder:    holder,
		ExpiresAt: time.Now().Add(ttlCmd.Val()).Unix(),
	}, nil
}
