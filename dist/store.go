package dist

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// Store abstracts the key-value operations a RedisGroup needs so the
// rendezvous logic can be tested without a server.
type Store interface {
	// Incr atomically increments a counter and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	// Counter reads a counter, zero when the key is missing.
	Counter(ctx context.Context, key string) (int64, error)
	// Put sets one field of a hash.
	Put(ctx context.Context, key, field string, value []byte) error
	// Fields reads a whole hash.
	Fields(ctx context.Context, key string) (map[string][]byte, error)
	// Delete removes keys.
	Delete(ctx context.Context, keys ...string) error
}

// RedisStore is a Store backed by go-redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// DefaultKeyTTL bounds how long rendezvous keys outlive a run.
const DefaultKeyTTL = 24 * time.Hour

// NewRedisStore wraps a connected client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, ttl: DefaultKeyTTL}
}

// Connect dials addr and checks the connection.
//
// Arguments:
//   - ctx: Bounds the ping.
//   - addr: host:port of the Redis server.
//
// Returns:
//   - *redis.Client: The connected client.
//   - error: An error if the server does not answer.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "error connecting to store at %s", addr)
	}
	return client, nil
}

// Incr increments key and refreshes its expiry.
func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Counter reads key as an integer.
func (s *RedisStore) Counter(ctx context.Context, key string) (int64, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

// Put sets field of hash key.
func (s *RedisStore) Put(ctx context.Context, key, field string, value []byte) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, field, value)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	return err
}

// Fields reads hash key.
func (s *RedisStore) Fields(ctx context.Context, key string) (map[string][]byte, error) {
	m, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(m))
	for k, v := range m {
		out[k] = []byte(v)
	}
	return out, nil
}

// Delete removes keys.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	return s.client.Del(ctx, keys...).Err()
}
