// Package redis implements the backend contract on Redis. The
// refcount triple runs as server-side Lua scripts, which Redis
// executes atomically; index-map mutations run in MULTI/EXEC
// pipelines.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prn-tf/cascade-store/internal/backend"
	"github.com/prn-tf/cascade-store/internal/domain"
)

// Key layout. The "cas:" and "idx:" prefixes are the two namespaces
// of the backend contract; they cannot alias.
const (
	keyPrefixValue = "cascade:cas:val:"
	keyPrefixMeta  = "cascade:cas:meta:"
	keyCASKeys     = "cascade:cas:keys"
	keyPrefixIndex = "cascade:idx:map:"
	keyIndexNames  = "cascade:idx:names"

	fieldRefCount = "refcount"
)

// Config holds Redis connection settings.
type Config struct {
	Host        string
	Port        int
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
}

// Addr returns the Redis address in host:port format.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// putRefScript atomically creates an object with refcount 1 or bumps
// an existing one, discarding the new payload. Returns 1 on create,
// 0 on bump.
var putRefScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
  redis.call("HINCRBY", KEYS[2], "refcount", 1)
  return 0
end
redis.call("SET", KEYS[1], ARGV[2])
redis.call("HSET", KEYS[2], "refcount", 1)
for i = 3, #ARGV, 2 do
  redis.call("HSET", KEYS[2], ARGV[i], ARGV[i+1])
end
redis.call("SADD", KEYS[3], ARGV[1])
return 1
`)

// upScript bumps the refcount of an existing object. Returns the new
// count, or -1 if the object is missing.
var upScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
return redis.call("HINCRBY", KEYS[1], "refcount", 1)
`)

// downScript decrements the refcount and destroys the object at zero.
// Returns the new count, or -1 if the object is missing.
var downScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 0 then
  return -1
end
local count = redis.call("HINCRBY", KEYS[2], "refcount", -1)
if count <= 0 then
  redis.call("DEL", KEYS[1], KEYS[2])
  redis.call("SREM", KEYS[3], ARGV[1])
end
return count
`)

// Store implements backend.Store on Redis.
type Store struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewStore connects to Redis and returns a Store.
func NewStore(ctx context.Context, cfg Config, logger zerolog.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log := logger.With().Str("component", "redis").Logger()
	log.Info().Str("addr", cfg.Addr()).Int("db", cfg.DB).Msg("connected to Redis")

	return &Store{client: client, logger: log}, nil
}

// PutRef runs the create-or-bump script.
func (s *Store) PutRef(ctx context.Context, key string, value []byte, attrs map[string]string) (bool, error) {
	args := make([]interface{}, 0, 2+2*len(attrs))
	args = append(args, key, value)
	for name, attrValue := range attrs {
		args = append(args, name, attrValue)
	}

	created, err := putRefScript.Run(ctx, s.client,
		[]string{keyPrefixValue + key, keyPrefixMeta + key, keyCASKeys},
		args...).Int64()
	if err != nil {
		return false, fmt.Errorf("putref script failed: %w", err)
	}
	return created == 1, nil
}

// Get returns the stored value.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, keyPrefixValue+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, backend.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return value, nil
}

// Up runs the bump script.
func (s *Store) Up(ctx context.Context, key string) error {
	count, err := upScript.Run(ctx, s.client, []string{keyPrefixMeta + key}).Int64()
	if err != nil {
		return fmt.Errorf("up script failed: %w", err)
	}
	if count < 0 {
		return backend.ErrKeyNotFound
	}
	return nil
}

// Down runs the decrement-and-maybe-delete script.
func (s *Store) Down(ctx context.Context, key string) error {
	count, err := downScript.Run(ctx, s.client,
		[]string{keyPrefixValue + key, keyPrefixMeta + key, keyCASKeys},
		key).Int64()
	if err != nil {
		return fmt.Errorf("down script failed: %w", err)
	}
	if count < 0 {
		return backend.ErrKeyNotFound
	}
	return nil
}

// Attrs returns the object's attributes (the refcount field is
// internal and stripped).
func (s *Store) Attrs(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, keyPrefixMeta+key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get attrs: %w", err)
	}
	if len(fields) == 0 {
		return nil, backend.ErrKeyNotFound
	}
	delete(fields, fieldRefCount)
	return fields, nil
}

// RefCount returns the object's current refcount.
func (s *Store) RefCount(ctx context.Context, key string) (uint64, error) {
	raw, err := s.client.HGet(ctx, keyPrefixMeta+key, fieldRefCount).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, backend.ErrKeyNotFound
		}
		return 0, fmt.Errorf("failed to get refcount: %w", err)
	}
	count, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed refcount %q: %w", raw, err)
	}
	return count, nil
}

// List returns every object with its refcount.
func (s *Store) List(ctx context.Context) ([]domain.ObjectInfo, error) {
	keys, err := s.client.SMembers(ctx, keyCASKeys).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	objects := make([]domain.ObjectInfo, 0, len(keys))
	for _, key := range keys {
		count, err := s.RefCount(ctx, key)
		if err != nil {
			// Raced with a concurrent down that drained the object.
			if err == backend.ErrKeyNotFound {
				continue
			}
			return nil, err
		}
		objects = append(objects, domain.ObjectInfo{Key: key, RefCount: count})
	}
	return objects, nil
}

// IndexSet inserts or replaces entries in a MULTI/EXEC pipeline.
func (s *Store) IndexSet(ctx context.Context, name string, entries map[string]string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, keyIndexNames, name)
		for key, value := range entries {
			pipe.HSet(ctx, keyPrefixIndex+name, key, value)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set index entries: %w", err)
	}
	return nil
}

// IndexGet returns all entries of name's index map. Existence is
// tracked in the names set, because a Redis hash vanishes when its
// last field is removed but the index object must survive.
func (s *Store) IndexGet(ctx context.Context, name string) (map[string]string, error) {
	exists, err := s.client.SIsMember(ctx, keyIndexNames, name).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check index existence: %w", err)
	}
	if !exists {
		return nil, backend.ErrKeyNotFound
	}

	entries, err := s.client.HGetAll(ctx, keyPrefixIndex+name).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read index entries: %w", err)
	}
	return entries, nil
}

// IndexRemoveKeys removes keys; the name stays in the names set.
func (s *Store) IndexRemoveKeys(ctx context.Context, name string, keys []string) error {
	exists, err := s.client.SIsMember(ctx, keyIndexNames, name).Result()
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	if !exists {
		return backend.ErrKeyNotFound
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.HDel(ctx, keyPrefixIndex+name, keys...).Err(); err != nil {
		return fmt.Errorf("failed to remove index entries: %w", err)
	}
	return nil
}

// IndexDelete removes the index object entirely.
func (s *Store) IndexDelete(ctx context.Context, name string) error {
	removed, err := s.client.SRem(ctx, keyIndexNames, name).Result()
	if err != nil {
		return fmt.Errorf("failed to delete index object: %w", err)
	}
	if removed == 0 {
		return backend.ErrKeyNotFound
	}
	if err := s.client.Del(ctx, keyPrefixIndex+name).Err(); err != nil {
		return fmt.Errorf("failed to delete index map: %w", err)
	}
	return nil
}

// IndexNames returns the names of all index objects.
func (s *Store) IndexNames(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, keyIndexNames).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list index objects: %w", err)
	}
	return names, nil
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ensure Store implements backend.Store.
var _ backend.Store = (*Store)(nil)
