package curriculum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/fpachisa/TutorAI-sub000/internal/logger"
)

// ErrCacheMiss is returned by a Cache when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Cache is the byte-level key/value cache behind CachedStore.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// RedisCache adapts a go-redis client to Cache.
type RedisCache struct {
	rdb    *goredis.Client
	prefix string
}

// NewRedisCache dials addr and pings it before returning.
func NewRedisCache(ctx context.Context, addr, prefix string) (*RedisCache, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if prefix == "" {
		prefix = "curriculum:"
	}
	return &RedisCache{rdb: rdb, prefix: prefix}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrCacheMiss
	}
	return raw, err
}

func (c *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.prefix+key, val, ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

// CachedStore is a read-through cache in front of another ContentStore.
// Concurrent misses for the same key share a single backend fetch. Cache
// errors are logged and fall through to the backend.
type CachedStore struct {
	next   ContentStore
	cache  Cache
	ttl    time.Duration
	log    *logger.Logger
	flight singleflight.Group
}

func NewCachedStore(next ContentStore, cache Cache, ttl time.Duration, log *logger.Logger) *CachedStore {
	if log == nil {
		log = logger.Nop()
	}
	return &CachedStore{
		next:  next,
		cache: cache,
		ttl:   ttl,
		log:   log.With("component", "CurriculumCache"),
	}
}

// Content implements ContentStore.
func (s *CachedStore) Content(ctx context.Context, p Path) (*Content, error) {
	key := string(PathToKey(p))

	raw, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		var c Content
		if jerr := json.Unmarshal(raw, &c); jerr == nil {
			return &c, nil
		}
		s.log.Warn("discarding undecodable cache entry", "key", key)
	case !errors.Is(err, ErrCacheMiss):
		s.log.Warn("curriculum cache get failed", "key", key, "error", err)
	}

	v, err, _ := s.flight.Do(key, func() (interface{}, error) {
		c, err := s.next.Content(ctx, p)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(c); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
				s.log.Warn("curriculum cache set failed", "key", key, "error", err)
			}
		}
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Content).clone(), nil
}

// List passes through to the backing store when it can enumerate.
func (s *CachedStore) List(ctx context.Context) ([]*Content, error) {
	l, ok := s.next.(Lister)
	if !ok {
		return nil, errors.New("backing curriculum store cannot list content")
	}
	return l.List(ctx)
}
