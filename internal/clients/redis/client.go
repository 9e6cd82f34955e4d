package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/technova/corpusd/internal/logger"
	"github.com/technova/corpusd/internal/utils"
)

// New dials redis from REDIS_ADDR and verifies the connection before
// handing the client out.
func New(log *logger.Logger) (*goredis.Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(utils.GetEnv("REDIS_ADDR", "localhost:6379", log))
	password := utils.GetEnv("REDIS_PASSWORD", "", nil)
	db := utils.GetEnvAsInt("REDIS_DB", 0, log)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Store adapts the redis client to the fast-tier interface the cache and
// context services consume. Failures are logged and swallowed: a broken fast
// tier degrades to the durable tier, it never fails a request.
type Store struct {
	rdb *goredis.Client
	log *logger.Logger
}

func NewStore(rdb *goredis.Client, log *logger.Logger) *Store {
	return &Store{rdb: rdb, log: log.With("service", "RedisStore")}
}

func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err == goredis.Nil {
		return "", false
	}
	if err != nil {
		s.log.Warn("Redis GET failed", "key", key, "error", err)
		return "", false
	}
	return val, true
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		s.log.Warn("Redis SET failed", "key", key, "error", err)
	}
}

func (s *Store) Del(ctx context.Context, key string) {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		s.log.Warn("Redis DEL failed", "key", key, "error", err)
	}
}
