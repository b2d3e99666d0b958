package cache

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"video-gateway/domain/model"
	"video-gateway/domain/repository"
	"video-gateway/infrastructure/logger"
)

// NewCache connects to Redis and verifies the connection.
func NewCache(ctx context.Context, address, username, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Username: username,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while connecting to redis")
		return nil, err
	}
	return client, nil
}

// RedisStore keeps each named store in one hash and tracks store names in a set.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var (
	_ repository.ICacheStore   = (*RedisStore)(nil)
	_ repository.ICacheSweeper = (*RedisStore)(nil)
)

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "vgw"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) registryKey() string {
	return s.prefix + ":stores"
}

func (s *RedisStore) storeKey(name string) string {
	return s.prefix + ":store:" + name
}

func (s *RedisStore) Open(ctx context.Context, name string) error {
	return s.client.SAdd(ctx, s.registryKey(), name).Err()
}

func (s *RedisStore) Names(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.registryKey()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *RedisStore) Drop(ctx context.Context, name string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.storeKey(name))
		pipe.SRem(ctx, s.registryKey(), name)
		return nil
	})
	return err
}

func (s *RedisStore) Match(ctx context.Context, name, key string) (*model.CachedEntry, error) {
	raw, err := s.client.HGet(ctx, s.storeKey(name), key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return DecodeEntry(raw)
}

func (s *RedisStore) Put(ctx context.Context, name string, entry *model.CachedEntry) error {
	raw, err := EncodeEntry(entry)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, s.registryKey(), name)
		pipe.HSet(ctx, s.storeKey(name), entry.Key, raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put %s: %w", name, err)
	}
	return nil
}

func (s *RedisStore) Count(ctx context.Context, name string) (int, error) {
	n, err := s.client.HLen(ctx, s.storeKey(name)).Result()
	return int(n), err
}

func (s *RedisStore) DeleteOlderThan(ctx context.Context, name string, cutoffUnixNano int64) (int, error) {
	all, err := s.client.HGetAll(ctx, s.storeKey(name)).Result()
	if err != nil {
		return 0, err
	}
	var stale []string
	for field, raw := range all {
		entry, decErr := DecodeEntry([]byte(raw))
		if decErr != nil || entry.StoredAt.UnixNano() < cutoffUnixNano {
			stale = append(stale, field)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := s.client.HDel(ctx, s.storeKey(name), stale...).Err(); err != nil {
		return 0, err
	}
	return len(stale), nil
}
