package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/s00d/rnode-server/internal/logger"
)

// l2Store is the optional distributed tier: a pooled go-redis/v9 client
// with bounded retry/backoff, serving as one tier of a tagged, promoting
// multi-tier manager.
type l2Store struct {
	client *redis.Client
}

func newL2Store(redisURL string) (*l2Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	opts.PoolSize = 25
	opts.MinIdleConns = 5
	opts.ConnMaxLifetime = 5 * time.Minute
	opts.ConnMaxIdleTime = time.Minute
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 8 * time.Millisecond
	opts.MaxRetryBackoff = 512 * time.Millisecond

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &l2Store{client: client}, nil
}

func (s *l2Store) Close() error { return s.client.Close() }

func tagSetKey(tag string) string { return "rnode:tag:" + tag }

func (s *l2Store) Get(ctx context.Context, key string, tags []string) (*Entry, bool) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Cache().Warn().Err(err).Str("tier", "l2").Msg("get failed")
		}
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		logger.Cache().Warn().Err(err).Str("tier", "l2").Msg("corrupt entry")
		return nil, false
	}
	if e.Expired() || !e.HasAllTags(tags) {
		return nil, false
	}
	return &e, true
}

func (s *l2Store) Set(ctx context.Context, e *Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	ttl := e.TTLRemaining()
	if err := s.client.Set(ctx, e.Key, raw, ttl).Err(); err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	for _, t := range e.Tags {
		pipe.SAdd(ctx, tagSetKey(t), e.Key)
	}
	if len(e.Tags) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Cache().Warn().Err(err).Msg("tag index update failed")
		}
	}
	return nil
}

func (s *l2Store) Delete(ctx context.Context, key string) bool {
	raw, err := s.client.Get(ctx, key).Bytes()
	var tags []string
	if err == nil {
		var e Entry
		if json.Unmarshal(raw, &e) == nil {
			tags = e.Tags
		}
	}
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		logger.Cache().Warn().Err(err).Str("tier", "l2").Msg("delete failed")
		return false
	}
	if len(tags) > 0 {
		pipe := s.client.Pipeline()
		for _, t := range tags {
			pipe.SRem(ctx, tagSetKey(t), key)
		}
		_, _ = pipe.Exec(ctx)
	}
	return n > 0
}

func (s *l2Store) Exists(ctx context.Context, key string) bool {
	n, err := s.client.Exists(ctx, key).Result()
	return err == nil && n > 0
}

func (s *l2Store) Clear(ctx context.Context) error {
	return s.client.FlushDB(ctx).Err()
}

// FlushByTags unions the key sets tracked for each tag, deletes every
// matching value key plus its tag-set memberships, and returns the keys
// it actually removed.
func (s *l2Store) FlushByTags(ctx context.Context, tags []string) []string {
	keySet := make(map[string]struct{})
	for _, t := range tags {
		members, err := s.client.SMembers(ctx, tagSetKey(t)).Result()
		if err != nil {
			logger.Cache().Warn().Err(err).Str("tier", "l2").Msg("tag scan failed")
			continue
		}
		for _, k := range members {
			keySet[k] = struct{}{}
		}
	}
	var removed []string
	for k := range keySet {
		if s.Delete(ctx, k) {
			removed = append(removed, k)
		}
	}
	for _, t := range tags {
		s.client.Del(ctx, tagSetKey(t))
	}
	return removed
}
