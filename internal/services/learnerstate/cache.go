package learnerstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/neurobridge-tutor/internal/domain/learner"
)

// Cache is a read-through copy of committed summaries used by the prompt
// path. Writers overwrite with Set; readers populate with Fill, which never
// replaces a newer entry.
type Cache interface {
	Get(ctx context.Context, participantID string) (*learner.Summary, bool, error)
	Set(ctx context.Context, s *learner.Summary) error
	Fill(ctx context.Context, s *learner.Summary) error
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) (*learner.Summary, bool, error) { return nil, false, nil }
func (nopCache) Set(context.Context, *learner.Summary) error                { return nil }
func (nopCache) Fill(context.Context, *learner.Summary) error               { return nil }

type RedisCache struct {
	rdb    goredis.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewRedisCache(rdb goredis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl, prefix: "learner_state:"}
}

func (c *RedisCache) key(participantID string) string {
	return c.prefix + participantID
}

func (c *RedisCache) Get(ctx context.Context, participantID string) (*learner.Summary, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(participantID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get learner state: %w", err)
	}
	data := map[string]any{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, false, fmt.Errorf("decode cached learner state: %w", err)
	}
	s, err := learner.SummaryFromProfileData(participantID, data)
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

func (c *RedisCache) Set(ctx context.Context, s *learner.Summary) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(s.ParticipantID), raw, c.ttl).Err()
}

func (c *RedisCache) Fill(ctx context.Context, s *learner.Summary) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.rdb.SetNX(ctx, c.key(s.ParticipantID), raw, c.ttl).Err()
}
