package query

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"fit-atlas/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	ConversationPrefix     = "conversation:"
	defaultConversationTTL = 30 * time.Minute
)

// ConversationStore keeps the last effective filter of each session.
type ConversationStore interface {
	Last(ctx context.Context, sessionID string) (*domain.QueryFilter, error)
	Remember(ctx context.Context, sessionID string, f domain.QueryFilter) error
}

// RedisConversations stores filters as JSON under "conversation:<session>" with a sliding TTL.
type RedisConversations struct {
	RDB *redis.Client
	TTL time.Duration
}

func (s *RedisConversations) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return defaultConversationTTL
}

// Last returns nil without error when the session has no stored filter.
func (s *RedisConversations) Last(ctx context.Context, sessionID string) (*domain.QueryFilter, error) {
	b, err := s.RDB.Get(ctx, ConversationPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var f domain.QueryFilter
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *RedisConversations) Remember(ctx context.Context, sessionID string, f domain.QueryFilter) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return s.RDB.Set(ctx, ConversationPrefix+sessionID, b, s.ttl()).Err()
}
