package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Extracted data lives for the conversation's lifetime, not a single turn.
const stateTTL = 30 * 24 * time.Hour

// RedisStateStore persists Extracted Data per conversation key in Redis.
type RedisStateStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

// NewRedisStateStore creates a state store backed by the given client.
func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	return &RedisStateStore{
		redis:  client,
		tracer: otel.Tracer("convia.internal.conversation.state"),
	}
}

func stateKey(key Key) string {
	return fmt.Sprintf("extracted:%s", key.ID())
}

// Load returns the conversation's Extracted Data, or an empty map when the
// conversation has no state yet.
func (s *RedisStateStore) Load(ctx context.Context, key Key) (ExtractedData, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_state")
	defer span.End()

	raw, err := s.redis.Get(ctx, stateKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return ExtractedData{}, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load state: %w", err)
	}

	var data ExtractedData
	if err := json.Unmarshal(raw, &data); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to decode state: %w", err)
	}
	return data, nil
}

// Save overwrites the conversation's Extracted Data.
func (s *RedisStateStore) Save(ctx context.Context, key Key, data ExtractedData) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_state")
	defer span.End()

	raw, err := json.Marshal(data)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal state: %w", err)
	}
	if err := s.redis.Set(ctx, stateKey(key), raw, stateTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist state: %w", err)
	}
	return nil
}
