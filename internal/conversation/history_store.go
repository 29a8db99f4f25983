package conversation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const historyMaxEntries = 200

// RedisHistoryStore keeps a capped rolling chat history per conversation.
type RedisHistoryStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

// NewRedisHistoryStore creates a history store backed by the given client.
func NewRedisHistoryStore(client *redis.Client) *RedisHistoryStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	return &RedisHistoryStore{
		redis:  client,
		tracer: otel.Tracer("convia.internal.conversation.history"),
	}
}

func historyKey(key Key) string {
	return fmt.Sprintf("history:%s", key.ID())
}

// Append pushes messages onto the conversation's history list.
func (s *RedisHistoryStore) Append(ctx context.Context, key Key, msgs ...ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, "conversation.append_history")
	defer span.End()

	payloads := make([]any, 0, len(msgs))
	for _, m := range msgs {
		raw, err := json.Marshal(m)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("conversation: failed to marshal history entry: %w", err)
		}
		payloads = append(payloads, raw)
	}

	pipe := s.redis.TxPipeline()
	rkey := historyKey(key)
	pipe.RPush(ctx, rkey, payloads...)
	pipe.LTrim(ctx, rkey, -historyMaxEntries, -1)
	pipe.Expire(ctx, rkey, stateTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to append history: %w", err)
	}
	return nil
}

// Recent returns up to limit most recent messages, oldest first.
func (s *RedisHistoryStore) Recent(ctx context.Context, key Key, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = historyWindow
	}
	ctx, span := s.tracer.Start(ctx, "conversation.recent_history")
	defer span.End()

	raw, err := s.redis.LRange(ctx, historyKey(key), int64(-limit), -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load history: %w", err)
	}

	msgs := make([]ChatMessage, 0, len(raw))
	for _, item := range raw {
		var m ChatMessage
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("conversation: failed to decode history entry: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
