package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zhouzirui/xiaolang/backend/internal/logging"
	"github.com/zhouzirui/xiaolang/backend/internal/model/chat"
)

// DefaultKeyPrefix namespaces session lists in Redis.
const DefaultKeyPrefix = "message_store:"

// RedisStore persists each session as a Redis list of JSON encoded messages.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// RedisOption customizes a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithTTL refreshes the key expiry on every write. Zero keeps keys forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

// WithLogger reports entries that fail to decode.
func WithLogger(logger *zap.Logger) RedisOption {
	return func(s *RedisStore) { s.logger = logger }
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).Named("redis_store")
	return s
}

// Dial parses a redis:// URL and verifies the server answers PING.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// Messages reads the full list in insertion order. Entries that do not
// decode are skipped so the next Replace can rewrite the list without them.
func (s *RedisStore) Messages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	if sessionID == "" {
		return nil, ErrEmptySession
	}
	raw, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange %s: %w", sessionID, err)
	}

	messages := make([]chat.Message, 0, len(raw))
	for i, item := range raw {
		var msg chat.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			s.logger.Warn("skip undecodable message",
				zap.String("session", sessionID), zap.Int("index", i), zap.Error(err))
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Append pushes messages to the tail of the list.
func (s *RedisStore) Append(ctx context.Context, sessionID string, msgs ...chat.Message) error {
	if sessionID == "" {
		return ErrEmptySession
	}
	if len(msgs) == 0 {
		return nil
	}
	values, err := encode(msgs)
	if err != nil {
		return err
	}

	key := s.key(sessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append %s: %w", sessionID, err)
	}
	return nil
}

// Replace deletes the list and writes msgs in a single MULTI/EXEC.
func (s *RedisStore) Replace(ctx context.Context, sessionID string, msgs []chat.Message) error {
	if sessionID == "" {
		return ErrEmptySession
	}
	values, err := encode(msgs)
	if err != nil {
		return err
	}

	key := s.key(sessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.RPush(ctx, key, values...)
			if s.ttl > 0 {
				pipe.Expire(ctx, key, s.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis replace %s: %w", sessionID, err)
	}
	return nil
}

func encode(msgs []chat.Message) ([]any, error) {
	values := make([]any, 0, len(msgs))
	for _, msg := range msgs {
		raw, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("encode message: %w", err)
		}
		values = append(values, string(raw))
	}
	return values, nil
}
