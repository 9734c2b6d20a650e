package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces every LeadPipe key in Redis.
const DefaultKeyPrefix = "leadpipe:"

// RedisBackend stores each conversation as a JSON value under
// <prefix>conv:<unit>:<sender>, and dedup markers under <prefix>dedup:<id>
// and <prefix>dedup:processed:<id>.
type RedisBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var (
	_ ConversationBackend = (*RedisBackend)(nil)
	_ DedupRepo           = (*RedisBackend)(nil)
)

// NewRedisBackend wraps an existing client. Records never expire unless WithTTL is given.
func NewRedisBackend(client *redis.Client, opts ...Option) *RedisBackend {
	cfg := Opts{KeyPrefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &RedisBackend{client: client, prefix: cfg.KeyPrefix, ttl: cfg.TTL}
}

// NewRedisClient connects to addr and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	slog.Debug("NewRedisClient: connected", "addr", addr, "db", db)
	return client, nil
}

func (b *RedisBackend) conversationKey(unit, senderID string) string {
	return b.prefix + "conv:" + unit + ":" + senderID
}

func (b *RedisBackend) LoadConversation(ctx context.Context, unit, senderID string) (*models.Conversation, error) {
	data, err := b.client.Get(ctx, b.conversationKey(unit, senderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	var conv models.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("failed to decode conversation: %w", err)
	}
	return &conv, nil
}

func (b *RedisBackend) SaveConversation(ctx context.Context, unit, senderID string, conv *models.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}
	if err := b.client.Set(ctx, b.conversationKey(unit, senderID), data, b.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (b *RedisBackend) DeleteConversation(ctx context.Context, unit, senderID string) error {
	if err := b.client.Del(ctx, b.conversationKey(unit, senderID)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// dedupRetention bounds how long inbound ids are remembered.
const dedupRetention = 48 * time.Hour

func (b *RedisBackend) RecordInbound(ctx context.Context, messageID, senderID string) (bool, error) {
	ok, err := b.client.SetNX(ctx, b.prefix+"dedup:"+messageID, senderID, dedupRetention).Result()
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	return ok, nil
}

// MarkProcessed sets <prefix>dedup:processed:<id>, expiring with the inbound marker.
func (b *RedisBackend) MarkProcessed(ctx context.Context, messageID string) error {
	if err := b.client.Set(ctx, b.prefix+"dedup:processed:"+messageID, time.Now().Unix(), dedupRetention).Err(); err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}
