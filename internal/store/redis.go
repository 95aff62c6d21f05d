package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agentpost/internal/domain"
	agentpost_errors "agentpost/pkg/errors"

	goredis "github.com/redis/go-redis/v9"
)

// RedisStore is the production RecordStore: every record is a JSON blob
// under a typed key. Reads of absent keys map goredis.Nil onto ErrNotFound.
type RedisStore struct {
	client *goredis.Client
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore creates a RecordStore backed by the given Redis instance.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	return &RedisStore{
		client: goredis.NewClient(&goredis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *goredis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func messageKey(id string) string      { return "message:" + id }
func replyKey(messageID string) string { return "reply:" + messageID }
func agentKey(address string) string   { return "agent:" + address }
func inboxKey(owner string) string     { return "inbox-index:" + owner }
func outboxKey(owner string) string    { return "outbox-index:" + owner }
func redemptionKey(txid string) string { return "redemption:" + txid }

func (s *RedisStore) setJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

func (s *RedisStore) getJSON(ctx context.Context, key string, out any) error {
	data, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return agentpost_errors.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), out)
}

// --- Messages ---

func (s *RedisStore) SaveMessage(ctx context.Context, msg *domain.Message) error {
	return s.setJSON(ctx, messageKey(msg.ID), msg, 0)
}

func (s *RedisStore) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	var msg domain.Message
	if err := s.getJSON(ctx, messageKey(id), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *RedisStore) DeleteMessage(ctx context.Context, id string) error {
	return s.client.Del(ctx, messageKey(id)).Err()
}

func (s *RedisStore) ScanMessagesByRecipient(ctx context.Context, recipient string) ([]*domain.Message, error) {
	var out []*domain.Message
	iter := s.client.Scan(ctx, 0, "message:*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Result()
		if err != nil {
			continue
		}
		var msg domain.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		if msg.Recipient == recipient {
			out = append(out, &msg)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// --- Replies ---

func (s *RedisStore) SaveReply(ctx context.Context, reply *domain.Reply) error {
	data, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	set, err := s.client.SetNX(ctx, replyKey(reply.MessageID), data, 0).Result()
	if err != nil {
		return err
	}
	if !set {
		return agentpost_errors.ErrReplyExists
	}
	return nil
}

func (s *RedisStore) GetReply(ctx context.Context, messageID string) (*domain.Reply, error) {
	var reply domain.Reply
	if err := s.getJSON(ctx, replyKey(messageID), &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (s *RedisStore) DeleteReply(ctx context.Context, messageID string) error {
	return s.client.Del(ctx, replyKey(messageID)).Err()
}

// --- Agents ---

func (s *RedisStore) SaveAgent(ctx context.Context, agent *domain.Agent) error {
	return s.setJSON(ctx, agentKey(agent.Address), agent, 0)
}

func (s *RedisStore) GetAgent(ctx context.Context, address string) (*domain.Agent, error) {
	var agent domain.Agent
	if err := s.getJSON(ctx, agentKey(address), &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (s *RedisStore) DeleteAgent(ctx context.Context, address string) error {
	return s.client.Del(ctx, agentKey(address)).Err()
}

// --- Indices ---

func (s *RedisStore) GetInboxIndex(ctx context.Context, owner string) (*domain.InboxIndex, error) {
	var idx domain.InboxIndex
	if err := s.getJSON(ctx, inboxKey(owner), &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}

func (s *RedisStore) SaveInboxIndex(ctx context.Context, idx *domain.InboxIndex) error {
	return s.setJSON(ctx, inboxKey(idx.Owner), idx, 0)
}

func (s *RedisStore) DeleteInboxIndex(ctx context.Context, owner string) error {
	return s.client.Del(ctx, inboxKey(owner)).Err()
}

func (s *RedisStore) GetOutboxIndex(ctx context.Context, owner string) (*domain.OutboxIndex, error) {
	var idx domain.OutboxIndex
	if err := s.getJSON(ctx, outboxKey(owner), &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}

func (s *RedisStore) SaveOutboxIndex(ctx context.Context, idx *domain.OutboxIndex) error {
	return s.setJSON(ctx, outboxKey(idx.Owner), idx, 0)
}

func (s *RedisStore) DeleteOutboxIndex(ctx context.Context, owner string) error {
	return s.client.Del(ctx, outboxKey(owner)).Err()
}

// --- Redemption ---

func (s *RedisStore) TryRedeem(ctx context.Context, rec *domain.RedemptionRecord, retention time.Duration) (*domain.RedemptionRecord, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	key := redemptionKey(rec.Txid)
	set, err := s.client.SetNX(ctx, key, data, retention).Result()
	if err != nil {
		return nil, err
	}
	if set {
		return nil, nil
	}
	// Lost the conditional write; surface whoever holds the key. A racing
	// delete between SETNX and GET leaves the txid unredeemed again, so a
	// missing record is reported as a store error rather than acceptance.
	existing, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("redemption record for %s vanished", rec.Txid)
	}
	if err != nil {
		return nil, err
	}
	var prior domain.RedemptionRecord
	if err := json.Unmarshal([]byte(existing), &prior); err != nil {
		return nil, err
	}
	return &prior, nil
}

// --- Rate windows ---

func (s *RedisStore) GetRateWindow(ctx context.Context, key string) ([]time.Time, error) {
	var stamps []time.Time
	err := s.getJSON(ctx, key, &stamps)
	if errors.Is(err, agentpost_errors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return stamps, nil
}

func (s *RedisStore) SaveRateWindow(ctx context.Context, key string, stamps []time.Time, ttl time.Duration) error {
	return s.setJSON(ctx, key, stamps, ttl)
}

// Ping checks if Redis is available
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
