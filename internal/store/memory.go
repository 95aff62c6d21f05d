package store

import (
	"context"
	"sync"
	"time"

	"agentpost/internal/domain"
	agentpost_errors "agentpost/pkg/errors"
)

// MemoryStore keeps every record in process memory. It backs development
// runs and tests; production deployments use RedisStore. TTL-bearing entries
// (redemptions, rate windows) are expired lazily on access.
type MemoryStore struct {
	mu          sync.RWMutex
	messages    map[string]*domain.Message
	replies     map[string]*domain.Reply
	agents      map[string]*domain.Agent
	inboxes     map[string]*domain.InboxIndex
	outboxes    map[string]*domain.OutboxIndex
	redemptions map[string]*domain.RedemptionRecord
	redeemTTL   map[string]time.Time
	rateWindows map[string][]time.Time
	rateTTL     map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages:    make(map[string]*domain.Message),
		replies:     make(map[string]*domain.Reply),
		agents:      make(map[string]*domain.Agent),
		inboxes:     make(map[string]*domain.InboxIndex),
		outboxes:    make(map[string]*domain.OutboxIndex),
		redemptions: make(map[string]*domain.RedemptionRecord),
		redeemTTL:   make(map[string]time.Time),
		rateWindows: make(map[string][]time.Time),
		rateTTL:     make(map[string]time.Time),
	}
}

func (s *MemoryStore) SaveMessage(ctx context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *msg
	s.messages[msg.ID] = &copied
	return nil
}

func (s *MemoryStore) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, agentpost_errors.ErrNotFound
	}
	copied := *msg
	return &copied, nil
}

func (s *MemoryStore) DeleteMessage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, id)
	return nil
}

func (s *MemoryStore) ScanMessagesByRecipient(ctx context.Context, recipient string) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Message
	for _, msg := range s.messages {
		if msg.Recipient == recipient {
			copied := *msg
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveReply(ctx context.Context, reply *domain.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.replies[reply.MessageID]; ok {
		return agentpost_errors.ErrReplyExists
	}
	copied := *reply
	s.replies[reply.MessageID] = &copied
	return nil
}

func (s *MemoryStore) GetReply(ctx context.Context, messageID string) (*domain.Reply, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reply, ok := s.replies[messageID]
	if !ok {
		return nil, agentpost_errors.ErrNotFound
	}
	copied := *reply
	return &copied, nil
}

func (s *MemoryStore) DeleteReply(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.replies, messageID)
	return nil
}

func (s *MemoryStore) SaveAgent(ctx context.Context, agent *domain.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *agent
	s.agents[agent.Address] = &copied
	return nil
}

func (s *MemoryStore) GetAgent(ctx context.Context, address string) (*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[address]
	if !ok {
		return nil, agentpost_errors.ErrNotFound
	}
	copied := *agent
	return &copied, nil
}

func (s *MemoryStore) DeleteAgent(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.agents, address)
	return nil
}

func (s *MemoryStore) GetInboxIndex(ctx context.Context, owner string) (*domain.InboxIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.inboxes[owner]
	if !ok {
		return nil, agentpost_errors.ErrNotFound
	}
	copied := *idx
	copied.MessageIDs = append([]string(nil), idx.MessageIDs...)
	return &copied, nil
}

func (s *MemoryStore) SaveInboxIndex(ctx context.Context, idx *domain.InboxIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *idx
	copied.MessageIDs = append([]string(nil), idx.MessageIDs...)
	s.inboxes[idx.Owner] = &copied
	return nil
}

func (s *MemoryStore) DeleteInboxIndex(ctx context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inboxes, owner)
	return nil
}

func (s *MemoryStore) GetOutboxIndex(ctx context.Context, owner string) (*domain.OutboxIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.outboxes[owner]
	if !ok {
		return nil, agentpost_errors.ErrNotFound
	}
	copied := *idx
	copied.MessageIDs = append([]string(nil), idx.MessageIDs...)
	return &copied, nil
}

func (s *MemoryStore) SaveOutboxIndex(ctx context.Context, idx *domain.OutboxIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *idx
	copied.MessageIDs = append([]string(nil), idx.MessageIDs...)
	s.outboxes[idx.Owner] = &copied
	return nil
}

func (s *MemoryStore) DeleteOutboxIndex(ctx context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.outboxes, owner)
	return nil
}

func (s *MemoryStore) TryRedeem(ctx context.Context, rec *domain.RedemptionRecord, retention time.Duration) (*domain.RedemptionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expiry, ok := s.redeemTTL[rec.Txid]; ok && time.Now().After(expiry) {
		delete(s.redemptions, rec.Txid)
		delete(s.redeemTTL, rec.Txid)
	}
	if prior, ok := s.redemptions[rec.Txid]; ok {
		copied := *prior
		return &copied, nil
	}
	copied := *rec
	s.redemptions[rec.Txid] = &copied
	s.redeemTTL[rec.Txid] = time.Now().Add(retention)
	return nil, nil
}

func (s *MemoryStore) GetRateWindow(ctx context.Context, key string) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if expiry, ok := s.rateTTL[key]; ok && time.Now().After(expiry) {
		return nil, nil
	}
	return append([]time.Time(nil), s.rateWindows[key]...), nil
}

func (s *MemoryStore) SaveRateWindow(ctx context.Context, key string, stamps []time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateWindows[key] = append([]time.Time(nil), stamps...)
	s.rateTTL[key] = time.Now().Add(ttl)
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
