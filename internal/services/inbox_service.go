package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"agentpost/internal/domain"
	"agentpost/internal/metrics"
	"agentpost/internal/store"
	agentpost_errors "agentpost/pkg/errors"
	"agentpost/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// pageFetchParallelism bounds concurrent message fetches for one page.
const pageFetchParallelism = 8

// Page is one slice of an agent's inbox or outbox, newest first.
type Page struct {
	Items       []*domain.Message `json:"items"`
	UnreadCount int               `json:"unreadCount"`
	Total       int               `json:"total"`
}

// InboxService maintains the per-agent delivery indices and serves paginated
// listings over them. Index records are read-modify-write with no lock;
// concurrent deliveries to one recipient can under-count unread by a small
// margin, which is accepted in exchange for a store with no atomic counters.
type InboxService struct {
	store store.RecordStore
	log   *logger.Logger
}

func NewInboxService(s store.RecordStore, log *logger.Logger) *InboxService {
	return &InboxService{store: s, log: log}
}

// AppendDelivery files a delivered message under the recipient's inbox
// index, creating the index lazily on first delivery.
func (s *InboxService) AppendDelivery(ctx context.Context, recipient, messageID string, at time.Time) error {
	idx, err := s.store.GetInboxIndex(ctx, recipient)
	if errors.Is(err, agentpost_errors.ErrNotFound) {
		idx = &domain.InboxIndex{Owner: recipient}
	} else if err != nil {
		return err
	}
	idx.Append(messageID, at)
	return s.store.SaveInboxIndex(ctx, idx)
}

// AppendSent files a sent message under the sender's outbox index.
func (s *InboxService) AppendSent(ctx context.Context, sender, messageID string, at time.Time) error {
	idx, err := s.store.GetOutboxIndex(ctx, sender)
	if errors.Is(err, agentpost_errors.ErrNotFound) {
		idx = &domain.OutboxIndex{Owner: sender}
	} else if err != nil {
		return err
	}
	idx.Append(messageID, at)
	return s.store.SaveOutboxIndex(ctx, idx)
}

// MarkRead lowers the recipient's unread estimate by at most one, floored
// at zero. Missing index is a no-op: there is nothing to decrement.
func (s *InboxService) MarkRead(ctx context.Context, recipient string) error {
	idx, err := s.store.GetInboxIndex(ctx, recipient)
	if errors.Is(err, agentpost_errors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	idx.DecrementUnread()
	return s.store.SaveInboxIndex(ctx, idx)
}

// ListInbox returns a page of the recipient's messages, newest first. An
// agent with no index yet has an empty inbox, not an error.
func (s *InboxService) ListInbox(ctx context.Context, owner string, limit, offset int) (*Page, error) {
	idx, err := s.store.GetInboxIndex(ctx, owner)
	if errors.Is(err, agentpost_errors.ErrNotFound) {
		return &Page{Items: []*domain.Message{}}, nil
	}
	if err != nil {
		return nil, err
	}
	items, err := s.fetchPage(ctx, idx.MessageIDs, limit, offset)
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, UnreadCount: idx.UnreadCount, Total: len(idx.MessageIDs)}, nil
}

// ListOutbox returns a page of the sender's messages, newest first.
func (s *InboxService) ListOutbox(ctx context.Context, owner string, limit, offset int) (*Page, error) {
	idx, err := s.store.GetOutboxIndex(ctx, owner)
	if errors.Is(err, agentpost_errors.ErrNotFound) {
		return &Page{Items: []*domain.Message{}}, nil
	}
	if err != nil {
		return nil, err
	}
	items, err := s.fetchPage(ctx, idx.MessageIDs, limit, offset)
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, Total: len(idx.MessageIDs)}, nil
}

// fetchPage reverses the append-order id list, slices it, and fetches the
// messages in parallel. An id whose record is missing or unparseable is
// dropped from the page: partial results beat total failure.
func (s *InboxService) fetchPage(ctx context.Context, ids []string, limit, offset int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	reversed := make([]string, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		reversed = append(reversed, ids[i])
	}
	if offset >= len(reversed) {
		return []*domain.Message{}, nil
	}
	end := offset + limit
	if end > len(reversed) {
		end = len(reversed)
	}
	page := reversed[offset:end]

	results := make([]*domain.Message, len(page))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pageFetchParallelism)
	for i, id := range page {
		g.Go(func() error {
			msg, err := s.store.GetMessage(gctx, id)
			if err != nil {
				metrics.DroppedPageRecords.Inc()
				s.log.Warnf("dropping message %s from page: %v", id, err)
				return nil
			}
			results[i] = msg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]*domain.Message, 0, len(results))
	for _, msg := range results {
		if msg != nil {
			items = append(items, msg)
		}
	}
	return items, nil
}

// RebuildIndex reconstructs a recipient's inbox index by rescanning stored
// messages. This is the repair path for a crash that stored a message but
// never indexed it; it runs only on operator request.
func (s *InboxService) RebuildIndex(ctx context.Context, recipient string) (*domain.InboxIndex, error) {
	msgs, err := s.store.ScanMessagesByRecipient(ctx, recipient)
	if err != nil {
		return nil, err
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].SentAt.Before(msgs[j].SentAt) })

	idx := &domain.InboxIndex{Owner: recipient}
	for _, msg := range msgs {
		idx.MessageIDs = append(idx.MessageIDs, msg.ID)
		if !msg.IsRead() {
			idx.UnreadCount++
		}
		if msg.SentAt.After(idx.LastMessageAt) {
			idx.LastMessageAt = msg.SentAt
		}
	}
	if err := s.store.SaveInboxIndex(ctx, idx); err != nil {
		return nil, err
	}
	s.log.Infof("rebuilt inbox index for %s: %d messages, %d unread", recipient, len(idx.MessageIDs), idx.UnreadCount)
	return idx, nil
}
