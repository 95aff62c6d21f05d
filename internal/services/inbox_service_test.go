package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentpost/internal/domain"
	"agentpost/internal/store"
	"agentpost/pkg/logger"
)

func seedInbox(t *testing.T, s store.RecordStore, svc *InboxService, owner string, n int) []string {
	t.Helper()
	ctx := context.Background()
	base := time.Now().Add(-time.Duration(n) * time.Minute)

	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("msg-%03d", i)
		at := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.SaveMessage(ctx, &domain.Message{
			ID:        id,
			Recipient: owner,
			Content:   fmt.Sprintf("content %d", i),
			SentAt:    at,
		}))
		require.NoError(t, svc.AppendDelivery(ctx, owner, id, at))
		ids = append(ids, id)
	}
	return ids
}

func TestListInboxNewestFirst(t *testing.T) {
	s := store.NewMemoryStore()
	svc := NewInboxService(s, logger.New("test"))
	ids := seedInbox(t, s, svc, testRecipient, 5)

	page, err := svc.ListInbox(context.Background(), testRecipient, 3, 0)
	require.NoError(t, err)

	require.Len(t, page.Items, 3)
	assert.Equal(t, ids[4], page.Items[0].ID)
	assert.Equal(t, ids[3], page.Items[1].ID)
	assert.Equal(t, ids[2], page.Items[2].ID)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 5, page.UnreadCount)
}

func TestListInboxOffsetAndBounds(t *testing.T) {
	s := store.NewMemoryStore()
	svc := NewInboxService(s, logger.New("test"))
	ids := seedInbox(t, s, svc, testRecipient, 5)
	ctx := context.Background()

	page, err := svc.ListInbox(ctx, testRecipient, 3, 3)
	require.NoError(t, err)
	require.Len(t, page.Items, 2, "last page is short, not padded")
	assert.Equal(t, ids[1], page.Items[0].ID)
	assert.Equal(t, ids[0], page.Items[1].ID)

	page, err = svc.ListInbox(ctx, testRecipient, 3, 99)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 5, page.Total)
}

func TestListInboxForUnknownAgentIsEmpty(t *testing.T) {
	s := store.NewMemoryStore()
	svc := NewInboxService(s, logger.New("test"))

	page, err := svc.ListInbox(context.Background(), testRecipient, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Zero(t, page.Total)
	assert.Zero(t, page.UnreadCount)
}

func TestListInboxDropsCorruptRecords(t *testing.T) {
	mem := store.NewMemoryStore()
	failing := &failingStore{RecordStore: mem, failMessageIDs: map[string]bool{"msg-002": true}}
	svc := NewInboxService(failing, logger.New("test"))
	ids := seedInbox(t, mem, NewInboxService(mem, logger.New("test")), testRecipient, 5)

	page, err := svc.ListInbox(context.Background(), testRecipient, 10, 0)
	require.NoError(t, err, "one bad record must not fail the page")

	require.Len(t, page.Items, 4)
	got := make([]string, 0, len(page.Items))
	for _, m := range page.Items {
		got = append(got, m.ID)
	}
	assert.Equal(t, []string{ids[4], ids[3], ids[1], ids[0]}, got, "order is preserved around the gap")
	assert.Equal(t, 5, page.Total, "total still counts the index entry")
}

func TestListOutbox(t *testing.T) {
	s := store.NewMemoryStore()
	svc := NewInboxService(s, logger.New("test"))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("sent-%d", i)
		require.NoError(t, s.SaveMessage(ctx, &domain.Message{ID: id, Recipient: testRecipient, SentAt: time.Now()}))
		require.NoError(t, svc.AppendSent(ctx, testPayer, id, time.Now()))
	}

	page, err := svc.ListOutbox(ctx, testPayer, 10, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, "sent-2", page.Items[0].ID)
	assert.Zero(t, page.UnreadCount, "outbox has no unread notion")
}

func TestMarkReadDecrementsUnread(t *testing.T) {
	s := store.NewMemoryStore()
	svc := NewInboxService(s, logger.New("test"))
	seedInbox(t, s, svc, testRecipient, 2)
	ctx := context.Background()

	require.NoError(t, svc.MarkRead(ctx, testRecipient))
	idx, err := s.GetInboxIndex(ctx, testRecipient)
	require.NoError(t, err)
	assert.Equal(t, 1, idx.UnreadCount)

	// Decrements past zero clamp rather than going negative.
	require.NoError(t, svc.MarkRead(ctx, testRecipient))
	require.NoError(t, svc.MarkRead(ctx, testRecipient))
	idx, err = s.GetInboxIndex(ctx, testRecipient)
	require.NoError(t, err)
	assert.Zero(t, idx.UnreadCount)

	assert.NoError(t, svc.MarkRead(ctx, "SP1P72Z3704VMT3DMHPP2CB8TGQWGDBHD3RPR9GZS"), "missing index is a no-op")
}

func TestRebuildIndexRepairsOrphanedMessages(t *testing.T) {
	s := store.NewMemoryStore()
	svc := NewInboxService(s, logger.New("test"))
	ctx := context.Background()
	now := time.Now()

	// Three stored messages, only one indexed; one already read.
	readAt := now.Add(-time.Minute)
	require.NoError(t, s.SaveMessage(ctx, &domain.Message{ID: "m-old", Recipient: testRecipient, SentAt: now.Add(-2 * time.Hour), ReadAt: &readAt}))
	require.NoError(t, s.SaveMessage(ctx, &domain.Message{ID: "m-mid", Recipient: testRecipient, SentAt: now.Add(-time.Hour)}))
	require.NoError(t, s.SaveMessage(ctx, &domain.Message{ID: "m-new", Recipient: testRecipient, SentAt: now}))
	require.NoError(t, svc.AppendDelivery(ctx, testRecipient, "m-old", now.Add(-2*time.Hour)))

	idx, err := svc.RebuildIndex(ctx, testRecipient)
	require.NoError(t, err)

	assert.Equal(t, []string{"m-old", "m-mid", "m-new"}, idx.MessageIDs, "rebuilt oldest first")
	assert.Equal(t, 2, idx.UnreadCount)
	assert.Equal(t, now, idx.LastMessageAt)

	stored, err := s.GetInboxIndex(ctx, testRecipient)
	require.NoError(t, err)
	assert.Equal(t, idx.MessageIDs, stored.MessageIDs)
}
