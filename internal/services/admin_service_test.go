package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"agentpost/internal/domain"
	"agentpost/internal/store"
	agentpost_errors "agentpost/pkg/errors"
	"agentpost/pkg/logger"
)

func newAdminFixture(t *testing.T, s store.RecordStore) *AdminService {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	log := logger.New("test")
	return NewAdminService(s, NewInboxService(s, log), "test-secret", string(hash), time.Hour, log)
}

func TestAdminLoginIssuesValidToken(t *testing.T) {
	svc := newAdminFixture(t, store.NewMemoryStore())

	token, err := svc.Login("correct horse")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.NoError(t, svc.ParseToken(token))
}

func TestAdminLoginRejectsWrongPassword(t *testing.T) {
	svc := newAdminFixture(t, store.NewMemoryStore())
	_, err := svc.Login("battery staple")
	assert.ErrorIs(t, err, agentpost_errors.ErrUnauthorized)
}

func TestAdminLoginUnconfigured(t *testing.T) {
	log := logger.New("test")
	s := store.NewMemoryStore()
	svc := NewAdminService(s, NewInboxService(s, log), "", "", time.Hour, log)
	_, err := svc.Login("anything")
	assert.ErrorIs(t, err, agentpost_errors.ErrServiceUnavailable)
}

func TestParseTokenRejectsGarbageAndForeignTokens(t *testing.T) {
	svc := newAdminFixture(t, store.NewMemoryStore())
	assert.ErrorIs(t, svc.ParseToken(""), agentpost_errors.ErrUnauthorized)
	assert.ErrorIs(t, svc.ParseToken("not.a.token"), agentpost_errors.ErrUnauthorized)

	otherStore := store.NewMemoryStore()
	other := NewAdminService(otherStore, NewInboxService(otherStore, logger.New("test")), "different-secret", svc.passwordHash, time.Hour, logger.New("test"))
	token, err := other.Login("correct horse")
	require.NoError(t, err)
	assert.ErrorIs(t, svc.ParseToken(token), agentpost_errors.ErrUnauthorized)
}

func TestPurgeAgentRemovesEverything(t *testing.T) {
	s := store.NewMemoryStore()
	svc := newAdminFixture(t, s)
	ctx := context.Background()

	require.NoError(t, s.SaveAgent(ctx, &domain.Agent{Address: testRecipient, PaymentAddress: testPayAddress}))
	require.NoError(t, s.SaveMessage(ctx, &domain.Message{ID: "m1", Recipient: testRecipient, SentAt: time.Now()}))
	require.NoError(t, s.SaveMessage(ctx, &domain.Message{ID: "m2", Recipient: testRecipient, SentAt: time.Now()}))
	require.NoError(t, s.SaveMessage(ctx, &domain.Message{ID: "other", Recipient: testPayAddress, SentAt: time.Now()}))
	require.NoError(t, s.SaveReply(ctx, &domain.Reply{MessageID: "m1", Text: "hi"}))
	require.NoError(t, s.SaveInboxIndex(ctx, &domain.InboxIndex{Owner: testRecipient, MessageIDs: []string{"m1", "m2"}}))

	purged, err := svc.PurgeAgent(ctx, testRecipient)
	require.NoError(t, err)
	assert.Equal(t, 2, purged)

	_, err = s.GetMessage(ctx, "m1")
	assert.ErrorIs(t, err, agentpost_errors.ErrNotFound)
	_, err = s.GetReply(ctx, "m1")
	assert.ErrorIs(t, err, agentpost_errors.ErrNotFound)
	_, err = s.GetAgent(ctx, testRecipient)
	assert.ErrorIs(t, err, agentpost_errors.ErrNotFound)
	_, err = s.GetInboxIndex(ctx, testRecipient)
	assert.ErrorIs(t, err, agentpost_errors.ErrNotFound)

	_, err = s.GetMessage(ctx, "other")
	assert.NoError(t, err, "messages of other agents survive")
}

func TestPurgeAgentUnknownAddress(t *testing.T) {
	svc := newAdminFixture(t, store.NewMemoryStore())
	_, err := svc.PurgeAgent(context.Background(), testRecipient)
	assert.ErrorIs(t, err, agentpost_errors.ErrRecipientNotFound)
}

func TestRebuildInboxIndexCounts(t *testing.T) {
	s := store.NewMemoryStore()
	svc := newAdminFixture(t, s)
	ctx := context.Background()
	readAt := time.Now()

	require.NoError(t, s.SaveMessage(ctx, &domain.Message{ID: "m1", Recipient: testRecipient, SentAt: time.Now().Add(-time.Hour), ReadAt: &readAt}))
	require.NoError(t, s.SaveMessage(ctx, &domain.Message{ID: "m2", Recipient: testRecipient, SentAt: time.Now()}))

	total, unread, err := svc.RebuildInboxIndex(ctx, testRecipient)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, unread)
}
