package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcrypto "agentpost/internal/crypto"
	"agentpost/internal/domain"
	"agentpost/internal/store"
	agentpost_errors "agentpost/pkg/errors"
	"agentpost/pkg/logger"
)

type messageFixture struct {
	svc   *MessageService
	store *store.MemoryStore
	key   *secp256k1.PrivateKey
	msg   *domain.Message
}

func newMessageFixture(t *testing.T) *messageFixture {
	t.Helper()
	s := store.NewMemoryStore()
	ctx := context.Background()

	key, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	require.NoError(t, s.SaveAgent(ctx, &domain.Agent{
		Address:        testRecipient,
		PaymentAddress: testPayAddress,
		PublicKey:      hex.EncodeToString(key.PubKey().SerializeCompressed()),
		RegisteredAt:   time.Now(),
	}))

	msg := &domain.Message{
		ID:        "msg-1",
		Sender:    testPayer,
		Recipient: testRecipient,
		Content:   "hello",
		SentAt:    time.Now(),
	}
	require.NoError(t, s.SaveMessage(ctx, msg))

	log := logger.New("test")
	inbox := NewInboxService(s, log)
	require.NoError(t, inbox.AppendDelivery(ctx, testRecipient, msg.ID, msg.SentAt))

	return &messageFixture{
		svc:   NewMessageService(s, inbox, appcrypto.Secp256k1Verifier{}, 200, log),
		store: s,
		key:   key,
		msg:   msg,
	}
}

func (f *messageFixture) sign(t *testing.T, message []byte) string {
	t.Helper()
	digest := sha256.Sum256(message)
	compact := secpecdsa.SignCompact(f.key, digest[:], true)
	sig := make([]byte, 65)
	copy(sig, compact[1:])
	sig[64] = compact[0]
	return hex.EncodeToString(sig)
}

func TestMarkReadWithValidProof(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()
	sig := f.sign(t, appcrypto.ReadProofMessage(f.msg.ID))

	msg, err := f.svc.MarkRead(ctx, f.msg.ID, sig)
	require.NoError(t, err)
	require.NotNil(t, msg.ReadAt)

	idx, err := f.store.GetInboxIndex(ctx, testRecipient)
	require.NoError(t, err)
	assert.Zero(t, idx.UnreadCount)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()
	sig := f.sign(t, appcrypto.ReadProofMessage(f.msg.ID))

	first, err := f.svc.MarkRead(ctx, f.msg.ID, sig)
	require.NoError(t, err)
	readAt := *first.ReadAt

	second, err := f.svc.MarkRead(ctx, f.msg.ID, sig)
	require.NoError(t, err)
	assert.Equal(t, readAt, *second.ReadAt, "ReadAt does not move on re-read")

	idx, err := f.store.GetInboxIndex(ctx, testRecipient)
	require.NoError(t, err)
	assert.Zero(t, idx.UnreadCount, "unread is not decremented twice")
}

func TestMarkReadRejectsForeignSignature(t *testing.T) {
	f := newMessageFixture(t)
	other, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	digest := sha256.Sum256(appcrypto.ReadProofMessage(f.msg.ID))
	compact := secpecdsa.SignCompact(other, digest[:], true)
	sig := make([]byte, 65)
	copy(sig, compact[1:])
	sig[64] = compact[0]

	_, err = f.svc.MarkRead(context.Background(), f.msg.ID, hex.EncodeToString(sig))
	assert.ErrorIs(t, err, agentpost_errors.ErrInvalidSignature)
}

func TestMarkReadUnknownMessage(t *testing.T) {
	f := newMessageFixture(t)
	_, err := f.svc.MarkRead(context.Background(), "missing", "doesnotmatter")
	assert.ErrorIs(t, err, agentpost_errors.ErrNotFound)
}

func TestReplyAttachesOnceAndImpliesRead(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()
	text := "thanks for the message"
	sig := f.sign(t, appcrypto.ReplyProofMessage(f.msg.ID, text))

	reply, err := f.svc.Reply(ctx, f.msg.ID, text, sig)
	require.NoError(t, err)
	assert.Equal(t, testRecipient, reply.Replier)
	assert.Equal(t, text, reply.Text)

	msg, err := f.store.GetMessage(ctx, f.msg.ID)
	require.NoError(t, err)
	assert.NotNil(t, msg.ReadAt, "a reply implies the message was read")
	assert.NotNil(t, msg.RepliedAt)

	idx, err := f.store.GetInboxIndex(ctx, testRecipient)
	require.NoError(t, err)
	assert.Zero(t, idx.UnreadCount)

	// Second reply is refused even with a valid signature.
	sig2 := f.sign(t, appcrypto.ReplyProofMessage(f.msg.ID, "second thoughts"))
	_, err = f.svc.Reply(ctx, f.msg.ID, "second thoughts", sig2)
	assert.ErrorIs(t, err, agentpost_errors.ErrReplyExists)
}

func TestReplySignatureBindsText(t *testing.T) {
	f := newMessageFixture(t)
	sig := f.sign(t, appcrypto.ReplyProofMessage(f.msg.ID, "original"))

	_, err := f.svc.Reply(context.Background(), f.msg.ID, "substituted", sig)
	assert.ErrorIs(t, err, agentpost_errors.ErrInvalidSignature)
}

func TestReplyValidatesText(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	var verr *agentpost_errors.ValidationError
	_, err := f.svc.Reply(ctx, f.msg.ID, "", "sig")
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "text")

	_, err = f.svc.Reply(ctx, f.msg.ID, strings.Repeat("a", 201), "sig")
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "text")
}

func TestReplyAfterReadDoesNotDoubleDecrement(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	readSig := f.sign(t, appcrypto.ReadProofMessage(f.msg.ID))
	_, err := f.svc.MarkRead(ctx, f.msg.ID, readSig)
	require.NoError(t, err)

	replySig := f.sign(t, appcrypto.ReplyProofMessage(f.msg.ID, "hi"))
	_, err = f.svc.Reply(ctx, f.msg.ID, "hi", replySig)
	require.NoError(t, err)

	idx, err := f.store.GetInboxIndex(ctx, testRecipient)
	require.NoError(t, err)
	assert.Zero(t, idx.UnreadCount)
}

func TestGetBundlesReply(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	got, err := f.svc.Get(ctx, f.msg.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Reply)

	sig := f.sign(t, appcrypto.ReplyProofMessage(f.msg.ID, "hi"))
	_, err = f.svc.Reply(ctx, f.msg.ID, "hi", sig)
	require.NoError(t, err)

	got, err = f.svc.Get(ctx, f.msg.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Reply)
	assert.Equal(t, "hi", got.Reply.Text)
}
