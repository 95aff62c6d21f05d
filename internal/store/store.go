package store

import (
	"context"
	"time"

	"agentpost/internal/domain"
)

// RecordStore is the durable key/value persistence boundary. Implementations
// provide no transactions and no atomic counters; callers are written around
// last-writer-wins semantics.
//
// Logical key layout (store-agnostic):
//
//	message:{id}              -> domain.Message
//	reply:{messageId}         -> domain.Reply
//	agent:{address}           -> domain.Agent
//	inbox-index:{recipient}   -> domain.InboxIndex
//	outbox-index:{sender}     -> domain.OutboxIndex
//	redemption:{txid}         -> domain.RedemptionRecord (bounded TTL)
//	rate:{scope}:{identity}   -> timestamp list (bounded TTL)
type RecordStore interface {
	SaveMessage(ctx context.Context, msg *domain.Message) error
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
	DeleteMessage(ctx context.Context, id string) error
	// ScanMessagesByRecipient walks every stored message and returns those
	// addressed to recipient. This is a full keyspace scan, for the index
	// repair and purge paths only; it is never on a request path.
	ScanMessagesByRecipient(ctx context.Context, recipient string) ([]*domain.Message, error)

	// SaveReply is conditional: it fails with ErrReplyExists when the
	// message already has a reply, enforcing the one-reply invariant even
	// under racing writers.
	SaveReply(ctx context.Context, reply *domain.Reply) error
	GetReply(ctx context.Context, messageID string) (*domain.Reply, error)
	DeleteReply(ctx context.Context, messageID string) error

	SaveAgent(ctx context.Context, agent *domain.Agent) error
	GetAgent(ctx context.Context, address string) (*domain.Agent, error)
	DeleteAgent(ctx context.Context, address string) error

	GetInboxIndex(ctx context.Context, owner string) (*domain.InboxIndex, error)
	SaveInboxIndex(ctx context.Context, idx *domain.InboxIndex) error
	DeleteInboxIndex(ctx context.Context, owner string) error

	GetOutboxIndex(ctx context.Context, owner string) (*domain.OutboxIndex, error)
	SaveOutboxIndex(ctx context.Context, idx *domain.OutboxIndex) error
	DeleteOutboxIndex(ctx context.Context, owner string) error

	// TryRedeem performs the single conditional write that prevents a txid
	// from paying for two messages: if no record exists for rec.Txid the
	// record is written with the given retention and nil is returned;
	// otherwise the existing record is returned untouched.
	TryRedeem(ctx context.Context, rec *domain.RedemptionRecord, retention time.Duration) (*domain.RedemptionRecord, error)

	// GetRateWindow returns the recorded request timestamps for a rate key,
	// or an empty slice when none exist.
	GetRateWindow(ctx context.Context, key string) ([]time.Time, error)
	// SaveRateWindow replaces the timestamp list for a rate key. The TTL
	// bounds how long an idle window lingers.
	SaveRateWindow(ctx context.Context, key string, stamps []time.Time, ttl time.Duration) error

	Ping(ctx context.Context) error
}
