package domain

import "time"

// InboxIndex is the per-recipient delivery index, stored under
// inbox-index:{recipient}. MessageIDs is append-only and ordered oldest
// first, so a page is always computable by reversing and slicing.
//
// UnreadCount is an eventually-consistent estimate: the store has no atomic
// counters, so concurrent read-modify-write cycles can under-count by a
// small margin. It is clamped to [0, len(MessageIDs)] and must never feed
// correctness-critical logic.
type InboxIndex struct {
	Owner         string    `json:"owner"`
	MessageIDs    []string  `json:"messageIds"`
	UnreadCount   int       `json:"unreadCount"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

// Append records a delivered message. IDs are never removed or reordered.
func (idx *InboxIndex) Append(messageID string, at time.Time) {
	idx.MessageIDs = append(idx.MessageIDs, messageID)
	idx.UnreadCount++
	if at.After(idx.LastMessageAt) {
		idx.LastMessageAt = at
	}
	idx.clamp()
}

// DecrementUnread lowers the unread estimate by one, floored at zero.
func (idx *InboxIndex) DecrementUnread() {
	idx.UnreadCount--
	idx.clamp()
}

func (idx *InboxIndex) clamp() {
	if idx.UnreadCount < 0 {
		idx.UnreadCount = 0
	}
	if idx.UnreadCount > len(idx.MessageIDs) {
		idx.UnreadCount = len(idx.MessageIDs)
	}
}

// OutboxIndex mirrors InboxIndex for the sending side, stored under
// outbox-index:{sender}. There is no unread notion for sent messages.
type OutboxIndex struct {
	Owner         string    `json:"owner"`
	MessageIDs    []string  `json:"messageIds"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

// Append records a sent message id.
func (idx *OutboxIndex) Append(messageID string, at time.Time) {
	idx.MessageIDs = append(idx.MessageIDs, messageID)
	if at.After(idx.LastMessageAt) {
		idx.LastMessageAt = at
	}
}

// RedemptionRecord ties a settled transaction id to the one message it paid
// for, stored under redemption:{txid} with a bounded TTL. Within the
// retention window a txid can appear in at most one record; past it, the
// chain's own double-spend protection is the backstop.
type RedemptionRecord struct {
	Txid       string    `json:"txid"`
	MessageID  string    `json:"messageId"`
	RedeemedAt time.Time `json:"redeemedAt"`
}
