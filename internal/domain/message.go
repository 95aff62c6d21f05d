package domain

import "time"

// Message is one unit of paid communication. It is created only after the
// payment that funds it has been verified and redeemed, and is stored as a
// JSON blob under message:{id}.
type Message struct {
	ID string `json:"id"`
	// Sender is the payer's chain address, derived from settlement. It is
	// never taken from the client request.
	Sender string `json:"sender"`
	// Recipient is the delivery address the message is filed under.
	Recipient string `json:"recipient"`
	// PaymentAddress is the address the payment was sent to. It is distinct
	// from the delivery address.
	PaymentAddress string     `json:"paymentAddress"`
	Content        string     `json:"content"`
	PaymentTxid    string     `json:"paymentTxid"`
	PaymentAmount  uint64     `json:"paymentAmount"`
	SentAt         time.Time  `json:"sentAt"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	RepliedAt      *time.Time `json:"repliedAt,omitempty"`
}

// IsRead reports whether the recipient has read the message.
func (m *Message) IsRead() bool {
	return m.ReadAt != nil
}

// MarkRead sets ReadAt once. ReadAt is monotonic: it is never cleared or
// moved once set.
func (m *Message) MarkRead(at time.Time) bool {
	if m.ReadAt != nil {
		return false
	}
	m.ReadAt = &at
	return true
}

// MarkReplied sets RepliedAt once, and sets ReadAt first if it is still
// unset: a reply implies the message was read.
func (m *Message) MarkReplied(at time.Time) bool {
	if m.RepliedAt != nil {
		return false
	}
	if m.ReadAt == nil {
		m.ReadAt = &at
	}
	m.RepliedAt = &at
	return true
}

// Reply is the single free response a recipient may attach to a Message,
// stored under reply:{messageId}.
type Reply struct {
	MessageID string    `json:"messageId"`
	Replier   string    `json:"replier"`
	Text      string    `json:"text"`
	Signature string    `json:"signature"`
	RepliedAt time.Time `json:"repliedAt"`
}
