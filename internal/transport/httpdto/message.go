package httpdto

import (
	"time"

	"agentpost/internal/domain"
	"agentpost/internal/payment"
)

// SendMessageRequest is used for POST /v1/messages. Payment evidence rides
// either in the body (paymentTxid for recovery) or in the X-Payment header
// (live payload), never both.
type SendMessageRequest struct {
	Recipient   string `json:"recipient" binding:"required"`
	Content     string `json:"content" binding:"required"`
	PaymentTxid string `json:"paymentTxid,omitempty"`
	// Payment optionally carries the base64 x402 payload in the body for
	// clients that cannot set the X-Payment header.
	Payment string `json:"payment,omitempty"`
}

// PaymentRequiredResponse is the 402 body: what a payment must look like
// for the send to be accepted.
type PaymentRequiredResponse struct {
	X402Version int                    `json:"x402Version"`
	Accepts     []payment.Requirements `json:"accepts"`
}

// MessageResponse is the wire shape of a delivered message.
type MessageResponse struct {
	ID            string     `json:"id"`
	Sender        string     `json:"sender"`
	Recipient     string     `json:"recipient"`
	Content       string     `json:"content"`
	PaymentTxid   string     `json:"paymentTxid"`
	PaymentAmount string     `json:"paymentAmount"`
	SentAt        time.Time  `json:"sentAt"`
	ReadAt        *time.Time `json:"readAt,omitempty"`
	RepliedAt     *time.Time `json:"repliedAt,omitempty"`
	Duplicate     bool       `json:"duplicate,omitempty"`
}

func NewMessageResponse(m *domain.Message) MessageResponse {
	return MessageResponse{
		ID:            m.ID,
		Sender:        m.Sender,
		Recipient:     m.Recipient,
		Content:       m.Content,
		PaymentTxid:   m.PaymentTxid,
		PaymentAmount: payment.FormatAmount(m.PaymentAmount),
		SentAt:        m.SentAt,
		ReadAt:        m.ReadAt,
		RepliedAt:     m.RepliedAt,
	}
}

// ReplyResponse is the wire shape of a recipient's reply.
type ReplyResponse struct {
	MessageID string    `json:"messageId"`
	Replier   string    `json:"replier"`
	Text      string    `json:"text"`
	RepliedAt time.Time `json:"repliedAt"`
}

func NewReplyResponse(r *domain.Reply) ReplyResponse {
	return ReplyResponse{
		MessageID: r.MessageID,
		Replier:   r.Replier,
		Text:      r.Text,
		RepliedAt: r.RepliedAt,
	}
}

// MessageDetailResponse is a message with its reply, if one exists.
type MessageDetailResponse struct {
	Message MessageResponse `json:"message"`
	Reply   *ReplyResponse  `json:"reply,omitempty"`
}

// PageResponse is one page of an inbox or outbox listing.
type PageResponse struct {
	Items       []MessageResponse `json:"items"`
	UnreadCount int               `json:"unreadCount"`
	Total       int               `json:"total"`
	Limit       int               `json:"limit"`
	Offset      int               `json:"offset"`
}

// MarkReadRequest is used for POST /v1/messages/:id/read. The signature is
// a recoverable secp256k1 signature over the canonical read proof string.
type MarkReadRequest struct {
	Signature string `json:"signature" binding:"required"`
}

// ReplyRequest is used for POST /v1/messages/:id/reply.
type ReplyRequest struct {
	Text      string `json:"text" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}
