package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	appcrypto "agentpost/internal/crypto"
	"agentpost/internal/domain"
	"agentpost/internal/metrics"
	"agentpost/internal/store"
	agentpost_errors "agentpost/pkg/errors"
	"agentpost/pkg/logger"
)

// MessageService owns the free write paths on stored messages: mark-read
// and reply. Both require a signature proof from the recipient; neither
// costs a payment.
type MessageService struct {
	store         store.RecordStore
	inbox         *InboxService
	verifier      appcrypto.SignatureVerifier
	maxContentLen int
	log           *logger.Logger
}

func NewMessageService(s store.RecordStore, inbox *InboxService, verifier appcrypto.SignatureVerifier, maxContentLen int, log *logger.Logger) *MessageService {
	return &MessageService{
		store:         s,
		inbox:         inbox,
		verifier:      verifier,
		maxContentLen: maxContentLen,
		log:           log,
	}
}

// MessageWithReply bundles a message and its reply, when one exists.
type MessageWithReply struct {
	Message *domain.Message `json:"message"`
	Reply   *domain.Reply   `json:"reply,omitempty"`
}

// Get fetches one message and its reply, if any.
func (s *MessageService) Get(ctx context.Context, messageID string) (*MessageWithReply, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	reply, err := s.store.GetReply(ctx, messageID)
	if err != nil && !errors.Is(err, agentpost_errors.ErrNotFound) {
		return nil, err
	}
	return &MessageWithReply{Message: msg, Reply: reply}, nil
}

// MarkRead sets the message's read timestamp once and lowers the
// recipient's unread estimate. Marking an already-read message again is an
// idempotent no-op. The signature must bind the recipient's key to this
// exact message id.
func (s *MessageService) MarkRead(ctx context.Context, messageID, signature string) (*domain.Message, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.verifyRecipientProof(ctx, msg.Recipient, appcrypto.ReadProofMessage(messageID), signature); err != nil {
		return nil, err
	}

	if !msg.MarkRead(time.Now()) {
		return msg, nil
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persisting read state: %w", err)
	}
	if err := s.inbox.MarkRead(ctx, msg.Recipient); err != nil {
		// The unread counter is a UX estimate; a failed decrement is
		// logged, not surfaced.
		s.log.Warnf("unread decrement failed for %s: %v", msg.Recipient, err)
	}
	return msg, nil
}

// Reply attaches the single permitted reply to a message. The signature
// covers both the message id and the reply text, so a captured proof cannot
// be replayed with substituted content. A reply implies the message was
// read.
func (s *MessageService) Reply(ctx context.Context, messageID, text, signature string) (*domain.Reply, error) {
	if reason := domain.ValidateContent(text, s.maxContentLen); reason != "" {
		verr := agentpost_errors.NewValidationError()
		verr.Add("text", reason)
		return nil, verr
	}

	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.verifyRecipientProof(ctx, msg.Recipient, appcrypto.ReplyProofMessage(messageID, text), signature); err != nil {
		return nil, err
	}

	reply := &domain.Reply{
		MessageID: messageID,
		Replier:   msg.Recipient,
		Text:      text,
		Signature: signature,
		RepliedAt: time.Now(),
	}
	// The conditional write is the exclusivity gate; checking first would
	// only narrow the race, not close it.
	if err := s.store.SaveReply(ctx, reply); err != nil {
		return nil, err
	}

	wasUnread := !msg.IsRead()
	if msg.MarkReplied(reply.RepliedAt) {
		if err := s.store.SaveMessage(ctx, msg); err != nil {
			s.log.Errorf("reply stored for %s but message flags not persisted: %v", messageID, err)
		}
	}
	if wasUnread {
		if err := s.inbox.MarkRead(ctx, msg.Recipient); err != nil {
			s.log.Warnf("unread decrement failed for %s: %v", msg.Recipient, err)
		}
	}

	metrics.RepliesAccepted.Inc()
	return reply, nil
}

// verifyRecipientProof resolves the recipient's registered key and checks
// the signature against the canonical proof bytes.
func (s *MessageService) verifyRecipientProof(ctx context.Context, recipient string, proof []byte, signature string) error {
	agent, err := s.store.GetAgent(ctx, recipient)
	if errors.Is(err, agentpost_errors.ErrNotFound) {
		return agentpost_errors.ErrRecipientNotFound
	}
	if err != nil {
		return err
	}
	if err := s.verifier.Verify(agent.PublicKey, proof, signature); err != nil {
		return fmt.Errorf("%w: %v", agentpost_errors.ErrInvalidSignature, err)
	}
	return nil
}
