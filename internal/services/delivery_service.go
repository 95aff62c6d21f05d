package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentpost/internal/domain"
	"agentpost/internal/metrics"
	"agentpost/internal/payment"
	"agentpost/internal/store"
	agentpost_errors "agentpost/pkg/errors"
	"agentpost/pkg/logger"

	"github.com/google/uuid"
)

// Notifier pushes delivery events to connected recipients. Best effort:
// it must never block or fail a delivery.
type Notifier interface {
	NotifyDelivered(msg *domain.Message)
}

// ProofArchiver stores raw settled payment evidence out of band for
// dispute resolution. Best effort, asynchronous.
type ProofArchiver interface {
	ArchiveProof(txid string, proof []byte)
}

// SendRequest is a validated-enough send submission. Proof parsing happens
// at the transport layer; everything else is checked here.
type SendRequest struct {
	Recipient string
	Content   string
	Proof     payment.Proof
	// RawProof is the undecoded payload for archival.
	RawProof []byte
}

// SendOutcome is the terminal state of a Submit call that did not fail.
type SendOutcome struct {
	// Requirements is set when no proof was attached: the caller must pay
	// and retry. Not an error; the protocol's "ask first" handshake.
	Requirements *payment.Requirements
	// Message is the delivered message. On a duplicate redemption it is the
	// message the txid originally paid for.
	Message *domain.Message
	// Duplicate marks that the proof's txid had already been redeemed.
	// Callers distinguish their own retry from someone else's payment by
	// message id, not by error code.
	Duplicate bool
}

// DeliveryService sequences validation, payment, storage and indexing for
// an incoming send. It is the only writer of Messages.
type DeliveryService struct {
	store     store.RecordStore
	live      payment.Verifier
	recovery  payment.Verifier
	inbox     *InboxService
	notifier  Notifier
	archiver  ProofArchiver
	policy    payment.Policy
	log       *logger.Logger

	settleTimeout   time.Duration
	requirementsTTL time.Duration
	redemptionTTL   time.Duration
	maxContentLen   int
}

type DeliveryConfig struct {
	SettleTimeout   time.Duration
	RequirementsTTL time.Duration
	RedemptionTTL   time.Duration
	MaxContentLen   int
}

func NewDeliveryService(
	s store.RecordStore,
	live payment.Verifier,
	recovery payment.Verifier,
	inbox *InboxService,
	notifier Notifier,
	archiver ProofArchiver,
	policy payment.Policy,
	cfg DeliveryConfig,
	log *logger.Logger,
) *DeliveryService {
	return &DeliveryService{
		store:           s,
		live:            live,
		recovery:        recovery,
		inbox:           inbox,
		notifier:        notifier,
		archiver:        archiver,
		policy:          policy,
		log:             log,
		settleTimeout:   cfg.SettleTimeout,
		requirementsTTL: cfg.RequirementsTTL,
		redemptionTTL:   cfg.RedemptionTTL,
		maxContentLen:   cfg.MaxContentLen,
	}
}

// Submit runs the delivery state machine:
//
//	validate -> resolve recipient -> (402 | verify payment) -> redeem txid
//	-> persist message -> update indices
//
// The message/redemption/index writes are not transactional. The redemption
// ledger's conditional write is taken first so a txid can never fund two
// messages; a crash after it leaves an orphan that the index rebuild path
// repairs.
func (s *DeliveryService) Submit(ctx context.Context, req SendRequest) (*SendOutcome, error) {
	if verr := s.validate(req); verr != nil {
		return nil, verr
	}

	recipient, err := s.store.GetAgent(ctx, req.Recipient)
	if errors.Is(err, agentpost_errors.ErrNotFound) {
		// Settling a payment for an unknown recipient would strand the
		// funds; reject before any payment work.
		return nil, agentpost_errors.ErrRecipientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolving recipient: %w", err)
	}

	if !req.Proof.Attached() {
		return &SendOutcome{Requirements: s.requirements(recipient)}, nil
	}

	receipt, err := s.verify(ctx, req.Proof, recipient.PaymentAddress)
	if err != nil {
		metrics.PaymentFailures.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	messageID := uuid.New().String()
	txid := domain.NormalizeTxid(receipt.Txid)
	prior, err := s.store.TryRedeem(ctx, &domain.RedemptionRecord{
		Txid:       txid,
		MessageID:  messageID,
		RedeemedAt: time.Now(),
	}, s.redemptionTTL)
	if err != nil {
		return nil, fmt.Errorf("redeeming txid: %w", err)
	}
	if prior != nil {
		metrics.DuplicateRedemptions.Inc()
		existing, err := s.store.GetMessage(ctx, prior.MessageID)
		if err != nil {
			// The txid is redeemed but its message is gone (crashed
			// delivery). Surface the duplicate; the operator repair path
			// covers the orphan.
			return nil, fmt.Errorf("%w: message %s", agentpost_errors.ErrDuplicatePayment, prior.MessageID)
		}
		return &SendOutcome{Message: existing, Duplicate: true}, nil
	}

	now := time.Now()
	msg := &domain.Message{
		ID:             messageID,
		Sender:         receipt.Payer,
		Recipient:      recipient.Address,
		PaymentAddress: recipient.PaymentAddress,
		Content:        req.Content,
		PaymentTxid:    txid,
		PaymentAmount:  receipt.Amount,
		SentAt:         now,
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		// Fatal for this request: the txid is redeemed but nothing was
		// delivered. Never report success without a stored message.
		return nil, fmt.Errorf("persisting message: %w", err)
	}

	if err := s.inbox.AppendDelivery(ctx, recipient.Address, messageID, now); err != nil {
		s.log.Errorf("inbox index update failed for %s after storing %s: %v", recipient.Address, messageID, err)
		return nil, fmt.Errorf("indexing delivery: %w", err)
	}
	if err := s.inbox.AppendSent(ctx, receipt.Payer, messageID, now); err != nil {
		// The message is delivered and indexed for the recipient; a
		// missing outbox entry only degrades the sender's own listing.
		s.log.Warnf("outbox index update failed for %s: %v", receipt.Payer, err)
	}

	metrics.MessagesDelivered.Inc()
	if s.notifier != nil {
		s.notifier.NotifyDelivered(msg)
	}
	if s.archiver != nil && len(req.RawProof) > 0 {
		s.archiver.ArchiveProof(txid, req.RawProof)
	}

	return &SendOutcome{Message: msg}, nil
}

// validate applies shape and bounds checks before any network or store
// call, reporting every failing field.
func (s *DeliveryService) validate(req SendRequest) error {
	verr := agentpost_errors.NewValidationError()
	if !domain.IsValidAddress(req.Recipient) {
		verr.Add("recipient", "not a valid delivery address")
	}
	if reason := domain.ValidateContent(req.Content, s.maxContentLen); reason != "" {
		verr.Add("content", reason)
	}
	if req.Proof.Txid != "" && !domain.IsValidTxid(req.Proof.Txid) {
		verr.Add("txid", "not a valid transaction id")
	}
	if req.Proof.Payload != nil && req.Proof.Txid != "" {
		verr.Add("payment", "attach either a payment payload or a txid, not both")
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// verify dispatches to whichever verification path matches the proof. The
// live path is bounded by the settlement ceiling; on expiry the caller is
// told to use recovery rather than resubmit.
func (s *DeliveryService) verify(ctx context.Context, proof payment.Proof, payTo string) (*payment.Receipt, error) {
	if proof.Payload != nil {
		settleCtx, cancel := context.WithTimeout(ctx, s.settleTimeout)
		defer cancel()
		start := time.Now()
		receipt, err := s.live.Verify(settleCtx, proof, payTo)
		metrics.SettleDuration.Observe(time.Since(start).Seconds())
		return receipt, err
	}
	receipt, err := s.recovery.Verify(ctx, proof, payTo)
	if err != nil {
		metrics.RecoveryVerifications.WithLabelValues("rejected").Inc()
		return nil, err
	}
	metrics.RecoveryVerifications.WithLabelValues("accepted").Inc()
	return receipt, nil
}

// requirements builds the machine-readable payment ask for one recipient.
// The payment address is dynamic: it is the recipient's, not the service's.
func (s *DeliveryService) requirements(recipient *domain.Agent) *payment.Requirements {
	return &payment.Requirements{
		X402Version:       payment.X402Version,
		Scheme:            s.policy.Scheme,
		Network:           s.policy.Network,
		Asset:             s.policy.Asset,
		MaxAmountRequired: payment.FormatAmount(s.policy.MinAmount),
		PayTo:             recipient.PaymentAddress,
		Resource:          "/v1/messages",
		MaxTimeoutSeconds: int(s.settleTimeout.Seconds()),
		ExpiresAt:         time.Now().Add(s.requirementsTTL),
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, agentpost_errors.ErrWrongAsset):
		return "wrong_asset"
	case errors.Is(err, agentpost_errors.ErrInsufficientAmount):
		return "insufficient_amount"
	case errors.Is(err, agentpost_errors.ErrWrongRecipient):
		return "wrong_recipient"
	case errors.Is(err, agentpost_errors.ErrSettlementFailed):
		return "settlement_failed"
	case errors.Is(err, agentpost_errors.ErrNoPayerIdentified):
		return "no_payer"
	case errors.Is(err, agentpost_errors.ErrTxNotFound):
		return "tx_not_found"
	case errors.Is(err, agentpost_errors.ErrTxNotConfirmed):
		return "tx_not_confirmed"
	case errors.Is(err, agentpost_errors.ErrNotASupportedTransfer):
		return "unsupported_transfer"
	default:
		return "other"
	}
}
