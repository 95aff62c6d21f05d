package services

import (
	"context"
	"errors"
	"time"

	"agentpost/internal/domain"
	"agentpost/internal/store"
	agentpost_errors "agentpost/pkg/errors"
)

// AgentService manages the registry that recipient resolution reads.
type AgentService struct {
	store store.RecordStore
}

func NewAgentService(s store.RecordStore) *AgentService {
	return &AgentService{store: s}
}

type RegisterAgentInput struct {
	Address        string
	PaymentAddress string
	PublicKey      string
}

// Register creates an agent record. Addresses are validated up front; an
// existing address cannot be re-registered (that would let an attacker
// swap the public key that signature proofs verify against).
func (s *AgentService) Register(ctx context.Context, input RegisterAgentInput) (*domain.Agent, error) {
	verr := agentpost_errors.NewValidationError()
	if !domain.IsValidAddress(input.Address) {
		verr.Add("address", "not a valid delivery address")
	}
	if !domain.IsValidAddress(input.PaymentAddress) {
		verr.Add("paymentAddress", "not a valid payment address")
	}
	if !domain.IsValidPublicKey(input.PublicKey) {
		verr.Add("publicKey", "not a compressed secp256k1 public key")
	}
	if verr.HasErrors() {
		return nil, verr
	}

	if _, err := s.store.GetAgent(ctx, input.Address); err == nil {
		return nil, agentpost_errors.ErrAgentExists
	} else if !errors.Is(err, agentpost_errors.ErrNotFound) {
		return nil, err
	}

	agent := &domain.Agent{
		Address:        input.Address,
		PaymentAddress: input.PaymentAddress,
		PublicKey:      input.PublicKey,
		RegisteredAt:   time.Now(),
	}
	if err := s.store.SaveAgent(ctx, agent); err != nil {
		return nil, err
	}
	return agent, nil
}

// Get fetches an agent record by delivery address.
func (s *AgentService) Get(ctx context.Context, address string) (*domain.Agent, error) {
	return s.store.GetAgent(ctx, address)
}

// IsRegistered reports whether a delivery address has an agent record.
// Store failures read as unregistered.
func (s *AgentService) IsRegistered(ctx context.Context, address string) bool {
	_, err := s.store.GetAgent(ctx, address)
	return err == nil
}
