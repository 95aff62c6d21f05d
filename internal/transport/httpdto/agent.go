package httpdto

import (
	"time"

	"agentpost/internal/domain"
)

// RegisterAgentRequest is used for POST /v1/agents.
type RegisterAgentRequest struct {
	Address        string `json:"address" binding:"required"`
	PaymentAddress string `json:"paymentAddress" binding:"required"`
	PublicKey      string `json:"publicKey" binding:"required"`
}

type AgentResponse struct {
	Address        string    `json:"address"`
	PaymentAddress string    `json:"paymentAddress"`
	PublicKey      string    `json:"publicKey"`
	RegisteredAt   time.Time `json:"registeredAt"`
}

func NewAgentResponse(a *domain.Agent) AgentResponse {
	return AgentResponse{
		Address:        a.Address,
		PaymentAddress: a.PaymentAddress,
		PublicKey:      a.PublicKey,
		RegisteredAt:   a.RegisteredAt,
	}
}
