package payment

import (
	"context"
	"errors"
	"fmt"

	agentpost_errors "agentpost/pkg/errors"
	"agentpost/pkg/logger"
)

// Policy is what an acceptable payment looks like, shared by both
// verification paths.
type Policy struct {
	Scheme    string
	Network   string
	Asset     string
	MinAmount uint64
}

// Settler is the slice of RelayClient the live verifier needs.
type Settler interface {
	Settle(ctx context.Context, req SettleRequest) (*SettleResponse, error)
}

// LiveVerifier verifies a payment by settling its signed transaction through
// the relay. Policy violations are rejected before the relay is ever
// called: settlement is the expensive step, malformed payloads should not
// reach it.
type LiveVerifier struct {
	policy Policy
	relay  Settler
	log    *logger.Logger
}

func NewLiveVerifier(policy Policy, relay Settler, log *logger.Logger) *LiveVerifier {
	return &LiveVerifier{policy: policy, relay: relay, log: log}
}

func (v *LiveVerifier) Verify(ctx context.Context, proof Proof, payTo string) (*Receipt, error) {
	p := proof.Payload
	if p == nil {
		return nil, agentpost_errors.ErrInvalidInput
	}

	if p.Scheme != v.policy.Scheme || p.Network != v.policy.Network || p.Asset != v.policy.Asset {
		return nil, fmt.Errorf("%w: asset %q on %q", agentpost_errors.ErrWrongAsset, p.Asset, p.Network)
	}
	if p.Amount < v.policy.MinAmount {
		return nil, fmt.Errorf("%w: %d < %d", agentpost_errors.ErrInsufficientAmount, p.Amount, v.policy.MinAmount)
	}

	resp, err := v.relay.Settle(ctx, SettleRequest{
		Transaction: p.Transaction,
		Sponsored:   p.Funding == FundingSponsored,
		Network:     p.Network,
		Asset:       p.Asset,
		PayTo:       payTo,
		Amount:      FormatAmount(p.Amount),
	})
	if err != nil {
		// Includes deadline expiry. The transaction may still confirm, so
		// the caller is pointed at the recovery path instead of retrying
		// the same payload and risking double submission.
		if errors.Is(err, context.DeadlineExceeded) {
			v.log.Warnf("settlement timed out for %s payment, recovery path applies", p.Funding)
		}
		return nil, fmt.Errorf("%w: %v", agentpost_errors.ErrSettlementFailed, err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: %s", agentpost_errors.ErrSettlementFailed, resp.ErrorReason)
	}
	// A successful settlement that names no payer cannot be attributed to a
	// sender; treat it as an internal failure rather than accepting it.
	if resp.Payer == "" {
		return nil, agentpost_errors.ErrNoPayerIdentified
	}
	if resp.Txid == "" {
		return nil, fmt.Errorf("%w: relay returned no transaction id", agentpost_errors.ErrSettlementFailed)
	}

	return &Receipt{
		Payer:  resp.Payer,
		Txid:   resp.Txid,
		Amount: p.Amount,
	}, nil
}
