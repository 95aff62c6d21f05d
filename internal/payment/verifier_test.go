package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentpost_errors "agentpost/pkg/errors"
	"agentpost/pkg/logger"
)

var testPolicy = Policy{
	Scheme:    "exact",
	Network:   "stacks-mainnet",
	Asset:     "SP3FBR2AGK5H9QBDH3EEN6DF8EK8JY7RX8QJ5SVTE.sbtc-token",
	MinAmount: 1000,
}

const testPayTo = "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7"

type stubSettler struct {
	resp *SettleResponse
	err  error
	got  SettleRequest
}

func (s *stubSettler) Settle(ctx context.Context, req SettleRequest) (*SettleResponse, error) {
	s.got = req
	return s.resp, s.err
}

func policyPayload(amount uint64) *Payload {
	return &Payload{
		X402Version: X402Version,
		Scheme:      testPolicy.Scheme,
		Network:     testPolicy.Network,
		Asset:       testPolicy.Asset,
		Amount:      amount,
		Transaction: "000000000104deadbeef",
		Funding:     FundingSelf,
	}
}

func TestLiveVerifierAcceptsConformingPayment(t *testing.T) {
	settler := &stubSettler{resp: &SettleResponse{
		Success: true,
		Payer:   "SP1P72Z3704VMT3DMHPP2CB8TGQWGDBHD3RPR9GZS",
		Txid:    "f4b1d2c3a4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a1",
	}}
	v := NewLiveVerifier(testPolicy, settler, logger.New("test"))

	receipt, err := v.Verify(context.Background(), Proof{Payload: policyPayload(1500)}, testPayTo)
	require.NoError(t, err)

	assert.Equal(t, "SP1P72Z3704VMT3DMHPP2CB8TGQWGDBHD3RPR9GZS", receipt.Payer)
	assert.Equal(t, uint64(1500), receipt.Amount)
	assert.Equal(t, testPayTo, settler.got.PayTo)
	assert.False(t, settler.got.Sponsored)
}

func TestLiveVerifierMarksSponsoredSubmissions(t *testing.T) {
	settler := &stubSettler{resp: &SettleResponse{Success: true, Payer: "SP1P72Z3704VMT3DMHPP2CB8TGQWGDBHD3RPR9GZS", Txid: "aa"}}
	v := NewLiveVerifier(testPolicy, settler, logger.New("test"))

	payload := policyPayload(1500)
	payload.Funding = FundingSponsored
	_, err := v.Verify(context.Background(), Proof{Payload: payload}, testPayTo)
	require.NoError(t, err)
	assert.True(t, settler.got.Sponsored)
}

func TestLiveVerifierRejectsBeforeSettling(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Payload)
		wantErr error
	}{
		{"wrong asset", func(p *Payload) { p.Asset = "SP000.other-token" }, agentpost_errors.ErrWrongAsset},
		{"wrong network", func(p *Payload) { p.Network = "stacks-testnet" }, agentpost_errors.ErrWrongAsset},
		{"wrong scheme", func(p *Payload) { p.Scheme = "upto" }, agentpost_errors.ErrWrongAsset},
		{"below minimum", func(p *Payload) { p.Amount = 999 }, agentpost_errors.ErrInsufficientAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settler := &stubSettler{}
			v := NewLiveVerifier(testPolicy, settler, logger.New("test"))

			payload := policyPayload(1500)
			tt.mutate(payload)
			_, err := v.Verify(context.Background(), Proof{Payload: payload}, testPayTo)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, settler.got.Transaction, "relay must not be called")
		})
	}
}

func TestLiveVerifierClassifiesRelayOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		settler *stubSettler
		wantErr error
	}{
		{"transport error", &stubSettler{err: errors.New("connection refused")}, agentpost_errors.ErrSettlementFailed},
		{"rejected verdict", &stubSettler{resp: &SettleResponse{Success: false, ErrorReason: "bad signature"}}, agentpost_errors.ErrSettlementFailed},
		{"no payer", &stubSettler{resp: &SettleResponse{Success: true, Txid: "aa"}}, agentpost_errors.ErrNoPayerIdentified},
		{"no txid", &stubSettler{resp: &SettleResponse{Success: true, Payer: testPayTo}}, agentpost_errors.ErrSettlementFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewLiveVerifier(testPolicy, tt.settler, logger.New("test"))
			_, err := v.Verify(context.Background(), Proof{Payload: policyPayload(1500)}, testPayTo)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLiveVerifierRequiresPayload(t *testing.T) {
	v := NewLiveVerifier(testPolicy, &stubSettler{}, logger.New("test"))
	_, err := v.Verify(context.Background(), Proof{Txid: "aa"}, testPayTo)
	assert.ErrorIs(t, err, agentpost_errors.ErrInvalidInput)
}
