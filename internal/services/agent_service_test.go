package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentpost/internal/store"
	agentpost_errors "agentpost/pkg/errors"
)

func validRegisterInput() RegisterAgentInput {
	return RegisterAgentInput{
		Address:        testRecipient,
		PaymentAddress: testPayAddress,
		PublicKey:      "02" + strings.Repeat("ab", 32),
	}
}

func TestRegisterAgent(t *testing.T) {
	svc := NewAgentService(store.NewMemoryStore())
	ctx := context.Background()

	agent, err := svc.Register(ctx, validRegisterInput())
	require.NoError(t, err)
	assert.Equal(t, testRecipient, agent.Address)
	assert.False(t, agent.RegisteredAt.IsZero())

	got, err := svc.Get(ctx, testRecipient)
	require.NoError(t, err)
	assert.Equal(t, agent.PublicKey, got.PublicKey)
	assert.True(t, svc.IsRegistered(ctx, testRecipient))
	assert.False(t, svc.IsRegistered(ctx, testPayAddress))
}

func TestRegisterAgentRejectsReRegistration(t *testing.T) {
	svc := NewAgentService(store.NewMemoryStore())
	ctx := context.Background()

	first, err := svc.Register(ctx, validRegisterInput())
	require.NoError(t, err)

	// Re-registering with a different key must not replace the original.
	input := validRegisterInput()
	input.PublicKey = "03" + strings.Repeat("cd", 32)
	_, err = svc.Register(ctx, input)
	assert.ErrorIs(t, err, agentpost_errors.ErrAgentExists)

	got, err := svc.Get(ctx, testRecipient)
	require.NoError(t, err)
	assert.Equal(t, first.PublicKey, got.PublicKey)
}

func TestRegisterAgentValidation(t *testing.T) {
	svc := NewAgentService(store.NewMemoryStore())
	ctx := context.Background()

	tests := []struct {
		name      string
		mutate    func(*RegisterAgentInput)
		wantField string
	}{
		{"bad address", func(in *RegisterAgentInput) { in.Address = "nope" }, "address"},
		{"bad payment address", func(in *RegisterAgentInput) { in.PaymentAddress = "nope" }, "paymentAddress"},
		{"bad public key", func(in *RegisterAgentInput) { in.PublicKey = "04abcd" }, "publicKey"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validRegisterInput()
			tt.mutate(&input)
			_, err := svc.Register(ctx, input)
			var verr *agentpost_errors.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.wantField)
		})
	}
}
