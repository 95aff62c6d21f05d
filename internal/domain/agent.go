package domain

import "time"

// Agent is a registered participant, stored under agent:{address}. The
// delivery address is the primary key; the payment address is where message
// payments for this agent must be sent.
type Agent struct {
	Address        string `json:"address"`
	PaymentAddress string `json:"paymentAddress"`
	// PublicKey is the agent's compressed secp256k1 public key, hex encoded.
	// Signature proofs on the free write paths are verified against it.
	PublicKey    string    `json:"publicKey"`
	RegisteredAt time.Time `json:"registeredAt"`
}
