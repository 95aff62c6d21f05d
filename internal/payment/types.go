package payment

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// X402Version is the protocol version this service speaks.
const X402Version = 1

// FundingKind tags how a transaction's network fee is paid. It is determined
// once, when the payload is parsed, and threaded through the verifier rather
// than re-derived at each call site.
type FundingKind int

const (
	// FundingSelf means the sender pays their own network fee.
	FundingSelf FundingKind = iota
	// FundingSponsored means a third party pays the network fee. Sponsorship
	// changes who is billed for fees, not how the payment is verified.
	FundingSponsored
)

func (k FundingKind) String() string {
	if k == FundingSponsored {
		return "sponsored"
	}
	return "self-funded"
}

// Requirements is the machine-readable "ask first" half of the handshake:
// what a payment must look like for a send to be accepted. It is returned as
// both a 402 body and a compact encoded header.
type Requirements struct {
	X402Version       int       `json:"x402Version"`
	Scheme            string    `json:"scheme"`
	Network           string    `json:"network"`
	Asset             string    `json:"asset"`
	MaxAmountRequired string    `json:"maxAmountRequired"`
	PayTo             string    `json:"payTo"`
	Resource          string    `json:"resource,omitempty"`
	MaxTimeoutSeconds int       `json:"maxTimeoutSeconds"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

// Payload is a live x402 payment payload: a signed but unsettled
// transaction together with what the client claims it pays.
type Payload struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
	Asset       string `json:"asset"`
	Amount      uint64 `json:"amount,string"`
	// Transaction is the hex-encoded signed transaction.
	Transaction string `json:"transaction"`

	// Funding is derived from the transaction's authorization structure at
	// parse time; it is not part of the wire format.
	Funding FundingKind `json:"-"`
}

// Stacks wire constants: the authorization type byte follows the 1-byte
// version and 4-byte chain id in a serialized transaction.
const (
	authTypeOffset    = 5
	authTypeStandard  = 0x04
	authTypeSponsored = 0x05
)

// ParsePayload validates the payload's shape and inspects the transaction's
// authorization structure to tag its funding kind.
func ParsePayload(raw []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("malformed payment payload: %w", err)
	}
	if p.Transaction == "" {
		return nil, errors.New("payment payload missing transaction")
	}
	tx, err := hex.DecodeString(p.Transaction)
	if err != nil {
		return nil, fmt.Errorf("transaction is not valid hex: %w", err)
	}
	if len(tx) <= authTypeOffset {
		return nil, errors.New("transaction too short")
	}
	switch tx[authTypeOffset] {
	case authTypeStandard:
		p.Funding = FundingSelf
	case authTypeSponsored:
		p.Funding = FundingSponsored
	default:
		return nil, fmt.Errorf("unrecognized authorization type 0x%02x", tx[authTypeOffset])
	}
	return &p, nil
}

// DecodePayloadHeader parses a payload attached as a base64 X-Payment header.
func DecodePayloadHeader(header string) (*Payload, error) {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("payment header is not valid base64: %w", err)
	}
	return ParsePayload(raw)
}

// EncodeRequirementsHeader renders requirements as a compact base64 header so
// clients can retry without re-parsing a body.
func EncodeRequirementsHeader(req *Requirements) (string, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Receipt is the path-agnostic result of verified payment: who paid, with
// which transaction, and how much. Both verification paths produce one.
type Receipt struct {
	Payer  string
	Txid   string
	Amount uint64
}

// Proof carries whichever payment evidence the caller attached: a live
// payload for the settlement path, or a confirmed txid for recovery.
type Proof struct {
	Payload *Payload
	Txid    string
}

// Attached reports whether any proof was supplied.
func (p Proof) Attached() bool {
	return p.Payload != nil || p.Txid != ""
}

// Verifier turns a payment proof into a receipt, or a specific policy
// failure. The orchestrator's redemption and storage logic is written once
// against this interface and stays ignorant of which path verified the
// payment.
type Verifier interface {
	Verify(ctx context.Context, proof Proof, payTo string) (*Receipt, error)
}

// FormatAmount renders a base-unit amount for wire fields that carry string
// decimals.
func FormatAmount(amount uint64) string {
	return strconv.FormatUint(amount, 10)
}
