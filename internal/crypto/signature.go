package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

var (
	ErrInvalidPublicKey = errors.New("invalid secp256k1 public key")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrSignerMismatch   = errors.New("signature was not produced by the expected key")
)

// SignatureVerifier checks that a signature proof binds its signer to an
// exact message. The concrete curve and recovery scheme stay behind this
// interface.
type SignatureVerifier interface {
	Verify(publicKeyHex string, message []byte, signatureHex string) error
}

// Secp256k1Verifier verifies 65-byte recoverable ECDSA signatures over the
// SHA-256 digest of the message, Stacks style: the recovered public key must
// match the registered one.
type Secp256k1Verifier struct{}

func (Secp256k1Verifier) Verify(publicKeyHex string, message []byte, signatureHex string) error {
	pubBytes, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return fmt.Errorf("%w: not hex", ErrInvalidPublicKey)
	}
	expected, err := secp256k1.ParsePubKey(pubBytes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return fmt.Errorf("%w: not hex", ErrInvalidSignature)
	}
	if len(sig) != 65 {
		return fmt.Errorf("%w: must be 65 bytes, got %d", ErrInvalidSignature, len(sig))
	}
	// RecoverCompact wants the recovery header first. Accept both raw
	// recovery ids (0-3) and pre-offset headers.
	compact := make([]byte, 65)
	header := sig[64]
	if header < 27 {
		header += 27
	}
	compact[0] = header
	copy(compact[1:], sig[:64])

	digest := sha256.Sum256(message)
	recovered, _, err := secpecdsa.RecoverCompact(compact, digest[:])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !recovered.IsEqual(expected) {
		return ErrSignerMismatch
	}
	return nil
}

// ReadProofMessage is the canonical byte string signed to mark a message
// read.
func ReadProofMessage(messageID string) []byte {
	return []byte("agentpost/read|" + messageID)
}

// ReplyProofMessage is the canonical byte string signed to attach a reply.
// Including the text prevents a captured signature from being replayed with
// substituted content.
func ReplyProofMessage(messageID, text string) []byte {
	return []byte("agentpost/reply|" + messageID + "|" + text)
}

// StreamProofMessage is the canonical byte string signed to open a
// notification stream for an agent.
func StreamProofMessage(address string) []byte {
	return []byte("agentpost/stream|" + address)
}
