package domain

import (
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// c32 is the Crockford base32 alphabet used by Stacks addresses.
const c32 = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// IsValidAddress reports whether s looks like a Stacks principal: a version
// prefix (SP/SM mainnet, ST/SN testnet) followed by 28-41 c32 characters.
// Full checksum verification is the signature layer's concern.
func IsValidAddress(s string) bool {
	if len(s) < 30 || len(s) > 43 {
		return false
	}
	prefix := s[:2]
	if prefix != "SP" && prefix != "SM" && prefix != "ST" && prefix != "SN" {
		return false
	}
	for _, r := range s[2:] {
		if !strings.ContainsRune(c32, r) {
			return false
		}
	}
	return true
}

// IsValidTxid reports whether s is a 32-byte transaction id in hex, with or
// without a 0x prefix.
func IsValidTxid(s string) bool {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// NormalizeTxid strips the 0x prefix and lowercases, so that one transaction
// has exactly one redemption key.
func NormalizeTxid(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, "0x"))
}

// IsValidPublicKey reports whether s is a hex-encoded compressed secp256k1
// public key (33 bytes, 02/03 prefix).
func IsValidPublicKey(s string) bool {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 33 {
		return false
	}
	return raw[0] == 0x02 || raw[0] == 0x03
}

// ValidateContent checks message or reply text against the configured bound.
// Returns an empty string when the content is acceptable, otherwise the
// reason.
func ValidateContent(content string, maxLen int) string {
	if content == "" {
		return "must not be empty"
	}
	if !utf8.ValidString(content) {
		return "must be valid UTF-8"
	}
	if len(content) > maxLen {
		return "exceeds maximum length"
	}
	return ""
}
