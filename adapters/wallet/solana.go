package wallet

import (
	"crypto/ed25519"
	"regexp"

	"github.com/layer-3/walletauth/ports"
	"github.com/mr-tron/base58"
)

var solanaAddressRe = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// SolanaVerifier verifies ed25519 signatures with base58 encoded keys and signatures.
type SolanaVerifier struct{}

// NewSolanaVerifier creates a verifier for Solana wallets
func NewSolanaVerifier() ports.SignatureVerifier {
	return SolanaVerifier{}
}

func (SolanaVerifier) Chain() string { return ChainSolana }

// NormalizeAddress accepts base58 public keys that decode to 32 bytes.
// Solana addresses are case-sensitive and are returned unchanged.
func (SolanaVerifier) NormalizeAddress(address string) (string, bool) {
	if !solanaAddressRe.MatchString(address) {
		return "", false
	}
	pub, err := base58.Decode(address)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return "", false
	}
	return address, true
}

// Verify checks a base58 ed25519 signature over message.
func (SolanaVerifier) Verify(message, signature, address string) bool {
	sig, err := base58.Decode(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	pub, err := base58.Decode(address)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	// ed25519.Verify panics on a wrong key length, checked above.
	return ed25519.Verify(ed25519.PublicKey(pub), []byte(message), sig)
}
