package ports

// SignatureVerifier checks a detached wallet signature over a challenge message.
type SignatureVerifier interface {
	// Chain names the wallet family ("solana", "ethereum").
	Chain() string

	// NormalizeAddress validates the textual address and returns its canonical form.
	NormalizeAddress(address string) (string, bool)

	// Verify never panics and returns false on any decode or verification failure.
	Verify(message, signature, address string) bool
}
