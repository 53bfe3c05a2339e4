// Package wallet implements signature verification for the supported wallet families.
package wallet

import (
	"fmt"

	"github.com/layer-3/walletauth/ports"
)

const (
	ChainSolana   = "solana"
	ChainEthereum = "ethereum"
)

// NewVerifier returns the verifier for chain.
func NewVerifier(chain string) (ports.SignatureVerifier, error) {
	switch chain {
	case ChainSolana:
		return NewSolanaVerifier(), nil
	case ChainEthereum:
		return NewEthereumVerifier(), nil
	default:
		return nil, fmt.Errorf("unsupported wallet chain %q", chain)
	}
}
