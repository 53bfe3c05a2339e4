package wallet

import (
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/walletauth/ports"
)

// EthereumVerifier verifies EIP-191 personal_sign signatures.
type EthereumVerifier struct{}

// NewEthereumVerifier creates a verifier for Ethereum wallets
func NewEthereumVerifier() ports.SignatureVerifier {
	return EthereumVerifier{}
}

func (EthereumVerifier) Chain() string { return ChainEthereum }

// NormalizeAddress returns the EIP-55 checksum form of a hex address.
func (EthereumVerifier) NormalizeAddress(address string) (string, bool) {
	if !common.IsHexAddress(address) || len(address) != 2+2*common.AddressLength {
		return "", false
	}
	return common.HexToAddress(address).Hex(), true
}

// Verify recovers the signer of message and compares it with address.
func (v EthereumVerifier) Verify(message, signature, address string) bool {
	expected, ok := v.NormalizeAddress(address)
	if !ok {
		return false
	}

	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return false
	}

	// Wallets emit V as 27/28; recovery expects 0/1.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return false
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return false
	}

	return crypto.PubkeyToAddress(*pub).Hex() == expected
}
