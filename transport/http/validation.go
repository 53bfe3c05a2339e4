package http

import (
	"regexp"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	// walletAddressRe accepts base58 Solana keys and 0x-prefixed Ethereum
	// addresses. The configured chain performs the exact check.
	walletAddressRe = regexp.MustCompile(`^([1-9A-HJ-NP-Za-km-z]{32,44}|0x[0-9a-fA-F]{40})$`)

	// nonceRe accepts printable ASCII without spaces.
	nonceRe = regexp.MustCompile(`^[\x21-\x7E]+$`)

	registerOnce sync.Once
)

type verifyRequest struct {
	WalletAddress string `json:"walletAddress" binding:"required,walletaddr"`
	Signature     string `json:"signature" binding:"required,min=64,max=132"`
	Nonce         string `json:"nonce" binding:"required,min=8,max=64,nonce"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required,max=4096"`
}

type logoutRequest struct {
	All bool `json:"all"`
}

// registerValidations installs the custom binding tags on gin's validator.
func registerValidations() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("walletaddr", func(fl validator.FieldLevel) bool {
			return walletAddressRe.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("nonce", func(fl validator.FieldLevel) bool {
			return nonceRe.MatchString(fl.Field().String())
		})
	})
}
