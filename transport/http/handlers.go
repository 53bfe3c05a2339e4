package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/service"
)

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService          *service.AuthService
	returnRotatedRefresh bool
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, returnRotatedRefresh bool) *AuthHandlers {
	return &AuthHandlers{
		authService:          authService,
		returnRotatedRefresh: returnRotatedRefresh,
	}
}

type challengeResponse struct {
	Nonce     string `json:"nonce"`
	Message   string `json:"message"`
	ExpiresIn int64  `json:"expiresIn"`
}

type loginResponse struct {
	Identity        core.Identity `json:"identity"`
	AccessToken     string        `json:"accessToken"`
	RefreshToken    string        `json:"refreshToken"`
	AccessExpiresIn int64         `json:"accessExpiresIn"`
}

type refreshResponse struct {
	AccessToken     string `json:"accessToken"`
	AccessExpiresIn int64  `json:"accessExpiresIn"`
	RefreshToken    string `json:"refreshToken,omitempty"`
}

type sessionView struct {
	ID        string    `json:"id"`
	IPAddress string    `json:"ipAddress,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Current   bool      `json:"current"`
}

// Challenge issues a nonce for the wallet to sign
func (h *AuthHandlers) Challenge(c *gin.Context) {
	ch, err := h.authService.CreateChallenge(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, challengeResponse{
		Nonce:     ch.Nonce,
		Message:   ch.Message,
		ExpiresIn: seconds(ch.ExpiresIn),
	})
}

// Verify handles the signed challenge and opens a session
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithKind(c, "InvalidInput")
		return
	}

	res, err := h.authService.Verify(c.Request.Context(), service.VerifyRequest{
		WalletAddress: req.WalletAddress,
		Signature:     req.Signature,
		Nonce:         req.Nonce,
		Client:        clientInfo(c),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, loginResponse{
		Identity:        res.Identity,
		AccessToken:     res.Tokens.AccessToken,
		RefreshToken:    res.Tokens.RefreshToken,
		AccessExpiresIn: seconds(res.Tokens.AccessExpiresIn),
	})
}

// Refresh handles token rotation
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithKind(c, "InvalidInput")
		return
	}

	var subject string
	if p, ok := principal(c); ok {
		subject = p.Identity.ID
	}

	issued, err := h.authService.Refresh(c.Request.Context(), service.RefreshRequest{
		RefreshToken: req.RefreshToken,
		Subject:      subject,
		Client:       clientInfo(c),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp := refreshResponse{
		AccessToken:     issued.AccessToken,
		AccessExpiresIn: seconds(issued.AccessExpiresIn),
	}
	if h.returnRotatedRefresh {
		resp.RefreshToken = issued.RefreshToken
	}
	c.JSON(http.StatusOK, resp)
}

// Logout revokes the current session, or all of them
func (h *AuthHandlers) Logout(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		abortWithKind(c, kindMissingAuth)
		return
	}

	var req logoutRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abortWithKind(c, "InvalidInput")
		return
	}

	n, err := h.authService.Logout(c.Request.Context(), p.SessionID, p.Identity.ID, req.All)
	if err != nil {
		abortWithError(c, err)
		return
	}

	msg := "Logged out"
	if req.All {
		msg = "Logged out from all sessions"
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": msg,
		"revoked": n,
	})
}

// Me returns the authenticated identity
func (h *AuthHandlers) Me(c *gin.Context) {
	p, err := h.authService.CurrentIdentity(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"identity":  p.Identity,
		"sessionId": p.SessionID,
	})
}

// Sessions lists the active sessions of the authenticated identity
func (h *AuthHandlers) Sessions(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		abortWithKind(c, kindMissingAuth)
		return
	}

	sessions, err := h.authService.ListSessions(c.Request.Context(), p.Identity.ID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, sessionView{
			ID:        s.ID,
			IPAddress: s.IPAddress,
			UserAgent: s.UserAgent,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
			Current:   s.ID == p.SessionID,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": views})
}

// Authorize checks if a user is authorized
func (h *AuthHandlers) Authorize(c *gin.Context) {
	// The auth middleware already validated the token and its session.
	p, ok := principal(c)
	if !ok {
		abortWithKind(c, kindMissingAuth)
		return
	}

	c.Header("X-Identity-ID", p.Identity.ID)
	c.Header("X-Wallet-Address", p.Identity.WalletAddress)
	c.JSON(http.StatusOK, gin.H{
		"authorized":    true,
		"identityId":    p.Identity.ID,
		"walletAddress": p.Identity.WalletAddress,
	})
}

// Health reports liveness.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func principal(c *gin.Context) (core.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return core.Principal{}, false
	}
	p, ok := v.(core.Principal)
	return p, ok
}

func clientInfo(c *gin.Context) core.ClientInfo {
	ua := c.Request.UserAgent()
	if len(ua) > 512 {
		ua = ua[:512]
	}
	return core.ClientInfo{IPAddress: c.ClientIP(), UserAgent: ua}
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
