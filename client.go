// Package walletauth is the Go client for the walletauth HTTP API.
package walletauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client represents the public interface for interacting with the session service
type Client interface {
	// Challenge returns a nonce for the wallet to sign
	Challenge(ctx context.Context) (Challenge, error)

	// Verify checks the wallet signature over the challenge and opens a session
	Verify(ctx context.Context, walletAddress, signature, nonce string) (Login, error)

	// Refresh rotates the refresh token and returns new tokens
	Refresh(ctx context.Context, accessToken, refreshToken string) (Tokens, error)

	// Logout revokes the session of accessToken, or every session when all is set
	Logout(ctx context.Context, accessToken string, all bool) (int, error)

	// Me resolves accessToken to its identity and session
	Me(ctx context.Context, accessToken string) (Principal, error)

	// Sessions lists the active sessions of the caller
	Sessions(ctx context.Context, accessToken string) ([]Session, error)
}

// Challenge is a nonce to sign with the wallet key.
type Challenge struct {
	Nonce     string `json:"nonce"`
	Message   string `json:"message"`
	ExpiresIn int64  `json:"expiresIn"`
}

// Identity is the account bound to a wallet.
type Identity struct {
	ID            string    `json:"id"`
	WalletAddress string    `json:"walletAddress"`
	ReferralCode  string    `json:"referralCode"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Tokens is a token pair. RefreshToken is empty when the server withholds
// rotated refresh tokens.
type Tokens struct {
	AccessToken     string `json:"accessToken"`
	RefreshToken    string `json:"refreshToken,omitempty"`
	AccessExpiresIn int64  `json:"accessExpiresIn"`
}

// Login is the result of Verify.
type Login struct {
	Identity Identity `json:"identity"`
	Tokens
}

// Principal is the identity behind an access token.
type Principal struct {
	Identity  Identity `json:"identity"`
	SessionID string   `json:"sessionId"`
}

// Session is one active session.
type Session struct {
	ID        string    `json:"id"`
	IPAddress string    `json:"ipAddress,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Current   bool      `json:"current"`
}

// HTTPClient implements Client over HTTP.
type HTTPClient struct {
	baseURL   string
	client    *http.Client
	userAgent string
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.client = c }
}

// WithUserAgent sets the User-Agent recorded on sessions.
func WithUserAgent(ua string) Option {
	return func(h *HTTPClient) { h.userAgent = ua }
}

// NewHTTPClient creates a client for the server at baseURL. A missing
// scheme defaults to http.
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	c := &HTTPClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: "walletauth-go/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Client = (*HTTPClient)(nil)

// BaseURL returns the normalized server address.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

func (c *HTTPClient) Challenge(ctx context.Context) (Challenge, error) {
	var out Challenge
	err := c.do(ctx, http.MethodPost, "/auth/challenge", "", nil, &out)
	return out, err
}

func (c *HTTPClient) Verify(ctx context.Context, walletAddress, signature, nonce string) (Login, error) {
	var out Login
	err := c.do(ctx, http.MethodPost, "/auth/verify", "", map[string]string{
		"walletAddress": walletAddress,
		"signature":     signature,
		"nonce":         nonce,
	}, &out)
	return out, err
}

func (c *HTTPClient) Refresh(ctx context.Context, accessToken, refreshToken string) (Tokens, error) {
	var out Tokens
	err := c.do(ctx, http.MethodPost, "/auth/refresh", accessToken, map[string]string{
		"refreshToken": refreshToken,
	}, &out)
	return out, err
}

func (c *HTTPClient) Logout(ctx context.Context, accessToken string, all bool) (int, error) {
	var out struct {
		Revoked int `json:"revoked"`
	}
	err := c.do(ctx, http.MethodPost, "/auth/logout", accessToken, map[string]bool{"all": all}, &out)
	return out.Revoked, err
}

func (c *HTTPClient) Me(ctx context.Context, accessToken string) (Principal, error) {
	var out Principal
	err := c.do(ctx, http.MethodGet, "/auth/me", accessToken, nil, &out)
	return out, err
}

func (c *HTTPClient) Sessions(ctx context.Context, accessToken string) ([]Session, error) {
	var out struct {
		Sessions []Session `json:"sessions"`
	}
	err := c.do(ctx, http.MethodGet, "/auth/sessions", accessToken, nil, &out)
	return out.Sessions, err
}

func (c *HTTPClient) do(ctx context.Context, method, path, bearer string, body, target any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	return parseResponse(resp, target)
}

func parseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		var body struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
			apiErr.Kind = body.Error
			apiErr.Message = body.Message
		}
		return apiErr
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}
