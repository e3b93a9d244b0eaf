// Package meta talks to the Marketing API: audience interest search and the
// long-lived access token lifecycle behind it.
package meta

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/backtrue/fbaudai/storage"
)

const (
	// DefaultGraphBaseURL is the Graph API endpoint including version.
	DefaultGraphBaseURL = "https://graph.facebook.com/v19.0"

	// tokenStoreName is the service_tokens row the credential lives under.
	tokenStoreName = "meta"

	// refreshBuffer is how close to expiry a token still counts as valid.
	refreshBuffer = 10 * time.Minute

	// autoRefreshInterval is how often the background loop re-checks.
	autoRefreshInterval = 24 * time.Hour
)

// Token type values as persisted.
const (
	TokenTypeSystem    = "system"
	TokenTypeLongLived = "long_lived"
)

// TokenStatus is the health snapshot exposed on the status endpoint. The
// token itself is never included.
type TokenStatus struct {
	Present   bool      `json:"present"`
	TokenType string    `json:"tokenType,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
	Valid     bool      `json:"valid"`
}

// TokenManagerOpts configures a TokenManager. Store and AppID/AppSecret are
// required; InitialToken seeds the manager on first boot.
type TokenManagerOpts struct {
	BaseURL      string
	Store        storage.Store
	AppID        string
	AppSecret    string
	InitialToken string
}

// TokenManager owns the Marketing API credential: it classifies the seed
// token, exchanges short-lived tokens for long-lived ones, persists the
// result encrypted and refreshes it before expiry. All collaborators are
// injected; nothing is read from the environment here.
type TokenManager struct {
	client    *resty.Client
	store     storage.Store
	appID     string
	appSecret string
	seed      string

	mu      sync.RWMutex
	current *storage.ServiceToken
}

// NewTokenManager creates an uninitialized manager. Call Initialize before
// first use.
func NewTokenManager(opts TokenManagerOpts) *TokenManager {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultGraphBaseURL
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second)

	return &TokenManager{
		client:    client,
		store:     opts.Store,
		appID:     opts.AppID,
		appSecret: opts.AppSecret,
		seed:      opts.InitialToken,
	}
}

type debugTokenResponse struct {
	Data struct {
		IsValid   bool   `json:"is_valid"`
		Type      string `json:"type"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"data"`
}

type exchangeTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Initialize resolves the working credential. A seed token from the
// environment wins over a previously persisted one; a short-lived seed is
// exchanged for a long-lived token first. Without any token the manager
// starts empty and Status reports it.
func (m *TokenManager) Initialize(ctx context.Context) error {
	if m.seed != "" {
		return m.adoptSeedToken(ctx)
	}

	stored, err := m.store.GetServiceToken(tokenStoreName)
	if err != nil {
		return fmt.Errorf("failed to load stored token: %w", err)
	}
	if stored == nil {
		log.Warn().Msg("no marketing api token configured")
		return nil
	}

	m.mu.Lock()
	m.current = stored
	m.mu.Unlock()

	log.Info().
		Str("tokenType", stored.TokenType).
		Time("expiresAt", stored.ExpiresAt).
		Msg("loaded persisted marketing api token")
	return nil
}

func (m *TokenManager) adoptSeedToken(ctx context.Context) error {
	info, err := m.debugToken(ctx, m.seed)
	if err != nil {
		return fmt.Errorf("failed to inspect token: %w", err)
	}
	if !info.Data.IsValid {
		return fmt.Errorf("configured marketing api token is invalid")
	}

	token := &storage.ServiceToken{
		Name:  tokenStoreName,
		Token: m.seed,
	}

	switch {
	case info.Data.ExpiresAt == 0:
		// System user tokens never expire and are never exchanged.
		token.TokenType = TokenTypeSystem
		token.ExpiresAt = time.Now().AddDate(10, 0, 0)
	default:
		expiresAt := time.Unix(info.Data.ExpiresAt, 0)
		if time.Until(expiresAt) < 7*24*time.Hour {
			exchanged, err := m.exchangeToken(ctx, m.seed)
			if err != nil {
				return err
			}
			token = exchanged
		} else {
			token.TokenType = TokenTypeLongLived
			token.ExpiresAt = expiresAt
		}
	}

	if err := m.store.SaveServiceToken(token); err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}

	m.mu.Lock()
	m.current = token
	m.mu.Unlock()

	log.Info().
		Str("tokenType", token.TokenType).
		Time("expiresAt", token.ExpiresAt).
		Msg("marketing api token initialized")
	return nil
}

func (m *TokenManager) debugToken(ctx context.Context, token string) (*debugTokenResponse, error) {
	var parsed debugTokenResponse
	var apiErr graphError

	resp, err := m.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"input_token":  token,
			"access_token": m.appID + "|" + m.appSecret,
		}).
		SetResult(&parsed).
		SetError(&apiErr).
		Get("/debug_token")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("debug_token failed: %s", apiErr.Error.Message)
	}
	return &parsed, nil
}

// exchangeToken swaps a short-lived user token for a ~60 day one.
func (m *TokenManager) exchangeToken(ctx context.Context, token string) (*storage.ServiceToken, error) {
	var parsed exchangeTokenResponse
	var apiErr graphError

	resp, err := m.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"grant_type":        "fb_exchange_token",
			"client_id":         m.appID,
			"client_secret":     m.appSecret,
			"fb_exchange_token": token,
		}).
		SetResult(&parsed).
		SetError(&apiErr).
		Get("/oauth/access_token")
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("token exchange failed: %s", apiErr.Error.Message)
	}

	expiresIn := parsed.ExpiresIn
	if expiresIn == 0 {
		expiresIn = int64((60 * 24 * time.Hour).Seconds())
	}

	return &storage.ServiceToken{
		Name:      tokenStoreName,
		Token:     parsed.AccessToken,
		TokenType: TokenTypeLongLived,
		ExpiresAt: time.Now().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}

// GetValidToken returns the current credential, refreshing it when it is
// within the expiry buffer. Errors when no usable token exists.
func (m *TokenManager) GetValidToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	current := m.current
	m.mu.RUnlock()

	if current == nil {
		return "", fmt.Errorf("no marketing api token available")
	}
	if time.Until(current.ExpiresAt) > refreshBuffer {
		return current.Token, nil
	}
	if current.TokenType == TokenTypeSystem {
		return current.Token, nil
	}

	refreshed, err := m.exchangeToken(ctx, current.Token)
	if err != nil {
		return "", fmt.Errorf("token expired and refresh failed: %w", err)
	}
	if err := m.store.SaveServiceToken(refreshed); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	m.mu.Lock()
	m.current = refreshed
	m.mu.Unlock()

	log.Info().Time("expiresAt", refreshed.ExpiresAt).Msg("marketing api token refreshed")
	return refreshed.Token, nil
}

// Status reports credential health without exposing the token.
func (m *TokenManager) Status() TokenStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return TokenStatus{}
	}
	return TokenStatus{
		Present:   true,
		TokenType: m.current.TokenType,
		ExpiresAt: m.current.ExpiresAt,
		Valid:     m.current.TokenType == TokenTypeSystem || time.Until(m.current.ExpiresAt) > refreshBuffer,
	}
}

// RunAutoRefresh keeps the credential fresh in the background until ctx is
// cancelled. Refresh failures are logged and retried on the next tick.
func (m *TokenManager) RunAutoRefresh(ctx context.Context) error {
	ticker := time.NewTicker(autoRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.GetValidToken(ctx); err != nil {
				log.Error().Err(err).Msg("token auto refresh failed")
			}
		}
	}
}
