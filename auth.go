package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/backtrue/fbaudai/storage"
)

// AuthUser is the identity returned by the SSO verification endpoint.
type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Plan  string `json:"plan"`
}

// Subscription plans. Pro unlocks the optional pipeline stages.
const (
	PlanFree = "free"
	PlanPro  = "pro"
)

// TokenVerifier validates a bearer token against the account service.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*AuthUser, error)
}

// ssoVerifier delegates verification to the central SSO service; this
// service holds no credentials of its own.
type ssoVerifier struct {
	http      *resty.Client
	verifyURL string
}

// NewSSOVerifier creates a verifier against the given verification URL.
func NewSSOVerifier(verifyURL string) TokenVerifier {
	return &ssoVerifier{
		http:      resty.New().SetTimeout(10 * time.Second),
		verifyURL: verifyURL,
	}
}

func (v *ssoVerifier) Verify(ctx context.Context, token string) (*AuthUser, error) {
	var user AuthUser

	resp, err := v.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&user).
		Get(v.verifyURL)
	if err != nil {
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("token rejected: %s", resp.Status())
	}
	if user.ID == "" {
		return nil, fmt.Errorf("verification response missing user id")
	}
	if user.Plan == "" {
		user.Plan = PlanFree
	}
	return &user, nil
}

type contextKey string

const userContextKey contextKey = "user"

// userFromContext returns the authenticated user set by requireAuth.
func userFromContext(ctx context.Context) *AuthUser {
	user, _ := ctx.Value(userContextKey).(*AuthUser)
	return user
}

// extractToken reads the bearer token from the Authorization header, falling
// back to the auth_token cookie set by the web frontend.
func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := r.Cookie("auth_token"); err == nil {
		return cookie.Value
	}
	return ""
}

// requireAuth verifies the request's token and mirrors the account locally
// so analyses and usage stats have a user row to hang off.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		user, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			log.Warn().Err(err).Msg("token verification failed")
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		if err := s.store.UpsertUser(&storage.User{ID: user.ID, Email: user.Email, Plan: user.Plan}); err != nil {
			log.Error().Err(err).Str("userId", user.ID).Msg("failed to mirror user")
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
