package tokenmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
)

// ErrMissingConfig is returned when a password grant is needed but the
// account username or secret is not configured. No network call is made.
var ErrMissingConfig = errors.New("missing account username or secret")

// Option configures a Manager.
type Option func(*Manager)

// WithNow sets the clock used for expiry decisions and retrieved_at stamps.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager produces a currently-usable access token per call, hiding the
// load/refresh/authenticate/persist mechanics. One Manager per process run;
// calls are synchronous and sequential.
type Manager struct {
	store    Store
	endpoint *Endpoint
	username string
	secret   string
	now      func() time.Time
}

// New creates a Manager. username and secret may be empty as long as every
// run can be served from the stored credential or a refresh grant.
func New(store Store, endpoint *Endpoint, username, secret string, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("missing credential store")
	}
	if endpoint == nil {
		return nil, fmt.Errorf("missing token endpoint")
	}

	m := &Manager{
		store:    store,
		endpoint: endpoint,
		username: username,
		secret:   secret,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// ActiveAccessToken returns a usable access token, renewing and persisting
// the credential set as needed.
//
// Decision order: a stored usable credential is returned as-is with no
// network call; an expired credential with a refresh token is refreshed; a
// failed refresh, or an expired credential without a refresh token, falls
// back to a password grant.
func (m *Manager) ActiveAccessToken(ctx context.Context) (string, error) {
	stored, err := m.store.Load(ctx)
	if err != nil {
		// Unreadable storage degrades to re-authentication rather than
		// failing the whole run.
		slog.WarnContext(ctx, "failed to load stored credential set", "error", err)
		stored = nil
	}

	if stored != nil && stored.UsableAt(m.now()) {
		return stored.AccessToken, nil
	}

	if stored != nil && stored.RefreshToken != "" {
		fresh, err := m.endpoint.Refresh(ctx, stored.RefreshToken)
		if err != nil {
			slog.WarnContext(ctx, "token refresh failed, falling back to password grant", "error", err)
		} else {
			if fresh.RefreshToken == "" {
				// The endpoint does not always rotate refresh tokens; keep
				// the prior one so future refreshes stay possible.
				fresh.RefreshToken = stored.RefreshToken
			}
			return m.adopt(ctx, *fresh)
		}
	}

	fresh, err := m.authenticate(ctx)
	if err != nil {
		return "", err
	}
	return m.adopt(ctx, *fresh)
}

// ForceAuthenticate ignores any stored credential and performs a password
// grant, persisting the result.
func (m *Manager) ForceAuthenticate(ctx context.Context) (string, error) {
	fresh, err := m.authenticate(ctx)
	if err != nil {
		return "", err
	}
	return m.adopt(ctx, *fresh)
}

func (m *Manager) authenticate(ctx context.Context) (*CredentialSet, error) {
	if m.username == "" || m.secret == "" {
		return nil, ErrMissingConfig
	}
	return m.endpoint.Authenticate(ctx, m.username, m.secret)
}

// adopt stamps, persists, and returns a freshly issued credential set. A
// persist failure is logged but does not invalidate the in-memory token for
// the current run.
func (m *Manager) adopt(ctx context.Context, cs CredentialSet) (string, error) {
	cs.RetrievedAt = m.now().Unix()
	if err := m.store.Save(ctx, cs); err != nil {
		slog.WarnContext(ctx, "failed to persist credential set, token valid for this run only", "error", err)
	}
	return cs.AccessToken, nil
}

// TokenSource adapts the Manager to oauth2.TokenSource so API clients can
// attach the credential via oauth2.Transport.
//
// oauth2.TokenSource.Token has no context parameter (legacy interface), so
// the context is captured at construction time.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &managerTokenSource{ctx: ctx, m: m}
}

type managerTokenSource struct {
	ctx context.Context
	m   *Manager
}

// Compile-time check that managerTokenSource implements oauth2.TokenSource.
var _ oauth2.TokenSource = (*managerTokenSource)(nil)

func (s *managerTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.m.ActiveAccessToken(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("getting active access token: %w", err)
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}
