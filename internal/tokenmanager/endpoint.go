package tokenmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultUserAgent identifies this client to the token endpoint.
const DefaultUserAgent = "sigenflux/1.0"

// APIError is an application-level failure: the endpoint answered with a
// well-formed envelope whose code signals an error.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("token endpoint error code %d: %s", e.Code, e.Msg)
}

// EndpointOption configures an Endpoint.
type EndpointOption func(*Endpoint)

// WithHTTPClient sets a custom HTTP client for grant requests.
func WithHTTPClient(client *http.Client) EndpointOption {
	return func(e *Endpoint) {
		e.client = client
	}
}

// WithUserAgent overrides the User-Agent sent on grant requests.
func WithUserAgent(ua string) EndpointOption {
	return func(e *Endpoint) {
		e.userAgent = ua
	}
}

// Endpoint is the password/refresh grant client for the Sigen token endpoint.
// It performs single attempts with no retry; fallback decisions belong to the
// Manager.
type Endpoint struct {
	client     *http.Client
	tokenURL   string
	clientAuth string
	userAgent  string
}

// NewEndpoint creates a grant client for tokenURL. clientAuth is the
// pre-encoded Basic credential for the API client pair.
func NewEndpoint(tokenURL, clientAuth string, opts ...EndpointOption) *Endpoint {
	e := &Endpoint{
		client:     &http.Client{Timeout: 15 * time.Second},
		tokenURL:   tokenURL,
		clientAuth: clientAuth,
		userAgent:  DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Authenticate performs a password grant. The secret must already be the
// transformed value the endpoint expects; it is treated as opaque here.
func (e *Endpoint) Authenticate(ctx context.Context, username, secret string) (*CredentialSet, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", secret)
	form.Set("scope", "server")
	form.Set("grant_type", "password")
	form.Set("userDeviceId", deviceID())

	cs, err := e.grant(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("password grant: %w", err)
	}
	return cs, nil
}

// Refresh performs a refresh grant with the given refresh token.
func (e *Endpoint) Refresh(ctx context.Context, refreshToken string) (*CredentialSet, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("userDeviceId", deviceID())

	cs, err := e.grant(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("refresh grant: %w", err)
	}
	return cs, nil
}

// envelope is the application-level wrapper on every endpoint response.
// code 0 means success.
type envelope struct {
	Code *int            `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type grantData struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresIn    json.RawMessage `json:"expires_in"`
}

func (e *Endpoint) grant(ctx context.Context, form url.Values) (*CredentialSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+e.clientAuth)
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	if env.Code == nil || *env.Code != 0 {
		code := -1
		if env.Code != nil {
			code = *env.Code
		}
		return nil, &APIError{Code: code, Msg: env.Msg}
	}

	var data grantData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("decoding token data: %w", err)
	}
	if data.AccessToken == "" {
		return nil, fmt.Errorf("no access_token in response data")
	}

	return &CredentialSet{
		AccessToken:  data.AccessToken,
		RefreshToken: data.RefreshToken,
		ExpiresIn:    coerceSeconds(data.ExpiresIn),
		// RetrievedAt is stamped by the Manager so expiry math shares its clock.
	}, nil
}

// deviceID is a per-call identifier the issuer uses for request tracing only.
func deviceID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

// coerceSeconds interprets the issuer's expires_in value. Absent or
// non-numeric values become 0, which deliberately marks the credential as
// already non-usable instead of caching a token of unknown lifetime.
func coerceSeconds(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if f, err := n.Float64(); err == nil {
			return int64(f)
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f)
		}
	}
	return 0
}
