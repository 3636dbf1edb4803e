package tokenmanager

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointAuthenticate(t *testing.T) {
	var captured *http.Request
	var form map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(r.Context())
		require.NoError(t, r.ParseForm())
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"msg":  "success",
			"data": map[string]any{
				"access_token":  "abc123",
				"refresh_token": "refxyz",
				"expires_in":    3600,
			},
		})
	}))
	t.Cleanup(server.Close)

	e := NewEndpoint(server.URL, "c2lnZW46c2lnZW4=")
	cs, err := e.Authenticate(context.Background(), "user@example.com", "opaque-secret")
	require.NoError(t, err)

	assert.Equal(t, "abc123", cs.AccessToken)
	assert.Equal(t, "refxyz", cs.RefreshToken)
	assert.Equal(t, int64(3600), cs.ExpiresIn)
	assert.Zero(t, cs.RetrievedAt, "issuance timestamp is stamped by the manager")

	require.NotNil(t, captured)
	assert.Equal(t, http.MethodPost, captured.Method)
	assert.Equal(t, "application/x-www-form-urlencoded", captured.Header.Get("Content-Type"))
	assert.Equal(t, "Basic c2lnZW46c2lnZW4=", captured.Header.Get("Authorization"))
	assert.Equal(t, DefaultUserAgent, captured.Header.Get("User-Agent"))

	assert.Equal(t, "user@example.com", form["username"])
	assert.Equal(t, "opaque-secret", form["password"])
	assert.Equal(t, "server", form["scope"])
	assert.Equal(t, "password", form["grant_type"])
	assert.Regexp(t, regexp.MustCompile(`^\d{13,}$`), form["userDeviceId"],
		"device id is the current epoch milliseconds")
}

func TestEndpointRefresh(t *testing.T) {
	var form map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{"access_token": "fresh", "expires_in": 1800},
		})
	}))
	t.Cleanup(server.Close)

	e := NewEndpoint(server.URL, "c2lnZW46c2lnZW4=")
	cs, err := e.Refresh(context.Background(), "oldref")
	require.NoError(t, err)

	assert.Equal(t, "fresh", cs.AccessToken)
	assert.Equal(t, "refresh_token", form["grant_type"])
	assert.Equal(t, "oldref", form["refresh_token"])
	assert.NotContains(t, form, "username")
	assert.NotContains(t, form, "password")
	assert.Regexp(t, regexp.MustCompile(`^\d{13,}$`), form["userDeviceId"])
}

func TestEndpointErrors(t *testing.T) {
	t.Run("non-zero envelope code is an APIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"code": 428, "msg": "bad credentials"})
		}))
		t.Cleanup(server.Close)

		e := NewEndpoint(server.URL, "auth")
		_, err := e.Authenticate(context.Background(), "u", "p")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 428, apiErr.Code)
		assert.Equal(t, "bad credentials", apiErr.Msg)
	})

	t.Run("missing envelope code is an APIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"msg": "unrecognized"})
		}))
		t.Cleanup(server.Close)

		e := NewEndpoint(server.URL, "auth")
		_, err := e.Authenticate(context.Background(), "u", "p")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
	})

	t.Run("non-200 status without a valid envelope", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"code": 0, "data": {"access_token": "x"}}`))
		}))
		t.Cleanup(server.Close)

		e := NewEndpoint(server.URL, "auth")
		_, err := e.Authenticate(context.Background(), "u", "p")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 502")
	})

	t.Run("success envelope without access_token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"code": 0, "data": map[string]any{}})
		}))
		t.Cleanup(server.Close)

		e := NewEndpoint(server.URL, "auth")
		_, err := e.Authenticate(context.Background(), "u", "p")
		require.Error(t, err)
	})
}

func TestCoerceSeconds(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int64
	}{
		{"integer", `3600`, 3600},
		{"float", `3600.9`, 3600},
		{"numeric string", `"3600"`, 3600},
		{"float string", `"1799.5"`, 1799},
		{"absent", ``, 0},
		{"null", `null`, 0},
		{"garbage string", `"soon"`, 0},
		{"object", `{"seconds": 3600}`, 0},
		{"boolean", `true`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, coerceSeconds(json.RawMessage(tt.raw)))
		})
	}
}
