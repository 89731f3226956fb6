package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archoncouncil/api/pkg/domain/identity"
	"github.com/archoncouncil/api/pkg/jwt"
	"github.com/archoncouncil/api/pkg/logger"
)

const (
	anonKey    = "anon-key"
	serviceKey = "service-key"
	jwtSecret  = "super-secret-jwt-token-with-at-least-32-characters"
)

func newTestClient(t *testing.T, url string, mutate func(*Config)) *Client {
	t.Helper()
	cfg := Config{URL: url + "/", AnonKey: anonKey, ServiceRoleKey: serviceKey}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewClient(cfg, logger.NewNop())
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	assert.ErrorIs(t, err, identity.ErrNotConfigured)
}

func TestClient_GetUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, anonKey, r.Header.Get("apikey"))
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"msg":"invalid JWT"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"user-1","email":"owner@example.com","aud":"authenticated"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)

	user, err := c.GetUser(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, "owner@example.com", user.Email)

	_, err = c.GetUser(context.Background(), "bad")
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestClient_GetUser_LocalSignatureCheck(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"id":"user-1","email":"owner@example.com"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, func(cfg *Config) { cfg.JWTSecret = jwtSecret })

	_, err := c.GetUser(context.Background(), "forged.token.value")
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
	assert.Zero(t, calls.Load())

	token, err := jwt.GenerateTokenWithExpiry("user-1", "owner@example.com", jwtSecret, time.Now().Add(time.Hour))
	require.NoError(t, err)
	user, err := c.GetUser(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_GetUser_ServerErrorIsNotInvalidToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, nil).GetUser(context.Background(), "t")
	require.Error(t, err)
	assert.NotErrorIs(t, err, identity.ErrInvalidToken)
}

func TestClient_SignInWithPassword(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, serviceKey, r.Header.Get("apikey"))

		var body passwordGrantRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.Password != "right" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
			return
		}
		_, _ = fmt.Fprintf(w, `{"access_token":"at","refresh_token":"rt","expires_in":3600,"user":{"id":"user-1","email":%q}}`, body.Email)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)

	before := time.Now().Unix()
	session, err := c.SignInWithPassword(context.Background(), "owner@example.com", "right")
	require.NoError(t, err)
	assert.Equal(t, "at", session.AccessToken)
	assert.Equal(t, "rt", session.RefreshToken)
	assert.GreaterOrEqual(t, session.ExpiresAt, before+3600)
	assert.Equal(t, "owner@example.com", session.User.Email)

	_, err = c.SignInWithPassword(context.Background(), "owner@example.com", "wrong")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
}

func TestClient_AdminRequiresServiceKey(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1", func(cfg *Config) { cfg.ServiceRoleKey = "" })

	_, err := c.SignInWithPassword(context.Background(), "a", "b")
	assert.ErrorIs(t, err, identity.ErrNotConfigured)
	_, err = c.ListUsers(context.Background())
	assert.ErrorIs(t, err, identity.ErrNotConfigured)
	_, err = c.CreateUser(context.Background(), "a", "b")
	assert.ErrorIs(t, err, identity.ErrNotConfigured)
}

func TestClient_FindAndCreateUser(t *testing.T) {
	var created createUserRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+serviceKey, r.Header.Get("Authorization"))
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "1", r.URL.Query().Get("page"))
			_, _ = w.Write([]byte(`{"users":[{"id":"u1","email":"someone@example.com"},{"id":"u2","email":"Owner@Example.com"}]}`))
		case http.MethodPost:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			_, _ = w.Write([]byte(`{"id":"u3","email":"new@example.com"}`))
		}
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)

	user, err := c.FindUserByEmail(context.Background(), " owner@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u2", user.ID)

	_, err = c.FindUserByEmail(context.Background(), "missing@example.com")
	assert.ErrorIs(t, err, identity.ErrUserNotFound)

	user, err = c.CreateUser(context.Background(), " New@Example.com ", "pw")
	require.NoError(t, err)
	assert.Equal(t, "u3", user.ID)
	assert.Equal(t, "new@example.com", created.Email)
	assert.True(t, created.EmailConfirm)
}

func TestParseAPIError(t *testing.T) {
	assert.Equal(t, "A", parseAPIError([]byte(`{"msg":"A","error":"B"}`)))
	assert.Equal(t, "Invalid", parseAPIError([]byte(`{"error":"invalid_grant","error_description":"Invalid"}`)))
	assert.Equal(t, "unexpected response", parseAPIError([]byte(`<html>`)))
	assert.Equal(t, "unknown error", parseAPIError([]byte(`{}`)))
}
