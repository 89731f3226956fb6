// Package identity is the client for the hosted identity provider's auth API.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/archoncouncil/api/internal/metrics"
	"github.com/archoncouncil/api/pkg/domain/identity"
	"github.com/archoncouncil/api/pkg/jwt"
	"github.com/archoncouncil/api/pkg/logger"
)

const (
	upstreamName   = "identity"
	defaultPerPage = 200
	maxErrorBody   = 4 << 10
)

// Config holds identity provider client configuration.
type Config struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string
	// JWTSecret enables local signature checks before the remote lookup.
	JWTSecret string
	Timeout   time.Duration
}

// Client talks to the provider's /auth/v1 endpoints.
type Client struct {
	baseURL        string
	anonKey        string
	serviceRoleKey string
	jwtSecret      string
	httpClient     *http.Client
	logger         *logger.Logger
}

// NewClient creates a new identity provider client.
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	baseURL := strings.TrimRight(cfg.URL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: URL is required", identity.ErrNotConfigured)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid identity provider URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Client{
		baseURL:        baseURL,
		anonKey:        cfg.AnonKey,
		serviceRoleKey: cfg.ServiceRoleKey,
		jwtSecret:      cfg.JWTSecret,
		httpClient:     &http.Client{Timeout: timeout},
		logger:         log.With("component", "identity"),
	}, nil
}

// GetUser resolves the principal behind an access token.
func (c *Client) GetUser(ctx context.Context, token string) (*identity.User, error) {
	if c.jwtSecret != "" {
		if _, err := jwt.ValidateToken(token, c.jwtSecret); err != nil {
			metrics.UpstreamRequestsTotal.WithLabelValues(upstreamName, "rejected_locally").Inc()
			return nil, fmt.Errorf("%w: %w", identity.ErrInvalidToken, err)
		}
	}

	apiKey := c.anonKey
	if apiKey == "" {
		apiKey = c.serviceRoleKey
	}
	if apiKey == "" {
		return nil, identity.ErrNotConfigured
	}

	var user identity.User
	status, err := c.do(ctx, http.MethodGet, "/auth/v1/user", apiKey, token, nil, &user)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, identity.ErrInvalidToken
	case err != nil:
		return nil, err
	case user.ID == "":
		return nil, identity.ErrInvalidToken
	}
	return &user, nil
}

// SignInWithPassword exchanges credentials for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	if c.serviceRoleKey == "" {
		return nil, identity.ErrNotConfigured
	}

	body := passwordGrantRequest{Email: email, Password: password}
	var resp tokenResponse
	status, err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", c.serviceRoleKey, c.serviceRoleKey, body, &resp)
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusUnprocessableEntity:
		return nil, identity.ErrInvalidCredentials
	case err != nil:
		return nil, err
	case resp.AccessToken == "":
		return nil, identity.ErrNoSession
	}

	expiresAt := resp.ExpiresAt
	if expiresAt == 0 && resp.ExpiresIn > 0 {
		expiresAt = time.Now().Unix() + resp.ExpiresIn
	}

	return &identity.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiresAt,
		User:         resp.User,
	}, nil
}

// ListUsers returns every user through the admin API.
func (c *Client) ListUsers(ctx context.Context) ([]identity.User, error) {
	if c.serviceRoleKey == "" {
		return nil, identity.ErrNotConfigured
	}

	var all []identity.User
	for page := 1; ; page++ {
		path := "/auth/v1/admin/users?page=" + strconv.Itoa(page) + "&per_page=" + strconv.Itoa(defaultPerPage)
		var resp listUsersResponse
		if _, err := c.do(ctx, http.MethodGet, path, c.serviceRoleKey, c.serviceRoleKey, nil, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Users...)
		if len(resp.Users) < defaultPerPage {
			return all, nil
		}
	}
}

// FindUserByEmail looks a user up by address, ignoring case.
func (c *Client) FindUserByEmail(ctx context.Context, email string) (*identity.User, error) {
	users, err := c.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if identity.SameEmail(users[i].Email, email) {
			return &users[i], nil
		}
	}
	return nil, identity.ErrUserNotFound
}

// CreateUser creates a confirmed user through the admin API.
func (c *Client) CreateUser(ctx context.Context, email, password string) (*identity.User, error) {
	if c.serviceRoleKey == "" {
		return nil, identity.ErrNotConfigured
	}

	body := createUserRequest{
		Email:        identity.NormalizeEmail(email),
		Password:     password,
		EmailConfirm: true,
	}
	var user identity.User
	if _, err := c.do(ctx, http.MethodPost, "/auth/v1/admin/users", c.serviceRoleKey, c.serviceRoleKey, body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// do sends one request and decodes a 2xx body into out. The status is
// returned alongside any error so callers can map provider rejections.
func (c *Client) do(ctx context.Context, method, path, apiKey, bearer string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.UpstreamDuration.WithLabelValues(upstreamName).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(upstreamName, "error").Inc()
		return 0, fmt.Errorf("identity request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.UpstreamRequestsTotal.WithLabelValues(upstreamName, "status_"+strconv.Itoa(resp.StatusCode)).Inc()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := parseAPIError(errBody)
		c.logger.Debug("identity provider rejected request",
			"method", method,
			"path", strings.SplitN(path, "?", 2)[0],
			"status", resp.StatusCode,
			"error", apiErr,
		)
		return resp.StatusCode, fmt.Errorf("identity provider error (status %d): %s", resp.StatusCode, apiErr)
	}

	metrics.UpstreamRequestsTotal.WithLabelValues(upstreamName, "ok").Inc()
	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode identity response: %w", err)
	}
	return resp.StatusCode, nil
}

// parseAPIError extracts the most specific message the provider returned.
func parseAPIError(body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err != nil {
		return "unexpected response"
	}
	for _, s := range []string{e.Msg, e.ErrorDescription, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return "unknown error"
}

type passwordGrantRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	User         identity.User `json:"user"`
}

type createUserRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	EmailConfirm bool   `json:"email_confirm"`
}

type listUsersResponse struct {
	Users []identity.User `json:"users"`
}

type apiError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}
