package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/archoncouncil/api/internal/metrics"
	"github.com/archoncouncil/api/pkg/logger"
)

const (
	defaultGatewayURL   = "https://ai.gateway.lovable.dev/v1"
	defaultGatewayModel = "openai/gpt-5.2"
	upstreamName        = "llm"

	// maxErrorBody caps how much of an upstream error body is read for logging.
	maxErrorBody = 4 << 10
)

// GatewayProvider implements Provider for an OpenAI-compatible chat completions API.
type GatewayProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	maxRetries int
	limiter    *rate.Limiter
	backoff    func(attempt int) time.Duration
	logger     *logger.Logger
}

// GatewayConfig holds configuration for the gateway provider.
type GatewayConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	// MaxRetries is the number of extra attempts after a transport error or 5xx.
	MaxRetries int
	// RequestsPerMinute throttles outbound calls. Zero disables throttling.
	RequestsPerMinute int
}

// NewGatewayProvider creates a new gateway provider.
func NewGatewayProvider(cfg GatewayConfig, log *logger.Logger) (*GatewayProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrProviderNotConfigured)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultGatewayURL
	}

	model := cfg.Model
	if model == "" {
		model = defaultGatewayModel
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute)
	}

	if log == nil {
		log = logger.NewNop()
	}

	return &GatewayProvider{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: max(cfg.MaxRetries, 0),
		limiter:    limiter,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * time.Second
		},
		logger: log.With("component", "llm", "provider", "gateway"),
	}, nil
}

// Name returns the provider name.
func (p *GatewayProvider) Name() string {
	return "gateway"
}

// Model returns the model being used.
func (p *GatewayProvider) Model() string {
	return p.model
}

// Validate checks if the configuration is valid.
func (p *GatewayProvider) Validate() error {
	if p.apiKey == "" {
		return fmt.Errorf("%w: API key is required", ErrProviderNotConfigured)
	}
	return nil
}

// Complete sends a prompt to the gateway and returns the completion.
func (p *GatewayProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.UserPrompt})

	body := chatRequest{
		Model:     p.model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	if req.ToolChoice != "" {
		body.ToolChoice = &chatToolChoice{Type: "function", Function: chatToolChoiceFunction{Name: req.ToolChoice}}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContextCanceled, err)
	}

	start := time.Now()
	resp, err := p.doWithRetry(ctx, jsonBody)
	metrics.UpstreamDuration.WithLabelValues(upstreamName).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(upstreamName, outcome(err)).Inc()
		return nil, err
	}

	out, err := p.parseResponse(resp)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(upstreamName, "invalid").Inc()
		return nil, err
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(upstreamName, "ok").Inc()
	return out, nil
}

func (p *GatewayProvider) doWithRetry(ctx context.Context, jsonBody []byte) (*chatResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrContextCanceled, ctx.Err())
			case <-time.After(p.backoff(attempt)):
			}
		}

		resp, retryable, err := p.do(ctx, jsonBody)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		p.logger.Warn("gateway request failed, retrying", "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

// do performs one round trip. The bool reports whether the failure is worth retrying.
func (p *GatewayProvider) do(ctx context.Context, jsonBody []byte) (*chatResponse, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, fmt.Errorf("%w: %w", ErrContextCanceled, ctx.Err())
		}
		return nil, true, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, false, ErrRateLimited
	case resp.StatusCode == http.StatusPaymentRequired:
		return nil, false, ErrPaymentRequired
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		p.logger.Error("gateway returned error", "status", resp.StatusCode, "body", string(errBody))
		return nil, resp.StatusCode >= 500, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return &out, false, nil
}

func (p *GatewayProvider) parseResponse(resp *chatResponse) (*CompletionResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}
	choice := resp.Choices[0]

	out := &CompletionResponse{
		Content:          choice.Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		Model:            resp.Model,
		FinishReason:     choice.FinishReason,
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrPaymentRequired):
		return "payment_required"
	case errors.Is(err, ErrContextCanceled):
		return "canceled"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid"
	default:
		return "error"
	}
}

// Gateway API request/response types

type chatRequest struct {
	Model      string          `json:"model"`
	Messages   []chatMessage   `json:"messages"`
	MaxTokens  int             `json:"max_tokens,omitempty"`
	Tools      []chatTool      `json:"tools,omitempty"`
	ToolChoice *chatToolChoice `json:"tool_choice,omitempty"`
}

type chatMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []chatToolCall `json:"tool_calls,omitempty"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type chatToolChoice struct {
	Type     string                 `json:"type"`
	Function chatToolChoiceFunction `json:"function"`
}

type chatToolChoiceFunction struct {
	Name string `json:"name"`
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
