// Package llm provides the client for the OpenAI-compatible model gateway.
package llm

import (
	"context"
	"fmt"
)

// Provider is the interface for model gateways.
type Provider interface {
	// Complete sends a prompt and returns the completion.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name for logging.
	Name() string

	// Model returns the model being used.
	Model() string

	// Validate checks if the configuration is valid.
	Validate() error
}

// CompletionRequest represents a request to the model.
type CompletionRequest struct {
	// SystemPrompt is the system/instruction prompt.
	SystemPrompt string

	// UserPrompt is the user's input prompt.
	UserPrompt string

	// MaxTokens is the maximum tokens in the response. Zero leaves it to the gateway.
	MaxTokens int

	// Tools are the functions the model may call.
	Tools []Tool

	// ToolChoice forces a call to the named tool when set.
	ToolChoice string
}

// Tool describes a function exposed to the model.
type Tool struct {
	Name        string
	Description string
	// Parameters is a JSON schema object.
	Parameters map[string]any
}

// ToolCall is a function call returned by the model.
type ToolCall struct {
	ID   string
	Name string
	// Arguments is the raw JSON argument string as produced by the model.
	Arguments string
}

// CompletionResponse represents a response from the model.
type CompletionResponse struct {
	// Content is the generated text, if any.
	Content string

	// ToolCalls are the function calls in the first choice.
	ToolCalls []ToolCall

	PromptTokens     int
	CompletionTokens int
	TotalTokens      int

	// Model is the actual model used (may differ from requested).
	Model string

	// FinishReason indicates why the response ended.
	FinishReason string
}

// ToolCall returns the first call to the named function.
func (r *CompletionResponse) ToolCall(name string) (ToolCall, bool) {
	if r == nil || len(r.ToolCalls) == 0 {
		return ToolCall{}, false
	}
	// only the first call counts; a different name means the model ignored tool_choice
	if r.ToolCalls[0].Name != name {
		return ToolCall{}, false
	}
	return r.ToolCalls[0], true
}

// Errors
var (
	ErrProviderNotConfigured = fmt.Errorf("model gateway not configured")
	ErrRateLimited           = fmt.Errorf("model gateway rate limit exceeded")
	ErrPaymentRequired       = fmt.Errorf("model gateway credits exhausted")
	ErrUpstream              = fmt.Errorf("model gateway error")
	ErrInvalidResponse       = fmt.Errorf("invalid response from model gateway")
	ErrContextCanceled       = fmt.Errorf("request canceled")
)
