package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/archoncouncil/api/internal/infra/llm"
	"github.com/archoncouncil/api/internal/metrics"
	"github.com/archoncouncil/api/internal/security"
	"github.com/archoncouncil/api/pkg/domain/council"
	"github.com/archoncouncil/api/pkg/logger"
)

// Decision service errors
var (
	ErrModelNotConfigured = errors.New("model gateway is not configured")
	ErrInvalidAdvice      = errors.New("model returned an invalid council response")
)

// decisionMaxTokens bounds the structured answer.
const decisionMaxTokens = 4096

// DecisionService turns a validated question into sanitized council advice.
type DecisionService struct {
	provider llm.Provider
	repo     council.Repository
	auditor  *security.Auditor
	logger   *logger.Logger
	now      func() time.Time
}

// DecisionServiceOption configures optional dependencies.
type DecisionServiceOption func(*DecisionService)

// WithCouncilRepository persists completed sessions through repo.
func WithCouncilRepository(repo council.Repository) DecisionServiceOption {
	return func(s *DecisionService) {
		s.repo = repo
	}
}

// WithDecisionClock overrides the clock used to measure processing time.
func WithDecisionClock(now func() time.Time) DecisionServiceOption {
	return func(s *DecisionService) {
		s.now = now
	}
}

// NewDecisionService creates a DecisionService. A nil provider makes every
// decision fail with ErrModelNotConfigured.
func NewDecisionService(provider llm.Provider, auditor *security.Auditor, log *logger.Logger, opts ...DecisionServiceOption) *DecisionService {
	s := &DecisionService{
		provider: provider,
		auditor:  auditor,
		logger:   log.With("service", "decision"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Decide asks the council and returns the sanitized advice.
func (s *DecisionService) Decide(ctx context.Context, userID string, req council.Request) (*council.Advice, error) {
	if s.provider == nil {
		return nil, ErrModelNotConfigured
	}

	start := s.now()
	advice, model, err := s.complete(ctx, req)
	elapsed := s.now().Sub(start)
	metrics.DecisionDuration.Observe(elapsed.Seconds())

	if err != nil {
		metrics.DecisionsTotal.WithLabelValues(string(req.Horizonte), "failed").Inc()
		s.auditor.Log(security.EventDecisionFailed, map[string]any{
			"user_id": userID,
			"horizon": string(req.Horizonte),
			"reason":  failureReason(err),
		})
		return nil, err
	}

	metrics.DecisionsTotal.WithLabelValues(string(req.Horizonte), "completed").Inc()
	s.auditor.Log(security.EventDecisionCompleted, map[string]any{
		"user_id":            userID,
		"horizon":            string(req.Horizonte),
		"actions":            len(advice.PlanoDeAcao),
		"processing_time_ms": elapsed.Milliseconds(),
	})

	s.persist(ctx, userID, req, advice, model, elapsed)
	return &advice, nil
}

func (s *DecisionService) complete(ctx context.Context, req council.Request) (council.Advice, string, error) {
	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: councilSystemPrompt,
		UserPrompt:   buildUserPrompt(req),
		MaxTokens:    decisionMaxTokens,
		Tools:        []llm.Tool{councilTool()},
		ToolChoice:   councilToolName,
	})
	if err != nil {
		return council.Advice{}, "", err
	}

	advice, err := parseAdvice(resp)
	if err != nil {
		s.logger.Error("unusable model response",
			"error", err,
			"finish_reason", resp.FinishReason,
			"tool_calls", len(resp.ToolCalls),
		)
		return council.Advice{}, "", err
	}

	model := resp.Model
	if model == "" {
		model = s.provider.Model()
	}
	return advice.Map(security.Sanitize), model, nil
}

// parseAdvice extracts the council tool call from resp.
func parseAdvice(resp *llm.CompletionResponse) (council.Advice, error) {
	call, ok := resp.ToolCall(councilToolName)
	if !ok {
		return council.Advice{}, fmt.Errorf("%w: %w: missing %s call", ErrInvalidAdvice, llm.ErrInvalidResponse, councilToolName)
	}

	var advice council.Advice
	if err := json.Unmarshal([]byte(call.Arguments), &advice); err != nil {
		return council.Advice{}, fmt.Errorf("%w: %w: %w", ErrInvalidAdvice, llm.ErrInvalidResponse, err)
	}
	if err := advice.Validate(); err != nil {
		return council.Advice{}, fmt.Errorf("%w: %w: %w", ErrInvalidAdvice, llm.ErrInvalidResponse, err)
	}
	return advice, nil
}

// persist stores the session when a repository and an object are present.
// Failures are logged only.
func (s *DecisionService) persist(ctx context.Context, userID string, req council.Request, advice council.Advice, model string, elapsed time.Duration) {
	if s.repo == nil || req.ObjectID == "" {
		return
	}

	objectID, err := uuid.Parse(req.ObjectID)
	if err != nil {
		s.logger.Warn("skipping session persistence", "reason", "invalid object id")
		return
	}

	session, actions := council.NewCompletedSession(userID, objectID, req, advice, model, elapsed)
	if err := s.repo.CreateSession(ctx, session, actions); err != nil {
		s.logger.Error("failed to persist decision session",
			"session_id", session.ID.String(),
			"object_id", objectID.String(),
			"error", err,
		)
		return
	}
	s.logger.Info("decision session stored",
		"session_id", session.ID.String(),
		"actions", len(actions),
	)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, llm.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, llm.ErrPaymentRequired):
		return "payment_required"
	case errors.Is(err, llm.ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, llm.ErrContextCanceled):
		return "canceled"
	default:
		return "upstream_error"
	}
}
