package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/archoncouncil/api/internal/app"
	"github.com/archoncouncil/api/internal/infra/llm"
	"github.com/archoncouncil/api/internal/security"
	"github.com/archoncouncil/api/pkg/apierror"
	"github.com/archoncouncil/api/pkg/domain/council"
	"github.com/archoncouncil/api/pkg/logger"
	"github.com/archoncouncil/api/pkg/validator"
)

// Decision endpoint messages.
const (
	MsgRequiredFields   = "Campos obrigatórios: pergunta, objeto_em_analise, objetivo_atual, horizonte"
	MsgInvalidHorizon   = "Horizonte inválido"
	MsgUpstreamLimited  = "Rate limit excedido. Aguarde alguns segundos e tente novamente."
	MsgPaymentRequired  = "Créditos insuficientes. Adicione créditos ao workspace."
	MsgInvalidObjectRef = "object_id inválido"
)

// DecisionService is the council use case behind POST /archon-decision.
type DecisionService interface {
	Decide(ctx context.Context, userID string, req council.Request) (*council.Advice, error)
}

// DecisionHandler handles POST /archon-decision.
type DecisionHandler struct {
	guard     Guard
	rule      security.Rule
	service   DecisionService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewDecisionHandler creates a DecisionHandler.
func NewDecisionHandler(guard Guard, rule security.Rule, svc DecisionService, v *validator.Validator, log *logger.Logger) *DecisionHandler {
	return &DecisionHandler{
		guard:     guard,
		rule:      rule,
		service:   svc,
		validator: v,
		logger:    log.With("handler", "decision"),
	}
}

// Decide runs the security pipeline, then asks the council.
// Security checks always run before field validation.
func (h *DecisionHandler) Decide(w http.ResponseWriter, r *http.Request) {
	if res := h.guard.Gate.Run(r, RouteDecision, h.rule); !res.Passed {
		res.Denial.WriteJSON(w)
		return
	}

	body, raw, err := readBody(r)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	if d := h.guard.Gate.CheckPayload(RouteDecision, h.guard.Payload, body); !d.Allowed() {
		d.Err().WriteJSON(w)
		return
	}

	principal, d := h.guard.Auth.RequireAuth(r.Context(), RouteDecision, r.Header.Get("Authorization"))
	if !d.Allowed() {
		d.Err().WriteJSON(w)
		return
	}

	var req council.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		apierror.BadRequest(MsgRequiredFields).WithError(err).WriteJSON(w)
		return
	}
	if apiErr := h.validate(req); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	advice, err := h.service.Decide(r.Context(), principal.ID, req)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, advice)
}

func (h *DecisionHandler) validate(req council.Request) *apierror.Error {
	err := h.validator.Validate(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apierror.BadRequest(MsgRequiredFields).WithError(err)
	}
	switch {
	case verrs.HasTag("required"):
		return apierror.BadRequest(MsgRequiredFields)
	case verrs.HasTag("horizon"):
		return apierror.BadRequest(MsgInvalidHorizon)
	default:
		return apierror.ValidationFailed(MsgInvalidObjectRef, verrs)
	}
}

func (h *DecisionHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrModelNotConfigured):
		h.logger.Error("decision unavailable", "error", err)
		apierror.NotConfigured(err).WriteJSON(w)
	case errors.Is(err, llm.ErrRateLimited):
		apierror.TooManyRequests(MsgUpstreamLimited).WriteJSON(w)
	case errors.Is(err, llm.ErrPaymentRequired):
		apierror.PaymentRequired(MsgPaymentRequired).WriteJSON(w)
	default:
		h.logger.Error("decision failed", "error", err)
		apierror.Upstream(err).WriteJSON(w)
	}
}
