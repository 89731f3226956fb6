package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archoncouncil/api/internal/app"
	"github.com/archoncouncil/api/internal/infra/llm"
	"github.com/archoncouncil/api/internal/security"
	"github.com/archoncouncil/api/pkg/domain/council"
	"github.com/archoncouncil/api/pkg/domain/identity"
	"github.com/archoncouncil/api/pkg/logger"
	"github.com/archoncouncil/api/pkg/validator"
)

const (
	ownerEmail    = "owner@example.com"
	ownerPassword = "correct horse"
	goodToken     = "good-token"
	clientIP      = "203.0.113.9"
)

type fakeIdentity struct {
	email   string
	getUser atomic.Int32
	signIn  atomic.Int32
}

func (f *fakeIdentity) GetUser(_ context.Context, token string) (*identity.User, error) {
	f.getUser.Add(1)
	if token != goodToken {
		return nil, identity.ErrInvalidToken
	}
	return &identity.User{ID: "user-1", Email: f.email}, nil
}

func (f *fakeIdentity) SignInWithPassword(_ context.Context, email, password string) (*identity.Session, error) {
	f.signIn.Add(1)
	if password != ownerPassword {
		return nil, identity.ErrInvalidCredentials
	}
	return &identity.Session{
		AccessToken:  "at",
		RefreshToken: "rt",
		ExpiresAt:    1767225600,
		User:         identity.User{ID: "user-1", Email: email},
	}, nil
}

type fakeDecisions struct {
	calls atomic.Int32
	err   error
	got   council.Request
}

func (f *fakeDecisions) Decide(_ context.Context, _ string, req council.Request) (*council.Advice, error) {
	f.calls.Add(1)
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &council.Advice{
		ArchonSintese:   "&lt;b&gt;foco&lt;&#x2F;b&gt;",
		AkiraEstrategia: "a",
		MayaConteudo:    "m",
		ChenDados:       "c",
		YukiPsicologia:  "y",
		PlanoDeAcao:     []council.ActionItem{{Acao: "agir", Prioridade: council.PriorityHigh}},
	}, nil
}

type fakeVoice struct {
	specialist string
	err        error
}

func (f *fakeVoice) Speak(_ context.Context, _, _, specialist string) ([]byte, error) {
	f.specialist = specialist
	if f.err != nil {
		return nil, f.err
	}
	return []byte("ID3"), nil
}

type fixture struct {
	idp      *fakeIdentity
	guard    Guard
	decision *fakeDecisions
	voice    *fakeVoice
}

func newFixture(t *testing.T, allowlist *security.IPAllowlist) *fixture {
	t.Helper()
	log := logger.NewNop()
	if allowlist == nil {
		allowlist = security.NewIPAllowlist(false, nil, log)
	}
	auditor := security.NewAuditor(log)
	idp := &fakeIdentity{email: ownerEmail}
	gate := security.NewGate(allowlist, security.NewRateLimiter(security.NewMemoryStore(), log), auditor, log)
	auth := security.NewAuthenticator(idp, security.AuthConfig{
		AuthorizedEmail:  ownerEmail,
		BearerConfigured: true,
		SignInConfigured: true,
		MaxFieldLength:   255,
	}, auditor, log)

	return &fixture{
		idp:      idp,
		guard:    Guard{Gate: gate, Auth: auth, Payload: security.PayloadValidator{MaxFieldLength: 100, MaxDepth: 8}},
		decision: &fakeDecisions{},
		voice:    &fakeVoice{},
	}
}

var generous = security.Rule{MaxRequests: 100, Window: time.Minute}

func (f *fixture) decisionHandler(rule security.Rule) *DecisionHandler {
	return NewDecisionHandler(f.guard, rule, f.decision, validator.New(), logger.NewNop())
}

func post(t *testing.T, h http.HandlerFunc, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	switch b := body.(type) {
	case string:
		raw = []byte(b)
	default:
		var err error
		raw, err = json.Marshal(b)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", clientIP)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	msg, _ := body["error"].(string)
	return msg
}

func validDecisionBody() map[string]any {
	return map[string]any{
		"pergunta":          "Devo mudar de nicho?",
		"objeto_em_analise": "Canal",
		"objetivo_atual":    "Crescer",
		"horizonte":         "curto",
	}
}

func TestDecisionHandler_Success(t *testing.T) {
	f := newFixture(t, nil)
	rec := post(t, f.decisionHandler(generous).Decide, "/archon-decision", goodToken, validDecisionBody())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var advice council.Advice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &advice))
	assert.Equal(t, "&lt;b&gt;foco&lt;&#x2F;b&gt;", advice.ArchonSintese)
	assert.Equal(t, council.HorizonShort, f.decision.got.Horizonte)
}

func TestDecisionHandler_NoBearerNeverReachesModel(t *testing.T) {
	f := newFixture(t, nil)
	rec := post(t, f.decisionHandler(generous).Decide, "/archon-decision", "", validDecisionBody())

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, security.MsgAuthRequired, errorMessage(t, rec))
	assert.Zero(t, f.decision.calls.Load())
	assert.Zero(t, f.idp.getUser.Load())
}

func TestDecisionHandler_InvalidHorizonWithoutBearerIs401(t *testing.T) {
	f := newFixture(t, nil)
	body := validDecisionBody()
	body["horizonte"] = "invalid"

	rec := post(t, f.decisionHandler(generous).Decide, "/archon-decision", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(t, f.decisionHandler(generous).Decide, "/archon-decision", goodToken, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgInvalidHorizon, errorMessage(t, rec))
	assert.Zero(t, f.decision.calls.Load())
}

func TestDecisionHandler_OverLimitNeverReachesModel(t *testing.T) {
	f := newFixture(t, nil)
	h := f.decisionHandler(security.Rule{MaxRequests: 2, Window: time.Minute})

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, post(t, h.Decide, "/archon-decision", goodToken, validDecisionBody()).Code)
	}
	rec := post(t, h.Decide, "/archon-decision", goodToken, validDecisionBody())

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, security.MsgRateLimited, errorMessage(t, rec))
	assert.Equal(t, int32(2), f.decision.calls.Load())
}

func TestDecisionHandler_BlockedIP(t *testing.T) {
	f := newFixture(t, security.NewIPAllowlist(true, []string{"10.0.0.0/8"}, logger.NewNop()))
	rec := post(t, f.decisionHandler(generous).Decide, "/archon-decision", goodToken, validDecisionBody())

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, security.MsgIPBlocked, errorMessage(t, rec))
	assert.Zero(t, f.idp.getUser.Load())
}

func TestDecisionHandler_ClientErrors(t *testing.T) {
	long := make([]byte, 101)
	for i := range long {
		long[i] = 'x'
	}

	tests := []struct {
		name    string
		body    any
		status  int
		message string
	}{
		{"malformed json", `{"pergunta":`, http.StatusBadRequest, MsgInvalidJSON},
		{"oversized field", map[string]any{"pergunta": string(long)}, http.StatusBadRequest, "Field root.pergunta exceeds maximum length of 100 characters"},
		{"missing fields", map[string]any{"pergunta": "x"}, http.StatusBadRequest, MsgRequiredFields},
		{"wrong field type", map[string]any{"pergunta": 5, "objeto_em_analise": "o", "objetivo_atual": "g", "horizonte": "curto"}, http.StatusBadRequest, MsgRequiredFields},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			rec := post(t, f.decisionHandler(generous).Decide, "/archon-decision", goodToken, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, errorMessage(t, rec))
			}
			assert.Zero(t, f.decision.calls.Load())
		})
	}
}

func TestDecisionHandler_ServiceErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"not configured", app.ErrModelNotConfigured, http.StatusInternalServerError, "Sistema não configurado"},
		{"upstream rate limited", llm.ErrRateLimited, http.StatusTooManyRequests, MsgUpstreamLimited},
		{"payment required", llm.ErrPaymentRequired, http.StatusPaymentRequired, MsgPaymentRequired},
		{"upstream failure", llm.ErrUpstream, http.StatusInternalServerError, "Erro interno do servidor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.decision.err = tt.err
			rec := post(t, f.decisionHandler(generous).Decide, "/archon-decision", goodToken, validDecisionBody())
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, errorMessage(t, rec))
		})
	}
}

func TestAuthHandler_Validate(t *testing.T) {
	f := newFixture(t, nil)
	h := NewAuthHandler(f.guard.Gate, generous, f.guard.Auth, logger.NewNop())

	rec := post(t, h.Validate, "/auth-validate", "", map[string]any{"email": ownerEmail, "password": ownerPassword})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "at", resp.Session.AccessToken)
	assert.Equal(t, int64(1767225600), resp.Session.ExpiresAt)
	assert.Equal(t, "user-1", resp.Session.User.ID)
}

func TestAuthHandler_FailuresAreIdentical(t *testing.T) {
	bodies := map[string]any{
		"unauthorized email": map[string]any{"email": "intruder@example.com", "password": ownerPassword},
		"wrong password":     map[string]any{"email": ownerEmail, "password": "nope"},
		"malformed json":     `{"email":`,
		"array body":         `[1,2]`,
		"missing password":   map[string]any{"email": ownerEmail},
	}

	var first string
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, nil)
			h := NewAuthHandler(f.guard.Gate, generous, f.guard.Auth, logger.NewNop())

			rec := post(t, h.Validate, "/auth-validate", "", body)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"error":"Credenciais inválidas","success":false}`, rec.Body.String())
			if first == "" {
				first = rec.Body.String()
			}
			assert.Equal(t, first, rec.Body.String())
		})
	}
}

func TestAuthHandler_Lockout(t *testing.T) {
	f := newFixture(t, nil)
	rule := security.Rule{MaxRequests: 1, Window: time.Minute, BlockDuration: time.Minute}
	h := NewAuthHandler(f.guard.Gate, rule, f.guard.Auth, logger.NewNop())

	body := map[string]any{"email": ownerEmail, "password": "nope"}
	assert.Equal(t, http.StatusUnauthorized, post(t, h.Validate, "/auth-validate", "", body).Code)

	rec := post(t, h.Validate, "/auth-validate", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"`+security.MsgRateLimited+`","success":false}`, rec.Body.String())

	rec = post(t, h.Validate, "/auth-validate", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, int32(1), f.idp.signIn.Load())
}

func TestAuthHandler_MisconfiguredHidesAuthorizedEmail(t *testing.T) {
	log := logger.NewNop()
	auditor := security.NewAuditor(log)
	gate := security.NewGate(security.NewIPAllowlist(false, nil, log), security.NewRateLimiter(security.NewMemoryStore(), log), auditor, log)
	idp := &fakeIdentity{email: ownerEmail}
	auth := security.NewAuthenticator(idp, security.AuthConfig{
		AuthorizedEmail:  ownerEmail,
		BearerConfigured: true,
		MaxFieldLength:   255,
	}, auditor, log)
	h := NewAuthHandler(gate, generous, auth, log)

	owner := post(t, h.Validate, "/auth-validate", "", map[string]any{"email": ownerEmail, "password": ownerPassword})
	intruder := post(t, h.Validate, "/auth-validate", "", map[string]any{"email": "intruder@example.com", "password": ownerPassword})

	assert.Equal(t, http.StatusInternalServerError, owner.Code)
	assert.Equal(t, owner.Code, intruder.Code)
	assert.JSONEq(t, owner.Body.String(), intruder.Body.String())
	assert.Zero(t, idp.signIn.Load())
}

func TestTTSHandler_Speak(t *testing.T) {
	f := newFixture(t, nil)
	h := NewTTSHandler(f.guard, generous, f.voice, logger.NewNop())

	rec := post(t, h.Speak, "/elevenlabs-tts", goodToken, map[string]any{"text": "olá", "specialist": "yuki"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ID3", rec.Body.String())
	assert.Equal(t, "yuki", f.voice.specialist)
}

func TestTTSHandler_NonStringSpecialistFallsBack(t *testing.T) {
	for _, specialist := range []any{1, true, []any{"maya"}, map[string]any{"name": "yuki"}} {
		f := newFixture(t, nil)
		h := NewTTSHandler(f.guard, generous, f.voice, logger.NewNop())

		rec := post(t, h.Speak, "/elevenlabs-tts", goodToken, map[string]any{"text": "olá", "specialist": specialist})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, f.voice.specialist)
	}
}

func TestTTSHandler_Errors(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		body    any
		err     error
		status  int
		message string
	}{
		{"requires auth", "", map[string]any{"text": "x"}, nil, http.StatusUnauthorized, security.MsgAuthRequired},
		{"requires text", goodToken, map[string]any{"specialist": "maya"}, nil, http.StatusBadRequest, MsgTextRequired},
		{"text must be a string", goodToken, map[string]any{"text": 3}, nil, http.StatusBadRequest, MsgTextRequired},
		{"not configured", goodToken, map[string]any{"text": "x"}, app.ErrVoiceNotConfigured, http.StatusInternalServerError, "Sistema não configurado"},
		{"synthesis failure", goodToken, map[string]any{"text": "x"}, assert.AnError, http.StatusInternalServerError, MsgSynthesisFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.voice.err = tt.err
			h := NewTTSHandler(f.guard, generous, f.voice, logger.NewNop())

			rec := post(t, h.Speak, "/elevenlabs-tts", tt.token, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, errorMessage(t, rec))
		})
	}
}
