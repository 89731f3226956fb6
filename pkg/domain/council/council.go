// Package council defines the strategic council request, its structured
// advice, and the session records persisted after a decision.
package council

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Domain errors.
var (
	ErrIncompleteAdvice = errors.New("advice is missing required fields")
	ErrObjectNotFound   = errors.New("analysis object not found")
)

// Horizon is the planning horizon of a question.
type Horizon string

const (
	HorizonShort  Horizon = "curto"
	HorizonMedium Horizon = "medio"
	HorizonLong   Horizon = "longo"
)

// IsValid reports whether h is one of the known horizons.
func (h Horizon) IsValid() bool {
	switch h {
	case HorizonShort, HorizonMedium, HorizonLong:
		return true
	default:
		return false
	}
}

// Label returns the human-readable horizon used in prompts.
func (h Horizon) Label() string {
	switch h {
	case HorizonShort:
		return "Curto prazo (7-14 dias)"
	case HorizonMedium:
		return "Médio prazo (30-60 dias)"
	default:
		return "Longo prazo (90+ dias)"
	}
}

// Priority ranks an action item.
type Priority string

const (
	PriorityHigh   Priority = "alta"
	PriorityMedium Priority = "media"
	PriorityLow    Priority = "baixa"
)

// IsValid reports whether p is one of the known priorities.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Request is the decision endpoint input.
type Request struct {
	Pergunta         string  `json:"pergunta" validate:"required"`
	ObjetoEmAnalise  string  `json:"objeto_em_analise" validate:"required"`
	ObjetivoAtual    string  `json:"objetivo_atual" validate:"required"`
	Horizonte        Horizon `json:"horizonte" validate:"required,horizon"`
	ContextoOpcional string  `json:"contexto_opcional,omitempty"`

	// ObjectID links the persisted session to an analysis object. Sessions are
	// only stored when it is present.
	ObjectID string `json:"object_id,omitempty" validate:"omitempty,uuid"`
}

// ActionItem is one prioritized step of the action plan.
type ActionItem struct {
	Acao       string   `json:"acao"`
	Prioridade Priority `json:"prioridade"`
}

// Advice is the structured council response.
type Advice struct {
	ArchonSintese   string       `json:"archon_sintese"`
	AkiraEstrategia string       `json:"akira_estrategia"`
	MayaConteudo    string       `json:"maya_conteudo"`
	ChenDados       string       `json:"chen_dados"`
	YukiPsicologia  string       `json:"yuki_psicologia"`
	PlanoDeAcao     []ActionItem `json:"plano_de_acao"`
}

// Validate checks that every specialist answered and every action is well formed.
func (a *Advice) Validate() error {
	if a.ArchonSintese == "" || a.AkiraEstrategia == "" || a.MayaConteudo == "" ||
		a.ChenDados == "" || a.YukiPsicologia == "" {
		return ErrIncompleteAdvice
	}
	if a.PlanoDeAcao == nil {
		return ErrIncompleteAdvice
	}
	for _, item := range a.PlanoDeAcao {
		if item.Acao == "" || !item.Prioridade.IsValid() {
			return ErrIncompleteAdvice
		}
	}
	return nil
}

// Map applies fn to every free-text field and returns the result.
func (a Advice) Map(fn func(string) string) Advice {
	out := Advice{
		ArchonSintese:   fn(a.ArchonSintese),
		AkiraEstrategia: fn(a.AkiraEstrategia),
		MayaConteudo:    fn(a.MayaConteudo),
		ChenDados:       fn(a.ChenDados),
		YukiPsicologia:  fn(a.YukiPsicologia),
		PlanoDeAcao:     make([]ActionItem, len(a.PlanoDeAcao)),
	}
	for i, item := range a.PlanoDeAcao {
		out.PlanoDeAcao[i] = ActionItem{Acao: fn(item.Acao), Prioridade: item.Prioridade}
	}
	return out
}

// Specialist names a council voice.
type Specialist string

const (
	SpecialistArchon Specialist = "archon"
	SpecialistAkira  Specialist = "akira"
	SpecialistMaya   Specialist = "maya"
	SpecialistChen   Specialist = "chen"
	SpecialistYuki   Specialist = "yuki"
)

var voiceIDs = map[Specialist]string{
	SpecialistArchon: "onwK4e9ZLuTAKqWW03F9",
	SpecialistAkira:  "TX3LPaxmHKxFdv7VOQHJ",
	SpecialistMaya:   "Xb7hH8MSUJpSbSDYk0k2",
	SpecialistChen:   "cjVigY5qzO86Huf0OWal",
	SpecialistYuki:   "pFZP5JQG7iQjIQuC4Bku",
}

// VoiceID returns the synthesis voice for s. Unknown specialists fall back to ARCHON.
func (s Specialist) VoiceID() string {
	if id, ok := voiceIDs[s]; ok {
		return id
	}
	return voiceIDs[SpecialistArchon]
}

// SessionStatus is the lifecycle state of a stored session.
type SessionStatus string

const (
	SessionCreated    SessionStatus = "created"
	SessionProcessing SessionStatus = "processing"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
)

// ActionStatus is the progress of a stored plan action.
type ActionStatus string

const (
	ActionPending    ActionStatus = "pending"
	ActionInProgress ActionStatus = "in_progress"
	ActionDone       ActionStatus = "done"
	ActionSkipped    ActionStatus = "skipped"
)

// Session is a persisted decision.
type Session struct {
	ID               uuid.UUID
	UserID           string
	ObjectID         uuid.UUID
	Question         string
	Horizon          Horizon
	Status           SessionStatus
	Advice           Advice
	ProcessingTimeMS int64
	ModelUsed        string
	ErrorMessage     string
	CreatedAt        time.Time
}

// PlanAction is a persisted action plan item.
type PlanAction struct {
	ID         uuid.UUID
	SessionID  uuid.UUID
	UserID     string
	ActionText string
	Priority   Priority
	Status     ActionStatus
}

// NewCompletedSession builds a completed session and its pending plan actions.
func NewCompletedSession(userID string, objectID uuid.UUID, req Request, advice Advice, model string, elapsed time.Duration) (*Session, []PlanAction) {
	s := &Session{
		ID:               uuid.New(),
		UserID:           userID,
		ObjectID:         objectID,
		Question:         req.Pergunta,
		Horizon:          req.Horizonte,
		Status:           SessionCompleted,
		Advice:           advice,
		ProcessingTimeMS: elapsed.Milliseconds(),
		ModelUsed:        model,
		CreatedAt:        time.Now().UTC(),
	}

	actions := make([]PlanAction, 0, len(advice.PlanoDeAcao))
	for _, item := range advice.PlanoDeAcao {
		actions = append(actions, PlanAction{
			ID:         uuid.New(),
			SessionID:  s.ID,
			UserID:     userID,
			ActionText: item.Acao,
			Priority:   item.Prioridade,
			Status:     ActionPending,
		})
	}
	return s, actions
}
