package council

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAdvice() Advice {
	return Advice{
		ArchonSintese:   "Foque em X.",
		AkiraEstrategia: "Ignore Y.",
		MayaConteudo:    "Formato Z.",
		ChenDados:       "Meça W.",
		YukiPsicologia:  "Medo de perder.",
		PlanoDeAcao: []ActionItem{
			{Acao: "Publicar", Prioridade: PriorityHigh},
			{Acao: "Medir", Prioridade: PriorityLow},
		},
	}
}

func TestHorizon(t *testing.T) {
	assert.True(t, HorizonShort.IsValid())
	assert.True(t, HorizonLong.IsValid())
	assert.False(t, Horizon("invalid").IsValid())
	assert.False(t, Horizon("").IsValid())

	assert.Equal(t, "Curto prazo (7-14 dias)", HorizonShort.Label())
	assert.Equal(t, "Médio prazo (30-60 dias)", HorizonMedium.Label())
	assert.Equal(t, "Longo prazo (90+ dias)", HorizonLong.Label())
}

func TestAdvice_Validate(t *testing.T) {
	a := validAdvice()
	require.NoError(t, a.Validate())

	missing := validAdvice()
	missing.ChenDados = ""
	assert.ErrorIs(t, missing.Validate(), ErrIncompleteAdvice)

	badPriority := validAdvice()
	badPriority.PlanoDeAcao[0].Prioridade = "urgente"
	assert.ErrorIs(t, badPriority.Validate(), ErrIncompleteAdvice)

	noPlan := validAdvice()
	noPlan.PlanoDeAcao = nil
	assert.ErrorIs(t, noPlan.Validate(), ErrIncompleteAdvice)
}

func TestAdvice_Map(t *testing.T) {
	a := validAdvice()
	out := a.Map(strings.ToUpper)

	assert.Equal(t, "FOQUE EM X.", out.ArchonSintese)
	assert.Equal(t, "PUBLICAR", out.PlanoDeAcao[0].Acao)
	assert.Equal(t, PriorityHigh, out.PlanoDeAcao[0].Prioridade)
	// source untouched
	assert.Equal(t, "Publicar", a.PlanoDeAcao[0].Acao)
}

func TestSpecialist_VoiceID(t *testing.T) {
	assert.Equal(t, "TX3LPaxmHKxFdv7VOQHJ", SpecialistAkira.VoiceID())
	assert.Equal(t, "onwK4e9ZLuTAKqWW03F9", Specialist("unknown").VoiceID())
}

func TestNewCompletedSession(t *testing.T) {
	objectID := uuid.New()
	req := Request{Pergunta: "Qual foco?", Horizonte: HorizonMedium}

	s, actions := NewCompletedSession("user-1", objectID, req, validAdvice(), "openai/gpt-5.2", 1500*time.Millisecond)

	assert.Equal(t, SessionCompleted, s.Status)
	assert.Equal(t, int64(1500), s.ProcessingTimeMS)
	assert.Equal(t, objectID, s.ObjectID)
	require.Len(t, actions, 2)
	for _, a := range actions {
		assert.Equal(t, s.ID, a.SessionID)
		assert.Equal(t, ActionPending, a.Status)
		assert.Equal(t, "user-1", a.UserID)
	}
}
