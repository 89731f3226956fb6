package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archoncouncil/api/internal/security"
	"github.com/archoncouncil/api/pkg/domain/council"
	"github.com/archoncouncil/api/pkg/logger"
)

type fakeSynth struct {
	voiceID string
	text    string
	err     error
}

func (f *fakeSynth) Synthesize(_ context.Context, voiceID, text string) ([]byte, error) {
	f.voiceID, f.text = voiceID, text
	if f.err != nil {
		return nil, f.err
	}
	return []byte("ID3audio"), nil
}

func newTestVoiceService(s Synthesizer) *VoiceService {
	log := logger.NewNop()
	return NewVoiceService(s, security.NewAuditor(log), log)
}

func TestVoiceService_NotConfigured(t *testing.T) {
	_, err := newTestVoiceService(nil).Speak(context.Background(), "user-1", "olá", "maya")
	assert.ErrorIs(t, err, ErrVoiceNotConfigured)
}

func TestVoiceService_SelectsVoice(t *testing.T) {
	tests := []struct {
		specialist string
		want       council.Specialist
	}{
		{"maya", council.SpecialistMaya},
		{"chen", council.SpecialistChen},
		{"", council.SpecialistArchon},
		{"unknown", council.SpecialistArchon},
	}

	for _, tt := range tests {
		t.Run(tt.specialist, func(t *testing.T) {
			synth := &fakeSynth{}
			audio, err := newTestVoiceService(synth).Speak(context.Background(), "user-1", "olá", tt.specialist)
			require.NoError(t, err)
			assert.Equal(t, []byte("ID3audio"), audio)
			assert.Equal(t, tt.want.VoiceID(), synth.voiceID)
			assert.Equal(t, "olá", synth.text)
		})
	}
}

func TestVoiceService_PropagatesErrors(t *testing.T) {
	want := errors.New("boom")
	_, err := newTestVoiceService(&fakeSynth{err: want}).Speak(context.Background(), "user-1", "x", "akira")
	assert.ErrorIs(t, err, want)
}
