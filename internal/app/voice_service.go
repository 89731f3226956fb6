package app

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/archoncouncil/api/internal/security"
	"github.com/archoncouncil/api/pkg/domain/council"
	"github.com/archoncouncil/api/pkg/logger"
)

// ErrVoiceNotConfigured is returned when no synthesizer is wired.
var ErrVoiceNotConfigured = errors.New("voice synthesis is not configured")

// Synthesizer converts text to audio with a given voice.
type Synthesizer interface {
	Synthesize(ctx context.Context, voiceID, text string) ([]byte, error)
}

// VoiceService reads council answers aloud.
type VoiceService struct {
	synth   Synthesizer
	auditor *security.Auditor
	logger  *logger.Logger
}

// NewVoiceService creates a VoiceService. synth may be nil.
func NewVoiceService(synth Synthesizer, auditor *security.Auditor, log *logger.Logger) *VoiceService {
	return &VoiceService{
		synth:   synth,
		auditor: auditor,
		logger:  log.With("service", "voice"),
	}
}

// Speak synthesizes text in the voice of specialist. Unknown or empty
// specialists use the ARCHON voice.
func (s *VoiceService) Speak(ctx context.Context, userID, text, specialist string) ([]byte, error) {
	if s.synth == nil {
		return nil, ErrVoiceNotConfigured
	}
	if specialist == "" {
		specialist = string(council.SpecialistArchon)
	}

	audio, err := s.synth.Synthesize(ctx, council.Specialist(specialist).VoiceID(), text)
	if err != nil {
		s.logger.Error("speech synthesis failed", "specialist", specialist, "error", err)
		return nil, err
	}

	s.auditor.Log(security.EventTTSCompleted, map[string]any{
		"user_id":     userID,
		"specialist":  specialist,
		"text_length": utf8.RuneCountInString(text),
		"audio_bytes": len(audio),
	})
	return audio, nil
}
