package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/archoncouncil/api/internal/app"
	"github.com/archoncouncil/api/internal/security"
	"github.com/archoncouncil/api/pkg/apierror"
	"github.com/archoncouncil/api/pkg/logger"
)

// TTS endpoint messages.
const (
	MsgTextRequired    = "Text is required"
	MsgSynthesisFailed = "Voice synthesis failed"
)

// VoiceService synthesizes council answers.
type VoiceService interface {
	Speak(ctx context.Context, userID, text, specialist string) ([]byte, error)
}

// TTSHandler handles POST /elevenlabs-tts.
type TTSHandler struct {
	guard   Guard
	rule    security.Rule
	service VoiceService
	logger  *logger.Logger
}

// NewTTSHandler creates a TTSHandler.
func NewTTSHandler(guard Guard, rule security.Rule, svc VoiceService, log *logger.Logger) *TTSHandler {
	return &TTSHandler{
		guard:   guard,
		rule:    rule,
		service: svc,
		logger:  log.With("handler", "tts"),
	}
}

// Speak returns the synthesized audio as audio/mpeg.
func (h *TTSHandler) Speak(w http.ResponseWriter, r *http.Request) {
	if res := h.guard.Gate.Run(r, RouteTTS, h.rule); !res.Passed {
		res.Denial.WriteJSON(w)
		return
	}

	body, _, err := readBody(r)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	if d := h.guard.Gate.CheckPayload(RouteTTS, h.guard.Payload, body); !d.Allowed() {
		d.Err().WriteJSON(w)
		return
	}

	principal, d := h.guard.Auth.RequireAuth(r.Context(), RouteTTS, r.Header.Get("Authorization"))
	if !d.Allowed() {
		d.Err().WriteJSON(w)
		return
	}

	text, ok := field(body, "text").(string)
	if !ok || text == "" {
		apierror.BadRequest(MsgTextRequired).WriteJSON(w)
		return
	}
	// Anything but a string name falls back to the default voice.
	specialist, _ := field(body, "specialist").(string)

	audio, err := h.service.Speak(r.Context(), principal.ID, text, specialist)
	if err != nil {
		if errors.Is(err, app.ErrVoiceNotConfigured) {
			h.logger.Error("voice synthesis unavailable", "error", err)
			apierror.NotConfigured(err).WriteJSON(w)
			return
		}
		apierror.Wrap(err, http.StatusInternalServerError, apierror.CodeUpstreamError, MsgSynthesisFailed).WriteJSON(w)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}
