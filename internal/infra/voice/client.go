// Package voice is the client for the text-to-speech API.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/archoncouncil/api/internal/metrics"
	"github.com/archoncouncil/api/pkg/logger"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultModel   = "eleven_multilingual_v2"
	outputFormat   = "mp3_44100_128"
	upstreamName   = "voice"

	// maxAudioBytes bounds a single synthesized clip.
	maxAudioBytes = 32 << 20
	maxErrorBody  = 4 << 10
)

var (
	ErrNotConfigured   = errors.New("voice synthesis not configured")
	ErrSynthesisFailed = errors.New("voice synthesis failed")
	ErrAudioTooLarge   = errors.New("synthesized audio exceeds size limit")
)

// VoiceSettings are the synthesis tuning knobs sent with every request.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
	Speed           float64 `json:"speed"`
}

// DefaultVoiceSettings returns the settings tuned for the council voices.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.6,
		SimilarityBoost: 0.75,
		Style:           0.3,
		UseSpeakerBoost: true,
		Speed:           0.9,
	}
}

// Config holds voice client configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client synthesizes speech.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	settings   VoiceSettings
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a new voice client.
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrNotConfigured)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		settings:   DefaultVoiceSettings(),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With("component", "voice"),
	}, nil
}

// Synthesize converts text to MP3 audio using voiceID.
func (c *Client) Synthesize(ctx context.Context, voiceID, text string) ([]byte, error) {
	body, err := json.Marshal(synthesisRequest{
		Text:          text,
		ModelID:       c.model,
		VoiceSettings: c.settings,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := c.baseURL + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "?output_format=" + outputFormat
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.UpstreamDuration.WithLabelValues(upstreamName).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(upstreamName, "error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.UpstreamRequestsTotal.WithLabelValues(upstreamName, "error").Inc()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Error("voice API error", "status", resp.StatusCode, "body", string(errBody))
		return nil, fmt.Errorf("%w: status %d", ErrSynthesisFailed, resp.StatusCode)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes+1))
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(upstreamName, "error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}
	if len(audio) > maxAudioBytes {
		metrics.UpstreamRequestsTotal.WithLabelValues(upstreamName, "too_large").Inc()
		return nil, ErrAudioTooLarge
	}

	metrics.UpstreamRequestsTotal.WithLabelValues(upstreamName, "ok").Inc()
	return audio, nil
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}
