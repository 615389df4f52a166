package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cueflow/internal/timing"
)

// HTTPProvider talks to a speech synthesis microservice over HTTP.
type HTTPProvider struct {
	config     *HTTPConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// HTTPConfig holds configuration for the HTTP provider
type HTTPConfig struct {
	ServiceURL   string  `json:"service_url" mapstructure:"service_url"`     // e.g., "http://localhost:8899"
	Timeout      int     `json:"timeout_sec" mapstructure:"timeout_sec"`     // HTTP timeout in seconds
	DefaultVoice string  `json:"default_voice" mapstructure:"default_voice"` // Default voice id
	DefaultSpeed float64 `json:"default_speed" mapstructure:"default_speed"` // Speech speed (0.5-2.0)
}

// DefaultHTTPConfig returns sensible defaults
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		ServiceURL:   "http://localhost:8899",
		Timeout:      30,
		DefaultVoice: "en-neutral",
		DefaultSpeed: 1.0,
	}
}

// synthesizeResponse is the backend's wire format. Words is optional;
// backends without alignment support omit it.
type synthesizeResponse struct {
	AudioRef   string  `json:"audio_ref"`
	Duration   float64 `json:"duration"`
	SampleRate int     `json:"sample_rate"`
	Words      []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"words,omitempty"`
}

// NewHTTPProvider creates a new HTTP synthesis provider
func NewHTTPProvider(config *HTTPConfig, logger zerolog.Logger) *HTTPProvider {
	if config == nil {
		config = DefaultHTTPConfig()
	}

	return &HTTPProvider{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
		logger: logger.With().Str("provider", "http_tts").Logger(),
	}
}

// Name returns the provider identifier
func (p *HTTPProvider) Name() string {
	return "http_tts"
}

// Synthesize converts text to audio via the backend service
func (p *HTTPProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*Result, error) {
	startTime := time.Now()

	voice := req.VoiceID
	if voice == "" {
		voice = p.config.DefaultVoice
	}
	speed := req.Speed
	if speed == 0 {
		speed = p.config.DefaultSpeed
	}

	payload := map[string]interface{}{
		"text":     req.Text,
		"language": req.Language,
		"voice":    voice,
		"speed":    speed,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/synthesize", p.config.ServiceURL)

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	p.logger.Debug().
		Str("url", url).
		Str("voice", voice).
		Str("language", req.Language).
		Float64("speed", speed).
		Msg("Sending synthesis request")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("synthesis service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var wire synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	var marks []timing.Mark
	for _, w := range wire.Words {
		marks = append(marks, timing.Mark{
			Text:  w.Text,
			Start: w.Start,
			End:   w.End,
			Kind:  timing.KindWord,
		})
	}

	processingTime := time.Since(startTime)

	p.logger.Info().
		Str("audio_ref", wire.AudioRef).
		Float64("duration", wire.Duration).
		Int("word_marks", len(marks)).
		Dur("processing_time", processingTime).
		Msg("Synthesis complete")

	return &Result{
		Track: AudioTrack{
			Ref:        wire.AudioRef,
			Duration:   wire.Duration,
			SampleRate: wire.SampleRate,
		},
		Marks:          marks,
		Provider:       p.Name(),
		ProcessingTime: processingTime,
	}, nil
}

// Health checks if the synthesis service is available
func (p *HTTPProvider) Health(ctx context.Context) error {
	url := fmt.Sprintf("%s/health", p.config.ServiceURL)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("synthesis service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("synthesis service unhealthy (status %d)", resp.StatusCode)
	}

	p.logger.Debug().Msg("Synthesis service health check passed")
	return nil
}
