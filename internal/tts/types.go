// Package tts defines the speech synthesis collaborator interface and
// its HTTP-backed implementation.
package tts

import (
	"context"
	"time"

	"github.com/normanking/cueflow/internal/timing"
)

// AudioTrack references synthesized audio. The waveform itself stays
// with the backend; the pipeline only needs the reference, duration,
// and sample rate.
type AudioTrack struct {
	Ref        string  `json:"ref"`
	Duration   float64 `json:"duration"`
	SampleRate int     `json:"sample_rate"`
}

// SynthesizeRequest asks a provider to speak text in a voice.
type SynthesizeRequest struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	VoiceID  string  `json:"voice_id"`
	Speed    float64 `json:"speed,omitempty"`
}

// Result is a completed synthesis. Marks carries backend-provided word
// or phoneme timings when the backend supports them; nil otherwise.
type Result struct {
	Track          AudioTrack
	Marks          []timing.Mark
	Provider       string
	ProcessingTime time.Duration
}

// Provider is a speech synthesis backend.
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// Synthesize converts text to an audio track
	Synthesize(ctx context.Context, req *SynthesizeRequest) (*Result, error)

	// Health checks if the provider is available
	Health(ctx context.Context) error
}
