// Package plan assembles render timelines and visual configuration into
// frame-accurate render plans for the external renderer.
package plan

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/cueflow/internal/schedule"
)

// ErrConfig indicates an invalid visual configuration.
var ErrConfig = errors.New("invalid visual config")

// Supported aspect ratios and their output resolutions.
var resolutions = map[string][2]int{
	"16:9": {1920, 1080},
	"9:16": {1080, 1920},
	"1:1":  {1080, 1080},
}

// DefaultFrameRate is the output frame rate when the config leaves it zero.
const DefaultFrameRate = 24

// VisualConfig selects the visual treatment for one render.
type VisualConfig struct {
	AspectRatio  string  `json:"aspect_ratio" mapstructure:"aspect_ratio"`
	BackgroundID string  `json:"background_id" mapstructure:"background_id"`
	CameraPath   string  `json:"camera_path" mapstructure:"camera_path"`
	FrameRate    float64 `json:"frame_rate" mapstructure:"frame_rate"`
	DefaultAsset string  `json:"default_asset" mapstructure:"default_asset"`
}

// FrameInstruction tells the renderer which asset plays on which channel
// over the half-open frame range [StartFrame, EndFrame). Adjacent
// instructions on a channel share the boundary frame number, so the
// boundary frame belongs to the later instruction.
type FrameInstruction struct {
	Channel    schedule.Channel `json:"channel"`
	Asset      string           `json:"asset"`
	StartFrame int              `json:"start_frame"`
	EndFrame   int              `json:"end_frame"`
}

// RenderPlan is the assembled, immutable hand-off to the external
// renderer. Warnings carry non-fatal degradations such as default-asset
// substitution.
type RenderPlan struct {
	ID           string             `json:"id"`
	AspectRatio  string             `json:"aspect_ratio"`
	Width        int                `json:"width"`
	Height       int                `json:"height"`
	FrameRate    float64            `json:"frame_rate"`
	BackgroundID string             `json:"background_id"`
	CameraPath   string             `json:"camera_path"`
	Duration     float64            `json:"duration"`
	TotalFrames  int                `json:"total_frames"`
	Frames       []FrameInstruction `json:"frames"`
	Warnings     []string           `json:"warnings,omitempty"`
}

// Resolver looks up an asset id against a registry. Resolve returns the
// asset handle, or ok=false when the id is unknown.
type Resolver interface {
	Resolve(id string) (handle string, ok bool)
}

// Assembler builds RenderPlans from scheduled timelines.
type Assembler struct {
	resolver Resolver
	logger   zerolog.Logger
}

// NewAssembler creates an Assembler backed by the given asset resolver.
func NewAssembler(resolver Resolver, logger zerolog.Logger) *Assembler {
	return &Assembler{
		resolver: resolver,
		logger:   logger.With().Str("component", "assembler").Logger(),
	}
}

// Assemble validates the visual config, resolves every cue payload to an
// asset handle, and converts cue times to frame ranges. Unresolvable
// payloads fall back to the configured default asset with a warning;
// an unsupported aspect ratio fails with ErrConfig.
func (a *Assembler) Assemble(tl *schedule.Timeline, cfg VisualConfig) (*RenderPlan, error) {
	res, ok := resolutions[cfg.AspectRatio]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported aspect ratio %q", ErrConfig, cfg.AspectRatio)
	}
	fps := cfg.FrameRate
	if fps <= 0 {
		fps = DefaultFrameRate
	}

	p := &RenderPlan{
		ID:           uuid.NewString(),
		AspectRatio:  cfg.AspectRatio,
		Width:        res[0],
		Height:       res[1],
		FrameRate:    fps,
		BackgroundID: cfg.BackgroundID,
		CameraPath:   cfg.CameraPath,
		Duration:     tl.Duration,
		TotalFrames:  frameAt(tl.Duration, fps),
		Frames:       make([]FrameInstruction, 0, len(tl.Cues)),
	}

	for _, c := range tl.Cues {
		asset, ok := a.resolver.Resolve(c.Payload)
		if !ok {
			warn := fmt.Sprintf("asset %q not found, substituting %q", c.Payload, cfg.DefaultAsset)
			p.Warnings = append(p.Warnings, warn)
			a.logger.Warn().Str("asset", c.Payload).Str("fallback", cfg.DefaultAsset).Msg("Unresolved asset id")
			asset = cfg.DefaultAsset
		}
		p.Frames = append(p.Frames, FrameInstruction{
			Channel:    c.Channel,
			Asset:      asset,
			StartFrame: frameAt(c.Start, fps),
			EndFrame:   frameAt(c.End, fps),
		})
	}

	a.logger.Debug().Str("plan_id", p.ID).Int("frames", len(p.Frames)).Int("warnings", len(p.Warnings)).Msg("Plan assembled")
	return p, nil
}

// frameAt converts a timestamp to the nearest frame index.
func frameAt(t, fps float64) int {
	return int(math.Round(t * fps))
}
