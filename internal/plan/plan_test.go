package plan

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cueflow/internal/cue"
	"github.com/normanking/cueflow/internal/schedule"
)

type mapResolver map[string]string

func (m mapResolver) Resolve(id string) (string, bool) {
	h, ok := m[id]
	return h, ok
}

func testTimeline() *schedule.Timeline {
	return &schedule.Timeline{
		Duration: 2.0,
		Cues: []schedule.ScheduledCue{
			{Cue: cue.Cue{Kind: cue.KindViseme, Payload: "viseme/aa", Start: 0.0, End: 0.5}, Channel: schedule.ChannelFace},
			{Cue: cue.Cue{Kind: cue.KindIdle, Payload: "idle/face", Start: 0.5, End: 2.0}, Channel: schedule.ChannelFace},
			{Cue: cue.Cue{Kind: cue.KindIdle, Payload: "idle/body", Start: 0.0, End: 2.0}, Channel: schedule.ChannelBody},
		},
	}
}

func TestAssemble(t *testing.T) {
	resolver := mapResolver{
		"viseme/aa": "assets/visemes/aa.anim",
		"idle/face": "assets/idle/face.anim",
		"idle/body": "assets/idle/body.anim",
	}
	a := NewAssembler(resolver, zerolog.Nop())

	p, err := a.Assemble(testTimeline(), VisualConfig{AspectRatio: "16:9"})
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, 1920, p.Width)
	assert.Equal(t, 1080, p.Height)
	assert.Equal(t, float64(DefaultFrameRate), p.FrameRate)
	assert.Equal(t, 48, p.TotalFrames)
	assert.Empty(t, p.Warnings)

	require.Len(t, p.Frames, 3)
	assert.Equal(t, "assets/visemes/aa.anim", p.Frames[0].Asset)
	assert.Equal(t, 0, p.Frames[0].StartFrame)
	assert.Equal(t, 12, p.Frames[0].EndFrame)
	assert.Equal(t, 12, p.Frames[1].StartFrame)
	assert.Equal(t, 48, p.Frames[1].EndFrame)
}

func TestAssembleAspectRatios(t *testing.T) {
	resolver := mapResolver{"viseme/aa": "x", "idle/face": "x", "idle/body": "x"}
	a := NewAssembler(resolver, zerolog.Nop())

	cases := []struct {
		ratio  string
		width  int
		height int
	}{
		{"16:9", 1920, 1080},
		{"9:16", 1080, 1920},
		{"1:1", 1080, 1080},
	}
	for _, tc := range cases {
		t.Run(tc.ratio, func(t *testing.T) {
			p, err := a.Assemble(testTimeline(), VisualConfig{AspectRatio: tc.ratio})
			require.NoError(t, err)
			assert.Equal(t, tc.width, p.Width)
			assert.Equal(t, tc.height, p.Height)
		})
	}
}

func TestAssembleInvalidAspectRatio(t *testing.T) {
	a := NewAssembler(mapResolver{}, zerolog.Nop())

	_, err := a.Assemble(testTimeline(), VisualConfig{AspectRatio: "4:3"})
	require.ErrorIs(t, err, ErrConfig)
}

func TestAssembleDefaultAssetSubstitution(t *testing.T) {
	resolver := mapResolver{
		"idle/face": "assets/idle/face.anim",
		"idle/body": "assets/idle/body.anim",
	}
	a := NewAssembler(resolver, zerolog.Nop())

	cfg := VisualConfig{AspectRatio: "1:1", DefaultAsset: "assets/fallback.anim"}
	p, err := a.Assemble(testTimeline(), cfg)
	require.NoError(t, err, "unresolved assets degrade, they do not fail")

	require.Len(t, p.Warnings, 1)
	assert.Contains(t, p.Warnings[0], "viseme/aa")
	assert.Equal(t, "assets/fallback.anim", p.Frames[0].Asset)
}

func TestAssembleCustomFrameRate(t *testing.T) {
	resolver := mapResolver{"viseme/aa": "x", "idle/face": "x", "idle/body": "x"}
	a := NewAssembler(resolver, zerolog.Nop())

	p, err := a.Assemble(testTimeline(), VisualConfig{AspectRatio: "16:9", FrameRate: 30})
	require.NoError(t, err)
	assert.Equal(t, 60, p.TotalFrames)
	assert.Equal(t, 15, p.Frames[0].EndFrame)
}
