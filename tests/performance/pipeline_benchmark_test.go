package performance

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/normanking/cueflow/internal/cache"
	"github.com/normanking/cueflow/internal/cue"
	"github.com/normanking/cueflow/internal/pipeline"
	"github.com/normanking/cueflow/internal/plan"
	"github.com/normanking/cueflow/internal/schedule"
	"github.com/normanking/cueflow/internal/timing"
	"github.com/normanking/cueflow/internal/tts"
	"github.com/normanking/cueflow/tests/testutil"
)

type passResolver struct{}

func (passResolver) Resolve(id string) (string, bool) { return id, true }

func newBenchRunner(b *testing.B, serviceURL string, store *cache.Store) *pipeline.Runner {
	b.Helper()
	logger := zerolog.Nop()
	provider := tts.NewHTTPProvider(&tts.HTTPConfig{
		ServiceURL: serviceURL,
		Timeout:    30,
	}, logger)
	return pipeline.NewRunner(pipeline.Deps{
		TTS:       provider,
		Extractor: timing.NewExtractor(nil, logger),
		Planner:   cue.NewPlanner(nil, logger),
		Scheduler: schedule.NewScheduler(nil, nil, logger),
		Assembler: plan.NewAssembler(passResolver{}, logger),
		Store:     store,
	}, pipeline.DefaultOptions(), logger)
}

func BenchmarkPipelineRun(b *testing.B) {
	mockTTS := testutil.CreateMockSynthesisService(b)
	defer mockTTS.Close()

	utt := pipeline.Utterance{
		Text:     "Welcome back everyone. Today we look at something really important!",
		Language: "en",
		VoiceID:  "en-neutral",
	}
	visual := plan.VisualConfig{AspectRatio: "16:9", DefaultAsset: "idle/neutral"}
	ctx := context.Background()

	b.Run("uncached", func(b *testing.B) {
		r := newBenchRunner(b, mockTTS.URL, nil)
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if _, err := r.Run(ctx, utt, visual); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("cached", func(b *testing.B) {
		r := newBenchRunner(b, mockTTS.URL, cache.NewStore(1<<20, zerolog.Nop()))
		if _, err := r.Run(ctx, utt, visual); err != nil {
			b.Fatal(err)
		}
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if _, err := r.Run(ctx, utt, visual); err != nil {
				b.Fatal(err)
			}
		}
	})
}
