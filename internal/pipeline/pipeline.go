// Package pipeline wires the synthesis, timing, planning, scheduling,
// and assembly stages into the single entry point that turns an
// utterance into a render plan.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/normanking/cueflow/internal/bus"
	"github.com/normanking/cueflow/internal/cache"
	"github.com/normanking/cueflow/internal/cue"
	"github.com/normanking/cueflow/internal/plan"
	"github.com/normanking/cueflow/internal/schedule"
	"github.com/normanking/cueflow/internal/timing"
	"github.com/normanking/cueflow/internal/tts"
)

// Utterance is the immutable input unit.
type Utterance struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	VoiceID  string `json:"voice_id"`
}

// Deps are the collaborators a Runner drives. Store may be nil to
// disable caching, and Bus may be nil when nothing observes runs.
type Deps struct {
	TTS       tts.Provider
	Extractor *timing.Extractor
	Planner   *cue.Planner
	Scheduler *schedule.Scheduler
	Assembler *plan.Assembler
	Store     *cache.Store
	Bus       *bus.EventBus
}

// Options bounds runner-wide resources and retry behavior.
type Options struct {
	ConcurrencyLimit int
	RetryAttempts    int
	RetryBaseDelay   time.Duration
	ProfileVersion   string // part of every cache key; bump to invalidate
}

// DefaultOptions returns sensible defaults
func DefaultOptions() Options {
	return Options{
		ConcurrencyLimit: 4,
		RetryAttempts:    3,
		RetryBaseDelay:   500 * time.Millisecond,
		ProfileVersion:   "v1",
	}
}

// Runner executes pipeline runs. Independent runs proceed in parallel up
// to the concurrency limit; the stages within one run are sequential.
type Runner struct {
	deps   Deps
	opts   Options
	sem    *semaphore.Weighted
	logger zerolog.Logger
}

// NewRunner creates a Runner.
func NewRunner(deps Deps, opts Options, logger zerolog.Logger) *Runner {
	if opts.ConcurrencyLimit <= 0 {
		opts.ConcurrencyLimit = DefaultOptions().ConcurrencyLimit
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = DefaultOptions().RetryAttempts
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = DefaultOptions().RetryBaseDelay
	}
	return &Runner{
		deps:   deps,
		opts:   opts,
		sem:    semaphore.NewWeighted(int64(opts.ConcurrencyLimit)),
		logger: logger.With().Str("component", "pipeline").Logger(),
	}
}

// Run turns an utterance into a render plan. The result is cached under
// (utterance, visual config, profile version); repeated calls with the
// same inputs return the identical plan without recomputation. A cache
// failure is recovered by computing without the cache for that call.
func (r *Runner) Run(ctx context.Context, utt Utterance, visual plan.VisualConfig) (*plan.RenderPlan, error) {
	if strings.TrimSpace(utt.Text) == "" {
		return nil, stageErr(StagePlanning, fmt.Errorf("%w: empty text", cue.ErrPlanning))
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	start := time.Now()
	r.publish(bus.EventTypeRunStarted, map[string]any{"text": utt.Text, "language": utt.Language})
	compute := func(ctx context.Context) ([]byte, error) {
		p, err := r.compute(ctx, utt, visual)
		if err != nil {
			return nil, err
		}
		return json.Marshal(p)
	}

	var raw []byte
	var err error
	if r.deps.Store != nil {
		var key string
		key, err = cache.KeyOf("plan", utt, visual, r.opts.ProfileVersion)
		if err == nil {
			raw, err = r.deps.Store.GetOrCompute(ctx, key, compute)
		}
		if err != nil && errors.Is(err, cache.ErrStore) {
			r.logger.Warn().Err(err).Msg("Cache unavailable, computing without it")
			r.publish(bus.EventTypeCacheBypass, map[string]any{"error": err.Error()})
			raw, err = compute(ctx)
		}
	} else {
		raw, err = compute(ctx)
	}
	if err != nil {
		r.publish(bus.EventTypeRunFailed, map[string]any{"error": err.Error()})
		return nil, err
	}

	var p plan.RenderPlan
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("corrupt plan artifact: %w", err)
	}

	r.logger.Info().
		Str("plan_id", p.ID).
		Float64("duration", p.Duration).
		Int("warnings", len(p.Warnings)).
		Dur("elapsed", time.Since(start)).
		Msg("Pipeline run complete")
	r.publish(bus.EventTypeRunCompleted, map[string]any{
		"plan_id":  p.ID,
		"duration": p.Duration,
		"frames":   p.TotalFrames,
	})
	return &p, nil
}

// publish emits an event when a bus is attached.
func (r *Runner) publish(t bus.EventType, data map[string]any) {
	if r.deps.Bus == nil {
		return
	}
	r.deps.Bus.Publish(bus.Event{Type: t, Data: data})
}

// compute runs the four stages sequentially.
func (r *Runner) compute(ctx context.Context, utt Utterance, visual plan.VisualConfig) (*plan.RenderPlan, error) {
	result, err := r.synthesize(ctx, utt)
	if err != nil {
		return nil, stageErr(StageSynthesis, err)
	}
	r.publish(bus.EventTypeSynthesisDone, map[string]any{"provider": result.Provider, "duration": result.Track.Duration})

	marks, err := r.extractMarks(ctx, utt, result)
	if err != nil {
		return nil, stageErr(StageTiming, err)
	}
	r.publish(bus.EventTypeTimingDone, map[string]any{"marks": len(marks)})

	cues, err := r.deps.Planner.Plan(marks, utt.Text, result.Track.Duration)
	if err != nil {
		return nil, stageErr(StagePlanning, err)
	}
	r.publish(bus.EventTypePlanningDone, map[string]any{"cues": len(cues)})

	tl, err := r.deps.Scheduler.Schedule(cues, result.Track.Duration)
	if err != nil {
		// Scheduling failures are internal defects, not input errors.
		r.logger.Error().Err(err).Str("text", utt.Text).Msg("Scheduler invariant violation")
		return nil, stageErr(StageScheduling, err)
	}
	r.publish(bus.EventTypeScheduleDone, map[string]any{"cues": len(tl.Cues)})

	p, err := r.deps.Assembler.Assemble(tl, visual)
	if err != nil {
		return nil, stageErr(StageAssembly, err)
	}
	r.publish(bus.EventTypeAssemblyDone, map[string]any{"plan_id": p.ID, "frames": p.TotalFrames})
	return p, nil
}

// synthesize calls the TTS collaborator with bounded exponential backoff.
func (r *Runner) synthesize(ctx context.Context, utt Utterance) (*tts.Result, error) {
	req := &tts.SynthesizeRequest{
		Text:     utt.Text,
		Language: utt.Language,
		VoiceID:  utt.VoiceID,
	}

	var lastErr error
	delay := r.opts.RetryBaseDelay
	for attempt := 1; attempt <= r.opts.RetryAttempts; attempt++ {
		result, err := r.deps.TTS.Synthesize(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err
		r.logger.Warn().Err(err).Int("attempt", attempt).Int("max", r.opts.RetryAttempts).Msg("Synthesis attempt failed")

		if attempt < r.opts.RetryAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrBackend, lastErr)
}

// extractMarks runs the timing stage, cached under (text, voice,
// language) since alignment is a pure function of those inputs.
func (r *Runner) extractMarks(ctx context.Context, utt Utterance, result *tts.Result) ([]timing.Mark, error) {
	extract := func(context.Context) ([]byte, error) {
		marks, err := r.deps.Extractor.Extract(result.Track.Duration, utt.Text, utt.Language, result.Marks)
		if err != nil {
			return nil, err
		}
		return json.Marshal(marks)
	}

	var raw []byte
	var err error
	if r.deps.Store != nil {
		var key string
		key, err = cache.KeyOf("timing", utt, r.opts.ProfileVersion)
		if err == nil {
			raw, err = r.deps.Store.GetOrCompute(ctx, key, extract)
		}
		if err != nil && errors.Is(err, cache.ErrStore) {
			raw, err = extract(ctx)
		}
	} else {
		raw, err = extract(ctx)
	}
	if err != nil {
		return nil, err
	}

	var marks []timing.Mark
	if err := json.Unmarshal(raw, &marks); err != nil {
		return nil, fmt.Errorf("corrupt timing artifact: %w", err)
	}
	return marks, nil
}
