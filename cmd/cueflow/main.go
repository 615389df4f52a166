// cueflow - audio-visual synchronization pipeline for text-to-video
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/normanking/cueflow/internal/assets"
	"github.com/normanking/cueflow/internal/bus"
	"github.com/normanking/cueflow/internal/cache"
	"github.com/normanking/cueflow/internal/config"
	"github.com/normanking/cueflow/internal/cue"
	"github.com/normanking/cueflow/internal/logging"
	"github.com/normanking/cueflow/internal/pipeline"
	"github.com/normanking/cueflow/internal/plan"
	"github.com/normanking/cueflow/internal/render"
	"github.com/normanking/cueflow/internal/schedule"
	"github.com/normanking/cueflow/internal/timing"
	"github.com/normanking/cueflow/internal/tts"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "cueflow",
		Short: "Turn narration text into frame-accurate render plans",
		Long: `cueflow synthesizes speech for a text, extracts word and phoneme
timings, plans and schedules animation cues, and assembles a render
plan ready for the external renderer.`,
		SilenceUsage: true,
	}

	root.AddCommand(newGenerateCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the cueflow version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("cueflow", version)
		},
	}
}

func newGenerateCmd() *cobra.Command {
	var (
		text        string
		language    string
		voice       string
		aspectRatio string
		output      string
		submit      bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a render plan for a text",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if aspectRatio != "" {
				cfg.Video.AspectRatio = aspectRatio
			}

			logger, closeLog, err := logging.New(&logging.Config{
				LogDir:  cfg.Log.Dir,
				Level:   cfg.Log.Level,
				Console: cfg.Log.Console,
			})
			if err != nil {
				return fmt.Errorf("init logging: %w", err)
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner, registry, err := buildRunner(cfg, logger)
			if err != nil {
				return err
			}
			if registry != nil {
				defer registry.Close()
			}

			utt := pipeline.Utterance{Text: text, Language: language, VoiceID: voice}
			visual := plan.VisualConfig{
				AspectRatio:  cfg.Video.AspectRatio,
				BackgroundID: cfg.Video.BackgroundID,
				CameraPath:   cfg.Video.CameraPath,
				FrameRate:    cfg.Video.FrameRate,
				DefaultAsset: cfg.Video.DefaultAsset,
			}

			p, err := runner.Run(ctx, utt, visual)
			if err != nil {
				return err
			}
			for _, w := range p.Warnings {
				logger.Warn().Str("plan_id", p.ID).Msg(w)
			}

			if output != "" {
				data, err := json.MarshalIndent(p, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(output, data, 0644); err != nil {
					return fmt.Errorf("write plan: %w", err)
				}
				logger.Info().Str("path", output).Msg("Plan written")
			}

			if submit {
				client := render.NewClient(&render.ClientConfig{
					ServerURL:      cfg.Renderer.ServerURL,
					Timeout:        cfg.Renderer.Timeout,
					RetryAttempts:  cfg.Renderer.RetryAttempts,
					RetryBaseDelay: cfg.Renderer.RetryBaseDelay,
				}, logger)

				job, err := client.Submit(ctx, p)
				if err != nil {
					return fmt.Errorf("submit plan: %w", err)
				}
				progress, err := client.WatchProgress(ctx, job.ID)
				if err != nil {
					return fmt.Errorf("watch progress: %w", err)
				}
				for ev := range progress {
					if ev.Err != nil {
						return ev.Err
					}
					switch ev.Type {
					case "progress":
						fmt.Printf("\rrendering %d/%d", ev.Frame, ev.Total)
					case "complete":
						fmt.Printf("\ndone: %s\n", ev.OutputID)
					case "failed":
						return fmt.Errorf("render failed: %s", ev.Message)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&text, "text", "t", "", "narration text (required)")
	cmd.Flags().StringVarP(&language, "language", "l", "en", "language tag")
	cmd.Flags().StringVar(&voice, "voice", "", "voice profile id")
	cmd.Flags().StringVar(&aspectRatio, "aspect-ratio", "", "16:9, 9:16 or 1:1 (overrides config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the plan JSON to a file")
	cmd.Flags().BoolVar(&submit, "submit", false, "hand the plan to the renderer and wait")
	cmd.MarkFlagRequired("text")

	return cmd
}

// buildRunner wires the pipeline from configuration.
func buildRunner(cfg *config.Config, logger zerolog.Logger) (*pipeline.Runner, *assets.Registry, error) {
	var registry *assets.Registry
	if cfg.Assets.ManifestPath != "" {
		r, err := assets.Load(cfg.Assets.ManifestPath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("load asset manifest: %w", err)
		}
		if cfg.Assets.Watch {
			if err := r.Watch(); err != nil {
				return nil, nil, fmt.Errorf("watch asset manifest: %w", err)
			}
		}
		registry = r
	}

	languages := make(map[string]timing.LanguageTiming, len(cfg.Timing.Languages))
	for lang, lt := range cfg.Timing.Languages {
		languages[lang] = timing.LanguageTiming{PerCharDuration: lt.PerCharDuration, WordGap: lt.WordGap}
	}

	profile := cue.DefaultProfile()
	if len(cfg.Cues.EmotionKeywords) > 0 {
		profile.EmotionKeywords = cfg.Cues.EmotionKeywords
	}
	if len(cfg.Cues.GestureTriggers) > 0 {
		profile.GestureTriggers = cfg.Cues.GestureTriggers
	}
	profile.Priorities = cue.PrioritiesFromOrder(cfg.Cues.PriorityOrder)
	if cfg.Cues.GestureDuration > 0 {
		profile.GestureDuration = cfg.Cues.GestureDuration
	}
	if cfg.Cues.GestureMin > 0 {
		profile.GestureMin = cfg.Cues.GestureMin
	}
	if cfg.Cues.GestureMax > 0 {
		profile.GestureMax = cfg.Cues.GestureMax
	}
	if cfg.Cues.ExpressionPad > 0 {
		profile.ExpressionPad = cfg.Cues.ExpressionPad
	}

	idlePoses := make(map[schedule.Channel]string, len(cfg.Cues.IdlePoses))
	for ch, pose := range cfg.Cues.IdlePoses {
		idlePoses[schedule.Channel(ch)] = pose
	}
	if len(idlePoses) == 0 {
		idlePoses = nil
	}

	var resolver plan.Resolver = passthroughResolver{}
	if registry != nil {
		resolver = registry
	}

	var store *cache.Store
	if cfg.Cache.Enabled {
		store = cache.NewStore(cfg.Cache.ByteBudget, logger)
	}

	provider := tts.NewHTTPProvider(&tts.HTTPConfig{
		ServiceURL:   cfg.TTS.ServiceURL,
		Timeout:      cfg.TTS.Timeout,
		DefaultVoice: cfg.TTS.DefaultVoice,
		DefaultSpeed: cfg.TTS.Speed,
	}, logger)

	events := bus.NewEventBus()
	events.SubscribeMultiple([]bus.EventType{
		bus.EventTypeRunStarted,
		bus.EventTypeSynthesisDone,
		bus.EventTypeTimingDone,
		bus.EventTypePlanningDone,
		bus.EventTypeScheduleDone,
		bus.EventTypeAssemblyDone,
		bus.EventTypeRunCompleted,
		bus.EventTypeRunFailed,
		bus.EventTypeCacheBypass,
	}, func(e bus.Event) {
		logger.Debug().Str("event", string(e.Type)).Fields(e.Data).Msg("Pipeline event")
	})

	deps := pipeline.Deps{
		TTS:       provider,
		Extractor: timing.NewExtractor(languages, logger),
		Planner:   cue.NewPlanner(profile, logger),
		Scheduler: schedule.NewScheduler(nil, idlePoses, logger),
		Assembler: plan.NewAssembler(resolver, logger),
		Store:     store,
		Bus:       events,
	}
	opts := pipeline.DefaultOptions()
	if cfg.Pipeline.ConcurrencyLimit > 0 {
		opts.ConcurrencyLimit = cfg.Pipeline.ConcurrencyLimit
	}
	if cfg.Pipeline.RetryAttempts > 0 {
		opts.RetryAttempts = cfg.Pipeline.RetryAttempts
	}
	if cfg.Pipeline.RetryBaseDelay > 0 {
		opts.RetryBaseDelay = cfg.Pipeline.RetryBaseDelay
	}

	return pipeline.NewRunner(deps, opts, logger), registry, nil
}

// passthroughResolver resolves every asset id to itself.
type passthroughResolver struct{}

func (passthroughResolver) Resolve(id string) (string, bool) { return id, true }
