// Package config provides configuration management for cueflow
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	TTS      TTSConfig      `mapstructure:"tts"`
	Renderer RendererConfig `mapstructure:"renderer"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Timing   TimingConfig   `mapstructure:"timing"`
	Cues     CueConfig      `mapstructure:"cues"`
	Video    VideoConfig    `mapstructure:"video"`
	Assets   AssetsConfig   `mapstructure:"assets"`
	Log      LogConfig      `mapstructure:"log"`
}

// TTSConfig configures the speech synthesis backend
type TTSConfig struct {
	ServiceURL   string  `mapstructure:"service_url"`
	Timeout      int     `mapstructure:"timeout_sec"`
	DefaultVoice string  `mapstructure:"default_voice"`
	Speed        float64 `mapstructure:"speed"`
}

// RendererConfig configures the external renderer hand-off
type RendererConfig struct {
	ServerURL      string        `mapstructure:"server_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
}

// PipelineConfig bounds pipeline-wide resources
type PipelineConfig struct {
	ConcurrencyLimit int           `mapstructure:"concurrency_limit"`
	RetryAttempts    int           `mapstructure:"retry_attempts"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay"`
}

// CacheConfig configures the artifact store
type CacheConfig struct {
	Enabled    bool  `mapstructure:"enabled"`
	ByteBudget int64 `mapstructure:"byte_budget"`
}

// TimingConfig configures the heuristic aligner per language
type TimingConfig struct {
	Languages map[string]LanguageTiming `mapstructure:"languages"`
}

// LanguageTiming holds per-language alignment constants
type LanguageTiming struct {
	PerCharDuration float64 `mapstructure:"per_char_duration"`
	WordGap         float64 `mapstructure:"word_gap"`
}

// CueConfig configures cue planning and scheduling
type CueConfig struct {
	EmotionKeywords map[string]string `mapstructure:"emotion_keywords"`
	GestureTriggers map[string]string `mapstructure:"gesture_triggers"`
	PriorityOrder   []string          `mapstructure:"priority_order"` // highest first
	GestureDuration float64           `mapstructure:"gesture_duration"`
	GestureMin      float64           `mapstructure:"gesture_min"`
	GestureMax      float64           `mapstructure:"gesture_max"`
	ExpressionPad   float64           `mapstructure:"expression_pad"`
	IdlePoses       map[string]string `mapstructure:"idle_poses"` // per channel
}

// VideoConfig configures the visual output
type VideoConfig struct {
	AspectRatio  string  `mapstructure:"aspect_ratio"` // 16:9, 9:16, 1:1
	FrameRate    float64 `mapstructure:"frame_rate"`
	BackgroundID string  `mapstructure:"background_id"`
	CameraPath   string  `mapstructure:"camera_path"`
	DefaultAsset string  `mapstructure:"default_asset"`
}

// AssetsConfig locates the asset manifest
type AssetsConfig struct {
	ManifestPath string `mapstructure:"manifest_path"`
	Watch        bool   `mapstructure:"watch"`
}

// LogConfig configures logging output
type LogConfig struct {
	Level   string `mapstructure:"level"`
	Dir     string `mapstructure:"dir"` // log file directory, empty disables file output
	Console bool   `mapstructure:"console"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		TTS: TTSConfig{
			ServiceURL:   "http://localhost:8899",
			Timeout:      30,
			DefaultVoice: "en-neutral",
			Speed:        1.0,
		},
		Renderer: RendererConfig{
			ServerURL:      "http://localhost:9090",
			Timeout:        120 * time.Second,
			RetryAttempts:  3,
			RetryBaseDelay: 500 * time.Millisecond,
		},
		Pipeline: PipelineConfig{
			ConcurrencyLimit: 4,
			RetryAttempts:    3,
			RetryBaseDelay:   500 * time.Millisecond,
		},
		Cache: CacheConfig{
			Enabled:    true,
			ByteBudget: 64 << 20, // 64 MiB
		},
		Timing: TimingConfig{
			Languages: map[string]LanguageTiming{
				"en": {PerCharDuration: 0.075, WordGap: 0.08},
				"hi": {PerCharDuration: 0.095, WordGap: 0.10},
			},
		},
		Cues: CueConfig{
			PriorityOrder:   []string{"expression", "gesture", "viseme", "idle"},
			GestureDuration: 0.35,
			GestureMin:      0.3,
			GestureMax:      1.2,
			ExpressionPad:   0.2,
			IdlePoses: map[string]string{
				"face": "idle/face",
				"body": "idle/body",
			},
		},
		Video: VideoConfig{
			AspectRatio:  "16:9",
			FrameRate:    24,
			BackgroundID: "background/studio",
			CameraPath:   "camera/static",
			DefaultAsset: "idle/neutral",
		},
		Assets: AssetsConfig{
			ManifestPath: "",
			Watch:        false,
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Set config paths
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return cfg, err
	}

	configDir := filepath.Join(homeDir, ".cueflow")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("CUEFLOW")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(homeDir, ".cueflow")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("tts", cfg.TTS)
	viper.Set("renderer", cfg.Renderer)
	viper.Set("pipeline", cfg.Pipeline)
	viper.Set("cache", cfg.Cache)
	viper.Set("timing", cfg.Timing)
	viper.Set("cues", cfg.Cues)
	viper.Set("video", cfg.Video)
	viper.Set("assets", cfg.Assets)
	viper.Set("log", cfg.Log)

	configPath := filepath.Join(configDir, "config.yaml")
	return viper.WriteConfigAs(configPath)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".cueflow"), nil
}
