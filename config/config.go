// Package config resolves the settings a recording session runs with.
// A session snapshot is taken at start and treated as read-only until
// the session terminates.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Transcription struct {
	ModelID              string  `toml:"model_id"`
	Language             string  `toml:"language"` // "" or "auto" = per-segment detection
	WordTimestamps       bool    `toml:"word_timestamps"`
	HallucinationSilence float64 `toml:"hallucination_silence_s"` // 0 disables the filter
	ConditionOnPrevious  bool    `toml:"condition_on_previous_text"`
}

type Segmentation struct {
	MinSilenceS  float64 `toml:"min_silence_s"`
	MinSegmentS  float64 `toml:"min_segment_s"`
	MaxSegmentS  float64 `toml:"max_segment_s"` // 0 = uncapped
	PaddingS     float64 `toml:"padding_s"`
	RMSThreshold float64 `toml:"rms_threshold"` // 0 = adaptive noise floor
}

type Pipeline struct {
	Concurrency     int    `toml:"concurrency"`
	FinalizeTimeout float64 `toml:"finalize_timeout_s"`
	Format          string `toml:"format"` // "wav" or "flac" audio artifact
}

type Config struct {
	Transcription Transcription `toml:"transcription"`
	Segmentation  Segmentation  `toml:"segmentation"`
	Pipeline      Pipeline      `toml:"pipeline"`
}

func Default() Config {
	return Config{
		Transcription: Transcription{
			ModelID:  "whisper-base-q5",
			Language: "auto",
		},
		Segmentation: Segmentation{
			MinSilenceS: 0.5,
			MinSegmentS: 1.0,
			MaxSegmentS: 0,
			PaddingS:    0.15,
		},
		Pipeline: Pipeline{
			Concurrency:     2,
			FinalizeTimeout: 30,
			Format:          "wav",
		},
	}
}

// BaseDir is where recordings, transcripts and models live.
func BaseDir() (string, error) {
	if env := os.Getenv("MURMUR_HOME"); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "murmur"), nil
}

func DefaultPath() (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "config.toml"), nil
}

// Load reads the config file, falling back to the .bak copy when the
// primary is corrupt, and to defaults when neither parses.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err != nil {
		return cfg.normalized(), nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err == nil {
		return cfg.normalized(), nil
	}
	bak := path + ".bak"
	if _, err := os.Stat(bak); err == nil {
		cfg = Default()
		if _, err := toml.DecodeFile(bak, &cfg); err == nil {
			return cfg.normalized(), nil
		}
	}
	return Default().normalized(), nil
}

// Save writes the config, keeping a .bak of the previous contents.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("config dir: %w", err)
	}
	if prev, err := os.ReadFile(path); err == nil {
		_ = os.WriteFile(path+".bak", prev, 0644)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config write: %w", err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

func (c Config) normalized() Config {
	if c.Transcription.Language == "auto" {
		c.Transcription.Language = ""
	}
	if c.Pipeline.Concurrency < 1 {
		c.Pipeline.Concurrency = Default().Pipeline.Concurrency
	}
	if c.Pipeline.FinalizeTimeout <= 0 {
		c.Pipeline.FinalizeTimeout = Default().Pipeline.FinalizeTimeout
	}
	switch c.Pipeline.Format {
	case "wav", "flac":
	default:
		c.Pipeline.Format = "wav"
	}
	if c.Segmentation.MinSilenceS <= 0 {
		c.Segmentation.MinSilenceS = Default().Segmentation.MinSilenceS
	}
	if c.Segmentation.MinSegmentS <= 0 {
		c.Segmentation.MinSegmentS = Default().Segmentation.MinSegmentS
	}
	return c
}
