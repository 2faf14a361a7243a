package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transcription.ModelID != "whisper-base-q5" {
		t.Errorf("ModelID = %q, want default", cfg.Transcription.ModelID)
	}
	if cfg.Pipeline.Concurrency != 2 {
		t.Errorf("Concurrency = %d, want 2", cfg.Pipeline.Concurrency)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	cfg.Transcription.ModelID = "whisper-small-q5"
	cfg.Transcription.Language = "de"
	cfg.Segmentation.MaxSegmentS = 30

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Transcription.ModelID != "whisper-small-q5" {
		t.Errorf("ModelID = %q", got.Transcription.ModelID)
	}
	if got.Transcription.Language != "de" {
		t.Errorf("Language = %q", got.Transcription.Language)
	}
	if got.Segmentation.MaxSegmentS != 30 {
		t.Errorf("MaxSegmentS = %v", got.Segmentation.MaxSegmentS)
	}
}

func TestLoadAutoLanguageNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[transcription]\nlanguage = \"auto\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transcription.Language != "" {
		t.Errorf("Language = %q, want empty for auto", cfg.Transcription.Language)
	}
}

func TestLoadCorruptFallsBackToBak(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("{{{not toml"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path+".bak", []byte("[transcription]\nmodel_id = \"whisper-tiny-q5\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transcription.ModelID != "whisper-tiny-q5" {
		t.Errorf("ModelID = %q, want value from .bak", cfg.Transcription.ModelID)
	}
}

func TestSaveKeepsBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	first := Default()
	first.Transcription.ModelID = "first"
	if err := Save(path, first); err != nil {
		t.Fatal(err)
	}
	second := Default()
	second.Transcription.ModelID = "second"
	if err := Save(path, second); err != nil {
		t.Fatal(err)
	}
	bak, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(bak), "first") {
		t.Errorf("backup missing previous contents: %q", bak)
	}
}
