package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Transcript is the persisted artifact of a finished session. It lives
// next to the audio file under the same basename. OriginalText keeps
// the unfiltered engine output so filtering is never destructive;
// PolishedText stays null until some later cleanup pass fills it.
type Transcript struct {
	ID           string    `json:"id"`
	Text         string    `json:"text"`
	OriginalText string    `json:"original_text"`
	PolishedText *string   `json:"polished_text"`
	Languages    []string  `json:"languages,omitempty"`
	Gaps         []int     `json:"gaps,omitempty"`
	AudioS       float64   `json:"audio_s,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Save writes the transcript as <dir>/<id>.json via rename, so a crash
// mid-write never leaves a truncated artifact.
func Save(dir string, tr *Transcript) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create transcript dir: %w", err)
	}
	raw, err := json.MarshalIndent(tr, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal transcript: %w", err)
	}
	path := filepath.Join(dir, tr.ID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("install transcript: %w", err)
	}
	return path, nil
}

// Load reads a transcript artifact back.
func Load(path string) (*Transcript, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tr Transcript
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, fmt.Errorf("parse transcript %s: %w", filepath.Base(path), err)
	}
	return &tr, nil
}
