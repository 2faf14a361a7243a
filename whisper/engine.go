// Package whisper runs speech inference against a local whisper.cpp
// server. Each request carries one audio segment and returns text with
// per-word timing, so segments can be processed independently and in
// parallel.
package whisper

import (
	"context"
	"errors"
)

var (
	ErrModelUnavailable = errors.New("speech model unavailable")
	ErrInferenceFailed  = errors.New("inference failed")
)

// Word is one recognized word with timing relative to the segment audio.
type Word struct {
	Text        string
	Start       float64
	End         float64
	Probability float64
}

// Result is the transcription of a single audio segment.
type Result struct {
	Language string  // detected (or forced) language code
	Text     string
	Words    []Word
	AudioS   float64 // audio duration as reported by the engine
}

// Options control a single inference request. An empty Language asks
// the engine to detect it per segment. By default no context is carried
// between segments; each one is transcribed cold so one bad segment
// cannot poison the rest.
type Options struct {
	Language            string
	WordTimestamps      bool
	ConditionOnPrevious bool
}

// Engine transcribes WAV-encoded segment audio. Implementations must be
// safe for concurrent Transcribe calls.
type Engine interface {
	Transcribe(ctx context.Context, wav []byte, opts Options) (*Result, error)
	Close() error
}
