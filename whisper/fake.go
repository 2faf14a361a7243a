package whisper

import (
	"context"
	"sync"
	"time"
)

// Fake replays scripted results in call order. Used by session tests
// and the headless test mode, where no real model is available.
type Fake struct {
	mu          sync.Mutex
	texts       []string
	errs        map[int]error // by call index
	Delay       time.Duration // simulated inference time per call
	Lang        string
	DefaultText string // returned for calls beyond the script
	calls       int
	closed      bool
}

func NewFake(texts ...string) *Fake {
	return &Fake{texts: texts, errs: make(map[int]error), Lang: "en"}
}

// FailCall makes the n-th Transcribe call (0-based) return err.
func (f *Fake) FailCall(n int, err error) {
	f.mu.Lock()
	f.errs[n] = err
	f.mu.Unlock()
}

func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *Fake) Transcribe(ctx context.Context, wav []byte, opts Options) (*Result, error) {
	f.mu.Lock()
	n := f.calls
	f.calls++
	err := f.errs[n]
	text := f.DefaultText
	if n < len(f.texts) {
		text = f.texts[n]
	}
	delay := f.Delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	lang := opts.Language
	if lang == "" {
		lang = f.Lang
	}
	res := &Result{Language: lang, Text: text}
	if opts.WordTimestamps && text != "" {
		res.Words = []Word{{Text: text, Start: 0, End: 0.5, Probability: 0.99}}
	}
	return res, nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}
