// Package session drives one dictation take from first sample to
// persisted transcript: it feeds captured audio through the segmenter,
// fans segments out to the inference engine under a concurrency cap,
// and assembles results in speaking order.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"murmur/encoder"
	"murmur/log"
	"murmur/segment"
	"murmur/transcript"
	"murmur/whisper"
)

var ErrAlreadyActive = errors.New("a recording session is already active")

type State int

const (
	StateIdle State = iota
	StateRecording
	StateFinalizing
	StateDone
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

type Config struct {
	Language             string // empty = per-segment auto detect
	WordTimestamps       bool
	ConditionOnPrevious  bool
	HallucinationSilence float64
	Concurrency          int
	FinalizeTimeout      time.Duration
	Format               string // audio artifact format, "wav" or "flac"
	OutputDir            string
	Segmenter            segment.Config
}

// Result is what a finished session leaves behind.
type Result struct {
	ID             string
	State          State
	Text           string
	Languages      []string
	Gaps           []int
	AudioS         float64
	AudioPath      string
	TranscriptPath string
}

type Session struct {
	id     string
	cfg    Config
	engine whisper.Engine

	mu    sync.Mutex
	state State

	seg *segment.Segmenter
	enc encoder.Encoder
	asm *transcript.Assembler

	ctx    context.Context
	cancel context.CancelFunc
	sem    chan struct{}
	wg     sync.WaitGroup

	segCount  int
	originals map[int]string
}

func New(id string, engine whisper.Engine, cfg Config) (*Session, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 30 * time.Second
	}
	if cfg.Format == "" {
		cfg.Format = "wav"
	}
	enc, err := encoder.New(cfg.Format)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:        id,
		cfg:       cfg,
		engine:    engine,
		state:     StateIdle,
		seg:       segment.New(cfg.Segmenter),
		enc:       enc,
		asm:       transcript.NewAssembler(),
		ctx:       ctx,
		cancel:    cancel,
		sem:       make(chan struct{}, cfg.Concurrency),
		originals: make(map[int]string),
	}, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start moves the session into recording. Only valid from idle.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return fmt.Errorf("cannot start session in state %s", s.state)
	}
	s.state = StateRecording
	return nil
}

// Feed consumes captured samples. Calls outside the recording state are
// dropped so a late audio callback cannot corrupt a finished take.
func (s *Session) Feed(samples []int16) {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return
	}
	s.enc.EncodeBlock(samples)
	segs := s.seg.Feed(samples)
	for _, sg := range segs {
		s.dispatchLocked(sg)
	}
	s.mu.Unlock()
}

// Progress reports how many segments were dispatched to inference and
// how many have been released by the assembler.
func (s *Session) Progress() (dispatched, completed int) {
	s.mu.Lock()
	dispatched = s.segCount
	s.mu.Unlock()
	return dispatched, len(s.asm.Released())
}

// dispatchLocked hands one segment to a worker. Callers hold s.mu.
func (s *Session) dispatchLocked(sg segment.Segment) {
	s.segCount++
	s.wg.Add(1)
	go s.transcribeSegment(sg)
}

func (s *Session) transcribeSegment(sg segment.Segment) {
	defer s.wg.Done()

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-s.ctx.Done():
		s.asm.MarkFailed(sg.Index)
		return
	}

	wav := pcmToWAV(sg.Samples)
	start := time.Now()
	res, err := s.engine.Transcribe(s.ctx, wav, whisper.Options{
		Language:            s.cfg.Language,
		WordTimestamps:      s.cfg.WordTimestamps,
		ConditionOnPrevious: s.cfg.ConditionOnPrevious,
	})
	inferMs := float64(time.Since(start).Microseconds()) / 1000

	if err != nil {
		if s.ctx.Err() == nil {
			log.Errorf("segment %d inference: %v", sg.Index, err)
		}
		s.asm.MarkFailed(sg.Index)
		log.SegmentMetrics(s.id, sg.Index, "", sg.Duration(), inferMs, 0, true)
		return
	}

	// display text drops filtered words; Piece.Words keeps the raw
	// timestamped record for diagnostics
	text := res.Text
	kept := res.Words
	if len(res.Words) > 0 {
		kept = transcript.FilterHallucinations(res.Words, sg.Silence, s.cfg.HallucinationSilence)
		text = transcript.JoinWords(kept)
	}

	s.mu.Lock()
	s.originals[sg.Index] = res.Text
	s.mu.Unlock()

	s.asm.Accept(transcript.Piece{
		Index:    sg.Index,
		Text:     text,
		Language: res.Language,
		Words:    res.Words,
	})
	log.SegmentMetrics(s.id, sg.Index, res.Language, sg.Duration(), inferMs, len(kept), false)
}

// Stop finalizes the session: flushes the segmenter tail, waits for
// in-flight inference up to the configured timeout, and persists the
// audio and transcript artifacts. A timeout aborts stragglers and
// returns whatever assembled, wrapped in transcript.ErrIncomplete.
func (s *Session) Stop() (*Result, error) {
	s.mu.Lock()
	if s.state != StateRecording {
		st := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("cannot stop session in state %s", st)
	}
	s.state = StateFinalizing
	if tail := s.seg.Flush(); tail != nil {
		s.dispatchLocked(*tail)
	}
	expected := s.segCount
	audioS := float64(s.seg.TotalSamples()) / segment.SampleRate
	s.mu.Unlock()

	if !s.waitWorkers(s.cfg.FinalizeTimeout) {
		log.Warnf("finalize timed out after %s, aborting in-flight segments", s.cfg.FinalizeTimeout)
		s.cancel()
		s.wg.Wait()
	}

	// a cancel during the grace window wins over finalization
	s.mu.Lock()
	if s.state == StateCancelled {
		s.mu.Unlock()
		return &Result{ID: s.id, State: StateCancelled}, nil
	}
	s.mu.Unlock()

	asmRes, asmErr := s.asm.Finalize(expected)
	if asmErr != nil && !errors.Is(asmErr, transcript.ErrIncomplete) {
		asmErr = fmt.Errorf("assemble transcript: %w", asmErr)
	}

	result := &Result{
		ID:        s.id,
		Text:      asmRes.Text,
		Languages: asmRes.Languages,
		Gaps:      asmRes.Gaps,
		AudioS:    audioS,
	}

	// only a take where every segment's inference failed is a failure;
	// segments that succeeded with nothing said are ordinary gaps
	final := StateDone
	if expected > 0 && asmRes.Failures == expected {
		final = StateFailed
	}

	var tr *transcript.Transcript
	if final == StateDone && expected > 0 {
		tr = &transcript.Transcript{
			ID:           s.id,
			Text:         asmRes.Text,
			OriginalText: s.originalText(expected),
			Languages:    asmRes.Languages,
			Gaps:         asmRes.Gaps,
			AudioS:       audioS,
			CreatedAt:    time.Now().UTC(),
		}
	}

	// persist under the state lock: a cancel either lands before this
	// point and wins with no artifacts, or finds a terminal state
	s.mu.Lock()
	if s.state == StateCancelled {
		s.mu.Unlock()
		return &Result{ID: s.id, State: StateCancelled}, nil
	}
	// the audio artifact survives even a fully failed take
	if path, err := s.saveAudio(); err != nil {
		log.Errorf("save audio: %v", err)
	} else {
		result.AudioPath = path
	}
	if tr != nil {
		if path, err := transcript.Save(s.cfg.OutputDir, tr); err != nil {
			log.Errorf("save transcript: %v", err)
		} else {
			result.TranscriptPath = path
		}
	}
	s.state = final
	s.mu.Unlock()
	s.cancel()
	result.State = final

	if tr != nil {
		log.TranscriptionText(asmRes.Text)
	}
	log.SessionEnd(s.id, final.String(), asmRes.Segments, len(asmRes.Gaps), audioS)
	if final == StateFailed {
		return result, fmt.Errorf("%w: every segment failed", whisper.ErrInferenceFailed)
	}
	return result, asmErr
}

// Cancel abandons the take. In-flight inference is interrupted and its
// results discarded; no artifacts are written.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.state != StateRecording && s.state != StateFinalizing {
		s.mu.Unlock()
		return
	}
	s.state = StateCancelled
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	log.SessionEnd(s.id, StateCancelled.String(), 0, 0, float64(s.seg.TotalSamples())/segment.SampleRate)
}

func (s *Session) waitWorkers(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (s *Session) saveAudio() (string, error) {
	if err := s.enc.Close(); err != nil {
		return "", err
	}
	data := s.enc.Bytes()
	if s.enc.TotalFrames() == 0 {
		return "", nil
	}
	if err := os.MkdirAll(s.cfg.OutputDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(s.cfg.OutputDir, s.id+encoder.Ext(s.cfg.Format))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Session) originalText(expected int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out string
	for i := 0; i < expected; i++ {
		t, ok := s.originals[i]
		if !ok || t == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += strings.TrimSpace(t)
	}
	return out
}

func pcmToWAV(samples []int16) []byte {
	enc := encoder.NewWav()
	enc.EncodeBlock(samples)
	enc.Close()
	return enc.Bytes()
}
