package session

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"murmur/segment"
	"murmur/transcript"
	"murmur/whisper"
)

func tone(durationMs int) []int16 {
	n := segment.SampleRate * durationMs / 1000
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(8000 * math.Sin(2*math.Pi*220*float64(i)/segment.SampleRate))
	}
	return out
}

func quiet(durationMs int) []int16 {
	return make([]int16, segment.SampleRate*durationMs/1000)
}

func testConfig(dir string) Config {
	return Config{
		OutputDir:       dir,
		Concurrency:     2,
		FinalizeTimeout: 5 * time.Second,
		Format:          "wav",
		Segmenter: segment.Config{
			MinSilenceS:  0.5,
			MinSegmentS:  1.0,
			PaddingS:     0.15,
			RMSThreshold: 0.01,
		},
	}
}

func feedAll(s *Session, samples []int16) {
	const chunk = 1024
	for i := 0; i < len(samples); i += chunk {
		end := min(i+chunk, len(samples))
		s.Feed(samples[i:end])
	}
}

func twoUtterances() []int16 {
	var input []int16
	input = append(input, tone(1500)...)
	input = append(input, quiet(800)...)
	input = append(input, tone(1500)...)
	return input
}

func TestSessionHappyPath(t *testing.T) {
	dir := t.TempDir()
	engine := whisper.NewFake("hello there", "general kenobi")
	s, err := New("take-1", engine, testConfig(dir))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	feedAll(s, twoUtterances())

	res, err := s.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateDone {
		t.Fatalf("state = %v", res.State)
	}
	if res.Text != "hello there general kenobi" {
		t.Errorf("text = %q", res.Text)
	}
	if len(res.Gaps) != 0 {
		t.Errorf("gaps = %v", res.Gaps)
	}

	if _, err := os.Stat(res.AudioPath); err != nil {
		t.Errorf("audio artifact: %v", err)
	}
	if filepath.Ext(res.AudioPath) != ".wav" {
		t.Errorf("audio path = %s", res.AudioPath)
	}
	tr, err := transcript.Load(res.TranscriptPath)
	if err != nil {
		t.Fatal(err)
	}
	if tr.ID != "take-1" || tr.Text != res.Text {
		t.Errorf("artifact = %+v", tr)
	}
}

func TestSessionFailedSegmentLeavesGap(t *testing.T) {
	engine := whisper.NewFake("first", "second")
	engine.FailCall(1, whisper.ErrInferenceFailed)

	s, err := New("take-2", engine, testConfig(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	feedAll(s, twoUtterances())

	res, err := s.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateDone {
		t.Fatalf("state = %v", res.State)
	}
	if res.Text != "first" {
		t.Errorf("text = %q", res.Text)
	}
	if len(res.Gaps) != 1 || res.Gaps[0] != 1 {
		t.Errorf("gaps = %v", res.Gaps)
	}
}

func TestSessionAllFailedKeepsAudio(t *testing.T) {
	engine := whisper.NewFake("a", "b")
	engine.FailCall(0, whisper.ErrInferenceFailed)
	engine.FailCall(1, whisper.ErrInferenceFailed)

	s, err := New("take-3", engine, testConfig(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	feedAll(s, twoUtterances())

	res, err := s.Stop()
	if !errors.Is(err, whisper.ErrInferenceFailed) {
		t.Fatalf("err = %v, want ErrInferenceFailed", err)
	}
	if res.State != StateFailed {
		t.Fatalf("state = %v", res.State)
	}
	if res.AudioPath == "" {
		t.Error("failed session should keep its audio")
	}
	if res.TranscriptPath != "" {
		t.Error("failed session should not write a transcript")
	}
}

func TestSessionEmptyTextSegmentsEndDone(t *testing.T) {
	// inference succeeding with nothing said is not a failure
	engine := whisper.NewFake("", "")
	s, err := New("take-8", engine, testConfig(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	feedAll(s, twoUtterances())

	res, err := s.Stop()
	if err != nil {
		t.Fatalf("err = %v, want nil for empty-but-successful segments", err)
	}
	if res.State != StateDone {
		t.Fatalf("state = %v, want done", res.State)
	}
	if res.Text != "" {
		t.Errorf("text = %q", res.Text)
	}
	if len(res.Gaps) != 2 {
		t.Errorf("gaps = %v, want both segments recorded as gaps", res.Gaps)
	}
	if res.TranscriptPath == "" {
		t.Error("done session should persist its transcript")
	}
}

func TestSessionCancelDuringFinalizeWritesNothing(t *testing.T) {
	dir := t.TempDir()
	engine := whisper.NewFake("a", "b")
	engine.Delay = 300 * time.Millisecond

	s, err := New("take-9", engine, testConfig(dir))
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	feedAll(s, twoUtterances())

	done := make(chan *Result, 1)
	go func() {
		res, _ := s.Stop()
		done <- res
	}()
	time.Sleep(50 * time.Millisecond)
	s.Cancel()

	res := <-done
	if res.State != StateCancelled {
		t.Fatalf("state = %v, want cancelled", res.State)
	}
	if res.AudioPath != "" || res.TranscriptPath != "" {
		t.Errorf("cancelled result carries artifact paths: %+v", res)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("cancel during finalize left artifacts: %v", entries)
	}
}

type ctxCaptureEngine struct {
	mu  sync.Mutex
	ctx context.Context
}

func (e *ctxCaptureEngine) Transcribe(ctx context.Context, wav []byte, opts whisper.Options) (*whisper.Result, error) {
	e.mu.Lock()
	e.ctx = ctx
	e.mu.Unlock()
	return &whisper.Result{Text: "ok", Language: "en"}, nil
}

func (e *ctxCaptureEngine) Close() error { return nil }

func TestSessionStopReleasesContext(t *testing.T) {
	engine := &ctxCaptureEngine{}
	s, err := New("take-10", engine, testConfig(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	feedAll(s, twoUtterances())

	res, err := s.Stop()
	if err != nil || res.State != StateDone {
		t.Fatalf("stop: %v %v", res, err)
	}
	engine.mu.Lock()
	ctx := engine.ctx
	engine.mu.Unlock()
	if ctx == nil {
		t.Fatal("engine never called")
	}
	if ctx.Err() == nil {
		t.Error("session context still live after a finished stop")
	}
}

func TestSessionCancelDiscardsEverything(t *testing.T) {
	dir := t.TempDir()
	engine := whisper.NewFake("discarded")
	engine.Delay = 200 * time.Millisecond

	s, err := New("take-4", engine, testConfig(dir))
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	feedAll(s, twoUtterances())
	s.Cancel()

	if st := s.State(); st != StateCancelled {
		t.Fatalf("state = %v", st)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("cancelled session left artifacts: %v", entries)
	}
	// feeding after cancel is a no-op
	s.Feed(tone(100))
}

type countingEngine struct {
	mu      sync.Mutex
	cur     int
	maxSeen int
	delay   time.Duration
}

func (e *countingEngine) Transcribe(ctx context.Context, wav []byte, opts whisper.Options) (*whisper.Result, error) {
	e.mu.Lock()
	e.cur++
	if e.cur > e.maxSeen {
		e.maxSeen = e.cur
	}
	e.mu.Unlock()

	select {
	case <-ctx.Done():
	case <-time.After(e.delay):
	}

	e.mu.Lock()
	e.cur--
	e.mu.Unlock()
	return &whisper.Result{Text: "x", Language: "en"}, nil
}

func (e *countingEngine) Close() error { return nil }

func TestSessionBoundsConcurrency(t *testing.T) {
	engine := &countingEngine{delay: 30 * time.Millisecond}
	cfg := testConfig(t.TempDir())
	cfg.Concurrency = 2
	cfg.Segmenter.MaxSegmentS = 0.5
	cfg.Segmenter.MinSegmentS = 0.25

	s, err := New("take-5", engine, cfg)
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	feedAll(s, tone(3000)) // forced boundaries produce a queue of segments

	if _, err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	if engine.maxSeen > 2 {
		t.Errorf("max concurrent inference = %d, cap is 2", engine.maxSeen)
	}
	if engine.maxSeen < 2 {
		t.Logf("note: only %d concurrent calls observed", engine.maxSeen)
	}
}

type blockingEngine struct{}

func (blockingEngine) Transcribe(ctx context.Context, wav []byte, opts whisper.Options) (*whisper.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingEngine) Close() error { return nil }

func TestSessionFinalizeTimeout(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.FinalizeTimeout = 100 * time.Millisecond

	s, err := New("take-6", blockingEngine{}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	feedAll(s, twoUtterances())

	start := time.Now()
	res, err := s.Stop()
	if time.Since(start) > 3*time.Second {
		t.Fatal("stop did not respect the finalize timeout")
	}
	if !errors.Is(err, whisper.ErrInferenceFailed) {
		t.Fatalf("err = %v", err)
	}
	if res.State != StateFailed {
		t.Errorf("state = %v", res.State)
	}
}

func TestSessionStateTransitions(t *testing.T) {
	s, err := New("take-7", whisper.NewFake(), testConfig(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Stop(); err == nil {
		t.Error("stop from idle should fail")
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err == nil {
		t.Error("double start should fail")
	}
}

func TestRegistrySingleActive(t *testing.T) {
	r := NewRegistry()
	a, _ := New("a", whisper.NewFake(), testConfig(t.TempDir()))
	b, _ := New("b", whisper.NewFake(), testConfig(t.TempDir()))

	if err := r.Activate(a); err != nil {
		t.Fatal(err)
	}
	if err := r.Activate(b); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("err = %v, want ErrAlreadyActive", err)
	}
	r.Deactivate(a)
	if err := r.Activate(b); err != nil {
		t.Fatal(err)
	}
	if r.Active() != b {
		t.Error("active slot should hold b")
	}
}
