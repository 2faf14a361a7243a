package main

import (
	"testing"
	"time"

	"murmur/audio"
	"murmur/beep"
	"murmur/hotkey"
	"murmur/segment"
	"murmur/session"
	"murmur/whisper"
)

func testSessionConfig(t *testing.T) session.Config {
	return session.Config{
		OutputDir:       t.TempDir(),
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

func dictationPCM() []byte {
	samples := append(genTone(220, 1500), genSilence(800)...)
	samples = append(samples, genTone(220, 1500)...)
	return samples
}

func startLoop(t *testing.T, engine whisper.Engine, results chan *session.Result) (*hotkey.FakeHotkey, *audio.FakeCapture) {
	t.Helper()
	beep.Disable()

	ctx := audio.NewFakeContextPCM(dictationPCM(), false)
	capture, err := ctx.NewCapture(nil, audio.CaptureConfig{
		SampleRate: audio.SampleRate,
		Channels:   audio.Channels,
	})
	if err != nil {
		t.Fatal(err)
	}

	hk := hotkey.NewFake()
	go eventLoop(hk.Presses(), capture, engine, testSessionConfig(t), "fake", "", func(res *session.Result) {
		results <- res
	})
	return hk, capture.(*audio.FakeCapture)
}

func TestEventLoopToggleRecording(t *testing.T) {
	engine := whisper.NewFake("hello there", "general kenobi")
	results := make(chan *session.Result, 1)
	hk, capture := startLoop(t, engine, results)

	hk.SimPress() // start
	select {
	case <-capture.AudioDone():
	case <-time.After(5 * time.Second):
		t.Fatal("recording never started")
	}
	time.Sleep(100 * time.Millisecond)
	hk.SimPress() // stop

	select {
	case res := <-results:
		if res == nil {
			t.Fatal("nil result")
		}
		if res.State != session.StateDone {
			t.Fatalf("state = %v", res.State)
		}
		if res.Text != "hello there general kenobi" {
			t.Errorf("text = %q", res.Text)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("take never finished")
	}
}

func TestEventLoopGraceCancel(t *testing.T) {
	engine := whisper.NewFake("never delivered")
	engine.Delay = 400 * time.Millisecond
	results := make(chan *session.Result, 1)
	hk, capture := startLoop(t, engine, results)

	hk.SimPress() // start
	select {
	case <-capture.AudioDone():
	case <-time.After(5 * time.Second):
		t.Fatal("recording never started")
	}
	hk.SimPress() // stop, finalize begins
	time.Sleep(100 * time.Millisecond)
	hk.SimPress() // within the grace window: discard

	select {
	case res := <-results:
		if res == nil {
			t.Fatal("nil result")
		}
		if res.State != session.StateCancelled {
			t.Fatalf("state = %v, want cancelled", res.State)
		}
		if res.Text != "" {
			t.Errorf("cancelled take produced text %q", res.Text)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("take never finished")
	}
}
