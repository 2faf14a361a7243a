package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"murmur/audio"
	"murmur/beep"
	"murmur/hotkey"
	"murmur/log"
	"murmur/session"
	"murmur/whisper"
)

// Headless test mode: replays a WAV file through the fake capture
// device and drives the event loop from stdin. Inference runs on the
// fake engine so no model or GPU is needed.
//
// Commands: PRESS, WAIT, WAIT_AUDIO_DONE, SLEEP <ms>, QUIT.
func runTestMode(wavPath string, sessionCfg session.Config) {
	beep.Disable()
	autoPaste = false

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	fakeCtx, err := audio.NewFakeContext(wavPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		os.Exit(1)
	}
	capture, err := fakeCtx.NewCapture(nil, audio.CaptureConfig{
		SampleRate: audio.SampleRate,
		Channels:   audio.Channels,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating capture: %v\n", err)
		os.Exit(1)
	}
	defer capture.Close()
	fakeCapture := capture.(*audio.FakeCapture)

	engine := whisper.NewFake()
	engine.DefaultText = os.Getenv("MURMUR_TEST_TEXT")
	if engine.DefaultText == "" {
		engine.DefaultText = "test transcription"
	}

	hk := hotkey.NewFake()
	takeFinished := make(chan struct{}, 1)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			cmd := strings.TrimSpace(scanner.Text())
			switch cmd {
			case "PRESS":
				hk.SimPress()
			case "WAIT":
				<-takeFinished
			case "WAIT_AUDIO_DONE":
				<-fakeCapture.AudioDone()
			case "QUIT":
				os.Exit(0)
			default:
				if ms, ok := strings.CutPrefix(cmd, "SLEEP "); ok {
					if n, err := strconv.Atoi(ms); err == nil {
						time.Sleep(time.Duration(n) * time.Millisecond)
					}
				}
			}
		}
		os.Exit(0)
	}()

	tuiReadyOnce.Do(func() { close(tuiReady) })
	eventLoop(hk.Presses(), capture, engine, sessionCfg, "fake", "", func(res *session.Result) {
		if res != nil {
			fmt.Printf("RESULT %s %q\n", res.State, res.Text)
		}
		select {
		case takeFinished <- struct{}{}:
		default:
		}
	})
}
