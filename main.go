package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"murmur/audio"
	"murmur/beep"
	"murmur/clipboard"
	"murmur/config"
	"murmur/doctor"
	"murmur/hotkey"
	"murmur/log"
	"murmur/model"
	"murmur/segment"
	"murmur/session"
	"murmur/shutdown"
	"murmur/transcript"
	"murmur/whisper"
)

var version = "dev"

// pressing the hotkey again this soon after stopping discards the take
const stopCancelGrace = 700 * time.Millisecond

var autoPaste bool

var shutdownOnce sync.Once

func gracefulShutdown(cleanup func()) {
	shutdownOnce.Do(func() {
		if cleanup != nil {
			cleanup()
		}
		log.Close()
		if tuiProgram != nil {
			tuiProgram.Quit()
		}
		os.Exit(0)
	})
}

func main() {
	run()
}

func run() {
	configFlag := flag.String("config", "", "Config file path (default: ~/murmur/config.toml)")
	modelFlag := flag.String("model", "", "Model ID (see -models)")
	langFlag := flag.String("lang", "", "Force language code (e.g. en, de). Empty = per-segment auto-detect")
	setupFlag := flag.Bool("setup", false, "Select microphone device interactively")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	formatFlag := flag.String("format", "", "Audio artifact format: wav or flac")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	doctorFlag := flag.Bool("doctor", false, "Run environment checks and exit")
	modelsFlag := flag.Bool("models", false, "List known models and their cache state")
	downloadFlag := flag.String("download", "", "Download a model and exit")
	deleteModelFlag := flag.String("delete-model", "", "Delete a cached model and exit")
	logPathFlag := flag.String("logpath", "", "Log directory path (default: OS-specific location)")
	autoPasteFlag := flag.Bool("autopaste", true, "Paste the transcript into the focused window")
	quietFlag := flag.Bool("quiet", false, "Disable audible cues")
	testFlag := flag.Bool("test", false, "Headless test mode (stdin-driven, replays a WAV file)")
	tuiFlag := flag.Bool("tui", true, "Run with terminal UI")
	flag.Parse()

	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	if crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if *versionFlag {
		fmt.Printf("murmur %s\n", version)
		os.Exit(0)
	}

	configPath := *configFlag
	if configPath == "" {
		configPath, err = config.DefaultPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *modelFlag != "" {
		cfg.Transcription.ModelID = *modelFlag
	}
	if *langFlag != "" {
		cfg.Transcription.Language = *langFlag
		if cfg.Transcription.Language == "auto" {
			cfg.Transcription.Language = ""
		}
	}
	if *formatFlag != "" {
		cfg.Pipeline.Format = *formatFlag
	}
	switch cfg.Pipeline.Format {
	case "wav", "flac":
	default:
		fmt.Printf("Error: unknown format %q (use wav or flac)\n", cfg.Pipeline.Format)
		os.Exit(1)
	}

	baseDir, err := config.BaseDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	modelDir := filepath.Join(baseDir, "models")
	outputDir := filepath.Join(baseDir, "recordings")

	if *doctorFlag {
		whisperBin := os.Getenv("MURMUR_WHISPER_BIN")
		if whisperBin == "" {
			whisperBin = "whisper-server"
		}
		os.Exit(doctor.Run(modelDir, whisperBin))
	}

	mgr := model.NewManager(modelDir)
	if *modelsFlag {
		listModels(mgr)
		os.Exit(0)
	}
	if *deleteModelFlag != "" {
		if err := mgr.Delete(*deleteModelFlag); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("deleted %s\n", *deleteModelFlag)
		os.Exit(0)
	}
	if *downloadFlag != "" {
		mgr.Progress = printDownloadProgress
		path, err := mgr.EnsureReady(context.Background(), *downloadFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\n%s ready at %s\n", *downloadFlag, path)
		os.Exit(0)
	}

	autoPaste = *autoPasteFlag
	if *quietFlag {
		beep.Disable()
	}

	sessionCfg := session.Config{
		Language:             cfg.Transcription.Language,
		WordTimestamps:       cfg.Transcription.WordTimestamps,
		ConditionOnPrevious:  cfg.Transcription.ConditionOnPrevious,
		HallucinationSilence: cfg.Transcription.HallucinationSilence,
		Concurrency:          cfg.Pipeline.Concurrency,
		FinalizeTimeout:      time.Duration(cfg.Pipeline.FinalizeTimeout * float64(time.Second)),
		Format:               cfg.Pipeline.Format,
		OutputDir:            outputDir,
		Segmenter:            segmentConfig(cfg),
	}

	if *testFlag {
		args := flag.Args()
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "Usage: murmur -test <wav-file>")
			os.Exit(1)
		}
		runTestMode(args[0], sessionCfg)
		return
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}

	// model first: without it there is nothing to dictate into
	modelID := cfg.Transcription.ModelID
	var lastDownloadLog time.Time
	mgr.Progress = func(downloaded, total int64, resumed bool) {
		tuiSend(DownloadMsg{Downloaded: downloaded, Total: total})
		if time.Since(lastDownloadLog) >= time.Second {
			lastDownloadLog = time.Now()
			log.ModelDownload(modelID, downloaded, total, resumed)
		}
	}
	fmt.Printf("preparing model %s...\n", modelID)
	modelPath, err := mgr.EnsureReady(context.Background(), modelID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	mgr.Acquire(modelID)
	mgr.MarkUsed(modelID)
	if info, err := os.Stat(modelPath); err == nil {
		log.ModelReady(modelID, info.Size())
	}

	engine := whisper.NewServer(modelPath)
	if err := engine.Start(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting inference server: %v\n", err)
		os.Exit(1)
	}

	ctx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Printf("Error initializing audio: %v\n", err)
		os.Exit(1)
	}
	defer ctx.Close()

	var selectedDevice *audio.DeviceInfo
	if *deviceFlag != "" {
		if devices, err := ctx.Devices(); err == nil {
			for i := range devices {
				if devices[i].Name == *deviceFlag {
					selectedDevice = &devices[i]
					break
				}
			}
		}
	} else if *setupFlag {
		selectedDevice, err = audio.SelectDevice(ctx)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v (using default)\n", err)
			selectedDevice = nil
		}
	}

	capture, err := ctx.NewCapture(selectedDevice, audio.CaptureConfig{
		SampleRate: audio.SampleRate,
		Channels:   audio.Channels,
	})
	if err != nil {
		log.Errorf("capture device init error: %v", err)
		fmt.Printf("Error initializing capture device: %v\n", err)
		os.Exit(1)
	}
	defer capture.Close()

	if !*tuiFlag {
		tuiReadyOnce.Do(func() { close(tuiReady) })
	} else {
		tuiMu.Lock()
		tuiProgram = NewTUIProgram()
		tuiMu.Unlock()
		go func() {
			if _, err := tuiProgram.Run(); err != nil {
				log.Errorf("TUI error: %v", err)
				os.Exit(1)
			}
			gracefulShutdown(func() { engine.Close(); mgr.Release(modelID) })
		}()
		<-tuiReady
	}

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		gracefulShutdown(func() { engine.Close(); mgr.Release(modelID) })
	}()

	hk := hotkey.New()
	if err := hk.Register(); err != nil {
		log.Errorf("hotkey register error: %v", err)
		fmt.Printf("Error registering hotkey: %v\n", err)
		os.Exit(1)
	}
	defer hk.Unregister()

	tuiSend(ModeLineMsg{Text: modeLine(modelID, cfg)})
	log.SessionStart("app", modelID, cfg.Transcription.Language)

	eventLoop(hk.Presses(), capture, engine, sessionCfg, modelID, cfg.Transcription.Language, nil)
}

func segmentConfig(cfg config.Config) segment.Config {
	return segment.Config{
		MinSilenceS:  cfg.Segmentation.MinSilenceS,
		MinSegmentS:  cfg.Segmentation.MinSegmentS,
		MaxSegmentS:  cfg.Segmentation.MaxSegmentS,
		PaddingS:     cfg.Segmentation.PaddingS,
		RMSThreshold: cfg.Segmentation.RMSThreshold,
	}
}

func modeLine(modelID string, cfg config.Config) string {
	lang := cfg.Transcription.Language
	if lang == "" {
		lang = "auto"
	}
	return fmt.Sprintf("[%s | %s | %s]", modelID, lang, cfg.Pipeline.Format)
}

func listModels(mgr *model.Manager) {
	for _, m := range model.Catalog() {
		marker := " "
		if m.ID == model.DefaultID {
			marker = "*"
		}
		fmt.Printf("%s %-22s %-20s %6d MB  %s\n",
			marker, m.ID, m.Name, m.SizeBytes/(1024*1024), mgr.State(m.ID))
	}
}

func printDownloadProgress(downloaded, total int64, resumed bool) {
	if total <= 0 {
		fmt.Fprintf(os.Stderr, "\r  %d KB", downloaded/1024)
		return
	}
	pct := float64(downloaded) / float64(total) * 100
	fmt.Fprintf(os.Stderr, "\r  %.0f%% (%d / %d MB)", pct, downloaded/(1024*1024), total/(1024*1024))
}

// eventLoop owns take lifecycle: one hotkey press starts recording, the
// next stops and finalizes, a quick third press during the grace window
// discards the take.
func eventLoop(presses <-chan struct{}, capture audio.CaptureDevice, engine whisper.Engine, sessionCfg session.Config, modelID, language string, onFinish func(*session.Result)) {
	registry := session.NewRegistry()
	takeDone := make(chan *session.Result, 1)

	var current *session.Session
	var stopTake func() *session.Result
	var stoppedAt time.Time

	for {
		select {
		case <-presses:
			switch {
			case current == nil:
				sess, stop, err := startTake(registry, capture, engine, sessionCfg, modelID, language, takeDone)
				if err != nil {
					log.Errorf("start take: %v", err)
					logToTUI("Error: %v", err)
					beep.Error()
					continue
				}
				current, stopTake = sess, stop
			case current.State() == session.StateRecording:
				stoppedAt = time.Now()
				stop := stopTake
				go func() {
					takeDone <- stop()
				}()
			case current.State() == session.StateFinalizing && time.Since(stoppedAt) <= stopCancelGrace:
				log.Info("take_cancelled")
				current.Cancel()
				beep.Error()
			}

		case res := <-takeDone:
			finishTake(res)
			registry.Deactivate(current)
			current, stopTake = nil, nil
			if onFinish != nil {
				onFinish(res)
			}
		}
	}
}

// startTake wires a capture device to a new session and returns a stop
// function that finalizes the take.
func startTake(registry *session.Registry, capture audio.CaptureDevice, engine whisper.Engine, sessionCfg session.Config, modelID, language string, takeDone chan<- *session.Result) (*session.Session, func() *session.Result, error) {
	id := time.Now().Format("20060102-150405")
	sess, err := session.New(id, engine, sessionCfg)
	if err != nil {
		return nil, nil, err
	}
	if err := registry.Activate(sess); err != nil {
		return nil, nil, err
	}
	if err := sess.Start(); err != nil {
		registry.Deactivate(sess)
		return nil, nil, err
	}

	vp, err := newVADProcessor()
	if err != nil {
		registry.Deactivate(sess)
		return nil, nil, fmt.Errorf("VAD init: %w", err)
	}

	log.SessionStart(id, modelID, language)
	log.Info("recording_device: " + capture.DeviceName())
	tuiSend(RecordingStartMsg{})
	beep.Start()

	capture.SetCallback(func(data []byte, frameCount uint32) {
		if len(data) < 2 {
			return
		}
		samples := make([]int16, len(data)/2)
		var sumSquares float64
		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
			normalized := float64(samples[i]) / 32768.0
			sumSquares += normalized * normalized
		}
		sess.Feed(samples)
		vp.Process(data)
		tuiSend(AudioLevelMsg{Level: math.Sqrt(sumSquares / float64(len(samples)))})
	})
	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		sess.Cancel()
		registry.Deactivate(sess)
		return nil, nil, err
	}

	recordStart := time.Now()
	monitorStop := make(chan struct{})
	var stopOnce sync.Once

	stop := func() *session.Result {
		var res *session.Result
		stopOnce.Do(func() {
			close(monitorStop)
			capture.Stop()
			capture.ClearCallback()
			log.Info("recording_stop")
			tuiSend(FinalizingMsg{})
			beep.Stop()
			r, err := sess.Stop()
			if err != nil && !errors.Is(err, transcript.ErrIncomplete) {
				log.Errorf("finalize: %v", err)
			}
			res = r
		})
		return res
	}

	// silence monitor: warn on dead air, stop the take on 30s of it
	go func() {
		mon := newSilenceMonitor()
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorStop:
				return
			case <-ticker.C:
				tuiSend(RecordingTickMsg{Duration: time.Since(recordStart).Seconds()})
				dispatched, completed := sess.Progress()
				tuiSend(SegmentMsg{Done: completed, Total: dispatched})
				switch mon.Tick(vp.HasSpeechTick()) {
				case SilenceWarn, SilenceRepeat:
					log.Info("no_voice_warning")
					tuiSend(WarningMsg{Text: "no voice detected"})
					beep.Error()
				case SilenceWarnClear:
					tuiSend(WarningClearMsg{})
				case SilenceAutoStop:
					log.Info("silence_auto_stop")
					go func() {
						takeDone <- stop()
					}()
					return
				}
			}
		}
	}()

	return sess, stop, nil
}

func finishTake(res *session.Result) {
	if res == nil {
		return
	}
	switch res.State {
	case session.StateCancelled:
		tuiSend(RecordingDoneMsg{Text: "(discarded)"})
		return
	case session.StateFailed:
		tuiSend(RecordingDoneMsg{Text: "(transcription failed, audio kept)"})
		logToTUI("audio kept at %s", res.AudioPath)
		beep.Error()
		return
	}

	display := res.Text
	if display == "" {
		display = "(no speech detected)"
	}
	tuiSend(RecordingDoneMsg{Text: display})

	if res.Text != "" && autoPaste {
		if err := clipboard.Deliver(res.Text); err != nil {
			log.Warnf("paste failed, text is on the clipboard: %v", err)
		}
	} else if res.Text != "" {
		if err := clipboard.Copy(res.Text); err != nil {
			log.Warnf("clipboard copy failed: %v", err)
		}
	}
}
