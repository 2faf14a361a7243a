// Package doctor runs environment checks and prints a readable report:
// microphone access, model cache, inference binary, hotkey permissions,
// clipboard round-trip.
package doctor

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/charmbracelet/lipgloss"

	"murmur/audio"
	"murmur/clipboard"
	"murmur/hotkey"
	"murmur/log"
	"murmur/model"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type check struct {
	name string
	run  func() (string, error)
}

// Run executes all checks and returns the number of failures.
func Run(modelDir, whisperBin string) int {
	checks := []check{
		{"log directory", checkLogDir},
		{"microphone", checkMicrophone},
		{"model cache", func() (string, error) { return checkModels(modelDir) }},
		{"whisper server", func() (string, error) { return checkWhisperBin(whisperBin) }},
		{"hotkey", hotkey.Diagnose},
		{"clipboard", checkClipboard},
	}

	failures := 0
	for _, c := range checks {
		detail, err := c.run()
		if err != nil {
			failures++
			fmt.Printf("%s %-16s %s\n", failStyle.Render("FAIL"), c.name, err)
			continue
		}
		fmt.Printf("%s %-16s %s\n", okStyle.Render("  OK"), c.name, dimStyle.Render(detail))
	}
	if failures == 0 {
		fmt.Println(okStyle.Render("\nall checks passed"))
	} else {
		fmt.Println(failStyle.Render(fmt.Sprintf("\n%d check(s) failed", failures)))
	}
	return failures
}

func checkLogDir() (string, error) {
	if err := log.EnsureDir(); err != nil {
		return "", err
	}
	return log.Dir(), nil
}

func checkMicrophone() (string, error) {
	ctx, err := audio.NewContext()
	if err != nil {
		return "", fmt.Errorf("audio backend: %w", err)
	}
	defer ctx.Close()
	devices, err := ctx.Devices()
	if err != nil {
		return "", fmt.Errorf("list capture devices: %w", err)
	}
	if len(devices) == 0 {
		return "", fmt.Errorf("no capture devices found")
	}
	return fmt.Sprintf("%d capture device(s)", len(devices)), nil
}

func checkModels(dir string) (string, error) {
	m := model.NewManager(dir)
	local := m.ListLocal()
	if len(local) == 0 {
		return "", fmt.Errorf("no models downloaded (run: murmur -download %s)", model.DefaultID)
	}
	return fmt.Sprintf("%d model(s) in %s", len(local), dir), nil
}

func checkWhisperBin(bin string) (string, error) {
	path, err := exec.LookPath(bin)
	if err != nil {
		return "", fmt.Errorf("%s not in PATH (install whisper.cpp, or set MURMUR_WHISPER_BIN)", bin)
	}
	return path, nil
}

func checkClipboard() (string, error) {
	saved, _ := clipboard.Read()
	probe := fmt.Sprintf("murmur-doctor-%d", os.Getpid())
	if err := clipboard.Copy(probe); err != nil {
		return "", err
	}
	got, err := clipboard.Read()
	if err != nil {
		return "", err
	}
	if got != probe {
		return "", fmt.Errorf("clipboard read back %q", got)
	}
	clipboard.Copy(saved)
	return "copy/read round-trip ok", nil
}
