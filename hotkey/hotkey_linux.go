//go:build linux

package hotkey

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Raw evdev key codes. Reading /dev/input directly works on both X11
// and Wayland, where no portable global-shortcut API exists.
const (
	evKey      = 1
	keyPress   = 1
	keyRelease = 0
	codeLCtrl  = 29
	codeRCtrl  = 97
	codeLShift = 42
	codeRShift = 54
	codeSpace  = 57

	eventSize = 24
)

type evdevHotkey struct {
	presses chan struct{}
	files   []*os.File
	stop    chan struct{}
	once    sync.Once
}

func New() Hotkey {
	return &evdevHotkey{presses: make(chan struct{}, 1)}
}

func (h *evdevHotkey) Register() error {
	devices, err := keyboardDevices()
	if err != nil {
		return fmt.Errorf("scan input devices: %w", err)
	}
	if len(devices) == 0 {
		return fmt.Errorf("no keyboard devices found (is the user in the 'input' group?)")
	}

	h.stop = make(chan struct{})
	for _, path := range devices {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		h.files = append(h.files, f)
		go h.watch(f)
	}
	if len(h.files) == 0 {
		return fmt.Errorf("cannot open any keyboard device (run: sudo usermod -aG input $USER, then re-login)")
	}
	return nil
}

func (h *evdevHotkey) watch(f *os.File) {
	buf := make([]byte, eventSize*16)
	var ctrl, shift, space bool

	for {
		select {
		case <-h.stop:
			return
		default:
		}

		n, err := f.Read(buf)
		if err != nil {
			return
		}
		for i := 0; i+eventSize <= n; i += eventSize {
			if binary.LittleEndian.Uint16(buf[i+16:]) != evKey {
				continue
			}
			code := binary.LittleEndian.Uint16(buf[i+18:])
			value := int32(binary.LittleEndian.Uint32(buf[i+20:]))
			pressed := value == keyPress
			released := value == keyRelease

			switch code {
			case codeLCtrl, codeRCtrl:
				ctrl = pressed || (!released && ctrl)
			case codeLShift, codeRShift:
				shift = pressed || (!released && shift)
			case codeSpace:
				if pressed && !space && ctrl && shift {
					space = true
					select {
					case h.presses <- struct{}{}:
					default:
					}
				} else if released {
					space = false
				}
			}
		}
	}
}

func (h *evdevHotkey) Unregister() {
	h.once.Do(func() {
		if h.stop != nil {
			close(h.stop)
		}
		for _, f := range h.files {
			f.Close()
		}
	})
}

func (h *evdevHotkey) Presses() <-chan struct{} { return h.presses }

func keyboardDevices() ([]string, error) {
	entries, err := os.ReadDir("/dev/input")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "event") {
			continue
		}
		if hasKeyCaps(e.Name()) {
			out = append(out, filepath.Join("/dev/input", e.Name()))
		}
	}
	return out, nil
}

// hasKeyCaps filters out mice and buttons: real keyboards advertise a
// long key-capability bitmap in sysfs.
func hasKeyCaps(eventName string) bool {
	data, err := os.ReadFile(filepath.Join("/sys/class/input", eventName, "device", "capabilities", "key"))
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(data))) > 10
}

func Diagnose() (string, error) {
	devices, err := keyboardDevices()
	if err != nil {
		return "", fmt.Errorf("cannot scan input devices: %w", err)
	}
	if len(devices) == 0 {
		return "", fmt.Errorf("no keyboard devices found (is the user in the 'input' group?)")
	}
	for _, path := range devices {
		f, err := os.Open(path)
		if err == nil {
			f.Close()
			return fmt.Sprintf("%d keyboard(s) found, opened %s", len(devices), path), nil
		}
	}
	return "", fmt.Errorf("found %d keyboard(s) but cannot open any (run: sudo usermod -aG input $USER)", len(devices))
}
