package clipboard

import (
	"runtime"
	"time"

	"github.com/micmonay/keybd_event"
)

// pasteKeystroke sends the platform paste chord (Cmd+V on macOS,
// Ctrl+V elsewhere) to whatever window has focus.
func pasteKeystroke() error {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return err
	}
	// on linux the uinput device needs a moment to come up
	if runtime.GOOS == "linux" {
		time.Sleep(150 * time.Millisecond)
	}

	kb.SetKeys(keybd_event.VK_V)
	if runtime.GOOS == "darwin" {
		kb.HasSuper(true)
	} else {
		kb.HasCTRL(true)
	}
	return kb.Launching()
}
