// Package clipboard delivers a finished transcript to the focused
// application: copy the text, then synthesize a paste keystroke.
package clipboard

import (
	cb "github.com/atotto/clipboard"
)

func Copy(text string) error {
	return cb.WriteAll(text)
}

func Read() (string, error) {
	return cb.ReadAll()
}

// Deliver copies text and pastes it into the focused window. When the
// paste keystroke cannot be synthesized the text still sits on the
// clipboard, so the caller should treat the error as a warning.
func Deliver(text string) error {
	if err := Copy(text); err != nil {
		return err
	}
	return pasteKeystroke()
}
