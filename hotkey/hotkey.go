// Package hotkey delivers global toggle presses. One press starts a
// take, the next press stops it; the event loop owns that state.
package hotkey

// Hotkey emits one event per press of the global shortcut
// (Ctrl+Shift+Space). Releases are not reported.
type Hotkey interface {
	Register() error
	Unregister()
	Presses() <-chan struct{}
}
