// Package beep plays short audible cues for recording state changes.
package beep

import (
	"math"
	"sync"
)

var disabled bool

// Disable silences all cues (headless test mode, --quiet).
func Disable() { disabled = true }

const (
	sampleRate = 44100

	startFreq  = 1200 // recording started: high, short
	stopFreq   = 900  // recording stopped
	errorFreq  = 350  // failure: low double-beep
	cueVolume  = 0.5
	errVolume  = 0.6
	startDecay = 60
	stopDecay  = 40
	errDecay   = 30
)

var (
	startCue []int16
	stopCue  []int16
	errorCue []int16
	cueOnce  sync.Once
)

func initCues() {
	startCue = tone(startFreq, 0.2, cueVolume, startDecay)
	stopCue = tone(stopFreq, 0.2, cueVolume, stopDecay)
	errorCue = doubleTone(errorFreq, 0.08, 0.05, errVolume, errDecay)
}

// tone renders a decaying sine as interleaved stereo samples.
func tone(freq, duration, volume, decay float64) []int16 {
	n := int(sampleRate * duration)
	out := make([]int16, n*2)
	for i := 0; i < n; i++ {
		t := float64(i) / sampleRate
		envelope := math.Exp(-t * decay)
		s := int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
		out[i*2] = s
		out[i*2+1] = s
	}
	return out
}

func doubleTone(freq, beepDur, gapDur, volume, decay float64) []int16 {
	single := tone(freq, beepDur, volume, decay)
	gap := make([]int16, int(sampleRate*gapDur)*2)
	out := make([]int16, 0, len(single)*2+len(gap))
	out = append(out, single...)
	out = append(out, gap...)
	out = append(out, single...)
	return out
}

func play(cue []int16) {
	if disabled {
		return
	}
	cueOnce.Do(initCues)
	go playSamples(cue)
}

func Start() { cueOnce.Do(initCues); play(startCue) }
func Stop()  { cueOnce.Do(initCues); play(stopCue) }
func Error() { cueOnce.Do(initCues); play(errorCue) }
