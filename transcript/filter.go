package transcript

import (
	"strings"

	"murmur/segment"
	"murmur/whisper"
)

// FilterHallucinations drops words whose timing places them inside a
// silence span at least threshold seconds long. Whisper tends to invent
// filler ("thank you", "subscribe") over long stretches of silence;
// real speech does not happen where the recorder measured none. Word
// times and silence ranges are both relative to the segment's padded
// samples, so they compare directly. threshold <= 0 disables filtering.
func FilterHallucinations(words []whisper.Word, silence []segment.TimeRange, threshold float64) []whisper.Word {
	if threshold <= 0 || len(silence) == 0 {
		return words
	}
	var out []whisper.Word
	for _, w := range words {
		if insideLongSilence(w, silence, threshold) {
			continue
		}
		out = append(out, w)
	}
	return out
}

func insideLongSilence(w whisper.Word, silence []segment.TimeRange, threshold float64) bool {
	mid := (w.Start + w.End) / 2
	for _, r := range silence {
		if r.End-r.Start < threshold {
			continue
		}
		if mid >= r.Start && mid <= r.End {
			return true
		}
	}
	return false
}

// JoinWords rebuilds display text from filtered words. Whisper word
// tokens carry their own leading spaces.
func JoinWords(words []whisper.Word) string {
	var b strings.Builder
	for _, w := range words {
		b.WriteString(w.Text)
	}
	return strings.TrimSpace(b.String())
}
