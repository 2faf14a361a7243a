// Package segment splits a live 16 kHz mono PCM stream into bounded
// utterance segments on detected silence. Emission is causal: a segment
// is finalized only once enough trailing silence has been observed and
// is never revised afterwards.
package segment

import (
	"math"
	"sort"
)

const (
	SampleRate = 16000

	// analysis frame of 20ms
	frameSamples = SampleRate / 50

	// adaptive threshold: noise floor percentile scaled up, with an
	// absolute floor so digital silence never counts as speech
	noiseFloorScale = 2.5
	minThreshold    = 0.003
)

// TimeRange is a silence span in seconds relative to the segment's samples.
type TimeRange struct {
	Start float64
	End   float64
}

// Segment is an immutable span of session audio. Start/End are unpadded
// sample offsets relative to session start; Samples may carry extra
// padding on both sides for inference context.
type Segment struct {
	Index    int
	Start    int
	End      int
	PadStart int // samples of leading padding included in Samples
	Samples  []int16
	Silence  []TimeRange // silence runs inside Samples, for hallucination filtering
}

// Duration returns the unpadded segment length in seconds.
func (s Segment) Duration() float64 {
	return float64(s.End-s.Start) / SampleRate
}

type Config struct {
	MinSilenceS  float64 // silence run needed to declare a boundary
	MinSegmentS  float64 // never cut a segment shorter than this
	MaxSegmentS  float64 // force a boundary at this length; 0 = uncapped
	PaddingS     float64 // context added around each emitted segment
	RMSThreshold float64 // fixed silence threshold; 0 = adaptive
}

func DefaultConfig() Config {
	return Config{
		MinSilenceS: 0.5,
		MinSegmentS: 1.0,
		MaxSegmentS: 0,
		PaddingS:    0.15,
	}
}

type Segmenter struct {
	cfg Config

	minSilenceFrames int
	minSegSamples    int
	maxSegSamples    int
	padSamples       int

	buf      []int16 // samples from bufStart onward, not yet released
	bufStart int     // absolute offset of buf[0]
	cursor   int     // absolute offset where the open segment begins
	total    int     // absolute offset of the next incoming sample
	partial  []int16 // incomplete analysis frame

	rmsHistory  []float64
	threshCache float64
	threshAt    int

	silenceRun   int // consecutive silent frames ending at total
	speechSeen   bool
	nextIndex    int
	silences     []absRange // completed silence runs, absolute sample offsets
	openSilence  int        // start of the current silence run, -1 if none
	frameAbs     int        // absolute offset of the next frame to classify
}

type absRange struct {
	start, end int
}

func New(cfg Config) *Segmenter {
	if cfg.MinSilenceS <= 0 {
		cfg.MinSilenceS = DefaultConfig().MinSilenceS
	}
	if cfg.MinSegmentS <= 0 {
		cfg.MinSegmentS = DefaultConfig().MinSegmentS
	}
	if cfg.PaddingS < 0 {
		cfg.PaddingS = 0
	}
	s := &Segmenter{
		cfg:              cfg,
		minSilenceFrames: int(cfg.MinSilenceS * SampleRate / frameSamples),
		minSegSamples:    int(cfg.MinSegmentS * SampleRate),
		padSamples:       int(cfg.PaddingS * SampleRate),
		openSilence:      -1,
	}
	if s.minSilenceFrames < 1 {
		s.minSilenceFrames = 1
	}
	if cfg.MaxSegmentS > 0 {
		s.maxSegSamples = int(cfg.MaxSegmentS * SampleRate)
		if s.maxSegSamples < s.minSegSamples {
			s.maxSegSamples = s.minSegSamples
		}
	}
	return s
}

// Feed consumes the next chunk of samples and returns zero or more
// completed segments.
func (s *Segmenter) Feed(samples []int16) []Segment {
	if len(samples) == 0 {
		return nil
	}
	s.buf = append(s.buf, samples...)
	s.total += len(samples)

	var out []Segment

	// classify any complete analysis frames
	work := append(s.partial, samples...)
	for len(work) >= frameSamples {
		frame := work[:frameSamples]
		work = work[frameSamples:]
		s.classify(frame)

		if seg := s.maybeCut(); seg != nil {
			out = append(out, *seg)
		}
	}
	s.partial = append(s.partial[:0], work...)

	return out
}

// Flush drains any buffered tail audio as a final segment. It returns
// nil when the stream never contained speech and nothing was emitted.
func (s *Segmenter) Flush() *Segment {
	s.closeSilenceRun()
	if s.cursor >= s.total {
		return nil
	}
	if !s.speechSeen && s.nextIndex == 0 {
		// all-silence stream: nothing worth transcribing
		return nil
	}
	return s.emit(s.total)
}

// TotalSamples returns how many samples have been fed so far.
func (s *Segmenter) TotalSamples() int {
	return s.total
}

func (s *Segmenter) classify(frame []int16) {
	var sumSquares float64
	for _, smp := range frame {
		normalized := float64(smp) / 32768.0
		sumSquares += normalized * normalized
	}
	rms := math.Sqrt(sumSquares / float64(len(frame)))
	s.rmsHistory = append(s.rmsHistory, rms)

	silent := rms < s.threshold()
	if silent {
		if s.openSilence < 0 {
			s.openSilence = s.frameAbs
		}
		s.silenceRun++
	} else {
		s.speechSeen = true
		s.closeSilenceRun()
		s.silenceRun = 0
	}
	s.frameAbs += len(frame)
}

func (s *Segmenter) closeSilenceRun() {
	if s.openSilence >= 0 {
		s.silences = append(s.silences, absRange{start: s.openSilence, end: s.frameAbs})
		s.openSilence = -1
	}
}

func (s *Segmenter) threshold() float64 {
	if s.cfg.RMSThreshold > 0 {
		return s.cfg.RMSThreshold
	}
	// the noise floor estimate needs a second of audio to be meaningful
	if len(s.rmsHistory) < 50 {
		return minThreshold
	}
	// recompute once per second of audio
	if s.threshAt == 0 || len(s.rmsHistory)-s.threshAt >= 50 {
		sorted := make([]float64, len(s.rmsHistory))
		copy(sorted, s.rmsHistory)
		sort.Float64s(sorted)
		floor := sorted[len(sorted)/10]
		s.threshCache = math.Max(floor*noiseFloorScale, minThreshold)
		s.threshAt = len(s.rmsHistory)
	}
	if s.threshCache == 0 {
		return minThreshold
	}
	return s.threshCache
}

func (s *Segmenter) maybeCut() *Segment {
	// silence boundary: enough trailing silence and a long-enough segment
	if s.silenceRun >= s.minSilenceFrames {
		runStart := s.frameAbs - s.silenceRun*frameSamples
		cut := runStart + s.minSilenceFrames*frameSamples/2
		if cut-s.cursor >= s.minSegSamples && cut > s.cursor {
			seg := s.emit(cut)
			s.silenceRun = 0
			return seg
		}
	}
	// duration cap: force a boundary even mid-speech
	if s.maxSegSamples > 0 && s.frameAbs-s.cursor >= s.maxSegSamples {
		seg := s.emit(s.cursor + s.maxSegSamples)
		s.silenceRun = 0
		return seg
	}
	return nil
}

func (s *Segmenter) emit(cut int) *Segment {
	padFrom := s.cursor - s.padSamples
	if padFrom < s.bufStart {
		padFrom = s.bufStart
	}
	padTo := cut + s.padSamples
	if padTo > s.total {
		padTo = s.total
	}

	samples := make([]int16, padTo-padFrom)
	copy(samples, s.buf[padFrom-s.bufStart:padTo-s.bufStart])

	seg := &Segment{
		Index:    s.nextIndex,
		Start:    s.cursor,
		End:      cut,
		PadStart: s.cursor - padFrom,
		Samples:  samples,
		Silence:  s.silenceWithin(padFrom, padTo),
	}
	s.nextIndex++

	// keep up to padSamples of history for the next segment's padding
	keepFrom := cut - s.padSamples
	if keepFrom < s.bufStart {
		keepFrom = s.bufStart
	}
	s.buf = append(s.buf[:0], s.buf[keepFrom-s.bufStart:]...)
	s.bufStart = keepFrom
	s.cursor = cut

	// drop silence runs that ended before anything still reachable
	trimmed := s.silences[:0]
	for _, r := range s.silences {
		if r.end > keepFrom {
			trimmed = append(trimmed, r)
		}
	}
	s.silences = trimmed

	return seg
}

func (s *Segmenter) silenceWithin(from, to int) []TimeRange {
	var out []TimeRange
	add := func(r absRange) {
		lo, hi := max(r.start, from), min(r.end, to)
		if hi <= lo {
			return
		}
		out = append(out, TimeRange{
			Start: float64(lo-from) / SampleRate,
			End:   float64(hi-from) / SampleRate,
		})
	}
	for _, r := range s.silences {
		add(r)
	}
	if s.openSilence >= 0 {
		add(absRange{start: s.openSilence, end: s.frameAbs})
	}
	return out
}
