// Package transcript assembles per-segment transcription results into
// an ordered transcript, filters silence hallucinations, and persists
// the final artifact next to the session audio.
package transcript

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"murmur/whisper"
)

var ErrIncomplete = errors.New("transcript incomplete")

// Piece is one segment's transcription entering the assembler. A piece
// with Failed set records a permanent gap at its index.
type Piece struct {
	Index    int
	Text     string
	Language string
	Words    []whisper.Word
	Failed   bool
}

// Assembler buffers out-of-order pieces and releases them strictly by
// segment index. Results never reorder text: segment 3 is spoken after
// segment 2, so it reads after segment 2.
type Assembler struct {
	mu        sync.Mutex
	pending   map[int]Piece
	next      int
	released  []Piece
	finalized bool
}

func NewAssembler() *Assembler {
	return &Assembler{pending: make(map[int]Piece)}
}

// Accept adds a piece and returns any pieces that became releasable, in
// index order. Duplicate indices and pieces arriving after Finalize are
// ignored.
func (a *Assembler) Accept(p Piece) []Piece {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		return nil
	}
	if p.Index < a.next {
		return nil // already released
	}
	if _, dup := a.pending[p.Index]; dup {
		return nil
	}
	a.pending[p.Index] = p

	var out []Piece
	for {
		next, ok := a.pending[a.next]
		if !ok {
			break
		}
		delete(a.pending, a.next)
		a.next++
		a.released = append(a.released, next)
		out = append(out, next)
	}
	return out
}

// MarkFailed records a permanent gap at index so assembly can continue
// past it.
func (a *Assembler) MarkFailed(index int) []Piece {
	return a.Accept(Piece{Index: index, Failed: true})
}

// Released returns everything released so far, in order.
func (a *Assembler) Released() []Piece {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Piece, len(a.released))
	copy(out, a.released)
	return out
}

// Result is the assembled transcript of a session.
type Result struct {
	Text      string
	Languages []string // per-segment language codes, parallel to the joined segments
	Gaps      []int    // segment indices with no text (failed, empty or never arrived)
	Segments  int      // segments that contributed text
	Failures  int      // segments whose inference failed or never arrived
}

// Finalize closes the assembler over the expected number of segments.
// Indices never delivered (neither text nor failure) make the result
// degraded: the text of everything released is still returned, wrapped
// in ErrIncomplete.
func (a *Assembler) Finalize(expected int) (Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalized = true

	var missing []int
	for i := a.next; i < expected; i++ {
		if _, ok := a.pending[i]; !ok {
			missing = append(missing, i)
		}
	}

	res := Result{}
	join := func(p Piece) {
		if p.Failed {
			res.Failures++
			res.Gaps = append(res.Gaps, p.Index)
			return
		}
		if strings.TrimSpace(p.Text) == "" {
			// successful inference, just nothing said: a gap, not a failure
			res.Gaps = append(res.Gaps, p.Index)
			return
		}
		if res.Text != "" {
			res.Text += " "
		}
		res.Text += strings.TrimSpace(p.Text)
		res.Segments++
		res.Languages = append(res.Languages, p.Language)
	}
	for _, p := range a.released {
		join(p)
	}
	// pieces stuck behind a missing index still contribute, in order
	for i := a.next; i < expected; i++ {
		if p, ok := a.pending[i]; ok {
			join(p)
		}
	}
	res.Gaps = append(res.Gaps, missing...)
	res.Failures += len(missing)
	sort.Ints(res.Gaps)

	if len(missing) > 0 {
		return res, fmt.Errorf("%w: %d of %d segments never finished", ErrIncomplete, len(missing), expected)
	}
	return res, nil
}
