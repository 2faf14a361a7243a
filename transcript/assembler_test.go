package transcript

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"murmur/segment"
	"murmur/whisper"
)

func TestAcceptReleasesInOrder(t *testing.T) {
	a := NewAssembler()

	// arrival order 2, 0, 1
	if got := a.Accept(Piece{Index: 2, Text: "three"}); len(got) != 0 {
		t.Fatalf("index 2 released early: %v", got)
	}
	got := a.Accept(Piece{Index: 0, Text: "one"})
	if len(got) != 1 || got[0].Index != 0 {
		t.Fatalf("accepting index 0 released %v", got)
	}
	got = a.Accept(Piece{Index: 1, Text: "two"})
	if len(got) != 2 || got[0].Index != 1 || got[1].Index != 2 {
		t.Fatalf("accepting index 1 should release 1 and 2, got %v", got)
	}

	res, err := a.Finalize(3)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "one two three" {
		t.Errorf("text = %q", res.Text)
	}
}

func TestDuplicateIndexIgnored(t *testing.T) {
	a := NewAssembler()
	a.Accept(Piece{Index: 0, Text: "first"})
	if got := a.Accept(Piece{Index: 0, Text: "imposter"}); len(got) != 0 {
		t.Fatalf("duplicate released %v", got)
	}
	res, err := a.Finalize(1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "first" {
		t.Errorf("text = %q", res.Text)
	}
}

func TestFailedSegmentBecomesGap(t *testing.T) {
	a := NewAssembler()
	a.Accept(Piece{Index: 0, Text: "hello"})
	a.MarkFailed(1)
	a.Accept(Piece{Index: 2, Text: "world"})

	res, err := a.Finalize(3)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "hello world" {
		t.Errorf("text = %q", res.Text)
	}
	if !reflect.DeepEqual(res.Gaps, []int{1}) {
		t.Errorf("gaps = %v", res.Gaps)
	}
	if res.Segments != 2 {
		t.Errorf("segments = %d", res.Segments)
	}
	if res.Failures != 1 {
		t.Errorf("failures = %d", res.Failures)
	}
}

func TestEmptyTextIsGapNotFailure(t *testing.T) {
	a := NewAssembler()
	a.Accept(Piece{Index: 0, Text: "  "})
	a.Accept(Piece{Index: 1, Text: "words"})

	res, err := a.Finalize(2)
	if err != nil {
		t.Fatal(err)
	}
	if res.Failures != 0 {
		t.Errorf("failures = %d, empty text is not a failure", res.Failures)
	}
	if !reflect.DeepEqual(res.Gaps, []int{0}) {
		t.Errorf("gaps = %v", res.Gaps)
	}
}

func TestFinalizeIncomplete(t *testing.T) {
	a := NewAssembler()
	a.Accept(Piece{Index: 0, Text: "partial"})
	a.Accept(Piece{Index: 2, Text: "tail"})

	res, err := a.Finalize(3)
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("err = %v, want ErrIncomplete", err)
	}
	// degraded result still carries everything that arrived, in order
	if res.Text != "partial tail" {
		t.Errorf("text = %q", res.Text)
	}
	if !reflect.DeepEqual(res.Gaps, []int{1}) {
		t.Errorf("gaps = %v", res.Gaps)
	}
	if res.Failures != 1 {
		t.Errorf("failures = %d, a never-arrived index counts as one", res.Failures)
	}
}

func TestLanguagesPerSegment(t *testing.T) {
	a := NewAssembler()
	a.Accept(Piece{Index: 0, Text: "hello", Language: "en"})
	a.Accept(Piece{Index: 1, Text: "bonjour", Language: "fr"})
	a.Accept(Piece{Index: 2, Text: "again", Language: "en"})

	res, err := a.Finalize(3)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.Languages, []string{"en", "fr", "en"}) {
		t.Errorf("languages = %v", res.Languages)
	}
}

func TestAcceptAfterFinalizeIgnored(t *testing.T) {
	a := NewAssembler()
	a.Accept(Piece{Index: 0, Text: "only"})
	if _, err := a.Finalize(1); err != nil {
		t.Fatal(err)
	}
	if got := a.Accept(Piece{Index: 1, Text: "late"}); len(got) != 0 {
		t.Errorf("late piece released: %v", got)
	}
	if len(a.Released()) != 1 {
		t.Errorf("released = %d, want 1", len(a.Released()))
	}
}

func TestFilterHallucinations(t *testing.T) {
	words := []whisper.Word{
		{Text: " real", Start: 0.1, End: 0.4},
		{Text: " thank", Start: 2.0, End: 2.3},
		{Text: " you", Start: 2.3, End: 2.5},
		{Text: " speech", Start: 5.0, End: 5.4},
	}
	silence := []segment.TimeRange{
		{Start: 1.0, End: 4.5}, // 3.5s of measured silence
		{Start: 4.8, End: 4.9}, // short pause, below threshold
	}

	kept := FilterHallucinations(words, silence, 2.0)
	if got := JoinWords(kept); got != "real speech" {
		t.Errorf("filtered text = %q", got)
	}

	// threshold 0 disables the filter
	if got := FilterHallucinations(words, silence, 0); len(got) != len(words) {
		t.Errorf("disabled filter dropped words: %d", len(got))
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tr := &Transcript{
		ID:           "20260824-120000",
		Text:         "hello world",
		OriginalText: "hello world thank you",
		Languages:    []string{"en"},
		AudioS:       3.2,
	}
	path, err := Save(dir, tr)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != tr.ID+".json" {
		t.Errorf("artifact name = %s", filepath.Base(path))
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != tr.Text || got.OriginalText != tr.OriginalText {
		t.Errorf("round trip lost text: %+v", got)
	}
	if got.PolishedText != nil {
		t.Errorf("polished_text should stay null, got %v", *got.PolishedText)
	}
}
