package encoder

import (
	"encoding/binary"
	"testing"
)

func TestWavHeaderAndPayload(t *testing.T) {
	e := NewWav()
	block := make([]int16, BlockSize)
	for i := range block {
		block[i] = int16(i % 1000)
	}
	if err := e.EncodeBlock(block); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}

	data := e.Bytes()
	if len(data) != 44+BlockSize*2 {
		t.Fatalf("len = %d, want %d", len(data), 44+BlockSize*2)
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Error("bad RIFF header")
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != SampleRate {
		t.Errorf("sample rate = %d", rate)
	}
	if sz := binary.LittleEndian.Uint32(data[40:44]); sz != BlockSize*2 {
		t.Errorf("data chunk size = %d, want %d", sz, BlockSize*2)
	}
	// first sample round-trips
	if s := int16(binary.LittleEndian.Uint16(data[44+2 : 44+4])); s != 1 {
		t.Errorf("sample[1] = %d, want 1", s)
	}
	if e.TotalFrames() != BlockSize {
		t.Errorf("TotalFrames = %d", e.TotalFrames())
	}
}

func TestFlacEncodesBlocks(t *testing.T) {
	e, err := NewFlac()
	if err != nil {
		t.Fatal(err)
	}
	block := make([]int16, BlockSize)
	for i := range block {
		block[i] = int16((i * 37) % 8192)
	}
	if err := e.EncodeBlock(block); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if len(e.Bytes()) == 0 {
		t.Error("expected non-empty flac output")
	}
	if e.TotalFrames() != BlockSize {
		t.Errorf("TotalFrames = %d", e.TotalFrames())
	}
}

func TestNewByFormat(t *testing.T) {
	for _, format := range []string{"wav", "flac"} {
		t.Run(format, func(t *testing.T) {
			enc, err := New(format)
			if err != nil {
				t.Fatalf("New(%q): %v", format, err)
			}
			if enc == nil {
				t.Fatalf("New(%q) returned nil", format)
			}
		})
	}
	if Ext("flac") != ".flac" || Ext("wav") != ".wav" {
		t.Error("Ext mapping wrong")
	}
}
