// Package encoder turns captured PCM into the on-disk audio artifact
// that is persisted next to each session's transcript.
package encoder

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
}

// Ext returns the filename extension for the given format.
func Ext(format string) string {
	if format == "flac" {
		return ".flac"
	}
	return ".wav"
}

// New returns an encoder for "wav" or "flac".
func New(format string) (Encoder, error) {
	if format == "flac" {
		return NewFlac()
	}
	return NewWav(), nil
}
