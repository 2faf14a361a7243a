// Package audio abstracts microphone capture. The pipeline consumes a
// push stream of 16 kHz mono PCM buffers and never talks to device
// drivers directly.
package audio

import (
	"encoding/binary"
	"fmt"
	"os"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16

	WAVHeaderSize = 44
)

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

// ReadWAV loads a 16 kHz mono 16-bit WAV file and returns its raw PCM
// payload. Only the canonical 44-byte header layout is accepted.
func ReadWAV(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < WAVHeaderSize {
		return nil, fmt.Errorf("wav too short: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a wav file")
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != SampleRate {
		return nil, fmt.Errorf("unsupported sample rate %d (want %d)", rate, SampleRate)
	}
	if ch := binary.LittleEndian.Uint16(data[22:24]); ch != Channels {
		return nil, fmt.Errorf("unsupported channel count %d", ch)
	}
	return data[WAVHeaderSize:], nil
}
