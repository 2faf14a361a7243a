package encoder

import (
	"bytes"
	"encoding/binary"
)

type WavEncoder struct {
	buf         bytes.Buffer
	totalFrames uint64
}

func NewWav() *WavEncoder {
	e := &WavEncoder{}
	e.buf.Write(make([]byte, 44)) // header patched in Bytes()
	return e
}

func (e *WavEncoder) EncodeBlock(block []int16) error {
	raw := make([]byte, len(block)*2)
	for i, s := range block {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(s))
	}
	e.buf.Write(raw)
	e.totalFrames += uint64(len(block))
	return nil
}

func (e *WavEncoder) Close() error { return nil }

func (e *WavEncoder) Bytes() []byte {
	data := e.buf.Bytes()
	payload := uint32(len(data) - 44)

	copy(data[0:4], "RIFF")
	binary.LittleEndian.PutUint32(data[4:8], 36+payload)
	copy(data[8:12], "WAVE")
	copy(data[12:16], "fmt ")
	binary.LittleEndian.PutUint32(data[16:20], 16)
	binary.LittleEndian.PutUint16(data[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(data[22:24], Channels)
	binary.LittleEndian.PutUint32(data[24:28], SampleRate)
	binary.LittleEndian.PutUint32(data[28:32], SampleRate*Channels*BitsPerSample/8)
	binary.LittleEndian.PutUint16(data[32:34], Channels*BitsPerSample/8)
	binary.LittleEndian.PutUint16(data[34:36], BitsPerSample)
	copy(data[36:40], "data")
	binary.LittleEndian.PutUint32(data[40:44], payload)

	return data
}

func (e *WavEncoder) TotalFrames() uint64 {
	return e.totalFrames
}
