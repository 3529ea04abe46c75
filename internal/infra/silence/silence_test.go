package silence

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate(5.0)
	b := Generate(5.0)

	assert.Equal(t, 44+2*220500, len(a))
	assert.Equal(t, len(a), len(b))
	assert.True(t, bytes.Equal(a, b))
}

func TestGenerate_Header(t *testing.T) {
	buf := Generate(1.5)
	frames := FrameCount(1.5)
	require.Equal(t, 66150, frames)

	le := binary.LittleEndian
	assert.Equal(t, "RIFF", string(buf[0:4]))
	assert.Equal(t, uint32(36+frames*2), le.Uint32(buf[4:8]))
	assert.Equal(t, "WAVE", string(buf[8:12]))
	assert.Equal(t, "fmt ", string(buf[12:16]))
	assert.Equal(t, uint32(16), le.Uint32(buf[16:20]))
	assert.Equal(t, uint16(1), le.Uint16(buf[20:22]))
	assert.Equal(t, uint16(1), le.Uint16(buf[22:24]))
	assert.Equal(t, uint32(44100), le.Uint32(buf[24:28]))
	assert.Equal(t, uint32(88200), le.Uint32(buf[28:32]))
	assert.Equal(t, uint16(2), le.Uint16(buf[32:34]))
	assert.Equal(t, uint16(16), le.Uint16(buf[34:36]))
	assert.Equal(t, "data", string(buf[36:40]))
	assert.Equal(t, uint32(frames*2), le.Uint32(buf[40:44]))

	for i, v := range buf[HeaderSize:] {
		if v != 0 {
			t.Fatalf("non-zero sample byte at offset %d", HeaderSize+i)
		}
	}
}

func TestGenerate_Clamp(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
		frames  int
	}{
		{name: "zero", seconds: 0, frames: 0},
		{name: "negative", seconds: -3, frames: 0},
		{name: "fraction floors", seconds: 0.00001, frames: 0},
		{name: "one frame", seconds: 1.0 / 44100, frames: 1},
		{name: "over max", seconds: 7200, frames: 3600 * 44100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.frames, FrameCount(tt.seconds))
			assert.Equal(t, HeaderSize+tt.frames*2, Size(tt.seconds))
		})
	}

	assert.Len(t, Generate(0), HeaderSize)
}

func TestGenerate_DecodesAsWAV(t *testing.T) {
	dec := wav.NewDecoder(bytes.NewReader(Generate(2)))
	require.True(t, dec.IsValidFile())

	assert.Equal(t, uint32(SampleRate), dec.SampleRate)
	assert.Equal(t, uint16(Channels), dec.NumChans)
	assert.Equal(t, uint16(BitsPerSample), dec.BitDepth)

	require.NoError(t, dec.FwdToPCM())
	assert.Equal(t, FrameCount(2)*2, dec.PCMSize)
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, Duration(5))
	assert.Equal(t, time.Duration(0), Duration(0))
	assert.Equal(t, time.Hour, Duration(4000))
}
