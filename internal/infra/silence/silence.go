// Package silence synthesizes silent PCM WAV containers.
package silence

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/osa030/gapbox/internal/domain/gap"
)

// Container format constants.
const (
	SampleRate    = 44100
	Channels      = 1
	BitsPerSample = 16
	HeaderSize    = 44

	blockAlign = Channels * BitsPerSample / 8
	byteRate   = SampleRate * blockAlign
	formatPCM  = 1
)

// MIMEType is the media type of generated containers.
const MIMEType = "audio/wav"

// FrameCount returns floor(seconds * SampleRate) after clamping seconds to [0, 3600].
func FrameCount(seconds float64) int {
	return int(math.Floor(gap.Clamp(seconds) * SampleRate))
}

// Size returns the byte length of the container for the given duration.
func Size(seconds float64) int {
	return HeaderSize + FrameCount(seconds)*blockAlign
}

// Duration returns the exact playback duration of the container for the given duration.
func Duration(seconds float64) time.Duration {
	return time.Duration(FrameCount(seconds)) * time.Second / SampleRate
}

// Generate returns a mono 16-bit 44.1kHz WAV container of zero samples.
// The output is deterministic for a given duration.
func Generate(seconds float64) []byte {
	dataSize := FrameCount(seconds) * blockAlign
	buf := make([]byte, HeaderSize+dataSize)

	le := binary.LittleEndian
	copy(buf[0:4], "RIFF")
	le.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	le.PutUint32(buf[16:20], 16)
	le.PutUint16(buf[20:22], formatPCM)
	le.PutUint16(buf[22:24], Channels)
	le.PutUint32(buf[24:28], SampleRate)
	le.PutUint32(buf[28:32], byteRate)
	le.PutUint16(buf[32:34], blockAlign)
	le.PutUint16(buf[34:36], BitsPerSample)

	copy(buf[36:40], "data")
	le.PutUint32(buf[40:44], uint32(dataSize))

	// sample region is already zeroed by make
	return buf
}
