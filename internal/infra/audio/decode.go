// Package audio decodes in-memory audio files into beep streamers and probes their length.
package audio

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	gowav "github.com/go-audio/wav"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// ErrUnsupportedFormat is returned for file extensions no decoder handles.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Decode decodes data according to the extension of name.
func Decode(name string, data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	var (
		s   beep.StreamSeekCloser
		f   beep.Format
		err error
	)

	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		s, f, err = wav.Decode(bytes.NewReader(data))
	case ".mp3":
		s, f, err = mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	case ".flac":
		s, f, err = flac.Decode(bytes.NewReader(data))
	case ".ogg", ".oga":
		s, f, err = vorbis.Decode(io.NopCloser(bytes.NewReader(data)))
	default:
		return nil, beep.Format{}, errors.Wrapf(ErrUnsupportedFormat, "decode %s", name)
	}
	if err != nil {
		return nil, beep.Format{}, errors.Wrapf(err, "decode %s", name)
	}
	return s, f, nil
}

// Probe returns the playback duration of an audio file.
// WAV files are measured from their headers; other formats are decoded.
func Probe(name string, data []byte) (time.Duration, error) {
	if strings.EqualFold(filepath.Ext(name), ".wav") {
		return probeWAV(data)
	}

	s, f, err := Decode(name, data)
	if err != nil {
		return 0, err
	}
	defer s.Close()

	if s.Len() <= 0 {
		return 0, nil
	}
	return f.SampleRate.D(s.Len()), nil
}

func probeWAV(data []byte) (time.Duration, error) {
	dec := gowav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return 0, errors.New("invalid WAV file")
	}
	if err := dec.FwdToPCM(); err != nil {
		return 0, errors.Wrap(err, "failed to locate PCM chunk")
	}

	frameBytes := int(dec.NumChans) * int(dec.BitDepth) / 8
	if frameBytes == 0 || dec.SampleRate == 0 {
		return 0, errors.Newf("invalid WAV format: chans=%d bits=%d rate=%d", dec.NumChans, dec.BitDepth, dec.SampleRate)
	}
	frames := dec.PCMSize / frameBytes
	return time.Duration(frames) * time.Second / time.Duration(dec.SampleRate), nil
}
