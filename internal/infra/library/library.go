// Package library reads audio files from disk into raw files ready for the pool.
package library

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/dhowden/tag"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/gapbox/internal/domain/track"
	"github.com/osa030/gapbox/internal/infra/audio"
)

// ErrUnsupportedFile is returned for an explicit path whose extension is not playable.
var ErrUnsupportedFile = errors.New("unsupported file")

// Load reads every path in order. Directories are walked recursively and
// only supported audio files are taken from them. Failures are collected
// per path and do not stop the remaining paths.
func Load(paths []string) ([]track.RawFile, []error) {
	var (
		files []track.RawFile
		errs  []error
	)

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "failed to stat %s", p))
			continue
		}

		if !info.IsDir() {
			f, err := LoadFile(p)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			files = append(files, f)
			continue
		}

		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				errs = append(errs, errors.Wrapf(err, "failed to walk %s", path))
				return nil
			}
			if d.IsDir() || !track.IsSupported(d.Name()) {
				return nil
			}
			f, err := LoadFile(path)
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			files = append(files, f)
			return nil
		})
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "failed to walk %s", p))
		}
	}

	zlog.Debug().Msgf("library: loaded %d file(s), %d error(s)", len(files), len(errs))
	return files, errs
}

// LoadFile reads a single audio file with its tag metadata and duration.
// Missing tags or an unknown duration are not errors.
func LoadFile(path string) (track.RawFile, error) {
	name := track.DisplayName(path)
	if !track.IsSupported(name) {
		return track.RawFile{}, errors.Wrapf(ErrUnsupportedFile, "%s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return track.RawFile{}, errors.Wrapf(err, "failed to read %s", path)
	}

	f := track.RawFile{Name: name, Data: data}

	if m, err := tag.ReadFrom(bytes.NewReader(data)); err == nil {
		f.Title = m.Title()
		f.Artist = m.Artist()
		f.Album = m.Album()
	} else {
		zlog.Debug().Msgf("library: no tags: file=%s err=%v", name, err)
	}

	d, err := audio.Probe(name, data)
	if err != nil {
		zlog.Warn().Msgf("library: could not determine duration: file=%s err=%v", name, err)
	}
	f.Duration = d

	return f, nil
}
