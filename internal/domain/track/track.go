// Package track provides the Track domain entity.
package track

import (
	"path/filepath"
	"strings"
	"time"
)

// RawFile is a file handed over by the file selection surface.
type RawFile struct {
	Name     string        // Display name (base file name)
	Data     []byte        // File contents
	Title    string        // Tag title (optional)
	Artist   string        // Tag artist (optional)
	Album    string        // Tag album (optional)
	Duration time.Duration // Probed duration, zero if unknown
}

// Track represents a registered, playable audio source.
type Track struct {
	Name     string        // Display name, unique within the pool
	Handle   string        // Media store handle owned by the pool
	Title    string        // Tag title
	Artist   string        // Tag artist
	Album    string        // Tag album
	Duration time.Duration // Duration, zero if unknown
	AddedAt  time.Time     // Registration time
}

// Label returns a human readable label, preferring tag metadata.
func (t *Track) Label() string {
	if t.Title == "" {
		return t.Name
	}
	if t.Artist == "" {
		return t.Title
	}
	return t.Artist + " - " + t.Title
}

// DisplayName derives a track display name from a file path.
func DisplayName(path string) string {
	return filepath.Base(filepath.Clean(path))
}

// supportedExts lists the extensions the library and watcher accept.
var supportedExts = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".oga":  true,
}

// IsSupported reports whether the file name has a supported audio extension.
func IsSupported(name string) bool {
	return supportedExts[strings.ToLower(filepath.Ext(name))]
}
