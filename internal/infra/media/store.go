// Package media provides an in-memory store of playable resources addressed by handle.
package media

import (
	"mime"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// HandlePrefix prefixes every handle minted by the store.
const HandlePrefix = "blob:"

// ErrUnknownHandle is returned for handles that were never minted or were already released.
var ErrUnknownHandle = errors.New("unknown or released media handle")

// Resource is a playable in-memory resource.
type Resource struct {
	Handle    string
	Name      string
	MIMEType  string
	Data      []byte
	Duration  time.Duration // zero if unknown
	Ephemeral bool          // generated, scoped to a single playback phase
	CreatedAt time.Time
}

// Store mints and revokes resource handles.
type Store struct {
	mu        sync.RWMutex
	resources map[string]*Resource
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		resources: make(map[string]*Resource),
	}
}

// Create registers data as a new resource and returns it with a fresh handle.
func (s *Store) Create(name, mimeType string, data []byte, d time.Duration, ephemeral bool) Resource {
	if mimeType == "" {
		mimeType = MIMEType(name)
	}
	r := &Resource{
		Handle:    HandlePrefix + uuid.New().String(),
		Name:      name,
		MIMEType:  mimeType,
		Data:      data,
		Duration:  d,
		Ephemeral: ephemeral,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[r.Handle] = r
	return *r
}

// Open resolves a handle.
func (s *Store) Open(handle string) (Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.resources[handle]
	if !ok {
		return Resource{}, errors.Wrapf(ErrUnknownHandle, "open %s", handle)
	}
	return *r, nil
}

// Release revokes a handle. A handle can be released only once.
func (s *Store) Release(handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resources[handle]; !ok {
		return errors.Wrapf(ErrUnknownHandle, "release %s", handle)
	}
	delete(s.resources, handle)
	return nil
}

// ReleaseAll revokes every handle and returns how many were released.
func (s *Store) ReleaseAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.resources)
	s.resources = make(map[string]*Resource)
	return n
}

// Len returns the number of live handles.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.resources)
}

// EphemeralCount returns the number of live ephemeral handles.
func (s *Store) EphemeralCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.resources {
		if r.Ephemeral {
			n++
		}
	}
	return n
}

// MIMEType guesses a media type from a file name.
func MIMEType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".flac":
		return "audio/flac"
	case ".ogg", ".oga":
		return "audio/ogg"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
