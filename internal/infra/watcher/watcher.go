// Package watcher loads audio files dropped into a folder.
package watcher

import (
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/gapbox/internal/domain/track"
	"github.com/osa030/gapbox/internal/infra/library"
)

// Handler receives the files loaded after a burst of changes settles.
type Handler func(files []track.RawFile)

// Watcher watches a drop folder. Created or written audio files are
// collected until no change arrives for the debounce interval, then loaded
// and handed over in one batch.
type Watcher struct {
	mu       sync.Mutex
	dir      string
	debounce time.Duration
	handler  Handler

	fsw     *fsnotify.Watcher
	pending map[string]struct{}
	timer   *time.Timer

	started  bool
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a watcher for dir.
func New(dir string, debounce time.Duration, handler Handler) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file watcher")
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		handler:  handler,
		fsw:      fsw,
		pending:  make(map[string]struct{}),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching.
func (w *Watcher) Start() error {
	if err := w.fsw.Add(w.dir); err != nil {
		w.fsw.Close()
		return errors.Wrapf(err, "failed to watch %s", w.dir)
	}
	w.started = true
	go w.watchLoop()
	zlog.Info().Msgf("watcher: watching drop folder: dir=%s debounce=%v", w.dir, w.debounce)
	return nil
}

// Stop stops watching and discards pending changes.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if !w.started {
			w.fsw.Close()
			return
		}
		<-w.done

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.pending = make(map[string]struct{})
		w.mu.Unlock()
	})
}

func (w *Watcher) watchLoop() {
	defer close(w.done)
	defer w.fsw.Close()

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !track.IsSupported(event.Name) {
				continue
			}
			w.schedule(event.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			zlog.Error().Msgf("watcher: error: %v", err)
		case <-w.stopCh:
			zlog.Info().Msg("watcher: stopped")
			return
		}
	}
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	select {
	case <-w.stopCh:
		return
	default:
	}

	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	if len(paths) == 0 {
		return
	}
	sort.Strings(paths)

	files, errs := library.Load(paths)
	for _, err := range errs {
		zlog.Warn().Msgf("watcher: %v", err)
	}
	if len(files) > 0 {
		zlog.Info().Msgf("watcher: loaded %d dropped file(s)", len(files))
		w.handler(files)
	}
}
