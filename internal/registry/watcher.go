package registry

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the registry when its file changes. It watches the parent directory
// since editors often replace the file instead of writing it in place.
type Watcher struct {
	path     string
	parent   string
	onChange func(*Registry)
	logger   zerolog.Logger
	debounce time.Duration

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}

	mu      sync.Mutex
	running bool
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long the watcher waits for writes to settle.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithWatcherLogger sets the logger for the watcher.
func WithWatcherLogger(logger zerolog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher creates a watcher calling onChange with every successfully reloaded
// registry. Invalid files are logged and skipped.
func NewWatcher(path string, onChange func(*Registry), options ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = fsw.Close()
		return nil, err
	}
	w := &Watcher{
		path:     abs,
		parent:   filepath.Dir(abs),
		onChange: onChange,
		logger:   zerolog.Nop(),
		debounce: 200 * time.Millisecond,
		watcher:  fsw,
	}
	for _, opt := range options {
		opt(w)
	}
	return w, nil
}

// Start begins watching. It returns an error if the parent directory cannot be watched.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if _, err := os.Stat(w.parent); err != nil {
		return err
	}
	if err := w.watcher.Add(w.parent); err != nil {
		return err
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.running = true
	go w.loop(ctx)
	return nil
}

// Stop stops watching and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.cancel()
	done := w.done
	w.mu.Unlock()

	err := w.watcher.Close()
	<-done
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("registry watcher error")
		}
	}
}

func (w *Watcher) reload() {
	reg, err := Load(w.path)
	if err != nil {
		w.logger.Warn().Err(err).Str("path", w.path).Msg("registry reload failed, keeping previous")
		return
	}
	w.logger.Info().Str("path", w.path).Int("servers", len(reg.Servers)).Int("models", len(reg.Models)).Msg("registry reloaded")
	if w.onChange != nil {
		w.onChange(reg)
	}
}
