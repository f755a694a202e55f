// Package watcher notices edits to the config file and applies the settings
// that can change while algomgr is running.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/algomgr/internal/config"
	"github.com/zjrosen/algomgr/internal/log"
)

// Watcher monitors one file and signals, debounced, when it changes.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	debounce  time.Duration
	onChange  chan struct{}
	done      chan struct{}
}

// Config holds watcher configuration options.
type Config struct {
	Path        string
	DebounceDur time.Duration
}

// DefaultConfig returns sensible defaults for the watcher.
func DefaultConfig(path string) Config {
	return Config{
		Path:        path,
		DebounceDur: 250 * time.Millisecond,
	}
}

// New creates a watcher for cfg.Path.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsWatcher: fsw,
		path:      cfg.Path,
		debounce:  cfg.DebounceDur,
		onChange:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start watches the directory containing the file, so atomic replaces are
// seen too. The returned channel receives a signal after each burst of changes.
func (w *Watcher) Start() (<-chan struct{}, error) {
	dir := filepath.Dir(w.path)
	if err := w.fsWatcher.Add(dir); err != nil {
		return nil, fmt.Errorf("watching directory %s: %w", dir, err)
	}
	log.Debug(log.CatWatcher, "Watching file", "path", w.path)

	go w.loop()

	return w.onChange, nil
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

func (w *Watcher) loop() {
	var timer *time.Timer
	timerC := func() <-chan time.Time {
		if timer != nil {
			return timer.C
		}
		return nil
	}

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.isRelevantEvent(event) {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC():
			timer = nil
			select {
			case w.onChange <- struct{}{}:
			default:
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn(log.CatWatcher, "Watch error", "path", w.path, "error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func (w *Watcher) isRelevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	return filepath.Clean(event.Name) == filepath.Clean(w.path)
}

// CapacitySetter is the part of the manager the reloader drives.
type CapacitySetter interface {
	Capacity() int
	SetCapacity(n int) error
}

// FollowCapacity re-reads path after every signal on changes and applies
// algorithms.retained to target. An unreadable or invalid file leaves the
// current capacity in place. It returns when ctx is done or changes closes.
func FollowCapacity(ctx context.Context, changes <-chan struct{}, path string, target CapacitySetter) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			ApplyCapacity(path, target)
		}
	}
}

// ApplyCapacity loads path and sets target's capacity from it. It reports
// whether the capacity changed.
func ApplyCapacity(path string, target CapacitySetter) bool {
	cfg, err := config.LoadFile(path)
	if err != nil {
		log.Warn(log.CatWatcher, "Ignoring config change", "path", path, "error", err)
		return false
	}
	n := cfg.Algorithms.Retained
	if n == target.Capacity() {
		return false
	}
	if err := target.SetCapacity(n); err != nil {
		log.Warn(log.CatWatcher, "Rejected capacity", "path", path, "retained", n, "error", err)
		return false
	}
	log.Info(log.CatWatcher, "Applied capacity from config", "path", path, "retained", n)
	return true
}
