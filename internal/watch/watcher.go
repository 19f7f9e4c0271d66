// Package watch triggers a callback when watched files change. cmdport uses
// it to re-send a command (typically a plugin reload) after an edit.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce collapses editor save bursts into one trigger.
const DefaultDebounce = 300 * time.Millisecond

// FileEvent is the last file system event of a debounced burst.
type FileEvent struct {
	Path  string
	Op    string
	Time  time.Time
	Count int // events collapsed into this trigger
}

// Config holds watcher configuration.
type Config struct {
	Paths    []string        // Files or directories to watch
	Ignore   []string        // Glob patterns to ignore
	Debounce time.Duration   // Zero selects DefaultDebounce
	OnChange func(FileEvent) // Called once per debounced burst
	Logger   *zap.Logger
}

// Watcher watches files for changes and triggers callbacks.
type Watcher struct {
	config    Config
	fsWatcher *fsnotify.Watcher
	debouncer *debouncer
	logger    *zap.Logger
	mu        sync.Mutex
	running   bool
	done      chan struct{}

	// roots are watched directory trees; files are single watched files.
	roots []string
	files map[string]bool
}

// New creates a watcher. Call Start to begin watching.
func New(cfg Config) (*Watcher, error) {
	if len(cfg.Paths) == 0 {
		return nil, fmt.Errorf("at least one path is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		config:    cfg,
		fsWatcher: fsWatcher,
		logger:    cfg.Logger,
		done:      make(chan struct{}),
		files:     make(map[string]bool),
	}
	w.debouncer = newDebouncer(cfg.Debounce, func(ev FileEvent) {
		if cfg.OnChange != nil {
			cfg.OnChange(ev)
		}
	})
	return w, nil
}

// Start adds the configured paths and starts the event loop.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	for _, path := range w.config.Paths {
		if err := w.addPath(path); err != nil {
			_ = w.fsWatcher.Close()
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return fmt.Errorf("failed to add watch path %s: %w", path, err)
		}
	}

	go w.eventLoop()
	return nil
}

// Stop stops the watcher and waits for the event loop to exit. A pending
// debounced trigger is dropped.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	w.debouncer.stop()

	if err := w.fsWatcher.Close(); err != nil {
		return err
	}
	<-w.done
	return nil
}

// addPath watches a directory tree, or the directory holding a single file.
func (w *Watcher) addPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return err
	}

	if info.IsDir() {
		w.mu.Lock()
		w.roots = append(w.roots, absPath)
		w.mu.Unlock()
		return filepath.Walk(absPath, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if p != absPath && w.shouldIgnore(p) {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if info.IsDir() {
				if err := w.fsWatcher.Add(p); err != nil {
					return err
				}
				w.logger.Debug("watching directory", zap.String("path", p))
			}
			return nil
		})
	}

	w.mu.Lock()
	w.files[absPath] = true
	w.mu.Unlock()

	dir := filepath.Dir(absPath)
	if err := w.fsWatcher.Add(dir); err != nil {
		return err
	}
	w.logger.Debug("watching file", zap.String("path", absPath), zap.String("dir", dir))
	return nil
}

// watched reports whether path is a watched file or lies in a watched tree.
// Events for siblings of a single watched file are not of interest.
func (w *Watcher) watched(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.files[path] {
		return true
	}
	for _, root := range w.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// shouldIgnore reports hidden files, bytecode caches and user patterns.
func (w *Watcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return true
	}

	for _, part := range strings.Split(filepath.Clean(path), string(filepath.Separator)) {
		if part == "__pycache__" {
			return true
		}
	}
	if strings.HasSuffix(base, ".pyc") || strings.HasSuffix(base, ".swp") {
		return true
	}

	for _, pattern := range w.config.Ignore {
		if matched, err := filepath.Match(pattern, base); err == nil && matched {
			return true
		}
		if matched, err := filepath.Match(pattern, path); err == nil && matched {
			return true
		}
	}
	return false
}

func (w *Watcher) eventLoop() {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.watched(event.Name) || w.shouldIgnore(event.Name) {
				continue
			}
			w.logger.Debug("file event", zap.String("op", event.Op.String()), zap.String("path", event.Name))

			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addPath(event.Name); err != nil {
						w.logger.Warn("failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
					}
				}
			}

			w.debouncer.trigger(FileEvent{Path: event.Name, Op: event.Op.String(), Time: time.Now()})

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// debouncer fires the callback once the trigger stream has been quiet for delay.
type debouncer struct {
	delay    time.Duration
	callback func(FileEvent)
	timer    *time.Timer
	last     FileEvent
	count    int
	mu       sync.Mutex
}

func newDebouncer(delay time.Duration, callback func(FileEvent)) *debouncer {
	return &debouncer{delay: delay, callback: callback}
}

func (d *debouncer) trigger(ev FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.last = ev
	d.count++
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *debouncer) fire() {
	d.mu.Lock()
	if d.count == 0 {
		d.mu.Unlock()
		return
	}
	ev := d.last
	ev.Count = d.count
	d.count = 0
	d.timer = nil
	d.mu.Unlock()

	d.callback(ev)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.count = 0
}
