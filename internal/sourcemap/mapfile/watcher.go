package mapfile

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/mapdap/internal/logging"
)

// ErrWatcherClosed is returned by operations on a closed Watcher.
var ErrWatcherClosed = errors.New("watcher closed")

// DefaultDebounce coalesces the bursts of writes bundlers emit.
const DefaultDebounce = 100 * time.Millisecond

// ReloadFunc re-ingests the map of generatedPath.
type ReloadFunc func(generatedPath, locator string) error

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the delay between the last change to a map file and
// its reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.delay = d
		}
	}
}

// WithLogger sets the watcher's logger.
func WithLogger(l *logging.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = l
	}
}

type watchTarget struct {
	generatedPath string
	locator       string
}

// Watcher reloads source maps when their files change on disk.
//
// Directories are watched rather than files so that editors and bundlers
// that replace files by rename are still seen.
type Watcher struct {
	fsw    *fsnotify.Watcher
	reload ReloadFunc
	delay  time.Duration
	logger *logging.Logger

	mu      sync.Mutex
	targets map[string]watchTarget
	dirs    map[string]int
	pending map[string]*time.Timer
	closed  bool

	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher that calls reload for changed maps.
func NewWatcher(reload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:     fsw,
		reload:  reload,
		delay:   DefaultDebounce,
		targets: make(map[string]watchTarget),
		dirs:    make(map[string]int),
		pending: make(map[string]*time.Timer),
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.WithComponent("mapwatch")

	w.wg.Add(1)
	go w.processLoop()
	return w, nil
}

// Add watches mapPath and reloads generatedPath from locator when it
// changes.
func (w *Watcher) Add(generatedPath, mapPath, locator string) error {
	abs, err := filepath.Abs(mapPath)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	if _, ok := w.targets[abs]; ok {
		w.targets[abs] = watchTarget{generatedPath: generatedPath, locator: locator}
		return nil
	}

	dir := filepath.Dir(abs)
	if w.dirs[dir] == 0 {
		if err := w.fsw.Add(dir); err != nil {
			return err
		}
	}
	w.dirs[dir]++
	w.targets[abs] = watchTarget{generatedPath: generatedPath, locator: locator}
	return nil
}

// Remove stops watching mapPath.
func (w *Watcher) Remove(mapPath string) error {
	abs, err := filepath.Abs(mapPath)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	if _, ok := w.targets[abs]; !ok {
		return nil
	}
	delete(w.targets, abs)
	if t, ok := w.pending[abs]; ok {
		t.Stop()
		delete(w.pending, abs)
	}

	dir := filepath.Dir(abs)
	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		delete(w.dirs, dir)
		return w.fsw.Remove(dir)
	}
	return nil
}

// Watched returns the number of watched map files.
func (w *Watcher) Watched() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.targets)
}

// Close stops the watcher and cancels pending reloads.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	for p, t := range w.pending {
		t.Stop()
		delete(w.pending, p)
	}
	w.mu.Unlock()

	w.wg.Wait()
	return w.fsw.Close()
}

func (w *Watcher) processLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) {
				w.schedule(ev.Name)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watch error", "error", err)
		}
	}
}

// schedule queues a reload of name, restarting its timer if one is
// already pending.
func (w *Watcher) schedule(name string) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if _, ok := w.targets[abs]; !ok {
		return
	}

	if t, ok := w.pending[abs]; ok {
		t.Reset(w.delay)
		return
	}
	w.pending[abs] = time.AfterFunc(w.delay, func() { w.fire(abs) })
}

func (w *Watcher) fire(abs string) {
	w.mu.Lock()
	delete(w.pending, abs)
	target, ok := w.targets[abs]
	closed := w.closed
	w.mu.Unlock()
	if !ok || closed {
		return
	}

	if err := w.reload(target.generatedPath, target.locator); err != nil {
		w.logger.Warn("source map reload failed", "generated", target.generatedPath, "error", err)
		return
	}
	w.logger.Info("source map reloaded", "generated", target.generatedPath)
}
