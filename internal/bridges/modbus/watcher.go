package modbus

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultReloadDebounce coalesces the write bursts editors produce.
const defaultReloadDebounce = 250 * time.Millisecond

// ProfileWatcher reloads the device profile when its file changes.
//
// The parent directory is watched rather than the file so that editors
// replacing the file by rename are still seen. A reload that fails to read
// or parse the file keeps the previous snapshot.
type ProfileWatcher struct {
	path     string
	store    *ProfileStore
	onReload func(*Snapshot)
	debounce time.Duration
	watcher  *fsnotify.Watcher

	logger Logger

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	// runMu orders Run's wg.Add against Close's wg.Wait.
	runMu  sync.Mutex
	closed bool
}

// ProfileWatcherOptions configures a ProfileWatcher.
type ProfileWatcherOptions struct {
	// Path is the device profile file.
	Path string

	// Store receives reloaded snapshots.
	Store *ProfileStore

	// OnReload is called after each successful swap. Optional.
	OnReload func(*Snapshot)

	// Debounce is the quiet period before a reload. Default: 250ms.
	Debounce time.Duration

	// Logger is optional.
	Logger Logger
}

// NewProfileWatcher starts watching the profile file.
func NewProfileWatcher(opts ProfileWatcherOptions) (*ProfileWatcher, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("profile store is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultReloadDebounce
	}

	path, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("resolving profile path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	return &ProfileWatcher{
		path:     path,
		store:    opts.Store,
		onReload: opts.OnReload,
		debounce: opts.Debounce,
		watcher:  fw,
		logger:   opts.Logger,
		done:     make(chan struct{}),
	}, nil
}

// Run processes file events until ctx is cancelled or Close is called.
// It returns at once when the watcher is already closed.
func (w *ProfileWatcher) Run(ctx context.Context) error {
	w.runMu.Lock()
	if w.closed {
		w.runMu.Unlock()
		return nil
	}
	w.wg.Add(1)
	w.runMu.Unlock()
	defer w.wg.Done()

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.done:
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logWarn("profile watcher error", "error", err)

		case <-timerC:
			timerC = nil
			w.reload()
		}
	}
}

// Close stops the watcher.
func (w *ProfileWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.runMu.Lock()
		w.closed = true
		w.runMu.Unlock()

		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}

func (w *ProfileWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

func (w *ProfileWatcher) reload() {
	snap, err := w.store.ReloadFromFile(w.path, w.logger)
	if err != nil {
		w.logWarn("profile reload failed, keeping previous profile", "path", w.path, "error", err)
		return
	}
	if w.logger != nil {
		w.logger.Info("profile reloaded", "path", w.path, "devices", snap.DeviceCount())
	}
	if w.onReload != nil {
		w.onReload(snap)
	}
}

func (w *ProfileWatcher) logWarn(msg string, keysAndValues ...any) {
	if w.logger != nil {
		w.logger.Warn(msg, keysAndValues...)
	}
}
