// Package inbox imports roster documents dropped into a watched directory.
//
// A file is imported once it has been quiet for the debounce window, then
// moved to processed/ or failed/ under the inbox so it is not seen again.
package inbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"turnocal/internal/extract"
	appLog "turnocal/internal/log"
)

const (
	processedDir = "processed"
	failedDir    = "failed"
)

// ImportFunc imports one file.
type ImportFunc func(ctx context.Context, path string) error

// Watcher watches Dir for new documents.
type Watcher struct {
	dir      string
	importFn ImportFunc
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	pending map[string]time.Time
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a Watcher; it does nothing until Start.
func New(dir string, fn ImportFunc) *Watcher {
	return &Watcher{
		dir:      dir,
		importFn: fn,
		debounce: 500 * time.Millisecond,
		pending:  make(map[string]time.Time),
	}
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Start creates the inbox, imports files already present and begins
// watching. It returns once the watch is established.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	for _, sub := range []string{"", processedDir, failedDir} {
		if err := os.MkdirAll(filepath.Join(w.dir, sub), 0o755); err != nil {
			return err
		}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return err
	}
	w.watcher = fw
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true

	// Files dropped while the server was down.
	entries, err := os.ReadDir(w.dir)
	if err == nil {
		past := time.Now().Add(-w.debounce)
		for _, e := range entries {
			if !e.IsDir() {
				w.pending[filepath.Join(w.dir, e.Name())] = past
			}
		}
	}

	go w.run(ctx)
	appLog.Info("inbox: watching", "dir", w.dir)
	return nil
}

// Stop ends the watch and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh
	if err := w.watcher.Close(); err != nil {
		appLog.Error("inbox: close watcher failed", err)
	}
	appLog.Info("inbox: stopped", "dir", w.dir)
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			appLog.Error("inbox: watcher error", err)
		case <-ticker.C:
			w.flush(ctx, time.Now())
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
		return
	}
	if filepath.Dir(ev.Name) != filepath.Clean(w.dir) {
		return
	}
	w.mu.Lock()
	w.pending[ev.Name] = time.Now()
	w.mu.Unlock()
}

// flush imports every pending file quiet for at least the debounce window.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	w.mu.Lock()
	var ready []string
	for path, seen := range w.pending {
		if now.Sub(seen) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		w.process(ctx, path)
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	if !extract.Supported(path) {
		appLog.Debug("inbox: ignoring unsupported file", "path", path)
		return
	}

	dest := processedDir
	if err := w.importFn(ctx, path); err != nil {
		appLog.Error("inbox: import failed", err, "path", path)
		dest = failedDir
	}
	if err := move(path, filepath.Join(w.dir, dest)); err != nil {
		appLog.Error("inbox: move failed", err, "path", path, "dest", dest)
	}
}

func move(path, dir string) error {
	target := filepath.Join(dir, filepath.Base(path))
	if _, err := os.Stat(target); err == nil {
		target = filepath.Join(dir, time.Now().Format("20060102T150405")+"_"+filepath.Base(path))
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.Rename(path, target)
}
