package kernel

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wendao-project/wendao-kernel/log"
)

var watchSkipDirs = map[string]bool{
	".git": true, ".cache": true, ".devenv": true, ".run": true, ".venv": true,
	"node_modules": true, "vendor": true, "dist": true, "build": true,
}

const watchDebounce = 500 * time.Millisecond

// ChangeHandler is invoked once per debounce window with every distinct
// path that changed since the last firing.
type ChangeHandler func(paths []string)

// Watcher recursively watches a root directory and debounces change
// bursts into a single ChangeHandler call, so the reactor sees one
// file/changed event per coalesced edit rather than one per syscall.
type Watcher struct {
	root    string
	watcher *fsnotify.Watcher
	logger  log.Logger

	mu      sync.Mutex
	pending map[string]struct{}

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatcher creates a recursive watcher rooted at root, skipping
// dotted and build-artifact directories.
func NewWatcher(root string, logger log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.NewDefaultLogger(log.LogLevelInfo)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{root: root, watcher: fw, logger: logger, pending: make(map[string]struct{})}
	if err := w.addDirs(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addDirs(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if watchSkipDirs[base] || (strings.HasPrefix(base, ".") && path != root) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil && os.IsPermission(err) {
			return filepath.SkipDir
		}
		return nil
	})
}

// Start launches the debouncing event loop; on stop it fires handler
// one last time with anything still pending.
func (w *Watcher) Start(handler ChangeHandler) {
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.loop(handler)
}

func (w *Watcher) loop(handler ChangeHandler) {
	defer close(w.doneCh)
	var timer *time.Timer
	var timerCh <-chan time.Time

	flush := func() {
		w.mu.Lock()
		if len(w.pending) == 0 {
			w.mu.Unlock()
			return
		}
		paths := make([]string, 0, len(w.pending))
		for p := range w.pending {
			paths = append(paths, p)
		}
		w.pending = make(map[string]struct{})
		w.mu.Unlock()
		handler(paths)
	}

	for {
		select {
		case <-w.stopCh:
			flush()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				flush()
				return
			}
			w.mu.Lock()
			w.pending[event.Name] = struct{}{}
			w.mu.Unlock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(watchDebounce)
			timerCh = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				flush()
				return
			}
			w.logger.Warn("watcher error: %v", err)
		case <-timerCh:
			timerCh = nil
			flush()
		}
	}
}

// Stop halts the event loop and closes the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	if w.stopCh != nil {
		close(w.stopCh)
		<-w.doneCh
	}
	w.watcher.Close()
}
