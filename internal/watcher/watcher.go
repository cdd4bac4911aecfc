// Package watcher observes the nodes directory and triggers a per-slug
// reindex on content-file changes, grounded on the fsnotify event-loop
// shape used by the wider example pack's vector-store file watcher
// (watchLoop: select over Events/Errors, re-add newly created directories,
// filter by event.Op bitmask) and on internal/logger for structured
// component logging.
package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ehrlich-b/kgraph/internal/logger"
)

// debounceWindow collapses bursts of events for the same slug (editor save
// storms).
const debounceWindow = 250 * time.Millisecond

// pollInterval is used by the fallback loop on platforms without native
// directory notifications.
const pollInterval = 2 * time.Second

// ReindexFunc is called once per debounced slug change. Failures are
// logged and do not stop the watcher.
type ReindexFunc func(slug string) error

// Watcher observes nodesDir and calls Reindex for each changed node.
type Watcher struct {
	nodesDir string
	reindex  ReindexFunc

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New constructs a Watcher rooted at nodesDir.
func New(nodesDir string, reindex ReindexFunc) *Watcher {
	return &Watcher{
		nodesDir: nodesDir,
		reindex:  reindex,
		timers:   map[string]*time.Timer{},
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Run blocks, watching nodesDir until Stop is called. It prefers native
// fsnotify directory notifications, falling back to mtime polling if the
// watcher can't be constructed or started (e.g. inotify instance limits
// reached, or an unsupported platform).
func (w *Watcher) Run() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("watcher: fsnotify unavailable, falling back to polling", "error", err)
		return w.runPolling()
	}
	defer fw.Close()

	if err := w.addRecursive(fw, w.nodesDir); err != nil {
		logger.Warn("watcher: failed to watch nodes dir, falling back to polling", "error", err)
		return w.runPolling()
	}

	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(fw, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher: fsnotify error", "error", err)
		}
	}
}

// Stop signals Run to return and waits for it to finish.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Watcher) addRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) handleEvent(fw *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := fw.Add(ev.Name); err != nil {
				logger.Warn("watcher: failed to add new directory", "path", ev.Name, "error", err)
			}
			return
		}
	}

	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	if !strings.HasSuffix(ev.Name, ".jsonl") {
		return
	}

	slug := slugFromPath(w.nodesDir, ev.Name)
	if slug == "" {
		return
	}
	w.debounce(slug)
}

func (w *Watcher) debounce(slug string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[slug]; ok {
		t.Reset(debounceWindow)
		return
	}
	w.timers[slug] = time.AfterFunc(debounceWindow, func() {
		w.mu.Lock()
		delete(w.timers, slug)
		w.mu.Unlock()
		w.doReindex(slug)
	})
}

func (w *Watcher) doReindex(slug string) {
	if err := w.reindex(slug); err != nil {
		logger.Warn("watcher: reindex failed, continuing", "slug", slug, "error", err)
	}
}

// runPolling records per-file mtimes and reindexes on increase, for
// platforms without native directory notifications.
func (w *Watcher) runPolling() error {
	mtimes := map[string]time.Time{}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			_ = filepath.WalkDir(w.nodesDir, func(path string, d fs.DirEntry, err error) error {
				if err != nil || d.IsDir() || !strings.HasSuffix(path, ".jsonl") {
					return nil
				}
				info, err := d.Info()
				if err != nil {
					return nil
				}
				prev, seen := mtimes[path]
				if !seen || info.ModTime().After(prev) {
					mtimes[path] = info.ModTime()
					if slug := slugFromPath(w.nodesDir, path); slug != "" {
						w.doReindex(slug)
					}
				}
				return nil
			})
		}
	}
}

// slugFromPath derives the node slug from a content-file path: the first
// path segment under the nodes root.
func slugFromPath(nodesDir, path string) string {
	rel, err := filepath.Rel(nodesDir, path)
	if err != nil {
		return ""
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) == 0 || parts[0] == "." || parts[0] == ".." {
		return ""
	}
	return parts[0]
}
