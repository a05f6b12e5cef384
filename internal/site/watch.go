package site

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/FocuswithJustin/reflink/core/cas"
	"github.com/FocuswithJustin/reflink/internal/document"
	"github.com/FocuswithJustin/reflink/internal/index"
	"github.com/FocuswithJustin/reflink/internal/logging"
)

// DefaultDebounce is used when Watch is given a zero debounce.
const DefaultDebounce = 300 * time.Millisecond

// watcher holds the state of one Watch call. Only the event loop touches
// it.
type watcher struct {
	p        *Processor
	root     string
	patterns []string
	fsw      *fsnotify.Watcher
	run      index.Run

	pending map[string]bool   // rel → waiting for the debounce timer
	hashes  map[string]string // rel → hash of the content last handled
}

// Watch re-processes matched files under root whenever they change, until
// ctx is done. A file is processed once it has been quiet for debounce,
// and only when its content differs from what was last handled, so the
// processor's own in-place writes do not trigger it again. onResult, when
// set, receives every result.
func (p *Processor) Watch(ctx context.Context, root string, patterns []string, debounce time.Duration, onResult func(FileResult)) error {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	normalized := make([]string, len(patterns))
	for i, pattern := range patterns {
		normalized[i] = strings.TrimPrefix(filepath.ToSlash(pattern), "./")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	w := &watcher{
		p:        p,
		root:     root,
		patterns: normalized,
		fsw:      fsw,
		pending:  make(map[string]bool),
		hashes:   make(map[string]string),
	}
	if p.Index != nil {
		if w.run, err = p.Index.BeginRun(ctx, "watch:"+root); err != nil {
			return err
		}
	}
	if err := w.addWatchesRecursive(root); err != nil {
		return err
	}
	logging.Info("watch_started", "root", root, "debounce", debounce.String())

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.handle(event) {
				timer.Reset(debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logging.Error("watch_error", "root", root, "error", err.Error())

		case <-timer.C:
			w.flush(ctx, onResult)
		}
	}
}

func (w *watcher) skipDir(path string) bool {
	base := filepath.Base(path)
	if path != w.root && strings.HasPrefix(base, ".") {
		return true
	}
	rel, err := filepath.Rel(w.root, path)
	return err == nil && w.p.inOutDir(w.root, filepath.ToSlash(rel))
}

// addWatchesRecursive adds watches to all directories
func (w *watcher) addWatchesRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.skipDir(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			logging.Warn("watch_add_failed", "path", path, "error", err.Error())
		}
		return nil
	})
}

// matches reports whether rel is a file Watch should process.
func (w *watcher) matches(rel string) bool {
	if _, ok := document.DetectFormat(rel); !ok || w.p.inOutDir(w.root, rel) {
		return false
	}
	for _, pattern := range w.patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// handle records one event and reports whether a file is now pending.
func (w *watcher) handle(event fsnotify.Event) bool {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.skipDir(event.Name) {
				if err := w.addWatchesRecursive(event.Name); err != nil {
					logging.Warn("watch_add_failed", "path", event.Name, "error", err.Error())
				}
			}
			return false
		}
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		delete(w.hashes, rel)
		delete(w.pending, rel)
		return false
	}

	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	if !w.matches(rel) {
		return false
	}
	w.pending[rel] = true
	logging.Debug("watch_change", "path", rel, "op", event.Op.String())
	return true
}

// flush processes every pending file whose content changed.
func (w *watcher) flush(ctx context.Context, onResult func(FileResult)) {
	for rel := range w.pending {
		delete(w.pending, rel)
		if ctx.Err() != nil {
			return
		}

		src := filepath.Join(w.root, filepath.FromSlash(rel))
		hash, err := cas.HashFile(src)
		if err != nil {
			continue
		}
		if w.hashes[rel] == hash {
			continue
		}

		res := w.p.processFile(ctx, w.run, w.root, rel)
		if res.Err != nil {
			logging.Error("watch_process_failed", "path", rel, "error", res.Err.Error())
		}

		// remember what is on disk now, which is our own output when the
		// file was rewritten in place
		if h, err := cas.HashFile(src); err == nil {
			w.hashes[rel] = h
		}
		if onResult != nil {
			onResult(res)
		}
	}
}
