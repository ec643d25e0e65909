// Package watcher keeps the project knowledge in sync with the working
// directory. File writes enqueue a fresh indexing task for the changed
// file; deletions remove the file's knowledge entry.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/buildownai/buddy/internal/indexer"
	"github.com/buildownai/buddy/internal/knowledge"
	"github.com/buildownai/buddy/internal/log"
	"github.com/buildownai/buddy/internal/taskqueue"
)

type Watcher struct {
	queue     *taskqueue.Queue
	knowledge *knowledge.Store
	logger    *log.Logger

	projectID string
	root      string
	branch    string
	fsw       *fsnotify.Watcher
}

// New builds a watcher over one project working directory. Directories are
// watched recursively; newly created directories are picked up as they
// appear.
func New(q *taskqueue.Queue, ks *knowledge.Store, logger *log.Logger, projectID, root, branch string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		queue:     q,
		knowledge: ks,
		logger:    logger.With(map[string]string{"component": "watcher", "project": projectID}),
		projectID: projectID,
		root:      root,
		branch:    branch,
		fsw:       fsw,
	}
	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != dir && (strings.HasPrefix(name, ".") || name == "node_modules") {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// Run processes events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "err", err.Error())
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	file := "/" + filepath.ToSlash(rel)
	switch {
	case ev.Op.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				w.logger.Warn("watch add failed", "dir", ev.Name, "err", err.Error())
			}
			return
		}
		w.reindex(ctx, file)
	case ev.Op.Has(fsnotify.Write):
		w.reindex(ctx, file)
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		if !indexer.ShouldIndex(filepath.Base(file)) {
			return
		}
		if err := w.knowledge.Delete(ctx, w.projectID, file, w.branch); err != nil {
			w.logger.Warn("knowledge delete failed", "file", file, "err", err.Error())
		} else {
			w.logger.Debug("knowledge removed", "file", file)
		}
	}
}

func (w *Watcher) reindex(ctx context.Context, file string) {
	if !indexer.ShouldIndex(filepath.Base(file)) {
		return
	}
	if _, err := w.queue.EnqueueFile(ctx, w.projectID, w.root, file, w.branch); err != nil {
		w.logger.Warn("reindex enqueue failed", "file", file, "err", err.Error())
		return
	}
	w.logger.Debug("file change enqueued", "file", file)
}
