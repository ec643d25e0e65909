// Package taskqueue turns repository files into durable indexing tasks and
// runs them with a single background worker. Tasks survive restarts in
// SQLite and are processed oldest first.
package taskqueue

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/buildownai/buddy/internal/indexer"
	"github.com/buildownai/buddy/internal/log"
	"github.com/buildownai/buddy/internal/models"
	"github.com/buildownai/buddy/internal/store"
)

// Queue creates indexing tasks. The file content is snapshotted into the
// task payload at enqueue time so later edits do not change what gets
// embedded for that task.
type Queue struct {
	store  *store.SQLiteStore
	logger *log.Logger
}

func NewQueue(st *store.SQLiteStore, logger *log.Logger) *Queue {
	return &Queue{store: st, logger: logger}
}

// EnqueueRepository crawls root and enqueues one task per indexable file.
// Returns the number of tasks created. Files that fail to read are logged
// and skipped; the rest of the batch is still enqueued.
func (q *Queue) EnqueueRepository(ctx context.Context, projectID, root, branch string) (int, error) {
	docs, unreadable, err := indexer.Crawl(root)
	if err != nil {
		return 0, err
	}
	for _, p := range unreadable {
		q.logger.Warn("file unreadable, skipped", "project", projectID, "file", p)
	}
	n := 0
	for _, d := range docs {
		_, err := q.store.EnqueueTask(ctx, projectID, models.TaskIndexFile,
			models.TaskPayload{File: d.Path, PageContent: d.Content}, branch)
		if err != nil {
			q.logger.Warn("enqueue failed", "project", projectID, "file", d.Path, "err", err.Error())
			continue
		}
		n++
	}
	q.logger.Info("repository enqueued", "project", projectID, "files", n)
	return n, nil
}

// EnqueueFile re-reads one file under root and enqueues a task for it. Used
// by the file watcher when a source file changes.
func (q *Queue) EnqueueFile(ctx context.Context, projectID, root, file, branch string) (*models.Task, error) {
	rel := strings.TrimPrefix(file, "/")
	b, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, err
	}
	return q.store.EnqueueTask(ctx, projectID, models.TaskIndexFile,
		models.TaskPayload{File: "/" + rel, PageContent: string(b)}, branch)
}
