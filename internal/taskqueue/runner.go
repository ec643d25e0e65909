package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/buildownai/buddy/internal/config"
	"github.com/buildownai/buddy/internal/knowledge"
	"github.com/buildownai/buddy/internal/llm"
	"github.com/buildownai/buddy/internal/llm/assist"
	"github.com/buildownai/buddy/internal/log"
	"github.com/buildownai/buddy/internal/models"
	"github.com/buildownai/buddy/internal/store"
)

// Runner is the single worker draining the task queue. It claims the oldest
// pending or running task, describes the file with the small model, embeds
// the description and upserts it into the knowledge store. A task found in
// running state at claim time was interrupted by a crash and is redone;
// the upsert makes the redo harmless.
type Runner struct {
	store     *store.SQLiteStore
	knowledge *knowledge.Store
	assist    *assist.Assistant
	embedder  llm.Embedder
	cfg       config.Config
	logger    *log.Logger

	mu   sync.Mutex
	subs map[string][]chan models.IndexProgress
}

func NewRunner(st *store.SQLiteStore, ks *knowledge.Store, as *assist.Assistant, emb llm.Embedder, cfg config.Config, logger *log.Logger) *Runner {
	return &Runner{
		store:     st,
		knowledge: ks,
		assist:    as,
		embedder:  emb,
		cfg:       cfg,
		logger:    logger.With(map[string]string{"component": "taskqueue"}),
		subs:      make(map[string][]chan models.IndexProgress),
	}
}

// Run polls until ctx is cancelled. An empty queue sleeps for the poll
// interval; task failures are recorded and never stop the loop.
func (r *Runner) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		task, err := r.store.ClaimNext(ctx, r.cfg.Queue.RetryFailed)
		if errors.Is(err, store.ErrNotFound) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.cfg.Queue.PollInterval):
			}
			continue
		}
		if err != nil {
			r.logger.Error("claim failed", "err", err.Error())
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.cfg.Queue.PollInterval):
			}
			continue
		}
		r.runTask(ctx, task)
	}
}

func (r *Runner) runTask(ctx context.Context, task *models.Task) {
	if err := r.store.SetTaskStatus(ctx, task.ID, models.TaskRunning); err != nil {
		r.logger.Error("mark running failed", "task", task.ID, "err", err.Error())
		return
	}
	taskCtx, cancel := context.WithTimeout(ctx, r.cfg.Queue.TaskTimeout)
	err := r.process(taskCtx, task)
	cancel()
	status := models.TaskFinished
	if err != nil {
		status = models.TaskFailed
		r.logger.Warn("task failed", "task", task.ID, "file", task.Payload.File, "err", err.Error())
	}
	if err := r.store.SetTaskStatus(context.WithoutCancel(ctx), task.ID, status); err != nil {
		r.logger.Error("set status failed", "task", task.ID, "err", err.Error())
	}
	r.publishProgress(ctx, task)
}

func (r *Runner) process(ctx context.Context, task *models.Task) error {
	if task.Kind != models.TaskIndexFile {
		return fmt.Errorf("unknown task kind %q", task.Kind)
	}
	desc, err := r.assist.DescribeFile(ctx, task.Payload.File, task.Payload.PageContent)
	if err != nil {
		return fmt.Errorf("describe %s: %w", task.Payload.File, err)
	}
	vecs, err := r.embedder.Embeddings(ctx, r.cfg.LLM.EmbeddingModel, []string{knowledge.DocumentPrefix + desc})
	if err != nil {
		return fmt.Errorf("embed %s: %w", task.Payload.File, err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return fmt.Errorf("embed %s: empty embedding", task.Payload.File)
	}
	if err := r.knowledge.Upsert(ctx, task.ProjectID, task.Payload.File, task.Branch, desc, vecs[0]); err != nil {
		return fmt.Errorf("upsert %s: %w", task.Payload.File, err)
	}
	r.logger.Debug("file indexed", "project", task.ProjectID, "file", task.Payload.File)
	return nil
}

// Subscribe registers a progress listener for one project. The returned
// cancel func must be called when the listener goes away; slow listeners
// miss events instead of blocking the runner.
func (r *Runner) Subscribe(projectID string) (<-chan models.IndexProgress, func()) {
	ch := make(chan models.IndexProgress, 16)
	r.mu.Lock()
	r.subs[projectID] = append(r.subs[projectID], ch)
	r.mu.Unlock()
	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		list := r.subs[projectID]
		for i, c := range list {
			if c == ch {
				r.subs[projectID] = append(list[:i], list[i+1:]...)
				close(c)
				return
			}
		}
	}
	return ch, cancel
}

func (r *Runner) publishProgress(ctx context.Context, task *models.Task) {
	r.mu.Lock()
	listeners := len(r.subs[task.ProjectID])
	r.mu.Unlock()
	if listeners == 0 {
		return
	}
	counts, err := r.store.CountTasks(context.WithoutCancel(ctx), task.ProjectID)
	if err != nil {
		return
	}
	total, done := 0, 0
	for st, n := range counts {
		total += n
		if st == models.TaskFinished || st == models.TaskFailed {
			done += n
		}
	}
	pct := 100
	if total > 0 {
		pct = done * 100 / total
	}
	p := models.IndexProgress{
		Step:       "index",
		Message:    fmt.Sprintf("indexed %s", task.Payload.File),
		Percentage: pct,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.subs[task.ProjectID] {
		select {
		case c <- p:
		default:
		}
	}
}
