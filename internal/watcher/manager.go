package watcher

import (
	"context"
	"sync"

	"github.com/buildownai/buddy/internal/knowledge"
	"github.com/buildownai/buddy/internal/log"
	"github.com/buildownai/buddy/internal/taskqueue"
)

// Manager runs one watcher per project. Watch is idempotent per project;
// all watchers stop when the manager context is cancelled.
type Manager struct {
	ctx       context.Context
	queue     *taskqueue.Queue
	knowledge *knowledge.Store
	logger    *log.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewManager(ctx context.Context, q *taskqueue.Queue, ks *knowledge.Store, logger *log.Logger) *Manager {
	return &Manager{
		ctx:       ctx,
		queue:     q,
		knowledge: ks,
		logger:    logger,
		cancels:   make(map[string]context.CancelFunc),
	}
}

func (m *Manager) Watch(projectID, root, branch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, running := m.cancels[projectID]; running {
		return nil
	}
	w, err := New(m.queue, m.knowledge, m.logger, projectID, root, branch)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancels[projectID] = cancel
	go func() {
		w.Run(ctx)
		m.mu.Lock()
		delete(m.cancels, projectID)
		m.mu.Unlock()
	}()
	return nil
}

func (m *Manager) Stop(projectID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.cancels[projectID]; ok {
		cancel()
		delete(m.cancels, projectID)
	}
}
