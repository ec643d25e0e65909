package watcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buildownai/buddy/internal/knowledge"
	"github.com/buildownai/buddy/internal/log"
	"github.com/buildownai/buddy/internal/store"
	"github.com/buildownai/buddy/internal/taskqueue"
)

func newTestWatcher(t *testing.T) (*Watcher, *store.SQLiteStore, *knowledge.Store, string) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Skip("sqlite not available:", err)
	}
	t.Cleanup(func() { st.Close() })
	logger := log.NewWithOutput(io.Discard, log.Error)
	ks := knowledge.NewStore(st.DB())
	q := taskqueue.NewQueue(st, logger)
	root := t.TempDir()
	w, err := New(q, ks, logger, "p1", root, "")
	require.NoError(t, err)
	return w, st, ks, root
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestWatcherEnqueuesChangedCodeFile(t *testing.T) {
	w, st, _, root := newTestWatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a"), 0o644))

	waitFor(t, func() bool {
		tasks, err := st.ListTasks(context.Background(), "p1")
		return err == nil && len(tasks) >= 1
	})
	tasks, err := st.ListTasks(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, "/a.go", tasks[0].Payload.File)
}

func TestWatcherIgnoresNonCodeFiles(t *testing.T) {
	w, st, _, root := newTestWatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(root, "image.png"), []byte("x"), 0o644))
	time.Sleep(300 * time.Millisecond)

	tasks, err := st.ListTasks(context.Background(), "p1")
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestWatcherDeletesKnowledgeOnRemove(t *testing.T) {
	w, _, ks, root := newTestWatcher(t)
	path := filepath.Join(root, "b.go")
	require.NoError(t, os.WriteFile(path, []byte("package b"), 0o644))
	require.NoError(t, ks.Upsert(context.Background(), "p1", "/b.go", "", "desc", []float32{1}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.Remove(path))

	waitFor(t, func() bool {
		e, err := ks.Get(context.Background(), "p1", "/b.go", "")
		return err == nil && e == nil
	})
}
