package taskqueue

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildownai/buddy/internal/log"
	"github.com/buildownai/buddy/internal/models"
	"github.com/buildownai/buddy/internal/store"
)

func newTestQueue(t *testing.T) (*Queue, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Skip("sqlite not available:", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewQueue(st, log.NewWithOutput(io.Discard, log.Error)), st
}

func TestEnqueueRepositorySnapshotsContent(t *testing.T) {
	q, st := newTestQueue(t)
	ctx := context.Background()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "a.ts"), []byte("const a = 1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "readme.txt"), []byte("ignored"), 0o644))

	n, err := q.EnqueueRepository(ctx, "p1", root, "")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	tasks, err := st.ListTasks(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, models.TaskPending, tasks[0].Status)
	require.Equal(t, "/src/a.ts", tasks[0].Payload.File)
	require.Equal(t, "const a = 1", tasks[0].Payload.PageContent)

	// later edits must not change the snapshot in the payload
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "a.ts"), []byte("const a = 2"), 0o644))
	tasks, err = st.ListTasks(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, "const a = 1", tasks[0].Payload.PageContent)
}

func TestEnqueueFileReadsAtEnqueueTime(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.go"), []byte("package b"), 0o644))

	task, err := q.EnqueueFile(ctx, "p1", root, "/b.go", "dev")
	require.NoError(t, err)
	require.Equal(t, "/b.go", task.Payload.File)
	require.Equal(t, "package b", task.Payload.PageContent)
	require.Equal(t, "dev", task.Branch)
}

func TestEnqueueFileMissing(t *testing.T) {
	q, _ := newTestQueue(t)
	_, err := q.EnqueueFile(context.Background(), "p1", t.TempDir(), "/missing.go", "")
	require.Error(t, err)
}
