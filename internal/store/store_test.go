package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/buildownai/buddy/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Skip("sqlite not available:", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProjectCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, "demo", "a demo project")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if p.ID == "" {
		t.Fatalf("empty project id")
	}
	got, err := s.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Name != "demo" || got.Description != "a demo project" {
		t.Fatalf("unexpected project %+v", got)
	}
	list, err := s.ListProjects(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected 1 project, got %d (err=%v)", len(list), err)
	}
	if _, err := s.GetProject(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClaimOrderIsFIFO(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for _, f := range []string{"/a.go", "/b.go", "/c.go"} {
		task, err := s.EnqueueTask(ctx, "p1", models.TaskIndexFile, models.TaskPayload{File: f, PageContent: "x"}, "")
		if err != nil {
			t.Fatalf("EnqueueTask: %v", err)
		}
		ids = append(ids, task.ID)
	}
	for i := 0; i < 3; i++ {
		task, err := s.ClaimNext(ctx, false)
		if err != nil {
			t.Fatalf("ClaimNext: %v", err)
		}
		if task.ID != ids[i] {
			t.Fatalf("claim %d: want %s got %s", i, ids[i], task.ID)
		}
		if err := s.SetTaskStatus(ctx, task.ID, models.TaskFinished); err != nil {
			t.Fatalf("SetTaskStatus: %v", err)
		}
	}
	if _, err := s.ClaimNext(ctx, false); err != ErrNotFound {
		t.Fatalf("expected empty queue, got %v", err)
	}
}

func TestClaimRecoversRunningTask(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	crashed, err := s.EnqueueTask(ctx, "p1", models.TaskIndexFile, models.TaskPayload{File: "/old.go"}, "")
	if err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}
	if err := s.SetTaskStatus(ctx, crashed.ID, models.TaskRunning); err != nil {
		t.Fatalf("SetTaskStatus: %v", err)
	}
	if _, err := s.EnqueueTask(ctx, "p1", models.TaskIndexFile, models.TaskPayload{File: "/new.go"}, ""); err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}

	// the interrupted running task is older and must be claimed first
	task, err := s.ClaimNext(ctx, false)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if task.ID != crashed.ID {
		t.Fatalf("expected crashed task first, got %s", task.Payload.File)
	}
}

func TestFailedTasksStayUnlessRetryEnabled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task, err := s.EnqueueTask(ctx, "p1", models.TaskIndexFile, models.TaskPayload{File: "/f.go"}, "")
	if err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}
	if err := s.SetTaskStatus(ctx, task.ID, models.TaskFailed); err != nil {
		t.Fatalf("SetTaskStatus: %v", err)
	}
	if _, err := s.ClaimNext(ctx, false); err != ErrNotFound {
		t.Fatalf("failed task must not be claimed, got %v", err)
	}
	got, err := s.ClaimNext(ctx, true)
	if err != nil {
		t.Fatalf("ClaimNext(retryFailed): %v", err)
	}
	if got.ID != task.ID {
		t.Fatalf("expected failed task to be reclaimed")
	}
	// the row is still there either way
	if _, err := s.GetTask(ctx, task.ID); err != nil {
		t.Fatalf("GetTask: %v", err)
	}
}

func TestCountTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := s.EnqueueTask(ctx, "p1", models.TaskIndexFile, models.TaskPayload{File: "/a"}, "")
	_, _ = s.EnqueueTask(ctx, "p1", models.TaskIndexFile, models.TaskPayload{File: "/b"}, "")
	_ = s.SetTaskStatus(ctx, a.ID, models.TaskFinished)

	counts, err := s.CountTasks(ctx, "p1")
	if err != nil {
		t.Fatalf("CountTasks: %v", err)
	}
	if counts[models.TaskFinished] != 1 || counts[models.TaskPending] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestConversationTranscript(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.StartConversation(ctx, "p1", "system prompt")
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	if _, err := s.AppendMessage(ctx, c.ID, models.RoleUser, "hello"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if _, err := s.AppendMessage(ctx, c.ID, models.RoleAssistant, "hi"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	got, err := s.GetConversation(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	roles := []models.Role{models.RoleSystem, models.RoleUser, models.RoleAssistant}
	if len(got.Messages) != len(roles) {
		t.Fatalf("expected %d messages, got %d", len(roles), len(got.Messages))
	}
	for i, r := range roles {
		if got.Messages[i].Role != r {
			t.Fatalf("message %d: want role %s got %s", i, r, got.Messages[i].Role)
		}
	}

	if err := s.UpdateConversationSummary(ctx, c.ID, "greeting"); err != nil {
		t.Fatalf("UpdateConversationSummary: %v", err)
	}
	list, err := s.ListConversations(ctx, "p1")
	if err != nil || len(list) != 1 || list[0].Summary != "greeting" {
		t.Fatalf("unexpected conversation list %+v (err=%v)", list, err)
	}
}

func TestRecentMessagesSkipsToolAndSystem(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.StartConversation(ctx, "p1", "system prompt")
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	_, _ = s.AppendMessage(ctx, c.ID, models.RoleUser, "q1")
	_, _ = s.AppendMessage(ctx, c.ID, models.RoleTool, "tool output")
	_, _ = s.AppendMessage(ctx, c.ID, models.RoleAssistant, "a1")

	msgs, err := s.RecentMessages(ctx, c.ID, 5)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "q1" || msgs[1].Content != "a1" {
		t.Fatalf("unexpected recent messages %+v", msgs)
	}
	if !msgs[0].CreatedAt.Before(msgs[1].CreatedAt.Add(time.Nanosecond)) {
		t.Fatalf("expected chronological order")
	}
}
