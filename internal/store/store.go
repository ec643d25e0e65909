// Package store persists projects, indexing tasks and chat conversations in
// a single SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/buildownai/buddy/internal/models"
)

var (
	ErrNotFound = errors.New("store: not found")
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := (Manager{}).UpToLatest(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// DB exposes the underlying handle for the knowledge store, which shares the
// same database file.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, v)
	}
	return t
}

// Projects

func (s *SQLiteStore) CreateProject(ctx context.Context, name, description string) (*models.Project, error) {
	p := &models.Project{ID: uuid.NewString(), Name: name, Description: description, Created: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx, `INSERT INTO projects(id,name,description,created_at) VALUES(?,?,?,?)`,
		p.ID, p.Name, p.Description, p.Created.Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	var p models.Project
	var created string
	err := s.db.QueryRowContext(ctx, `SELECT id,name,COALESCE(description,''),created_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &p.Description, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Created = parseTime(created)
	return &p, nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context) ([]*models.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,name,COALESCE(description,''),created_at FROM projects ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Project
	for rows.Next() {
		var p models.Project
		var created string
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &created); err != nil {
			return nil, err
		}
		p.Created = parseTime(created)
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	return err
}

// Tasks

// EnqueueTask inserts one pending task. The payload carries the file content
// snapshot taken by the caller at enqueue time.
func (s *SQLiteStore) EnqueueTask(ctx context.Context, projectID string, kind models.TaskKind, payload models.TaskPayload, branch string) (*models.Task, error) {
	if branch == "" {
		branch = "main"
	}
	ts := now()
	t := &models.Task{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Kind:      kind,
		Status:    models.TaskPending,
		Payload:   payload,
		Branch:    branch,
		CreatedAt: parseTime(ts),
		UpdatedAt: parseTime(ts),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(id,project_id,kind,status,file,page_content,branch,created_at,updated_at) VALUES(?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.Kind, t.Status, payload.File, payload.PageContent, branch, ts, ts)
	if err != nil {
		return nil, err
	}
	return t, nil
}

const taskColumns = `id,project_id,kind,status,file,page_content,branch,created_at,updated_at`

func scanTask(row interface{ Scan(...any) error }) (*models.Task, error) {
	var t models.Task
	var created, updated string
	err := row.Scan(&t.ID, &t.ProjectID, &t.Kind, &t.Status, &t.Payload.File, &t.Payload.PageContent, &t.Branch, &created, &updated)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return &t, nil
}

// ClaimNext returns the oldest task that is pending or still marked running.
// Running tasks are included on purpose: after a crash the interrupted task
// is picked up again before younger pending work.
func (s *SQLiteStore) ClaimNext(ctx context.Context, retryFailed bool) (*models.Task, error) {
	statuses := `'pending','running'`
	if retryFailed {
		statuses = `'pending','running','failed'`
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status IN (`+statuses+`) ORDER BY created_at ASC, rowid ASC LIMIT 1`)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *SQLiteStore) ListTasks(ctx context.Context, projectID string) ([]*models.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id=? ORDER BY created_at ASC, rowid ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetTaskStatus moves a task through its lifecycle. Tasks are never deleted;
// finished and failed rows remain as an audit trail.
func (s *SQLiteStore) SetTaskStatus(ctx context.Context, id string, status models.TaskStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET status=?, updated_at=? WHERE id=?`, status, now(), id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountTasks reports tasks per status for a project, used for progress.
func (s *SQLiteStore) CountTasks(ctx context.Context, projectID string) (map[models.TaskStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM tasks WHERE project_id=? GROUP BY status`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[models.TaskStatus]int)
	for rows.Next() {
		var st models.TaskStatus
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[st] = n
	}
	return out, rows.Err()
}

// Conversations

// StartConversation creates a conversation whose first message is the system
// prompt. The transcript is append-only from here on.
func (s *SQLiteStore) StartConversation(ctx context.Context, projectID, systemPrompt string) (*models.Conversation, error) {
	c := &models.Conversation{ID: uuid.NewString(), ProjectID: projectID, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx, `INSERT INTO conversations(id,project_id,summary,created_at) VALUES(?,?,'',?)`,
		c.ID, c.ProjectID, c.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	if _, err := s.AppendMessage(ctx, c.ID, models.RoleSystem, systemPrompt); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID string, role models.Role, content string) (*models.Message, error) {
	m := &models.Message{ID: uuid.NewString(), Role: role, Content: content, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_messages(id,conversation_id,role,content,created_at) VALUES(?,?,?,?,?)`,
		m.ID, conversationID, m.Role, m.Content, m.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetConversation loads a conversation with its full transcript in insertion
// order.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var c models.Conversation
	var created string
	err := s.db.QueryRowContext(ctx, `SELECT id,project_id,COALESCE(summary,''),created_at FROM conversations WHERE id=?`, id).
		Scan(&c.ID, &c.ProjectID, &c.Summary, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(created)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,role,content,created_at FROM conversation_messages WHERE conversation_id=? ORDER BY created_at ASC, rowid ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m models.Message
		var mc string
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &mc); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTime(mc)
		c.Messages = append(c.Messages, m)
	}
	return &c, rows.Err()
}

func (s *SQLiteStore) ListConversations(ctx context.Context, projectID string) ([]*models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,project_id,COALESCE(summary,''),created_at FROM conversations WHERE project_id=? ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Conversation
	for rows.Next() {
		var c models.Conversation
		var created string
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Summary, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(created)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateConversationSummary(ctx context.Context, id, summary string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE conversations SET summary=? WHERE id=?`, summary, id)
	return err
}

// RecentMessages returns the newest user/assistant messages in chronological
// order, for summary generation.
func (s *SQLiteStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,role,content,created_at FROM conversation_messages
		 WHERE conversation_id=? AND role IN ('user','assistant')
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Message
	for rows.Next() {
		var m models.Message
		var mc string
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &mc); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTime(mc)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
