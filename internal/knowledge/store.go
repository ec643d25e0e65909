// Package knowledge persists embedded file descriptions and answers
// similarity queries over them. Vectors live as JSON arrays in the shared
// SQLite database; scoring is plain cosine similarity computed in process,
// which is fast enough for per-project corpora of a few thousand files.
package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/buildownai/buddy/internal/models"
)

// Embedding inputs are prefixed so the model distinguishes stored documents
// from queries, as nomic-style embedding models expect.
const (
	DocumentPrefix = "search_document: "
	QueryPrefix    = "search_query: "
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Upsert writes the description and embedding for one file. At most one row
// exists per (project, file, branch); re-indexing updates it in place.
func (s *Store) Upsert(ctx context.Context, projectID, file, branch, pageContent string, embedding []float32) error {
	if branch == "" {
		branch = "main"
	}
	vec, err := json.Marshal(embedding)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE knowledge SET page_content=?, embedding=?, dim=?, updated_at=? WHERE project_id=? AND file=? AND branch=?`,
		pageContent, string(vec), len(embedding), now, projectID, file, branch)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO knowledge(id,project_id,file,branch,page_content,embedding,dim,created_at,updated_at) VALUES(?,?,?,?,?,?,?,?,?)`,
		uuid.NewString(), projectID, file, branch, pageContent, string(vec), len(embedding), now, now)
	return err
}

// Delete removes the entry for one file, used when the source file is
// deleted from the project.
func (s *Store) Delete(ctx context.Context, projectID, file, branch string) error {
	if branch == "" {
		branch = "main"
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM knowledge WHERE project_id=? AND file=? AND branch=?`, projectID, file, branch)
	return err
}

// Get returns the entry for one file, or nil when absent.
func (s *Store) Get(ctx context.Context, projectID, file, branch string) (*models.KnowledgeEntry, error) {
	if branch == "" {
		branch = "main"
	}
	var e models.KnowledgeEntry
	var vec string
	err := s.db.QueryRowContext(ctx,
		`SELECT id,project_id,file,branch,page_content,embedding FROM knowledge WHERE project_id=? AND file=? AND branch=?`,
		projectID, file, branch).
		Scan(&e.ID, &e.ProjectID, &e.File, &e.Branch, &e.PageContent, &vec)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(vec), &e.Embedding); err != nil {
		return nil, err
	}
	return &e, nil
}

// Search returns the entries most similar to the query embedding, ordered by
// descending cosine score. Entries below threshold are dropped and at most
// maxResults are returned.
func (s *Store) Search(ctx context.Context, projectID string, query []float32, branch string, maxResults int, threshold float64) ([]models.KnowledgeEntry, error) {
	if branch == "" {
		branch = "main"
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,file,page_content,embedding FROM knowledge WHERE project_id=? AND branch=? AND dim=?`,
		projectID, branch, len(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []models.KnowledgeEntry
	for rows.Next() {
		var e models.KnowledgeEntry
		var vec string
		if err := rows.Scan(&e.ID, &e.File, &e.PageContent, &vec); err != nil {
			return nil, err
		}
		var emb []float32
		if err := json.Unmarshal([]byte(vec), &emb); err != nil || len(emb) != len(query) {
			continue
		}
		score := cosine(query, emb)
		if score < threshold {
			continue
		}
		e.ProjectID = projectID
		e.Branch = branch
		e.Score = score
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
