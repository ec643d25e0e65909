// Package server exposes the HTTP API: project management, repository
// indexing with SSE progress, and the tool-calling chat endpoint streaming
// its events over SSE.
package server

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/buildownai/buddy/internal/agent"
	"github.com/buildownai/buddy/internal/config"
	"github.com/buildownai/buddy/internal/knowledge"
	"github.com/buildownai/buddy/internal/llm"
	"github.com/buildownai/buddy/internal/llm/assist"
	"github.com/buildownai/buddy/internal/llm/openai"
	"github.com/buildownai/buddy/internal/log"
	"github.com/buildownai/buddy/internal/sandbox"
	"github.com/buildownai/buddy/internal/store"
	"github.com/buildownai/buddy/internal/taskqueue"
	"github.com/buildownai/buddy/internal/tools"
	"github.com/buildownai/buddy/internal/version"
	"github.com/buildownai/buddy/internal/watcher"
)

type API struct {
	store     *store.SQLiteStore
	knowledge *knowledge.Store
	queue     *taskqueue.Queue
	runner    *taskqueue.Runner
	agent     *agent.Agent
	assist    *assist.Assistant
	embedder  llm.Embedder
	cfg       config.Config
	logger    *log.Logger
	watchers  *watcher.Manager

	mu    sync.Mutex
	turns map[string]*sync.Mutex
}

// SetWatchers enables automatic reindexing of changed project files. Left
// unset in tests.
func (a *API) SetWatchers(m *watcher.Manager) { a.watchers = m }

func NewAPI(st *store.SQLiteStore, ks *knowledge.Store, q *taskqueue.Queue, r *taskqueue.Runner, ag *agent.Agent, as *assist.Assistant, emb llm.Embedder, cfg config.Config, logger *log.Logger) *API {
	return &API{
		store:     st,
		knowledge: ks,
		queue:     q,
		runner:    r,
		agent:     ag,
		assist:    as,
		embedder:  emb,
		cfg:       cfg,
		logger:    logger.With(map[string]string{"component": "server"}),
		turns:     make(map[string]*sync.Mutex),
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.String()})
	})
	mux.HandleFunc("GET /projects", a.handleListProjects)
	mux.HandleFunc("POST /projects", a.handleCreateProject)
	mux.HandleFunc("GET /projects/{id}", a.handleGetProject)
	mux.HandleFunc("POST /projects/{id}/index", a.handleIndex)
	mux.HandleFunc("GET /projects/{id}/tasks", a.handleListTasks)
	mux.HandleFunc("GET /tasks/{id}", a.handleGetTask)
	mux.HandleFunc("POST /projects/{id}/chat", a.handleChat)
	mux.HandleFunc("GET /projects/{id}/conversations", a.handleListConversations)
	mux.HandleFunc("GET /conversations/{id}", a.handleGetConversation)
	return a.logMiddleware(mux)
}

// Run wires all components together and serves until ctx is cancelled. The
// task runner drains the queue in the background, picking up any tasks a
// previous run left behind.
func Run(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	st, err := store.NewSQLite(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer st.Close()
	ks := knowledge.NewStore(st.DB())
	client := openai.New(cfg.LLM)
	emb := llm.NewCachingEmbedder(client, 2048)
	as := assist.New(client, cfg.LLM, assist.DefaultPrompts())
	queue := taskqueue.NewQueue(st, logger)
	runner := taskqueue.NewRunner(st, ks, as, emb, cfg, logger)
	ag := agent.New(st, client, as, cfg, logger)
	api := NewAPI(st, ks, queue, runner, ag, as, emb, cfg, logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go runner.Run(runCtx)

	watchers := watcher.NewManager(runCtx, queue, ks, logger)
	api.SetWatchers(watchers)
	if projects, err := st.ListProjects(runCtx); err == nil {
		for _, p := range projects {
			box, err := sandbox.New(cfg.TempDir, p.ID)
			if err != nil {
				continue
			}
			if err := watchers.Watch(p.ID, box.Root(), ""); err != nil {
				logger.Warn("watch failed", "project", p.ID, "err", err.Error())
			}
		}
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: api.Handler()}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("listening", "addr", cfg.Addr, "version", version.String())

	select {
	case <-ctx.Done():
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// turnLock serializes chat turns per conversation so concurrent requests
// cannot interleave their transcript writes.
func (a *API) turnLock(conversationID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.turns[conversationID]
	if !ok {
		m = &sync.Mutex{}
		a.turns[conversationID] = m
	}
	return m
}

// registry builds the tool set for one chat request, scoped to the
// project's sandbox.
func (a *API) registry(projectID, branch string) (*tools.Registry, error) {
	box, err := sandbox.New(a.cfg.TempDir, projectID)
	if err != nil {
		return nil, err
	}
	reg := tools.NewRegistry(a.logger)
	reg.Register(tools.GetContext(a.knowledge, a.embedder, a.assist, a.cfg, projectID, branch))
	reg.Register(tools.ReadFile(box))
	reg.Register(tools.WriteFile(box))
	reg.Register(tools.CreateDirectory(box))
	reg.Register(tools.CheckIfFileExist(box))
	reg.Register(tools.GetFolderStructure(box))
	reg.Register(tools.FetchWebpage(a.assist))
	reg.Register(tools.GetNPMPackageInfo())
	return reg, nil
}

// Helpers

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func writeError(w http.ResponseWriter, status int, errStr, message string) {
	writeJSON(w, status, apiError{Error: errStr, Message: message, Code: status})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	nbytes int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.nbytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if fl, ok := sr.ResponseWriter.(http.Flusher); ok {
		fl.Flush()
	}
}

func (a *API) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if reqID == "" {
			reqID = newRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		a.logger.Info("http.req",
			"req_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", int(time.Since(start)/time.Millisecond),
			"bytes", rec.nbytes,
		)
	})
}

func newRequestID() string {
	var b [12]byte
	if _, err := crand.Read(b[:]); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 24)
	for i, v := range b {
		out[i*2] = hexdigits[v>>4]
		out[i*2+1] = hexdigits[v&0x0f]
	}
	return string(out)
}

// sseSender writes one SSE event per call, flushing after each.
func sseSender(w http.ResponseWriter) func(event string, data any) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	fl, _ := w.(http.Flusher)
	return func(event string, data any) {
		b, err := json.Marshal(data)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: %s\n", event)
		fmt.Fprintf(w, "data: %s\n\n", b)
		if fl != nil {
			fl.Flush()
		}
	}
}
