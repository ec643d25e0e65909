package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/buildownai/buddy/internal/agent"
	"github.com/buildownai/buddy/internal/models"
	"github.com/buildownai/buddy/internal/sandbox"
	"github.com/buildownai/buddy/internal/store"
)

func (a *API) handleListProjects(w http.ResponseWriter, r *http.Request) {
	list, err := a.store.ListProjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if list == nil {
		list = []*models.Project{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "malformed request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name required")
		return
	}
	p, err := a.store.CreateProject(r.Context(), req.Name, req.Description)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	box, err := sandbox.New(a.cfg.TempDir, p.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if a.watchers != nil {
		if err := a.watchers.Watch(p.ID, box.Root(), ""); err != nil {
			a.logger.Warn("watch failed", "project", p.ID, "err", err.Error())
		}
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := a.store.GetProject(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "project not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleIndex crawls the project's working directory and enqueues one task
// per file. With ?stream=1 the response is an SSE stream of progress events
// that ends when all tasks of the project have been processed.
func (a *API) handleIndex(w http.ResponseWriter, r *http.Request) {
	p, err := a.store.GetProject(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "project not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	branch := r.URL.Query().Get("branch")
	box, err := sandbox.New(a.cfg.TempDir, p.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if r.URL.Query().Get("stream") != "1" {
		n, err := a.queue.EnqueueRepository(r.Context(), p.ID, box.Root(), branch)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"enqueued": n})
		return
	}

	send := sseSender(w)
	progress, cancel := a.runner.Subscribe(p.ID)
	defer cancel()
	n, err := a.queue.EnqueueRepository(r.Context(), p.ID, box.Root(), branch)
	if err != nil {
		send("error", models.IndexProgress{Step: "crawl", Message: err.Error()})
		return
	}
	send("progress", models.IndexProgress{Step: "crawl", Message: "repository crawled", Percentage: 0})
	if n == 0 {
		send("done", models.IndexProgress{Step: "index", Message: "nothing to index", Percentage: 100})
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-progress:
			if !ok {
				return
			}
			send("progress", ev)
			if ev.Percentage >= 100 {
				send("done", models.IndexProgress{Step: "index", Message: "indexing complete", Percentage: 100})
				return
			}
		}
	}
}

func (a *API) handleListTasks(w http.ResponseWriter, r *http.Request) {
	list, err := a.store.ListTasks(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if list == nil {
		list = []*models.Task{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := a.store.GetTask(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "task not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleChat runs one chat turn and streams its events over SSE. A missing
// conversationID starts a new conversation seeded with the system prompt.
func (a *API) handleChat(w http.ResponseWriter, r *http.Request) {
	p, err := a.store.GetProject(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "project not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	var req struct {
		ConversationID string `json:"conversationID"`
		Message        string `json:"message"`
		Branch         string `json:"branch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "malformed request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "message required")
		return
	}
	conversationID := req.ConversationID
	if conversationID == "" {
		conv, err := a.store.StartConversation(r.Context(), p.ID, agent.SystemPrompt(p))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error())
			return
		}
		conversationID = conv.ID
	}
	reg, err := a.registry(p.ID, req.Branch)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	lock := a.turnLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	send := sseSender(w)
	emit := func(ev models.ChatEvent) {
		data := map[string]any{"conversationID": conversationID}
		if ev.Content != "" {
			data["content"] = ev.Content
		}
		if ev.Tool != "" {
			data["tool"] = ev.Tool
		}
		if ev.Arguments != nil {
			data["arguments"] = ev.Arguments
		}
		send(string(ev.Event), data)
	}
	if _, err := a.agent.RunTurn(r.Context(), conversationID, req.Message, reg, emit); err != nil {
		a.logger.Error("chat turn failed", "conversation", conversationID, "err", err.Error())
		emit(models.ChatEvent{Event: models.ChatEventError, Content: err.Error()})
	}
}

func (a *API) handleListConversations(w http.ResponseWriter, r *http.Request) {
	list, err := a.store.ListConversations(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if list == nil {
		list = []*models.Conversation{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	c, err := a.store.GetConversation(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}
