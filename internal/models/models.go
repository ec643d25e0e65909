package models

import "time"

type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Created     time.Time `json:"createdAt"`
}

type TaskKind string

const (
	TaskIndexFile TaskKind = "index_file"
)

type TaskStatus string

const (
	TaskPending  TaskStatus = "pending"
	TaskRunning  TaskStatus = "running"
	TaskFinished TaskStatus = "finished"
	TaskFailed   TaskStatus = "failed"
)

// TaskPayload snapshots the file at enqueue time. The runner embeds exactly
// what was read when the task was created, not what is on disk later.
type TaskPayload struct {
	File        string `json:"file"`
	PageContent string `json:"pageContent"`
}

type Task struct {
	ID        string      `json:"id"`
	ProjectID string      `json:"projectID"`
	Kind      TaskKind    `json:"kind"`
	Status    TaskStatus  `json:"status"`
	Payload   TaskPayload `json:"payload"`
	Branch    string      `json:"branch,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// KnowledgeEntry is one embedded description of one file. At most one entry
// exists per (project, file, branch); re-indexing updates it in place.
type KnowledgeEntry struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectID"`
	File        string    `json:"file"`
	Branch      string    `json:"branch"`
	PageContent string    `json:"pageContent"`
	Embedding   []float32 `json:"-"`
	Score       float64   `json:"score,omitempty"`
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type Conversation struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectID"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Messages  []Message `json:"messages,omitempty"`
}

// IndexProgress is emitted by the task runner while a crawl is processed.
type IndexProgress struct {
	Step       string `json:"step"`
	Message    string `json:"message"`
	Percentage int    `json:"percentage"`
}

// ChatEventName enumerates the progress events of a single chat turn.
type ChatEventName string

const (
	ChatEventStart    ChatEventName = "start"
	ChatEventToolCall ChatEventName = "tool_call"
	ChatEventToken    ChatEventName = "token"
	ChatEventEnd      ChatEventName = "end"
	ChatEventError    ChatEventName = "error"
)

type ChatEvent struct {
	Event     ChatEventName  `json:"event"`
	Content   string         `json:"content,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
}
