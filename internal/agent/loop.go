// Package agent runs one chat turn: it feeds the conversation to the model,
// executes the tool calls the model requests and loops until the model
// produces a final answer or the iteration cap is reached.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/buildownai/buddy/internal/config"
	"github.com/buildownai/buddy/internal/llm"
	"github.com/buildownai/buddy/internal/llm/assist"
	"github.com/buildownai/buddy/internal/log"
	"github.com/buildownai/buddy/internal/models"
	"github.com/buildownai/buddy/internal/store"
	"github.com/buildownai/buddy/internal/tools"
)

// EmitFunc receives the progress events of a running turn.
type EmitFunc func(models.ChatEvent)

type Agent struct {
	store  *store.SQLiteStore
	chat   llm.ChatProvider
	assist *assist.Assistant
	cfg    config.Config
	logger *log.Logger
}

func New(st *store.SQLiteStore, chat llm.ChatProvider, as *assist.Assistant, cfg config.Config, logger *log.Logger) *Agent {
	return &Agent{
		store:  st,
		chat:   chat,
		assist: as,
		cfg:    cfg,
		logger: logger.With(map[string]string{"component": "agent"}),
	}
}

// RunTurn appends the user message to the conversation, runs the tool loop
// and returns the final answer. Events are emitted along the way; the
// transcript including tool results is persisted so the history endpoint
// shows what the model did. Cancelling ctx stops the turn between model
// calls and tool executions.
func (a *Agent) RunTurn(ctx context.Context, conversationID, userMessage string, reg *tools.Registry, emit EmitFunc) (string, error) {
	conv, err := a.store.GetConversation(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	if _, err := a.store.AppendMessage(ctx, conversationID, models.RoleUser, userMessage); err != nil {
		return "", err
	}
	emit(models.ChatEvent{Event: models.ChatEventStart})

	working := wireTranscript(conv)
	working = append(working, llm.Message{Role: llm.RoleUser, Content: userMessage})

	answer := ""
	for i := 0; i < a.cfg.Agent.MaxToolIterations; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		msg, err := a.chat.ChatTools(ctx, a.cfg.LLM.ChatModel, working, reg.Defs(), 0)
		if err != nil {
			return "", err
		}
		if len(msg.ToolCalls) == 0 {
			answer = msg.Content
			break
		}
		working = append(working, msg)
		for _, call := range msg.ToolCalls {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			emit(models.ChatEvent{Event: models.ChatEventToolCall, Tool: call.Name, Arguments: argsMap(call.Arguments)})
			result := reg.Execute(ctx, call.Name, call.Arguments)
			working = append(working, llm.Message{Role: llm.RoleTool, Content: result, ToolCallID: call.ID})
			if _, err := a.store.AppendMessage(ctx, conversationID, models.RoleTool,
				fmt.Sprintf("%s: %s", call.Name, result)); err != nil {
				a.logger.Warn("persist tool result failed", "conversation", conversationID, "err", err.Error())
			}
		}
	}
	if answer == "" {
		a.logger.Warn("tool iteration cap reached", "conversation", conversationID, "cap", a.cfg.Agent.MaxToolIterations)
		answer = a.forceAnswer(ctx, working)
	}

	if _, err := a.store.AppendMessage(ctx, conversationID, models.RoleAssistant, answer); err != nil {
		return "", err
	}
	emit(models.ChatEvent{Event: models.ChatEventToken, Content: answer})
	emit(models.ChatEvent{Event: models.ChatEventEnd})
	go a.summarize(conversationID)
	return answer, nil
}

// forceAnswer asks the model for a final answer without offering tools,
// used when the iteration cap is hit while the model still wants to call
// tools.
func (a *Agent) forceAnswer(ctx context.Context, working []llm.Message) string {
	working = append(working, llm.Message{
		Role:    llm.RoleUser,
		Content: "Answer now with what you have learned so far. Do not request any more tool calls.",
	})
	msg, err := a.chat.ChatTools(ctx, a.cfg.LLM.ChatModel, working, nil, 0)
	if err != nil || msg.Content == "" {
		return "I could not finish the task within the allowed number of tool calls."
	}
	return msg.Content
}

// summarize refreshes the conversation summary in the background after the
// turn has been answered. Failures only log.
func (a *Agent) summarize(conversationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	recent, err := a.store.RecentMessages(ctx, conversationID, a.cfg.Agent.RecentMessages)
	if err != nil || len(recent) == 0 {
		return
	}
	summary, err := a.assist.SummarizeConversation(ctx, recent)
	if err != nil {
		a.logger.Debug("summary failed", "conversation", conversationID, "err", err.Error())
		return
	}
	if err := a.store.UpdateConversationSummary(ctx, conversationID, summary); err != nil {
		a.logger.Debug("summary update failed", "conversation", conversationID, "err", err.Error())
	}
}

// wireTranscript converts the stored conversation into chat messages. Tool
// results from earlier turns are replayed as user context because the wire
// format requires tool messages to follow a tool call of the same response.
func wireTranscript(conv *models.Conversation) []llm.Message {
	out := make([]llm.Message, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		switch m.Role {
		case models.RoleSystem:
			out = append(out, llm.Message{Role: llm.RoleSystem, Content: m.Content})
		case models.RoleUser:
			out = append(out, llm.Message{Role: llm.RoleUser, Content: m.Content})
		case models.RoleAssistant:
			out = append(out, llm.Message{Role: llm.RoleAssistant, Content: m.Content})
		case models.RoleTool:
			out = append(out, llm.Message{Role: llm.RoleUser, Content: "Earlier tool result:\n" + m.Content})
		}
	}
	return out
}

func argsMap(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	m := make(map[string]any)
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
