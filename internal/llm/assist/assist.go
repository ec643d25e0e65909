// Package assist bundles the fixed-prompt completions the backend needs
// around the chat loop: source-file descriptions for indexing, grounded
// answers for retrieval, HTML-to-Markdown conversion for web fetches, and
// conversation summaries.
package assist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/buildownai/buddy/internal/config"
	"github.com/buildownai/buddy/internal/llm"
	"github.com/buildownai/buddy/internal/models"
)

// Prompts holds the system prompt texts. It is built once at startup and
// never mutated afterwards.
type Prompts struct {
	DescribeFile   string
	AnswerContext  string
	HTMLToMarkdown string
	Summarize      string
}

const describeFilePrompt = `You are an AI which describes source code files.
You get the content of the file %s and create a compact natural language description of the file.
Describe what the code in the file does, which functions, types and exports it contains and how it relates to the rest of a project.
Return only the description, without markdown and without any introduction.`

const answerContextPrompt = `You are an AI which should answer to a search query or question, only based on the given context.
If the context does not contain the required information and facts to provide the answer, you must only return the word FAIL without any further explanation`

const htmlToMarkdownPrompt = `You are an AI which converts HTML content into clean Markdown.
Keep headings, lists, links and code blocks. Drop navigation, ads and boilerplate.
Return only the Markdown without any introduction.`

const summarizePrompt = `You are an AI which summarizes a chat conversation into a single short sentence, which is focusing on the most recent messages.`

// FailSentinel is returned by AnswerFromContext when the retrieved context
// cannot answer the question.
const FailSentinel = "FAIL"

func DefaultPrompts() Prompts {
	return Prompts{
		DescribeFile:   describeFilePrompt,
		AnswerContext:  answerContextPrompt,
		HTMLToMarkdown: htmlToMarkdownPrompt,
		Summarize:      summarizePrompt,
	}
}

type Assistant struct {
	chat    llm.ChatProvider
	cfg     config.LLMConfig
	prompts Prompts
}

func New(chat llm.ChatProvider, cfg config.LLMConfig, prompts Prompts) *Assistant {
	return &Assistant{chat: chat, cfg: cfg, prompts: prompts}
}

// DescribeFile asks the small model for a natural-language description of one
// source file. Used by the indexing runner.
func (a *Assistant) DescribeFile(ctx context.Context, file, content string) (string, error) {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: fmt.Sprintf(a.prompts.DescribeFile, file)},
		{Role: llm.RoleUser, Content: content},
	}
	return a.complete(ctx, a.cfg.SmallModel, msgs)
}

// AnswerFromContext answers a question strictly from the supplied context
// block. Returns FailSentinel when the context is insufficient.
func (a *Assistant) AnswerFromContext(ctx context.Context, question, contextBlock string) (string, error) {
	user := fmt.Sprintf("Extract and provide the information to answer the question.\n\nQuestion:\n%s\n\nContext:\n\n%s\n", question, contextBlock)
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: a.prompts.AnswerContext},
		{Role: llm.RoleUser, Content: user},
	}
	return a.complete(ctx, a.cfg.ChatModel, msgs)
}

// HTMLToMarkdown converts pre-stripped HTML into Markdown text.
func (a *Assistant) HTMLToMarkdown(ctx context.Context, html string) (string, error) {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: a.prompts.HTMLToMarkdown},
		{Role: llm.RoleUser, Content: html},
	}
	return a.complete(ctx, a.cfg.SmallModel, msgs)
}

// SummarizeConversation condenses recent messages into a one-sentence
// synopsis for the conversation list.
func (a *Assistant) SummarizeConversation(ctx context.Context, messages []models.Message) (string, error) {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		fmt.Fprintf(&b, "%s: %s\n%s", m.Role, m.CreatedAt.Format(time.RFC3339), m.Content)
	}
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: a.prompts.Summarize},
		{Role: llm.RoleUser, Content: b.String()},
	}
	return a.complete(ctx, a.cfg.SmallModel, msgs)
}

func (a *Assistant) complete(ctx context.Context, model string, msgs []llm.Message) (string, error) {
	st, err := a.chat.Chat(ctx, model, msgs, false, 0)
	if err != nil {
		return "", err
	}
	defer st.Close()
	var out strings.Builder
	for {
		delta, done, err := st.Recv()
		if err != nil {
			return "", err
		}
		out.WriteString(delta)
		if done {
			return strings.TrimSpace(out.String()), nil
		}
	}
}
