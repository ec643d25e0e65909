package assist

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildownai/buddy/internal/config"
	"github.com/buildownai/buddy/internal/llm"
	"github.com/buildownai/buddy/internal/models"
)

type recordingStream struct{ s string }

func (r *recordingStream) Recv() (string, bool, error) {
	if r.s == "" {
		return "", true, nil
	}
	v := r.s
	r.s = ""
	return v, false, nil
}
func (r *recordingStream) Close() error { return nil }

type recordingChat struct {
	reply    string
	model    string
	messages []llm.Message
}

func (r *recordingChat) Chat(ctx context.Context, model string, messages []llm.Message, stream bool, temperature float32) (llm.ChatStream, error) {
	r.model = model
	r.messages = messages
	return &recordingStream{s: r.reply}, nil
}

func (r *recordingChat) ChatTools(ctx context.Context, model string, messages []llm.Message, tools []llm.ToolDef, temperature float32) (llm.Message, error) {
	return llm.Message{}, nil
}

func testAssistant(reply string) (*Assistant, *recordingChat) {
	chat := &recordingChat{reply: reply}
	cfg := config.LLMConfig{ChatModel: "big", SmallModel: "small"}
	return New(chat, cfg, DefaultPrompts()), chat
}

func TestDescribeFileUsesSmallModel(t *testing.T) {
	a, chat := testAssistant("  a description \n")
	out, err := a.DescribeFile(context.Background(), "/src/main.go", "package main")
	require.NoError(t, err)
	require.Equal(t, "a description", out, "output is trimmed")
	require.Equal(t, "small", chat.model)
	require.Contains(t, chat.messages[0].Content, "/src/main.go")
	require.Equal(t, "package main", chat.messages[1].Content)
}

func TestAnswerFromContextCarriesQuestionAndContext(t *testing.T) {
	a, chat := testAssistant("FAIL")
	out, err := a.AnswerFromContext(context.Background(), "what is x?", "## Source file /a.go\n\nx is 1")
	require.NoError(t, err)
	require.Equal(t, FailSentinel, out)
	require.Equal(t, "big", chat.model)
	user := chat.messages[1].Content
	require.Contains(t, user, "what is x?")
	require.Contains(t, user, "## Source file /a.go")
}

func TestSummarizeConversationJoinsMessages(t *testing.T) {
	a, chat := testAssistant("a summary")
	msgs := []models.Message{
		{Role: models.RoleUser, Content: "first"},
		{Role: models.RoleAssistant, Content: "second"},
	}
	out, err := a.SummarizeConversation(context.Background(), msgs)
	require.NoError(t, err)
	require.Equal(t, "a summary", out)
	require.Equal(t, "small", chat.model)
	user := chat.messages[1].Content
	require.Contains(t, user, "first")
	require.Contains(t, user, "second")
	require.True(t, strings.Contains(user, "---"))
}
