// Package openai implements llm.ChatProvider and llm.Embedder against any
// OpenAI-compatible endpoint (Ollama, LM Studio, vLLM, the real thing).
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/buildownai/buddy/internal/config"
	"github.com/buildownai/buddy/internal/llm"
)

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	minGap  time.Duration

	mu      sync.Mutex // guards lastReq
	lastReq time.Time
}

func New(cfg config.LLMConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: 120 * time.Second},
		minGap:  cfg.MinInterval,
	}
}

type chatStream struct {
	body io.ReadCloser
	r    *bufio.Reader
}

func (s *chatStream) Recv() (string, bool, error) {
	line, err := s.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", true, nil
		}
		return "", true, err
	}
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "data:") {
		return "", false, nil
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == "[DONE]" {
		return "", true, nil
	}
	var evt struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		return "", false, nil
	}
	if len(evt.Choices) > 0 {
		return evt.Choices[0].Delta.Content, false, nil
	}
	return "", false, nil
}

func (s *chatStream) Close() error { return s.body.Close() }

type staticStream struct{ s string }

func (s *staticStream) Recv() (string, bool, error) {
	if s.s == "" {
		return "", true, nil
	}
	v := s.s
	s.s = ""
	return v, false, nil
}
func (s *staticStream) Close() error { return nil }

// wire types for /chat/completions
type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

func toWire(messages []llm.Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wm := wireMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			var w wireToolCall
			w.ID = tc.ID
			w.Type = "function"
			w.Function.Name = tc.Name
			w.Function.Arguments = string(tc.Arguments)
			wm.ToolCalls = append(wm.ToolCalls, w)
		}
		out = append(out, wm)
	}
	return out
}

// Chat implements llm.ChatProvider using an OpenAI-compatible API.
func (c *Client) Chat(ctx context.Context, model string, messages []llm.Message, stream bool, temperature float32) (llm.ChatStream, error) {
	reqBody := map[string]any{
		"model":       model,
		"messages":    toWire(messages),
		"temperature": temperature,
		"stream":      stream,
	}
	resp, err := c.post(ctx, "/chat/completions", reqBody)
	if err != nil {
		return nil, err
	}
	if stream {
		return &chatStream{body: resp.Body, r: bufio.NewReader(resp.Body)}, nil
	}
	defer resp.Body.Close()
	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	content := ""
	if len(out.Choices) > 0 {
		content = out.Choices[0].Message.Content
	}
	return &staticStream{s: content}, nil
}

// ChatTools performs a single non-streaming completion with function calling
// enabled and returns the assistant message including any tool calls.
func (c *Client) ChatTools(ctx context.Context, model string, messages []llm.Message, tools []llm.ToolDef, temperature float32) (llm.Message, error) {
	wireTools := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		var wt wireTool
		wt.Type = "function"
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		wt.Function.Parameters = t.Parameters
		wireTools = append(wireTools, wt)
	}
	reqBody := map[string]any{
		"model":       model,
		"messages":    toWire(messages),
		"temperature": temperature,
		"stream":      false,
	}
	if len(wireTools) > 0 {
		reqBody["tools"] = wireTools
	}
	resp, err := c.post(ctx, "/chat/completions", reqBody)
	if err != nil {
		return llm.Message{}, err
	}
	defer resp.Body.Close()
	var out struct {
		Choices []struct {
			Message wireMessage `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return llm.Message{}, err
	}
	if len(out.Choices) == 0 {
		return llm.Message{}, errors.New("chat: empty choices in response")
	}
	wm := out.Choices[0].Message
	msg := llm.Message{Role: llm.RoleAssistant, Content: wm.Content}
	for _, tc := range wm.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return msg, nil
}

// Embeddings implements llm.Embedder using an OpenAI-compatible API.
func (c *Client) Embeddings(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	reqBody := map[string]any{
		"model": model,
		"input": inputs,
	}
	resp, err := c.post(ctx, "/embeddings", reqBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	res := make([][]float32, 0, len(out.Data))
	for _, d := range out.Data {
		res = append(res, d.Embedding)
	}
	return res, nil
}

// ListModels fetches available model IDs via GET /models.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("models http %d: %s", resp.StatusCode, string(data))
	}
	var out struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(out.Data))
	for _, m := range out.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%s http %d: %s", path, resp.StatusCode, string(data))
	}
	return resp, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// pace enforces the configured minimum interval between requests. The client
// is shared across goroutines, so the lock is held through the sleep and
// concurrent callers leave one gap apart.
func (c *Client) pace() {
	if c.minGap <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if since := time.Since(c.lastReq); since < c.minGap {
		time.Sleep(c.minGap - since)
	}
	c.lastReq = time.Now()
}

// do performs the HTTP request with optional min interval and retries on 429/5xx.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	c.pace()
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}
	var resp *http.Response
	var err error
	backoff := 200 * time.Millisecond
	for attempt := 0; attempt < 3; attempt++ {
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
		}
		resp, err = c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != 429 && resp.StatusCode/100 != 5 {
			return resp, nil
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		time.Sleep(backoff + time.Duration(attempt)*100*time.Millisecond)
	}
	if body != nil {
		req.Body = io.NopCloser(bytes.NewReader(body))
	}
	return c.http.Do(req)
}
