package connector

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/sjson"
	"golang.org/x/net/http2"

	"github.com/llmproxy-dev/llmproxy/internal/apierr"
	"github.com/llmproxy-dev/llmproxy/internal/ratelimit"
	"github.com/llmproxy-dev/llmproxy/internal/session"
)

const defaultOpenRouterURL = "https://openrouter.ai/api/v1/chat/completions"

// OpenRouterConnector speaks the OpenAI chat-completions wire format
// directly, since OpenRouter is itself OpenAI-wire-compatible; it reuses
// the openai dialect translator pair for both directions.
type OpenRouterConnector struct {
	apiURL string
	http   *http.Client

	mu          sync.RWMutex
	cachedModels []string
}

// NewOpenRouterConnector builds a connector targeting apiURL ("" selects
// the default public endpoint), transporting over HTTP/2 when the server
// supports it (golang.org/x/net/http2), matching preference
// for http2-capable transports on its hosted-backend connectors.
func NewOpenRouterConnector(apiURL string) *OpenRouterConnector {
	if apiURL == "" {
		apiURL = defaultOpenRouterURL
	}
	transport := &http.Transport{}
	_ = http2.ConfigureTransport(transport)
	return &OpenRouterConnector{
		apiURL: apiURL,
		http:   &http.Client{Transport: transport, Timeout: 120 * time.Second},
	}
}

func (c *OpenRouterConnector) Backend() string { return "openrouter" }

func (c *OpenRouterConnector) Models(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	if c.cachedModels != nil {
		defer c.mu.RUnlock()
		return c.cachedModels, nil
	}
	c.mu.RUnlock()
	// The model catalog is large and volatile; callers configure known
	// models out of band (connector.SetModels) rather than this connector
	// probing the /models endpoint on every cold start.
	return nil, nil
}

// SetModels seeds the cached model catalog, e.g. from configuration.
func (c *OpenRouterConnector) SetModels(models []string) {
	c.mu.Lock()
	c.cachedModels = models
	c.mu.Unlock()
}

func (c *OpenRouterConnector) ChatCompletions(ctx context.Context, req *session.Request, model, apiKey string) (*session.Response, *apierr.Error) {
	body, err := buildOpenAIBody(req, model, false)
	if err != nil {
		return nil, apierr.InvalidRequest("openrouter: %v", err)
	}

	httpResp, aerr := c.do(ctx, body, apiKey)
	if aerr != nil {
		return nil, aerr
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, apierr.Transient(fmt.Sprintf("openrouter: reading response: %v", err))
	}
	return decodeOpenAIResponse(raw)
}

func (c *OpenRouterConnector) StreamChatCompletions(ctx context.Context, req *session.Request, model, apiKey string) <-chan StreamChunk {
	body, err := buildOpenAIBody(req, model, true)
	if err != nil {
		return sendErr(apierr.InvalidRequest("openrouter: %v", err))
	}

	httpResp, aerr := c.do(ctx, body, apiKey)
	if aerr != nil {
		return sendErr(aerr)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer httpResp.Body.Close()

		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 || !bytes.HasPrefix(line, []byte("data:")) {
				continue
			}
			payload := bytes.TrimSpace(line[len("data:"):])
			if string(payload) == "[DONE]" {
				out <- StreamChunk{Done: true}
				return
			}
			resp, err := decodeOpenAIChunk(payload)
			if err != nil {
				out <- StreamChunk{Err: apierr.Transient(fmt.Sprintf("openrouter: decoding chunk: %v", err)), Done: true}
				return
			}
			select {
			case out <- StreamChunk{Response: resp}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case out <- StreamChunk{Err: apierr.Transient(fmt.Sprintf("openrouter: stream read: %v", err)), Done: true}:
			default:
			}
		}
	}()
	return out
}

func (c *OpenRouterConnector) do(ctx context.Context, body []byte, apiKey string) (*http.Response, *apierr.Error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, apierr.Transient(fmt.Sprintf("openrouter: building request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apierr.Cancelled()
		}
		return nil, apierr.Transient(fmt.Sprintf("openrouter: request failed: %v", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		delaySeconds, ok := ratelimit.ParseRetryDelay(raw)
		delay := 30 * time.Second
		if ok {
			delay = time.Duration(delaySeconds * float64(time.Second))
		}
		return nil, apierr.RateLimited(delay, "openrouter: rate limited")
	}
	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()
		return nil, apierr.Unauthorized("openrouter: invalid credentials")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, apierr.Terminal(resp.StatusCode, fmt.Sprintf("openrouter: upstream error: %s", string(raw)))
	}
	return resp, nil
}

// buildOpenAIBody builds an OpenAI-chat-shaped request body from the
// canonical request; this is the inverse direction of the openai request
// translator, which only implements ToCanonical, so the shape is built
// directly here with encoding/json rather than routing through the
// registry.
func buildOpenAIBody(req *session.Request, model string, stream bool) ([]byte, error) {
	type wireFunction struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	}
	type wireToolCall struct {
		ID       string       `json:"id"`
		Type     string       `json:"type"`
		Function wireFunction `json:"function"`
	}
	type wireMessage struct {
		Role       string         `json:"role"`
		Content    any            `json:"content,omitempty"`
		Name       string         `json:"name,omitempty"`
		ToolCallID string         `json:"tool_call_id,omitempty"`
		ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	}
	type wireReq struct {
		Model       string        `json:"model"`
		Messages    []wireMessage `json:"messages"`
		Stream      bool          `json:"stream"`
		Temperature *float64      `json:"temperature,omitempty"`
		TopP        *float64      `json:"top_p,omitempty"`
		MaxTokens   *int          `json:"max_tokens,omitempty"`
		Stop        []string      `json:"stop,omitempty"`
		Tools       any           `json:"tools,omitempty"`
		ToolChoice  any           `json:"tool_choice,omitempty"`
	}
	w := wireReq{
		Model: model, Stream: stream,
		Temperature: req.Temperature, TopP: req.TopP, MaxTokens: req.MaxTokens, Stop: req.Stop,
		Tools: req.Tools, ToolChoice: req.ToolChoice,
	}
	for _, m := range req.Messages {
		wm := wireMessage{Role: string(m.Role), Content: buildOpenAIContent(m), Name: m.Name, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID: tc.ID, Type: tc.Type,
				Function: wireFunction{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
		w.Messages = append(w.Messages, wm)
	}
	out, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	for k, v := range req.ExtraBody {
		vb, err := json.Marshal(v)
		if err != nil {
			continue
		}
		if merged, err := sjson.SetRawBytes(out, k, vb); err == nil {
			out = merged
		}
	}
	return out, nil
}

// buildOpenAIContent renders a canonical message's content as a plain string
// when it has none of the multipart constructs, or as an OpenAI-shaped
// content-parts array (text / image_url) when it does, so image_url and
// inline_data parts survive the trip to an OpenAI-wire backend instead of
// being silently dropped.
func buildOpenAIContent(m session.Message) any {
	if !m.HasParts() {
		return m.Text
	}
	parts := make([]map[string]any, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch p.Kind {
		case session.PartText:
			if p.Text != "" {
				parts = append(parts, map[string]any{"type": "text", "text": p.Text})
			}
		case session.PartImageURL:
			parts = append(parts, map[string]any{"type": "image_url", "image_url": map[string]any{"url": p.ImageURL}})
		case session.PartInlineData:
			// InlineData is already the base64 text carried over the wire
			// (see the gemini/anthropic ToCanonical parsers); re-encoding it
			// here would double-encode the payload.
			url := "data:" + p.InlineMime + ";base64," + string(p.InlineData)
			parts = append(parts, map[string]any{"type": "image_url", "image_url": map[string]any{"url": url}})
		}
	}
	return parts
}

type wireToolCallIn struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

func toolCallsFromWire(in []wireToolCallIn) []session.ToolCall {
	if len(in) == 0 {
		return nil
	}
	out := make([]session.ToolCall, 0, len(in))
	for _, tc := range in {
		out = append(out, session.ToolCall{
			ID:        tc.ID,
			Type:      tc.Type,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}

func decodeOpenAIResponse(raw []byte) (*session.Response, *apierr.Error) {
	var wire struct {
		ID      string `json:"id"`
		Model   string `json:"model"`
		Created int64  `json:"created"`
		Choices []struct {
			Index   int    `json:"index"`
			Message struct {
				Role       string           `json:"role"`
				Content    string           `json:"content"`
				Name       string           `json:"name"`
				ToolCallID string           `json:"tool_call_id"`
				ToolCalls  []wireToolCallIn `json:"tool_calls"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, apierr.Transient(fmt.Sprintf("openrouter: decoding response: %v", err))
	}
	if wire.Error != nil {
		return nil, apierr.Terminal(0, wire.Error.Message)
	}
	resp := &session.Response{ID: wire.ID, Model: wire.Model, Created: wire.Created, Object: "chat.completion"}
	for _, c := range wire.Choices {
		resp.Choices = append(resp.Choices, session.Choice{
			Index: c.Index,
			Message: &session.Message{
				Role:       session.Role(c.Message.Role),
				Text:       c.Message.Content,
				Name:       c.Message.Name,
				ToolCallID: c.Message.ToolCallID,
				ToolCalls:  toolCallsFromWire(c.Message.ToolCalls),
			},
			FinishReason: c.FinishReason,
		})
	}
	resp.Usage = &session.Usage{
		PromptTokens:     wire.Usage.PromptTokens,
		CompletionTokens: wire.Usage.CompletionTokens,
		TotalTokens:      wire.Usage.TotalTokens,
	}
	return resp, nil
}

func decodeOpenAIChunk(raw []byte) (*session.Response, error) {
	var wire struct {
		ID      string `json:"id"`
		Model   string `json:"model"`
		Created int64  `json:"created"`
		Choices []struct {
			Index int `json:"index"`
			Delta struct {
				Role      string           `json:"role"`
				Content   string           `json:"content"`
				ToolCalls []wireToolCallIn `json:"tool_calls"`
			} `json:"delta"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}
	resp := &session.Response{ID: wire.ID, Model: wire.Model, Created: wire.Created, Object: "chat.completion.chunk"}
	for _, c := range wire.Choices {
		resp.Choices = append(resp.Choices, session.Choice{
			Index: c.Index,
			Delta: &session.Message{
				Role:      session.Role(c.Delta.Role),
				Text:      c.Delta.Content,
				ToolCalls: toolCallsFromWire(c.Delta.ToolCalls),
			},
			FinishReason: c.FinishReason,
		})
	}
	return resp, nil
}
