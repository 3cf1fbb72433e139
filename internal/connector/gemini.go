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

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/llmproxy-dev/llmproxy/internal/apierr"
	"github.com/llmproxy-dev/llmproxy/internal/ratelimit"
	"github.com/llmproxy-dev/llmproxy/internal/session"
)

const defaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiConnector talks to the public Gemini REST API using an API key,
// reusing gjson for response scanning
type GeminiConnector struct {
	apiURL string
	http   *http.Client

	mu     sync.RWMutex
	models []string
}

func NewGeminiConnector(apiURL string) *GeminiConnector {
	if apiURL == "" {
		apiURL = defaultGeminiURL
	}
	return &GeminiConnector{
		apiURL: apiURL,
		http:   &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *GeminiConnector) Backend() string { return "gemini" }

func (c *GeminiConnector) SetModels(models []string) {
	c.mu.Lock()
	c.models = models
	c.mu.Unlock()
}

func (c *GeminiConnector) Models(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.models, nil
}

func (c *GeminiConnector) ChatCompletions(ctx context.Context, req *session.Request, model, apiKey string) (*session.Response, *apierr.Error) {
	body := buildGeminiBody(req)
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.apiURL, model, apiKey)
	httpResp, aerr := c.do(ctx, url, body)
	if aerr != nil {
		return nil, aerr
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, apierr.Transient(fmt.Sprintf("gemini: reading response: %v", err))
	}
	return decodeGeminiResponse(raw)
}

func (c *GeminiConnector) StreamChatCompletions(ctx context.Context, req *session.Request, model, apiKey string) <-chan StreamChunk {
	body := buildGeminiBody(req)
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", c.apiURL, model, apiKey)
	httpResp, aerr := c.do(ctx, url, body)
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
			resp, err := decodeGeminiResponse(payload)
			if err != nil {
				select {
				case out <- StreamChunk{Err: err, Done: true}:
				case <-ctx.Done():
				}
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
			case out <- StreamChunk{Err: apierr.Transient(fmt.Sprintf("gemini: stream read: %v", err)), Done: true}:
			default:
			}
			return
		}
		out <- StreamChunk{Done: true}
	}()
	return out
}

func (c *GeminiConnector) do(ctx context.Context, url string, body []byte) (*http.Response, *apierr.Error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apierr.Transient(fmt.Sprintf("gemini: building request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apierr.Cancelled()
		}
		return nil, apierr.Transient(fmt.Sprintf("gemini: request failed: %v", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		delaySeconds, ok := ratelimit.ParseRetryDelay(raw)
		delay := 30 * time.Second
		if ok {
			delay = time.Duration(delaySeconds * float64(time.Second))
		}
		return nil, apierr.RateLimited(delay, "gemini: rate limited")
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		_ = resp.Body.Close()
		return nil, apierr.Unauthorized("gemini: invalid credentials")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, apierr.Terminal(resp.StatusCode, fmt.Sprintf("gemini: upstream error: %s", string(raw)))
	}
	return resp, nil
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type geminiFunctionResponse struct {
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response,omitempty"`
}

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	InlineData       *geminiInlineData       `json:"inlineData,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

// buildGeminiParts renders a canonical message's content, tool calls and
// tool results into Gemini's part shapes: plain text, inlineData for
// image_url/inline_data parts, and functionCall/functionResponse for
// assistant tool invocations and tool-role results.
func buildGeminiParts(m session.Message) []geminiPart {
	var parts []geminiPart
	if !m.HasParts() {
		if m.Text != "" && m.Role != session.RoleTool {
			parts = append(parts, geminiPart{Text: m.Text})
		}
	} else {
		for _, p := range m.Parts {
			switch p.Kind {
			case session.PartText:
				if p.Text != "" {
					parts = append(parts, geminiPart{Text: p.Text})
				}
			case session.PartImageURL:
				// Gemini has no bare-URL image part; carry the URL as text
				// rather than silently dropping the reference.
				parts = append(parts, geminiPart{Text: p.ImageURL})
			case session.PartInlineData:
				// InlineData already holds base64 text as parsed off the
				// wire, so it is forwarded unchanged.
				parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: p.InlineMime, Data: string(p.InlineData)}})
			}
		}
	}
	for _, tc := range m.ToolCalls {
		parts = append(parts, geminiPart{FunctionCall: &geminiFunctionCall{Name: tc.Name, Args: rawOrNullJSON(tc.Arguments)}})
	}
	if m.Role == session.RoleTool {
		parts = append(parts, geminiPart{FunctionResponse: &geminiFunctionResponse{Name: m.Name, Response: rawOrNullJSON(m.Text)}})
	}
	return parts
}

func rawOrNullJSON(s string) json.RawMessage {
	if s == "" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(s)
}

func buildGeminiBody(req *session.Request) []byte {
	type genConfig struct {
		Temperature     *float64 `json:"temperature,omitempty"`
		TopP            *float64 `json:"topP,omitempty"`
		MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
		StopSequences   []string `json:"stopSequences,omitempty"`
	}
	type wire struct {
		Contents         []geminiContent `json:"contents"`
		SystemInstr      *geminiContent  `json:"system_instruction,omitempty"`
		GenerationConfig *genConfig      `json:"generationConfig,omitempty"`
		Tools            any             `json:"tools,omitempty"`
		ToolConfig       any             `json:"toolConfig,omitempty"`
	}
	w := wire{
		GenerationConfig: &genConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			MaxOutputTokens: req.MaxTokens,
			StopSequences:   req.Stop,
		},
		Tools:      req.Tools,
		ToolConfig: req.ToolChoice,
	}
	for _, m := range req.Messages {
		parts := buildGeminiParts(m)
		if m.Role == session.RoleSystem {
			w.SystemInstr = &geminiContent{Role: "user", Parts: parts}
			continue
		}
		role := "user"
		if m.Role == session.RoleAssistant {
			role = "model"
		} else if m.Role == session.RoleTool {
			role = "function"
		}
		w.Contents = append(w.Contents, geminiContent{Role: role, Parts: parts})
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return nil
	}
	for k, v := range req.ExtraBody {
		vb, err := json.Marshal(v)
		if err != nil {
			continue
		}
		if merged, err := sjson.SetRawBytes(raw, k, vb); err == nil {
			raw = merged
		}
	}
	return raw
}

func decodeGeminiResponse(raw []byte) (*session.Response, *apierr.Error) {
	root := gjson.ParseBytes(raw)
	if errVal := root.Get("error"); errVal.Exists() {
		return nil, apierr.Terminal(int(errVal.Get("code").Int()), errVal.Get("message").String())
	}

	resp := &session.Response{Object: "chat.completion"}
	root.Get("candidates").ForEach(func(_, cand gjson.Result) bool {
		text := ""
		var calls []session.ToolCall
		cand.Get("content.parts").ForEach(func(_, p gjson.Result) bool {
			if fc := p.Get("functionCall"); fc.Exists() {
				calls = append(calls, session.ToolCall{
					Type:      "function",
					Name:      fc.Get("name").String(),
					Arguments: fc.Get("args").Raw,
				})
				return true
			}
			text += p.Get("text").String()
			return true
		})
		resp.Choices = append(resp.Choices, session.Choice{
			Index:        int(cand.Get("index").Int()),
			Message:      &session.Message{Role: session.RoleAssistant, Text: text, ToolCalls: calls},
			FinishReason: geminiFinishReason(cand.Get("finishReason").String()),
		})
		return true
	})
	if usage := root.Get("usageMetadata"); usage.Exists() {
		resp.Usage = &session.Usage{
			PromptTokens:     int(usage.Get("promptTokenCount").Int()),
			CompletionTokens: int(usage.Get("candidatesTokenCount").Int()),
			TotalTokens:      int(usage.Get("totalTokenCount").Int()),
		}
	}
	return resp, nil
}

func geminiFinishReason(raw string) string {
	switch raw {
	case "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	default:
		return ""
	}
}
