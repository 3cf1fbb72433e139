// Package openai translates between the OpenAI chat-completions wire
// dialect and the canonical request/response model, using gjson/sjson for
// raw-JSON translation rather than full unmarshal/marshal round trips.
package openai

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/llmproxy-dev/llmproxy/internal/apierr"
	"github.com/llmproxy-dev/llmproxy/internal/session"
	"github.com/llmproxy-dev/llmproxy/internal/translator"
)

func init() {
	translator.Register(translator.OpenAIChat, chatRequestTranslator{}, chatResponseTranslator{})
}

type chatRequestTranslator struct{}

// ToCanonical maps a raw openai-chat request to canonical form.
func (chatRequestTranslator) ToCanonical(raw []byte) (*session.Request, error) {
	root := gjson.ParseBytes(raw)
	model := root.Get("model").String()
	if model == "" {
		return nil, apierr.InvalidRequest("openai-chat: missing model")
	}

	msgsResult := root.Get("messages")
	if !msgsResult.Exists() || !msgsResult.IsArray() || len(msgsResult.Array()) == 0 {
		return nil, apierr.InvalidRequest("openai-chat: messages must be a non-empty array")
	}

	req := &session.Request{
		Model:  model,
		Stream: root.Get("stream").Bool(),
	}

	var parseErr error
	msgsResult.ForEach(func(_, m gjson.Result) bool {
		msg, err := parseMessage(m)
		if err != nil {
			parseErr = err
			return false
		}
		req.Messages = append(req.Messages, msg)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	if v := root.Get("temperature"); v.Exists() {
		f := v.Float()
		req.Temperature = &f
	}
	if v := root.Get("top_p"); v.Exists() {
		f := v.Float()
		req.TopP = &f
	}
	if v := root.Get("max_tokens"); v.Exists() {
		n := int(v.Int())
		req.MaxTokens = &n
	}
	if v := root.Get("presence_penalty"); v.Exists() {
		f := v.Float()
		req.PresencePenalty = &f
	}
	if v := root.Get("frequency_penalty"); v.Exists() {
		f := v.Float()
		req.FrequencyPenalty = &f
	}
	if v := root.Get("seed"); v.Exists() {
		n := v.Int()
		req.Seed = &n
	}
	if v := root.Get("n"); v.Exists() {
		n := int(v.Int())
		req.N = &n
	}
	if v := root.Get("stop"); v.Exists() {
		if v.IsArray() {
			v.ForEach(func(_, s gjson.Result) bool {
				req.Stop = append(req.Stop, s.String())
				return true
			})
		} else {
			req.Stop = []string{v.String()}
		}
	}
	if v := root.Get("tools"); v.Exists() {
		req.Tools = v.Value()
	}
	if v := root.Get("tool_choice"); v.Exists() {
		req.ToolChoice = v.Value()
	}
	if v := root.Get("response_format"); v.Exists() {
		req.ResponseFormat = &session.ResponseFormat{Type: v.Get("type").String()}
		if schema, ok := v.Get("json_schema.schema").Value().(map[string]any); ok {
			req.ResponseFormat.Schema = schema
		}
	}

	return req, nil
}

func parseMessage(m gjson.Result) (session.Message, error) {
	role := m.Get("role").String()
	if role == "" {
		return session.Message{}, apierr.InvalidRequest("openai-chat: message missing role")
	}
	msg := session.Message{
		Role:       session.Role(role),
		Name:       m.Get("name").String(),
		ToolCallID: m.Get("tool_call_id").String(),
	}

	content := m.Get("content")
	if content.IsArray() {
		content.ForEach(func(_, part gjson.Result) bool {
			switch part.Get("type").String() {
			case "text":
				msg.Parts = append(msg.Parts, session.Part{Kind: session.PartText, Text: part.Get("text").String()})
			case "image_url":
				msg.Parts = append(msg.Parts, session.Part{Kind: session.PartImageURL, ImageURL: part.Get("image_url.url").String()})
			}
			return true
		})
	} else {
		msg.Text = content.String()
	}

	if tc := m.Get("tool_calls"); tc.Exists() && tc.IsArray() {
		tc.ForEach(func(_, c gjson.Result) bool {
			msg.ToolCalls = append(msg.ToolCalls, session.ToolCall{
				ID:        c.Get("id").String(),
				Type:      c.Get("type").String(),
				Name:      c.Get("function.name").String(),
				Arguments: c.Get("function.arguments").String(),
			})
			return true
		})
	}
	return msg, nil
}

type chatResponseTranslator struct{}

func (chatResponseTranslator) FromCanonical(resp *session.Response) ([]byte, error) {
	out := `{"object":"chat.completion","choices":[]}`
	out = setEnvelope(out, resp)

	for _, c := range resp.Choices {
		choiceJSON := `{}`
		choiceJSON, _ = sjson.Set(choiceJSON, "index", c.Index)
		if c.Message != nil {
			msgJSON := messageToJSON(*c.Message)
			choiceJSON, _ = sjson.SetRaw(choiceJSON, "message", msgJSON)
		}
		if c.FinishReason != "" {
			choiceJSON, _ = sjson.Set(choiceJSON, "finish_reason", c.FinishReason)
		}
		out, _ = sjson.SetRaw(out, "choices.-1", choiceJSON)
	}
	if resp.Usage != nil {
		out, _ = sjson.Set(out, "usage.prompt_tokens", resp.Usage.PromptTokens)
		out, _ = sjson.Set(out, "usage.completion_tokens", resp.Usage.CompletionTokens)
		out, _ = sjson.Set(out, "usage.total_tokens", resp.Usage.TotalTokens)
	}
	return []byte(out), nil
}

func (chatResponseTranslator) FromCanonicalChunk(chunk *session.Response) ([]byte, error) {
	out := `{"object":"chat.completion.chunk","choices":[]}`
	out = setEnvelope(out, chunk)

	for _, c := range chunk.Choices {
		choiceJSON := `{}`
		choiceJSON, _ = sjson.Set(choiceJSON, "index", c.Index)
		if c.Delta != nil {
			deltaJSON := messageToJSON(*c.Delta)
			choiceJSON, _ = sjson.SetRaw(choiceJSON, "delta", deltaJSON)
		} else {
			choiceJSON, _ = sjson.SetRaw(choiceJSON, "delta", "{}")
		}
		if c.FinishReason != "" {
			choiceJSON, _ = sjson.Set(choiceJSON, "finish_reason", c.FinishReason)
		}
		out, _ = sjson.SetRaw(out, "choices.-1", choiceJSON)
	}
	return []byte(out), nil
}

func setEnvelope(out string, resp *session.Response) string {
	out, _ = sjson.Set(out, "id", resp.ID)
	created := resp.Created
	if created == 0 {
		created = time.Now().Unix()
	}
	out, _ = sjson.Set(out, "created", created)
	out, _ = sjson.Set(out, "model", resp.Model)
	return out
}

func messageToJSON(m session.Message) string {
	out := `{}`
	out, _ = sjson.Set(out, "role", string(m.Role))
	if m.HasParts() {
		out, _ = sjson.Set(out, "content", m.JoinText())
	} else {
		out, _ = sjson.Set(out, "content", m.Text)
	}
	if len(m.ToolCalls) > 0 {
		calls := make([]any, 0, len(m.ToolCalls))
		for _, tc := range m.ToolCalls {
			calls = append(calls, map[string]any{
				"id":   tc.ID,
				"type": "function",
				"function": map[string]any{
					"name":      tc.Name,
					"arguments": tc.Arguments,
				},
			})
		}
		b, _ := json.Marshal(calls)
		out, _ = sjson.SetRaw(out, "tool_calls", string(b))
	}
	return out
}

// SSEFrame wraps a raw JSON chunk as an OpenAI-style `data: ...\n\n` SSE
// frame.
func SSEFrame(raw []byte) []byte {
	var b strings.Builder
	b.WriteString("data: ")
	b.Write(raw)
	b.WriteString("\n\n")
	return []byte(b.String())
}

// DoneFrame is the sentinel terminating an OpenAI-style SSE stream.
const DoneFrame = "data: [DONE]\n\n"
