// Package anthropic translates between the Anthropic Messages wire dialect
// and the canonical request/response model, using the same gjson/sjson
// raw-JSON idiom as the other dialect packages, adapted to Anthropic's
// top-level "system" field and content-block message shape.
package anthropic

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/llmproxy-dev/llmproxy/internal/apierr"
	"github.com/llmproxy-dev/llmproxy/internal/session"
	"github.com/llmproxy-dev/llmproxy/internal/translator"
)

func init() {
	translator.Register(translator.Anthropic, requestTranslator{}, responseTranslator{})
}

type requestTranslator struct{}

// ToCanonical maps the Anthropic request shape to canonical form: the
// top-level "system" string or block array becomes a leading canonical
// system message, and each entry of "messages" maps role user/assistant
// straight across.
func (requestTranslator) ToCanonical(raw []byte) (*session.Request, error) {
	root := gjson.ParseBytes(raw)
	model := root.Get("model").String()
	if model == "" {
		return nil, apierr.InvalidRequest("anthropic: missing model")
	}

	req := &session.Request{
		Model:  model,
		Stream: root.Get("stream").Bool(),
	}
	if v := root.Get("max_tokens"); v.Exists() {
		n := int(v.Int())
		req.MaxTokens = &n
	}
	if v := root.Get("temperature"); v.Exists() {
		f := v.Float()
		req.Temperature = &f
	}
	if v := root.Get("top_p"); v.Exists() {
		f := v.Float()
		req.TopP = &f
	}
	if v := root.Get("stop_sequences"); v.Exists() && v.IsArray() {
		v.ForEach(func(_, s gjson.Result) bool {
			req.Stop = append(req.Stop, s.String())
			return true
		})
	}
	if v := root.Get("tools"); v.Exists() {
		req.Tools = v.Value()
	}
	if v := root.Get("tool_choice"); v.Exists() {
		req.ToolChoice = v.Value()
	}

	if sys := root.Get("system"); sys.Exists() {
		text := systemText(sys)
		if text != "" {
			req.Messages = append(req.Messages, session.Message{Role: session.RoleSystem, Text: text})
		}
	}

	msgsResult := root.Get("messages")
	if !msgsResult.Exists() || !msgsResult.IsArray() || len(msgsResult.Array()) == 0 {
		return nil, apierr.InvalidRequest("anthropic: messages must be a non-empty array")
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
	return req, nil
}

// systemText flattens Anthropic's "system" field, which may be a bare
// string or an array of {type: "text", text: "..."} blocks.
func systemText(sys gjson.Result) string {
	if sys.IsArray() {
		out := ""
		sys.ForEach(func(_, block gjson.Result) bool {
			if block.Get("type").String() != "text" {
				return true
			}
			if out != "" {
				out += "\n"
			}
			out += block.Get("text").String()
			return true
		})
		return out
	}
	return sys.String()
}

func parseMessage(m gjson.Result) (session.Message, error) {
	role := m.Get("role").String()
	if role == "" {
		return session.Message{}, apierr.InvalidRequest("anthropic: message missing role")
	}
	msg := session.Message{Role: session.Role(role)}

	content := m.Get("content")
	if !content.IsArray() {
		msg.Text = content.String()
		return msg, nil
	}

	content.ForEach(func(_, block gjson.Result) bool {
		switch block.Get("type").String() {
		case "text":
			msg.Parts = append(msg.Parts, session.Part{Kind: session.PartText, Text: block.Get("text").String()})
		case "image":
			src := block.Get("source")
			msg.Parts = append(msg.Parts, session.Part{
				Kind:       session.PartInlineData,
				InlineMime: src.Get("media_type").String(),
				InlineData: []byte(src.Get("data").String()),
			})
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, session.ToolCall{
				ID:        block.Get("id").String(),
				Type:      "function",
				Name:      block.Get("name").String(),
				Arguments: block.Get("input").Raw,
			})
		case "tool_result":
			msg.ToolCallID = block.Get("tool_use_id").String()
			if tc := block.Get("content"); tc.Exists() {
				if tc.IsArray() {
					msg.Text = systemText(tc)
				} else {
					msg.Text = tc.String()
				}
			}
		}
		return true
	})
	return msg, nil
}

type responseTranslator struct{}

func (responseTranslator) FromCanonical(resp *session.Response) ([]byte, error) {
	out := `{"type":"message","role":"assistant","content":[]}`
	out, _ = sjson.Set(out, "id", resp.ID)
	out, _ = sjson.Set(out, "model", resp.Model)

	if len(resp.Choices) > 0 && resp.Choices[0].Message != nil {
		m := resp.Choices[0].Message
		if m.HasParts() {
			out, _ = sjson.SetRaw(out, "content.-1", textBlock(m.JoinText()))
		} else if m.Text != "" {
			out, _ = sjson.SetRaw(out, "content.-1", textBlock(m.Text))
		}
		for _, tc := range m.ToolCalls {
			block := `{"type":"tool_use"}`
			block, _ = sjson.Set(block, "id", tc.ID)
			block, _ = sjson.Set(block, "name", tc.Name)
			block, _ = sjson.SetRaw(block, "input", orEmptyObject(tc.Arguments))
			out, _ = sjson.SetRaw(out, "content.-1", block)
		}
		out, _ = sjson.Set(out, "stop_reason", stopReason(resp.Choices[0].FinishReason))
	}
	if resp.Usage != nil {
		out, _ = sjson.Set(out, "usage.input_tokens", resp.Usage.PromptTokens)
		out, _ = sjson.Set(out, "usage.output_tokens", resp.Usage.CompletionTokens)
	}
	return []byte(out), nil
}

// FromCanonicalChunk emits a single Anthropic content_block_delta event
// per canonical streaming chunk; the dispatcher wraps this in the
// surrounding message_start/content_block_start/message_stop envelope once
// per stream rather than per chunk.
func (responseTranslator) FromCanonicalChunk(chunk *session.Response) ([]byte, error) {
	out := `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":""}}`
	if len(chunk.Choices) > 0 && chunk.Choices[0].Delta != nil {
		d := chunk.Choices[0].Delta
		text := d.Text
		if d.HasParts() {
			text = d.JoinText()
		}
		out, _ = sjson.Set(out, "delta.text", text)
	}
	return []byte(out), nil
}

func textBlock(text string) string {
	b := `{"type":"text","text":""}`
	b, _ = sjson.Set(b, "text", text)
	return b
}

func orEmptyObject(raw string) string {
	if raw == "" {
		return "{}"
	}
	return raw
}

func stopReason(canonical string) string {
	switch canonical {
	case "stop":
		return "end_turn"
	case "length":
		return "max_tokens"
	case "tool_calls":
		return "tool_use"
	default:
		return canonical
	}
}
