// Package gemini translates between the Gemini generateContent wire
// dialect and the canonical request/response model. Gemini's "contents"
// array uses role "model" instead of "assistant" and has no "system" role
// of its own; system instructions travel in a separate top-level
// "system_instruction" field.
package gemini

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/llmproxy-dev/llmproxy/internal/apierr"
	"github.com/llmproxy-dev/llmproxy/internal/session"
	"github.com/llmproxy-dev/llmproxy/internal/translator"
)

func init() {
	translator.Register(translator.Gemini, requestTranslator{}, responseTranslator{})
}

type requestTranslator struct{}

// ToCanonical implements Gemini row. model is taken from
// the caller (the :generateContent path segment), not the body, so it is
// left to the caller to set req.Model after calling this.
func (requestTranslator) ToCanonical(raw []byte) (*session.Request, error) {
	root := gjson.ParseBytes(raw)
	req := &session.Request{}

	if gc := root.Get("generationConfig"); gc.Exists() {
		if v := gc.Get("temperature"); v.Exists() {
			f := v.Float()
			req.Temperature = &f
		}
		if v := gc.Get("topP"); v.Exists() {
			f := v.Float()
			req.TopP = &f
		}
		if v := gc.Get("maxOutputTokens"); v.Exists() {
			n := int(v.Int())
			req.MaxTokens = &n
		}
		if v := gc.Get("stopSequences"); v.Exists() && v.IsArray() {
			v.ForEach(func(_, s gjson.Result) bool {
				req.Stop = append(req.Stop, s.String())
				return true
			})
		}
		if v := gc.Get("responseMimeType"); v.Exists() {
			req.ResponseFormat = &session.ResponseFormat{Type: mimeToFormatType(v.String())}
		}
	}
	if tools := root.Get("tools"); tools.Exists() {
		req.Tools = tools.Value()
	}

	if si := root.Get("system_instruction"); si.Exists() {
		if text := partsText(si.Get("parts")); text != "" {
			req.Messages = append(req.Messages, session.Message{Role: session.RoleSystem, Text: text})
		}
	}

	contents := root.Get("contents")
	if !contents.Exists() || !contents.IsArray() || len(contents.Array()) == 0 {
		return nil, apierr.InvalidRequest("gemini: contents must be a non-empty array")
	}
	var parseErr error
	contents.ForEach(func(_, c gjson.Result) bool {
		msg, err := parseContent(c)
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

func mimeToFormatType(mime string) string {
	if mime == "application/json" {
		return "json_object"
	}
	return "text"
}

func canonicalRole(geminiRole string) session.Role {
	switch geminiRole {
	case "model":
		return session.RoleAssistant
	case "function":
		return session.RoleTool
	default:
		return session.RoleUser
	}
}

func parseContent(c gjson.Result) (session.Message, error) {
	role := c.Get("role").String()
	if role == "" {
		role = "user"
	}
	msg := session.Message{Role: canonicalRole(role)}

	parts := c.Get("parts")
	if !parts.Exists() || !parts.IsArray() {
		return msg, nil
	}
	parts.ForEach(func(_, p gjson.Result) bool {
		switch {
		case p.Get("text").Exists():
			msg.Parts = append(msg.Parts, session.Part{Kind: session.PartText, Text: p.Get("text").String()})
		case p.Get("inline_data").Exists():
			// Multipart inline_data translated to any non-Gemini dialect is
			// replaced with a placeholder by the assembler; kept as raw bytes
			// here since this leg of the translation is Gemini-to-canonical
			// and Gemini-to-Gemini passthrough needs the real bytes.
			msg.Parts = append(msg.Parts, session.Part{
				Kind:       session.PartInlineData,
				InlineMime: p.Get("inline_data.mime_type").String(),
				InlineData: []byte(p.Get("inline_data.data").String()),
			})
		case p.Get("functionCall").Exists():
			msg.ToolCalls = append(msg.ToolCalls, session.ToolCall{
				Type:      "function",
				Name:      p.Get("functionCall.name").String(),
				Arguments: p.Get("functionCall.args").Raw,
			})
		case p.Get("functionResponse").Exists():
			msg.Name = p.Get("functionResponse.name").String()
			msg.Text = p.Get("functionResponse.response").Raw
		}
		return true
	})
	return msg, nil
}

func partsText(parts gjson.Result) string {
	out := ""
	parts.ForEach(func(_, p gjson.Result) bool {
		if t := p.Get("text"); t.Exists() {
			if out != "" {
				out += "\n"
			}
			out += t.String()
		}
		return true
	})
	return out
}

type responseTranslator struct{}

func (responseTranslator) FromCanonical(resp *session.Response) ([]byte, error) {
	out := `{"candidates":[]}`
	for _, c := range resp.Choices {
		out, _ = sjson.SetRaw(out, "candidates.-1", candidateJSON(c))
	}
	if resp.Usage != nil {
		out, _ = sjson.Set(out, "usageMetadata.promptTokenCount", resp.Usage.PromptTokens)
		out, _ = sjson.Set(out, "usageMetadata.candidatesTokenCount", resp.Usage.CompletionTokens)
		out, _ = sjson.Set(out, "usageMetadata.totalTokenCount", resp.Usage.TotalTokens)
	}
	return []byte(out), nil
}

func (responseTranslator) FromCanonicalChunk(chunk *session.Response) ([]byte, error) {
	out := `{"candidates":[]}`
	for _, c := range chunk.Choices {
		cc := c
		cc.Message = c.Delta
		out, _ = sjson.SetRaw(out, "candidates.-1", candidateJSON(cc))
	}
	return []byte(out), nil
}

func candidateJSON(c session.Choice) string {
	out := `{"content":{"role":"model","parts":[]},"index":0}`
	out, _ = sjson.Set(out, "index", c.Index)
	if c.Message != nil {
		text := c.Message.Text
		if c.Message.HasParts() {
			text = c.Message.JoinText()
		}
		if text != "" {
			out, _ = sjson.SetRaw(out, "content.parts.-1", textPart(text))
		}
		for _, tc := range c.Message.ToolCalls {
			block := `{"functionCall":{}}`
			block, _ = sjson.Set(block, "functionCall.name", tc.Name)
			block, _ = sjson.SetRaw(block, "functionCall.args", orEmptyObject(tc.Arguments))
			out, _ = sjson.SetRaw(out, "content.parts.-1", block)
		}
	}
	if c.FinishReason != "" {
		out, _ = sjson.Set(out, "finishReason", finishReason(c.FinishReason))
	}
	return out
}

func textPart(text string) string {
	b := `{"text":""}`
	b, _ = sjson.Set(b, "text", text)
	return b
}

func orEmptyObject(raw string) string {
	if raw == "" {
		return "{}"
	}
	return raw
}

func finishReason(canonical string) string {
	switch canonical {
	case "stop":
		return "STOP"
	case "length":
		return "MAX_TOKENS"
	default:
		return "OTHER"
	}
}
