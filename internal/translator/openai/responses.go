package openai

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/llmproxy-dev/llmproxy/internal/apierr"
	"github.com/llmproxy-dev/llmproxy/internal/session"
	"github.com/llmproxy-dev/llmproxy/internal/translator"
)

func init() {
	translator.Register(translator.OpenAIResponses, responsesRequestTranslator{}, responsesResponseTranslator{})
}

// responsesRequestTranslator covers the OpenAI Responses API shape:
// "input" replaces "messages", and a bare string input is one user turn.
type responsesRequestTranslator struct{}

func (responsesRequestTranslator) ToCanonical(raw []byte) (*session.Request, error) {
	root := gjson.ParseBytes(raw)
	model := root.Get("model").String()
	if model == "" {
		return nil, apierr.InvalidRequest("openai-responses: missing model")
	}
	req := &session.Request{
		Model:  model,
		Stream: root.Get("stream").Bool(),
	}

	if v := root.Get("temperature"); v.Exists() {
		f := v.Float()
		req.Temperature = &f
	}
	if v := root.Get("top_p"); v.Exists() {
		f := v.Float()
		req.TopP = &f
	}
	if v := root.Get("max_output_tokens"); v.Exists() {
		n := int(v.Int())
		req.MaxTokens = &n
	}
	if v := root.Get("text.format"); v.Exists() {
		req.ResponseFormat = &session.ResponseFormat{Type: v.Get("type").String()}
		if schema, ok := v.Get("schema").Value().(map[string]any); ok {
			req.ResponseFormat.Schema = schema
		}
	}
	if v := root.Get("instructions"); v.Exists() && v.String() != "" {
		req.Messages = append(req.Messages, session.Message{Role: session.RoleSystem, Text: v.String()})
	}

	input := root.Get("input")
	switch {
	case !input.Exists():
		return nil, apierr.InvalidRequest("openai-responses: missing input")
	case input.IsArray():
		var parseErr error
		input.ForEach(func(_, m gjson.Result) bool {
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
	default:
		req.Messages = append(req.Messages, session.Message{Role: session.RoleUser, Text: input.String()})
	}
	return req, nil
}

type responsesResponseTranslator struct{}

// FromCanonical builds a Responses-shaped payload: output is an array of
// message items instead of chat-completions' choices array, and the
// assembled text is also mirrored at output_text for convenience parity
// with the upstream SDK's response helper.
func (responsesResponseTranslator) FromCanonical(resp *session.Response) ([]byte, error) {
	out := `{"object":"response","output":[]}`
	out, _ = sjson.Set(out, "id", resp.ID)
	out, _ = sjson.Set(out, "model", resp.Model)

	var outputText string
	for _, c := range resp.Choices {
		if c.Message == nil {
			continue
		}
		text := c.Message.Text
		if c.Message.HasParts() {
			text = c.Message.JoinText()
		}
		outputText = text
		item := `{"type":"message","role":"assistant","content":[]}`
		item, _ = sjson.SetRaw(item, "content.-1", `{"type":"output_text","text":""}`)
		item, _ = sjson.Set(item, "content.0.text", text)
		out, _ = sjson.SetRaw(out, "output.-1", item)
	}
	out, _ = sjson.Set(out, "output_text", outputText)
	if resp.Usage != nil {
		out, _ = sjson.Set(out, "usage.input_tokens", resp.Usage.PromptTokens)
		out, _ = sjson.Set(out, "usage.output_tokens", resp.Usage.CompletionTokens)
		out, _ = sjson.Set(out, "usage.total_tokens", resp.Usage.TotalTokens)
	}
	return []byte(out), nil
}

func (responsesResponseTranslator) FromCanonicalChunk(chunk *session.Response) ([]byte, error) {
	out := `{"type":"response.output_text.delta","delta":""}`
	if len(chunk.Choices) > 0 && chunk.Choices[0].Delta != nil {
		d := chunk.Choices[0].Delta
		text := d.Text
		if d.HasParts() {
			text = d.JoinText()
		}
		out, _ = sjson.Set(out, "delta", text)
	}
	return []byte(out), nil
}
