package openai

import (
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/llmproxy-dev/llmproxy/internal/apierr"
	"github.com/llmproxy-dev/llmproxy/internal/session"
	"github.com/llmproxy-dev/llmproxy/internal/translator"
)

func init() {
	translator.Register(translator.OpenAILegacy, legacyRequestTranslator{}, legacyResponseTranslator{})
}

// legacyRequestTranslator handles the pre-chat /v1/completions shape: a
// single "prompt" string (or first element of a prompt array) in place of
// a messages array.
type legacyRequestTranslator struct{}

func (legacyRequestTranslator) ToCanonical(raw []byte) (*session.Request, error) {
	root := gjson.ParseBytes(raw)
	model := root.Get("model").String()
	if model == "" {
		return nil, apierr.InvalidRequest("openai-legacy: missing model")
	}

	prompt := root.Get("prompt")
	var text string
	switch {
	case prompt.IsArray():
		arr := prompt.Array()
		if len(arr) == 0 {
			return nil, apierr.InvalidRequest("openai-legacy: prompt array is empty")
		}
		text = arr[0].String()
	case prompt.Exists():
		text = prompt.String()
	default:
		return nil, apierr.InvalidRequest("openai-legacy: missing prompt")
	}

	req := &session.Request{
		Model:    model,
		Stream:   root.Get("stream").Bool(),
		Messages: []session.Message{{Role: session.RoleUser, Text: text}},
	}
	if v := root.Get("temperature"); v.Exists() {
		f := v.Float()
		req.Temperature = &f
	}
	if v := root.Get("max_tokens"); v.Exists() {
		n := int(v.Int())
		req.MaxTokens = &n
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
	return req, nil
}

// legacyResponseTranslator renders the "text_completion" object shape:
// choices carry a flat "text" field instead of a nested message.
type legacyResponseTranslator struct{}

func (legacyResponseTranslator) FromCanonical(resp *session.Response) ([]byte, error) {
	return legacyEnvelope("text_completion", resp), nil
}

func (legacyResponseTranslator) FromCanonicalChunk(chunk *session.Response) ([]byte, error) {
	return legacyEnvelope("text_completion", chunk), nil
}

func legacyEnvelope(object string, resp *session.Response) []byte {
	out := `{"choices":[]}`
	out, _ = sjson.Set(out, "object", object)
	out, _ = sjson.Set(out, "id", resp.ID)
	created := resp.Created
	if created == 0 {
		created = time.Now().Unix()
	}
	out, _ = sjson.Set(out, "created", created)
	out, _ = sjson.Set(out, "model", resp.Model)

	for _, c := range resp.Choices {
		choiceJSON := `{}`
		choiceJSON, _ = sjson.Set(choiceJSON, "index", c.Index)
		text := ""
		if c.Message != nil {
			text = c.Message.JoinText()
		} else if c.Delta != nil {
			text = c.Delta.JoinText()
		}
		choiceJSON, _ = sjson.Set(choiceJSON, "text", text)
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
	return []byte(out)
}
