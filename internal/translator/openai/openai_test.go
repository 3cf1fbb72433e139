package openai_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llmproxy-dev/llmproxy/internal/session"
	"github.com/llmproxy-dev/llmproxy/internal/translator"
	_ "github.com/llmproxy-dev/llmproxy/internal/translator/openai"
)

func TestToCanonicalBasicChat(t *testing.T) {
	raw := `{
		"model": "gpt-4o",
		"stream": true,
		"temperature": 0.5,
		"messages": [
			{"role": "system", "content": "be terse"},
			{"role": "user", "content": "hello"}
		]
	}`
	req, err := translator.ToCanonicalRequest(translator.OpenAIChat, []byte(raw))
	require.NoError(t, err)
	require.Equal(t, "gpt-4o", req.Model)
	require.True(t, req.Stream)
	require.NotNil(t, req.Temperature)
	require.Equal(t, 0.5, *req.Temperature)
	require.Len(t, req.Messages, 2)
	require.Equal(t, session.RoleUser, req.Messages[1].Role)
	require.Equal(t, "hello", req.Messages[1].Text)
}

func TestToCanonicalMultipartContent(t *testing.T) {
	raw := `{
		"model": "gpt-4o",
		"messages": [
			{"role": "user", "content": [
				{"type": "text", "text": "look at this"},
				{"type": "image_url", "image_url": {"url": "https://example.com/x.png"}}
			]}
		]
	}`
	req, err := translator.ToCanonicalRequest(translator.OpenAIChat, []byte(raw))
	require.NoError(t, err)
	require.True(t, req.Messages[0].HasParts())
	require.Equal(t, "look at this", req.Messages[0].JoinText())
}

func TestToCanonicalMissingModelFails(t *testing.T) {
	_, err := translator.ToCanonicalRequest(translator.OpenAIChat, []byte(`{"messages":[{"role":"user","content":"hi"}]}`))
	require.Error(t, err)
}

func TestFromCanonicalRoundTripsUsage(t *testing.T) {
	resp := &session.Response{
		ID:    "resp-1",
		Model: "gpt-4o",
		Choices: []session.Choice{
			{Index: 0, Message: &session.Message{Role: session.RoleAssistant, Text: "hi there"}, FinishReason: "stop"},
		},
		Usage: &session.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
	}
	raw, err := translator.FromCanonicalResponse(translator.OpenAIChat, resp)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"hi there"`)
	require.Contains(t, string(raw), `"total_tokens":5`)
}

func TestFromCanonicalChunkDelta(t *testing.T) {
	chunk := &session.Response{
		ID:    "resp-1",
		Model: "gpt-4o",
		Choices: []session.Choice{
			{Index: 0, Delta: &session.Message{Role: session.RoleAssistant, Text: "partial"}},
		},
	}
	raw, err := translator.FromCanonicalStreamChunk(translator.OpenAIChat, chunk)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"partial"`)
	require.Contains(t, string(raw), `"chat.completion.chunk"`)
}
