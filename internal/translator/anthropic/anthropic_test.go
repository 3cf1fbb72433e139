package anthropic_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llmproxy-dev/llmproxy/internal/session"
	"github.com/llmproxy-dev/llmproxy/internal/translator"
	_ "github.com/llmproxy-dev/llmproxy/internal/translator/anthropic"
)

func TestToCanonicalSystemBlockArray(t *testing.T) {
	raw := `{
		"model": "claude-3-5-sonnet",
		"max_tokens": 1024,
		"system": [{"type":"text","text":"be terse"}],
		"messages": [{"role":"user","content":[{"type":"text","text":"hi"}]}]
	}`
	req, err := translator.ToCanonicalRequest(translator.Anthropic, []byte(raw))
	require.NoError(t, err)
	require.Equal(t, session.RoleSystem, req.Messages[0].Role)
	require.Equal(t, "be terse", req.Messages[0].Text)
	require.Equal(t, session.RoleUser, req.Messages[1].Role)
	require.NotNil(t, req.MaxTokens)
	require.Equal(t, 1024, *req.MaxTokens)
}

func TestToCanonicalToolUseAndResult(t *testing.T) {
	raw := `{
		"model": "claude-3-5-sonnet",
		"max_tokens": 100,
		"messages": [
			{"role":"assistant","content":[{"type":"tool_use","id":"t1","name":"lookup","input":{"q":"x"}}]},
			{"role":"user","content":[{"type":"tool_result","tool_use_id":"t1","content":"42"}]}
		]
	}`
	req, err := translator.ToCanonicalRequest(translator.Anthropic, []byte(raw))
	require.NoError(t, err)
	require.Len(t, req.Messages[0].ToolCalls, 1)
	require.Equal(t, "lookup", req.Messages[0].ToolCalls[0].Name)
	require.Equal(t, "t1", req.Messages[1].ToolCallID)
	require.Equal(t, "42", req.Messages[1].Text)
}

func TestFromCanonicalTextBlock(t *testing.T) {
	resp := &session.Response{
		ID:    "msg-1",
		Model: "claude-3-5-sonnet",
		Choices: []session.Choice{
			{Message: &session.Message{Role: session.RoleAssistant, Text: "hello"}, FinishReason: "stop"},
		},
		Usage: &session.Usage{PromptTokens: 5, CompletionTokens: 1},
	}
	raw, err := translator.FromCanonicalResponse(translator.Anthropic, resp)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"hello"`)
	require.Contains(t, string(raw), `"end_turn"`)
}
