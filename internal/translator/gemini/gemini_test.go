package gemini_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llmproxy-dev/llmproxy/internal/session"
	"github.com/llmproxy-dev/llmproxy/internal/translator"
	_ "github.com/llmproxy-dev/llmproxy/internal/translator/gemini"
)

func TestToCanonicalRoleMapping(t *testing.T) {
	raw := `{
		"system_instruction": {"parts":[{"text":"be terse"}]},
		"contents": [
			{"role":"user","parts":[{"text":"hi"}]},
			{"role":"model","parts":[{"text":"hello"}]}
		]
	}`
	req, err := translator.ToCanonicalRequest(translator.Gemini, []byte(raw))
	require.NoError(t, err)
	require.Equal(t, session.RoleSystem, req.Messages[0].Role)
	require.Equal(t, session.RoleUser, req.Messages[1].Role)
	require.Equal(t, session.RoleAssistant, req.Messages[2].Role)
}

func TestToCanonicalFunctionCallAndResponse(t *testing.T) {
	raw := `{
		"contents": [
			{"role":"model","parts":[{"functionCall":{"name":"lookup","args":{"q":"x"}}}]},
			{"role":"function","parts":[{"functionResponse":{"name":"lookup","response":{"result":"42"}}}]}
		]
	}`
	req, err := translator.ToCanonicalRequest(translator.Gemini, []byte(raw))
	require.NoError(t, err)
	require.Len(t, req.Messages[0].ToolCalls, 1)
	require.Equal(t, "lookup", req.Messages[0].ToolCalls[0].Name)
	require.Equal(t, session.RoleTool, req.Messages[1].Role)
}

func TestFromCanonicalCandidateShape(t *testing.T) {
	resp := &session.Response{
		Choices: []session.Choice{
			{Message: &session.Message{Role: session.RoleAssistant, Text: "hi"}, FinishReason: "stop"},
		},
		Usage: &session.Usage{PromptTokens: 2, CompletionTokens: 1, TotalTokens: 3},
	}
	raw, err := translator.FromCanonicalResponse(translator.Gemini, resp)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"STOP"`)
	require.Contains(t, string(raw), `"hi"`)
}
