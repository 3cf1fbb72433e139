package connector_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/llmproxy-dev/llmproxy/internal/apierr"
	"github.com/llmproxy-dev/llmproxy/internal/connector"
	"github.com/llmproxy-dev/llmproxy/internal/session"
)

func TestOpenRouterChatCompletionsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"r1","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
	defer srv.Close()

	c := connector.NewOpenAICompatConnector(srv.URL)
	resp, err := c.ChatCompletions(t.Context(), &session.Request{Messages: []session.Message{{Role: session.RoleUser, Text: "hi"}}}, "m", "test-key")
	require.Nil(t, err)
	require.Equal(t, "hi", resp.Choices[0].Message.Text)
}

func TestOpenRouterRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"details":[{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"2.5s"}]}}`))
	}))
	defer srv.Close()

	c := connector.NewOpenAICompatConnector(srv.URL)
	_, err := c.ChatCompletions(t.Context(), &session.Request{Messages: []session.Message{{Role: session.RoleUser, Text: "hi"}}}, "m", "k")
	require.NotNil(t, err)
	require.Equal(t, apierr.KindRateLimited, err.Kind)
	require.Equal(t, 2500*time.Millisecond, err.Delay)
}

func TestOpenRouterUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := connector.NewOpenAICompatConnector(srv.URL)
	_, err := c.ChatCompletions(t.Context(), &session.Request{Messages: []session.Message{{Role: session.RoleUser, Text: "hi"}}}, "m", "bad-key")
	require.NotNil(t, err)
	require.Equal(t, apierr.KindUnauthorized, err.Kind)
}

func TestOpenRouterForwardsToolsAndToolCalls(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"r1","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"{\"city\":\"nyc\"}"}}]},"finish_reason":"tool_calls"}]}`))
	}))
	defer srv.Close()

	c := connector.NewOpenAICompatConnector(srv.URL)
	req := &session.Request{
		Tools:      []map[string]any{{"type": "function", "function": map[string]any{"name": "get_weather"}}},
		ToolChoice: "auto",
		Messages: []session.Message{
			{Role: session.RoleUser, Text: "weather in nyc?"},
			{
				Role: session.RoleTool, Name: "get_weather", ToolCallID: "call_1",
				Text: `{"temp_f":72}`,
			},
		},
	}
	resp, err := c.ChatCompletions(t.Context(), req, "m", "test-key")
	require.Nil(t, err)

	require.Equal(t, "auto", captured["tool_choice"])
	require.NotNil(t, captured["tools"])
	messages := captured["messages"].([]any)
	toolMsg := messages[1].(map[string]any)
	require.Equal(t, "call_1", toolMsg["tool_call_id"])
	require.Equal(t, "get_weather", toolMsg["name"])

	require.Len(t, resp.Choices[0].Message.ToolCalls, 1)
	require.Equal(t, "get_weather", resp.Choices[0].Message.ToolCalls[0].Name)
	require.Equal(t, "call_1", resp.Choices[0].Message.ToolCalls[0].ID)
}

func TestGeminiForwardsFunctionCallsAndResponses(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"index":0,"content":{"role":"model","parts":[{"functionCall":{"name":"get_weather","args":{"city":"nyc"}}}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	c := connector.NewGeminiConnector(srv.URL)
	req := &session.Request{
		Tools: []map[string]any{{"functionDeclarations": []map[string]any{{"name": "get_weather"}}}},
		Messages: []session.Message{
			{Role: session.RoleUser, Text: "weather in nyc?"},
			{Role: session.RoleTool, Name: "get_weather", Text: `{"temp_f":72}`},
		},
	}
	resp, err := c.ChatCompletions(t.Context(), req, "gemini-pro", "test-key")
	require.Nil(t, err)

	require.NotNil(t, captured["tools"])
	contents := captured["contents"].([]any)
	toolContent := contents[1].(map[string]any)
	require.Equal(t, "function", toolContent["role"])
	parts := toolContent["parts"].([]any)
	fr := parts[0].(map[string]any)["functionResponse"].(map[string]any)
	require.Equal(t, "get_weather", fr["name"])

	require.Len(t, resp.Choices[0].Message.ToolCalls, 1)
	require.Equal(t, "get_weather", resp.Choices[0].Message.ToolCalls[0].Name)
}

func TestSetRegistryLookup(t *testing.T) {
	set := connector.NewSet()
	set.Register(connector.NewOpenAICompatConnector("http://example.invalid"))
	c, ok := set.Get("openai-compat")
	require.True(t, ok)
	require.Equal(t, "openai-compat", c.Backend())
	_, ok = set.Get("missing")
	require.False(t, ok)
}
