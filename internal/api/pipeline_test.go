package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llmproxy-dev/llmproxy/internal/api"
	"github.com/llmproxy-dev/llmproxy/internal/apierr"
	"github.com/llmproxy-dev/llmproxy/internal/config"
	"github.com/llmproxy-dev/llmproxy/internal/connector"
	"github.com/llmproxy-dev/llmproxy/internal/dispatcher"
	"github.com/llmproxy-dev/llmproxy/internal/ratelimit"
	"github.com/llmproxy-dev/llmproxy/internal/session"
)

type echoConnector struct{}

func (echoConnector) Backend() string { return "openrouter" }
func (echoConnector) Models(ctx context.Context) ([]string, error) {
	return []string{"echo-model"}, nil
}
func (echoConnector) ChatCompletions(ctx context.Context, req *session.Request, model, apiKey string) (*session.Response, *apierr.Error) {
	return &session.Response{
		ID:     "resp-1",
		Model:  model,
		Object: "chat.completion",
		Choices: []session.Choice{
			{Index: 0, Message: &session.Message{Role: session.RoleAssistant, Text: "echo: " + req.Messages[len(req.Messages)-1].JoinText()}, FinishReason: "stop"},
		},
	}, nil
}
func (c echoConnector) StreamChatCompletions(ctx context.Context, req *session.Request, model, apiKey string) <-chan connector.StreamChunk {
	ch := make(chan connector.StreamChunk, 1)
	resp, err := c.ChatCompletions(ctx, req, model, apiKey)
	ch <- connector.StreamChunk{Response: resp, Err: err, Done: true}
	close(ch)
	return ch
}

func newTestServer(t *testing.T) *api.Server {
	t.Helper()
	return newTestServerWithDefaults(t, session.Defaults{BackendType: "openrouter"})
}

func newTestServerWithDefaults(t *testing.T, defaults session.Defaults) *api.Server {
	t.Helper()

	set := connector.NewSet()
	set.Register(echoConnector{})

	keySource := dispatcher.NewStaticKeySource(map[string][]string{"openrouter": {"k1"}})
	disp := dispatcher.New(set, ratelimit.NewRegistry(), keySource, "openrouter")

	store := session.NewStore(defaults, session.NoopPersister{})

	catalog := api.NewModelCatalog()
	catalog.SetModels("openrouter", []string{"echo-model"})

	cfg := &config.Config{DisableAuth: true, DefaultBackend: "openrouter"}

	return api.NewServer(cfg, store, disp, catalog, keySource, nil)
}

func chatContent(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	choices := parsed["choices"].([]any)
	require.Len(t, choices, 1)
	message := choices[0].(map[string]any)["message"].(map[string]any)
	content, _ := message["content"].(string)
	return content
}

func TestChatCompletionsRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	body := `{"model":"echo-model","messages":[{"role":"user","content":"hi there"}]}`

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	choices := parsed["choices"].([]any)
	require.Len(t, choices, 1)
	message := choices[0].(map[string]any)["message"].(map[string]any)
	require.Equal(t, "echo: hi there", message["content"])
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRequiredWhenEnabled(t *testing.T) {
	set := connector.NewSet()
	set.Register(echoConnector{})
	keySource := dispatcher.NewStaticKeySource(map[string][]string{"openrouter": {"k1"}})
	disp := dispatcher.New(set, ratelimit.NewRegistry(), keySource, "openrouter")
	store := session.NewStore(session.Defaults{BackendType: "openrouter"}, session.NoopPersister{})
	catalog := api.NewModelCatalog()
	catalog.SetModels("openrouter", []string{"echo-model"})

	cfg := &config.Config{DisableAuth: false, APIKeys: []string{"proxy-key"}, DefaultBackend: "openrouter"}
	srv := api.NewServer(cfg, store, disp, catalog, keySource, nil)

	body := `{"model":"echo-model","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionIDHeaderIsolatesSessions(t *testing.T) {
	srv := newTestServer(t)

	send := func(sessionID string) {
		body := `{"model":"echo-model","messages":[{"role":"user","content":"!/set(reasoning-effort=high)"}]}`
		req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
		req.Header.Set("X-Session-ID", sessionID)
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	send("session-a")
	send("session-b")
}

// TestHelloBannerSuppressedWhenInteractiveModeOff exercises the property
// that !/hello never produces a banner while interactive_mode is off,
// regardless of the command having run successfully.
func TestHelloBannerSuppressedWhenInteractiveModeOff(t *testing.T) {
	srv := newTestServerWithDefaults(t, session.Defaults{BackendType: "openrouter", InteractiveMode: false})

	body := `{"model":"echo-model","messages":[{"role":"user","content":"!/hello"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("X-Session-ID", "hello-off")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	content := chatContent(t, w)
	require.NotContains(t, content, "Session id:")
	require.Contains(t, content, "hello acknowledged")
}

// TestFirstReplyBannerWhenInteractiveByDefault exercises the property that a
// brand new session whose default interactive mode is already on gets the
// banner on its first reply, and never again afterward.
func TestFirstReplyBannerWhenInteractiveByDefault(t *testing.T) {
	srv := newTestServerWithDefaults(t, session.Defaults{BackendType: "openrouter", InteractiveMode: true})

	send := func() *httptest.ResponseRecorder {
		body := `{"model":"echo-model","messages":[{"role":"user","content":"hi"}]}`
		req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
		req.Header.Set("X-Session-ID", "interactive-default")
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		return w
	}

	first := chatContent(t, send())
	require.Contains(t, first, "Session id:")

	second := chatContent(t, send())
	require.NotContains(t, second, "Session id:")
}
