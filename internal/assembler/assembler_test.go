package assembler_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llmproxy-dev/llmproxy/internal/assembler"
	"github.com/llmproxy-dev/llmproxy/internal/session"
)

func TestBannerFormat(t *testing.T) {
	b := assembler.Banner("sess-1", "!/", []assembler.BackendStatus{
		{Name: "openrouter", Keys: 2, Models: 5},
		{Name: "gemini", Keys: 1, Models: 3},
	})
	require.Contains(t, b, "Session id: sess-1")
	require.Contains(t, b, "gemini (K:1, M:3), openrouter (K:2, M:5)")
	require.Contains(t, b, "Type !/help for list of available commands")
}

func TestEnvelopeWrapsClineAgent(t *testing.T) {
	snap := &session.Snapshot{Agent: "cline"}
	out := assembler.Envelope("hi", snap)
	require.Equal(t, "<attempt_completion>\n<result>\nhi\n</result>\n</attempt_completion>\n", out)
}

func TestEnvelopePassesThroughNonCline(t *testing.T) {
	snap := &session.Snapshot{Agent: "cursor"}
	out := assembler.Envelope("hi", snap)
	require.Equal(t, "hi", out)
}

func TestJoinConfirmations(t *testing.T) {
	out := assembler.JoinConfirmations([]string{"model set to x", "route created"})
	require.Equal(t, "model set to x; route created", out)
}

func TestProxyCommandResponseID(t *testing.T) {
	resp := assembler.ProxyCommandResponse("done", "gpt-4o")
	require.Equal(t, "proxy_cmd_processed", resp.ID)
	require.Equal(t, "gpt-4o", resp.Model)
}

func TestShouldBannerSuppressedWhenInteractiveModeOff(t *testing.T) {
	snap := &session.Snapshot{
		Backend:                session.BackendConfig{InteractiveMode: false},
		HelloRequested:         true,
		InteractiveJustEnabled: true,
	}
	require.False(t, assembler.ShouldBanner(snap))
}

func TestShouldBannerFiresOnHelloWhenInteractive(t *testing.T) {
	snap := &session.Snapshot{
		Backend:        session.BackendConfig{InteractiveMode: true},
		HelloRequested: true,
	}
	require.True(t, assembler.ShouldBanner(snap))
}

func TestShouldBannerFiresOnFirstInteractiveReply(t *testing.T) {
	snap := &session.Snapshot{
		Backend:                session.BackendConfig{InteractiveMode: true},
		InteractiveJustEnabled: true,
	}
	require.True(t, assembler.ShouldBanner(snap))
}

func TestShouldBannerFalseOutsideTriggers(t *testing.T) {
	snap := &session.Snapshot{
		Backend: session.BackendConfig{InteractiveMode: true},
	}
	require.False(t, assembler.ShouldBanner(snap))
}

func TestPrependToResponse(t *testing.T) {
	resp := &session.Response{Choices: []session.Choice{{Message: &session.Message{Text: "answer"}}}}
	assembler.PrependToResponse(resp, "banner text")
	require.Contains(t, resp.Choices[0].Message.Text, "banner text")
	require.Contains(t, resp.Choices[0].Message.Text, "answer")
}
