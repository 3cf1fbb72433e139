package middleware_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llmproxy-dev/llmproxy/internal/middleware"
)

func TestRedactKnownKey(t *testing.T) {
	r := middleware.NewRedactor()
	r.SetKeys([]string{"sk-proxy-abc123"})
	out := r.Redact("here is my key: sk-proxy-abc123 please use it")
	require.NotContains(t, out, "sk-proxy-abc123")
	require.Contains(t, out, "(API_KEY_HAS_BEEN_REDACTED)")
}

func TestRedactLeavesPlainTextAlone(t *testing.T) {
	r := middleware.NewRedactor()
	r.SetKeys([]string{"sk-proxy-abc123"})
	out := r.Redact("hello world, nothing secret here")
	require.Equal(t, "hello world, nothing secret here", out)
}

func TestRedactNoKeysConfigured(t *testing.T) {
	r := middleware.NewRedactor()
	out := r.Redact("sk-proxy-abc123 should pass through untouched")
	require.Equal(t, "sk-proxy-abc123 should pass through untouched", out)
}

func TestRedactIsMemoized(t *testing.T) {
	r := middleware.NewRedactor()
	r.SetKeys([]string{"sk-proxy-abc123"})
	in := "key: sk-proxy-abc123"
	first := r.Redact(in)
	second := r.Redact(in)
	require.Equal(t, first, second)
}

func TestStripCommandLeak(t *testing.T) {
	out := middleware.StripCommandLeak("line one !/set(model=x) line two", "!/")
	require.NotContains(t, out, "!/set")
	require.Contains(t, out, "line one")
	require.Contains(t, out, "line two")
}

func TestStripCommandLeakBareHello(t *testing.T) {
	out := middleware.StripCommandLeak("please run !/hello now", "!/")
	require.NotContains(t, out, "!/hello")
}

func TestStripCommandLeakNoop(t *testing.T) {
	out := middleware.StripCommandLeak("nothing to strip here", "!/")
	require.Equal(t, "nothing to strip here", out)
}
