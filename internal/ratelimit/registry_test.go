package ratelimit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/llmproxy-dev/llmproxy/internal/ratelimit"
)

// P7: Set at t=0 for 1s; Get at t=0.5 is non-nil; Get at t=1.1 is nil and the
// entry is gone (i.e. Earliest no longer reports it).
func TestGetExpiry(t *testing.T) {
	r := ratelimit.NewRegistry()
	r.Set("openrouter", "m", "k1", time.Second)

	require.NotNil(t, r.Get("openrouter", "m", "k1"))

	time.Sleep(1100 * time.Millisecond)
	require.Nil(t, r.Get("openrouter", "m", "k1"))
	require.Nil(t, r.Get("openrouter", "m", "k1"))
}

func TestEarliestAcrossKeys(t *testing.T) {
	r := ratelimit.NewRegistry()
	r.Set("b1", "m", "k1", 5*time.Second)
	r.Set("b1", "m", "k2", time.Second)

	earliest := r.Earliest()
	require.NotNil(t, earliest)
	require.WithinDuration(t, time.Now().Add(time.Second), *earliest, 200*time.Millisecond)
}

func TestParseRetryDelay(t *testing.T) {
	body := []byte(`{"error":{"details":[{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"2.5s"}]}}`)
	delay, ok := ratelimit.ParseRetryDelay(body)
	require.True(t, ok)
	require.Equal(t, 2.5, delay)

	_, ok = ratelimit.ParseRetryDelay([]byte(`{"error":{"message":"nope"}}`))
	require.False(t, ok)
}
