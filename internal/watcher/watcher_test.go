package watcher_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/llmproxy-dev/llmproxy/internal/config"
	"github.com/llmproxy-dev/llmproxy/internal/watcher"
)

func TestReloadFiresOnChange(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte("port: 1111\n"), 0o644))

	reloaded := make(chan *config.Config, 1)
	w, err := watcher.New(p, func(c *config.Config) { reloaded <- c })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(p, []byte("port: 2222\n"), 0o644))

	select {
	case cfg := <-reloaded:
		require.Equal(t, 2222, cfg.Port)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload callback")
	}
}

func TestUnchangedContentDoesNotReload(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte("port: 1111\n"), 0o644))

	reloaded := make(chan *config.Config, 4)
	w, err := watcher.New(p, func(c *config.Config) { reloaded <- c })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(p, []byte("port: 1111\n"), 0o644))
	select {
	case <-reloaded:
	case <-time.After(500 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(p, []byte("port: 1111\n"), 0o644))
	select {
	case <-reloaded:
		t.Fatal("unexpected reload for unchanged content")
	case <-time.After(500 * time.Millisecond):
	}
}
