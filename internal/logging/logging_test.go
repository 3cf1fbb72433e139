package logging_test

import (
	"runtime"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/llmproxy-dev/llmproxy/internal/config"
	"github.com/llmproxy-dev/llmproxy/internal/logging"
)

func TestSetLevelTogglesDebug(t *testing.T) {
	logging.SetLevel(&config.Config{Debug: true})
	require.Equal(t, log.DebugLevel, log.GetLevel())

	logging.SetLevel(&config.Config{Debug: false})
	require.Equal(t, log.InfoLevel, log.GetLevel())
}

func TestFormatterProducesBracketedLine(t *testing.T) {
	logging.Setup()
	logger := log.StandardLogger()
	logger.SetReportCaller(true)

	entry := logger.WithField("k", "v")
	entry.Message = "hello"
	entry.Level = log.InfoLevel
	entry.Caller = &runtime.Frame{File: "x.go", Line: 42}

	f := &logging.Formatter{}
	out, err := f.Format(entry)
	require.NoError(t, err)
	require.Contains(t, string(out), "[INFO]")
	require.Contains(t, string(out), "[x.go:42]")
	require.Contains(t, string(out), "hello")
}
