// Package connector implements the set of backend connectors the
// dispatcher drives, each wrapping one upstream LLM API behind a common
// interface: one concrete client per backend family.
package connector

import (
	"context"

	"github.com/llmproxy-dev/llmproxy/internal/apierr"
	"github.com/llmproxy-dev/llmproxy/internal/session"
)

// StreamChunk is one element of a connector's streaming response sequence.
type StreamChunk struct {
	Response *session.Response
	Err      *apierr.Error
	Done     bool
}

// Connector is the uniform interface the dispatcher drives regardless of
// upstream backend. A connector whose Models() is empty or whose required
// credential is missing is non-functional for the process lifetime.
type Connector interface {
	// Backend returns the connector's backend identifier, e.g. "openrouter".
	Backend() string

	// Models returns the cached list of model names this connector can
	// serve, refreshed on demand by the connector itself.
	Models(ctx context.Context) ([]string, error)

	// ChatCompletions performs one unary request.
	ChatCompletions(ctx context.Context, req *session.Request, model, apiKey string) (*session.Response, *apierr.Error)

	// StreamChatCompletions performs one streaming request. The returned
	// channel is closed after the final chunk (Done=true) or after an
	// error chunk; cancelling ctx closes the upstream connection.
	StreamChatCompletions(ctx context.Context, req *session.Request, model, apiKey string) <-chan StreamChunk
}

// sendErr is a convenience for synchronously producing a one-shot error
// channel from StreamChatCompletions implementations.
func sendErr(err *apierr.Error) <-chan StreamChunk {
	ch := make(chan StreamChunk, 1)
	ch <- StreamChunk{Err: err, Done: true}
	close(ch)
	return ch
}
