// Package translator implements bidirectional mapping between each
// supported wire dialect and the canonical request/response model in
// internal/session. Each dialect package (openai, anthropic, gemini)
// registers itself into the package-level registry at init time, keyed by
// dialect name rather than arbitrary dialect pairs, since the canonical
// model is always one side of the conversion.
package translator

import (
	"github.com/llmproxy-dev/llmproxy/internal/apierr"
	"github.com/llmproxy-dev/llmproxy/internal/session"
)

// Dialect names the wire format on the HTTP edge of the proxy.
type Dialect string

const (
	OpenAIChat      Dialect = "openai-chat"
	OpenAIResponses Dialect = "openai-responses"
	OpenAILegacy    Dialect = "openai-legacy"
	Anthropic       Dialect = "anthropic"
	Gemini          Dialect = "gemini"
)

// RequestTranslator converts a dialect's raw request body into the
// canonical form, or fails with an apierr.Error of KindInvalidRequest.
type RequestTranslator interface {
	ToCanonical(raw []byte) (*session.Request, error)
}

// ResponseTranslator converts a canonical response, or a single streaming
// chunk, back into the dialect's raw wire representation.
type ResponseTranslator interface {
	FromCanonical(resp *session.Response) ([]byte, error)
	FromCanonicalChunk(chunk *session.Response) ([]byte, error)
}

type entry struct {
	req  RequestTranslator
	resp ResponseTranslator
}

var registry = make(map[Dialect]entry)

// Register installs the translator pair for dialect. Called from each
// dialect package's init().
func Register(dialect Dialect, req RequestTranslator, resp ResponseTranslator) {
	registry[dialect] = entry{req: req, resp: resp}
}

// ToCanonicalRequest looks up dialect's request translator and applies it.
func ToCanonicalRequest(dialect Dialect, raw []byte) (*session.Request, error) {
	e, ok := registry[dialect]
	if !ok {
		return nil, apierr.InvalidRequest("unsupported dialect %q", dialect)
	}
	return e.req.ToCanonical(raw)
}

// FromCanonicalResponse looks up dialect's response translator and applies
// it to a unary response.
func FromCanonicalResponse(dialect Dialect, resp *session.Response) ([]byte, error) {
	e, ok := registry[dialect]
	if !ok {
		return nil, apierr.InvalidRequest("unsupported dialect %q", dialect)
	}
	return e.resp.FromCanonical(resp)
}

// FromCanonicalStreamChunk looks up dialect's response translator and
// applies it to one streaming chunk.
func FromCanonicalStreamChunk(dialect Dialect, chunk *session.Response) ([]byte, error) {
	e, ok := registry[dialect]
	if !ok {
		return nil, apierr.InvalidRequest("unsupported dialect %q", dialect)
	}
	return e.resp.FromCanonicalChunk(chunk)
}
