package connector

import (
	"net/http"
	"time"
)

// OpenAICompatConnector targets an arbitrary OpenAI-wire-compatible
// endpoint configured via an explicit base URL override. It shares
// OpenRouterConnector's wire handling in full; the only difference is the
// backend identifier and that apiURL is mandatory rather than defaulted.
type OpenAICompatConnector struct {
	OpenRouterConnector
}

// NewOpenAICompatConnector builds a connector against apiURL, the full
// chat-completions endpoint URL configured for this backend.
func NewOpenAICompatConnector(apiURL string) *OpenAICompatConnector {
	return &OpenAICompatConnector{
		OpenRouterConnector: OpenRouterConnector{
			apiURL: apiURL,
			http:   &http.Client{Timeout: 120 * time.Second},
		},
	}
}

func (c *OpenAICompatConnector) Backend() string { return "openai-compat" }
