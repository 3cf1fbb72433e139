// Package middleware collects the cross-cutting gin middlewares: API-key
// redaction, the command-leak filter, and request logging.
package middleware

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	redactedMarker  = "(API_KEY_HAS_BEEN_REDACTED)"
	redactionMaxLen = 1024
)

// Redactor replaces any occurrence of a known proxy API key inside message
// text with a fixed marker. Short messages are
// memoized in a bounded LRU so a hot session's repeated turns don't
// re-scan identical prefixes.
type Redactor struct {
	mu   sync.RWMutex
	keys []string

	cache *lru.Cache[string, string]
}

// NewRedactor builds a Redactor with a 1024-entry memoization cache.
func NewRedactor() *Redactor {
	cache, _ := lru.New[string, string](1024)
	return &Redactor{cache: cache}
}

// SetKeys replaces the set of known proxy API keys to scan for, longest
// first so a key that is a prefix of another is never partially matched.
func (r *Redactor) SetKeys(keys []string) {
	sorted := append([]string(nil), keys...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && len(sorted[j]) > len(sorted[j-1]); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	r.mu.Lock()
	r.keys = sorted
	r.cache.Purge()
	r.mu.Unlock()
}

// Redact returns text with every occurrence of a known key replaced by the
// redaction marker.
func (r *Redactor) Redact(text string) string {
	r.mu.RLock()
	keys := r.keys
	r.mu.RUnlock()
	if len(keys) == 0 {
		return text
	}

	cacheable := len(text) < redactionMaxLen
	if cacheable {
		if cached, ok := r.cache.Get(text); ok {
			return cached
		}
	}

	out := text
	for _, k := range keys {
		if k == "" {
			continue
		}
		out = strings.ReplaceAll(out, k, redactedMarker)
	}

	if cacheable {
		r.cache.Add(text, out)
	}
	return out
}
