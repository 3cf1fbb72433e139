package ratelimit

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ParseRetryDelay parses a backend's retry-delay hint: given a backend
// error payload (raw JSON bytes), it recursively locates error.details[*]
// entries whose "@type" suffix is "RetryInfo", reads retryDelay of the form
// "<float>s", and returns the parsed seconds. It returns (0, false) when no
// such entry is present or the value is malformed.
func ParseRetryDelay(body []byte) (seconds float64, ok bool) {
	root := gjson.ParseBytes(body)
	details := root.Get("error.details")
	if !details.Exists() || !details.IsArray() {
		return 0, false
	}

	var found float64
	var hit bool
	details.ForEach(func(_, detail gjson.Result) bool {
		atType := detail.Get("@type").String()
		if !strings.HasSuffix(atType, "RetryInfo") {
			return true
		}
		raw := detail.Get("retryDelay").String()
		if raw == "" {
			return true
		}
		raw = strings.TrimSuffix(raw, "s")
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return true
		}
		found = v
		hit = true
		return false
	})
	return found, hit
}
