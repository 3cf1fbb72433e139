package middleware

import (
	"regexp"
	log "github.com/sirupsen/logrus"
)

// commandLeakPattern matches a command token with the active prefix,
// case-insensitively, either a named call with optional parens or the bare
// hello/help forms. The prefix is passed in since it is configurable
// per session.
func commandLeakPattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(prefix) + `([\w-]+(\(.*?\))?|hello|help)`)
}

// StripCommandLeak deletes every command-shaped token with prefix from
// text (response side, upstream-bound), logging a warning if anything was
// removed.
func StripCommandLeak(text, prefix string) string {
	if prefix == "" {
		return text
	}
	pattern := commandLeakPattern(prefix)
	if !pattern.MatchString(text) {
		return text
	}
	log.Warn("middleware: stripped a leaked command token bound for an upstream backend")
	return pattern.ReplaceAllString(text, "")
}
