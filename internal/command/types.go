// Package command implements the in-band command DSL: detection,
// shell-like argument parsing, a closed registry of handlers, and the
// strip/execute/publish pipeline that turns `!/name(...)` tokens embedded
// in user messages into session snapshot transitions.
package command

import "github.com/llmproxy-dev/llmproxy/internal/session"

// Arg is a parsed command argument value: either a string or a coerced
// int; integers are coerced when unambiguous.
type Arg struct {
	IsInt bool
	Str   string
	Int   int64
}

// String returns the argument's string form regardless of how it was typed.
func (a Arg) String() string {
	if a.IsInt {
		return int64ToString(a.Int)
	}
	return a.Str
}

// Command is a single detected and parsed command occurrence.
type Command struct {
	Name string
	Args map[string]Arg

	// Start and End delimit the matched span (including prefix, name,
	// parens and args) within the original text part.
	Start, End int
}

// Catalog answers the backend/model validation questions handlers need
// ("is B a known backend", "was model M advertised by backend B at load
// time") without the command package importing the connector package
// directly.
type Catalog interface {
	// IsFunctional reports whether backend is a known, functional backend
	// (credentials present, model list non-empty).
	IsFunctional(backend string) bool

	// HasModel reports whether backend currently advertises model.
	HasModel(backend, model string) bool

	// Backends returns the sorted list of functional backend names.
	Backends() []string
}

// Result is what a handler returns to the interpreter: an outcome message,
// an optional new snapshot to publish, and whether dispatch should be
// suppressed for the message carrying this command.
type Result struct {
	Success     bool
	Message     string
	NewSnapshot *session.Snapshot
	HaltDispatch bool
}

// Handler is the pure transition function of one command case: it consumes
// the parsed argument map and the current snapshot and returns the outcome.
// A handler must be pure over its inputs and must not perform side
// effects itself.
type Handler interface {
	Name() string
	Execute(snap *session.Snapshot, args map[string]Arg, cat Catalog) Result
}

func int64ToString(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
