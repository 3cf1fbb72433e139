package command

import (
	"strings"

	"github.com/llmproxy-dev/llmproxy/internal/session"
)

// DefaultPrefix is used when a session or process configuration does not
// override the command prefix.
const DefaultPrefix = "!/"

// Interpreter runs the detect/classify/strip/execute/publish pipeline over
// an inbound canonical request.
type Interpreter struct {
	Prefix string
}

// NewInterpreter constructs an Interpreter with the given prefix, falling
// back to DefaultPrefix when empty.
func NewInterpreter(prefix string) *Interpreter {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Interpreter{Prefix: prefix}
}

// Outcome is the result of running Process over a request.
type Outcome struct {
	// Request is the request with every detected command stripped out of
	// its originating message.
	Request *session.Request

	// Snapshot is the (possibly unchanged) session snapshot after applying
	// every executed command's transition, in order.
	Snapshot *session.Snapshot

	// Confirmations holds one line per executed command (success or
	// failure), in the order commands were found.
	Confirmations []string

	// HaltDispatch is true when the request must not reach the dispatcher:
	// a synthesized command-confirmation response should be returned
	// instead.
	HaltDispatch bool
}

// Process mutates a copy of req in place (stripping command text) and
// threads snap through every executed handler, returning the combined
// outcome. cat may be nil in contexts where backend/model validation is not
// available (e.g. pure unit tests of the grammar); handlers treat a nil
// Catalog as "accept any backend/model".
func (it *Interpreter) Process(req *session.Request, snap *session.Snapshot, cat Catalog) Outcome {
	out := Outcome{Request: req, Snapshot: snap}

	anyCommand := false
	allHaltEligible := true

	for i := range req.Messages {
		msg := req.Messages[i]
		if msg.Role != session.RoleUser {
			continue
		}

		original := msg.JoinText()
		scanText, ok := ClassifySource(original)
		if !ok {
			continue
		}

		current := scanText
		executedHere := false
		for {
			cmd, found := Detect(current, it.Prefix)
			if !found {
				break
			}
			executedHere = true
			anyCommand = true

			handler := Lookup(cmd.Name)
			var result Result
			if handler == nil {
				result = Result{Success: false, Message: cmd.Name + ": unknown command"}
			} else {
				result = handler.Execute(out.Snapshot, cmd.Args, cat)
				if result.NewSnapshot != nil {
					out.Snapshot = result.NewSnapshot
				}
			}
			out.Confirmations = append(out.Confirmations, result.Message)
			current = Strip(current, cmd)
		}

		if !executedHere {
			continue
		}

		remaining := strings.TrimSpace(stripCommentLines(current))
		if remaining != "" {
			allHaltEligible = false
		}

		if !msg.HasParts() {
			msg.Text = current
		} else {
			// Collapse every text part into the single stripped string, at
			// the position of the first text part, leaving non-text parts
			// (image_url, inline_data) untouched so multimodal content
			// survives command stripping.
			newParts := make([]session.Part, 0, len(msg.Parts))
			textWritten := false
			for _, p := range msg.Parts {
				if p.Kind != session.PartText {
					newParts = append(newParts, p)
					continue
				}
				if textWritten {
					continue
				}
				textWritten = true
				if trimmed := strings.TrimSpace(current); trimmed != "" {
					newParts = append(newParts, session.Part{Kind: session.PartText, Text: current})
				}
			}
			msg.Parts = newParts
		}
		req.Messages[i] = msg
	}

	out.HaltDispatch = anyCommand && allHaltEligible
	return out
}
