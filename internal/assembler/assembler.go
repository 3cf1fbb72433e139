// Package assembler builds the session banner, joins command
// confirmations, and wraps proxy-generated text for agent classes (Cline)
// that expect a particular envelope, before the result is injected into
// the dispatched or synthesized response.
package assembler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/llmproxy-dev/llmproxy/internal/session"
)

// ProductName and ProductVersion are reported in the banner.
const (
	ProductName    = "llmproxy"
	ProductVersion = "1.0.0"
)

// BackendStatus describes one backend's functional state for the banner's
// "Functional backends" line.
type BackendStatus struct {
	Name   string
	Keys   int
	Models int
}

// Banner builds the session banner.
func Banner(sessionID, prefix string, backends []BackendStatus) string {
	sorted := append([]BackendStatus(nil), backends...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	parts := make([]string, 0, len(sorted))
	for _, b := range sorted {
		parts = append(parts, fmt.Sprintf("%s (K:%d, M:%d)", b.Name, b.Keys, b.Models))
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Hello, this is %s %s\n", ProductName, ProductVersion)
	fmt.Fprintf(&out, "Session id: %s\n", sessionID)
	fmt.Fprintf(&out, "Functional backends: %s\n", strings.Join(parts, ", "))
	fmt.Fprintf(&out, "Type %shelp for list of available commands", prefix)
	return out.String()
}

// ShouldBanner reports whether the banner must be (re-)emitted: once per
// session unless re-requested. Outside interactive mode the banner never
// fires, even off the back of an explicit !/hello, since hello's
// acknowledgement is the only reply a non-interactive session should see.
func ShouldBanner(snap *session.Snapshot) bool {
	if !snap.Backend.InteractiveMode {
		return false
	}
	return snap.HelloRequested || snap.InteractiveJustEnabled
}

// JoinConfirmations joins command confirmation lines with "; " when
// inlined into a single chat message.
func JoinConfirmations(confirmations []string) string {
	return strings.Join(confirmations, "; ")
}

// Envelope wraps a proxy-generated message for the target agent class.
// Cline agents expect the entire message wrapped in an
// attempt_completion/result block; every other agent class receives the
// raw text unchanged.
func Envelope(text string, snap *session.Snapshot) string {
	if !isClineAgent(snap) {
		return text
	}
	return "<attempt_completion>\n<result>\n" + text + "\n</result>\n</attempt_completion>\n"
}

func isClineAgent(snap *session.Snapshot) bool {
	return snap.IsClineAgent || snap.Agent == "cline"
}

// CommandOnlyMessage builds the full text of a synthesized "command
// processed" reply: the banner (if due), followed by the joined
// confirmations, followed by the agent envelope. Cline agents never see
// "hello acknowledged" text; the banner's hello line is still included
// when due since it is not the same string.
func CommandOnlyMessage(snap *session.Snapshot, sessionID, prefix string, backends []BackendStatus, confirmations []string) string {
	var body strings.Builder
	if ShouldBanner(snap) {
		body.WriteString(Banner(sessionID, prefix, backends))
		if len(confirmations) > 0 {
			body.WriteString("\n")
		}
	}
	body.WriteString(JoinConfirmations(confirmations))
	return Envelope(body.String(), snap)
}

// ProxyCommandResponse builds the synthesized non-streaming response for a
// command-only request, tagged with the fixed id "proxy_cmd_processed".
func ProxyCommandResponse(text, model string) *session.Response {
	return &session.Response{
		ID:     "proxy_cmd_processed",
		Model:  model,
		Object: "chat.completion",
		Choices: []session.Choice{
			{Index: 0, Message: &session.Message{Role: session.RoleAssistant, Text: text}, FinishReason: "stop"},
		},
	}
}

// PrependToResponse injects prefix text before the first choice's message
// content of a unary, dispatched (non-command-only) response.
func PrependToResponse(resp *session.Response, prefix string) {
	if prefix == "" || len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return
	}
	m := resp.Choices[0].Message
	if m.HasParts() {
		m.Parts = append([]session.Part{{Kind: session.PartText, Text: prefix + "\n\n"}}, m.Parts...)
		return
	}
	m.Text = prefix + "\n\n" + m.Text
}

// PrependToChunk injects prefix text into the first streaming chunk's
// delta content.
func PrependToChunk(chunk *session.Response, prefix string) {
	if prefix == "" || len(chunk.Choices) == 0 {
		return
	}
	if chunk.Choices[0].Delta == nil {
		chunk.Choices[0].Delta = &session.Message{Role: session.RoleAssistant}
	}
	chunk.Choices[0].Delta.Text = prefix + "\n\n" + chunk.Choices[0].Delta.Text
}
