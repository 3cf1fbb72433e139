package command

import (
	"regexp"
	"strings"
)

// toolResultRe recognizes the surrounding shape of a tool-call result
// message.
var toolResultRe = regexp.MustCompile(`^\s*\[\w+(\s+for\s+'[^']+')?\]\s+Result:`)

// feedbackRe extracts an embedded <feedback>...</feedback> block.
var feedbackRe = regexp.MustCompile(`(?s)<feedback>(.*?)</feedback>`)

// ClassifySource decides where in text commands may be honored: if text
// looks like a tool-call result, commands are only honored inside an
// embedded <feedback>
// block (returned with ok=true); if it looks like a tool result but carries
// no feedback block, commands in it are ignored entirely (ok=false). Any
// other text is returned unchanged with ok=true.
func ClassifySource(text string) (scanText string, ok bool) {
	if !toolResultRe.MatchString(text) {
		return text, true
	}
	m := feedbackRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Strip removes the matched command span from text:
// a command at the very end drops the suffix and right-trims; a command at
// the very start drops the prefix and left-trims; a command in the middle
// joins the surrounding text with a single space.
func Strip(text string, cmd Command) string {
	before := text[:cmd.Start]
	after := text[cmd.End:]

	beforeTrimmed := strings.TrimSpace(before)
	afterTrimmed := strings.TrimSpace(after)

	switch {
	case beforeTrimmed == "" && afterTrimmed == "":
		return ""
	case beforeTrimmed == "":
		return strings.TrimLeft(after, " \t\r\n")
	case afterTrimmed == "":
		return strings.TrimRight(before, " \t\r\n")
	default:
		return strings.TrimRight(before, " \t\r\n") + " " + strings.TrimLeft(after, " \t\r\n")
	}
}

// stripCommentLines drops any line whose trimmed content begins with "#",
// used when deciding whether a message's original content was "purely one
// or more commands".
func stripCommentLines(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
