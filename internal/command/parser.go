package command

import (
	"regexp"
	"strconv"
	"strings"
)

var nameRe = regexp.MustCompile(`^[a-zA-Z][\w-]*`)

// Detect scans text for the first command occurrence introduced by prefix
// and returns it along with true, or the zero value and false if none is
// found. The argument-list span, if present, is matched by hand-rolled
// paren/quote scanning rather than a single regex, so that a quoted value
// containing a literal ")" does not truncate the match early.
func Detect(text, prefix string) (Command, bool) {
	idx := strings.Index(text, prefix)
	for idx != -1 {
		rest := text[idx+len(prefix):]
		nameMatch := nameRe.FindString(rest)
		if nameMatch == "" {
			next := strings.Index(text[idx+len(prefix):], prefix)
			if next == -1 {
				return Command{}, false
			}
			idx = idx + len(prefix) + next
			continue
		}

		end := idx + len(prefix) + len(nameMatch)
		argsStr := ""
		if end < len(text) && text[end] == '(' {
			closeAt, ok := findMatchingParen(text, end)
			if !ok {
				// Unterminated arg list: treat the whole rest as the span,
				// with no parsed args.
				return Command{Name: nameMatch, Args: map[string]Arg{}, Start: idx, End: len(text)}, true
			}
			argsStr = text[end+1 : closeAt]
			end = closeAt + 1
		}

		args, _ := ParseArgs(argsStr)
		return Command{Name: nameMatch, Args: args, Start: idx, End: end}, true
	}
	return Command{}, false
}

// findMatchingParen returns the index of the ')' matching the '(' at
// openAt, honoring single/double quoted spans so a ')' inside a quoted
// argument value is not mistaken for the terminator.
func findMatchingParen(text string, openAt int) (int, bool) {
	depth := 0
	var quote byte
	for i := openAt; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			if c == quote && (i == 0 || text[i-1] != '\\') {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// ParseArgs tokenizes a command's argument-list interior into a map of
// comma-separated tokens of the form "--key=value" or "key=value", with
// optional single/double quoting on the value and unambiguous integer
// coercion.
func ParseArgs(s string) (map[string]Arg, error) {
	out := make(map[string]Arg)
	for _, tok := range splitTopLevel(s, ',') {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		tok = strings.TrimPrefix(tok, "--")

		eq := strings.IndexByte(tok, '=')
		var k, v string
		if eq == -1 {
			k, v = tok, ""
		} else {
			k, v = tok[:eq], tok[eq+1:]
		}
		k = strings.TrimSpace(k)
		v = unquote(strings.TrimSpace(v))
		if k == "" {
			continue
		}
		out[k] = coerce(v)
	}
	return out, nil
}

// splitTopLevel splits s on sep, ignoring separators that occur inside a
// single- or double-quoted span.
func splitTopLevel(s string, sep byte) []string {
	var out []string
	var cur strings.Builder
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			cur.WriteByte(c)
			if c == quote && (i == 0 || s[i-1] != '\\') {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
			cur.WriteByte(c)
		case c == sep:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	out = append(out, cur.String())
	return out
}

func unquote(v string) string {
	if len(v) >= 2 {
		first, last := v[0], v[len(v)-1]
		if (first == '\'' || first == '"') && first == last {
			return v[1 : len(v)-1]
		}
	}
	return v
}

func coerce(v string) Arg {
	if v == "" {
		return Arg{Str: v}
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		// Unambiguous integer: no leading sign ambiguity, no decimal point,
		// and the canonical re-rendering round-trips (guards against inputs
		// like "007" that a caller likely meant as a literal string/model
		// suffix rather than an integer).
		if strconv.FormatInt(n, 10) == v {
			return Arg{IsInt: true, Int: n}
		}
	}
	return Arg{Str: v}
}
