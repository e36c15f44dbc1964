package console

import (
	"regexp"
	"strings"
)

// Match results returned by Expect and SendAndExpect for outcomes that
// carry no pattern index.
const (
	// NotExpecting means no expected patterns were supplied and the call
	// was not waiting for a prompt alone.
	NotExpecting = -1
	// PromptOnly means only the prompt was awaited and found.
	PromptOnly = -2
)

type patternKind int

const (
	patternLiteral patternKind = iota
	patternRegex
	patternOnTimeout
)

// Pattern is one element of an expected or not-expected list: a literal
// string (matched after regex escaping), a ready-made regular
// expression, or the OnTimeout sentinel which makes timeout expiry the
// expected outcome instead of an error.
type Pattern struct {
	kind patternKind
	text string
	re   *regexp.Regexp
}

// Lit builds a pattern matching the literal text.
func Lit(text string) Pattern {
	return Pattern{kind: patternLiteral, text: text, re: regexp.MustCompile(regexp.QuoteMeta(text))}
}

// Re builds a pattern from a compiled regular expression.
func Re(re *regexp.Regexp) Pattern {
	return Pattern{kind: patternRegex, text: re.String(), re: re}
}

// Rx builds a pattern from a regular expression source string. It
// panics on an invalid expression, like regexp.MustCompile.
func Rx(expr string) Pattern {
	return Re(regexp.MustCompile(expr))
}

// OnTimeout is the sentinel pattern: when present in the expected list,
// timeout expiry returns its index instead of an error.
var OnTimeout = Pattern{kind: patternOnTimeout, text: "<timeout>"}

func (p Pattern) String() string {
	return p.text
}

func (p Pattern) isTimeout() bool {
	return p.kind == patternOnTimeout
}

// Lits builds a pattern list from literal strings.
func Lits(texts ...string) []Pattern {
	patterns := make([]Pattern, len(texts))
	for i, t := range texts {
		patterns[i] = Lit(t)
	}
	return patterns
}

func patternStrings(patterns []Pattern) []string {
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = p.String()
	}
	return out
}

// promptRegex joins prompt strings into a single alternation. Each
// string is escaped as a literal unless it already starts with a
// backslash, in which case it is taken as a ready-made regex fragment.
// An empty list yields an empty string, meaning no prompt.
func promptRegex(prompts []string) string {
	parts := make([]string, 0, len(prompts))
	for _, p := range prompts {
		if strings.HasPrefix(p, `\`) {
			parts = append(parts, p)
		} else {
			parts = append(parts, regexp.QuoteMeta(p))
		}
	}
	return strings.Join(parts, "|")
}
