package console

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLitEscapesMetaCharacters(t *testing.T) {
	p := Lit("a.b")
	require.True(t, p.re.MatchString("a.b"))
	require.False(t, p.re.MatchString("aXb"))
	require.Equal(t, "a.b", p.String())
}

func TestRxMatchesAsRegex(t *testing.T) {
	p := Rx(`build [0-9]+ done`)
	require.True(t, p.re.MatchString("build 42 done"))
	require.False(t, p.re.MatchString("build done"))
}

func TestReKeepsCompiledExpression(t *testing.T) {
	re := regexp.MustCompile(`^OK$`)
	p := Re(re)
	require.Same(t, re, p.re)
	require.Equal(t, `^OK$`, p.String())
}

func TestOnTimeoutIsNotAMatcher(t *testing.T) {
	require.True(t, OnTimeout.isTimeout())
	require.False(t, Lit("x").isTimeout())
	require.Nil(t, OnTimeout.re)
}

func TestLitsBuildsLiteralList(t *testing.T) {
	ps := Lits("one", "two")
	require.Len(t, ps, 2)
	require.Equal(t, []string{"one", "two"}, patternStrings(ps))
}

func TestPromptRegex(t *testing.T) {
	tests := []struct {
		name    string
		prompts []string
		want    string
	}{
		{"empty", nil, ""},
		{"literal escaped", []string{"$ "}, regexp.QuoteMeta("$ ")},
		{"backslash kept verbatim", []string{`\$\s+`}, `\$\s+`},
		{"alternation", []string{"# ", "$ "}, regexp.QuoteMeta("# ") + "|" + regexp.QuoteMeta("$ ")},
		{"mixed", []string{"qnx> ", `\d+#`}, regexp.QuoteMeta("qnx> ") + `|\d+#`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := promptRegex(tt.prompts)
			require.Equal(t, tt.want, got)
			_, err := regexp.Compile(got)
			require.NoError(t, err)
		})
	}
}

func TestPromptRegexMatchesRealPrompts(t *testing.T) {
	re := regexp.MustCompile(promptRegex([]string{"J534-ihu:/$", `\w+@\w+:.*\$`}))
	require.True(t, re.MatchString("J534-ihu:/$"))
	require.True(t, re.MatchString("root@ihu:/data$"))
	require.False(t, re.MatchString("loading..."))
}
