package glossary

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/latexmt-web/pkg/log"
)

func quietLogger(buf *bytes.Buffer) *log.Logger {
	return log.New(log.Config{Format: "json", Output: buf})
}

func TestLoad(t *testing.T) {
	var out bytes.Buffer
	g := Load([]string{
		"# comment",
		"",
		"Satz = theorem",
		"Beweis\tproof",
		"no separator here",
		" = empty source",
		"Satz = proposition",
	}, quietLogger(&out))

	require.Equal(t, 2, g.Len())
	targets := map[string]string{}
	for _, e := range g.Entries() {
		targets[e.Source] = e.Target
	}
	assert.Equal(t, "proposition", targets["Satz"], "later lines override earlier ones")
	assert.Equal(t, "proof", targets["Beweis"])
	assert.Equal(t, 2, strings.Count(out.String(), "Skipping malformed glossary line"))
}

func TestLoadText_EmptyGlossary(t *testing.T) {
	g := LoadText("", nil)
	assert.Equal(t, 0, g.Len())
	assert.Equal(t, "unchanged", g.Replace("unchanged", func(Entry) string { return "x" }))
}

func TestMatch_WholeWordsOnly(t *testing.T) {
	g := LoadText("elf = Elfe\nMomo = Momo-chan", nil)

	assert.Empty(t, g.Match([]string{"She found herself alone."}))

	matched := g.Match([]string{"The elf cast a spell.", "nothing"})
	require.Len(t, matched, 1)
	assert.Equal(t, "elf", matched[0].Source)

	assert.Empty(t, g.Match([]string{"momo is lowercase"}))
}

func TestReplace_LongestTermWins(t *testing.T) {
	g := LoadText("Satz = theorem\nSatz von Bayes = Bayes' theorem", nil)

	out := g.Replace("Der Satz von Bayes und ein Satz.", func(e Entry) string {
		return "[" + e.Target + "]"
	})
	assert.Equal(t, "Der [Bayes' theorem] und ein [theorem].", out)
}

func TestReplace_AdjacentOccurrences(t *testing.T) {
	g := LoadText("Satz = theorem", nil)
	out := g.Replace("Satz Satz, Sätze Satzung", func(e Entry) string { return e.Target })
	assert.Equal(t, "theorem theorem, Sätze Satzung", out)
}
