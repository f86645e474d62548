package glossary

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MimeLyc/latexmt-web/pkg/log"
)

// Entry is one fixed substitution: occurrences of Source are rendered as
// Target regardless of what the translator would produce.
type Entry struct {
	Source string
	Target string
}

// Glossary holds entries ordered longest source first so that overlapping
// terms resolve to the most specific one.
type Glossary struct {
	entries []Entry
}

// Load parses glossary lines of the form "source = target" or
// "source<TAB>target". Blank lines and lines starting with '#' are ignored;
// malformed lines are logged and skipped.
func Load(lines []string, logger *log.Logger) *Glossary {
	if logger == nil {
		logger = log.GetLogger()
	}

	bySource := make(map[string]string)
	for n, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		src, tgt, ok := splitLine(line)
		if !ok {
			logger.Warn("Skipping malformed glossary line", "line", n+1, "content", line)
			continue
		}
		bySource[src] = tgt
	}

	g := &Glossary{entries: make([]Entry, 0, len(bySource))}
	for src, tgt := range bySource {
		g.entries = append(g.entries, Entry{Source: src, Target: tgt})
	}
	sort.Slice(g.entries, func(i, j int) bool {
		if len(g.entries[i].Source) != len(g.entries[j].Source) {
			return len(g.entries[i].Source) > len(g.entries[j].Source)
		}
		return g.entries[i].Source < g.entries[j].Source
	})
	return g
}

func LoadText(text string, logger *log.Logger) *Glossary {
	return Load(strings.Split(text, "\n"), logger)
}

func splitLine(line string) (string, string, bool) {
	var src, tgt string
	if i := strings.Index(line, "\t"); i >= 0 {
		src, tgt = line[:i], line[i+1:]
	} else if i := strings.Index(line, "="); i >= 0 {
		src, tgt = line[:i], line[i+1:]
	} else {
		return "", "", false
	}
	src, tgt = strings.TrimSpace(src), strings.TrimSpace(tgt)
	if src == "" || tgt == "" {
		return "", "", false
	}
	return src, tgt, true
}

func (g *Glossary) Len() int {
	if g == nil {
		return 0
	}
	return len(g.entries)
}

func (g *Glossary) Entries() []Entry {
	if g == nil {
		return nil
	}
	return g.entries
}

// Match returns the entries whose source term occurs as a whole word in any
// of the texts. Matching is case-sensitive.
func (g *Glossary) Match(texts []string) []Entry {
	var matched []Entry
	for _, e := range g.Entries() {
		for _, text := range texts {
			if len(wordIndexes(text, e.Source)) > 0 {
				matched = append(matched, e)
				break
			}
		}
	}
	return matched
}

// Replace rewrites every whole-word occurrence of a source term with the
// value returned by fn. Longer terms win over terms they contain.
func (g *Glossary) Replace(text string, fn func(e Entry) string) string {
	for _, e := range g.Entries() {
		idx := wordIndexes(text, e.Source)
		if len(idx) == 0 {
			continue
		}
		var b strings.Builder
		last := 0
		for _, i := range idx {
			b.WriteString(text[last:i])
			b.WriteString(fn(e))
			last = i + len(e.Source)
		}
		b.WriteString(text[last:])
		text = b.String()
	}
	return text
}

// wordIndexes returns the byte offsets of non-overlapping occurrences of term
// in text that are not glued to a letter or digit on either side.
func wordIndexes(text, term string) []int {
	var ret []int
	for from := 0; from <= len(text)-len(term); {
		i := strings.Index(text[from:], term)
		if i < 0 {
			break
		}
		start := from + i
		end := start + len(term)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			ret = append(ret, start)
			from = end
			continue
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		from = start + size
	}
	return ret
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}
