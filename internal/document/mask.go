package document

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

const DefaultPlaceholder = "<m%d>"

// commands whose arguments are never prose and are masked together with
// the command itself.
var opaqueCommands = map[string]bool{
	"begin": true, "end": true, "documentclass": true, "usepackage": true,
	"label": true, "ref": true, "eqref": true, "pageref": true, "autoref": true, "cref": true,
	"cite": true, "citep": true, "citet": true, "nocite": true,
	"includegraphics": true, "input": true, "include": true,
	"bibliography": true, "bibliographystyle": true, "url": true, "href": true,
	"newcommand": true, "renewcommand": true, "newenvironment": true, "DeclareMathOperator": true,
	"setlength": true, "vspace": true, "hspace": true,
}

// verbatimEnvironments are copied through untouched, line for line.
var verbatimEnvironments = map[string]bool{
	"equation": true, "equation*": true, "align": true, "align*": true,
	"gather": true, "gather*": true, "multline": true, "multline*": true,
	"eqnarray": true, "eqnarray*": true, "displaymath": true, "math": true,
	"verbatim": true, "lstlisting": true, "minted": true, "tikzpicture": true,
	"tabular": true,
}

// ValidPlaceholder reports whether tmpl formats exactly one integer.
func ValidPlaceholder(tmpl string) bool {
	if strings.Count(tmpl, "%d") != 1 || strings.Count(tmpl, "%") != 1 {
		return false
	}
	return strings.TrimSpace(fmt.Sprintf(tmpl, 0)) != ""
}

// masked is a text segment whose non-translatable spans have been replaced
// by numbered placeholder tokens.
type masked struct {
	text      string
	originals []string
	tmpl      string
}

func (m *masked) add(original string) string {
	token := fmt.Sprintf(m.tmpl, len(m.originals))
	m.originals = append(m.originals, original)
	return token
}

// hasProse reports whether anything but placeholders, punctuation and
// whitespace is left.
func (m *masked) hasProse() bool {
	return strings.IndexFunc(m.prose(), unicode.IsLetter) >= 0
}

// prose is the masked text with every placeholder blanked out.
func (m *masked) prose() string {
	rest := m.text
	for i := len(m.originals) - 1; i >= 0; i-- {
		rest = strings.ReplaceAll(rest, fmt.Sprintf(m.tmpl, i), " ")
	}
	return rest
}

func maskLaTeX(text, tmpl string) *masked {
	m := &masked{tmpl: tmpl}
	var b strings.Builder

	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == '%':
			end := strings.IndexByte(text[i:], '\n')
			if end < 0 {
				end = len(text)
			} else {
				end = i + end + 1
			}
			b.WriteString(m.add(text[i:end]))
			i = end
		case c == '$':
			end := mathEnd(text, i)
			b.WriteString(m.add(text[i:end]))
			i = end
		case c == '\\':
			end := commandEnd(text, i)
			b.WriteString(m.add(text[i:end]))
			i = end
		case c == '{' || c == '}':
			b.WriteString(m.add(text[i : i+1]))
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}

	m.text = strings.ReplaceAll(b.String(), "\n", " ")
	return m
}

// mathEnd returns the offset just past the math span opened at i by '$' or '$$'.
func mathEnd(text string, i int) int {
	delim := "$"
	if strings.HasPrefix(text[i:], "$$") {
		delim = "$$"
	}
	start := i + len(delim)
	for j := start; j < len(text); j++ {
		if text[j] == '\\' {
			j++
			continue
		}
		if strings.HasPrefix(text[j:], delim) {
			return j + len(delim)
		}
	}
	return len(text)
}

// commandEnd returns the offset just past the control sequence at i. Opaque
// commands swallow their bracket and brace arguments; display math openers
// swallow everything up to their closer.
func commandEnd(text string, i int) int {
	if i+1 >= len(text) {
		return len(text)
	}
	next := text[i+1]
	switch next {
	case '(':
		return closeAfter(text, i+2, `\)`)
	case '[':
		return closeAfter(text, i+2, `\]`)
	}
	if !isLetter(next) {
		return i + 2
	}

	j := i + 1
	for j < len(text) && isLetter(text[j]) {
		j++
	}
	if j < len(text) && text[j] == '*' {
		j++
	}
	name := strings.TrimSuffix(text[i+1:j], "*")
	if !opaqueCommands[name] {
		return j
	}

	for j < len(text) {
		k := j
		for k < len(text) && (text[k] == ' ' || text[k] == '\t') {
			k++
		}
		if k >= len(text) || (text[k] != '{' && text[k] != '[') {
			break
		}
		j = groupEnd(text, k)
	}
	return j
}

func closeAfter(text string, from int, closer string) int {
	if end := strings.Index(text[from:], closer); end >= 0 {
		return from + end + len(closer)
	}
	return len(text)
}

// groupEnd returns the offset just past the balanced {...} or [...] group at i.
func groupEnd(text string, i int) int {
	open := text[i]
	closeCh := byte('}')
	if open == '[' {
		closeCh = ']'
	}
	depth := 0
	for j := i; j < len(text); j++ {
		switch text[j] {
		case '\\':
			j++
		case open:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return j + 1
			}
		}
	}
	return len(text)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '@'
}

// environmentName returns the X of the first \begin{X} on the line.
func environmentName(line, keyword string) string {
	marker := `\` + keyword + `{`
	i := strings.Index(line, marker)
	if i < 0 {
		return ""
	}
	rest := line[i+len(marker):]
	end := strings.IndexByte(rest, '}')
	if end < 0 {
		return ""
	}
	return rest[:end]
}

// sentinel is an internal marker that can never collide with user text or
// another placeholder.
func sentinel(i int) string {
	return "\x00" + strconv.Itoa(i) + "\x01"
}
