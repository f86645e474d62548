package document

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/MimeLyc/latexmt-web/internal/glossary"
	"github.com/MimeLyc/latexmt-web/internal/translator"
	"github.com/MimeLyc/latexmt-web/pkg/log"
)

// Processor translates LaTeX sources paragraph by paragraph. Markup, math
// and comments are masked out before translation and restored afterwards;
// glossary terms are pinned to their target rendering.
type Processor struct {
	translator  translator.Translator
	aligner     translator.Aligner
	glossary    *glossary.Glossary
	placeholder string
	logger      *log.Logger
}

type Option func(*Processor)

func WithGlossary(g *glossary.Glossary) Option {
	return func(p *Processor) { p.glossary = g }
}

// WithPlaceholder sets the mask token template. Invalid templates keep the
// default.
func WithPlaceholder(tmpl string) Option {
	return func(p *Processor) {
		if ValidPlaceholder(tmpl) {
			p.placeholder = tmpl
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

func NewProcessor(tr translator.Translator, al translator.Aligner, opts ...Option) *Processor {
	p := &Processor{
		translator:  tr,
		aligner:     al,
		placeholder: DefaultPlaceholder,
		logger:      log.GetLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "document")
	return p
}

// ProcessDocument translates inputPath into outputDir, keeping the file name,
// and returns the written path. A failed translation leaves no output file.
func (p *Processor) ProcessDocument(ctx context.Context, inputPath, outputDir string) (string, error) {
	in, err := os.Open(inputPath)
	if err != nil {
		return "", fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	outPath := filepath.Join(outputDir, filepath.Base(inputPath))

	p.logger.Info("Processing document", "input", inputPath)

	var buf strings.Builder
	if err := p.ProcessText(ctx, in, &buf); err != nil {
		return "", fmt.Errorf("process %s: %w", filepath.Base(inputPath), err)
	}
	if err := os.WriteFile(outPath, []byte(buf.String()), 0o644); err != nil {
		return "", fmt.Errorf("write output: %w", err)
	}

	p.logger.Info("Wrote document", "output", outPath)
	return outPath, nil
}

type block struct {
	text     string
	verbatim bool
	mask     *masked
}

// ProcessText translates one LaTeX buffer.
func (p *Processor) ProcessText(ctx context.Context, in io.Reader, out io.Writer) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	blocks := splitBlocks(string(data))

	var segments []string
	var pending []*block
	for i := range blocks {
		b := &blocks[i]
		if b.verbatim {
			continue
		}
		b.mask = maskLaTeX(b.text, p.placeholder)
		if !b.mask.hasProse() {
			b.verbatim = true
			continue
		}
		p.pinGlossary(b.mask)
		segments = append(segments, strings.TrimSpace(b.mask.text))
		pending = append(pending, b)
	}

	p.logger.Debug("Segmented input", "blocks", len(blocks), "segments", len(segments))
	if p.glossary.Len() > 0 {
		p.logger.Debug("Glossary terms in input", "matched", len(p.glossary.Match(segments)), "entries", p.glossary.Len())
	}

	if len(segments) > 0 {
		translated, err := p.translator.Translate(ctx, segments)
		if err != nil {
			return fmt.Errorf("translate: %w", err)
		}
		if len(translated) != len(segments) {
			return fmt.Errorf("translator returned %d segments for %d inputs", len(translated), len(segments))
		}
		for i, b := range pending {
			text := p.restore(segments[i], translated[i], b.mask)
			if !strings.HasSuffix(text, "\n") {
				text += trailingNewline(b.text)
			}
			b.text = text
		}
	}

	w := bufio.NewWriter(out)
	for _, b := range blocks {
		if _, err := w.WriteString(b.text); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	return w.Flush()
}

// pinGlossary replaces glossary source terms in the masked text by
// placeholders that restore to the glossary target.
func (p *Processor) pinGlossary(m *masked) {
	if p.glossary.Len() == 0 {
		return
	}
	m.text = p.glossary.Replace(m.text, func(e glossary.Entry) string {
		return m.add(e.Target)
	})
}

// restore puts the masked spans back into translated text. Placeholders the
// translator dropped are re-inserted next to the target token the aligner
// pairs with their source position.
func (p *Processor) restore(source, translated string, m *masked) string {
	found := make([]bool, len(m.originals))
	for i := len(m.originals) - 1; i >= 0; i-- {
		token := fmt.Sprintf(m.tmpl, i)
		if strings.Contains(translated, token) {
			translated = strings.Replace(translated, token, sentinel(i), 1)
			translated = strings.ReplaceAll(translated, token, "")
			found[i] = true
		}
	}

	var missing []int
	for i, ok := range found {
		if !ok {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		p.logger.Debug("Re-inserting dropped placeholders", "count", len(missing))
		translated = p.reinsert(source, translated, m, missing)
	}

	for i, original := range m.originals {
		translated = strings.Replace(translated, sentinel(i), original, 1)
	}
	return translated
}

func (p *Processor) reinsert(source, translated string, m *masked, missing []int) string {
	srcTokens := strings.Fields(source)
	tgtTokens := strings.Fields(translated)
	alignment := p.aligner.Align(srcTokens, tgtTokens)

	before := make(map[int][]string)
	var tail []string
	for _, i := range missing {
		token := fmt.Sprintf(m.tmpl, i)
		pos := -1
		for k, st := range srcTokens {
			if strings.Contains(st, token) {
				if k < len(alignment) {
					pos = alignment[k]
				}
				break
			}
		}
		if pos < 0 || pos >= len(tgtTokens) {
			tail = append(tail, sentinel(i))
			continue
		}
		before[pos] = append(before[pos], sentinel(i))
	}

	var b strings.Builder
	for k, tok := range tgtTokens {
		if k > 0 {
			b.WriteByte(' ')
		}
		for _, s := range before[k] {
			b.WriteString(s)
		}
		b.WriteString(tok)
	}
	for _, s := range tail {
		b.WriteString(s)
	}
	return b.String()
}

// splitBlocks cuts the input into paragraphs separated by blank lines and
// verbatim environments. Concatenating the blocks yields the input.
func splitBlocks(text string) []block {
	var blocks []block
	var para strings.Builder
	flush := func() {
		if para.Len() > 0 {
			blocks = append(blocks, block{text: para.String()})
			para.Reset()
		}
	}

	lines := strings.SplitAfter(text, "\n")
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if line == "" {
			continue
		}
		if strings.TrimSpace(line) == "" {
			flush()
			blocks = append(blocks, block{text: line, verbatim: true})
			continue
		}
		if env := environmentName(line, "begin"); verbatimEnvironments[env] {
			flush()
			var v strings.Builder
			for ; i < len(lines); i++ {
				v.WriteString(lines[i])
				if environmentName(lines[i], "end") == env {
					break
				}
			}
			blocks = append(blocks, block{text: v.String(), verbatim: true})
			continue
		}
		para.WriteString(line)
	}
	flush()
	return blocks
}

func trailingNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return "\n"
	}
	return ""
}
