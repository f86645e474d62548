package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MimeLyc/latexmt-web/internal/llm"
	"github.com/MimeLyc/latexmt-web/pkg/log"
)

const defaultBatchSize = 20

type chatClient interface {
	SimpleChat(ctx context.Context, prompt string, systemPrompt string) (string, error)
}

// apiTranslator translates through a chat-completions endpoint, sending
// segments as an indexed JSON list.
type apiTranslator struct {
	client    chatClient
	srcLang   string
	tgtLang   string
	prefix    string
	batchSize int
	logger    *log.Logger
}

func NewAPITranslator(client *llm.Client, srcLang, tgtLang, prefix string, logger *log.Logger) Translator {
	return newAPITranslator(client, srcLang, tgtLang, prefix, logger)
}

func newAPITranslator(client chatClient, srcLang, tgtLang, prefix string, logger *log.Logger) *apiTranslator {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &apiTranslator{
		client:    client,
		srcLang:   srcLang,
		tgtLang:   tgtLang,
		prefix:    prefix,
		batchSize: defaultBatchSize,
		logger:    logger.With("component", "api_translator"),
	}
}

func (t *apiTranslator) Translate(ctx context.Context, segments []string) ([]string, error) {
	return t.batchTranslate(ctx, segments, t.batchSize)
}

func (t *apiTranslator) batchTranslate(ctx context.Context, segments []string, batchSize int) ([]string, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be greater than 0")
	}

	out := make([]string, 0, len(segments))
	for i := 0; i < len(segments); i += batchSize {
		end := min(i+batchSize, len(segments))
		batch := segments[i:end]

		translated, err := t.translateBatch(ctx, batch)
		if err != nil {
			if batchSize == 1 || ctx.Err() != nil {
				return nil, fmt.Errorf("batch translation failed for segments %d-%d: %w", i+1, end, err)
			}
			t.logger.Warn("Batch translation rejected, retrying with smaller batches",
				"from", i+1, "to", end, "batch_size", batchSize/2, "error", err)
			if translated, err = t.batchTranslate(ctx, batch, batchSize/2); err != nil {
				return nil, err
			}
		}
		out = append(out, translated...)
	}
	return out, nil
}

func (t *apiTranslator) translateBatch(ctx context.Context, batch []string) ([]string, error) {
	payload, err := buildTranslationUserMessage(batch, t.prefix)
	if err != nil {
		return nil, err
	}
	content, err := t.client.SimpleChat(ctx, payload, t.buildSystemPrompt())
	if err != nil {
		return nil, err
	}
	return parseTranslationOutput(content, len(batch))
}

func (t *apiTranslator) buildSystemPrompt() string {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "You translate scientific LaTeX prose from %s to %s.\n\n", languageName(t.srcLang), languageName(t.tgtLang))
	prompt.WriteString("=== RULES ===\n")
	prompt.WriteString("1. Input is a JSON object with a \"segments\" array of {index, text}.\n")
	prompt.WriteString("2. Keep every placeholder token such as <m0> exactly as written and in a sensible position.\n")
	prompt.WriteString("3. Do NOT merge, split, reorder, or drop segments.\n")
	prompt.WriteString("4. If a segment is empty, its output text MUST be an empty string.\n")
	prompt.WriteString("\n=== OUTPUT FORMAT ===\n")
	prompt.WriteString("Return ONLY a JSON array of {\"index\": n, \"text\": \"...\"}, one entry per input segment.\n")
	return prompt.String()
}

type indexedSegment struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

func buildTranslationUserMessage(segments []string, prefix string) (string, error) {
	payload := struct {
		Segments []indexedSegment `json:"segments"`
	}{Segments: make([]indexedSegment, len(segments))}
	for i, s := range segments {
		payload.Segments[i] = indexedSegment{Index: i + 1, Text: prefix + s}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal segments: %w", err)
	}
	return string(data), nil
}

// parseTranslationOutput accepts a JSON array, optionally wrapped in a code
// fence, and requires exactly one entry per index 1..expected.
func parseTranslationOutput(content string, expected int) ([]string, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}
	if start, end := strings.Index(content, "["), strings.LastIndex(content, "]"); start >= 0 && end > start {
		content = content[start : end+1]
	}

	var entries []indexedSegment
	if err := json.Unmarshal([]byte(content), &entries); err != nil {
		return nil, fmt.Errorf("parse translation output: %w", err)
	}
	if len(entries) != expected {
		return nil, fmt.Errorf("translation count mismatch: got %d, want %d", len(entries), expected)
	}

	out := make([]string, expected)
	seen := make([]bool, expected)
	for _, e := range entries {
		if e.Index < 1 || e.Index > expected {
			return nil, fmt.Errorf("translation index %d out of range", e.Index)
		}
		if seen[e.Index-1] {
			return nil, fmt.Errorf("duplicate translation index %d", e.Index)
		}
		seen[e.Index-1] = true
		out[e.Index-1] = e.Text
	}
	return out, nil
}
