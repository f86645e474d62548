package service

import (
	"context"
	"strings"

	"github.com/MimeLyc/latexmt-web/internal/apperr"
	"github.com/MimeLyc/latexmt-web/internal/document"
	"github.com/MimeLyc/latexmt-web/internal/format"
	"github.com/MimeLyc/latexmt-web/internal/glossary"
	"github.com/MimeLyc/latexmt-web/internal/resource"
	"github.com/MimeLyc/latexmt-web/internal/translator"
	"github.com/MimeLyc/latexmt-web/pkg/log"
)

// AutoDetect as source language asks SingleShot to detect it from the text.
const AutoDetect = "auto"

type Outcome string

const (
	OutcomeTranslated        Outcome = "translated"
	OutcomeFormattingSkipped Outcome = "formatting_skipped"
	OutcomeFailed            Outcome = "failed"
)

type TextRequest struct {
	Text        string
	SrcLang     string
	TgtLang     string
	Glossary    string
	Backend     string
	Model       string
	InputPrefix string
	Token       string
	Placeholder string
}

// Result carries the output text for every outcome. For OutcomeFailed Text
// holds whatever was produced before the failure, possibly nothing.
type Result struct {
	Text    string
	SrcLang string
	Outcome Outcome
	Err     error
}

// SingleShot translates pasted text synchronously without creating a job.
type SingleShot struct {
	pool      *resource.Pool
	formatter *format.Formatter
	defaults  translator.BackendConfig
	logger    *log.Logger
}

func NewSingleShot(pool *resource.Pool, formatter *format.Formatter, defaults translator.BackendConfig, logger *log.Logger) *SingleShot {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &SingleShot{
		pool:      pool,
		formatter: formatter,
		defaults:  defaults,
		logger:    logger.With("component", "translate_single"),
	}
}

func (s *SingleShot) Translate(ctx context.Context, req TextRequest) Result {
	text := strings.ReplaceAll(req.Text, "\r\n", "\n")

	srcLang := req.SrcLang
	if strings.EqualFold(srcLang, AutoDetect) {
		detected, ok := document.DetectLanguage(text)
		if !ok {
			return s.failed("", srcLang, apperr.Validation("could not detect source language"))
		}
		s.logger.Info("Detected source language", "src_lang", detected)
		srcLang = detected
	}

	cfg := s.defaults
	if req.Backend != "" {
		cfg.Backend = req.Backend
	}
	if req.Model != "" {
		cfg.Model = req.Model
	}
	if req.InputPrefix != "" {
		cfg.InputPrefix = req.InputPrefix
	}
	cfg.Token = req.Token

	entry, err := s.pool.Acquire(ctx, srcLang, req.TgtLang, cfg)
	if err != nil {
		return s.failed("", srcLang, err)
	}

	processor := document.NewProcessor(entry.Translator, entry.Aligner,
		document.WithGlossary(glossary.LoadText(req.Glossary, s.logger)),
		document.WithPlaceholder(req.Placeholder),
		document.WithLogger(s.logger),
	)

	s.logger.Info("Start processing input", "src_lang", srcLang, "tgt_lang", req.TgtLang)
	var out strings.Builder
	entry.Lock()
	err = processor.ProcessText(ctx, strings.NewReader(text), &out)
	entry.Unlock()
	if err != nil {
		return s.failed(out.String(), srcLang, apperr.Wrap(err, apperr.KindProcessing, "process input"))
	}
	s.logger.Info("Finished processing input")

	output := out.String()
	if !s.formatter.Enabled() {
		return Result{Text: output, SrcLang: srcLang, Outcome: OutcomeTranslated}
	}

	formatted, err := s.formatter.FormatText(ctx, output)
	if err != nil {
		s.logger.Warn("Error formatting output", "error", err)
		return Result{Text: output, SrcLang: srcLang, Outcome: OutcomeFormattingSkipped, Err: err}
	}
	s.logger.Info("Formatted output")
	return Result{Text: formatted, SrcLang: srcLang, Outcome: OutcomeTranslated}
}

func (s *SingleShot) failed(text, srcLang string, err error) Result {
	s.logger.Warn("Error processing input", "error", err)
	return Result{Text: text, SrcLang: srcLang, Outcome: OutcomeFailed, Err: err}
}
