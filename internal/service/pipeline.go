package service

import (
	"context"
	"fmt"

	"github.com/MimeLyc/latexmt-web/internal/apperr"
	"github.com/MimeLyc/latexmt-web/internal/document"
	"github.com/MimeLyc/latexmt-web/internal/format"
	"github.com/MimeLyc/latexmt-web/internal/glossary"
	"github.com/MimeLyc/latexmt-web/internal/jobs"
	"github.com/MimeLyc/latexmt-web/internal/resource"
	"github.com/MimeLyc/latexmt-web/internal/translator"
	"github.com/MimeLyc/latexmt-web/internal/workdir"
	"github.com/MimeLyc/latexmt-web/pkg/log"
)

// Pipeline drives one job from new to done or error.
type Pipeline struct {
	store     jobs.Store
	pool      *resource.Pool
	dirs      workdir.Dirs
	formatter *format.Formatter
	defaults  translator.BackendConfig
	logger    *log.Logger
}

// NewPipeline wires the worker. defaults supplies the aligner and API URL;
// the backend and model come from each job.
func NewPipeline(
	store jobs.Store,
	pool *resource.Pool,
	dirs workdir.Dirs,
	formatter *format.Formatter,
	defaults translator.BackendConfig,
	logger *log.Logger,
) *Pipeline {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Pipeline{
		store:     store,
		pool:      pool,
		dirs:      dirs,
		formatter: formatter,
		defaults:  defaults,
		logger:    logger,
	}
}

func (p *Pipeline) backendFor(job jobs.Job, token string) translator.BackendConfig {
	cfg := p.defaults
	if job.Backend != "" {
		cfg.Backend = job.Backend
	}
	if job.Model != "" {
		cfg.Model = job.Model
	}
	if job.InputPrefix != "" {
		cfg.InputPrefix = job.InputPrefix
	}
	cfg.Token = token
	return cfg
}

// Run is the queue executor. Per-file failures end as status error and a
// nil return; store failures and translator construction failures are
// returned.
func (p *Pipeline) Run(ctx context.Context, task jobs.Task) error {
	job, err := p.store.Get(ctx, task.JobID)
	if err != nil {
		return err
	}

	jl, err := log.NewJobLogger(p.logger, p.dirs.LogFile(job.ID), "job", job.ID)
	if err != nil {
		return apperr.Wrap(err, apperr.KindStorage, "open job log").With("job", job.ID)
	}
	defer jl.Close()

	if job.Status.Terminal() {
		jl.Warn("Skipping finished job", "status", job.Status)
		return nil
	}

	jl.Info("Starting worker", "log_file", jl.Path())
	job.Status = jobs.StatusInitialising
	if job, err = p.store.Update(ctx, job.ID, job); err != nil {
		return err
	}

	gloss := glossary.LoadText(job.Glossary, jl.Logger)

	entry, err := p.pool.Acquire(ctx, job.SrcLang, job.TgtLang, p.backendFor(job, task.Token))
	if err != nil {
		jl.Error("Failed to construct translator", "error", err)
		job.Status = jobs.StatusError
		job.DownloadURL = nil
		if _, uerr := p.store.Update(ctx, job.ID, job); uerr != nil {
			jl.Error("Failed to record error status", "error", uerr)
		}
		return err
	}

	processor := document.NewProcessor(entry.Translator, entry.Aligner,
		document.WithGlossary(gloss),
		document.WithPlaceholder(job.Placeholder),
		document.WithLogger(jl.Logger),
	)

	jl.Info("Start processing documents")
	job.Status = jobs.StatusProcessing
	if job, err = p.store.Update(ctx, job.ID, job); err != nil {
		return err
	}

	files, err := p.dirs.InputFiles(job.ID)
	if err != nil {
		files = nil
		if job, err = p.fail(ctx, jl, job, "Error listing input files", "", err); err != nil {
			return err
		}
	}

	processed := 0
	for _, input := range files {
		if ferr := p.processFile(ctx, entry, processor, job.ID, input); ferr != nil {
			if job, err = p.fail(ctx, jl, job, "Error processing file", input, ferr); err != nil {
				return err
			}
			break
		}
		processed++
	}
	jl.Info("Finished translating input files", "processed", processed, "found", len(files))

	p.formatOutputs(ctx, jl, job.ID)

	if job.Status != jobs.StatusError {
		job.Status = jobs.StatusDone
		job.SetDownloadURL()
		if _, err := p.store.Update(ctx, job.ID, job); err != nil {
			return err
		}
		jl.Info("Finished")
	}
	return nil
}

func (p *Pipeline) processFile(ctx context.Context, entry *resource.Entry, processor *document.Processor, id int64, input string) error {
	outDir, err := p.dirs.OutputDirFor(id, input)
	if err != nil {
		return err
	}

	entry.Lock()
	defer entry.Unlock()

	if _, err := processor.ProcessDocument(ctx, input, outDir); err != nil {
		return apperr.Wrap(err, apperr.KindProcessing, "process document").With("input_file", input)
	}
	return nil
}

// fail records status error with the partial-output download URL.
func (p *Pipeline) fail(ctx context.Context, jl *log.JobLogger, job jobs.Job, msg, input string, cause error) (jobs.Job, error) {
	if input != "" {
		jl.Warn(msg, "input_file", input, "error", cause)
	} else {
		jl.Warn(msg, "error", cause)
	}
	job.Status = jobs.StatusError
	job.SetDownloadURL()
	updated, err := p.store.Update(ctx, job.ID, job)
	if err != nil {
		return job, fmt.Errorf("record error status: %w", err)
	}
	return updated, nil
}

func (p *Pipeline) formatOutputs(ctx context.Context, jl *log.JobLogger, id int64) {
	if !p.formatter.Enabled() {
		return
	}
	outputs, err := p.dirs.OutputDocuments(id)
	if err != nil {
		jl.Warn("Error listing output files", "error", err)
		return
	}
	if err := p.formatter.FormatFiles(ctx, outputs); err != nil {
		jl.Warn("Error formatting output files", "error", err)
		return
	}
	jl.Info("Formatted output files", "count", len(outputs))
}
