package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/MimeLyc/latexmt-web/internal/apperr"
	"github.com/MimeLyc/latexmt-web/internal/document"
	"github.com/MimeLyc/latexmt-web/internal/jobs"
	"github.com/MimeLyc/latexmt-web/internal/translator"
	"github.com/MimeLyc/latexmt-web/internal/workdir"
	"github.com/MimeLyc/latexmt-web/pkg/log"
)

// Scheduler hands a task to the background workers without waiting for it.
type Scheduler interface {
	Submit(task jobs.Task) error
}

// Submission is one uploaded document with its translation parameters.
type Submission struct {
	Filename    string
	Document    io.Reader
	SrcLang     string
	TgtLang     string
	Glossary    string
	Backend     string
	Model       string
	InputPrefix string
	Token       string
	Placeholder string
}

func (s Submission) validate() (Submission, error) {
	if strings.TrimSpace(s.Filename) == "" || s.Document == nil {
		return s, apperr.Validation("document is required")
	}
	src, err := translator.NormalizeLang(s.SrcLang)
	if err != nil {
		return s, apperr.Validation("src_lang: %v", err)
	}
	tgt, err := translator.NormalizeLang(s.TgtLang)
	if err != nil {
		return s, apperr.Validation("tgt_lang: %v", err)
	}
	if !translator.KnownBackend(s.Backend) {
		return s, apperr.Validation("unknown backend %q", s.Backend)
	}
	if s.Placeholder != "" && !document.ValidPlaceholder(s.Placeholder) {
		return s, apperr.Validation("placeholder must contain exactly one %%d")
	}
	s.SrcLang, s.TgtLang = src, tgt
	return s, nil
}

// JobService owns the job lifecycle outside the worker: submission,
// lookup, deletion, download and startup recovery.
type JobService struct {
	store     jobs.Store
	dirs      workdir.Dirs
	scheduler Scheduler
	logger    *log.Logger
}

func NewJobService(store jobs.Store, dirs workdir.Dirs, scheduler Scheduler, logger *log.Logger) *JobService {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &JobService{
		store:     store,
		dirs:      dirs,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Submit persists a new job, lays out its input and schedules it. The job
// log file exists when Submit returns. An upload that cannot be laid out
// leaves no job behind.
func (s *JobService) Submit(ctx context.Context, sub Submission) (jobs.Job, error) {
	sub, err := sub.validate()
	if err != nil {
		return jobs.Job{}, err
	}

	job, err := s.store.Create(ctx, jobs.Job{
		Status:      jobs.StatusNew,
		SrcLang:     sub.SrcLang,
		TgtLang:     sub.TgtLang,
		Glossary:    sub.Glossary,
		Backend:     sub.Backend,
		Model:       sub.Model,
		InputPrefix: sub.InputPrefix,
		Placeholder: sub.Placeholder,
	})
	if err != nil {
		return jobs.Job{}, err
	}

	if err := s.stage(job.ID, sub); err != nil {
		s.discard(ctx, job.ID, err)
		return jobs.Job{}, err
	}

	jl, err := log.NewJobLogger(s.logger, s.dirs.LogFile(job.ID), "job", job.ID)
	if err != nil {
		return job, apperr.Wrap(err, apperr.KindStorage, "open job log").With("job", job.ID)
	}
	defer jl.Close()

	if err := s.scheduler.Submit(jobs.Task{JobID: job.ID, Token: sub.Token}); err != nil {
		return job, apperr.Wrap(err, apperr.KindUnknown, "schedule job").With("job", job.ID)
	}
	jl.Info("Submitted", "src_lang", job.SrcLang, "tgt_lang", job.TgtLang, "document", sub.Filename)

	if err := s.dirs.ClearUpload(job.ID); err != nil {
		jl.Warn("Failed to clear upload", "error", err)
	}
	return job, nil
}

// discard drops a job whose upload could not be laid out, record and files.
func (s *JobService) discard(ctx context.Context, id int64, cause error) {
	s.logger.Warn("Rejected upload", "job", id, "error", cause)
	if _, err := s.store.Delete(ctx, id); err != nil {
		s.logger.Error("Failed to remove rejected job", "job", id, "error", err)
	}
	if err := s.dirs.Clear(id); err != nil {
		s.logger.Warn("Failed to remove job files", "job", id, "error", err)
	}
}

func (s *JobService) stage(id int64, sub Submission) error {
	staged, err := s.dirs.StageUpload(id, sub.Filename, sub.Document)
	if err != nil {
		return apperr.Wrap(err, apperr.KindStorage, "store upload")
	}
	if err := s.dirs.PopulateInput(id, staged); err != nil {
		return apperr.Wrap(err, apperr.KindValidation, "unpack upload")
	}
	return nil
}

func (s *JobService) Get(ctx context.Context, id int64) (jobs.Job, error) {
	return s.store.Get(ctx, id)
}

// List returns the non-archived jobs ordered by id.
func (s *JobService) List(ctx context.Context) ([]jobs.Job, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	ret := make([]jobs.Job, 0, len(all))
	for _, job := range all {
		if job.Status != jobs.StatusArchived {
			ret = append(ret, job)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret, nil
}

// Delete removes the record and everything stored on disk for it.
func (s *JobService) Delete(ctx context.Context, id int64) error {
	n, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.Wrap(jobs.ErrNotFound, apperr.KindNotFound, fmt.Sprintf("Job %d does not exist", id))
	}
	if err := s.dirs.Clear(id); err != nil {
		s.logger.Warn("Failed to remove job files", "job", id, "error", err)
	}
	s.logger.Info("Deleted", "job", id)
	return nil
}

// Download describes the payload for a job's output: the single produced
// file, or an uncompressed zip of all of them.
type Download struct {
	Name        string
	ContentType string

	root  string
	files []string
}

func (d *Download) Bundled() bool {
	return len(d.files) > 1
}

func (d *Download) WriteTo(w io.Writer) error {
	if d.Bundled() {
		return workdir.BundleZip(w, d.root, d.files)
	}
	return copyFileTo(w, d.files[0])
}

// Download prepares the job's output and marks the job archived. Jobs that
// are still running are refused. Repeated downloads are served again from
// the retained output.
func (s *JobService) Download(ctx context.Context, id int64) (*Download, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.Status.Terminal() {
		return nil, apperr.New(apperr.KindConflict, fmt.Sprintf("Job %d is still %s", id, job.Status)).With("job", id)
	}

	files, err := s.dirs.OutputFiles(id)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindStorage, "list output files").With("job", id)
	}
	if len(files) == 0 {
		return nil, apperr.New(apperr.KindNotFound, fmt.Sprintf("No output for job %d", id))
	}
	sort.Strings(files)

	d := &Download{root: s.dirs.Output(id), files: files}
	if d.Bundled() {
		d.Name = fmt.Sprintf("%d.zip", id)
		d.ContentType = "application/zip"
	} else {
		d.Name = filepath.Base(files[0])
		d.ContentType = "application/octet-stream"
		if mt, err := mimetype.DetectFile(files[0]); err == nil {
			d.ContentType = mt.String()
		}
	}

	if job.Status != jobs.StatusArchived {
		job.Status = jobs.StatusArchived
		if _, err := s.store.Update(ctx, id, job); err != nil {
			return nil, err
		}
		s.logger.Info("Archived", "job", id)
	}
	return d, nil
}

// Recover reschedules jobs still in new and closes out jobs a previous
// process left in initialising or processing.
func (s *JobService) Recover(ctx context.Context) error {
	all, err := s.store.List(ctx)
	if err != nil {
		return err
	}

	ids := make([]int64, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		job := all[id]
		switch job.Status {
		case jobs.StatusNew:
			if err := s.scheduler.Submit(jobs.Task{JobID: id}); err != nil {
				return err
			}
			s.logger.Info("Rescheduled", "job", id)
		case jobs.StatusInitialising, jobs.StatusProcessing:
			job.Status = jobs.StatusError
			job.DownloadURL = nil
			if files, _ := s.dirs.OutputFiles(id); len(files) > 0 {
				job.SetDownloadURL()
			}
			if _, err := s.store.Update(ctx, id, job); err != nil {
				return err
			}
			s.logger.Warn("Marked interrupted job as failed", "job", id)
		}
	}
	return nil
}
