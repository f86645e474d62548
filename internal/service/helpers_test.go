package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/latexmt-web/internal/format"
	"github.com/MimeLyc/latexmt-web/internal/jobs"
	"github.com/MimeLyc/latexmt-web/internal/persistence"
	"github.com/MimeLyc/latexmt-web/internal/resource"
	"github.com/MimeLyc/latexmt-web/internal/translator"
	"github.com/MimeLyc/latexmt-web/internal/workdir"
	"github.com/MimeLyc/latexmt-web/pkg/log"
)

// recordingStore remembers every status written for a job.
type recordingStore struct {
	jobs.Store
	mu      sync.Mutex
	history map[int64][]jobs.Status
}

func (s *recordingStore) Create(ctx context.Context, job jobs.Job) (jobs.Job, error) {
	created, err := s.Store.Create(ctx, job)
	if err == nil {
		s.record(created.ID, created.Status)
	}
	return created, err
}

func (s *recordingStore) Update(ctx context.Context, id int64, job jobs.Job) (jobs.Job, error) {
	updated, err := s.Store.Update(ctx, id, job)
	if err == nil {
		s.record(id, updated.Status)
	}
	return updated, err
}

func (s *recordingStore) record(id int64, status jobs.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[id] = append(s.history[id], status)
}

func (s *recordingStore) statuses(id int64) []jobs.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]jobs.Status(nil), s.history[id]...)
}

// replaceTranslator rewrites segments with a replacer and fails on any
// segment containing "FAIL".
type replaceTranslator struct {
	replacer *strings.Replacer
}

func (r replaceTranslator) Translate(ctx context.Context, segments []string) ([]string, error) {
	out := make([]string, len(segments))
	for i, s := range segments {
		if strings.Contains(s, "FAIL") {
			return nil, errFailSegment
		}
		out[i] = r.replacer.Replace(s)
	}
	return out, nil
}

var errFailSegment = errors.New("cannot translate segment")

func helloFactory() translator.Factory {
	return translator.FactoryFunc(func(ctx context.Context, src, tgt string, cfg translator.BackendConfig) (translator.Translator, translator.Aligner, error) {
		return replaceTranslator{replacer: strings.NewReplacer("Hallo", "Hello", "Welt", "world")}, translator.NewPositionalAligner(), nil
	})
}

// gateTranslator signals entered on its first call and then waits for
// release before echoing its input.
type gateTranslator struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gateTranslator) Translate(ctx context.Context, segments []string) ([]string, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return segments, nil
}

// overlapTranslator records the highest number of Translate calls in
// flight at once. Each call waits up to hold for a second caller so that
// overlap is observed whenever it is possible.
type overlapTranslator struct {
	hold    time.Duration
	mu      sync.Mutex
	inside  int
	maxSeen int
	joined  chan struct{}
}

func newOverlapTranslator(hold time.Duration) *overlapTranslator {
	return &overlapTranslator{hold: hold, joined: make(chan struct{})}
}

func (o *overlapTranslator) Translate(ctx context.Context, segments []string) ([]string, error) {
	o.mu.Lock()
	o.inside++
	if o.inside > o.maxSeen {
		o.maxSeen = o.inside
	}
	if o.inside == 2 {
		close(o.joined)
	}
	joined := o.joined
	o.mu.Unlock()

	select {
	case <-joined:
	case <-time.After(o.hold):
	}

	o.mu.Lock()
	o.inside--
	o.mu.Unlock()
	return segments, nil
}

func (o *overlapTranslator) max() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.maxSeen
}

type testEnv struct {
	store     *recordingStore
	dirs      workdir.Dirs
	pool      *resource.Pool
	pipeline  *Pipeline
	formatter *format.Formatter
	logger    *log.Logger
}

func newTestEnv(t *testing.T, factory translator.Factory, formatter *format.Formatter) *testEnv {
	t.Helper()
	base := t.TempDir()
	sqlStore, err := persistence.NewSQLiteStore(filepath.Join(base, "jobs.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlStore.Close() })

	dirs := workdir.New(filepath.Join(base, "work"))
	require.NoError(t, dirs.Ensure())

	logger := log.New(log.Config{Format: "json", Output: &strings.Builder{}})
	store := &recordingStore{Store: sqlStore, history: map[int64][]jobs.Status{}}
	pool := resource.NewPool(factory, logger)
	return &testEnv{
		store:     store,
		dirs:      dirs,
		pool:      pool,
		pipeline:  NewPipeline(store, pool, dirs, formatter, translator.BackendConfig{}, logger),
		formatter: formatter,
		logger:    logger,
	}
}

// createJob stores a new job and writes files (relative path -> content)
// into its input directory.
func (e *testEnv) createJob(t *testing.T, files map[string]string) jobs.Job {
	t.Helper()
	return e.createPairJob(t, "de", "en", files)
}

func (e *testEnv) createPairJob(t *testing.T, src, tgt string, files map[string]string) jobs.Job {
	t.Helper()
	job, err := e.store.Create(context.Background(), jobs.Job{Status: jobs.StatusNew, SrcLang: src, TgtLang: tgt})
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(e.dirs.Input(job.ID), 0o755))
	for rel, content := range files {
		path := filepath.Join(e.dirs.Input(job.ID), rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return job
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "texfmt")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// syncScheduler runs tasks inline, or records them when run is nil.
type syncScheduler struct {
	mu    sync.Mutex
	tasks []jobs.Task
	run   func(jobs.Task) error
}

func (s *syncScheduler) Submit(task jobs.Task) error {
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()
	if s.run != nil {
		return s.run(task)
	}
	return nil
}
