package persistence

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/MimeLyc/latexmt-web/internal/apperr"
	"github.com/MimeLyc/latexmt-web/internal/jobs"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

//go:embed migrations
var migrationFiles embed.FS

const jobColumns = `id, status, src_lang, tgt_lang, download_url, glossary, backend, model, input_prefix, placeholder`

// SQLStore implements jobs.Store on SQLite (default) or PostgreSQL.
type SQLStore struct {
	db     *sqlx.DB
	driver string
}

var _ jobs.Store = (*SQLStore)(nil)

func NewSQLiteStore(path string) (*SQLStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return Open(DriverSQLite, path)
}

func Open(driver, dsn string) (*SQLStore, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &SQLStore{db: db, driver: driver}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) init(ctx context.Context) error {
	if s.driver == DriverSQLite {
		if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
			return fmt.Errorf("set WAL mode: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
			return fmt.Errorf("set busy timeout: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	dir := path.Join("migrations", s.driver)
	entries, err := migrationFiles.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.GetContext(ctx, &exists, s.db.Rebind(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`), version); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(path.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO schema_migrations (version) VALUES (?)`), version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	end := strings.IndexFunc(name, func(r rune) bool { return r < '0' || r > '9' })
	if end == 0 {
		return 0
	}
	if end < 0 {
		end = len(name)
	}
	n, _ := strconv.Atoi(name[:end])
	return n
}

func (s *SQLStore) Create(ctx context.Context, job jobs.Job) (jobs.Job, error) {
	var id int64
	err := s.db.QueryRowxContext(
		ctx,
		s.db.Rebind(`INSERT INTO jobs (status, src_lang, tgt_lang, download_url, glossary, backend, model, input_prefix, placeholder)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING id`),
		string(job.Status),
		job.SrcLang,
		job.TgtLang,
		job.DownloadURL,
		job.Glossary,
		job.Backend,
		job.Model,
		job.InputPrefix,
		job.Placeholder,
	).Scan(&id)
	if err != nil {
		return jobs.Job{}, apperr.Wrap(err, apperr.KindStorage, "create job")
	}

	job.ID = id
	return job, nil
}

func (s *SQLStore) Get(ctx context.Context, id int64) (jobs.Job, error) {
	var job jobs.Job
	err := s.db.GetContext(ctx, &job, s.db.Rebind(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return jobs.Job{}, notFound(id)
		}
		return jobs.Job{}, apperr.Wrap(err, apperr.KindStorage, "get job").With("job", id)
	}
	return job, nil
}

func (s *SQLStore) List(ctx context.Context) (map[int64]jobs.Job, error) {
	var rows []jobs.Job
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+jobColumns+` FROM jobs ORDER BY id ASC`); err != nil {
		return nil, apperr.Wrap(err, apperr.KindStorage, "list jobs")
	}

	ret := make(map[int64]jobs.Job, len(rows))
	for _, job := range rows {
		ret[job.ID] = job
	}
	return ret, nil
}

func (s *SQLStore) Update(ctx context.Context, id int64, job jobs.Job) (jobs.Job, error) {
	res, err := s.db.ExecContext(
		ctx,
		s.db.Rebind(`UPDATE jobs SET
			status = ?,
			src_lang = ?,
			tgt_lang = ?,
			download_url = ?,
			glossary = ?,
			backend = ?,
			model = ?,
			input_prefix = ?,
			placeholder = ?
		 WHERE id = ?`),
		string(job.Status),
		job.SrcLang,
		job.TgtLang,
		job.DownloadURL,
		job.Glossary,
		job.Backend,
		job.Model,
		job.InputPrefix,
		job.Placeholder,
		id,
	)
	if err != nil {
		return jobs.Job{}, apperr.Wrap(err, apperr.KindStorage, "update job").With("job", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return jobs.Job{}, apperr.Wrap(err, apperr.KindStorage, "update job").With("job", id)
	}
	if n == 0 {
		return jobs.Job{}, notFound(id)
	}
	return s.Get(ctx, id)
}

func (s *SQLStore) Delete(ctx context.Context, id int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM jobs WHERE id = ?`), id)
	if err != nil {
		return 0, apperr.Wrap(err, apperr.KindStorage, "delete job").With("job", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Wrap(err, apperr.KindStorage, "delete job").With("job", id)
	}
	return n, nil
}

func notFound(id int64) error {
	return apperr.Wrap(jobs.ErrNotFound, apperr.KindNotFound, fmt.Sprintf("Job %d does not exist", id))
}
