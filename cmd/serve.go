package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/latexmt-web/internal/config"
	"github.com/MimeLyc/latexmt-web/internal/format"
	"github.com/MimeLyc/latexmt-web/internal/httpapi"
	"github.com/MimeLyc/latexmt-web/internal/janitor"
	"github.com/MimeLyc/latexmt-web/internal/jobs"
	"github.com/MimeLyc/latexmt-web/internal/logstream"
	"github.com/MimeLyc/latexmt-web/internal/persistence"
	"github.com/MimeLyc/latexmt-web/internal/resource"
	"github.com/MimeLyc/latexmt-web/internal/service"
	"github.com/MimeLyc/latexmt-web/internal/translator"
	"github.com/MimeLyc/latexmt-web/internal/workdir"
	"github.com/MimeLyc/latexmt-web/pkg/icron"
	"github.com/MimeLyc/latexmt-web/pkg/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		logger := initLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, logger)
	},
}

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func serve(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	logger.Info("Starting",
		"http_addr", cfg.HTTP.Addr,
		"work_dir", cfg.WorkDir,
		"jobs_enabled", cfg.Jobs.Enabled,
		"translator", cfg.Translator.Backend,
		"db_driver", cfg.DB.Driver,
	)

	dirs := workdir.New(cfg.WorkDir)
	if err := dirs.Ensure(); err != nil {
		return err
	}

	factory := &translator.DefaultFactory{APIKey: cfg.Translator.APIKey, APIURL: cfg.Translator.APIURL, Logger: logger}
	pool := resource.NewPool(factory, logger)
	formatter := format.New(cfg.Format.Bin, cfg.Format.Conf, logger)
	single := service.NewSingleShot(pool, formatter, cfg.BackendDefaults(), logger)

	opts := []httpapi.Option{
		httpapi.WithLogger(logger),
		httpapi.WithCORSOrigins(cfg.HTTP.CORSOrigins...),
		httpapi.WithUI(cfg.HTTP.UIStaticDir),
	}

	cronEng := cron.New(cron.WithParser(icron.Parser))
	var sched scheduler
	if cfg.Jobs.Enabled {
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		queue := jobs.NewQueue(cfg.Jobs.Workers, logger)
		pipeline := service.NewPipeline(store, pool, dirs, formatter, cfg.BackendDefaults(), logger)
		jobSvc := service.NewJobService(store, dirs, queue, logger)

		queue.Start(ctx, pipeline.Run)
		defer queue.Stop()
		if err := jobSvc.Recover(ctx); err != nil {
			return fmt.Errorf("recover jobs: %w", err)
		}

		logs := logstream.NewStreamer(store, dirs.LogFile, logstream.DefaultPollInterval, logger)
		opts = append(opts, httpapi.WithJobs(jobSvc, logs), httpapi.WithActiveJobs(queue.Active))
		sched = janitor.New(dirs, cfg.Jobs.JanitorCron, cronEng, logger)
	}

	srv := httpapi.NewServer(single, opts...)
	return runWithComponents(ctx, cfg, sched, cronEng, srv)
}

func openStore(cfg *config.Config) (*persistence.SQLStore, error) {
	if cfg.DB.Driver == persistence.DriverSQLite {
		return persistence.NewSQLiteStore(cfg.DB.DSN)
	}
	return persistence.Open(cfg.DB.Driver, cfg.DB.DSN)
}

// runWithComponents blocks until ctx is done or the HTTP server fails, then
// shuts everything down.
func runWithComponents(ctx context.Context, cfg *config.Config, sched scheduler, c cronEngine, srv httpServer) error {
	if sched != nil {
		if err := sched.Schedule(ctx); err != nil {
			return fmt.Errorf("schedule janitor: %w", err)
		}
	}
	c.Start()
	defer c.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(cfg.HTTP.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
