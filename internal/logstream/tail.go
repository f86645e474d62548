package logstream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/MimeLyc/latexmt-web/internal/apperr"
	"github.com/MimeLyc/latexmt-web/internal/jobs"
	"github.com/MimeLyc/latexmt-web/pkg/log"
)

const DefaultPollInterval = 250 * time.Millisecond

// Sink receives the events of one live log session.
type Sink interface {
	Line(line string) error
	Error(msg string) error
}

// Tail replays path from its first byte and then follows appended data,
// calling emit once per complete line. It returns nil when ctx is done and
// the first emit error otherwise.
func Tail(ctx context.Context, path string, interval time.Duration, emit func(string) error) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var partial strings.Builder
	for {
		chunk, err := reader.ReadString('\n')
		partial.WriteString(chunk)
		if err == nil {
			line := strings.TrimRight(partial.String(), "\r\n")
			partial.Reset()
			if err := emit(line); err != nil {
				return err
			}
			continue
		}
		if !errors.Is(err, io.EOF) {
			return fmt.Errorf("read log: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Streamer attaches live clients to per-job log files.
type Streamer struct {
	store    jobs.Store
	logPath  func(id int64) string
	interval time.Duration
	logger   *log.Logger
}

func NewStreamer(store jobs.Store, logPath func(id int64) string, interval time.Duration, logger *log.Logger) *Streamer {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Streamer{
		store:    store,
		logPath:  logPath,
		interval: interval,
		logger:   logger.With("component", "logstream"),
	}
}

// Stream sends a single error event and returns when the job or its log
// file does not exist. Otherwise it forwards log lines until ctx is done or
// the sink fails.
func (s *Streamer) Stream(ctx context.Context, id int64, sink Sink) error {
	if _, err := s.store.Get(ctx, id); err != nil {
		if apperr.Is(err, apperr.KindNotFound) || errors.Is(err, jobs.ErrNotFound) {
			return sink.Error(fmt.Sprintf("Job %d does not exist", id))
		}
		return err
	}

	path := s.logPath(id)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return sink.Error(fmt.Sprintf("No log file for job %d", id))
		}
		return err
	}

	s.logger.Debug("Opened log reader", "job", id)
	defer s.logger.Debug("Closed log reader", "job", id)
	return Tail(ctx, path, s.interval, sink.Line)
}
