package log

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lmittmann/tint"
)

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

const levelFatal = slog.LevelError + 4

var levelNames = map[string]LogLevel{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
	"fatal":   LevelFatal,
}

// ParseLevel maps a level name to a LogLevel. Unknown names fall back to info.
func ParseLevel(s string) LogLevel {
	if level, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return level
	}
	return LevelInfo
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	case LevelFatal:
		return levelFatal
	default:
		return slog.LevelInfo
	}
}

// Config selects the console handler. Format is "console" (tint) or "json".
type Config struct {
	Level   string
	Format  string
	Output  io.Writer
	NoColor bool
}

// Logger is a structured logger sharing one adjustable level across every
// logger derived from it.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

func New(cfg Config) *Logger {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(cfg.Level).slogLevel())

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	default:
		handler = tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
			NoColor:    cfg.NoColor,
		})
	}

	return &Logger{Logger: slog.New(handler), level: level}
}

func NewLogger(level LogLevel) *Logger {
	l := New(Config{Format: "console"})
	l.SetLevel(level)
	return l
}

func (l *Logger) SetLevel(level LogLevel) {
	l.level.Set(level.slogLevel())
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level}
}

func (l *Logger) Fatal(msg string, args ...any) {
	l.Log(context.Background(), levelFatal, msg, args...)
	os.Exit(1)
}

// JobLogger writes every record to its parent and, as text lines, to an
// append-only per-job file. Close detaches the file.
type JobLogger struct {
	*Logger
	file *os.File
	path string
}

func NewJobLogger(parent *Logger, path string, args ...any) (*JobLogger, error) {
	if parent == nil {
		parent = GetLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{Level: parent.level})
	handler := teeHandler{parent.Handler(), fileHandler}

	return &JobLogger{
		Logger: &Logger{Logger: slog.New(handler).With(args...), level: parent.level},
		file:   file,
		path:   path,
	}, nil
}

func (l *JobLogger) Path() string {
	return l.path
}

func (l *JobLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	ret := make(teeHandler, len(t))
	for i, h := range t {
		ret[i] = h.WithAttrs(attrs)
	}
	return ret
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	ret := make(teeHandler, len(t))
	for i, h := range t {
		ret[i] = h.WithGroup(name)
	}
	return ret
}

var globalLogger atomic.Pointer[Logger]

func InitLogger(cfg Config) *Logger {
	l := New(cfg)
	globalLogger.Store(l)
	return l
}

// GetLogger returns the process logger, creating an info-level one on first
// use when InitLogger has not run.
func GetLogger() *Logger {
	if l := globalLogger.Load(); l != nil {
		return l
	}
	globalLogger.CompareAndSwap(nil, NewLogger(LevelInfo))
	return globalLogger.Load()
}

func Debug(msg string, args ...any) {
	GetLogger().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	GetLogger().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	GetLogger().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	GetLogger().Error(msg, args...)
}

func Fatal(msg string, args ...any) {
	GetLogger().Fatal(msg, args...)
}
