package format

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/MimeLyc/latexmt-web/internal/apperr"
	"github.com/MimeLyc/latexmt-web/pkg/log"
)

// Formatter runs the external LaTeX formatter (tex-fmt compatible: files as
// arguments, or --stdin).
type Formatter struct {
	bin    string
	conf   string
	logger *log.Logger
}

func New(bin, conf string, logger *log.Logger) *Formatter {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Formatter{
		bin:    strings.TrimSpace(bin),
		conf:   strings.TrimSpace(conf),
		logger: logger.With("component", "texfmt"),
	}
}

// Enabled reports whether a formatter binary is configured.
func (f *Formatter) Enabled() bool {
	return f != nil && f.bin != ""
}

func (f *Formatter) args() []string {
	if f.conf == "" {
		return nil
	}
	return []string{"--config", f.conf}
}

// FormatFiles formats the given files in place. Failure is reported as a
// KindFormatting error; files may be partially formatted.
func (f *Formatter) FormatFiles(ctx context.Context, files []string) error {
	if !f.Enabled() || len(files) == 0 {
		return nil
	}
	cmdPath, err := exec.LookPath(f.bin)
	if err != nil {
		return apperr.Wrap(err, apperr.KindFormatting, "formatter not found").With("bin", f.bin)
	}

	args := f.args()
	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			abs = file
		}
		args = append(args, abs)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, cmdPath, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return formatErr(err, stderr.String())
	}
	f.logger.Debug("Formatted files", "count", len(files))
	return nil
}

// FormatText pipes text through the formatter. On failure the input is
// returned unchanged together with a KindFormatting error.
func (f *Formatter) FormatText(ctx context.Context, text string) (string, error) {
	if !f.Enabled() {
		return text, nil
	}
	cmdPath, err := exec.LookPath(f.bin)
	if err != nil {
		return text, apperr.Wrap(err, apperr.KindFormatting, "formatter not found").With("bin", f.bin)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, cmdPath, append(f.args(), "--stdin")...)
	cmd.Stdin = strings.NewReader(text)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return text, formatErr(err, stderr.String())
	}
	return stdout.String(), nil
}

func formatErr(err error, stderr string) error {
	e := apperr.Wrap(err, apperr.KindFormatting, "formatter failed")
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		e.With("exit_code", exitErr.ExitCode())
	}
	if s := strings.TrimSpace(stderr); s != "" {
		e.With("stderr", s)
	}
	return e
}
