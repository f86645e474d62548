package workdir

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MimeLyc/latexmt-web/pkg/file"
)

// DocumentExts are the input extensions the pipeline translates.
var DocumentExts = []string{".tex", ".Rnw"}

// Dirs is the on-disk layout below the work directory:
// upload/{id}, input/{id}, output/{id} and log/{id}.log.
type Dirs struct {
	Base string
}

func New(base string) Dirs {
	return Dirs{Base: base}
}

func (d Dirs) UploadBase() string { return filepath.Join(d.Base, "upload") }
func (d Dirs) InputBase() string  { return filepath.Join(d.Base, "input") }
func (d Dirs) OutputBase() string { return filepath.Join(d.Base, "output") }
func (d Dirs) LogBase() string    { return filepath.Join(d.Base, "log") }

func (d Dirs) Upload(id int64) string { return filepath.Join(d.UploadBase(), key(id)) }
func (d Dirs) Input(id int64) string  { return filepath.Join(d.InputBase(), key(id)) }
func (d Dirs) Output(id int64) string { return filepath.Join(d.OutputBase(), key(id)) }
func (d Dirs) LogFile(id int64) string {
	return filepath.Join(d.LogBase(), key(id)+".log")
}

func key(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Ensure creates the base directories. An existing file in place of a
// directory is an error.
func (d Dirs) Ensure() error {
	for _, dir := range []string{d.Base, d.UploadBase(), d.InputBase(), d.OutputBase(), d.LogBase()} {
		if info, err := os.Stat(dir); err == nil && !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// StageUpload stores an uploaded document under upload/{id} and returns its
// path. Only the base name of name is used.
func (d Dirs) StageUpload(id int64, name string, r io.Reader) (string, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." {
		return "", fmt.Errorf("invalid upload name %q", name)
	}
	dir := d.Upload(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}
	path := filepath.Join(dir, base)
	if err := writeFile(path, r); err != nil {
		return "", err
	}
	return path, nil
}

// PopulateInput expands a staged .zip into input/{id}, or copies any other
// staged file there.
func (d Dirs) PopulateInput(id int64, staged string) error {
	dir := d.Input(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create input directory: %w", err)
	}
	if strings.EqualFold(filepath.Ext(staged), ".zip") {
		return ExtractZip(staged, dir)
	}
	return copyFile(staged, filepath.Join(dir, filepath.Base(staged)))
}

// InputFiles lists the translatable documents of a job in walk order.
func (d Dirs) InputFiles(id int64) ([]string, error) {
	files, err := file.FindByExt(d.Input(id), DocumentExts)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return files, err
}

// OutputFiles lists every produced file of a job. A missing output
// directory yields none.
func (d Dirs) OutputFiles(id int64) ([]string, error) {
	files, err := file.FindAll(d.Output(id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return files, err
}

// OutputDocuments lists produced documents eligible for formatting.
func (d Dirs) OutputDocuments(id int64) ([]string, error) {
	files, err := file.FindByExt(d.Output(id), DocumentExts)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return files, err
}

// OutputDirFor mirrors the relative directory of input below the job's
// output directory.
func (d Dirs) OutputDirFor(id int64, input string) (string, error) {
	rel, err := filepath.Rel(d.Input(id), filepath.Dir(input))
	if err != nil {
		return "", err
	}
	return filepath.Join(d.Output(id), rel), nil
}

func (d Dirs) ClearUpload(id int64) error {
	return os.RemoveAll(d.Upload(id))
}

// Clear removes everything stored for a job.
func (d Dirs) Clear(id int64) error {
	for _, path := range []string{d.Upload(id), d.Input(id), d.Output(id), d.LogFile(id)} {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	return writeFile(dst, in)
}
