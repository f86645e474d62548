package file

import (
	"path/filepath"
	"strings"
)

// WithSuffix inserts suffix between the base name and the extension:
// WithSuffix("a/paper.tex", "en") == "a/paper.en.tex".
func WithSuffix(path, suffix string) string {
	if path == "" || suffix == "" {
		return path
	}
	ext := filepath.Ext(path)
	if ext == filepath.Base(path) {
		ext = ""
	}
	return strings.TrimSuffix(path, ext) + "." + strings.TrimPrefix(suffix, ".") + ext
}
