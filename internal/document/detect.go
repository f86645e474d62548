package document

import (
	"github.com/abadojack/whatlanggo"
)

// DetectLanguage guesses the ISO 639-1 code of the prose in a LaTeX buffer.
// Markup is masked out first so command names do not skew the result.
func DetectLanguage(text string) (string, bool) {
	info := whatlanggo.Detect(maskLaTeX(text, DefaultPlaceholder).prose())
	code := info.Lang.Iso6391()
	if code == "" || !info.IsReliable() {
		return code, false
	}
	return code, true
}
