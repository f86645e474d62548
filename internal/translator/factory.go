package translator

import (
	"context"
	"fmt"

	"github.com/MimeLyc/latexmt-web/internal/llm"
	"github.com/MimeLyc/latexmt-web/pkg/log"
)

// DefaultFactory builds the configured backends. APIKey and APIURL are the
// fallbacks used when a request carries no token of its own.
type DefaultFactory struct {
	APIKey string
	APIURL string
	Logger *log.Logger
}

func (f *DefaultFactory) New(ctx context.Context, srcLang, tgtLang string, cfg BackendConfig) (Translator, Aligner, error) {
	aligner, err := newAligner(cfg.Aligner)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Backend {
	case "", BackendIdentity:
		return NewIdentityTranslator(cfg.InputPrefix), aligner, nil
	case BackendAPI:
		token := cfg.Token
		if token == "" {
			token = f.APIKey
		}
		apiURL := cfg.APIURL
		if apiURL == "" {
			apiURL = f.APIURL
		}
		client, err := llm.NewClient(llm.NewConfig(token, apiURL, cfg.Model))
		if err != nil {
			return nil, nil, fmt.Errorf("create api client: %w", err)
		}
		return NewAPITranslator(client, srcLang, tgtLang, cfg.InputPrefix, f.Logger), aligner, nil
	default:
		return nil, nil, fmt.Errorf("unknown translator backend %q", cfg.Backend)
	}
}

func newAligner(name string) (Aligner, error) {
	switch name {
	case "", AlignerPositional:
		return NewPositionalAligner(), nil
	default:
		return nil, fmt.Errorf("unknown aligner %q", name)
	}
}

// KnownBackend reports whether name selects a buildable translator backend.
func KnownBackend(name string) bool {
	return name == "" || name == BackendIdentity || name == BackendAPI
}

func KnownAligner(name string) bool {
	return name == "" || name == AlignerPositional
}
