package translator

import (
	"context"
	"strings"
)

const (
	BackendIdentity = "identity"
	BackendAPI      = "api"

	AlignerPositional = "positional"
)

// Translator turns source segments into target segments, one output per
// input, in order. Instances are not assumed safe for concurrent use.
type Translator interface {
	Translate(ctx context.Context, segments []string) ([]string, error)
}

// Aligner maps every source token index to a target token index, or -1 when
// the token has no counterpart.
type Aligner interface {
	Align(src, tgt []string) []int
}

// BackendConfig selects the engine for one job. Token is a per-request
// credential and never part of the cache key.
type BackendConfig struct {
	Backend     string
	Aligner     string
	Model       string
	InputPrefix string
	Token       string
	APIURL      string
}

// Variant is the pool key component that distinguishes engine instances for
// the same language pair.
func (c BackendConfig) Variant() string {
	backend := c.Backend
	if backend == "" {
		backend = BackendIdentity
	}
	return strings.Join([]string{backend, c.Model, c.InputPrefix}, "|")
}

// AlwaysReconstruct reports whether handles must be built fresh on every
// acquisition because the credential may differ between requests.
func (c BackendConfig) AlwaysReconstruct() bool {
	return c.Backend == BackendAPI
}

type Factory interface {
	New(ctx context.Context, srcLang, tgtLang string, cfg BackendConfig) (Translator, Aligner, error)
}

type FactoryFunc func(ctx context.Context, srcLang, tgtLang string, cfg BackendConfig) (Translator, Aligner, error)

func (f FactoryFunc) New(ctx context.Context, srcLang, tgtLang string, cfg BackendConfig) (Translator, Aligner, error) {
	return f(ctx, srcLang, tgtLang, cfg)
}
