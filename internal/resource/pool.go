package resource

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/latexmt-web/internal/apperr"
	"github.com/MimeLyc/latexmt-web/internal/translator"
	"github.com/MimeLyc/latexmt-web/pkg/log"
)

type Key struct {
	SrcLang string
	TgtLang string
	Variant string
}

func (k Key) String() string {
	return k.SrcLang + "/" + k.TgtLang + "/" + k.Variant
}

// Entry is one engine instance. Callers must hold the entry lock for the
// whole time they use Translator or Aligner.
type Entry struct {
	mu         sync.Mutex
	Translator translator.Translator
	Aligner    translator.Aligner
}

func (e *Entry) Lock()   { e.mu.Lock() }
func (e *Entry) Unlock() { e.mu.Unlock() }

// Pool caches engine instances per language pair and backend variant for
// the process lifetime. Construction of a key happens at most once; callers
// for other keys are never blocked by it.
type Pool struct {
	factory translator.Factory
	logger  *log.Logger

	mu      sync.RWMutex
	entries map[Key]*Entry
	group   singleflight.Group

	// serializes construction for variants that are never cached
	freshMu sync.Mutex
}

func NewPool(factory translator.Factory, logger *log.Logger) *Pool {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Pool{
		factory: factory,
		logger:  logger.With("component", "resource_pool"),
		entries: make(map[Key]*Entry),
	}
}

// Acquire returns the entry for (srcLang, tgtLang, cfg). Construction
// failures are KindResourceInit errors and leave nothing behind.
func (p *Pool) Acquire(ctx context.Context, srcLang, tgtLang string, cfg translator.BackendConfig) (*Entry, error) {
	key := Key{SrcLang: srcLang, TgtLang: tgtLang, Variant: cfg.Variant()}

	if cfg.AlwaysReconstruct() {
		p.freshMu.Lock()
		defer p.freshMu.Unlock()
		return p.build(ctx, key, cfg)
	}

	if entry, ok := p.lookup(key); ok {
		return entry, nil
	}

	// Waiters share this build, so one caller's cancellation must not fail it.
	buildCtx := context.WithoutCancel(ctx)
	v, err, _ := p.group.Do(key.String(), func() (any, error) {
		if entry, ok := p.lookup(key); ok {
			return entry, nil
		}
		entry, err := p.build(buildCtx, key, cfg)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.entries[key] = entry
		p.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

func (p *Pool) lookup(key Key) (*Entry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.entries[key]
	return entry, ok
}

func (p *Pool) build(ctx context.Context, key Key, cfg translator.BackendConfig) (*Entry, error) {
	p.logger.Info("Constructing translator", "key", key.String())
	tr, al, err := p.factory.New(ctx, key.SrcLang, key.TgtLang, cfg)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindResourceInit, "construct translator").
			With("src_lang", key.SrcLang).
			With("tgt_lang", key.TgtLang).
			With("variant", key.Variant)
	}
	return &Entry{Translator: tr, Aligner: al}, nil
}

// Len reports the number of cached entries.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
