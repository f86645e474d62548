package translator

import "context"

// identityTranslator returns its input unchanged, optionally prefixed.
type identityTranslator struct {
	prefix string
}

func NewIdentityTranslator(prefix string) Translator {
	return &identityTranslator{prefix: prefix}
}

func (t *identityTranslator) Translate(ctx context.Context, segments []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]string, len(segments))
	for i, s := range segments {
		out[i] = t.prefix + s
	}
	return out, nil
}
