package translator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendConfig_Variant(t *testing.T) {
	a := BackendConfig{Backend: BackendAPI, Model: "m", Token: "one"}
	b := BackendConfig{Backend: BackendAPI, Model: "m", Token: "two"}
	assert.Equal(t, a.Variant(), b.Variant())
	assert.NotEqual(t, a.Variant(), BackendConfig{Backend: BackendAPI, Model: "n"}.Variant())
	assert.Equal(t, BackendConfig{}.Variant(), BackendConfig{Backend: BackendIdentity}.Variant())

	assert.True(t, a.AlwaysReconstruct())
	assert.False(t, BackendConfig{Backend: BackendIdentity}.AlwaysReconstruct())
}

func TestPositionalAligner(t *testing.T) {
	aligner := NewPositionalAligner()

	assert.Equal(t, []int{0, 2, 4}, aligner.Align([]string{"a", "b", "c"}, []string{"1", "2", "3", "4", "5"}))
	assert.Equal(t, []int{0}, aligner.Align([]string{"a"}, []string{"1", "2"}))
	assert.Equal(t, []int{-1, -1}, aligner.Align([]string{"a", "b"}, nil))
	assert.Empty(t, aligner.Align(nil, []string{"x"}))
}

func TestIdentityTranslator(t *testing.T) {
	out, err := NewIdentityTranslator("").Translate(context.Background(), []string{"Hallo", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hallo", ""}, out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewIdentityTranslator("").Translate(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultFactory(t *testing.T) {
	f := &DefaultFactory{}

	tr, al, err := f.New(context.Background(), "de", "en", BackendConfig{})
	require.NoError(t, err)
	assert.NotNil(t, tr)
	assert.NotNil(t, al)

	_, _, err = f.New(context.Background(), "de", "en", BackendConfig{Backend: "marian"})
	assert.Error(t, err)

	_, _, err = f.New(context.Background(), "de", "en", BackendConfig{Backend: BackendAPI, Model: "m"})
	require.Error(t, err, "no token and no fallback key")

	f.APIKey = "fallback"
	tr, _, err = f.New(context.Background(), "de", "en", BackendConfig{Backend: BackendAPI, Model: "m"})
	require.NoError(t, err)
	assert.NotNil(t, tr)

	_, _, err = f.New(context.Background(), "de", "en", BackendConfig{Aligner: "fast_align"})
	assert.Error(t, err)
}

func TestNormalizeLang(t *testing.T) {
	got, err := NormalizeLang(" de ")
	require.NoError(t, err)
	assert.Equal(t, "de", got)

	got, err = NormalizeLang("en-us")
	require.NoError(t, err)
	assert.Equal(t, "en-US", got)

	_, err = NormalizeLang("")
	assert.Error(t, err)
	_, err = NormalizeLang("not a language")
	assert.Error(t, err)
}
