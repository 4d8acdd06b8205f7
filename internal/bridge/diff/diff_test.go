package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUnifiedPassthrough(t *testing.T) {
	d, err := Normalize([]byte(`{"type":"diff","unified":"--- a\n+++ b\n","path":"x.go"}`), 3)
	require.NoError(t, err)
	assert.Equal(t, "x.go", d.Path)
	assert.Equal(t, "--- a\n+++ b\n", d.Unified)
}

func TestNormalizeEmbeddedDiffSubObject(t *testing.T) {
	d, err := Normalize([]byte(`{"diff":{"path":"y.go","before":"a\nb\n","after":"a\nc\n"}}`), 3)
	require.NoError(t, err)
	assert.Equal(t, "y.go", d.Path)
	assert.NotEmpty(t, d.Unified)
	assert.Equal(t, 4, d.OldTextLength)
	assert.Equal(t, 4, d.NewTextLength)
}

func TestNormalizeContentDiffSubObject(t *testing.T) {
	d, err := Normalize([]byte(`{"content":{"diff":{"oldText":"a\n","newText":"b\n"}}}`), 3)
	require.NoError(t, err)
	assert.NotEmpty(t, d.Unified)
}

func TestNormalizeNoUsableShapeErrors(t *testing.T) {
	_, err := Normalize([]byte(`{"type":"diff"}`), 3)
	assert.Error(t, err)
}

func TestComputeUnifiedIncludesAddedAndRemovedLines(t *testing.T) {
	out := computeUnified("one\ntwo\nthree\n", "one\ntwo-changed\nthree\n", 1)
	assert.Contains(t, out, "-two")
	assert.Contains(t, out, "+two-changed")
	assert.Contains(t, out, " one")
	assert.Contains(t, out, " three")
}
