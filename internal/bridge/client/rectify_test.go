package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRectifyEmptyIncoming(t *testing.T) {
	assert.Equal(t, "", rectify("hello", ""))
}

func TestRectifyEmptyAccumulated(t *testing.T) {
	assert.Equal(t, "world", rectify("", "world"))
}

func TestRectifyExactDuplicate(t *testing.T) {
	assert.Equal(t, "", rectify("hello", "hello"))
}

func TestRectifyShorterDuplicateSubstring(t *testing.T) {
	assert.Equal(t, "", rectify("hello world", "lo wo"))
}

func TestRectifyIncomingStartsWithAccumulated(t *testing.T) {
	assert.Equal(t, " world", rectify("Hello", "Hello world"))
}

func TestRectifyAccumulatedEndsWithIncoming(t *testing.T) {
	assert.Equal(t, "", rectify("Hello world", "world"))
}

func TestRectifyOverlappingSuffixPrefix(t *testing.T) {
	assert.Equal(t, " world", rectify("Hello", "lo world"))
}

func TestRectifyNoOverlapReturnsFullIncoming(t *testing.T) {
	assert.Equal(t, "xyz", rectify("abc", "xyz"))
}

func TestRectifyIdempotent(t *testing.T) {
	accumulated := "The quick brown fox"
	assert.Equal(t, "", rectify(accumulated, accumulated))
}

func TestRectifySuffixAppendIsIdempotentExtension(t *testing.T) {
	accumulated := "The quick brown fox"
	suffix := " jumps"
	assert.Equal(t, suffix, rectify(accumulated, accumulated+suffix))
}
