package tokencount

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCount_Empty(t *testing.T) {
	assert.Equal(t, 0, Count("", "gpt-4o"))
}

func TestCount_Monotonic(t *testing.T) {
	short := Count("hello", "gpt-4o")
	long := Count("hello, this is a much longer sentence with many more words in it", "gpt-4o")
	assert.Positive(t, short)
	assert.Greater(t, long, short)
}

func TestEncodingForModel(t *testing.T) {
	assert.Equal(t, "o200k_base", encodingForModel("gpt-4o-mini"))
	assert.Equal(t, "cl100k_base", encodingForModel("gpt-4"))
	assert.Equal(t, "cl100k_base", encodingForModel("claude-sonnet-4-5"))
	assert.Equal(t, "cl100k_base", encodingForModel("gemini-2.5-pro"))
	assert.Equal(t, "cl100k_base", encodingForModel("some-unknown-model"))
}

func TestFallbackEstimate(t *testing.T) {
	assert.Equal(t, 0, fallbackEstimate(""))
	assert.Equal(t, 1, fallbackEstimate("abcd"))
	assert.Equal(t, 3, fallbackEstimate("0123456789"))
}
