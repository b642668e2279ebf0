package env

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOSProvider(t *testing.T) {
	t.Setenv("CHRONOMINER_TEST_VAR", "value")

	p := NewOSProvider()
	v, ok := p.Get(context.Background(), "CHRONOMINER_TEST_VAR")
	assert.True(t, ok)
	assert.Equal(t, "value", v)

	_, ok = p.Get(context.Background(), "CHRONOMINER_DOES_NOT_EXIST")
	assert.False(t, ok)
}

func TestMultiProvider_FirstHitWins(t *testing.T) {
	empty := NewKeyValueProvider(map[string]string{})
	first := NewKeyValueProvider(map[string]string{"KEY": "first"})
	second := NewKeyValueProvider(map[string]string{"KEY": "second"})

	p := NewMultiProvider(empty, first, second)
	v, ok := p.Get(context.Background(), "KEY")
	assert.True(t, ok)
	assert.Equal(t, "first", v)
}

func TestMultiProvider_NoneHave(t *testing.T) {
	p := NewMultiProvider(NewKeyValueProvider(nil), NewKeyValueProvider(nil))
	_, ok := p.Get(context.Background(), "KEY")
	assert.False(t, ok)
}
