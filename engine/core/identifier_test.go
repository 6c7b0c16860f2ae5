package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrySameNameSameID(t *testing.T) {
	r := NewRegistry()

	a, created := r.Acquire("quad")
	require.True(t, created)
	b, created := r.Acquire("quad")
	assert.False(t, created)
	assert.Equal(t, a, b)

	c, _ := r.Acquire("cube")
	assert.NotEqual(t, a, c)
	assert.NotZero(t, a)
	assert.Equal(t, 2, r.Len())
}

func TestRegistryReleaseNeverReusesIDs(t *testing.T) {
	r := NewRegistry()

	first, _ := r.Acquire("quad")
	r.Release(first)

	_, ok := r.Lookup("quad")
	assert.False(t, ok)

	second, created := r.Acquire("quad")
	assert.True(t, created)
	assert.Greater(t, second, first)

	name, ok := r.Name(second)
	require.True(t, ok)
	assert.Equal(t, "quad", name)
}
