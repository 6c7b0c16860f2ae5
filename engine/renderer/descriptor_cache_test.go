package renderer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vkframe/engine/renderer"
	"github.com/spaghettifunk/vkframe/engine/renderer/backendtest"
)

func TestDescriptorCacheGrowsAndReuses(t *testing.T) {
	b := backendtest.New()
	cache := renderer.NewDescriptorCache(b, map[renderer.DescriptorClass]uint32{
		renderer.DescriptorClassMaterial: 2,
	})

	var sets []renderer.DescriptorSet
	for i := 0; i < 3; i++ {
		set, err := cache.Allocate(renderer.DescriptorClassMaterial)
		require.NoError(t, err)
		sets = append(sets, set)
	}
	assert.Len(t, b.Pools, 2)
	assert.Equal(t, renderer.DescriptorStats{Pools: 2, Live: 3, HighWater: 3}, cache.Stats(renderer.DescriptorClassMaterial))

	cache.Release(renderer.DescriptorClassMaterial, sets[0])
	again, err := cache.Allocate(renderer.DescriptorClassMaterial)
	require.NoError(t, err)
	assert.Same(t, sets[0], again)
	assert.Len(t, b.Pools, 2)

	// the second pool still has room
	_, err = cache.Allocate(renderer.DescriptorClassMaterial)
	require.NoError(t, err)
	assert.Len(t, b.Pools, 2)
	assert.Equal(t, 4, cache.Stats(renderer.DescriptorClassMaterial).HighWater)

	cache.Destroy()
	for _, p := range b.Pools {
		assert.True(t, p.Destroyed)
	}
	assert.Equal(t, renderer.DescriptorStats{}, cache.Stats(renderer.DescriptorClassMaterial))
}

func TestDescriptorCacheRequiresBudget(t *testing.T) {
	cache := renderer.NewDescriptorCache(backendtest.New(), map[renderer.DescriptorClass]uint32{})
	_, err := cache.Allocate(renderer.DescriptorClassPass)
	assert.Error(t, err)
}
