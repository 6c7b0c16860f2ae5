package renderer

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spaghettifunk/vkframe/engine/core"
)

type DescriptorStats struct {
	Pools     int
	Live      int
	Free      int
	HighWater int
}

type poolEntry struct {
	pool     DescriptorPool
	capacity uint32
	used     uint32
}

type descriptorClass struct {
	pools     []*poolEntry
	free      []DescriptorSet
	live      int
	highWater int
}

// DescriptorCache allocates descriptor sets per class from lazily created
// pools. Released sets are handed out again before any pool grows.
type DescriptorCache struct {
	backend Backend
	budgets map[DescriptorClass]uint32
	classes map[DescriptorClass]*descriptorClass
}

// NewDescriptorCache creates a cache where every pool of a class holds
// budgets[class] sets.
func NewDescriptorCache(backend Backend, budgets map[DescriptorClass]uint32) *DescriptorCache {
	return &DescriptorCache{
		backend: backend,
		budgets: budgets,
		classes: make(map[DescriptorClass]*descriptorClass),
	}
}

func (c *DescriptorCache) class(class DescriptorClass) *descriptorClass {
	dc, ok := c.classes[class]
	if !ok {
		dc = &descriptorClass{}
		c.classes[class] = dc
	}
	return dc
}

func (c *DescriptorCache) Allocate(class DescriptorClass) (DescriptorSet, error) {
	dc := c.class(class)

	if n := len(dc.free); n > 0 {
		set := dc.free[n-1]
		dc.free = dc.free[:n-1]
		dc.track(1)
		return set, nil
	}

	var entry *poolEntry
	if n := len(dc.pools); n > 0 && dc.pools[n-1].used < dc.pools[n-1].capacity {
		entry = dc.pools[n-1]
	} else {
		budget := c.budgets[class]
		if budget == 0 {
			return nil, fmt.Errorf("descriptor class %s has no budget", class)
		}
		pool, err := c.backend.CreateDescriptorPool(class, budget)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s descriptor pool: %w", class, err)
		}
		entry = &poolEntry{pool: pool, capacity: budget}
		dc.pools = append(dc.pools, entry)
		core.LogDebug("created %s descriptor pool #%d for %d sets", class, len(dc.pools), budget)
	}

	set, err := entry.pool.Allocate()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate %s descriptor set: %w", class, err)
	}
	entry.used++
	dc.track(1)
	return set, nil
}

// Release hands a set back for reuse. The caller must make sure no
// pending command buffer references it.
func (c *DescriptorCache) Release(class DescriptorClass, set DescriptorSet) {
	if set == nil {
		return
	}
	dc := c.class(class)
	dc.free = append(dc.free, set)
	dc.track(-1)
}

func (dc *descriptorClass) track(delta int) {
	dc.live += delta
	if dc.live > dc.highWater {
		dc.highWater = dc.live
	}
}

func (c *DescriptorCache) Stats(class DescriptorClass) DescriptorStats {
	dc, ok := c.classes[class]
	if !ok {
		return DescriptorStats{}
	}
	return DescriptorStats{
		Pools:     len(dc.pools),
		Live:      dc.live,
		Free:      len(dc.free),
		HighWater: dc.highWater,
	}
}

// Destroy destroys every pool and with them every set.
func (c *DescriptorCache) Destroy() {
	for _, class := range slices.Sorted(maps.Keys(c.classes)) {
		dc := c.classes[class]
		for _, entry := range dc.pools {
			entry.pool.Destroy()
		}
		core.LogDebug("destroyed %d %s descriptor pools (high water %d sets)", len(dc.pools), class, dc.highWater)
	}
	c.classes = make(map[DescriptorClass]*descriptorClass)
}
