package metadata

import (
	"fmt"
	"sort"
)

// UniformBinding declares a byte range of the per-slot uniform buffer that
// is exposed to the shaders at the given binding of descriptor set 0.
type UniformBinding struct {
	Binding uint32
	Offset  uint64
	Range   uint64
}

func (b UniformBinding) End() uint64 {
	return b.Offset + b.Range
}

// UniformBufferDescriptor is the layout of the uniform buffer each frame
// slot owns.
type UniformBufferDescriptor struct {
	Size     uint64
	Bindings []UniformBinding
}

// Validate checks that every binding lies inside the buffer, that
// bindings do not overlap, that binding numbers are unique and that
// offsets respect minAlignment.
func (d UniformBufferDescriptor) Validate(minAlignment uint64) error {
	if d.Size == 0 {
		return fmt.Errorf("uniform buffer size must be positive")
	}
	if len(d.Bindings) == 0 {
		return fmt.Errorf("uniform buffer needs at least one binding")
	}
	if minAlignment == 0 {
		minAlignment = 1
	}

	seen := make(map[uint32]bool, len(d.Bindings))
	sorted := make([]UniformBinding, len(d.Bindings))
	copy(sorted, d.Bindings)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	for i, b := range sorted {
		if seen[b.Binding] {
			return fmt.Errorf("binding %d declared twice", b.Binding)
		}
		seen[b.Binding] = true

		if b.Range == 0 {
			return fmt.Errorf("binding %d has an empty range", b.Binding)
		}
		if b.End() > d.Size {
			return fmt.Errorf("binding %d [%d, %d) exceeds the buffer size %d", b.Binding, b.Offset, b.End(), d.Size)
		}
		if b.Offset%minAlignment != 0 {
			return fmt.Errorf("binding %d offset %d is not aligned to %d", b.Binding, b.Offset, minAlignment)
		}
		if i > 0 && sorted[i-1].End() > b.Offset {
			return fmt.Errorf("binding %d overlaps binding %d", b.Binding, sorted[i-1].Binding)
		}
	}
	return nil
}

// Find returns the binding that fully contains [offset, offset+size).
func (d UniformBufferDescriptor) Find(offset, size uint64) (UniformBinding, bool) {
	end := offset + size
	if end < offset {
		return UniformBinding{}, false
	}
	for _, b := range d.Bindings {
		if offset >= b.Offset && end <= b.End() {
			return b, true
		}
	}
	return UniformBinding{}, false
}

// Contains reports whether the block can be written. Empty blocks write
// nothing and always fit.
func (d UniformBufferDescriptor) Contains(block UniformBlock) bool {
	if block.IsEmpty() {
		return true
	}
	_, ok := d.Find(block.Offset, block.Size())
	return ok
}
