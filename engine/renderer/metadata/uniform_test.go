package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sceneDescriptor() UniformBufferDescriptor {
	return UniformBufferDescriptor{
		Size: 192,
		Bindings: []UniformBinding{
			{Binding: 0, Offset: 0, Range: 128},
			{Binding: 1, Offset: 128, Range: 64},
		},
	}
}

func TestUniformDescriptorValidate(t *testing.T) {
	require.NoError(t, sceneDescriptor().Validate(64))

	tests := []struct {
		name  string
		desc  UniformBufferDescriptor
		align uint64
	}{
		{"empty size", UniformBufferDescriptor{Bindings: []UniformBinding{{0, 0, 16}}}, 1},
		{"no bindings", UniformBufferDescriptor{Size: 64}, 1},
		{"exceeds size", UniformBufferDescriptor{Size: 64, Bindings: []UniformBinding{{0, 0, 128}}}, 1},
		{"overlap", UniformBufferDescriptor{Size: 256, Bindings: []UniformBinding{{0, 0, 128}, {1, 64, 64}}}, 1},
		{"duplicate binding", UniformBufferDescriptor{Size: 256, Bindings: []UniformBinding{{0, 0, 64}, {0, 64, 64}}}, 1},
		{"empty range", UniformBufferDescriptor{Size: 256, Bindings: []UniformBinding{{0, 0, 0}}}, 1},
		{"misaligned", sceneDescriptor(), 256},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.desc.Validate(tt.align))
		})
	}
}

func TestUniformDescriptorContains(t *testing.T) {
	d := sceneDescriptor()

	assert.True(t, d.Contains(UniformBlock{Offset: 0, Data: make([]byte, 128)}))
	assert.True(t, d.Contains(UniformBlock{Offset: 128, Data: make([]byte, 64)}))
	assert.True(t, d.Contains(UniformBlock{Offset: 16, Data: make([]byte, 16)}))

	// straddles two bindings
	assert.False(t, d.Contains(UniformBlock{Offset: 120, Data: make([]byte, 16)}))
	// past the end of the last binding
	assert.False(t, d.Contains(UniformBlock{Offset: 128, Data: make([]byte, 65)}))
	assert.False(t, d.Contains(UniformBlock{Offset: ^uint64(0), Data: make([]byte, 2)}))
	assert.True(t, d.Contains(UniformBlock{Offset: 4096}))

	b, ok := d.Find(130, 8)
	require.True(t, ok)
	assert.Equal(t, uint32(1), b.Binding)
}

func TestFrameDrawCount(t *testing.T) {
	f := &Frame{Passes: []Pass{
		{Objects: []RenderObject{{Mesh: 1}, {Mesh: 2}}},
		{},
		{Objects: []RenderObject{{Mesh: 3}}},
	}}
	assert.Equal(t, 3, f.DrawCount())

	q := Quad(1)
	assert.Len(t, q.Vertices, 4)
	assert.Len(t, q.Indices, 6)
}

func TestGetAligned(t *testing.T) {
	assert.Equal(t, uint64(0), GetAligned(0, 256))
	assert.Equal(t, uint64(256), GetAligned(1, 256))
	assert.Equal(t, uint64(256), GetAligned(256, MaxUniformAlignment))
	assert.Equal(t, uint64(80), GetAligned(65, 16))
}
