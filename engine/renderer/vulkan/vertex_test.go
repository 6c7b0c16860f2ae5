package vulkan

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/vkframe/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVertexLayout(t *testing.T) {
	assert.Equal(t, uint32(68), vertexStride)

	attrs := vertexAttributes()
	require.Len(t, attrs, 6)
	offsets := make([]uint32, len(attrs))
	for i, a := range attrs {
		assert.Equal(t, uint32(i), a.Location)
		offsets[i] = a.Offset
	}
	assert.Equal(t, []uint32{0, 12, 24, 36, 44, 56}, offsets)
}

func TestVertexBytes(t *testing.T) {
	vertices := []metadata.Vertex{
		{Position: mgl32.Vec3{1, 2, 3}},
		{Position: mgl32.Vec3{4, 5, 6}, UV: mgl32.Vec2{0.5, 0.25}},
	}
	b := vertexBytes(vertices)
	require.Len(t, b, 2*68)

	f := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b[off:])) }
	assert.Equal(t, float32(1), f(0))
	assert.Equal(t, float32(4), f(68))
	assert.Equal(t, float32(0.25), f(68+40))

	assert.Nil(t, vertexBytes(nil))
	assert.Len(t, indexBytes([]uint32{0, 1, 2}), 12)
}
