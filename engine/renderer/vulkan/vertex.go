package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframe/engine/renderer/metadata"
)

var vertexStride = uint32(unsafe.Sizeof(metadata.Vertex{}))

// vertexAttributes follows the field order of metadata.Vertex. Locations
// match the inputs of the forward vertex shader.
func vertexAttributes() []vk.VertexInputAttributeDescription {
	var v metadata.Vertex
	vec3 := vk.FormatR32g32b32Sfloat
	vec2 := vk.FormatR32g32Sfloat
	return []vk.VertexInputAttributeDescription{
		{Location: 0, Binding: 0, Format: vec3, Offset: uint32(unsafe.Offsetof(v.Position))},
		{Location: 1, Binding: 0, Format: vec3, Offset: uint32(unsafe.Offsetof(v.Normal))},
		{Location: 2, Binding: 0, Format: vec3, Offset: uint32(unsafe.Offsetof(v.Color))},
		{Location: 3, Binding: 0, Format: vec2, Offset: uint32(unsafe.Offsetof(v.UV))},
		{Location: 4, Binding: 0, Format: vec3, Offset: uint32(unsafe.Offsetof(v.Tangent))},
		{Location: 5, Binding: 0, Format: vec3, Offset: uint32(unsafe.Offsetof(v.Bitangent))},
	}
}

// vertexBytes views the vertices as raw bytes for the staging copy.
func vertexBytes(vertices []metadata.Vertex) []byte {
	if len(vertices) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&vertices[0])), len(vertices)*int(vertexStride))
}

func indexBytes(indices []uint32) []byte {
	if len(indices) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&indices[0])), len(indices)*4)
}
