package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframe/engine/core"
	"github.com/spaghettifunk/vkframe/engine/renderer/metadata"
)

// VulkanGeometry is a device local vertex buffer and its uint32 index
// buffer.
type VulkanGeometry struct {
	Vertices   *VulkanBuffer
	Indices    *VulkanBuffer
	indexCount uint32
}

func NewGeometry(context *VulkanContext, vertices []metadata.Vertex, indices []uint32) (*VulkanGeometry, error) {
	if len(vertices) == 0 || len(indices) == 0 {
		return nil, core.ErrEmptyMesh
	}

	vertexBuffer, err := uploadDeviceLocal(context, vertexBytes(vertices), vk.BufferUsageVertexBufferBit)
	if err != nil {
		return nil, fmt.Errorf("vertex buffer: %w", err)
	}
	indexBuffer, err := uploadDeviceLocal(context, indexBytes(indices), vk.BufferUsageIndexBufferBit)
	if err != nil {
		vertexBuffer.Destroy()
		return nil, fmt.Errorf("index buffer: %w", err)
	}

	return &VulkanGeometry{
		Vertices:   vertexBuffer,
		Indices:    indexBuffer,
		indexCount: uint32(len(indices)),
	}, nil
}

// uploadDeviceLocal creates a device local buffer and fills it through a
// host visible staging buffer.
func uploadDeviceLocal(context *VulkanContext, data []byte, usage vk.BufferUsageFlagBits) (*VulkanBuffer, error) {
	size := uint64(len(data))
	staging, err := NewBuffer(context, size, vk.BufferUsageTransferSrcBit,
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	if err := staging.LoadData(0, data); err != nil {
		return nil, err
	}

	buffer, err := NewBuffer(context, size, usage|vk.BufferUsageTransferDstBit,
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return nil, err
	}

	device := context.Device
	if err := staging.CopyTo(device.GraphicsCommandPool, uint32(device.GraphicsQueueIndex), device.GraphicsQueue, buffer, size); err != nil {
		buffer.Destroy()
		return nil, err
	}
	return buffer, nil
}

func (g *VulkanGeometry) IndexCount() uint32 {
	return g.indexCount
}

func (g *VulkanGeometry) Destroy() {
	if g.Vertices != nil {
		g.Vertices.Destroy()
		g.Vertices = nil
	}
	if g.Indices != nil {
		g.Indices.Destroy()
		g.Indices = nil
	}
	g.indexCount = 0
}
