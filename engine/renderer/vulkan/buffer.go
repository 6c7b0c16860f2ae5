package vulkan

import (
	"fmt"
	"unsafe"

	units "github.com/docker/go-units"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframe/engine/core"
)

type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	// Requested size in bytes.
	TotalSize uint64
	Usage     vk.BufferUsageFlagBits
	// The memory flags the backing memory was allocated with.
	MemoryPropertyFlags vk.MemoryPropertyFlags

	context *VulkanContext
}

func NewBuffer(context *VulkanContext, size uint64, usage vk.BufferUsageFlagBits, memoryPropertyFlags vk.MemoryPropertyFlags) (*VulkanBuffer, error) {
	buffer := &VulkanBuffer{
		TotalSize:           size,
		Usage:               usage,
		MemoryPropertyFlags: memoryPropertyFlags,
		context:             context,
	}

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive, // NOTE: Only used in one queue.
	}

	var handle vk.Buffer
	if res := vk.CreateBuffer(context.Device.LogicalDevice, &bufferInfo, context.Allocator, &handle); res != vk.Success {
		err := fmt.Errorf("failed to create buffer: %w", resultError("vkCreateBuffer", res))
		core.LogError(err.Error())
		return nil, err
	}
	buffer.Handle = handle

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, handle, &requirements)
	requirements.Deref()

	memoryIndex, err := context.FindMemoryIndex(requirements.MemoryTypeBits, memoryPropertyFlags)
	if err != nil {
		core.LogError("Unable to create vulkan buffer because the required memory type index was not found. %s", err)
		buffer.Destroy()
		return nil, err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryIndex,
	}

	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(context.Device.LogicalDevice, &allocateInfo, context.Allocator, &memory); res != vk.Success {
		err := fmt.Errorf("unable to allocate %s for a vulkan buffer: %w", units.BytesSize(float64(requirements.Size)), resultError("vkAllocateMemory", res))
		core.LogError(err.Error())
		buffer.Destroy()
		return nil, err
	}
	buffer.Memory = memory

	if res := vk.BindBufferMemory(context.Device.LogicalDevice, handle, memory, 0); res != vk.Success {
		err := fmt.Errorf("failed to bind buffer memory: %w", resultError("vkBindBufferMemory", res))
		core.LogError(err.Error())
		buffer.Destroy()
		return nil, err
	}

	core.LogDebug("Created buffer of %s (usage %#x).", units.BytesSize(float64(size)), uint32(usage))
	return buffer, nil
}

func (b *VulkanBuffer) Destroy() {
	device := b.context.Device.LogicalDevice
	if b.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, b.Memory, b.context.Allocator)
		b.Memory = vk.NullDeviceMemory
	}
	if b.Handle != vk.NullBuffer {
		vk.DestroyBuffer(device, b.Handle, b.context.Allocator)
		b.Handle = vk.NullBuffer
	}
	b.TotalSize = 0
}

func (b *VulkanBuffer) LockMemory(offset, size uint64) (unsafe.Pointer, error) {
	var data unsafe.Pointer
	if res := vk.MapMemory(b.context.Device.LogicalDevice, b.Memory, vk.DeviceSize(offset), vk.DeviceSize(size), 0, &data); res != vk.Success {
		err := fmt.Errorf("failed to map buffer memory: %w", resultError("vkMapMemory", res))
		core.LogError(err.Error())
		return nil, err
	}
	return data, nil
}

func (b *VulkanBuffer) UnlockMemory() {
	vk.UnmapMemory(b.context.Device.LogicalDevice, b.Memory)
}

// LoadData copies data into host visible memory at offset.
func (b *VulkanBuffer) LoadData(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > b.TotalSize {
		err := fmt.Errorf("load of %d bytes at %d exceeds the buffer size %d", len(data), offset, b.TotalSize)
		core.LogError(err.Error())
		return err
	}
	ptr, err := b.LockMemory(offset, uint64(len(data)))
	if err != nil {
		return err
	}
	copy(unsafe.Slice((*byte)(ptr), len(data)), data)
	b.UnlockMemory()
	return nil
}

// CopyTo records a buffer to buffer copy in a single use command buffer and
// blocks until the queue is idle.
func (b *VulkanBuffer) CopyTo(pool vk.CommandPool, queueFamily uint32, queue vk.Queue, dest *VulkanBuffer, size uint64) error {
	cb, err := AllocateAndBeginSingleUse(b.context, pool)
	if err != nil {
		return err
	}
	vk.CmdCopyBuffer(cb.Handle, b.Handle, dest.Handle, 1, []vk.BufferCopy{{Size: vk.DeviceSize(size)}})
	return cb.EndSingleUse(queueFamily, queue)
}

// VulkanUniformBuffer is a host visible, coherent buffer that stays mapped
// for its whole life.
type VulkanUniformBuffer struct {
	*VulkanBuffer
	mapped []byte
}

func NewUniformBuffer(context *VulkanContext, size uint64) (*VulkanUniformBuffer, error) {
	buffer, err := NewBuffer(context, size,
		vk.BufferUsageUniformBufferBit|vk.BufferUsageTransferDstBit,
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return nil, err
	}
	ptr, err := buffer.LockMemory(0, size)
	if err != nil {
		buffer.Destroy()
		return nil, err
	}
	return &VulkanUniformBuffer{
		VulkanBuffer: buffer,
		mapped:       unsafe.Slice((*byte)(ptr), size),
	}, nil
}

// Write copies data at offset. Memory is coherent so no flush is needed.
func (u *VulkanUniformBuffer) Write(offset uint64, data []byte) error {
	end := offset + uint64(len(data))
	if end < offset || end > uint64(len(u.mapped)) {
		return fmt.Errorf("%w: write [%d, %d) in a buffer of %d bytes", core.ErrUniformOutOfBounds, offset, end, len(u.mapped))
	}
	copy(u.mapped[offset:end], data)
	return nil
}

func (u *VulkanUniformBuffer) Size() uint64 {
	return uint64(len(u.mapped))
}

func (u *VulkanUniformBuffer) Destroy() {
	if u.mapped != nil {
		u.UnlockMemory()
		u.mapped = nil
	}
	u.VulkanBuffer.Destroy()
}
