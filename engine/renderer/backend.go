package renderer

import "github.com/spaghettifunk/vkframe/engine/renderer/metadata"

// MaxFramesInFlight is the number of frame slots. At most this many frames
// may have GPU work outstanding at once.
const MaxFramesInFlight = 2

// SlotIndex identifies one of the MaxFramesInFlight rotating frame slots.
type SlotIndex uint32

// ImageIndex identifies a swapchain image, as returned by the acquire. It
// is unrelated to SlotIndex: the swapchain usually has more images than
// there are slots, and images are not handed out in order.
type ImageIndex uint32

type DescriptorClass int

const (
	// Set 0: the per-slot uniform buffer bindings.
	DescriptorClassPass DescriptorClass = iota
	// Set 1: the combined image samplers of a material.
	DescriptorClassMaterial
)

func (c DescriptorClass) String() string {
	switch c {
	case DescriptorClassPass:
		return "pass"
	case DescriptorClassMaterial:
		return "material"
	default:
		return "unknown"
	}
}

// Fence is a GPU to CPU signal.
type Fence interface {
	// Wait blocks until the fence signals or timeoutNs elapses.
	Wait(timeoutNs uint64) error
	Reset() error
	IsSignaled() bool
	Destroy()
}

// Semaphore orders GPU work without CPU involvement.
type Semaphore interface {
	Destroy()
}

// CommandBuffer records the commands of one frame.
type CommandBuffer interface {
	Begin(singleUse bool) error
	BeginRenderPass(image ImageIndex, clearColor [4]float32)
	SetViewport(width, height uint32)
	BindPipeline()
	BindDescriptorSet(set uint32, ds DescriptorSet)
	BindGeometry(g Geometry)
	DrawIndexed(indexCount uint32)
	EndRenderPass()
	End() error
	Reset() error
	Free()
}

// UniformBuffer is host visible, coherent and persistently mapped.
type UniformBuffer interface {
	Write(offset uint64, data []byte) error
	Size() uint64
	Destroy()
}

// Geometry is a device local vertex buffer and uint32 index buffer pair.
type Geometry interface {
	IndexCount() uint32
	Destroy()
}

// Texture is a sampled image: image, view and sampler.
type Texture interface {
	Name() string
	Destroy()
}

type DescriptorSet interface {
	WriteUniformBuffer(binding uint32, buffer UniformBuffer, offset, size uint64)
	WriteTexture(binding uint32, texture Texture)
}

// DescriptorPool hands out sets of a single class. Sets are freed with the
// pool.
type DescriptorPool interface {
	Allocate() (DescriptorSet, error)
	Destroy()
}

type BackendConfig struct {
	ApplicationName string
	Width           uint32
	Height          uint32
	Debug           bool
	// SPIR-V bytecode.
	VertexShader   []uint32
	FragmentShader []uint32
	Uniforms       metadata.UniformBufferDescriptor
	TextureSlots   uint32
	Anisotropy     bool
	PreferMailbox  bool
}

// Backend is the set of GPU operations the render system drives. The
// bootstrap objects (instance, device, swapchain, render pass, pipeline,
// framebuffers) are owned by the backend and built in Initialize.
type Backend interface {
	Initialize(config BackendConfig) error
	Shutdown() error

	Resized(width, height uint32)
	FramebufferSize() (uint32, uint32)
	ImageCount() uint32
	MinUniformBufferOffsetAlignment() uint64
	RecreateSwapchain() error

	CreateFence(signaled bool) (Fence, error)
	CreateSemaphore() (Semaphore, error)
	CreateCommandBuffer() (CommandBuffer, error)
	CreateUniformBuffer(size uint64) (UniformBuffer, error)
	// CreateGeometry uploads through a staging buffer and blocks until the
	// copy is done.
	CreateGeometry(vertices []metadata.Vertex, indices []uint32) (Geometry, error)
	// CreateTexture uploads RGBA8 pixels through a staging buffer and
	// blocks until the image is shader readable.
	CreateTexture(name string, image *metadata.ImageData) (Texture, error)
	CreateDescriptorPool(class DescriptorClass, maxSets uint32) (DescriptorPool, error)

	// AcquireNextImage returns core.ErrSwapchainOutOfDate when the
	// swapchain must be recreated.
	AcquireNextImage(signal Semaphore, timeoutNs uint64) (ImageIndex, error)
	Submit(commandBuffer CommandBuffer, wait, signal Semaphore, fence Fence) error
	// Present returns core.ErrSwapchainOutOfDate for out of date and
	// suboptimal swapchains.
	Present(image ImageIndex, wait Semaphore) error
	WaitIdle() error
}

// ImageSource decodes image files for materials.
type ImageSource interface {
	LoadImage(path string) (*metadata.ImageData, error)
}
