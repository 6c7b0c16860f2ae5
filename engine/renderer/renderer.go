package renderer

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/vkframe/engine/core"
	"github.com/spaghettifunk/vkframe/engine/renderer/metadata"
)

type SlotState uint8

const (
	SlotIdle SlotState = iota
	SlotAcquiring
	SlotRecording
	SlotSubmitted
)

func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "idle"
	case SlotAcquiring:
		return "acquiring"
	case SlotRecording:
		return "recording"
	case SlotSubmitted:
		return "submitted"
	default:
		return "unknown"
	}
}

type Config struct {
	Backend    BackendConfig
	ClearColor [4]float32
	// FenceTimeout is in nanoseconds. math.MaxUint64 waits forever.
	FenceTimeout   uint64
	PassBudget     uint32
	MaterialBudget uint32
}

// frameSlot holds everything one frame in flight needs. A slot is only
// touched by the CPU after its fence has been waited on.
type frameSlot struct {
	index          SlotIndex
	state          SlotState
	image          ImageIndex
	commandBuffer  CommandBuffer
	imageAvailable Semaphore
	renderFinished Semaphore
	inFlight       Fence
	uniforms       UniformBuffer
	passSet        DescriptorSet
}

type RenderSystem struct {
	backend Backend
	images  ImageSource
	config  Config

	initialized     bool
	recreatePending bool
	// fault is set when a frame failed after its image was acquired. The
	// slot's image available semaphore is then left signaled with no
	// submit waiting on it, so no further frame may be started.
	fault error

	slots       [MaxFramesInFlight]*frameSlot
	currentSlot SlotIndex
	frameNumber uint64
	// imagesInFlight maps a swapchain image to the fence of the slot that
	// last rendered into it. Sized to the swapchain image count.
	imagesInFlight []Fence

	descriptors *DescriptorCache

	meshIDs     *core.Registry
	materialIDs *core.Registry
	meshes      map[metadata.ResourceID]*mesh
	materials   map[metadata.ResourceID]*material
}

func New(backend Backend, images ImageSource, config Config) *RenderSystem {
	return &RenderSystem{
		backend:     backend,
		images:      images,
		config:      config,
		meshIDs:     core.NewRegistry(),
		materialIDs: core.NewRegistry(),
		meshes:      make(map[metadata.ResourceID]*mesh),
		materials:   make(map[metadata.ResourceID]*material),
	}
}

// Init brings up the backend and creates the per slot resources. On
// failure everything created so far is released and the backend is shut
// down again, so Init may be retried.
func (rs *RenderSystem) Init() (err error) {
	if rs.initialized {
		return nil
	}
	if err := rs.backend.Initialize(rs.config.Backend); err != nil {
		err = fmt.Errorf("failed to initialize the render backend: %w", err)
		core.LogError(err.Error())
		return err
	}
	defer func() {
		if err != nil {
			rs.unwind()
		}
	}()

	alignment := rs.backend.MinUniformBufferOffsetAlignment()
	if err := rs.config.Backend.Uniforms.Validate(alignment); err != nil {
		err = fmt.Errorf("invalid uniform buffer layout: %w", err)
		core.LogError(err.Error())
		return err
	}

	rs.descriptors = NewDescriptorCache(rs.backend, map[DescriptorClass]uint32{
		DescriptorClassPass:     rs.config.PassBudget,
		DescriptorClassMaterial: rs.config.MaterialBudget,
	})

	for i := range rs.slots {
		slot, err := rs.createSlot(SlotIndex(i))
		if err != nil {
			core.LogError(err.Error())
			return err
		}
		rs.slots[i] = slot
	}

	rs.imagesInFlight = make([]Fence, rs.backend.ImageCount())
	rs.currentSlot = 0
	rs.frameNumber = 0
	rs.fault = nil
	rs.initialized = true

	core.LogInfo("render system initialized with %d frame slots and %d swapchain images", MaxFramesInFlight, len(rs.imagesInFlight))
	return nil
}

// unwind releases what a failed Init created after the backend came up.
func (rs *RenderSystem) unwind() {
	for i, slot := range rs.slots {
		if slot == nil {
			continue
		}
		rs.destroySlot(slot)
		rs.slots[i] = nil
	}
	if rs.descriptors != nil {
		rs.descriptors.Destroy()
		rs.descriptors = nil
	}
	rs.imagesInFlight = nil
	if err := rs.backend.Shutdown(); err != nil {
		core.LogWarn("render backend shutdown after failed init: %s", err)
	}
}

func (rs *RenderSystem) createSlot(index SlotIndex) (_ *frameSlot, err error) {
	slot := &frameSlot{index: index, state: SlotIdle}
	defer func() {
		if err != nil {
			rs.destroySlot(slot)
		}
	}()

	imageAvailable, err := rs.backend.CreateSemaphore()
	if err != nil {
		return nil, fmt.Errorf("slot %d: failed to create image available semaphore: %w", index, err)
	}
	slot.imageAvailable = imageAvailable
	renderFinished, err := rs.backend.CreateSemaphore()
	if err != nil {
		return nil, fmt.Errorf("slot %d: failed to create render finished semaphore: %w", index, err)
	}
	slot.renderFinished = renderFinished
	// Created signaled so the very first wait on the slot returns at once.
	inFlight, err := rs.backend.CreateFence(true)
	if err != nil {
		return nil, fmt.Errorf("slot %d: failed to create in flight fence: %w", index, err)
	}
	slot.inFlight = inFlight
	commandBuffer, err := rs.backend.CreateCommandBuffer()
	if err != nil {
		return nil, fmt.Errorf("slot %d: failed to allocate command buffer: %w", index, err)
	}
	slot.commandBuffer = commandBuffer

	layout := rs.config.Backend.Uniforms
	uniforms, err := rs.backend.CreateUniformBuffer(layout.Size)
	if err != nil {
		return nil, fmt.Errorf("slot %d: failed to create uniform buffer: %w", index, err)
	}
	slot.uniforms = uniforms
	passSet, err := rs.descriptors.Allocate(DescriptorClassPass)
	if err != nil {
		return nil, fmt.Errorf("slot %d: failed to allocate pass descriptor set: %w", index, err)
	}
	slot.passSet = passSet
	for _, b := range layout.Bindings {
		slot.passSet.WriteUniformBuffer(b.Binding, slot.uniforms, b.Offset, b.Range)
	}
	return slot, nil
}

// destroySlot releases the members a slot has. Members are only set once
// they were created successfully.
func (rs *RenderSystem) destroySlot(slot *frameSlot) {
	if slot.commandBuffer != nil {
		slot.commandBuffer.Free()
	}
	if slot.imageAvailable != nil {
		slot.imageAvailable.Destroy()
	}
	if slot.renderFinished != nil {
		slot.renderFinished.Destroy()
	}
	if slot.inFlight != nil {
		slot.inFlight.Destroy()
	}
	if slot.uniforms != nil {
		slot.uniforms.Destroy()
	}
	if slot.passSet != nil && rs.descriptors != nil {
		rs.descriptors.Release(DescriptorClassPass, slot.passSet)
	}
}

// BeginFrame waits for the current slot, acquires a swapchain image and
// starts recording. ErrSwapchainBooting means the frame must be skipped.
func (rs *RenderSystem) BeginFrame() (ImageIndex, error) {
	if !rs.initialized {
		return 0, core.ErrNotInitialized
	}
	if rs.fault != nil {
		return 0, fmt.Errorf("%w: %w", core.ErrRenderSystemFaulted, rs.fault)
	}
	if rs.recreatePending {
		if err := rs.recreateSwapchain(); err != nil {
			return 0, err
		}
		return 0, core.ErrSwapchainBooting
	}

	slot := rs.slots[rs.currentSlot]
	if err := slot.inFlight.Wait(rs.config.FenceTimeout); err != nil {
		err = fmt.Errorf("frame slot %d: in flight fence wait failed: %w", slot.index, err)
		core.LogError(err.Error())
		return 0, err
	}
	slot.state = SlotAcquiring

	image, err := rs.backend.AcquireNextImage(slot.imageAvailable, rs.config.FenceTimeout)
	if err != nil {
		slot.state = SlotIdle
		if errors.Is(err, core.ErrSwapchainOutOfDate) {
			rs.recreatePending = true
			return 0, fmt.Errorf("%w: %w", core.ErrSwapchainBooting, err)
		}
		err = fmt.Errorf("frame slot %d: failed to acquire swapchain image: %w", slot.index, err)
		core.LogError(err.Error())
		return 0, err
	}
	if int(image) >= len(rs.imagesInFlight) {
		err := fmt.Errorf("swapchain returned image %d but only has %d images", image, len(rs.imagesInFlight))
		return 0, rs.abandon(slot, err)
	}

	// Another slot may still be rendering into this image.
	if prev := rs.imagesInFlight[image]; prev != nil && prev != slot.inFlight {
		if err := prev.Wait(rs.config.FenceTimeout); err != nil {
			return 0, rs.abandon(slot, fmt.Errorf("image %d: fence wait failed: %w", image, err))
		}
	}
	rs.imagesInFlight[image] = slot.inFlight

	cb := slot.commandBuffer
	if err := cb.Reset(); err != nil {
		return 0, rs.abandon(slot, err)
	}
	if err := cb.Begin(true); err != nil {
		return 0, rs.abandon(slot, err)
	}
	width, height := rs.backend.FramebufferSize()
	cb.BeginRenderPass(image, rs.config.ClearColor)
	cb.SetViewport(width, height)
	cb.BindPipeline()

	slot.image = image
	slot.state = SlotRecording
	return image, nil
}

// abandon fails a frame whose image was already acquired. The render system
// is faulted afterwards and must be cleaned up.
func (rs *RenderSystem) abandon(slot *frameSlot, err error) error {
	slot.state = SlotIdle
	rs.fault = err
	core.LogError("frame slot %d abandoned after acquire: %s", slot.index, err)
	return err
}

// EndFrame finishes recording, submits and presents the current slot.
func (rs *RenderSystem) EndFrame(image ImageIndex) error {
	if !rs.initialized {
		return core.ErrNotInitialized
	}
	slot := rs.slots[rs.currentSlot]
	if slot.state != SlotRecording {
		err := fmt.Errorf("frame slot %d is %s, expected recording", slot.index, slot.state)
		core.LogError(err.Error())
		return err
	}
	if slot.image != image {
		err := fmt.Errorf("frame slot %d is recording image %d, not %d", slot.index, slot.image, image)
		core.LogError(err.Error())
		return err
	}

	cb := slot.commandBuffer
	cb.EndRenderPass()
	if err := cb.End(); err != nil {
		core.LogError(err.Error())
		return err
	}
	if err := slot.inFlight.Reset(); err != nil {
		core.LogError(err.Error())
		return err
	}
	if err := rs.backend.Submit(cb, slot.imageAvailable, slot.renderFinished, slot.inFlight); err != nil {
		err = fmt.Errorf("frame slot %d: queue submit failed: %w", slot.index, err)
		core.LogError(err.Error())
		return err
	}
	slot.state = SlotSubmitted

	if err := rs.backend.Present(image, slot.renderFinished); err != nil {
		if !errors.Is(err, core.ErrSwapchainOutOfDate) {
			rs.advance()
			err = fmt.Errorf("image %d: present failed: %w", image, err)
			core.LogError(err.Error())
			return err
		}
		rs.recreatePending = true
	}
	rs.advance()
	return nil
}

func (rs *RenderSystem) advance() {
	rs.currentSlot = (rs.currentSlot + 1) % MaxFramesInFlight
	rs.frameNumber++
}

// DrawFrame validates, records and presents a whole frame. A frame that
// fails validation records nothing.
func (rs *RenderSystem) DrawFrame(frame *metadata.Frame) error {
	if !rs.initialized {
		return core.ErrNotInitialized
	}
	if frame == nil {
		frame = &metadata.Frame{}
	}
	draws, err := rs.resolve(frame)
	if err != nil {
		core.LogError(err.Error())
		return err
	}

	image, err := rs.BeginFrame()
	if err != nil {
		return err
	}

	slot := rs.slots[rs.currentSlot]
	recordErr := rs.record(slot, frame, draws)
	// The acquire already signalled the image available semaphore, so the
	// frame is submitted even when recording went wrong.
	if err := rs.EndFrame(image); err != nil {
		return errors.Join(recordErr, err)
	}
	return recordErr
}

func (rs *RenderSystem) record(slot *frameSlot, frame *metadata.Frame, draws [][]draw) error {
	cb := slot.commandBuffer
	for p, pass := range frame.Passes {
		if err := rs.writeUniforms(slot, pass.Uniforms); err != nil {
			return err
		}
		cb.BindDescriptorSet(0, slot.passSet)
		for o, object := range pass.Objects {
			if err := rs.writeUniforms(slot, object.Uniforms); err != nil {
				return err
			}
			d := draws[p][o]
			cb.BindGeometry(d.mesh.geometry)
			cb.BindDescriptorSet(1, d.material.set)
			cb.DrawIndexed(d.mesh.geometry.IndexCount())
		}
	}
	return nil
}

type draw struct {
	mesh     *mesh
	material *material
}

// resolve checks every reference and uniform block of the frame.
func (rs *RenderSystem) resolve(frame *metadata.Frame) ([][]draw, error) {
	layout := rs.config.Backend.Uniforms
	draws := make([][]draw, len(frame.Passes))
	for p, pass := range frame.Passes {
		if !layout.Contains(pass.Uniforms) {
			return nil, fmt.Errorf("pass %d: %w: offset %d size %d", p, core.ErrUniformOutOfBounds, pass.Uniforms.Offset, pass.Uniforms.Size())
		}
		draws[p] = make([]draw, len(pass.Objects))
		for o, object := range pass.Objects {
			m, ok := rs.meshes[object.Mesh]
			if !ok {
				return nil, fmt.Errorf("pass %d object %d: %w: %d", p, o, core.ErrUnknownMesh, object.Mesh)
			}
			mat, ok := rs.materials[object.Material]
			if !ok {
				return nil, fmt.Errorf("pass %d object %d: %w: %d", p, o, core.ErrUnknownMaterial, object.Material)
			}
			if !layout.Contains(object.Uniforms) {
				return nil, fmt.Errorf("pass %d object %d: %w: offset %d size %d", p, o, core.ErrUniformOutOfBounds, object.Uniforms.Offset, object.Uniforms.Size())
			}
			draws[p][o] = draw{mesh: m, material: mat}
		}
	}
	return draws, nil
}

// writeUniforms copies a block into the slot's mapped buffer. The slot
// fence was waited on in BeginFrame so the GPU is not reading it.
func (rs *RenderSystem) writeUniforms(slot *frameSlot, block metadata.UniformBlock) error {
	if block.IsEmpty() {
		return nil
	}
	if !rs.config.Backend.Uniforms.Contains(block) {
		return fmt.Errorf("%w: offset %d size %d", core.ErrUniformOutOfBounds, block.Offset, block.Size())
	}
	if err := slot.uniforms.Write(block.Offset, block.Data); err != nil {
		return fmt.Errorf("frame slot %d: uniform write failed: %w", slot.index, err)
	}
	return nil
}

// Resize records the new framebuffer size. The swapchain is rebuilt at
// the start of the next frame.
func (rs *RenderSystem) Resize(width, height uint32) {
	rs.backend.Resized(width, height)
	rs.recreatePending = true
}

func (rs *RenderSystem) recreateSwapchain() error {
	width, height := rs.backend.FramebufferSize()
	if width == 0 || height == 0 {
		// Minimised. Keep the request and try again next frame.
		core.LogDebug("framebuffer is %dx%d, postponing swapchain recreation", width, height)
		return core.ErrSwapchainBooting
	}
	if err := rs.backend.WaitIdle(); err != nil {
		core.LogError(err.Error())
		return err
	}
	if err := rs.backend.RecreateSwapchain(); err != nil {
		err = fmt.Errorf("failed to recreate swapchain: %w", err)
		core.LogError(err.Error())
		return err
	}
	rs.imagesInFlight = make([]Fence, rs.backend.ImageCount())
	for _, slot := range rs.slots {
		slot.state = SlotIdle
	}
	rs.recreatePending = false
	core.LogInfo("swapchain recreated at %dx%d with %d images", width, height, len(rs.imagesInFlight))
	return nil
}

func (rs *RenderSystem) WaitIdle() error {
	if !rs.initialized {
		return nil
	}
	if err := rs.backend.WaitIdle(); err != nil {
		err = fmt.Errorf("device wait idle failed: %w", err)
		core.LogError(err.Error())
		return err
	}
	for _, slot := range rs.slots {
		if slot.state == SlotSubmitted {
			slot.state = SlotIdle
		}
	}
	return nil
}

// GetWindowDimensions returns the current framebuffer size in pixels.
func (rs *RenderSystem) GetWindowDimensions() (uint32, uint32) {
	return rs.backend.FramebufferSize()
}

func (rs *RenderSystem) SlotState(slot SlotIndex) SlotState {
	if int(slot) >= len(rs.slots) || rs.slots[slot] == nil {
		return SlotIdle
	}
	return rs.slots[slot].state
}

func (rs *RenderSystem) CurrentSlot() SlotIndex {
	return rs.currentSlot
}

func (rs *RenderSystem) FrameNumber() uint64 {
	return rs.frameNumber
}

func (rs *RenderSystem) Descriptors() *DescriptorCache {
	return rs.descriptors
}

// Cleanup waits for the device and destroys everything in dependency
// order. The render system cannot be used afterwards.
func (rs *RenderSystem) Cleanup() error {
	if !rs.initialized {
		return nil
	}
	if err := rs.backend.WaitIdle(); err != nil {
		core.LogWarn("wait idle before cleanup failed: %s", err)
	}

	for _, slot := range rs.slots {
		if slot == nil {
			continue
		}
		slot.commandBuffer.Free()
		slot.imageAvailable.Destroy()
		slot.renderFinished.Destroy()
		slot.inFlight.Destroy()
	}
	rs.imagesInFlight = nil
	for i, slot := range rs.slots {
		if slot == nil {
			continue
		}
		slot.uniforms.Destroy()
		rs.slots[i] = nil
	}

	rs.descriptors.Destroy()

	for id, m := range rs.materials {
		m.destroy()
		delete(rs.materials, id)
	}
	for id, m := range rs.meshes {
		m.geometry.Destroy()
		delete(rs.meshes, id)
	}

	rs.initialized = false
	if err := rs.backend.Shutdown(); err != nil {
		err = fmt.Errorf("render backend shutdown failed: %w", err)
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("render system cleaned up after %d frames", rs.frameNumber)
	return nil
}
