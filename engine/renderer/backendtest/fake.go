// Package backendtest provides a recording renderer.Backend for tests. No
// GPU is involved: submitted work completes as soon as its fence is
// waited on.
package backendtest

import (
	"fmt"

	"github.com/spaghettifunk/vkframe/engine/core"
	"github.com/spaghettifunk/vkframe/engine/renderer"
	"github.com/spaghettifunk/vkframe/engine/renderer/metadata"
)

type Backend struct {
	// Calls is the ordered log of every backend and handle call.
	Calls []string

	Images    uint32
	Width     uint32
	Height    uint32
	Alignment uint64

	// AcquireScript is consumed by AcquireNextImage. When it runs out,
	// images are handed out round robin.
	AcquireScript []uint32
	// AcquireErrors and PresentErrors are returned once each, in order,
	// before the call does anything else.
	AcquireErrors []error
	PresentErrors []error
	InitErr       error
	// CreateErrors fails the named create call, e.g. "create-uniform-buffer".
	CreateErrors map[string]error
	// Hung stops submitted work from ever completing.
	Hung bool

	Config          renderer.BackendConfig
	Initialized     bool
	Recreated       int
	MaxOutstanding  int
	acquireCount    uint32
	fences          []*Fence
	Geometries      []*Geometry
	Textures        []*Texture
	Pools           []*DescriptorPool
	UniformBuffers  []*UniformBuffer
	CommandBuffers  []*CommandBuffer
	nextSemaphoreID int
}

func New() *Backend {
	return &Backend{
		Images:    3,
		Width:     1280,
		Height:    720,
		Alignment: 64,
	}
}

func (b *Backend) fail(op string) error {
	if err, ok := b.CreateErrors[op]; ok {
		b.record("%s-error", op)
		return err
	}
	return nil
}

func (b *Backend) record(format string, args ...interface{}) {
	b.Calls = append(b.Calls, fmt.Sprintf(format, args...))
}

// Reset forgets the recorded calls.
func (b *Backend) Reset() {
	b.Calls = nil
}

// Outstanding returns the number of submitted fences not yet waited on.
func (b *Backend) Outstanding() int {
	n := 0
	for _, f := range b.fences {
		if f.pending {
			n++
		}
	}
	return n
}

func (b *Backend) Initialize(config renderer.BackendConfig) error {
	if b.InitErr != nil {
		return b.InitErr
	}
	b.Config = config
	b.Initialized = true
	b.record("initialize")
	return nil
}

func (b *Backend) Shutdown() error {
	b.Initialized = false
	b.record("shutdown")
	return nil
}

func (b *Backend) Resized(width, height uint32) {
	b.Width, b.Height = width, height
	b.record("resized:%dx%d", width, height)
}

func (b *Backend) FramebufferSize() (uint32, uint32) {
	return b.Width, b.Height
}

func (b *Backend) ImageCount() uint32 {
	return b.Images
}

func (b *Backend) MinUniformBufferOffsetAlignment() uint64 {
	return b.Alignment
}

func (b *Backend) RecreateSwapchain() error {
	b.Recreated++
	b.acquireCount = 0
	b.record("recreate-swapchain")
	return nil
}

func (b *Backend) CreateFence(signaled bool) (renderer.Fence, error) {
	if err := b.fail("create-fence"); err != nil {
		return nil, err
	}
	f := &Fence{ID: len(b.fences), signaled: signaled, b: b}
	b.fences = append(b.fences, f)
	b.record("create-fence:%d", f.ID)
	return f, nil
}

func (b *Backend) CreateSemaphore() (renderer.Semaphore, error) {
	if err := b.fail("create-semaphore"); err != nil {
		return nil, err
	}
	s := &Semaphore{ID: b.nextSemaphoreID, b: b}
	b.nextSemaphoreID++
	return s, nil
}

func (b *Backend) CreateCommandBuffer() (renderer.CommandBuffer, error) {
	if err := b.fail("create-command-buffer"); err != nil {
		return nil, err
	}
	cb := &CommandBuffer{ID: len(b.CommandBuffers), b: b}
	b.CommandBuffers = append(b.CommandBuffers, cb)
	return cb, nil
}

func (b *Backend) CreateUniformBuffer(size uint64) (renderer.UniformBuffer, error) {
	if err := b.fail("create-uniform-buffer"); err != nil {
		return nil, err
	}
	ub := &UniformBuffer{ID: len(b.UniformBuffers), Data: make([]byte, size), b: b}
	b.UniformBuffers = append(b.UniformBuffers, ub)
	b.record("create-uniform-buffer:%d:%d", ub.ID, size)
	return ub, nil
}

func (b *Backend) CreateGeometry(vertices []metadata.Vertex, indices []uint32) (renderer.Geometry, error) {
	g := &Geometry{ID: len(b.Geometries), Vertices: len(vertices), Indices: uint32(len(indices)), b: b}
	b.Geometries = append(b.Geometries, g)
	b.record("create-geometry:%d", g.ID)
	return g, nil
}

func (b *Backend) CreateTexture(name string, image *metadata.ImageData) (renderer.Texture, error) {
	t := &Texture{ID: len(b.Textures), name: name, Width: image.Width, Height: image.Height, b: b}
	b.Textures = append(b.Textures, t)
	b.record("create-texture:%d", t.ID)
	return t, nil
}

func (b *Backend) CreateDescriptorPool(class renderer.DescriptorClass, maxSets uint32) (renderer.DescriptorPool, error) {
	p := &DescriptorPool{ID: len(b.Pools), Class: class, MaxSets: maxSets, b: b}
	b.Pools = append(b.Pools, p)
	b.record("create-pool:%s:%d", class, maxSets)
	return p, nil
}

func (b *Backend) AcquireNextImage(signal renderer.Semaphore, timeoutNs uint64) (renderer.ImageIndex, error) {
	if len(b.AcquireErrors) > 0 {
		err := b.AcquireErrors[0]
		b.AcquireErrors = b.AcquireErrors[1:]
		b.record("acquire-error")
		return 0, err
	}
	var image uint32
	if len(b.AcquireScript) > 0 {
		image = b.AcquireScript[0]
		b.AcquireScript = b.AcquireScript[1:]
	} else {
		image = b.acquireCount % b.Images
	}
	b.acquireCount++
	b.record("acquire:%d:signal%d", image, signal.(*Semaphore).ID)
	return renderer.ImageIndex(image), nil
}

func (b *Backend) Submit(commandBuffer renderer.CommandBuffer, wait, signal renderer.Semaphore, fence renderer.Fence) error {
	f := fence.(*Fence)
	f.pending = true
	if n := b.Outstanding(); n > b.MaxOutstanding {
		b.MaxOutstanding = n
	}
	b.record("submit:cb%d:wait%d:signal%d:fence%d", commandBuffer.(*CommandBuffer).ID, wait.(*Semaphore).ID, signal.(*Semaphore).ID, f.ID)
	return nil
}

func (b *Backend) Present(image renderer.ImageIndex, wait renderer.Semaphore) error {
	if len(b.PresentErrors) > 0 {
		err := b.PresentErrors[0]
		b.PresentErrors = b.PresentErrors[1:]
		b.record("present-error:%d", image)
		return err
	}
	b.record("present:%d:wait%d", image, wait.(*Semaphore).ID)
	return nil
}

func (b *Backend) WaitIdle() error {
	for _, f := range b.fences {
		if f.pending {
			f.pending = false
			f.signaled = true
		}
	}
	b.record("wait-idle")
	return nil
}

type Fence struct {
	ID        int
	signaled  bool
	pending   bool
	Destroyed bool
	b         *Backend
}

func (f *Fence) Wait(timeoutNs uint64) error {
	f.b.record("wait-fence:%d", f.ID)
	if f.pending && !f.b.Hung {
		f.pending = false
		f.signaled = true
	}
	if !f.signaled {
		// Nothing was submitted, so the fence would never signal.
		return core.ErrFenceTimeout
	}
	return nil
}

func (f *Fence) Reset() error {
	f.signaled = false
	f.b.record("reset-fence:%d", f.ID)
	return nil
}

func (f *Fence) IsSignaled() bool {
	return f.signaled
}

func (f *Fence) Destroy() {
	f.Destroyed = true
	f.b.record("destroy-fence:%d", f.ID)
}

type Semaphore struct {
	ID int
	b  *Backend
}

func (s *Semaphore) Destroy() {
	s.b.record("destroy-semaphore:%d", s.ID)
}

type CommandBuffer struct {
	ID int
	b  *Backend
}

func (cb *CommandBuffer) Begin(singleUse bool) error {
	cb.b.record("begin-cb:%d", cb.ID)
	return nil
}

func (cb *CommandBuffer) BeginRenderPass(image renderer.ImageIndex, clearColor [4]float32) {
	cb.b.record("begin-pass:%d", image)
}

func (cb *CommandBuffer) SetViewport(width, height uint32) {
	cb.b.record("viewport:%dx%d", width, height)
}

func (cb *CommandBuffer) BindPipeline() {
	cb.b.record("bind-pipeline")
}

func (cb *CommandBuffer) BindDescriptorSet(set uint32, ds renderer.DescriptorSet) {
	cb.b.record("bind-set:%d:%s", set, ds.(*DescriptorSet).Name())
}

func (cb *CommandBuffer) BindGeometry(g renderer.Geometry) {
	cb.b.record("bind-geometry:%d", g.(*Geometry).ID)
}

func (cb *CommandBuffer) DrawIndexed(indexCount uint32) {
	cb.b.record("draw-indexed:%d", indexCount)
}

func (cb *CommandBuffer) EndRenderPass() {
	cb.b.record("end-pass")
}

func (cb *CommandBuffer) End() error {
	cb.b.record("end-cb:%d", cb.ID)
	return nil
}

func (cb *CommandBuffer) Reset() error {
	cb.b.record("reset-cb:%d", cb.ID)
	return nil
}

func (cb *CommandBuffer) Free() {
	cb.b.record("free-cb:%d", cb.ID)
}

type UniformBuffer struct {
	ID        int
	Data      []byte
	Writes    int
	Destroyed bool
	b         *Backend
}

func (ub *UniformBuffer) Write(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > uint64(len(ub.Data)) {
		return fmt.Errorf("write of %d bytes at %d overflows buffer of %d", len(data), offset, len(ub.Data))
	}
	copy(ub.Data[offset:], data)
	ub.Writes++
	ub.b.record("write-uniform:%d:%d:%d", ub.ID, offset, len(data))
	return nil
}

func (ub *UniformBuffer) Size() uint64 {
	return uint64(len(ub.Data))
}

func (ub *UniformBuffer) Destroy() {
	ub.Destroyed = true
	ub.b.record("destroy-uniform-buffer:%d", ub.ID)
}

type Geometry struct {
	ID        int
	Vertices  int
	Indices   uint32
	Destroyed bool
	b         *Backend
}

func (g *Geometry) IndexCount() uint32 {
	return g.Indices
}

func (g *Geometry) Destroy() {
	g.Destroyed = true
	g.b.record("destroy-geometry:%d", g.ID)
}

type Texture struct {
	ID        int
	Width     uint32
	Height    uint32
	Destroyed bool
	name      string
	b         *Backend
}

func (t *Texture) Name() string {
	return t.name
}

func (t *Texture) Destroy() {
	t.Destroyed = true
	t.b.record("destroy-texture:%d", t.ID)
}

type DescriptorPool struct {
	ID        int
	Class     renderer.DescriptorClass
	MaxSets   uint32
	Sets      []*DescriptorSet
	Destroyed bool
	b         *Backend
}

func (p *DescriptorPool) Allocate() (renderer.DescriptorSet, error) {
	if uint32(len(p.Sets)) >= p.MaxSets {
		return nil, fmt.Errorf("descriptor pool %d exhausted", p.ID)
	}
	ds := &DescriptorSet{Pool: p, Index: len(p.Sets), Uniforms: map[uint32][2]uint64{}, Textures: map[uint32]*Texture{}}
	p.Sets = append(p.Sets, ds)
	return ds, nil
}

func (p *DescriptorPool) Destroy() {
	p.Destroyed = true
	p.b.record("destroy-pool:%d", p.ID)
}

type DescriptorSet struct {
	Pool  *DescriptorPool
	Index int
	// Uniforms maps a binding to its {offset, range}.
	Uniforms map[uint32][2]uint64
	Textures map[uint32]*Texture
}

// Name is "<class><pool>.<index>", e.g. "material0.3".
func (ds *DescriptorSet) Name() string {
	return fmt.Sprintf("%s%d.%d", ds.Pool.Class, ds.Pool.ID, ds.Index)
}

func (ds *DescriptorSet) WriteUniformBuffer(binding uint32, buffer renderer.UniformBuffer, offset, size uint64) {
	ds.Uniforms[binding] = [2]uint64{offset, size}
}

func (ds *DescriptorSet) WriteTexture(binding uint32, texture renderer.Texture) {
	ds.Textures[binding] = texture.(*Texture)
}

// Images is an ImageSource returning a 2x2 image for every path not in
// Missing.
type Images struct {
	Loaded  []string
	Missing map[string]bool
}

func (s *Images) LoadImage(path string) (*metadata.ImageData, error) {
	if s.Missing[path] {
		return nil, fmt.Errorf("image `%s` not found", path)
	}
	s.Loaded = append(s.Loaded, path)
	return &metadata.ImageData{Width: 2, Height: 2, ChannelCount: 4, Pixels: make([]uint8, 16)}, nil
}
