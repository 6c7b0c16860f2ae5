package renderer_test

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vkframe/engine/core"
	"github.com/spaghettifunk/vkframe/engine/renderer"
	"github.com/spaghettifunk/vkframe/engine/renderer/backendtest"
	"github.com/spaghettifunk/vkframe/engine/renderer/metadata"
)

func testConfig() renderer.Config {
	return renderer.Config{
		Backend: renderer.BackendConfig{
			ApplicationName: "test",
			Width:           1280,
			Height:          720,
			Uniforms: metadata.UniformBufferDescriptor{
				Size: 192,
				Bindings: []metadata.UniformBinding{
					{Binding: 0, Offset: 0, Range: 128},
					{Binding: 1, Offset: 128, Range: 64},
				},
			},
			TextureSlots: 2,
		},
		ClearColor:     [4]float32{0, 0, 0, 1},
		FenceTimeout:   math.MaxUint64,
		PassBudget:     4,
		MaterialBudget: 2,
	}
}

func newSystem(t *testing.T) (*renderer.RenderSystem, *backendtest.Backend, *backendtest.Images) {
	t.Helper()
	b := backendtest.New()
	images := &backendtest.Images{}
	rs := renderer.New(b, images, testConfig())
	require.NoError(t, rs.Init())
	return rs, b, images
}

func triangle() ([]metadata.Vertex, []uint32) {
	return []metadata.Vertex{{}, {}, {}}, []uint32{0, 1, 2}
}

func createQuad(t *testing.T, rs *renderer.RenderSystem, name string) metadata.ResourceID {
	t.Helper()
	quad := metadata.Quad(1)
	id, err := rs.CreateMesh(name, quad.Vertices, quad.Indices)
	require.NoError(t, err)
	return id
}

func createMaterial(t *testing.T, rs *renderer.RenderSystem, name string) metadata.ResourceID {
	t.Helper()
	id, err := rs.LoadMaterial(name, []string{name + ".png"})
	require.NoError(t, err)
	return id
}

func block(offset uint64, size int) metadata.UniformBlock {
	return metadata.UniformBlock{Offset: offset, Data: make([]byte, size)}
}

// filter keeps the calls starting with one of the prefixes.
func filter(calls []string, prefixes ...string) []string {
	var out []string
	for _, c := range calls {
		for _, p := range prefixes {
			if strings.HasPrefix(c, p) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func indexOf(t *testing.T, calls []string, call string) int {
	t.Helper()
	for i, c := range calls {
		if c == call {
			return i
		}
	}
	t.Fatalf("call %q not recorded in %v", call, calls)
	return -1
}

func TestSingleQuadFrame(t *testing.T) {
	rs, b, _ := newSystem(t)
	mesh := createQuad(t, rs, "quad")
	mat := createMaterial(t, rs, "checker")
	b.Reset()

	frame := &metadata.Frame{Passes: []metadata.Pass{{
		Uniforms: block(0, 128),
		Objects: []metadata.RenderObject{
			{Mesh: mesh, Material: mat, Uniforms: block(128, 64)},
		},
	}}}
	require.NoError(t, rs.DrawFrame(frame))

	assert.Equal(t, []string{
		"wait-fence:0",
		"acquire:0:signal0",
		"reset-cb:0",
		"begin-cb:0",
		"begin-pass:0",
		"viewport:1280x720",
		"bind-pipeline",
		"write-uniform:0:0:128",
		"bind-set:0:pass0.0",
		"write-uniform:0:128:64",
		"bind-geometry:0",
		"bind-set:1:material1.0",
		"draw-indexed:6",
		"end-pass",
		"end-cb:0",
		"reset-fence:0",
		"submit:cb0:wait0:signal1:fence0",
		"present:0:wait1",
	}, b.Calls)
	assert.Equal(t, renderer.SlotIndex(1), rs.CurrentSlot())
	assert.Equal(t, uint64(1), rs.FrameNumber())
	assert.Equal(t, renderer.SlotSubmitted, rs.SlotState(0))
}

func TestEmptyFrameStillPresents(t *testing.T) {
	rs, b, _ := newSystem(t)
	b.Reset()

	require.NoError(t, rs.DrawFrame(&metadata.Frame{}))
	require.NoError(t, rs.DrawFrame(nil))

	assert.Empty(t, filter(b.Calls, "draw-indexed", "write-uniform"))
	assert.Equal(t, []string{"begin-pass:0", "present:0:wait1", "begin-pass:1", "present:1:wait3"}, filter(b.Calls, "begin-pass", "present"))
}

func TestSlotsRotateAndWaitBeforeRecording(t *testing.T) {
	rs, b, _ := newSystem(t)
	b.Reset()

	for i := 0; i < renderer.MaxFramesInFlight+1; i++ {
		require.NoError(t, rs.DrawFrame(&metadata.Frame{}))
	}

	assert.Equal(t, []string{
		"wait-fence:0", "begin-cb:0",
		"wait-fence:1", "begin-cb:1",
		"wait-fence:0", "begin-cb:0",
	}, filter(b.Calls, "wait-fence", "begin-cb"))

	// each slot acquires, submits and presents with its own semaphore pair
	assert.Equal(t, []string{
		"acquire:0:signal0", "submit:cb0:wait0:signal1:fence0", "present:0:wait1",
		"acquire:1:signal2", "submit:cb1:wait2:signal3:fence1", "present:1:wait3",
		"acquire:2:signal0", "submit:cb0:wait0:signal1:fence0", "present:2:wait1",
	}, filter(b.Calls, "acquire", "submit", "present"))
}

func TestInFlightFramesAreBounded(t *testing.T) {
	b := backendtest.New()
	b.Images = 4
	rs := renderer.New(b, &backendtest.Images{}, testConfig())
	require.NoError(t, rs.Init())
	b.AcquireScript = []uint32{0, 3, 1, 1, 2, 0, 3, 3, 2, 1, 0, 2}

	for i := 0; i < 12; i++ {
		require.NoError(t, rs.DrawFrame(&metadata.Frame{}))
		assert.LessOrEqual(t, b.Outstanding(), renderer.MaxFramesInFlight)
	}
	assert.Equal(t, renderer.MaxFramesInFlight, b.MaxOutstanding)
}

func TestImageInUseByOtherSlotIsWaitedOn(t *testing.T) {
	rs, b, _ := newSystem(t)
	b.AcquireScript = []uint32{0, 1, 1}

	require.NoError(t, rs.DrawFrame(&metadata.Frame{}))
	require.NoError(t, rs.DrawFrame(&metadata.Frame{}))
	b.Reset()
	require.NoError(t, rs.DrawFrame(&metadata.Frame{}))

	// slot 0 draws into image 1, which slot 1 rendered last
	assert.Equal(t, []string{"wait-fence:0", "acquire:1:signal0", "wait-fence:1", "reset-cb:0"}, b.Calls[:4])
}

func TestImageReusedBySameSlotIsNotWaitedTwice(t *testing.T) {
	rs, b, _ := newSystem(t)
	b.AcquireScript = []uint32{0, 1, 0}

	require.NoError(t, rs.DrawFrame(&metadata.Frame{}))
	require.NoError(t, rs.DrawFrame(&metadata.Frame{}))
	b.Reset()
	require.NoError(t, rs.DrawFrame(&metadata.Frame{}))

	assert.Equal(t, []string{"wait-fence:0"}, filter(b.Calls, "wait-fence"))
}

func TestDrawOrderFollowsFrame(t *testing.T) {
	rs, b, _ := newSystem(t)
	quad := createQuad(t, rs, "quad")
	vertices, indices := triangle()
	tri, err := rs.CreateMesh("triangle", vertices, indices)
	require.NoError(t, err)
	stone := createMaterial(t, rs, "stone")
	wood := createMaterial(t, rs, "wood")

	frame := &metadata.Frame{Passes: []metadata.Pass{
		{Objects: []metadata.RenderObject{
			{Mesh: tri, Material: wood},
			{Mesh: quad, Material: stone},
		}},
		{Objects: []metadata.RenderObject{
			{Mesh: quad, Material: wood},
		}},
	}}

	var recorded [][]string
	for i := 0; i < 2; i++ {
		b.Reset()
		require.NoError(t, rs.DrawFrame(frame))
		recorded = append(recorded, filter(b.Calls, "bind-geometry", "bind-set:1", "draw-indexed"))
	}

	expected := []string{
		"bind-geometry:1", "bind-set:1:material1.1", "draw-indexed:3",
		"bind-geometry:0", "bind-set:1:material1.0", "draw-indexed:6",
		"bind-geometry:0", "bind-set:1:material1.1", "draw-indexed:6",
	}
	assert.Equal(t, expected, recorded[0])
	assert.Equal(t, recorded[0], recorded[1])
	assert.Equal(t, 3, frame.DrawCount())
}

func TestResourceIDs(t *testing.T) {
	rs, _, _ := newSystem(t)

	quad := createQuad(t, rs, "quad")
	other := createQuad(t, rs, "other")
	assert.NotEqual(t, metadata.InvalidResourceID, quad)
	assert.NotEqual(t, quad, other)

	id, ok := rs.MeshID("quad")
	assert.True(t, ok)
	assert.Equal(t, quad, id)
	assert.Equal(t, quad, createQuad(t, rs, "quad"))

	_, ok = rs.MeshID("missing")
	assert.False(t, ok)

	mat := createMaterial(t, rs, "checker")
	id, ok = rs.MaterialID("checker")
	assert.True(t, ok)
	assert.Equal(t, mat, id)
	_, ok = rs.MaterialID("quad")
	assert.False(t, ok)
}

func TestInvalidFramesRecordNothing(t *testing.T) {
	rs, b, _ := newSystem(t)
	mesh := createQuad(t, rs, "quad")
	mat := createMaterial(t, rs, "checker")

	tests := []struct {
		name  string
		frame *metadata.Frame
		err   error
	}{
		{
			name: "unknown mesh",
			frame: &metadata.Frame{Passes: []metadata.Pass{{Objects: []metadata.RenderObject{
				{Mesh: 99, Material: mat},
			}}}},
			err: core.ErrUnknownMesh,
		},
		{
			name: "unknown material",
			frame: &metadata.Frame{Passes: []metadata.Pass{{Objects: []metadata.RenderObject{
				{Mesh: mesh, Material: 99},
			}}}},
			err: core.ErrUnknownMaterial,
		},
		{
			name: "object uniforms straddle bindings",
			frame: &metadata.Frame{Passes: []metadata.Pass{{Objects: []metadata.RenderObject{
				{Mesh: mesh, Material: mat, Uniforms: block(120, 16)},
			}}}},
			err: core.ErrUniformOutOfBounds,
		},
		{
			name: "pass uniforms past the buffer",
			frame: &metadata.Frame{Passes: []metadata.Pass{{
				Uniforms: block(128, 65),
			}}},
			err: core.ErrUniformOutOfBounds,
		},
		{
			name: "bad object in a later pass",
			frame: &metadata.Frame{Passes: []metadata.Pass{
				{Objects: []metadata.RenderObject{{Mesh: mesh, Material: mat}}},
				{Objects: []metadata.RenderObject{{Mesh: mesh, Material: mat, Uniforms: block(1024, 4)}}},
			}},
			err: core.ErrUniformOutOfBounds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b.Reset()
			err := rs.DrawFrame(tt.frame)
			assert.ErrorIs(t, err, tt.err)
			assert.Empty(t, b.Calls)
		})
	}
	assert.Equal(t, renderer.SlotIndex(0), rs.CurrentSlot())
}

func TestUniformWritesLandInSlotBuffer(t *testing.T) {
	rs, b, _ := newSystem(t)
	mesh := createQuad(t, rs, "quad")
	mat := createMaterial(t, rs, "checker")

	payload := []byte{1, 2, 3, 4}
	frame := func(v byte) *metadata.Frame {
		return &metadata.Frame{Passes: []metadata.Pass{{Objects: []metadata.RenderObject{
			{Mesh: mesh, Material: mat, Uniforms: metadata.UniformBlock{Offset: 132, Data: append([]byte{v}, payload...)}},
		}}}}
	}
	require.NoError(t, rs.DrawFrame(frame(7)))
	require.NoError(t, rs.DrawFrame(frame(9)))

	// each slot owns its buffer
	assert.Equal(t, []byte{7, 1, 2, 3, 4}, b.UniformBuffers[0].Data[132:137])
	assert.Equal(t, []byte{9, 1, 2, 3, 4}, b.UniformBuffers[1].Data[132:137])

	// the pass set of each slot points at the declared bindings
	pool := b.Pools[0]
	require.Len(t, pool.Sets, renderer.MaxFramesInFlight)
	for _, set := range pool.Sets {
		assert.Equal(t, [2]uint64{0, 128}, set.Uniforms[0])
		assert.Equal(t, [2]uint64{128, 64}, set.Uniforms[1])
	}
}

func TestMeshReplacementLastWriteWins(t *testing.T) {
	rs, b, _ := newSystem(t)
	first := createQuad(t, rs, "mesh")
	mat := createMaterial(t, rs, "checker")
	frame := &metadata.Frame{Passes: []metadata.Pass{{Objects: []metadata.RenderObject{
		{Mesh: first, Material: mat},
	}}}}
	require.NoError(t, rs.DrawFrame(frame))

	b.Reset()
	vertices, indices := triangle()
	second, err := rs.CreateMesh("mesh", vertices, indices)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Less(t, indexOf(t, b.Calls, "wait-idle"), indexOf(t, b.Calls, "destroy-geometry:0"))
	assert.True(t, b.Geometries[0].Destroyed)
	assert.False(t, b.Geometries[1].Destroyed)

	b.Reset()
	require.NoError(t, rs.DrawFrame(frame))
	assert.Equal(t, []string{"bind-geometry:1", "draw-indexed:3"}, filter(b.Calls, "bind-geometry", "draw-indexed"))
}

func TestCreateMeshRejectsBadInput(t *testing.T) {
	rs, b, _ := newSystem(t)

	_, err := rs.CreateMesh("empty", nil, []uint32{0})
	assert.ErrorIs(t, err, core.ErrEmptyMesh)
	_, err = rs.CreateMesh("empty", []metadata.Vertex{{}}, nil)
	assert.ErrorIs(t, err, core.ErrEmptyMesh)
	_, err = rs.CreateMesh("broken", []metadata.Vertex{{}, {}}, []uint32{0, 1, 2})
	assert.ErrorIs(t, err, core.ErrIndexOutOfRange)

	assert.Empty(t, b.Geometries)
	_, ok := rs.MeshID("empty")
	assert.False(t, ok)
}

func TestLoadMaterial(t *testing.T) {
	rs, b, images := newSystem(t)

	_, err := rs.LoadMaterial("none", nil)
	assert.ErrorIs(t, err, core.ErrNoTextures)
	_, err = rs.LoadMaterial("many", []string{"a", "b", "c"})
	assert.ErrorIs(t, err, core.ErrTooManyTextures)

	images.Missing = map[string]bool{"missing.png": true}
	_, err = rs.LoadMaterial("partial", []string{"ok.png", "missing.png"})
	assert.Error(t, err)
	require.Len(t, b.Textures, 1)
	assert.True(t, b.Textures[0].Destroyed)
	_, ok := rs.MaterialID("partial")
	assert.False(t, ok)

	id, err := rs.LoadMaterial("single", []string{"single.png"})
	require.NoError(t, err)
	assert.NotEqual(t, metadata.InvalidResourceID, id)

	set := b.Pools[1].Sets[0]
	require.Len(t, set.Textures, 2)
	// unused slots repeat the last texture
	assert.Same(t, set.Textures[0], set.Textures[1])
	assert.True(t, strings.HasPrefix(set.Textures[0].Name(), "single/"))
}

func TestMaterialReplacementReusesDescriptorSets(t *testing.T) {
	rs, b, _ := newSystem(t)

	first := createMaterial(t, rs, "checker")
	second := createMaterial(t, rs, "checker")
	assert.Equal(t, first, second)
	assert.True(t, b.Textures[0].Destroyed)
	assert.False(t, b.Textures[1].Destroyed)

	stats := rs.Descriptors().Stats(renderer.DescriptorClassMaterial)
	assert.Equal(t, renderer.DescriptorStats{Pools: 1, Live: 1, Free: 1, HighWater: 2}, stats)

	createMaterial(t, rs, "checker")
	stats = rs.Descriptors().Stats(renderer.DescriptorClassMaterial)
	assert.Equal(t, 1, stats.Pools)
	assert.Equal(t, 1, stats.Live)
}

func TestSwapchainOutOfDateOnAcquire(t *testing.T) {
	rs, b, _ := newSystem(t)
	b.AcquireErrors = []error{fmt.Errorf("acquire: %w", core.ErrSwapchainOutOfDate)}

	err := rs.DrawFrame(&metadata.Frame{})
	assert.ErrorIs(t, err, core.ErrSwapchainBooting)
	assert.ErrorIs(t, err, core.ErrSwapchainOutOfDate)
	assert.Equal(t, renderer.SlotIdle, rs.SlotState(0))
	assert.Equal(t, renderer.SlotIndex(0), rs.CurrentSlot())

	b.Reset()
	err = rs.DrawFrame(&metadata.Frame{})
	assert.ErrorIs(t, err, core.ErrSwapchainBooting)
	assert.Equal(t, []string{"wait-idle", "recreate-swapchain"}, b.Calls)
	assert.Equal(t, 1, b.Recreated)

	require.NoError(t, rs.DrawFrame(&metadata.Frame{}))
}

func TestSwapchainOutOfDateOnPresent(t *testing.T) {
	rs, b, _ := newSystem(t)
	b.PresentErrors = []error{core.ErrSwapchainOutOfDate}

	require.NoError(t, rs.DrawFrame(&metadata.Frame{}))
	assert.Equal(t, renderer.SlotIndex(1), rs.CurrentSlot())

	assert.ErrorIs(t, rs.DrawFrame(&metadata.Frame{}), core.ErrSwapchainBooting)
	assert.Equal(t, 1, b.Recreated)
	require.NoError(t, rs.DrawFrame(&metadata.Frame{}))
}

func TestResize(t *testing.T) {
	rs, b, _ := newSystem(t)

	rs.Resize(0, 0)
	assert.ErrorIs(t, rs.DrawFrame(&metadata.Frame{}), core.ErrSwapchainBooting)
	assert.Equal(t, 0, b.Recreated)

	rs.Resize(800, 600)
	assert.ErrorIs(t, rs.DrawFrame(&metadata.Frame{}), core.ErrSwapchainBooting)
	assert.Equal(t, 1, b.Recreated)

	w, h := rs.GetWindowDimensions()
	assert.Equal(t, uint32(800), w)
	assert.Equal(t, uint32(600), h)

	b.Reset()
	require.NoError(t, rs.DrawFrame(&metadata.Frame{}))
	assert.Contains(t, b.Calls, "viewport:800x600")
}

func TestFenceTimeout(t *testing.T) {
	rs, b, _ := newSystem(t)
	require.NoError(t, rs.DrawFrame(&metadata.Frame{}))
	require.NoError(t, rs.DrawFrame(&metadata.Frame{}))

	b.Hung = true
	b.Reset()
	err := rs.DrawFrame(&metadata.Frame{})
	assert.ErrorIs(t, err, core.ErrFenceTimeout)
	assert.Equal(t, []string{"wait-fence:0"}, b.Calls)
}

func TestWaitIdle(t *testing.T) {
	rs, b, _ := newSystem(t)
	require.NoError(t, rs.DrawFrame(&metadata.Frame{}))
	assert.Equal(t, 1, b.Outstanding())

	require.NoError(t, rs.WaitIdle())
	assert.Equal(t, 0, b.Outstanding())
	assert.Equal(t, renderer.SlotIdle, rs.SlotState(0))
}

func TestCleanupOrder(t *testing.T) {
	rs, b, _ := newSystem(t)
	createQuad(t, rs, "quad")
	createMaterial(t, rs, "checker")
	require.NoError(t, rs.DrawFrame(&metadata.Frame{}))

	b.Reset()
	require.NoError(t, rs.Cleanup())

	order := []string{
		"wait-idle",
		"free-cb:0",
		"destroy-fence:1",
		"destroy-uniform-buffer:0",
		"destroy-uniform-buffer:1",
		"destroy-pool:0",
		"destroy-pool:1",
		"destroy-texture:0",
		"destroy-geometry:0",
		"shutdown",
	}
	for i := 1; i < len(order); i++ {
		assert.Less(t, indexOf(t, b.Calls, order[i-1]), indexOf(t, b.Calls, order[i]), "%s before %s", order[i-1], order[i])
	}
	assert.False(t, b.Initialized)
	assert.ErrorIs(t, rs.DrawFrame(&metadata.Frame{}), core.ErrNotInitialized)
}

func TestNotInitialized(t *testing.T) {
	rs := renderer.New(backendtest.New(), &backendtest.Images{}, testConfig())

	assert.ErrorIs(t, rs.DrawFrame(&metadata.Frame{}), core.ErrNotInitialized)
	_, err := rs.BeginFrame()
	assert.ErrorIs(t, err, core.ErrNotInitialized)
	_, err = rs.CreateMesh("quad", []metadata.Vertex{{}}, []uint32{0})
	assert.ErrorIs(t, err, core.ErrNotInitialized)
	assert.NoError(t, rs.Cleanup())
}

func TestInitRejectsMisalignedUniforms(t *testing.T) {
	b := backendtest.New()
	b.Alignment = 256
	rs := renderer.New(b, &backendtest.Images{}, testConfig())
	assert.Error(t, rs.Init())
}

func TestFailedInitShutsBackendDown(t *testing.T) {
	b := backendtest.New()
	b.Alignment = 256
	rs := renderer.New(b, &backendtest.Images{}, testConfig())

	require.Error(t, rs.Init())
	assert.False(t, b.Initialized)
	assert.Equal(t, []string{"initialize", "shutdown"}, b.Calls)

	b.Reset()
	require.NoError(t, rs.Cleanup())
	assert.Empty(t, b.Calls)
}

func TestFailedSlotCreationReleasesMembers(t *testing.T) {
	b := backendtest.New()
	b.CreateErrors = map[string]error{"create-uniform-buffer": errors.New("out of device memory")}
	rs := renderer.New(b, &backendtest.Images{}, testConfig())

	require.Error(t, rs.Init())
	assert.Equal(t, []string{
		"initialize",
		"create-fence:0",
		"create-uniform-buffer-error",
		"free-cb:0",
		"destroy-semaphore:0",
		"destroy-semaphore:1",
		"destroy-fence:0",
		"shutdown",
	}, b.Calls)
	assert.False(t, b.Initialized)

	// a later attempt starts from scratch
	b.CreateErrors = nil
	require.NoError(t, rs.Init())
	assert.True(t, b.Initialized)
	require.NoError(t, rs.DrawFrame(&metadata.Frame{}))
}

func TestFrameAbandonedAfterAcquireFaults(t *testing.T) {
	rs, b, _ := newSystem(t)
	b.AcquireScript = []uint32{7}

	err := rs.DrawFrame(&metadata.Frame{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrSwapchainBooting)
	assert.Equal(t, renderer.SlotIdle, rs.SlotState(0))

	// the slot's image available semaphore is still signaled
	b.Reset()
	assert.ErrorIs(t, rs.DrawFrame(&metadata.Frame{}), core.ErrRenderSystemFaulted)
	_, err = rs.BeginFrame()
	assert.ErrorIs(t, err, core.ErrRenderSystemFaulted)
	assert.Empty(t, filter(b.Calls, "acquire", "submit", "present"))

	require.NoError(t, rs.Cleanup())
	require.NoError(t, rs.Init())
	require.NoError(t, rs.DrawFrame(&metadata.Frame{}))
}

func TestEndFrameRequiresRecording(t *testing.T) {
	rs, _, _ := newSystem(t)
	assert.Error(t, rs.EndFrame(0))

	image, err := rs.BeginFrame()
	require.NoError(t, err)
	assert.Equal(t, renderer.SlotRecording, rs.SlotState(0))
	assert.Error(t, rs.EndFrame(image+1))
	require.NoError(t, rs.EndFrame(image))
}
