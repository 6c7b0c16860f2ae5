package testbed

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/vkframe/engine"
	"github.com/spaghettifunk/vkframe/engine/core"
	"github.com/spaghettifunk/vkframe/engine/renderer/components"
	"github.com/spaghettifunk/vkframe/engine/renderer/metadata"
)

const (
	// Uniform layout shared with the shaders: view and projection at
	// binding 0, the model matrix at binding 1.
	passUniformOffset   = 0
	objectUniformOffset = 256

	materialName = "checker"
	texturePath  = "textures/checker.png"
	modelPath    = "models/quad.obj"

	moveSpeed   float32 = 5.0
	turnSpeed   float32 = 1.0
	spinSpeed   float32 = 0.5
	fieldOfView float32 = 45.0
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	camera     *components.Camera
	projection mgl32.Mat4
	width      uint32
	height     uint32
	rotation   float32

	mesh     metadata.ResourceID
	material metadata.ResourceID
}

func NewTestGame() *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			State: &gameState{
				camera: components.NewCamera(),
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize() error {
	core.LogInfo("initializing testbed...")
	state := g.state()
	state.camera.SetPosition(mgl32.Vec3{0, 0, 3})

	mesh, err := g.loadMesh()
	if err != nil {
		return err
	}
	if state.mesh, err = g.RenderSystem.CreateMesh(mesh.Name, mesh.Vertices, mesh.Indices); err != nil {
		return err
	}

	if err := ensureCheckerTexture(g.Assets.Resolve(texturePath)); err != nil {
		return err
	}
	if state.material, err = g.RenderSystem.LoadMaterial(materialName, []string{texturePath}); err != nil {
		return err
	}

	core.EventRegister(core.EVENT_CODE_ASSET_CHANGED, g.onAssetChanged)
	return nil
}

// loadMesh prefers the OBJ in the assets directory and falls back to a
// generated quad.
func (g *TestGame) loadMesh() (*metadata.MeshData, error) {
	mesh, err := g.Assets.LoadMesh(modelPath)
	if err == nil {
		return mesh, nil
	}
	if !errors.Is(err, core.ErrAssetNotFound) {
		return nil, err
	}
	core.LogWarn("%s not found, using a generated quad", modelPath)
	quad := metadata.Quad(2)
	return &quad, nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.state()
	dt := float32(deltaTime)

	if core.InputIsKeyDown(core.KEY_LEFT) {
		state.camera.Yaw(turnSpeed * dt)
	}
	if core.InputIsKeyDown(core.KEY_RIGHT) {
		state.camera.Yaw(-turnSpeed * dt)
	}
	if core.InputIsKeyDown(core.KEY_UP) {
		state.camera.Pitch(turnSpeed * dt)
	}
	if core.InputIsKeyDown(core.KEY_DOWN) {
		state.camera.Pitch(-turnSpeed * dt)
	}
	if core.InputIsKeyDown(core.KEY_W) {
		state.camera.MoveForward(moveSpeed * dt)
	}
	if core.InputIsKeyDown(core.KEY_S) {
		state.camera.MoveBackward(moveSpeed * dt)
	}
	if core.InputIsKeyDown(core.KEY_A) {
		state.camera.MoveLeft(moveSpeed * dt)
	}
	if core.InputIsKeyDown(core.KEY_D) {
		state.camera.MoveRight(moveSpeed * dt)
	}
	if core.InputIsKeyDown(core.KEY_SPACE) {
		state.camera.MoveUp(moveSpeed * dt)
	}
	if !core.InputIsKeyDown(core.KEY_R) && core.InputWasKeyDown(core.KEY_R) {
		state.camera.Reset()
		state.camera.SetPosition(mgl32.Vec3{0, 0, 3})
		pos := state.camera.GetPosition()
		core.LogDebug("camera reset to [%.2f, %.2f, %.2f]", pos.X(), pos.Y(), pos.Z())
	}

	state.rotation = float32(math.Mod(float64(state.rotation+spinSpeed*dt), 2*math.Pi))
	return nil
}

// Render describes one pass with the camera matrices and a single spinning
// object.
func (g *TestGame) Render(frame *metadata.Frame, deltaTime float64) error {
	state := g.state()
	model := mgl32.HomogRotate3DY(state.rotation)

	frame.Passes = append(frame.Passes, metadata.Pass{
		Uniforms: metadata.UniformBlock{
			Offset: passUniformOffset,
			Data:   matrixBytes(state.camera.GetView(), state.projection),
		},
		Objects: []metadata.RenderObject{
			{
				Mesh:     state.mesh,
				Material: state.material,
				Uniforms: metadata.UniformBlock{
					Offset: objectUniformOffset,
					Data:   matrixBytes(model),
				},
			},
		},
	})
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.state()
	state.width = width
	state.height = height
	if width == 0 || height == 0 {
		return nil
	}
	state.projection = projection(width, height)
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("shutting down testbed")
	return nil
}

// onAssetChanged reloads the material when its texture is edited on disk.
func (g *TestGame) onAssetChanged(context core.EventContext) bool {
	ae, ok := context.Data.(*core.AssetEvent)
	if !ok || ae.Removed || ae.Path != g.Assets.Resolve(texturePath) {
		return false
	}
	if _, err := g.RenderSystem.LoadMaterial(materialName, []string{texturePath}); err != nil {
		core.LogError("failed to reload material `%s`: %s", materialName, err)
		return false
	}
	core.LogInfo("material `%s` reloaded", materialName)
	return false
}

// projection is a right handed perspective with Y flipped for Vulkan's
// clip space.
func projection(width, height uint32) mgl32.Mat4 {
	p := mgl32.Perspective(mgl32.DegToRad(fieldOfView), float32(width)/float32(height), 0.1, 1000.0)
	p[5] *= -1
	return p
}

func matrixBytes(ms ...mgl32.Mat4) []byte {
	buf := make([]byte, 0, len(ms)*64)
	for _, m := range ms {
		for _, f := range m {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
		}
	}
	return buf
}

func ensureCheckerTexture(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	if err := WriteChecker(f, 256, 32); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	core.LogInfo("generated %s", path)
	return nil
}
