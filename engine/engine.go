package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spaghettifunk/vkframe/engine/assets"
	"github.com/spaghettifunk/vkframe/engine/config"
	"github.com/spaghettifunk/vkframe/engine/core"
	"github.com/spaghettifunk/vkframe/engine/platform"
	"github.com/spaghettifunk/vkframe/engine/renderer"
	"github.com/spaghettifunk/vkframe/engine/renderer/metadata"
	"github.com/spaghettifunk/vkframe/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// suspendedSleep is how long a minimised window sleeps between polls.
const suspendedSleep = 10 * time.Millisecond

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *config.Config
	sessionID    uuid.UUID
	isRunning    bool
	isSuspended  bool
	window       platform.Window
	assetManager *assets.AssetManager
	renderSystem *renderer.RenderSystem
	width        uint32
	height       uint32
	clock        *core.Clock
	metrics      *core.FrameMetrics
	lastTime     float64
}

func New(g *Game, cfg *config.Config) (*Engine, error) {
	if err := core.SetLogLevel(cfg.Log.Level); err != nil {
		return nil, err
	}

	if g.ApplicationConfig == nil {
		g.ApplicationConfig = NewApplicationConfig(cfg)
	}

	w, err := platform.New(g.ApplicationConfig.Backend)
	if err != nil {
		return nil, err
	}

	am, err := assets.NewAssetManager(cfg.Assets.Dir, cfg.Assets.Watch, cfg.Assets.FlipY)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	e := &Engine{
		currentStage: EngineStageBooting,
		gameInstance: g,
		config:       cfg,
		sessionID:    uuid.New(),
		clock:        core.NewClock(),
		metrics:      core.NewFrameMetrics(),
		window:       w,
		assetManager: am,
		isRunning:    true,
		isSuspended:  false,
		width:        g.ApplicationConfig.StartWidth,
		height:       g.ApplicationConfig.StartHeight,
		lastTime:     0,
	}
	core.LogInfo("session %s booting `%s` with the %s window backend", e.sessionID, g.ApplicationConfig.Name, g.ApplicationConfig.Backend)
	e.currentStage = EngineStageBootComplete
	return e, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	// initialize input
	if err := core.InputInitialize(); err != nil {
		return err
	}

	// initialize events
	if !core.EventSystemInitialize() {
		return fmt.Errorf("failed to initialize the event system")
	}

	// register some events
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e.onEvent)
	core.EventRegister(core.EVENT_CODE_KEY_PRESSED, e.onKey)
	core.EventRegister(core.EVENT_CODE_RESIZED, e.onResized)

	app := e.gameInstance.ApplicationConfig
	if err := e.window.Startup(app.Name, app.StartPosX, app.StartPosY, app.StartWidth, app.StartHeight); err != nil {
		return err
	}

	// initialize subsystems
	if err := e.assetManager.Initialize(); err != nil {
		return err
	}

	rc := e.config.Renderer
	vertex, err := e.assetManager.LoadShader(rc.VertexShader)
	if err != nil {
		return err
	}
	fragment, err := e.assetManager.LoadShader(rc.FragmentShader)
	if err != nil {
		return err
	}

	e.renderSystem = renderer.New(vulkan.New(e.window), e.assetManager, renderer.Config{
		Backend: renderer.BackendConfig{
			ApplicationName: app.Name,
			Width:           app.StartWidth,
			Height:          app.StartHeight,
			Debug:           rc.Debug,
			VertexShader:    vertex,
			FragmentShader:  fragment,
			Uniforms:        e.config.UniformDescriptor(),
			TextureSlots:    rc.TextureSlots,
			Anisotropy:      rc.Anisotropy,
			PreferMailbox:   rc.Present == config.PresentModeMailbox,
		},
		ClearColor:     rc.ClearColor,
		FenceTimeout:   rc.FenceTimeout.Nanoseconds(),
		PassBudget:     rc.PassBudget,
		MaterialBudget: rc.MaterialBudget,
	})
	if err := e.renderSystem.Init(); err != nil {
		return err
	}
	e.width, e.height = e.renderSystem.GetWindowDimensions()

	e.gameInstance.RenderSystem = e.renderSystem
	e.gameInstance.Assets = e.assetManager

	if err := e.gameInstance.FnInitialize(); err != nil {
		return err
	}

	if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
		return err
	}
	e.currentStage = EngineStageInitialized
	return nil
}

// Run drives the frame loop until the window closes, ESC is pressed or ctx
// is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.currentStage = EngineStageRunning
	e.clock.Start()
	e.clock.Update()

	e.lastTime = e.clock.Elapsed()

	for e.isRunning {
		if ctx.Err() != nil {
			core.LogInfo("shutdown requested: %s", context.Cause(ctx))
			break
		}
		if !e.window.PumpMessages() {
			e.isRunning = false
			break
		}
		e.dispatchAssetChanges()

		if e.isSuspended {
			time.Sleep(suspendedSleep)
			continue
		}

		// Update clock and get delta time.
		e.clock.Update()
		var currentTime float64 = e.clock.Elapsed()
		var delta float64 = (currentTime - e.lastTime)
		frameStart := time.Now()

		if err := e.gameInstance.FnUpdate(delta); err != nil {
			err = fmt.Errorf("game update failed: %w", err)
			core.LogError(err.Error())
			return err
		}

		frame := &metadata.Frame{}
		if err := e.gameInstance.FnRender(frame, delta); err != nil {
			err = fmt.Errorf("game render failed: %w", err)
			core.LogError(err.Error())
			return err
		}

		if err := e.drawFrame(frame); err != nil {
			return err
		}

		if e.metrics.Update(time.Since(frameStart).Seconds()) {
			core.LogDebug("fps: %.0f, frame time: %.3fms, frame: %d", e.metrics.FPS(), e.metrics.FrameTime(), e.renderSystem.FrameNumber())
		}

		// NOTE: Input update/state copying should always be handled
		// after any input should be recorded; I.E. before this line.
		// As a safety, input is the last thing to be updated before
		// this frame ends.
		core.InputUpdate()

		// Update last time
		e.lastTime = currentTime
	}
	return nil
}

// drawFrame submits the frame. Skipped frames and rejected frames are not
// fatal, anything else stops the loop.
func (e *Engine) drawFrame(frame *metadata.Frame) error {
	err := e.renderSystem.DrawFrame(frame)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrSwapchainBooting):
		core.LogDebug("swapchain is being recreated, skipping frame")
		return nil
	case errors.Is(err, core.ErrUnknownMesh),
		errors.Is(err, core.ErrUnknownMaterial),
		errors.Is(err, core.ErrUniformOutOfBounds):
		// already logged by the render system
		return nil
	default:
		return fmt.Errorf("failed to draw frame: %w", err)
	}
}

// dispatchAssetChanges turns watcher notifications into events on the
// main thread.
func (e *Engine) dispatchAssetChanges() {
	for {
		select {
		case change, ok := <-e.assetManager.Changes():
			if !ok {
				return
			}
			core.LogInfo("%s asset changed: %s", change.Type, change.Path)
			core.EventFire(core.EventContext{
				Type: core.EVENT_CODE_ASSET_CHANGED,
				Data: &core.AssetEvent{Path: change.Path, Removed: change.Removed},
			})
		default:
			return
		}
	}
}

// Shutdown tears everything down in reverse order. It is safe to call after
// a failed Initialize.
func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown

	var errs []error
	if e.renderSystem != nil {
		if err := e.renderSystem.WaitIdle(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.renderSystem != nil {
		if err := e.renderSystem.Cleanup(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.assetManager.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	if err := e.window.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	if err := core.EventSystemShutdown(); err != nil {
		errs = append(errs, err)
	}
	if err := core.InputShutdown(); err != nil {
		errs = append(errs, err)
	}
	e.currentStage = EngineStageUninitialized
	return errors.Join(errs...)
}

// GetFramebufferSize returns the width and height (in this order)
// of the application Framebuffer
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) SessionID() uuid.UUID {
	return e.sessionID
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) onEvent(context core.EventContext) bool {
	switch context.Type {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning = false
		return true
	}
	return false
}

func (e *Engine) onKey(context core.EventContext) bool {
	ke, ok := context.Data.(*core.KeyEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}

	if ke.KeyCode == core.KEY_ESCAPE {
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		core.EventFire(core.EventContext{
			Type: core.EVENT_CODE_APPLICATION_QUIT,
		})
		// Block anything else from processing this.
		return true
	}
	return false
}

func (e *Engine) onResized(context core.EventContext) bool {
	se, ok := context.Data.(*core.SystemEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}

	width := se.WindowWidth
	height := se.WindowHeight

	// Check if different. If so, trigger a resize event.
	if width == e.width && height == e.height {
		return false
	}
	e.width = width
	e.height = height

	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return true
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if e.renderSystem != nil {
		e.renderSystem.Resize(width, height)
	}
	if err := e.gameInstance.FnOnResize(width, height); err != nil {
		core.LogError(err.Error())
	}
	return false
}
