package engine

import (
	"github.com/spaghettifunk/vkframe/engine/assets"
	"github.com/spaghettifunk/vkframe/engine/renderer"
	"github.com/spaghettifunk/vkframe/engine/renderer/metadata"
)

// Game is the application driven by the engine. RenderSystem and Assets are
// set by the engine before FnInitialize is called.
type Game struct {
	ApplicationConfig *ApplicationConfig
	RenderSystem      *renderer.RenderSystem
	Assets            *assets.AssetManager
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

type Initialize func() error
type Update func(deltaTime float64) error

// Render fills the frame that is drawn once it returns.
type Render func(frame *metadata.Frame, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
