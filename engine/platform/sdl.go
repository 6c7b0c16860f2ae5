package platform

import (
	"fmt"
	"unsafe"

	"github.com/spaghettifunk/vkframe/engine/core"
	"github.com/veandco/go-sdl2/sdl"
)

type SDLWindow struct {
	window *sdl.Window
}

func (p *SDLWindow) Startup(title string, x, y, width, height uint32) error {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		err = fmt.Errorf("failed to initialize sdl: %w", err)
		core.LogError(err.Error())
		return err
	}
	if err := sdl.VulkanLoadLibrary(""); err != nil {
		sdl.Quit()
		err = fmt.Errorf("failed to load the Vulkan library: %w", err)
		core.LogError(err.Error())
		return err
	}

	window, err := sdl.CreateWindow(title,
		int32(x),
		int32(y),
		int32(width),
		int32(height),
		sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.VulkanUnloadLibrary()
		sdl.Quit()
		err = fmt.Errorf("failed to create window: %w", err)
		core.LogError(err.Error())
		return err
	}
	p.window = window

	core.LogInfo("sdl window `%s` created (%dx%d)", title, width, height)
	return nil
}

func (p *SDLWindow) Shutdown() error {
	if p.window != nil {
		if err := p.window.Destroy(); err != nil {
			core.LogWarn("failed to destroy sdl window: %s", err)
		}
		p.window = nil
	}
	sdl.VulkanUnloadLibrary()
	sdl.Quit()
	return nil
}

func (p *SDLWindow) PumpMessages() bool {
	running := true
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch et := event.(type) {
		case *sdl.KeyboardEvent:
			if et.Repeat != 0 {
				continue
			}
			core.InputProcessKey(sdlKeyCode(et.Keysym.Sym), et.Type == sdl.KEYDOWN)
		case *sdl.WindowEvent:
			if et.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
				fireResized(p.FramebufferSize())
			}
		case *sdl.QuitEvent:
			fireQuit()
			running = false
		}
	}
	return running
}

func (p *SDLWindow) FramebufferSize() (uint32, uint32) {
	w, h := p.window.VulkanGetDrawableSize()
	return uint32(w), uint32(h)
}

func (p *SDLWindow) VulkanProcAddr() unsafe.Pointer {
	return sdl.VulkanGetVkGetInstanceProcAddr()
}

func (p *SDLWindow) RequiredInstanceExtensions() []string {
	return p.window.VulkanGetInstanceExtensions()
}

func (p *SDLWindow) CreateVulkanSurface(instance interface{}) (uintptr, error) {
	surface, err := p.window.VulkanCreateSurface(instance)
	if err != nil {
		return 0, err
	}
	return uintptr(surface), nil
}

func sdlKeyCode(key sdl.Keycode) core.KeyCode {
	switch key {
	case sdl.K_RETURN:
		return core.KEY_ENTER
	case sdl.K_ESCAPE:
		return core.KEY_ESCAPE
	case sdl.K_SPACE:
		return core.KEY_SPACE
	case sdl.K_LEFT:
		return core.KEY_LEFT
	case sdl.K_UP:
		return core.KEY_UP
	case sdl.K_RIGHT:
		return core.KEY_RIGHT
	case sdl.K_DOWN:
		return core.KEY_DOWN
	case sdl.K_a:
		return core.KEY_A
	case sdl.K_d:
		return core.KEY_D
	case sdl.K_r:
		return core.KEY_R
	case sdl.K_s:
		return core.KEY_S
	case sdl.K_w:
		return core.KEY_W
	default:
		return core.KEY_UNKNOWN
	}
}
