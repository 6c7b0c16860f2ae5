package platform

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/vkframe/engine/core"
)

type GLFWWindow struct {
	window *glfw.Window
}

func (p *GLFWWindow) Startup(title string, x, y, width, height uint32) error {
	if err := glfw.Init(); err != nil {
		err = fmt.Errorf("failed to initialize glfw: %w", err)
		core.LogError(err.Error())
		return err
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		err := fmt.Errorf("glfw reports no Vulkan loader")
		core.LogError(err.Error())
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), title, nil, nil)
	if err != nil {
		glfw.Terminate()
		err = fmt.Errorf("failed to create window: %w", err)
		core.LogError(err.Error())
		return err
	}
	p.window = window

	p.window.SetKeyCallback(glfwKeyCallback)
	p.window.SetFramebufferSizeCallback(glfwFramebufferSizeCallback)
	p.window.SetCloseCallback(func(w *glfw.Window) { fireQuit() })
	p.window.SetPos(int(x), int(y))
	p.window.Show()

	core.LogInfo("glfw window `%s` created (%dx%d)", title, width, height)
	return nil
}

func (p *GLFWWindow) Shutdown() error {
	if p.window != nil {
		p.window.Destroy()
		p.window = nil
	}
	glfw.Terminate()
	return nil
}

func (p *GLFWWindow) PumpMessages() bool {
	glfw.PollEvents()
	return !p.window.ShouldClose()
}

func (p *GLFWWindow) FramebufferSize() (uint32, uint32) {
	w, h := p.window.GetFramebufferSize()
	return uint32(w), uint32(h)
}

func (p *GLFWWindow) VulkanProcAddr() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

func (p *GLFWWindow) RequiredInstanceExtensions() []string {
	return p.window.GetRequiredInstanceExtensions()
}

func (p *GLFWWindow) CreateVulkanSurface(instance interface{}) (uintptr, error) {
	return p.window.CreateWindowSurface(instance, nil)
}

func glfwKeyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if action == glfw.Repeat {
		return
	}
	core.InputProcessKey(glfwKeyCode(key), action == glfw.Press)
}

func glfwFramebufferSizeCallback(w *glfw.Window, width, height int) {
	fireResized(uint32(width), uint32(height))
}

func glfwKeyCode(key glfw.Key) core.KeyCode {
	switch key {
	case glfw.KeyEnter:
		return core.KEY_ENTER
	case glfw.KeyEscape:
		return core.KEY_ESCAPE
	case glfw.KeySpace:
		return core.KEY_SPACE
	case glfw.KeyLeft:
		return core.KEY_LEFT
	case glfw.KeyUp:
		return core.KEY_UP
	case glfw.KeyRight:
		return core.KEY_RIGHT
	case glfw.KeyDown:
		return core.KEY_DOWN
	case glfw.KeyA:
		return core.KEY_A
	case glfw.KeyD:
		return core.KEY_D
	case glfw.KeyR:
		return core.KEY_R
	case glfw.KeyS:
		return core.KEY_S
	case glfw.KeyW:
		return core.KEY_W
	default:
		return core.KEY_UNKNOWN
	}
}
