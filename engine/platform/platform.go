package platform

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/spaghettifunk/vkframe/engine/config"
	"github.com/spaghettifunk/vkframe/engine/core"
)

func init() {
	// GLFW and SDL event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Window is an OS window able to host a Vulkan surface. Key presses,
// resizes and close requests are published on the core event bus.
type Window interface {
	Startup(title string, x, y, width, height uint32) error
	Shutdown() error
	// PumpMessages processes pending OS events. It returns false once the
	// window was asked to close.
	PumpMessages() bool
	FramebufferSize() (uint32, uint32)
	// VulkanProcAddr returns vkGetInstanceProcAddr as loaded by the
	// windowing library.
	VulkanProcAddr() unsafe.Pointer
	RequiredInstanceExtensions() []string
	// CreateVulkanSurface returns a VkSurfaceKHR for the given VkInstance.
	CreateVulkanSurface(instance interface{}) (uintptr, error)
}

func New(backend config.WindowBackend) (Window, error) {
	switch backend {
	case config.WindowBackendGLFW, "":
		return &GLFWWindow{}, nil
	case config.WindowBackendSDL:
		return &SDLWindow{}, nil
	default:
		err := fmt.Errorf("unknown window backend `%s`", backend)
		core.LogError(err.Error())
		return nil, err
	}
}

func fireResized(width, height uint32) {
	core.EventFire(core.EventContext{
		Type: core.EVENT_CODE_RESIZED,
		Data: &core.SystemEvent{WindowWidth: width, WindowHeight: height},
	})
}

func fireQuit() {
	core.EventFire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
}
