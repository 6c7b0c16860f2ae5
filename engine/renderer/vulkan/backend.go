package vulkan

import (
	"fmt"
	"runtime"
	"slices"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframe/engine/core"
	"github.com/spaghettifunk/vkframe/engine/platform"
	"github.com/spaghettifunk/vkframe/engine/renderer"
	"github.com/spaghettifunk/vkframe/engine/renderer/metadata"
)

const (
	validationLayerName = "VK_LAYER_KHRONOS_validation"

	portabilityEnumerationExtensionName = "VK_KHR_portability_enumeration"
	// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
	instanceCreateEnumeratePortabilityBit = 0x00000001
)

// VulkanRenderer is the Vulkan implementation of renderer.Backend. It owns
// the instance, device, swapchain, render pass, framebuffers and pipeline.
type VulkanRenderer struct {
	window  platform.Window
	context *VulkanContext
	config  renderer.BackendConfig

	cachedFramebufferWidth  uint32
	cachedFramebufferHeight uint32

	stages []*VulkanShaderStage
}

var _ renderer.Backend = (*VulkanRenderer)(nil)

func New(window platform.Window) *VulkanRenderer {
	return &VulkanRenderer{
		window: window,
		context: &VulkanContext{
			Allocator: nil,
			locks:     NewVulkanLockPool(),
		},
	}
}

func (vr *VulkanRenderer) Initialize(config renderer.BackendConfig) error {
	vr.config = config

	procAddr := vr.window.VulkanProcAddr()
	if procAddr == nil {
		err := fmt.Errorf("GetInstanceProcAddress is nil")
		core.LogError(err.Error())
		return err
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return err
	}

	vr.context.FramebufferWidth, vr.context.FramebufferHeight = vr.window.FramebufferSize()
	if vr.context.FramebufferWidth == 0 || vr.context.FramebufferHeight == 0 {
		vr.context.FramebufferWidth = config.Width
		vr.context.FramebufferHeight = config.Height
	}

	if err := vr.createInstance(); err != nil {
		return err
	}

	if config.Debug {
		if err := vr.createDebugCallback(); err != nil {
			return err
		}
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := vr.window.CreateVulkanSurface(vr.context.Instance)
	if err != nil {
		err = fmt.Errorf("failed to create platform surface: %w", err)
		core.LogError(err.Error())
		return err
	}
	vr.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	if err := DeviceCreate(vr.context, config.Anisotropy); err != nil {
		return err
	}

	sc, err := SwapchainCreate(vr.context, vr.context.FramebufferWidth, vr.context.FramebufferHeight, config.PreferMailbox)
	if err != nil {
		return err
	}
	vr.context.Swapchain = sc
	vr.context.FramebufferWidth = sc.Extent.Width
	vr.context.FramebufferHeight = sc.Extent.Height

	rp, err := RenderpassCreate(vr.context, sc.ImageFormat.Format)
	if err != nil {
		return err
	}
	vr.context.MainRenderpass = rp

	if err := sc.RegenerateFramebuffers(vr.context, rp); err != nil {
		return err
	}

	if err := vr.createPipeline(); err != nil {
		return err
	}

	core.LogInfo("Vulkan renderer initialized successfully.")
	return nil
}

func (vr *VulkanRenderer) createInstance() error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(vr.config.ApplicationName),
		PEngineName:        VulkanSafeString("vkframe"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions
	requiredExtensions := []string{vk.KhrSurfaceExtensionName}
	for _, name := range vr.window.RequiredInstanceExtensions() {
		if !slices.Contains(requiredExtensions, name) {
			requiredExtensions = append(requiredExtensions, name)
		}
	}
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			portabilityEnumerationExtensionName,
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= instanceCreateEnumeratePortabilityBit
	}
	if vr.config.Debug {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		core.LogDebug("Required extensions: %v", requiredExtensions)
	}
	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	// Validation layers should only be enabled on debug builds.
	var layers []string
	if vr.config.Debug {
		core.LogInfo("Validation layers enabled. Enumerating...")
		available, err := instanceLayers()
		if err != nil {
			return err
		}
		if !slices.Contains(available, validationLayerName) {
			err := fmt.Errorf("required validation layer is missing: %s", validationLayerName)
			core.LogError(err.Error())
			return err
		}
		layers = []string{validationLayerName}
		core.LogInfo("All required validation layers are present.")
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, vr.context.Allocator, &instance); res != vk.Success {
		err := fmt.Errorf("failed in creating the Vulkan Instance with error `%s`", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	vr.context.Instance = instance

	if err := vk.InitInstance(instance); err != nil {
		core.LogError(err.Error())
		return err
	}

	core.LogInfo("Vulkan Instance created.")
	return nil
}

func instanceLayers() ([]string, error) {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		err := fmt.Errorf("failed to enumerate instance layers: %w", resultError("vkEnumerateInstanceLayerProperties", res))
		core.LogError(err.Error())
		return nil, err
	}
	properties := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, properties); res != vk.Success {
		err := fmt.Errorf("failed to enumerate instance layers: %w", resultError("vkEnumerateInstanceLayerProperties", res))
		core.LogError(err.Error())
		return nil, err
	}
	names := make([]string, 0, count)
	for i := range properties {
		properties[i].Deref()
		names = append(names, VulkanName(properties[i].LayerName[:]))
	}
	return names, nil
}

func (vr *VulkanRenderer) createDebugCallback() error {
	core.LogDebug("Creating Vulkan debugger...")
	debugCreateInfo := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: dbgCallbackFunc,
	}

	var dbg vk.DebugReportCallback
	if err := vk.Error(vk.CreateDebugReportCallback(vr.context.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
		core.LogError("vk.CreateDebugReportCallback failed with %s", err)
		return err
	}
	vr.context.debugMessenger = dbg
	core.LogDebug("Vulkan debugger created.")
	return nil
}

func (vr *VulkanRenderer) createPipeline() error {
	passLayout, err := NewPassSetLayout(vr.context, vr.config.Uniforms)
	if err != nil {
		return err
	}
	vr.context.PassSetLayout = passLayout

	materialLayout, err := NewMaterialSetLayout(vr.context, vr.config.TextureSlots)
	if err != nil {
		return err
	}
	vr.context.MaterialSetLayout = materialLayout

	vertex, err := NewShaderStage(vr.context, vr.config.VertexShader, vk.ShaderStageVertexBit)
	if err != nil {
		return err
	}
	vr.stages = append(vr.stages, vertex)
	fragment, err := NewShaderStage(vr.context, vr.config.FragmentShader, vk.ShaderStageFragmentBit)
	if err != nil {
		return err
	}
	vr.stages = append(vr.stages, fragment)

	pipeline, err := NewGraphicsPipeline(vr.context, &VulkanPipelineConfig{
		Renderpass:           vr.context.MainRenderpass,
		Stride:               vertexStride,
		Attributes:           vertexAttributes(),
		DescriptorSetLayouts: []vk.DescriptorSetLayout{passLayout, materialLayout},
		Stages:               []vk.PipelineShaderStageCreateInfo{vertex.ShaderStageCreateInfo, fragment.ShaderStageCreateInfo},
		CullMode:             vk.CullModeNone,
	})
	if err != nil {
		return err
	}
	vr.context.Pipeline = pipeline
	return nil
}

func (vr *VulkanRenderer) Shutdown() error {
	ctx := vr.context
	if ctx.Device != nil && ctx.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(ctx.Device.LogicalDevice)

		// Destroy in the opposite order of creation.
		if ctx.Pipeline != nil {
			ctx.Pipeline.Destroy(ctx)
			ctx.Pipeline = nil
		}
		for _, stage := range vr.stages {
			stage.Destroy(ctx)
		}
		vr.stages = nil

		vk.DestroyDescriptorSetLayout(ctx.Device.LogicalDevice, ctx.MaterialSetLayout, ctx.Allocator)
		vk.DestroyDescriptorSetLayout(ctx.Device.LogicalDevice, ctx.PassSetLayout, ctx.Allocator)

		if ctx.MainRenderpass != nil {
			ctx.MainRenderpass.RenderpassDestroy(ctx)
			ctx.MainRenderpass = nil
		}
		if ctx.Swapchain != nil {
			ctx.Swapchain.Destroy(ctx)
			ctx.Swapchain = nil
		}

		core.LogDebug("Destroying Vulkan device...")
		DeviceDestroy(ctx)
	}

	if ctx.Instance == nil {
		return nil
	}

	core.LogDebug("Destroying Vulkan surface...")
	if ctx.Surface != vk.NullSurface {
		vk.DestroySurface(ctx.Instance, ctx.Surface, ctx.Allocator)
		ctx.Surface = vk.NullSurface
	}

	if ctx.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(ctx.Instance, ctx.debugMessenger, ctx.Allocator)
		ctx.debugMessenger = vk.NullDebugReportCallback
	}

	core.LogDebug("Destroying Vulkan instance...")
	vk.DestroyInstance(ctx.Instance, ctx.Allocator)
	ctx.Instance = nil
	return nil
}

func (vr *VulkanRenderer) Resized(width, height uint32) {
	// Update the "framebuffer size generation", a counter which indicates when the
	// framebuffer size has been updated.
	vr.cachedFramebufferWidth = width
	vr.cachedFramebufferHeight = height
	vr.context.FramebufferSizeGeneration++

	core.LogInfo("Vulkan renderer backend->resized: w/h/gen: %d/%d/%d", width, height, vr.context.FramebufferSizeGeneration)
}

// FramebufferSize returns the size a new swapchain would get: the last
// resize if one is pending, else the current extent.
func (vr *VulkanRenderer) FramebufferSize() (uint32, uint32) {
	if vr.context.FramebufferSizeGeneration != vr.context.FramebufferSizeLastGeneration {
		return vr.cachedFramebufferWidth, vr.cachedFramebufferHeight
	}
	return vr.context.FramebufferWidth, vr.context.FramebufferHeight
}

func (vr *VulkanRenderer) ImageCount() uint32 {
	return vr.context.Swapchain.ImageCount
}

func (vr *VulkanRenderer) MinUniformBufferOffsetAlignment() uint64 {
	return vr.context.Device.MinUniformBufferOffsetAlignment()
}

func (vr *VulkanRenderer) RecreateSwapchain() error {
	width, height := vr.FramebufferSize()
	// Detect if the window is too small to be drawn to
	if width == 0 || height == 0 {
		core.LogDebug("recreate_swapchain called when window is < 1 in a dimension. Booting.")
		return core.ErrSwapchainBooting
	}

	if err := vr.WaitIdle(); err != nil {
		return err
	}

	sc, err := vr.context.Swapchain.Recreate(vr.context, width, height)
	if err != nil {
		return err
	}
	vr.context.Swapchain = sc
	if err := sc.RegenerateFramebuffers(vr.context, vr.context.MainRenderpass); err != nil {
		return err
	}

	// Sync the framebuffer size with the extent the surface accepted.
	vr.context.FramebufferWidth = sc.Extent.Width
	vr.context.FramebufferHeight = sc.Extent.Height
	vr.context.FramebufferSizeLastGeneration = vr.context.FramebufferSizeGeneration
	vr.cachedFramebufferWidth = 0
	vr.cachedFramebufferHeight = 0
	return nil
}

func (vr *VulkanRenderer) CreateFence(signaled bool) (renderer.Fence, error) {
	return NewFence(vr.context, signaled)
}

func (vr *VulkanRenderer) CreateSemaphore() (renderer.Semaphore, error) {
	return NewSemaphore(vr.context)
}

func (vr *VulkanRenderer) CreateCommandBuffer() (renderer.CommandBuffer, error) {
	return NewVulkanCommandBuffer(vr.context, vr.context.Device.GraphicsCommandPool, true)
}

func (vr *VulkanRenderer) CreateUniformBuffer(size uint64) (renderer.UniformBuffer, error) {
	return NewUniformBuffer(vr.context, size)
}

func (vr *VulkanRenderer) CreateGeometry(vertices []metadata.Vertex, indices []uint32) (renderer.Geometry, error) {
	return NewGeometry(vr.context, vertices, indices)
}

func (vr *VulkanRenderer) CreateTexture(name string, image *metadata.ImageData) (renderer.Texture, error) {
	return NewTexture(vr.context, name, image)
}

func (vr *VulkanRenderer) CreateDescriptorPool(class renderer.DescriptorClass, maxSets uint32) (renderer.DescriptorPool, error) {
	switch class {
	case renderer.DescriptorClassPass:
		return NewDescriptorPool(vr.context, class, vr.context.PassSetLayout, uint32(len(vr.config.Uniforms.Bindings)), maxSets)
	case renderer.DescriptorClassMaterial:
		return NewDescriptorPool(vr.context, class, vr.context.MaterialSetLayout, vr.config.TextureSlots, maxSets)
	default:
		err := fmt.Errorf("unknown descriptor class %d", class)
		core.LogError(err.Error())
		return nil, err
	}
}

func (vr *VulkanRenderer) AcquireNextImage(signal renderer.Semaphore, timeoutNs uint64) (renderer.ImageIndex, error) {
	index, err := vr.context.Swapchain.AcquireNextImageIndex(vr.context, timeoutNs, signal.(*VulkanSemaphore).Handle)
	return renderer.ImageIndex(index), err
}

func (vr *VulkanRenderer) Submit(commandBuffer renderer.CommandBuffer, wait, signal renderer.Semaphore, fence renderer.Fence) error {
	cb := commandBuffer.(*VulkanCommandBuffer)
	device := vr.context.Device

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb.Handle},
		// The semaphore(s) to be signaled when the queue is complete.
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{signal.(*VulkanSemaphore).Handle},
		// Wait semaphore ensures that the operation cannot begin until the image is available.
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{wait.(*VulkanSemaphore).Handle},
		// Colour attachment writes wait for the image-available semaphore.
		PWaitDstStageMask: []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
	}

	return vr.context.locks.SafeQueueCall(uint32(device.GraphicsQueueIndex), func() error {
		if result := vk.QueueSubmit(device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence.(*VulkanFence).Handle); result != vk.Success {
			err := fmt.Errorf("vkQueueSubmit failed with result: %w", resultError("vkQueueSubmit", result))
			core.LogError(err.Error())
			return err
		}
		cb.UpdateSubmitted()
		return nil
	})
}

func (vr *VulkanRenderer) Present(image renderer.ImageIndex, wait renderer.Semaphore) error {
	return vr.context.Swapchain.Present(vr.context, wait.(*VulkanSemaphore).Handle, uint32(image))
}

func (vr *VulkanRenderer) WaitIdle() error {
	if result := vk.DeviceWaitIdle(vr.context.Device.LogicalDevice); !VulkanResultIsSuccess(result) {
		err := fmt.Errorf("vkDeviceWaitIdle failed: %w", resultError("vkDeviceWaitIdle", result))
		core.LogError(err.Error())
		return err
	}
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
