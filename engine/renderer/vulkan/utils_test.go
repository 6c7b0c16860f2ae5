package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframe/engine/core"
	"github.com/stretchr/testify/assert"
)

func TestVulkanSafeString(t *testing.T) {
	assert.Equal(t, "\x00", VulkanSafeString(""))
	assert.Equal(t, "main\x00", VulkanSafeString("main"))
	assert.Equal(t, "main\x00", VulkanSafeString("main\x00"))

	in := []string{"VK_KHR_surface", "VK_KHR_swapchain\x00"}
	out := VulkanSafeStrings(in)
	assert.Equal(t, []string{"VK_KHR_surface\x00", "VK_KHR_swapchain\x00"}, out)
	assert.Equal(t, "VK_KHR_surface", in[0])
}

func TestVulkanName(t *testing.T) {
	var name [16]byte
	copy(name[:], "VK_LAYER")
	assert.Equal(t, "VK_LAYER", VulkanName(name[:]))
	assert.Equal(t, 8, FindFirstZeroInByteArray(name[:]))
	assert.Equal(t, 3, FindFirstZeroInByteArray([]byte("abc")))
}

func TestMathClamp(t *testing.T) {
	assert.Equal(t, uint32(10), MathClamp(uint32(4), 10, 20))
	assert.Equal(t, uint32(20), MathClamp(uint32(40), 10, 20))
	assert.Equal(t, 0.5, MathClamp(0.5, 0.0, 1.0))
}

func TestResultError(t *testing.T) {
	assert.NoError(t, resultError("vkQueueSubmit", vk.Success))
	assert.ErrorIs(t, resultError("vkAcquireNextImageKHR", vk.ErrorOutOfDate), core.ErrSwapchainOutOfDate)
	assert.ErrorIs(t, resultError("vkQueuePresentKHR", vk.Suboptimal), core.ErrSwapchainOutOfDate)
	assert.ErrorIs(t, resultError("vkWaitForFences", vk.Timeout), core.ErrFenceTimeout)
	assert.ErrorIs(t, resultError("vkWaitForFences", vk.ErrorDeviceLost), core.ErrDeviceLost)

	err := resultError("vkCreateBuffer", vk.ErrorOutOfDeviceMemory)
	assert.ErrorContains(t, err, "VK_ERROR_OUT_OF_DEVICE_MEMORY")

	assert.True(t, VulkanResultIsSuccess(vk.Suboptimal))
	assert.False(t, VulkanResultIsSuccess(vk.ErrorOutOfDate))
	assert.Equal(t, "VK_TIMEOUT", VulkanResultString(vk.Timeout, false))
}
