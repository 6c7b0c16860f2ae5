package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkframe/engine/core"
	"github.com/spaghettifunk/vkframe/engine/renderer"
	"github.com/spaghettifunk/vkframe/engine/renderer/metadata"
)

// NewPassSetLayout declares set 0: one uniform buffer per declared binding,
// visible to both stages.
func NewPassSetLayout(context *VulkanContext, uniforms metadata.UniformBufferDescriptor) (vk.DescriptorSetLayout, error) {
	bindings := make([]vk.DescriptorSetLayoutBinding, len(uniforms.Bindings))
	for i, b := range uniforms.Bindings {
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit),
		}
	}
	return newSetLayout(context, bindings)
}

// NewMaterialSetLayout declares set 1: textureSlots combined image samplers
// at bindings 0..textureSlots-1.
func NewMaterialSetLayout(context *VulkanContext, textureSlots uint32) (vk.DescriptorSetLayout, error) {
	bindings := make([]vk.DescriptorSetLayoutBinding, textureSlots)
	for i := range bindings {
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         uint32(i),
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		}
	}
	return newSetLayout(context, bindings)
}

func newSetLayout(context *VulkanContext, bindings []vk.DescriptorSetLayoutBinding) (vk.DescriptorSetLayout, error) {
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &createInfo, context.Allocator, &layout); res != vk.Success {
		err := fmt.Errorf("failed to create descriptor set layout: %w", resultError("vkCreateDescriptorSetLayout", res))
		core.LogError(err.Error())
		return layout, err
	}
	return layout, nil
}

// VulkanDescriptorPool holds up to MaxSets sets of one layout. Sets are
// never freed individually; they go back to the cache's free list and are
// released with the pool.
type VulkanDescriptorPool struct {
	Handle    vk.DescriptorPool
	Layout    vk.DescriptorSetLayout
	MaxSets   uint32
	Allocated uint32

	context *VulkanContext
}

func NewDescriptorPool(context *VulkanContext, class renderer.DescriptorClass, layout vk.DescriptorSetLayout, descriptorsPerSet, maxSets uint32) (*VulkanDescriptorPool, error) {
	descriptorType := vk.DescriptorTypeUniformBuffer
	if class == renderer.DescriptorClassMaterial {
		descriptorType = vk.DescriptorTypeCombinedImageSampler
	}

	poolSizes := []vk.DescriptorPoolSize{{
		Type:            descriptorType,
		DescriptorCount: descriptorsPerSet * maxSets,
	}}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}

	var handle vk.DescriptorPool
	if res := vk.CreateDescriptorPool(context.Device.LogicalDevice, &createInfo, context.Allocator, &handle); res != vk.Success {
		err := fmt.Errorf("failed to create %s descriptor pool: %w", class, resultError("vkCreateDescriptorPool", res))
		core.LogError(err.Error())
		return nil, err
	}
	core.LogDebug("Created %s descriptor pool for %d sets.", class, maxSets)

	return &VulkanDescriptorPool{
		Handle:  handle,
		Layout:  layout,
		MaxSets: maxSets,
		context: context,
	}, nil
}

func (p *VulkanDescriptorPool) Allocate() (renderer.DescriptorSet, error) {
	if p.Allocated >= p.MaxSets {
		err := fmt.Errorf("descriptor pool exhausted (%d sets)", p.MaxSets)
		core.LogError(err.Error())
		return nil, err
	}
	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.Handle,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{p.Layout},
	}
	var set vk.DescriptorSet
	if res := vk.AllocateDescriptorSets(p.context.Device.LogicalDevice, &allocateInfo, &set); res != vk.Success {
		err := fmt.Errorf("failed to allocate descriptor set: %w", resultError("vkAllocateDescriptorSets", res))
		core.LogError(err.Error())
		return nil, err
	}
	p.Allocated++
	return &VulkanDescriptorSet{Handle: set, context: p.context}, nil
}

func (p *VulkanDescriptorPool) Destroy() {
	vk.DestroyDescriptorPool(p.context.Device.LogicalDevice, p.Handle, p.context.Allocator)
	p.Allocated = 0
}

type VulkanDescriptorSet struct {
	Handle vk.DescriptorSet

	context *VulkanContext
}

func (s *VulkanDescriptorSet) WriteUniformBuffer(binding uint32, buffer renderer.UniformBuffer, offset, size uint64) {
	ub := buffer.(*VulkanUniformBuffer)
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          s.Handle,
		DstBinding:      binding,
		DstArrayElement: 0,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: ub.Handle,
			Offset: vk.DeviceSize(offset),
			Range:  vk.DeviceSize(size),
		}},
	}
	vk.UpdateDescriptorSets(s.context.Device.LogicalDevice, 1, []vk.WriteDescriptorSet{write}, 0, nil)
}

func (s *VulkanDescriptorSet) WriteTexture(binding uint32, texture renderer.Texture) {
	tex := texture.(*VulkanTexture)
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          s.Handle,
		DstBinding:      binding,
		DstArrayElement: 0,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: 1,
		PImageInfo: []vk.DescriptorImageInfo{{
			ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			ImageView:   tex.Image.View,
			Sampler:     tex.Sampler,
		}},
	}
	vk.UpdateDescriptorSets(s.context.Device.LogicalDevice, 1, []vk.WriteDescriptorSet{write}, 0, nil)
}
