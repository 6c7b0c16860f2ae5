package renderer

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/vkframe/engine/core"
	"github.com/spaghettifunk/vkframe/engine/renderer/metadata"
)

type mesh struct {
	name     string
	geometry Geometry
}

type material struct {
	name     string
	textures []Texture
	set      DescriptorSet
}

func (m *material) destroy() {
	for _, t := range m.textures {
		t.Destroy()
	}
	m.textures = nil
}

// CreateMesh uploads the geometry and binds it to name. Creating a mesh
// under an existing name replaces the old geometry and keeps the id.
func (rs *RenderSystem) CreateMesh(name string, vertices []metadata.Vertex, indices []uint32) (metadata.ResourceID, error) {
	if !rs.initialized {
		return metadata.InvalidResourceID, core.ErrNotInitialized
	}
	if len(vertices) == 0 || len(indices) == 0 {
		err := fmt.Errorf("mesh `%s`: %w", name, core.ErrEmptyMesh)
		core.LogError(err.Error())
		return metadata.InvalidResourceID, err
	}
	for i, idx := range indices {
		if int(idx) >= len(vertices) {
			err := fmt.Errorf("mesh `%s` index %d is %d but there are %d vertices: %w", name, i, idx, len(vertices), core.ErrIndexOutOfRange)
			core.LogError(err.Error())
			return metadata.InvalidResourceID, err
		}
	}

	geometry, err := rs.backend.CreateGeometry(vertices, indices)
	if err != nil {
		err = fmt.Errorf("mesh `%s`: failed to create geometry: %w", name, err)
		core.LogError(err.Error())
		return metadata.InvalidResourceID, err
	}

	raw, _ := rs.meshIDs.Acquire(name)
	id := metadata.ResourceID(raw)
	if old, ok := rs.meshes[id]; ok {
		// Frames in flight may still read the old buffers.
		if err := rs.backend.WaitIdle(); err != nil {
			geometry.Destroy()
			core.LogError(err.Error())
			return metadata.InvalidResourceID, err
		}
		old.geometry.Destroy()
		core.LogDebug("mesh `%s` (%d) replaced", name, id)
	}
	rs.meshes[id] = &mesh{name: name, geometry: geometry}

	core.LogDebug("mesh `%s` created with id %d: %d vertices, %d indices", name, id, len(vertices), len(indices))
	return id, nil
}

// LoadMaterial decodes and uploads one texture per path and binds them to
// the texture slots of a fresh material descriptor set. Slots beyond the
// given paths repeat the last texture.
func (rs *RenderSystem) LoadMaterial(name string, paths []string) (metadata.ResourceID, error) {
	if !rs.initialized {
		return metadata.InvalidResourceID, core.ErrNotInitialized
	}
	slots := rs.config.Backend.TextureSlots
	if len(paths) == 0 {
		err := fmt.Errorf("material `%s`: %w", name, core.ErrNoTextures)
		core.LogError(err.Error())
		return metadata.InvalidResourceID, err
	}
	if uint32(len(paths)) > slots {
		err := fmt.Errorf("material `%s` has %d textures, %d slots available: %w", name, len(paths), slots, core.ErrTooManyTextures)
		core.LogError(err.Error())
		return metadata.InvalidResourceID, err
	}

	mat := &material{name: name}
	ok := false
	defer func() {
		if !ok {
			mat.destroy()
		}
	}()

	for _, path := range paths {
		image, err := rs.images.LoadImage(path)
		if err != nil {
			err = fmt.Errorf("material `%s`: failed to load image `%s`: %w", name, path, err)
			core.LogError(err.Error())
			return metadata.InvalidResourceID, err
		}
		texture, err := rs.backend.CreateTexture(fmt.Sprintf("%s/%s", name, uuid.NewString()), image)
		if err != nil {
			err = fmt.Errorf("material `%s`: failed to create texture from `%s`: %w", name, path, err)
			core.LogError(err.Error())
			return metadata.InvalidResourceID, err
		}
		mat.textures = append(mat.textures, texture)
	}

	set, err := rs.descriptors.Allocate(DescriptorClassMaterial)
	if err != nil {
		err = fmt.Errorf("material `%s`: %w", name, err)
		core.LogError(err.Error())
		return metadata.InvalidResourceID, err
	}
	for i := uint32(0); i < slots; i++ {
		t := mat.textures[min(int(i), len(mat.textures)-1)]
		set.WriteTexture(i, t)
	}
	mat.set = set

	raw, _ := rs.materialIDs.Acquire(name)
	id := metadata.ResourceID(raw)
	if old, exists := rs.materials[id]; exists {
		if err := rs.backend.WaitIdle(); err != nil {
			rs.descriptors.Release(DescriptorClassMaterial, set)
			core.LogError(err.Error())
			return metadata.InvalidResourceID, err
		}
		old.destroy()
		rs.descriptors.Release(DescriptorClassMaterial, old.set)
		core.LogDebug("material `%s` (%d) replaced", name, id)
	}
	rs.materials[id] = mat
	ok = true

	core.LogDebug("material `%s` created with id %d and %d textures", name, id, len(mat.textures))
	return id, nil
}

func (rs *RenderSystem) MeshID(name string) (metadata.ResourceID, bool) {
	id, ok := rs.meshIDs.Lookup(name)
	if !ok {
		return metadata.InvalidResourceID, false
	}
	return metadata.ResourceID(id), true
}

func (rs *RenderSystem) MaterialID(name string) (metadata.ResourceID, bool) {
	id, ok := rs.materialIDs.Lookup(name)
	if !ok {
		return metadata.InvalidResourceID, false
	}
	return metadata.ResourceID(id), true
}
