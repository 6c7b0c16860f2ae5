package metadata

// ResourceID identifies a mesh or a material owned by the render system.
// Ids are handed out by the render system when the resource is created.
type ResourceID uint32

const InvalidResourceID ResourceID = 0

// UniformBlock is a raw payload written into the frame slot's uniform
// buffer at Offset. The range [Offset, Offset+len(Data)) must fall inside
// one declared UniformBinding.
type UniformBlock struct {
	Offset uint64
	Data   []byte
}

func (b UniformBlock) Size() uint64 {
	return uint64(len(b.Data))
}

func (b UniformBlock) IsEmpty() bool {
	return len(b.Data) == 0
}

// RenderObject is one draw call worth of state.
type RenderObject struct {
	Mesh     ResourceID
	Material ResourceID
	Uniforms UniformBlock
}

// Pass groups objects sharing the same pass-global uniform data, e.g. the
// camera matrices.
type Pass struct {
	Uniforms UniformBlock
	Objects  []RenderObject
}

// Frame is the declarative draw request for one tick. Passes are drawn in
// order, and objects inside a pass are drawn in order.
type Frame struct {
	Passes []Pass
}

// DrawCount returns the number of draw calls the frame will issue.
func (f *Frame) DrawCount() int {
	n := 0
	for i := range f.Passes {
		n += len(f.Passes[i].Objects)
	}
	return n
}
