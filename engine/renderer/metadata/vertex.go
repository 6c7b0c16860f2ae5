package metadata

import "github.com/go-gl/mathgl/mgl32"

// Vertex is the single vertex layout consumed by the forward pipeline. It
// only holds arrays of float32, so it is comparable and can key a map when
// deduplicating vertices.
type Vertex struct {
	Position  mgl32.Vec3
	Normal    mgl32.Vec3
	Color     mgl32.Vec3
	UV        mgl32.Vec2
	Tangent   mgl32.Vec3
	Bitangent mgl32.Vec3
}

// MeshData is CPU side geometry ready to be uploaded.
type MeshData struct {
	Name     string
	Vertices []Vertex
	Indices  []uint32
}

// Quad returns a unit quad facing +Z made of 4 vertices and 6 indices.
func Quad(size float32) MeshData {
	h := size / 2
	normal := mgl32.Vec3{0, 0, 1}
	white := mgl32.Vec3{1, 1, 1}
	return MeshData{
		Name: "quad",
		Vertices: []Vertex{
			{Position: mgl32.Vec3{-h, -h, 0}, Normal: normal, Color: white, UV: mgl32.Vec2{0, 0}},
			{Position: mgl32.Vec3{h, -h, 0}, Normal: normal, Color: white, UV: mgl32.Vec2{1, 0}},
			{Position: mgl32.Vec3{h, h, 0}, Normal: normal, Color: white, UV: mgl32.Vec2{1, 1}},
			{Position: mgl32.Vec3{-h, h, 0}, Normal: normal, Color: white, UV: mgl32.Vec2{0, 1}},
		},
		Indices: []uint32{0, 1, 2, 2, 3, 0},
	}
}
