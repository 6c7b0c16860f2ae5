package loaders

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/vkframe/engine/core"
	"github.com/spaghettifunk/vkframe/engine/renderer/metadata"
)

var ErrMalformedOBJ = errors.New("malformed OBJ")

const epsilon = 1e-8

// ModelLoader reads Wavefront OBJ files. Polygons are fan triangulated,
// identical vertices are merged and tangents are generated from the UVs.
type ModelLoader struct{}

func (ml *ModelLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	r, err := openAsset(path)
	if err != nil {
		err = fmt.Errorf("failed to open model %s: %w", path, err)
		core.LogError(err.Error())
		return nil, err
	}
	defer r.Close()

	name := strings.TrimSuffix(filepath.Base(TrimCompression(path)), filepath.Ext(TrimCompression(path)))
	mesh, err := ParseOBJ(r, name)
	if err != nil {
		err = fmt.Errorf("failed to parse model %s: %w", path, err)
		core.LogError(err.Error())
		return nil, err
	}

	return &metadata.Resource{
		Type:     metadata.ResourceTypeModel,
		Name:     name,
		FullPath: path,
		DataSize: uint64(len(mesh.Vertices))*uint64(vertexSize) + uint64(len(mesh.Indices))*4,
		Data:     mesh,
	}, nil
}

func (ml *ModelLoader) Unload(res *metadata.Resource) error {
	res.Data = nil
	return nil
}

// 17 float32 per vertex.
const vertexSize = 17 * 4

type faceVertex struct {
	position int
	uv       int
	normal   int
}

type objDecoder struct {
	positions []mgl32.Vec3
	colors    []mgl32.Vec3
	uvs       []mgl32.Vec2
	normals   []mgl32.Vec3
	faces     [][]faceVertex
	line      int
}

// ParseOBJ decodes positions, texture coordinates, normals, optional
// vertex colours and faces. Everything else (groups, materials, smoothing)
// is ignored.
func ParseOBJ(r io.Reader, name string) (*metadata.MeshData, error) {
	dec := &objDecoder{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		dec.line++
		if err := dec.parseLine(scanner.Text()); err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedOBJ, dec.line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(dec.faces) == 0 {
		return nil, fmt.Errorf("%w: no faces", core.ErrEmptyMesh)
	}
	return dec.build(name), nil
}

func (dec *objDecoder) parseLine(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}
	switch fields[0] {
	case "v":
		values, err := parseFloats(fields[1:], 3)
		if err != nil {
			return err
		}
		dec.positions = append(dec.positions, mgl32.Vec3{values[0], values[1], values[2]})
		color := mgl32.Vec3{1, 1, 1}
		if len(values) >= 6 {
			color = mgl32.Vec3{values[3], values[4], values[5]}
		}
		dec.colors = append(dec.colors, color)
	case "vt":
		values, err := parseFloats(fields[1:], 2)
		if err != nil {
			return err
		}
		dec.uvs = append(dec.uvs, mgl32.Vec2{values[0], values[1]})
	case "vn":
		values, err := parseFloats(fields[1:], 3)
		if err != nil {
			return err
		}
		dec.normals = append(dec.normals, mgl32.Vec3{values[0], values[1], values[2]})
	case "f":
		return dec.parseFace(fields[1:])
	}
	return nil
}

func (dec *objDecoder) parseFace(fields []string) error {
	if len(fields) < 3 {
		return fmt.Errorf("face needs at least 3 vertices, got %d", len(fields))
	}
	face := make([]faceVertex, len(fields))
	for i, field := range fields {
		parts := strings.Split(field, "/")
		fv := faceVertex{position: -1, uv: -1, normal: -1}
		var err error
		if fv.position, err = resolveIndex(parts[0], len(dec.positions)); err != nil {
			return err
		}
		if len(parts) > 1 && parts[1] != "" {
			if fv.uv, err = resolveIndex(parts[1], len(dec.uvs)); err != nil {
				return err
			}
		}
		if len(parts) > 2 && parts[2] != "" {
			if fv.normal, err = resolveIndex(parts[2], len(dec.normals)); err != nil {
				return err
			}
		}
		face[i] = fv
	}
	dec.faces = append(dec.faces, face)
	return nil
}

// resolveIndex turns a 1-based (or negative, relative) OBJ index into a
// 0-based one.
func resolveIndex(s string, count int) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return -1, err
	}
	switch {
	case i > 0:
		i--
	case i < 0:
		i += count
	default:
		return -1, fmt.Errorf("index 0 is not valid")
	}
	if i < 0 || i >= count {
		return -1, fmt.Errorf("index %s out of range (%d elements)", s, count)
	}
	return i, nil
}

func parseFloats(fields []string, min int) ([]float32, error) {
	if len(fields) < min {
		return nil, fmt.Errorf("expected %d values, got %d", min, len(fields))
	}
	values := make([]float32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, err
		}
		values[i] = float32(v)
	}
	return values, nil
}

// build triangulates the faces, merges identical vertices and fills in
// tangents and bitangents.
func (dec *objDecoder) build(name string) *metadata.MeshData {
	mesh := &metadata.MeshData{Name: name}
	unique := make(map[metadata.Vertex]uint32)

	for _, face := range dec.faces {
		faceNormal := dec.faceNormal(face)
		corners := make([]uint32, len(face))
		for i, fv := range face {
			v := metadata.Vertex{
				Position: dec.positions[fv.position],
				Color:    dec.colors[fv.position],
				Normal:   faceNormal,
			}
			if fv.normal >= 0 {
				v.Normal = dec.normals[fv.normal]
			}
			if fv.uv >= 0 {
				v.UV = dec.uvs[fv.uv]
			}
			index, ok := unique[v]
			if !ok {
				index = uint32(len(mesh.Vertices))
				unique[v] = index
				mesh.Vertices = append(mesh.Vertices, v)
			}
			corners[i] = index
		}
		for i := 2; i < len(corners); i++ {
			mesh.Indices = append(mesh.Indices, corners[0], corners[i-1], corners[i])
		}
	}

	generateTangents(mesh)
	return mesh
}

func (dec *objDecoder) faceNormal(face []faceVertex) mgl32.Vec3 {
	a := dec.positions[face[0].position]
	b := dec.positions[face[1].position]
	c := dec.positions[face[2].position]
	n := b.Sub(a).Cross(c.Sub(a))
	if n.Len() < epsilon {
		return mgl32.Vec3{0, 0, 1}
	}
	return n.Normalize()
}

// generateTangents accumulates per triangle tangents on the shared
// vertices, then orthogonalises them against the normal.
func generateTangents(mesh *metadata.MeshData) {
	tangents := make([]mgl32.Vec3, len(mesh.Vertices))
	for i := 0; i+2 < len(mesh.Indices); i += 3 {
		i0, i1, i2 := mesh.Indices[i], mesh.Indices[i+1], mesh.Indices[i+2]
		v0, v1, v2 := mesh.Vertices[i0], mesh.Vertices[i1], mesh.Vertices[i2]

		edge1 := v1.Position.Sub(v0.Position)
		edge2 := v2.Position.Sub(v0.Position)
		deltaUV1 := v1.UV.Sub(v0.UV)
		deltaUV2 := v2.UV.Sub(v0.UV)

		det := deltaUV1.X()*deltaUV2.Y() - deltaUV2.X()*deltaUV1.Y()
		if mgl32.Abs(det) < epsilon {
			continue
		}
		t := edge1.Mul(deltaUV2.Y()).Sub(edge2.Mul(deltaUV1.Y())).Mul(1 / det)
		tangents[i0] = tangents[i0].Add(t)
		tangents[i1] = tangents[i1].Add(t)
		tangents[i2] = tangents[i2].Add(t)
	}

	for i := range mesh.Vertices {
		v := &mesh.Vertices[i]
		n := v.Normal
		t := tangents[i].Sub(n.Mul(n.Dot(tangents[i])))
		if t.Len() < epsilon {
			t = anyPerpendicular(n)
		}
		v.Tangent = t.Normalize()
		v.Bitangent = n.Cross(v.Tangent)
	}
}

func anyPerpendicular(n mgl32.Vec3) mgl32.Vec3 {
	axis := mgl32.Vec3{1, 0, 0}
	if mgl32.Abs(n.X()) > 0.9 {
		axis = mgl32.Vec3{0, 1, 0}
	}
	return axis.Sub(n.Mul(n.Dot(axis)))
}
