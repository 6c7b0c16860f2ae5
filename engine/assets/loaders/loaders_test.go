package loaders

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vkframe/engine/core"
	"github.com/spaghettifunk/vkframe/engine/renderer/metadata"
)

const quadOBJ = `# unit quad
o quad
v -1 -1 0
v 1 -1 0
v 1 1 0
v -1 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 1
f 1/1/1 2/2/1 3/3/1 4/4/1
`

func writeFile(t *testing.T, path string, data []byte, compress bool) {
	t.Helper()
	if !compress {
		require.NoError(t, os.WriteFile(path, data, 0o644))
		return
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	w := lz4.NewWriter(f)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

func spirvWords(words ...uint32) []byte {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	return buf
}

func twoRowPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for x := 0; x < 2; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
		img.Set(x, 1, color.RGBA{B: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestBytesToBytecode(t *testing.T) {
	code, err := bytesToBytecode(spirvWords(spirvMagic, 0x00010000, 42))
	require.NoError(t, err)
	assert.Equal(t, []uint32{spirvMagic, 0x00010000, 42}, code)

	_, err = bytesToBytecode([]byte{0x03, 0x02, 0x23})
	assert.ErrorIs(t, err, ErrInvalidSPIRV)

	_, err = bytesToBytecode(nil)
	assert.ErrorIs(t, err, ErrInvalidSPIRV)

	_, err = bytesToBytecode(spirvWords(0xdeadbeef))
	assert.ErrorIs(t, err, ErrInvalidSPIRV)
}

func TestShaderLoaderReadsCompressedModules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "builtin.vert.spv.lz4")
	writeFile(t, path, spirvWords(spirvMagic, 1, 2, 3), true)

	res, err := (&ShaderLoader{}).Load(path, metadata.ResourceTypeShader, nil)
	require.NoError(t, err)
	assert.Equal(t, metadata.ResourceTypeShader, res.Type)
	assert.Equal(t, "builtin.vert.spv", res.Name)
	assert.Equal(t, uint64(16), res.DataSize)
	assert.Equal(t, []uint32{spirvMagic, 1, 2, 3}, res.Data)
}

func TestDecodeImageFlip(t *testing.T) {
	data := twoRowPNG(t)

	img, err := DecodeImage(bytes.NewReader(data), false)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), img.Width)
	assert.Equal(t, uint32(2), img.Height)
	assert.Equal(t, uint8(4), img.ChannelCount)
	assert.Len(t, img.Pixels, 16)
	assert.Equal(t, []uint8{255, 0, 0, 255}, img.Pixels[0:4])
	assert.Equal(t, []uint8{0, 0, 255, 255}, img.Pixels[8:12])

	flipped, err := DecodeImage(bytes.NewReader(data), true)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 0, 255, 255}, flipped.Pixels[0:4])
	assert.Equal(t, []uint8{255, 0, 0, 255}, flipped.Pixels[8:12])
}

func TestDecodeImageRejectsGarbage(t *testing.T) {
	_, err := DecodeImage(strings.NewReader("not an image"), true)
	assert.Error(t, err)
}

func TestImageLoaderParams(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checker.png.lz4")
	writeFile(t, path, twoRowPNG(t), true)

	loader := &ImageLoader{}
	res, err := loader.Load(path, metadata.ResourceTypeImage, nil)
	require.NoError(t, err)
	img := res.Data.(*metadata.ImageData)
	// flipped by default
	assert.Equal(t, []uint8{0, 0, 255, 255}, img.Pixels[0:4])
	assert.Equal(t, img.Size(), res.DataSize)

	res, err = loader.Load(path, metadata.ResourceTypeImage, &metadata.ImageResourceParams{FlipY: false})
	require.NoError(t, err)
	assert.Equal(t, []uint8{255, 0, 0, 255}, res.Data.(*metadata.ImageData).Pixels[0:4])
}

func TestParseOBJQuad(t *testing.T) {
	mesh, err := ParseOBJ(strings.NewReader(quadOBJ), "quad")
	require.NoError(t, err)

	assert.Equal(t, "quad", mesh.Name)
	assert.Len(t, mesh.Vertices, 4)
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, mesh.Indices)

	for _, v := range mesh.Vertices {
		assertVec3(t, mgl32.Vec3{0, 0, 1}, v.Normal)
		assertVec3(t, mgl32.Vec3{1, 0, 0}, v.Tangent)
		assertVec3(t, mgl32.Vec3{0, 1, 0}, v.Bitangent)
		assert.Equal(t, mgl32.Vec3{1, 1, 1}, v.Color)
	}
	assert.Equal(t, mgl32.Vec2{1, 1}, mesh.Vertices[2].UV)
}

func TestParseOBJDeduplicatesSharedCorners(t *testing.T) {
	src := `v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
f 1 2 3
f 1 3 4
`
	mesh, err := ParseOBJ(strings.NewReader(src), "tris")
	require.NoError(t, err)
	assert.Len(t, mesh.Vertices, 4)
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, mesh.Indices)
	// no normals in the file: the face normal is used
	assertVec3(t, mgl32.Vec3{0, 0, 1}, mesh.Vertices[0].Normal)
	// no UVs: tangent still perpendicular to the normal
	assert.InDelta(t, 0, mesh.Vertices[0].Tangent.Dot(mesh.Vertices[0].Normal), 1e-6)
	assert.InDelta(t, 1, mesh.Vertices[0].Tangent.Len(), 1e-6)
}

func TestParseOBJNegativeIndicesAndColors(t *testing.T) {
	src := `v 0 0 0 1 0 0
v 1 0 0 0 1 0
v 0 1 0 0 0 1
f -3 -2 -1
`
	mesh, err := ParseOBJ(strings.NewReader(src), "tri")
	require.NoError(t, err)
	require.Len(t, mesh.Vertices, 3)
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, mesh.Vertices[0].Color)
	assert.Equal(t, mgl32.Vec3{0, 0, 1}, mesh.Vertices[2].Color)
}

func TestParseOBJErrors(t *testing.T) {
	_, err := ParseOBJ(strings.NewReader("v 0 0 0\nf 1 2 3\n"), "bad")
	assert.ErrorIs(t, err, ErrMalformedOBJ)

	_, err = ParseOBJ(strings.NewReader("v 0 0\n"), "short")
	assert.ErrorIs(t, err, ErrMalformedOBJ)

	_, err = ParseOBJ(strings.NewReader("# nothing\n"), "empty")
	assert.ErrorIs(t, err, core.ErrEmptyMesh)
}

func TestModelLoader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quad.obj.lz4")
	writeFile(t, path, []byte(quadOBJ), true)

	res, err := (&ModelLoader{}).Load(path, metadata.ResourceTypeModel, nil)
	require.NoError(t, err)
	assert.Equal(t, "quad", res.Name)
	mesh := res.Data.(*metadata.MeshData)
	assert.Len(t, mesh.Indices, 6)
	assert.Equal(t, uint64(4*68+6*4), res.DataSize)
}

func assertVec3(t *testing.T, want, got mgl32.Vec3) {
	t.Helper()
	assert.InDeltaSlice(t, want[:], got[:], 1e-5, "got %v", got)
}
