package assets

import (
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vkframe/engine/core"
	"github.com/spaghettifunk/vkframe/engine/renderer"
	"github.com/spaghettifunk/vkframe/engine/renderer/metadata"
)

var _ renderer.ImageSource = (*AssetManager)(nil)

func writePNG(t *testing.T, path string, top color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1, 2))
	img.Set(0, 0, top)
	img.Set(0, 1, color.RGBA{G: 255, A: 255})
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func newAssetsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "shaders"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "textures"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "models"), 0o755))

	spv := make([]byte, 8)
	binary.LittleEndian.PutUint32(spv, 0x07230203)
	binary.LittleEndian.PutUint32(spv[4:], 0x00010000)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shaders", "builtin.vert.spv"), spv, 0o644))

	writePNG(t, filepath.Join(dir, "textures", "checker.png"), color.RGBA{R: 255, A: 255})

	obj := "v 0 0 0\nv 1 0 0\nv 0 1 0\nvt 0 0\nvt 1 0\nvt 0 1\nf 1/1 2/2 3/3\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "models", "tri.obj"), []byte(obj), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("ignored"), 0o644))
	return dir
}

func TestDetermineAssetType(t *testing.T) {
	cases := map[string]metadata.ResourceType{
		"shaders/builtin.frag.spv":     metadata.ResourceTypeShader,
		"shaders/builtin.frag.spv.lz4": metadata.ResourceTypeShader,
		"textures/a.PNG":               metadata.ResourceTypeImage,
		"textures/a.jpeg":              metadata.ResourceTypeImage,
		"textures/a.webp.lz4":          metadata.ResourceTypeImage,
		"models/car.obj":               metadata.ResourceTypeModel,
		"models/car.mtl":               metadata.ResourceTypeNone,
		"data.lz4":                     metadata.ResourceTypeNone,
		"Makefile":                     metadata.ResourceTypeNone,
	}
	for path, want := range cases {
		assert.Equal(t, want, determineAssetType(path), path)
	}
}

func TestAssetManagerIndexesAndLoads(t *testing.T) {
	dir := newAssetsDir(t)
	am, err := NewAssetManager(dir, false, true)
	require.NoError(t, err)
	require.NoError(t, am.Initialize())
	defer am.Shutdown()

	info, ok := am.Info("textures/checker.png")
	require.True(t, ok)
	assert.Equal(t, metadata.ResourceTypeImage, info.Type)
	assert.True(t, info.LastLoaded.IsZero())
	_, ok = am.Info("README.txt")
	assert.False(t, ok)

	code, err := am.LoadShader("shaders/builtin.vert.spv")
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x07230203, 0x00010000}, code)

	img, err := am.LoadImage("textures/checker.png")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), img.Width)
	assert.Equal(t, uint32(2), img.Height)
	// flipped: the green bottom row comes first
	assert.Equal(t, []uint8{0, 255, 0, 255}, img.Pixels[0:4])

	info, ok = am.Info("textures/checker.png")
	require.True(t, ok)
	assert.False(t, info.LastLoaded.IsZero())

	mesh, err := am.LoadMesh(filepath.Join(dir, "models", "tri.obj"))
	require.NoError(t, err)
	assert.Equal(t, "tri", mesh.Name)
	assert.Len(t, mesh.Vertices, 3)
	assert.Equal(t, []uint32{0, 1, 2}, mesh.Indices)
}

func TestAssetManagerErrors(t *testing.T) {
	dir := newAssetsDir(t)
	am, err := NewAssetManager(dir, false, false)
	require.NoError(t, err)
	require.NoError(t, am.Initialize())

	_, err = am.LoadImage("textures/missing.png")
	assert.ErrorIs(t, err, core.ErrAssetNotFound)

	_, err = am.LoadShader("textures/checker.png")
	assert.ErrorIs(t, err, core.ErrUnsupportedAsset)

	_, err = am.LoadAsset("README.txt", nil)
	assert.ErrorIs(t, err, core.ErrUnsupportedAsset)

	missing, err := NewAssetManager(filepath.Join(dir, "nope"), false, false)
	require.NoError(t, err)
	assert.Error(t, missing.Initialize())
}

func TestAssetManagerPicksUpFilesAddedLater(t *testing.T) {
	dir := newAssetsDir(t)
	am, err := NewAssetManager(dir, false, false)
	require.NoError(t, err)
	require.NoError(t, am.Initialize())

	writePNG(t, filepath.Join(dir, "textures", "late.png"), color.RGBA{B: 255, A: 255})
	img, err := am.LoadImage("textures/late.png")
	require.NoError(t, err)
	// not flipped
	assert.Equal(t, []uint8{0, 0, 255, 255}, img.Pixels[0:4])
}

func TestAssetManagerWatchPublishesChanges(t *testing.T) {
	dir := newAssetsDir(t)
	am, err := NewAssetManager(dir, true, true)
	require.NoError(t, err)
	require.NoError(t, am.Initialize())

	path := filepath.Join(dir, "textures", "checker.png")
	writePNG(t, path, color.RGBA{B: 255, A: 255})

	select {
	case change := <-am.Changes():
		assert.Equal(t, path, change.Path)
		assert.Equal(t, metadata.ResourceTypeImage, change.Type)
		assert.False(t, change.Removed)
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification received")
	}

	require.NoError(t, am.Shutdown())
	// drained and closed after shutdown
	for range am.Changes() {
	}
	require.NoError(t, am.Shutdown())
}
