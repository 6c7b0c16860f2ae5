package testbed

import (
	"bytes"
	"encoding/binary"
	"image/png"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vkframe/engine/config"
	"github.com/spaghettifunk/vkframe/engine/renderer/metadata"
)

func TestMatrixBytes(t *testing.T) {
	b := matrixBytes(mgl32.Ident4(), mgl32.Translate3D(1, 2, 3))
	require.Len(t, b, 128)
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(b[0:4])))
	// column major: translation lives in elements 12..14 of the second matrix
	assert.Equal(t, float32(2), math.Float32frombits(binary.LittleEndian.Uint32(b[64+13*4:])))
}

func TestProjectionFlipsY(t *testing.T) {
	p := projection(1280, 720)
	gl := mgl32.Perspective(mgl32.DegToRad(fieldOfView), 1280.0/720.0, 0.1, 1000.0)
	assert.Equal(t, -gl[5], p[5])
	assert.Equal(t, gl[0], p[0])
}

func TestRenderFitsDefaultUniformLayout(t *testing.T) {
	g := NewTestGame()
	require.NoError(t, g.OnResize(800, 600))
	require.NoError(t, g.Update(0.016))

	frame := &metadata.Frame{}
	require.NoError(t, g.Render(frame, 0.016))
	require.Len(t, frame.Passes, 1)
	assert.Equal(t, 1, frame.DrawCount())

	layout := config.Default().UniformDescriptor()
	assert.True(t, layout.Contains(frame.Passes[0].Uniforms))
	assert.True(t, layout.Contains(frame.Passes[0].Objects[0].Uniforms))
}

func TestWriteChecker(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteChecker(&buf, 64, 16))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())

	r0, _, _, _ := img.At(0, 0).RGBA()
	r1, _, _, _ := img.At(16, 0).RGBA()
	assert.NotEqual(t, r0, r1)
}
