package components

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestCameraViewFollowsPosition(t *testing.T) {
	c := NewCamera()
	assert.Equal(t, mgl32.Ident4(), c.GetView())

	c.SetPosition(mgl32.Vec3{0, 0, 5})
	origin := c.GetView().Mul4x1(mgl32.Vec4{0, 0, 0, 1}).Vec3()
	assertVec3(t, mgl32.Vec3{0, 0, -5}, origin)
	assert.False(t, c.IsDirty)
}

func TestCameraYawTurnsForward(t *testing.T) {
	c := NewCamera()
	assertVec3(t, mgl32.Vec3{0, 0, -1}, c.Forward())
	assertVec3(t, mgl32.Vec3{1, 0, 0}, c.Right())

	c.Yaw(mgl32.DegToRad(90))
	assertVec3(t, mgl32.Vec3{-1, 0, 0}, c.Forward())

	c.MoveForward(2)
	assertVec3(t, mgl32.Vec3{-2, 0, 0}, c.GetPosition())
}

func TestCameraPitchIsClamped(t *testing.T) {
	c := NewCamera()
	c.Pitch(10)
	assert.Equal(t, pitchLimit, c.GetEulerRotation().X())
	c.Pitch(-20)
	assert.Equal(t, -pitchLimit, c.GetEulerRotation().X())
}

func TestCameraMoveUpDown(t *testing.T) {
	c := NewCamera()
	c.MoveUp(3)
	c.MoveDown(1)
	c.MoveLeft(1)
	assertVec3(t, mgl32.Vec3{-1, 2, 0}, c.GetPosition())
}

func assertVec3(t *testing.T, want, got mgl32.Vec3) {
	t.Helper()
	assert.InDeltaSlice(t, want[:], got[:], 1e-5, "got %v", got)
}
