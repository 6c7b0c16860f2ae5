package core

import (
	"errors"
)

var (
	ErrSwapchainBooting    = errors.New("swapchain resized or recreated, booting")
	ErrSwapchainOutOfDate  = errors.New("swapchain out of date")
	ErrFenceTimeout        = errors.New("fence wait timed out")
	ErrDeviceLost          = errors.New("device lost")
	ErrNotInitialized      = errors.New("render system not initialized")
	ErrRenderSystemFaulted = errors.New("render system faulted, cleanup required")

	ErrUnknownMesh        = errors.New("unknown mesh")
	ErrUnknownMaterial    = errors.New("unknown material")
	ErrUniformOutOfBounds = errors.New("uniform block outside of declared bindings")
	ErrEmptyMesh          = errors.New("mesh has no vertices or indices")
	ErrIndexOutOfRange    = errors.New("mesh index references a missing vertex")
	ErrNoTextures         = errors.New("material has no textures")
	ErrTooManyTextures    = errors.New("material has more textures than texture slots")

	ErrAssetNotFound    = errors.New("asset not found")
	ErrUnsupportedAsset = errors.New("unsupported asset type")

	ErrUnknown = errors.New("unknown")
)
