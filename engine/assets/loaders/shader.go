package loaders

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spaghettifunk/vkframe/engine/core"
	"github.com/spaghettifunk/vkframe/engine/renderer/metadata"
)

const spirvMagic uint32 = 0x07230203

var ErrInvalidSPIRV = errors.New("invalid SPIR-V module")

type ShaderLoader struct{}

// Load reads a compiled SPIR-V module and returns its words as []uint32.
func (sl *ShaderLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	data, err := readAsset(path)
	if err != nil {
		err = fmt.Errorf("failed to read shader %s: %w", path, err)
		core.LogError(err.Error())
		return nil, err
	}

	code, err := bytesToBytecode(data)
	if err != nil {
		err = fmt.Errorf("shader %s: %w", path, err)
		core.LogError(err.Error())
		return nil, err
	}

	return &metadata.Resource{
		Type:     metadata.ResourceTypeShader,
		Name:     filepath.Base(TrimCompression(path)),
		FullPath: path,
		DataSize: uint64(len(data)),
		Data:     code,
	}, nil
}

func (sl *ShaderLoader) Unload(res *metadata.Resource) error {
	res.Data = nil
	return nil
}

func bytesToBytecode(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: size %d is not a non zero multiple of 4", ErrInvalidSPIRV, len(b))
	}
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}
	if byteCode[0] != spirvMagic {
		return nil, fmt.Errorf("%w: bad magic 0x%08x", ErrInvalidSPIRV, byteCode[0])
	}
	return byteCode, nil
}
