package loaders

import (
	"fmt"
	"image"
	"io"
	"path/filepath"

	// Decoders register themselves with image.Decode.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/spaghettifunk/vkframe/engine/core"
	"github.com/spaghettifunk/vkframe/engine/renderer/metadata"
)

type ImageLoader struct{}

// Load decodes an image into RGBA8 pixels. params may be a
// metadata.ImageResourceParams (or a pointer to one); without it the image
// is flipped on the y-axis.
func (il *ImageLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	flipY := true
	switch p := params.(type) {
	case metadata.ImageResourceParams:
		flipY = p.FlipY
	case *metadata.ImageResourceParams:
		if p != nil {
			flipY = p.FlipY
		}
	}

	r, err := openAsset(path)
	if err != nil {
		err = fmt.Errorf("failed to open image %s: %w", path, err)
		core.LogError(err.Error())
		return nil, err
	}
	defer r.Close()

	img, err := DecodeImage(r, flipY)
	if err != nil {
		err = fmt.Errorf("failed to decode image %s: %w", path, err)
		core.LogError(err.Error())
		return nil, err
	}

	return &metadata.Resource{
		Type:     metadata.ResourceTypeImage,
		Name:     filepath.Base(TrimCompression(path)),
		FullPath: path,
		DataSize: img.Size(),
		Data:     img,
	}, nil
}

func (il *ImageLoader) Unload(res *metadata.Resource) error {
	res.Data = nil
	return nil
}

// DecodeImage decodes any registered format and converts it to tightly
// packed RGBA8.
func DecodeImage(r io.Reader, flipY bool) (*metadata.ImageData, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return nil, err
	}
	bounds := src.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("%s image has no pixels", format)
	}

	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), src, bounds.Min, draw.Src)

	width, height := bounds.Dx(), bounds.Dy()
	rowSize := width * 4
	pixels := make([]uint8, rowSize*height)
	for y := 0; y < height; y++ {
		srcRow := y
		if flipY {
			srcRow = height - 1 - y
		}
		copy(pixels[y*rowSize:(y+1)*rowSize], rgba.Pix[srcRow*rgba.Stride:srcRow*rgba.Stride+rowSize])
	}

	return &metadata.ImageData{
		Width:        uint32(width),
		Height:       uint32(height),
		ChannelCount: 4,
		Pixels:       pixels,
	}, nil
}
