package metadata

/**
 * @brief A structure to hold image resource data.
 */
type ImageData struct {
	/** @brief The width of the image. */
	Width uint32
	/** @brief The height of the image. */
	Height uint32
	/** @brief The number of channels, always 4 (RGBA8) once decoded. */
	ChannelCount uint8
	/** @brief The pixel data of the image, row major. */
	Pixels []uint8
}

func (i *ImageData) Size() uint64 {
	return uint64(i.Width) * uint64(i.Height) * uint64(i.ChannelCount)
}

/** @brief Parameters used when loading an image. */
type ImageResourceParams struct {
	/** @brief Indicates if the image should be flipped on the y-axis when loaded. */
	FlipY bool
}
