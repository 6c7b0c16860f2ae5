package metadata

// MaxUniformAlignment is the largest minUniformBufferOffsetAlignment
// reported by current drivers. Layouts aligned to it work everywhere.
const MaxUniformAlignment uint64 = 256

// GetAligned rounds operand up to the next multiple of granularity, which
// must be a power of two.
func GetAligned(operand, granularity uint64) uint64 {
	val := (operand + (granularity - 1)) &^ (granularity - 1)
	return val
}
