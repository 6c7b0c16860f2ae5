package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameMetricsAveragesAndFPS(t *testing.T) {
	m := NewFrameMetrics()

	flushed := false
	for i := 0; i < 100; i++ {
		if m.Update(0.010) {
			flushed = true
		}
	}
	assert.True(t, flushed)
	assert.InDelta(t, 10.0, m.FrameTime(), 0.001)
	assert.InDelta(t, 100.0, m.FPS(), 1.0)
}
