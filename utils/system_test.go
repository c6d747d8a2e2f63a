package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNan(t *testing.T) {
	assert.False(t, IsNan([]float32{0, 1, -2}))
	assert.True(t, IsNan([]float32{0, float32(math.NaN())}))
	assert.True(t, IsNan(float32(math.Inf(1))))
	assert.True(t, IsNan([]float64{1, math.Inf(-1)}))
	assert.False(t, IsNan("not a number"))
	assert.Contains(t, GetMemUsage(), "MiB")
}
