package device

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKernelProgramSource(t *testing.T) {
	kp := NewKernelProgram()
	assert.Empty(t, kp.GetKernelPreamble())
	src := kp.Source()
	assert.NotEmpty(t, kp.GetKernelPreamble())
	assert.True(t, strings.HasPrefix(src, kp.GetKernelPreamble()))

	for k := Kernel(0); k < NumKernels; k++ {
		assert.Equal(t, 1, strings.Count(src, "__kernel void "+k.String()+"(KERNEL_ARGS)"), k.String())
	}
	assert.Contains(t, src, "#define BLOCK_X 32")
	assert.Contains(t, src, "#define BLOCK_Y 8")
	assert.Contains(t, src, "#define LINE_BLOCK 256")

	// Argument list order is the binding order
	line := src[strings.Index(src, "#define KERNEL_ARGS"):]
	line = line[:strings.Index(line, "\n")]
	last := -1
	for _, name := range ArgNames {
		pos := strings.Index(line, " "+name)
		if assert.Greater(t, pos, last, name) {
			last = pos
		}
	}
	assert.Contains(t, line, "const int nI")
	assert.Contains(t, line, "const real_t mTime")
	assert.Contains(t, line, "__global int* minMax")
	assert.Contains(t, line, "__global real_t* cB4")
	assert.Len(t, ArgNames, numScalarArgs+15)
}
