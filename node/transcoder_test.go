package node

import (
	"testing"

	"github.com/notargets/gotsunami/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscoderRoundTrip(t *testing.T) {
	const sentinel = -999
	rd := newRecordingDevice()
	for _, shape := range [][3]int{{1, 1, 1}, {3, 5, 8}, {7, 13, 16}, {4, 4, 4}, {2, 1, 128}} {
		var (
			rows, cols, width = shape[0], shape[1], shape[2]
			src               = make([]float32, rows*cols)
			raw               = make([]float32, rows*width)
			back              = make([]float32, rows*cols)
		)
		for i := range src {
			src[i] = float32(i) + 0.5
		}
		for i := range raw {
			raw[i] = sentinel
		}
		buf, err := rd.Malloc(rows*width, device.Float32)
		require.NoError(t, err)
		require.NoError(t, rd.CopyToDevice(buf, 0, raw))

		rd.reset()
		require.NoError(t, ToDevice(rd, buf, src, rows, cols, width))
		assert.Equal(t, rows, rd.count("CopyToDevice"), "one transfer per row")

		require.NoError(t, rd.CopyFromDevice(raw, buf, 0))
		for r := 0; r < rows; r++ {
			for c := 0; c < width; c++ {
				if c < cols {
					assert.Equal(t, src[r*cols+c], raw[r*width+c])
				} else {
					assert.Equal(t, float32(sentinel), raw[r*width+c], "pad (%d,%d) written", r, c)
				}
			}
		}
		require.NoError(t, FromDevice(rd, back, buf, rows, cols, width))
		assert.Equal(t, src, back)
		require.NoError(t, rd.Free(buf))
	}
	assert.Zero(t, rd.Allocated())
}

func TestTranscoderMisuse(t *testing.T) {
	rd := newRecordingDevice()
	buf, err := rd.Malloc(12, device.Float32)
	require.NoError(t, err)
	assert.Panics(t, func() { _ = ToDevice(rd, nil, make([]float32, 4), 2, 2, 4) })
	assert.Panics(t, func() { _ = ToDevice(rd, buf, nil, 2, 2, 4) })
	assert.Panics(t, func() { _ = FromDevice(rd, make([]float32, 3), buf, 2, 2, 4) })
	assert.Panics(t, func() { _ = FromDevice(rd, make([]float32, 8), buf, 2, 4, 2) })
	assert.Panics(t, func() { _ = ToDevice(rd, buf, make([]float32, 16), 4, 4, 4) })

	// Device faults are returned, not raised
	rd.failOn["CopyToDevice"] = launchFault("CopyToDevice")
	err = ToDevice(rd, buf, make([]float32, 6), 2, 3, 4)
	assert.True(t, device.IsFatal(err))
}
