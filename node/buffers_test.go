package node

import (
	"testing"

	"github.com/notargets/gotsunami/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferSet(t *testing.T) {
	var (
		rd   = newRecordingDevice()
		geom = Geometry{NRows: 6, NCols: 10, StorageWidth: 12}
		bs   = NewBufferSet(rd, geom)
	)
	assert.ErrorIs(t, bs.Release(), ErrNotAllocated)
	require.NoError(t, bs.Allocate())
	assert.True(t, bs.Allocated())
	assert.Equal(t, 15, rd.Allocated())
	for _, b := range []device.Buffer{bs.D, bs.H, bs.HMax, bs.FM, bs.FN, bs.CR1, bs.CR2, bs.CR4, bs.TArr} {
		assert.Equal(t, 72, b.Len())
		assert.Equal(t, device.Float32, b.Type())
	}
	for _, b := range []device.Buffer{bs.CR6, bs.CB2, bs.CB4} {
		assert.Equal(t, 10, b.Len())
	}
	for _, b := range []device.Buffer{bs.CB1, bs.CB3} {
		assert.Equal(t, 6, b.Len())
	}
	assert.Equal(t, 4, bs.MinMax.Len())
	assert.Equal(t, device.Int32, bs.MinMax.Type())
	assert.Panics(t, func() { _ = bs.Allocate() })

	require.NoError(t, bs.Release())
	assert.Zero(t, rd.Allocated())
	assert.False(t, bs.Allocated())
	assert.Nil(t, bs.H)
	assert.ErrorIs(t, bs.Release(), ErrNotAllocated)
}

func TestBufferSetPartialAllocation(t *testing.T) {
	var (
		rd = &failAfterDevice{recordingDevice: newRecordingDevice(), limit: 2}
		bs = NewBufferSet(rd, Geometry{NRows: 6, NCols: 10, StorageWidth: 12})
	)
	err := bs.Allocate()
	require.Error(t, err)
	assert.True(t, device.IsFatal(err))
	assert.Contains(t, err.Error(), "allocating hMax")
	assert.False(t, bs.Allocated())
	assert.Equal(t, 2, rd.Allocated())
	// Partial sets are released
	assert.NoError(t, bs.Release())
	assert.Zero(t, rd.Allocated())
}

// failAfterDevice runs out of memory once limit buffers are live
type failAfterDevice struct {
	*recordingDevice
	limit int
}

func (fd *failAfterDevice) Malloc(n int, dt device.DataType) (device.Buffer, error) {
	if fd.recordingDevice.Allocated() >= fd.limit {
		return nil, &device.Fault{Op: "Malloc", Code: device.CodeOutOfMemory}
	}
	return fd.recordingDevice.Malloc(n, dt)
}
