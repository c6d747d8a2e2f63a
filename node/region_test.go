package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegionCheck(t *testing.T) {
	assert.NoError(t, Region{2, 8, 2, 8}.Check(10, 10))
	assert.NoError(t, Region{5, 5, 5, 5}.Check(10, 10))
	assert.Error(t, Region{1, 8, 2, 8}.Check(10, 10))
	assert.Error(t, Region{2, 9, 2, 8}.Check(10, 10))
	assert.Error(t, Region{2, 8, 2, 9}.Check(10, 10))
	assert.Error(t, Region{6, 5, 2, 8}.Check(10, 10))
	// Too small for any interior
	assert.Error(t, Region{2, 2, 2, 2}.Check(3, 10))
	assert.Equal(t, Region{2, 98, 2, 48}, Bounds(100, 50))
	r := Region{3, 7, 10, 41}
	assert.Equal(t, 5, r.Rows())
	assert.Equal(t, 32, r.Cols())
	assert.Equal(t, "[3,7]x[10,41]", r.String())
}

func TestTrackerApply(t *testing.T) {
	{ // One growth step on every edge
		tr := NewTracker(Region{48, 52, 48, 52}, 100, 100, 32)
		assert.Equal(t, Region{47, 53, 16, 53}, tr.Apply(Signal{1, 1, 1, 1}))
	}
	{ // Edges move independently
		tr := NewTracker(Region{48, 52, 48, 52}, 100, 100, 32)
		assert.Equal(t, Region{48, 53, 48, 52}, tr.Apply(Signal{0, 7, 0, 0}))
		assert.Equal(t, Region{48, 53, 16, 52}, tr.Apply(Signal{0, 0, 1, 0}))
		assert.Equal(t, Region{48, 53, 16, 52}, tr.Apply(Signal{}))
	}
	{ // Clamped at the bounds
		tr := NewTracker(Region{2, 98, 2, 98}, 100, 100, 32)
		assert.Equal(t, Region{2, 98, 2, 98}, tr.Apply(Signal{1, 1, 1, 1}))
		tr = NewTracker(Region{3, 5, 20, 30}, 100, 100, 32)
		assert.Equal(t, Region{2, 6, 2, 31}, tr.Apply(Signal{1, 1, 1, 1}))
	}
	{ // Monotone and bounded under arbitrary signals
		var (
			nRows, nCols = 37, 211
			tr           = NewTracker(Region{18, 18, 150, 150}, nRows, nCols, 32)
			b            = Bounds(nRows, nCols)
			prev         = tr.Region()
		)
		for step := 0; step < 400; step++ {
			s := Signal{int32(step % 2), int32(step % 3 % 2), int32(step % 5 % 2), int32(step % 7 % 2)}
			r := tr.Apply(s)
			assert.True(t, r.Contains(prev), "step %d: %s shrank from %s", step, r, prev)
			assert.True(t, b.Contains(r), "step %d: %s exceeds %s", step, r, b)
			prev = r
		}
		assert.Equal(t, b, prev)
	}
	{ // Growth step is configurable
		tr := NewTracker(Region{10, 10, 40, 40}, 100, 100, 8)
		assert.Equal(t, 8, tr.GrowthStepJ())
		assert.Equal(t, 32, tr.Apply(Signal{0, 0, 1, 0}).JMin)
	}
}

func TestTrackerResetAndAlign(t *testing.T) {
	tr := NewTracker(Region{48, 52, 48, 52}, 100, 100, 32)
	tr.Apply(Signal{1, 1, 1, 1})
	tr.Reset(Region{10, 11, 10, 11})
	assert.Equal(t, Region{10, 11, 10, 11}, tr.Region())
	assert.Panics(t, func() { tr.Reset(Region{0, 11, 10, 11}) })
	assert.Panics(t, func() { NewTracker(Region{10, 11, 10, 11}, 100, 100, 0) })

	for jMin := 2; jMin < 98; jMin++ {
		tr.Reset(Region{10, 11, jMin, 98})
		tr.AlignJMin()
		r := tr.Region()
		require.Equal(t, 0, (r.JMin-RegionMargin)%32, "jMin %d", jMin)
		require.LessOrEqual(t, r.JMin, jMin)
		require.Greater(t, r.JMin, jMin-32)
	}
}
