package device

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testArgs struct {
	hd   *Host
	args KernelArgs
	bufs []Buffer
}

// newTestArgs allocates a basin of unit depth at rest with unit spacing
func newTestArgs(t *testing.T, hd *Host, nI, nJ, pI int) *testArgs {
	t.Helper()
	ta := &testArgs{hd: hd}
	alloc := func(n int, dt DataType, fill float32) Buffer {
		buf, err := hd.Malloc(n, dt)
		require.NoError(t, err)
		if dt == Float32 && fill != 0 {
			vals := make([]float32, n)
			for i := range vals {
				vals[i] = fill
			}
			require.NoError(t, hd.CopyToDevice(buf, 0, vals))
		}
		ta.bufs = append(ta.bufs, buf)
		return buf
	}
	var (
		pitched = nI * pI
		b       = float32(1 / math.Sqrt(9.81))
		f       = &ta.args.Fields
	)
	f.D = alloc(pitched, Float32, 1)
	f.H = alloc(pitched, Float32, 0)
	f.HMax = alloc(pitched, Float32, 0)
	f.FM = alloc(pitched, Float32, 0)
	f.FN = alloc(pitched, Float32, 0)
	f.CR1 = alloc(pitched, Float32, 0.1)
	f.CR2 = alloc(pitched, Float32, 0.981)
	f.CR4 = alloc(pitched, Float32, 0.981)
	f.TArr = alloc(pitched, Float32, -1)
	f.CR6 = alloc(nJ, Float32, 1)
	f.CB1 = alloc(nI, Float32, b)
	f.CB2 = alloc(nJ, Float32, b)
	f.CB3 = alloc(nI, Float32, b)
	f.CB4 = alloc(nJ, Float32, b)
	f.MinMax = alloc(4, Int32, 0)
	ta.args.Params = Params{
		NI: nI, NJ: nJ, PI: pI,
		IMin: 2, IMax: nI - 2, JMin: 2, JMax: nJ - 2,
		SSHArrivalThreshold: 1e-3, SSHClipThreshold: 1e-4, SSHZeroThreshold: 1e-5,
		Time: 1,
	}
	return ta
}

func (ta *testArgs) free(t *testing.T) {
	for _, buf := range ta.bufs {
		require.NoError(t, ta.hd.Free(buf))
	}
}

func (ta *testArgs) set(t *testing.T, buf Buffer, i, j int, v float32) {
	require.NoError(t, ta.hd.CopyToDevice(buf, ta.args.Idx(i, j), []float32{v}))
}

func (ta *testArgs) read(t *testing.T, buf Buffer) []float32 {
	out := make([]float32, buf.Len())
	require.NoError(t, ta.hd.CopyFromDevice(out, buf, 0))
	return out
}

func (ta *testArgs) step(t *testing.T) (sig [4]int32) {
	p := &ta.args.Params
	rect := RectGeometry(p.IMax-p.IMin+1, p.JMax-p.JMin+1)
	line := LineGeometry(max(p.NI, p.NJ))
	require.NoError(t, ta.hd.Zero(ta.args.MinMax))
	for _, k := range []Kernel{KernelWaveUpdate, KernelWaveBoundary, KernelFluxUpdate, KernelFluxBoundary, KernelGridExtend} {
		geom := line
		if k == KernelWaveUpdate || k == KernelFluxUpdate {
			geom = rect
		}
		require.NoError(t, ta.hd.Launch(k, geom, &ta.args))
	}
	require.NoError(t, ta.hd.Synchronize())
	require.NoError(t, ta.hd.ReadInt32(sig[:], ta.args.MinMax))
	return
}

func TestKernelsBasinAtRest(t *testing.T) {
	hd := NewHost(HostConfig{Workers: 4})
	ta := newTestArgs(t, hd, 20, 30, 32)
	for s := 0; s < 10; s++ {
		assert.Equal(t, [4]int32{}, ta.step(t))
	}
	for _, buf := range []Buffer{ta.args.H, ta.args.FM, ta.args.FN, ta.args.HMax} {
		for _, v := range ta.read(t, buf) {
			require.Zero(t, v)
		}
	}
	for _, v := range ta.read(t, ta.args.TArr) {
		require.Equal(t, float32(-1), v)
	}
	ta.free(t)
}

func TestKernelsHump(t *testing.T) {
	const nI, nJ, pI = 41, 41, 44
	var (
		hd  = NewHost(HostConfig{Workers: 4})
		ta  = newTestArgs(t, hd, nI, nJ, pI)
		pad = float32(-7)
	)
	// Pad columns hold a sentinel the kernels must never read or write
	for i := 1; i <= nI; i++ {
		for j := nJ + 1; j <= pI; j++ {
			ta.set(t, ta.args.H, i, j, pad)
		}
	}
	ta.set(t, ta.args.H, 21, 21, 1)
	ta.args.IMin, ta.args.IMax, ta.args.JMin, ta.args.JMax = 19, 23, 19, 23

	// The hump reaches the line grid_extend inspects along every edge
	assert.Equal(t, [4]int32{1, 1, 1, 1}, ta.step(t))
	h := ta.read(t, ta.args.H)
	// Outside the active rectangle nothing moves
	assert.Zero(t, h[ta.args.Idx(21, 25)])
	assert.Zero(t, ta.read(t, ta.args.FM)[ta.args.Idx(18, 21)])

	ta.args.IMin, ta.args.IMax, ta.args.JMin, ta.args.JMax = 2, nI-2, 2, nJ-2
	for s := 0; s < 8; s++ {
		ta.step(t)
	}
	var (
		hMax = ta.read(t, ta.args.HMax)
		tArr = ta.read(t, ta.args.TArr)
		at   = func(f []float32, i, j int) float32 { return f[ta.args.Idx(i, j)] }
	)
	h = ta.read(t, ta.args.H)
	// Symmetric about the source under row and column reflection
	for i := 2; i <= 40; i++ {
		for j := 2; j <= 40; j++ {
			assert.InDelta(t, at(h, i, j), at(h, 42-i, j), 1e-5, "(%d,%d)", i, j)
			assert.InDelta(t, at(h, i, j), at(h, i, 42-j), 1e-5, "(%d,%d)", i, j)
		}
	}
	assert.Equal(t, float32(1), at(hMax, 21, 21))
	assert.Equal(t, float32(1), at(tArr, 21, 21))
	assert.Greater(t, at(hMax, 22, 21), float32(0))
	assert.Equal(t, float32(-1), at(tArr, 3, 3))
	for i := 1; i <= nI; i++ {
		for j := nJ + 1; j <= pI; j++ {
			require.Equal(t, pad, at(h, i, j))
		}
	}
	ta.free(t)
}

func TestKernelsWorkerInvariance(t *testing.T) {
	run := func(workers int) []float32 {
		hd := NewHost(HostConfig{Workers: workers})
		ta := newTestArgs(t, hd, 37, 53, 56)
		ta.set(t, ta.args.H, 18, 26, 0.8)
		ta.set(t, ta.args.H, 19, 27, -0.3)
		ta.args.IMin, ta.args.IMax, ta.args.JMin, ta.args.JMax = 2, 35, 2, 51
		for s := 0; s < 25; s++ {
			ta.step(t)
		}
		h := ta.read(t, ta.args.H)
		ta.free(t)
		return h
	}
	assert.Equal(t, run(1), run(7))
}

func TestKernelsBoundaryRadiation(t *testing.T) {
	hd := NewHost(HostConfig{Workers: 2})
	ta := newTestArgs(t, hd, 12, 12, 12)
	// Outgoing flux through the first column
	ta.set(t, ta.args.FN, 5, 1, -0.5)
	require.NoError(t, hd.Launch(KernelWaveBoundary, LineGeometry(12), &ta.args))
	require.NoError(t, hd.Synchronize())
	h := ta.read(t, ta.args.H)
	want := float32(0.5 / math.Sqrt(9.81))
	assert.InDelta(t, want, h[ta.args.Idx(5, 1)], 1e-6)

	ta.set(t, ta.args.FN, 5, 1, 0.5)
	require.NoError(t, hd.Launch(KernelWaveBoundary, LineGeometry(12), &ta.args))
	h = ta.read(t, ta.args.H)
	assert.InDelta(t, -want, h[ta.args.Idx(5, 1)], 1e-6)
	ta.free(t)
}

func TestKernelsCornerRadiation(t *testing.T) {
	const nI, nJ = 12, 12
	hd := NewHost(HostConfig{Workers: 2})
	ta := newTestArgs(t, hd, nI, nJ, 16)
	b := 1 / math.Sqrt(9.81)
	for _, c := range []struct {
		fluxN, fluxM [3]float32 // i, j, value
		corner       [2]int
		want         float64
	}{
		{[3]float32{1, 1, -0.3}, [3]float32{1, 1, 0.4}, [2]int{1, 1}, 0.5 * b},
		{[3]float32{nI, 1, 0.6}, [3]float32{nI - 1, 1, 0.8}, [2]int{nI, 1}, -1.0 * b},
		{[3]float32{1, nJ - 1, -0.6}, [3]float32{1, nJ, 0.8}, [2]int{1, nJ}, -1.0 * b},
		{[3]float32{nI, nJ - 1, 0.3}, [3]float32{nI - 1, nJ, -0.4}, [2]int{nI, nJ}, 0.5 * b},
	} {
		ta.set(t, ta.args.FN, int(c.fluxN[0]), int(c.fluxN[1]), c.fluxN[2])
		ta.set(t, ta.args.FM, int(c.fluxM[0]), int(c.fluxM[1]), c.fluxM[2])
		require.NoError(t, hd.Launch(KernelWaveBoundary, LineGeometry(nI), &ta.args))
		require.NoError(t, hd.Synchronize())
		h := ta.read(t, ta.args.H)
		assert.InDelta(t, c.want, h[ta.args.Idx(c.corner[0], c.corner[1])], 1e-6, "corner %v", c.corner)
	}
	assert.Contains(t, NewKernelProgram().Source(), "if (id == 2)")
	ta.free(t)
}
