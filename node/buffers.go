package node

import (
	"errors"
	"fmt"

	"github.com/notargets/gotsunami/device"
)

// ErrNotAllocated is returned by Release on a set that holds no buffers
var ErrNotAllocated = errors.New("buffer set not allocated")

// BufferSet owns every device buffer of a run. Buffers are allocated once,
// sized by the padded geometry, and released together.
type BufferSet struct {
	device.Fields

	dev       device.Device
	geom      Geometry
	allocated bool
}

type bufferSpec struct {
	name string
	buf  *device.Buffer
	n    int
	dt   device.DataType
}

func NewBufferSet(dev device.Device, geom Geometry) *BufferSet {
	return &BufferSet{dev: dev, geom: geom}
}

func (bs *BufferSet) specs() []bufferSpec {
	var (
		pitched      = bs.geom.Pitched()
		nRows, nCols = bs.geom.NRows, bs.geom.NCols
	)
	return []bufferSpec{
		{"d", &bs.D, pitched, device.Float32},
		{"h", &bs.H, pitched, device.Float32},
		{"hMax", &bs.HMax, pitched, device.Float32},
		{"fM", &bs.FM, pitched, device.Float32},
		{"fN", &bs.FN, pitched, device.Float32},
		{"cR1", &bs.CR1, pitched, device.Float32},
		{"cR2", &bs.CR2, pitched, device.Float32},
		{"cR4", &bs.CR4, pitched, device.Float32},
		{"tArr", &bs.TArr, pitched, device.Float32},
		{"cR6", &bs.CR6, nCols, device.Float32},
		{"cB1", &bs.CB1, nRows, device.Float32},
		{"cB2", &bs.CB2, nCols, device.Float32},
		{"cB3", &bs.CB3, nRows, device.Float32},
		{"cB4", &bs.CB4, nCols, device.Float32},
		{"g_MinMax", &bs.MinMax, len(Signal{}), device.Int32},
	}
}

// Allocate creates all buffers. Contents are not initialized.
func (bs *BufferSet) Allocate() error {
	if bs.allocated {
		panic("buffer set allocated twice")
	}
	for _, s := range bs.specs() {
		buf, err := bs.dev.Malloc(s.n, s.dt)
		if err != nil {
			return fmt.Errorf("allocating %s (%d bytes): %w", s.name, s.n*s.dt.Size(), err)
		}
		*s.buf = buf
	}
	bs.allocated = true
	return nil
}

// Allocated reports whether Allocate completed
func (bs *BufferSet) Allocated() bool { return bs.allocated }

// Release frees every buffer that is held, including those of a partially
// completed Allocate, and returns the first failure
func (bs *BufferSet) Release() (err error) {
	var freed int
	for _, s := range bs.specs() {
		if *s.buf == nil {
			continue
		}
		if ferr := bs.dev.Free(*s.buf); ferr != nil && err == nil {
			err = fmt.Errorf("freeing %s: %w", s.name, ferr)
		}
		*s.buf = nil
		freed++
	}
	bs.allocated = false
	if freed == 0 && err == nil {
		return ErrNotAllocated
	}
	return err
}

// HostFields are the natural row major host arrays of a run, nRows x nCols
// for 2D fields
type HostFields struct {
	NRows, NCols int

	D, H, HMax, FM, FN, R1, R2, R4, TArr []float32
	// Indexed by column
	R6, B2, B4 []float32
	// Indexed by row
	B1, B3 []float32
}

func NewHostFields(nRows, nCols int) *HostFields {
	n := nRows * nCols
	return &HostFields{
		NRows: nRows, NCols: nCols,
		D: make([]float32, n), H: make([]float32, n), HMax: make([]float32, n),
		FM: make([]float32, n), FN: make([]float32, n),
		R1: make([]float32, n), R2: make([]float32, n), R4: make([]float32, n),
		TArr: make([]float32, n),
		R6:   make([]float32, nCols), B2: make([]float32, nCols), B4: make([]float32, nCols),
		B1: make([]float32, nRows), B3: make([]float32, nRows),
	}
}

// Idx is the zero based row major offset of (row, col)
func (hf *HostFields) Idx(row, col int) int {
	return row*hf.NCols + col
}

func (hf *HostFields) check(nRows, nCols int) {
	if hf == nil {
		panic("nil host fields")
	}
	if hf.NRows != nRows || hf.NCols != nCols {
		panic(fmt.Sprintf("host fields are %dx%d, grid is %dx%d", hf.NRows, hf.NCols, nRows, nCols))
	}
	var (
		n      = nRows * nCols
		fields = []struct {
			name string
			f    []float32
			want int
		}{
			{"D", hf.D, n}, {"H", hf.H, n}, {"HMax", hf.HMax, n}, {"FM", hf.FM, n}, {"FN", hf.FN, n},
			{"R1", hf.R1, n}, {"R2", hf.R2, n}, {"R4", hf.R4, n}, {"TArr", hf.TArr, n},
			{"R6", hf.R6, nCols}, {"B2", hf.B2, nCols}, {"B4", hf.B4, nCols},
			{"B1", hf.B1, nRows}, {"B3", hf.B3, nRows},
		}
	)
	for _, fd := range fields {
		if len(fd.f) != fd.want {
			panic(fmt.Sprintf("host field %s holds %d elements, want %d", fd.name, len(fd.f), fd.want))
		}
	}
}
