package device

import "fmt"

// DataType is the element type of a device buffer
type DataType int

const (
	Float32 DataType = iota
	Int32
)

// Size returns the element size in bytes
func (dt DataType) Size() int {
	return 4
}

func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	}
	return fmt.Sprintf("DataType(%d)", int(dt))
}

// Buffer is an opaque handle to device memory owned by a Device
type Buffer interface {
	Len() int // Number of elements
	Type() DataType
}

// Device is the allocator, transfer engine and kernel launcher used by the
// time stepping node. All offsets and lengths are in elements.
type Device interface {
	Name() string
	// MallocPitch allocates a height x widthBytes 2D region and reports the
	// row stride in bytes preferred by the hardware
	MallocPitch(widthBytes, height int) (buf Buffer, pitch int, err error)
	Malloc(n int, dt DataType) (Buffer, error)
	Free(buf Buffer) error
	CopyToDevice(dst Buffer, offset int, src []float32) error
	CopyFromDevice(dst []float32, src Buffer, offset int) error
	ReadInt32(dst []int32, src Buffer) error
	Zero(buf Buffer) error
	Launch(k Kernel, geom LaunchGeometry, args *KernelArgs) error
	Synchronize() error
	Close() error
}

// Dim is a two dimensional launch extent, X is the contiguous (column) axis
type Dim struct {
	X, Y int
}

// LaunchGeometry is a grid of thread blocks
type LaunchGeometry struct {
	Blocks, Threads Dim
}

// Global returns the total number of threads along each axis
func (lg LaunchGeometry) Global() Dim {
	return Dim{X: lg.Blocks.X * lg.Threads.X, Y: lg.Blocks.Y * lg.Threads.Y}
}

const (
	BlockThreadsX  = 32
	BlockThreadsY  = 8
	LineBlockWidth = 256
)

// RectGeometry covers an nI x nJ rectangle of cells with 32x8 thread blocks,
// rounding up to whole blocks
func RectGeometry(nI, nJ int) LaunchGeometry {
	return LaunchGeometry{
		Blocks:  Dim{X: ceilDiv(nJ, BlockThreadsX), Y: ceilDiv(nI, BlockThreadsY)},
		Threads: Dim{X: BlockThreadsX, Y: BlockThreadsY},
	}
}

// LineGeometry covers n cells with one dimensional 256 thread blocks
func LineGeometry(n int) LaunchGeometry {
	return LaunchGeometry{
		Blocks:  Dim{X: ceilDiv(n, LineBlockWidth), Y: 1},
		Threads: Dim{X: LineBlockWidth, Y: 1},
	}
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Kernel identifies one of the five stepping kernels
type Kernel int

const (
	KernelWaveUpdate Kernel = iota
	KernelWaveBoundary
	KernelFluxUpdate
	KernelFluxBoundary
	KernelGridExtend
	NumKernels
)

var kernelNames = [NumKernels]string{
	"wave_update",
	"wave_boundary",
	"flux_update",
	"flux_boundary",
	"grid_extend",
}

func (k Kernel) String() string {
	if k < 0 || k >= NumKernels {
		return fmt.Sprintf("Kernel(%d)", int(k))
	}
	return kernelNames[k]
}

// Params is the scalar state handed to every kernel. Grid indices are one
// based: i in [1,NI] runs over rows, j in [1,NJ] over the contiguous axis.
type Params struct {
	NI, NJ int // Logical rows and columns
	PI     int // Storage width (row stride) in elements

	IMin, IMax, JMin, JMax int // Active rectangle

	SSHArrivalThreshold float32
	SSHClipThreshold    float32
	SSHZeroThreshold    float32
	Time                float32
}

// Idx maps a one based (i,j) cell to its offset in a pitched buffer
func (p Params) Idx(i, j int) int {
	return (j - 1) + (i-1)*p.PI
}

// Fields holds the device buffers read and written by the kernels
type Fields struct {
	// NI x PI pitched
	D, H, HMax, FM, FN, CR1, CR2, CR4, TArr Buffer
	// Indexed by column, NJ long
	CR6, CB2, CB4 Buffer
	// Indexed by row, NI long
	CB1, CB3 Buffer
	// Four int32 expansion counters
	MinMax Buffer
}

// KernelArgs is the complete argument block for a kernel launch
type KernelArgs struct {
	Fields
	Params
}
