//go:build opencl

package device

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"
)

// OpenCLConfig configures the OpenCL backend
type OpenCLConfig struct {
	PitchAlignment int  // Row stride alignment in bytes (default: 512)
	PreferCPU      bool // Select a CPU device even when a GPU is present
}

// OpenCL runs the generated kernel program on the first OpenCL GPU (or CPU)
// device found
type OpenCL struct {
	PitchAlignment int

	context    *cl.Context
	queue      *cl.CommandQueue
	program    *cl.Program
	kernels    [NumKernels]*cl.Kernel
	deviceName string
	live       map[*clBuffer]struct{}
}

type clBuffer struct {
	mem *cl.MemObject
	dt  DataType
	n   int
}

func (b *clBuffer) Len() int       { return b.n }
func (b *clBuffer) Type() DataType { return b.dt }

// OpenCLAvailable reports whether this binary was built with OpenCL support
const OpenCLAvailable = true

func openOpenCL(cfg OpenCLConfig) (Device, error) {
	ocl, err := NewOpenCL(cfg)
	if err != nil {
		return nil, err
	}
	return ocl, nil
}

// NewOpenCL selects a device, builds the kernel program and creates one
// kernel object per stepping kernel
func NewOpenCL(cfg OpenCLConfig) (*OpenCL, error) {
	if cfg.PitchAlignment == 0 {
		cfg.PitchAlignment = 512
	}
	platforms, err := cl.GetPlatforms()
	if err != nil {
		msg := "querying OpenCL platforms"
		if strings.Contains(err.Error(), "-1001") {
			msg += ": no ICD loader reported any platforms; install OpenCL drivers and verify with `clinfo`"
		}
		return nil, &Fault{Op: "GetPlatforms", Code: CodeNotInitialized, Msg: fmt.Sprintf("%s: %v", msg, err)}
	}
	if len(platforms) == 0 {
		return nil, &Fault{Op: "GetPlatforms", Code: CodeNotInitialized, Msg: "no OpenCL platforms available"}
	}
	order := []cl.DeviceType{cl.DeviceTypeGPU, cl.DeviceTypeCPU}
	if cfg.PreferCPU {
		order = []cl.DeviceType{cl.DeviceTypeCPU, cl.DeviceTypeGPU}
	}
	var device *cl.Device
	for _, dt := range order {
		for _, p := range platforms {
			devices, derr := p.GetDevices(dt)
			if derr != nil && derr != cl.ErrDeviceNotFound {
				continue
			}
			if len(devices) > 0 {
				device = devices[0]
				break
			}
		}
		if device != nil {
			break
		}
	}
	if device == nil {
		return nil, &Fault{Op: "GetDevices", Code: CodeNotInitialized, Msg: "no suitable OpenCL devices found"}
	}

	ocl := &OpenCL{
		PitchAlignment: cfg.PitchAlignment,
		deviceName:     device.Name(),
		live:           make(map[*clBuffer]struct{}),
	}
	if ocl.context, err = cl.CreateContext([]*cl.Device{device}); err != nil {
		return nil, clFault("CreateContext", err)
	}
	if ocl.queue, err = ocl.context.CreateCommandQueue(device, 0); err != nil {
		ocl.release()
		return nil, clFault("CreateCommandQueue", err)
	}
	source := NewKernelProgram().Source()
	if ocl.program, err = ocl.context.CreateProgramWithSource([]string{source}); err != nil {
		ocl.release()
		return nil, clFault("CreateProgramWithSource", err)
	}
	if err = ocl.program.BuildProgram([]*cl.Device{device}, ""); err != nil {
		ocl.release()
		var buildErr cl.BuildError
		if errors.As(err, &buildErr) {
			return nil, &Fault{Op: "BuildProgram", Code: CodeLaunchFailure, Msg: string(buildErr)}
		}
		return nil, clFault("BuildProgram", err)
	}
	for k := Kernel(0); k < NumKernels; k++ {
		if ocl.kernels[k], err = ocl.program.CreateKernel(k.String()); err != nil {
			ocl.release()
			return nil, clFault("CreateKernel "+k.String(), err)
		}
	}
	return ocl, nil
}

func clFault(op string, err error) *Fault {
	return &Fault{Op: op, Code: CodeLaunchFailure, Msg: err.Error()}
}

func (ocl *OpenCL) Name() string {
	return "opencl: " + ocl.deviceName
}

// MallocPitch has no native OpenCL counterpart; the pitch is the row width
// rounded up to PitchAlignment
func (ocl *OpenCL) MallocPitch(widthBytes, height int) (Buffer, int, error) {
	if widthBytes <= 0 || height <= 0 {
		return nil, 0, newFault("MallocPitch", CodeInvalidValue, "width %d bytes, height %d", widthBytes, height)
	}
	pitch := ceilDiv(widthBytes, ocl.PitchAlignment) * ocl.PitchAlignment
	buf, err := ocl.malloc("MallocPitch", pitch/Float32.Size()*height, Float32)
	if err != nil {
		return nil, 0, err
	}
	return buf, pitch, nil
}

func (ocl *OpenCL) Malloc(n int, dt DataType) (Buffer, error) {
	return ocl.malloc("Malloc", n, dt)
}

func (ocl *OpenCL) malloc(op string, n int, dt DataType) (Buffer, error) {
	if n <= 0 {
		return nil, newFault(op, CodeInvalidValue, "%d elements of %s", n, dt)
	}
	mem, err := ocl.context.CreateEmptyBuffer(cl.MemReadWrite, n*dt.Size())
	if err != nil {
		return nil, &Fault{Op: op, Code: CodeOutOfMemory, Msg: err.Error()}
	}
	b := &clBuffer{mem: mem, dt: dt, n: n}
	ocl.live[b] = struct{}{}
	return b, nil
}

func (ocl *OpenCL) lookup(op string, buf Buffer) (*clBuffer, error) {
	b, ok := buf.(*clBuffer)
	if !ok || b == nil {
		return nil, newFault(op, CodeInvalidHandle, "foreign buffer %T", buf)
	}
	if _, ok = ocl.live[b]; !ok {
		return nil, newFault(op, CodeInvalidHandle, "buffer not allocated")
	}
	return b, nil
}

func (ocl *OpenCL) Free(buf Buffer) error {
	b, err := ocl.lookup("Free", buf)
	if err != nil {
		return err
	}
	delete(ocl.live, b)
	b.mem.Release()
	b.mem = nil
	return nil
}

func (ocl *OpenCL) CopyToDevice(dst Buffer, offset int, src []float32) error {
	b, err := ocl.lookup("CopyToDevice", dst)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(src) > b.n {
		return newFault("CopyToDevice", CodeInvalidValue, "range [%d,%d) outside buffer of %d", offset, offset+len(src), b.n)
	}
	if _, err = ocl.queue.EnqueueWriteBufferFloat32(b.mem, true, offset*Float32.Size(), src, nil); err != nil {
		return clFault("CopyToDevice", err)
	}
	return nil
}

func (ocl *OpenCL) CopyFromDevice(dst []float32, src Buffer, offset int) error {
	b, err := ocl.lookup("CopyFromDevice", src)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(dst) > b.n {
		return newFault("CopyFromDevice", CodeInvalidValue, "range [%d,%d) outside buffer of %d", offset, offset+len(dst), b.n)
	}
	if _, err = ocl.queue.EnqueueReadBufferFloat32(b.mem, true, offset*Float32.Size(), dst, nil); err != nil {
		return clFault("CopyFromDevice", err)
	}
	return nil
}

func (ocl *OpenCL) ReadInt32(dst []int32, src Buffer) error {
	b, err := ocl.lookup("ReadInt32", src)
	if err != nil {
		return err
	}
	if len(dst) == 0 {
		return nil
	}
	if len(dst) > b.n {
		return newFault("ReadInt32", CodeInvalidValue, "read of %d from buffer of %d", len(dst), b.n)
	}
	if _, err = ocl.queue.EnqueueReadBuffer(b.mem, true, 0, len(dst)*Int32.Size(), unsafe.Pointer(&dst[0]), nil); err != nil {
		return clFault("ReadInt32", err)
	}
	return nil
}

func (ocl *OpenCL) Zero(buf Buffer) error {
	b, err := ocl.lookup("Zero", buf)
	if err != nil {
		return err
	}
	zeros := make([]byte, b.n*b.dt.Size())
	if _, err = ocl.queue.EnqueueWriteBuffer(b.mem, true, 0, len(zeros), unsafe.Pointer(&zeros[0]), nil); err != nil {
		return clFault("Zero", err)
	}
	return nil
}

func (ocl *OpenCL) Launch(k Kernel, geom LaunchGeometry, args *KernelArgs) error {
	if k < 0 || k >= NumKernels {
		return newFault("Launch", CodeLaunchFailure, "unknown kernel %s", k)
	}
	if args == nil {
		return newFault("Launch", CodeInvalidValue, "nil kernel arguments")
	}
	var (
		kernel = ocl.kernels[k]
		p      = args.Params
		mems   = []Buffer{
			args.D, args.H, args.HMax, args.FM, args.FN, args.CR1, args.CR2, args.CR4, args.TArr,
			args.CR6, args.CB1, args.CB2, args.CB3, args.CB4, args.MinMax,
		}
		argv = []interface{}{
			int32(p.NI), int32(p.NJ), int32(p.PI),
			int32(p.IMin), int32(p.IMax), int32(p.JMin), int32(p.JMax),
			p.SSHArrivalThreshold, p.SSHClipThreshold, p.SSHZeroThreshold, p.Time,
		}
	)
	for n, m := range mems {
		b, err := ocl.lookup("Launch", m)
		if err != nil {
			return fmt.Errorf("argument %s: %w", ArgNames[numScalarArgs+n], err)
		}
		argv = append(argv, b.mem)
	}
	if err := kernel.SetArgs(argv...); err != nil {
		return clFault("SetArgs "+k.String(), err)
	}
	var (
		global = geom.Global()
		gdims  = []int{global.X}
		ldims  = []int{geom.Threads.X}
	)
	if geom.Threads.Y > 1 {
		gdims = append(gdims, global.Y)
		ldims = append(ldims, geom.Threads.Y)
	}
	if _, err := ocl.queue.EnqueueNDRangeKernel(kernel, nil, gdims, ldims, nil); err != nil {
		return clFault("EnqueueNDRangeKernel "+k.String(), err)
	}
	return nil
}

func (ocl *OpenCL) Synchronize() error {
	if err := ocl.queue.Finish(); err != nil {
		return clFault("Finish", err)
	}
	return nil
}

func (ocl *OpenCL) Close() error {
	n := len(ocl.live)
	for b := range ocl.live {
		b.mem.Release()
		delete(ocl.live, b)
	}
	ocl.release()
	if n != 0 {
		return newFault("Close", CodeInvalidValue, "%d buffers still allocated", n)
	}
	return nil
}

func (ocl *OpenCL) release() {
	for k, kernel := range ocl.kernels {
		if kernel != nil {
			kernel.Release()
			ocl.kernels[k] = nil
		}
	}
	if ocl.program != nil {
		ocl.program.Release()
		ocl.program = nil
	}
	if ocl.queue != nil {
		ocl.queue.Release()
		ocl.queue = nil
	}
	if ocl.context != nil {
		ocl.context.Release()
		ocl.context = nil
	}
}
