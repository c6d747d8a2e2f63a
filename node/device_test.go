package node

import (
	"math"
	"sync"

	"github.com/notargets/gotsunami/device"
)

// recordingDevice wraps the host backend, recording calls and injecting
// faults, pitches and expansion signals
type recordingDevice struct {
	*device.Host

	mu       sync.Mutex
	calls    []string
	failOn   map[string]error // op name -> error returned in place of the call
	pitch    *int             // Overrides the reported MallocPitch pitch
	signal   *Signal          // Overrides ReadInt32 of the expansion signal
	launches []device.LaunchGeometry
	params   []device.Params
}

func newRecordingDevice() *recordingDevice {
	return &recordingDevice{
		Host:   device.NewHost(device.HostConfig{Workers: 3}),
		failOn: make(map[string]error),
	}
}

func (rd *recordingDevice) record(op string) error {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	rd.calls = append(rd.calls, op)
	return rd.failOn[op]
}

func (rd *recordingDevice) callLog() []string {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	return append([]string(nil), rd.calls...)
}

func (rd *recordingDevice) count(op string) (n int) {
	for _, c := range rd.callLog() {
		if c == op {
			n++
		}
	}
	return
}

func (rd *recordingDevice) reset() {
	rd.mu.Lock()
	rd.calls = nil
	rd.launches = nil
	rd.params = nil
	rd.mu.Unlock()
}

func (rd *recordingDevice) MallocPitch(widthBytes, height int) (device.Buffer, int, error) {
	if err := rd.record("MallocPitch"); err != nil {
		return nil, 0, err
	}
	buf, pitch, err := rd.Host.MallocPitch(widthBytes, height)
	if rd.pitch != nil {
		pitch = *rd.pitch
	}
	return buf, pitch, err
}

func (rd *recordingDevice) Malloc(n int, dt device.DataType) (device.Buffer, error) {
	if err := rd.record("Malloc"); err != nil {
		return nil, err
	}
	return rd.Host.Malloc(n, dt)
}

func (rd *recordingDevice) Free(buf device.Buffer) error {
	if err := rd.record("Free"); err != nil {
		return err
	}
	return rd.Host.Free(buf)
}

func (rd *recordingDevice) CopyToDevice(dst device.Buffer, offset int, src []float32) error {
	if err := rd.record("CopyToDevice"); err != nil {
		return err
	}
	return rd.Host.CopyToDevice(dst, offset, src)
}

func (rd *recordingDevice) CopyFromDevice(dst []float32, src device.Buffer, offset int) error {
	if err := rd.record("CopyFromDevice"); err != nil {
		return err
	}
	return rd.Host.CopyFromDevice(dst, src, offset)
}

func (rd *recordingDevice) ReadInt32(dst []int32, src device.Buffer) error {
	if err := rd.record("ReadInt32"); err != nil {
		return err
	}
	if rd.signal != nil {
		copy(dst, rd.signal[:])
		return nil
	}
	return rd.Host.ReadInt32(dst, src)
}

func (rd *recordingDevice) Zero(buf device.Buffer) error {
	if err := rd.record("Zero"); err != nil {
		return err
	}
	return rd.Host.Zero(buf)
}

func (rd *recordingDevice) Launch(k device.Kernel, geom device.LaunchGeometry, args *device.KernelArgs) error {
	if err := rd.record(k.String()); err != nil {
		return err
	}
	rd.mu.Lock()
	rd.launches = append(rd.launches, geom)
	rd.params = append(rd.params, args.Params)
	rd.mu.Unlock()
	return rd.Host.Launch(k, geom, args)
}

func (rd *recordingDevice) Synchronize() error {
	if err := rd.record("Synchronize"); err != nil {
		return err
	}
	return rd.Host.Synchronize()
}

func launchFault(op string) error {
	return &device.Fault{Op: op, Code: device.CodeLaunchFailure, Msg: "injected"}
}

// newBasin builds an nRows x nCols constant depth basin at rest. Coefficients
// follow a unit grid spacing with a stable time step.
func newBasin(nRows, nCols int, depth float32) *HostFields {
	const (
		g  = 9.81
		dt = 0.1
	)
	hf := NewHostFields(nRows, nCols)
	for i := range hf.D {
		hf.D[i] = depth
		hf.R1[i] = dt
		hf.R2[i] = g * dt * depth
		hf.R4[i] = g * dt * depth
		hf.TArr[i] = -1
	}
	b := float32(1 / math.Sqrt(g*float64(depth)))
	for j := range hf.R6 {
		hf.R6[j] = 1
		hf.B2[j] = b
		hf.B4[j] = b
	}
	for i := range hf.B1 {
		hf.B1[i] = b
		hf.B3[i] = b
	}
	return hf
}

// raise sets the one based cells [iMin,iMax]x[jMin,jMax] to height
func raise(hf *HostFields, iMin, iMax, jMin, jMax int, height float32) {
	for i := iMin; i <= iMax; i++ {
		for j := jMin; j <= jMax; j++ {
			hf.H[hf.Idx(i-1, j-1)] = height
		}
	}
}
