package device

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/notargets/gotsunami/utils"
)

// HostConfig configures the host backend
type HostConfig struct {
	PitchAlignment int // Row stride alignment in bytes (default: 512)
	Workers        int // Goroutines for two dimensional kernels (default: NumCPU)
}

// Host executes the stepping kernels on the CPU. Launches are synchronous and
// two dimensional kernels are partitioned over rows of the launch grid.
type Host struct {
	PitchAlignment int
	Workers        int

	mu      sync.Mutex
	live    map[*hostBuffer]struct{}
	closed  bool
	pending error // Sticky error reported by Synchronize
}

type hostBuffer struct {
	dt  DataType
	f32 []float32
	i32 []int32
}

func (b *hostBuffer) Len() int {
	if b.dt == Int32 {
		return len(b.i32)
	}
	return len(b.f32)
}

func (b *hostBuffer) Type() DataType { return b.dt }

// NewHost creates a host backend
func NewHost(cfg HostConfig) *Host {
	if cfg.PitchAlignment == 0 {
		cfg.PitchAlignment = 512
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Host{
		PitchAlignment: cfg.PitchAlignment,
		Workers:        cfg.Workers,
		live:           make(map[*hostBuffer]struct{}),
	}
}

func (hd *Host) Name() string {
	return fmt.Sprintf("host (%d workers)", hd.Workers)
}

func (hd *Host) MallocPitch(widthBytes, height int) (Buffer, int, error) {
	if widthBytes <= 0 || height <= 0 {
		return nil, 0, newFault("MallocPitch", CodeInvalidValue, "width %d bytes, height %d", widthBytes, height)
	}
	pitch := ceilDiv(widthBytes, hd.PitchAlignment) * hd.PitchAlignment
	buf, err := hd.malloc("MallocPitch", pitch/Float32.Size()*height, Float32)
	if err != nil {
		return nil, 0, err
	}
	return buf, pitch, nil
}

func (hd *Host) Malloc(n int, dt DataType) (Buffer, error) {
	return hd.malloc("Malloc", n, dt)
}

func (hd *Host) malloc(op string, n int, dt DataType) (Buffer, error) {
	hd.mu.Lock()
	defer hd.mu.Unlock()
	if hd.closed {
		return nil, newFault(op, CodeNotInitialized, "device closed")
	}
	if n <= 0 {
		return nil, newFault(op, CodeInvalidValue, "%d elements of %s", n, dt)
	}
	b := &hostBuffer{dt: dt}
	switch dt {
	case Int32:
		b.i32 = make([]int32, n)
	default:
		b.f32 = make([]float32, n)
	}
	hd.live[b] = struct{}{}
	return b, nil
}

func (hd *Host) Free(buf Buffer) error {
	hd.mu.Lock()
	defer hd.mu.Unlock()
	b, ok := buf.(*hostBuffer)
	if !ok {
		return newFault("Free", CodeInvalidHandle, "foreign buffer %T", buf)
	}
	if _, ok = hd.live[b]; !ok {
		return newFault("Free", CodeInvalidHandle, "buffer not allocated or already freed")
	}
	delete(hd.live, b)
	b.f32, b.i32 = nil, nil
	return nil
}

// Allocated returns the number of live buffers
func (hd *Host) Allocated() int {
	hd.mu.Lock()
	defer hd.mu.Unlock()
	return len(hd.live)
}

func (hd *Host) lookup(op string, buf Buffer, dt DataType) (*hostBuffer, error) {
	b, ok := buf.(*hostBuffer)
	if !ok || b == nil {
		return nil, newFault(op, CodeInvalidHandle, "foreign buffer %T", buf)
	}
	hd.mu.Lock()
	_, live := hd.live[b]
	hd.mu.Unlock()
	if !live {
		return nil, newFault(op, CodeInvalidHandle, "buffer not allocated")
	}
	if b.dt != dt {
		return nil, newFault(op, CodeInvalidValue, "buffer holds %s, want %s", b.dt, dt)
	}
	return b, nil
}

func (hd *Host) CopyToDevice(dst Buffer, offset int, src []float32) error {
	b, err := hd.lookup("CopyToDevice", dst, Float32)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(src) > len(b.f32) {
		return newFault("CopyToDevice", CodeInvalidValue, "range [%d,%d) outside buffer of %d",
			offset, offset+len(src), len(b.f32))
	}
	copy(b.f32[offset:], src)
	return nil
}

func (hd *Host) CopyFromDevice(dst []float32, src Buffer, offset int) error {
	b, err := hd.lookup("CopyFromDevice", src, Float32)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(dst) > len(b.f32) {
		return newFault("CopyFromDevice", CodeInvalidValue, "range [%d,%d) outside buffer of %d",
			offset, offset+len(dst), len(b.f32))
	}
	copy(dst, b.f32[offset:offset+len(dst)])
	return nil
}

func (hd *Host) ReadInt32(dst []int32, src Buffer) error {
	b, err := hd.lookup("ReadInt32", src, Int32)
	if err != nil {
		return err
	}
	if len(dst) > len(b.i32) {
		return newFault("ReadInt32", CodeInvalidValue, "read of %d from buffer of %d", len(dst), len(b.i32))
	}
	copy(dst, b.i32)
	return nil
}

func (hd *Host) Zero(buf Buffer) error {
	b, ok := buf.(*hostBuffer)
	if !ok || b == nil {
		return newFault("Zero", CodeInvalidHandle, "foreign buffer %T", buf)
	}
	if _, err := hd.lookup("Zero", buf, b.dt); err != nil {
		return err
	}
	for i := range b.f32 {
		b.f32[i] = 0
	}
	for i := range b.i32 {
		b.i32[i] = 0
	}
	return nil
}

func (hd *Host) Launch(k Kernel, geom LaunchGeometry, args *KernelArgs) error {
	kd, err := hd.bind(args)
	if err != nil {
		err = fmt.Errorf("launching %s: %w", k, err)
		hd.setPending(err)
		return err
	}
	switch k {
	case KernelWaveUpdate:
		hd.runRect(geom, &args.Params, kd.waveUpdate)
	case KernelFluxUpdate:
		hd.runRect(geom, &args.Params, kd.fluxUpdate)
	case KernelWaveBoundary:
		runLine(geom, kd.waveBoundary)
	case KernelFluxBoundary:
		runLine(geom, kd.fluxBoundary)
	case KernelGridExtend:
		runLine(geom, kd.gridExtend)
	default:
		err = newFault("Launch", CodeLaunchFailure, "unknown kernel %s", k)
		hd.setPending(err)
		return err
	}
	return nil
}

func (hd *Host) setPending(err error) {
	hd.mu.Lock()
	if hd.pending == nil {
		hd.pending = err
	}
	hd.mu.Unlock()
}

// Synchronize reports the first launch failure since the previous call
func (hd *Host) Synchronize() error {
	hd.mu.Lock()
	defer hd.mu.Unlock()
	err := hd.pending
	hd.pending = nil
	return err
}

func (hd *Host) Close() error {
	hd.mu.Lock()
	defer hd.mu.Unlock()
	if hd.closed {
		return nil
	}
	hd.closed = true
	if n := len(hd.live); n != 0 {
		return newFault("Close", CodeInvalidValue, "%d buffers still allocated", n)
	}
	return nil
}

// runRect executes a two dimensional kernel over the active rectangle. The
// rows of the launch grid are split over the workers.
func (hd *Host) runRect(geom LaunchGeometry, p *Params, cell func(i, j int)) {
	var (
		global = geom.Global()
		pm     = utils.NewPartitionMap(hd.Workers, global.Y)
		wg     sync.WaitGroup
	)
	for n := 0; n < pm.ParallelDegree; n++ {
		if pm.GetBucketDimension(n) == 0 {
			continue
		}
		yMin, yMax := pm.GetBucketRange(n)
		wg.Add(1)
		go func(yMin, yMax int) {
			defer wg.Done()
			for y := yMin; y < yMax; y++ {
				i := y + p.IMin
				if i > p.IMax {
					return
				}
				for x := 0; x < global.X; x++ {
					j := x + p.JMin
					if j > p.JMax {
						break
					}
					cell(i, j)
				}
			}
		}(yMin, yMax)
	}
	wg.Wait()
}

// runLine executes a one dimensional kernel in thread order
func runLine(geom LaunchGeometry, thread func(gid int)) {
	global := geom.Global()
	for gid := 0; gid < global.X; gid++ {
		thread(gid)
	}
}
