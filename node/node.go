package node

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/notargets/gotsunami/device"
	"github.com/notargets/gotsunami/utils"
)

const (
	DefaultGrowthStepJ = 32
	DefaultAlignment   = 4
)

// Config describes one run. Validate reports configuration faults before
// any device resource is touched.
type Config struct {
	NRows, NCols     int
	Region           Region // Initial active region, one based
	GrowthStepJ      int    // Low J edge growth per step (default: 32)
	Alignment        int    // Storage width granularity in elements (default: 4)
	PitchPolicy      PitchPolicy
	AlignInitialJMin bool // Align Region.JMin to 2 + k*GrowthStepJ when fields are pushed
}

func (cfg *Config) setDefaults() {
	if cfg.GrowthStepJ == 0 {
		cfg.GrowthStepJ = DefaultGrowthStepJ
	}
	if cfg.Alignment == 0 {
		cfg.Alignment = DefaultAlignment
	}
	if cfg.PitchPolicy == "" {
		cfg.PitchPolicy = PitchDevice
	}
}

func (cfg Config) Validate() error {
	cfg.setDefaults()
	if cfg.NRows < 1 || cfg.NCols < 1 {
		return fmt.Errorf("malformed geometry: %d rows, %d cols", cfg.NRows, cfg.NCols)
	}
	if cfg.GrowthStepJ < 1 {
		return fmt.Errorf("growth step %d must be positive", cfg.GrowthStepJ)
	}
	if cfg.Alignment < 1 {
		return fmt.Errorf("alignment unit %d must be positive", cfg.Alignment)
	}
	if _, err := NewPitchPolicy(string(cfg.PitchPolicy)); err != nil {
		return err
	}
	return cfg.Region.Check(cfg.NRows, cfg.NCols)
}

// StepParams are the physical parameters supplied for one step
type StepParams struct {
	Time                float32
	SSHArrivalThreshold float32
	SSHClipThreshold    float32
	SSHZeroThreshold    float32
}

// ParamProvider supplies StepParams for step numbers starting at 1
type ParamProvider interface {
	StepParams(step int) StepParams
}

// Node is the device resident stepping engine. It is not safe for
// concurrent use and Step is not reentrant.
type Node struct {
	dev     device.Device
	cfg     Config
	geom    Geometry
	buffers *BufferSet
	tracker *Tracker
	host    *HostFields
	timers  *Timers

	pushed   bool
	dirty    bool // Host height mirror is stale
	fault    error
	stepping atomic.Bool
}

// NewNode validates cfg; no device call is made until Allocate
func NewNode(dev device.Device, cfg Config, timers *Timers) (*Node, error) {
	if dev == nil {
		return nil, errors.New("nil device")
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Node{
		dev:     dev,
		cfg:     cfg,
		geom:    Geometry{NRows: cfg.NRows, NCols: cfg.NCols},
		tracker: NewTracker(cfg.Region, cfg.NRows, cfg.NCols, cfg.GrowthStepJ),
		timers:  timers,
	}, nil
}

func (n *Node) fail(err error) error {
	if err != nil && n.fault == nil && device.IsFatal(err) {
		n.fault = err
	}
	return err
}

func (n *Node) usable() error {
	if n.fault != nil {
		return fmt.Errorf("node unusable after fatal device error: %w", n.fault)
	}
	return nil
}

// Allocate resolves the storage width and allocates the buffer set
func (n *Node) Allocate() (err error) {
	if err = n.usable(); err != nil {
		return
	}
	if n.buffers != nil {
		panic("node allocated twice")
	}
	utils.Logger().Info("Allocating device memory", "device", n.dev.Name(),
		"rows", n.geom.NRows, "cols", n.geom.NCols)
	n.timers.Start(TimerMemAlloc)
	defer n.timers.Stop(TimerMemAlloc)
	if n.geom.StorageWidth, err = ResolveStorageWidth(n.dev, n.geom.NRows, n.geom.NCols,
		device.Float32.Size(), n.cfg.PitchPolicy, n.cfg.Alignment); err != nil {
		return n.fail(err)
	}
	n.buffers = NewBufferSet(n.dev, n.geom)
	if err = n.buffers.Allocate(); err != nil {
		return n.fail(err)
	}
	utils.Logger().Info("Device memory allocated", "storageWidth", n.geom.StorageWidth)
	return nil
}

// CopyToDevice pushes all host input arrays. in becomes the host mirror that
// later pulls write into.
func (n *Node) CopyToDevice(in *HostFields) (err error) {
	if err = n.usable(); err != nil {
		return
	}
	n.mustBeAllocated()
	in.check(n.geom.NRows, n.geom.NCols)
	if n.cfg.AlignInitialJMin {
		n.tracker.AlignJMin()
	}
	var (
		bs           = n.buffers
		nRows, nCols = n.geom.NRows, n.geom.NCols
		width        = n.geom.StorageWidth
		start        = time.Now()
		pitched      = []struct {
			name string
			dst  device.Buffer
			src  []float32
		}{
			{"d", bs.D, in.D}, {"h", bs.H, in.H}, {"hMax", bs.HMax, in.HMax},
			{"fM", bs.FM, in.FM}, {"fN", bs.FN, in.FN},
			{"cR1", bs.CR1, in.R1}, {"cR2", bs.CR2, in.R2}, {"cR4", bs.CR4, in.R4},
			{"tArr", bs.TArr, in.TArr},
		}
		lines = []struct {
			name string
			dst  device.Buffer
			src  []float32
		}{
			{"cR6", bs.CR6, in.R6}, {"cB1", bs.CB1, in.B1}, {"cB2", bs.CB2, in.B2},
			{"cB3", bs.CB3, in.B3}, {"cB4", bs.CB4, in.B4},
		}
	)
	n.timers.Start(TimerMemcpyH2D)
	defer n.timers.Stop(TimerMemcpyH2D)
	for _, f := range pitched {
		if err = ToDevice(n.dev, f.dst, f.src, nRows, nCols, width); err != nil {
			return n.fail(fmt.Errorf("pushing %s: %w", f.name, err))
		}
	}
	for _, f := range lines {
		if err = ToDevice(n.dev, f.dst, f.src, 1, len(f.src), len(f.src)); err != nil {
			return n.fail(fmt.Errorf("pushing %s: %w", f.name, err))
		}
	}
	n.host = in
	n.pushed = true
	n.dirty = false
	utils.Logger().Info("Data copy to device completed", "elapsed", time.Since(start),
		"region", n.tracker.Region().String())
	return nil
}

func (n *Node) mustBeAllocated() {
	if n.buffers == nil || !n.buffers.Allocated() {
		panic("node buffers not allocated")
	}
}

type launch struct {
	k    device.Kernel
	geom device.LaunchGeometry
}

// Step advances the solution one time step and grows the active region from
// the expansion signal written by the grid extension kernel
func (n *Node) Step(sp StepParams) (err error) {
	if !n.stepping.CompareAndSwap(false, true) {
		panic("node Step is not reentrant")
	}
	defer n.stepping.Store(false)
	if err = n.usable(); err != nil {
		return
	}
	if !n.pushed {
		panic("Step called before CopyToDevice")
	}
	var (
		r     = n.tracker.Region()
		rect  = device.RectGeometry(r.Rows(), r.Cols())
		line  = device.LineGeometry(max(n.geom.NRows, n.geom.NCols))
		args  = n.kernelArgs(r, sp)
		order = []launch{
			{device.KernelWaveUpdate, rect},
			{device.KernelWaveBoundary, line},
			{device.KernelFluxUpdate, rect},
			{device.KernelFluxBoundary, line},
			{device.KernelGridExtend, line},
		}
	)
	utils.Logger().Debug("step", "time", sp.Time, "region", r.String(),
		"blocks", rect.Blocks, "threads", rect.Threads)

	n.timers.Start(TimerCompute)
	err = n.timers.Measure(func() error { return n.runKernels(order, args) })
	n.timers.Stop(TimerCompute)
	if err != nil {
		return n.fail(err)
	}

	var sig Signal
	n.timers.Start(TimerMemcpyD2H)
	err = n.dev.ReadInt32(sig[:], n.buffers.MinMax)
	n.timers.Stop(TimerMemcpyD2H)
	if err != nil {
		return n.fail(fmt.Errorf("reading expansion signal: %w", err))
	}
	n.tracker.Apply(sig)
	n.dirty = true
	return nil
}

func (n *Node) runKernels(order []launch, args *device.KernelArgs) error {
	if err := n.dev.Zero(n.buffers.MinMax); err != nil {
		return fmt.Errorf("clearing expansion signal: %w", err)
	}
	profile := n.timers.ProfileKernels()
	for _, l := range order {
		start := n.timers.clock()
		if err := n.dev.Launch(l.k, l.geom, args); err != nil {
			return fmt.Errorf("launching %s: %w", l.k, err)
		}
		if profile {
			if err := n.dev.Synchronize(); err != nil {
				return fmt.Errorf("synchronizing after %s: %w", l.k, err)
			}
			n.timers.AddKernel(l.k, n.timers.clock().Sub(start))
		}
	}
	if err := n.dev.Synchronize(); err != nil {
		return fmt.Errorf("synchronizing step: %w", err)
	}
	return nil
}

func (n *Node) kernelArgs(r Region, sp StepParams) *device.KernelArgs {
	return &device.KernelArgs{
		Fields: n.buffers.Fields,
		Params: device.Params{
			NI: n.geom.NRows, NJ: n.geom.NCols, PI: n.geom.StorageWidth,
			IMin: r.IMin, IMax: r.IMax, JMin: r.JMin, JMax: r.JMax,
			SSHArrivalThreshold: sp.SSHArrivalThreshold,
			SSHClipThreshold:    sp.SSHClipThreshold,
			SSHZeroThreshold:    sp.SSHZeroThreshold,
			Time:                sp.Time,
		},
	}
}

// Run executes steps 1..nSteps, calling after (when non nil) following each
// step. The first error ends the run.
func (n *Node) Run(nSteps int, pp ParamProvider, after func(step int) error) error {
	for step := 1; step <= nSteps; step++ {
		if err := n.Step(pp.StepParams(step)); err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
		if after != nil {
			if err := after(step); err != nil {
				return err
			}
		}
	}
	return nil
}

// CopyFromDevice pulls the running maximum height and arrival time fields
func (n *Node) CopyFromDevice() (err error) {
	if err = n.usable(); err != nil {
		return
	}
	n.mustBePushed()
	n.timers.Start(TimerMemcpyD2H)
	defer n.timers.Stop(TimerMemcpyD2H)
	nRows, nCols, width := n.geom.NRows, n.geom.NCols, n.geom.StorageWidth
	if err = FromDevice(n.dev, n.host.HMax, n.buffers.HMax, nRows, nCols, width); err != nil {
		return n.fail(fmt.Errorf("pulling hMax: %w", err))
	}
	if err = FromDevice(n.dev, n.host.TArr, n.buffers.TArr, nRows, nCols, width); err != nil {
		return n.fail(fmt.Errorf("pulling tArr: %w", err))
	}
	return nil
}

// CopyIntermediate pulls the height field if the host mirror is stale
func (n *Node) CopyIntermediate() (err error) {
	if err = n.usable(); err != nil {
		return
	}
	n.mustBePushed()
	if !n.dirty {
		return nil
	}
	n.timers.Start(TimerMemcpyD2H)
	defer n.timers.Stop(TimerMemcpyD2H)
	if err = FromDevice(n.dev, n.host.H, n.buffers.H, n.geom.NRows, n.geom.NCols, n.geom.StorageWidth); err != nil {
		return n.fail(fmt.Errorf("pulling h: %w", err))
	}
	n.dirty = false
	return nil
}

// CopyPOIs returns the current height at each linear (row major, zero based)
// grid index. When the host mirror is stale each value is pulled from the
// device individually and written into the mirror; the mirror as a whole
// stays stale.
func (n *Node) CopyPOIs(indices []int) (values []float32, err error) {
	if err = n.usable(); err != nil {
		return
	}
	n.mustBePushed()
	if n.dirty {
		utils.Logger().Warn("Copying POIs, this may prolong total time", "count", len(indices))
	}
	var (
		nCells = n.geom.NRows * n.geom.NCols
		nCols  = n.geom.NCols
	)
	values = make([]float32, len(indices))
	for k, idx := range indices {
		if idx < 0 || idx >= nCells {
			panic(fmt.Sprintf("POI index %d outside grid of %d cells", idx, nCells))
		}
		if n.dirty {
			offset := (idx/nCols)*n.geom.StorageWidth + idx%nCols
			n.timers.Start(TimerMemcpyD2H)
			err = n.dev.CopyFromDevice(n.host.H[idx:idx+1], n.buffers.H, offset)
			n.timers.Stop(TimerMemcpyD2H)
			if err != nil {
				return nil, n.fail(fmt.Errorf("pulling POI %d: %w", idx, err))
			}
		}
		values[k] = n.host.H[idx]
	}
	return values, nil
}

func (n *Node) mustBePushed() {
	if !n.pushed {
		panic("host fields not pushed to device")
	}
}

// Free releases all device buffers
func (n *Node) Free() error {
	if n.buffers == nil {
		return ErrNotAllocated
	}
	n.timers.Start(TimerMemFree)
	defer n.timers.Stop(TimerMemFree)
	err := n.buffers.Release()
	n.buffers = nil
	n.pushed = false
	return err
}

// Dirty reports whether the host height mirror is stale
func (n *Node) Dirty() bool { return n.dirty }

func (n *Node) Region() Region { return n.tracker.Region() }

func (n *Node) Geometry() Geometry { return n.geom }

// Height is the host height mirror, current only when Dirty is false
func (n *Node) Height() []float32 { return n.host.H }

// CurrentHeight pulls the height field if needed and returns the mirror
func (n *Node) CurrentHeight() ([]float32, error) {
	if err := n.CopyIntermediate(); err != nil {
		return nil, err
	}
	return n.host.H, nil
}

// MaxHeight is the host running maximum, current after CopyFromDevice
func (n *Node) MaxHeight() []float32 { return n.host.HMax }

// ArrivalTimes is the host arrival time field, current after CopyFromDevice
func (n *Node) ArrivalTimes() []float32 { return n.host.TArr }

// ResetRegion explicitly re-initializes the active region
func (n *Node) ResetRegion(r Region) { n.tracker.Reset(r) }
