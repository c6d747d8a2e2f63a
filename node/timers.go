package node

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/notargets/gotsunami/device"
	"github.com/notargets/gotsunami/utils"
)

// instructionCounter runs f and reports the instructions counted around it
var instructionCounter = countInstructions

type TimerID int

const (
	TimerMemcpyD2H TimerID = iota
	TimerMemcpyH2D
	TimerMemFree
	TimerMemAlloc
	TimerCompute
	NumTimers
)

var timerNames = [NumTimers]string{"MemcpyD2H", "MemcpyH2D", "MemFree", "MemAlloc", "Compute"}

func (id TimerID) String() string {
	if id < 0 || id >= NumTimers {
		return fmt.Sprintf("TimerID(%d)", int(id))
	}
	return timerNames[id]
}

type TimerConfig struct {
	Enabled          bool // Phase wall clock timers
	KernelProfiling  bool // Per kernel timing, synchronizes after every launch
	HardwareCounters bool // Instructions retired by the thread driving the compute phase
}

// Timers accumulates phase and kernel durations. A nil or disabled Timers
// records nothing; no method alters control flow.
type Timers struct {
	TimerConfig

	elapsed      [NumTimers]time.Duration
	started      [NumTimers]time.Time
	kernel       [device.NumKernels]time.Duration
	launches     [device.NumKernels]int
	instructions uint64
	hwFailed     bool
	now          func() time.Time
}

func NewTimers(cfg TimerConfig) *Timers {
	return &Timers{TimerConfig: cfg, now: time.Now}
}

func (t *Timers) clock() time.Time {
	if t == nil || t.now == nil {
		return time.Now()
	}
	return t.now()
}

func (t *Timers) on() bool { return t != nil && t.Enabled }

func (t *Timers) Start(id TimerID) {
	if t.on() {
		t.started[id] = t.now()
	}
}

func (t *Timers) Stop(id TimerID) {
	if t.on() && !t.started[id].IsZero() {
		t.elapsed[id] += t.now().Sub(t.started[id])
		t.started[id] = time.Time{}
	}
}

func (t *Timers) Add(id TimerID, d time.Duration) {
	if t.on() {
		t.elapsed[id] += d
	}
}

func (t *Timers) Elapsed(id TimerID) time.Duration {
	if t == nil {
		return 0
	}
	return t.elapsed[id]
}

func (t *Timers) Total() (total time.Duration) {
	if t == nil {
		return 0
	}
	for _, d := range t.elapsed {
		total += d
	}
	return
}

// ProfileKernels reports whether per kernel durations are collected
func (t *Timers) ProfileKernels() bool {
	return t.on() && t.KernelProfiling
}

func (t *Timers) AddKernel(k device.Kernel, d time.Duration) {
	if t.ProfileKernels() {
		t.kernel[k] += d
		t.launches[k]++
	}
}

func (t *Timers) KernelElapsed(k device.Kernel) time.Duration {
	if t == nil {
		return 0
	}
	return t.kernel[k]
}

// Instructions is the accumulated instruction count of the coordinating
// thread, zero when counters are off or unsupported. Kernel work on host
// workers or on a device is not included.
func (t *Timers) Instructions() uint64 {
	if t == nil {
		return 0
	}
	return t.instructions
}

// Measure runs f, counting the instructions of the calling thread when
// hardware counters are enabled.
// A counter failure disables counting for the rest of the run; f always runs
// exactly once and its error is returned unchanged.
func (t *Timers) Measure(f func() error) error {
	if !t.on() || !t.HardwareCounters || t.hwFailed {
		return f()
	}
	count, fErr, perfErr := instructionCounter(f)
	if perfErr != nil {
		t.hwFailed = true
		utils.Logger().Warn("hardware counters unavailable, continuing without", "err", perfErr)
		return fErr
	}
	t.instructions += count
	return fErr
}

// Report logs the timing table
func (t *Timers) Report(l *slog.Logger) {
	if !t.on() {
		return
	}
	l.Info("Timing Results | Elapsed time")
	l.Info("*****************************")
	for _, id := range []TimerID{TimerMemAlloc, TimerMemcpyH2D, TimerMemcpyD2H, TimerMemFree, TimerCompute} {
		l.Info(fmt.Sprintf("%-15s | %s", id, t.elapsed[id]))
	}
	l.Info(fmt.Sprintf("%-15s | %s", "Total", t.Total()))
	l.Info("*****************************")
	if t.KernelProfiling {
		l.Info("Kernel time(s)")
		for k := device.Kernel(0); k < device.NumKernels; k++ {
			l.Info(fmt.Sprintf("\t%-14s: %s", k, t.kernel[k]), "launches", t.launches[k])
		}
	}
	if t.HardwareCounters && !t.hwFailed {
		l.Info("Coordinator thread instructions", "count", t.instructions)
	}
}
