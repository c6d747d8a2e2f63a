package node

import "fmt"

// RegionMargin is the smallest admissible one based row or column index of
// the active region; the outer ring is owned by the boundary kernels
const RegionMargin = 2

// Region is the active rectangle [IMin,IMax] x [JMin,JMax] in one based
// grid indices, rows (I) and columns (J)
type Region struct {
	IMin, IMax, JMin, JMax int
}

func (r Region) String() string {
	return fmt.Sprintf("[%d,%d]x[%d,%d]", r.IMin, r.IMax, r.JMin, r.JMax)
}

// Rows is the number of active rows
func (r Region) Rows() int { return r.IMax - r.IMin + 1 }

// Cols is the number of active columns
func (r Region) Cols() int { return r.JMax - r.JMin + 1 }

// Contains reports whether o lies within r
func (r Region) Contains(o Region) bool {
	return r.IMin <= o.IMin && o.IMax <= r.IMax && r.JMin <= o.JMin && o.JMax <= r.JMax
}

// Bounds is the largest admissible region of an nRows x nCols grid
func Bounds(nRows, nCols int) Region {
	return Region{IMin: RegionMargin, IMax: nRows - 2, JMin: RegionMargin, JMax: nCols - 2}
}

// Check validates r against an nRows x nCols grid
func (r Region) Check(nRows, nCols int) error {
	b := Bounds(nRows, nCols)
	if b.IMin > b.IMax || b.JMin > b.JMax {
		return fmt.Errorf("grid %dx%d has no admissible active region", nRows, nCols)
	}
	if r.IMin > r.IMax || r.JMin > r.JMax {
		return fmt.Errorf("active region %s is empty", r)
	}
	if !b.Contains(r) {
		return fmt.Errorf("active region %s exceeds bounds %s", r, b)
	}
	return nil
}

// Signal is the device written expansion flag vector; a non zero component
// asks for growth of that edge
type Signal [4]int32

func (s Signal) GrowLowI() bool  { return s[0] != 0 }
func (s Signal) GrowHighI() bool { return s[1] != 0 }
func (s Signal) GrowLowJ() bool  { return s[2] != 0 }
func (s Signal) GrowHighJ() bool { return s[3] != 0 }

// Tracker maintains the active region across steps. The region only grows,
// one row per step along I and on the high J edge, GrowthStepJ columns per
// step on the low J edge, and is clamped to Bounds.
type Tracker struct {
	region       Region
	nRows, nCols int
	growthStepJ  int
}

// NewTracker panics if the initial region is not admissible
func NewTracker(initial Region, nRows, nCols, growthStepJ int) *Tracker {
	if growthStepJ < 1 {
		panic(fmt.Sprintf("growth step %d must be positive", growthStepJ))
	}
	t := &Tracker{nRows: nRows, nCols: nCols, growthStepJ: growthStepJ}
	t.Reset(initial)
	return t
}

func (t *Tracker) Region() Region { return t.region }

func (t *Tracker) GrowthStepJ() int { return t.growthStepJ }

// Reset replaces the region outright, shrinking is allowed
func (t *Tracker) Reset(r Region) {
	if err := r.Check(t.nRows, t.nCols); err != nil {
		panic(err)
	}
	t.region = r
}

// AlignJMin moves the low J edge down to the nearest 2 + k*GrowthStepJ
func (t *Tracker) AlignJMin() {
	t.region.JMin -= (t.region.JMin - RegionMargin) % t.growthStepJ
}

// Apply grows the region by the expansion signal and returns the result
func (t *Tracker) Apply(s Signal) Region {
	r := &t.region
	if s.GrowLowI() {
		r.IMin = max(r.IMin-1, RegionMargin)
	}
	if s.GrowHighI() {
		r.IMax = min(r.IMax+1, t.nRows-2)
	}
	if s.GrowLowJ() {
		r.JMin = max(r.JMin-t.growthStepJ, RegionMargin)
	}
	if s.GrowHighJ() {
		r.JMax = min(r.JMax+1, t.nCols-2)
	}
	return *r
}
