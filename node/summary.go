package node

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Summary condenses the pulled result fields of a run
type Summary struct {
	MaxHeight    float64
	MaxIndex     int // Row major index of MaxHeight, -1 for an empty field
	ArrivedCells int // Cells with a recorded arrival time
	FirstArrival float64
	LastArrival  float64
}

func (s Summary) String() string {
	return fmt.Sprintf("max height %.4g at cell %d, %d cells arrived between t=%.4g and t=%.4g",
		s.MaxHeight, s.MaxIndex, s.ArrivedCells, s.FirstArrival, s.LastArrival)
}

// Summarize reduces the running maximum height and arrival time fields.
// Negative arrival times mark cells the wave has not reached.
func Summarize(hMax, tArr []float32) (s Summary) {
	s.MaxIndex = -1
	if len(hMax) > 0 {
		h := toFloat64(hMax)
		s.MaxIndex = floats.MaxIdx(h)
		s.MaxHeight = h[s.MaxIndex]
	}
	var arrived []float64
	for _, t := range tArr {
		if t >= 0 {
			arrived = append(arrived, float64(t))
		}
	}
	if s.ArrivedCells = len(arrived); s.ArrivedCells > 0 {
		s.FirstArrival = floats.Min(arrived)
		s.LastArrival = floats.Max(arrived)
	}
	return
}

func toFloat64(f []float32) []float64 {
	out := make([]float64, len(f))
	for i, v := range f {
		out[i] = float64(v)
	}
	return out
}
