// Package scenario builds host input fields for synthetic test basins
package scenario

import (
	"math"

	"github.com/notargets/gotsunami/InputParameters"
	"github.com/notargets/gotsunami/node"
)

// NewFlatBasin returns the fields of a constant depth basin at rest with a
// Gaussian hump of surface displacement at the source cell. Coefficients
// are those of the linear staggered scheme on a uniform Cartesian grid.
func NewFlatBasin(ip *InputParameters.Parameters) (hf *node.HostFields) {
	var (
		nRows, nCols = ip.NRows, ip.NCols
		g            = InputParameters.Gravity
		r1           = float32(ip.Dt / ip.Dx)
		r2           = float32(g * ip.Dt / ip.Dx * ip.Depth)
		// Boundary coefficient for radiation of the outgoing flux
		b       = float32(1 / math.Sqrt(g*ip.Depth))
		src     = ip.Source
		inv2Rsq = 1 / (2 * src.Radius * src.Radius)
	)
	hf = node.NewHostFields(nRows, nCols)
	for i := 0; i < nRows; i++ {
		for j := 0; j < nCols; j++ {
			ij := hf.Idx(i, j)
			hf.D[ij] = float32(ip.Depth)
			hf.R1[ij] = r1
			hf.R2[ij] = r2
			hf.R4[ij] = r2
			hf.TArr[ij] = -1
			if src.Amplitude == 0 {
				continue
			}
			di, dj := float64(i+1-src.Row), float64(j+1-src.Col)
			if h := src.Amplitude * math.Exp(-(di*di+dj*dj)*inv2Rsq); math.Abs(h) >= ip.SSHZeroThreshold {
				hf.H[ij] = float32(h)
			}
		}
	}
	for j := range hf.R6 {
		hf.R6[j] = 1
		hf.B2[j] = b
		hf.B4[j] = b
	}
	for i := range hf.B1 {
		hf.B1[i] = b
		hf.B3[i] = b
	}
	return
}

// Volume is the displaced water volume of a height field in cell units
func Volume(h []float32) (v float64) {
	for _, x := range h {
		v += float64(x)
	}
	return
}
