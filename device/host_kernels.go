package device

import "math"

// hostKernelData is the host side view of a KernelArgs block
type hostKernelData struct {
	Params
	d, h, hMax, fM, fN, cR1, cR2, cR4, tArr []float32
	cR6, cB1, cB2, cB3, cB4                 []float32
	minMax                                  []int32
}

func (hd *Host) bind(args *KernelArgs) (kd *hostKernelData, err error) {
	if args == nil {
		return nil, newFault("Launch", CodeInvalidValue, "nil kernel arguments")
	}
	kd = &hostKernelData{Params: args.Params}
	var (
		pitched = args.NI * args.PI
		f32     = []struct {
			name string
			buf  Buffer
			dst  *[]float32
			min  int
		}{
			{"d", args.D, &kd.d, pitched},
			{"h", args.H, &kd.h, pitched},
			{"hMax", args.HMax, &kd.hMax, pitched},
			{"fM", args.FM, &kd.fM, pitched},
			{"fN", args.FN, &kd.fN, pitched},
			{"cR1", args.CR1, &kd.cR1, pitched},
			{"cR2", args.CR2, &kd.cR2, pitched},
			{"cR4", args.CR4, &kd.cR4, pitched},
			{"tArr", args.TArr, &kd.tArr, pitched},
			{"cR6", args.CR6, &kd.cR6, args.NJ},
			{"cB1", args.CB1, &kd.cB1, args.NI},
			{"cB2", args.CB2, &kd.cB2, args.NJ},
			{"cB3", args.CB3, &kd.cB3, args.NI},
			{"cB4", args.CB4, &kd.cB4, args.NJ},
		}
	)
	for _, a := range f32 {
		var b *hostBuffer
		if b, err = hd.lookup("Launch", a.buf, Float32); err != nil {
			return nil, err
		}
		if len(b.f32) < a.min {
			return nil, newFault("Launch", CodeInvalidValue, "argument %s holds %d elements, need %d",
				a.name, len(b.f32), a.min)
		}
		*a.dst = b.f32
	}
	var mm *hostBuffer
	if mm, err = hd.lookup("Launch", args.MinMax, Int32); err != nil {
		return nil, err
	}
	if len(mm.i32) < 4 {
		return nil, newFault("Launch", CodeInvalidValue, "expansion signal holds %d counters", len(mm.i32))
	}
	kd.minMax = mm.i32
	return kd, nil
}

func abs32(f float32) float32 {
	return float32(math.Abs(float64(f)))
}

func radiateCorner(a, b, c float32) float32 {
	return float32(math.Sqrt(float64(a*a+b*b))) * c
}

func radiate(normal, tangentA, tangentB, c float32) float32 {
	t := tangentA + tangentB
	return float32(math.Sqrt(float64(normal*normal+0.25*t*t))) * c
}

// cellMass is the mass conservation update of one wet cell
func (kd *hostKernelData) cellMass(i, j int) {
	ij := kd.Idx(i, j)
	if kd.d[ij] == 0 {
		return
	}
	hh := kd.h[ij] - kd.cR1[ij]*(kd.fM[ij]-kd.fM[ij-kd.PI]+kd.fN[ij]*kd.cR6[j-1]-kd.fN[ij-1]*kd.cR6[j-2])
	absH := abs32(hh)
	if absH < kd.SSHZeroThreshold {
		hh = 0
	}
	if hh > kd.hMax[ij] {
		kd.hMax[ij] = hh
	}
	if kd.SSHArrivalThreshold != 0 && kd.tArr[ij] < 0 && absH > kd.SSHArrivalThreshold {
		kd.tArr[ij] = kd.Time
	}
	kd.h[ij] = hh
}

// cellFlux is the momentum update toward the next row (M) and column (N)
func (kd *hostKernelData) cellFlux(i, j int) {
	ij := kd.Idx(i, j)
	if kd.d[ij] == 0 {
		return
	}
	hh := kd.h[ij]
	if kd.d[ij+kd.PI] != 0 {
		kd.fM[ij] -= kd.cR2[ij] * (kd.h[ij+kd.PI] - hh)
	}
	if kd.d[ij+1] != 0 {
		kd.fN[ij] -= kd.cR4[ij] * (kd.h[ij+1] - hh)
	}
}

func (kd *hostKernelData) waveUpdate(i, j int) {
	kd.cellMass(i, j)
}

func (kd *hostKernelData) fluxUpdate(i, j int) {
	kd.cellFlux(i, j)
}

func (kd *hostKernelData) waveBoundary(gid int) {
	var (
		id     = gid + 2
		nI, nJ = kd.NI, kd.NJ
		ij     int
	)
	if id == 2 {
		kd.radiateCorners()
	}
	// Last interior row and column lie outside every admissible active region
	if id <= nJ-1 {
		kd.cellMass(nI-1, id)
	}
	if id <= nI-2 {
		kd.cellMass(id, nJ-1)
	}
	if id <= nI-1 {
		ij = kd.Idx(id, 1)
		kd.h[ij] = radiate(kd.fN[ij], kd.fM[ij], kd.fM[ij-kd.PI], kd.cB1[id-1])
		if kd.fN[ij] > 0 {
			kd.h[ij] = -kd.h[ij]
		}
		ij = kd.Idx(id, nJ)
		kd.h[ij] = radiate(kd.fN[ij-1], kd.fM[ij], kd.fM[ij-kd.PI], kd.cB3[id-1])
		if kd.fN[ij-1] < 0 {
			kd.h[ij] = -kd.h[ij]
		}
	}
	if id <= nJ-1 {
		ij = kd.Idx(1, id)
		kd.h[ij] = radiate(kd.fM[ij], kd.fN[ij], kd.fN[ij-1], kd.cB2[id-1])
		if kd.fM[ij] > 0 {
			kd.h[ij] = -kd.h[ij]
		}
		ij = kd.Idx(nI, id)
		kd.h[ij] = radiate(kd.fM[ij-kd.PI], kd.fN[ij], kd.fN[ij-1], kd.cB4[id-1])
		if kd.fM[ij-kd.PI] < 0 {
			kd.h[ij] = -kd.h[ij]
		}
	}
}

// radiateCorners sets the four corner heights from both adjacent fluxes
func (kd *hostKernelData) radiateCorners() {
	var (
		nI, nJ = kd.NI, kd.NJ
		ij     int
	)
	ij = kd.Idx(1, 1)
	kd.h[ij] = radiateCorner(kd.fN[ij], kd.fM[ij], kd.cB1[0])
	if kd.fN[ij] > 0 {
		kd.h[ij] = -kd.h[ij]
	}
	ij = kd.Idx(nI, 1)
	kd.h[ij] = radiateCorner(kd.fN[ij], kd.fM[ij-kd.PI], kd.cB1[nI-1])
	if kd.fN[ij] > 0 {
		kd.h[ij] = -kd.h[ij]
	}
	ij = kd.Idx(1, nJ)
	kd.h[ij] = radiateCorner(kd.fN[ij-1], kd.fM[ij], kd.cB3[0])
	if kd.fN[ij-1] < 0 {
		kd.h[ij] = -kd.h[ij]
	}
	ij = kd.Idx(nI, nJ)
	kd.h[ij] = radiateCorner(kd.fN[ij-1], kd.fM[ij-kd.PI], kd.cB3[nI-1])
	if kd.fN[ij-1] < 0 {
		kd.h[ij] = -kd.h[ij]
	}
}

func (kd *hostKernelData) fluxBoundary(gid int) {
	var (
		id     = gid + 1
		nI, nJ = kd.NI, kd.NJ
	)
	if id <= nJ-1 {
		kd.cellFlux(1, id)
		kd.cellFlux(nI-1, id)
	}
	if id >= 2 && id <= nI-2 {
		kd.cellFlux(id, 1)
		kd.cellFlux(id, nJ-1)
	}
}

func (kd *hostKernelData) gridExtend(gid int) {
	var (
		id   = gid + 1
		clip = kd.SSHClipThreshold
	)
	if id >= kd.JMin && id <= kd.JMax {
		if abs32(kd.h[kd.Idx(min(kd.IMin+2, kd.NI), id)]) > clip {
			kd.minMax[0]++
		}
		if abs32(kd.h[kd.Idx(max(kd.IMax-2, 1), id)]) > clip {
			kd.minMax[1]++
		}
	}
	if id >= kd.IMin && id <= kd.IMax {
		if abs32(kd.h[kd.Idx(id, min(kd.JMin+2, kd.NJ))]) > clip {
			kd.minMax[2]++
		}
		if abs32(kd.h[kd.Idx(id, max(kd.JMax-2, 1))]) > clip {
			kd.minMax[3]++
		}
	}
}
