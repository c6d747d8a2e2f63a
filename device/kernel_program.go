package device

import (
	"fmt"
	"strings"
)

// KernelProgram generates the OpenCL C source for the five stepping kernels.
// Every kernel shares one argument list (KERNEL_ARGS) so a single binding
// routine can serve all launches.
type KernelProgram struct {
	FloatType DataType

	// Generated code
	kernelPreamble string
}

// NewKernelProgram creates a single precision kernel program
func NewKernelProgram() *KernelProgram {
	return &KernelProgram{FloatType: Float32}
}

// ArgNames lists the kernel arguments in binding order
var ArgNames = []string{
	"nI", "nJ", "pI", "iMin", "iMax", "jMin", "jMax",
	"sshArrival", "sshClip", "sshZero", "mTime",
	"d", "h", "hMax", "fM", "fN", "cR1", "cR2", "cR4", "tArr",
	"cR6", "cB1", "cB2", "cB3", "cB4", "minMax",
}

const numScalarArgs = 11

// GenerateKernelMain generates the kernel preamble with types, indexing
// macros and shared device functions
func (kp *KernelProgram) GenerateKernelMain() string {
	var sb strings.Builder

	sb.WriteString(kp.generateTypeDefinitions())
	sb.WriteString(kp.generateArgumentList())
	sb.WriteString(kp.generateUtilityFunctions())

	kp.kernelPreamble = sb.String()
	return kp.kernelPreamble
}

func (kp *KernelProgram) generateTypeDefinitions() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("#define BLOCK_X %d\n", BlockThreadsX))
	sb.WriteString(fmt.Sprintf("#define BLOCK_Y %d\n", BlockThreadsY))
	sb.WriteString(fmt.Sprintf("#define LINE_BLOCK %d\n", LineBlockWidth))
	sb.WriteString("\n")

	sb.WriteString("typedef float real_t;\n")
	sb.WriteString("#define REAL_ZERO 0.0f\n")
	sb.WriteString("#define REAL_QUARTER 0.25f\n")
	sb.WriteString("\n")

	// One based (i,j), j contiguous
	sb.WriteString("// Pitched indexing macros\n")
	sb.WriteString("#define IDX(i, j) (((j) - 1) + ((i) - 1) * pI)\n")
	sb.WriteString("#define LE(ij) ((ij) - pI)\n")
	sb.WriteString("#define RI(ij) ((ij) + pI)\n")
	sb.WriteString("#define DN(ij) ((ij) - 1)\n")
	sb.WriteString("#define UP(ij) ((ij) + 1)\n")
	sb.WriteString("\n")

	return sb.String()
}

func (kp *KernelProgram) generateArgumentList() string {
	var parts []string
	for n, name := range ArgNames {
		switch {
		case n < 7:
			parts = append(parts, "const int "+name)
		case n < numScalarArgs:
			parts = append(parts, "const real_t "+name)
		case name == "minMax":
			parts = append(parts, "__global int* "+name)
		default:
			parts = append(parts, "__global real_t* "+name)
		}
	}
	return "#define KERNEL_ARGS " + strings.Join(parts, ", ") + "\n\n"
}

func (kp *KernelProgram) generateUtilityFunctions() string {
	return `// Mass conservation for one wet cell
inline void cell_mass(const int ij, const int j, const int pI,
                        const real_t sshArrival, const real_t sshZero, const real_t mTime,
                        __global const real_t* d, __global real_t* h, __global real_t* hMax,
                        __global const real_t* fM, __global const real_t* fN,
                        __global const real_t* cR1, __global real_t* tArr,
                        __global const real_t* cR6) {
    if (d[ij] == REAL_ZERO) return;
    real_t hh = h[ij] - cR1[ij] * (fM[ij] - fM[LE(ij)] + fN[ij] * cR6[j - 1] - fN[DN(ij)] * cR6[j - 2]);
    real_t absH = fabs(hh);
    if (absH < sshZero) hh = REAL_ZERO;
    if (hh > hMax[ij]) hMax[ij] = hh;
    if (sshArrival != REAL_ZERO && tArr[ij] < REAL_ZERO && absH > sshArrival) tArr[ij] = mTime;
    h[ij] = hh;
}

// Momentum conservation, fluxes toward the next row (M) and column (N)
inline void cell_flux(const int ij, const int pI,
                        __global const real_t* d, __global const real_t* h,
                        __global real_t* fM, __global real_t* fN,
                        __global const real_t* cR2, __global const real_t* cR4) {
    if (d[ij] == REAL_ZERO) return;
    real_t hh = h[ij];
    if (d[RI(ij)] != REAL_ZERO) fM[ij] = fM[ij] - cR2[ij] * (h[RI(ij)] - hh);
    if (d[UP(ij)] != REAL_ZERO) fN[ij] = fN[ij] - cR4[ij] * (h[UP(ij)] - hh);
}

// Corner cell: both adjacent fluxes are normal to the boundary
inline real_t radiate_corner(const real_t a, const real_t b, const real_t c) {
    return sqrt(a * a + b * b) * c;
}

// Open boundary: height radiated from the outgoing flux
inline real_t radiate(const real_t normal, const real_t tangentA, const real_t tangentB, const real_t c) {
    real_t t = tangentA + tangentB;
    return sqrt(normal * normal + REAL_QUARTER * t * t) * c;
}

`
}

// kernelBodies are the stepping kernels in launch order
func (kp *KernelProgram) kernelBodies() string {
	return `__kernel void wave_update(KERNEL_ARGS) {
    int j = get_global_id(0) + jMin;
    int i = get_global_id(1) + iMin;
    if (i > iMax || j > jMax) return;
    cell_mass(IDX(i, j), j, pI, sshArrival, sshZero, mTime, d, h, hMax, fM, fN, cR1, tArr, cR6);
}

__kernel void wave_boundary(KERNEL_ARGS) {
    int id = get_global_id(0) + 2;
    int ij;
    if (id == 2) {
        ij = IDX(1, 1);
        h[ij] = radiate_corner(fN[ij], fM[ij], cB1[0]);
        if (fN[ij] > REAL_ZERO) h[ij] = -h[ij];
        ij = IDX(nI, 1);
        h[ij] = radiate_corner(fN[ij], fM[LE(ij)], cB1[nI - 1]);
        if (fN[ij] > REAL_ZERO) h[ij] = -h[ij];
        ij = IDX(1, nJ);
        h[ij] = radiate_corner(fN[DN(ij)], fM[ij], cB3[0]);
        if (fN[DN(ij)] < REAL_ZERO) h[ij] = -h[ij];
        ij = IDX(nI, nJ);
        h[ij] = radiate_corner(fN[DN(ij)], fM[LE(ij)], cB3[nI - 1]);
        if (fN[DN(ij)] < REAL_ZERO) h[ij] = -h[ij];
    }
    // Last interior row and column lie outside every admissible active region
    if (id <= nJ - 1) {
        cell_mass(IDX(nI - 1, id), id, pI, sshArrival, sshZero, mTime, d, h, hMax, fM, fN, cR1, tArr, cR6);
    }
    if (id <= nI - 2) {
        cell_mass(IDX(id, nJ - 1), nJ - 1, pI, sshArrival, sshZero, mTime, d, h, hMax, fM, fN, cR1, tArr, cR6);
    }
    if (id <= nI - 1) {
        ij = IDX(id, 1);
        h[ij] = radiate(fN[ij], fM[ij], fM[LE(ij)], cB1[id - 1]);
        if (fN[ij] > REAL_ZERO) h[ij] = -h[ij];
        ij = IDX(id, nJ);
        h[ij] = radiate(fN[DN(ij)], fM[ij], fM[LE(ij)], cB3[id - 1]);
        if (fN[DN(ij)] < REAL_ZERO) h[ij] = -h[ij];
    }
    if (id <= nJ - 1) {
        ij = IDX(1, id);
        h[ij] = radiate(fM[ij], fN[ij], fN[DN(ij)], cB2[id - 1]);
        if (fM[ij] > REAL_ZERO) h[ij] = -h[ij];
        ij = IDX(nI, id);
        h[ij] = radiate(fM[LE(ij)], fN[ij], fN[DN(ij)], cB4[id - 1]);
        if (fM[LE(ij)] < REAL_ZERO) h[ij] = -h[ij];
    }
}

__kernel void flux_update(KERNEL_ARGS) {
    int j = get_global_id(0) + jMin;
    int i = get_global_id(1) + iMin;
    if (i > iMax || j > jMax) return;
    cell_flux(IDX(i, j), pI, d, h, fM, fN, cR2, cR4);
}

__kernel void flux_boundary(KERNEL_ARGS) {
    int id = get_global_id(0) + 1;
    if (id <= nJ - 1) {
        cell_flux(IDX(1, id), pI, d, h, fM, fN, cR2, cR4);
        cell_flux(IDX(nI - 1, id), pI, d, h, fM, fN, cR2, cR4);
    }
    if (id >= 2 && id <= nI - 2) {
        cell_flux(IDX(id, 1), pI, d, h, fM, fN, cR2, cR4);
        cell_flux(IDX(id, nJ - 1), pI, d, h, fM, fN, cR2, cR4);
    }
}

__kernel void grid_extend(KERNEL_ARGS) {
    int id = get_global_id(0) + 1;
    if (id >= jMin && id <= jMax) {
        if (fabs(h[IDX(min(iMin + 2, nI), id)]) > sshClip) atomic_add(&minMax[0], 1);
        if (fabs(h[IDX(max(iMax - 2, 1), id)]) > sshClip) atomic_add(&minMax[1], 1);
    }
    if (id >= iMin && id <= iMax) {
        if (fabs(h[IDX(id, min(jMin + 2, nJ))]) > sshClip) atomic_add(&minMax[2], 1);
        if (fabs(h[IDX(id, max(jMax - 2, 1))]) > sshClip) atomic_add(&minMax[3], 1);
    }
}
`
}

// Source returns the complete program: preamble followed by the kernels
func (kp *KernelProgram) Source() string {
	if kp.kernelPreamble == "" {
		kp.GenerateKernelMain()
	}
	return kp.kernelPreamble + "\n" + kp.kernelBodies()
}

// GetKernelPreamble returns the generated preamble (useful for debugging)
func (kp *KernelProgram) GetKernelPreamble() string {
	return kp.kernelPreamble
}
