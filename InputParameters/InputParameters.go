package InputParameters

import (
	"fmt"
	"math"
	"strings"

	"github.com/ghodss/yaml"

	"github.com/notargets/gotsunami/node"
)

const Gravity = 9.81

// Source is the initial sea surface displacement, a Gaussian hump
type Source struct {
	Row       int     `json:"Row"` // One based cell of the peak
	Col       int     `json:"Col"`
	Amplitude float64 `json:"Amplitude"`
	Radius    float64 `json:"Radius"` // e-folding radius in cells
}

// POI is a point of interest sampled during the run, in one based cells
type POI struct {
	Name string `json:"Name"`
	Row  int    `json:"Row"`
	Col  int    `json:"Col"`
}

// Parameters obtained from the YAML input file
type Parameters struct {
	Title string  `json:"Title"`
	NRows int     `json:"NRows"`
	NCols int     `json:"NCols"`
	Dx    float64 `json:"Dx"`    // Grid spacing in meters
	Depth float64 `json:"Depth"` // Flat basin depth in meters
	Dt    float64 `json:"Dt"`    // Time step in seconds
	Steps int     `json:"Steps"`

	SSHArrivalThreshold float64 `json:"SSHArrivalThreshold"`
	SSHClipThreshold    float64 `json:"SSHClipThreshold"`
	SSHZeroThreshold    float64 `json:"SSHZeroThreshold"`

	Region           *node.Region `json:"Region"` // Initial active region, default is around the source
	GrowthStepJ      int          `json:"GrowthStepJ"`
	Alignment        int          `json:"Alignment"`
	PitchPolicy      string       `json:"PitchPolicy"`
	AlignInitialJMin bool         `json:"AlignInitialJMin"`

	Source      Source `json:"Source"`
	POIs        []POI  `json:"POIs"`
	POIInterval int    `json:"POIInterval"` // Steps between POI samples (default: 10)
}

func (ip *Parameters) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, ip); err != nil {
		return err
	}
	ip.setDefaults()
	return nil
}

func (ip *Parameters) setDefaults() {
	if ip.Dx == 0 {
		ip.Dx = 1000
	}
	if ip.Depth == 0 {
		ip.Depth = 4000
	}
	if ip.Dt == 0 && ip.Depth > 0 && ip.Dx > 0 {
		// Half the stability limit
		ip.Dt = 0.5 * ip.Dx / math.Sqrt(Gravity*ip.Depth)
	}
	if ip.SSHArrivalThreshold == 0 {
		ip.SSHArrivalThreshold = 1e-3
	}
	if ip.SSHClipThreshold == 0 {
		ip.SSHClipThreshold = 1e-4
	}
	if ip.SSHZeroThreshold == 0 {
		ip.SSHZeroThreshold = 1e-5
	}
	if ip.Source.Radius == 0 {
		ip.Source.Radius = 3
	}
	if ip.POIInterval == 0 {
		ip.POIInterval = 10
	}
}

// Courant returns the Courant number of the basin
func (ip *Parameters) Courant() float64 {
	return math.Sqrt(Gravity*ip.Depth) * ip.Dt / ip.Dx
}

// Validate reports configuration faults, before any device is opened
func (ip *Parameters) Validate() error {
	var errs []string
	fail := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}
	if ip.NRows < 5 || ip.NCols < 5 {
		fail("grid %d x %d is too small, need at least 5 x 5", ip.NRows, ip.NCols)
	}
	if ip.Dx <= 0 || ip.Depth <= 0 || ip.Dt <= 0 {
		fail("Dx, Depth and Dt must be positive")
	} else if c := ip.Courant(); c >= 1 {
		fail("Courant number %.3f is unstable, reduce Dt", c)
	}
	if ip.Steps < 0 {
		fail("negative step count %d", ip.Steps)
	}
	if ip.SSHZeroThreshold > ip.SSHClipThreshold {
		fail("SSHZeroThreshold %g exceeds SSHClipThreshold %g", ip.SSHZeroThreshold, ip.SSHClipThreshold)
	}
	if _, err := node.NewPitchPolicy(ip.PitchPolicy); err != nil {
		fail("%v", err)
	}
	if len(errs) == 0 {
		if err := ip.NodeConfig().Validate(); err != nil {
			fail("%v", err)
		}
		if !ip.inside(ip.Source.Row, ip.Source.Col) {
			fail("source cell (%d,%d) outside grid", ip.Source.Row, ip.Source.Col)
		}
		for _, p := range ip.POIs {
			if !ip.inside(p.Row, p.Col) {
				fail("POI %q cell (%d,%d) outside grid", p.Name, p.Row, p.Col)
			}
		}
	}
	if len(errs) != 0 {
		return fmt.Errorf("invalid parameters: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (ip *Parameters) inside(row, col int) bool {
	return row >= 1 && row <= ip.NRows && col >= 1 && col <= ip.NCols
}

// InitialRegion is the configured region, or the source neighbourhood of one
// radius clamped to the admissible bounds
func (ip *Parameters) InitialRegion() node.Region {
	if ip.Region != nil {
		return *ip.Region
	}
	var (
		b = node.Bounds(ip.NRows, ip.NCols)
		r = int(math.Ceil(ip.Source.Radius))
	)
	clamp := func(v, lo, hi int) int { return min(max(v, lo), hi) }
	return node.Region{
		IMin: clamp(ip.Source.Row-r, b.IMin, b.IMax),
		IMax: clamp(ip.Source.Row+r, b.IMin, b.IMax),
		JMin: clamp(ip.Source.Col-r, b.JMin, b.JMax),
		JMax: clamp(ip.Source.Col+r, b.JMin, b.JMax),
	}
}

func (ip *Parameters) NodeConfig() node.Config {
	return node.Config{
		NRows:            ip.NRows,
		NCols:            ip.NCols,
		Region:           ip.InitialRegion(),
		GrowthStepJ:      ip.GrowthStepJ,
		Alignment:        ip.Alignment,
		PitchPolicy:      node.PitchPolicy(ip.PitchPolicy),
		AlignInitialJMin: ip.AlignInitialJMin,
	}
}

// StepParams implements node.ParamProvider, the time is that reached at the
// end of the step
func (ip *Parameters) StepParams(step int) node.StepParams {
	return node.StepParams{
		Time:                float32(float64(step) * ip.Dt),
		SSHArrivalThreshold: float32(ip.SSHArrivalThreshold),
		SSHClipThreshold:    float32(ip.SSHClipThreshold),
		SSHZeroThreshold:    float32(ip.SSHZeroThreshold),
	}
}

// POIIndices returns the zero based row major grid index of every POI
func (ip *Parameters) POIIndices() []int {
	idx := make([]int, len(ip.POIs))
	for n, p := range ip.POIs {
		idx[n] = (p.Row-1)*ip.NCols + p.Col - 1
	}
	return idx
}

func (ip *Parameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("[%d x %d]\t\t= Grid\n", ip.NRows, ip.NCols)
	fmt.Printf("%8.2f\t\t= Dx (m)\n", ip.Dx)
	fmt.Printf("%8.2f\t\t= Depth (m)\n", ip.Depth)
	fmt.Printf("%8.4f\t\t= Dt (s), Courant %.3f\n", ip.Dt, ip.Courant())
	fmt.Printf("[%d]\t\t\t= Steps\n", ip.Steps)
	fmt.Printf("%.1e/%.1e/%.1e\t= SSH arrival/clip/zero\n",
		ip.SSHArrivalThreshold, ip.SSHClipThreshold, ip.SSHZeroThreshold)
	fmt.Printf("%s\t= Initial region\n", ip.InitialRegion())
	fmt.Printf("(%d,%d) A=%.3f R=%.1f\t= Source\n", ip.Source.Row, ip.Source.Col, ip.Source.Amplitude, ip.Source.Radius)
	for _, p := range ip.POIs {
		fmt.Printf("POI[%s] = (%d,%d)\n", p.Name, p.Row, p.Col)
	}
}
