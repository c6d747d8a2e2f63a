package node

import (
	"fmt"

	"github.com/notargets/gotsunami/device"
	"github.com/notargets/gotsunami/utils"
)

// PitchPolicy selects how the storage width is derived
type PitchPolicy string

const (
	// PitchDevice asks the device for its preferred pitch with a throwaway
	// pitched allocation
	PitchDevice PitchPolicy = "device"
	// PitchAligned rounds the column count up to the alignment unit
	PitchAligned PitchPolicy = "aligned"
)

// NewPitchPolicy parses a policy name, the empty string selects PitchDevice
func NewPitchPolicy(name string) (PitchPolicy, error) {
	switch PitchPolicy(name) {
	case "", PitchDevice:
		return PitchDevice, nil
	case PitchAligned:
		return PitchAligned, nil
	}
	return "", fmt.Errorf("unrecognized memory pitch policy %q, want %q or %q", name, PitchDevice, PitchAligned)
}

// Geometry is fixed for the lifetime of a run
type Geometry struct {
	NRows, NCols int
	StorageWidth int // Row stride of every 2D device buffer, in elements
}

// Pitched returns the number of elements of a 2D device buffer
func (g Geometry) Pitched() int { return g.NRows * g.StorageWidth }

// ResolveStorageWidth determines the padded row stride, in elements, for an
// nRows x nCols field of elemSize byte elements. The result is at least
// nCols and a multiple of alignment.
func ResolveStorageWidth(dev device.Device, nRows, nCols, elemSize int,
	policy PitchPolicy, alignment int) (width int, err error) {
	if nRows < 1 || nCols < 1 || elemSize < 1 {
		return 0, fmt.Errorf("malformed geometry: %d rows, %d cols, %d byte elements", nRows, nCols, elemSize)
	}
	if alignment < 1 {
		return 0, fmt.Errorf("alignment unit %d must be positive", alignment)
	}
	switch policy {
	case PitchAligned:
		width = nCols
	case PitchDevice:
		var (
			trial device.Buffer
			pitch int
		)
		if trial, pitch, err = dev.MallocPitch(nCols*elemSize, nRows); err != nil {
			return 0, fmt.Errorf("querying pitch for %d x %d bytes: %w", nRows, nCols*elemSize, err)
		}
		if err = dev.Free(trial); err != nil {
			return 0, fmt.Errorf("releasing pitch trial: %w", err)
		}
		if pitch == 0 {
			return 0, &device.Fault{Op: "MallocPitch", Code: device.CodeInvalidValue, Msg: "Failed to compute pitch"}
		}
		utils.Logger().Info("Computed pitch", "bytes", pitch)
		width = pitch / elemSize
	default:
		return 0, fmt.Errorf("unrecognized memory pitch policy %q", policy)
	}
	width = max(width, nCols)
	if rem := width % alignment; rem != 0 {
		width += alignment - rem
	}
	return width, nil
}
