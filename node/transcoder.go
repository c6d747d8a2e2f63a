package node

import (
	"fmt"

	"github.com/notargets/gotsunami/device"
)

// ToDevice copies a rows x cols host array into a rows x width device buffer,
// one transfer per row. Pad columns are left untouched.
func ToDevice(dev device.Device, dst device.Buffer, src []float32, rows, cols, width int) error {
	checkTransfer("ToDevice", dst, src, rows, cols, width)
	for r := 0; r < rows; r++ {
		if err := dev.CopyToDevice(dst, r*width, src[r*cols:(r+1)*cols]); err != nil {
			return fmt.Errorf("copying row %d to device: %w", r, err)
		}
	}
	return nil
}

// FromDevice copies a rows x width device buffer into a rows x cols host
// array, one transfer per row, dropping the pad columns
func FromDevice(dev device.Device, dst []float32, src device.Buffer, rows, cols, width int) error {
	checkTransfer("FromDevice", src, dst, rows, cols, width)
	for r := 0; r < rows; r++ {
		if err := dev.CopyFromDevice(dst[r*cols:(r+1)*cols], src, r*width); err != nil {
			return fmt.Errorf("copying row %d from device: %w", r, err)
		}
	}
	return nil
}

func checkTransfer(op string, buf device.Buffer, host []float32, rows, cols, width int) {
	switch {
	case buf == nil:
		panic(op + ": nil device buffer")
	case host == nil:
		panic(op + ": nil host array")
	case rows < 0 || cols < 0 || cols > width:
		panic(fmt.Sprintf("%s: bad shape %d x %d with storage width %d", op, rows, cols, width))
	case len(host) < rows*cols:
		panic(fmt.Sprintf("%s: host array holds %d elements, need %d", op, len(host), rows*cols))
	case buf.Len() < rows*width:
		panic(fmt.Sprintf("%s: device buffer holds %d elements, need %d", op, buf.Len(), rows*width))
	}
}
