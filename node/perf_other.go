//go:build !linux

package node

import "errors"

func countInstructions(f func() error) (count uint64, fErr, perfErr error) {
	return 0, f(), errors.New("hardware counters require linux")
}
