package device

import (
	"errors"
	"fmt"
)

// Error codes carried by a Fault
const (
	CodeInvalidValue   = 1
	CodeOutOfMemory    = 2
	CodeInvalidHandle  = 400
	CodeLaunchFailure  = 719
	CodeNotInitialized = 3
)

var codeStrings = map[int]string{
	CodeInvalidValue:   "invalid argument",
	CodeOutOfMemory:    "out of memory",
	CodeInvalidHandle:  "invalid resource handle",
	CodeLaunchFailure:  "unspecified launch failure",
	CodeNotInitialized: "device not initialized",
}

// Fault is an unrecoverable device runtime error. Device state after a Fault
// is undefined and the run must be abandoned.
type Fault struct {
	Op   string
	Code int
	Msg  string
}

func (f *Fault) Error() string {
	desc, ok := codeStrings[f.Code]
	if !ok {
		desc = "unknown error"
	}
	if f.Msg == "" {
		return fmt.Sprintf("%s failed: error %d (%s)", f.Op, f.Code, desc)
	}
	return fmt.Sprintf("%s failed: error %d (%s): %s", f.Op, f.Code, desc, f.Msg)
}

func newFault(op string, code int, format string, args ...interface{}) *Fault {
	return &Fault{Op: op, Code: code, Msg: fmt.Sprintf(format, args...)}
}

// IsFatal reports whether err carries a device Fault
func IsFatal(err error) bool {
	var f *Fault
	return errors.As(err, &f)
}
