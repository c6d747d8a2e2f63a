package device

import "fmt"

const (
	BackendHost   = "host"
	BackendOpenCL = "opencl"
)

// Open creates the named backend. An unknown name is a configuration error,
// a backend that fails to initialize returns a Fault.
func Open(backend string) (Device, error) {
	switch backend {
	case "", BackendHost:
		return NewHost(HostConfig{}), nil
	case BackendOpenCL:
		return openOpenCL(OpenCLConfig{})
	}
	return nil, fmt.Errorf("unrecognized backend %q, want %q or %q", backend, BackendHost, BackendOpenCL)
}
