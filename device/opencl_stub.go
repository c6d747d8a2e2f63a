//go:build !opencl

package device

// OpenCLConfig configures the OpenCL backend
type OpenCLConfig struct {
	PitchAlignment int
	PreferCPU      bool
}

// OpenCLAvailable reports whether this binary was built with OpenCL support
const OpenCLAvailable = false

// OpenCL is unavailable without the opencl build tag
type OpenCL struct{}

func NewOpenCL(cfg OpenCLConfig) (*OpenCL, error) {
	return nil, &Fault{Op: "NewOpenCL", Code: CodeNotInitialized,
		Msg: "OpenCL support is not enabled; rebuild with -tags opencl"}
}

func openOpenCL(cfg OpenCLConfig) (Device, error) {
	_, err := NewOpenCL(cfg)
	return nil, err
}
