// Package providers - Execution providers and sessions for the ONNX Runtime.
package providers

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// ProviderBackend represents different ONNX Runtime execution providers.
type ProviderBackend string

// ProviderOptions is a marker interface for provider-specific config.
type ProviderOptions interface {
	isProviderOptions()
}

// ExecutionProvider represents the contract that all execution providers must implement.
type ExecutionProvider interface {
	// Backend returns the backend identifier.
	Backend() ProviderBackend
	// Options returns the provider-specific options.
	Options() ProviderOptions
	// Append registers the provider on a set of session options.
	Append(options *ort.SessionOptions) error
}

// Config selects and configures an execution provider.
type Config struct {
	// Backend is either "cpu" or "cuda".
	Backend ProviderBackend `json:"backend" yaml:"backend" mapstructure:"backend"`
	// DeviceID is the accelerator ordinal, ignored on CPU.
	DeviceID int `json:"device_id" yaml:"device_id" mapstructure:"device_id"`
	// Threads bounds intra-op parallelism; zero lets the runtime decide.
	Threads int `json:"threads" yaml:"threads" mapstructure:"threads"`
}

// NewProvider creates a new provider based on the required backend.
//
// Arguments:
//   - cfg: The provider selection.
//
// Returns:
//   - ExecutionProvider: The new provider.
//   - error: An error if the backend is unknown.
//
// @example
// provider, err := NewProvider(Config{Backend: CUDAProviderBackend, DeviceID: localRank})
func NewProvider(cfg Config) (ExecutionProvider, error) {
	switch cfg.Backend {
	case CPUProviderBackend, "":
		return NewCPUProvider(CPUOptions{Threads: cfg.Threads}), nil
	case CUDAProviderBackend:
		return NewCUDAProvider(CUDAOptions{DeviceID: cfg.DeviceID, DoCopyInDefaultStream: true}), nil
	default:
		return nil, fmt.Errorf("unsupported provider backend: %q", cfg.Backend)
	}
}
