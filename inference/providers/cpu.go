// Package providers - CPU based execution provider.
package providers

import ort "github.com/yalue/onnxruntime_go"

const (
	// CPUProviderBackend uses the default CPU kernels.
	CPUProviderBackend ProviderBackend = "cpu"
)

// CPUOptions contains arguments for the CPU provider.
type CPUOptions struct {
	// Threads is the intra-op thread count, zero for the runtime default.
	Threads int `json:"threads" yaml:"threads"`
}

func (CPUOptions) isProviderOptions() {}

// CPUProvider represents the CPU execution provider.
type CPUProvider struct {
	options CPUOptions
}

// NewCPUProvider creates a new CPU provider.
func NewCPUProvider(args CPUOptions) *CPUProvider {
	return &CPUProvider{options: args}
}

// Backend returns the backend of the CPU provider.
func (p *CPUProvider) Backend() ProviderBackend {
	return CPUProviderBackend
}

// Options returns the options of the CPU provider.
func (p *CPUProvider) Options() ProviderOptions {
	return p.options
}

// Append applies the thread setting. CPU kernels are always registered.
func (p *CPUProvider) Append(options *ort.SessionOptions) error {
	if p.options.Threads > 0 {
		return options.SetIntraOpNumThreads(p.options.Threads)
	}
	return nil
}
