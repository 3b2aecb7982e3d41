package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		backend ProviderBackend
		wantErr bool
	}{
		{name: "default is cpu", cfg: Config{}, backend: CPUProviderBackend},
		{name: "cpu with threads", cfg: Config{Backend: "cpu", Threads: 4}, backend: CPUProviderBackend},
		{name: "cuda device", cfg: Config{Backend: "cuda", DeviceID: 3}, backend: CUDAProviderBackend},
		{name: "unknown", cfg: Config{Backend: "rocm"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.backend, p.Backend())
		})
	}
}

func TestNewProvider_CUDADeviceID(t *testing.T) {
	p, err := NewProvider(Config{Backend: CUDAProviderBackend, DeviceID: 2})
	require.NoError(t, err)

	opts, ok := p.Options().(CUDAOptions)
	require.True(t, ok)
	assert.Equal(t, 2, opts.DeviceID)
	assert.True(t, opts.DoCopyInDefaultStream)
}

func TestInitializeEnvironment_MissingLibrary(t *testing.T) {
	err := InitializeEnvironment("/nonexistent/onnxruntime.so")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/nonexistent/onnxruntime.so")
}
