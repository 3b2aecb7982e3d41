package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "demo.yaml")
	require.NoError(t, os.WriteFile(file, []byte("encoder_path: /m/enc.onnx\ndecoder_path: /m/dec.onnx\nseed: 7\naddr: 127.0.0.1:7000\n"), 0o644))

	cmd, v := buildRootCmd()
	require.NoError(t, cmd.Flags().Set("addr", "127.0.0.1:8000"))
	t.Setenv("SEGMENT_PROVIDER", "cuda")

	cfg, err := loadConfig(v, file)
	require.NoError(t, err)

	assert.Equal(t, "sam_h", cfg.Model)
	assert.Equal(t, 1024, cfg.InputImageSize)
	assert.InDelta(t, 0.5, cfg.ClipThreshold, 1e-6)
	assert.True(t, cfg.BinaryMaskOut)
	assert.Equal(t, int64(7), cfg.Seed, "file overrides default")
	assert.Equal(t, "cuda", cfg.Provider, "env overrides default")
	assert.Equal(t, "127.0.0.1:8000", cfg.Addr, "flag overrides file")
}

func TestLoadConfig_ZeroClipThreshold(t *testing.T) {
	cmd, v := buildRootCmd()
	require.NoError(t, cmd.Flags().Set("encoder-path", "/m/enc.onnx"))
	require.NoError(t, cmd.Flags().Set("decoder-path", "/m/dec.onnx"))
	require.NoError(t, cmd.Flags().Set("clip-threshold", "0"))

	cfg, err := loadConfig(v, "")
	require.NoError(t, err)
	assert.Zero(t, cfg.ClipThreshold)
}

func TestLoadConfig_RequiresModelFiles(t *testing.T) {
	_, v := buildRootCmd()
	_, err := loadConfig(v, "")
	assert.Error(t, err)

	_, v = buildRootCmd()
	_, err = loadConfig(v, "/nonexistent/demo.yaml")
	assert.Error(t, err)
}

func TestRootCmd_Flags(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"config", "model", "encoder-path", "decoder-path", "addr", "provider", "mask-threshold"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}
