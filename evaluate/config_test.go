package evaluate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte(body), 0o644))
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
network: yolov5face_s
model_path: /models/yolov5s-face.onnx
batch_size: 8
num_workers: 4
val_dataset_list:
  - name: wider_val
    root: /data/WIDER_val/images
    annotation: /data/wider_face_split/wider_face_val_bbx_gt.txt
decoder:
  conf_threshold: 0.3
`)

	cfg, v, err := LoadConfig(dir)
	require.NoError(t, err)
	require.NotNil(t, v)

	assert.Equal(t, "yolov5face_s", cfg.Network)
	assert.Equal(t, 8, cfg.BatchSize)
	assert.Equal(t, 640, cfg.InputImageSize)
	assert.Equal(t, "cuda", cfg.Provider)
	assert.InDelta(t, 0.3, cfg.Decoder.ConfThreshold, 1e-6)
	assert.InDelta(t, 0.5, cfg.Decoder.NMSThreshold, 1e-6)
	assert.InDelta(t, 0.5, cfg.IoUThreshold, 1e-6)
	assert.Equal(t, CriterionIoU, cfg.Criterion.Name)
	require.Len(t, cfg.ValDatasetList, 1)
	assert.Equal(t, "wider_val", cfg.ValDatasetList[0].Name)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, _, err := LoadConfig(t.TempDir())
	assert.Error(t, err, "missing file")

	tests := []struct {
		name string
		body string
	}{
		{name: "no network", body: "model_path: m.onnx\nval_dataset_list: [{name: a}]\n"},
		{name: "no model", body: "network: yolov5face_n\nval_dataset_list: [{name: a}]\n"},
		{name: "no datasets", body: "network: yolov5face_n\nmodel_path: m.onnx\n"},
		{name: "zero batch", body: "network: yolov5face_n\nmodel_path: m.onnx\nbatch_size: 0\nval_dataset_list: [{name: a}]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.body)
			_, _, err := LoadConfig(dir)
			assert.Error(t, err)
		})
	}
}

func TestConfig_PerRank(t *testing.T) {
	tests := []struct {
		name        string
		batch       int
		workers     int
		world       int
		wantBatch   int
		wantWorkers int
		wantField   string
	}{
		{name: "single", batch: 8, workers: 4, world: 1, wantBatch: 8, wantWorkers: 4},
		{name: "split", batch: 8, workers: 4, world: 4, wantBatch: 2, wantWorkers: 1},
		{name: "batch indivisible", batch: 6, workers: 4, world: 4, wantField: "config.batch_size"},
		{name: "workers indivisible", batch: 8, workers: 6, world: 4, wantField: "config.num_workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{BatchSize: tt.batch, NumWorkers: tt.workers}
			batch, workers, err := cfg.PerRank(tt.world)
			if tt.wantField != "" {
				assert.ErrorIs(t, err, ErrIndivisible)
				assert.Contains(t, err.Error(), tt.wantField)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBatch, batch)
			assert.Equal(t, tt.wantWorkers, workers)
		})
	}
}

func TestConfigLines(t *testing.T) {
	v := viper.New()
	v.Set("network", "yolov5face_n")
	v.Set("model", "ignored")
	v.Set("seed", 0)
	v.Set("batch_size", 4)

	assert.Equal(t, []string{
		"batch_size: 4",
		"network: yolov5face_n",
		"seed: 0",
	}, ConfigLines(v))
}
