// Package evaluate - Distributed face detection evaluation.
//
// A Harness runs one worker of an evaluation job: it loads the work
// directory's test_config.yaml, joins the process group, shards every
// validation dataset across ranks, runs the detector and reports AP on rank 0.
package evaluate

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/nvr-ai/go-vision/models/face"
	"github.com/spf13/viper"
)

// ConfigFile is the file name looked up in the work directory.
const ConfigFile = "test_config.yaml"

var (
	// ErrNoGPU is returned when no accelerator is visible.
	ErrNoGPU = errors.New("need gpu to evaluate network!")
	// ErrIndivisible is returned when a global size does not split evenly across ranks.
	ErrIndivisible = errors.New("not divisible by world size")
)

// DatasetConfig names one validation set.
type DatasetConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
	// Root is the directory image paths in the annotation file are relative to.
	Root string `mapstructure:"root" yaml:"root"`
	// Annotation is a WIDER FACE *_bbx_gt.txt file.
	Annotation string `mapstructure:"annotation" yaml:"annotation"`
}

// CriterionConfig selects the validation loss.
type CriterionConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
}

// Config is the contents of test_config.yaml.
type Config struct {
	Network        string             `mapstructure:"network"          yaml:"network"`
	ModelPath      string             `mapstructure:"model_path"       yaml:"model_path"`
	InputImageSize int                `mapstructure:"input_image_size" yaml:"input_image_size"`
	Seed           int64              `mapstructure:"seed"             yaml:"seed"`
	BatchSize      int                `mapstructure:"batch_size"       yaml:"batch_size"`
	NumWorkers     int                `mapstructure:"num_workers"      yaml:"num_workers"`
	EvalType       string             `mapstructure:"eval_type"        yaml:"eval_type"`
	ValDatasetList []DatasetConfig    `mapstructure:"val_dataset_list" yaml:"val_dataset_list"`
	Decoder        face.DecoderConfig `mapstructure:"decoder"          yaml:"decoder"`
	Criterion      CriterionConfig    `mapstructure:"criterion"        yaml:"criterion"`
	IoUThreshold   float32            `mapstructure:"iou_threshold"    yaml:"iou_threshold"`
	ORTLibraryPath string             `mapstructure:"ort_library_path" yaml:"ort_library_path"`
	Provider       string             `mapstructure:"provider"         yaml:"provider"`
	Prefetch       int                `mapstructure:"prefetch"         yaml:"prefetch"`

	GPUsType string `mapstructure:"gpus_type" yaml:"gpus_type"`
	GPUsNum  int    `mapstructure:"gpus_num"  yaml:"gpus_num"`
}

func setDefaults(v *viper.Viper) {
	dec := face.DefaultDecoderConfig()
	v.SetDefault("input_image_size", face.DefaultInputSize)
	v.SetDefault("seed", 0)
	v.SetDefault("batch_size", 1)
	v.SetDefault("num_workers", 1)
	v.SetDefault("eval_type", "ap50")
	v.SetDefault("decoder.conf_threshold", dec.ConfThreshold)
	v.SetDefault("decoder.nms_threshold", dec.NMSThreshold)
	v.SetDefault("decoder.max_detections", dec.MaxDetections)
	v.SetDefault("criterion.name", CriterionIoU)
	v.SetDefault("iou_threshold", 0.5)
	v.SetDefault("provider", "cuda")
	v.SetDefault("prefetch", 2)
}

// LoadConfig reads <workDir>/test_config.yaml.
//
// Arguments:
//   - workDir: The directory holding the config file.
//
// Returns:
//   - *Config: The decoded config.
//   - *viper.Viper: The backing store, used for the key dump.
//   - error: An error if the file is missing or malformed.
func LoadConfig(workDir string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(filepath.Join(workDir, ConfigFile))
	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("error reading %s: %w", ConfigFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("error decoding %s: %w", ConfigFile, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return &cfg, v, nil
}

// Validate checks the fields every run needs.
func (c *Config) Validate() error {
	switch {
	case c.Network == "":
		return errors.New("config.network is required")
	case c.ModelPath == "":
		return errors.New("config.model_path is required")
	case len(c.ValDatasetList) == 0:
		return errors.New("config.val_dataset_list is empty")
	case c.BatchSize <= 0:
		return fmt.Errorf("config.batch_size must be positive, got %d", c.BatchSize)
	case c.NumWorkers <= 0:
		return fmt.Errorf("config.num_workers must be positive, got %d", c.NumWorkers)
	}
	return nil
}

// PerRank splits the global batch size and worker count across world ranks.
//
// Arguments:
//   - world: The number of ranks.
//
// Returns:
//   - batch: The per-rank batch size.
//   - workers: The per-rank loader goroutines.
//   - error: ErrIndivisible naming the field that does not split evenly.
func (c *Config) PerRank(world int) (batch, workers int, err error) {
	if c.BatchSize%world != 0 {
		return 0, 0, fmt.Errorf("config.batch_size %d is %w %d", c.BatchSize, ErrIndivisible, world)
	}
	if c.NumWorkers%world != 0 {
		return 0, 0, fmt.Errorf("config.num_workers %d is %w %d", c.NumWorkers, ErrIndivisible, world)
	}
	return c.BatchSize / world, c.NumWorkers / world, nil
}

// ConfigLines renders every top level key as "key: value", sorted, skipping model.
func ConfigLines(v *viper.Viper) []string {
	settings := v.AllSettings()
	keys := make([]string, 0, len(settings))
	for k := range settings {
		if k == "model" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, settings[k]))
	}
	return lines
}
