package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nvr-ai/go-vision/inference/providers"
	"github.com/nvr-ai/go-vision/logging"
	"github.com/nvr-ai/go-vision/models"
	"github.com/nvr-ai/go-vision/models/model"
	"github.com/nvr-ai/go-vision/models/sam"
	"github.com/nvr-ai/go-vision/server"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// EnvPrefix prefixes every environment override, e.g. SEGMENT_ENCODER_PATH.
const EnvPrefix = "SEGMENT"

// demoConfig is the merged defaults, file, env and flag configuration.
type demoConfig struct {
	Model          string  `mapstructure:"model"`
	EncoderPath    string  `mapstructure:"encoder_path"`
	DecoderPath    string  `mapstructure:"decoder_path"`
	InputImageSize int     `mapstructure:"input_image_size"`
	ClipThreshold  float32 `mapstructure:"clip_threshold"`
	MaskThreshold  float32 `mapstructure:"mask_threshold"`
	BinaryMaskOut  bool    `mapstructure:"binary_mask_out"`
	Seed           int64   `mapstructure:"seed"`
	Addr           string  `mapstructure:"addr"`
	ORTLibraryPath string  `mapstructure:"ort_library_path"`
	Provider       string  `mapstructure:"provider"`
	DeviceID       int     `mapstructure:"device_id"`
	MaxUploadBytes int64   `mapstructure:"max_upload_bytes"`
	MaxImagePixels int     `mapstructure:"max_image_pixels"`
	LogLevel       string  `mapstructure:"log_level"`
}

func newRootCmd() *cobra.Command {
	cmd, _ := buildRootCmd()
	return cmd
}

// buildRootCmd returns the command and the viper instance bound to its flags.
func buildRootCmd() (*cobra.Command, *viper.Viper) {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:           "segment-demo",
		Short:         "Serve the interactive segmentation demo",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, cfgFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&cfgFile, "config", "c", "", "optional YAML config file")
	f.String("model", string(model.ModelNameSAMH), "segmenter variant: sam_b, sam_l or sam_h")
	f.String("encoder-path", "", "image encoder ONNX file")
	f.String("decoder-path", "", "prompt decoder ONNX file")
	f.Int("input-image-size", 1024, "padded square input side")
	f.Float32("clip-threshold", sam.DefaultClipThreshold, "binarisation threshold for the resized mask")
	f.Float32("mask-threshold", 0, "decoder logit threshold")
	f.Bool("binary-mask-out", true, "binarise decoder logits")
	f.Int64("seed", 0, "overlay palette seed")
	f.String("addr", server.DefaultAddr, "listen address")
	f.String("ort-library-path", "", "ONNX Runtime shared library")
	f.String("provider", "cpu", "execution provider: cpu or cuda")
	f.Int("device-id", 0, "CUDA device")
	f.Int64("max-upload-bytes", server.DefaultMaxUploadBytes, "multipart upload limit")
	f.Int("max-image-pixels", server.DefaultMaxImagePixels, "largest accepted width*height per image")
	f.String("log-level", "info", "log level")

	f.VisitAll(func(fl *pflag.Flag) {
		if fl.Name == "config" {
			return
		}
		key := strings.ReplaceAll(fl.Name, "-", "_")
		_ = v.BindPFlag(key, fl)
	})
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	return cmd, v
}

func loadConfig(v *viper.Viper, file string) (*demoConfig, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	var cfg demoConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.EncoderPath == "" || cfg.DecoderPath == "" {
		return nil, fmt.Errorf("encoder_path and decoder_path are required")
	}
	return &cfg, nil
}

func serve(ctx context.Context, cfg *demoConfig) (err error) {
	logger, err := logging.New(logging.Options{Name: "segment-demo", Level: cfg.LogLevel})
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	segmenter, err := models.NewSegmenter(model.NewModelArgs{
		Name:        model.Name(cfg.Model),
		EncoderPath: cfg.EncoderPath,
		DecoderPath: cfg.DecoderPath,
		InputSize:   cfg.InputImageSize,
		LibraryPath: cfg.ORTLibraryPath,
		Provider:    cfg.Provider,
		DeviceID:    cfg.DeviceID,
	}, sam.Options{MaskThreshold: cfg.MaskThreshold, BinaryMaskOut: cfg.BinaryMaskOut})
	if err != nil {
		logger.Error("failed to load segmenter", zap.Error(err))
		return err
	}
	defer func() {
		err = multierr.Combine(err, segmenter.Close(), providers.DestroyEnvironment())
	}()

	logger.Info("segmenter loaded", zap.String("model", cfg.Model), zap.Int("input_image_size", segmenter.InputSize()))

	predictor := sam.NewPredictor(segmenter, sam.PredictorOptions{
		ClipThreshold: cfg.ClipThreshold,
		Seed:          cfg.Seed,
		Logger:        logger,
	})
	defer predictor.Timings().Log(logger)

	srv := server.New(predictor, server.Options{
		Addr:           cfg.Addr,
		MaxUploadBytes: cfg.MaxUploadBytes,
		MaxImagePixels: cfg.MaxImagePixels,
		Logger:         logger,
	})
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server failed", zap.Error(err))
		return err
	}
	return nil
}
