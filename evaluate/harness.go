package evaluate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/nvr-ai/go-vision/device"
	"github.com/nvr-ai/go-vision/dist"
	"github.com/nvr-ai/go-vision/inference/providers"
	"github.com/nvr-ai/go-vision/logging"
	"github.com/nvr-ai/go-vision/models"
	"github.com/nvr-ai/go-vision/models/face"
	"github.com/nvr-ai/go-vision/models/model"
	"github.com/nvr-ai/go-vision/profiler"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Environment variables read by a worker.
const (
	EnvLocalRank = "LOCAL_RANK"
	EnvRank      = "RANK"
	EnvWorldSize = "WORLD_SIZE"
	EnvStoreAddr = "DIST_STORE_ADDR"
	EnvRunID     = "DIST_RUN_ID"

	// DefaultStoreAddr is used when EnvStoreAddr is unset.
	DefaultStoreAddr = "127.0.0.1:6379"
	// LoggerName is the harness logger and log file name.
	LoggerName = "test"
)

// HarnessOptions configures one worker. Only WorkDir is required; the function
// fields default to the production implementations.
type HarnessOptions struct {
	WorkDir  string
	LogLevel string
	// Quiet disables console logging, leaving only <work-dir>/log/test.log.
	Quiet bool

	Prober      device.Prober
	LookupEnv   func(key string) (string, bool)
	JoinGroup   func(ctx context.Context, rank, world int, lookupEnv func(string) (string, bool)) (dist.Group, error)
	NewDetector func(args model.NewModelArgs) (face.Detector, error)
	ModelInfo   func(path string) (string, error)
}

func (o HarnessOptions) withDefaults() HarnessOptions {
	if o.Prober == nil {
		o.Prober = device.SMIProber{}
	}
	if o.LookupEnv == nil {
		o.LookupEnv = os.LookupEnv
	}
	if o.JoinGroup == nil {
		o.JoinGroup = JoinGroup
	}
	if o.NewDetector == nil {
		o.NewDetector = models.NewDetector
	}
	if o.ModelInfo == nil {
		o.ModelInfo = func(path string) (string, error) {
			info, err := providers.ReadModelInfo(path)
			if err != nil {
				return "", err
			}
			return info.String(), nil
		}
	}
	return o
}

// Harness is one evaluation worker.
type Harness struct {
	opts      HarnessOptions
	cfg       *Config
	v         *viper.Viper
	localRank int
	group     dist.Group
	logger    *zap.Logger
	timings   *profiler.Tracker

	detector  face.Detector
	loaders   []*Loader
	validator *Validator
	results   []DatasetResult
}

// NewHarness creates an uninitialised worker.
func NewHarness(opts HarnessOptions) *Harness {
	return &Harness{opts: opts.withDefaults(), timings: profiler.NewTracker()}
}

// Config returns the loaded config, nil before Init.
func (h *Harness) Config() *Config { return h.cfg }

// Group returns the joined process group, nil before Init.
func (h *Harness) Group() dist.Group { return h.group }

// Results returns the rank 0 results after Evaluate.
func (h *Harness) Results() []DatasetResult { return h.results }

// Init probes devices, loads the config, joins the group and opens the logger.
//
// Arguments:
//   - ctx: Cancels probing and the group rendezvous.
//
// Returns:
//   - error: ErrNoGPU, a config error, or a rendezvous failure.
func (h *Harness) Init(ctx context.Context) error {
	gpus, err := h.opts.Prober.Probe(ctx)
	if err != nil {
		return err
	}
	if len(gpus) == 0 {
		return ErrNoGPU
	}

	if h.opts.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	if h.cfg, h.v, err = LoadConfig(h.opts.WorkDir); err != nil {
		return err
	}
	h.cfg.GPUsType = device.TypeName(gpus)
	h.cfg.GPUsNum = len(gpus)
	h.v.Set("gpus_type", h.cfg.GPUsType)
	h.v.Set("gpus_num", h.cfg.GPUsNum)

	if h.localRank, err = h.intEnv(EnvLocalRank, -1); err != nil {
		return err
	}
	if h.localRank < 0 {
		return fmt.Errorf("%s is required", EnvLocalRank)
	}
	rank, err := h.intEnv(EnvRank, h.localRank)
	if err != nil {
		return err
	}
	world, err := h.intEnv(EnvWorldSize, h.cfg.GPUsNum)
	if err != nil {
		return err
	}
	h.v.Set("local_rank", h.localRank)

	if h.group, err = h.opts.JoinGroup(ctx, rank, world, h.opts.LookupEnv); err != nil {
		return err
	}

	logDir := filepath.Join(h.opts.WorkDir, "log")
	if h.group.Rank() == 0 {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return err
		}
	}
	if err := h.group.Barrier(ctx); err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Name:  LoggerName,
		Level: h.opts.LogLevel,
		Dir:   logDir,
		Quiet: h.opts.Quiet,
	})
	if err != nil {
		return err
	}
	h.logger = logging.WithRank(logger, h.group.Rank())
	return nil
}

func (h *Harness) intEnv(key string, def int) (int, error) {
	s, ok := h.opts.LookupEnv(key)
	if !ok || s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not an integer", key, s)
	}
	return v, nil
}

// info logs on rank 0 only.
func (h *Harness) info(msg string) {
	if h.group.Rank() == 0 {
		h.logger.Info(msg)
	}
}

// Setup sizes the per-rank work, builds the loaders and loads the model.
//
// Returns:
//   - error: ErrIndivisible, a dataset error or a model load error.
func (h *Harness) Setup(ctx context.Context) error {
	world := h.group.Size()
	batch, workers, err := h.cfg.PerRank(world)
	if err != nil {
		return err
	}

	for _, dc := range h.cfg.ValDatasetList {
		ds, err := LoadDataset(dc)
		if err != nil {
			return err
		}
		l, err := NewLoader(ds, LoaderOptions{
			BatchSize: batch,
			Workers:   workers,
			Prefetch:  h.cfg.Prefetch,
			InputSize: h.cfg.InputImageSize,
			Rank:      h.group.Rank(),
			World:     world,
		})
		if err != nil {
			return err
		}
		h.loaders = append(h.loaders, l)
	}

	for _, line := range ConfigLines(h.v) {
		h.info(line)
	}

	if h.detector, err = h.opts.NewDetector(model.NewModelArgs{
		Name:        model.Name(h.cfg.Network),
		Path:        h.cfg.ModelPath,
		InputSize:   h.cfg.InputImageSize,
		BatchSize:   batch,
		LibraryPath: h.cfg.ORTLibraryPath,
		Provider:    h.cfg.Provider,
		DeviceID:    h.localRank,
	}); err != nil {
		return err
	}

	info, err := h.opts.ModelInfo(h.cfg.ModelPath)
	if err != nil {
		return err
	}
	h.info(fmt.Sprintf("model: %s, %s", h.cfg.Network, info))

	crit, err := NewCriterion(h.cfg.Criterion)
	if err != nil {
		return err
	}
	h.validator = &Validator{
		Group:        h.group,
		Detector:     h.detector,
		Decoder:      face.NewDecoder(h.cfg.Decoder),
		Criterion:    crit,
		IoUThreshold: h.cfg.IoUThreshold,
		Logger:       h.logger,
		Timings:      h.timings,
	}
	return ctx.Err()
}

// Evaluate runs every loader.
func (h *Harness) Evaluate(ctx context.Context) error {
	results, err := h.validator.ValidateAll(ctx, h.loaders)
	if err != nil {
		return err
	}
	h.results = results
	h.timings.Log(h.logger)
	return nil
}

// Report logs the final block on rank 0 and returns it. Other ranks return "".
func (h *Harness) Report() string {
	if h.group.Rank() != 0 {
		return ""
	}
	report := FormatReport(h.cfg.EvalType, h.results)
	h.logger.Info(report)
	return report
}

// Close releases the model, leaves the group and flushes the logger.
func (h *Harness) Close() error {
	var err error
	if h.detector != nil {
		err = multierr.Append(err, h.detector.Close())
	}
	if h.group != nil {
		err = multierr.Append(err, h.group.Close())
	}
	if h.logger != nil {
		_ = h.logger.Sync()
	}
	return err
}

// Run is Init, Setup, Evaluate and Report.
func Run(ctx context.Context, opts HarnessOptions) (err error) {
	h := NewHarness(opts)
	defer func() {
		err = multierr.Append(err, h.Close())
	}()

	if err := h.Init(ctx); err != nil {
		return err
	}
	if err := h.Setup(ctx); err != nil {
		return err
	}
	if err := h.Evaluate(ctx); err != nil {
		return err
	}
	h.Report()
	return nil
}

// JoinGroup joins a Redis group when world > 1 and a single process group otherwise.
func JoinGroup(ctx context.Context, rank, world int, lookupEnv func(string) (string, bool)) (dist.Group, error) {
	if world <= 1 {
		return dist.NewSingleGroup(), nil
	}

	addr, ok := lookupEnv(EnvStoreAddr)
	if !ok || addr == "" {
		addr = DefaultStoreAddr
	}
	runID, ok := lookupEnv(EnvRunID)
	if !ok || runID == "" {
		return nil, fmt.Errorf("%s is required when %s > 1", EnvRunID, EnvWorldSize)
	}

	client, err := dist.Connect(ctx, addr)
	if err != nil {
		return nil, err
	}
	g, err := dist.NewRedisGroup(ctx, dist.NewRedisStore(client), dist.Options{
		RunID: runID,
		Rank:  rank,
		Size:  world,
	})
	if err != nil {
		return nil, multierr.Append(err, client.Close())
	}
	return g.WithCloser(client.Close), nil
}
