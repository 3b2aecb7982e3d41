package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nvr-ai/go-vision/dist"
	"github.com/nvr-ai/go-vision/evaluate"
	"github.com/nvr-ai/go-vision/inference/providers"
	"github.com/nvr-ai/go-vision/logging"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "evaluate",
		Short:         "Distributed face detection evaluation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("work-dir", "", "directory holding test_config.yaml; logs go to <work-dir>/log")
	root.PersistentFlags().String("log-level", "info", "log level")
	_ = root.MarkPersistentFlagRequired("work-dir")

	root.AddCommand(newRunCmd(), newLaunchCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one evaluation worker",
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			workDir, _ := cmd.Flags().GetString("work-dir")
			level, _ := cmd.Flags().GetString("log-level")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			defer func() {
				err = multierr.Append(err, providers.DestroyEnvironment())
			}()

			if err := evaluate.Run(ctx, evaluate.HarnessOptions{WorkDir: workDir, LogLevel: level}); err != nil {
				return fail(level, "evaluation failed", err)
			}
			return nil
		},
	}
}

func newLaunchCmd() *cobra.Command {
	var (
		nproc     int
		storeAddr string
		runID     string
	)
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Start one run worker per device and wait for all of them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			workDir, _ := cmd.Flags().GetString("work-dir")
			level, _ := cmd.Flags().GetString("log-level")

			self, err := os.Executable()
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Options{Name: "launch", Level: level})
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = dist.Launch(ctx, dist.LaunchOptions{
				NProc:     nproc,
				Command:   []string{self, "run", "--work-dir", workDir, "--log-level", level},
				StoreAddr: storeAddr,
				RunID:     runID,
				Logger:    logger,
			})
			if err != nil {
				logger.Error("launch failed", zap.Error(err))
			}
			return err
		},
	}
	cmd.Flags().IntVar(&nproc, "nproc-per-node", 1, "number of workers, one per GPU")
	cmd.Flags().StringVar(&storeAddr, "store-addr", evaluate.DefaultStoreAddr, "Redis rendezvous address used when nproc > 1")
	cmd.Flags().StringVar(&runID, "run-id", "", "rendezvous namespace; generated when empty")
	return cmd
}

// fail logs err on a bootstrap logger, since the harness logger may not exist yet.
func fail(level, msg string, err error) error {
	logger, lerr := logging.New(logging.Options{Name: "evaluate", Level: level})
	if lerr != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
		return err
	}
	logger.Error(msg, zap.Error(err))
	_ = logger.Sync()
	return err
}
