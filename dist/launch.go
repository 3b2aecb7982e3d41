package dist

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LaunchOptions describes a single node job.
type LaunchOptions struct {
	// NProc is the number of worker processes, normally one per GPU.
	NProc int
	// Command is the worker argv.
	Command []string
	// StoreAddr is exported as DIST_STORE_ADDR.
	StoreAddr string
	// RunID is exported as DIST_RUN_ID; empty generates one.
	RunID string
	// Env is appended to the parent environment of every worker.
	Env []string
	// Logger receives worker lifecycle events.
	Logger *zap.Logger
}

// Launch starts NProc workers with LOCAL_RANK, RANK and WORLD_SIZE set and
// waits for them. When one worker fails the others are killed.
//
// Arguments:
//   - ctx: Cancelling kills every worker.
//   - opts: The job description.
//
// Returns:
//   - error: The first worker failure.
func Launch(ctx context.Context, opts LaunchOptions) error {
	if opts.NProc < 1 {
		return fmt.Errorf("nproc must be positive, got %d", opts.NProc)
	}
	if len(opts.Command) == 0 {
		return fmt.Errorf("worker command is empty")
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	g, gctx := errgroup.WithContext(ctx)
	for rank := 0; rank < opts.NProc; rank++ {
		cmd := exec.CommandContext(gctx, opts.Command[0], opts.Command[1:]...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Env = append(os.Environ(), opts.Env...)
		cmd.Env = append(cmd.Env,
			fmt.Sprintf("LOCAL_RANK=%d", rank),
			fmt.Sprintf("RANK=%d", rank),
			fmt.Sprintf("WORLD_SIZE=%d", opts.NProc),
			"DIST_RUN_ID="+opts.RunID,
		)
		if opts.StoreAddr != "" {
			cmd.Env = append(cmd.Env, "DIST_STORE_ADDR="+opts.StoreAddr)
		}

		if err := cmd.Start(); err != nil {
			return fmt.Errorf("starting worker %d: %w", rank, abort(g, err))
		}
		opts.Logger.Info("worker started", zap.Int("rank", rank), zap.Int("pid", cmd.Process.Pid))

		g.Go(func() error {
			if err := cmd.Wait(); err != nil {
				if gctx.Err() != nil && ctx.Err() == nil {
					// Killed because a peer failed first.
					return nil
				}
				opts.Logger.Error("worker failed", zap.Int("rank", rank), zap.Error(err))
				return fmt.Errorf("worker %d: %w", rank, err)
			}
			opts.Logger.Info("worker finished", zap.Int("rank", rank))
			return nil
		})
	}
	return g.Wait()
}

// abort tears down already started workers after a start failure.
func abort(g *errgroup.Group, err error) error {
	g.Go(func() error { return err })
	_ = g.Wait()
	return err
}
