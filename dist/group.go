// Package dist - Process groups for multi-worker evaluation.
//
// A Group is the small collective surface the evaluation harness needs:
// a barrier and a gather to rank 0. LocalGroup runs every rank inside one
// process, RedisGroup coordinates separate processes through a shared store.
package dist

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when peers do not reach a barrier in time.
var ErrTimeout = errors.New("dist: timed out waiting for peers")

// Group is a fixed set of ranks that can synchronise and exchange payloads.
type Group interface {
	// Rank is this member's index, 0 to Size()-1.
	Rank() int
	// Size is the number of members.
	Size() int
	// Barrier blocks until every rank has called it.
	Barrier(ctx context.Context) error
	// Gather collects payload from every rank onto rank 0, in rank order.
	// Other ranks receive nil.
	Gather(ctx context.Context, payload []byte) ([][]byte, error)
	// Close leaves the group.
	Close() error
}

// Options configures a multi-process group.
type Options struct {
	// RunID namespaces the keys of one launch.
	RunID string
	// Rank is this process's rank.
	Rank int
	// Size is the world size.
	Size int
	// Timeout bounds every barrier. Zero means DefaultTimeout.
	Timeout time.Duration
	// PollInterval is how often a waiting rank re-reads the store.
	PollInterval time.Duration
}

// Defaults for Options.
const (
	DefaultTimeout      = 30 * time.Minute
	DefaultPollInterval = 20 * time.Millisecond
)

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Size <= 0 {
		o.Size = 1
	}
	return o
}
