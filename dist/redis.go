package dist

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// RedisGroup is one rank of a group whose members are separate processes
// rendezvousing through a Store.
//
// Barriers are numbered. Every rank increments the counter of barrier n and
// polls until it reaches the world size, so ranks must call Barrier and
// Gather in the same order.
type RedisGroup struct {
	store    Store
	opts     Options
	barriers int
	gathers  int
	closer   func() error
}

// NewRedisGroup joins the group. It returns once every rank has joined.
//
// Arguments:
//   - ctx: Cancels the join.
//   - store: The shared store.
//   - opts: Run ID, rank, size and timing.
//
// Returns:
//   - *RedisGroup: The joined member.
//   - error: ErrTimeout if peers do not join in time, or a store error.
func NewRedisGroup(ctx context.Context, store Store, opts Options) (*RedisGroup, error) {
	opts = opts.withDefaults()
	if opts.Rank < 0 || opts.Rank >= opts.Size {
		return nil, fmt.Errorf("rank %d outside world of %d", opts.Rank, opts.Size)
	}
	if opts.RunID == "" {
		return nil, fmt.Errorf("run id is required")
	}

	g := &RedisGroup{store: store, opts: opts}
	if err := g.Barrier(ctx); err != nil {
		return nil, errors.Wrap(err, "error joining process group")
	}
	return g, nil
}

// WithCloser registers a function Close will call, typically the client's Close.
func (g *RedisGroup) WithCloser(fn func() error) *RedisGroup {
	g.closer = fn
	return g
}

// Rank returns this member's rank.
func (g *RedisGroup) Rank() int { return g.opts.Rank }

// Size returns the world size.
func (g *RedisGroup) Size() int { return g.opts.Size }

func (g *RedisGroup) key(kind string, n int) string {
	return fmt.Sprintf("dist:%s:%s:%d", g.opts.RunID, kind, n)
}

// Barrier waits until every rank has arrived at the same barrier number.
func (g *RedisGroup) Barrier(ctx context.Context) error {
	g.barriers++
	key := g.key("barrier", g.barriers)

	n, err := g.store.Incr(ctx, key)
	if err != nil {
		return errors.Wrapf(err, "error arriving at %s", key)
	}

	deadline := time.Now().Add(g.opts.Timeout)
	ticker := time.NewTicker(g.opts.PollInterval)
	defer ticker.Stop()

	for n < int64(g.opts.Size) {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s has %d of %d ranks", ErrTimeout, key, n, g.opts.Size)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if n, err = g.store.Counter(ctx, key); err != nil {
			return errors.Wrapf(err, "error reading %s", key)
		}
	}
	return nil
}

// Gather posts payload and, on rank 0, reads every rank's payload.
func (g *RedisGroup) Gather(ctx context.Context, payload []byte) ([][]byte, error) {
	g.gathers++
	key := g.key("gather", g.gathers)

	if err := g.store.Put(ctx, key, strconv.Itoa(g.opts.Rank), payload); err != nil {
		return nil, errors.Wrapf(err, "error posting to %s", key)
	}
	if err := g.Barrier(ctx); err != nil {
		return nil, err
	}
	if g.opts.Rank != 0 {
		return nil, nil
	}

	fields, err := g.store.Fields(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading %s", key)
	}
	out := make([][]byte, g.opts.Size)
	for r := range out {
		v, ok := fields[strconv.Itoa(r)]
		if !ok {
			return nil, fmt.Errorf("%s is missing rank %d", key, r)
		}
		out[r] = v
	}
	if err := g.store.Delete(ctx, key); err != nil {
		return nil, errors.Wrapf(err, "error deleting %s", key)
	}
	return out, nil
}

// Close runs the registered closer, if any.
func (g *RedisGroup) Close() error {
	if g.closer == nil {
		return nil
	}
	return g.closer()
}
