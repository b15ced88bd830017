// Package pool bounds concurrent access to the external collaborators.
// Each collaborator gets its own slot budget so a slow vision model
// cannot starve image fetches or record writes.
package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

// Sub-pool names.
const (
	Fetch   = "fetch"
	Extract = "extract"
	Store   = "store"
)

// ErrSlotTimeout means no slot freed up within the configured wait.
var ErrSlotTimeout = errors.New("pool: slot acquisition timed out")

// Pool holds one weighted semaphore per collaborator.
type Pool struct {
	pools       map[string]*semaphore.Weighted
	acquireWait time.Duration
}

// Config sizes the sub-pools.
type Config struct {
	FetchSlots   int
	ExtractSlots int
	StoreSlots   int
	AcquireWait  time.Duration
}

// New creates a pool. Non-positive slot counts fall back to 1 so a
// misconfigured pool degrades to serialized access instead of deadlock.
func New(cfg Config) *Pool {
	if cfg.AcquireWait <= 0 {
		cfg.AcquireWait = 5 * time.Second
	}
	return &Pool{
		pools: map[string]*semaphore.Weighted{
			Fetch:   semaphore.NewWeighted(int64(max(cfg.FetchSlots, 1))),
			Extract: semaphore.NewWeighted(int64(max(cfg.ExtractSlots, 1))),
			Store:   semaphore.NewWeighted(int64(max(cfg.StoreSlots, 1))),
		},
		acquireWait: cfg.AcquireWait,
	}
}

// Acquire takes a slot from the named sub-pool, waiting at most the
// configured acquire window. The returned func releases the slot and is
// safe to call exactly once.
func (p *Pool) Acquire(ctx context.Context, name string) (func(), error) {
	sem, ok := p.pools[name]
	if !ok {
		return nil, fmt.Errorf("pool: unknown sub-pool %q", name)
	}
	waitCtx, cancel := context.WithTimeout(ctx, p.acquireWait)
	defer cancel()
	if err := sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s", ErrSlotTimeout, name)
	}
	return func() { sem.Release(1) }, nil
}
