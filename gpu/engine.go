// Package gpu is the accelerator execution engine. It owns the windowed
// decomposition of scalars into table digits, the batching protocol that
// merges independent requests into single device dispatches, and the
// bounded-lane discipline over the one shared device context.
package gpu

import (
	"context"
	"fmt"
	"sync"
	"time"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	"github.com/consensys/gnark/logger"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/eon-protocol/poswark"
)

// Options are the dispatch tunables. All three are hardware-dependent and
// required; there is no default baked into the engine.
type Options struct {
	// BatchSize is the pending-scalar count that forces a dispatch.
	BatchSize int
	// FlushInterval bounds how long a pending scalar waits for its batch
	// to fill before it is dispatched anyway.
	FlushInterval time.Duration
	// Lanes is how many dispatches the device admits concurrently.
	Lanes int64
}

type request struct {
	scalar fr.Element
	out    chan outcome
}

type outcome struct {
	point bls12377.G1Affine
	err   error
}

// Engine computes scalar multiplications against one loaded lookup table.
// Safe for concurrent use; every caller shares the same dispatch queue.
type Engine struct {
	table *poswark.LookupTable
	opts  Options
	dev   *device
	lanes *semaphore.Weighted
	log   zerolog.Logger

	mu      sync.Mutex
	pending []request
	closed  bool

	inflight sync.WaitGroup
	quit     chan struct{}
	done     chan struct{}
}

// New wires an engine to a validated table. On accelerated builds this
// loads the icicle backend and uploads the window base points; a missing
// backend artifact is a fatal startup error, not a silent CPU fallback.
func New(table *poswark.LookupTable, opts Options) (*Engine, error) {
	if table == nil {
		return nil, fmt.Errorf("%w: nil lookup table", poswark.ErrConfig)
	}
	if opts.BatchSize < 1 || opts.FlushInterval <= 0 || opts.Lanes < 1 {
		return nil, fmt.Errorf("%w: batch size %d, flush interval %v, lanes %d",
			poswark.ErrConfig, opts.BatchSize, opts.FlushInterval, opts.Lanes)
	}
	dev, err := newDevice(table)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		table: table,
		opts:  opts,
		dev:   dev,
		lanes: semaphore.NewWeighted(opts.Lanes),
		log: logger.Logger().With().
			Str("component", "engine").
			Str("acceleration", accelName).
			Int("window", table.Window).
			Logger(),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go e.flushLoop()
	e.log.Debug().Int("batchSize", opts.BatchSize).Int64("lanes", opts.Lanes).Msg("engine ready")
	return e, nil
}

// Digits decomposes a scalar into its little-endian w-bit window digits,
// read in regular (non-Montgomery) form: exactly the indices the lookup
// table is keyed by.
func Digits(scalar *fr.Element, w int) []uint64 {
	limbs := scalar.Bits()
	nw := poswark.Windows(w)
	mask := uint64(1)<<uint(w) - 1
	digits := make([]uint64, nw)
	for j := 0; j < nw; j++ {
		bit := j * w
		limb, off := bit/64, uint(bit%64)
		d := limbs[limb] >> off
		if off+uint(w) > 64 && limb+1 < fr.Limbs {
			d |= limbs[limb+1] << (64 - off)
		}
		digits[j] = d & mask
	}
	return digits
}

// ScalarMul computes scalar*B for the table's base point B. Independent
// callers are merged into shared dispatches; the call blocks until its
// batch completes or ctx is cancelled.
func (e *Engine) ScalarMul(ctx context.Context, scalar fr.Element) (bls12377.G1Affine, error) {
	req := request{scalar: scalar, out: make(chan outcome, 1)}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return bls12377.G1Affine{}, fmt.Errorf("%w: engine closed", poswark.ErrConfig)
	}
	e.pending = append(e.pending, req)
	var batch []request
	if len(e.pending) >= e.opts.BatchSize {
		batch, e.pending = e.pending, nil
	}
	if batch != nil {
		e.inflight.Add(1)
	}
	e.mu.Unlock()
	if batch != nil {
		go e.dispatch(batch)
	}
	select {
	case r := <-req.out:
		return r.point, r.err
	case <-ctx.Done():
		return bls12377.G1Affine{}, ctx.Err()
	}
}

// MulBatch runs one caller-assembled batch as a single device dispatch
// and returns the products in input order. The shared queue is bypassed;
// the lane bound still applies.
func (e *Engine) MulBatch(ctx context.Context, scalars []fr.Element) ([]bls12377.G1Affine, error) {
	if len(scalars) == 0 {
		return nil, nil
	}
	if err := e.lanes.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.lanes.Release(1)
	return e.mul(scalars)
}

func (e *Engine) mul(scalars []fr.Element) ([]bls12377.G1Affine, error) {
	nw := poswark.Windows(e.table.Window)
	digits := make([]uint64, 0, len(scalars)*nw)
	for i := range scalars {
		digits = append(digits, Digits(&scalars[i], e.table.Window)...)
	}
	start := time.Now()
	points, err := e.dev.mulBatch(digits, len(scalars))
	if err != nil {
		e.log.Error().Err(err).Int("batch", len(scalars)).Msg("dispatch failed")
		return nil, err
	}
	e.log.Trace().Int("batch", len(scalars)).Dur("took", time.Since(start)).Msg("dispatch")
	return points, nil
}

func (e *Engine) dispatch(batch []request) {
	defer e.inflight.Done()
	if err := e.lanes.Acquire(context.Background(), 1); err != nil {
		for i := range batch {
			batch[i].out <- outcome{err: err}
		}
		return
	}
	scalars := make([]fr.Element, len(batch))
	for i := range batch {
		scalars[i] = batch[i].scalar
	}
	points, err := e.mul(scalars)
	e.lanes.Release(1)
	// A device fault fails every request of this batch and no other.
	for i := range batch {
		if err != nil {
			batch[i].out <- outcome{err: err}
		} else {
			batch[i].out <- outcome{point: points[i]}
		}
	}
}

func (e *Engine) flushLoop() {
	defer close(e.done)
	tick := time.NewTicker(e.opts.FlushInterval)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			e.flush()
		case <-e.quit:
			e.flush()
			return
		}
	}
}

func (e *Engine) flush() {
	e.mu.Lock()
	batch := e.pending
	e.pending = nil
	if len(batch) > 0 {
		e.inflight.Add(1)
	}
	e.mu.Unlock()
	if len(batch) > 0 {
		go e.dispatch(batch)
	}
}

// Close flushes pending work and releases device memory. Callers must
// have drained their in-flight requests first.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()
	close(e.quit)
	<-e.done
	e.inflight.Wait()
	e.dev.free()
}
