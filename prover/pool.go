package prover

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/consensys/gnark/logger"
	"github.com/rs/zerolog"

	"github.com/eon-protocol/poswark"
	"github.com/eon-protocol/poswark/gpu"
)

// ErrHalted reports that intake was stopped by the accelerator-fault
// escalation hook.
var ErrHalted = errors.New("intake halted after repeated accelerator faults")

// Result is the single terminal outcome of one task: exactly one of
// Proof or Err is set. Failed tasks are surfaced with their cause; retry
// policy belongs to the caller.
type Result struct {
	Task  Task
	Proof *Proof
	Err   error
}

type proveFunc func(context.Context, *gpu.Engine, Task) (*Proof, error)

// Option tunes a Pool beyond the required worker count.
type Option func(*Pool)

// WithQueueDepth bounds the submission queue. Submit blocks once the
// queue is full, throttling admission to what the workers sustain.
func WithQueueDepth(n int) Option {
	return func(p *Pool) { p.depth = n }
}

// WithFaultEscalation halts intake after limit consecutive accelerator
// faults and invokes hook once. A completed proof resets the streak.
func WithFaultEscalation(limit int, hook func(streak int)) Option {
	return func(p *Pool) {
		p.faultLimit = limit
		p.onEscalate = hook
	}
}

// withProve substitutes the proving pipeline. Test seam.
func withProve(fn proveFunc) Option {
	return func(p *Pool) { p.prove = fn }
}

// Pool is a fixed set of concurrent workers sharing one engine. Each
// worker holds at most one in-flight task; a task moves Queued -> Running
// -> {Completed, Failed} and is never retried.
type Pool struct {
	eng     *gpu.Engine
	workers int
	depth   int
	prove   proveFunc
	log     zerolog.Logger

	tasks   chan Task
	results chan Result
	wg      sync.WaitGroup

	faultStreak atomic.Int64
	faultLimit  int
	onEscalate  func(int)
	halted      atomic.Bool
	escalated   sync.Once
}

// NewPool configures workers concurrent provers over eng. The count is
// hardware-dependent and determined empirically; there is no default.
func NewPool(eng *gpu.Engine, workers int, opts ...Option) (*Pool, error) {
	if workers < 1 {
		return nil, fmt.Errorf("%w: worker count %d", poswark.ErrConfig, workers)
	}
	p := &Pool{
		eng:     eng,
		workers: workers,
		depth:   workers,
		prove:   Prove,
		log:     logger.Logger().With().Str("component", "pool").Int("workers", workers).Logger(),
	}
	for _, o := range opts {
		o(p)
	}
	p.tasks = make(chan Task, p.depth)
	p.results = make(chan Result, p.depth)
	return p, nil
}

// Start launches the workers. Results must be consumed concurrently.
func (p *Pool) Start() {
	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.worker(i)
	}
	p.log.Debug().Msg("workers started")
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		proof, err := p.prove(context.Background(), p.eng, task)
		if err != nil {
			p.noteFault(err)
			p.log.Warn().Uint64("seq", task.Seq).Int("worker", id).Err(err).Msg("task failed")
			p.results <- Result{Task: task, Err: err}
			continue
		}
		p.faultStreak.Store(0)
		p.results <- Result{Task: task, Proof: proof}
	}
}

func (p *Pool) noteFault(err error) {
	var fault *poswark.AcceleratorFault
	if !errors.As(err, &fault) {
		return
	}
	streak := p.faultStreak.Add(1)
	if p.faultLimit > 0 && streak >= int64(p.faultLimit) {
		p.halted.Store(true)
		p.escalated.Do(func() {
			p.log.Error().Int64("streak", streak).Msg("halting intake")
			if p.onEscalate != nil {
				p.onEscalate(int(streak))
			}
		})
	}
}

// Submit enqueues a task, blocking while the queue is full. It fails
// only when fault escalation has closed intake.
func (p *Pool) Submit(t Task) error {
	if p.halted.Load() {
		return ErrHalted
	}
	p.tasks <- t
	return nil
}

// Results delivers exactly one Result per submitted task. The channel
// closes once Drain completes.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Drain stops intake and blocks until every in-flight task reached a
// terminal state, then closes the results channel. Soft stop: nothing
// running is interrupted.
func (p *Pool) Drain() {
	close(p.tasks)
	p.wg.Wait()
	close(p.results)
}
