package prover

import (
	"sort"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/consensys/gnark/logger"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Summary is the throughput report for one benchmark window.
type Summary struct {
	Submitted  uint64
	Completed  uint64
	Failed     uint64
	Duplicates uint64
	Elapsed    time.Duration

	ProofsPerSec float64
	LatencyP50   time.Duration
	LatencyP95   time.Duration
	LatencyMax   time.Duration
}

// Scheduler admits tasks into a pool until a wall-clock window elapses,
// drains in-flight work to completion and reports aggregate throughput.
// Ordering is irrelevant to correctness; sequence ids are only tracked
// so duplicated or dropped completions are caught.
type Scheduler struct {
	pool   *Pool
	clock  clockwork.Clock
	window time.Duration
	log    zerolog.Logger
}

// NewScheduler runs pool for one admission window. The clock is injected
// so the soft stop is testable without waiting wall time.
func NewScheduler(pool *Pool, clock clockwork.Clock, window time.Duration) *Scheduler {
	return &Scheduler{
		pool:   pool,
		clock:  clock,
		window: window,
		log:    logger.Logger().With().Str("component", "scheduler").Dur("window", window).Logger(),
	}
}

// Run submits next(seq) for seq = 0, 1, ... until the window closes or
// intake halts, then drains and summarizes. Exactly one terminal result
// is accounted per submitted task.
func (s *Scheduler) Run(next func(seq uint64) Task) (*Summary, error) {
	s.pool.Start()

	sum := &Summary{}
	seen := bitset.New(1024)
	var latencies []time.Duration

	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for res := range s.pool.Results() {
			if seen.Test(uint(res.Task.Seq)) {
				sum.Duplicates++
				s.log.Error().Uint64("seq", res.Task.Seq).Msg("duplicate completion")
				continue
			}
			seen.Set(uint(res.Task.Seq))
			if res.Err != nil {
				sum.Failed++
				continue
			}
			sum.Completed++
			latencies = append(latencies, res.Proof.Latency)
		}
	}()

	start := s.clock.Now()
	deadline := s.clock.After(s.window)
	var seq uint64
admission:
	for {
		select {
		case <-deadline:
			break admission
		default:
			if err := s.pool.Submit(next(seq)); err != nil {
				s.log.Warn().Err(err).Uint64("seq", seq).Msg("admission stopped early")
				break admission
			}
			seq++
		}
	}
	sum.Submitted = seq

	s.pool.Drain()
	<-collected
	sum.Elapsed = s.clock.Since(start)

	if secs := sum.Elapsed.Seconds(); secs > 0 {
		sum.ProofsPerSec = float64(sum.Completed) / secs
	}
	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		sum.LatencyP50 = latencies[len(latencies)/2]
		sum.LatencyP95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
		sum.LatencyMax = latencies[len(latencies)-1]
	}

	s.log.Info().
		Uint64("submitted", sum.Submitted).
		Uint64("completed", sum.Completed).
		Uint64("failed", sum.Failed).
		Float64("proofsPerSec", sum.ProofsPerSec).
		Dur("p50", sum.LatencyP50).
		Dur("p95", sum.LatencyP95).
		Msg("benchmark window closed")
	return sum, nil
}
