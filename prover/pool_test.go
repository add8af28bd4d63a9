package prover

import (
	"context"
	"sync"
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/stretchr/testify/require"

	"github.com/eon-protocol/poswark"
	"github.com/eon-protocol/poswark/gpu"
)

func faultyProve(ctx context.Context, _ *gpu.Engine, task Task) (*Proof, error) {
	return nil, &poswark.AcceleratorFault{Op: "msm", Status: "device lost"}
}

func TestPoolRequiresExplicitWorkerCount(t *testing.T) {
	eng, _ := testEngine(t, 4)
	_, err := NewPool(eng, 0)
	require.ErrorIs(t, err, poswark.ErrConfig)
	_, err = NewPool(eng, -3)
	require.ErrorIs(t, err, poswark.ErrConfig)
}

// 1000 tasks through 9 workers: every task reaches exactly one terminal
// state and no sequence id completes twice.
func TestPoolExactlyOneResultPerTask(t *testing.T) {
	eng, base := testEngine(t, 4)
	pool, err := NewPool(eng, 9, WithQueueDepth(64))
	require.NoError(t, err)
	pool.Start()

	const n = 1000
	var wg sync.WaitGroup
	wg.Add(1)
	var completed, failed uint64
	seen := bitset.New(n)
	var dup bool
	go func() {
		defer wg.Done()
		for res := range pool.Results() {
			if seen.Test(uint(res.Task.Seq)) {
				dup = true
				continue
			}
			seen.Set(uint(res.Task.Seq))
			if res.Err != nil {
				failed++
			} else {
				completed++
			}
		}
	}()

	for seq := uint64(0); seq < n; seq++ {
		require.NoError(t, pool.Submit(testTask(seq)))
	}
	pool.Drain()
	wg.Wait()

	require.False(t, dup, "a sequence id completed twice")
	require.Equal(t, uint64(n), completed+failed)
	require.Equal(t, uint(n), seen.Count())

	// Spot-check a few completions against the reference path.
	for _, seq := range []uint64{0, n / 2, n - 1} {
		proof, err := Prove(context.Background(), eng, testTask(seq))
		require.NoError(t, err)
		require.NoError(t, Verify(base, testTask(seq), proof))
	}
}

// Worker counts from 1 up never drop or duplicate results.
func TestPoolScalesWithoutLoss(t *testing.T) {
	for _, workers := range []int{1, 2, 4, 9, 16} {
		eng, _ := testEngine(t, 4)
		pool, err := NewPool(eng, workers)
		require.NoError(t, err)
		pool.Start()

		const n = 100
		var wg sync.WaitGroup
		wg.Add(1)
		var results uint64
		go func() {
			defer wg.Done()
			for range pool.Results() {
				results++
			}
		}()
		for seq := uint64(0); seq < n; seq++ {
			require.NoError(t, pool.Submit(testTask(seq)))
		}
		pool.Drain()
		wg.Wait()
		require.Equal(t, uint64(n), results, "workers=%d", workers)
	}
}

// Repeated accelerator faults trip the escalation hook and close intake;
// already-queued tasks still drain to a terminal state.
func TestPoolFaultEscalation(t *testing.T) {
	eng, _ := testEngine(t, 4)

	var hookStreak int
	pool, err := NewPool(eng, 2,
		WithQueueDepth(8),
		WithFaultEscalation(3, func(streak int) { hookStreak = streak }),
		withProve(faultyProve),
	)
	require.NoError(t, err)
	pool.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	var failed int
	go func() {
		defer wg.Done()
		for res := range pool.Results() {
			if res.Err != nil {
				failed++
			}
		}
	}()

	halted := false
	for seq := uint64(0); seq < 100; seq++ {
		if err := pool.Submit(testTask(seq)); err != nil {
			require.ErrorIs(t, err, ErrHalted)
			halted = true
			break
		}
	}
	pool.Drain()
	wg.Wait()

	require.True(t, halted, "intake never halted")
	require.GreaterOrEqual(t, hookStreak, 3)
	require.GreaterOrEqual(t, failed, 3)
}

// Non-accelerator task failures surface per task without tripping the
// escalation path.
func TestPoolTaskFailureDoesNotEscalate(t *testing.T) {
	eng, _ := testEngine(t, 4)

	flaky := func(ctx context.Context, e *gpu.Engine, task Task) (*Proof, error) {
		if task.Seq%2 == 0 {
			return nil, context.DeadlineExceeded
		}
		return Prove(ctx, e, task)
	}
	pool, err := NewPool(eng, 4,
		WithFaultEscalation(1, func(int) { t.Error("escalation hook fired") }),
		withProve(flaky),
	)
	require.NoError(t, err)
	pool.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	var completed, failed int
	go func() {
		defer wg.Done()
		for res := range pool.Results() {
			if res.Err != nil {
				failed++
			} else {
				completed++
			}
		}
	}()
	const n = 50
	for seq := uint64(0); seq < n; seq++ {
		require.NoError(t, pool.Submit(testTask(seq)))
	}
	pool.Drain()
	wg.Wait()

	require.Equal(t, n, completed+failed)
	require.Equal(t, 25, failed)
}
