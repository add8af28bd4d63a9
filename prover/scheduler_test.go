package prover

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// Admission stops once the window elapses; everything already admitted
// drains to a terminal state and is accounted exactly once.
func TestSchedulerSoftStop(t *testing.T) {
	eng, _ := testEngine(t, 4)
	pool, err := NewPool(eng, 4, WithQueueDepth(16))
	require.NoError(t, err)

	clock := clockwork.NewFakeClock()
	sched := NewScheduler(pool, clock, time.Minute)

	const admitUpTo = 200
	next := func(seq uint64) Task {
		if seq == admitUpTo {
			// The benchmark window ends mid-run; nothing after this
			// submission may be admitted.
			clock.Advance(time.Minute)
		}
		return testTask(seq)
	}

	sum, err := sched.Run(next)
	require.NoError(t, err)

	require.GreaterOrEqual(t, sum.Submitted, uint64(admitUpTo))
	require.LessOrEqual(t, sum.Submitted, uint64(admitUpTo+2))
	require.Equal(t, sum.Submitted, sum.Completed+sum.Failed)
	require.Zero(t, sum.Duplicates)
	require.Zero(t, sum.Failed)
	require.Equal(t, time.Minute, sum.Elapsed)
	require.Greater(t, sum.ProofsPerSec, 0.0)
}

func TestSchedulerLatencyDistribution(t *testing.T) {
	eng, _ := testEngine(t, 4)
	pool, err := NewPool(eng, 2)
	require.NoError(t, err)

	clock := clockwork.NewFakeClock()
	sched := NewScheduler(pool, clock, time.Second)

	next := func(seq uint64) Task {
		if seq == 50 {
			clock.Advance(time.Second)
		}
		return testTask(seq)
	}
	sum, err := sched.Run(next)
	require.NoError(t, err)
	require.NotZero(t, sum.Completed)

	require.LessOrEqual(t, sum.LatencyP50, sum.LatencyP95)
	require.LessOrEqual(t, sum.LatencyP95, sum.LatencyMax)
	require.Greater(t, sum.LatencyMax, time.Duration(0))
}

// Intake halted by fault escalation ends the run early instead of
// spinning until the window closes.
func TestSchedulerStopsOnHaltedIntake(t *testing.T) {
	eng, _ := testEngine(t, 4)
	pool, err := NewPool(eng, 2,
		WithQueueDepth(4),
		WithFaultEscalation(2, nil),
		withProve(faultyProve),
	)
	require.NoError(t, err)

	clock := clockwork.NewFakeClock()
	sched := NewScheduler(pool, clock, time.Hour)

	sum, err := sched.Run(testTask)
	require.NoError(t, err)
	require.Equal(t, sum.Submitted, sum.Completed+sum.Failed)
	require.NotZero(t, sum.Failed)
	require.Zero(t, sum.Completed)
}
