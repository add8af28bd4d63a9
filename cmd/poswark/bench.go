package main

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/consensys/gnark/logger"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/eon-protocol/poswark"
	"github.com/eon-protocol/poswark/gpu"
	"github.com/eon-protocol/poswark/prover"
)

var benchFlags struct {
	threads       int
	window        int
	shifted       bool
	duration      time.Duration
	batchSize     int
	flushInterval time.Duration
	lanes         int64
	srsPath       string
	tableDir      string
	faultLimit    int
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run the prover pool for a fixed window and report throughput",
	RunE:  runBench,
}

func init() {
	f := benchCmd.Flags()
	f.IntVar(&benchFlags.threads, "threads", 0, "concurrent prover workers (overrides THREAD_COUNT)")
	f.IntVar(&benchFlags.window, "window-size", 7, "scalar bits per table lookup")
	f.BoolVar(&benchFlags.shifted, "shifted-lagrange", false, "use the shifted-Lagrange table")
	f.DurationVar(&benchFlags.duration, "duration", 30*time.Second, "admission window")
	f.IntVar(&benchFlags.batchSize, "batch-size", 64, "scalars per device dispatch")
	f.DurationVar(&benchFlags.flushInterval, "flush-interval", 2*time.Millisecond, "max wait before a partial batch dispatches")
	f.Int64Var(&benchFlags.lanes, "lanes", 2, "concurrent device dispatch lanes")
	f.StringVar(&benchFlags.srsPath, "srs", filepath.Join(poswark.DATA_CACHE_DIR, poswark.SRS_FILE), "SRS file")
	f.StringVar(&benchFlags.tableDir, "table-dir", poswark.DATA_CACHE_DIR, "table artifact directory")
	f.IntVar(&benchFlags.faultLimit, "fault-limit", 8, "consecutive accelerator faults before intake halts (0 disables)")
	rootCmd.AddCommand(benchCmd)
}

// threadCount resolves the worker count: the --threads flag wins, then
// THREAD_COUNT. The value is hardware-dependent and tuned empirically per
// accelerator, so there is no built-in default.
func threadCount() (int, error) {
	if benchFlags.threads > 0 {
		return benchFlags.threads, nil
	}
	env := os.Getenv("THREAD_COUNT")
	if env == "" {
		return 0, fmt.Errorf("%w: set THREAD_COUNT or --threads", poswark.ErrConfig)
	}
	n, err := strconv.Atoi(env)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: THREAD_COUNT=%q", poswark.ErrConfig, env)
	}
	return n, nil
}

func runBench(cmd *cobra.Command, args []string) error {
	log := logger.Logger().With().Str("component", "bench").Logger()

	threads, err := threadCount()
	if err != nil {
		return err
	}
	basis := poswark.BasisStandard
	if benchFlags.shifted {
		basis = poswark.BasisShiftedLagrange
	}

	srs, err := poswark.LoadSRS(benchFlags.srsPath, poswark.SRS_SIZE, poswark.SRS_CK_HASH)
	if err != nil {
		return err
	}

	tablePath := filepath.Join(benchFlags.tableDir, poswark.TableFileName(benchFlags.window, basis))
	table, err := poswark.LoadTable(tablePath, benchFlags.window, basis, srs.Fingerprint)
	if err != nil {
		// Never run the pool against unvalidated precomputed state. The
		// operator regenerates explicitly; nothing is repaired here.
		if errors.Is(err, poswark.ErrMissing) || errors.Is(err, poswark.ErrCorrupt) || errors.Is(err, poswark.ErrStale) {
			return fmt.Errorf("%w; regenerate with: poswark tablegen --window-size %d%s",
				err, benchFlags.window, shiftedFlagSuffix(basis))
		}
		return err
	}

	eng, err := gpu.New(table, gpu.Options{
		BatchSize:     benchFlags.batchSize,
		FlushInterval: benchFlags.flushInterval,
		Lanes:         benchFlags.lanes,
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	pool, err := prover.NewPool(eng, threads,
		prover.WithQueueDepth(4*threads),
		prover.WithFaultEscalation(benchFlags.faultLimit, func(streak int) {
			log.Error().Int("streak", streak).Msg("accelerator fault streak, halting intake")
		}),
	)
	if err != nil {
		return err
	}

	log.Info().
		Int("threads", threads).
		Int("window", benchFlags.window).
		Str("basis", basis.String()).
		Dur("duration", benchFlags.duration).
		Msg("starting benchmark")

	sched := prover.NewScheduler(pool, clockwork.NewRealClock(), benchFlags.duration)
	sum, err := sched.Run(challengeSource())
	if err != nil {
		return err
	}

	fmt.Printf("proofs: %d completed, %d failed of %d submitted in %v (%.2f proofs/s)\n",
		sum.Completed, sum.Failed, sum.Submitted, sum.Elapsed.Round(time.Millisecond), sum.ProofsPerSec)
	fmt.Printf("latency: p50=%v p95=%v max=%v\n", sum.LatencyP50, sum.LatencyP95, sum.LatencyMax)
	if sum.Duplicates > 0 {
		return fmt.Errorf("%d duplicate completions detected", sum.Duplicates)
	}
	return nil
}

func shiftedFlagSuffix(b poswark.Basis) string {
	if b == poswark.BasisShiftedLagrange {
		return " --shifted-lagrange"
	}
	return ""
}

// challengeSource derives a deterministic stream of opaque challenge
// blobs, salted per run so repeated benchmarks do not prove identical
// work.
func challengeSource() func(seq uint64) prover.Task {
	var salt [8]byte
	binary.BigEndian.PutUint64(salt[:], uint64(time.Now().UnixNano()))
	return func(seq uint64) prover.Task {
		var buf [16]byte
		copy(buf[:8], salt[:])
		binary.BigEndian.PutUint64(buf[8:], seq)
		sum := sha256.Sum256(buf[:])
		return prover.Task{Seq: seq, Challenge: sum[:]}
	}
}
