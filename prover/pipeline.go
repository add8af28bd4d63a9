// Package prover runs the PoSW proving pipeline: a fixed pool of workers
// turning opaque challenges into proofs through the shared execution
// engine, and a scheduler that admits work for a wall-clock window and
// reports throughput.
package prover

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	"github.com/consensys/gnark-crypto/ecc/bls12-377/fr/poseidon2"
	fiatshamir "github.com/consensys/gnark-crypto/fiat-shamir"

	"github.com/eon-protocol/poswark"
	"github.com/eon-protocol/poswark/gpu"
)

// ChallengeScalars is how many table-base multiplications one challenge
// expands into before aggregation.
const ChallengeScalars = 8

// Task is one PoSW challenge. Seq is assigned by the submitter and must
// be unique per run; it is carried through to the reported metrics.
type Task struct {
	Seq       uint64
	Challenge []byte
}

var permutation = sync.OnceValue(func() *poseidon2.Permutation {
	return poseidon2.NewPermutationWithSeed(poswark.HASH_T, poswark.HASH_RF, poswark.HASH_RP, "POSW_POSEIDON2_HASH_SEED")
})

func hashCompress(x, y fr.Element) fr.Element {
	vars := [2]fr.Element{x, y}
	if err := permutation().Permutation(vars[:]); err != nil {
		log.Fatalln(err)
	}
	var ret fr.Element
	ret.Add(&vars[1], &y)
	return ret
}

// ExpandChallenge maps an opaque challenge blob onto m field scalars via
// a poseidon2 chain. Deterministic: the same blob always expands to the
// same scalars.
func ExpandChallenge(challenge []byte, m int) []fr.Element {
	sum := sha256.Sum256(challenge)
	var a, b fr.Element
	a.SetBytes(sum[:16])
	b.SetBytes(sum[16:])
	acc := hashCompress(a, b)

	out := make([]fr.Element, m)
	for i := range out {
		var idx fr.Element
		idx.SetUint64(uint64(i))
		acc = hashCompress(acc, idx)
		out[i] = acc
	}
	return out
}

// deriveZeta binds the task id and the aggregate commitment into a
// fiat-shamir transcript and squeezes the evaluation challenge.
func deriveZeta(seq uint64, aggregate *bls12377.G1Affine) (fr.Element, error) {
	var zeta fr.Element
	fs := fiatshamir.NewTranscript(sha256.New(), "zeta")
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	if err := fs.Bind("zeta", seqBytes[:]); err != nil {
		return zeta, err
	}
	buf := aggregate.RawBytes()
	if err := fs.Bind("zeta", buf[:]); err != nil {
		return zeta, err
	}
	b, err := fs.ComputeChallenge("zeta")
	if err != nil {
		return zeta, err
	}
	zeta.SetBytes(b)
	return zeta, nil
}

// Prove runs the pipeline for one task: expand the challenge into
// scalars, commit to each through the engine, aggregate, derive zeta and
// answer with the zeta-weighted response point.
func Prove(ctx context.Context, eng *gpu.Engine, task Task) (*Proof, error) {
	start := time.Now()

	scalars := ExpandChallenge(task.Challenge, ChallengeScalars)
	points, err := eng.MulBatch(ctx, scalars)
	if err != nil {
		return nil, fmt.Errorf("commit task %d: %w", task.Seq, err)
	}

	var aggJac bls12377.G1Jac
	for i := range points {
		aggJac.AddMixed(&points[i])
	}
	var aggregate bls12377.G1Affine
	aggregate.FromJacobian(&aggJac)

	zeta, err := deriveZeta(task.Seq, &aggregate)
	if err != nil {
		return nil, fmt.Errorf("derive zeta task %d: %w", task.Seq, err)
	}

	// z = sum_i s_i * zeta^i
	var z, pow, term fr.Element
	pow.SetOne()
	for i := range scalars {
		term.Mul(&scalars[i], &pow)
		z.Add(&z, &term)
		pow.Mul(&pow, &zeta)
	}

	response, err := eng.ScalarMul(ctx, z)
	if err != nil {
		return nil, fmt.Errorf("respond task %d: %w", task.Seq, err)
	}

	return &Proof{
		Aggregate: aggregate,
		Response:  response,
		Latency:   time.Since(start),
	}, nil
}

// Verify checks a proof against its task with plain non-windowed scalar
// multiplications over the table's base point. It exists as the
// reference the engine's windowed path is measured against.
func Verify(base bls12377.G1Affine, task Task, proof *Proof) error {
	scalars := ExpandChallenge(task.Challenge, ChallengeScalars)

	var sum fr.Element
	for i := range scalars {
		sum.Add(&sum, &scalars[i])
	}
	var want bls12377.G1Affine
	want.ScalarMultiplication(&base, sum.BigInt(new(big.Int)))
	if !want.Equal(&proof.Aggregate) {
		return fmt.Errorf("task %d: aggregate does not open to the challenge scalars", task.Seq)
	}

	zeta, err := deriveZeta(task.Seq, &proof.Aggregate)
	if err != nil {
		return err
	}
	var z, pow, term fr.Element
	pow.SetOne()
	for i := range scalars {
		term.Mul(&scalars[i], &pow)
		z.Add(&z, &term)
		pow.Mul(&pow, &zeta)
	}
	want.ScalarMultiplication(&base, z.BigInt(new(big.Int)))
	if !want.Equal(&proof.Response) {
		return fmt.Errorf("task %d: response does not match zeta combination", task.Seq)
	}
	return nil
}
