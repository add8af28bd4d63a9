package prover

import (
	"io"
	"time"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
)

// Proof is the output of one proving run. Immutable once produced;
// ownership passes to the consumer of the result channel.
type Proof struct {
	Aggregate bls12377.G1Affine
	Response  bls12377.G1Affine
	Latency   time.Duration
}

func (me *Proof) WriteTo(w io.Writer) (int64, error) {
	enc := bls12377.NewEncoder(w)
	if err := enc.Encode(&me.Aggregate); err != nil {
		return enc.BytesWritten(), err
	}
	if err := enc.Encode(&me.Response); err != nil {
		return enc.BytesWritten(), err
	}
	return enc.BytesWritten(), nil
}

func (me *Proof) ReadFrom(r io.Reader) (int64, error) {
	dec := bls12377.NewDecoder(r)
	if err := dec.Decode(&me.Aggregate); err != nil {
		return dec.BytesRead(), err
	}
	if err := dec.Decode(&me.Response); err != nil {
		return dec.BytesRead(), err
	}
	return dec.BytesRead(), nil
}
