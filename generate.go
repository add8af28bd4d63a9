package poswark

import (
	"bytes"
	"fmt"
	"math/big"
	"math/bits"
	"path/filepath"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/consensys/gnark-crypto/ecc/bls12-377/kzg"
	"github.com/natefinch/atomic"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/singleflight"
)

// BasisPoint derives the base point a table is precomputed over.
// BasisStandard is SRS[0]; BasisShiftedLagrange is the first Lagrange-form
// element over the largest power-of-two SRS prefix, scaled by the coset
// shift.
func BasisPoint(srs *SRS, basis Basis) (bls12377.G1Affine, error) {
	switch basis {
	case BasisStandard:
		return srs.G1[0], nil
	case BasisShiftedLagrange:
		n := 1 << (bits.Len(uint(len(srs.G1))) - 1)
		lk, err := kzg.ToLagrangeG1(srs.G1[:n])
		if err != nil {
			return bls12377.G1Affine{}, fmt.Errorf("to lagrange: %w", err)
		}
		var shift big.Int
		COSET_SHIFT.BigInt(&shift)
		var jac bls12377.G1Jac
		jac.FromAffine(&lk[0])
		jac.ScalarMultiplication(&jac, &shift)
		var base bls12377.G1Affine
		base.FromJacobian(&jac)
		return base, nil
	default:
		return bls12377.G1Affine{}, fmt.Errorf("%w: basis %d", ErrConfig, basis)
	}
}

// GenerateTable precomputes the lookup table for (srs, window, basis).
// Deterministic: the same inputs always produce byte-identical output.
//
// Window j holds the multiples k*B_j for k in [0, 2^window) where
// B_j = 2^(j*window) * B, built by repeated addition within a window and
// `window` doublings between windows.
func GenerateTable(srs *SRS, window int, basis Basis) (*LookupTable, error) {
	if window < 1 || window > MAX_TABLE_WINDOW {
		return nil, fmt.Errorf("%w: window %d not in [1, %d]", ErrConfig, window, MAX_TABLE_WINDOW)
	}
	base, err := BasisPoint(srs, basis)
	if err != nil {
		return nil, err
	}

	nw := Windows(window)
	span := 1 << window
	jac := make([]bls12377.G1Jac, nw*span)

	bar := progressbar.Default(int64(nw), fmt.Sprintf("precompute W%02d.%s", window, basis.tag()))
	var bj bls12377.G1Jac
	bj.FromAffine(&base)
	for j := 0; j < nw; j++ {
		// jac[j*span+0] stays at infinity.
		jac[j*span+1].Set(&bj)
		for k := 2; k < span; k++ {
			jac[j*span+k].Set(&jac[j*span+k-1]).AddAssign(&bj)
		}
		for d := 0; d < window; d++ {
			bj.DoubleAssign()
		}
		bar.Add(1)
	}

	return &LookupTable{
		Window:         window,
		Basis:          basis,
		SRSFingerprint: srs.Fingerprint,
		Points:         bls12377.BatchJacobianToAffineG1(jac),
	}, nil
}

// WriteTable persists a table under its deterministic name in dir, via a
// temp-then-rename so a partially written artifact is never visible.
func WriteTable(t *LookupTable, dir string) (string, error) {
	var buf bytes.Buffer
	if _, err := t.WriteTo(&buf); err != nil {
		return "", err
	}
	path := filepath.Join(dir, TableFileName(t.Window, t.Basis))
	if err := atomic.WriteFile(path, &buf); err != nil {
		return "", fmt.Errorf("write table %s: %w", path, err)
	}
	return path, nil
}

var regenGroup singleflight.Group

// Regenerate rebuilds and persists the table for one key. Concurrent calls
// for the same key share a single generation; regeneration is only ever
// reached by explicit invocation, never from the load path.
func Regenerate(srs *SRS, window int, basis Basis, dir string) (*LookupTable, error) {
	if window < 1 || window > MAX_TABLE_WINDOW {
		return nil, fmt.Errorf("%w: window %d not in [1, %d]", ErrConfig, window, MAX_TABLE_WINDOW)
	}
	v, err, _ := regenGroup.Do(TableFileName(window, basis), func() (interface{}, error) {
		t, err := GenerateTable(srs, window, basis)
		if err != nil {
			return nil, err
		}
		if _, err := WriteTable(t, dir); err != nil {
			return nil, err
		}
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*LookupTable), nil
}
