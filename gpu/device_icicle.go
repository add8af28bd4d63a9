//go:build icicle

package gpu

import (
	"fmt"

	curve "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/consensys/gnark-crypto/ecc/bls12-377/fp"
	"github.com/consensys/gnark-crypto/ecc/bls12-377/fr"

	icicle_core "github.com/ingonyama-zk/icicle-gnark/v3/wrappers/golang/core"
	icicle_bls12377 "github.com/ingonyama-zk/icicle-gnark/v3/wrappers/golang/curves/bls12377"
	icicle_msm "github.com/ingonyama-zk/icicle-gnark/v3/wrappers/golang/curves/bls12377/msm"
	icicle_runtime "github.com/ingonyama-zk/icicle-gnark/v3/wrappers/golang/runtime"

	"github.com/eon-protocol/poswark"
)

const HasIcicle = true
const accelName = "icicle"

// device owns the CUDA context and the table's shifted base copies,
// resident on the card for the lifetime of the engine.
type device struct {
	dev   icicle_runtime.Device
	bases icicle_core.DeviceSlice
	nw    int
}

func newDevice(table *poswark.LookupTable) (*device, error) {
	if st := icicle_runtime.LoadBackendFromEnvOrDefault(); st != icicle_runtime.Success {
		return nil, fmt.Errorf("%w: icicle backend: %s", poswark.ErrMissing, st.AsString())
	}
	d := &device{
		dev: icicle_runtime.CreateDevice("CUDA", 0),
		nw:  poswark.Windows(table.Window),
	}

	// One shifted copy of the base per window position: entry (j, 1) is
	// 2^(j*w)*B, so a digit scalar multiplies directly against it.
	bases := make([]curve.G1Affine, d.nw)
	for j := 0; j < d.nw; j++ {
		bases[j] = *table.At(j, 1)
	}

	var copyErr error
	done := make(chan struct{})
	icicle_runtime.RunOnDevice(&d.dev, func(args ...any) {
		defer close(done)
		host := icicle_core.HostSlice[curve.G1Affine](bases)
		host.CopyToDevice(&d.bases, true)
		if st := icicle_bls12377.AffineFromMontgomery(d.bases); st != icicle_runtime.Success {
			copyErr = &poswark.AcceleratorFault{Op: "AffineFromMontgomery", Status: st.AsString()}
		}
	})
	<-done
	if copyErr != nil {
		return nil, copyErr
	}
	return d, nil
}

// mulBatch runs one batched MSM over the shared window bases: n rows of
// nw digit scalars, one projective result per row.
func (d *device) mulBatch(digits []uint64, n int) ([]curve.G1Affine, error) {
	scalars := make([]fr.Element, len(digits))
	for i, dg := range digits {
		scalars[i].SetUint64(dg)
	}

	cfg := icicle_msm.GetDefaultMSMConfig()
	cfg.BatchSize = int32(n)
	cfg.ArePointsSharedInBatch = true
	cfg.AreScalarsMontgomeryForm = true
	cfg.AreBasesMontgomeryForm = false
	cfg.PrecomputeFactor = 1

	out := make(icicle_core.HostSlice[icicle_bls12377.Projective], n)
	var st icicle_runtime.EIcicleError
	done := make(chan struct{})
	icicle_runtime.RunOnDevice(&d.dev, func(args ...any) {
		defer close(done)
		host := icicle_core.HostSliceFromElements(scalars)
		var scalarsDev icicle_core.DeviceSlice
		host.CopyToDevice(&scalarsDev, true)
		defer scalarsDev.Free()
		st = icicle_msm.Msm(scalarsDev, d.bases, &cfg, out)
	})
	<-done
	if st != icicle_runtime.Success {
		return nil, &poswark.AcceleratorFault{Op: "msm", Status: st.AsString()}
	}

	res := make([]curve.G1Affine, n)
	for i := range res {
		res[i] = projectiveToAffine(out[i])
	}
	return res, nil
}

func projectiveToAffine(p icicle_bls12377.Projective) curve.G1Affine {
	bx := p.X.ToBytesLittleEndian()
	by := p.Y.ToBytesLittleEndian()
	bz := p.Z.ToBytesLittleEndian()

	var ax, ay, az fp.Element
	ax, _ = fp.LittleEndian.Element((*[fp.Bytes]byte)(bx))
	ay, _ = fp.LittleEndian.Element((*[fp.Bytes]byte)(by))
	az, _ = fp.LittleEndian.Element((*[fp.Bytes]byte)(bz))

	var zInv fp.Element
	zInv.Inverse(&az)
	ax.Mul(&ax, &zInv)
	ay.Mul(&ay, &zInv)

	return curve.G1Affine{X: ax, Y: ay}
}

func (d *device) free() {
	done := make(chan struct{})
	icicle_runtime.RunOnDevice(&d.dev, func(args ...any) {
		defer close(done)
		d.bases.Free()
	})
	<-done
}
