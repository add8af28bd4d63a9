//go:build !icicle

package gpu

import (
	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"

	"github.com/eon-protocol/poswark"
)

const HasIcicle = false
const accelName = "cpu"

// device is the host-side reference path: every window digit resolves to
// a table entry, folded with mixed Jacobian additions.
type device struct {
	table *poswark.LookupTable
}

func newDevice(table *poswark.LookupTable) (*device, error) {
	return &device{table: table}, nil
}

// mulBatch consumes n rows of Windows(w) digits each and returns one
// product per row.
func (d *device) mulBatch(digits []uint64, n int) ([]bls12377.G1Affine, error) {
	nw := poswark.Windows(d.table.Window)
	acc := make([]bls12377.G1Jac, n)
	for i := 0; i < n; i++ {
		row := digits[i*nw : (i+1)*nw]
		for j, dj := range row {
			if dj == 0 {
				// Entry zero is the point at infinity.
				continue
			}
			acc[i].AddMixed(d.table.At(j, dj))
		}
	}
	return bls12377.BatchJacobianToAffineG1(acc), nil
}

func (d *device) free() {}
