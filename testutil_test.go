package poswark

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/stretchr/testify/require"
)

// mockSRSPoints builds n powers of a small fixed tau, opening with the
// generator like a real powers-of-tau string.
func mockSRSPoints(n int) []bls12377.G1Affine {
	_, _, g, _ := bls12377.Generators()
	pts := make([]bls12377.G1Affine, n)
	pts[0] = g
	tau := big.NewInt(42)
	var jac bls12377.G1Jac
	jac.FromAffine(&g)
	for i := 1; i < n; i++ {
		jac.ScalarMultiplication(&jac, tau)
		pts[i].FromJacobian(&jac)
	}
	return pts
}

// encodeSRS serializes points in the raw limb wire format LoadSRS reads.
func encodeSRS(pts []bls12377.G1Affine) []byte {
	buf := make([]byte, 0, len(pts)*G1_POINT_BYTES)
	var limb [8]byte
	for _, p := range pts {
		for i := 0; i < 6; i++ {
			binary.BigEndian.PutUint64(limb[:], p.X[i])
			buf = append(buf, limb[:]...)
		}
		for i := 0; i < 6; i++ {
			binary.BigEndian.PutUint64(limb[:], p.Y[i])
			buf = append(buf, limb[:]...)
		}
	}
	return buf
}

func writeSRSFile(t *testing.T, dir string, pts []bls12377.G1Affine) (path, fingerprint string) {
	t.Helper()
	raw := encodeSRS(pts)
	sum := sha256.Sum256(raw)
	path = filepath.Join(dir, SRS_FILE)
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path, hex.EncodeToString(sum[:])
}

func mockSRS(t *testing.T, n int) *SRS {
	t.Helper()
	pts := mockSRSPoints(n)
	raw := encodeSRS(pts)
	return &SRS{G1: pts, Fingerprint: sha256.Sum256(raw)}
}
