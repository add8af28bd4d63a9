package poswark

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/stretchr/testify/require"
)

func TestLoadSRS(t *testing.T) {
	pts := mockSRSPoints(32)
	path, fp := writeSRSFile(t, t.TempDir(), pts)

	srs, err := LoadSRS(path, 32, fp)
	require.NoError(t, err)
	require.Len(t, srs.G1, 32)
	require.Equal(t, fp, hex.EncodeToString(srs.Fingerprint[:]))

	_, _, g, _ := bls12377.Generators()
	require.True(t, srs.G1[0].Equal(&g))
	require.True(t, srs.G1[1].Equal(&pts[1]))
}

func TestLoadSRSMissing(t *testing.T) {
	_, err := LoadSRS(filepath.Join(t.TempDir(), SRS_FILE), 32, SRS_CK_HASH)
	require.ErrorIs(t, err, ErrMissing)
}

func TestLoadSRSTruncated(t *testing.T) {
	path, fp := writeSRSFile(t, t.TempDir(), mockSRSPoints(32))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw[:len(raw)-1], 0o644))

	_, err = LoadSRS(path, 32, fp)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestLoadSRSFingerprintMismatch(t *testing.T) {
	path, fp := writeSRSFile(t, t.TempDir(), mockSRSPoints(32))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[100] ^= 0x01
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = LoadSRS(path, 32, fp)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestLoadSRSRejectsNonGeneratorHead(t *testing.T) {
	// A structurally fine file whose first element is 2G, with a
	// matching fingerprint, must still be rejected.
	pts := mockSRSPoints(32)
	var two bls12377.G1Jac
	two.FromAffine(&pts[0])
	two.DoubleAssign()
	pts[0].FromJacobian(&two)

	raw := encodeSRS(pts)
	sum := sha256.Sum256(raw)
	path := filepath.Join(t.TempDir(), SRS_FILE)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err := LoadSRS(path, 32, hex.EncodeToString(sum[:]))
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestLoadSRSInvalidSize(t *testing.T) {
	_, err := LoadSRS("unused", 0, SRS_CK_HASH)
	require.ErrorIs(t, err, ErrConfig)
}
