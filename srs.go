package poswark

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
)

// SRS is the powers-of-tau reference string, loaded once and shared
// read-only by every worker. Fingerprint is the sha256 of the file bytes.
type SRS struct {
	G1          []bls12377.G1Affine
	Fingerprint [32]byte
}

// ParseSRSPoints decodes size G1 affine points from the raw limb wire
// format: per point, 6 big-endian uint64 limbs of X then 6 of Y.
func ParseSRSPoints(raw []byte, size int) (val []bls12377.G1Affine, err error) {
	var g1 bls12377.G1Affine
	buf := make([]byte, 8)
	reader := bytes.NewReader(raw)
	val = make([]bls12377.G1Affine, 0, size)
	for n := 0; n < size; n++ {
		for i := 0; i < 6; i++ {
			if _, err = io.ReadFull(reader, buf); err != nil {
				return
			}
			g1.X[i] = binary.BigEndian.Uint64(buf)
		}
		for i := 0; i < 6; i++ {
			if _, err = io.ReadFull(reader, buf); err != nil {
				return
			}
			g1.Y[i] = binary.BigEndian.Uint64(buf)
		}
		val = append(val, g1)
	}
	return
}

// LoadSRS reads and validates the reference string. The expected element
// count and file fingerprint are pinned by the caller; anything that does
// not match fails fast, there is no download or repair path.
func LoadSRS(path string, size int, fingerprint string) (*SRS, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: srs size %d", ErrConfig, size)
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: srs file %s", ErrMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read srs %s: %w", path, err)
	}
	if len(raw) != size*G1_POINT_BYTES {
		return nil, fmt.Errorf("%w: srs %s truncated: %d bytes, want %d",
			ErrCorrupt, path, len(raw), size*G1_POINT_BYTES)
	}
	sum := sha256.Sum256(raw)
	if got := hex.EncodeToString(sum[:]); got != fingerprint {
		return nil, fmt.Errorf("%w: srs %s fingerprint %s, want %s",
			ErrCorrupt, path, got, fingerprint)
	}
	g1, err := ParseSRSPoints(raw, size)
	if err != nil {
		return nil, fmt.Errorf("%w: srs %s: %v", ErrCorrupt, path, err)
	}
	// A powers-of-tau string always opens with the generator.
	_, _, g, _ := bls12377.Generators()
	if !g1[0].Equal(&g) {
		return nil, fmt.Errorf("%w: srs %s: first element is not the generator", ErrCorrupt, path)
	}
	return &SRS{G1: g1, Fingerprint: sum}, nil
}
