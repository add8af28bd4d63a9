package poswark

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
)

// Basis selects which base point a lookup table is built over. The choice
// is always explicit; it is never inferred from file contents alone.
type Basis uint8

const (
	// BasisStandard uses the first SRS element (the group generator).
	BasisStandard Basis = iota
	// BasisShiftedLagrange uses the first Lagrange-form element over the
	// coset-shifted evaluation domain.
	BasisShiftedLagrange
)

func (b Basis) String() string {
	switch b {
	case BasisStandard:
		return "standard"
	case BasisShiftedLagrange:
		return "shifted-lagrange"
	default:
		return fmt.Sprintf("basis(%d)", uint8(b))
	}
}

func (b Basis) tag() string {
	if b == BasisShiftedLagrange {
		return "SLG"
	}
	return "STD"
}

// Windows is the number of w-bit windows covering a scalar.
func Windows(w int) int {
	return (fr.Bits + w - 1) / w
}

var tableMagic = [8]byte{'P', 'O', 'S', 'W', 'T', 'B', 'L', 1}

// TABLE_HEADER_BYTES = magic + window + basis + count + srs fingerprint +
// payload checksum.
const TABLE_HEADER_BYTES = 8 + 4 + 4 + 8 + 32 + 32

// LookupTable holds, for every window position j, the 2^w multiples
// k*(2^(j*w)*B) of the basis point B. Scalar multiplication by s becomes
// one lookup per window digit of s plus point additions. Immutable once
// built.
type LookupTable struct {
	Window         int
	Basis          Basis
	SRSFingerprint [32]byte
	Points         []bls12377.G1Affine
}

// Entries is the exact entry count mandated for a window size:
// Windows(w) * 2^w. Any table with a different count is rejected.
func Entries(w int) int {
	return Windows(w) << w
}

// At returns the precomputed multiple for window j and digit d.
func (t *LookupTable) At(j int, d uint64) *bls12377.G1Affine {
	return &t.Points[j<<t.Window|int(d)]
}

// TableFileName derives the on-disk artifact name for a table key.
func TableFileName(window int, basis Basis) string {
	return fmt.Sprintf("SRS.TBL.W%02d.%s.BIN", window, basis.tag())
}

// WriteTo serializes the table: fixed header, then raw-encoded points.
// Identical tables serialize to identical bytes.
func (t *LookupTable) WriteTo(w io.Writer) (int64, error) {
	var payload bytes.Buffer
	enc := bls12377.NewEncoder(&payload, bls12377.RawEncoding())
	for i := range t.Points {
		if err := enc.Encode(&t.Points[i]); err != nil {
			return 0, err
		}
	}
	var hdr bytes.Buffer
	hdr.Write(tableMagic[:])
	binary.Write(&hdr, binary.BigEndian, uint32(t.Window))
	binary.Write(&hdr, binary.BigEndian, uint32(t.Basis))
	binary.Write(&hdr, binary.BigEndian, uint64(len(t.Points)))
	hdr.Write(t.SRSFingerprint[:])

	// Checksum spans everything before it, so any interior flip is caught.
	h := sha256.New()
	h.Write(hdr.Bytes())
	h.Write(payload.Bytes())
	hdr.Write(h.Sum(nil))

	n, err := w.Write(hdr.Bytes())
	if err != nil {
		return int64(n), err
	}
	m, err := w.Write(payload.Bytes())
	return int64(n + m), err
}

// decodeTable parses and structurally validates serialized table bytes.
// Validation failures return ErrCorrupt; the caller layers key checks
// (window, basis, SRS fingerprint) on top.
func decodeTable(raw []byte) (*LookupTable, error) {
	if len(raw) < TABLE_HEADER_BYTES {
		return nil, fmt.Errorf("%w: table header truncated: %d bytes", ErrCorrupt, len(raw))
	}
	if !bytes.Equal(raw[:8], tableMagic[:]) {
		return nil, fmt.Errorf("%w: bad table magic", ErrCorrupt)
	}
	window := int(binary.BigEndian.Uint32(raw[8:12]))
	basis := Basis(binary.BigEndian.Uint32(raw[12:16]))
	count := binary.BigEndian.Uint64(raw[16:24])
	var fp, sum [32]byte
	copy(fp[:], raw[24:56])
	copy(sum[:], raw[56:88])

	if window < 1 || window > MAX_TABLE_WINDOW {
		return nil, fmt.Errorf("%w: table window %d out of range", ErrCorrupt, window)
	}
	if basis != BasisStandard && basis != BasisShiftedLagrange {
		return nil, fmt.Errorf("%w: unknown basis %d", ErrCorrupt, basis)
	}
	if count != uint64(Entries(window)) {
		return nil, fmt.Errorf("%w: table has %d entries, window %d requires exactly %d",
			ErrCorrupt, count, window, Entries(window))
	}
	payload := raw[TABLE_HEADER_BYTES:]
	if len(payload) != int(count)*bls12377.SizeOfG1AffineUncompressed {
		return nil, fmt.Errorf("%w: table payload is %d bytes, want %d",
			ErrCorrupt, len(payload), int(count)*bls12377.SizeOfG1AffineUncompressed)
	}
	h := sha256.New()
	h.Write(raw[:TABLE_HEADER_BYTES-32])
	h.Write(payload)
	var got [32]byte
	h.Sum(got[:0])
	if got != sum {
		return nil, fmt.Errorf("%w: table checksum mismatch", ErrCorrupt)
	}

	points := make([]bls12377.G1Affine, count)
	dec := bls12377.NewDecoder(bytes.NewReader(payload), bls12377.NoSubgroupChecks())
	for i := range points {
		if err := dec.Decode(&points[i]); err != nil {
			return nil, fmt.Errorf("%w: table entry %d: %v", ErrCorrupt, i, err)
		}
	}
	return &LookupTable{
		Window:         window,
		Basis:          basis,
		SRSFingerprint: fp,
		Points:         points,
	}, nil
}
