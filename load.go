package poswark

import (
	"fmt"
	"os"
)

// LoadTable reads a table artifact and validates it against the exact key
// the caller expects. The read path has no side effects: a bad table is
// reported, never regenerated here.
//
// Structural damage (truncation, bad counts, checksum mismatch) returns
// ErrCorrupt. A structurally sound table built for a different window,
// basis or SRS returns ErrStale.
func LoadTable(path string, window int, basis Basis, srsFingerprint [32]byte) (*LookupTable, error) {
	if window < 1 || window > MAX_TABLE_WINDOW {
		return nil, fmt.Errorf("%w: window %d not in [1, %d]", ErrConfig, window, MAX_TABLE_WINDOW)
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: table file %s", ErrMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read table %s: %w", path, err)
	}
	t, err := decodeTable(raw)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", path, err)
	}
	if t.Window != window {
		return nil, fmt.Errorf("%w: table %s built for window %d, want %d",
			ErrStale, path, t.Window, window)
	}
	if t.Basis != basis {
		return nil, fmt.Errorf("%w: table %s built for %s basis, want %s",
			ErrStale, path, t.Basis, basis)
	}
	if t.SRSFingerprint != srsFingerprint {
		return nil, fmt.Errorf("%w: table %s built from a different srs", ErrStale, path)
	}
	return t, nil
}
