package poswark

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig marks invalid window sizes, basis selections or flag
	// combinations. Fatal at startup.
	ErrConfig = errors.New("invalid configuration")

	// ErrMissing marks an absent SRS, table or accelerator backend
	// artifact. Fatal at startup.
	ErrMissing = errors.New("resource missing")

	// ErrCorrupt marks a present but structurally invalid artifact
	// (truncation, checksum or format mismatch). Fatal at startup; the
	// remedy is explicit regeneration, never silent repair.
	ErrCorrupt = errors.New("resource corrupt")

	// ErrStale marks a well-formed table built for a different window
	// size, basis or SRS than the one requested.
	ErrStale = errors.New("resource stale")
)

// AcceleratorFault reports a failed device dispatch. It fails only the
// in-flight batch that hit it, not the whole pool.
type AcceleratorFault struct {
	Op     string
	Status string
}

func (e *AcceleratorFault) Error() string {
	return fmt.Sprintf("accelerator fault during %s: %s", e.Op, e.Status)
}
