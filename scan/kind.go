package scan

import "fmt"

// Kind is the kind of scan a session runs.
type Kind string

const (
	// EyeScan is a 2D statistical eye scan. Completed runs carry an eye summary.
	EyeScan Kind = "eye_scan"
	// SlicerScan is a 1D vertical slicer scan along the sampling point. It yields a BER map only.
	SlicerScan Kind = "slicer_scan"
)

// ParseKind validates s as a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case EyeScan, SlicerScan:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Status is the lifecycle state of a session.
type Status uint32

const (
	// NotStarted is the state of a created session before its first Start.
	NotStarted Status = iota
	// InProgress indicates a running scan.
	InProgress
	// Done indicates a scan that completed.
	Done
	// Aborted indicates a scan that was stopped or failed.
	Aborted
)

// IsTerminal reports whether s is Done or Aborted.
func (s Status) IsTerminal() bool { return s == Done || s == Aborted }

// String returns the status name.
func (s Status) String() string {
	switch s {
	case NotStarted:
		return "NOT_STARTED"
	case InProgress:
		return "IN_PROGRESS"
	case Done:
		return "DONE"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}
