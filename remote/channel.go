// Package remote defines the interface to the remote debug service that runs scans and owns the hardware
// property values.
//
// The engine never implements the service itself. It consumes a Channel, which offers request/response
// calls for property commit/refresh and scan start/stop, plus one asynchronous event stream that carries
// property changes and scan progress, data and termination.
package remote

import (
	"context"
	"strconv"
)

// Handle identifies a running scan on the remote service.
type Handle uint64

// String returns the decimal form of the handle.
func (h Handle) String() string {
	return strconv.FormatUint(uint64(h), 10)
}

// ScanRequest describes a scan to begin.
type ScanRequest struct {
	// ObjectID is the endpoint the scan runs on.
	ObjectID string
	// Kind is the scan kind, e.g. "eye_scan".
	Kind string
	// Parameters holds the resolved value of every scan parameter.
	Parameters map[string]any
	// ExpectedPoints is the number of sweep coordinates the scan is expected to report.
	ExpectedPoints int
}

// ScanStart is the remote acknowledgement of a ScanRequest.
type ScanStart struct {
	Handle Handle
	// Version is the firmware/protocol version tag reported by the service.
	Version string
}

// Channel is the request/response plus asynchronous event channel to the remote debug service.
//
// All request methods must be safe for concurrent use. Errors returned by the request methods
// are wrapped by the engine into *Error.
type Channel interface {
	// CommitProperties pushes values to the hardware properties of objectID.
	CommitProperties(ctx context.Context, objectID string, values map[string]any) error
	// RefreshProperties reads the live values of the named properties of objectID.
	RefreshProperties(ctx context.Context, objectID string, names []string) (map[string]any, error)
	// StartScan begins a scan. It returns once the service has accepted the request.
	StartScan(ctx context.Context, req ScanRequest) (ScanStart, error)
	// StopScan requests a running scan to halt. The halt is acknowledged by a ScanAborted event.
	StopScan(ctx context.Context, h Handle) error
	// Events returns the event stream. The engine subscribes exactly once; a closed channel means the
	// stream is gone for good.
	Events() <-chan Event
}
