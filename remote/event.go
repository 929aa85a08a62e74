package remote

import (
	"github.com/arloliu/go-eyescan/scandata"
)

// Event is an asynchronous notification from the remote service.
//
// The concrete types are PropertyChanged, ScanProgress, ScanRawData, ScanDone and ScanAborted.
type Event interface {
	isEvent()
}

// ScanEvent is an Event that belongs to a running scan.
type ScanEvent interface {
	Event
	ScanHandle() Handle
}

// PropertyChanged reports a new hardware value of a property.
type PropertyChanged struct {
	ObjectID string
	Name     string
	Value    any
}

// ScanProgress reports the completed fraction, in [0, 1], of a scan.
type ScanProgress struct {
	Handle   Handle
	Fraction float64
}

// ScanRawData carries a batch of raw measurements.
type ScanRawData struct {
	Handle Handle
	Points []scandata.RawPoint
}

// ScanDone reports that a scan completed.
type ScanDone struct {
	Handle Handle
}

// ScanAborted reports that a scan stopped before completion. Err is nil when the abort
// acknowledges a stop request.
type ScanAborted struct {
	Handle Handle
	Err    error
}

func (PropertyChanged) isEvent() {}
func (ScanProgress) isEvent()    {}
func (ScanRawData) isEvent()     {}
func (ScanDone) isEvent()        {}
func (ScanAborted) isEvent()     {}

func (e ScanProgress) ScanHandle() Handle { return e.Handle }
func (e ScanRawData) ScanHandle() Handle  { return e.Handle }
func (e ScanDone) ScanHandle() Handle     { return e.Handle }
func (e ScanAborted) ScanHandle() Handle  { return e.Handle }

// IsTerminal reports whether ev ends a scan run.
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case ScanDone, ScanAborted:
		return true
	default:
		return false
	}
}
