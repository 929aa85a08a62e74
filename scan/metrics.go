package scan

import "sync/atomic"

// Metrics contains atomic counters of the scan registry.
// Each field can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// SessionsCreated counts created sessions.
	SessionsCreated atomic.Uint64
	// SessionsDeleted counts deleted sessions.
	SessionsDeleted atomic.Uint64
	// ScansStarted counts accepted Start calls.
	ScansStarted atomic.Uint64
	// ScansDone counts runs that completed.
	ScansDone atomic.Uint64
	// ScansAborted counts runs that were stopped or failed.
	ScansAborted atomic.Uint64
	// ScansActive is the number of runs in progress.
	ScansActive atomic.Int64

	// RawPoints counts received raw points.
	RawPoints atomic.Uint64
	// ProgressEvents counts received progress events.
	ProgressEvents atomic.Uint64
	// DroppedEvents counts scan events that could not be delivered.
	DroppedEvents atomic.Uint64
}

func (m *Metrics) incDone() {
	m.ScansDone.Add(1)
	m.ScansActive.Add(-1)
}

func (m *Metrics) incAborted() {
	m.ScansAborted.Add(1)
	m.ScansActive.Add(-1)
}

func (m *Metrics) incStarted() {
	m.ScansStarted.Add(1)
	m.ScansActive.Add(1)
}

// IncDropped counts a dropped scan event.
func (m *Metrics) IncDropped() {
	m.DroppedEvents.Add(1)
}
