// Package dispatch is the single consumer of the remote event stream.
//
// A reader task moves events from the channel into a mailbox; the dispatcher task drains the mailbox in
// batches. Consecutive property changes are handed over as one batch, scan events are routed to the
// handler attached to their handle, and control closures scheduled with Do run in stream order between
// events. Nothing user-supplied runs on the dispatcher task: handlers hand work to their own tasks.
package dispatch

import (
	"context"

	"github.com/arloliu/go-eyescan/internal/queue"
	"github.com/arloliu/go-eyescan/internal/task"
	"github.com/arloliu/go-eyescan/logger"
	"github.com/arloliu/go-eyescan/remote"
)

// DefaultParkedLimit is the number of events kept per unattached handle.
const DefaultParkedLimit = 1024

const (
	// DropLate is the drop reason of an event for a handle that already finished.
	DropLate = "late"
	// DropOverflow is the drop reason of an event that did not fit the parked buffer.
	DropOverflow = "overflow"
)

// ScanHandler receives the events of one scan run, on the dispatcher task.
type ScanHandler interface {
	HandleScanEvent(ev remote.ScanEvent)
}

// Config configures a Dispatcher.
type Config struct {
	// ParkedLimit bounds the events kept for a handle that is not attached yet.
	ParkedLimit int
	// OnPropertyChanged receives batches of consecutive property change events.
	OnPropertyChanged func(batch []remote.PropertyChanged)
	// OnDropped is called for every scan event that is dropped.
	OnDropped func(ev remote.ScanEvent, reason string)
	Logger    logger.Logger
}

type control func()

type streamClosed struct{}

// Dispatcher routes remote events. Its routing tables are owned by the dispatcher task.
type Dispatcher struct {
	cfg    Config
	ch     remote.Channel
	mgr    *task.Manager
	mb     *queue.Mailbox[any]
	logger logger.Logger

	routes  map[remote.Handle]ScanHandler
	parked  map[remote.Handle][]remote.ScanEvent
	retired map[remote.Handle]struct{}
	closed  bool
}

// New creates a dispatcher for ch. Call Start to begin consuming events.
func New(mgr *task.Manager, ch remote.Channel, cfg Config) *Dispatcher {
	if cfg.ParkedLimit <= 0 {
		cfg.ParkedLimit = DefaultParkedLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	return &Dispatcher{
		cfg:     cfg,
		ch:      ch,
		mgr:     mgr,
		mb:      queue.NewMailbox[any](64),
		logger:  cfg.Logger.With("component", "dispatch"),
		routes:  make(map[remote.Handle]ScanHandler),
		parked:  make(map[remote.Handle][]remote.ScanEvent),
		retired: make(map[remote.Handle]struct{}),
	}
}

// Start starts the reader and dispatcher tasks.
func (d *Dispatcher) Start() error {
	if err := task.StartMailbox(d.mgr, "dispatcher", d.mb, d.dispatch); err != nil {
		return err
	}

	events := d.ch.Events()

	return d.mgr.Start("event_reader", func(ctx context.Context) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				d.mb.Push(streamClosed{})
				return false
			}
			d.mb.Push(ev)

			return true
		}
	}, nil)
}

// Close stops accepting events and control closures. Queued items are still dispatched.
func (d *Dispatcher) Close() {
	d.mb.Close()
}

// Do schedules fn on the dispatcher task after every event received so far.
// It returns false if the dispatcher is closed.
func (d *Dispatcher) Do(fn func()) bool {
	return d.mb.Push(control(fn))
}

// Attach routes the events of h to handler, starting with any events parked for h.
// If the event stream has already closed, handler receives an abort right away.
func (d *Dispatcher) Attach(h remote.Handle, handler ScanHandler) bool {
	return d.Do(func() {
		delete(d.retired, h)

		if d.closed {
			d.retired[h] = struct{}{}
			handler.HandleScanEvent(remote.ScanAborted{Handle: h, Err: remote.ErrStreamClosed})

			return
		}

		d.routes[h] = handler

		parked := d.parked[h]
		delete(d.parked, h)
		if len(parked) > 0 {
			d.logger.Debug("flush parked events", "handle", h, "count", len(parked))
		}
		for _, ev := range parked {
			d.route(ev)
		}
	})
}

// Detach stops routing the events of h. Later events for h are dropped as late.
func (d *Dispatcher) Detach(h remote.Handle) bool {
	return d.Do(func() {
		d.retire(h)
	})
}

func (d *Dispatcher) retire(h remote.Handle) {
	delete(d.routes, h)
	delete(d.parked, h)
	d.retired[h] = struct{}{}
}

func (d *Dispatcher) dispatch(items []any) {
	var changes []remote.PropertyChanged

	flush := func() {
		if len(changes) == 0 {
			return
		}
		if d.cfg.OnPropertyChanged != nil {
			d.cfg.OnPropertyChanged(changes)
		}
		changes = nil
	}

	for _, item := range items {
		if pc, ok := item.(remote.PropertyChanged); ok {
			changes = append(changes, pc)
			continue
		}
		flush()

		switch v := item.(type) {
		case control:
			v()
		case remote.ScanEvent:
			d.route(v)
		case streamClosed:
			d.abortAll()
		default:
			d.logger.Warn("ignore unknown event", "type", v)
		}
	}
	flush()
}

func (d *Dispatcher) route(ev remote.ScanEvent) {
	h := ev.ScanHandle()

	if handler, ok := d.routes[h]; ok {
		handler.HandleScanEvent(ev)
		if remote.IsTerminal(ev) {
			d.retire(h)
		}

		return
	}

	if _, ok := d.retired[h]; ok {
		d.drop(ev, DropLate)
		return
	}

	if len(d.parked[h]) >= d.cfg.ParkedLimit {
		d.drop(ev, DropOverflow)
		return
	}
	d.parked[h] = append(d.parked[h], ev)
}

func (d *Dispatcher) drop(ev remote.ScanEvent, reason string) {
	d.logger.Warn("drop scan event", "handle", ev.ScanHandle(), "reason", reason)
	if d.cfg.OnDropped != nil {
		d.cfg.OnDropped(ev, reason)
	}
}

func (d *Dispatcher) abortAll() {
	d.logger.Error("remote event stream closed", "running", len(d.routes))
	d.closed = true

	for h, handler := range d.routes {
		handler.HandleScanEvent(remote.ScanAborted{Handle: h, Err: remote.ErrStreamClosed})
		d.retire(h)
	}
	clear(d.parked)
}
