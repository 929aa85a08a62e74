package scan

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/arloliu/go-eyescan/endpoint"
	"github.com/arloliu/go-eyescan/internal/queue"
	"github.com/arloliu/go-eyescan/logger"
	"github.com/arloliu/go-eyescan/remote"
	"github.com/arloliu/go-eyescan/report"
	"github.com/arloliu/go-eyescan/scandata"
)

// ProgressFunc is called with the new progress fraction whenever it increases.
type ProgressFunc func(s *Session, fraction float64)

// DoneFunc is called once a run completes.
type DoneFunc func(s *Session)

// StopFunc is called once a run is aborted. err is nil for an acknowledged Stop and holds the
// remote failure otherwise.
type StopFunc func(s *Session, err error)

// StartOption configures one Start call.
type StartOption func(*startConfig) error

type startConfig struct {
	showProgress bool
}

// WithShowProgress enables or disables the progress indicator of the run.
func WithShowProgress(show bool) StartOption {
	return func(cfg *startConfig) error {
		cfg.showProgress = show
		return nil
	}
}

// Snapshot is a consistent view of a session's state.
type Snapshot struct {
	Name      string
	Kind      Kind
	Endpoint  string
	Target    string
	Status    Status
	Progress  float64
	StartTime time.Time
	StopTime  time.Time
	Version   string
	LastError error
}

// Session is one scan session on one target endpoint.
type Session struct {
	name     string
	kind     Kind
	endpoint endpoint.Endpoint
	target   endpoint.Endpoint
	params   *ParameterSet
	reg      *Registry
	logger   logger.Logger

	callbacks *queue.Mailbox[func()]

	mu        sync.Mutex
	cond      *sync.Cond
	status    Status
	progress  float64
	startTime time.Time
	stopTime  time.Time
	handle    remote.Handle
	running   bool // the current run is routed to this session
	started   bool // at least one run was accepted
	version   string
	reducer   *scandata.Reducer
	data      *scandata.Data
	lastErr   error
	deleted   bool
	starting  bool
	stopping  bool
	indicator ProgressIndicator

	onProgress ProgressFunc
	onDone     DoneFunc
	onStop     StopFunc
}

func newSession(reg *Registry, name string, kind Kind, ep, target endpoint.Endpoint, params *ParameterSet) *Session {
	s := &Session{
		name:      name,
		kind:      kind,
		endpoint:  ep,
		target:    target,
		params:    params,
		reg:       reg,
		logger:    reg.logger.With("scan", name, "target", target.ID()),
		callbacks: queue.NewMailbox[func()](8),
	}
	s.cond = sync.NewCond(&s.mu)

	return s
}

// runCallbacks runs queued callbacks in order, isolating panics per callback.
func (s *Session) runCallbacks(fns []func()) {
	for _, fn := range fns {
		s.reg.cfg.Tasks.CallWithRecover("scan:"+s.name, fn)
	}
}

func (s *Session) enqueue(fn func()) {
	if !s.callbacks.Push(fn) {
		s.logger.Debug("drop callback of deleted session")
	}
}

// Name returns the session name.
func (s *Session) Name() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted {
		return "", ErrDeleted
	}

	return s.name, nil
}

// Kind returns the scan kind.
func (s *Session) Kind() (Kind, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted {
		return "", ErrDeleted
	}

	return s.kind, nil
}

// Endpoint returns the endpoint the session was created on, and the receiver it scans.
func (s *Session) Endpoint() (endpoint.Endpoint, endpoint.Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted {
		return nil, nil, ErrDeleted
	}

	return s.endpoint, s.target, nil
}

// Status returns the lifecycle state.
func (s *Session) Status() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted {
		return 0, ErrDeleted
	}

	return s.status, nil
}

// Progress returns the completed fraction of the current or last run.
func (s *Session) Progress() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted {
		return 0, ErrDeleted
	}

	return s.progress, nil
}

// StartTime returns when the current or last run started.
func (s *Session) StartTime() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted {
		return time.Time{}, ErrDeleted
	}

	return s.startTime, nil
}

// StopTime returns when the last run ended. It is zero while a run is in progress.
func (s *Session) StopTime() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted {
		return time.Time{}, ErrDeleted
	}

	return s.stopTime, nil
}

// Version returns the firmware/protocol version tag reported when the run started.
func (s *Session) Version() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted {
		return "", ErrDeleted
	}

	return s.version, nil
}

// LastError returns the failure that aborted the last run, or nil.
func (s *Session) LastError() (error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted {
		return nil, ErrDeleted
	}

	return s.lastErr, nil
}

// Parameters returns the parameter set. Changes apply to the next Start.
func (s *Session) Parameters() (*ParameterSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted {
		return nil, ErrDeleted
	}

	return s.params, nil
}

// ScanData returns the data of the session. A terminal session returns the final data; a running
// session returns a snapshot of the points received so far, without a summary.
func (s *Session) ScanData() (*scandata.Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted {
		return nil, ErrDeleted
	}

	switch {
	case s.status == InProgress:
		return s.reducer.Finalize(false), nil
	case s.data != nil:
		return s.data, nil
	default:
		return nil, ErrNotStarted
	}
}

// Snapshot returns a consistent view of the session state.
func (s *Session) Snapshot() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted {
		return Snapshot{}, ErrDeleted
	}

	return s.snapshotLocked(), nil
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Name:      s.name,
		Kind:      s.kind,
		Endpoint:  s.endpoint.ID(),
		Target:    s.target.ID(),
		Status:    s.status,
		Progress:  s.progress,
		StartTime: s.startTime,
		StopTime:  s.stopTime,
		Version:   s.version,
		LastError: s.lastErr,
	}
}

// OnProgress registers the progress callback, replacing any previous one. Nil removes it.
func (s *Session) OnProgress(fn ProgressFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted {
		return ErrDeleted
	}
	s.onProgress = fn

	return nil
}

// OnDone registers the completion callback, replacing any previous one. Nil removes it.
func (s *Session) OnDone(fn DoneFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted {
		return ErrDeleted
	}
	s.onDone = fn

	return nil
}

// OnStop registers the abort callback, replacing any previous one. Nil removes it.
func (s *Session) OnStop(fn StopFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted {
		return ErrDeleted
	}
	s.onStop = fn

	return nil
}

// Start commits the resolved parameters to the target and begins a scan run. It returns once the remote
// service accepted the request and does not wait for any data.
//
// Start on a running session fails with ErrAlreadyRunning and leaves it untouched. Start on a Done or
// Aborted session restarts it with cleared data, provided the target still exists and no other session
// owns it.
func (s *Session) Start(ctx context.Context, opts ...StartOption) error {
	cfg := &startConfig{showProgress: s.reg.cfg.ShowProgress}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if s.deleted {
		s.mu.Unlock()
		return ErrDeleted
	}
	if s.status == InProgress || s.starting {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, s.name)
	}
	restart := s.status.IsTerminal()
	s.starting = true
	s.mu.Unlock()

	err := s.start(ctx, cfg, restart)

	s.mu.Lock()
	s.starting = false
	s.mu.Unlock()

	return err
}

func (s *Session) start(ctx context.Context, cfg *startConfig, restart bool) error {
	if _, err := endpoint.ScanTarget(s.endpoint); err != nil {
		return err
	}
	if restart {
		if err := s.reg.acquire(s); err != nil {
			return err
		}
	}

	release := func() {
		if restart {
			s.reg.release(s)
		}
	}

	p, err := resolvePlan(s.params, s.reg.cfg.OpenAreaMode)
	if err != nil {
		release()
		return err
	}
	reducer, err := scandata.NewReducer(p.reducer)
	if err != nil {
		release()
		return err
	}

	committed := make(map[string]any, len(p.values))
	for name, v := range p.values {
		committed[string(s.kind)+"."+name] = v
	}
	if err := s.reg.cfg.Remote.CommitProperties(ctx, s.target.ID(), committed); err != nil {
		release()
		return remote.Wrap("commit", s.target.ID(), err)
	}

	started, err := s.reg.cfg.Remote.StartScan(ctx, remote.ScanRequest{
		ObjectID:       s.target.ID(),
		Kind:           string(s.kind),
		Parameters:     p.values,
		ExpectedPoints: p.reducer.Grid.Total(),
	})
	if err != nil {
		release()
		s.logger.Error("scan start rejected", "error", err)

		return remote.Wrap("start_scan", s.target.ID(), err)
	}

	var indicator ProgressIndicator
	if cfg.showProgress && s.reg.cfg.NewIndicator != nil {
		if indicator, err = s.reg.cfg.NewIndicator(s.name); err != nil {
			s.logger.Warn("progress indicator disabled", "error", err)
			indicator = nil
		}
	}

	s.mu.Lock()
	if s.deleted {
		s.mu.Unlock()
		s.reg.release(s)
		s.logger.Warn("session deleted while starting, stop the scan", "handle", started.Handle)
		if err := s.reg.cfg.Remote.StopScan(s.reg.ctx(), started.Handle); err != nil {
			s.logger.Warn("stop scan failed", "handle", started.Handle, "error", err)
		}

		return ErrDeleted
	}

	oldHandle, hadRun := s.handle, s.started

	s.status = InProgress
	s.progress = 0
	s.startTime = time.Now()
	s.stopTime = time.Time{}
	s.handle = started.Handle
	s.running = true
	s.started = true
	s.version = started.Version
	s.reducer = reducer
	s.data = nil
	s.lastErr = nil
	s.stopping = false
	s.indicator = indicator
	s.mu.Unlock()

	if hadRun && oldHandle != started.Handle {
		s.reg.cfg.Router.Detach(oldHandle)
	}

	s.reg.metrics.incStarted()
	s.logger.Info("scan started", "handle", started.Handle, "version", started.Version,
		"expected_points", p.reducer.Grid.Total())

	if indicator != nil {
		s.enqueue(func() {
			if err := indicator.Start(); err != nil {
				s.logger.Warn("progress indicator failed to start", "error", err)
			}
		})
	}

	if !s.reg.cfg.Router.Attach(started.Handle, runHandler{s: s, handle: started.Handle}) {
		s.handleEvent(started.Handle, remote.ScanAborted{Handle: started.Handle, Err: ErrRegistryClosed})
	}

	return nil
}

// Stop asks the remote service to halt the run. The session stays in progress until the service
// acknowledges the halt, then becomes Aborted.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.deleted {
		s.mu.Unlock()
		return ErrDeleted
	}
	if s.status != InProgress {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrNotRunning, s.name, s.status)
	}
	h := s.handle
	s.stopping = true
	s.mu.Unlock()

	if err := s.reg.cfg.Remote.StopScan(ctx, h); err != nil {
		s.mu.Lock()
		if s.handle == h {
			s.stopping = false
		}
		s.mu.Unlock()

		return remote.Wrap("stop_scan", s.target.ID(), err)
	}

	s.logger.Info("scan stop requested", "handle", h)

	return nil
}

// WaitTillDone blocks until the session is no longer in progress or ctx is done. It returns the error
// that aborted the run, nil for a completed or stopped run, and ctx.Err() if ctx ended first.
//
// A session that never started returns immediately.
func (s *Session) WaitTillDone(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	for !s.deleted && s.status == InProgress {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}

	if s.deleted {
		return ErrDeleted
	}

	return s.lastErr
}

// GenerateReport renders the session into sink; a nil sink writes to standard output.
func (s *Session) GenerateReport(sink report.Sink) error {
	s.mu.Lock()
	if s.deleted {
		s.mu.Unlock()
		return ErrDeleted
	}

	snap := s.snapshotLocked()
	sum := report.ScanSummary{
		Name:      snap.Name,
		Kind:      string(snap.Kind),
		Target:    snap.Target,
		Status:    snap.Status.String(),
		Progress:  snap.Progress,
		StartTime: snap.StartTime,
		StopTime:  snap.StopTime,
		Version:   snap.Version,
		LastError: snap.LastError,
	}

	var data *scandata.Data
	switch {
	case s.status == InProgress:
		data = s.reducer.Finalize(false)
	case s.data != nil:
		data = s.data
	}
	s.mu.Unlock()

	values := s.params.Resolve()
	for _, name := range s.params.Names() {
		sum.Parameters = append(sum.Parameters, report.Param{Name: name, Value: values[name]})
	}

	if data != nil {
		sum.MeasuredPoints = data.Len()
		sum.TotalPoints = data.Grid().Total()
		if eye, ok := data.Summary(); ok {
			sum.Eye = &eye
		}
	}

	report.Scan(sum, sink)

	return nil
}

// runHandler binds one run's handle to the session.
type runHandler struct {
	s      *Session
	handle remote.Handle
}

func (h runHandler) HandleScanEvent(ev remote.ScanEvent) {
	h.s.handleEvent(h.handle, ev)
}

// handleEvent applies a scan event. It runs on the dispatcher task.
func (s *Session) handleEvent(h remote.Handle, ev remote.ScanEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted || !s.running || s.handle != h || s.status != InProgress {
		s.logger.Debug("ignore scan event", "handle", h, "event", fmt.Sprintf("%T", ev))
		return
	}

	switch e := ev.(type) {
	case remote.ScanProgress:
		s.reg.metrics.ProgressEvents.Add(1)
		s.updateProgressLocked(e.Fraction)
	case remote.ScanRawData:
		s.reg.metrics.RawPoints.Add(uint64(len(e.Points)))
		n := s.reducer.Add(e.Points)
		s.logger.Debug("raw data", "handle", h, "points", len(e.Points), "processed", n)
	case remote.ScanDone:
		s.completeLocked()
	case remote.ScanAborted:
		s.abortLocked(e.Err)
	}
}

func (s *Session) updateProgressLocked(fraction float64) {
	if math.IsNaN(fraction) {
		return
	}
	fraction = min(max(fraction, 0), 1)
	if fraction <= s.progress {
		return
	}
	s.progress = fraction

	if fn := s.onProgress; fn != nil {
		s.enqueue(func() { fn(s, fraction) })
	}
	if ind := s.indicator; ind != nil {
		s.enqueue(func() { ind.Update(fraction) })
	}

	if fraction >= 1 {
		s.completeLocked()
	}
}

func (s *Session) completeLocked() {
	// data first, so nobody observes Done without it
	s.data = s.reducer.Finalize(s.kind == EyeScan)
	s.progress = 1
	s.stopTime = time.Now()
	s.status = Done
	s.running = false
	s.cond.Broadcast()

	s.reg.metrics.incDone()
	s.reg.release(s)
	s.logger.Info("scan done", "handle", s.handle, "points", s.data.Len())

	if ind := s.indicator; ind != nil {
		s.enqueue(func() { ind.Stop(Done, nil) })
	}
	if fn := s.onDone; fn != nil {
		s.enqueue(func() { fn(s) })
	}
}

func (s *Session) abortLocked(cause error) {
	var err error
	switch {
	case cause != nil:
		err = remote.Wrap("scan", s.target.ID(), cause)
	case !s.stopping:
		err = remote.Wrap("scan", s.target.ID(), ErrRemoteAbort)
	}

	s.data = s.reducer.Finalize(false)
	s.lastErr = err
	s.stopTime = time.Now()
	s.status = Aborted
	s.running = false
	s.stopping = false
	s.cond.Broadcast()

	s.reg.metrics.incAborted()
	s.reg.release(s)
	if err != nil {
		s.logger.Error("scan aborted", "handle", s.handle, "error", err)
	} else {
		s.logger.Info("scan stopped", "handle", s.handle)
	}

	if ind := s.indicator; ind != nil {
		s.enqueue(func() { ind.Stop(Aborted, err) })
	}
	if fn := s.onStop; fn != nil {
		s.enqueue(func() { fn(s, err) })
	}
}

// markDeleted invalidates the session. It returns the handle of the last run, whether that run is
// still in progress, and whether any run was ever started. ok is false if the session was already deleted.
func (s *Session) markDeleted() (h remote.Handle, running, started, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted {
		return 0, false, false, false
	}

	s.deleted = true
	running = s.status == InProgress
	s.running = false
	s.cond.Broadcast()

	if ind := s.indicator; ind != nil && running {
		s.enqueue(func() { ind.Stop(Aborted, ErrDeleted) })
	}

	return s.handle, running, s.started, true
}
