package scan

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arloliu/go-eyescan/endpoint"
	"github.com/arloliu/go-eyescan/errs"
	"github.com/arloliu/go-eyescan/internal/dispatch"
	"github.com/arloliu/go-eyescan/internal/task"
	"github.com/arloliu/go-eyescan/logger"
	"github.com/arloliu/go-eyescan/remote"
	"github.com/arloliu/go-eyescan/scandata"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type harness struct {
	ch   *remote.MockChannel
	reg  *Registry
	rx   *endpoint.Node
	rx2  *endpoint.Node
	tx   *endpoint.Node
	link *endpoint.Node
}

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()
	require := require.New(t)

	l := logger.NewSlog(logger.ErrorLevel, false)
	mgr := task.NewManager(context.Background(), l)
	t.Cleanup(func() {
		mgr.Stop()
		mgr.Wait()
	})

	h := &harness{ch: remote.NewMockChannel(64)}
	metrics := &Metrics{}
	d := dispatch.New(mgr, h.ch, dispatch.Config{
		Logger:    l,
		OnDropped: func(remote.ScanEvent, string) { metrics.IncDropped() },
	})
	require.NoError(d.Start())

	cfg := Config{Remote: h.ch, Router: d, Tasks: mgr, Logger: l, Metrics: metrics}
	for _, opt := range opts {
		opt(&cfg)
	}

	var err error
	h.reg, err = NewRegistry(cfg)
	require.NoError(err)

	h.rx, err = endpoint.New(h.ch, endpoint.RX, "gt0/rx", "", endpoint.WithDefaultProperties())
	require.NoError(err)
	h.rx2, err = endpoint.New(h.ch, endpoint.RX, "gt1/rx", "", endpoint.WithDefaultProperties())
	require.NoError(err)
	h.tx, err = endpoint.New(h.ch, endpoint.TX, "gt0/tx", "", endpoint.WithDefaultProperties())
	require.NoError(err)
	h.link, err = endpoint.NewLink(h.ch, "link0", "", h.rx, h.tx)
	require.NoError(err)

	return h
}

// expectStart accepts parameter commits and one StartScan that returns handle.
func (h *harness) expectStart(handle remote.Handle) *mock.Call {
	h.ch.On("CommitProperties", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	return h.ch.On("StartScan", mock.Anything, mock.Anything).
		Return(remote.ScanStart{Handle: handle, Version: "2.1"}, nil).Once()
}

func (h *harness) create(t *testing.T, kind Kind, ep endpoint.Endpoint) *Session {
	t.Helper()

	sessions, err := h.reg.Create(kind, ep)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	return sessions[0]
}

func waitDone(t *testing.T, s *Session) error {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	return s.WaitTillDone(ctx)
}

func status(t *testing.T, s *Session) Status {
	t.Helper()

	st, err := s.Status()
	require.NoError(t, err)

	return st
}

func TestSession_EyeScanEndToEnd(t *testing.T) {
	require := require.New(t)

	h := newHarness(t)
	var req remote.ScanRequest
	var committed map[string]any
	h.ch.On("CommitProperties", mock.Anything, "gt0/rx", mock.Anything).
		Run(func(args mock.Arguments) { committed = args.Get(2).(map[string]any) }).
		Return(nil).Once()
	h.ch.On("StartScan", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { req = args.Get(1).(remote.ScanRequest) }).
		Return(remote.ScanStart{Handle: 7, Version: "2.1"}, nil).Once()

	s := h.create(t, EyeScan, h.link)

	params, err := s.Parameters()
	require.NoError(err)
	require.NoError(params.SetValues(map[string]any{
		ParamHorzStep: 8, ParamVertStep: 8, ParamHorzRange: "-0.5 to 0.5", ParamTargetBER: 1e-5,
	}))

	done := make(chan *Session, 1)
	require.NoError(s.OnDone(func(s *Session) { done <- s }))

	require.NoError(s.Start(context.Background(), WithShowProgress(false)))
	require.Equal(InProgress, status(t, s))

	require.Equal("gt0/rx", req.ObjectID)
	require.Equal(string(EyeScan), req.Kind)
	require.Equal(279, req.ExpectedPoints)
	require.Equal(int64(8), req.Parameters[ParamHorzStep])
	require.Equal(int64(8), committed["eye_scan.horz_step"])
	require.Equal("-0.500 UI to 0.500 UI", committed["eye_scan.horz_range"])

	h.ch.Emit(
		remote.ScanRawData{Handle: 7, Points: []scandata.RawPoint{
			{X: 0, Y: 120, ErrorCount: 65535, SampleCount: 256416},
			{X: 0, Y: 0, ErrorCount: 0, SampleCount: 2_000_000},
		}},
		remote.ScanProgress{Handle: 7, Fraction: 0.5},
		remote.ScanRawData{Handle: 7, Points: []scandata.RawPoint{
			{X: 0, Y: -120, ErrorCount: 65535, SampleCount: 263456},
			{X: 8, Y: 0, ErrorCount: 0, SampleCount: 0},
		}},
		remote.ScanDone{Handle: 7},
	)

	require.NoError(waitDone(t, s))
	require.Equal(Done, status(t, s))

	select {
	case got := <-done:
		require.Same(s, got)
	case <-time.After(waitFor):
		t.Fatal("done callback not invoked")
	}

	data, err := s.ScanData()
	require.NoError(err)
	require.Equal(3, data.Len())
	require.Len(data.Raw(), 4)

	origin, ok := data.Point(0, 0)
	require.True(ok)
	require.InDelta(0.0, origin.BER, 0)

	top, _ := data.Point(0, 120)
	require.InDelta(0.2556, top.BER, 1e-4)
	bottom, _ := data.Point(0, -120)
	require.InDelta(0.2487, bottom.BER, 1e-4)

	sum, ok := data.Summary()
	require.True(ok)
	require.Equal(1, sum.OpenArea)
	require.InDelta(1.0/279, sum.OpenPercentage, 1e-12)

	snap, err := s.Snapshot()
	require.NoError(err)
	require.Equal("link0", snap.Endpoint)
	require.Equal("gt0/rx", snap.Target)
	require.Equal("2.1", snap.Version)
	require.InDelta(1.0, snap.Progress, 0)
	require.False(snap.StopTime.Before(snap.StartTime))
	require.NoError(snap.LastError)

	m := h.reg.Metrics()
	require.Equal(uint64(1), m.ScansDone.Load())
	require.Equal(int64(0), m.ScansActive.Load())
	require.Equal(uint64(4), m.RawPoints.Load())

	_, owned := h.reg.Owner("gt0/rx")
	require.False(owned, "a terminal session releases its target")
	h.ch.AssertExpectations(t)
}

func TestSession_ProgressIsMonotonic(t *testing.T) {
	require := require.New(t)

	h := newHarness(t)
	h.expectStart(1)
	s := h.create(t, EyeScan, h.rx)

	var (
		mu   sync.Mutex
		seen []float64
	)
	require.NoError(s.OnProgress(func(_ *Session, f float64) {
		mu.Lock()
		seen = append(seen, f)
		mu.Unlock()
	}))

	require.NoError(s.Start(context.Background(), WithShowProgress(false)))

	h.ch.Emit(
		remote.ScanProgress{Handle: 1, Fraction: 0.2},
		remote.ScanProgress{Handle: 1, Fraction: 0.1},
		remote.ScanProgress{Handle: 1, Fraction: 0.5},
		remote.ScanProgress{Handle: 1, Fraction: 0.3},
		remote.ScanProgress{Handle: 1, Fraction: 0.4},
		remote.ScanRawData{Handle: 1, Points: []scandata.RawPoint{{X: 0, Y: 0, SampleCount: 1}}},
	)

	require.Eventually(func() bool {
		d, err := s.ScanData()
		return err == nil && d.Len() == 1
	}, waitFor, time.Millisecond)

	p, err := s.Progress()
	require.NoError(err)
	require.InDelta(0.5, p, 0)
	require.Equal(InProgress, status(t, s))

	require.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, waitFor, time.Millisecond)

	mu.Lock()
	require.Equal([]float64{0.2, 0.5}, seen)
	mu.Unlock()
}

func TestSession_ProgressOfOneCompletes(t *testing.T) {
	h := newHarness(t)
	h.expectStart(1)
	s := h.create(t, EyeScan, h.rx)

	require.NoError(t, s.Start(context.Background(), WithShowProgress(false)))
	h.ch.Emit(remote.ScanProgress{Handle: 1, Fraction: 1.0})

	require.NoError(t, waitDone(t, s))
	require.Equal(t, Done, status(t, s))

	data, err := s.ScanData()
	require.NoError(t, err)
	_, ok := data.Summary()
	require.True(t, ok)
}

func TestSession_StateMachine(t *testing.T) {
	require := require.New(t)

	h := newHarness(t)
	h.expectStart(1)
	s := h.create(t, EyeScan, h.rx)
	ctx := context.Background()

	require.Equal(NotStarted, status(t, s))
	require.ErrorIs(s.Stop(ctx), ErrNotRunning)
	_, err := s.ScanData()
	require.ErrorIs(err, ErrNotStarted)
	require.NoError(waitDone(t, s), "a session that never started does not block")

	require.NoError(s.Start(ctx, WithShowProgress(false)))

	err = s.Start(ctx, WithShowProgress(false))
	require.ErrorIs(err, ErrAlreadyRunning)
	require.ErrorIs(err, errs.ErrConflict)
	require.Equal(InProgress, status(t, s))
	h.ch.AssertNumberOfCalls(t, "StartScan", 1)

	data, err := s.ScanData()
	require.NoError(err)
	require.Zero(data.Len())
	_, ok := data.Summary()
	require.False(ok, "a running scan has no summary")
}

func TestSession_StopIsAcknowledged(t *testing.T) {
	require := require.New(t)

	h := newHarness(t)
	h.expectStart(3)
	h.ch.On("StopScan", mock.Anything, remote.Handle(3)).
		Run(func(mock.Arguments) { h.ch.Emit(remote.ScanAborted{Handle: 3}) }).
		Return(nil).Once()

	s := h.create(t, EyeScan, h.rx)
	stopped := make(chan error, 1)
	require.NoError(s.OnStop(func(_ *Session, err error) { stopped <- err }))

	require.NoError(s.Start(context.Background(), WithShowProgress(false)))
	require.NoError(s.Stop(context.Background()))

	require.NoError(waitDone(t, s))
	require.Equal(Aborted, status(t, s))

	lastErr, err := s.LastError()
	require.NoError(err)
	require.NoError(lastErr)

	select {
	case err := <-stopped:
		require.NoError(err)
	case <-time.After(waitFor):
		t.Fatal("stop callback not invoked")
	}

	require.ErrorIs(s.Stop(context.Background()), ErrNotRunning)
	require.Equal(uint64(1), h.reg.Metrics().ScansAborted.Load())
}

func TestSession_StopRejected(t *testing.T) {
	h := newHarness(t)
	h.expectStart(3)
	h.ch.On("StopScan", mock.Anything, remote.Handle(3)).Return(remote.ErrTransport).Once()

	s := h.create(t, EyeScan, h.rx)
	require.NoError(t, s.Start(context.Background(), WithShowProgress(false)))

	err := s.Stop(context.Background())
	require.ErrorIs(t, err, errs.ErrRemote)
	require.ErrorIs(t, err, remote.ErrTransport)
	require.Equal(t, InProgress, status(t, s))
}

func TestSession_RemoteAbortWithoutCallbacks(t *testing.T) {
	require := require.New(t)

	h := newHarness(t)
	h.expectStart(4)
	s := h.create(t, EyeScan, h.rx)

	require.NoError(s.Start(context.Background(), WithShowProgress(false)))
	h.ch.Emit(remote.ScanAborted{Handle: 4, Err: remote.ErrRejected})

	err := waitDone(t, s)
	require.ErrorIs(err, errs.ErrRemote)
	require.ErrorIs(err, remote.ErrRejected)
	require.Equal(Aborted, status(t, s))

	lastErr, err := s.LastError()
	require.NoError(err)
	require.ErrorIs(lastErr, remote.ErrRejected)
}

func TestSession_RemoteAbortWithoutReason(t *testing.T) {
	h := newHarness(t)
	h.expectStart(4)
	s := h.create(t, EyeScan, h.rx)

	require.NoError(t, s.Start(context.Background(), WithShowProgress(false)))
	h.ch.Emit(remote.ScanAborted{Handle: 4})

	require.ErrorIs(t, waitDone(t, s), ErrRemoteAbort)
}

func TestSession_EventsBeforeStartReturns(t *testing.T) {
	require := require.New(t)

	h := newHarness(t)
	h.ch.On("CommitProperties", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	h.ch.On("StartScan", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			h.ch.Emit(
				remote.ScanRawData{Handle: 5, Points: []scandata.RawPoint{{X: 0, Y: 0, SampleCount: 10}}},
				remote.ScanDone{Handle: 5},
			)
		}).
		Return(remote.ScanStart{Handle: 5}, nil).Once()

	s := h.create(t, EyeScan, h.rx)
	require.NoError(s.Start(context.Background(), WithShowProgress(false)))
	require.NoError(waitDone(t, s))

	data, err := s.ScanData()
	require.NoError(err)
	require.Equal(1, data.Len())
}

func TestSession_StartFailures(t *testing.T) {
	t.Run("start rejected", func(t *testing.T) {
		h := newHarness(t)
		h.ch.On("CommitProperties", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		h.ch.On("StartScan", mock.Anything, mock.Anything).Return(nil, remote.ErrRejected).Once()

		s := h.create(t, EyeScan, h.rx)
		err := s.Start(context.Background(), WithShowProgress(false))
		require.ErrorIs(t, err, remote.ErrRejected)
		require.ErrorIs(t, err, errs.ErrRemote)
		require.Equal(t, NotStarted, status(t, s))
	})

	t.Run("commit rejected", func(t *testing.T) {
		h := newHarness(t)
		h.ch.On("CommitProperties", mock.Anything, mock.Anything, mock.Anything).Return(remote.ErrRejected)

		s := h.create(t, EyeScan, h.rx)
		err := s.Start(context.Background(), WithShowProgress(false))
		require.ErrorIs(t, err, remote.ErrRejected)
		h.ch.AssertNotCalled(t, "StartScan", mock.Anything, mock.Anything)
	})
}

func TestSession_Restart(t *testing.T) {
	require := require.New(t)

	h := newHarness(t)
	h.expectStart(1)
	h.expectStart(2)
	s := h.create(t, EyeScan, h.rx)
	ctx := context.Background()

	require.NoError(s.Start(ctx, WithShowProgress(false)))
	h.ch.Emit(remote.ScanRawData{Handle: 1, Points: []scandata.RawPoint{{X: 0, Y: 0, SampleCount: 1}}}, remote.ScanDone{Handle: 1})
	require.NoError(waitDone(t, s))

	require.NoError(s.Start(ctx, WithShowProgress(false)))
	require.Equal(InProgress, status(t, s))

	data, err := s.ScanData()
	require.NoError(err)
	require.Zero(data.Len(), "a restart clears the data")

	p, err := s.Progress()
	require.NoError(err)
	require.Zero(p)

	// late events of the first run do not reach the second
	h.ch.Emit(remote.ScanProgress{Handle: 1, Fraction: 0.9}, remote.ScanDone{Handle: 2})
	require.NoError(waitDone(t, s))
	p, err = s.Progress()
	require.NoError(err)
	require.InDelta(1.0, p, 0)
	require.Eventually(func() bool { return h.reg.Metrics().DroppedEvents.Load() == 1 }, waitFor, time.Millisecond)
}

func TestSession_RestartNeedsFreeTarget(t *testing.T) {
	require := require.New(t)

	h := newHarness(t)
	h.expectStart(1)
	first := h.create(t, EyeScan, h.rx)
	ctx := context.Background()

	require.NoError(first.Start(ctx, WithShowProgress(false)))
	h.ch.Emit(remote.ScanDone{Handle: 1})
	require.NoError(waitDone(t, first))

	second := h.create(t, EyeScan, h.link)
	owner, ok := h.reg.Owner("gt0/rx")
	require.True(ok)
	require.Same(second, owner)

	err := first.Start(ctx, WithShowProgress(false))
	require.ErrorIs(err, ErrTargetOwned)
	require.Equal(Done, status(t, first))

	require.NoError(h.reg.Delete(second))
	h.expectStart(2)
	require.NoError(first.Start(ctx, WithShowProgress(false)))
}

func TestSession_RestartOnDeletedTarget(t *testing.T) {
	h := newHarness(t)
	h.expectStart(1)
	s := h.create(t, EyeScan, h.link)

	require.NoError(t, s.Start(context.Background(), WithShowProgress(false)))
	h.ch.Emit(remote.ScanDone{Handle: 1})
	require.NoError(t, waitDone(t, s))

	h.link.Delete()
	err := s.Start(context.Background(), WithShowProgress(false))
	require.ErrorIs(t, err, errs.ErrStaleReference)
}

func TestSession_FirstStartOnDeletedTarget(t *testing.T) {
	h := newHarness(t)
	s := h.create(t, EyeScan, h.link)

	h.link.Delete()
	err := s.Start(context.Background(), WithShowProgress(false))
	require.ErrorIs(t, err, errs.ErrStaleReference)
	require.Equal(t, NotStarted, status(t, s))
	h.ch.AssertNotCalled(t, "CommitProperties", mock.Anything, mock.Anything, mock.Anything)
	h.ch.AssertNotCalled(t, "StartScan", mock.Anything, mock.Anything)
}

// hookedEndpoint runs onDeleted the first time Deleted is called after it is armed.
type hookedEndpoint struct {
	endpoint.Endpoint
	armed     atomic.Bool
	onDeleted func()
}

func (e *hookedEndpoint) Deleted() bool {
	if e.armed.CompareAndSwap(true, false) {
		e.onDeleted()
	}

	return e.Endpoint.Deleted()
}

func TestSession_DeleteDuringRestartFreesTarget(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	h.expectStart(1)

	ep := &hookedEndpoint{Endpoint: h.rx}
	s := h.create(t, EyeScan, ep)
	ep.onDeleted = func() { require.NoError(h.reg.Delete(s)) }

	require.NoError(s.Start(context.Background(), WithShowProgress(false)))
	h.ch.Emit(remote.ScanDone{Handle: 1})
	require.NoError(waitDone(t, s))

	ep.armed.Store(true)
	err := s.Start(context.Background(), WithShowProgress(false))
	require.ErrorIs(err, ErrDeleted)

	_, owned := h.reg.Owner(h.rx.ID())
	require.False(owned)

	next := h.create(t, SlicerScan, h.rx)
	owner, ok := h.reg.Owner(h.rx.ID())
	require.True(ok)
	require.Same(next, owner)
	h.ch.AssertNumberOfCalls(t, "StartScan", 1)
}

func TestSession_StreamClosedAbortsRun(t *testing.T) {
	h := newHarness(t)
	h.expectStart(1)
	s := h.create(t, EyeScan, h.rx)

	require.NoError(t, s.Start(context.Background(), WithShowProgress(false)))
	h.ch.Close()

	err := waitDone(t, s)
	require.ErrorIs(t, err, remote.ErrStreamClosed)
	require.Equal(t, Aborted, status(t, s))
}

func TestSession_WaitTillDoneHonorsContext(t *testing.T) {
	h := newHarness(t)
	h.expectStart(1)
	s := h.create(t, EyeScan, h.rx)
	require.NoError(t, s.Start(context.Background(), WithShowProgress(false)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.WaitTillDone(ctx), context.DeadlineExceeded)
	require.Equal(t, InProgress, status(t, s))
}

func TestSession_SlicerScan(t *testing.T) {
	require := require.New(t)

	h := newHarness(t)
	var req remote.ScanRequest
	h.ch.On("CommitProperties", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	h.ch.On("StartScan", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { req = args.Get(1).(remote.ScanRequest) }).
		Return(remote.ScanStart{Handle: 8}, nil).Once()

	s := h.create(t, SlicerScan, h.rx)
	require.NoError(s.Start(context.Background(), WithShowProgress(false)))
	require.Equal(127, req.ExpectedPoints)

	h.ch.Emit(
		remote.ScanRawData{Handle: 8, Points: []scandata.RawPoint{{X: 0, Y: 2, ErrorCount: 5, SampleCount: 100}}},
		remote.ScanDone{Handle: 8},
	)
	require.NoError(waitDone(t, s))

	data, err := s.ScanData()
	require.NoError(err)
	p, ok := data.Point(0, 2)
	require.True(ok)
	require.InDelta(0.05, p.BER, 1e-12)
	_, ok = data.Summary()
	require.False(ok, "slicer scans carry no eye summary")
}

type fakeIndicator struct {
	mu      sync.Mutex
	started bool
	updates []float64
	stopped []Status
}

func (f *fakeIndicator) Start() error {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()

	return nil
}

func (f *fakeIndicator) Update(fraction float64) {
	f.mu.Lock()
	f.updates = append(f.updates, fraction)
	f.mu.Unlock()
}

func (f *fakeIndicator) Stop(status Status, _ error) {
	f.mu.Lock()
	f.stopped = append(f.stopped, status)
	f.mu.Unlock()
}

func TestSession_ProgressIndicator(t *testing.T) {
	require := require.New(t)

	ind := &fakeIndicator{}
	calls := 0
	h := newHarness(t, func(cfg *Config) {
		cfg.ShowProgress = true
		cfg.NewIndicator = func(string) (ProgressIndicator, error) {
			calls++
			return ind, nil
		}
	})
	h.expectStart(1)
	h.expectStart(2)
	s := h.create(t, EyeScan, h.rx)

	require.NoError(s.Start(context.Background()))
	h.ch.Emit(remote.ScanProgress{Handle: 1, Fraction: 0.25}, remote.ScanDone{Handle: 1})
	require.NoError(waitDone(t, s))

	require.Eventually(func() bool {
		ind.mu.Lock()
		defer ind.mu.Unlock()
		return len(ind.stopped) == 1
	}, waitFor, time.Millisecond)

	ind.mu.Lock()
	require.True(ind.started)
	require.Equal([]float64{0.25}, ind.updates)
	require.Equal([]Status{Done}, ind.stopped)
	ind.mu.Unlock()

	require.NoError(s.Start(context.Background(), WithShowProgress(false)))
	require.Equal(1, calls, "show_progress=false drives no indicator")
}

func TestSpinnerFactory(t *testing.T) {
	var buf bytes.Buffer
	ind, err := SpinnerFactory(&buf, 10*time.Millisecond)("SCAN_0")
	require.NoError(t, err)

	require.NoError(t, ind.Start())
	ind.Update(0.5)
	ind.Update(1)
	ind.Stop(Done, nil)
}

func TestSession_GenerateReport(t *testing.T) {
	require := require.New(t)

	h := newHarness(t)
	h.expectStart(1)
	s := h.create(t, EyeScan, h.rx)
	require.NoError(s.Start(context.Background(), WithShowProgress(false)))
	h.ch.Emit(
		remote.ScanRawData{Handle: 1, Points: []scandata.RawPoint{{X: 0, Y: 0, SampleCount: 1000}}},
		remote.ScanDone{Handle: 1},
	)
	require.NoError(waitDone(t, s))

	var out string
	require.NoError(s.GenerateReport(func(text string) { out += text }))
	require.Contains(out, "SCAN_0")
	require.Contains(out, "DONE")
	require.Contains(out, "1 of 279")
	require.Contains(out, "Open area")
	require.Contains(out, "horz_range")
}
