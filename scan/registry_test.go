package scan

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arloliu/go-eyescan/endpoint"
	"github.com/arloliu/go-eyescan/errs"
	"github.com/arloliu/go-eyescan/remote"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CreateNamesAndOrder(t *testing.T) {
	require := require.New(t)

	h := newHarness(t)
	sessions, err := h.reg.Create(EyeScan, h.rx, h.rx2)
	require.NoError(err)
	require.Len(sessions, 2)

	name0, _ := sessions[0].Name()
	name1, _ := sessions[1].Name()
	require.Equal("SCAN_0", name0)
	require.Equal("SCAN_1", name1)

	for i := 2; i < 11; i++ {
		ep, err := endpoint.New(h.ch, endpoint.RX, "gt"+string(rune('a'+i))+"/rx", "")
		require.NoError(err)
		_, err = h.reg.Create(SlicerScan, ep)
		require.NoError(err)
	}

	all := h.reg.All()
	require.Len(all, 11)
	require.Equal("SCAN_0", all[0].name)
	require.Equal("SCAN_9", all[9].name)
	require.Equal("SCAN_10", all[10].name)

	got, ok := h.reg.Get("SCAN_1")
	require.True(ok)
	require.Same(sessions[1], got)
	require.Equal(uint64(11), h.reg.Metrics().SessionsCreated.Load())
}

func TestRegistry_CreateValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.reg.Create(EyeScan)
	require.ErrorIs(t, err, ErrNoTarget)

	_, err = h.reg.Create(Kind("bathtub"), h.rx)
	require.ErrorIs(t, err, ErrUnknownKind)
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = h.reg.Create(EyeScan, h.tx)
	require.ErrorIs(t, err, endpoint.ErrUnsupportedTarget)

	require.Empty(t, h.reg.All())
}

func TestRegistry_TargetOwnership(t *testing.T) {
	require := require.New(t)

	h := newHarness(t)
	first := h.create(t, EyeScan, h.rx)

	// the link resolves to the receiver first already owns
	_, err := h.reg.Create(SlicerScan, h.link)
	require.ErrorIs(err, ErrTargetOwned)
	require.ErrorIs(err, errs.ErrConflict)

	owner, ok := h.reg.Owner("gt0/rx")
	require.True(ok)
	require.Same(first, owner)

	require.NoError(h.reg.Delete(first))
	_, ok = h.reg.Owner("gt0/rx")
	require.False(ok)

	_, err = h.reg.Create(SlicerScan, h.link)
	require.NoError(err)
}

func TestRegistry_CreateIsAllOrNothing(t *testing.T) {
	require := require.New(t)

	h := newHarness(t)

	_, err := h.reg.Create(EyeScan, h.rx2, h.link, h.rx)
	require.ErrorIs(err, ErrTargetOwned, "rx is listed twice through the link")
	require.Empty(h.reg.All())
	_, ok := h.reg.Owner("gt1/rx")
	require.False(ok, "a failed creation releases every target it took")

	h.rx2.Delete()
	_, err = h.reg.Create(EyeScan, h.rx, h.rx2)
	require.ErrorIs(err, errs.ErrStaleReference)
	_, ok = h.reg.Owner("gt0/rx")
	require.False(ok)

	sessions, err := h.reg.Create(EyeScan, h.rx)
	require.NoError(err)
	require.Len(sessions, 1)
}

func TestRegistry_DeletedSessionIsStale(t *testing.T) {
	require := require.New(t)

	h := newHarness(t)
	s := h.create(t, EyeScan, h.rx)
	require.NoError(h.reg.Delete(s))

	ctx := context.Background()
	checks := map[string]error{}
	_, checks["Name"] = s.Name()
	_, checks["Kind"] = s.Kind()
	_, _, checks["Endpoint"] = s.Endpoint()
	_, checks["Status"] = s.Status()
	_, checks["Progress"] = s.Progress()
	_, checks["StartTime"] = s.StartTime()
	_, checks["StopTime"] = s.StopTime()
	_, checks["Version"] = s.Version()
	_, checks["LastError"] = s.LastError()
	_, checks["Parameters"] = s.Parameters()
	_, checks["ScanData"] = s.ScanData()
	_, checks["Snapshot"] = s.Snapshot()
	checks["OnProgress"] = s.OnProgress(nil)
	checks["OnDone"] = s.OnDone(nil)
	checks["OnStop"] = s.OnStop(nil)
	checks["Start"] = s.Start(ctx)
	checks["Stop"] = s.Stop(ctx)
	checks["WaitTillDone"] = s.WaitTillDone(ctx)
	checks["GenerateReport"] = s.GenerateReport(func(string) {})
	checks["Delete"] = h.reg.Delete(s)

	for name, err := range checks {
		require.ErrorIs(err, ErrDeleted, name)
		require.ErrorIs(err, errs.ErrStaleReference, name)
	}

	_, ok := h.reg.Get("SCAN_0")
	require.False(ok)
	h.ch.AssertNotCalled(t, "StartScan", mock.Anything, mock.Anything)
}

func TestRegistry_DeleteRunningSession(t *testing.T) {
	require := require.New(t)

	h := newHarness(t)
	h.expectStart(9)
	h.ch.On("StopScan", mock.Anything, remote.Handle(9)).Return(nil).Once()

	s := h.create(t, EyeScan, h.rx)
	var stopped atomic.Bool
	require.NoError(s.OnStop(func(*Session, error) { stopped.Store(true) }))
	require.NoError(s.Start(context.Background(), WithShowProgress(false)))

	waited := make(chan error, 1)
	go func() { waited <- s.WaitTillDone(context.Background()) }()

	require.NoError(h.reg.Delete(s))
	require.ErrorIs(<-waited, ErrDeleted)

	// events after delete are dropped, no callback fires
	h.ch.Emit(remote.ScanAborted{Handle: 9})
	require.Eventually(func() bool { return h.reg.Metrics().DroppedEvents.Load() == 1 }, waitFor, time.Millisecond)
	require.False(stopped.Load())

	m := h.reg.Metrics()
	require.Equal(uint64(1), m.ScansAborted.Load())
	require.Equal(int64(0), m.ScansActive.Load())
	require.Equal(uint64(1), m.SessionsDeleted.Load())
	_, ok := h.reg.Owner("gt0/rx")
	require.False(ok)
	h.ch.AssertExpectations(t)
}

func TestRegistry_DeleteJoinsErrors(t *testing.T) {
	h := newHarness(t)
	sessions, err := h.reg.Create(EyeScan, h.rx, h.rx2)
	require.NoError(t, err)

	require.NoError(t, h.reg.Delete(sessions[0]))
	err = h.reg.Delete(sessions...)
	require.ErrorIs(t, err, ErrDeleted)
	require.Empty(t, h.reg.All(), "the live session is deleted despite the stale one")
}

func TestRegistry_Close(t *testing.T) {
	h := newHarness(t)
	h.create(t, EyeScan, h.rx)

	require.NoError(t, h.reg.Close())
	require.Empty(t, h.reg.All())

	_, err := h.reg.Create(EyeScan, h.rx2)
	require.ErrorIs(t, err, ErrRegistryClosed)
	require.ErrorIs(t, err, errs.ErrConflict)
}
