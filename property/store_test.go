package property

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arloliu/go-eyescan/errs"
	"github.com/arloliu/go-eyescan/remote"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testDefs() []Def {
	return []Def{
		{
			Name: "loopback", Description: "loopback mode", Type: String, Perms: PermAll, Default: "None",
			Domain: []any{"None", "Near-End PCS", "Near-End PMA"}, Groups: []string{"RX", "Advanced"},
		},
		{Name: "rx_pattern", Type: String, Perms: PermAll, Default: "PRBS 7"},
		{Name: "dwell", Type: Int, Perms: PermGet | PermSet, Default: 8},
		{Name: "status", Type: String, Perms: PermReadOnly, Kind: Computed, Default: "No link"},
		{Name: "ber", Type: Float, Perms: PermGet | PermRefresh, Kind: Computed},
		{Name: "reset", Type: Bool, Perms: PermSet | PermCommit, Default: false},
	}
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *remote.MockChannel) {
	t.Helper()

	ch := remote.NewMockChannel(1)
	s, err := NewStore("rx0", ch, testDefs(), opts...)
	require.NoError(t, err)

	return s, ch
}

func TestStore_CacheIsolation(t *testing.T) {
	require := require.New(t)

	s, ch := newTestStore(t)

	require.NoError(s.Set(map[string]any{"loopback": "Near-End PMA", "dwell": 16}))

	values, err := s.Get("loopback", "dwell")
	require.NoError(err)
	require.Equal(map[string]any{"loopback": "Near-End PMA", "dwell": int64(16)}, values)
	require.ElementsMatch([]string{"loopback", "dwell"}, s.Dirty())

	ch.AssertNotCalled(t, "CommitProperties", mock.Anything, mock.Anything, mock.Anything)
	ch.AssertNotCalled(t, "RefreshProperties", mock.Anything, mock.Anything, mock.Anything)
}

func TestStore_CommitThenSetKeepsHardwareValue(t *testing.T) {
	require := require.New(t)

	s, ch := newTestStore(t)
	hardware := map[string]any{}
	ch.On("CommitProperties", mock.Anything, "rx0", mock.Anything).
		Run(func(args mock.Arguments) {
			for k, v := range args.Get(2).(map[string]any) {
				hardware[k] = v
			}
		}).
		Return(nil)

	require.NoError(s.Set(map[string]any{"rx_pattern": "PRBS 31"}))
	require.NoError(s.Commit(context.Background()))
	require.Empty(s.Dirty())

	require.NoError(s.Set(map[string]any{"rx_pattern": "PRBS 15"}))

	values, err := s.Get("rx_pattern")
	require.NoError(err)
	require.Equal("PRBS 15", values["rx_pattern"])
	require.Equal("PRBS 31", hardware["rx_pattern"])
	ch.AssertNumberOfCalls(t, "CommitProperties", 1)
}

func TestStore_SetIsAllOrNothing(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
		target error
	}{
		{name: "value outside domain", values: map[string]any{"dwell": 32, "loopback": "Far-End"}, target: ErrInvalidValue},
		{name: "wrong type", values: map[string]any{"dwell": "long", "rx_pattern": "PRBS 9"}, target: ErrInvalidValue},
		{name: "fractional int", values: map[string]any{"dwell": 1.5}, target: ErrInvalidValue},
		{name: "unknown name", values: map[string]any{"dwell": 32, "nope": 1}, target: ErrUnknownProperty},
		{name: "computed", values: map[string]any{"dwell": 32, "status": "Link up"}, target: ErrPermissionDenied},
		{name: "not settable", values: map[string]any{"dwell": 32, "ber": 0.5}, target: ErrPermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t)

			err := s.Set(tt.values)
			require.ErrorIs(t, err, tt.target)

			values, err := s.Get("dwell", "rx_pattern", "loopback")
			require.NoError(t, err)
			require.Equal(t, map[string]any{"dwell": int64(8), "rx_pattern": "PRBS 7", "loopback": "None"}, values)
			require.Empty(t, s.Dirty())
		})
	}
}

func TestStore_ErrorCategories(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.Set(map[string]any{"status": "x"})
	require.ErrorIs(t, err, errs.ErrPermission)

	_, err = s.Get("nope")
	require.ErrorIs(t, err, errs.ErrValidation)

	err = s.Set(map[string]any{"loopback": "Far-End"})
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestStore_PermissionsFailClosed(t *testing.T) {
	require := require.New(t)

	s, ch := newTestStore(t)
	ctx := context.Background()

	_, err := s.Get("reset")
	require.ErrorIs(err, ErrPermissionDenied, "GET without GET permission")

	require.NoError(s.Set(map[string]any{"dwell": 4}))
	err = s.Commit(ctx, "dwell")
	require.ErrorIs(err, ErrPermissionDenied, "COMMIT without COMMIT permission")

	err = s.Commit(ctx, "rx_pattern", "dwell")
	require.ErrorIs(err, ErrPermissionDenied, "permissions are checked before the first request")

	_, err = s.Refresh(ctx, "dwell")
	require.ErrorIs(err, ErrPermissionDenied, "REFRESH without REFRESH permission")

	ch.AssertNotCalled(t, "CommitProperties", mock.Anything, mock.Anything, mock.Anything)
	ch.AssertNotCalled(t, "RefreshProperties", mock.Anything, mock.Anything, mock.Anything)

	// an implicit commit skips dirty properties that cannot be committed
	require.NoError(s.Commit(ctx))
	require.Equal([]string{"dwell"}, s.Dirty())
}

func TestStore_CommitReportsPerNameFailures(t *testing.T) {
	require := require.New(t)

	s, ch := newTestStore(t)
	ch.On("CommitProperties", mock.Anything, "rx0", map[string]any{"loopback": "Near-End PCS"}).
		Return(remote.ErrRejected).Once()
	ch.On("CommitProperties", mock.Anything, "rx0", map[string]any{"rx_pattern": "PRBS 9"}).
		Return(nil).Once()

	require.NoError(s.Set(map[string]any{"loopback": "Near-End PCS", "rx_pattern": "PRBS 9"}))

	err := s.Commit(context.Background(), "loopback", "rx_pattern")
	require.Error(err)
	require.ErrorIs(err, errs.ErrRemote)
	require.ErrorIs(err, remote.ErrRejected)

	var cerr *CommitError
	require.ErrorAs(err, &cerr)
	require.Equal([]string{"rx_pattern"}, cerr.Committed)
	require.Len(cerr.Failed, 1)
	require.Contains(cerr.Failed, "loopback")
	require.Contains(err.Error(), "1 of 2 properties failed")

	require.Equal([]string{"loopback"}, s.Dirty())

	values, err := s.Get("loopback")
	require.NoError(err)
	require.Equal("Near-End PCS", values["loopback"], "a failed commit leaves the cache unchanged")
	ch.AssertExpectations(t)
}

func TestStore_Refresh(t *testing.T) {
	require := require.New(t)

	s, ch := newTestStore(t)
	ch.On("RefreshProperties", mock.Anything, "rx0", []string{"loopback", "ber"}).
		Return(map[string]any{"loopback": "Near-End PMA", "ber": 1e-9}, nil).Once()

	require.NoError(s.Set(map[string]any{"loopback": "Near-End PCS"}))

	fresh, err := s.Refresh(context.Background(), "loopback", "ber")
	require.NoError(err)
	require.Equal(map[string]any{"loopback": "Near-End PMA", "ber": 1e-9}, fresh)

	values, err := s.Get("loopback", "ber")
	require.NoError(err)
	require.Equal(fresh, values)
	require.Empty(s.Dirty())
	ch.AssertExpectations(t)
}

func TestStore_RefreshAllUsesRefreshableNames(t *testing.T) {
	s, ch := newTestStore(t)
	ch.On("RefreshProperties", mock.Anything, "rx0", []string{"loopback", "rx_pattern", "status", "ber"}).
		Return(map[string]any{"loopback": "None", "rx_pattern": "PRBS 7", "status": "Link up", "ber": 0}, nil).Once()

	fresh, err := s.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Link up", fresh["status"])
	require.Equal(t, float64(0), fresh["ber"])
	ch.AssertExpectations(t)
}

func TestStore_RefreshMalformed(t *testing.T) {
	tests := []struct {
		name  string
		reply map[string]any
	}{
		{name: "missing value", reply: map[string]any{"rx_pattern": "PRBS 7"}},
		{name: "wrong type", reply: map[string]any{"rx_pattern": "PRBS 7", "status": 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ch := newTestStore(t)
			ch.On("RefreshProperties", mock.Anything, "rx0", mock.Anything).Return(tt.reply, nil)

			_, err := s.Refresh(context.Background(), "rx_pattern", "status")
			require.ErrorIs(t, err, remote.ErrMalformed)
			require.ErrorIs(t, err, errs.ErrRemote)

			values, err := s.Get("status")
			require.NoError(t, err)
			require.Equal(t, "No link", values["status"], "a malformed reply does not touch the cache")
		})
	}
}

func TestStore_RefreshRetry(t *testing.T) {
	require := require.New(t)

	s, ch := newTestStore(t, WithRefreshRetry(time.Second, nil))
	ch.On("RefreshProperties", mock.Anything, "rx0", []string{"status"}).
		Return(nil, remote.ErrTransport).Twice()
	ch.On("RefreshProperties", mock.Anything, "rx0", []string{"status"}).
		Return(map[string]any{"status": "Link up"}, nil).Once()

	fresh, err := s.Refresh(context.Background(), "status")
	require.NoError(err)
	require.Equal("Link up", fresh["status"])
	ch.AssertNumberOfCalls(t, "RefreshProperties", 3)
}

func TestStore_RefreshRetryStopsOnPermanentError(t *testing.T) {
	s, ch := newTestStore(t, WithRefreshRetry(time.Second, nil))
	ch.On("RefreshProperties", mock.Anything, "rx0", []string{"status"}).
		Return(nil, remote.ErrRejected)

	_, err := s.Refresh(context.Background(), "status")
	require.ErrorIs(t, err, remote.ErrRejected)
	ch.AssertNumberOfCalls(t, "RefreshProperties", 1)
}

func TestStore_Report(t *testing.T) {
	require := require.New(t)

	s, _ := newTestStore(t)
	require.NoError(s.Set(map[string]any{"loopback": "Near-End PCS"}))

	report, err := s.Report()
	require.NoError(err)
	require.Len(report, len(testDefs()))

	lb := report["loopback"]
	require.Equal("loopback mode", lb.Description)
	require.Equal(PermAll, lb.Perms)
	require.Equal("None", lb.Default)
	require.Equal("Near-End PCS", lb.Value)
	require.Equal(Normal, lb.Kind)
	require.Equal([]string{"RX", "Advanced"}, lb.Groups)
	require.Equal([]any{"None", "Near-End PCS", "Near-End PMA"}, lb.Domain)

	st := report["status"]
	require.Nil(st.Domain, "only enumerated properties list valid values")
	require.Equal(Computed, st.Kind)
	require.Equal("GET|REFRESH", st.Perms.String())

	_, err = s.Report("nope")
	require.ErrorIs(err, ErrUnknownProperty)
}

func TestChildStore(t *testing.T) {
	require := require.New(t)

	parent, ch := newTestStore(t)
	child, err := NewChildStore("link0", parent, []string{"loopback", "status"}, []Def{
		{Name: "link_status", Type: String, Perms: PermReadOnly, Default: "Down"},
	})
	require.NoError(err)
	require.Same(parent, child.Parent())

	require.Equal([]string{"loopback", "status", "link_status"}, child.Names())
	require.False(child.Has("rx_pattern"), "names outside the mask are not exposed")

	require.NoError(child.Set(map[string]any{"loopback": "Near-End PMA"}))
	values, err := parent.Get("loopback")
	require.NoError(err)
	require.Equal("Near-End PMA", values["loopback"], "the child writes through to the parent cache")
	require.Equal([]string{"loopback"}, child.Dirty())

	ch.On("CommitProperties", mock.Anything, "rx0", map[string]any{"loopback": "Near-End PMA"}).Return(nil).Once()
	require.NoError(child.Commit(context.Background()))
	require.Empty(parent.Dirty())

	ch.On("RefreshProperties", mock.Anything, "rx0", []string{"status"}).
		Return(map[string]any{"status": "Link up"}, nil).Once()
	ch.On("RefreshProperties", mock.Anything, "link0", []string{"link_status"}).
		Return(map[string]any{"link_status": "Up"}, nil).Once()

	fresh, err := child.Refresh(context.Background(), "status", "link_status")
	require.NoError(err)
	require.Equal(map[string]any{"status": "Link up", "link_status": "Up"}, fresh)
	ch.AssertExpectations(t)
}

func TestChildStore_MaskMustExistInParent(t *testing.T) {
	parent, _ := newTestStore(t)

	_, err := NewChildStore("link0", parent, []string{"loopback", "tx_pattern"}, nil)
	require.ErrorIs(t, err, ErrUnknownProperty)

	_, err = NewChildStore("link0", parent, []string{"loopback"}, []Def{{Name: "loopback", Type: String, Perms: PermAll}})
	require.ErrorIs(t, err, ErrInvalidDef)

	_, err = NewChildStore("link0", nil, nil, nil)
	require.ErrorIs(t, err, ErrInvalidDef)
}

func TestNewStore_InvalidDefs(t *testing.T) {
	tests := []struct {
		name string
		defs []Def
	}{
		{name: "empty name", defs: []Def{{Type: Int}}},
		{name: "duplicate", defs: []Def{{Name: "a", Type: Int}, {Name: "a", Type: Int}}},
		{name: "default of wrong type", defs: []Def{{Name: "a", Type: Int, Default: "x"}}},
		{name: "default outside domain", defs: []Def{{Name: "a", Type: Int, Default: 3, Domain: []any{1, 2}}}},
		{name: "domain of wrong type", defs: []Def{{Name: "a", Type: Bool, Domain: []any{"yes"}}}},
		{name: "unknown type", defs: []Def{{Name: "a", Type: ValueType(9)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStore("rx0", remote.NewMockChannel(0), tt.defs)
			require.ErrorIs(t, err, ErrInvalidDef)
			require.True(t, errors.Is(err, errs.ErrValidation))
		})
	}
}

func TestPermission_String(t *testing.T) {
	require.Equal(t, "NONE", PermNone.String())
	require.Equal(t, "GET|SET|REFRESH|COMMIT", PermAll.String())
	require.True(t, PermAll.Has(PermSet|PermCommit))
	require.False(t, PermReadOnly.Has(PermSet))
}
