package scan

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-eyescan/endpoint"
	"github.com/arloliu/go-eyescan/internal/dispatch"
	"github.com/arloliu/go-eyescan/internal/task"
	"github.com/arloliu/go-eyescan/logger"
	"github.com/arloliu/go-eyescan/remote"
	"github.com/arloliu/go-eyescan/scandata"
	"github.com/puzpuzpuz/xsync/v3"
)

// stopTimeout bounds the best-effort stop request sent when a running session is deleted.
const stopTimeout = 5 * time.Second

// Remote is the part of the remote channel scan sessions use.
type Remote interface {
	CommitProperties(ctx context.Context, objectID string, values map[string]any) error
	StartScan(ctx context.Context, req remote.ScanRequest) (remote.ScanStart, error)
	StopScan(ctx context.Context, h remote.Handle) error
}

// Router routes the scan events of a handle to a session.
type Router interface {
	Attach(h remote.Handle, handler dispatch.ScanHandler) bool
	Detach(h remote.Handle) bool
}

// Config configures a Registry.
type Config struct {
	Remote Remote
	Router Router
	// Tasks runs the per-session callback tasks.
	Tasks   *task.Manager
	Logger  logger.Logger
	Metrics *Metrics

	// ShowProgress is the default of the show_progress start option.
	ShowProgress bool
	// NewIndicator creates progress indicators. Nil disables them.
	NewIndicator IndicatorFactory
	// OpenAreaMode selects the open area definition of eye summaries.
	OpenAreaMode scandata.OpenAreaMode
}

// Registry creates sessions and tracks them and the targets they own.
type Registry struct {
	cfg     Config
	logger  logger.Logger
	metrics *Metrics

	sessions *xsync.MapOf[string, *Session]
	// owners maps a target endpoint ID to the session that owns it
	owners *xsync.MapOf[string, *Session]
	seq    atomic.Uint64
	closed atomic.Bool
}

// NewRegistry creates a session registry.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Remote == nil || cfg.Router == nil || cfg.Tasks == nil {
		return nil, errors.New("scan registry needs a remote, a router and a task manager")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &Metrics{}
	}

	return &Registry{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "scan"),
		metrics:  cfg.Metrics,
		sessions: xsync.NewMapOf[string, *Session](),
		owners:   xsync.NewMapOf[string, *Session](),
	}, nil
}

// Metrics returns the registry counters.
func (r *Registry) Metrics() *Metrics {
	return r.metrics
}

func (r *Registry) ctx() context.Context {
	return r.cfg.Tasks.Context()
}

// Create creates one session of kind per target. A link target scans its receiver.
//
// Creation is all or nothing: if any target is invalid, deleted, listed twice or already owned by
// another session, no session is created.
func (r *Registry) Create(kind Kind, targets ...endpoint.Endpoint) ([]*Session, error) {
	if r.closed.Load() {
		return nil, ErrRegistryClosed
	}
	if len(targets) == 0 {
		return nil, ErrNoTarget
	}
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}

	created := make([]*Session, 0, len(targets))
	rollback := func() {
		for _, s := range created {
			r.release(s)
			s.callbacks.Close()
		}
	}

	for _, ep := range targets {
		target, err := endpoint.ScanTarget(ep)
		if err != nil {
			rollback()
			return nil, err
		}

		params, err := NewParameterSet(kind)
		if err != nil {
			rollback()
			return nil, err
		}

		name := fmt.Sprintf("SCAN_%d", r.seq.Add(1)-1)
		s := newSession(r, name, kind, ep, target, params)

		if err := r.acquire(s); err != nil {
			rollback()
			return nil, err
		}
		created = append(created, s)
	}

	for _, s := range created {
		if err := task.StartMailbox(r.cfg.Tasks, "scan:"+s.name, s.callbacks, s.runCallbacks); err != nil {
			rollback()
			return nil, err
		}
	}

	for _, s := range created {
		r.sessions.Store(s.name, s)
		r.metrics.SessionsCreated.Add(1)
		s.logger.Debug("scan session created", "kind", kind, "endpoint", s.endpoint.ID())
	}

	return created, nil
}

// acquire makes s the owner of its target. A deleted session never becomes an owner.
func (r *Registry) acquire(s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted {
		return fmt.Errorf("%w: %s", ErrDeleted, s.name)
	}

	owner, loaded := r.owners.LoadOrStore(s.target.ID(), s)
	if loaded && owner != s {
		return fmt.Errorf("%w: %s is owned by %s", ErrTargetOwned, s.target.ID(), owner.name)
	}

	return nil
}

// release gives up the target of s if s owns it.
func (r *Registry) release(s *Session) {
	r.owners.Compute(s.target.ID(), func(owner *Session, loaded bool) (*Session, bool) {
		if loaded && owner != s {
			return owner, false
		}

		return nil, true
	})
}

// Owner returns the session that owns the target with the given endpoint ID.
func (r *Registry) Owner(targetID string) (*Session, bool) {
	return r.owners.Load(targetID)
}

// Get returns the live session called name.
func (r *Registry) Get(name string) (*Session, bool) {
	return r.sessions.Load(name)
}

// All returns every live session ordered by name.
func (r *Registry) All() []*Session {
	out := make([]*Session, 0, r.sessions.Size())
	r.sessions.Range(func(_ string, s *Session) bool {
		out = append(out, s)
		return true
	})
	slices.SortFunc(out, func(a, b *Session) int {
		if len(a.name) != len(b.name) {
			return len(a.name) - len(b.name)
		}
		return strings.Compare(a.name, b.name)
	})

	return out
}

// Delete deletes sessions. A running session is stopped on a best-effort basis first; waiters are
// released with ErrDeleted. Deleting a session twice returns ErrDeleted.
func (r *Registry) Delete(sessions ...*Session) error {
	var failed []error
	for _, s := range sessions {
		if err := r.delete(s); err != nil {
			failed = append(failed, err)
		}
	}

	return errors.Join(failed...)
}

func (r *Registry) delete(s *Session) error {
	if s == nil {
		return fmt.Errorf("%w: nil session", ErrDeleted)
	}

	h, running, started, ok := s.markDeleted()
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeleted, s.name)
	}

	if running {
		ctx, cancel := context.WithTimeout(r.ctx(), stopTimeout)
		if err := r.cfg.Remote.StopScan(ctx, h); err != nil {
			s.logger.Warn("best-effort stop of deleted scan failed", "handle", h, "error", err)
		}
		cancel()
		r.metrics.incAborted()
	}
	if started {
		r.cfg.Router.Detach(h)
	}

	r.release(s)
	r.sessions.Delete(s.name)
	s.callbacks.Close()
	r.metrics.SessionsDeleted.Add(1)
	s.logger.Info("scan session deleted", "was_running", running)

	return nil
}

// Close deletes every session and rejects further creation.
func (r *Registry) Close() error {
	r.closed.Store(true)
	return r.Delete(r.All()...)
}
