package property

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/arloliu/go-eyescan/internal/util"
	"github.com/arloliu/go-eyescan/logger"
	"github.com/arloliu/go-eyescan/remote"
	"github.com/cenkalti/backoff"
)

// Remote is the part of the remote channel a Store talks to.
type Remote interface {
	CommitProperties(ctx context.Context, objectID string, values map[string]any) error
	RefreshProperties(ctx context.Context, objectID string, names []string) (map[string]any, error)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger of the store.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRefreshRetry retries failed refresh requests with exponential backoff for at most maxElapsed,
// as long as retryable returns true for the error. A nil retryable retries transport failures only.
//
// Commits are never retried: a commit that reached the hardware must not be applied twice.
func WithRefreshRetry(maxElapsed time.Duration, retryable func(error) bool) Option {
	return func(s *Store) {
		if maxElapsed <= 0 {
			s.retry = nil
			return
		}
		if retryable == nil {
			retryable = remote.IsTransient
		}
		s.retry = &retryPolicy{maxElapsed: maxElapsed, retryable: retryable}
	}
}

type retryPolicy struct {
	maxElapsed time.Duration
	retryable  func(error) bool
}

type entry struct {
	def   Def
	value any
	dirty bool
}

// Store is the property cache of one remote object.
type Store struct {
	objectID string
	remote   Remote
	logger   logger.Logger
	retry    *retryPolicy

	parent *Store
	// names delegated to the parent, in declaration order
	mask []string

	// entries and order are immutable after construction; entry values are guarded by mu
	entries map[string]*entry
	order   []string
	mu      sync.RWMutex
}

// NewStore creates the property cache of objectID.
func NewStore(objectID string, r Remote, defs []Def, opts ...Option) (*Store, error) {
	s := &Store{
		objectID: objectID,
		remote:   r,
		logger:   logger.With("component", "property", "object", objectID),
		entries:  make(map[string]*entry, len(defs)),
	}

	for _, opt := range opts {
		opt(s)
	}

	if err := s.addDefs(defs); err != nil {
		return nil, err
	}

	return s, nil
}

// NewChildStore creates the property cache of objectID that exposes the mask subset of parent's
// properties in addition to its own defs. Every name in mask must exist in parent.
//
// The child inherits the parent's remote and retry policy unless opts override them.
func NewChildStore(objectID string, parent *Store, mask []string, defs []Def, opts ...Option) (*Store, error) {
	if parent == nil {
		return nil, fmt.Errorf("%w: %s: nil parent store", ErrInvalidDef, objectID)
	}

	mask = util.Dedup(mask)
	for _, name := range mask {
		if !parent.Has(name) {
			return nil, fmt.Errorf("%w: %s: masked property %q is not defined by parent %s",
				ErrUnknownProperty, objectID, name, parent.objectID)
		}
	}

	s := &Store{
		objectID: objectID,
		remote:   parent.remote,
		logger:   logger.With("component", "property", "object", objectID),
		retry:    parent.retry,
		parent:   parent,
		mask:     mask,
		entries:  make(map[string]*entry, len(defs)),
	}

	for _, opt := range opts {
		opt(s)
	}

	if err := s.addDefs(defs); err != nil {
		return nil, err
	}

	for _, name := range s.order {
		if slices.Contains(mask, name) {
			return nil, fmt.Errorf("%w: %s: property %q is both masked and defined", ErrInvalidDef, objectID, name)
		}
	}

	return s, nil
}

func (s *Store) addDefs(defs []Def) error {
	for _, d := range defs {
		nd, err := d.normalize()
		if err != nil {
			return err
		}
		if _, ok := s.entries[nd.Name]; ok {
			return fmt.Errorf("%w: %s: duplicate property %q", ErrInvalidDef, s.objectID, nd.Name)
		}
		s.entries[nd.Name] = &entry{def: nd, value: nd.Default}
		s.order = append(s.order, nd.Name)
	}

	return nil
}

// ObjectID returns the remote object the store caches.
func (s *Store) ObjectID() string {
	return s.objectID
}

// Parent returns the parent store, or nil.
func (s *Store) Parent() *Store {
	return s.parent
}

// Has reports whether name is a property of the object, its own or delegated.
func (s *Store) Has(name string) bool {
	_, _, err := s.resolve(name)
	return err == nil
}

// Names returns every property name: delegated names first, then own names, in declaration order.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.mask)+len(s.order))
	names = append(names, s.mask...)

	return append(names, s.order...)
}

// Def returns the declaration of name.
func (s *Store) Def(name string) (Def, bool) {
	_, e, err := s.resolve(name)
	if err != nil {
		return Def{}, false
	}

	return e.def, true
}

// resolve finds the store that owns name.
func (s *Store) resolve(name string) (*Store, *entry, error) {
	if e, ok := s.entries[name]; ok {
		return s, e, nil
	}
	if s.parent != nil && slices.Contains(s.mask, name) {
		return s.parent.resolve(name)
	}

	return nil, nil, fmt.Errorf("%w: %s has no property %q", ErrUnknownProperty, s.objectID, name)
}

func (s *Store) namesOrAll(names []string) []string {
	if len(names) == 0 {
		return s.Names()
	}

	return util.Dedup(names)
}

// Get returns the cached values of names, or of every property when names is empty.
// It never talks to the remote service.
func (s *Store) Get(names ...string) (map[string]any, error) {
	names = s.namesOrAll(names)
	out := make(map[string]any, len(names))

	for _, name := range names {
		owner, e, err := s.resolve(name)
		if err != nil {
			return nil, err
		}
		if !e.def.Perms.Has(PermGet) {
			return nil, fmt.Errorf("%w: GET %s.%s", ErrPermissionDenied, s.objectID, name)
		}

		owner.mu.RLock()
		out[name] = e.value
		owner.mu.RUnlock()
	}

	return out, nil
}

// Set validates values against each property's type, domain and permissions and stores them in
// the cache. Either every value is applied or none is.
func (s *Store) Set(values map[string]any) error {
	type pending struct {
		owner *Store
		e     *entry
		value any
	}

	updates := make([]pending, 0, len(values))
	for _, name := range util.SortedKeys(values) {
		owner, e, err := s.resolve(name)
		if err != nil {
			return err
		}
		if e.def.Kind == Computed {
			return fmt.Errorf("%w: SET on computed property %s.%s", ErrPermissionDenied, s.objectID, name)
		}
		if !e.def.Perms.Has(PermSet) {
			return fmt.Errorf("%w: SET %s.%s", ErrPermissionDenied, s.objectID, name)
		}

		v, err := e.def.check(values[name])
		if err != nil {
			return fmt.Errorf("%s.%s: %w", s.objectID, name, err)
		}
		updates = append(updates, pending{owner: owner, e: e, value: v})
	}

	for _, u := range updates {
		u.owner.mu.Lock()
		u.e.value = u.value
		u.e.dirty = true
		u.owner.mu.Unlock()
	}

	return nil
}

// Dirty returns the names whose cached value was set but not committed yet.
func (s *Store) Dirty() []string {
	var dirty []string
	for _, name := range s.Names() {
		owner, e, err := s.resolve(name)
		if err != nil {
			continue
		}
		owner.mu.RLock()
		if e.dirty {
			dirty = append(dirty, name)
		}
		owner.mu.RUnlock()
	}

	return dirty
}

// Commit pushes the cached values of names to the remote service, one request per property.
// An empty names list commits every dirty property that allows COMMIT.
//
// Permissions of every name are checked before the first request. Remote failures do not stop
// the remaining names; they are reported together in a *CommitError and leave the failed
// properties dirty.
func (s *Store) Commit(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		for _, name := range s.Dirty() {
			if def, _ := s.Def(name); def.Perms.Has(PermCommit) {
				names = append(names, name)
			}
		}
	}
	names = util.Dedup(names)

	for _, name := range names {
		_, e, err := s.resolve(name)
		if err != nil {
			return err
		}
		if !e.def.Perms.Has(PermCommit) {
			return fmt.Errorf("%w: COMMIT %s.%s", ErrPermissionDenied, s.objectID, name)
		}
	}

	var cerr *CommitError
	committed := make([]string, 0, len(names))
	for _, name := range names {
		owner, e, _ := s.resolve(name)
		if err := owner.commitOne(ctx, name, e); err != nil {
			if cerr == nil {
				cerr = &CommitError{ObjectID: s.objectID, Failed: make(map[string]error)}
			}
			cerr.Failed[name] = err
			continue
		}
		committed = append(committed, name)
	}

	if cerr != nil {
		cerr.Committed = committed
		s.logger.Warn("commit failed", "failed", len(cerr.Failed), "committed", len(committed))

		return cerr
	}

	return nil
}

func (s *Store) commitOne(ctx context.Context, name string, e *entry) error {
	s.mu.RLock()
	value := e.value
	s.mu.RUnlock()

	if value == nil {
		return fmt.Errorf("%w: %s.%s has no value to commit", ErrInvalidValue, s.objectID, name)
	}

	if err := s.remote.CommitProperties(ctx, s.objectID, map[string]any{name: value}); err != nil {
		return remote.Wrap("commit", s.objectID, err)
	}

	s.mu.Lock()
	if e.value == value {
		e.dirty = false
	}
	s.mu.Unlock()

	s.logger.Debug("property committed", "name", name, "value", value)

	return nil
}

// Refresh reads the live values of names from the remote service, overwrites the cache and returns
// the fresh values. An empty names list refreshes every property that allows REFRESH.
//
// Delegated names are refreshed through the parent object. A refresh overwrites uncommitted values.
func (s *Store) Refresh(ctx context.Context, names ...string) (map[string]any, error) {
	if len(names) == 0 {
		for _, name := range s.Names() {
			if def, _ := s.Def(name); def.Perms.Has(PermRefresh) {
				names = append(names, name)
			}
		}
	}
	names = util.Dedup(names)

	byOwner := make(map[*Store][]string)
	var owners []*Store
	for _, name := range names {
		owner, e, err := s.resolve(name)
		if err != nil {
			return nil, err
		}
		if !e.def.Perms.Has(PermRefresh) {
			return nil, fmt.Errorf("%w: REFRESH %s.%s", ErrPermissionDenied, s.objectID, name)
		}
		if _, ok := byOwner[owner]; !ok {
			owners = append(owners, owner)
		}
		byOwner[owner] = append(byOwner[owner], name)
	}

	out := make(map[string]any, len(names))
	for _, owner := range owners {
		values, err := owner.refreshOwn(ctx, byOwner[owner])
		if err != nil {
			return nil, err
		}
		for k, v := range values {
			out[k] = v
		}
	}

	return out, nil
}

func (s *Store) refreshOwn(ctx context.Context, names []string) (map[string]any, error) {
	live, err := s.fetch(ctx, names)
	if err != nil {
		return nil, remote.Wrap("refresh", s.objectID, err)
	}

	fresh := make(map[string]any, len(names))
	for _, name := range names {
		raw, ok := live[name]
		if !ok {
			return nil, remote.Wrap("refresh", s.objectID,
				fmt.Errorf("%w: missing value of %q", remote.ErrMalformed, name))
		}
		v, err := s.entries[name].def.Type.Coerce(raw)
		if err != nil {
			return nil, remote.Wrap("refresh", s.objectID,
				fmt.Errorf("%w: %s: %v", remote.ErrMalformed, name, err))
		}
		fresh[name] = v
	}

	s.mu.Lock()
	for name, v := range fresh {
		e := s.entries[name]
		e.value = v
		e.dirty = false
	}
	s.mu.Unlock()

	return fresh, nil
}

func (s *Store) fetch(ctx context.Context, names []string) (map[string]any, error) {
	if s.retry == nil {
		return s.remote.RefreshProperties(ctx, s.objectID, names)
	}

	var live map[string]any
	op := func() error {
		values, err := s.remote.RefreshProperties(ctx, s.objectID, names)
		if err != nil {
			if s.retry.retryable(err) {
				s.logger.Debug("refresh failed, retrying", "error", err)
				return err
			}
			return backoff.Permanent(err)
		}
		live = values

		return nil
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     10 * time.Millisecond,
		RandomizationFactor: 0.1,
		Multiplier:          2.,
		MaxInterval:         time.Second,
		MaxElapsedTime:      s.retry.maxElapsed,
		Clock:               backoff.SystemClock,
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}

	return live, nil
}

// Report returns the descriptors of names, or of every property when names is empty.
func (s *Store) Report(names ...string) (map[string]Descriptor, error) {
	names = s.namesOrAll(names)
	out := make(map[string]Descriptor, len(names))

	for _, name := range names {
		owner, e, err := s.resolve(name)
		if err != nil {
			return nil, err
		}

		owner.mu.RLock()
		value := e.value
		owner.mu.RUnlock()

		d := Descriptor{
			Name:        name,
			Description: e.def.Description,
			Type:        e.def.Type,
			Perms:       e.def.Perms,
			Default:     e.def.Default,
			Value:       value,
			Kind:        e.def.Kind,
			Groups:      slices.Clone(e.def.Groups),
		}
		if e.def.Enumerated() {
			d.Domain = slices.Clone(e.def.Domain)
		}
		out[name] = d
	}

	return out, nil
}
