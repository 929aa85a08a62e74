// Package watch implements property watches.
//
// A property may have at most one active watch. Change events arrive from the dispatcher in batches;
// the watchlist groups them per entry and hands each group to the entry's listener on the watchlist's
// own delivery task, never on the dispatcher or inside Add.
package watch

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-eyescan/internal/queue"
	"github.com/arloliu/go-eyescan/internal/task"
	"github.com/arloliu/go-eyescan/logger"
	"github.com/arloliu/go-eyescan/remote"
	"github.com/puzpuzpuz/xsync/v3"
)

// Change is one reported hardware value change.
type Change struct {
	ObjectID string
	Name     string
	Value    any
}

// Listener receives the changes of the properties its entry watches, in event order.
type Listener func(changes []Change)

// key identifies one property of one object.
type key struct {
	objectID string
	name     string
}

// Entry is an active watch on one or more properties of one object.
type Entry struct {
	id       uint64
	objectID string
	listener Listener

	mu    sync.Mutex
	names []string
}

// ID returns the entry id, unique within its watchlist.
func (e *Entry) ID() uint64 {
	return e.id
}

// ObjectID returns the watched object.
func (e *Entry) ObjectID() string {
	return e.objectID
}

// Names returns the names still watched by the entry.
func (e *Entry) Names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return slices.Clone(e.names)
}

// Active reports whether the entry still watches at least one name.
func (e *Entry) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.names) > 0
}

func (e *Entry) drop(name string) {
	e.mu.Lock()
	e.names = slices.DeleteFunc(e.names, func(n string) bool { return n == name })
	e.mu.Unlock()
}

type delivery struct {
	entry   *Entry
	changes []Change
}

// Stats are the watchlist counters.
type Stats struct {
	Delivered atomic.Uint64 // changes handed to listeners
	Unwatched atomic.Uint64 // changes of properties without a watch
}

// Watchlist tracks watch entries and delivers change batches to them.
type Watchlist struct {
	mgr    *task.Manager
	logger logger.Logger
	mb     *queue.Mailbox[delivery]

	watches *xsync.MapOf[key, *Entry]
	// addMu serializes Add so that a conflicting call never leaves a partial registration visible
	addMu  sync.Mutex
	seq    atomic.Uint64
	closed atomic.Bool
	stats  Stats
}

// New creates a watchlist whose deliveries run on a task of mgr. Call Start before use.
func New(mgr *task.Manager, l logger.Logger) *Watchlist {
	if l == nil {
		l = logger.GetLogger()
	}

	return &Watchlist{
		mgr:     mgr,
		logger:  l.With("component", "watch"),
		mb:      queue.NewMailbox[delivery](16),
		watches: xsync.NewMapOf[key, *Entry](),
	}
}

// Start starts the delivery task.
func (w *Watchlist) Start() error {
	return task.StartMailbox(w.mgr, "watchlist", w.mb, w.deliver)
}

// Close removes every watch and stops accepting changes. Queued deliveries still run.
func (w *Watchlist) Close() {
	if !w.closed.CompareAndSwap(false, true) {
		return
	}
	w.watches.Clear()
	w.mb.Close()
}

// Stats returns the watchlist counters.
func (w *Watchlist) Stats() *Stats {
	return &w.stats
}

// Add watches names of objectID with listener. It fails with ErrAlreadyWatched, registering nothing,
// if any name already has an active watch.
func (w *Watchlist) Add(objectID string, names []string, listener Listener) (*Entry, error) {
	if w.closed.Load() {
		return nil, ErrClosed
	}
	if listener == nil {
		return nil, fmt.Errorf("%w: nil listener", ErrInvalidWatch)
	}
	names = slices.Compact(slices.Sorted(slices.Values(names)))
	if len(names) == 0 || names[0] == "" {
		return nil, fmt.Errorf("%w: no property names", ErrInvalidWatch)
	}

	w.addMu.Lock()
	defer w.addMu.Unlock()

	for _, name := range names {
		if _, ok := w.watches.Load(key{objectID, name}); ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrAlreadyWatched, objectID, name)
		}
	}

	e := &Entry{
		id:       w.seq.Add(1),
		objectID: objectID,
		listener: listener,
		names:    names,
	}
	for _, name := range names {
		w.watches.Store(key{objectID, name}, e)
	}
	w.logger.Debug("watch added", "object", objectID, "names", names, "entry", e.id)

	return e, nil
}

// Remove stops watching names of objectID. Names without an active watch are ignored.
// An entry whose last name is removed is gone from Entries.
func (w *Watchlist) Remove(objectID string, names ...string) {
	for _, name := range names {
		e, ok := w.watches.LoadAndDelete(key{objectID, name})
		if !ok {
			continue
		}
		e.drop(name)
		w.logger.Debug("watch removed", "object", objectID, "name", name, "entry", e.id)
	}
}

// RemoveEntry removes every name e still watches.
func (w *Watchlist) RemoveEntry(e *Entry) {
	if e == nil {
		return
	}
	w.Remove(e.objectID, e.Names()...)
}

// Lookup returns the entry watching name of objectID.
func (w *Watchlist) Lookup(objectID, name string) (*Entry, bool) {
	return w.watches.Load(key{objectID, name})
}

// Entries returns every active entry ordered by id.
func (w *Watchlist) Entries() []*Entry {
	seen := make(map[*Entry]struct{})
	w.watches.Range(func(_ key, e *Entry) bool {
		seen[e] = struct{}{}
		return true
	})

	out := make([]*Entry, 0, len(seen))
	for e := range seen {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *Entry) int { return cmp.Compare(a.id, b.id) })

	return out
}

// Notify groups a batch of change events per watching entry and queues them for delivery.
// It runs on the dispatcher task and never calls listeners itself.
func (w *Watchlist) Notify(batch []remote.PropertyChanged) {
	if w.closed.Load() {
		return
	}

	var order []*Entry
	groups := make(map[*Entry][]Change)
	for _, ev := range batch {
		e, ok := w.watches.Load(key{ev.ObjectID, ev.Name})
		if !ok {
			w.stats.Unwatched.Add(1)
			continue
		}
		if _, ok := groups[e]; !ok {
			order = append(order, e)
		}
		groups[e] = append(groups[e], Change(ev))
	}

	for _, e := range order {
		if !w.mb.Push(delivery{entry: e, changes: groups[e]}) {
			return
		}
	}
}

func (w *Watchlist) deliver(items []delivery) {
	for _, d := range items {
		// names removed after the change was queued are not delivered
		changes := slices.DeleteFunc(d.changes, func(c Change) bool {
			e, ok := w.watches.Load(key{c.ObjectID, c.Name})
			return !ok || e != d.entry
		})
		if len(changes) == 0 {
			continue
		}

		w.stats.Delivered.Add(uint64(len(changes)))
		w.mgr.CallWithRecover("watch listener", func() { d.entry.listener(changes) })
	}
}
