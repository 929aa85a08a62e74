// Package eyescan is the client engine for remote serial-link eye scans.
//
// An Engine is the session context of one remote channel. It owns the event dispatcher, the endpoint
// registry, the scan session registry and the property watchlist, and tears all of them down on Close.
// Nothing is global: two engines on two channels are fully independent.
//
// Example Usage:
//
//	eng, err := eyescan.NewEngine(ctx, ch, eyescan.WithShowProgress(false))
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//
//	rx, _ := eng.NewEndpoint(endpoint.RX, "quad0/ch0/rx", "", endpoint.WithDefaultProperties())
//	tx, _ := eng.NewEndpoint(endpoint.TX, "quad0/ch0/tx", "", endpoint.WithDefaultProperties())
//	link, _ := eng.CreateLink(rx, tx)
//
//	s, _ := eng.CreateScan(scan.EyeScan, link)
//	_ = s.Start(ctx)
//	_ = s.WaitTillDone(ctx)
//	_ = s.GenerateReport(nil)
package eyescan

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/arloliu/go-eyescan/endpoint"
	"github.com/arloliu/go-eyescan/internal/dispatch"
	"github.com/arloliu/go-eyescan/internal/task"
	"github.com/arloliu/go-eyescan/logger"
	"github.com/arloliu/go-eyescan/metrics"
	"github.com/arloliu/go-eyescan/property"
	"github.com/arloliu/go-eyescan/remote"
	"github.com/arloliu/go-eyescan/scan"
	"github.com/arloliu/go-eyescan/watch"
	"github.com/puzpuzpuz/xsync/v3"
)

// Engine is the session context of one remote channel.
type Engine struct {
	cfg    *EngineConfig
	ch     remote.Channel
	logger logger.Logger

	tasks      *task.Manager
	dispatcher *dispatch.Dispatcher
	scans      *scan.Registry
	watches    *watch.Watchlist
	metrics    *scan.Metrics
	collector  *metrics.Collector

	endpoints *xsync.MapOf[string, *endpoint.Node]
	linkSeq   atomic.Uint64
	closed    atomic.Bool
}

// NewEngine creates an engine on ch and starts consuming its event stream.
// The engine stops when ctx is done or Close is called.
func NewEngine(ctx context.Context, ch remote.Channel, opts ...Option) (*Engine, error) {
	if ch == nil {
		return nil, fmt.Errorf("%w: nil remote channel", ErrInvalidOption)
	}

	cfg := defaultEngineConfig()
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	l := cfg.logger.With("component", "engine")
	e := &Engine{
		cfg:       cfg,
		ch:        ch,
		logger:    l,
		tasks:     task.NewManager(ctx, cfg.logger),
		metrics:   &scan.Metrics{},
		endpoints: xsync.NewMapOf[string, *endpoint.Node](),
	}

	e.watches = watch.New(e.tasks, cfg.logger)
	e.collector = metrics.NewCollector(cfg.metricsNamespace, metrics.Source{
		Scans:   e.metrics,
		Watches: e.watches.Stats(),
	})

	e.dispatcher = dispatch.New(e.tasks, ch, dispatch.Config{
		ParkedLimit:       cfg.parkedEventLimit,
		OnPropertyChanged: e.watches.Notify,
		OnDropped: func(_ remote.ScanEvent, reason string) {
			e.metrics.IncDropped()
			e.collector.ObserveDropped(reason)
		},
		Logger: cfg.logger,
	})

	indicator := cfg.indicatorFactory
	if indicator == nil {
		indicator = scan.SpinnerFactory(cfg.indicatorWriter, cfg.progressInterval)
	}

	var err error
	e.scans, err = scan.NewRegistry(scan.Config{
		Remote:       ch,
		Router:       e.dispatcher,
		Tasks:        e.tasks,
		Logger:       cfg.logger,
		Metrics:      e.metrics,
		ShowProgress: cfg.showProgress,
		NewIndicator: indicator,
		OpenAreaMode: cfg.openAreaMode,
	})
	if err != nil {
		e.shutdown()
		return nil, err
	}

	if err := e.watches.Start(); err != nil {
		e.shutdown()
		return nil, err
	}
	if err := e.dispatcher.Start(); err != nil {
		e.shutdown()
		return nil, err
	}

	l.Info("engine started", "show_progress", cfg.showProgress, "open_area_mode", cfg.openAreaMode)

	return e, nil
}

// Config returns the engine settings.
func (e *Engine) Config() *EngineConfig {
	return e.cfg
}

// Metrics returns the scan counters.
func (e *Engine) Metrics() *scan.Metrics {
	return e.metrics
}

// Collector returns a prometheus collector over the engine counters. Register it with a prometheus
// registry to export them.
func (e *Engine) Collector() *metrics.Collector {
	return e.collector
}

// Close deletes every scan session, stopping the running ones, removes every watch and stops the
// engine tasks. It waits at most the configured close timeout for them.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := e.scans.Close()
	e.shutdown()

	if !e.tasks.WaitTimeout(e.cfg.closeTimeout) {
		e.logger.Warn("engine tasks still running after close timeout", "tasks", e.tasks.TaskCount())
	}
	e.logger.Info("engine closed")

	return err
}

func (e *Engine) shutdown() {
	e.watches.Close()
	e.dispatcher.Close()
	e.tasks.Stop()
}

func (e *Engine) checkOpen() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	return nil
}

func (e *Engine) storeOptions() endpoint.Option {
	opts := []property.Option{property.WithLogger(e.cfg.logger)}
	if e.cfg.refreshRetry > 0 {
		opts = append(opts, property.WithRefreshRetry(e.cfg.refreshRetry, nil))
	}

	return endpoint.WithStoreOptions(opts...)
}

// NewEndpoint creates and registers an endpoint. The ID must be unique within the engine.
func (e *Engine) NewEndpoint(kind endpoint.Kind, id, name string, opts ...endpoint.Option) (*endpoint.Node, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if kind == endpoint.Link {
		return nil, fmt.Errorf("%w: use CreateLink for links", endpoint.ErrInvalidEndpoint)
	}

	opts = append([]endpoint.Option{e.storeOptions()}, opts...)
	n, err := endpoint.New(e.ch, kind, id, name, opts...)
	if err != nil {
		return nil, err
	}

	if _, loaded := e.endpoints.LoadOrStore(id, n); loaded {
		return nil, fmt.Errorf("%w: %s", ErrEndpointExists, id)
	}
	e.logger.Debug("endpoint created", "kind", kind, "id", id)

	return n, nil
}

// Endpoint returns the live endpoint with the given ID.
func (e *Engine) Endpoint(id string) (*endpoint.Node, bool) {
	n, ok := e.endpoints.Load(id)
	if !ok || n.Deleted() {
		return nil, false
	}

	return n, true
}

// CreateLink links a receiver to a transmitter. The link is named LINK_<n> and carries the default
// link properties.
func (e *Engine) CreateLink(rx, tx *endpoint.Node, opts ...endpoint.Option) (*endpoint.Node, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	name := fmt.Sprintf("LINK_%d", e.linkSeq.Add(1)-1)
	opts = append([]endpoint.Option{e.storeOptions(), endpoint.WithDefaultProperties()}, opts...)

	link, err := endpoint.NewLink(e.ch, name, name, rx, tx, opts...)
	if err != nil {
		return nil, err
	}

	if _, loaded := e.endpoints.LoadOrStore(link.ID(), link); loaded {
		return nil, fmt.Errorf("%w: %s", ErrEndpointExists, link.ID())
	}
	e.logger.Info("link created", "link", link.ID(), "rx", rx.ID(), "tx", tx.ID())

	return link, nil
}

// CreateLinks links rxs[i] to txs[i] for every i. It is all or nothing: if any pair is invalid no link
// is kept.
func (e *Engine) CreateLinks(rxs, txs []*endpoint.Node) ([]*endpoint.Node, error) {
	if len(rxs) != len(txs) {
		return nil, fmt.Errorf("%w: %d receivers, %d transmitters", ErrLinkMismatch, len(rxs), len(txs))
	}

	links := make([]*endpoint.Node, 0, len(rxs))
	for i := range rxs {
		link, err := e.CreateLink(rxs[i], txs[i])
		if err != nil {
			for _, l := range links {
				l.Delete()
				e.endpoints.Delete(l.ID())
			}

			return nil, err
		}
		links = append(links, link)
	}

	return links, nil
}

// GetAllLinks returns every live link ordered by ID.
func (e *Engine) GetAllLinks() []*endpoint.Node {
	var links []*endpoint.Node
	e.endpoints.Range(func(_ string, n *endpoint.Node) bool {
		if n.Kind() == endpoint.Link && !n.Deleted() {
			links = append(links, n)
		}
		return true
	})
	slices.SortFunc(links, func(a, b *endpoint.Node) int {
		if len(a.ID()) != len(b.ID()) {
			return cmp.Compare(len(a.ID()), len(b.ID()))
		}
		return cmp.Compare(a.ID(), b.ID())
	})

	return links
}

// DeleteLink deletes a link. It fails with ErrLinkBusy while a scan of the link's receiver is in
// progress; the receiver and transmitter stay intact.
func (e *Engine) DeleteLink(link *endpoint.Node) error {
	return e.DeleteLinks(link)
}

// DeleteLinks deletes links. No link is deleted if any of them is stale, not a link or busy.
func (e *Engine) DeleteLinks(links ...*endpoint.Node) error {
	for _, link := range links {
		if err := e.checkLinkDeletable(link); err != nil {
			return err
		}
	}

	for _, link := range links {
		link.Delete()
		e.endpoints.Delete(link.ID())
		e.logger.Info("link deleted", "link", link.ID())
	}

	return nil
}

func (e *Engine) checkLinkDeletable(link *endpoint.Node) error {
	if link == nil {
		return fmt.Errorf("%w: nil link", ErrNotLink)
	}
	if link.Deleted() {
		return fmt.Errorf("%w: link %s", endpoint.ErrStaleReference, link.ID())
	}
	if link.Kind() != endpoint.Link {
		return fmt.Errorf("%w: %s is %s", ErrNotLink, link.ID(), link.Kind())
	}

	owner, ok := e.scans.Owner(link.RX().ID())
	if !ok {
		return nil
	}
	if st, err := owner.Status(); err == nil && st == scan.InProgress {
		name, _ := owner.Name()
		return fmt.Errorf("%w: %s is scanned by %s", ErrLinkBusy, link.ID(), name)
	}

	return nil
}

// CreateScan creates a scan session of kind on target. A link target scans its receiver.
func (e *Engine) CreateScan(kind scan.Kind, target endpoint.Endpoint) (*scan.Session, error) {
	sessions, err := e.CreateScans(kind, target)
	if err != nil {
		return nil, err
	}

	return sessions[0], nil
}

// CreateScans creates one scan session of kind per target, all or nothing.
func (e *Engine) CreateScans(kind scan.Kind, targets ...endpoint.Endpoint) ([]*scan.Session, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	return e.scans.Create(kind, targets...)
}

// GetAllScans returns every live scan session ordered by name.
func (e *Engine) GetAllScans() []*scan.Session {
	return e.scans.All()
}

// Scan returns the live scan session called name.
func (e *Engine) Scan(name string) (*scan.Session, bool) {
	return e.scans.Get(name)
}

// DeleteScan deletes a scan session, stopping it first if it is running.
func (e *Engine) DeleteScan(s *scan.Session) error {
	return e.scans.Delete(s)
}

// DeleteScans deletes scan sessions. Every session is processed; the errors are joined.
func (e *Engine) DeleteScans(sessions ...*scan.Session) error {
	return e.scans.Delete(sessions...)
}

// AddWatch calls listener with every reported change of the named properties of ep.
// Every name must be a property of ep and may not be watched already.
func (e *Engine) AddWatch(ep endpoint.Endpoint, names []string, listener watch.Listener) (*watch.Entry, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if ep == nil {
		return nil, fmt.Errorf("%w: nil endpoint", watch.ErrInvalidWatch)
	}
	if ep.Deleted() {
		return nil, fmt.Errorf("%w: %s", endpoint.ErrStaleReference, ep.ID())
	}

	for _, name := range names {
		if !ep.Properties().Has(name) {
			return nil, fmt.Errorf("%w: %s.%s", property.ErrUnknownProperty, ep.ID(), name)
		}
	}

	return e.watches.Add(ep.ID(), names, listener)
}

// AddWatches adds one watch per endpoint on the same names, all or nothing.
func (e *Engine) AddWatches(eps []endpoint.Endpoint, names []string, listener watch.Listener) ([]*watch.Entry, error) {
	entries := make([]*watch.Entry, 0, len(eps))
	for _, ep := range eps {
		entry, err := e.AddWatch(ep, names, listener)
		if err != nil {
			for _, added := range entries {
				e.watches.RemoveEntry(added)
			}

			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// GetAllWatches returns every active watch entry.
func (e *Engine) GetAllWatches() []*watch.Entry {
	return e.watches.Entries()
}

// RemoveWatch stops watching names of ep. Names without an active watch are ignored.
func (e *Engine) RemoveWatch(ep endpoint.Endpoint, names ...string) error {
	if ep == nil {
		return fmt.Errorf("%w: nil endpoint", watch.ErrInvalidWatch)
	}
	e.watches.Remove(ep.ID(), names...)

	return nil
}

// RemoveWatches removes watch entries.
func (e *Engine) RemoveWatches(entries ...*watch.Entry) error {
	var failed []error
	for _, entry := range entries {
		if entry == nil {
			failed = append(failed, fmt.Errorf("%w: nil entry", watch.ErrInvalidWatch))
			continue
		}
		e.watches.RemoveEntry(entry)
	}

	return errors.Join(failed...)
}
