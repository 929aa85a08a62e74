// Package endpoint models the addressable hardware sub-objects that properties and scans target:
// receivers, transmitters, links between them, transceivers and transceiver groups.
//
// Every variant is a *Node tagged with a Kind. A node owns a property.Store; a child node composes its
// parent's store through a declared subset mask, and a link exposes its receiver's and transmitter's
// properties under the "rx." and "tx." aliases.
package endpoint

import (
	"context"
	"fmt"
	"maps"
	"sync/atomic"

	"github.com/arloliu/go-eyescan/internal/util"
	"github.com/arloliu/go-eyescan/property"
)

// Kind is the closed set of endpoint variants.
type Kind uint8

const (
	RX Kind = iota
	TX
	Link
	GT
	GTGroup
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case RX:
		return "RX"
	case TX:
		return "TX"
	case Link:
		return "Link"
	case GT:
		return "GT"
	case GTGroup:
		return "GTGroup"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Endpoint is the capability set shared by every endpoint variant.
type Endpoint interface {
	ID() string
	Name() string
	Kind() Kind
	// Properties returns the property cache of the endpoint.
	Properties() *property.Store
	// Commit pushes cached property values to the hardware.
	Commit(ctx context.Context, names ...string) error
	// Refresh pulls live property values into the cache.
	Refresh(ctx context.Context, names ...string) (map[string]any, error)
	// PropertyForAlias resolves alias to the endpoint that owns the property and its name there.
	PropertyForAlias(alias string) (Endpoint, string, error)
	// Receiver returns the receiver a scan on this endpoint runs on, or nil if the kind cannot be scanned.
	Receiver() Endpoint
	// Deleted reports whether the endpoint has been deleted.
	Deleted() bool
}

type aliasTarget struct {
	node *Node
	name string
}

// Node is the concrete endpoint of every kind.
type Node struct {
	id   string
	name string
	kind Kind

	store   *property.Store
	parent  *Node
	aliases map[string]aliasTarget

	// link members
	rx *Node
	tx *Node

	deleted atomic.Bool
}

var _ Endpoint = (*Node)(nil)

type nodeConfig struct {
	kind      Kind
	parent    *Node
	mask      []string
	defs      []property.Def
	aliases   map[string]string
	storeOpts []property.Option
}

// Option configures a Node.
type Option func(*nodeConfig) error

// WithParent makes the node a child of parent that exposes the mask subset of the parent's properties.
func WithParent(parent *Node, mask ...string) Option {
	return func(cfg *nodeConfig) error {
		if parent == nil {
			return fmt.Errorf("%w: nil parent", ErrInvalidEndpoint)
		}
		cfg.parent = parent
		cfg.mask = append(cfg.mask, mask...)

		return nil
	}
}

// WithProperties declares the node's own properties.
func WithProperties(defs ...property.Def) Option {
	return func(cfg *nodeConfig) error {
		cfg.defs = append(cfg.defs, defs...)
		return nil
	}
}

// WithDefaultProperties declares the standard property set of the node's kind, see DefaultDefs.
func WithDefaultProperties() Option {
	return func(cfg *nodeConfig) error {
		cfg.defs = append(cfg.defs, DefaultDefs(cfg.kind)...)
		return nil
	}
}

// WithAliases adds aliases, mapping alias name to a property name of the node.
func WithAliases(aliases map[string]string) Option {
	return func(cfg *nodeConfig) error {
		if cfg.aliases == nil {
			cfg.aliases = make(map[string]string, len(aliases))
		}
		maps.Copy(cfg.aliases, aliases)

		return nil
	}
}

// WithStoreOptions passes options to the node's property store.
func WithStoreOptions(opts ...property.Option) Option {
	return func(cfg *nodeConfig) error {
		cfg.storeOpts = append(cfg.storeOpts, opts...)
		return nil
	}
}

// New creates an endpoint of kind. Use NewLink for links.
func New(r property.Remote, kind Kind, id, name string, opts ...Option) (*Node, error) {
	if kind > GTGroup {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEndpoint, kind)
	}
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidEndpoint)
	}

	cfg := &nodeConfig{kind: kind}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	var (
		store *property.Store
		err   error
	)
	if cfg.parent != nil {
		if cfg.parent.Deleted() {
			return nil, fmt.Errorf("%w: parent %s", ErrStaleReference, cfg.parent.id)
		}
		store, err = property.NewChildStore(id, cfg.parent.store, cfg.mask, cfg.defs, cfg.storeOpts...)
	} else {
		store, err = property.NewStore(id, r, cfg.defs, cfg.storeOpts...)
	}
	if err != nil {
		return nil, err
	}

	n := &Node{
		id:      id,
		name:    name,
		kind:    kind,
		store:   store,
		parent:  cfg.parent,
		aliases: make(map[string]aliasTarget, len(cfg.aliases)),
	}
	if n.name == "" {
		n.name = id
	}

	for alias, prop := range cfg.aliases {
		if !store.Has(prop) {
			return nil, fmt.Errorf("%w: alias %q of %s targets unknown property %q",
				ErrUnknownAlias, alias, id, prop)
		}
		n.aliases[alias] = aliasTarget{node: n, name: prop}
	}

	return n, nil
}

// NewLink creates a link between a receiver and a transmitter. Every property of rx is reachable
// through the alias "rx.<name>" and every property of tx through "tx.<name>".
func NewLink(r property.Remote, id, name string, rx, tx *Node, opts ...Option) (*Node, error) {
	if rx == nil || rx.Kind() != RX {
		return nil, fmt.Errorf("%w: link %s needs an RX endpoint", ErrInvalidEndpoint, id)
	}
	if tx == nil || tx.Kind() != TX {
		return nil, fmt.Errorf("%w: link %s needs a TX endpoint", ErrInvalidEndpoint, id)
	}
	if rx.Deleted() || tx.Deleted() {
		return nil, fmt.Errorf("%w: link %s member deleted", ErrStaleReference, id)
	}

	n, err := New(r, Link, id, name, opts...)
	if err != nil {
		return nil, err
	}
	n.rx, n.tx = rx, tx

	for prefix, member := range map[string]*Node{"rx.": rx, "tx.": tx} {
		for _, prop := range member.store.Names() {
			n.aliases[prefix+prop] = aliasTarget{node: member, name: prop}
		}
	}

	return n, nil
}

func (n *Node) ID() string                  { return n.id }
func (n *Node) Name() string                { return n.name }
func (n *Node) Kind() Kind                  { return n.kind }
func (n *Node) Properties() *property.Store { return n.store }

// Parent returns the parent node, or nil.
func (n *Node) Parent() *Node {
	return n.parent
}

// RX returns the receiver of a link, or nil for other kinds.
func (n *Node) RX() *Node {
	return n.rx
}

// TX returns the transmitter of a link, or nil for other kinds.
func (n *Node) TX() *Node {
	return n.tx
}

// Receiver returns n for a receiver and the link's receiver for a link.
func (n *Node) Receiver() Endpoint {
	switch n.kind {
	case RX:
		return n
	case Link:
		return n.rx
	default:
		return nil
	}
}

// Deleted reports whether Delete has been called.
func (n *Node) Deleted() bool {
	return n.deleted.Load()
}

// Delete invalidates the node. Every later operation fails with ErrStaleReference.
// Deleting a link leaves its receiver and transmitter intact.
func (n *Node) Delete() {
	n.deleted.Store(true)
}

func (n *Node) checkAlive() error {
	if n.Deleted() {
		return fmt.Errorf("%w: %s %s", ErrStaleReference, n.kind, n.id)
	}

	return nil
}

// Commit commits the named properties, or every dirty one.
func (n *Node) Commit(ctx context.Context, names ...string) error {
	if err := n.checkAlive(); err != nil {
		return err
	}

	return n.store.Commit(ctx, names...)
}

// Refresh refreshes the named properties, or every refreshable one.
func (n *Node) Refresh(ctx context.Context, names ...string) (map[string]any, error) {
	if err := n.checkAlive(); err != nil {
		return nil, err
	}

	return n.store.Refresh(ctx, names...)
}

// PropertyForAlias resolves alias. A plain property name of the node resolves to the node itself.
func (n *Node) PropertyForAlias(alias string) (Endpoint, string, error) {
	if err := n.checkAlive(); err != nil {
		return nil, "", err
	}

	if t, ok := n.aliases[alias]; ok {
		if err := t.node.checkAlive(); err != nil {
			return nil, "", err
		}
		return t.node, t.name, nil
	}

	if n.store.Has(alias) {
		return n, alias, nil
	}

	return nil, "", fmt.Errorf("%w: %s has no property or alias %q", ErrUnknownAlias, n.id, alias)
}

// Aliases returns the alias names of the node in sorted order.
func (n *Node) Aliases() []string {
	return util.SortedKeys(n.aliases)
}

// ScanTarget resolves the endpoint a scan on ep runs on: a receiver runs on itself and a link on its
// receiver. Other kinds cannot be scanned.
func ScanTarget(ep Endpoint) (Endpoint, error) {
	if ep == nil {
		return nil, fmt.Errorf("%w: nil endpoint", ErrUnsupportedTarget)
	}
	if ep.Deleted() {
		return nil, fmt.Errorf("%w: %s %s", ErrStaleReference, ep.Kind(), ep.ID())
	}

	rx := ep.Receiver()
	if rx == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrUnsupportedTarget, ep.Kind(), ep.ID())
	}
	if rx.Deleted() {
		return nil, fmt.Errorf("%w: receiver %s of %s", ErrStaleReference, rx.ID(), ep.ID())
	}

	return rx, nil
}
