package connector

import (
	"sync"
	"sync/atomic"
	"weak"

	"github.com/google/uuid"
)

// Registry is the window-scoped set of open decorated connectors. It holds
// weak references only, so it never keeps a connector alive.
type Registry struct {
	mu       sync.Mutex
	entries  map[uuid.UUID]weak.Pointer[autoRemoveConnector]
	multiple atomic.Bool
	removed  atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[uuid.UUID]weak.Pointer[autoRemoveConnector])}
}

func (r *Registry) add(c *autoRemoveConnector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[c.id] = weak.Make(c)
}

func (r *Registry) remove(c *autoRemoveConnector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[c.id]; ok {
		delete(r.entries, c.id)
		r.removed.Add(1)
	}
}

// live returns the connectors still referenced somewhere, pruning the rest.
func (r *Registry) live() []*autoRemoveConnector {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*autoRemoveConnector, 0, len(r.entries))
	for id, wp := range r.entries {
		c := wp.Value()
		if c == nil {
			delete(r.entries, id)
			continue
		}
		out = append(out, c)
	}
	return out
}

// Connectors lists the open connectors, e.g. for an "active connections" view.
func (r *Registry) Connectors() []Connector {
	live := r.live()
	out := make([]Connector, len(live))
	for i, c := range live {
		out[i] = c
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.live())
}

// Contains reports whether c, as returned by Factory.Decorate, is registered.
func (r *Registry) Contains(c Connector) bool {
	ar, ok := c.(*autoRemoveConnector)
	if !ok {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, found := r.entries[ar.id]
	return found
}

// Removed counts deregistrations since the registry was created.
func (r *Registry) Removed() int64 {
	return r.removed.Load()
}

// SetBroadcast toggles sending user input to every open connector.
func (r *Registry) SetBroadcast(on bool) {
	r.multiple.Store(on)
}

func (r *Registry) Broadcast() bool {
	return r.multiple.Load()
}

func (r *Registry) broadcast(from *Multiplexer, p []byte) {
	for _, c := range r.live() {
		if c.mux == from {
			continue
		}
		c.mux.writeSibling(p)
	}
}

// autoRemoveConnector is the outermost decorator; closing it deregisters the
// connector exactly once before closing the inner layers.
type autoRemoveConnector struct {
	Connector

	id       uuid.UUID
	registry *Registry
	mux      *Multiplexer
	once     sync.Once
}

func (c *autoRemoveConnector) Close() error {
	var err error
	c.once.Do(func() {
		c.registry.remove(c)
		err = c.Connector.Close()
	})
	return err
}

// ID identifies the connector in logs and in the registry.
func (c *autoRemoveConnector) ID() string {
	return c.id.String()
}
