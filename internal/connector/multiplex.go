package connector

import (
	"sync"
)

// Tap sees the raw stream of a connector before any other layer does.
// Feed returns true to claim the chunk; a claimed chunk never reaches the
// terminal.
type Tap interface {
	Feed(m *Multiplexer, p []byte) bool
}

// TapFunc builds a tap for a freshly decorated connector.
type TapFunc func(m *Multiplexer) Tap

// Multiplexer is the innermost decorator. It mirrors every chunk read from the
// transport to the attached taps and lets one of them take the stream over,
// for example while a ZMODEM transfer runs.
type Multiplexer struct {
	Connector

	registry *Registry

	mu    sync.RWMutex
	taps  []Tap
	owner Tap
}

func newMultiplexer(inner Connector, registry *Registry) *Multiplexer {
	return &Multiplexer{Connector: inner, registry: registry}
}

// Attach adds a tap. The returned func detaches it again.
func (m *Multiplexer) Attach(t Tap) func() {
	m.mu.Lock()
	m.taps = append(m.taps, t)
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, tap := range m.taps {
			if tap == t {
				m.taps = append(m.taps[:i:i], m.taps[i+1:]...)
				break
			}
		}
		if m.owner == t {
			m.owner = nil
		}
	}
}

// Claim hands the stream to t. It fails when another tap already owns it.
func (m *Multiplexer) Claim(t Tap) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != nil && m.owner != t {
		return false
	}
	m.owner = t
	return true
}

// Release gives the stream back to the terminal.
func (m *Multiplexer) Release(t Tap) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner == t {
		m.owner = nil
	}
}

// Claimed reports whether a tap currently owns the stream.
func (m *Multiplexer) Claimed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.owner != nil
}

func (m *Multiplexer) Read(p []byte) (int, error) {
	for {
		n, err := m.Connector.Read(p)
		if n == 0 {
			return n, err
		}

		m.mu.RLock()
		owner := m.owner
		taps := m.taps
		m.mu.RUnlock()

		claimed := false
		if owner != nil {
			claimed = owner.Feed(m, p[:n])
		} else {
			for _, t := range taps {
				if t.Feed(m, p[:n]) {
					claimed = true
				}
			}
		}
		if !claimed {
			return n, err
		}
		if err != nil {
			return 0, err
		}
	}
}

// Write sends user input to the transport. Input is dropped while a tap owns
// the stream, and copied to every other live connector in broadcast mode.
func (m *Multiplexer) Write(p []byte) (int, error) {
	if m.Claimed() {
		return len(p), nil
	}
	n, err := m.Connector.Write(p)
	if err == nil && m.registry != nil && m.registry.Broadcast() {
		m.registry.broadcast(m, p[:n])
	}
	return n, err
}

// writeSibling delivers input broadcast from another connector. It is dropped
// while a tap owns the stream and never fans out again.
func (m *Multiplexer) writeSibling(p []byte) {
	if m.Claimed() {
		return
	}
	_, _ = m.Connector.Write(p)
}

// WriteRaw writes straight to the transport, bypassing takeover and broadcast.
func (m *Multiplexer) WriteRaw(p []byte) (int, error) {
	return m.Connector.Write(p)
}
