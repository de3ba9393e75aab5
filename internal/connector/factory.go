package connector

import (
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding"
)

// Factory is scoped to one application window. It builds raw connectors for
// each transport and wraps them in the decorator chain:
//
//	autoRemove(macro(multiplex(raw)))
//
// The order is fixed: taps on the multiplexer see raw bytes first, the macro
// layer sees what the user sees exactly once, and deregistration happens at
// the outermost Close.
type Factory struct {
	registry *Registry
	recorder Recorder
	log      zerolog.Logger

	mu   sync.RWMutex
	taps []TapFunc
}

func NewFactory(registry *Registry, recorder Recorder, log zerolog.Logger) *Factory {
	if registry == nil {
		registry = NewRegistry()
	}
	if recorder == nil {
		recorder = noRecorder{}
	}
	return &Factory{registry: registry, recorder: recorder, log: log}
}

func (f *Factory) Registry() *Registry {
	return f.registry
}

// AddTap registers a tap attached to every connector decorated from now on.
func (f *Factory) AddTap(fn TapFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taps = append(f.taps, fn)
}

// Decorate applies the decorator chain and registers the result.
func (f *Factory) Decorate(raw Connector) Connector {
	mux := newMultiplexer(raw, f.registry)

	f.mu.RLock()
	for _, fn := range f.taps {
		if t := fn(mux); t != nil {
			mux.Attach(t)
		}
	}
	f.mu.RUnlock()

	c := &autoRemoveConnector{
		Connector: &macroConnector{Connector: mux, mux: mux, recorder: f.recorder},
		id:        uuid.New(),
		registry:  f.registry,
		mux:       mux,
	}
	f.registry.add(c)
	f.log.Debug().Str("connector", c.ID()).Msg("connector registered")
	return c
}

// Pty starts shell on a local pseudo-terminal.
func (f *Factory) Pty(shell string, env []string, rows, cols int, charset encoding.Encoding) (Connector, error) {
	return OpenPty(shell, env, rows, cols, charset)
}

// Channel wraps an SSH shell channel.
func (f *Factory) Channel(ch Channel, charset encoding.Encoding) Connector {
	return NewChannel(ch, charset)
}

// Serial wraps an open serial port.
func (f *Factory) Serial(port io.ReadWriteCloser, charset encoding.Encoding, poll time.Duration) Connector {
	return NewSerial(port, charset, poll)
}

// MultiplexerOf returns the multiplexing layer of a decorated connector, so
// UI actions can attach a tap or trigger a takeover.
func MultiplexerOf(c Connector) (*Multiplexer, bool) {
	ar, ok := c.(*autoRemoveConnector)
	if !ok {
		return nil, false
	}
	return ar.mux, true
}

type noRecorder struct{}

func (noRecorder) Recording() bool     { return false }
func (noRecorder) RecordInput([]byte)  {}
func (noRecorder) RecordOutput([]byte) {}
