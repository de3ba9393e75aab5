// Package session drives one terminal tab: it opens a connector for the
// host, runs the reader that feeds the terminal model and tears everything
// down again on stop, reconnect or remote disconnect.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nonomal/termora-sub000/internal/config"
	"github.com/nonomal/termora-sub000/internal/connector"
	apperr "github.com/nonomal/termora-sub000/internal/error"
	"github.com/nonomal/termora-sub000/internal/models"
	sshclient "github.com/nonomal/termora-sub000/internal/ssh"
	"github.com/nonomal/termora-sub000/internal/terminal"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// State of a session. Reconnecting is Stopping immediately followed by
// Connecting under one lock hold.
type State int32

const (
	Idle State = iota
	Connecting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// readerStopTimeout bounds how long stop waits for the reader to notice
// cancellation.
const readerStopTimeout = 2 * time.Second

var errNoConnector = errors.New("session is not connected")

// Deps are the collaborators a session needs. Model, UI and Factory are
// required.
type Deps struct {
	Model    terminal.Model
	UI       terminal.Dispatcher
	Factory  *connector.Factory
	Settings config.Settings

	Keys            sshclient.KeyResolver
	Hosts           sshclient.HostLookup
	HostKeyCallback ssh.HostKeyCallback

	// OpenSerial opens the line for serial hosts; defaults to the system port.
	OpenSerial func(models.SerialComm) (io.ReadWriteCloser, error)

	// OnClose is called after a remote disconnect when
	// Settings.AutoCloseOnDisconnect is set.
	OnClose func()

	// ReconnectHint is printed under the disconnect notice.
	ReconnectHint string

	Logger zerolog.Logger
}

// transport opens the raw connector for one protocol and owns whatever else
// the connection needs besides it.
type transport interface {
	open(ctx context.Context, s *Session) (connector.Connector, error)
	close() error
}

type Session struct {
	host      *models.Host
	deps      Deps
	transport transport
	log       zerolog.Logger

	// lock guards connect and stop. Start, Stop and Reconnect only try to
	// take it; Dispose and the disconnect path wait for it.
	lock chan struct{}

	state atomic.Int32

	mu            sync.Mutex
	conn          connector.Connector
	readerCancel  context.CancelFunc
	readerDone    chan struct{}
	gen           uint64
	connectCancel context.CancelFunc
	disposed      bool
}

// New creates an idle session for host.
func New(host *models.Host, deps Deps) (*Session, error) {
	if host == nil || !host.Connectable() {
		return nil, apperr.New(apperr.ValidationError, "host cannot be opened as a session", nil)
	}
	if deps.Model == nil || deps.UI == nil || deps.Factory == nil {
		return nil, apperr.New(apperr.ConfigError, "session requires a model, a UI dispatcher and a connector factory", nil)
	}
	if deps.Settings.ReadBackoff <= 0 {
		deps.Settings.ReadBackoff = terminal.DefaultBackoff
	}

	s := &Session{
		host: host,
		deps: deps,
		log:  deps.Logger.With().Str("host", host.Name).Str("protocol", string(host.Protocol)).Logger(),
		lock: make(chan struct{}, 1),
	}

	switch host.Protocol {
	case models.ProtocolSSH:
		s.transport = &sshTransport{}
	case models.ProtocolLocal:
		s.transport = &localTransport{}
	case models.ProtocolSerial:
		s.transport = &serialTransport{}
	default:
		return nil, apperr.New(apperr.ValidationError, fmt.Sprintf("unsupported protocol %q", host.Protocol), nil)
	}
	return s, nil
}

func (s *Session) Host() *models.Host {
	return s.host
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	s.log.Debug().Stringer("state", st).Msg("session state changed")
}

func (s *Session) tryLock() bool {
	select {
	case s.lock <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Session) unlock() {
	<-s.lock
}

// CanReconnect reports whether no connect or stop is in flight.
func (s *Session) CanReconnect() bool {
	return len(s.lock) == 0
}

// Connector returns the live decorated connector, or nil when not running.
func (s *Session) Connector() connector.Connector {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Start connects an idle session. A concurrent Start, Stop or Reconnect
// makes it fail immediately with ErrInProgress.
func (s *Session) Start(ctx context.Context) error {
	if !s.tryLock() {
		return apperr.ErrInProgress
	}
	defer s.unlock()

	if st := s.State(); st != Idle {
		return apperr.New(apperr.InProgressError, fmt.Sprintf("session is %s", st), nil)
	}
	return s.start(ctx)
}

// Stop disconnects a running session. Stopping an idle session is a no-op.
func (s *Session) Stop() error {
	if !s.tryLock() {
		return apperr.ErrInProgress
	}
	defer s.unlock()

	if s.State() == Idle {
		return nil
	}
	return s.stop()
}

// Reconnect stops the session if it runs and starts it again, under one
// lock hold.
func (s *Session) Reconnect(ctx context.Context) error {
	if !s.tryLock() {
		return apperr.ErrInProgress
	}
	defer s.unlock()

	if s.State() != Idle {
		if err := s.stop(); err != nil {
			s.log.Warn().Err(err).Msg("errors while stopping before reconnect")
		}
	}
	return s.start(ctx)
}

// Dispose cancels a connect in flight, waits for it and stops the session.
// The session cannot be started again.
func (s *Session) Dispose() error {
	s.mu.Lock()
	s.disposed = true
	cancel := s.connectCancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	s.lock <- struct{}{}
	defer s.unlock()
	return s.stop()
}

// SendText encodes text with the connector charset and writes it.
func (s *Session) SendText(text string) error {
	conn := s.Connector()
	if conn == nil {
		return errNoConnector
	}
	return sendText(conn, text)
}

// Resize forwards a new terminal size to the connector.
func (s *Session) Resize(rows, cols int) error {
	conn := s.Connector()
	if conn == nil {
		return errNoConnector
	}
	return conn.Resize(rows, cols)
}

func sendText(conn connector.Connector, text string) error {
	encoded, err := conn.Charset().NewEncoder().String(text)
	if err != nil {
		return fmt.Errorf("failed to encode input: %v", err)
	}
	_, err = conn.Write([]byte(encoded))
	return err
}

// println writes text to the terminal model on the UI loop.
func (s *Session) println(text string) {
	model := s.deps.Model
	s.deps.UI.Dispatch(func() { model.Write(text) })
}

func (s *Session) start(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return apperr.New(apperr.ValidationError, "session has been disposed", nil)
	}
	connectCtx, cancel := context.WithCancel(ctx)
	s.connectCancel = cancel
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.connectCancel = nil
		s.mu.Unlock()
	}()

	s.setState(Connecting)
	model := s.deps.Model
	s.deps.UI.Dispatch(model.Clear)

	raw, err := s.transport.open(connectCtx, s)
	if err != nil {
		if cerr := s.transport.close(); cerr != nil {
			s.log.Warn().Err(cerr).Msg("cleanup after failed connect")
		}
		s.setState(Idle)
		s.log.Error().Err(err).Msg("connect failed")
		s.println(terminal.ErrorLine(err.Error()))
		return err
	}

	conn := s.deps.Factory.Decorate(raw)
	readerCtx, readerCancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.conn = conn
	s.readerCancel = readerCancel
	s.readerDone = done
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	s.deps.UI.Dispatch(func() { model.SetData(terminal.ConnectorKey, conn) })
	go s.read(readerCtx, conn, gen, done)
	s.setState(Running)

	if cmd := s.host.Options.StartupCommand; cmd != "" {
		go s.sendStartupCommand(readerCtx, conn, cmd)
	}
	s.log.Info().Msg("session started")
	return nil
}

func (s *Session) sendStartupCommand(ctx context.Context, conn connector.Connector, cmd string) {
	timer := time.NewTimer(s.deps.Settings.StartupCommandDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	if err := sendText(conn, cmd+"\r"); err != nil {
		s.log.Warn().Err(err).Msg("startup command not sent")
	}
}

func (s *Session) read(ctx context.Context, conn connector.Connector, gen uint64, done chan struct{}) {
	defer close(done)

	r := terminal.NewReader(conn, s.deps.Model, s.deps.UI, s.deps.Settings.ReadBackoff, s.log)
	err := r.Run(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("connector read failed")
	} else {
		s.log.Info().Msg("remote closed the connection")
	}

	notice := terminal.ErrorLine("Channel has been disconnected")
	if s.deps.ReconnectHint != "" {
		notice += terminal.HintLine(s.deps.ReconnectHint)
	}
	s.println(notice)
	go s.closeAfterDisconnect(gen)
}

// closeAfterDisconnect tears down a session whose connector ended on its
// own. gen guards against a reconnect that already replaced the connector.
func (s *Session) closeAfterDisconnect(gen uint64) {
	s.lock <- struct{}{}
	defer s.unlock()

	s.mu.Lock()
	current := s.gen == gen && s.conn != nil
	s.mu.Unlock()
	if !current || s.State() != Running {
		return
	}
	if err := s.stop(); err != nil {
		s.log.Warn().Err(err).Msg("errors while closing disconnected session")
	}
	if s.deps.Settings.AutoCloseOnDisconnect && s.deps.OnClose != nil {
		s.deps.OnClose()
	}
}

// stop tears the session down. Every step runs even if an earlier one
// failed; the errors are joined.
func (s *Session) stop() error {
	s.setState(Stopping)

	s.mu.Lock()
	conn, cancel, done := s.conn, s.readerCancel, s.readerDone
	s.conn, s.readerCancel, s.readerDone = nil, nil, nil
	s.mu.Unlock()

	var errs []error
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("connector close error: %v", err))
		}
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(readerStopTimeout):
			s.log.Warn().Msg("reader did not stop in time")
		}
	}
	if err := s.transport.close(); err != nil {
		errs = append(errs, err)
	}

	model := s.deps.Model
	s.deps.UI.Dispatch(func() { model.SetData(terminal.ConnectorKey, nil) })
	s.setState(Idle)
	s.log.Info().Msg("session stopped")
	return errors.Join(errs...)
}
