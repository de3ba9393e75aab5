package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nonomal/termora-sub000/internal/config"
	"github.com/nonomal/termora-sub000/internal/connector"
	apperr "github.com/nonomal/termora-sub000/internal/error"
	"github.com/nonomal/termora-sub000/internal/models"
	"github.com/nonomal/termora-sub000/internal/ssh/sshtest"
	"github.com/nonomal/termora-sub000/internal/terminal"
	"github.com/nonomal/termora-sub000/internal/terminal/terminaltest"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

// fakeConn has no data until the test pushes some, and ends on Close or
// when hangup is called.
type fakeConn struct {
	in      chan []byte
	charset encoding.Encoding

	mu       sync.Mutex
	written  bytes.Buffer
	closes   int
	closeErr error
	ended    chan struct{}
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), ended: make(chan struct{}), charset: unicode.UTF8}
}

func (c *fakeConn) Read(p []byte) (int, error) {
	select {
	case chunk := <-c.in:
		return copy(p, chunk), nil
	case <-c.ended:
		return 0, io.EOF
	case <-time.After(5 * time.Millisecond):
		return 0, nil
	}
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written.Write(p)
}

func (c *fakeConn) Written() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written.String()
}

func (c *fakeConn) Resize(int, int) error       { return nil }
func (c *fakeConn) Charset() encoding.Encoding { return c.charset }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closes++
	err := c.closeErr
	c.mu.Unlock()
	c.hangup()
	return err
}

func (c *fakeConn) hangup() {
	c.once.Do(func() { close(c.ended) })
}

// fakeTransport hands out fakeConns. When gate is set, open blocks until the
// gate is closed or the connect is cancelled.
type fakeTransport struct {
	gate     chan struct{}
	err      error
	closeErr error
	connErr  error
	onOpen   func()
	opened   atomic.Int32
	closed   atomic.Int32
	mu       sync.Mutex
	conns    []*fakeConn
	charset  encoding.Encoding
}

func (t *fakeTransport) open(ctx context.Context, s *Session) (connector.Connector, error) {
	t.opened.Add(1)
	if t.onOpen != nil {
		t.onOpen()
	}
	if t.gate != nil {
		select {
		case <-t.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if t.err != nil {
		return nil, t.err
	}
	c := newFakeConn()
	c.closeErr = t.connErr
	if t.charset != nil {
		c.charset = t.charset
	}
	t.mu.Lock()
	t.conns = append(t.conns, c)
	t.mu.Unlock()
	return c, nil
}

func (t *fakeTransport) close() error {
	t.closed.Add(1)
	return t.closeErr
}

func (t *fakeTransport) last() *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

func testSettings(t *testing.T) config.Settings {
	return config.Settings{
		ReadBackoff:         time.Millisecond,
		StartupCommandDelay: time.Millisecond,
		ConnectTimeout:      5 * time.Second,
		AuthTimeout:         5 * time.Second,
		SerialPollInterval:  10 * time.Millisecond,
		KnownHostsPath:      filepath.Join(t.TempDir(), "known_hosts"),
	}
}

func newTestSession(t *testing.T, host *models.Host, tr *fakeTransport) (*Session, *terminaltest.Model, *connector.Registry) {
	t.Helper()
	model := terminaltest.NewModel(24, 80)
	registry := connector.NewRegistry()
	s, err := New(host, Deps{
		Model:    model,
		UI:       terminaltest.Inline{},
		Factory:  connector.NewFactory(registry, nil, zerolog.Nop()),
		Settings: testSettings(t),
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tr != nil {
		s.transport = tr
	}
	t.Cleanup(func() { s.Dispose() })
	return s, model, registry
}

func localHost() *models.Host {
	return &models.Host{ID: "local", Name: "local", Protocol: models.ProtocolLocal}
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for s.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want %s", s.State(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewRejectsUnconnectableHosts(t *testing.T) {
	deps := Deps{Model: terminaltest.NewModel(24, 80), UI: terminaltest.Inline{}, Factory: connector.NewFactory(nil, nil, zerolog.Nop())}
	for _, host := range []*models.Host{
		nil,
		{Name: "folder", Protocol: models.ProtocolFolder},
		{Name: "gone", Protocol: models.ProtocolSSH, Deleted: true},
	} {
		if _, err := New(host, deps); err == nil {
			t.Errorf("New(%+v) succeeded", host)
		}
	}
}

func TestConcurrentStartConnectsOnce(t *testing.T) {
	tr := &fakeTransport{gate: make(chan struct{})}
	s, _, registry := newTestSession(t, localHost(), tr)

	const n = 8
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() { results <- s.Start(context.Background()) }()
	}

	var inProgress int
	for i := 0; i < n-1; i++ {
		err := <-results
		if !errors.Is(err, apperr.ErrInProgress) {
			t.Fatalf("err = %v, want ErrInProgress", err)
		}
		inProgress++
	}
	if s.CanReconnect() {
		t.Error("CanReconnect true while connecting")
	}
	close(tr.gate)
	if err := <-results; err != nil {
		t.Fatalf("winning Start: %v", err)
	}

	if inProgress != n-1 || tr.opened.Load() != 1 {
		t.Fatalf("in progress = %d, opened = %d", inProgress, tr.opened.Load())
	}
	if registry.Len() != 1 || s.State() != Running {
		t.Fatalf("registry = %d, state = %s", registry.Len(), s.State())
	}
	if !s.CanReconnect() {
		t.Error("CanReconnect false while running")
	}
}

func TestStartWhileRunning(t *testing.T) {
	s, _, _ := newTestSession(t, localHost(), &fakeTransport{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, apperr.ErrInProgress) {
		t.Fatalf("err = %v, want in progress", err)
	}
}

func TestStartPublishesConnector(t *testing.T) {
	s, model, registry := newTestSession(t, localHost(), &fakeTransport{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	conn := s.Connector()
	if conn == nil || model.Data(terminal.ConnectorKey) != conn || !registry.Contains(conn) {
		t.Fatal("connector not published")
	}
	if model.Clears() != 1 {
		t.Errorf("clears = %d", model.Clears())
	}

	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	if model.Data(terminal.ConnectorKey) != nil || registry.Len() != 0 || s.State() != Idle {
		t.Fatal("stop left the connector behind")
	}
}

func TestStopClosesEverythingDespiteErrors(t *testing.T) {
	tr := &fakeTransport{
		connErr:  errors.New("channel already gone"),
		closeErr: errors.New("client close refused"),
	}
	s, model, registry := newTestSession(t, localHost(), tr)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	conn := tr.last()

	err := s.Stop()
	if err == nil {
		t.Fatal("Stop returned no error")
	}
	if !errors.Is(err, tr.closeErr) || !strings.Contains(err.Error(), "channel already gone") {
		t.Errorf("err = %v, want both close errors", err)
	}
	select {
	case <-conn.ended:
	default:
		t.Error("connector was not closed")
	}
	if tr.closed.Load() != 1 {
		t.Errorf("transport closed %d times", tr.closed.Load())
	}
	if registry.Len() != 0 || s.State() != Idle || model.Data(terminal.ConnectorKey) != nil {
		t.Fatalf("registry = %d, state = %s", registry.Len(), s.State())
	}
}

func TestReconnectTearsDownFirst(t *testing.T) {
	tr := &fakeTransport{}
	s, _, registry := newTestSession(t, localHost(), tr)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := s.Connector()

	var stillRegistered bool
	tr.onOpen = func() { stillRegistered = registry.Contains(first) }

	if err := s.Reconnect(context.Background()); err != nil {
		t.Fatal(err)
	}
	second := s.Connector()

	if stillRegistered {
		t.Error("old connector was still registered when the new one was opened")
	}
	if first == second || registry.Contains(first) || !registry.Contains(second) {
		t.Fatal("reconnect did not replace the connector")
	}
	if registry.Len() != 1 || registry.Removed() != 1 {
		t.Errorf("registry len = %d, removed = %d", registry.Len(), registry.Removed())
	}
	if tr.closed.Load() != 1 {
		t.Errorf("transport closed %d times, want 1", tr.closed.Load())
	}
}

func TestConnectFailureReturnsToIdle(t *testing.T) {
	tr := &fakeTransport{err: apperr.New(apperr.ConnectionError, "host unreachable", nil)}
	s, model, registry := newTestSession(t, localHost(), tr)

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start succeeded")
	}
	if s.State() != Idle || registry.Len() != 0 || s.Connector() != nil {
		t.Fatalf("state = %s, registry = %d", s.State(), registry.Len())
	}
	if !strings.Contains(model.Text(), "host unreachable") {
		t.Errorf("no error line: %q", model.Text())
	}
	if tr.closed.Load() != 1 {
		t.Error("transport not cleaned up after failure")
	}
	if !s.CanReconnect() {
		t.Error("lock still held after failure")
	}
}

func TestReaderFeedsModel(t *testing.T) {
	tr := &fakeTransport{}
	s, model, _ := newTestSession(t, localHost(), tr)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	tr.last().in <- []byte("prompt$ ")
	model.WaitFor(t, "prompt$ ", 2*time.Second)
}

func TestStartupCommand(t *testing.T) {
	host := localHost()
	host.Options.StartupCommand = "uptime"
	tr := &fakeTransport{}
	s, _, _ := newTestSession(t, host, tr)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for tr.last().Written() != "uptime\r" {
		if time.Now().After(deadline) {
			t.Fatalf("written = %q", tr.last().Written())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSendTextUsesCharset(t *testing.T) {
	tr := &fakeTransport{charset: simplifiedchinese.GBK}
	s, _, _ := newTestSession(t, localHost(), tr)
	if err := s.SendText("x"); err == nil {
		t.Error("SendText on an idle session succeeded")
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.SendText("你好"); err != nil {
		t.Fatal(err)
	}
	if got := tr.last().Written(); got != "\xc4\xe3\xba\xc3" {
		t.Errorf("written = %x", got)
	}
}

func TestRemoteDisconnect(t *testing.T) {
	tr := &fakeTransport{}
	closed := make(chan struct{})

	model := terminaltest.NewModel(24, 80)
	registry := connector.NewRegistry()
	settings := testSettings(t)
	settings.AutoCloseOnDisconnect = true
	s, err := New(localHost(), Deps{
		Model:         model,
		UI:            terminaltest.Inline{},
		Factory:       connector.NewFactory(registry, nil, zerolog.Nop()),
		Settings:      settings,
		OnClose:       func() { close(closed) },
		ReconnectHint: "Press Ctrl+] r to reconnect",
		Logger:        zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	s.transport = tr
	defer s.Dispose()

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	tr.last().hangup()

	model.WaitFor(t, "Channel has been disconnected", 2*time.Second)
	model.WaitFor(t, "Ctrl+] r", time.Second)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose not called")
	}
	waitState(t, s, Idle)
	if registry.Len() != 0 {
		t.Error("disconnected connector still registered")
	}
}

func TestStopDoesNotReportDisconnect(t *testing.T) {
	s, model, _ := newTestSession(t, localHost(), &fakeTransport{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if strings.Contains(model.Text(), "disconnected") {
		t.Errorf("stop printed a disconnect notice: %q", model.Text())
	}
}

func TestDisposeCancelsConnect(t *testing.T) {
	tr := &fakeTransport{gate: make(chan struct{})}
	s, _, _ := newTestSession(t, localHost(), tr)

	started := make(chan error, 1)
	go func() { started <- s.Start(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for tr.opened.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("connect never started")
		}
		time.Sleep(time.Millisecond)
	}

	if err := s.Dispose(); err != nil {
		t.Fatal(err)
	}
	if err := <-started; !errors.Is(err, context.Canceled) {
		t.Fatalf("Start err = %v, want context.Canceled", err)
	}
	if s.State() != Idle {
		t.Fatalf("state = %s", s.State())
	}
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("disposed session started again")
	}
}

func TestSerialSession(t *testing.T) {
	host := &models.Host{Name: "console", Protocol: models.ProtocolSerial, Options: models.Options{SerialComm: models.SerialComm{Port: "/dev/fake"}}}

	r, w := io.Pipe()
	port := &pipePort{r: r}
	model := terminaltest.NewModel(24, 80)
	s, err := New(host, Deps{
		Model:   model,
		UI:      terminaltest.Inline{},
		Factory: connector.NewFactory(nil, nil, zerolog.Nop()),
		Settings: config.Settings{
			ReadBackoff:        time.Millisecond,
			SerialPollInterval: 10 * time.Millisecond,
		},
		OpenSerial: func(comm models.SerialComm) (io.ReadWriteCloser, error) {
			if comm.Port != "/dev/fake" {
				t.Errorf("port = %q", comm.Port)
			}
			return port, nil
		},
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Dispose()

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	go w.Write([]byte("U-Boot> "))
	model.WaitFor(t, "U-Boot> ", 2*time.Second)

	if err := s.SendText("help\r"); err != nil {
		t.Fatal(err)
	}
	if got := port.Written(); got != "help\r" {
		t.Errorf("written = %q", got)
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
}

type pipePort struct {
	r  *io.PipeReader
	mu sync.Mutex
	w  bytes.Buffer
}

func (p *pipePort) Read(b []byte) (int, error) { return p.r.Read(b) }
func (p *pipePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.w.Write(b)
}
func (p *pipePort) Close() error { return p.r.Close() }
func (p *pipePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.w.String()
}

func TestLocalShellSession(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no pty on windows")
	}
	if _, err := exec.LookPath("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	s, model, _ := newTestSession(t, localHost(), nil)
	s.deps.Settings.LocalShell = "/bin/sh"

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.SendText("echo termora-$((40+2))\r"); err != nil {
		t.Fatal(err)
	}
	model.WaitFor(t, "termora-42", 3*time.Second)
	if err := s.Stop(); err != nil {
		t.Logf("stop: %v", err)
	}
	if s.State() != Idle {
		t.Fatalf("state = %s", s.State())
	}
}

func TestLocalShellFallback(t *testing.T) {
	if got := LocalShell("/bin/zsh"); got != "/bin/zsh" {
		t.Errorf("LocalShell = %q", got)
	}
	t.Setenv("SHELL", "")
	if runtime.GOOS != "windows" && LocalShell("") != "/bin/sh" {
		t.Errorf("fallback = %q", LocalShell(""))
	}
}

func sshHost(srv *sshtest.Server, password string) *models.Host {
	return &models.Host{
		ID:             "ssh",
		Name:           "ssh",
		Protocol:       models.ProtocolSSH,
		Host:           "127.0.0.1",
		Port:           srv.Port(),
		Username:       sshtest.User,
		Authentication: models.Authentication{Type: models.AuthPassword, Password: password},
	}
}

func TestSSHAuthFailure(t *testing.T) {
	srv := sshtest.NewServer(t)
	s, model, registry := newTestSession(t, sshHost(srv, "wrong"), nil)

	err := s.Start(context.Background())
	if !errors.Is(err, apperr.ErrAuthFailed) {
		t.Fatalf("err = %v, want authentication failure", err)
	}
	if s.State() != Idle || registry.Len() != 0 {
		t.Fatalf("state = %s, registry = %d", s.State(), registry.Len())
	}
	text := model.Text()
	if !strings.Contains(text, "SSH client is opening...") || !strings.Contains(text, "authentication failed") {
		t.Errorf("terminal = %q", text)
	}
}

func TestSSHSessionWithTunnels(t *testing.T) {
	srv := sshtest.NewServer(t)
	host := sshHost(srv, sshtest.Password)
	host.Tunnelings = []models.Tunneling{
		{Name: "web", Type: models.TunnelLocal, SourceHost: "127.0.0.1", DestinationHost: "127.0.0.1", DestinationPort: 80},
		{Name: "back", Type: models.TunnelRemote, SourceHost: "127.0.0.1", SourcePort: 9000, DestinationHost: "127.0.0.1", DestinationPort: 22},
	}
	s, model, registry := newTestSession(t, host, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.State() != Running || registry.Len() != 1 {
		t.Fatalf("state = %s, registry = %d", s.State(), registry.Len())
	}

	text := model.Text()
	for _, want := range []string{
		"SSH client opened successfully.",
		"Session established.",
		"Session authentication successful.",
		"Channel shell opened successfully.",
		"Start [web] port forwarding successfully.",
		"Start [back] port forwarding failed",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("terminal lacks %q: %q", want, text)
		}
	}

	if model.Clears() != 2 || strings.Contains(model.Visible(), "SSH client is opening...") {
		t.Errorf("progress lines still on screen after connect: %q", model.Visible())
	}

	// The test shell echoes its input.
	if err := s.SendText("echo-me"); err != nil {
		t.Fatal(err)
	}
	model.WaitFor(t, "echo-me", 2*time.Second)

	if err := s.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if s.State() != Idle || registry.Len() != 0 {
		t.Fatalf("after stop: state = %s, registry = %d", s.State(), registry.Len())
	}
}
