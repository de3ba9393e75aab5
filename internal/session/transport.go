package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/nonomal/termora-sub000/internal/connector"
	"github.com/nonomal/termora-sub000/internal/models"
	"github.com/nonomal/termora-sub000/internal/serial"
	sshclient "github.com/nonomal/termora-sub000/internal/ssh"
	"github.com/nonomal/termora-sub000/internal/terminal"
)

// sshTransport owns the client, the authenticated session, the shell
// channel and the tunnels of one connection.
type sshTransport struct {
	client  *sshclient.Client
	session *sshclient.Session
	shell   *sshclient.Shell
	tunnels []*sshclient.Tunnel
}

func (t *sshTransport) open(ctx context.Context, s *Session) (connector.Connector, error) {
	host := s.host
	settings := s.deps.Settings

	s.println(terminal.InfoLine("SSH client is opening..."))
	client, err := sshclient.NewClient(host, sshclient.Options{
		Keys:            s.deps.Keys,
		Hosts:           s.deps.Hosts,
		KnownHostsPath:  settings.KnownHostsPath,
		HostKeyCallback: s.deps.HostKeyCallback,
		ConnectTimeout:  settings.ConnectTimeout,
		AuthTimeout:     settings.AuthTimeout,
		Logger:          s.log,
	})
	if err != nil {
		return nil, err
	}
	t.client = client
	s.println(terminal.InfoLine("SSH client opened successfully."))

	session, err := client.OpenSession(ctx, func(msg string) {
		s.println(terminal.InfoLine(msg))
	})
	if err != nil {
		return nil, err
	}
	t.session = session

	var x11 *sshclient.X11Forwarding
	if host.Options.EnableX11Forwarding {
		x11, err = sshclient.NewX11Forwarding(host.Options.X11Forwarding, s.log)
		if err != nil {
			s.println(terminal.ErrorLine(fmt.Sprintf("X11 forwarding disabled: %v", err)))
			x11 = nil
		}
	}

	rows, cols := s.deps.Model.Size()
	shell, err := sshclient.OpenShell(session, rows, cols, host.Options.Envs(), x11)
	if err != nil {
		return nil, err
	}
	t.shell = shell
	s.println(terminal.InfoLine("Channel shell opened successfully."))

	// Tunnels live until the transport closes, not until connect returns.
	t.tunnels = sshclient.OpenTunnels(context.Background(), session, host.Tunnelings, func(spec models.Tunneling, err error) {
		if err != nil {
			s.println(terminal.ErrorLine(fmt.Sprintf("Start [%s] port forwarding failed: %v", spec.Name, err)))
			return
		}
		s.println(terminal.SuccessLine(fmt.Sprintf("Start [%s] port forwarding successfully.", spec.Name)))
	})

	session.StartKeepAlive(client.KeepAlive())

	// progress lines are not part of the remote screen
	s.deps.UI.Dispatch(s.deps.Model.Clear)

	return s.deps.Factory.Channel(shell, connector.LookupCharset(host.Encoding())), nil
}

// close shuts the shell, the tunnels, the session and the client in that
// order.
func (t *sshTransport) close() error {
	var errs []error
	if t.shell != nil {
		if err := t.shell.Close(); err != nil {
			errs = append(errs, fmt.Errorf("shell close error: %v", err))
		}
		t.shell = nil
	}
	for _, tunnel := range t.tunnels {
		if err := tunnel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tunnel %s close error: %v", tunnel.Spec.Name, err))
		}
	}
	t.tunnels = nil
	if t.session != nil {
		t.session.StopKeepAlive()
		if err := t.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("session close error: %v", err))
		}
		t.session = nil
	}
	if t.client != nil {
		if err := t.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("client close error: %v", err))
		}
		t.client = nil
	}
	return errors.Join(errs...)
}

// localTransport runs a shell on a local pseudo-terminal.
type localTransport struct{}

func (t *localTransport) open(ctx context.Context, s *Session) (connector.Connector, error) {
	shell := LocalShell(s.deps.Settings.LocalShell)

	var env []string
	for name, value := range s.host.Options.Envs() {
		env = append(env, name+"="+value)
	}

	rows, cols := s.deps.Model.Size()
	return s.deps.Factory.Pty(shell, env, rows, cols, connector.LookupCharset(s.host.Encoding()))
}

func (t *localTransport) close() error {
	return nil
}

// LocalShell picks the configured shell, then $SHELL, then the platform
// default.
func LocalShell(configured string) string {
	if configured != "" {
		return configured
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	if runtime.GOOS == "windows" {
		return "cmd.exe"
	}
	return "/bin/sh"
}

// serialTransport opens the host's serial line.
type serialTransport struct{}

func (t *serialTransport) open(ctx context.Context, s *Session) (connector.Connector, error) {
	open := s.deps.OpenSerial
	if open == nil {
		open = openSystemSerial
	}
	port, err := open(s.host.Options.SerialComm)
	if err != nil {
		return nil, err
	}
	return s.deps.Factory.Serial(port, connector.LookupCharset(s.host.Encoding()), s.deps.Settings.SerialPollInterval), nil
}

func (t *serialTransport) close() error {
	return nil
}

func openSystemSerial(comm models.SerialComm) (io.ReadWriteCloser, error) {
	port, err := serial.Open(comm)
	if err != nil {
		return nil, err
	}
	return port, nil
}
