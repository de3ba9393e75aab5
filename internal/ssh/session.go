// internal/ssh/session.go

package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	apperr "github.com/nonomal/termora-sub000/internal/error"
	"github.com/nonomal/termora-sub000/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// Session reprezentuje uwierzytelnione połączenie SSH (razem z łańcuchem
// jump hostów, przez który zostało zestawione)
type Session struct {
	client     *ssh.Client
	jumps      []*ssh.Client
	forwarding bool
	log        zerolog.Logger

	mu            sync.Mutex
	stopKeepAlive chan struct{}
	closed        bool
}

// OpenSession łączy się z hostem, przechodząc kolejno przez jump hosty.
// progress dostaje komunikaty o kolejnych etapach.
func (c *Client) OpenSession(ctx context.Context, progress func(string)) (*Session, error) {
	report := func(msg string) {
		if progress != nil {
			progress(msg)
		}
	}

	chain, err := c.resolveChain()
	if err != nil {
		return nil, err
	}

	var jumps []*ssh.Client
	cleanup := func() {
		for i := len(jumps) - 1; i >= 0; i-- {
			jumps[i].Close()
		}
	}

	var via *ssh.Client
	for i, host := range chain {
		last := i == len(chain)-1

		var onKex func()
		if last {
			onKex = func() { report("Session established.") }
		}

		client, err := c.connect(ctx, via, host, onKex)
		if err != nil {
			cleanup()
			return nil, err
		}

		if !last {
			c.log.Debug().Str("jump", host.Name).Msg("jump host connected")
			jumps = append(jumps, client)
			via = client
			continue
		}

		report("Session authentication successful.")

		s := &Session{
			client:     client,
			jumps:      jumps,
			forwarding: c.allowForwarding,
			log:        c.log,
		}
		if !s.forwarding {
			rejectForwardedChannels(client)
		}
		return s, nil
	}

	// chain zawsze zawiera host docelowy
	return nil, apperr.New(apperr.ConnectionError, "empty connection chain", nil)
}

// connect zestawia połączenie z pojedynczym hostem, bezpośrednio albo
// tunelem direct-tcpip przez poprzedni hop
func (c *Client) connect(ctx context.Context, via *ssh.Client, host *models.Host, onKex func()) (*ssh.Client, error) {
	addr := host.Address()

	dialCtx, cancelDial := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	var (
		conn net.Conn
		err  error
	)
	if via == nil {
		conn, err = dialContext(dialCtx, c.dialer, "tcp", addr)
	} else {
		conn, err = via.DialContext(dialCtx, "tcp", addr)
	}
	cancelDial()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperr.New(apperr.ConnectionError, fmt.Sprintf("failed to connect to %s", addr), err)
	}

	auth, err := c.authMethods(host)
	if err != nil {
		conn.Close()
		return nil, err
	}

	callback := c.hostKeyCallback
	if onKex != nil {
		callback = func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			if err := c.hostKeyCallback(hostname, remote, key); err != nil {
				return err
			}
			onKex()
			return nil
		}
	}

	config := &ssh.ClientConfig{
		User:            host.Username,
		Auth:            auth,
		HostKeyCallback: callback,
	}

	// Handshake i uwierzytelnienie są ograniczone czasem AuthTimeout
	// oraz anulowaniem ctx; zamknięcie conn przerywa NewClientConn
	authCtx, cancelAuth := context.WithTimeout(ctx, c.opts.AuthTimeout)
	stop := context.AfterFunc(authCtx, func() { conn.Close() })
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	interrupted := !stop()
	cancelAuth()

	if err != nil {
		conn.Close()
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case interrupted:
			return nil, apperr.New(apperr.ConnectionError, fmt.Sprintf("authentication to %s timed out", addr), err)
		case isAuthError(err):
			return nil, apperr.New(apperr.AuthenticationError, apperr.ErrAuthFailed.Message, err)
		}
		return nil, apperr.New(apperr.ConnectionError, fmt.Sprintf("ssh handshake with %s failed", addr), err)
	}
	if interrupted {
		sshConn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperr.New(apperr.ConnectionError, fmt.Sprintf("authentication to %s timed out", addr), nil)
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// rejectForwardedChannels odrzuca kanały otwierane przez serwer, gdy host
// nie deklaruje żadnych przekierowań
func rejectForwardedChannels(client *ssh.Client) {
	for _, kind := range []string{"forwarded-tcpip", "auth-agent@openssh.com"} {
		chans := client.HandleChannelOpen(kind)
		if chans == nil {
			continue
		}
		go func(in <-chan ssh.NewChannel) {
			for ch := range in {
				ch.Reject(ssh.Prohibited, "forwarding is disabled for this host")
			}
		}(chans)
	}
}

func (s *Session) Client() *ssh.Client {
	return s.client
}

func (s *Session) ForwardingAllowed() bool {
	return s.forwarding
}

// StartKeepAlive uruchamia wysyłanie keepalive@openssh.com co interval.
// Brak odpowiedzi zamyka sesję.
func (s *Session) StartKeepAlive(interval time.Duration) {
	if interval < MinKeepAlive {
		interval = MinKeepAlive
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.stopKeepAlive != nil {
		return
	}
	stop := make(chan struct{})
	s.stopKeepAlive = stop

	go s.keepAliveLoop(interval, stop)
}

func (s *Session) keepAliveLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _, err := s.client.SendRequest("keepalive@openssh.com", true, nil)
			if err != nil {
				s.log.Warn().Err(err).Msg("keepalive failed")
				s.Close()
				return
			}
		case <-stop:
			return
		}
	}
}

// StopKeepAlive wyłącza heartbeat
func (s *Session) StopKeepAlive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopKeepAlive != nil {
		close(s.stopKeepAlive)
		s.stopKeepAlive = nil
	}
}

// Wait blokuje do zamknięcia połączenia z hostem docelowym
func (s *Session) Wait() error {
	return s.client.Wait()
}

// Close zamyka połączenie, a potem jump hosty w odwrotnej kolejności
func (s *Session) Close() error {
	s.StopKeepAlive()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs []error
	if err := s.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, fmt.Errorf("client close error: %v", err))
	}
	for i := len(s.jumps) - 1; i >= 0; i-- {
		if err := s.jumps[i].Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("jump close error: %v", err))
		}
	}
	return errors.Join(errs...)
}
