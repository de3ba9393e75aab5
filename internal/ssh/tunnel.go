// internal/ssh/tunnel.go

package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"

	"github.com/armon/go-socks5"
	apperr "github.com/nonomal/termora-sub000/internal/error"
	"github.com/nonomal/termora-sub000/internal/models"
)

// Tunnel to aktywne przekierowanie portu na sesji
type Tunnel struct {
	Spec models.Tunneling

	listener net.Listener
	cancel   context.CancelFunc
	once     sync.Once
	wg       sync.WaitGroup
}

// Addr zwraca adres, na którym tunel nasłuchuje
func (t *Tunnel) Addr() net.Addr {
	return t.listener.Addr()
}

// Close zamyka listener i czeka na pętlę accept
func (t *Tunnel) Close() error {
	var err error
	t.once.Do(func() {
		t.cancel()
		err = t.listener.Close()
		if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
			err = nil
		}
	})
	t.wg.Wait()
	return err
}

// OpenTunnels uruchamia wszystkie przekierowania hosta. Błąd jednego tunelu
// nie przerywa pozostałych; report dostaje wynik dla każdego z nich.
func OpenTunnels(ctx context.Context, s *Session, tunnelings []models.Tunneling, report func(models.Tunneling, error)) []*Tunnel {
	var tunnels []*Tunnel
	for _, spec := range tunnelings {
		t, err := s.OpenTunnel(ctx, spec)
		if report != nil {
			report(spec, err)
		}
		if err != nil {
			s.log.Warn().Err(err).Str("tunnel", spec.Name).Msg("port forwarding failed")
			continue
		}
		tunnels = append(tunnels, t)
	}
	return tunnels
}

// OpenTunnel uruchamia pojedyncze przekierowanie
func (s *Session) OpenTunnel(ctx context.Context, spec models.Tunneling) (*Tunnel, error) {
	if !s.forwarding {
		return nil, apperr.New(apperr.TunnelError, "forwarding is disabled for this host", nil)
	}

	var (
		l   net.Listener
		err error
	)
	switch spec.Type {
	case models.TunnelLocal, models.TunnelDynamic:
		l, err = net.Listen("tcp", spec.Source())
	case models.TunnelRemote:
		l, err = s.client.Listen("tcp", spec.Source())
	default:
		return nil, apperr.New(apperr.TunnelError, fmt.Sprintf("unsupported tunnel type %q", spec.Type), nil)
	}
	if err != nil {
		return nil, apperr.New(apperr.TunnelError, fmt.Sprintf("failed to listen on %s", spec.Source()), err)
	}

	tunnelCtx, cancel := context.WithCancel(ctx)
	t := &Tunnel{Spec: spec, listener: l, cancel: cancel}

	switch spec.Type {
	case models.TunnelLocal:
		t.serve(tunnelCtx, func(ctx context.Context) (net.Conn, error) {
			return s.client.DialContext(ctx, "tcp", spec.Destination())
		})
	case models.TunnelRemote:
		t.serve(tunnelCtx, func(ctx context.Context) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", spec.Destination())
		})
	case models.TunnelDynamic:
		server, err := socks5.New(&socks5.Config{
			Dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return s.client.DialContext(ctx, network, addr)
			},
			Resolver: remoteResolver{},
			Logger:   log.New(s.log, "", 0),
		})
		if err != nil {
			t.Close()
			return nil, apperr.New(apperr.TunnelError, "failed to start socks5 server", err)
		}
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			for {
				conn, err := l.Accept()
				if err != nil {
					return
				}
				go func() {
					if err := server.ServeConn(conn); err != nil {
						s.log.Debug().Err(err).Str("tunnel", spec.Name).Msg("socks5 connection ended")
					}
				}()
			}
		}()
	}

	s.log.Info().Str("tunnel", spec.Name).Str("type", string(spec.Type)).
		Str("source", spec.Source()).Str("destination", spec.Destination()).Msg("port forwarding started")
	return t, nil
}

func (t *Tunnel) serve(ctx context.Context, dial func(context.Context) (net.Conn, error)) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			conn, err := t.listener.Accept()
			if err != nil {
				return
			}
			go func() {
				remote, err := dial(ctx)
				if err != nil {
					conn.Close()
					return
				}
				bidirectionalCopy(conn, remote)
			}()
		}
	}()
}

// remoteResolver zostawia rozwiązywanie nazw po stronie serwera SSH
type remoteResolver struct{}

func (remoteResolver) Resolve(ctx context.Context, name string) (context.Context, net.IP, error) {
	return ctx, nil, nil
}

// bidirectionalCopy przepisuje dane w obie strony aż jedna ze stron się
// zamknie
func bidirectionalCopy(a, b io.ReadWriteCloser) {
	done := make(chan struct{}, 2)
	cp := func(dst, src io.ReadWriteCloser) {
		defer func() { done <- struct{}{} }()
		io.Copy(dst, src)
	}
	go cp(a, b)
	go cp(b, a)

	<-done
	a.Close()
	b.Close()
	<-done
}
