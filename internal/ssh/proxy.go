// internal/ssh/proxy.go

package ssh

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nonomal/termora-sub000/internal/models"
	"golang.org/x/net/proxy"
)

func init() {
	proxy.RegisterDialerType("http", func(u *url.URL, forward proxy.Dialer) (proxy.Dialer, error) {
		return &httpConnectDialer{proxyURL: u, forward: forward}, nil
	})
}

// newProxyDialer buduje dialer z opisu proxy; bez proxy łączy bezpośrednio
func newProxyDialer(p models.Proxy, timeout time.Duration) (proxy.Dialer, error) {
	direct := &net.Dialer{Timeout: timeout}

	var scheme string
	switch p.Type {
	case models.ProxyNone, "":
		return direct, nil
	case models.ProxyHTTP:
		scheme = "http"
	case models.ProxySOCKS5:
		scheme = "socks5"
	default:
		return nil, fmt.Errorf("unsupported proxy type %q", p.Type)
	}

	u := &url.URL{Scheme: scheme, Host: net.JoinHostPort(p.Host, strconv.Itoa(p.Port))}
	if p.AuthenticationType == models.AuthPassword && p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return proxy.FromURL(u, direct)
}

func dialContext(ctx context.Context, d proxy.Dialer, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, addr)
	}
	return d.Dial(network, addr)
}

// httpConnectDialer tuneluje połączenie przez proxy HTTP metodą CONNECT
type httpConnectDialer struct {
	proxyURL *url.URL
	forward  proxy.Dialer
}

func (d *httpConnectDialer) Dial(network, addr string) (net.Conn, error) {
	return d.DialContext(context.Background(), network, addr)
}

func (d *httpConnectDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	conn, err := dialContext(ctx, d.forward, "tcp", d.proxyURL.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to dial proxy: %v", err)
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if user := d.proxyURL.User; user != nil {
		password, _ := user.Password()
		token := base64.StdEncoding.EncodeToString([]byte(user.Username() + ":" + password))
		req.Header.Set("Proxy-Authorization", "Basic "+token)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}

	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send CONNECT: %v", err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read proxy response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, fmt.Errorf("proxy refused CONNECT to %s: %s", addr, resp.Status)
	}

	// Serwer SSH wysyła baner od razu, może już siedzieć w buforze
	if br.Buffered() > 0 {
		return &bufferedConn{Conn: conn, r: br}, nil
	}
	return conn, nil
}

type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}
