// internal/ssh/client.go

package ssh

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	apperr "github.com/nonomal/termora-sub000/internal/error"
	"github.com/nonomal/termora-sub000/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/net/proxy"
)

const (
	// MinKeepAlive jest dolną granicą interwału heartbeat
	MinKeepAlive = 3 * time.Second

	DefaultConnectTimeout = 30 * time.Second
	DefaultAuthTimeout    = 5 * 30 * time.Second
)

// HostLookup rozwiązuje identyfikatory jump hostów
type HostLookup interface {
	LookupHost(id string) (*models.Host, bool)
}

// KeyResolver materializuje klucz prywatny z referencji zapisanej w hoście
type KeyResolver interface {
	Signer(ref string) (ssh.Signer, error)
}

type Options struct {
	Keys  KeyResolver
	Hosts HostLookup

	// KnownHostsPath wskazuje plik known_hosts; HostKeyCallback go zastępuje
	KnownHostsPath  string
	HostKeyCallback ssh.HostKeyCallback

	ConnectTimeout time.Duration
	AuthTimeout    time.Duration

	// Challenge odpowiada na pytania keyboard-interactive; domyślnie
	// odpowiedzią jest hasło zapisane w hoście
	Challenge ssh.KeyboardInteractiveChallenge

	// AgentSocket nadpisuje SSH_AUTH_SOCK
	AgentSocket string

	Logger zerolog.Logger
}

// Client przechowuje konfigurację połączenia wyprowadzoną z opisu hosta.
// Samo połączenie otwiera OpenSession.
type Client struct {
	host            *models.Host
	opts            Options
	keepAlive       time.Duration
	allowForwarding bool
	dialer          proxy.Dialer
	hostKeyCallback ssh.HostKeyCallback
	log             zerolog.Logger

	mu         sync.Mutex
	agentConns []net.Conn
}

// NewClient buduje klienta SSH dla hosta
func NewClient(host *models.Host, opts Options) (*Client, error) {
	if host == nil {
		return nil, apperr.New(apperr.ValidationError, "host configuration is required", nil)
	}
	if host.Protocol != models.ProtocolSSH {
		return nil, apperr.New(apperr.ValidationError, fmt.Sprintf("host %q is not an SSH host", host.Name), nil)
	}

	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = DefaultAuthTimeout
	}

	dialer, err := newProxyDialer(host.Proxy, opts.ConnectTimeout)
	if err != nil {
		return nil, apperr.New(apperr.ConfigError, "invalid proxy configuration", err)
	}

	callback := opts.HostKeyCallback
	if callback == nil {
		if opts.KnownHostsPath == "" {
			return nil, apperr.New(apperr.ConfigError, "known_hosts path is not configured", nil)
		}
		callback, err = TrustOnFirstUse(opts.KnownHostsPath)
		if err != nil {
			return nil, apperr.New(apperr.ConfigError, "failed to load known_hosts", err)
		}
	}

	return &Client{
		host:            host,
		opts:            opts,
		keepAlive:       KeepAliveInterval(host.Options.HeartbeatInterval),
		allowForwarding: len(host.Tunnelings) > 0 || len(host.Options.JumpHosts) > 0,
		dialer:          dialer,
		hostKeyCallback: callback,
		log:             opts.Logger.With().Str("host", host.Name).Logger(),
	}, nil
}

// KeepAliveInterval zwraca max(heartbeat, 3s)
func KeepAliveInterval(heartbeatSeconds int) time.Duration {
	d := time.Duration(heartbeatSeconds) * time.Second
	if d < MinKeepAlive {
		return MinKeepAlive
	}
	return d
}

func (c *Client) KeepAlive() time.Duration {
	return c.keepAlive
}

// ForwardingAllowed mówi czy host może otwierać kanały przekierowań.
// Bez zadeklarowanych tuneli i jump hostów wszystko jest odrzucane.
func (c *Client) ForwardingAllowed() bool {
	return c.allowForwarding
}

func (c *Client) Host() *models.Host {
	return c.host
}

// Close zwalnia zasoby klienta (połączenia z agentem)
func (c *Client) Close() error {
	c.mu.Lock()
	conns := c.agentConns
	c.agentConns = nil
	c.mu.Unlock()

	var errs []error
	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("agent close error: %v", err))
		}
	}
	return errors.Join(errs...)
}

// resolveChain zwraca jump hosty w kolejności, a na końcu host docelowy
func (c *Client) resolveChain() ([]*models.Host, error) {
	chain := make([]*models.Host, 0, len(c.host.Options.JumpHosts)+1)
	for _, id := range c.host.Options.JumpHosts {
		if c.opts.Hosts == nil {
			return nil, apperr.New(apperr.ConfigError, "jump hosts configured but no host provider", nil)
		}
		jump, ok := c.opts.Hosts.LookupHost(id)
		if !ok {
			return nil, apperr.New(apperr.ConfigError, fmt.Sprintf("jump host %q not found", id), nil)
		}
		if jump.Protocol != models.ProtocolSSH {
			return nil, apperr.New(apperr.ConfigError, fmt.Sprintf("jump host %q is not an SSH host", jump.Name), nil)
		}
		chain = append(chain, jump)
	}
	return append(chain, c.host), nil
}
