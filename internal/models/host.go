// internal/models/host.go

package models

import (
	"net"
	"strconv"
	"strings"
)

type Protocol string

const (
	ProtocolFolder Protocol = "Folder"
	ProtocolSSH    Protocol = "SSH"
	ProtocolLocal  Protocol = "Local"
	ProtocolSerial Protocol = "Serial"
)

type AuthenticationType string

const (
	AuthNone                AuthenticationType = "No"
	AuthPassword            AuthenticationType = "Password"
	AuthPublicKey           AuthenticationType = "PublicKey"
	AuthSSHAgent            AuthenticationType = "SSHAgent"
	AuthKeyboardInteractive AuthenticationType = "KeyboardInteractive"
)

type ProxyType string

const (
	ProxyNone   ProxyType = "No"
	ProxyHTTP   ProxyType = "HTTP"
	ProxySOCKS5 ProxyType = "SOCKS5"
)

type TunnelingType string

const (
	TunnelLocal   TunnelingType = "Local"
	TunnelRemote  TunnelingType = "Remote"
	TunnelDynamic TunnelingType = "Dynamic"
)

const (
	DefaultSSHPort  = 22
	DefaultEncoding = "UTF-8"
)

// Authentication opisuje sposób logowania. Dla PublicKey pole Password
// zawiera identyfikator klucza, a nie sekret.
type Authentication struct {
	Type     AuthenticationType `json:"type" yaml:"type"`
	Password string             `json:"password,omitempty" yaml:"password,omitempty"`
}

type Proxy struct {
	Type               ProxyType          `json:"type" yaml:"type"`
	Host               string             `json:"host,omitempty" yaml:"host,omitempty"`
	Port               int                `json:"port,omitempty" yaml:"port,omitempty"`
	AuthenticationType AuthenticationType `json:"authenticationType,omitempty" yaml:"authenticationType,omitempty"`
	Username           string             `json:"username,omitempty" yaml:"username,omitempty"`
	Password           string             `json:"password,omitempty" yaml:"password,omitempty"`
}

// Tunneling to reguła przekierowania portów. Dynamic ignoruje pola Destination*.
type Tunneling struct {
	Name            string        `json:"name" yaml:"name"`
	Type            TunnelingType `json:"type" yaml:"type"`
	SourceHost      string        `json:"sourceHost" yaml:"sourceHost"`
	SourcePort      int           `json:"sourcePort" yaml:"sourcePort"`
	DestinationHost string        `json:"destinationHost,omitempty" yaml:"destinationHost,omitempty"`
	DestinationPort int           `json:"destinationPort,omitempty" yaml:"destinationPort,omitempty"`
}

func (t Tunneling) Source() string {
	return net.JoinHostPort(t.SourceHost, strconv.Itoa(t.SourcePort))
}

func (t Tunneling) Destination() string {
	return net.JoinHostPort(t.DestinationHost, strconv.Itoa(t.DestinationPort))
}

type SerialComm struct {
	Port        string `json:"port" yaml:"port"`
	BaudRate    int    `json:"baudRate" yaml:"baudRate"`
	DataBits    int    `json:"dataBits" yaml:"dataBits"`
	StopBits    string `json:"stopBits" yaml:"stopBits"`
	Parity      string `json:"parity" yaml:"parity"`
	FlowControl string `json:"flowControl" yaml:"flowControl"`
}

type Options struct {
	JumpHosts           []string   `json:"jumpHosts,omitempty" yaml:"jumpHosts,omitempty"`
	Encoding            string     `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	Env                 string     `json:"env,omitempty" yaml:"env,omitempty"`
	StartupCommand      string     `json:"startupCommand,omitempty" yaml:"startupCommand,omitempty"`
	HeartbeatInterval   int        `json:"heartbeatInterval,omitempty" yaml:"heartbeatInterval,omitempty"`
	SerialComm          SerialComm `json:"serialComm,omitempty" yaml:"serialComm,omitempty"`
	EnableX11Forwarding bool       `json:"enableX11Forwarding,omitempty" yaml:"enableX11Forwarding,omitempty"`
	X11Forwarding       string     `json:"x11Forwarding,omitempty" yaml:"x11Forwarding,omitempty"`
}

// Envs parsuje linie "KLUCZ=WARTOŚĆ" z pola Env
func (o Options) Envs() map[string]string {
	envs := make(map[string]string)
	for _, line := range strings.Split(o.Env, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok || strings.TrimSpace(key) == "" {
			continue
		}
		envs[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return envs
}

type Host struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	Protocol       Protocol       `json:"protocol" yaml:"protocol"`
	Host           string         `json:"host,omitempty" yaml:"host,omitempty"`
	Port           int            `json:"port,omitempty" yaml:"port,omitempty"`
	Username       string         `json:"username,omitempty" yaml:"username,omitempty"`
	Remark         string         `json:"remark,omitempty" yaml:"remark,omitempty"`
	Authentication Authentication `json:"authentication" yaml:"authentication"`
	Proxy          Proxy          `json:"proxy" yaml:"proxy"`
	Options        Options        `json:"options" yaml:"options"`
	Tunnelings     []Tunneling    `json:"tunnelings,omitempty" yaml:"tunnelings,omitempty"`
	Sort           int64          `json:"sort,omitempty" yaml:"sort,omitempty"`
	ParentID       string         `json:"parentId,omitempty" yaml:"parentId,omitempty"`
	CreateDate     int64          `json:"createDate,omitempty" yaml:"createDate,omitempty"`
	UpdateDate     int64          `json:"updateDate,omitempty" yaml:"updateDate,omitempty"`
	Deleted        bool           `json:"deleted,omitempty" yaml:"deleted,omitempty"`
}

// Connectable mówi czy z rekordu można otworzyć sesję
func (h *Host) Connectable() bool {
	return !h.Deleted && h.Protocol != ProtocolFolder
}

// Address zwraca host:port, z domyślnym portem SSH
func (h *Host) Address() string {
	port := h.Port
	if port <= 0 {
		port = DefaultSSHPort
	}
	return net.JoinHostPort(h.Host, strconv.Itoa(port))
}

// Encoding zwraca nazwę kodowania znaków, domyślnie UTF-8
func (h *Host) Encoding() string {
	if h.Options.Encoding == "" {
		return DefaultEncoding
	}
	return h.Options.Encoding
}

type Config struct {
	Hosts []Host `json:"hosts" yaml:"hosts"`
	Keys  []Key  `json:"keys" yaml:"keys"`
}
