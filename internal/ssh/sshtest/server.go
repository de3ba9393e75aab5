// Package sshtest runs an in-process SSH server for tests. Shell sessions
// echo their input, direct-tcpip channels are dialed for real and remote
// forwarding requests are refused.
package sshtest

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const (
	User     = "tester"
	Password = "secret"
)

type Server struct {
	Addr    string
	HostKey ssh.Signer

	config   *ssh.ServerConfig
	listener net.Listener

	mu        sync.Mutex
	envs      map[string]string
	ptyReqs   int
	keepAlive int
	resizes   int
}

// NewServer starts a server on a random local port. It is closed with the
// test.
func NewServer(t *testing.T) *Server {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("host key signer: %v", err)
	}

	s := &Server{HostKey: signer, envs: make(map[string]string)}
	s.config = &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == User && string(pass) == Password {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
	}
	s.config.AddHostKey(signer)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s.listener = l
	s.Addr = l.Addr().String()
	t.Cleanup(func() { l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go s.handle(conn)
		}
	}()
	return s
}

// Port returns the listening port.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.Addr)
	n, _ := strconv.Atoi(port)
	return n
}

// Env returns the value a client set with setenv.
func (s *Server) Env(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.envs[name]
}

func (s *Server) PtyRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ptyReqs
}

func (s *Server) KeepAlives() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keepAlive
}

func (s *Server) Resizes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resizes
}

func (s *Server) handle(conn net.Conn) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		conn.Close()
		return
	}
	defer sconn.Close()

	go func() {
		for req := range reqs {
			ok := false
			if req.Type == "keepalive@openssh.com" {
				s.mu.Lock()
				s.keepAlive++
				s.mu.Unlock()
				ok = true
			}
			req.Reply(ok, nil)
		}
	}()

	for newCh := range chans {
		switch newCh.ChannelType() {
		case "session":
			go s.handleSession(newCh)
		case "direct-tcpip":
			go handleDirect(newCh)
		default:
			newCh.Reject(ssh.UnknownChannelType, "unsupported channel type")
		}
	}
}

type envRequest struct {
	Name  string
	Value string
}

type directRequest struct {
	Host     string
	Port     uint32
	OrigHost string
	OrigPort uint32
}

type subsystemRequest struct {
	Name string
}

func (s *Server) handleSession(newCh ssh.NewChannel) {
	ch, reqs, err := newCh.Accept()
	if err != nil {
		return
	}
	defer ch.Close()

	for req := range reqs {
		switch req.Type {
		case "env":
			var env envRequest
			if err := ssh.Unmarshal(req.Payload, &env); err == nil {
				s.mu.Lock()
				s.envs[env.Name] = env.Value
				s.mu.Unlock()
			}
			req.Reply(true, nil)
		case "pty-req":
			s.mu.Lock()
			s.ptyReqs++
			s.mu.Unlock()
			req.Reply(true, nil)
		case "shell":
			req.Reply(true, nil)
			go s.serveShellRequests(reqs)
			io.Copy(ch, ch)
			return
		case "subsystem":
			var sub subsystemRequest
			if err := ssh.Unmarshal(req.Payload, &sub); err != nil || sub.Name != "sftp" {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			go ssh.DiscardRequests(reqs)
			server, err := sftp.NewServer(ch)
			if err != nil {
				return
			}
			server.Serve()
			server.Close()
			return
		default:
			req.Reply(false, nil)
		}
	}
}

func (s *Server) serveShellRequests(reqs <-chan *ssh.Request) {
	for req := range reqs {
		if req.Type == "window-change" {
			s.mu.Lock()
			s.resizes++
			s.mu.Unlock()
		}
		if req.WantReply {
			req.Reply(req.Type == "window-change", nil)
		}
	}
}

func handleDirect(newCh ssh.NewChannel) {
	var req directRequest
	if err := ssh.Unmarshal(newCh.ExtraData(), &req); err != nil {
		newCh.Reject(ssh.ConnectionFailed, "bad payload")
		return
	}
	target, err := net.Dial("tcp", net.JoinHostPort(req.Host, strconv.Itoa(int(req.Port))))
	if err != nil {
		newCh.Reject(ssh.ConnectionFailed, err.Error())
		return
	}
	ch, reqs, err := newCh.Accept()
	if err != nil {
		target.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	done := make(chan struct{}, 2)
	go func() { io.Copy(ch, target); done <- struct{}{} }()
	go func() { io.Copy(target, ch); done <- struct{}{} }()
	<-done
	ch.Close()
	target.Close()
	<-done
}

// EchoServer starts a TCP server that writes back everything it reads.
func EchoServer(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				io.Copy(c, c)
			}()
		}
	}()
	return l.Addr().String()
}
