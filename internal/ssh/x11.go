// internal/ssh/x11.go

package ssh

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// X11Forwarding przekazuje kanały "x11" otwierane przez serwer do
// lokalnego serwera X
type X11Forwarding struct {
	network string
	addr    string
	screen  uint32
	cookie  string
	log     zerolog.Logger

	once sync.Once
}

type x11Request struct {
	SingleConnection bool
	AuthProtocol     string
	AuthCookie       string
	ScreenNumber     uint32
}

// NewX11Forwarding przygotowuje przekierowanie dla wyświetlacza w formacie
// DISPLAY (":0", "localhost:10.0", "unix:1")
func NewX11Forwarding(display string, log zerolog.Logger) (*X11Forwarding, error) {
	network, addr, screen, err := ParseDisplay(display)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate x11 cookie: %v", err)
	}

	return &X11Forwarding{
		network: network,
		addr:    addr,
		screen:  screen,
		cookie:  hex.EncodeToString(buf),
		log:     log,
	}, nil
}

// ParseDisplay zamienia DISPLAY na adres lokalnego serwera X
func ParseDisplay(display string) (network, addr string, screen uint32, err error) {
	if display == "" {
		display = "localhost:0"
	}
	idx := strings.LastIndex(display, ":")
	if idx < 0 {
		return "", "", 0, fmt.Errorf("invalid display %q", display)
	}
	host := display[:idx]
	number := display[idx+1:]
	if dot := strings.Index(number, "."); dot >= 0 {
		s, err := strconv.ParseUint(number[dot+1:], 10, 32)
		if err != nil {
			return "", "", 0, fmt.Errorf("invalid display %q", display)
		}
		screen = uint32(s)
		number = number[:dot]
	}
	n, err := strconv.Atoi(number)
	if err != nil || n < 0 {
		return "", "", 0, fmt.Errorf("invalid display %q", display)
	}

	if host == "" || host == "unix" {
		return "unix", fmt.Sprintf("/tmp/.X11-unix/X%d", n), screen, nil
	}
	return "tcp", net.JoinHostPort(host, strconv.Itoa(6000+n)), screen, nil
}

func (x *X11Forwarding) request(session *ssh.Session) error {
	payload := ssh.Marshal(x11Request{
		AuthProtocol: "MIT-MAGIC-COOKIE-1",
		AuthCookie:   x.cookie,
		ScreenNumber: x.screen,
	})
	ok, err := session.SendRequest("x11-req", true, payload)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("server rejected x11-req")
	}
	return nil
}

// serve rejestruje obsługę kanałów x11 na kliencie; działa raz na klienta
func (x *X11Forwarding) serve(client *ssh.Client) {
	x.once.Do(func() {
		chans := client.HandleChannelOpen("x11")
		if chans == nil {
			return
		}
		go func() {
			for newCh := range chans {
				go x.handle(newCh)
			}
		}()
	})
}

func (x *X11Forwarding) handle(newCh ssh.NewChannel) {
	local, err := net.Dial(x.network, x.addr)
	if err != nil {
		x.log.Warn().Err(err).Str("display", x.addr).Msg("x11 display unreachable")
		newCh.Reject(ssh.ConnectionFailed, "display unreachable")
		return
	}

	ch, reqs, err := newCh.Accept()
	if err != nil {
		local.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	bidirectionalCopy(ch, local)
}
