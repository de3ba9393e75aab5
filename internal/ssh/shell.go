// internal/ssh/shell.go

package ssh

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	apperr "github.com/nonomal/termora-sub000/internal/error"
	"golang.org/x/crypto/ssh"
)

// TermType zgłaszany serwerowi przy żądaniu PTY
const TermType = "xterm-256color"

// Shell to kanał interaktywnej powłoki z przydzielonym PTY
type Shell struct {
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader

	once     sync.Once
	closeErr error
}

// OpenShell otwiera kanał sesji, ustawia zmienne środowiskowe, żąda PTY
// (i opcjonalnie X11) i uruchamia powłokę
func OpenShell(s *Session, rows, cols int, env map[string]string, x11 *X11Forwarding) (*Shell, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return nil, apperr.New(apperr.ChannelError, "failed to create session", err)
	}

	fail := func(msg string, err error) (*Shell, error) {
		session.Close()
		return nil, apperr.New(apperr.ChannelError, msg, err)
	}

	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		// Serwery często odrzucają setenv (AcceptEnv), to nie jest błąd krytyczny
		if err := session.Setenv(name, env[name]); err != nil {
			s.log.Debug().Str("name", name).Err(err).Msg("setenv rejected")
		}
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		return fail("failed to create stdin pipe", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return fail("failed to create stdout pipe", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
		ssh.VINTR:         3,  // Ctrl+C
		ssh.VQUIT:         28, // Ctrl+\
		ssh.VERASE:        127,
		ssh.VKILL:         21, // Ctrl+U
		ssh.VEOF:          4,  // Ctrl+D
		ssh.VWERASE:       23, // Ctrl+W
		ssh.VLNEXT:        22, // Ctrl+V
		ssh.VSUSP:         26, // Ctrl+Z
	}
	if err := session.RequestPty(TermType, rows, cols, modes); err != nil {
		return fail("failed to request PTY", err)
	}

	if x11 != nil {
		x11.serve(s.client)
		if err := x11.request(session); err != nil {
			s.log.Warn().Err(err).Msg("x11 forwarding request failed")
		}
	}

	if err := session.Shell(); err != nil {
		return fail("failed to start shell", err)
	}

	return &Shell{session: session, stdin: stdin, stdout: stdout}, nil
}

func (sh *Shell) Read(p []byte) (int, error) {
	return sh.stdout.Read(p)
}

func (sh *Shell) Write(p []byte) (int, error) {
	return sh.stdin.Write(p)
}

func (sh *Shell) WindowChange(rows, cols int) error {
	if err := sh.session.WindowChange(rows, cols); err != nil {
		return fmt.Errorf("failed to update window size: %v", err)
	}
	return nil
}

// Close zamyka kanał powłoki; kolejne wywołania zwracają ten sam wynik
func (sh *Shell) Close() error {
	sh.once.Do(func() {
		err := sh.session.Close()
		if err != nil && !errors.Is(err, io.EOF) {
			sh.closeErr = err
		}
	})
	return sh.closeErr
}
