//go:build !windows

package connector

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/creack/pty"
	"golang.org/x/text/encoding"
)

type ptyConnector struct {
	cmd     *exec.Cmd
	ptmx    *os.File
	charset encoding.Encoding

	once     sync.Once
	closeErr error
}

// defaultLang is used when neither the environment nor the host sets LANG.
const defaultLang = "en_US.UTF-8"

// OpenPty starts shell as a login shell in the user's home directory,
// attached to a new pseudo-terminal of the given size.
func OpenPty(shell string, env []string, rows, cols int, charset encoding.Encoding) (Connector, error) {
	cmd := shellCommand(shell, env)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return nil, fmt.Errorf("failed to start %s: %v", shell, err)
	}

	return &ptyConnector{cmd: cmd, ptmx: ptmx, charset: charset}, nil
}

func shellCommand(shell string, env []string) *exec.Cmd {
	cmd := exec.Command(shell, "-l")
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	cmd.Env = append(cmd.Env, env...)
	if lookupEnv(cmd.Env, "LANG") == "" {
		cmd.Env = append(cmd.Env, "LANG="+defaultLang)
	}
	if home, err := os.UserHomeDir(); err == nil {
		cmd.Dir = home
	}
	return cmd
}

// lookupEnv returns the value exec would use for name, i.e. the last one.
func lookupEnv(env []string, name string) string {
	value := ""
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok && k == name {
			value = v
		}
	}
	return value
}

func (c *ptyConnector) Read(p []byte) (int, error) {
	n, err := c.ptmx.Read(p)
	if n > 0 {
		return n, nil
	}
	if err != nil {
		// Linux reports EIO once the child exits
		return 0, io.EOF
	}
	return 0, nil
}

func (c *ptyConnector) Write(p []byte) (int, error) {
	return c.ptmx.Write(p)
}

func (c *ptyConnector) Resize(rows, cols int) error {
	return pty.Setsize(c.ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

func (c *ptyConnector) Close() error {
	c.once.Do(func() {
		// Kill the subprocess to avoid orphaned processes
		if c.cmd.Process != nil {
			_ = c.cmd.Process.Kill()
		}
		c.closeErr = c.ptmx.Close()
		_ = c.cmd.Wait()
	})
	return c.closeErr
}

func (c *ptyConnector) Charset() encoding.Encoding {
	return c.charset
}
