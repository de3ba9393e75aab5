// internal/transfer/zmodem.go

package transfer

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/nonomal/termora-sub000/internal/connector"
	"github.com/rs/zerolog"
)

var (
	// ZRQINIT: zdalny sz chce wysłać pliki
	zrqinit = []byte("**\x18B00")
	// ZRINIT: zdalny rz czeka na pliki
	zrinit = []byte("**\x18B01")

	// zmodemAbort przerywa transfer po stronie zdalnej
	zmodemAbort = []byte("\x18\x18\x18\x18\x18\x18\x18\x18\x08\x08\x08\x08\x08\x08\x08\x08\x08\x08")
)

type ZModemOptions struct {
	// Receive uruchamiany gdy zdalny sz wysyła pliki (domyślnie rz)
	Receive []string
	// Send uruchamiany z listą plików gdy zdalny rz czeka (domyślnie sz)
	Send []string
	// Dir to katalog roboczy odbiornika
	Dir string
	// Files wskazuje pliki do wysłania; brak plików przerywa transfer
	Files func() []string
	// Notify dostaje komunikaty dla użytkownika
	Notify func(string)
	Logger zerolog.Logger
}

// ZModem wykrywa nagłówek ZMODEM w strumieniu wyjściowym i oddaje strumień
// lokalnemu rz/sz na czas transferu
type ZModem struct {
	opts ZModemOptions

	mu     sync.Mutex
	active map[*zmodemTap]struct{}
}

func NewZModem(opts ZModemOptions) *ZModem {
	if len(opts.Receive) == 0 {
		opts.Receive = []string{"rz", "-E", "-e"}
	}
	if len(opts.Send) == 0 {
		opts.Send = []string{"sz", "-e"}
	}
	return &ZModem{opts: opts, active: make(map[*zmodemTap]struct{})}
}

// Tap jest connector.TapFunc dla fabryki
func (z *ZModem) Tap(m *connector.Multiplexer) connector.Tap {
	return &zmodemTap{z: z}
}

// Cancel przerywa wszystkie trwające transfery
func (z *ZModem) Cancel() {
	z.mu.Lock()
	taps := make([]*zmodemTap, 0, len(z.active))
	for t := range z.active {
		taps = append(taps, t)
	}
	z.mu.Unlock()

	for _, t := range taps {
		t.cancel()
	}
}

// Active zwraca liczbę trwających transferów
func (z *ZModem) Active() int {
	z.mu.Lock()
	defer z.mu.Unlock()
	return len(z.active)
}

func (z *ZModem) notify(msg string) {
	if z.opts.Notify != nil {
		z.opts.Notify(msg)
	}
}

type zmodemTap struct {
	z *ZModem

	mu    sync.Mutex
	tail  []byte
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

func (t *zmodemTap) Feed(m *connector.Multiplexer, p []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cmd != nil {
		// Proces mógł już się zakończyć; dane i tak nie trafiają do terminala
		t.stdin.Write(p)
		return true
	}

	buf := append(t.tail, p...)
	idx, send := detectHeader(buf)
	if idx < 0 {
		keep := len(zrinit) - 1
		if len(buf) > keep {
			buf = buf[len(buf)-keep:]
		}
		t.tail = append([]byte(nil), buf...)
		return false
	}
	t.tail = nil

	var args []string
	if send {
		var files []string
		if t.z.opts.Files != nil {
			files = t.z.opts.Files()
		}
		if len(files) == 0 {
			m.WriteRaw(zmodemAbort)
			t.z.notify("ZMODEM upload cancelled: no files selected")
			return false
		}
		args = append(append([]string(nil), t.z.opts.Send...), files...)
	} else {
		args = append([]string(nil), t.z.opts.Receive...)
	}

	if !m.Claim(t) {
		return false
	}
	if err := t.start(m, args); err != nil {
		m.Release(t)
		m.WriteRaw(zmodemAbort)
		t.z.opts.Logger.Warn().Err(err).Strs("args", args).Msg("zmodem start failed")
		t.z.notify(fmt.Sprintf("ZMODEM failed: %v", err))
		return false
	}

	t.stdin.Write(buf[idx:])
	return true
}

func (t *zmodemTap) start(m *connector.Multiplexer, args []string) error {
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = t.z.opts.Dir
	cmd.Stdout = rawWriter{m}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	t.cmd = cmd
	t.stdin = stdin

	t.z.mu.Lock()
	t.z.active[t] = struct{}{}
	t.z.mu.Unlock()

	t.z.opts.Logger.Info().Strs("args", args).Msg("zmodem transfer started")
	t.z.notify("ZMODEM transfer started")

	go func() {
		err := cmd.Wait()

		t.mu.Lock()
		t.cmd = nil
		t.stdin = nil
		t.mu.Unlock()

		t.z.mu.Lock()
		delete(t.z.active, t)
		t.z.mu.Unlock()

		m.Release(t)

		if err != nil {
			t.z.opts.Logger.Warn().Err(err).Msg("zmodem transfer failed")
			t.z.notify(fmt.Sprintf("ZMODEM transfer failed: %v", err))
			return
		}
		t.z.notify("ZMODEM transfer finished")
	}()
	return nil
}

func (t *zmodemTap) cancel() {
	t.mu.Lock()
	cmd := t.cmd
	t.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		cmd.Process.Kill()
	}
}

// detectHeader zwraca pozycję nagłówka i czy to ZRINIT (wysyłanie)
func detectHeader(buf []byte) (int, bool) {
	if i := bytes.Index(buf, zrqinit); i >= 0 {
		return i, false
	}
	if i := bytes.Index(buf, zrinit); i >= 0 {
		return i, true
	}
	return -1, false
}

type rawWriter struct {
	m *connector.Multiplexer
}

func (w rawWriter) Write(p []byte) (int, error) {
	return w.m.WriteRaw(p)
}
