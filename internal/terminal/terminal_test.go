package terminal

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nonomal/termora-sub000/internal/terminal/terminaltest"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

type step struct {
	data []byte
	err  error
}

// stepConn returns one scripted result per Read, then EOF.
type stepConn struct {
	mu      sync.Mutex
	steps   []step
	reads   int
	charset encoding.Encoding
}

func (c *stepConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	if len(c.steps) == 0 {
		return 0, io.EOF
	}
	s := c.steps[0]
	c.steps = c.steps[1:]
	return copy(p, s.data), s.err
}

func (c *stepConn) Write(p []byte) (int, error) { return len(p), nil }
func (c *stepConn) Resize(int, int) error       { return nil }
func (c *stepConn) Close() error                { return nil }
func (c *stepConn) Charset() encoding.Encoding {
	if c.charset == nil {
		return unicode.UTF8
	}
	return c.charset
}

func TestReaderSkipsEmptyReads(t *testing.T) {
	conn := &stepConn{steps: []step{{}, {}, {data: []byte("hello")}, {err: io.EOF}}}
	model := terminaltest.NewModel(24, 80)

	r := NewReader(conn, model, terminaltest.Inline{}, time.Millisecond, zerolog.Nop())
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	writes := model.Writes()
	if len(writes) != 1 || writes[0] != "hello" {
		t.Errorf("writes = %q, want exactly [\"hello\"]", writes)
	}
	if conn.reads != 4 {
		t.Errorf("reads = %d, want 4", conn.reads)
	}
}

func TestReaderJoinsSplitMultibyte(t *testing.T) {
	word := []byte("zażółć")
	conn := &stepConn{steps: []step{{data: word[:3]}, {data: word[3:6]}, {data: word[6:]}}}
	model := terminaltest.NewModel(24, 80)

	if err := NewReader(conn, model, terminaltest.Inline{}, time.Millisecond, zerolog.Nop()).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	text := model.Text()
	if text != "zażółć" {
		t.Errorf("decoded %q", text)
	}
	if strings.ContainsRune(text, '�') {
		t.Error("split sequence produced a replacement character")
	}
}

func TestReaderDecodesCharset(t *testing.T) {
	conn := &stepConn{
		steps:   []step{{data: []byte{0xc4, 0xe3}}, {data: []byte{0xba}}, {data: []byte{0xc3}}},
		charset: simplifiedchinese.GBK,
	}
	model := terminaltest.NewModel(24, 80)
	if err := NewReader(conn, model, terminaltest.Inline{}, time.Millisecond, zerolog.Nop()).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := model.Text(); got != "你好" {
		t.Errorf("decoded %q", got)
	}
}

func TestReaderReturnsReadError(t *testing.T) {
	boom := errors.New("boom")
	conn := &stepConn{steps: []step{{data: []byte("x"), err: boom}}}
	model := terminaltest.NewModel(24, 80)
	err := NewReader(conn, model, terminaltest.Inline{}, time.Millisecond, zerolog.Nop()).Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if model.Text() != "x" {
		t.Errorf("data delivered with the error was lost: %q", model.Text())
	}
}

// idleConn never has data.
type idleConn struct{ stepConn }

func (c *idleConn) Read(p []byte) (int, error) { return 0, nil }

func TestReaderCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewReader(&idleConn{}, terminaltest.NewModel(24, 80), terminaltest.Inline{}, 5*time.Millisecond, zerolog.Nop()).Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("reader did not stop after cancel")
	}
}

func TestReaderDropsQueuedTextAfterCancel(t *testing.T) {
	var queued []func()
	ui := DispatchFunc(func(fn func()) { queued = append(queued, fn) })
	model := terminaltest.NewModel(24, 80)

	ctx, cancel := context.WithCancel(context.Background())
	conn := &stepConn{steps: []step{{data: []byte("late")}}}
	if err := NewReader(conn, model, ui, time.Millisecond, zerolog.Nop()).Run(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	for _, fn := range queued {
		fn()
	}
	if len(model.Writes()) != 0 {
		t.Errorf("model written after cancel: %q", model.Writes())
	}
}

func TestLoopRunsInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop := NewLoop()
	go loop.Run(ctx)

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		loop.Dispatch(func() { got = append(got, i) })
	}
	loop.Sync(func() {})

	if len(got) != 100 {
		t.Fatalf("ran %d functions, want 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("got[%d] = %d, order not preserved", i, v)
		}
	}
}

func TestLoopDispatchFromLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop := NewLoop()
	go loop.Run(ctx)

	done := make(chan struct{})
	loop.Dispatch(func() {
		loop.Dispatch(func() { close(done) })
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nested dispatch never ran")
	}
}

func TestErrorLineContainsMessage(t *testing.T) {
	line := ErrorLine("authentication failed")
	if !strings.HasPrefix(line, "\r\n") || !strings.HasSuffix(line, "\r\n") || !strings.Contains(line, "authentication failed") {
		t.Errorf("ErrorLine = %q", line)
	}
}
