package connector

import (
	"io"
	"sync"
	"time"

	"golang.org/x/text/encoding"
)

// DefaultSerialPoll bounds how long Read waits for the next chunk.
const DefaultSerialPoll = time.Second

// serialConnector turns a port that delivers bytes whenever the line has them
// into the pull-based Read contract: a pump goroutine queues incoming chunks
// and Read waits for one at most poll long.
type serialConnector struct {
	port    io.ReadWriteCloser
	charset encoding.Encoding
	poll    time.Duration

	queue   chan []byte
	done    chan struct{}
	ended   chan struct{}
	pending []byte

	once     sync.Once
	closeErr error
}

func NewSerial(port io.ReadWriteCloser, charset encoding.Encoding, poll time.Duration) Connector {
	if poll <= 0 {
		poll = DefaultSerialPoll
	}
	c := &serialConnector{
		port:    port,
		charset: charset,
		poll:    poll,
		queue:   make(chan []byte, 64),
		done:    make(chan struct{}),
		ended:   make(chan struct{}),
	}
	go c.pump()
	return c
}

func (c *serialConnector) pump() {
	defer close(c.ended)
	buf := make([]byte, 4096)
	for {
		n, err := c.port.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case c.queue <- chunk:
			case <-c.done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (c *serialConnector) take(p []byte, chunk []byte) int {
	n := copy(p, chunk)
	c.pending = chunk[n:]
	return n
}

func (c *serialConnector) Read(p []byte) (int, error) {
	if len(c.pending) > 0 {
		return c.take(p, c.pending), nil
	}

	timer := time.NewTimer(c.poll)
	defer timer.Stop()

	select {
	case chunk := <-c.queue:
		return c.take(p, chunk), nil
	case <-c.done:
		return 0, io.EOF
	case <-c.ended:
		// port failed; hand out what was queued before reporting EOF
		select {
		case chunk := <-c.queue:
			return c.take(p, chunk), nil
		default:
			return 0, io.EOF
		}
	case <-timer.C:
		return 0, nil
	}
}

func (c *serialConnector) Write(p []byte) (int, error) {
	select {
	case <-c.done:
		return 0, ErrClosed
	default:
	}
	return c.port.Write(p)
}

func (c *serialConnector) Resize(rows, cols int) error {
	return nil
}

func (c *serialConnector) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.closeErr = c.port.Close()
	})
	return c.closeErr
}

func (c *serialConnector) Charset() encoding.Encoding {
	return c.charset
}
