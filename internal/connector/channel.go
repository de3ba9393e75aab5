package connector

import (
	"errors"
	"io"
	"sync"

	"golang.org/x/text/encoding"
)

// Channel is the part of an SSH shell channel the connector needs.
type Channel interface {
	io.Reader
	io.Writer
	WindowChange(rows, cols int) error
	Close() error
}

type channelConnector struct {
	ch      Channel
	charset encoding.Encoding

	once     sync.Once
	closeErr error
	closed   chan struct{}
}

func NewChannel(ch Channel, charset encoding.Encoding) Connector {
	return &channelConnector{ch: ch, charset: charset, closed: make(chan struct{})}
}

func (c *channelConnector) Read(p []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, io.EOF
	default:
	}
	n, err := c.ch.Read(p)
	if n > 0 {
		return n, nil
	}
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return 0, err
		}
		return 0, io.EOF
	}
	return 0, nil
}

func (c *channelConnector) Write(p []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, ErrClosed
	default:
	}
	return c.ch.Write(p)
}

func (c *channelConnector) Resize(rows, cols int) error {
	return c.ch.WindowChange(rows, cols)
}

func (c *channelConnector) Close() error {
	c.once.Do(func() {
		close(c.closed)
		c.closeErr = c.ch.Close()
	})
	return c.closeErr
}

func (c *channelConnector) Charset() encoding.Encoding {
	return c.charset
}
