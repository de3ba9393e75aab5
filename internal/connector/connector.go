// Package connector implements the byte-oriented endpoints behind a terminal
// session and the decorators wrapped around them.
package connector

import (
	"errors"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// Connector is one live I/O endpoint: a local pty, an SSH shell channel or a
// serial line.
//
// Read returns n > 0 when data arrived, (0, nil) when nothing is available yet
// and the endpoint is still open, and a non-nil error (io.EOF for an orderly
// close) once the endpoint is closed. Close is idempotent and makes a pending
// Read return promptly.
type Connector interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Resize(rows, cols int) error
	Close() error
	Charset() encoding.Encoding
}

var ErrClosed = errors.New("connector closed")

// LookupCharset resolves an encoding name such as "UTF-8" or "GBK".
// Unknown names fall back to UTF-8.
func LookupCharset(name string) encoding.Encoding {
	if name == "" {
		return unicode.UTF8
	}
	enc, err := htmlindex.Get(name)
	if err != nil || enc == nil {
		return unicode.UTF8
	}
	return enc
}
