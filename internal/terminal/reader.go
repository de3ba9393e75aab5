package terminal

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/nonomal/termora-sub000/internal/connector"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

const (
	// ReadBufferSize is the chunk size of a single connector read.
	ReadBufferSize = 8 * 1024

	// DefaultBackoff is how long the reader waits after an empty read.
	DefaultBackoff = 10 * time.Millisecond
)

// Reader drains one connector into the model for the connector's lifetime.
type Reader struct {
	conn    connector.Connector
	model   Model
	ui      Dispatcher
	backoff time.Duration
	log     zerolog.Logger
}

func NewReader(conn connector.Connector, model Model, ui Dispatcher, backoff time.Duration, log zerolog.Logger) *Reader {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	return &Reader{conn: conn, model: model, ui: ui, backoff: backoff, log: log}
}

// Run loops until the connector reports closed, returning nil, or ctx is
// cancelled, returning ctx.Err(). Any other read error ends the loop and is
// returned as is. Text queued on the UI loop is dropped once ctx is done.
func (r *Reader) Run(ctx context.Context) error {
	buf := make([]byte, ReadBufferSize)
	dec := newStreamDecoder(r.conn.Charset())

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.conn.Read(buf)
		if n > 0 {
			if text := dec.decode(buf[:n], false); text != "" {
				r.write(ctx, text)
			}
		}
		if err != nil {
			if tail := dec.decode(nil, true); tail != "" {
				r.write(ctx, tail)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				r.log.Debug().Msg("connector closed")
				return nil
			}
			return err
		}
		if n == 0 {
			timer := time.NewTimer(r.backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}

func (r *Reader) write(ctx context.Context, text string) {
	r.ui.Dispatch(func() {
		if ctx.Err() != nil {
			return
		}
		r.model.Write(text)
	})
}

// streamDecoder keeps incomplete multi-byte sequences between reads.
type streamDecoder struct {
	t       transform.Transformer
	pending []byte
	out     []byte
}

func newStreamDecoder(enc encoding.Encoding) *streamDecoder {
	if enc == nil {
		enc = encoding.Nop
	}
	return &streamDecoder{t: enc.NewDecoder(), out: make([]byte, 4*ReadBufferSize)}
}

func (d *streamDecoder) decode(p []byte, atEOF bool) string {
	src := append(d.pending, p...)
	var sb strings.Builder
	for {
		nDst, nSrc, err := d.t.Transform(d.out, src, atEOF)
		sb.Write(d.out[:nDst])
		src = src[nSrc:]
		if err == transform.ErrShortDst && (nDst > 0 || nSrc > 0) {
			continue
		}
		if err != nil && err != transform.ErrShortSrc {
			// undecodable input is dropped rather than stalling the stream
			src = nil
		}
		break
	}

	if len(src) > 0 && !atEOF {
		d.pending = append([]byte(nil), src...)
	} else {
		d.pending = nil
	}
	if atEOF {
		d.t.Reset()
	}
	return sb.String()
}
