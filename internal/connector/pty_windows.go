//go:build windows

package connector

import (
	"errors"

	"golang.org/x/text/encoding"
)

// OpenPty is not available on Windows; local sessions need ConPTY support.
func OpenPty(shell string, env []string, rows, cols int, charset encoding.Encoding) (Connector, error) {
	return nil, errors.New("local terminal is not supported on windows")
}
