package main

// escapeKey (Ctrl+]) prefixes local commands; pressing it twice sends it
// through.
const escapeKey = 0x1d

const (
	cmdReconnect    = 'r'
	cmdQuit         = 'q'
	cmdCancelZModem = 'z'
	cmdRecord       = 'm'
)

// inputFilter splits keyboard input into bytes for the remote side and local
// commands typed after the escape key. The escape state survives between
// reads.
type inputFilter struct {
	pending bool
}

func (f *inputFilter) Filter(p []byte) (forward, commands []byte) {
	for _, b := range p {
		switch {
		case f.pending:
			f.pending = false
			if b == escapeKey {
				forward = append(forward, b)
			} else {
				commands = append(commands, b)
			}
		case b == escapeKey:
			f.pending = true
		default:
			forward = append(forward, b)
		}
	}
	return forward, commands
}
