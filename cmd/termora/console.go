package main

import (
	"io"
	"sync"
)

// console is the terminal model for a real terminal: the local emulator
// renders whatever the session writes, so the document is just stdout.
type console struct {
	out io.Writer

	mu   sync.Mutex
	rows int
	cols int
	data map[string]any
}

func newConsole(out io.Writer, rows, cols int) *console {
	if rows <= 0 || cols <= 0 {
		rows, cols = 24, 80
	}
	return &console{out: out, rows: rows, cols: cols, data: make(map[string]any)}
}

func (c *console) Write(text string) {
	io.WriteString(c.out, text)
}

func (c *console) Resize(rows, cols int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows, c.cols = rows, cols
}

// Clear wipes the screen and homes the cursor.
func (c *console) Clear() {
	io.WriteString(c.out, "\x1b[2J\x1b[H")
}

func (c *console) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows, c.cols
}

func (c *console) SetData(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

func (c *console) Data(key string) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key]
}
