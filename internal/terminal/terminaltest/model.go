// Package terminaltest provides an in-memory terminal model for tests.
package terminaltest

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// Model records everything written to it.
type Model struct {
	mu     sync.Mutex
	writes []string
	clears int
	// writes before this index were wiped by the last Clear
	cleared int
	rows    int
	cols    int
	data    map[string]any
}

func NewModel(rows, cols int) *Model {
	return &Model{rows: rows, cols: cols, data: make(map[string]any)}
}

func (m *Model) Write(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, text)
}

func (m *Model) Resize(rows, cols int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows, m.cols = rows, cols
}

func (m *Model) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	m.cleared = len(m.writes)
}

func (m *Model) Size() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows, m.cols
}

func (m *Model) SetData(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

func (m *Model) Data(key string) any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key]
}

// Writes returns a copy of every Write call in order.
func (m *Model) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.writes...)
}

// Visible concatenates the writes since the last Clear.
func (m *Model) Visible() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return strings.Join(m.writes[m.cleared:], "")
}

// Text concatenates all writes.
func (m *Model) Text() string {
	return strings.Join(m.Writes(), "")
}

func (m *Model) Clears() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears
}

// WaitFor polls until the written text contains substr.
func (m *Model) WaitFor(t *testing.T, substr string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if strings.Contains(m.Text(), substr) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %q, got: %q", substr, m.Text())
}

// Inline runs dispatched functions on the calling goroutine.
type Inline struct{}

func (Inline) Dispatch(fn func()) { fn() }
