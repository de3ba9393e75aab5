// Package macro records what the user typed and saw in a terminal and plays
// the typed part back into a connector.
package macro

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	EntryInput  = "i"
	EntryOutput = "o"
)

// Entry is a single timestamped event. The layout follows asciinema v2.
type Entry struct {
	// Elapsed is the time since recording start in seconds.
	Elapsed float64 `json:"elapsed"`
	Type    string  `json:"type"`
	Data    string  `json:"data"`
}

// Recorder is shared by every connector of one window. It is safe for
// concurrent use.
type Recorder struct {
	mu         sync.Mutex
	recording  bool
	playing    bool
	startTime  time.Time
	entries    []Entry
	maxEntries int
}

// NewRecorder creates an idle recorder. If maxEntries <= 0, there is no
// limit on the number of entries.
func NewRecorder(maxEntries int) *Recorder {
	return &Recorder{maxEntries: maxEntries}
}

// Start begins a new recording, discarding the previous one.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = true
	r.startTime = time.Now()
	r.entries = nil
}

// Stop ends the recording and returns what was captured.
func (r *Recorder) Stop() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = false
	return append([]Entry(nil), r.entries...)
}

// Recording is false while idle and while a macro is being played back.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording && !r.playing
}

func (r *Recorder) RecordInput(p []byte) {
	r.record(EntryInput, p)
}

func (r *Recorder) RecordOutput(p []byte) {
	r.record(EntryOutput, p)
}

func (r *Recorder) record(kind string, p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording || r.playing {
		return
	}
	if r.maxEntries > 0 && len(r.entries) >= r.maxEntries {
		return // drop if at capacity
	}
	r.entries = append(r.entries, Entry{
		Elapsed: time.Since(r.startTime).Seconds(),
		Type:    kind,
		Data:    string(p),
	})
}

// Entries returns a copy of all recorded entries.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// ExportJSON returns the recording as JSON-encoded bytes.
func (r *Recorder) ExportJSON() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.entries)
}

func ParseJSON(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("invalid macro: %v", err)
	}
	for i, e := range entries {
		if e.Type != EntryInput && e.Type != EntryOutput {
			return nil, fmt.Errorf("invalid macro: entry %d has type %q", i, e.Type)
		}
	}
	return entries, nil
}

// Play writes the input entries to w, keeping their relative timing scaled
// by speed (1 = as recorded, 0 = no delay). Nothing is recorded meanwhile.
func (r *Recorder) Play(ctx context.Context, w io.Writer, entries []Entry, speed float64) error {
	r.mu.Lock()
	if r.playing {
		r.mu.Unlock()
		return fmt.Errorf("macro playback already running")
	}
	r.playing = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.playing = false
		r.mu.Unlock()
	}()

	var last float64
	for _, e := range entries {
		if e.Type != EntryInput {
			continue
		}
		if speed > 0 && e.Elapsed > last {
			delay := time.Duration((e.Elapsed - last) / speed * float64(time.Second))
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		last = e.Elapsed

		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.Write([]byte(e.Data)); err != nil {
			return fmt.Errorf("macro playback failed: %v", err)
		}
	}
	return nil
}
