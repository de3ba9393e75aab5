// Package terminal connects connectors to the terminal model that renders
// them: the UI loop every model mutation runs on, the reader that drains a
// connector into the model, and the styled lines sessions print.
package terminal

// ConnectorKey is the data-store key under which a session publishes its
// live connector, so UI actions can resize it or start a takeover.
const ConnectorKey = "connector"

// Model is the terminal document the emulator renders. Write, Resize, Clear
// and SetData must run on the UI loop. Size and Data may be called from any
// goroutine.
type Model interface {
	Write(text string)
	Resize(rows, cols int)
	Clear()
	Size() (rows, cols int)
	SetData(key string, value any)
	Data(key string) any
}
