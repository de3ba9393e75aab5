package connector

// Recorder collects a macro. Recording reports false while nothing is being
// recorded or while a macro is played back.
type Recorder interface {
	Recording() bool
	RecordInput(p []byte)
	RecordOutput(p []byte)
}

// macroConnector sits on top of the multiplexer so it records exactly what
// the user typed and saw, once.
type macroConnector struct {
	Connector
	mux      *Multiplexer
	recorder Recorder
}

func (c *macroConnector) Read(p []byte) (int, error) {
	n, err := c.Connector.Read(p)
	if n > 0 && c.recorder.Recording() {
		c.recorder.RecordOutput(p[:n])
	}
	return n, err
}

func (c *macroConnector) Write(p []byte) (int, error) {
	// input swallowed by a takeover never reaches the remote side
	if len(p) > 0 && !c.mux.Claimed() && c.recorder.Recording() {
		c.recorder.RecordInput(p)
	}
	return c.Connector.Write(p)
}
