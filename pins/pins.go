// Package pins holds the discrete signals exchanged with the host
// controller's tool change handshake.
package pins

import "sync"

// Inputs are read by the sequencer.
type Inputs struct {
	// ToolChange is high while the host waits for a tool change.
	ToolChange bool `json:"toolChange"`
	// Number is the requested tool.
	Number int `json:"number"`
	// Changed is the host's view of the tool-changed acknowledgement.
	Changed bool `json:"changed"`
	// Probe is the touch-off probe input.
	Probe bool `json:"probe"`
	// ToolPrepare is high while the host asks for the next tool to be prepared.
	ToolPrepare bool `json:"toolPrepare"`
}

// Outputs are driven by the sequencer.
type Outputs struct {
	ChuckOpen bool `json:"chuckOpen"`
	Changed   bool `json:"changed"`
}

// Bank is an in-memory pin set for hosts without a native tool change
// handshake. Inputs are set by the host side, outputs by the sequencer.
//
// With AutoAck set the bank completes the handshake like a host would:
// once Changed is driven while ToolChange is high, the requested tool
// becomes the spindle tool and ToolChange drops.
type Bank struct {
	AutoAck bool

	mx            sync.Mutex
	in            Inputs
	out           Outputs
	toolInSpindle int
}

// NewBank returns a Bank with the given tool in the spindle.
func NewBank(toolInSpindle int, autoAck bool) *Bank {
	return &Bank{AutoAck: autoAck, toolInSpindle: toolInSpindle}
}

// Inputs returns the current input levels. Changed loops back from the
// Changed output.
func (b *Bank) Inputs() Inputs {
	b.mx.Lock()
	defer b.mx.Unlock()
	in := b.in
	in.Changed = b.out.Changed
	return in
}

// Outputs returns the last driven outputs.
func (b *Bank) Outputs() Outputs {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.out
}

// SetOutputs drives the outputs.
func (b *Bank) SetOutputs(o Outputs) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.out = o
	if b.AutoAck && o.Changed && b.in.ToolChange {
		b.toolInSpindle = b.in.Number
		b.in.ToolChange = false
	}
}

// RequestToolChange raises ToolChange for tool n.
func (b *Bank) RequestToolChange(n int) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.in.Number = n
	b.in.ToolChange = true
}

// CancelToolChange drops ToolChange.
func (b *Bank) CancelToolChange() {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.in.ToolChange = false
}

// SetProbe sets the probe input level.
func (b *Bank) SetProbe(v bool) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.in.Probe = v
}

// SetPrepare sets the prepare request level.
func (b *Bank) SetPrepare(v bool) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.in.ToolPrepare = v
}

// Prepared mirrors ToolPrepare; no preparation step is needed for a fixed rack.
func (b *Bank) Prepared() bool {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.in.ToolPrepare
}

// ToolInSpindle returns the tool the bank considers loaded.
func (b *Bank) ToolInSpindle() int {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.toolInSpindle
}

// SetToolInSpindle overrides the loaded tool.
func (b *Bank) SetToolInSpindle(n int) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.toolInSpindle = n
}
