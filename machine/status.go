package machine

import "github.com/mastercactapus/fixedatc/coord"

// Tool is a single tool table entry as reported by the host.
type Tool struct {
	Number   int     `json:"number"`
	Pocket   int     `json:"pocket"`
	ZOffset  float64 `json:"zOffset"`
	Diameter float64 `json:"diameter"`
}

// Status is a snapshot of the host controller.
type Status struct {
	// Status is the raw controller state name (e.g. "Idle", "Run", "Alarm").
	Status string      `json:"status"`
	MPos   coord.Point `json:"mpos"`
	WCO    coord.Point `json:"wco"`

	// ToolInSpindle is the tool number the host believes is loaded, 0 for none
	// and -1 if unknown.
	ToolInSpindle int    `json:"toolInSpindle"`
	ToolTable     []Tool `json:"toolTable,omitempty"`

	EStop      bool `json:"estop"`
	Enabled    bool `json:"enabled"`
	Homed      bool `json:"homed"`
	InterpIdle bool `json:"interpIdle"`
	InPosition bool `json:"inPosition"`

	// Probe is the probe input level, if the controller reports it.
	Probe bool `json:"probe"`

	// ProbeContact is where the last successful probe move made contact,
	// if the controller reports it.
	ProbeContact *coord.Point `json:"probeContact,omitempty"`
}

// Ready reports if the controller accepts commands at all: no emergency
// stop, drives enabled and axes homed.
func (s Status) Ready() bool {
	return !s.EStop && s.Enabled && s.Homed
}

// Commandable reports if motion commands can be trusted: Ready and the
// interpreter idle.
func (s Status) Commandable() bool {
	return s.Ready() && s.InterpIdle
}
