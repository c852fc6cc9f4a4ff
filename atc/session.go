package atc

import (
	"github.com/mastercactapus/fixedatc/coord"
	"github.com/mastercactapus/fixedatc/machine"
)

// CycleKind is the operation an active cycle performs.
type CycleKind string

const (
	CycleNone   CycleKind = ""
	CycleLoad   CycleKind = "load"
	CycleUnload CycleKind = "unload"
	CycleChange CycleKind = "change"
)

// Cycle is the plan of the active operation.
//
// At the safe position a pending ReturnPocket is serviced first, then a
// pending RetrievePocket. Each is cleared once its sub-cycle starts.
type Cycle struct {
	Kind           CycleKind `json:"kind"`
	ReturnPocket   int       `json:"returnPocket,omitempty"`
	RetrievePocket int       `json:"retrievePocket,omitempty"`

	// Pocket is the pocket of the running sub-cycle.
	Pocket int `json:"pocket,omitempty"`
}

// next is the decision taken at the safe position.
func (c Cycle) next() Event {
	switch {
	case c.ReturnPocket > 0:
		return EventIsReturning
	case c.RetrievePocket > 0:
		return EventIsRetrieving
	default:
		return EventChangeCompleted
	}
}

// planLoad returns the tool to pocket n after it is touched off.
func planLoad(n int) Cycle {
	return Cycle{Kind: CycleLoad, ReturnPocket: n}
}

// planChange swaps the spindle tool for target. Tool 0 is an empty spindle.
func planChange(spindle, target int) Cycle {
	c := Cycle{Kind: CycleChange}
	if spindle == target {
		return c
	}
	if spindle > 0 {
		c.ReturnPocket = spindle
	}
	if target > 0 {
		c.RetrievePocket = target
	}
	return c
}

// Session is the shared state of the sequencer.
type Session struct {
	// CurrentTool is the host's tool in spindle, 0 for none.
	CurrentTool int            `json:"currentTool"`
	ToolTable   []machine.Tool `json:"toolTable,omitempty"`

	// ChangingTool is the tool of the active load, unload or change.
	ChangingTool *int `json:"changingTool"`

	Commandable bool `json:"commandable"`
	Touching    bool `json:"touching"`
	ChuckOpen   bool `json:"chuckOpen"`

	// Changed is the tool-changed acknowledgement, held until the host
	// drops its request.
	Changed bool `json:"changed"`

	// ToolChangeRequested and RequestedTool track the host request level.
	ToolChangeRequested bool `json:"toolChangeRequested"`
	RequestedTool       int  `json:"requestedTool"`

	Cycle Cycle `json:"cycle"`

	// Position is the last reported machine position.
	Position coord.Point `json:"position"`
	// ProbeContact is the last probe contact reported by the host.
	ProbeContact *coord.Point `json:"probeContact,omitempty"`
	// LastTouch is where the last touch-off made contact.
	LastTouch *coord.Point `json:"lastTouch,omitempty"`
}

func (s Session) clone() Session {
	if s.ChangingTool != nil {
		n := *s.ChangingTool
		s.ChangingTool = &n
	}
	if s.LastTouch != nil {
		p := *s.LastTouch
		s.LastTouch = &p
	}
	if s.ProbeContact != nil {
		p := *s.ProbeContact
		s.ProbeContact = &p
	}
	s.ToolTable = append([]machine.Tool(nil), s.ToolTable...)
	return s
}
