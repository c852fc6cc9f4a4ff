package atc

import (
	"errors"
	"fmt"
)

// ErrAmbiguousTransition is returned for a table with two rows sharing
// a source state and trigger.
var ErrAmbiguousTransition = errors.New("ambiguous transition")

// Transition moves From to To when Event arrives. From may be Any.
type Transition struct {
	Event Event
	From  State
	To    State
}

var transitions = []Transition{
	// Any loss of the commandable condition restarts the sequencer.
	{Event: EventMdiNotReady, From: Any, To: StateStartup},
	{Event: EventMdiReady, From: StateStartup, To: StateIdle},

	// Probe, load and insert
	{Event: EventRequestLoadTool, From: StateIdle, To: StatePIMovingToLoadingXY},
	{Event: EventInPosition, From: StatePIMovingToLoadingXY, To: StatePIAtLoadingXYClosed},
	{Event: EventRequestOpenCollet, From: StatePIAtLoadingXYClosed, To: StatePIAtLoadingXYOpen},
	{Event: EventRequestCloseCollet, From: StatePIAtLoadingXYOpen, To: StatePIAtLoadingXYClosed},
	{Event: EventRequestContinue, From: StatePIAtLoadingXYClosed, To: StatePIMovingDownwards},
	{Event: EventTouchoffTouching, From: StatePIMovingDownwards, To: StatePIRetracting},
	{Event: EventInPosition, From: StatePIRetracting, To: StateATCMovingToSafe},

	// Unload
	{Event: EventRequestUnloadTool, From: StateIdle, To: StateUnloadMovingToLoadingXY},
	{Event: EventInPosition, From: StateUnloadMovingToLoadingXY, To: StateUnloadAtLoadingXYClosed},
	{Event: EventRequestOpenCollet, From: StateUnloadAtLoadingXYClosed, To: StateUnloadAtLoadingXYOpen},
	{Event: EventRequestCloseCollet, From: StateUnloadAtLoadingXYOpen, To: StateUnloadAtLoadingXYClosed},
	{Event: EventRequestContinue, From: StateUnloadAtLoadingXYClosed, To: StateUnloadAtLoadingXYDropCheckOpen},
	{Event: EventDropCheckComplete, From: StateUnloadAtLoadingXYDropCheckOpen, To: StateUnloadAtLoadingXYDropCheckClosed},
	{Event: EventUnloadCompleted, From: StateUnloadAtLoadingXYDropCheckClosed, To: StateIdle},

	// General ATC
	{Event: EventRequestToolChange, From: StateIdle, To: StateATCMovingToSafe},
	{Event: EventInPosition, From: StateATCMovingToSafe, To: StateATCAtSafe},
	{Event: EventChangeCompleted, From: StateATCAtSafe, To: StateIdle},

	// Returning the held tool to its pocket
	{Event: EventIsReturning, From: StateATCAtSafe, To: StateATCReturningMovingToPocketFast},
	{Event: EventInPosition, From: StateATCReturningMovingToPocketFast, To: StateATCReturningInsertingIntoPocket},
	{Event: EventInPosition, From: StateATCReturningInsertingIntoPocket, To: StateATCReturningAtToolOpen},
	{Event: EventPocketTimerComplete, From: StateATCReturningAtToolOpen, To: StateATCReturningRetractingOpen},
	{Event: EventInPosition, From: StateATCReturningRetractingOpen, To: StateATCReturningRetractingClosed},
	{Event: EventInPosition, From: StateATCReturningRetractingClosed, To: StateATCReturningMovingToSafe},
	{Event: EventInPosition, From: StateATCReturningMovingToSafe, To: StateATCAtSafe},

	// Retrieving a tool from its pocket
	{Event: EventIsRetrieving, From: StateATCAtSafe, To: StateATCRetrievingDropCheckOpen},
	{Event: EventDropCheckComplete, From: StateATCRetrievingDropCheckOpen, To: StateATCRetrievingMovingToPocketFast},
	{Event: EventInPosition, From: StateATCRetrievingMovingToPocketFast, To: StateATCRetrievingApproachingPocketOpen},
	{Event: EventInPosition, From: StateATCRetrievingApproachingPocketOpen, To: StateATCRetrievingAtToolClosed},
	{Event: EventPocketTimerComplete, From: StateATCRetrievingAtToolClosed, To: StateATCRetrievingRetracting},
	{Event: EventInPosition, From: StateATCRetrievingRetracting, To: StateATCRetrievingMovingToSafe},
	{Event: EventInPosition, From: StateATCRetrievingMovingToSafe, To: StateATCAtSafe},
}

// Transitions returns a copy of the transition table.
func Transitions() []Transition {
	return append([]Transition(nil), transitions...)
}

type tableKey struct {
	from  State
	event Event
}

// table is an indexed, validated transition table.
type table map[tableKey]State

// newTable indexes rows, rejecting any (From, Event) pair defined twice.
func newTable(rows []Transition) (table, error) {
	t := make(table, len(rows))
	for _, r := range rows {
		k := tableKey{from: r.From, event: r.Event}
		if prev, ok := t[k]; ok {
			return nil, fmt.Errorf("%w: %s on %s goes to both %s and %s", ErrAmbiguousTransition, r.From, r.Event, prev, r.To)
		}
		t[k] = r.To
	}
	return t, nil
}

// ValidateTable checks that no two rows share a source state and trigger.
func ValidateTable(rows []Transition) error {
	_, err := newTable(rows)
	return err
}

// lookup prefers a row for the exact state over a wildcard row.
func (t table) lookup(from State, ev Event) (State, bool) {
	if to, ok := t[tableKey{from: from, event: ev}]; ok {
		return to, true
	}
	to, ok := t[tableKey{from: Any, event: ev}]
	return to, ok
}
