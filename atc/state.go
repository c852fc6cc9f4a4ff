// Package atc sequences the automatic tool changer and the touch-off probe.
//
// A Machine holds the current State and reacts to Events through a fixed
// transition table. A Controller feeds it from the host status and signal
// pins at a fixed cadence.
package atc

// State is the current step of the sequencer.
type State string

const (
	StateStartup State = "Startup"
	StateIdle    State = "Idle"

	// Probe, load and insert: the operator loads a tool at the loading
	// position, it is touched off and then returned to its pocket.
	StatePIMovingToLoadingXY State = "PIMovingToLoadingXY"
	StatePIAtLoadingXYClosed State = "PIAtLoadingXYClosed"
	StatePIAtLoadingXYOpen   State = "PIAtLoadingXYOpen"
	StatePIMovingDownwards   State = "PIMovingDownwards"
	StatePIRetracting        State = "PIRetracting"

	// Unload: the operator takes the tool out of the spindle at the loading position.
	StateUnloadMovingToLoadingXY          State = "UnloadMovingToLoadingXY"
	StateUnloadAtLoadingXYClosed          State = "UnloadAtLoadingXYClosed"
	StateUnloadAtLoadingXYOpen            State = "UnloadAtLoadingXYOpen"
	StateUnloadAtLoadingXYDropCheckOpen   State = "UnloadAtLoadingXYDropCheckOpen"
	StateUnloadAtLoadingXYDropCheckClosed State = "UnloadAtLoadingXYDropCheckClosed"

	StateATCMovingToSafe State = "ATCMovingToSafe"
	StateATCAtSafe       State = "ATCAtSafe"

	StateATCReturningMovingToPocketFast  State = "ATCReturningMovingToPocketFast"
	StateATCReturningInsertingIntoPocket State = "ATCReturningInsertingIntoPocket"
	StateATCReturningAtToolOpen          State = "ATCReturningAtToolOpen"
	StateATCReturningRetractingOpen      State = "ATCReturningRetractingOpen"
	StateATCReturningRetractingClosed    State = "ATCReturningRetractingClosed"
	StateATCReturningMovingToSafe        State = "ATCReturningMovingToSafe"

	StateATCRetrievingDropCheckOpen         State = "ATCRetrievingDropCheckOpen"
	StateATCRetrievingMovingToPocketFast    State = "ATCRetrievingMovingToPocketFast"
	StateATCRetrievingApproachingPocketOpen State = "ATCRetrievingApproachingPocketOpen"
	StateATCRetrievingAtToolClosed          State = "ATCRetrievingAtToolClosed"
	StateATCRetrievingRetracting            State = "ATCRetrievingRetracting"
	StateATCRetrievingMovingToSafe          State = "ATCRetrievingMovingToSafe"

	// Any matches every state as a transition source.
	Any State = "*"
)

// States lists every state in table order.
var States = []State{
	StateStartup,
	StateIdle,

	StatePIMovingToLoadingXY,
	StatePIAtLoadingXYClosed,
	StatePIAtLoadingXYOpen,
	StatePIMovingDownwards,
	StatePIRetracting,

	StateUnloadMovingToLoadingXY,
	StateUnloadAtLoadingXYClosed,
	StateUnloadAtLoadingXYOpen,
	StateUnloadAtLoadingXYDropCheckOpen,
	StateUnloadAtLoadingXYDropCheckClosed,

	StateATCMovingToSafe,
	StateATCAtSafe,

	StateATCReturningMovingToPocketFast,
	StateATCReturningInsertingIntoPocket,
	StateATCReturningAtToolOpen,
	StateATCReturningRetractingOpen,
	StateATCReturningRetractingClosed,
	StateATCReturningMovingToSafe,

	StateATCRetrievingDropCheckOpen,
	StateATCRetrievingMovingToPocketFast,
	StateATCRetrievingApproachingPocketOpen,
	StateATCRetrievingAtToolClosed,
	StateATCRetrievingRetracting,
	StateATCRetrievingMovingToSafe,
}
