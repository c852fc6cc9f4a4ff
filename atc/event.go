package atc

// Event triggers a transition. Events are queued and handled in order.
type Event string

const (
	// Host condition edges.
	EventMdiNotReady Event = "MdiNotReady"
	EventMdiReady    Event = "MdiReady"

	EventInPosition Event = "InPosition"

	// Operator requests.
	EventRequestLoadTool    Event = "RequestLoadTool"
	EventRequestUnloadTool  Event = "RequestUnloadTool"
	EventRequestOpenCollet  Event = "RequestOpenCollet"
	EventRequestCloseCollet Event = "RequestCloseCollet"
	EventRequestContinue    Event = "RequestContinue"

	// Signal edges.
	EventTouchoffTouching  Event = "TouchoffTouching"
	EventTouchoffReleased  Event = "TouchoffReleased"
	EventRequestToolChange Event = "RequestToolChange"
	EventToolChangeCleared Event = "ToolChangeCleared"

	// Produced by the sequencer itself.
	EventDropCheckComplete   Event = "DropCheckComplete"
	EventUnloadCompleted     Event = "UnloadCompleted"
	EventPocketTimerComplete Event = "PocketTimerComplete"
	EventChangeCompleted     Event = "ChangeCompleted"
	EventIsReturning         Event = "IsReturning"
	EventIsRetrieving        Event = "IsRetrieving"
)

// Events lists every event.
var Events = []Event{
	EventMdiNotReady,
	EventMdiReady,
	EventInPosition,
	EventRequestLoadTool,
	EventRequestUnloadTool,
	EventRequestOpenCollet,
	EventRequestCloseCollet,
	EventRequestContinue,
	EventTouchoffTouching,
	EventTouchoffReleased,
	EventRequestToolChange,
	EventToolChangeCleared,
	EventDropCheckComplete,
	EventUnloadCompleted,
	EventPocketTimerComplete,
	EventChangeCompleted,
	EventIsReturning,
	EventIsRetrieving,
}
