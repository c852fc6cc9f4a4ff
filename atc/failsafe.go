package atc

import "errors"

var (
	// ErrNotCommandable is returned when the host stops accepting commands.
	ErrNotCommandable = errors.New("host not commandable")
	// ErrHostComm is returned when the host cannot be polled.
	ErrHostComm = errors.New("host communication failed")
)

// FailSafe watches the commandable condition of the host. It is checked
// before any other input on every poll.
type FailSafe struct {
	// Recover keeps the sequencer alive across a loss, resuming from
	// Startup once the host is commandable again.
	Recover bool

	edge *EdgeDetector
}

// NewFailSafe starts with the host treated as not commandable.
func NewFailSafe(recover bool) *FailSafe {
	return &FailSafe{
		Recover: recover,
		edge:    NewEdgeDetector(false, EventMdiReady, EventMdiNotReady),
	}
}

// Check records the commandable level and dispatches MdiReady or
// MdiNotReady on change. A loss of the condition returns
// ErrNotCommandable unless Recover is set.
func (f *FailSafe) Check(m *Machine, commandable bool) error {
	m.session.Commandable = commandable
	ev, ok := f.edge.Observe(commandable)
	if !ok {
		return nil
	}
	m.Dispatch(ev)
	if ev == EventMdiNotReady && !f.Recover {
		return ErrNotCommandable
	}
	return nil
}

// Lost resets the sequencer after the host became unreachable.
func (f *FailSafe) Lost(m *Machine) {
	m.session.Commandable = false
	f.edge.Observe(false)
	m.Reset()
}
