package atc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mastercactapus/fixedatc/coord"
	"github.com/mastercactapus/fixedatc/pocket"
)

var (
	// ErrBusy is returned for an operator request outside of Idle.
	ErrBusy = errors.New("sequencer busy")
	// ErrInvalidTool is returned for a tool number that is not a configured pocket.
	ErrInvalidTool = errors.New("invalid tool")
	// ErrHalted is returned once the sequencer has stopped on a fault.
	ErrHalted = errors.New("sequencer halted")
)

// Motion executes commands on the machine. With a blocking
// configuration each call returns once motion has finished.
type Motion interface {
	MoveAbsolute(ctx context.Context, p coord.Point, feed float64) error
	MoveRelative(ctx context.Context, d coord.Point, feed float64) error
	Probe(ctx context.Context, d coord.Point, feed float64) error
	Collet(ctx context.Context, open bool) error
}

// commandKind selects how a command's completion is reported.
type commandKind int

const (
	// cmdActuate commands finish when they return.
	cmdActuate commandKind = iota
	// cmdProbe moves end on contact, reported by the touch edge.
	cmdProbe
	// cmdMove moves are followed by InPosition.
	cmdMove
)

type dwell struct {
	state State
	at    time.Time
	event Event
}

// Machine is the tool change and touch-off state machine.
//
// It is not safe for concurrent use; a Controller serializes access.
type Machine struct {
	cfg    Config
	pos    positions
	table  table
	motion Motion
	log    *slog.Logger

	// Metrics may be nil.
	Metrics *Metrics
	// OnTransition is called after every transition, before entry actions run.
	OnTransition func(Transition)

	ctx context.Context
	now func() time.Time

	state   State
	session Session

	queue    []Event
	draining bool
	timer    *dwell

	// inFlight is set while a non-blocking motion command runs on the
	// host; awaitPosition if it ends with InPosition. issued counts them.
	inFlight      bool
	awaitPosition bool
	issued        uint64

	// halted suppresses commands while the host is not commandable.
	halted bool
	err    error
}

// NewMachine validates cfg and returns a Machine in Startup.
func NewMachine(cfg Config, motion Motion, log *slog.Logger) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	pos, err := cfg.positions()
	if err != nil {
		return nil, err
	}
	t, err := newTable(transitions)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Machine{
		cfg:    cfg,
		pos:    pos,
		table:  t,
		motion: motion,
		log:    log,
		ctx:    context.Background(),
		now:    time.Now,
		state:  StateStartup,
		halted: true,
	}, nil
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Session returns a copy of the session.
func (m *Machine) Session() Session { return m.session.clone() }

// Err returns the fault that stopped the sequencer, if any.
func (m *Machine) Err() error { return m.err }

// SetClock replaces the time source used for dwell timers.
func (m *Machine) SetClock(now func() time.Time) { m.now = now }

// Dispatch queues ev and, unless called from within a transition,
// processes the queue in order.
func (m *Machine) Dispatch(ev Event) {
	m.queue = append(m.queue, ev)
	if m.draining {
		return
	}
	m.draining = true
	defer func() { m.draining = false }()
	for len(m.queue) > 0 {
		ev := m.queue[0]
		m.queue = m.queue[1:]
		m.step(ev)
	}
}

func (m *Machine) step(ev Event) {
	if m.err != nil && ev != EventMdiNotReady {
		m.log.Debug("dropped event after fault", "event", ev, "state", m.state)
		return
	}
	to, ok := m.table.lookup(m.state, ev)
	if !ok {
		m.log.Debug("unmatched event", "event", ev, "state", m.state)
		m.Metrics.unmatched(m.state, ev)
		return
	}
	switch ev {
	case EventMdiNotReady:
		m.halted = true
	case EventInPosition:
		m.inFlight = false
		m.awaitPosition = false
	}

	from := m.state
	m.exit(from)
	m.state = to
	m.log.Info("transition", "from", from, "to", to, "event", ev)
	m.Metrics.transition(from, to, ev)
	if m.OnTransition != nil {
		m.OnTransition(Transition{Event: ev, From: from, To: to})
	}
	m.enter(to, ev)
}

// Reset forces the sequencer back to Startup.
func (m *Machine) Reset() { m.Dispatch(EventMdiNotReady) }

// Tick fires a pending dwell timer once now reaches its deadline. A timer
// only fires in the state that started it.
func (m *Machine) Tick(now time.Time) {
	t := m.timer
	if t == nil || now.Before(t.at) {
		return
	}
	m.timer = nil
	if t.state != m.state {
		return
	}
	m.Dispatch(t.event)
}

func (m *Machine) startDwell(d time.Duration, ev Event) {
	m.timer = &dwell{state: m.state, at: m.now().Add(d), event: ev}
}

// fail records the first fault and drops any queued events.
func (m *Machine) fail(err error) {
	if m.err == nil {
		m.err = err
		m.log.Error("sequencer fault", "state", m.state, "err", err)
	}
	m.queue = m.queue[:0]
	m.timer = nil
}

// command runs fn unless halted and reports if it ran successfully.
//
// A blocking move is followed by InPosition. A non-blocking motion command
// is left in flight for the Controller to complete from the host status.
func (m *Machine) command(name string, fn func(context.Context) error, kind commandKind) bool {
	if m.err != nil {
		return false
	}
	if m.halted {
		m.log.Warn("command suppressed", "command", name, "state", m.state)
		return false
	}
	if err := fn(m.ctx); err != nil {
		m.fail(fmt.Errorf("%s in %s: %w", name, m.state, err))
		return false
	}
	switch {
	case kind == cmdActuate:
	case m.cfg.Blocking:
		if kind == cmdMove {
			m.Dispatch(EventInPosition)
		}
	default:
		m.inFlight = true
		m.awaitPosition = kind == cmdMove
		m.issued++
	}
	return true
}

func (m *Machine) moveTo(p coord.Point) {
	m.command("move "+p.String(), func(ctx context.Context) error {
		return m.motion.MoveAbsolute(ctx, p, m.cfg.Feed.Rapid)
	}, cmdMove)
}

func (m *Machine) moveToPocket(ref pocket.Reference) {
	p, err := m.cfg.Geometry.Resolve(m.session.Cycle.Pocket, ref)
	if err != nil {
		m.fail(err)
		return
	}
	m.moveTo(p)
}

// setCollet actuates the collet. ChuckOpen follows the actuator, so it
// keeps its value when the command is suppressed or fails.
func (m *Machine) setCollet(open bool) {
	name := "close collet"
	if open {
		name = "open collet"
	}
	ok := m.command(name, func(ctx context.Context) error {
		return m.motion.Collet(ctx, open)
	}, cmdActuate)
	if ok {
		m.session.ChuckOpen = open
	}
}

func (m *Machine) validPocket(tool int) error {
	if tool <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTool, tool)
	}
	if _, err := m.cfg.Geometry.Resolve(tool, pocket.RefPocket); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTool, err)
	}
	return nil
}

func (m *Machine) checkRequest() error {
	if m.err != nil {
		return ErrHalted
	}
	if m.state != StateIdle {
		return fmt.Errorf("%w: %s", ErrBusy, m.state)
	}
	return nil
}

// RequestLoad starts touching off tool and returning it to its pocket.
func (m *Machine) RequestLoad(tool int) error {
	if err := m.checkRequest(); err != nil {
		return err
	}
	if err := m.validPocket(tool); err != nil {
		return err
	}
	if cur := m.session.CurrentTool; cur != 0 {
		return fmt.Errorf("%w: spindle holds tool %d", ErrInvalidTool, cur)
	}
	m.session.ChangingTool = &tool
	m.session.Cycle = planLoad(tool)
	m.Dispatch(EventRequestLoadTool)
	return nil
}

// RequestUnload starts handing tool to the operator at the loading position.
func (m *Machine) RequestUnload(tool int) error {
	if err := m.checkRequest(); err != nil {
		return err
	}
	if tool <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTool, tool)
	}
	switch cur := m.session.CurrentTool; cur {
	case tool:
	case 0:
		m.log.Warn("unload with no tool reported in the spindle", "tool", tool)
	default:
		return fmt.Errorf("%w: spindle holds tool %d, not %d", ErrInvalidTool, cur, tool)
	}
	m.session.ChangingTool = &tool
	m.session.Cycle = Cycle{Kind: CycleUnload}
	m.Dispatch(EventRequestUnloadTool)
	return nil
}

// RequestToolChange starts a change to tool when Idle. In any other state
// it is picked up once the sequencer returns to Idle.
func (m *Machine) RequestToolChange(tool int) {
	if m.err != nil || m.state != StateIdle || m.session.ChangingTool != nil {
		m.log.Debug("tool change deferred", "tool", tool, "state", m.state)
		return
	}
	m.session.ChangingTool = &tool
	m.session.Cycle = planChange(m.session.CurrentTool, tool)
	m.log.Info("tool change", "from", m.session.CurrentTool, "to", tool,
		"return", m.session.Cycle.ReturnPocket, "retrieve", m.session.Cycle.RetrievePocket)
	m.Dispatch(EventRequestToolChange)
}
