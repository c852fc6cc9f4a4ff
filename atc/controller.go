package atc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/mastercactapus/fixedatc/machine"
	"github.com/mastercactapus/fixedatc/pins"
)

// Host reports the status of the machine controller.
type Host interface {
	Poll(ctx context.Context) (machine.Status, error)
}

// SpindleTracker is implemented by hosts that rely on the sequencer to
// tell them which tool is in the spindle.
type SpindleTracker interface {
	SetToolInSpindle(tool int)
}

// Pins exchanges the tool change handshake signals.
type Pins interface {
	Inputs() pins.Inputs
	SetOutputs(pins.Outputs)
}

// RequestKind is an operator request.
type RequestKind string

const (
	RequestLoad        RequestKind = "load"
	RequestUnload      RequestKind = "unload"
	RequestOpenCollet  RequestKind = "open-collet"
	RequestCloseCollet RequestKind = "close-collet"
	RequestContinue    RequestKind = "continue"
)

// Request is an operator request handled on the next poll.
type Request struct {
	Kind RequestKind
	Tool int

	done chan error
}

// Snapshot is a consistent copy of the sequencer state.
type Snapshot struct {
	State   State       `json:"state"`
	Session Session     `json:"session"`
	Pins    pins.Inputs `json:"pins"`
	Fault   string      `json:"fault,omitempty"`
}

// Controller drives a Machine from the host status and pins.
type Controller struct {
	m        *Machine
	host     Host
	pins     Pins
	log      *slog.Logger
	interval time.Duration

	failSafe   *FailSafe
	probe      *EdgeDetector
	toolChange *EdgeDetector

	requests chan Request

	// OnSnapshot is called from the poll loop whenever the snapshot changes.
	OnSnapshot func(Snapshot)

	mx   sync.Mutex
	snap Snapshot
}

// NewController returns a Controller for m.
func NewController(m *Machine, host Host, p Pins, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		m:          m,
		host:       host,
		pins:       p,
		log:        log,
		interval:   m.cfg.PollInterval,
		failSafe:   NewFailSafe(m.cfg.RecoverOnReady),
		probe:      NewEdgeDetector(false, EventTouchoffTouching, EventTouchoffReleased),
		toolChange: NewEdgeDetector(false, EventRequestToolChange, EventToolChangeCleared),
		requests:   make(chan Request, 16),
	}
	c.snap = Snapshot{State: m.State(), Session: m.Session()}
	return c
}

// Snapshot returns the state as of the last poll.
func (c *Controller) Snapshot() Snapshot {
	c.mx.Lock()
	defer c.mx.Unlock()
	s := c.snap
	s.Session = s.Session.clone()
	return s
}

// Submit queues an operator request and waits for the poll loop to handle it.
func (c *Controller) Submit(ctx context.Context, kind RequestKind, tool int) error {
	r := Request{Kind: kind, Tool: tool, done: make(chan error, 1)}
	select {
	case c.requests <- r:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-r.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run polls until ctx is done or a fatal fault occurs. Before returning
// on a fault the sequencer is reset to Startup.
func (c *Controller) Run(ctx context.Context) error {
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		if err := c.Poll(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Poll runs one cycle: host status, fail-safe, signal edges, operator
// requests, dwell timers and finally the outputs.
func (c *Controller) Poll(ctx context.Context) error {
	start := time.Now()
	defer func() { c.m.Metrics.poll(time.Since(start)) }()
	c.m.ctx = ctx

	err := c.poll(ctx)
	c.pins.SetOutputs(pins.Outputs{
		ChuckOpen: c.m.session.ChuckOpen,
		Changed:   c.m.session.Changed,
	})
	c.publish()
	return err
}

func (c *Controller) poll(ctx context.Context) error {
	s, err := c.host.Poll(ctx)
	if err != nil {
		c.m.Metrics.fault("host")
		c.failSafe.Lost(c.m)
		return fmt.Errorf("%w: %w", ErrHostComm, err)
	}
	tool := max(s.ToolInSpindle, 0)
	issued := c.m.issued
	c.m.session.CurrentTool = tool
	c.m.session.ToolTable = s.ToolTable
	c.m.session.Position = s.MPos
	c.m.session.ProbeContact = s.ProbeContact

	// the interpreter is busy with our own non-blocking command
	commandable := s.Commandable() || (c.m.inFlight && s.Ready())
	if err := c.failSafe.Check(c.m, commandable); err != nil {
		c.m.Metrics.fault("not-commandable")
		return err
	}

	in := c.pins.Inputs()
	c.edges(s, in, issued)
	c.handleRequests()
	c.m.Tick(c.m.now())

	if t, ok := c.host.(SpindleTracker); ok && c.m.session.CurrentTool != tool {
		c.log.Info("spindle tool", "from", tool, "to", c.m.session.CurrentTool)
		t.SetToolInSpindle(c.m.session.CurrentTool)
	}

	if err := c.m.Err(); err != nil {
		c.m.Metrics.fault("command")
		c.m.Reset()
		return err
	}
	return nil
}

// edges dispatches the events derived from s and in. Commands issued
// after s was read are not completed by it.
func (c *Controller) edges(s machine.Status, in pins.Inputs, issued uint64) {
	m := c.m

	if !in.ToolChange {
		m.session.Changed = false
	}
	requested := in.ToolChange && in.Number > 0 && !m.session.Changed
	m.session.ToolChangeRequested = requested
	m.session.RequestedTool = in.Number
	if ev, ok := c.toolChange.Observe(requested); ok {
		if ev == EventRequestToolChange {
			m.RequestToolChange(in.Number)
		} else {
			m.Dispatch(ev)
		}
	}

	probe := in.Probe || s.Probe
	m.session.Touching = probe
	if ev, ok := c.probe.Observe(probe); ok {
		m.Dispatch(ev)
	}

	if m.inFlight && m.issued == issued && s.InterpIdle && s.InPosition {
		if m.awaitPosition {
			m.Dispatch(EventInPosition)
		} else {
			m.inFlight = false
		}
	}
}

func (c *Controller) handleRequests() {
	for {
		select {
		case r := <-c.requests:
			r.done <- c.apply(r)
		default:
			return
		}
	}
}

func (c *Controller) apply(r Request) error {
	m := c.m
	if m.Err() != nil {
		return ErrHalted
	}
	switch r.Kind {
	case RequestLoad:
		return m.RequestLoad(r.Tool)
	case RequestUnload:
		return m.RequestUnload(r.Tool)
	case RequestOpenCollet:
		m.Dispatch(EventRequestOpenCollet)
	case RequestCloseCollet:
		m.Dispatch(EventRequestCloseCollet)
	case RequestContinue:
		m.Dispatch(EventRequestContinue)
	default:
		return errors.New("unknown request: " + string(r.Kind))
	}
	return nil
}

func (c *Controller) publish() {
	snap := Snapshot{
		State:   c.m.State(),
		Session: c.m.Session(),
		Pins:    c.pins.Inputs(),
	}
	if err := c.m.Err(); err != nil {
		snap.Fault = err.Error()
	}

	c.mx.Lock()
	changed := !reflect.DeepEqual(c.snap, snap)
	c.snap = snap
	c.mx.Unlock()

	if changed && c.OnSnapshot != nil {
		c.OnSnapshot(snap)
	}
}
