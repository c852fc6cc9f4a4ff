package atc

import (
	"context"

	"github.com/mastercactapus/fixedatc/pocket"
)

// enter runs the entry actions of s, reached by ev.
func (m *Machine) enter(s State, ev Event) {
	switch s {
	case StateStartup:
		m.timer = nil
		m.inFlight = false
		m.awaitPosition = false
		m.session.Cycle = Cycle{}
		m.session.ChangingTool = nil

	case StateIdle:
		if ev == EventMdiReady {
			m.halted = false
			if m.session.ChuckOpen {
				m.setCollet(false)
			}
		}
		switch m.session.Cycle.Kind {
		case CycleChange:
			m.session.Changed = true
			m.session.CurrentTool = m.changingTool()
		case CycleLoad, CycleUnload:
			m.session.CurrentTool = 0
		}
		m.session.Cycle = Cycle{}
		m.session.ChangingTool = nil
		if m.session.ToolChangeRequested && !m.session.Changed {
			m.RequestToolChange(m.session.RequestedTool)
		}

	case StatePIMovingToLoadingXY, StateUnloadMovingToLoadingXY:
		m.moveTo(m.pos.loading)

	case StatePIAtLoadingXYOpen, StateUnloadAtLoadingXYOpen:
		m.setCollet(true)

	case StatePIMovingDownwards:
		d := m.pos.probeLimit.Sub(m.pos.loading)
		m.command("probe "+d.String(), func(ctx context.Context) error {
			return m.motion.Probe(ctx, d, m.cfg.Feed.Probe)
		}, cmdProbe)

	case StatePIRetracting:
		p := m.session.Position
		if c := m.session.ProbeContact; c != nil {
			p = *c
		}
		m.session.LastTouch = &p
		m.log.Info("touch-off", "tool", m.changingTool(), "position", p)
		d := m.pos.retract
		m.command("retract "+d.String(), func(ctx context.Context) error {
			return m.motion.MoveRelative(ctx, d, m.cfg.Feed.Rapid)
		}, cmdMove)

	case StateUnloadAtLoadingXYDropCheckOpen, StateATCRetrievingDropCheckOpen:
		if s == StateATCRetrievingDropCheckOpen {
			m.session.Cycle.Pocket = m.session.Cycle.RetrievePocket
			m.session.Cycle.RetrievePocket = 0
		}
		m.setCollet(true)
		m.startDwell(m.cfg.DropCheckDwell, EventDropCheckComplete)

	case StateUnloadAtLoadingXYDropCheckClosed:
		m.Dispatch(EventUnloadCompleted)

	case StateATCMovingToSafe, StateATCReturningMovingToSafe, StateATCRetrievingMovingToSafe:
		m.moveTo(m.pos.safe)

	case StateATCAtSafe:
		next := m.session.Cycle.next()
		m.log.Debug("at safe", "next", next, "cycle", m.session.Cycle)
		m.Dispatch(next)

	case StateATCReturningMovingToPocketFast:
		m.session.Cycle.Pocket = m.session.Cycle.ReturnPocket
		m.session.Cycle.ReturnPocket = 0
		m.moveToPocket(pocket.RefSide)

	case StateATCReturningInsertingIntoPocket:
		m.moveToPocket(pocket.RefPocket)

	case StateATCReturningAtToolOpen:
		m.setCollet(true)
		m.startDwell(m.cfg.PocketDwell, EventPocketTimerComplete)

	case StateATCReturningRetractingOpen:
		m.moveToPocket(pocket.RefAboveCollet)

	case StateATCReturningRetractingClosed:
		m.moveToPocket(pocket.RefAboveClearance)

	case StateATCRetrievingMovingToPocketFast:
		m.moveToPocket(pocket.RefAboveClearance)

	case StateATCRetrievingApproachingPocketOpen:
		m.setCollet(true)
		m.moveToPocket(pocket.RefPocket)

	case StateATCRetrievingAtToolClosed:
		m.startDwell(m.cfg.PocketDwell, EventPocketTimerComplete)

	case StateATCRetrievingRetracting:
		m.moveToPocket(pocket.RefSide)
	}
}

// exit runs the exit actions of s. Any pending dwell belongs to s and is dropped.
func (m *Machine) exit(s State) {
	m.timer = nil
	switch s {
	case StatePIAtLoadingXYOpen,
		StateUnloadAtLoadingXYOpen,
		StateUnloadAtLoadingXYDropCheckOpen,
		StateATCRetrievingDropCheckOpen,
		StateATCReturningRetractingOpen,
		StateATCRetrievingApproachingPocketOpen:
		m.setCollet(false)
	}
}

func (m *Machine) changingTool() int {
	if m.session.ChangingTool == nil {
		return 0
	}
	return *m.session.ChangingTool
}
