package atc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/fixedatc/coord"
	"github.com/mastercactapus/fixedatc/pocket"
)

type call struct {
	Op   string
	P    coord.Point
	Feed float64
}

type fakeMotion struct {
	calls  []call
	failOn string
}

func (f *fakeMotion) record(op string, p coord.Point, feed float64) error {
	f.calls = append(f.calls, call{Op: op, P: p, Feed: feed})
	if op == f.failOn {
		return errors.New("controller rejected " + op)
	}
	return nil
}

func (f *fakeMotion) MoveAbsolute(ctx context.Context, p coord.Point, feed float64) error {
	return f.record("move", p, feed)
}

func (f *fakeMotion) MoveRelative(ctx context.Context, d coord.Point, feed float64) error {
	return f.record("rel", d, feed)
}

func (f *fakeMotion) Probe(ctx context.Context, d coord.Point, feed float64) error {
	return f.record("probe", d, feed)
}

func (f *fakeMotion) Collet(ctx context.Context, open bool) error {
	if open {
		return f.record("open", coord.Point{}, 0)
	}
	return f.record("close", coord.Point{}, 0)
}

func (f *fakeMotion) take() []call {
	c := f.calls
	f.calls = nil
	return c
}

var (
	loadingPos = coord.Point{X: 0, Y: 0, Z: 50}
	safePos    = coord.Point{X: 0, Y: 0, Z: 80}
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Geometry = pocket.Geometry{
		Default: coord.Partial{Y: coord.Axis(50), Z: coord.Axis(10)},
		Pockets: map[string]coord.Partial{
			"1": {X: coord.Axis(10)},
			"2": {X: coord.Axis(20)},
			"3": {X: coord.Axis(30)},
			"5": {X: coord.Axis(50), Z: coord.Axis(12)},
		},
		SideOffset:           coord.Partial{Y: coord.Axis(-20)},
		AboveColletOffset:    coord.Partial{Z: coord.Axis(15)},
		AboveClearanceOffset: coord.Partial{Z: coord.Axis(40)},
	}
	cfg.Loading = coord.Full(loadingPos)
	cfg.Safe = coord.Full(safePos)
	cfg.ProbeLimit = coord.Partial{X: coord.Axis(0), Y: coord.Axis(0), Z: coord.Axis(-10)}
	return cfg
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time                    { return c.t }
func (c *clock) advance(d time.Duration) time.Time { c.t = c.t.Add(d); return c.t }

type harness struct {
	*Machine
	motion *fakeMotion
	clock  *clock
	trace  []Transition
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	f := &fakeMotion{}
	m, err := NewMachine(cfg, f, slogt.New(t))
	require.NoError(t, err)
	h := &harness{Machine: m, motion: f, clock: &clock{t: time.Unix(1000, 0)}}
	m.SetClock(h.clock.now)
	m.OnTransition = func(tr Transition) { h.trace = append(h.trace, tr) }
	return h
}

// ready returns a harness in Idle.
func ready(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := newHarness(t, cfg)
	h.session.Commandable = true
	h.Dispatch(EventMdiReady)
	require.Equal(t, StateIdle, h.State())
	h.trace = nil
	return h
}

func (h *harness) tick(d time.Duration) {
	h.Tick(h.clock.advance(d))
}

func (h *harness) events() []Event {
	var res []Event
	for _, tr := range h.trace {
		res = append(res, tr.Event)
	}
	return res
}

func move(p coord.Point) call { return call{Op: "move", P: p, Feed: 3600} }

var (
	openCall  = call{Op: "open"}
	closeCall = call{Op: "close"}
)

func pocketPos(t *testing.T, n int, ref pocket.Reference) coord.Point {
	t.Helper()
	p, err := testConfig().Geometry.Resolve(n, ref)
	require.NoError(t, err)
	return p
}
