package atc

import (
	"context"
	"errors"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/fixedatc/coord"
	"github.com/mastercactapus/fixedatc/machine"
	"github.com/mastercactapus/fixedatc/pins"
)

type fakeHost struct {
	status machine.Status
	err    error
}

func (f *fakeHost) Poll(ctx context.Context) (machine.Status, error) {
	return f.status, f.err
}

func readyStatus() machine.Status {
	return machine.Status{Status: "Idle", Enabled: true, Homed: true, InterpIdle: true, InPosition: true}
}

// trackingHost takes the spindle tool from the sequencer.
type trackingHost struct {
	fakeHost
	tools []int
}

func (h *trackingHost) SetToolInSpindle(tool int) {
	h.status.ToolInSpindle = tool
	h.tools = append(h.tools, tool)
}

type ctrlHarness struct {
	*harness
	c    *Controller
	host *fakeHost
	bank *pins.Bank
}

func newCtrl(t *testing.T, cfg Config) *ctrlHarness {
	t.Helper()
	h := newHarness(t, cfg)
	host := &fakeHost{status: readyStatus()}
	bank := pins.NewBank(0, true)
	c := NewController(h.Machine, host, bank, slogt.New(t))
	return &ctrlHarness{harness: h, c: c, host: host, bank: bank}
}

// moving sets the host status to running a move when v is set, else idle.
func (ch *ctrlHarness) moving(v bool) {
	s := &ch.host.status
	s.Status = "Idle"
	if v {
		s.Status = "Run"
	}
	s.InterpIdle = !v
	s.InPosition = !v
}

func (ch *ctrlHarness) poll(t *testing.T) {
	t.Helper()
	require.NoError(t, ch.c.Poll(context.Background()))
}

func (ch *ctrlHarness) submit(t *testing.T, kind RequestKind, tool int) error {
	t.Helper()
	r := Request{Kind: kind, Tool: tool, done: make(chan error, 1)}
	ch.c.requests <- r
	ch.poll(t)
	return <-r.done
}

func TestController_Startup(t *testing.T) {
	ch := newCtrl(t, testConfig())
	ch.host.status.Homed = false
	ch.poll(t)
	assert.Equal(t, StateStartup, ch.c.Snapshot().State)

	ch.host.status.Homed = true
	ch.poll(t)
	snap := ch.c.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.True(t, snap.Session.Commandable)
}

func TestController_Requests(t *testing.T) {
	ch := newCtrl(t, testConfig())
	ch.poll(t)

	assert.ErrorIs(t, ch.submit(t, RequestLoad, 9), ErrInvalidTool)
	require.NoError(t, ch.submit(t, RequestLoad, 2))
	assert.Equal(t, StatePIAtLoadingXYClosed, ch.c.Snapshot().State)

	require.NoError(t, ch.submit(t, RequestOpenCollet, 0))
	assert.True(t, ch.bank.Outputs().ChuckOpen)
	require.NoError(t, ch.submit(t, RequestCloseCollet, 0))
	assert.False(t, ch.bank.Outputs().ChuckOpen)

	require.NoError(t, ch.submit(t, RequestContinue, 0))
	assert.Equal(t, StatePIMovingDownwards, ch.c.Snapshot().State)

	ch.host.status.MPos = coord.Point{Z: 7}
	ch.host.status.Probe = true
	ch.poll(t)
	snap := ch.c.Snapshot()
	assert.Equal(t, StateATCReturningAtToolOpen, snap.State)
	assert.True(t, snap.Session.Touching)
	if assert.NotNil(t, snap.Session.LastTouch) {
		assert.Equal(t, coord.Point{Z: 7}, *snap.Session.LastTouch)
	}

	err := ch.submit(t, RequestUnload, 1)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Error(t, ch.submit(t, "bogus", 0))
}

func TestController_TouchUsesProbeContact(t *testing.T) {
	ch := newCtrl(t, testConfig())
	ch.poll(t)
	require.NoError(t, ch.submit(t, RequestLoad, 1))
	require.NoError(t, ch.submit(t, RequestContinue, 0))

	ch.host.status.MPos = coord.Point{Z: 6.9}
	ch.host.status.ProbeContact = &coord.Point{X: 0.001, Z: 7.0125}
	ch.host.status.Probe = true
	ch.poll(t)

	snap := ch.c.Snapshot()
	if assert.NotNil(t, snap.Session.LastTouch) {
		assert.Equal(t, coord.Point{X: 0.001, Z: 7.0125}, *snap.Session.LastTouch)
	}
}

// The host raises a tool change, the sequencer swaps tools and
// acknowledges through the pins until the host drops its request.
func TestController_ToolChangeHandshake(t *testing.T) {
	ch := newCtrl(t, testConfig())
	ch.bank.SetToolInSpindle(2)
	ch.host.status.ToolInSpindle = 2
	ch.poll(t)

	ch.bank.RequestToolChange(5)
	ch.poll(t)
	require.Equal(t, StateATCReturningAtToolOpen, ch.c.Snapshot().State)
	assert.True(t, ch.bank.Outputs().ChuckOpen)

	ch.tick(testConfig().PocketDwell)
	ch.poll(t)
	require.Equal(t, StateATCRetrievingDropCheckOpen, ch.c.Snapshot().State)
	ch.tick(testConfig().DropCheckDwell)
	ch.poll(t)
	require.Equal(t, StateATCRetrievingAtToolClosed, ch.c.Snapshot().State)
	ch.tick(testConfig().PocketDwell)
	ch.poll(t)

	snap := ch.c.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, 5, ch.bank.ToolInSpindle(), "bank acknowledges the change")
	assert.False(t, ch.bank.Inputs().ToolChange)

	ch.host.status.ToolInSpindle = 5
	ch.poll(t)
	snap = ch.c.Snapshot()
	assert.False(t, snap.Session.Changed, "changed drops with the request")
	assert.False(t, ch.bank.Outputs().Changed)
	assert.Equal(t, 5, snap.Session.CurrentTool)
	assert.Equal(t, StateIdle, snap.State)
}

func TestController_ToolChangeWithoutAck(t *testing.T) {
	ch := newCtrl(t, testConfig())
	ch.bank.AutoAck = false
	ch.poll(t)

	ch.bank.RequestToolChange(3)
	ch.poll(t)
	require.Equal(t, StateATCRetrievingDropCheckOpen, ch.c.Snapshot().State)
	ch.tick(testConfig().DropCheckDwell)
	ch.poll(t)
	ch.tick(testConfig().PocketDwell)
	ch.poll(t)
	require.Equal(t, StateIdle, ch.c.Snapshot().State)
	assert.True(t, ch.bank.Outputs().Changed)

	// the request level stays high but is already acknowledged
	ch.poll(t)
	assert.Equal(t, StateIdle, ch.c.Snapshot().State)
	assert.True(t, ch.c.Snapshot().Session.Changed)

	ch.bank.CancelToolChange()
	ch.poll(t)
	assert.False(t, ch.bank.Outputs().Changed)
}

func TestController_NotCommandableIsFatal(t *testing.T) {
	cfg := testConfig()
	cfg.Blocking = false
	ch := newCtrl(t, cfg)
	ch.host.status.ToolInSpindle = 2
	ch.poll(t)

	ch.bank.RequestToolChange(3)
	ch.poll(t)
	require.Equal(t, StateATCMovingToSafe, ch.c.Snapshot().State)
	for _, want := range []State{StateATCReturningMovingToPocketFast, StateATCReturningInsertingIntoPocket} {
		ch.moving(true)
		ch.poll(t)
		ch.moving(false)
		ch.poll(t)
		require.Equal(t, want, ch.c.Snapshot().State)
	}
	calls := len(ch.motion.calls)

	ch.moving(true)
	ch.host.status.EStop = true
	err := ch.c.Poll(context.Background())
	assert.ErrorIs(t, err, ErrNotCommandable)
	assert.Equal(t, StateStartup, ch.c.Snapshot().State)
	assert.Len(t, ch.motion.calls, calls, "no command after the loss")
}

func TestController_RecoverOnReady(t *testing.T) {
	cfg := testConfig()
	cfg.RecoverOnReady = true
	ch := newCtrl(t, cfg)
	ch.poll(t)
	require.NoError(t, ch.submit(t, RequestUnload, 1))
	require.NoError(t, ch.submit(t, RequestOpenCollet, 0))
	require.True(t, ch.bank.Outputs().ChuckOpen)
	ch.motion.take()

	ch.host.status.Enabled = false
	ch.poll(t)
	snap := ch.c.Snapshot()
	assert.Equal(t, StateStartup, snap.State)
	assert.False(t, snap.Session.Commandable)
	assert.True(t, snap.Session.ChuckOpen, "the close could not be sent")
	assert.True(t, ch.bank.Outputs().ChuckOpen)
	assert.Empty(t, ch.motion.calls)
	assert.ErrorIs(t, ch.submit(t, RequestLoad, 1), ErrBusy)

	ch.host.status.Enabled = true
	ch.poll(t)
	assert.Equal(t, StateIdle, ch.c.Snapshot().State)
	assert.Equal(t, []call{closeCall}, ch.motion.take())
	assert.False(t, ch.c.Snapshot().Session.ChuckOpen)
	assert.False(t, ch.bank.Outputs().ChuckOpen)
}

// Moves report completion through the host status when motion is not blocking.
func TestController_NonBlockingMotion(t *testing.T) {
	cfg := testConfig()
	cfg.Blocking = false
	ch := newCtrl(t, cfg)
	ch.poll(t)

	require.NoError(t, ch.submit(t, RequestLoad, 1))
	require.Equal(t, StatePIMovingToLoadingXY, ch.c.Snapshot().State)

	ch.moving(true)
	ch.poll(t)
	snap := ch.c.Snapshot()
	assert.Equal(t, StatePIMovingToLoadingXY, snap.State)
	assert.True(t, snap.Session.Commandable, "busy with our own move")

	ch.moving(false)
	ch.poll(t)
	require.Equal(t, StatePIAtLoadingXYClosed, ch.c.Snapshot().State)

	require.NoError(t, ch.submit(t, RequestContinue, 0))
	require.Equal(t, StatePIMovingDownwards, ch.c.Snapshot().State)
	ch.moving(true)
	ch.poll(t)
	assert.Equal(t, StatePIMovingDownwards, ch.c.Snapshot().State)
	ch.motion.take()

	// contact stops the probe; the same idle status must not complete the retract
	ch.moving(false)
	ch.host.status.Probe = true
	ch.poll(t)
	assert.Equal(t, StatePIRetracting, ch.c.Snapshot().State)
	assert.Equal(t, []call{{Op: "rel", P: coord.Point{Z: 2}, Feed: 3600}}, ch.motion.take())

	ch.moving(true)
	ch.poll(t)
	assert.Equal(t, StatePIRetracting, ch.c.Snapshot().State)

	ch.host.status.Probe = false
	ch.moving(false)
	ch.poll(t)
	assert.Equal(t, StateATCMovingToSafe, ch.c.Snapshot().State)
	assert.Equal(t, []call{move(safePos)}, ch.motion.take())
}

func TestController_NotIdleWithoutCommand(t *testing.T) {
	cfg := testConfig()
	cfg.Blocking = false
	ch := newCtrl(t, cfg)
	ch.poll(t)

	ch.moving(true)
	err := ch.c.Poll(context.Background())
	assert.ErrorIs(t, err, ErrNotCommandable)
	assert.Equal(t, StateStartup, ch.c.Snapshot().State)
}

// Unload and load cycles leave the spindle empty.
func TestController_TracksSpindleTool(t *testing.T) {
	h := newHarness(t, testConfig())
	host := &trackingHost{fakeHost: fakeHost{status: readyStatus()}}
	host.status.ToolInSpindle = 2
	bank := pins.NewBank(0, false)
	ch := &ctrlHarness{harness: h, c: NewController(h.Machine, host, bank, slogt.New(t)), host: &host.fakeHost, bank: bank}
	ch.poll(t)
	assert.Equal(t, 2, ch.c.Snapshot().Session.CurrentTool)

	require.NoError(t, ch.submit(t, RequestUnload, 2))
	require.NoError(t, ch.submit(t, RequestContinue, 0))
	ch.clock.advance(testConfig().DropCheckDwell)
	ch.poll(t)
	require.Equal(t, StateIdle, ch.c.Snapshot().State)
	assert.Equal(t, []int{0}, host.tools)
	assert.Equal(t, 0, host.status.ToolInSpindle)
	ch.motion.take()

	bank.RequestToolChange(3)
	ch.poll(t)
	assert.Equal(t, StateATCRetrievingDropCheckOpen, ch.c.Snapshot().State, "nothing to return")
	assert.Equal(t, []call{move(safePos), openCall}, ch.motion.take())
}

func TestController_HostCommFailure(t *testing.T) {
	ch := newCtrl(t, testConfig())
	ch.poll(t)
	require.NoError(t, ch.submit(t, RequestLoad, 1))

	ch.host.err = errors.New("port closed")
	err := ch.c.Poll(context.Background())
	assert.ErrorIs(t, err, ErrHostComm)
	assert.Contains(t, err.Error(), "port closed")
	assert.Equal(t, StateStartup, ch.c.Snapshot().State)
}

func TestController_CommandFaultResets(t *testing.T) {
	ch := newCtrl(t, testConfig())
	ch.poll(t)
	ch.motion.failOn = "move"

	r := Request{Kind: RequestLoad, Tool: 1, done: make(chan error, 1)}
	ch.c.requests <- r
	err := ch.c.Poll(context.Background())
	require.Error(t, err)
	assert.NoError(t, <-r.done)

	snap := ch.c.Snapshot()
	assert.Equal(t, StateStartup, snap.State)
	assert.Contains(t, snap.Fault, "rejected move")
}

func TestController_Submit(t *testing.T) {
	ch := newCtrl(t, testConfig())
	ch.poll(t)

	done := make(chan error, 1)
	go func() { done <- ch.c.Submit(context.Background(), RequestUnload, 2) }()

	for {
		ch.poll(t)
		select {
		case err := <-done:
			require.NoError(t, err)
			assert.Equal(t, StateUnloadAtLoadingXYClosed, ch.c.Snapshot().State)
			return
		default:
		}
	}
}

func TestController_SubmitCanceled(t *testing.T) {
	ch := newCtrl(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, ch.c.Submit(ctx, RequestContinue, 0), context.Canceled)
}

func TestController_OnSnapshot(t *testing.T) {
	ch := newCtrl(t, testConfig())
	var got []State
	ch.c.OnSnapshot = func(s Snapshot) { got = append(got, s.State) }

	ch.poll(t)
	ch.poll(t)
	require.NoError(t, ch.submit(t, RequestLoad, 1))

	assert.Equal(t, []State{StateIdle, StatePIAtLoadingXYClosed}, got)
}
