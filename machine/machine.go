package machine

import (
	"context"
	"log/slog"

	"github.com/mastercactapus/fixedatc/coord"
	"github.com/mastercactapus/fixedatc/gcode"
)

// Options configure how commands are rendered for the controller.
type Options struct {
	// ColletOpen and ColletClose are sent to actuate the collet.
	// They default to M8 and M9.
	ColletOpen  []gcode.Block
	ColletClose []gcode.Block

	// SyncDwell is the dwell (seconds) appended to every command so that
	// the final acknowledgement is only sent once motion has stopped.
	SyncDwell float64
}

// Machine issues blocking motion and collet commands through an Adapter.
type Machine struct {
	Adapter

	opt Options
	log *slog.Logger
}

func NewMachine(a Adapter, opt Options, log *slog.Logger) *Machine {
	if opt.ColletOpen == nil {
		opt.ColletOpen = []gcode.Block{{{W: 'M', Arg: 8}}}
	}
	if opt.ColletClose == nil {
		opt.ColletClose = []gcode.Block{{{W: 'M', Arg: 9}}}
	}
	if opt.SyncDwell == 0 {
		opt.SyncDwell = 0.01
	}
	if log == nil {
		log = slog.Default()
	}
	return &Machine{
		Adapter: a,
		opt:     opt,
		log:     log,
	}
}

func (m *Machine) runBlocks(ctx context.Context, b []gcode.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b = append(b, gcode.Block{{W: 'G', Arg: 4}, {W: 'P', Arg: m.opt.SyncDwell}})
	for _, bl := range b {
		m.log.Debug("send", "block", bl.String())
	}
	_, err := m.Adapter.ReadFrom(gcode.NewBlocksBuffer(b...))
	return err
}

// MoveAbsolute moves to p in machine coordinates.
func (m *Machine) MoveAbsolute(ctx context.Context, p coord.Point, feed float64) error {
	return m.runBlocks(ctx, generateMoveAbsolute(p, feed))
}

// MoveRelative moves by d from the current position.
func (m *Machine) MoveRelative(ctx context.Context, d coord.Point, feed float64) error {
	return m.runBlocks(ctx, generateMoveRelative(d, feed))
}

// Probe performs a straight probe by d, stopping on contact.
//
// The controller is expected to fail the command if no contact is made.
func (m *Machine) Probe(ctx context.Context, d coord.Point, feed float64) error {
	return m.runBlocks(ctx, generateProbe(d, feed))
}

// Collet opens or closes the collet.
func (m *Machine) Collet(ctx context.Context, open bool) error {
	b := m.opt.ColletClose
	if open {
		b = m.opt.ColletOpen
	}
	return m.runBlocks(ctx, append([]gcode.Block(nil), b...))
}
