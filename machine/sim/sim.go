// Package sim provides a simulated controller for running the sequencer
// without hardware.
package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/mastercactapus/fixedatc/coord"
	"github.com/mastercactapus/fixedatc/gcode"
	"github.com/mastercactapus/fixedatc/machine"
)

// ErrEStop is returned for commands sent during an emergency stop.
var ErrEStop = errors.New("emergency stop")

// Options configure the simulated machine.
type Options struct {
	// Start is the initial machine position.
	Start coord.Point
	// ContactZ is where a downward probe move touches the tool setter.
	ContactZ float64
	// Setter is the XY center of the tool setter. With a positive
	// SetterRadius, probe moves further away never make contact.
	Setter       coord.Point
	SetterRadius float64
	// ColletOpenCoolant is the coolant M-code that opens the collet. Defaults to 8.
	ColletOpenCoolant float64
}

// Adapter is a machine.Adapter executing commands on a gcode.VM.
// Every move completes instantly.
type Adapter struct {
	opt Options
	log *slog.Logger

	mx    sync.Mutex
	vm    *gcode.VM
	estop bool
	lines int
}

var _ machine.Adapter = (*Adapter)(nil)

// NewAdapter returns a homed, enabled and idle simulated machine.
func NewAdapter(opt Options, log *slog.Logger) *Adapter {
	if opt.ColletOpenCoolant == 0 {
		opt.ColletOpenCoolant = 8
	}
	if log == nil {
		log = slog.Default()
	}
	a := &Adapter{opt: opt, log: log, vm: gcode.NewVM()}
	a.vm.SetMPos(opt.Start)
	a.vm.Probe = a.probe
	return a
}

func (a *Adapter) probe(from, to coord.Point) (coord.Point, bool) {
	if from.Z < a.opt.ContactZ || to.Z > a.opt.ContactZ || from.Z == to.Z {
		return coord.Point{}, false
	}
	if a.opt.SetterRadius > 0 && from.DistanceXY(a.opt.Setter.X, a.opt.Setter.Y) > a.opt.SetterRadius {
		return coord.Point{}, false
	}
	t := (from.Z - a.opt.ContactZ) / (from.Z - to.Z)
	return coord.Point{
		X: from.X + (to.X-from.X)*t,
		Y: from.Y + (to.Y-from.Y)*t,
		Z: a.opt.ContactZ,
	}, true
}

// Poll returns the simulated status.
func (a *Adapter) Poll(ctx context.Context) (machine.Status, error) {
	if err := ctx.Err(); err != nil {
		return machine.Status{}, err
	}
	a.mx.Lock()
	defer a.mx.Unlock()
	s := machine.Status{
		Status:     "Idle",
		MPos:       a.vm.MPos(),
		WCO:        a.vm.WCO(),
		EStop:      a.estop,
		Enabled:    true,
		Homed:      true,
		InterpIdle: true,
		InPosition: true,
		Probe:      a.vm.Touching(),
	}
	if s.Probe {
		p := a.vm.MPos()
		s.ProbeContact = &p
	}
	if a.estop {
		s.Status = "Door"
	}
	return s, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// ReadFrom runs every line of r, stopping at the first error.
func (a *Adapter) ReadFrom(r io.Reader) (int64, error) {
	cr := &countingReader{r: r}
	p := gcode.NewParser(cr)

	a.mx.Lock()
	defer a.mx.Unlock()
	for {
		b, err := p.Read()
		if errors.Is(err, io.EOF) {
			return cr.n, nil
		}
		if err != nil {
			return cr.n, err
		}
		a.lines++
		if a.estop {
			return cr.n, ErrEStop
		}
		a.log.Debug("sim", "line", a.lines, "block", b.String())
		if err := a.vm.Run(b); err != nil {
			return cr.n, fmt.Errorf("line %d '%s': %w", a.lines, b.String(), err)
		}
	}
}

// SetEStop sets the emergency stop state.
func (a *Adapter) SetEStop(v bool) {
	a.mx.Lock()
	defer a.mx.Unlock()
	a.estop = v
}

// ColletOpen reports if the collet is open.
func (a *Adapter) ColletOpen() bool {
	a.mx.Lock()
	defer a.mx.Unlock()
	return a.vm.Coolant() == a.opt.ColletOpenCoolant
}

// Position returns the machine position.
func (a *Adapter) Position() coord.Point {
	a.mx.Lock()
	defer a.mx.Unlock()
	return a.vm.MPos()
}
