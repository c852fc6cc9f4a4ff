package gcode

import (
	"errors"

	"github.com/mastercactapus/fixedatc/coord"
)

// ErrProbeFailed is returned when a G38.2 move ends without contact.
var ErrProbeFailed = errors.New("probe fail")

// ProbeFunc reports where a straight probe from -> to makes contact, if at all.
type ProbeFunc func(from, to coord.Point) (coord.Point, bool)

// VM will track state and interpret gcode.
type VM struct {
	pos coord.Point
	wco coord.Point

	modal [256]float64

	// Probe is consulted for G38.2 moves. When nil, every probe fails.
	Probe ProbeFunc

	touching bool
}

// NewVM constructs a new VM with default state.
func NewVM() *VM {
	vm := &VM{}

	// using grbl defaults
	vm.modal[ModalGroupMotion] = 0
	vm.modal[ModalGroupCoordinateSystem] = 54
	vm.modal[ModalGroupPlaneSelection] = 17
	vm.modal[ModalGroupDistanceMode] = 90
	vm.modal[ModalGroupFeedRateMode] = 94
	vm.modal[ModalGroupUnits] = 21
	vm.modal[ModalGroupStopping] = 0
	vm.modal[ModalGroupSpindle] = 5
	vm.modal[ModalGroupCoolant] = 9

	return vm
}

func (vm VM) Inches() bool         { return vm.modal[ModalGroupUnits] == 20 }
func (vm VM) RelativeMotion() bool { return vm.modal[ModalGroupDistanceMode] == 91 }

// Coolant returns the active coolant M-code (7, 8 or 9).
func (vm VM) Coolant() float64 { return vm.modal[ModalGroupCoolant] }

// Feed returns the last programmed feed rate.
func (vm VM) Feed() float64 { return vm.modal[ModalGroupFeedRate] }

// Touching reports if the last probe move ended in contact.
//
// It is cleared by the next motion.
func (vm VM) Touching() bool { return vm.touching }

func (vm VM) WPos() coord.Point {
	return vm.pos.Sub(vm.wco)
}
func (vm VM) MPos() coord.Point {
	return vm.pos
}
func (vm *VM) SetMPos(p coord.Point) {
	vm.pos = p
}
func (vm *VM) SetWCO(p coord.Point) {
	vm.wco = p
}
func (vm VM) WCO() coord.Point {
	return vm.wco
}

func isSupported(g Word) bool {
	if g.IsAxis() {
		return true
	}

	switch g.W {
	case 'G':
		switch g.Arg {
		case 0, 1, 4, 20, 21, 38.2, 53, 90, 91, 94:
			return true
		}
	case 'M':
		switch g.Arg {
		case 3, 5, 7, 8, 9:
			return true
		}
	case 'F', 'P':
		return true
	}

	return false
}

func applyBlock(p coord.Point, b Block, mul float64) coord.Point {
	for _, g := range b {
		switch g.W {
		case 'X':
			p.X = g.Arg * mul
		case 'Y':
			p.Y = g.Arg * mul
		case 'Z':
			p.Z = g.Arg * mul
		}
	}

	return p
}

func hasAxis(b Block) bool {
	for _, g := range b {
		if g.IsAxis() {
			return true
		}
	}
	return false
}

func (vm *VM) Run(b Block) error {
	err := b.Validate()
	if err != nil {
		return err
	}
	var machineCoords bool
	for _, g := range b {
		if !isSupported(g) {
			return errors.New("unsupported code: " + g.String())
		}
		mg := g.ModalGroup()
		if mg != ModalGroupNone && mg != ModalGroupNonModal {
			vm.modal[mg] = g.Arg
		}
		if g == (Word{W: 'G', Arg: 53}) {
			machineCoords = true
		}
	}

	if b.Has(Word{W: 'G', Arg: 4}) || !hasAxis(b) {
		return nil
	}

	mul := 1.0
	if vm.Inches() {
		mul = 25.4
	}
	args := b.Args()

	var target coord.Point
	switch {
	case vm.RelativeMotion():
		target = vm.pos.Add(applyBlock(coord.Point{}, args, mul))
	case machineCoords:
		target = applyBlock(vm.pos, args, 1)
	default:
		target = applyBlock(vm.WPos(), args, mul).Add(vm.wco)
	}

	vm.touching = false
	if vm.modal[ModalGroupMotion] != 38.2 {
		vm.pos = target
		return nil
	}
	if machineCoords {
		return errors.New("G53 not allowed with probe move")
	}
	if vm.Probe == nil {
		vm.pos = target
		return ErrProbeFailed
	}
	contact, ok := vm.Probe(vm.pos, target)
	if !ok {
		vm.pos = target
		return ErrProbeFailed
	}
	vm.pos = contact
	vm.touching = true
	return nil
}
