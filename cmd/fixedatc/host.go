package main

import (
	"context"

	"github.com/mastercactapus/fixedatc/machine"
	"github.com/mastercactapus/fixedatc/pins"
)

// bankHost reports the spindle tool tracked by the pin bank, for
// controllers without a tool table.
type bankHost struct {
	machine.Adapter
	bank *pins.Bank
}

func (h bankHost) Poll(ctx context.Context) (machine.Status, error) {
	s, err := h.Adapter.Poll(ctx)
	if err != nil {
		return s, err
	}
	s.ToolInSpindle = h.bank.ToolInSpindle()
	return s, nil
}

// SetToolInSpindle records the spindle tool after a load or unload.
func (h bankHost) SetToolInSpindle(tool int) {
	h.bank.SetToolInSpindle(tool)
}
