package grbl

import (
	"errors"
	"strconv"
	"strings"

	"github.com/mastercactapus/fixedatc/coord"
	"github.com/mastercactapus/fixedatc/machine"
)

// ProbeResult is reported by grbl after every probe cycle.
type ProbeResult struct {
	coord.Point
	Valid bool
}

func parseCoords(data string) (p coord.Point, err error) {
	parts := strings.Split(data, ",")
	if len(parts) < 3 {
		return p, errors.New("invalid number of elements")
	}
	p.X, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return p, err
	}
	p.Y, err = strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return p, err
	}
	p.Z, err = strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return p, err
	}
	return p, nil
}

func parseProbe(data string) (*ProbeResult, error) {
	data = strings.TrimSpace(data)
	data = strings.TrimPrefix(data, "[")
	data = strings.TrimSuffix(data, "]")
	parts := strings.Split(data, ":")
	var err error
	switch parts[0] {
	case "PRB":
		if len(parts) != 3 {
			return nil, errors.New("invalid probe message: " + data)
		}
		var res ProbeResult
		res.Valid = parts[2] == "1"
		res.Point, err = parseCoords(parts[1])
		if err != nil {
			return nil, err
		}

		return &res, nil
	}

	return nil, errors.New("unknown PUSH message: " + data)
}

// applyStatusName derives the commandable bits from the grbl state name.
//
// grbl has no separate enable or e-stop input; a tripped safety door
// is treated as an emergency stop and an alarm as unhomed.
func applyStatusName(stat *machine.Status) {
	name := stat.Status
	if i := strings.IndexByte(name, ':'); i >= 0 {
		name = name[:i]
	}
	stat.EStop = name == "Door"
	stat.Enabled = name != "Sleep" && name != "Check"
	stat.Homed = name != "Alarm" && name != "Home"
	stat.InterpIdle = name == "Idle"
	stat.InPosition = name == "Idle"
}

func parseStatus(stat machine.Status, data string) (*machine.Status, error) {
	data = strings.TrimSpace(data)
	data = strings.TrimPrefix(data, "<")
	data = strings.TrimSuffix(data, ">")
	parts := strings.Split(data, "|")
	stat.Status = parts[0]
	stat.Probe = false
	var err error
	for _, s := range parts[1:] {
		sParts := strings.SplitN(s, ":", 2)
		if len(sParts) != 2 {
			continue
		}
		switch sParts[0] {
		case "MPos":
			stat.MPos, err = parseCoords(sParts[1])
		case "WCO":
			stat.WCO, err = parseCoords(sParts[1])
		case "Pn":
			stat.Probe = strings.ContainsRune(sParts[1], 'P')
		}
		if err != nil {
			return nil, err
		}
	}
	applyStatusName(&stat)
	return &stat, nil
}
