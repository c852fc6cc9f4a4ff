// Package pocket resolves tool rack pockets into machine coordinates.
package pocket

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/mastercactapus/fixedatc/coord"
)

var (
	ErrUnknownPocket    = errors.New("unknown pocket")
	ErrUnknownReference = errors.New("unknown reference")
	ErrIncompletePoint  = errors.New("incomplete point")
)

// ConfigError reports a pocket that cannot be resolved from configuration.
type ConfigError struct {
	Pocket    int
	Reference Reference
	Err       error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("pocket %d (%s): %v", e.Pocket, e.Reference, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Reference names a point relative to a pocket.
type Reference string

const (
	// RefPocket is the spindle position with the tool seated in the pocket.
	RefPocket Reference = "pocket"
	// RefSide is beside the pocket, where the tool slides in and out.
	RefSide Reference = "side"
	// RefAboveCollet is above the pocket with the collet clear of the tool.
	RefAboveCollet Reference = "above-collet"
	// RefAboveClearance is above the pocket clear of the rack.
	RefAboveClearance Reference = "above-clearance"
)

// References lists every valid Reference.
var References = []Reference{RefPocket, RefSide, RefAboveCollet, RefAboveClearance}

// Geometry describes the tool rack.
//
// A pocket position is Default overlaid with the pocket's own entry.
// Offsets are relative; their undefined axes count as zero.
type Geometry struct {
	Default coord.Partial            `json:"pocket_default" yaml:"pocket_default"`
	Pockets map[string]coord.Partial `json:"pockets" yaml:"pockets"`

	SideOffset           coord.Partial `json:"pocket_side_offset" yaml:"pocket_side_offset"`
	AboveColletOffset    coord.Partial `json:"pocket_above_collet_offset" yaml:"pocket_above_collet_offset"`
	AboveClearanceOffset coord.Partial `json:"pocket_above_clearance_offset" yaml:"pocket_above_clearance_offset"`
}

func (g Geometry) base(index int) (coord.Point, error) {
	p, ok := g.Pockets[strconv.Itoa(index)]
	if !ok {
		return coord.Point{}, ErrUnknownPocket
	}
	merged, err := g.Default.Overlay(p).Point()
	if err != nil {
		return coord.Point{}, errors.Join(ErrIncompletePoint, err)
	}
	return merged, nil
}

func (g Geometry) offset(ref Reference) (coord.Point, bool) {
	switch ref {
	case RefPocket:
		return coord.Point{}, true
	case RefSide:
		return g.SideOffset.Offset(), true
	case RefAboveCollet:
		return g.AboveColletOffset.Offset(), true
	case RefAboveClearance:
		return g.AboveClearanceOffset.Offset(), true
	}
	return coord.Point{}, false
}

// Resolve returns the machine position of ref for the given pocket.
//
// A pocket missing from the table or leaving an axis undefined after
// the merge is a *ConfigError; no axis is ever defaulted to zero.
func (g Geometry) Resolve(index int, ref Reference) (coord.Point, error) {
	off, ok := g.offset(ref)
	if !ok {
		return coord.Point{}, &ConfigError{Pocket: index, Reference: ref, Err: ErrUnknownReference}
	}
	base, err := g.base(index)
	if err != nil {
		return coord.Point{}, &ConfigError{Pocket: index, Reference: ref, Err: err}
	}
	return base.Add(off), nil
}

// Indexes returns the configured pocket numbers in ascending order.
func (g Geometry) Indexes() ([]int, error) {
	res := make([]int, 0, len(g.Pockets))
	for key := range g.Pockets {
		n, err := strconv.Atoi(key)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("pocket key %q: must be a positive integer", key)
		}
		res = append(res, n)
	}
	sort.Ints(res)
	return res, nil
}

// Validate resolves every reference of every configured pocket.
func (g Geometry) Validate() error {
	idx, err := g.Indexes()
	if err != nil {
		return err
	}
	var errs []error
	for _, n := range idx {
		for _, ref := range References {
			if _, err := g.Resolve(n, ref); err != nil {
				errs = append(errs, err)
				break
			}
		}
	}
	return errors.Join(errs...)
}
