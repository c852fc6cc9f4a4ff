package coord

import (
	"errors"
	"strings"
)

// ErrMissingAxis is returned when a Partial is converted to a Point
// while one or more axes are still undefined.
var ErrMissingAxis = errors.New("missing axis")

// Partial is a point where any axis may be left undefined.
//
// It mirrors how positions are written in configuration files,
// where a record may only override some of the axes of another.
type Partial struct {
	X *float64 `json:"x,omitempty" yaml:"x,omitempty"`
	Y *float64 `json:"y,omitempty" yaml:"y,omitempty"`
	Z *float64 `json:"z,omitempty" yaml:"z,omitempty"`
}

// Axis returns a pointer suitable for a Partial field.
func Axis(v float64) *float64 { return &v }

// Full returns a Partial with every axis of p defined.
func Full(p Point) Partial {
	return Partial{X: Axis(p.X), Y: Axis(p.Y), Z: Axis(p.Z)}
}

// Overlay returns p with every axis defined in o replacing its own.
func (p Partial) Overlay(o Partial) Partial {
	if o.X != nil {
		p.X = o.X
	}
	if o.Y != nil {
		p.Y = o.Y
	}
	if o.Z != nil {
		p.Z = o.Z
	}
	return p
}

// Missing lists the names of the undefined axes.
func (p Partial) Missing() []string {
	var res []string
	if p.X == nil {
		res = append(res, "x")
	}
	if p.Y == nil {
		res = append(res, "y")
	}
	if p.Z == nil {
		res = append(res, "z")
	}
	return res
}

// Point converts p to a Point. All axes must be defined.
func (p Partial) Point() (Point, error) {
	if m := p.Missing(); len(m) > 0 {
		return Point{}, errors.Join(ErrMissingAxis, errors.New(strings.Join(m, ",")))
	}
	return Point{X: *p.X, Y: *p.Y, Z: *p.Z}, nil
}

// Offset converts p to a Point, treating undefined axes as zero.
//
// Use for relative vectors only; absolute targets must go through Point.
func (p Partial) Offset() Point {
	var res Point
	if p.X != nil {
		res.X = *p.X
	}
	if p.Y != nil {
		res.Y = *p.Y
	}
	if p.Z != nil {
		res.Z = *p.Z
	}
	return res
}
