package atc

// EdgeDetector turns a sampled level into events on change.
type EdgeDetector struct {
	Rising  Event
	Falling Event

	last bool
}

// NewEdgeDetector returns a detector that starts at the initial level.
func NewEdgeDetector(initial bool, rising, falling Event) *EdgeDetector {
	return &EdgeDetector{Rising: rising, Falling: falling, last: initial}
}

// Observe records v and returns the matching event if it differs from
// the previous sample.
func (d *EdgeDetector) Observe(v bool) (Event, bool) {
	if v == d.last {
		return "", false
	}
	d.last = v
	if v {
		return d.Rising, true
	}
	return d.Falling, true
}

// Level returns the last observed level.
func (d *EdgeDetector) Level() bool { return d.last }
