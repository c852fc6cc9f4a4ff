package atc

import (
	"errors"
	"fmt"
	"time"

	"github.com/mastercactapus/fixedatc/coord"
	"github.com/mastercactapus/fixedatc/pocket"
)

// Feeds are in mm/min.
type Feeds struct {
	Rapid float64 `json:"rapid" yaml:"rapid"`
	Probe float64 `json:"probe" yaml:"probe"`
}

// Config describes the rack, fixed positions and timing of the sequencer.
type Config struct {
	pocket.Geometry `yaml:",inline"`

	// Loading is where the operator inserts and removes tools.
	Loading coord.Partial `json:"loading" yaml:"loading"`
	// Safe is clear of the rack and workpiece.
	Safe coord.Partial `json:"safe" yaml:"safe"`
	// ProbeLimit is the deepest point of a touch-off.
	ProbeLimit coord.Partial `json:"probe_limit" yaml:"probe_limit"`
	// ProbeRetractOffset is moved relative to the touch point once it is found.
	ProbeRetractOffset coord.Partial `json:"probe_retract_offset" yaml:"probe_retract_offset"`

	Feed Feeds `json:"feed" yaml:"feed"`

	PocketDwell    time.Duration `json:"pocket_dwell" yaml:"pocket_dwell"`
	DropCheckDwell time.Duration `json:"drop_check_dwell" yaml:"drop_check_dwell"`
	PollInterval   time.Duration `json:"poll_interval" yaml:"poll_interval"`

	// Blocking is set when motion commands return only after motion has
	// finished. InPosition then follows each command directly instead of
	// the host's in-position signal.
	Blocking bool `json:"blocking" yaml:"blocking"`

	// RecoverOnReady keeps running after the host stops being commandable
	// and resumes from Startup once it is commandable again.
	RecoverOnReady bool `json:"recover_on_ready" yaml:"recover_on_ready"`
}

// DefaultConfig returns a Config with default feeds and timing and no positions.
func DefaultConfig() Config {
	return Config{
		ProbeRetractOffset: coord.Partial{Z: coord.Axis(2)},
		Feed: Feeds{
			Rapid: 3600,
			Probe: 10,
		},
		PocketDwell:    500 * time.Millisecond,
		DropCheckDwell: 500 * time.Millisecond,
		PollInterval:   50 * time.Millisecond,
		Blocking:       true,
	}
}

// positions are the fixed points resolved from a Config.
type positions struct {
	loading    coord.Point
	safe       coord.Point
	probeLimit coord.Point
	retract    coord.Point
}

func (c Config) positions() (positions, error) {
	var p positions
	var errs []error
	point := func(name string, v coord.Partial) coord.Point {
		pt, err := v.Point()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		return pt
	}
	p.loading = point("loading", c.Loading)
	p.safe = point("safe", c.Safe)
	p.probeLimit = point("probe_limit", c.ProbeLimit)
	p.retract = c.ProbeRetractOffset.Offset()
	return p, errors.Join(errs...)
}

// Validate checks that every fixed position is complete, every pocket
// resolves, and feeds and timing are usable.
func (c Config) Validate() error {
	_, err := c.positions()
	errs := []error{err, c.Geometry.Validate()}
	if c.Feed.Rapid <= 0 {
		errs = append(errs, fmt.Errorf("feed.rapid: must be positive, got %g", c.Feed.Rapid))
	}
	if c.Feed.Probe <= 0 || c.Feed.Probe >= c.Feed.Rapid {
		errs = append(errs, fmt.Errorf("feed.probe: must be positive and below feed.rapid, got %g", c.Feed.Probe))
	}
	if c.PocketDwell <= 0 {
		errs = append(errs, fmt.Errorf("pocket_dwell: must be positive, got %s", c.PocketDwell))
	}
	if c.DropCheckDwell <= 0 {
		errs = append(errs, fmt.Errorf("drop_check_dwell: must be positive, got %s", c.DropCheckDwell))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval: must be positive, got %s", c.PollInterval))
	}
	return errors.Join(errs...)
}
