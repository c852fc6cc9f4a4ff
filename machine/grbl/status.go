package grbl

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mastercactapus/fixedatc/machine"
)

// freshTimeout bounds how long Poll waits for a report requested after a command.
const freshTimeout = time.Second

// statusCache holds the latest status report and tracks whether it was
// read after the last acknowledged command.
//
// grbl writes its reports and acknowledgements to the same stream, so a
// report read after the final ok of a command was taken after the command
// finished.
type statusCache struct {
	log *slog.Logger

	mx      sync.Mutex
	last    machine.Status
	lastAt  time.Time
	probe   *ProbeResult
	err     error
	reports uint64
	after   uint64
	updated chan struct{}
}

func newStatusCache(log *slog.Logger) *statusCache {
	return &statusCache{
		log:     log,
		last:    machine.Status{ToolInSpindle: -1},
		lastAt:  time.Now(),
		updated: make(chan struct{}),
	}
}

// handle records a status report or probe result line.
func (c *statusCache) handle(data string) {
	if len(data) == 0 {
		return
	}
	c.mx.Lock()
	defer c.mx.Unlock()

	switch data[0] {
	case '<':
		stat, err := parseStatus(c.last, data)
		if err != nil {
			c.log.Error("parse status", "err", err, "data", data)
			return
		}
		c.last = *stat
		c.lastAt = time.Now()
		c.reports++
		close(c.updated)
		c.updated = make(chan struct{})
	case '[':
		prb, err := parseProbe(data)
		if err != nil {
			c.log.Debug("ignore push message", "data", data)
			return
		}
		c.probe = prb
		c.log.Info("probe result", "pos", prb.Point.String(), "valid", prb.Valid)
	}
}

// fail records a fatal read error returned by every later poll.
func (c *statusCache) fail(err error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.err = err
}

// invalidate marks every report read so far as taken before the command
// that was just acknowledged.
func (c *statusCache) invalidate() {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.after = c.reports
}

func (c *statusCache) current() (s machine.Status, fresh bool, wait <-chan struct{}, err error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	s = c.last
	if c.probe != nil && c.probe.Valid {
		p := c.probe.Point
		s.ProbeContact = &p
	}
	switch {
	case c.err != nil:
		err = c.err
	case time.Since(c.lastAt) > staleAfter:
		err = ErrStatusTimeout
	}
	return s, c.reports > c.after, c.updated, err
}

// poll returns the latest report that was read after the last acknowledged
// command, calling request to ask for a new one as needed.
func (c *statusCache) poll(ctx context.Context, request func() error) (machine.Status, error) {
	if err := ctx.Err(); err != nil {
		return machine.Status{}, err
	}
	deadline := time.NewTimer(freshTimeout)
	defer deadline.Stop()
	for {
		s, fresh, wait, err := c.current()
		if err != nil || fresh {
			return s, err
		}
		if err := request(); err != nil {
			return s, err
		}
		select {
		case <-ctx.Done():
			return s, ctx.Err()
		case <-deadline.C:
			return s, ErrStatusTimeout
		case <-wait:
		}
	}
}
