package grbl

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/mastercactapus/fixedatc/machine"
)

// ErrStatusTimeout is returned by Poll when the controller stops reporting status.
var ErrStatusTimeout = errors.New("grbl status timeout")

const (
	statusInterval = 100 * time.Millisecond
	staleAfter     = 2 * time.Second
)

// SerialAdapter talks to grbl over a direct serial connection.
type SerialAdapter struct {
	*Conn

	log      *slog.Logger
	status   *statusCache
	stopPoll chan struct{}
}

var _ machine.Adapter = &SerialAdapter{}

func NewSerialAdapter(rw io.ReadWriter, log *slog.Logger) *SerialAdapter {
	adapter := &SerialAdapter{
		Conn:     NewConn(rw),
		log:      log,
		status:   newStatusCache(log),
		stopPoll: make(chan struct{}),
	}
	go adapter.statusLoop()
	go adapter.readLoop()

	return adapter
}

func (adapter *SerialAdapter) statusLoop() {
	t := time.NewTicker(statusInterval)
	defer t.Stop()
	for {
		select {
		case <-adapter.stopPoll:
			return
		case <-t.C:
			if err := adapter.WriteByte('?'); err != nil {
				return
			}
		}
	}
}

func (adapter *SerialAdapter) readLoop() {
	buf := make([]byte, 1024)
	for {
		n, err := adapter.Read(buf)
		if errors.Is(err, io.ErrShortBuffer) {
			buf = make([]byte, len(buf)*2)
			continue
		}
		if err != nil {
			adapter.log.Error("read from port", "err", err)
			adapter.status.fail(err)
			return
		}
		adapter.status.handle(string(buf[:n]))
	}
}

// ReadFrom sends every line and waits for the acknowledgements. Status
// reports read before the last one are no longer returned by Poll.
func (adapter *SerialAdapter) ReadFrom(r io.Reader) (int64, error) {
	n, err := adapter.Conn.ReadFrom(r)
	adapter.status.invalidate()
	return n, err
}

// Poll returns the last status report, requesting a new one if the last
// was read before the most recent command finished.
func (adapter *SerialAdapter) Poll(ctx context.Context) (machine.Status, error) {
	return adapter.status.poll(ctx, func() error { return adapter.WriteByte('?') })
}

// Close stops status polling and closes the connection.
func (adapter *SerialAdapter) Close() error {
	select {
	case <-adapter.stopPoll:
	default:
		close(adapter.stopPoll)
	}
	return adapter.Conn.Close()
}
