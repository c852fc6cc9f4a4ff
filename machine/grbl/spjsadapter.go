package grbl

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mastercactapus/fixedatc/machine"
	"github.com/mastercactapus/fixedatc/spjs"
)

// ErrWipedQueue is returned for commands dropped by SPJS before completion.
var ErrWipedQueue = errors.New("wiped queue")

var lastID int64

func nextID() string {
	id := atomic.AddInt64(&lastID, 1)
	return "cmd_" + strconv.FormatInt(id, 36)
}

// SPJSAdapter talks to grbl through a serial-port-json-server instance.
type SPJSAdapter struct {
	sp   *spjs.SPJS
	port string
	log  *slog.Logger

	cmds    chan adapterMessage
	waiting map[string]chan error

	status *statusCache
}

var _ machine.Adapter = &SPJSAdapter{}

type adapterMessage struct {
	spjs.JSON
	wait chan error
}

func NewSPJSAdapter(sp *spjs.SPJS, port string, log *slog.Logger) *SPJSAdapter {
	adapter := &SPJSAdapter{
		sp:      sp,
		port:    port,
		log:     log,
		waiting: make(map[string]chan error, 100),
		cmds:    make(chan adapterMessage, 1000),
		status:  newStatusCache(log),
	}
	go adapter.loop()
	go adapter.statusLoop()

	return adapter
}

func (adapter *SPJSAdapter) requestStatus() error {
	adapter.sp.WriteString("sendnobuf " + adapter.port + " ?")
	return nil
}

func (adapter *SPJSAdapter) statusLoop() {
	for range time.NewTicker(statusInterval).C {
		adapter.requestStatus()
	}
}

// Poll returns the last status report, requesting a new one if the last
// was read before the most recent command completed.
func (adapter *SPJSAdapter) Poll(ctx context.Context) (machine.Status, error) {
	return adapter.status.poll(ctx, adapter.requestStatus)
}

func (adapter *SPJSAdapter) loop() {
	for {
		select {
		case resp := <-adapter.sp.Messages():
			switch msg := resp.(type) {
			case *spjs.DataFrame:
				adapter.status.handle(strings.TrimSpace(msg.Data))
			case *spjs.CmdStatus:
				switch msg.Cmd {
				case "WipedQueue":
					for key, ch := range adapter.waiting {
						ch <- ErrWipedQueue
						delete(adapter.waiting, key)
					}
				case "Complete":
					if adapter.waiting[msg.ID] != nil {
						adapter.waiting[msg.ID] <- nil
						delete(adapter.waiting, msg.ID)
					}
				case "Error":
					if adapter.waiting[msg.ID] != nil {
						adapter.waiting[msg.ID] <- errors.New(strings.Join(msg.Data, " "))
						delete(adapter.waiting, msg.ID)
					}
				}
			case *spjs.SerialPortList:
				for _, port := range msg.SerialPorts {
					if port.Name != adapter.port {
						continue
					}
					if !port.IsOpen {
						adapter.log.Info("opening port", "port", adapter.port)
						adapter.sp.WriteString("open " + adapter.port + " 115200 grbl")
					}
				}
			case *spjs.ErrorMessage:
				adapter.log.Error("spjs", "err", msg.Error)
			}
		case msg := <-adapter.cmds:
			adapter.sp.SendJSON(msg.JSON)
			if msg.wait != nil {
				adapter.waiting[msg.Data[len(msg.Data)-1].ID] = msg.wait
			}
		}
	}
}

// ReadFrom sends all lines and returns once SPJS reports the last one complete.
func (adapter *SPJSAdapter) ReadFrom(r io.Reader) (n int64, err error) {
	scan := bufio.NewScanner(r)
	var wait chan error
	for {
		var j spjs.JSON
		j.Port = adapter.port
		for scan.Scan() {
			n += int64(len(scan.Bytes()))
			j.Data = append(j.Data, spjs.Data{
				Data: strings.TrimSpace(scan.Text()) + "\n",
				ID:   nextID(),
			})
			if len(j.Data) == 100 {
				break
			}
		}
		if len(j.Data) == 0 {
			break
		}
		wait = make(chan error, 1)
		adapter.cmds <- adapterMessage{JSON: j, wait: wait}
	}
	if err = scan.Err(); err != nil {
		return n, err
	}

	if wait == nil {
		return 0, nil
	}

	// wait for last channel
	err = <-wait
	adapter.status.invalidate()
	return n, err
}
