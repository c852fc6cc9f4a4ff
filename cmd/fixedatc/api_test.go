package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/fixedatc/atc"
	"github.com/mastercactapus/fixedatc/machine"
	"github.com/mastercactapus/fixedatc/machine/sim"
	"github.com/mastercactapus/fixedatc/pins"
)

type testServer struct {
	*httptest.Server
	c    *atc.Controller
	bank *pins.Bank
	sim  *sim.Adapter

	mx    sync.Mutex
	trace []atc.Transition
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := slogt.New(t)

	cfg, err := loadConfig("testdata/fixedatc.yaml")
	require.NoError(t, err)
	cfg.PollInterval = 5 * time.Millisecond
	cfg.PocketDwell = 10 * time.Millisecond
	cfg.DropCheckDwell = 10 * time.Millisecond
	opt, err := cfg.machineOptions()
	require.NoError(t, err)

	start, err := cfg.Safe.Point()
	require.NoError(t, err)
	adapter := sim.NewAdapter(sim.Options{Start: start, ContactZ: 20}, log)
	bank := pins.NewBank(0, true)

	m, err := atc.NewMachine(cfg.Config, machine.NewMachine(adapter, opt, log), log)
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	m.Metrics = atc.NewMetrics(reg)
	c := atc.NewController(m, bankHost{Adapter: adapter, bank: bank}, bank, log)
	a := newAPI(c, bank, reg, log)
	srv := httptest.NewServer(a)
	ts := &testServer{Server: srv, c: c, bank: bank, sim: adapter}
	m.OnTransition = func(tr atc.Transition) {
		ts.mx.Lock()
		ts.trace = append(ts.trace, tr)
		ts.mx.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
		a.Close()
	})

	ts.waitState(t, atc.StateIdle)
	return ts
}

// visited reports the states entered since the last call.
func (ts *testServer) visited() []atc.State {
	ts.mx.Lock()
	defer ts.mx.Unlock()
	var res []atc.State
	for _, tr := range ts.trace {
		res = append(res, tr.To)
	}
	ts.trace = nil
	return res
}

func (ts *testServer) do(t *testing.T, method, path string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func (ts *testServer) waitState(t *testing.T, want atc.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return ts.c.Snapshot().State == want
	}, 2*time.Second, 5*time.Millisecond, "waiting for %s, at %s", want, ts.c.Snapshot().State)
}

func TestAPI_State(t *testing.T) {
	ts := newTestServer(t)

	code, body := ts.do(t, "GET", "/api/state")
	require.Equal(t, http.StatusOK, code)

	var res stateResponse
	require.NoError(t, json.Unmarshal([]byte(body), &res))
	assert.Equal(t, atc.StateIdle, res.State)
	assert.True(t, res.Session.Commandable)
	assert.False(t, res.Prepared)

	code, _ = ts.do(t, "POST", "/api/prepare")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, ts.bank.Prepared())
	code, _ = ts.do(t, "DELETE", "/api/prepare")
	assert.Equal(t, http.StatusOK, code)
	assert.False(t, ts.bank.Prepared())
}

func TestAPI_LoadAndTouchOff(t *testing.T) {
	ts := newTestServer(t)

	code, body := ts.do(t, "POST", "/api/load/2")
	require.Equal(t, http.StatusOK, code, body)
	ts.waitState(t, atc.StatePIAtLoadingXYClosed)

	code, _ = ts.do(t, "POST", "/api/collet/open")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, ts.sim.ColletOpen())
	assert.Eventually(t, func() bool {
		return ts.bank.Outputs().ChuckOpen
	}, time.Second, 5*time.Millisecond)

	code, _ = ts.do(t, "POST", "/api/load/3")
	assert.Equal(t, http.StatusConflict, code)

	code, _ = ts.do(t, "POST", "/api/collet/close")
	require.Equal(t, http.StatusOK, code)
	assert.False(t, ts.sim.ColletOpen())

	code, _ = ts.do(t, "POST", "/api/continue")
	require.Equal(t, http.StatusOK, code)
	ts.waitState(t, atc.StateIdle)

	snap := ts.c.Snapshot()
	if assert.NotNil(t, snap.Session.LastTouch) {
		assert.Equal(t, 20.0, snap.Session.LastTouch.Z)
	}
	assert.False(t, ts.sim.ColletOpen())

	code, body = ts.do(t, "GET", "/metrics")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "fixedatc_transitions_total")
	assert.Contains(t, body, "fixedatc_unmatched_events_total")
}

func TestAPI_Unload(t *testing.T) {
	ts := newTestServer(t)

	code, _ := ts.do(t, "POST", "/api/unload/1")
	require.Equal(t, http.StatusOK, code)
	ts.waitState(t, atc.StateUnloadAtLoadingXYClosed)

	code, _ = ts.do(t, "POST", "/api/continue")
	require.Equal(t, http.StatusOK, code)
	ts.waitState(t, atc.StateIdle)
}

func TestAPI_UnloadThenToolChange(t *testing.T) {
	ts := newTestServer(t)
	ts.bank.SetToolInSpindle(2)
	require.Eventually(t, func() bool {
		return ts.c.Snapshot().Session.CurrentTool == 2
	}, 2*time.Second, 5*time.Millisecond)

	code, body := ts.do(t, "POST", "/api/unload/1")
	assert.Equal(t, http.StatusBadRequest, code, body)

	code, body = ts.do(t, "POST", "/api/unload/2")
	require.Equal(t, http.StatusOK, code, body)
	ts.waitState(t, atc.StateUnloadAtLoadingXYClosed)
	code, _ = ts.do(t, "POST", "/api/continue")
	require.Equal(t, http.StatusOK, code)
	ts.waitState(t, atc.StateIdle)
	assert.Equal(t, 0, ts.bank.ToolInSpindle(), "the tool was handed out")
	ts.visited()

	code, _ = ts.do(t, "POST", "/api/toolchange/3")
	require.Equal(t, http.StatusAccepted, code)
	require.Eventually(t, func() bool {
		return ts.bank.ToolInSpindle() == 3
	}, 2*time.Second, 5*time.Millisecond)
	ts.waitState(t, atc.StateIdle)

	states := ts.visited()
	assert.Contains(t, states, atc.StateATCRetrievingAtToolClosed)
	assert.NotContains(t, states, atc.StateATCReturningMovingToPocketFast, "nothing to return")
}

func TestAPI_BadRequests(t *testing.T) {
	ts := newTestServer(t)

	code, _ := ts.do(t, "POST", "/api/load/abc")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ts.do(t, "POST", "/api/load/0")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ts.do(t, "POST", "/api/load/9")
	assert.Equal(t, http.StatusBadRequest, code, "no pocket 9")

	code, _ = ts.do(t, "POST", "/api/toolchange/x")
	assert.Equal(t, http.StatusBadRequest, code)

	assert.Equal(t, atc.StateIdle, ts.c.Snapshot().State)
}

func TestAPI_ToolChange(t *testing.T) {
	ts := newTestServer(t)

	code, _ := ts.do(t, "POST", "/api/toolchange/3")
	require.Equal(t, http.StatusAccepted, code)

	require.Eventually(t, func() bool {
		return ts.bank.ToolInSpindle() == 3
	}, 2*time.Second, 5*time.Millisecond)
	ts.waitState(t, atc.StateIdle)
	assert.False(t, ts.sim.ColletOpen())

	require.Eventually(t, func() bool {
		s := ts.c.Snapshot().Session
		return s.CurrentTool == 3 && !s.Changed
	}, 2*time.Second, 5*time.Millisecond)

	code, _ = ts.do(t, "POST", "/api/toolchange/1")
	require.Equal(t, http.StatusAccepted, code)
	require.Eventually(t, func() bool {
		return ts.bank.ToolInSpindle() == 1
	}, 2*time.Second, 5*time.Millisecond)
	ts.waitState(t, atc.StateIdle)
}

func TestAPI_CancelToolChange(t *testing.T) {
	ts := newTestServer(t)

	code, _ := ts.do(t, "DELETE", "/api/toolchange")
	assert.Equal(t, http.StatusAccepted, code)
	assert.False(t, ts.bank.Inputs().ToolChange)
}
