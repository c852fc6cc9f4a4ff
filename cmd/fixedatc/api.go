package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mastercactapus/fixedatc/atc"
	"github.com/mastercactapus/fixedatc/pins"
)

const requestTimeout = 5 * time.Second

type api struct {
	http.Handler
	c    *atc.Controller
	bank *pins.Bank
	log  *slog.Logger
	sse  *sse.Server

	snaps chan atc.Snapshot
}

type stateResponse struct {
	atc.Snapshot
	Prepared bool `json:"prepared"`
}

func newAPI(c *atc.Controller, bank *pins.Bank, reg *prometheus.Registry, logger *slog.Logger) *api {
	r := mux.NewRouter()
	a := &api{
		Handler: r,
		c:       c,
		bank:    bank,
		log:     logger,
		sse: sse.NewServer(&sse.Options{
			Logger: log.New(io.Discard, "", 0),
		}),
		snaps: make(chan atc.Snapshot, 64),
	}

	r.HandleFunc("/api/state", a.state).Methods("GET")
	r.HandleFunc("/api/load/{tool}", a.request(atc.RequestLoad)).Methods("POST")
	r.HandleFunc("/api/unload/{tool}", a.request(atc.RequestUnload)).Methods("POST")
	r.HandleFunc("/api/collet/open", a.request(atc.RequestOpenCollet)).Methods("POST")
	r.HandleFunc("/api/collet/close", a.request(atc.RequestCloseCollet)).Methods("POST")
	r.HandleFunc("/api/continue", a.request(atc.RequestContinue)).Methods("POST")
	r.HandleFunc("/api/toolchange/{tool}", a.toolChange).Methods("POST")
	r.HandleFunc("/api/toolchange", a.cancelToolChange).Methods("DELETE")
	r.HandleFunc("/api/prepare", a.prepare(true)).Methods("POST")
	r.HandleFunc("/api/prepare", a.prepare(false)).Methods("DELETE")
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.PathPrefix("/events/").Handler(a.sse)

	c.OnSnapshot = a.publish
	go a.loop()

	return a
}

// publish is called from the poll loop and must not block.
func (a *api) publish(s atc.Snapshot) {
	select {
	case a.snaps <- s:
	default:
		a.log.Warn("state event dropped", "state", s.State)
	}
}

func (a *api) loop() {
	for s := range a.snaps {
		data, err := json.Marshal(s)
		if err != nil {
			a.log.Error("marshal state", "err", err)
			continue
		}
		a.sse.SendMessage("/events/state", sse.SimpleMessage(string(data)))
	}
}

func (a *api) Close() {
	a.sse.Shutdown()
}

func (a *api) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Error("encode response", "err", err)
	}
}

func (a *api) current() stateResponse {
	return stateResponse{Snapshot: a.c.Snapshot(), Prepared: a.bank.Prepared()}
}

func (a *api) state(w http.ResponseWriter, req *http.Request) {
	a.writeJSON(w, http.StatusOK, a.current())
}

func toolParam(req *http.Request) (int, error) {
	s, ok := mux.Vars(req)["tool"]
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid tool number: " + s)
	}
	return n, nil
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, atc.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, atc.ErrInvalidTool):
		return http.StatusBadRequest
	case errors.Is(err, atc.ErrHalted):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (a *api) request(kind atc.RequestKind) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		tool, err := toolParam(req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
		defer cancel()
		err = a.c.Submit(ctx, kind, tool)
		if err != nil {
			a.log.Warn("request rejected", "request", kind, "tool", tool, "err", err)
			http.Error(w, err.Error(), statusCode(err))
			return
		}
		a.writeJSON(w, http.StatusOK, a.current())
	}
}

// toolChange raises the host tool change request on the pin bank.
func (a *api) toolChange(w http.ResponseWriter, req *http.Request) {
	tool, err := toolParam(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.log.Info("tool change requested", "tool", tool)
	a.bank.RequestToolChange(tool)
	a.writeJSON(w, http.StatusAccepted, a.current())
}

func (a *api) cancelToolChange(w http.ResponseWriter, req *http.Request) {
	a.bank.CancelToolChange()
	a.writeJSON(w, http.StatusAccepted, a.current())
}

func (a *api) prepare(v bool) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		a.bank.SetPrepare(v)
		a.writeJSON(w, http.StatusOK, a.current())
	}
}
