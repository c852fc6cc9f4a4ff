package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/tarm/serial"

	"github.com/mastercactapus/fixedatc/atc"
	"github.com/mastercactapus/fixedatc/machine"
	"github.com/mastercactapus/fixedatc/machine/grbl"
	"github.com/mastercactapus/fixedatc/machine/sim"
	"github.com/mastercactapus/fixedatc/pins"
	"github.com/mastercactapus/fixedatc/spjs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sequencer and its HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	f := serveCmd.Flags()
	f.String("controller", "grbl", "Controller type (grbl or sim).")
	f.String("port", "/dev/ttyUSB0", "Serial port path, or port name when using SPJS.")
	f.Int("baud", 115200, "Serial baud rate.")
	f.String("spjs", "", "Websocket URL of an SPJS server, e.g. ws://cnc-bridge:8989/ws.")
	f.String("addr", ":9091", "Address to bind the HTTP API to.")
	f.Int("tool", 0, "Tool in the spindle at startup.")
	f.Float64("sim-contact-z", 0, "Z height where the simulated tool setter makes contact.")
}

func openAdapter(cmd *cobra.Command, cfg *config, log *slog.Logger) (machine.Adapter, func() error, error) {
	f := cmd.Flags()
	controller, _ := f.GetString("controller")
	port, _ := f.GetString("port")
	spjsURL, _ := f.GetString("spjs")

	switch controller {
	case "sim":
		z, _ := f.GetFloat64("sim-contact-z")
		start, _ := cfg.Safe.Point()
		setter, _ := cfg.Loading.Point()
		return sim.NewAdapter(sim.Options{
			Start:        start,
			ContactZ:     z,
			Setter:       setter,
			SetterRadius: 5,
		}, log.With("adapter", "sim")), func() error { return nil }, nil
	case "grbl":
	default:
		return nil, nil, fmt.Errorf("unsupported controller '%s'", controller)
	}

	if spjsURL != "" {
		sp := spjs.NewSPJS(spjsURL, log.With("component", "spjs"))
		return grbl.NewSPJSAdapter(sp, port, log.With("adapter", "spjs")), func() error { return nil }, nil
	}

	baud, _ := f.GetInt("baud")
	sp, err := serial.OpenPort(&serial.Config{Name: port, Baud: baud})
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", port, err)
	}
	a := grbl.NewSerialAdapter(sp, log.With("adapter", "serial", "port", port))
	return a, a.Close, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	path, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	opt, err := cfg.machineOptions()
	if err != nil {
		return err
	}

	adapter, closeAdapter, err := openAdapter(cmd, cfg, logger)
	if err != nil {
		return err
	}
	defer closeAdapter()

	tool, _ := cmd.Flags().GetInt("tool")
	bank := pins.NewBank(tool, true)
	host := bankHost{Adapter: adapter, bank: bank}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m, err := atc.NewMachine(cfg.Config, machine.NewMachine(adapter, opt, logger.With("component", "machine")), logger.With("component", "atc"))
	if err != nil {
		return err
	}
	m.Metrics = atc.NewMetrics(reg)
	c := atc.NewController(m, host, bank, logger.With("component", "controller"))

	api := newAPI(c, bank, reg, logger.With("component", "api"))
	defer api.Close()

	addr, _ := cmd.Flags().GetString("addr")
	srv := &http.Server{
		Addr: addr,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "*")
			logger.Debug("http", "method", req.Method, "path", req.URL.Path, "remote", req.RemoteAddr)
			api.ServeHTTP(w, req)
		}),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		serverErrors <- srv.ListenAndServe()
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()

	select {
	case err = <-serverErrors:
		stop()
		<-runErr
	case err = <-runErr:
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if sErr := srv.Shutdown(shutdownCtx); sErr != nil {
		logger.Warn("http shutdown", "err", sErr)
	}
	if err != nil {
		logger.Error("stopped", "state", c.Snapshot().State, "err", err)
		return err
	}
	logger.Info("stopped")
	return nil
}
