package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sebmann/pgrepltop/pkg/conninfo"
	"github.com/sebmann/pgrepltop/pkg/health"
	"github.com/sebmann/pgrepltop/pkg/logging"
	"github.com/sebmann/pgrepltop/pkg/metrics"
	"github.com/sebmann/pgrepltop/pkg/monitor"
	"github.com/sebmann/pgrepltop/pkg/tui"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		connstr     string
		role        string
		noColor     bool
		debug       bool
		interval    time.Duration
		metricsAddr string
		columnsPath string
		logPath     string
	)

	flag.StringVar(&connstr, "c", "", "Connect string, host may be a comma-separated list (default \"\")")
	flag.StringVar(&connstr, "connectstring", "", "Alias for -c")
	flag.StringVar(&role, "r", "", "Role to switch to after connect")
	flag.StringVar(&role, "role", "", "Alias for -r")
	flag.BoolVar(&noColor, "C", false, "Disable color usage")
	flag.BoolVar(&noColor, "no-color", false, "Alias for -C")
	flag.BoolVar(&debug, "x", false, "Enable debug logging")
	flag.BoolVar(&debug, "debug", false, "Alias for -x")
	flag.DurationVar(&interval, "interval", time.Second, "Sampling and refresh interval")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics and health on this address (off when empty)")
	flag.StringVar(&columnsPath, "columns", "", "YAML column layout file (built-in layout when empty)")
	flag.StringVar(&logPath, "log-file", "", "Also write log lines to this file")
	flag.Parse()

	logWriter := io.Writer(os.Stderr)
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pgrepltop: FATAL: %v\n", err)
			return 1
		}
		defer f.Close()
		logWriter = io.MultiWriter(os.Stderr, f)
	}
	logger := logging.NewJSONLogger(logWriter, logging.InfoLevel)
	if debug {
		logger.SetLevel(logging.DebugLevel)
	}

	// The core never reads the environment itself; everything it may need
	// is captured once here and passed down.
	env := conninfo.Env{}
	for _, key := range []string{
		"PGHOST", "PGPORT", "PGUSER", "PGDATABASE", "PGPASSWORD",
		"PGPASSFILE", "PGSERVICEFILE", "HOME",
	} {
		if v := os.Getenv(key); v != "" {
			env[key] = v
		}
	}

	cluster, err := conninfo.Parse(connstr, env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pgrepltop: FATAL: %v\n", err)
		return 1
	}

	cfg := monitor.ConfigForInterval(interval)

	samplers := make([]*monitor.InstanceSampler, 0, len(cluster.Targets))
	labels := make([]string, 0, len(cluster.Targets))
	for _, target := range cluster.Targets {
		connCfg, err := target.ConnConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "pgrepltop: FATAL: %v\n", err)
			return 1
		}
		identity := monitor.InstanceIdentity{
			Host:  target.Host,
			Port:  target.Port,
			Label: target.Label(),
		}
		conn := monitor.NewInstanceConnection(identity, connCfg, role, logger)
		samplers = append(samplers, monitor.NewInstanceSampler(conn, cfg, logger))
		labels = append(labels, target.Label())
	}

	bus := monitor.NewSnapshotBus()
	loop, err := monitor.NewCollectionLoop(cfg, samplers, bus, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pgrepltop: FATAL: %v\n", err)
		return 1
	}

	columns, err := tui.LoadColumns(columnsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pgrepltop: FATAL: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop.Start(ctx)
	defer loop.Stop()

	if metricsAddr != "" {
		startMetricsServer(metricsAddr, bus, interval, logger)
	}

	model := tui.New(bus.Subscribe(), tui.Options{
		Columns:     columns,
		Monochrome:  noColor,
		ConnSummary: strings.Join(labels, ","),
	})
	program := tea.NewProgram(model, tea.WithAltScreen())

	go func() {
		<-ctx.Done()
		program.Quit()
	}()

	if _, err := program.Run(); err != nil {
		logger.Error("terminal view failed", logging.Error(err))
		return 1
	}
	return 0
}

// startMetricsServer mounts the Prometheus endpoint and the health report on
// one listener. Failure to serve is logged but never takes the view down.
func startMetricsServer(addr string, bus *monitor.SnapshotBus, interval time.Duration, logger logging.Logger) {
	registry := metrics.NewRegistry()
	go registry.Watch(bus.Subscribe())

	checker := health.NewChecker()
	checker.Register("snapshot_flow", health.SnapshotFlowCheck(bus, 5*interval))
	checker.Register("instances", health.InstancesCheck(bus))

	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	mux.Handle("/healthz", checker.Handler())
	mux.Handle("/readyz", health.ReadyHandler(bus))

	go func() {
		logger.Info("metrics listening", logging.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server failed", logging.Error(err))
		}
	}()
}
