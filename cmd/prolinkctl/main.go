// Copyright (C) 2026 The prolink Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command prolinkctl is a small demonstration CLI over the discover and
// dbserver packages: it can passively list devices as they come and go,
// probe a single device for its DBServer port, or run a tiny HTTP server
// exposing both as JSON/Prometheus endpoints (SPEC_FULL.md §6).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/willabides/kongplete"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/prolinkgo/prolink/lib/config"
	"github.com/prolinkgo/prolink/lib/crashreporting"
	"github.com/prolinkgo/prolink/lib/dbserver"
	"github.com/prolinkgo/prolink/lib/discover"
	"github.com/prolinkgo/prolink/lib/history"
	"github.com/prolinkgo/prolink/lib/metrics"
	"github.com/prolinkgo/prolink/lib/vcdj"
)

// Globals carries flags shared by every subcommand.
type Globals struct {
	ConfigPath string `help:"Path to a YAML config file." type:"path" name:"config"`
	LogLevel   string `help:"Minimum log level." enum:"debug,info,warn,error" default:"info"`
	SentryDSN  string `help:"Optional Sentry-compatible DSN for crash reporting." env:"PROLINK_SENTRY_DSN"`

	cfg      config.Config
	reporter *crashreporting.Reporter
}

// CLI is the root command set.
type CLI struct {
	Globals

	InstallCompletions kongplete.InstallCompletions `cmd:"" help:"Install shell completions."`
	Discover           DiscoverCmd                  `cmd:"" help:"Print device-found/device-lost events as they happen."`
	Probe              ProbeCmd                     `cmd:"" help:"Discover devices and report one device's DBServer port."`
	Serve              ServeCmd                     `cmd:"" help:"Run an HTTP server exposing /devices and /metrics."`
}

func main() {
	undoMaxProcs, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		slog.Debug(fmt.Sprintf(format, args...))
	}))
	if err != nil {
		slog.Warn("failed to adjust GOMAXPROCS", "error", err)
	}
	defer undoMaxProcs()

	var cli CLI
	parser := kong.Must(&cli,
		kong.Name("prolinkctl"),
		kong.Description("Demonstration client for DeviceFinder and ConnectionManager."),
		kong.UsageOnError(),
	)

	kongplete.Complete(parser)

	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	setLogLevel(cli.LogLevel)

	cfg := config.Default()
	if cli.ConfigPath != "" {
		cfg, err = config.Load(cli.ConfigPath)
		parser.FatalIfErrorf(err)
	}
	cli.cfg = cfg

	reporter, err := crashreporting.NewReporter(cli.SentryDSN)
	parser.FatalIfErrorf(err)
	cli.reporter = reporter
	defer reporter.Close()

	parser.FatalIfErrorf(ctx.Run(&cli.Globals))
}

func setLogLevel(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// newFinder builds a DeviceFinder wired to the parsed config and crash
// reporter, shared by every subcommand.
func newFinder(g *Globals) *discover.DeviceFinder {
	return discover.New(
		discover.WithMaxAge(g.cfg.MaxAge()),
		discover.WithAnnouncementPort(g.cfg.AnnouncementPort),
		discover.WithPanicReporter(g.reporter),
	)
}

// DiscoverCmd runs DeviceFinder alone and prints transitions to stdout.
type DiscoverCmd struct {
	Duration time.Duration `help:"Stop after this long; 0 runs until interrupted." default:"0"`
}

func (c *DiscoverCmd) Run(g *Globals) error {
	finder := newFinder(g)
	finder.AddListener(discover.ListenerFuncs{
		Found: func(a discover.DeviceAnnouncement) {
			fmt.Printf("found  #%-3d %-20s %s\n", a.Number, a.Name, a.Address)
		},
		Lost: func(a discover.DeviceAnnouncement) {
			fmt.Printf("lost   #%-3d %-20s %s\n", a.Number, a.Name, a.Address)
		},
	})

	if err := finder.Start(); err != nil {
		return err
	}
	defer finder.Stop()

	waitForInterruptOrDuration(c.Duration)
	return nil
}

// ProbeCmd discovers devices for a short settling window, then reports
// one device's DBServer port.
type ProbeCmd struct {
	Device  int           `arg:"" help:"Device number to query."`
	Settle  time.Duration `help:"How long to wait for discovery before probing." default:"2s"`
	Timeout time.Duration `help:"DBServer connect/read timeout." default:"5s"`
}

func (c *ProbeCmd) Run(g *Globals) error {
	finder := newFinder(g)
	manager := dbserver.New(finder, vcdj.NoopVirtualCdj{},
		dbserver.WithSocketTimeout(c.Timeout),
		dbserver.WithPanicReporter(g.reporter),
	)

	if err := manager.Start(); err != nil {
		return err
	}
	defer manager.Stop()
	defer finder.Stop()

	time.Sleep(c.Settle)

	port := manager.GetPlayerDBServerPort(c.Device)
	if port < 0 {
		fmt.Printf("device #%d: dbserver port unknown\n", c.Device)
		return nil
	}
	fmt.Printf("device #%d: dbserver port %d\n", c.Device, port)
	return nil
}

// ServeCmd runs the HTTP demo server.
type ServeCmd struct {
	Addr string `help:"Address to listen on." default:"127.0.0.1:7845"`
}

func (c *ServeCmd) Run(g *Globals) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	registry := metrics.NewRegistry(reg)

	recorder := history.NewRecorder(history.DefaultCapacity, history.DefaultTTL)

	finder := discover.New(
		discover.WithMaxAge(g.cfg.MaxAge()),
		discover.WithAnnouncementPort(g.cfg.AnnouncementPort),
		discover.WithMetrics(registry),
		discover.WithPresenceRecorder(recorder),
		discover.WithPanicReporter(g.reporter),
	)
	manager := dbserver.New(finder, vcdj.NoopVirtualCdj{},
		dbserver.WithSocketTimeout(g.cfg.SocketTimeout()),
		dbserver.WithMetrics(registry),
		dbserver.WithPanicReporter(g.reporter),
	)

	if err := manager.Start(); err != nil {
		return err
	}
	defer manager.Stop()
	defer finder.Stop()

	mux := newServeMux(finder, manager, recorder, reg)

	server := &http.Server{Addr: c.Addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("prolinkctl serving", "addr", c.Addr)
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

func newServeMux(finder *discover.DeviceFinder, manager *dbserver.Manager, recorder *history.Recorder, reg *prometheus.Registry) http.Handler {
	router := httprouter.New()
	router.GET("/devices", devicesHandler(finder, manager))
	router.GET("/history", historyHandler(recorder))
	router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return router
}

type deviceView struct {
	Number    int    `json:"number"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	Port      int    `json:"dbserverPort"`
	Timestamp int64  `json:"timestamp"`
}

func devicesHandler(finder *discover.DeviceFinder, manager *dbserver.Manager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		devices, err := finder.CurrentDevices()
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		views := make([]deviceView, 0, len(devices))
		for _, d := range devices {
			views = append(views, deviceView{
				Number:    d.Number,
				Name:      d.Name,
				Address:   d.Address.String(),
				Port:      manager.GetPlayerDBServerPort(d.Number),
				Timestamp: d.Timestamp,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(views)
	}
}

func historyHandler(recorder *history.Recorder) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(recorder.Recent())
	}
}

func waitForInterruptOrDuration(d time.Duration) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if d <= 0 {
		<-ctx.Done()
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
