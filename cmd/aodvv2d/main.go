// Command aodvv2d runs the AODVv2 routing core as a standalone daemon:
// it binds the MANET UDP transport, wires it to the core, and
// optionally serves Prometheus metrics and a live operator TUI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aodvv2/internal/core"
	"aodvv2/internal/transport"
	"aodvv2/internal/tui"
)

func main() {
	var (
		ifaceNames  = flag.String("iface", "", "Comma-separated interface names to join ff02::6d on (empty: every eligible interface)")
		clientPfx   = flag.String("client-prefix", "", "Router client prefix this node originates, e.g. 2001:db8:1::/64 (optional)")
		logLevel    = flag.String("log-level", "info", "debug|info|warn|error")
		logFilePath = flag.String("log-file", "aodvv2d.log", "Log file path (kept off stderr so it doesn't corrupt the TUI alt screen)")
		metricsAddr = flag.String("metrics-addr", "", "Address to serve Prometheus metrics on, e.g. :9471 (empty disables)")
		noTUI       = flag.Bool("no-tui", false, "Disable the operator TUI and just run the daemon")
		refresh     = flag.Duration("refresh", 2*time.Second, "TUI refresh interval")
	)
	flag.Parse()

	level := parseLogLevel(*logLevel)

	logFile, err := os.OpenFile(*logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	handler := slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler).With("component", "aodvv2d")

	var ifaces []string
	if *ifaceNames != "" {
		ifaces = strings.Split(*ifaceNames, ",")
	}

	conn, err := transport.Listen(transport.Config{
		Interfaces: ifaces,
		Logger:     logger.With("component", "transport"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open MANET transport: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	c, err := core.New(core.Config{}, core.Deps{
		Transport: conn,
		Logger:    logger.With("component", "core"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build core: %v\n", err)
		os.Exit(1)
	}

	// The RREQ/RREP/RERR multicast target must be registered per
	// joined interface before the discovery driver can flood a
	// request onto it.
	mcastGroup := netip.MustParseAddr(transport.MulticastGroup)
	for _, ifi := range conn.Interfaces() {
		dst := mcastGroup.WithZone(ifi.Name)
		if _, ok := c.Writer.RegisterTarget(dst, strconv.Itoa(ifi.Index)); !ok {
			logger.Warn("failed to register multicast target", "iface", ifi.Name)
		}
	}

	if *clientPfx != "" {
		prefix, err := netip.ParsePrefix(*clientPfx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad -client-prefix: %v\n", err)
			os.Exit(1)
		}
		if _, err := c.RCS.Alloc(prefix.Addr(), prefix.Bits(), 0); err != nil {
			fmt.Fprintf(os.Stderr, "failed to register router client: %v\n", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coreErrCh := make(chan error, 1)
	go func() { coreErrCh <- c.Run(ctx) }()

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(c.Metrics())
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", "err", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		logger.Info("serving prometheus metrics", "addr", *metricsAddr)
	}

	logger.Info("aodvv2d starting", "iface", *ifaceNames, "metrics", *metricsAddr)

	if *noTUI {
		if err := <-coreErrCh; err != nil && ctx.Err() == nil {
			logger.Error("core error", "err", err)
			os.Exit(1)
		}
		return
	}

	m := tui.NewModel(c.Snapshot, *refresh)
	p := tea.NewProgram(m, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		stop()
		os.Exit(1)
	}

	stop()
	if err := <-coreErrCh; err != nil && ctx.Err() == nil {
		logger.Error("core error", "err", err)
		os.Exit(1)
	}
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
