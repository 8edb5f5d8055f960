// Command timeflux loads an application file, resolves its imports, and
// supervises one worker process per graph it declares. A separate
// "broker" subcommand starts the standalone pub/sub proxy that links
// several such applications (or several machines) together; it is never
// spawned automatically, since one broker instance is typically shared
// by many applications.
//
// Usage:
//
//	timeflux [flags] <app-file>
//	timeflux broker [flags] <ingress-addr> <egress-addr>
//
// Flags:
//
//	-d, -debug
//	    Enable debug-level, human-readable logging.
//	-e, -env string
//	    Path to a .env file to load before reading the app file.
//	-metrics-addr string
//	    Base address each graph's worker serves its own /metrics on,
//	    incrementing the port by one per graph (disabled if empty).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rakunlabs/into"

	"github.com/timeflux-go/timeflux/internal/broker"
	"github.com/timeflux-go/timeflux/internal/config"
	"github.com/timeflux-go/timeflux/internal/logging"
	"github.com/timeflux-go/timeflux/internal/manager"
	"github.com/timeflux-go/timeflux/internal/node"
	"github.com/timeflux-go/timeflux/internal/task"
	"github.com/timeflux-go/timeflux/internal/worker"

	_ "github.com/timeflux-go/timeflux/nodes"
)

var (
	name    = "timeflux"
	version = "v0.0.0"
)

func main() {
	// Two re-exec subcommands hide behind a fixed argv[1] rather than a
	// flag: a worker runs one graph, a background task runs one job. Both
	// are spawned by this same binary, never typed by a user.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case manager.WorkerFlag:
			os.Exit(runWorker())
		case task.ChildFlag:
			os.Exit(task.RunChild(context.Background()))
		case "broker":
			os.Exit(runBroker(os.Args[2:]))
		}
	}

	var debug bool
	flag.BoolVar(&debug, "debug", false, "enable debug-level, human-readable logging")
	flag.BoolVar(&debug, "d", false, "enable debug-level, human-readable logging (shorthand)")
	var envFile string
	flag.StringVar(&envFile, "env", "", "path to a .env file to load before reading the app file")
	flag.StringVar(&envFile, "e", "", "path to a .env file to load before reading the app file (shorthand)")
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus /metrics on (disabled if empty)")
	flag.Parse()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			fmt.Fprintf(os.Stderr, "%s: load env file %q: %v\n", name, envFile, err)
			os.Exit(1)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}

	appFile := flag.Arg(0)
	if appFile == "" {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <app-file>\n", name)
		flag.PrintDefaults()
		os.Exit(2)
	}

	logCfg := logging.DefaultConfig()
	if debug {
		logCfg.Level = "debug"
		logCfg.Pretty = true
	}
	log := logging.New(logCfg)

	into.Init(
		func(ctx context.Context) error { return run(ctx, appFile, metricsAddr, log) },
		into.WithLogger(log.Slog()),
		into.WithMsgf("%s [%s]", name, version),
	)
}

// run loads appFile and every graph it (transitively) imports, then
// supervises one worker process per graph until ctx is canceled or a
// worker fails. Each worker is handed its own /metrics address, starting
// at metricsAddr and incrementing by one port per graph, since every
// worker is its own process with its own Prometheus registry.
func run(ctx context.Context, appFile, metricsAddr string, log *logging.Logger) error {
	resolved, err := manager.Load(appFile)
	if err != nil {
		return fmt.Errorf("%s: load %q: %w", name, appFile, err)
	}
	log.WithField("graphs", len(resolved.Graphs)).Info("application loaded")

	mgr := manager.New(nil, log)
	if metricsAddr != "" {
		mgr.SetMetricsBaseAddr(metricsAddr)
	}
	return mgr.Run(ctx, resolved.Graphs)
}

// serveMetrics exposes /metrics on addr via promhttp for this process's
// own Prometheus registry. The returned func shuts the server down; it
// does not block.
func serveMetrics(addr string, log *logging.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server stopped")
		}
	}()
	log.WithField("addr", addr).Info("serving metrics")

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("metrics server shutdown")
		}
	}
}

// runBroker starts the standalone pub/sub proxy: an ingress address
// Publisher nodes dial, and an egress address Subscriber nodes dial. A
// non-zero -monitor-timeout switches to the watchdog variant, which logs
// (and, with -monitor-exit, exits) if no message is relayed within it.
func runBroker(args []string) int {
	fs := flag.NewFlagSet("broker", flag.ExitOnError)
	var debug bool
	fs.BoolVar(&debug, "debug", false, "enable debug-level, human-readable logging")
	var monitorTimeout int
	fs.IntVar(&monitorTimeout, "monitor-timeout", 0, "silence watchdog timeout in seconds (0 disables it)")
	var monitorExit bool
	fs.BoolVar(&monitorExit, "monitor-exit", false, "exit when the silence watchdog fires")
	fs.Parse(args)

	if fs.NArg() != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s broker [flags] <ingress-addr> <egress-addr>\n", name)
		fs.PrintDefaults()
		return 2
	}
	ingressAddr, egressAddr := fs.Arg(0), fs.Arg(1)

	logCfg := logging.DefaultConfig()
	if debug {
		logCfg.Level = "debug"
		logCfg.Pretty = true
	}
	log := logging.New(logCfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("interrupting")
		cancel()
	}()
	defer signal.Stop(sigCh)

	var err error
	if monitorTimeout > 0 {
		bounds := config.Default()
		timeout := time.Duration(monitorTimeout) * time.Second
		if timeout < bounds.BrokerMonitorMinTimeout {
			timeout = bounds.BrokerMonitorMinTimeout
		}
		if timeout > bounds.BrokerMonitorMaxTimeout {
			timeout = bounds.BrokerMonitorMaxTimeout
		}
		m := broker.NewMonitored(ingressAddr, egressAddr, timeout, monitorExit, broker.WithLogger(log))
		err = m.Run(ctx)
	} else {
		lvc := broker.NewLVC(ingressAddr, egressAddr, broker.WithLogger(log))
		err = lvc.Run(ctx)
	}
	if err != nil && err != context.Canceled {
		log.WithError(err).Error("broker stopped")
		return 1
	}
	return 0
}

// runWorker is the re-exec entrypoint for a single graph's worker
// process: it recovers the graph id and descriptor the Manager passed
// through the environment and drives that graph's scheduler to
// completion.
func runWorker() int {
	graphID := manager.GraphIDFromEnv()
	raw, ok := manager.GraphDescFromEnv()
	if !ok {
		fmt.Fprintf(os.Stderr, "%s: worker invoked without a graph descriptor\n", name)
		return 1
	}
	desc, err := worker.DescriptorFromEnv(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		return 1
	}

	log := logging.New(logging.DefaultConfig())
	if runID := manager.RunIDFromEnv(); runID != "" {
		log = log.WithRunID(runID)
	}
	if addr := manager.MetricsAddrFromEnv(); addr != "" {
		stopMetrics := serveMetrics(addr, log)
		defer stopMetrics()
	}
	return worker.Run(context.Background(), graphID, desc, node.Default(), log)
}
