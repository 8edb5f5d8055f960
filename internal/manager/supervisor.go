// Package manager implements application loading and process supervision (one
// Worker per graph, polled for exit, shut down gracefully with a 10s
// force-kill grace period).
package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/timeflux-go/timeflux/internal/appconfig"
	"github.com/timeflux-go/timeflux/internal/config"
	"github.com/timeflux-go/timeflux/internal/logging"
)

// WorkerFlag is the hidden argv[1] cmd/timeflux recognizes to re-exec
// itself as a single graph's worker process, carrying the graph
// descriptor through an environment variable since there is no shared
// memory across the process boundary.
const WorkerFlag = "--timeflux-worker"

const (
	envGraphID     = "TIMEFLUX_GRAPH_ID"
	envGraphDesc   = "TIMEFLUX_GRAPH_DESC"
	envRunID       = "TIMEFLUX_RUN_ID"
	envMetricsAddr = "TIMEFLUX_METRICS_ADDR"
)

// MetricsAddrFromEnv is read by the worker subcommand to learn which
// address (if any) it should serve its own /metrics endpoint on: each
// worker is its own process with its own Prometheus registry, so there is
// no single process-wide endpoint to scrape them all from.
func MetricsAddrFromEnv() string { return os.Getenv(envMetricsAddr) }

// GraphIDFromEnv and GraphDescFromEnv are read by the worker subcommand
// (cmd/timeflux) to recover what graph it's supposed to run.
func GraphIDFromEnv() string { return os.Getenv(envGraphID) }

func GraphDescFromEnv() (string, bool) {
	v := os.Getenv(envGraphDesc)
	return v, v != ""
}

// RunIDFromEnv is read by the worker subcommand to tag its own log lines
// with the same correlation id the Manager that spawned it is using, so a
// single Run invocation's logs can be grepped across every worker process.
func RunIDFromEnv() string { return os.Getenv(envRunID) }

// Manager supervises one worker process per graph.
type Manager struct {
	cfg             *config.Config
	log             *logging.Logger
	metricsBaseAddr string
	observers       observerSet
}

// AddObserver registers an Observer for graph lifecycle events. Must be
// called before Run.
func (m *Manager) AddObserver(o Observer) {
	m.observers.Register(o)
}

// New builds a Manager with cfg (nil means config.Default()).
func New(cfg *config.Config, log *logging.Logger) *Manager {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logging.New(logging.DefaultConfig())
	}
	return &Manager{cfg: cfg, log: log}
}

// SetMetricsBaseAddr assigns each spawned worker its own /metrics address,
// starting at base and incrementing the port by the worker's position in
// the graph list: two worker processes can't share one listening port, so
// there is no single address to scrape every graph's instruments from.
func (m *Manager) SetMetricsBaseAddr(base string) {
	m.metricsBaseAddr = base
}

// workerMetricsAddr returns the i-th worker's own metrics address, or ""
// if no base address was configured.
func (m *Manager) workerMetricsAddr(i int) string {
	if m.metricsBaseAddr == "" {
		return ""
	}
	host, portStr, err := net.SplitHostPort(m.metricsBaseAddr)
	if err != nil {
		return ""
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return ""
	}
	return net.JoinHostPort(host, strconv.Itoa(port+i))
}

type workerProc struct {
	graphID string
	cmd     *exec.Cmd
	started time.Time
	exited  atomic.Bool
	mu      sync.Mutex
	err     error
}

func (p *workerProc) setExit(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	p.exited.Store(true)
}

func (p *workerProc) exitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Run spawns one worker per graph in app, polls for exit every
// cfg.PollInterval, and tears every worker down the moment any one of
// them exits for any reason. It returns once every worker has exited or,
// after cfg.ShutdownTimeout, the remaining ones have been sent a kill. The
// result is the exit error of the first worker the poll found exited (in
// graph order), nil if that worker exited cleanly. ctx
// cancellation (e.g. the CLI's own SIGINT handling) triggers the same
// graceful shutdown path and reports nil, not the context error.
func (m *Manager) Run(ctx context.Context, graphs []appconfig.GraphDescriptor) error {
	runID := uuid.NewString()
	log := m.log.WithRunID(runID)

	if err := runHook(ctx, os.Getenv("TIMEFLUX_HOOK_PRE")); err != nil {
		return fmt.Errorf("manager: pre-start hook: %w", err)
	}

	if len(graphs) == 0 {
		return runHook(context.Background(), os.Getenv("TIMEFLUX_HOOK_POST"))
	}

	procs := make([]*workerProc, 0, len(graphs))
	for i, g := range graphs {
		p, err := m.spawn(ctx, g, runID, m.workerMetricsAddr(i), log)
		if err != nil {
			m.shutdown(procs, log)
			return fmt.Errorf("manager: spawn worker for graph %q: %w", g.ID, err)
		}
		procs = append(procs, p)
		m.observers.emit(ctx, Event{Type: EventGraphStart, Timestamp: p.started, GraphID: g.ID})
	}

	firstFailure := m.supervise(ctx, procs)
	m.shutdown(procs, log)

	for _, p := range procs {
		m.observers.emit(context.Background(), Event{
			Type:      EventGraphEnd,
			Timestamp: time.Now(),
			GraphID:   p.graphID,
			Elapsed:   time.Since(p.started),
			Err:       p.exitErr(),
		})
	}

	if err := runHook(context.Background(), os.Getenv("TIMEFLUX_HOOK_POST")); err != nil {
		log.WithError(err).Error("post-shutdown hook failed")
	}

	return firstFailure
}

func (m *Manager) spawn(ctx context.Context, g appconfig.GraphDescriptor, runID, metricsAddr string, log *logging.Logger) (*workerProc, error) {
	descJSON, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode graph descriptor: %w", err)
	}

	cmd := exec.Command(os.Args[0], WorkerFlag)
	cmd.Env = append(os.Environ(), envGraphID+"="+g.ID, envGraphDesc+"="+string(descJSON), envRunID+"="+runID)
	if metricsAddr != "" {
		cmd.Env = append(cmd.Env, envMetricsAddr+"="+metricsAddr)
	}
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("attach stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start process: %w", err)
	}

	p := &workerProc{graphID: g.ID, cmd: cmd, started: time.Now()}
	go logging.Aggregate(stdout, log, g.ID)
	go func() {
		p.setExit(cmd.Wait())
	}()
	return p, nil
}

// supervise polls every worker at cfg.PollInterval until one exits or
// ctx is canceled. It returns the exiting worker's error (nil if it
// exited cleanly). Cancellation is the normal graceful-stop path, not a
// failure, so it also returns nil; the caller shuts every worker down
// either way.
func (m *Manager) supervise(ctx context.Context, procs []*workerProc) error {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, p := range procs {
				if p.exited.Load() {
					return p.exitErr()
				}
			}
		}
	}
}

// shutdown sends a graceful interrupt to every still-live worker, waits
// up to cfg.ShutdownTimeout, and force-kills whatever remains.
func (m *Manager) shutdown(procs []*workerProc, log *logging.Logger) {
	for _, p := range procs {
		if p.exited.Load() || p.cmd.Process == nil {
			continue
		}
		if err := p.cmd.Process.Signal(syscall.SIGINT); err != nil {
			log.WithGraphID(p.graphID).WithError(err).Warn("failed to signal worker")
		}
	}

	deadline := time.After(m.cfg.ShutdownTimeout)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
waitLoop:
	for {
		allExited := true
		for _, p := range procs {
			if !p.exited.Load() {
				allExited = false
				break
			}
		}
		if allExited {
			break waitLoop
		}
		select {
		case <-deadline:
			break waitLoop
		case <-ticker.C:
		}
	}

	for _, p := range procs {
		if p.exited.Load() || p.cmd.Process == nil {
			continue
		}
		log.WithGraphID(p.graphID).Warn("worker did not exit within the shutdown timeout, killing")
		p.cmd.Process.Kill()
	}
}
