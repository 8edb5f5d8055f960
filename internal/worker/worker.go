// Package worker instantiates a single graph's nodes from their
// descriptors and drives its Scheduler to completion. A
// Worker owns exactly one graph and lives in its own OS process: the
// Manager spawns one worker per graph via a re-exec of the same binary
// (see cmd/timeflux), the graph descriptor carried through the
// environment since nothing is shared across the process boundary.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/timeflux-go/timeflux/internal/appconfig"
	"github.com/timeflux-go/timeflux/internal/graph"
	"github.com/timeflux-go/timeflux/internal/logging"
	"github.com/timeflux-go/timeflux/internal/node"
	"github.com/timeflux-go/timeflux/internal/scheduler"
	"github.com/timeflux-go/timeflux/internal/telemetry"
)

// Build instantiates every node in desc via registry, validates and
// traverses the edge set, and returns a ready-to-run Scheduler. Load
// failures (unknown module/class, constructor-rejected params, duplicate
// ids, undefined endpoints, cycles) are all returned as-is; the caller
// decides how to report them.
func Build(graphID string, desc appconfig.GraphDescriptor, registry *node.Registry, log *logging.Logger) (*scheduler.Scheduler, error) {
	g, err := graph.New(desc.Nodes, desc.Edges)
	if err != nil {
		return nil, err
	}
	steps, err := g.Traverse()
	if err != nil {
		return nil, err
	}

	instances := make(map[string]scheduler.Node, len(desc.Nodes))
	for _, nd := range desc.Nodes {
		inst, err := registry.Make(nd.ID, nd.Module, nd.Class, nd.Params)
		if err != nil {
			return nil, err
		}
		schedNode, ok := inst.(scheduler.Node)
		if !ok {
			return nil, &node.LoadError{NodeID: nd.ID, Key: nd.Key(), Reason: "constructed instance does not satisfy the node contract"}
		}
		instances[nd.ID] = schedNode
	}

	return scheduler.New(graphID, steps, instances, desc.Rate, log), nil
}

// Run builds and runs graphID's scheduler to completion, installing a
// signal handler that requests a graceful Interrupt on SIGINT/SIGTERM. It
// returns the process exit code the caller (cmd/timeflux's worker
// subcommand) should use.
func Run(ctx context.Context, graphID string, desc appconfig.GraphDescriptor, registry *node.Registry, log *logging.Logger) int {
	sched, err := Build(graphID, desc, registry, log)
	if err != nil {
		log.WithGraphID(graphID).WithError(err).Error("failed to build graph")
		return 1
	}

	metrics, err := telemetry.NewProvider(ctx, telemetry.DefaultConfig())
	if err != nil {
		log.WithGraphID(graphID).WithError(err).Warn("telemetry unavailable, running without cycle/node metrics")
	} else {
		sched.SetTelemetry(metrics)
		defer metrics.Shutdown(context.Background())
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	interrupted := false
	go func() {
		for range sigCh {
			if interrupted {
				continue // ignore further interrupts once one is in flight
			}
			interrupted = true
			log.WithGraphID(graphID).Info("interrupting")
			sched.Interrupt()
		}
	}()
	defer signal.Stop(sigCh)

	runErr := sched.Run()
	if runErr == nil || runErr == scheduler.ErrInterrupted {
		return 0
	}
	log.WithGraphID(graphID).WithError(runErr).Error("cycle failed, terminating")
	return 1
}

// DescriptorFromEnv is a small helper for the re-exec entrypoint: the
// Manager marshals a graph's descriptor as JSON into an environment
// variable when spawning a worker, since passing a complex object over
// argv is awkward and there is no shared memory across the fork boundary.
// It is defined here rather than in cmd/timeflux so that encoding and
// decoding stay next to each other conceptually with the Manager's
// spawn logic; cmd/timeflux only calls it.
func DescriptorFromEnv(raw string) (appconfig.GraphDescriptor, error) {
	var desc appconfig.GraphDescriptor
	if raw == "" {
		return desc, fmt.Errorf("worker: empty graph descriptor")
	}
	if err := json.Unmarshal([]byte(raw), &desc); err != nil {
		return desc, fmt.Errorf("worker: decode graph descriptor: %w", err)
	}
	return desc, nil
}
