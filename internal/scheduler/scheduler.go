// Package scheduler implements the per-cycle algorithm: clear
// every node's ports, wire in predecessor data with copy-on-fanout, call
// Update, and pace to the graph's target rate.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timeflux-go/timeflux/internal/frame"
	"github.com/timeflux-go/timeflux/internal/graph"
	"github.com/timeflux-go/timeflux/internal/logging"
	"github.com/timeflux-go/timeflux/internal/node"
	"github.com/timeflux-go/timeflux/internal/telemetry"
)

// Ports is the subset of node.Base's contract the scheduler wires
// against; it lets a node be anything that owns a named/numbered port
// map, not only node.Base.
type Ports interface {
	Port(name string) *frame.Port
	Iterate(pattern string) []node.IteratePort
	Clear()
}

// Node is what the scheduler needs from each constructed node: its ports
// and its Update call. Terminate is optional and checked separately.
type Node interface {
	Ports
	node.Updater
}

// ErrInterrupted is returned by Run when Interrupt has been called;
// it is not logged as a failure, it is the graceful-stop signal.
var ErrInterrupted = errors.New("scheduler: interrupted")

// Scheduler runs one graph's traversal plan at a fixed rate.
type Scheduler struct {
	graphID string
	steps   []graph.Step
	nodes   map[string]Node
	rate    float64
	log     *logging.Logger
	metrics *telemetry.Provider

	interrupted bool
}

// SetTelemetry attaches a metrics provider; Run and Next record cycle and
// node-update instruments against it. Left nil, recording is skipped
// entirely rather than requiring every caller (including every test
// building a Scheduler directly) to supply one.
func (s *Scheduler) SetTelemetry(t *telemetry.Provider) {
	s.metrics = t
}

// New builds a Scheduler for steps (in topological order), backed by
// nodes keyed by id, ticking at rate Hz (0 = as fast as possible).
func New(graphID string, steps []graph.Step, nodes map[string]Node, rate float64, log *logging.Logger) *Scheduler {
	return &Scheduler{graphID: graphID, steps: steps, nodes: nodes, rate: rate, log: log}
}

// Node looks up a constructed node by id; used by internal/branch so a
// parent node can drive ports on a specific node of its embedded
// sub-graph between Next() calls.
func (s *Scheduler) Node(id string) (Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// Terminate calls Terminate (where implemented) on every node in
// traversal order. Run already does this via defer on its own exit path;
// this exported form lets a Branch — which drives Next() directly and
// never calls Run — terminate its embedded sub-graph on its own shutdown.
func (s *Scheduler) Terminate() {
	s.terminateAll()
}

// Interrupt requests that Run stop after the current cycle completes and
// call Terminate on every node.
func (s *Scheduler) Interrupt() {
	s.interrupted = true
}

// Run loops Next until interrupted or a node's Update returns a non-nil
// error, pacing each cycle to 1/rate. It always calls Terminate on every
// node (in traversal order) before returning, whether it stopped
// gracefully or because of a failure.
func (s *Scheduler) Run() error {
	defer s.terminateAll()

	for {
		if s.interrupted {
			return ErrInterrupted
		}
		start := time.Now()
		if err := s.Next(); err != nil {
			var ni *node.Interrupt
			if errors.As(err, &ni) {
				return ErrInterrupted
			}
			return err
		}
		elapsed := time.Since(start)
		if s.rate <= 0 {
			s.recordCycle(elapsed, false)
			continue
		}
		budget := time.Duration(float64(time.Second) / s.rate)
		overran := elapsed >= budget
		s.recordCycle(elapsed, overran)
		if !overran {
			time.Sleep(budget - elapsed)
		} else if s.log != nil {
			s.log.WithGraphID(s.graphID).WithField("elapsed_ms", elapsed.Milliseconds()).
				WithField("budget_ms", budget.Milliseconds()).
				Warn("cycle exceeded its pacing budget, starting next cycle immediately")
		}
	}
}

func (s *Scheduler) recordCycle(elapsed time.Duration, overran bool) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordCycle(context.Background(), s.graphID, elapsed, overran)
}

// Next runs exactly one cycle: clear, wire, update, for every step in
// order. Used directly (without Run's pacing loop) to embed a rate-0
// graph as a Branch.
func (s *Scheduler) Next() error {
	frame.SetCycleStart(time.Now())
	frame.SetRate(s.rate)

	for _, step := range s.steps {
		n, ok := s.nodes[step.NodeID]
		if !ok {
			return fmt.Errorf("scheduler: no constructed node for step %q", step.NodeID)
		}
		n.Clear()
		for _, pred := range step.Predecessors {
			if err := s.wire(n, pred); err != nil {
				return err
			}
		}
		updateStart := time.Now()
		err := n.Update()
		if s.metrics != nil {
			s.metrics.RecordNodeUpdate(context.Background(), s.graphID, step.NodeID, time.Since(updateStart), err)
		}
		if err != nil {
			return fmt.Errorf("node %q: %w", step.NodeID, err)
		}
	}
	return nil
}

// wire resolves one predecessor edge against the already-updated source
// node's ports, expanding "*" suffixes, and materializes the data into
// the destination node (by reference if pred.Copy is false, else by deep
// clone).
func (s *Scheduler) wire(dst Node, pred graph.PredecessorEdge) error {
	src, ok := s.nodes[pred.SrcNode]
	if !ok {
		return fmt.Errorf("scheduler: predecessor node %q not found", pred.SrcNode)
	}
	for _, expanded := range src.Iterate(pred.SrcPort) {
		dstName := pred.DstPort + expanded.Suffix
		dstPort := dst.Port(dstName)
		if pred.Copy {
			cloned := expanded.Port.Clone()
			dstPort.Data = cloned.Data
			dstPort.Meta = cloned.Meta
		} else {
			dstPort.Data = expanded.Port.Data
			dstPort.Meta = expanded.Port.Meta
		}
	}
	return nil
}

// terminateAll calls Terminate (if implemented) on every node, in
// traversal order, swallowing nothing but logging every failure: a
// terminate error must never prevent a sibling node's own terminate from
// running.
func (s *Scheduler) terminateAll() {
	for _, step := range s.steps {
		n, ok := s.nodes[step.NodeID]
		if !ok {
			continue
		}
		term, ok := n.(node.Terminator)
		if !ok {
			continue
		}
		if err := term.Terminate(); err != nil && s.log != nil {
			s.log.WithGraphID(s.graphID).WithNodeID(step.NodeID).WithError(err).Error("terminate failed")
		}
	}
}
