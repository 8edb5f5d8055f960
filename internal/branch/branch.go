// Package branch embeds a Scheduler over a rate-0 sub-graph inside a
// single owning node, exposing the sub-graph's ports to that parent and
// advancing it exactly one cycle per Next() call. It lets a sub-graph
// (e.g. a filter chain) be reused as a helper inside a larger graph
// without running as its own worker process.
package branch

import (
	"fmt"

	"github.com/timeflux-go/timeflux/internal/appconfig"
	"github.com/timeflux-go/timeflux/internal/frame"
	"github.com/timeflux-go/timeflux/internal/logging"
	"github.com/timeflux-go/timeflux/internal/node"
	"github.com/timeflux-go/timeflux/internal/scheduler"
	"github.com/timeflux-go/timeflux/internal/worker"
)

// Branch is a library type a concrete node embeds or holds. It has no
// Update() of its own: an enclosing Scheduler never sees it, the owning
// node constructs it directly and drives it from its own Update.
type Branch struct {
	id    string
	sched *scheduler.Scheduler
}

// New builds a Branch from a graph descriptor: it validates, traverses,
// and instantiates the sub-graph's nodes exactly like a top-level Worker
// would, forcing rate to 0 so the embedded Scheduler never sleeps — only
// Next() ever advances it.
func New(id string, desc appconfig.GraphDescriptor, registry *node.Registry, log *logging.Logger) (*Branch, error) {
	desc.Rate = 0
	sched, err := worker.Build(id, desc, registry, log)
	if err != nil {
		return nil, fmt.Errorf("branch %q: %w", id, err)
	}
	return &Branch{id: id, sched: sched}, nil
}

// Next runs exactly one cycle of the embedded sub-graph.
func (b *Branch) Next() error {
	return b.sched.Next()
}

// Input returns the named input port of nodeID within the sub-graph, for
// the parent node to set data on before calling Next. The port is marked
// persistent so the clear step at the top of Next keeps what was set.
func (b *Branch) Input(nodeID, portName string) (*frame.Port, error) {
	p, err := b.port(nodeID, portName)
	if err != nil {
		return nil, err
	}
	p.Persistent = true
	return p, nil
}

// Output returns the named output port of nodeID within the sub-graph,
// for the parent node to read after calling Next.
func (b *Branch) Output(nodeID, portName string) (*frame.Port, error) {
	return b.port(nodeID, portName)
}

func (b *Branch) port(nodeID, portName string) (*frame.Port, error) {
	n, ok := b.sched.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("branch %q: no node %q in sub-graph", b.id, nodeID)
	}
	return n.Port(portName), nil
}

// Terminate shuts down the sub-graph's nodes in traversal order; the
// parent node calls this from its own Terminate.
func (b *Branch) Terminate() error {
	b.sched.Terminate()
	return nil
}
