// Package graph builds a Graph from node and edge descriptors, rejects
// structurally invalid applications, and produces a topological traversal
// plan with copy-on-fanout flags. The topological sort keeps a classic
// ring-buffer Kahn's algorithm; everything downstream of it (endpoint
// parsing, copy-flag assignment, traversal steps) is new.
package graph

import (
	"fmt"
	"strings"

	"github.com/timeflux-go/timeflux/internal/appconfig"
)

// Endpoint is a parsed "node[:port]" reference, with the implied default
// port already resolved ("o" for a source, "i" for a target).
type Endpoint struct {
	Node string
	Port string
}

// parseSource resolves a source endpoint. A missing port means "o"; a
// literal "*" means every output port, expressed as the prefix pattern
// "o*" the scheduler hands to Iterate, so "o" itself matches with an
// empty suffix and "o_x" matches with suffix "_x".
func parseSource(raw string) Endpoint {
	if node, port, ok := strings.Cut(raw, ":"); ok {
		if port == "*" {
			port = "o*"
		}
		return Endpoint{Node: node, Port: port}
	}
	return Endpoint{Node: raw, Port: "o"}
}

// parseTarget resolves a target endpoint. A missing port and a literal
// "*" both mean "i": the target port is a concatenation base the source
// suffix is appended to, so "i" already fans a wildcard source out to
// "i", "i_x", ... on the destination node.
func parseTarget(raw string) Endpoint {
	if node, port, ok := strings.Cut(raw, ":"); ok {
		if port == "*" {
			port = "i"
		}
		return Endpoint{Node: node, Port: port}
	}
	return Endpoint{Node: raw, Port: "i"}
}

// edge is an internal, fully-resolved edge between two endpoints.
type edge struct {
	Source Endpoint
	Target Endpoint
}

// PredecessorEdge is one incoming wire recorded against a traversal
// step: the upstream node/port, the local input port it feeds, and
// whether the data must be deep-cloned before delivery.
type PredecessorEdge struct {
	SrcNode string
	SrcPort string
	DstPort string
	Copy    bool
}

// Step is one entry of a traversal plan: a node id and the predecessor
// edges that must be wired into it before Update is called.
type Step struct {
	NodeID       string
	Predecessors []PredecessorEdge
}

// Graph is a validated node/edge set, ready for topological traversal.
type Graph struct {
	order []string // declaration order, used for tie-break stability
	nodes map[string]bool
	edges []edge
}

// New validates nodes and edges and returns a Graph. It rejects duplicate
// node ids and edges referencing undefined nodes; it does not check for
// cycles, which Traverse reports lazily (a cycle is only fatal once
// someone actually needs an execution order).
func New(nodeDescs []appconfig.NodeDescriptor, edgeDescs []appconfig.EdgeDescriptor) (*Graph, error) {
	nodes := make(map[string]bool, len(nodeDescs))
	order := make([]string, 0, len(nodeDescs))
	for _, n := range nodeDescs {
		if nodes[n.ID] {
			return nil, &DuplicateNodeError{ID: n.ID}
		}
		nodes[n.ID] = true
		order = append(order, n.ID)
	}

	edges := make([]edge, 0, len(edgeDescs))
	for _, e := range edgeDescs {
		src := parseSource(e.Source)
		dst := parseTarget(e.Target)
		if !nodes[src.Node] {
			return nil, &UndefinedEndpointError{Endpoint: e.Source, NodeID: src.Node}
		}
		if !nodes[dst.Node] {
			return nil, &UndefinedEndpointError{Endpoint: e.Target, NodeID: dst.Node}
		}
		edges = append(edges, edge{Source: src, Target: dst})
	}

	return &Graph{order: order, nodes: nodes, edges: edges}, nil
}

// Traverse returns a topological traversal plan (Kahn's algorithm), with
// copy flags assigned so that within a given source port, exactly one
// consumer — the last in traversal order — has copy=false and every
// earlier one has copy=true. Fails with NotAcyclicError if the edge set
// contains a cycle.
//
// The topological sort itself: in-degree map, adjacency list built in a
// single pass, and a ring buffer for the queue. Declaration order breaks
// ties deterministically; only stability is required, not any particular
// order.
func (g *Graph) Traverse() ([]Step, error) {
	numNodes := len(g.order)
	if numNodes == 0 {
		return []Step{}, nil
	}

	inDegree := make(map[string]int, numNodes)
	adjacency := make(map[string][]edge, numNodes)
	for _, id := range g.order {
		inDegree[id] = 0
	}
	for _, e := range g.edges {
		adjacency[e.Source.Node] = append(adjacency[e.Source.Node], e)
		inDegree[e.Target.Node]++
	}

	orphans := make([]string, 0, numNodes)
	for _, id := range g.order {
		if inDegree[id] == 0 {
			orphans = append(orphans, id)
		}
	}

	queue := make([]string, numNodes)
	queueStart, queueEnd := 0, len(orphans)
	copy(queue, orphans)

	steps := make([]Step, 0, numNodes)

	for queueStart < queueEnd {
		current := queue[queueStart]
		queueStart++
		steps = append(steps, Step{NodeID: current})

		neighbors := adjacency[current]
		for _, e := range neighbors {
			inDegree[e.Target.Node]--
			if inDegree[e.Target.Node] == 0 {
				queue[queueEnd] = e.Target.Node
				queueEnd++
			}
		}
	}

	if len(steps) != numNodes {
		remaining := make([]string, 0, numNodes-len(steps))
		for id, deg := range inDegree {
			if deg > 0 {
				remaining = append(remaining, id)
			}
		}
		return nil, &NotAcyclicError{Remaining: remaining}
	}

	g.assignPredecessors(steps)
	return steps, nil
}

// assignPredecessors fills in each step's predecessor list and copy
// flags. Inputs are wired at the consumer's own step, after earlier
// consumers of the same source port have already run — and possibly
// mutated whatever they were handed. So within a source port the
// reference goes to the last traversal-order consumer, and every earlier
// one clones while the source's data is still pristine.
func (g *Graph) assignPredecessors(steps []Step) {
	type sourcePort struct {
		node string
		port string
	}
	total := make(map[sourcePort]int)
	byTarget := make(map[string][]edge, len(steps))
	for _, e := range g.edges {
		total[sourcePort{node: e.Source.Node, port: e.Source.Port}]++
		byTarget[e.Target.Node] = append(byTarget[e.Target.Node], e)
	}

	seen := make(map[sourcePort]int)
	for i := range steps {
		edgesIn := byTarget[steps[i].NodeID]
		preds := make([]PredecessorEdge, 0, len(edgesIn))
		for _, e := range edgesIn {
			key := sourcePort{node: e.Source.Node, port: e.Source.Port}
			seen[key]++
			preds = append(preds, PredecessorEdge{
				SrcNode: e.Source.Node,
				SrcPort: e.Source.Port,
				DstPort: e.Target.Port,
				Copy:    seen[key] < total[key],
			})
		}
		steps[i].Predecessors = preds
	}
}

// String renders a Step for diagnostics and log lines.
func (s Step) String() string {
	return fmt.Sprintf("%s (%d predecessor(s))", s.NodeID, len(s.Predecessors))
}
