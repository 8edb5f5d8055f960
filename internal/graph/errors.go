package graph

import "fmt"

// DuplicateNodeError is returned when two node descriptors share an id.
type DuplicateNodeError struct {
	ID string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("graph: duplicate node id %q", e.ID)
}

// UndefinedEndpointError is returned when an edge references a node id
// that has no matching node descriptor.
type UndefinedEndpointError struct {
	Endpoint string
	NodeID   string
}

func (e *UndefinedEndpointError) Error() string {
	return fmt.Sprintf("graph: edge endpoint %q references undefined node %q", e.Endpoint, e.NodeID)
}

// NotAcyclicError is returned by Traverse when the edge set contains a
// cycle.
type NotAcyclicError struct {
	Remaining []string
}

func (e *NotAcyclicError) Error() string {
	return fmt.Sprintf("graph: not acyclic, %d node(s) involved in a cycle", len(e.Remaining))
}
