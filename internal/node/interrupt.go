package node

import "fmt"

// Interrupt is the explicit "stop me" signal a node raises from Update
// to end its graph's cycle loop cleanly. It is distinguished
// from every other Update error: the scheduler treats it like an
// external Interrupt() call, not a runtime failure.
type Interrupt struct {
	Reason string
}

func (e *Interrupt) Error() string {
	if e.Reason == "" {
		return "node: requested graceful stop"
	}
	return fmt.Sprintf("node: requested graceful stop (%s)", e.Reason)
}
