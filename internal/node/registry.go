package node

import (
	"fmt"
	"sync"
)

// Instance is the contract every constructed node satisfies: it always
// embeds Base and always implements Updater; Terminator is optional.
type Instance interface {
	Updater
	SetID(id string)
}

// Constructor builds one node instance from its descriptor params.
// Returning an error here becomes a LoadError once wrapped by the
// Registry, carrying the offending node id.
type Constructor func(params map[string]interface{}) (Instance, error)

// LoadError is raised at construction time for an unknown module,
// unknown class, or params the constructor rejects: a Go registry has no
// import machinery to fail at a different layer, so all three collapse
// into one typed error here.
type LoadError struct {
	NodeID string
	Key    string
	Reason string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("node %q: %s (%s)", e.NodeID, e.Reason, e.Key)
}

// Registry is a thread-safe "module.Class" -> Constructor map. Built-in
// node packages register themselves from an init() function; this turns
// a bad module/class reference into a registration-time lookup failure
// instead of a dynamic import failure.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry that built-in node packages
// register themselves into via their init() functions.
func Default() *Registry { return defaultRegistry }

func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register adds a constructor under "module.class". It panics on a
// duplicate key: two built-in node packages claiming the same name is a
// programming error caught at process startup, not something a running
// graph should ever observe.
func (r *Registry) Register(module, class string, ctor Constructor) {
	key := module + "." + class
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ctors[key]; exists {
		panic(fmt.Sprintf("node: constructor already registered for %q", key))
	}
	r.ctors[key] = ctor
}

// Make constructs the node identified by module.class for nodeID, using
// params from the application's node descriptor. Unknown module/class
// pairs and constructor-rejected params both surface as *LoadError.
func (r *Registry) Make(nodeID, module, class string, params map[string]interface{}) (Instance, error) {
	key := module + "." + class
	r.mu.RLock()
	ctor, ok := r.ctors[key]
	r.mu.RUnlock()
	if !ok {
		return nil, &LoadError{NodeID: nodeID, Key: key, Reason: "no constructor registered for module/class"}
	}
	inst, err := ctor(params)
	if err != nil {
		return nil, &LoadError{NodeID: nodeID, Key: key, Reason: err.Error()}
	}
	inst.SetID(nodeID)
	return inst, nil
}
