// Package appconfig defines the declarative shape of a Timeflux application:
// graphs, nodes and edges as loaded from YAML/JSON, before a graph is built
// or any node is instantiated.
package appconfig

// NodeDescriptor identifies one node within a graph: its id, the registry
// key it resolves to (Module + Class), and its constructor parameters.
type NodeDescriptor struct {
	ID     string                 `json:"id" yaml:"id"`
	Module string                 `json:"module" yaml:"module"`
	Class  string                 `json:"class" yaml:"class"`
	Params map[string]interface{} `json:"params" yaml:"params"`
}

// Key returns the registry lookup key for this descriptor's node type.
func (n NodeDescriptor) Key() string {
	return n.Module + "." + n.Class
}

// EdgeDescriptor connects two node ports, written as "node[:port]". A missing
// port defaults to "o" on the source side and "i" on the target side.
type EdgeDescriptor struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

// GraphDescriptor is one DAG: a unique id, a cycle rate in Hz (0 = "as fast
// as possible" / "on demand" for branches), and its node and edge sets.
type GraphDescriptor struct {
	ID    string           `json:"id" yaml:"id"`
	Rate  float64          `json:"rate" yaml:"rate"`
	Nodes []NodeDescriptor `json:"nodes" yaml:"nodes"`
	Edges []EdgeDescriptor `json:"edges" yaml:"edges"`
}

// App is a full application: an ordered list of graphs, plus the list of
// files it imports (resolved recursively by the manager before a graph is
// ever built).
type App struct {
	Import []string          `json:"import" yaml:"import"`
	Graphs []GraphDescriptor `json:"graphs" yaml:"graphs"`
}
