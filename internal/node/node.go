// Package node implements the Node contract consumed by the scheduler:
// lazily-created ports identified by name, clear/update/terminate
// lifecycle hooks, and a constructor registry that stands in for dynamic
// module-and-class lookup.
package node

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/timeflux-go/timeflux/internal/frame"
)

var portNameRE = regexp.MustCompile(`^(i|o)(_[a-zA-Z0-9]+)*$`)
var numberedSuffixRE = regexp.MustCompile(`_[0-9]+$`)

// IsValidPortName reports whether name matches the port naming grammar:
// ^(i|o)(_[a-zA-Z0-9]+)*$.
func IsValidPortName(name string) bool {
	return portNameRE.MatchString(name)
}

// IsNumbered reports whether a port name ends in "_<digits>" and is
// therefore a dynamically generated, as opposed to named, port.
func IsNumbered(name string) bool {
	return numberedSuffixRE.MatchString(name)
}

// Updater is implemented by every node; Update is called once per cycle
// after predecessor ports have been wired in.
type Updater interface {
	Update() error
}

// Terminator is implemented by nodes that need to release resources on
// orderly shutdown. It is called exactly once, in traversal order.
type Terminator interface {
	Terminate() error
}

// IteratePort is one result of Base.Iterate: a port's full name, the
// portion of the name beyond the matched prefix, and the port itself.
type IteratePort struct {
	Name   string
	Suffix string
	Port   *frame.Port
}

// Base is embedded by every concrete node type. It owns the node's ports,
// created lazily on first access, and implements the port-map operations
// the scheduler drives every cycle.
//
// A Base never holds a reference to another node; all cross-node
// communication happens through ports, wired in by the scheduler.
type Base struct {
	id    string
	ports map[string]*frame.Port
}

// SetID is called once by the worker at construction time, purely for
// logging/error messages; nodes never need it for their own logic.
func (b *Base) SetID(id string) { b.id = id }

// ID returns the node's descriptor id.
func (b *Base) ID() string { return b.id }

func (b *Base) ensure() {
	if b.ports == nil {
		b.ports = make(map[string]*frame.Port)
	}
}

// Port returns the named port, creating it empty on first access. It
// panics if name does not match the port naming grammar — a node calling
// Port with a malformed literal name is a programming error, not a
// runtime condition worth an error return.
func (b *Base) Port(name string) *frame.Port {
	if !IsValidPortName(name) {
		panic(fmt.Sprintf("node: invalid port name %q", name))
	}
	b.ensure()
	if p, ok := b.ports[name]; ok {
		return p
	}
	p := frame.NewPort()
	b.ports[name] = p
	return p
}

// Input is sugar for Port on an "i"-prefixed name.
func (b *Base) Input(name string) *frame.Port { return b.Port(name) }

// Output is sugar for Port on an "o"-prefixed name.
func (b *Base) Output(name string) *frame.Port { return b.Port(name) }

// Bind aliases target to the same Port object as source, so that e.g. the
// default output "o" can also be addressed as the numbered output "o_0"
// without duplicating state.
func (b *Base) Bind(source, target string) {
	sp := b.Port(source)
	if !IsValidPortName(target) {
		panic(fmt.Sprintf("node: invalid port name %q", target))
	}
	b.ensure()
	b.ports[target] = sp
}

// Iterate yields every port matching pattern. A trailing "*" means "every
// port whose name begins with this prefix" (created ports only, never
// conjured); any other pattern is an exact name, created if absent.
// Results are ordered by name for determinism.
func (b *Base) Iterate(pattern string) []IteratePort {
	b.ensure()
	if !strings.HasSuffix(pattern, "*") {
		return []IteratePort{{Name: pattern, Suffix: "", Port: b.Port(pattern)}}
	}
	prefix := strings.TrimSuffix(pattern, "*")
	names := make([]string, 0, len(b.ports))
	for name := range b.ports {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]IteratePort, 0, len(names))
	for _, name := range names {
		out = append(out, IteratePort{Name: name, Suffix: strings.TrimPrefix(name, prefix), Port: b.ports[name]})
	}
	return out
}

// Clear resets every owned port, then drops every numbered port that is
// not an alias (by identity) of some named port — otherwise a node that
// emits a varying number of numbered outputs per cycle would grow its
// port map without bound.
func (b *Base) Clear() {
	b.ensure()
	for _, p := range b.ports {
		p.Clear()
	}
	named := make(map[*frame.Port]bool, len(b.ports))
	for name, p := range b.ports {
		if !IsNumbered(name) {
			named[p] = true
		}
	}
	for name, p := range b.ports {
		if IsNumbered(name) && !named[p] {
			delete(b.ports, name)
		}
	}
}

// Ports returns the live port-name set, for diagnostics and tests only.
func (b *Base) Ports() map[string]*frame.Port {
	b.ensure()
	return b.ports
}
