package manager

import (
	"context"
	"fmt"
	"sync"
)

// Hook is a registered unit of work the CLI surface can run before
// startup or after shutdown. Like internal/node's constructor registry,
// this replaces dynamic module import with a static, registration-time
// lookup — a hook "module" is simply a name an application built with
// this binary registered in its own init().
type Hook func(ctx context.Context) error

var (
	hooksMu sync.RWMutex
	hooks   = map[string]Hook{}
)

// RegisterHook adds a named hook. Panics on a duplicate name, mirroring
// node.Registry.Register and task.Register.
func RegisterHook(name string, fn Hook) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if _, exists := hooks[name]; exists {
		panic(fmt.Sprintf("manager: hook already registered for %q", name))
	}
	hooks[name] = fn
}

func lookupHook(name string) (Hook, bool) {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	h, ok := hooks[name]
	return h, ok
}

// runHook looks up name and runs it, or does nothing if name is empty
// (the env var wasn't set). An unknown hook name is an error: a
// misconfigured TIMEFLUX_HOOK_PRE/POST should not fail silently.
func runHook(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}
	h, ok := lookupHook(name)
	if !ok {
		return fmt.Errorf("manager: no hook registered for %q", name)
	}
	return h(ctx)
}
