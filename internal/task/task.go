// Package task implements the Background Task primitive: a
// one-shot child process a node spawns to run blocking work without
// stalling its graph's cycle. The owner polls Status; Stop kills the
// child outright, never signaled.
//
// Closures can't cross a process boundary, so work is addressed through
// a named job registry mirroring internal/node's constructor registry: a
// task names a registered Job and passes it JSON params, and the job's
// result is likewise JSON.
package task

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"time"
)

// Job is a registered unit of blocking work. It runs in a freshly
// exec'd child process (see RunChild in runner.go), receiving its params
// as a JSON-decoded value and returning a JSON-encodable result.
type Job func(ctx context.Context, params json.RawMessage) (interface{}, error)

var (
	mu   sync.RWMutex
	jobs = map[string]Job{}
)

// Register adds a named job to the process-wide job registry. Called
// from an init() function by any package that defines background work,
// mirroring internal/node.Registry.Register.
func Register(name string, job Job) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := jobs[name]; exists {
		panic(fmt.Sprintf("task: job already registered for %q", name))
	}
	jobs[name] = job
}

func lookup(name string) (Job, bool) {
	mu.RLock()
	defer mu.RUnlock()
	job, ok := jobs[name]
	return job, ok
}

// Status is the record returned by Task.Status once the task has
// finished; it is nil while the task is still running.
type Status struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Elapsed time.Duration   `json:"elapsed"`
}

// Task is a handle to one Background Task's child process and transport.
type Task struct {
	job    string
	params json.RawMessage

	mu      sync.Mutex
	cmd     *exec.Cmd
	conn    *pairConn
	started time.Time
	status  *Status
	done    chan struct{}
}

// New prepares a Task for job, with params marshaled to JSON. It does
// not start anything until Start is called.
func New(jobName string, params interface{}) (*Task, error) {
	if _, ok := lookup(jobName); !ok {
		return nil, fmt.Errorf("task: no job registered for %q", jobName)
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("task: marshal params: %w", err)
	}
	return &Task{job: jobName, params: raw, done: make(chan struct{})}, nil
}

// Status returns the task's terminal status, or nil if it is still
// running. Safe to call repeatedly from a node's Update.
func (t *Task) Status() *Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// finish records a terminal status and closes done; called exactly once,
// by the await goroutine Start launches.
func (t *Task) finish(s *Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
	close(t.done)
}
