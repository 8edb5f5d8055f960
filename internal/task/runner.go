package task

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/timeflux-go/timeflux/internal/config"
)

// ChildFlag is the hidden argv[1] cmd/timeflux recognizes to dispatch
// into RunChild instead of the normal CLI: the child is a re-exec of the
// same binary with its job and params bootstrapped through the
// environment. Any caller that wants Background Task support must check
// for this flag first in its own main().
const ChildFlag = "--timeflux-background-task"

const (
	envJob      = "TIMEFLUX_TASK_JOB"
	envParams   = "TIMEFLUX_TASK_PARAMS"
	envEndpoint = "TIMEFLUX_TASK_ENDPOINT"
)

// pairConn wraps the PAIR-socket transport a Task and its child share: a
// private, bidirectional, point-to-point channel. ZeroMQ's PAIR socket
// type is the natural fit since exactly two peers ever talk on it.
type pairConn struct {
	sock zmq4.Socket
}

func newOwnerConn(ctx context.Context) (*pairConn, string, error) {
	sock := zmq4.NewPair(ctx)
	if err := sock.Listen("tcp://127.0.0.1:0"); err != nil {
		return nil, "", fmt.Errorf("task: listen: %w", err)
	}
	return &pairConn{sock: sock}, "tcp://" + sock.Addr().String(), nil
}

func dialChildConn(ctx context.Context, endpoint string) (*pairConn, error) {
	sock := zmq4.NewPair(ctx)
	if err := sock.Dial(endpoint); err != nil {
		return nil, fmt.Errorf("task: dial %q: %w", endpoint, err)
	}
	return &pairConn{sock: sock}, nil
}

func (c *pairConn) send(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("task: marshal: %w", err)
	}
	return c.sock.Send(zmq4.NewMsg(raw))
}

func (c *pairConn) recv() (Status, error) {
	msg, err := c.sock.Recv()
	if err != nil {
		return Status{}, fmt.Errorf("task: recv: %w", err)
	}
	var s Status
	if len(msg.Frames) == 0 {
		return s, fmt.Errorf("task: empty status frame")
	}
	if err := json.Unmarshal(msg.Frames[0], &s); err != nil {
		return s, fmt.Errorf("task: decode status: %w", err)
	}
	return s, nil
}

func (c *pairConn) close() error { return c.sock.Close() }

// Start spawns the child process and returns immediately; the owner must
// poll Status. The child is a re-exec of the current binary with
// ChildFlag as its sole argument.
func (t *Task) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cmd != nil {
		return fmt.Errorf("task: already started")
	}

	conn, endpoint, err := newOwnerConn(ctx)
	if err != nil {
		return err
	}

	encodedParams := base64.StdEncoding.EncodeToString(t.params)
	cmd := exec.CommandContext(ctx, os.Args[0], ChildFlag)
	cmd.Env = append(os.Environ(),
		envJob+"="+t.job,
		envParams+"="+encodedParams,
		envEndpoint+"="+endpoint,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		conn.close()
		return fmt.Errorf("task: start child: %w", err)
	}

	t.cmd = cmd
	t.conn = conn
	t.started = time.Now()

	go t.await()
	return nil
}

// await blocks for the child's single status message, records it, then
// reaps the child. Runs in its own goroutine started by Start; the owner
// node never blocks on it, only polls Status(). Once the child process
// has exited, the transport is given config.TaskTransportTimeout to
// deliver the status before the task is declared unresponsive — a killed
// or crashed child never sends one, and recv alone would block forever.
func (t *Task) await() {
	waitDone := make(chan struct{})
	go func() {
		t.cmd.Wait() // reap; exit status is carried in the status message
		close(waitDone)
	}()

	recvCh := make(chan recvResult, 1)
	go func() {
		s, err := t.conn.recv()
		recvCh <- recvResult{status: s, err: err}
	}()

	var status Status
	select {
	case r := <-recvCh:
		if r.err != nil {
			status = Status{Success: false, Error: r.err.Error(), Elapsed: time.Since(t.started)}
		} else {
			status = r.status
		}
	case <-waitDone:
		select {
		case r := <-recvCh:
			if r.err != nil {
				status = Status{Success: false, Error: r.err.Error(), Elapsed: time.Since(t.started)}
			} else {
				status = r.status
			}
		case <-time.After(config.Default().TaskTransportTimeout):
			status = Status{Success: false, Error: "task: child exited without reporting a status", Elapsed: time.Since(t.started)}
		}
	}
	t.conn.close()
	t.finish(&status)
}

type recvResult struct {
	status Status
	err    error
}

// Stop kills the child outright; a background task is never signaled on
// its owner node's termination, only force-killed.
func (t *Task) Stop() error {
	t.mu.Lock()
	cmd := t.cmd
	t.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

// RunChild is the child-process entrypoint: cmd/timeflux calls this when
// invoked with ChildFlag instead of running the normal CLI. It decodes
// its job and params from the environment, runs the job, and reports a
// single Status message back over the PAIR socket before exiting.
func RunChild(ctx context.Context) int {
	jobName := os.Getenv(envJob)
	endpoint := os.Getenv(envEndpoint)
	encodedParams := os.Getenv(envParams)

	conn, err := dialChildConn(ctx, endpoint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "task: %v\n", err)
		return 1
	}
	defer conn.close()

	params, decodeErr := base64.StdEncoding.DecodeString(encodedParams)
	start := time.Now()

	var status Status
	job, ok := lookup(jobName)
	switch {
	case decodeErr != nil:
		status = Status{Success: false, Error: fmt.Sprintf("decode params: %v", decodeErr)}
	case !ok:
		status = Status{Success: false, Error: fmt.Sprintf("no job registered for %q", jobName)}
	default:
		result, err := job(ctx, json.RawMessage(params))
		if err != nil {
			status = Status{Success: false, Error: err.Error()}
		} else {
			raw, mErr := json.Marshal(result)
			if mErr != nil {
				status = Status{Success: false, Error: fmt.Sprintf("marshal result: %v", mErr)}
			} else {
				status = Status{Success: true, Result: raw}
			}
		}
	}
	status.Elapsed = time.Since(start)

	if err := conn.send(status); err != nil {
		fmt.Fprintf(os.Stderr, "task: send status: %v\n", err)
		return 1
	}
	if !status.Success {
		return 1
	}
	return 0
}
