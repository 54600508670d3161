package toolexec

import (
	"context"
	"errors"
	"sync"
	"time"
)

// FakeResponse is a canned reply for Fake.
type FakeResponse struct {
	Stdout string
	Err    error
	Delay  time.Duration
}

// Fake is an Invoker that returns canned text without spawning processes.
// Responses are matched on the full command line first, then on the tool
// name alone. Unmatched commands fail as tool_not_found.
type Fake struct {
	mu        sync.Mutex
	responses map[string]FakeResponse
	calls     []Command
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{responses: make(map[string]FakeResponse)}
}

// On registers a response for a command line ("iostat -d -k sda") or a bare
// tool name ("iostat").
func (f *Fake) On(command string, resp FakeResponse) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[command] = resp
	return f
}

// Invoke implements Invoker.
func (f *Fake) Invoke(ctx context.Context, cmd Command, timeout time.Duration) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	resp, ok := f.responses[cmd.String()]
	if !ok {
		resp, ok = f.responses[cmd.Name]
	}
	f.mu.Unlock()

	if !ok {
		return Result{}, NotFound(cmd, errors.New("executable file not found in $PATH"))
	}

	if resp.Delay > 0 {
		timer := time.NewTimer(resp.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-time.After(timeout):
			return Result{}, Timeout(cmd, timeout)
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	if resp.Err != nil {
		return Result{}, resp.Err
	}
	return Result{Stdout: []byte(resp.Stdout), Duration: resp.Delay}, nil
}

// Calls returns the commands invoked so far.
func (f *Fake) Calls() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.calls...)
}

// CallCount counts invocations of the named tool.
func (f *Fake) CallCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Name == name {
			n++
		}
	}
	return n
}
