// Package cmdtest provides a scripted Executor for tests.
package cmdtest

import (
	"context"
	"strings"
	"sync"
)

// Response is what the fake executor returns for one matched call.
type Response struct {
	Output   string
	ExitCode int
	Err      error
}

// FakeExecutor returns scripted responses keyed by the joined argv
// string and records every call it sees. Unmatched calls return the
// Default response.
type FakeExecutor struct {
	mu        sync.Mutex
	responses map[string]Response
	queues    map[string][]Response
	Default   Response
	calls     [][]string
}

func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{
		responses: make(map[string]Response),
		queues:    make(map[string][]Response),
	}
}

// Respond scripts the response for an exact command line.
func (f *FakeExecutor) Respond(command string, r Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[command] = r
}

// RespondQueue scripts one response per call for an exact command line.
// Once the queue is drained the static Respond entry (or Default)
// applies again.
func (f *FakeExecutor) RespondQueue(command string, rs ...Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues[command] = append(f.queues[command], rs...)
}

// Calls returns all command lines executed so far.
func (f *FakeExecutor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, argv := range f.calls {
		out[i] = strings.Join(argv, " ")
	}
	return out
}

func (f *FakeExecutor) CombinedOutput(ctx context.Context, dir string, argv []string) ([]byte, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, argv)
	key := strings.Join(argv, " ")
	if q := f.queues[key]; len(q) > 0 {
		r := q[0]
		f.queues[key] = q[1:]
		return []byte(r.Output), r.ExitCode, r.Err
	}
	if r, ok := f.responses[key]; ok {
		return []byte(r.Output), r.ExitCode, r.Err
	}
	return []byte(f.Default.Output), f.Default.ExitCode, f.Default.Err
}
