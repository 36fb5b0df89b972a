// Package exectest provides a scripted exec.CommandRunner for tests.
package exectest

import (
	"context"
	"strings"
	"sync"

	"github.com/NielsdaWheelz/eddev/internal/exec"
)

// Call is one recorded invocation.
type Call struct {
	Name string
	Args []string
	Dir  string
}

// Line renders the call as "name arg1 arg2".
func (c Call) Line() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

type response struct {
	result exec.CmdResult
	err    error
}

// Runner records calls and returns scripted results. Commands without a
// scripted result succeed with empty output.
type Runner struct {
	mu        sync.Mutex
	responses map[string]response
	prefixes  map[string]response
	calls     []Call
}

// NewRunner returns an empty Runner.
func NewRunner() *Runner {
	return &Runner{
		responses: make(map[string]response),
		prefixes:  make(map[string]response),
	}
}

// On scripts the result for an exact command line ("ddev start").
func (r *Runner) On(line string, result exec.CmdResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[line] = response{result: result, err: err}
}

// Fail makes an exact command line exit with status 1.
func (r *Runner) Fail(line string) {
	r.On(line, exec.CmdResult{ExitCode: 1, Stderr: "failed"}, nil)
}

// OnPrefix scripts the result for every command line starting with prefix.
// Exact matches take precedence.
func (r *Runner) OnPrefix(prefix string, result exec.CmdResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefixes[prefix] = response{result: result, err: err}
}

// Run implements exec.CommandRunner.
func (r *Runner) Run(_ context.Context, name string, args []string, opts exec.RunOpts) (exec.CmdResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := Call{Name: name, Args: append([]string(nil), args...), Dir: opts.Dir}
	r.calls = append(r.calls, call)

	line := call.Line()
	resp, ok := r.responses[line]
	if !ok {
		best := ""
		for p, pr := range r.prefixes {
			if strings.HasPrefix(line, p) && len(p) > len(best) {
				best, resp, ok = p, pr, true
			}
		}
	}
	if ok && opts.Stream != nil {
		_, _ = opts.Stream.Write([]byte(resp.result.Stdout))
	}
	return resp.result, resp.err
}

// Calls returns the recorded calls.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Lines returns the recorded calls as command lines.
func (r *Runner) Lines() []string {
	calls := r.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Line()
	}
	return out
}
