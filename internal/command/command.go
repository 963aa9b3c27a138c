// Package command runs external tools (qemu-img, virt-customize, virsh) and
// captures their output.
//
// Commands block until the process exits. The only way to interrupt one is
// through the context passed to Run; callers that must not abandon a tool
// midway should pass a context that is never cancelled.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Result holds the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ExitError is returned when a command ran but exited nonzero.
type ExitError struct {
	Name   string
	Args   []string
	Result Result
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d: %s", e.Name, e.Result.ExitCode, strings.TrimSpace(e.Result.Stderr))
}

// Runner executes an external command.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs commands with os/exec. When Prepend is set (for example
// []string{"sudo"}), the command is executed as Prepend[0] with the remaining
// prefix and the original command as arguments.
type ExecRunner struct {
	Prepend []string
	Env     map[string]string
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	argv := append([]string{name}, args...)
	if len(r.Prepend) > 0 {
		argv = append(append([]string{}, r.Prepend...), argv...)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	for k, v := range r.Env {
		cmd.Env = append(cmd.Environ(), fmt.Sprintf("%s=%s", k, v))
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, &ExitError{Name: name, Args: args, Result: res}
	}
	return res, fmt.Errorf("failed to run %s: %w", name, err)
}

// Format renders argv the way it would be typed in a shell, for logs.
func Format(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	for _, s := range append([]string{name}, args...) {
		if s == "" || strings.ContainsAny(s, " \t'\"$;&|<>*") {
			parts = append(parts, fmt.Sprintf("%q", s))
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}
