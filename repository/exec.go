package repository

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ExecutionFailure reports an external command that exited non-zero or ran
// past its deadline.
type ExecutionFailure struct {
	Command  string
	Reason   string
	ExitCode int
}

func (e *ExecutionFailure) Error() string {
	return fmt.Sprintf("execution failure: %s: %s", e.Command, e.Reason)
}

func IsExecutionFailure(err error) bool {
	var failure *ExecutionFailure
	return errors.As(err, &failure)
}

// CommandRunner runs a command in dir and returns its stdout lines.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]string, error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]string, error) {
	commandLine := strings.Join(append([]string{name}, args...), " ")

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("could not attach to %s: %w", commandLine, err)
	}
	err = cmd.Start()
	if err != nil {
		return nil, &ExecutionFailure{Command: commandLine, Reason: err.Error(), ExitCode: -1}
	}

	var lines []string
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	err = cmd.Wait()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, &ExecutionFailure{Command: commandLine, Reason: "timeout", ExitCode: -1}
	}
	if err != nil {
		failure := &ExecutionFailure{Command: commandLine, Reason: strings.TrimSpace(stderr.String()), ExitCode: -1}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			failure.ExitCode = exitErr.ExitCode()
		}
		if failure.Reason == "" {
			failure.Reason = err.Error()
		}
		return nil, failure
	}
	return lines, nil
}
