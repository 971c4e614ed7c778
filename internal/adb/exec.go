package adb

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Executor runs one adb invocation and returns its stdout.
type Executor interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecExecutor runs real child processes.
type ExecExecutor struct{}

// Output runs name with args. On failure the error carries adb's stderr so
// disconnect classification can see messages like "device offline".
func (ExecExecutor) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // binary comes from validated config
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("adb %s: %w", subcommand(args), ctx.Err())
		}
		if msg != "" {
			return nil, fmt.Errorf("adb %s: %s: %w", subcommand(args), msg, err)
		}
		return nil, fmt.Errorf("adb %s: %w", subcommand(args), err)
	}
	return stdout.Bytes(), nil
}

// subcommand names an invocation for error messages, skipping "-s SERIAL".
func subcommand(args []string) string {
	if len(args) >= 2 && args[0] == "-s" {
		args = args[2:]
	}
	if len(args) > 3 {
		args = args[:3]
	}
	return strings.Join(args, " ")
}
