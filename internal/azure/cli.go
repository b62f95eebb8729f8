package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CLI abstracts az command execution to make the CLI gateway testable.
type CLI interface {
	RunJSON(ctx context.Context, args ...string) (any, error)
}

// CommandRunner executes external commands and returns stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// AzCLI is the default implementation using Azure CLI.
type AzCLI struct {
	runner CommandRunner
}

// NewAzCLI returns a default Azure CLI wrapper.
func NewAzCLI() *AzCLI {
	return &AzCLI{runner: defaultRunner}
}

// NewAzCLIWithRunner returns an Azure CLI wrapper with injected runner.
func NewAzCLIWithRunner(runner CommandRunner) *AzCLI {
	if runner == nil {
		runner = defaultRunner
	}
	return &AzCLI{runner: runner}
}

func defaultRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return nil, fmt.Errorf("%w: %s", err, msg)
			}
		}
		return nil, err
	}
	return out, nil
}

// RunJSON executes az and decodes JSON output. Empty output decodes to nil.
func (a *AzCLI) RunJSON(ctx context.Context, args ...string) (any, error) {
	fullArgs := append(append([]string{}, args...), "--output", "json")
	out, err := a.runner(ctx, "az", fullArgs...)
	if err != nil {
		return nil, fmt.Errorf("az %s: %w", strings.Join(args, " "), err)
	}
	if len(bytes.TrimSpace(out)) == 0 {
		return nil, nil
	}
	var data any
	if err := json.Unmarshal(out, &data); err != nil {
		return nil, fmt.Errorf("invalid az json output: %w", err)
	}
	return data, nil
}
