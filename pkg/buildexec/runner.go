// Package buildexec wraps the external processes a deploy run talks to:
// the project build and the program version probe. Environment overrides
// are passed to the child process only; the parent environment is never
// modified.
package buildexec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/depbundle/pkg/errors"
	"github.com/arthur-debert/depbundle/pkg/logging"
)

// Command is one subprocess invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env entries override the inherited environment for this command only.
	Env map[string]string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Output holds what the command wrote.
type Output struct {
	Stdout string
	Stderr string
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Output, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, cmd Command) (Output, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, cmd Command) (Output, error) {
	return f(ctx, cmd)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	logger zerolog.Logger
}

// NewExecRunner creates an ExecRunner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{logger: logging.GetLogger("buildexec.runner")}
}

// Run executes cmd and waits for it to finish.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Output, error) {
	if cmd.Name == "" {
		return Output{}, errors.New(errors.ErrInvalidInput, "command name is empty")
	}
	logging.LogCommand(r.logger, cmd.Name, cmd.Args)

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = mergeEnv(os.Environ(), cmd.Env)

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}

	if stderr.Len() > 0 {
		r.logger.Debug().Str("output", out.Stderr).Msg("Command stderr")
	}
	if err != nil {
		r.logger.Debug().
			Err(err).
			Str("command", cmd.String()).
			Str("dir", cmd.Dir).
			Msg("Command failed")
		return out, err
	}
	return out, nil
}

// mergeEnv returns base with overrides applied. Overridden keys replace
// their inherited value instead of being appended twice.
func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		out = append(out, kv)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, overrides[k]))
	}
	return out
}
