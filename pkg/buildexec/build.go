package buildexec

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/depbundle/pkg/errors"
	"github.com/arthur-debert/depbundle/pkg/logging"
)

// Builder installs the built program into an install root.
type Builder interface {
	Build(ctx context.Context, rootDir, installDir string) error
}

// DefaultBuildCommand installs through make.
var DefaultBuildCommand = []string{"make", "INSTALL_ROOT={install}", "install"}

// MakeBuilder runs the project's install target.
type MakeBuilder struct {
	runner  Runner
	command []string
	logger  zerolog.Logger
}

// NewMakeBuilder creates a builder running command in the project root.
// "{install}" in any argument is replaced with the install root. An empty
// command uses DefaultBuildCommand.
func NewMakeBuilder(runner Runner, command []string) *MakeBuilder {
	if len(command) == 0 {
		command = DefaultBuildCommand
	}
	return &MakeBuilder{
		runner:  runner,
		command: command,
		logger:  logging.GetLogger("buildexec.build"),
	}
}

// Build runs the install command in rootDir.
func (b *MakeBuilder) Build(ctx context.Context, rootDir, installDir string) error {
	if _, err := os.Stat(rootDir); err != nil {
		return errors.Wrapf(err, errors.ErrNotFound, "project root does not exist: %s", rootDir)
	}

	args := make([]string, 0, len(b.command)-1)
	for _, a := range b.command[1:] {
		args = append(args, strings.ReplaceAll(a, "{install}", installDir))
	}
	cmd := Command{Name: b.command[0], Args: args, Dir: rootDir}

	done := logging.LogOperationStart(b.logger, "build")
	defer done()

	out, err := b.runner.Run(ctx, cmd)
	if err != nil {
		return errors.Wrapf(err, errors.ErrBuildFailed, "build command failed: %s", cmd).
			WithDetail("dir", rootDir).
			WithDetail("stderr", tail(out.Stderr, 20))
	}
	return nil
}

// tail keeps the last n lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return fmt.Sprintf("...\n%s", strings.Join(lines[len(lines)-n:], "\n"))
}
