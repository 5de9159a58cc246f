package buildexec

import (
	"context"
	"strings"

	"github.com/arthur-debert/depbundle/pkg/logging"
)

// UnknownVersion is reported when the probe yields nothing usable.
const UnknownVersion = "unknown"

// VersionProbe asks the program for its version.
type VersionProbe struct {
	Runner Runner
	// LibraryPath is given to the child as LD_LIBRARY_PATH so a program
	// that is not installed yet can start.
	LibraryPath []string
}

// Probe runs "<program> --version" and returns the second whitespace
// separated field of its output, or UnknownVersion.
func (p VersionProbe) Probe(ctx context.Context, program string) string {
	logger := logging.GetLogger("buildexec.version")

	cmd := Command{Name: program, Args: []string{"--version"}}
	if len(p.LibraryPath) > 0 {
		cmd.Env = map[string]string{"LD_LIBRARY_PATH": strings.Join(p.LibraryPath, ":")}
	}

	out, err := p.Runner.Run(ctx, cmd)
	if err != nil {
		logger.Debug().Err(err).Str("program", program).Msg("version probe failed")
		return UnknownVersion
	}
	return ParseVersion(out.Stdout)
}

// ParseVersion extracts the version from "name version ..." output.
func ParseVersion(output string) string {
	fields := strings.Fields(output)
	if len(fields) < 2 {
		return UnknownVersion
	}
	return fields[1]
}
