// Package sysquery answers where the system keeps declarative modules and
// plugins. Roots come either from configuration or from asking qmake.
package sysquery

import (
	"bufio"
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/depbundle/pkg/buildexec"
	"github.com/arthur-debert/depbundle/pkg/errors"
	"github.com/arthur-debert/depbundle/pkg/logging"
)

// Query variables understood by qmake.
const (
	VarQml     = "QT_INSTALL_QML"
	VarPlugins = "QT_INSTALL_PLUGINS"
)

// Roots are the system directories the resolvers copy from.
type Roots struct {
	ModuleRoot string `json:"module_root" yaml:"module_root" toml:"module_root"`
	PluginRoot string `json:"plugin_root" yaml:"plugin_root" toml:"plugin_root"`
}

// Querier resolves the system roots.
type Querier interface {
	Roots(ctx context.Context) (Roots, error)
}

// Static returns fixed roots.
type Static Roots

// Roots returns the configured roots.
func (s Static) Roots(context.Context) (Roots, error) {
	return Roots(s), nil
}

// Qmake asks a qmake binary for the roots. Values already set in Fallback
// are kept and not queried.
type Qmake struct {
	Binary   string
	Runner   buildexec.Runner
	Fallback Roots
	logger   zerolog.Logger
}

// NewQmake creates a qmake backed Querier.
func NewQmake(binary string, runner buildexec.Runner, fallback Roots) *Qmake {
	return &Qmake{
		Binary:   binary,
		Runner:   runner,
		Fallback: fallback,
		logger:   logging.GetLogger("sysquery"),
	}
}

// Roots queries every root not already known.
func (q *Qmake) Roots(ctx context.Context) (Roots, error) {
	roots := q.Fallback
	var err error
	if roots.ModuleRoot == "" {
		if roots.ModuleRoot, err = q.Query(ctx, VarQml); err != nil {
			return Roots{}, err
		}
	}
	if roots.PluginRoot == "" {
		if roots.PluginRoot, err = q.Query(ctx, VarPlugins); err != nil {
			return Roots{}, err
		}
	}
	return roots, nil
}

// Query runs "qmake -query <variable>" and returns the trimmed answer.
func (q *Qmake) Query(ctx context.Context, variable string) (string, error) {
	if q.Binary == "" {
		return "", errors.New(errors.ErrSystemQuery, "no qmake binary configured or detected")
	}
	out, err := q.Runner.Run(ctx, buildexec.Command{Name: q.Binary, Args: []string{"-query", variable}})
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrSystemQuery, "qmake query %s failed", variable).
			WithDetail("qmake", q.Binary)
	}
	value := strings.TrimSpace(out.Stdout)
	if value == "" || strings.Contains(value, "**Unknown**") {
		return "", errors.Newf(errors.ErrSystemQuery, "qmake does not know %s", variable).
			WithDetail("qmake", q.Binary)
	}
	q.logger.Debug().Str("variable", variable).Str("value", value).Msg("qmake query")
	return value, nil
}

// DetectQmake reads the qmake binary from a generated Makefile's
// "QMAKE = ..." line. A missing Makefile or line yields "".
func DetectQmake(makefile string) (string, error) {
	f, err := os.Open(makefile)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrSystemQuery, "cannot read %s", makefile)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "QMAKE") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok || strings.TrimSpace(key) != "QMAKE" {
			continue
		}
		return strings.TrimSpace(value), nil
	}
	if err := scanner.Err(); err != nil {
		return "", errors.Wrapf(err, errors.ErrSystemQuery, "cannot read %s", makefile)
	}
	return "", nil
}
