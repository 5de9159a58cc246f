// Package finish holds the steps that run after resolution. The built-in
// QtConf step points the runtime at the bundled plugins and modules;
// stripping, permissions and packaging are delegated to external
// commands through Exec.
package finish

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/depbundle/pkg/buildexec"
	"github.com/arthur-debert/depbundle/pkg/errors"
	"github.com/arthur-debert/depbundle/pkg/logging"
	"github.com/arthur-debert/depbundle/pkg/stage"
)

// Layout is the absolute location of each area of the install root.
type Layout struct {
	InstallDir string
	BinDir     string
	LibDir     string
	PluginDir  string
	ModuleDir  string
}

// Finisher is one post-resolution step.
type Finisher interface {
	Name() string
	Finish(ctx context.Context, layout Layout, stager *stage.Stager) ([]stage.Result, error)
}

// Run executes finishers in order and stops at the first error.
func Run(ctx context.Context, layout Layout, stager *stage.Stager, finishers ...Finisher) ([]stage.Result, error) {
	logger := logging.GetLogger("finish")
	var results []stage.Result
	for _, f := range finishers {
		logger.Info().Str("step", f.Name()).Msg("running finish step")
		res, err := f.Finish(ctx, layout, stager)
		results = append(results, res...)
		if err != nil {
			return results, errors.Wrapf(err, errors.ErrFinish, "finish step %s failed", f.Name()).
				WithDetail("step", f.Name())
		}
	}
	return results, nil
}

// QtConf writes <bin>/qt.conf.
type QtConf struct{}

// Name implements Finisher.
func (QtConf) Name() string { return "qt.conf" }

// Finish implements Finisher. An existing qt.conf is left alone.
func (q QtConf) Finish(_ context.Context, layout Layout, stager *stage.Stager) ([]stage.Result, error) {
	content, err := q.Render(layout)
	if err != nil {
		return nil, err
	}
	res := stager.WriteFile(filepath.Join(layout.BinDir, "qt.conf"), content, 0644)
	if res.Status == stage.StatusFailed {
		return []stage.Result{res}, res.Err
	}
	return []stage.Result{res}, nil
}

// Render returns the qt.conf content for layout.
func (QtConf) Render(layout Layout) ([]byte, error) {
	plugins, err := relative(layout.BinDir, layout.PluginDir)
	if err != nil {
		return nil, err
	}
	modules, err := relative(layout.BinDir, layout.ModuleDir)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("[Paths]\n")
	fmt.Fprintf(&b, "Plugins = %s\n", plugins)
	fmt.Fprintf(&b, "Imports = %s\n", modules)
	fmt.Fprintf(&b, "Qml2Imports = %s\n", modules)
	return []byte(b.String()), nil
}

func relative(from, to string) (string, error) {
	rel, err := filepath.Rel(from, to)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrInvalidInput, "cannot express %s relative to %s", to, from)
	}
	return filepath.ToSlash(rel), nil
}

// Exec runs an external command against the install root. "{install}",
// "{bin}" and "{lib}" in arguments are replaced with the layout paths.
type Exec struct {
	Label   string
	Command []string
	Runner  buildexec.Runner
	DryRun  bool
}

// Name implements Finisher.
func (e Exec) Name() string {
	if e.Label != "" {
		return e.Label
	}
	if len(e.Command) > 0 {
		return filepath.Base(e.Command[0])
	}
	return "exec"
}

// Finish implements Finisher.
func (e Exec) Finish(ctx context.Context, layout Layout, _ *stage.Stager) ([]stage.Result, error) {
	if len(e.Command) == 0 {
		return nil, errors.New(errors.ErrInvalidInput, "finish command is empty")
	}
	r := strings.NewReplacer("{install}", layout.InstallDir, "{bin}", layout.BinDir, "{lib}", layout.LibDir)
	args := make([]string, 0, len(e.Command)-1)
	for _, a := range e.Command[1:] {
		args = append(args, r.Replace(a))
	}
	cmd := buildexec.Command{Name: e.Command[0], Args: args, Dir: layout.InstallDir}

	if e.DryRun {
		logger := logging.GetLogger("finish")
		logger.Info().Str("command", cmd.String()).Msg("dry run, not executing")
		return nil, nil
	}
	if _, err := e.Runner.Run(ctx, cmd); err != nil {
		return nil, errors.Wrapf(err, errors.ErrFinish, "command failed: %s", cmd)
	}
	return nil, nil
}
