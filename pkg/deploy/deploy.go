// Package deploy runs a complete bundle pass over a built tree: build and
// install, module closure, plugin walk, library closure, finish steps and
// the run report.
//
// Every step stages through one stage.Stager confined to the install root,
// so a dry run computes the same results without writing anything.
package deploy

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/depbundle/pkg/buildexec"
	"github.com/arthur-debert/depbundle/pkg/closure"
	"github.com/arthur-debert/depbundle/pkg/config"
	"github.com/arthur-debert/depbundle/pkg/elfinfo"
	"github.com/arthur-debert/depbundle/pkg/errors"
	"github.com/arthur-debert/depbundle/pkg/exclude"
	"github.com/arthur-debert/depbundle/pkg/filesystem"
	"github.com/arthur-debert/depbundle/pkg/finish"
	"github.com/arthur-debert/depbundle/pkg/locator"
	"github.com/arthur-debert/depbundle/pkg/logging"
	"github.com/arthur-debert/depbundle/pkg/modules"
	"github.com/arthur-debert/depbundle/pkg/plugins"
	"github.com/arthur-debert/depbundle/pkg/report"
	"github.com/arthur-debert/depbundle/pkg/stage"
	"github.com/arthur-debert/depbundle/pkg/sysquery"
	"github.com/arthur-debert/depbundle/pkg/types"
)

// ProgramName is recorded in the report when no version program is set.
const ProgramName = "bundle"

// Options tune a run. Zero values select the real collaborators.
type Options struct {
	DryRun    bool
	SkipBuild bool

	Runner       buildexec.Runner
	Builder      buildexec.Builder
	Querier      sysquery.Querier
	Introspector elfinfo.Introspector
	FS           types.FS
	// Now stamps the report.
	Now func() time.Time
}

// Deployer runs bundle passes for one configuration.
type Deployer struct {
	cfg    *config.Config
	opts   Options
	logger zerolog.Logger
}

// New creates a Deployer, filling unset options.
func New(cfg *config.Config, opts Options) (*Deployer, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrInvalidInput, "deploy needs a configuration")
	}
	if opts.Runner == nil {
		opts.Runner = buildexec.NewExecRunner()
	}
	if opts.Builder == nil {
		opts.Builder = buildexec.NewMakeBuilder(opts.Runner, cfg.Build.Command)
	}
	if opts.Querier == nil {
		q, err := NewQuerier(cfg, opts.Runner)
		if err != nil {
			return nil, err
		}
		opts.Querier = q
	}
	if opts.Introspector == nil {
		in, err := NewIntrospector(cfg)
		if err != nil {
			return nil, err
		}
		opts.Introspector = in
	}
	if opts.FS == nil {
		opts.FS = filesystem.NewOS()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Deployer{cfg: cfg, opts: opts, logger: logging.GetLogger("deploy")}, nil
}

// Layout returns the absolute install areas.
func (d *Deployer) Layout() finish.Layout {
	return finish.Layout{
		InstallDir: d.cfg.InstallPath(),
		BinDir:     d.cfg.InstallArea(d.cfg.Layout.BinDir),
		LibDir:     d.cfg.InstallArea(d.cfg.Layout.LibDir),
		PluginDir:  d.cfg.InstallArea(d.cfg.Layout.PluginDir),
		ModuleDir:  d.cfg.InstallArea(d.cfg.Layout.ModuleDir),
	}
}

// Run performs one pass. The report is returned even when a later step
// fails, so callers can still save what was done.
func (d *Deployer) Run(ctx context.Context) (*report.Report, error) {
	done := logging.LogOperationStart(d.logger, "deploy")
	defer done()

	layout := d.Layout()
	rep := &report.Report{
		RootDir:     d.cfg.RootDir,
		InstallDir:  layout.InstallDir,
		DryRun:      d.opts.DryRun,
		GeneratedAt: d.opts.Now().UTC(),
	}
	stager := stage.New(d.opts.FS, layout.InstallDir, d.opts.DryRun)

	if err := d.build(ctx, layout); err != nil {
		return rep, err
	}

	roots, err := d.opts.Querier.Roots(ctx)
	if err != nil {
		return rep, err
	}
	d.logger.Debug().Str("modules", roots.ModuleRoot).Str("plugins", roots.PluginRoot).Msg("system roots")

	rep.AddStage(d.relocateModules(stager, layout, roots))

	loc, err := NewLocator(d.cfg, d.opts.Introspector)
	if err != nil {
		return rep, err
	}
	table, err := d.cfg.PluginTable()
	if err != nil {
		return rep, err
	}
	excl, err := exclude.Load(d.cfg.ExcludePath())
	if err != nil {
		return rep, err
	}

	mods, err := d.resolveModules(stager, layout, roots)
	if err != nil {
		return rep, err
	}
	rep.AddStage(mods.Stage)
	rep.Modules.Copied = mods.Modules
	for _, u := range mods.Unresolved {
		rep.Modules.Unresolved = append(rep.Modules.Unresolved, report.Unresolved{From: u.File, Name: u.Ref.Path})
	}
	rep.AddSources(mods.Sources...)

	installed, err := closure.Roots(layout.InstallDir)
	if err != nil {
		return rep, errors.Wrapf(err, errors.ErrNotFound, "cannot scan %s", layout.InstallDir)
	}

	plugs, err := d.resolvePlugins(stager, loc, table, layout, roots, union(installed, mods.Binaries))
	if err != nil {
		return rep, err
	}
	rep.AddStage(plugs.Stage)
	rep.Plugins = report.Plugins{
		Categories: categories(plugs.Categories),
		Missing:    categories(plugs.Missing),
		Libraries:  plugs.Libraries,
	}
	rep.AddSources(plugs.Sources...)

	libs, err := d.resolveLibraries(stager, loc, excl, layout,
		union(installed, plugs.Binaries, mods.Binaries), plugs.Libraries)
	if err != nil {
		return rep, err
	}
	rep.AddStage(libs.Stage)
	rep.Libraries.Copied = libs.Libraries
	rep.Libraries.Excluded = libs.Excluded
	for _, u := range libs.Unresolved {
		rep.Libraries.Unresolved = append(rep.Libraries.Unresolved, report.Unresolved{From: u.Binary, Name: u.Name})
	}
	rep.AddSources(libs.Libraries...)

	rep.Program, rep.Version = d.probeVersion(ctx)

	results, err := finish.Run(ctx, layout, stager, d.finishers(rep)...)
	rep.AddStage(results)
	if err != nil {
		return rep, err
	}

	d.logger.Info().
		Int("copied", rep.Summary.Copied).
		Int("linked", rep.Summary.Linked).
		Int("skipped", rep.Summary.Skipped).
		Int("failed", rep.Summary.Failed).
		Bool("dry_run", d.opts.DryRun).
		Msg("deploy complete")
	return rep, nil
}

func (d *Deployer) build(ctx context.Context, layout finish.Layout) error {
	switch {
	case !d.cfg.Build.Enabled:
		return nil
	case d.opts.SkipBuild:
		d.logger.Info().Msg("build skipped")
		return nil
	case d.opts.DryRun:
		d.logger.Info().Msg("dry run, not building")
		return nil
	}
	return d.opts.Builder.Build(ctx, d.cfg.RootDir, layout.InstallDir)
}

// relocateModules moves modules installed under the system module path
// inside the install root into the bundle module area.
func (d *Deployer) relocateModules(stager *stage.Stager, layout finish.Layout, roots sysquery.Roots) []stage.Result {
	if roots.ModuleRoot == "" {
		return nil
	}
	installed := filepath.Join(layout.InstallDir, roots.ModuleRoot)
	if filepath.Clean(installed) == filepath.Clean(layout.ModuleDir) {
		return nil
	}
	if info, err := os.Stat(installed); err != nil || !info.IsDir() {
		return nil
	}
	d.logger.Info().Str("from", installed).Str("to", layout.ModuleDir).Msg("relocating installed modules")
	return stager.CopyTree(installed, layout.ModuleDir)
}

func (d *Deployer) resolveModules(stager *stage.Stager, layout finish.Layout, roots sysquery.Roots) (*modules.Result, error) {
	r, err := modules.New(modules.Options{
		Stager:     stager,
		ModuleRoot: roots.ModuleRoot,
		ModuleDir:  layout.ModuleDir,
	})
	if err != nil {
		return nil, err
	}
	return r.Resolve(d.cfg.ScanRoots())
}

func (d *Deployer) resolvePlugins(stager *stage.Stager, loc *locator.Locator, table *plugins.Table,
	layout finish.Layout, roots sysquery.Roots, binaries []string) (*plugins.Result, error) {
	r, err := plugins.New(plugins.Options{
		Table:      table,
		Locator:    loc,
		Stager:     stager,
		SystemRoot: roots.PluginRoot,
		PluginDir:  layout.PluginDir,
	})
	if err != nil {
		return nil, err
	}
	return r.ResolveFrom(binaries), nil
}

func (d *Deployer) resolveLibraries(stager *stage.Stager, loc *locator.Locator, excl *exclude.Set,
	layout finish.Layout, roots, extra []string) (*closure.Result, error) {
	r, err := closure.New(closure.Options{
		Locator: loc,
		Exclude: excl,
		Stager:  stager,
		LibDir:  layout.LibDir,
	})
	if err != nil {
		return nil, err
	}
	return r.Resolve(roots, extra), nil
}

// probeVersion asks the configured program, or the first scan path, for
// its version.
func (d *Deployer) probeVersion(ctx context.Context) (program, version string) {
	path := d.cfg.Resolve(d.cfg.Version.Program)
	if path == "" {
		if scan := d.cfg.ScanRoots(); len(scan) > 0 {
			path = scan[0]
		}
	}
	if path == "" || !elfinfo.IsELF(path) {
		return ProgramName, buildexec.UnknownVersion
	}

	libPath := make([]string, 0, len(d.cfg.Version.LibraryPath))
	for _, p := range d.cfg.Version.LibraryPath {
		libPath = append(libPath, d.cfg.Resolve(p))
	}
	probe := buildexec.VersionProbe{Runner: d.opts.Runner, LibraryPath: libPath}
	return filepath.Base(path), probe.Probe(ctx, path)
}

func (d *Deployer) finishers(rep *report.Report) []finish.Finisher {
	var out []finish.Finisher
	if d.cfg.Finish.QtConf {
		out = append(out, finish.QtConf{})
	}
	if d.cfg.Finish.BuildInfo {
		out = append(out, finish.BuildInfo{
			Program: rep.Program,
			Version: rep.Version,
			Sources: rep.Sources,
		})
	}
	for _, cmd := range d.cfg.Finish.Commands {
		out = append(out, finish.Exec{Command: cmd, Runner: d.opts.Runner, DryRun: d.opts.DryRun})
	}
	return out
}

func categories(in []plugins.Category) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		out = append(out, string(c))
	}
	return out
}

func union(lists ...[]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, l := range lists {
		for _, p := range l {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out
}
