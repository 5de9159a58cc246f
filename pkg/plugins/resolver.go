// Package plugins pulls optional runtime plugins into the bundle. A library
// such as libQt5Gui loads plugin categories (platforms, imageformats, ...)
// that no DT_NEEDED entry mentions; the association Table names them.
package plugins

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/depbundle/pkg/elfinfo"
	"github.com/arthur-debert/depbundle/pkg/errors"
	"github.com/arthur-debert/depbundle/pkg/locator"
	"github.com/arthur-debert/depbundle/pkg/logging"
	"github.com/arthur-debert/depbundle/pkg/stage"
)

// Options configures a Resolver.
type Options struct {
	Table   *Table
	Locator *locator.Locator
	Stager  *stage.Stager
	// SystemRoot is the system plugin root, e.g. /usr/lib/qt/plugins.
	SystemRoot string
	// PluginDir is the absolute destination for plugin categories.
	PluginDir string
}

// Result is the outcome of one plugin run.
type Result struct {
	// Categories copied into the bundle, sorted.
	Categories []Category
	// Missing categories were wanted but absent from the system root.
	Missing []Category
	// Libraries are the plugin-bearing libraries found, sorted. They are
	// extra roots for the library closure.
	Libraries []string
	// Binaries are the ELF files inside the copied categories, at their
	// system location.
	Binaries []string
	// Sources are the system category directories that were copied.
	Sources []string
	Stage   []stage.Result
}

// Resolver runs the plugin association walk.
type Resolver struct {
	table      *Table
	locator    *locator.Locator
	stager     *stage.Stager
	systemRoot string
	pluginDir  string
	logger     zerolog.Logger
}

// New creates a Resolver.
func New(opts Options) (*Resolver, error) {
	if opts.Table == nil {
		return nil, errors.New(errors.ErrInvalidInput, "plugin resolver needs an association table")
	}
	if opts.Locator == nil || opts.Stager == nil {
		return nil, errors.New(errors.ErrInvalidInput, "plugin resolver needs a locator and a stager")
	}
	if opts.PluginDir == "" {
		return nil, errors.New(errors.ErrInvalidInput, "plugin resolver needs a plugin directory")
	}
	return &Resolver{
		table:      opts.Table,
		locator:    opts.Locator,
		stager:     opts.Stager,
		systemRoot: opts.SystemRoot,
		pluginDir:  opts.PluginDir,
		logger:     logging.GetLogger("plugins"),
	}, nil
}

type walk struct {
	*Resolver
	res     *Result
	solved  map[string]bool
	queued  map[string]bool
	handled map[Category]bool
	queue   []string
}

// Resolve scans the binaries under installRoot and copies every plugin
// category their plugin-bearing dependencies need.
func (r *Resolver) Resolve(installRoot string) (*Result, error) {
	done := logging.LogOperationStart(r.logger, "plugin closure")
	defer done()

	binaries, err := elfinfo.FindBinaries(installRoot)
	if err != nil {
		return nil, err
	}
	return r.ResolveFrom(binaries), nil
}

// ResolveFrom runs the walk seeded from the given binaries.
func (r *Resolver) ResolveFrom(binaries []string) *Result {
	w := &walk{
		Resolver: r,
		res:      &Result{},
		solved:   map[string]bool{},
		queued:   map[string]bool{},
		handled:  map[Category]bool{},
	}

	for _, bin := range binaries {
		for _, dep := range w.dependencies(bin) {
			if r.table.Has(Normalize(dep)) {
				w.enqueue(dep)
			}
		}
	}

	for len(w.queue) > 0 {
		dep := w.queue[0]
		w.queue = w.queue[1:]
		if w.solved[dep] {
			continue
		}
		w.solved[dep] = true

		for _, next := range w.dependencies(dep) {
			if r.table.Has(Normalize(next)) {
				w.enqueue(next)
			}
		}

		for _, cat := range r.table.Categories(Normalize(dep)) {
			if w.handled[cat] {
				continue
			}
			w.handled[cat] = true
			w.copyCategory(dep, cat)
		}
	}

	for lib := range w.solved {
		w.res.Libraries = append(w.res.Libraries, lib)
	}
	sort.Strings(w.res.Libraries)
	sortCategories(w.res.Categories)
	sortCategories(w.res.Missing)

	r.logger.Info().
		Int("categories", len(w.res.Categories)).
		Int("missing", len(w.res.Missing)).
		Int("libraries", len(w.res.Libraries)).
		Msg("plugin closure complete")
	return w.res
}

func (w *walk) copyCategory(owner string, cat Category) {
	src := filepath.Join(w.systemRoot, string(cat))
	dst := filepath.Join(w.pluginDir, string(cat))

	if w.systemRoot == "" {
		w.res.Missing = append(w.res.Missing, cat)
		return
	}
	if info, err := os.Stat(src); err != nil || !info.IsDir() {
		w.logger.Debug().Str("category", string(cat)).Str("library", owner).Msg("plugin category not installed")
		w.res.Missing = append(w.res.Missing, cat)
		return
	}

	w.logger.Info().Msgf("%s -> %s", src, dst)
	w.res.Stage = append(w.res.Stage, w.stager.CopyTree(src, dst)...)
	w.res.Categories = append(w.res.Categories, cat)
	w.res.Sources = append(w.res.Sources, src)

	plugins, err := elfinfo.FindBinaries(src)
	if err != nil {
		w.logger.Warn().Err(err).Str("category", string(cat)).Msg("cannot scan plugin category")
		return
	}
	w.res.Binaries = append(w.res.Binaries, plugins...)
	for _, p := range plugins {
		for _, dep := range w.dependencies(p) {
			if dep != owner && w.table.Has(Normalize(dep)) {
				w.enqueue(dep)
			}
		}
	}
}

func (w *walk) enqueue(lib string) {
	if w.solved[lib] || w.queued[lib] {
		return
	}
	w.queued[lib] = true
	w.queue = append(w.queue, lib)
}

func (w *walk) dependencies(path string) []string {
	_, deps, err := w.locator.Dependencies(path)
	if err != nil {
		if !errors.IsErrorCode(err, errors.ErrNotELF) {
			w.logger.Warn().Err(err).Str("binary", path).Msg("no dependency information")
		}
		return nil
	}
	return deps
}

func sortCategories(c []Category) {
	sort.Slice(c, func(i, j int) bool { return c[i] < c[j] })
}
