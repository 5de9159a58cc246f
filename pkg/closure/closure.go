// Package closure computes the transitive set of shared libraries a set of
// binaries needs and stages each one into the install root.
//
// The walk is a FIFO worklist seeded with the sorted, resolved imports of
// the roots. A visited set keyed by resolved path makes it terminate on
// cyclic graphs, and excluded libraries are neither copied nor expanded.
package closure

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/depbundle/pkg/elfinfo"
	"github.com/arthur-debert/depbundle/pkg/errors"
	"github.com/arthur-debert/depbundle/pkg/exclude"
	"github.com/arthur-debert/depbundle/pkg/locator"
	"github.com/arthur-debert/depbundle/pkg/logging"
	"github.com/arthur-debert/depbundle/pkg/stage"
)

// Options configures a Resolver.
type Options struct {
	Locator *locator.Locator
	Exclude *exclude.Set
	Stager  *stage.Stager
	// LibDir is the absolute destination directory for libraries.
	LibDir string
}

// Unresolved is an import no search directory could satisfy.
type Unresolved struct {
	Binary string `json:"binary" yaml:"binary" toml:"binary"`
	Name   string `json:"name" yaml:"name" toml:"name"`
}

// Result is the outcome of one closure run.
type Result struct {
	// Libraries is the copy set: every resolved, non-excluded library
	// reached from the roots, sorted.
	Libraries []string
	// Excluded lists resolved libraries dropped by an exclusion rule.
	Excluded []string
	// Graph maps each visited node to the resolved libraries it imports.
	Graph      map[string][]string
	Unresolved []Unresolved
	Stage      []stage.Result
}

// Resolver runs the library closure.
type Resolver struct {
	locator *locator.Locator
	exclude *exclude.Set
	stager  *stage.Stager
	libDir  string
	logger  zerolog.Logger
}

// New creates a Resolver.
func New(opts Options) (*Resolver, error) {
	if opts.Locator == nil {
		return nil, errors.New(errors.ErrInvalidInput, "closure resolver needs a locator")
	}
	if opts.Stager == nil {
		return nil, errors.New(errors.ErrInvalidInput, "closure resolver needs a stager")
	}
	if opts.LibDir == "" {
		return nil, errors.New(errors.ErrInvalidInput, "closure resolver needs a library directory")
	}
	return &Resolver{
		locator: opts.Locator,
		exclude: opts.Exclude,
		stager:  opts.Stager,
		libDir:  opts.LibDir,
		logger:  logging.GetLogger("closure"),
	}, nil
}

type walk struct {
	*Resolver
	res      *Result
	visited  map[string]bool
	queued   map[string]bool
	excluded map[string]bool
	queue    []string
}

// Resolve walks from roots, whose imports seed the worklist, plus extra
// libraries that are seeds themselves. Unreadable roots are skipped.
func (r *Resolver) Resolve(roots []string, extra []string) *Result {
	done := logging.LogOperationStart(r.logger, "library closure")
	defer done()

	w := &walk{
		Resolver: r,
		res:      &Result{Graph: map[string][]string{}},
		visited:  map[string]bool{},
		queued:   map[string]bool{},
		excluded: map[string]bool{},
	}

	var seeds []string
	for _, root := range sortedCopy(roots) {
		deps, ok := w.dependencies(root)
		if !ok {
			continue
		}
		seeds = append(seeds, deps...)
	}
	seeds = append(seeds, extra...)

	for _, s := range sortedCopy(seeds) {
		w.enqueue(s)
	}

	for len(w.queue) > 0 {
		dep := w.queue[0]
		w.queue = w.queue[1:]

		if w.visited[dep] {
			continue
		}
		w.visited[dep] = true

		w.res.Libraries = append(w.res.Libraries, dep)
		w.res.Stage = append(w.res.Stage, r.stager.CopyFile(dep, r.libDir)...)

		deps, ok := w.dependencies(dep)
		if !ok {
			continue
		}
		w.res.Graph[dep] = nil
		for _, next := range deps {
			if next == dep {
				continue
			}
			if w.isExcluded(next) {
				continue
			}
			w.res.Graph[dep] = append(w.res.Graph[dep], next)
			w.enqueue(next)
		}
	}

	sort.Strings(w.res.Libraries)
	for p := range w.excluded {
		w.res.Excluded = append(w.res.Excluded, p)
	}
	sort.Strings(w.res.Excluded)

	r.logger.Info().
		Int("libraries", len(w.res.Libraries)).
		Int("excluded", len(w.res.Excluded)).
		Int("unresolved", len(w.res.Unresolved)).
		Msg("library closure complete")
	return w.res
}

// enqueue adds path unless it was seen before or is excluded.
func (w *walk) enqueue(path string) {
	if w.visited[path] || w.queued[path] || w.isExcluded(path) {
		return
	}
	w.queued[path] = true
	w.queue = append(w.queue, path)
}

func (w *walk) isExcluded(path string) bool {
	rule, ok := w.exclude.Match(path)
	if !ok {
		return false
	}
	if !w.excluded[path] {
		w.logger.Debug().Str("library", path).Str("rule", rule.Pattern).Msg("excluded")
		w.excluded[path] = true
	}
	return true
}

// dependencies resolves the imports of path. Files that are not ELF or do
// not parse contribute nothing.
func (w *walk) dependencies(path string) ([]string, bool) {
	desc, err := w.locator.Introspector().Introspect(path)
	if err != nil {
		if !errors.IsErrorCode(err, errors.ErrNotELF) {
			w.logger.Warn().Err(err).Str("binary", path).Msg("no dependency information")
		}
		return nil, false
	}
	res := w.locator.Resolve(desc)
	for _, name := range res.Missing {
		w.res.Unresolved = append(w.res.Unresolved, Unresolved{Binary: path, Name: name})
	}
	return res.Paths(), true
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

// Roots returns the ELF files under dir for use as closure roots.
func Roots(dir string) ([]string, error) {
	return elfinfo.FindBinaries(dir)
}
