// Package modules resolves the declarative UI modules a program imports.
// Source files and module manifests are scanned for references; every
// referenced module found under the system module root is copied into
// the bundle and its own files are scanned in turn.
package modules

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/depbundle/pkg/elfinfo"
	"github.com/arthur-debert/depbundle/pkg/errors"
	"github.com/arthur-debert/depbundle/pkg/logging"
	"github.com/arthur-debert/depbundle/pkg/stage"
)

// Options configures a Resolver.
type Options struct {
	Stager *stage.Stager
	// ModuleRoot is the system module root, e.g. /usr/lib/qt/qml.
	ModuleRoot string
	// ModuleDir is the absolute destination for modules.
	ModuleDir string
}

// Unresolved is a module reference with no directory under the module root.
type Unresolved struct {
	File string `json:"file" yaml:"file" toml:"file"`
	Ref  Ref    `json:"ref" yaml:"ref" toml:"ref"`
}

// Result is the outcome of one module run.
type Result struct {
	// Modules are the copied module paths, sorted.
	Modules []string
	// Unresolved lists each missing module once, with the first file that
	// referenced it.
	Unresolved []Unresolved
	// Files counts the files scanned.
	Files int
	// Sources are the manifests of the copied modules at their system
	// location.
	Sources []string
	// Binaries are the ELF files inside the copied modules at their system
	// location.
	Binaries []string
	Stage    []stage.Result
}

// Resolver runs the module closure.
type Resolver struct {
	stager     *stage.Stager
	moduleRoot string
	moduleDir  string
	logger     zerolog.Logger
}

// New creates a Resolver.
func New(opts Options) (*Resolver, error) {
	if opts.Stager == nil {
		return nil, errors.New(errors.ErrInvalidInput, "module resolver needs a stager")
	}
	if opts.ModuleDir == "" {
		return nil, errors.New(errors.ErrInvalidInput, "module resolver needs a module directory")
	}
	return &Resolver{
		stager:     opts.Stager,
		moduleRoot: opts.ModuleRoot,
		moduleDir:  opts.ModuleDir,
		logger:     logging.GetLogger("modules"),
	}, nil
}

type walk struct {
	*Resolver
	res        *Result
	scanned    map[string]bool
	queued     map[string]bool
	solved     map[string]bool
	unresolved map[string]bool
	queue      []string
}

// Resolve scans the module files under scanRoots and copies every module
// they reach.
func (r *Resolver) Resolve(scanRoots []string) (*Result, error) {
	done := logging.LogOperationStart(r.logger, "module closure")
	defer done()

	w := &walk{
		Resolver:   r,
		res:        &Result{},
		scanned:    map[string]bool{},
		queued:     map[string]bool{},
		solved:     map[string]bool{},
		unresolved: map[string]bool{},
	}

	for _, root := range scanRoots {
		files, err := ListFiles(root)
		if err != nil {
			return nil, err
		}
		if files == nil {
			r.logger.Debug().Str("path", root).Msg("scan path has no module files")
		}
		w.enqueueAll(files)
	}

	for len(w.queue) > 0 {
		file := w.queue[0]
		w.queue = w.queue[1:]
		if w.scanned[file] {
			continue
		}
		w.scanned[file] = true
		w.res.Files++

		refs, err := ScanFile(file)
		if err != nil {
			r.logger.Warn().Err(err).Str("file", file).Msg("cannot scan module file")
			continue
		}
		for _, ref := range refs {
			w.visit(file, ref)
		}
	}

	sort.Strings(w.res.Modules)
	sort.Strings(w.res.Sources)
	sort.Strings(w.res.Binaries)
	sort.Slice(w.res.Unresolved, func(i, j int) bool {
		return w.res.Unresolved[i].Ref.Path < w.res.Unresolved[j].Ref.Path
	})

	r.logger.Info().
		Int("modules", len(w.res.Modules)).
		Int("unresolved", len(w.res.Unresolved)).
		Int("files", w.res.Files).
		Msg("module closure complete")
	return w.res, nil
}

func (w *walk) visit(file string, ref Ref) {
	if w.solved[ref.Path] || w.unresolved[ref.Path] {
		return
	}

	src := filepath.Join(w.moduleRoot, filepath.FromSlash(ref.Path))
	if w.moduleRoot == "" || !isDir(src) {
		w.logger.Debug().Str("module", ref.Path).Str("file", file).Msg("module not installed")
		w.unresolved[ref.Path] = true
		w.res.Unresolved = append(w.res.Unresolved, Unresolved{File: file, Ref: ref})
		return
	}
	w.solved[ref.Path] = true

	dst := filepath.Join(w.moduleDir, filepath.FromSlash(ref.Path))
	w.logger.Info().Msgf("%s -> %s", src, dst)
	w.res.Stage = append(w.res.Stage, w.stager.CopyTree(src, dst)...)
	w.res.Modules = append(w.res.Modules, ref.Path)

	if manifest := filepath.Join(src, ManifestName); isFile(manifest) {
		w.res.Sources = append(w.res.Sources, manifest)
	}

	files, err := ListFiles(src)
	if err != nil {
		w.logger.Warn().Err(err).Str("module", ref.Path).Msg("cannot list module files")
	} else {
		w.enqueueAll(files)
	}

	binaries, err := elfinfo.FindBinaries(src)
	if err != nil {
		w.logger.Warn().Err(err).Str("module", ref.Path).Msg("cannot scan module for binaries")
		return
	}
	w.res.Binaries = append(w.res.Binaries, binaries...)
}

func (w *walk) enqueueAll(files []string) {
	for _, f := range files {
		if w.scanned[f] || w.queued[f] {
			continue
		}
		w.queued[f] = true
		w.queue = append(w.queue, f)
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
