// Package locator finds the file a dynamic import resolves to, following
// the precedence the dynamic linker uses: RPATH, then the library path
// from the environment, then RUNPATH, then the system directories.
package locator

import (
	"debug/elf"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/depbundle/pkg/elfinfo"
	"github.com/arthur-debert/depbundle/pkg/errors"
	"github.com/arthur-debert/depbundle/pkg/logging"
)

// Source names the part of a SearchContext a directory came from.
type Source string

const (
	SourceRPath       Source = "rpath"
	SourceLibraryPath Source = "library_path"
	SourceRunPath     Source = "runpath"
	SourceSystem      Source = "system"
)

// SearchContext is the ordered list of directories consulted for one
// binary. The order of the fields is the search order.
type SearchContext struct {
	RPath       []string
	LibraryPath []string
	RunPath     []string
	System      []string
}

// Dir is one directory of a SearchContext together with its origin.
type Dir struct {
	Path   string
	Source Source
}

// Dirs flattens the context in precedence order.
func (c SearchContext) Dirs() []Dir {
	out := make([]Dir, 0, len(c.RPath)+len(c.LibraryPath)+len(c.RunPath)+len(c.System))
	for _, group := range []struct {
		dirs []string
		src  Source
	}{
		{c.RPath, SourceRPath},
		{c.LibraryPath, SourceLibraryPath},
		{c.RunPath, SourceRunPath},
		{c.System, SourceSystem},
	} {
		for _, d := range group.dirs {
			out = append(out, Dir{Path: d, Source: group.src})
		}
	}
	return out
}

// Match is a located library.
type Match struct {
	Name   string `json:"name" yaml:"name" toml:"name"`
	Path   string `json:"path" yaml:"path" toml:"path"`
	Source Source `json:"source" yaml:"source" toml:"source"`
}

// Resolution is the outcome of resolving every import of one binary.
type Resolution struct {
	Found   []Match
	Missing []string
}

// Paths returns the resolved paths in import order.
func (r Resolution) Paths() []string {
	out := make([]string, len(r.Found))
	for i, m := range r.Found {
		out[i] = m.Path
	}
	return out
}

// Options configures a Locator.
type Options struct {
	// Introspector validates candidates. Defaults to elfinfo.Default.
	Introspector elfinfo.Introspector
	// LibraryPath is the environment library path, already split.
	LibraryPath []string
	// SystemDirs are the system default directories, ld.so.conf first.
	SystemDirs []string
}

// Locator resolves library names to files.
type Locator struct {
	introspector elfinfo.Introspector
	libraryPath  []string
	systemDirs   []string
	logger       zerolog.Logger
}

// New creates a Locator.
func New(opts Options) *Locator {
	in := opts.Introspector
	if in == nil {
		in = elfinfo.Default
	}
	return &Locator{
		introspector: in,
		libraryPath:  cleanAll(opts.LibraryPath),
		systemDirs:   cleanAll(opts.SystemDirs),
		logger:       logging.GetLogger("locator"),
	}
}

// Introspector returns the introspector used to validate candidates.
func (l *Locator) Introspector() elfinfo.Introspector {
	return l.introspector
}

// ResolveTemplates expands $ORIGIN and ${ORIGIN} to originDir, anchors
// relative entries at originDir and cleans every result. Duplicates that
// appear after expansion are dropped.
func ResolveTemplates(entries []string, originDir string) []string {
	if len(entries) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		e = strings.ReplaceAll(e, "${ORIGIN}", originDir)
		e = strings.ReplaceAll(e, "$ORIGIN", originDir)
		if !filepath.IsAbs(e) {
			e = filepath.Join(originDir, e)
		}
		e = filepath.Clean(e)
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

// Context builds the search context for desc.
func (l *Locator) Context(desc *elfinfo.Descriptor) SearchContext {
	return SearchContext{
		RPath:       ResolveTemplates(desc.RPath, desc.Origin()),
		LibraryPath: l.libraryPath,
		RunPath:     ResolveTemplates(desc.RunPath, desc.Origin()),
		System:      l.systemDirs,
	}
}

// Locate returns the first dir/name in precedence order that exists and
// is an ELF file for machine.
func (l *Locator) Locate(name string, ctx SearchContext, machine elf.Machine) (string, bool) {
	m, ok := l.Find(name, ctx, machine)
	return m.Path, ok
}

// Find is Locate reporting which part of the context matched.
func (l *Locator) Find(name string, ctx SearchContext, machine elf.Machine) (Match, bool) {
	want := &elfinfo.Descriptor{Machine: machine}
	for _, dir := range ctx.Dirs() {
		candidate := filepath.Join(dir.Path, name)
		if _, err := os.Stat(candidate); err != nil {
			continue
		}

		desc, err := l.introspector.Introspect(candidate)
		if err != nil {
			if !errors.IsErrorCode(err, errors.ErrNotELF) {
				l.logger.Debug().Err(err).Str("candidate", candidate).Msg("skipping unreadable candidate")
			}
			continue
		}
		if !want.Compatible(desc) {
			l.logger.Trace().
				Str("candidate", candidate).
				Stringer("want", machine).
				Stringer("got", desc.Machine).
				Msg("skipping architecture mismatch")
			continue
		}
		return Match{Name: name, Path: candidate, Source: dir.Source}, true
	}
	return Match{Name: name}, false
}

// Resolve locates every import of desc using desc's own search context.
func (l *Locator) Resolve(desc *elfinfo.Descriptor) Resolution {
	ctx := l.Context(desc)
	var res Resolution
	for _, name := range desc.Imports {
		m, ok := l.Find(name, ctx, desc.Machine)
		if !ok {
			l.logger.Debug().Str("binary", desc.Path).Str("import", name).Msg("unresolved dependency")
			res.Missing = append(res.Missing, name)
			continue
		}
		res.Found = append(res.Found, m)
	}
	return res
}

// Dependencies introspects path and resolves its imports. Unresolved
// imports are dropped.
func (l *Locator) Dependencies(path string) (*elfinfo.Descriptor, []string, error) {
	desc, err := l.introspector.Introspect(path)
	if err != nil {
		return nil, nil, err
	}
	return desc, l.Resolve(desc).Paths(), nil
}

func cleanAll(dirs []string) []string {
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if d = strings.TrimSpace(d); d == "" {
			continue
		}
		out = append(out, filepath.Clean(d))
	}
	return out
}
