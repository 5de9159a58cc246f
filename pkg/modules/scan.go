package modules

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arthur-debert/depbundle/pkg/errors"
)

// ManifestName is the reserved module manifest file name.
const ManifestName = "qmldir"

// SourceExt is the extension of declarative source files.
const SourceExt = ".qml"

// IsModuleFile reports whether name is a manifest or a declarative source.
func IsModuleFile(name string) bool {
	base := filepath.Base(name)
	return base == ManifestName || strings.HasSuffix(base, SourceExt)
}

// ScanFile returns the module references declared in path, de-duplicated
// by module path and sorted. Source files contribute their imports and
// manifests their depends statements. Other files yield nothing.
func ScanFile(path string) ([]Ref, error) {
	var match func(string) bool
	switch {
	case filepath.Base(path) == ManifestName:
		match = IsDepends
	case strings.HasSuffix(path, SourceExt):
		match = IsImport
	default:
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrNotFound, "cannot open %s", path).
			WithDetail("path", path)
	}
	defer func() { _ = f.Close() }()

	seen := map[string]bool{}
	var refs []Ref

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !match(line) {
			continue
		}
		ref, err := ParseRef(line)
		if err != nil {
			continue
		}
		if seen[ref.Path] {
			continue
		}
		seen[ref.Path] = true
		refs = append(refs, ref)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, errors.ErrInvalidInput, "cannot read %s", path).
			WithDetail("path", path)
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Path < refs[j].Path })
	return refs, nil
}

// ListFiles returns path itself when it is a module file, or every module
// file below it when it is a directory. Missing paths yield nothing.
func ListFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrNotFound, "cannot stat %s", path)
	}

	if !info.IsDir() {
		if IsModuleFile(path) {
			return []string{path}, nil
		}
		return nil, nil
	}

	// walk the resolved directory so a symlinked module root is followed
	root := path
	if real, err := filepath.EvalSymlinks(path); err == nil {
		root = real
	}

	var out []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsModuleFile(p) {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.Join(path, rel))
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrNotFound, "cannot list module files under %s", path).
			WithDetail("path", path)
	}

	sort.Strings(out)
	return out, nil
}
