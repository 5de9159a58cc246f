package modules

import (
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/arthur-debert/depbundle/pkg/errors"
)

// Kind is the statement a reference was read from.
type Kind string

const (
	KindImport  Kind = "import"
	KindDepends Kind = "depends"
)

// Ref is a reference to a declarative module.
type Ref struct {
	Kind    Kind   `json:"kind" yaml:"kind" toml:"kind"`
	Name    string `json:"name" yaml:"name" toml:"name"`
	Version string `json:"version,omitempty" yaml:"version,omitempty" toml:"version,omitempty"`
	// Path is the module directory relative to a module root, always with
	// forward slashes: "QtQuick.Controls 2.15" becomes "QtQuick/Controls.2".
	Path string `json:"path" yaml:"path" toml:"path"`
}

var (
	importLine  = regexp.MustCompile(`^\s*import\s+\w`)
	dependsLine = regexp.MustCompile(`^\s*depends\s`)
	moduleName  = regexp.MustCompile(`^\w+(\.\w+)*$`)
)

// IsImport reports whether line is a module import. Quoted imports of
// files or scripts do not count.
func IsImport(line string) bool {
	return importLine.MatchString(line)
}

// IsDepends reports whether line is a qmldir depends statement.
func IsDepends(line string) bool {
	return dependsLine.MatchString(line)
}

// ParseRef parses an import or depends statement.
func ParseRef(line string) (Ref, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Ref{}, errors.Newf(errors.ErrInvalidInput, "not a module statement: %q", line)
	}

	var kind Kind
	switch fields[0] {
	case string(KindImport):
		kind = KindImport
	case string(KindDepends):
		kind = KindDepends
	default:
		return Ref{}, errors.Newf(errors.ErrInvalidInput, "not a module statement: %q", line)
	}

	name := strings.TrimSuffix(fields[1], ";")
	if !moduleName.MatchString(name) {
		return Ref{}, errors.Newf(errors.ErrInvalidInput, "invalid module name %q", name).
			WithDetail("line", line)
	}

	ref := Ref{Kind: kind, Name: name}
	if len(fields) > 2 && fields[2] != "as" {
		ref.Version = strings.TrimSuffix(fields[2], ";")
	}
	ref.Path = ModulePath(ref.Name, ref.Version)
	return ref, nil
}

// ModulePath turns a dotted module name and version into the module's
// relative directory. The major version is appended as ".N" when it is
// greater than one. Missing or non-numeric versions add nothing.
func ModulePath(name, version string) string {
	p := strings.ReplaceAll(name, ".", "/")
	major, _, _ := strings.Cut(version, ".")
	if n, err := strconv.Atoi(major); err == nil && n > 1 {
		p += "." + strconv.Itoa(n)
	}
	return path.Clean(p)
}
