package depbundle

import (
	"fmt"
	"strings"

	"github.com/arthur-debert/depbundle/pkg/closure"
	"github.com/arthur-debert/depbundle/pkg/elfinfo"
	"github.com/arthur-debert/depbundle/pkg/locator"
	"github.com/arthur-debert/depbundle/pkg/modules"
	"github.com/arthur-debert/depbundle/pkg/ui/display"
)

// FileError is a per-file failure of a query command.
type FileError struct {
	Path  string `json:"path" yaml:"path"`
	Error string `json:"error" yaml:"error"`
}

func errorRows(errs []FileError) [][]string {
	rows := make([][]string, len(errs))
	for i, e := range errs {
		rows[i] = []string{e.Path, e.Error}
	}
	return rows
}

// BinaryInfo is the printable form of an elfinfo.Descriptor.
type BinaryInfo struct {
	Path      string   `json:"path" yaml:"path"`
	Machine   string   `json:"machine" yaml:"machine"`
	Class     string   `json:"class" yaml:"class"`
	ByteOrder string   `json:"byte_order" yaml:"byte_order"`
	Imports   []string `json:"imports" yaml:"imports"`
	RPath     []string `json:"rpath,omitempty" yaml:"rpath,omitempty"`
	RunPath   []string `json:"runpath,omitempty" yaml:"runpath,omitempty"`
}

func newBinaryInfo(d *elfinfo.Descriptor) BinaryInfo {
	return BinaryInfo{
		Path:      d.Path,
		Machine:   d.Machine.String(),
		Class:     d.Class.String(),
		ByteOrder: d.ByteOrder().String(),
		Imports:   d.Imports,
		RPath:     d.RPath,
		RunPath:   d.RunPath,
	}
}

// InspectResult is the output of the inspect command.
type InspectResult struct {
	Binaries []BinaryInfo `json:"binaries" yaml:"binaries"`
	Errors   []FileError  `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Document implements display.Documenter.
func (r *InspectResult) Document() *display.Document {
	doc := &display.Document{Title: "inspect"}
	rows := make([][]string, len(r.Binaries))
	for i, b := range r.Binaries {
		rows[i] = []string{b.Path, b.Machine, b.Class, b.ByteOrder}
	}
	doc.AddTable("binaries", []string{"file", "machine", "class", "byte order"}, rows, "none")
	for _, b := range r.Binaries {
		doc.AddList(b.Path+" imports", b.Imports, "none")
		doc.AddList(b.Path+" rpath", b.RPath, "")
		doc.AddList(b.Path+" runpath", b.RunPath, "")
	}
	doc.AddTable("errors", []string{"file", "error"}, errorRows(r.Errors), "")
	return doc
}

// Resolution is the located imports of one binary.
type Resolution struct {
	Binary  string          `json:"binary" yaml:"binary"`
	Found   []locator.Match `json:"found" yaml:"found"`
	Missing []string        `json:"missing,omitempty" yaml:"missing,omitempty"`
}

// Closure is the transitive library set of the resolved binaries.
type Closure struct {
	Libraries  []string             `json:"libraries" yaml:"libraries"`
	Excluded   []string             `json:"excluded,omitempty" yaml:"excluded,omitempty"`
	Unresolved []closure.Unresolved `json:"unresolved,omitempty" yaml:"unresolved,omitempty"`
}

// ResolveResult is the output of the resolve command.
type ResolveResult struct {
	Binaries []Resolution `json:"binaries" yaml:"binaries"`
	Closure  *Closure     `json:"closure,omitempty" yaml:"closure,omitempty"`
	Errors   []FileError  `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Document implements display.Documenter.
func (r *ResolveResult) Document() *display.Document {
	doc := &display.Document{Title: "resolve"}
	for _, b := range r.Binaries {
		rows := make([][]string, len(b.Found))
		for i, m := range b.Found {
			rows[i] = []string{m.Name, m.Path, string(m.Source)}
		}
		doc.AddTable(b.Binary, []string{"library", "path", "source"}, rows, "no imports")
		doc.AddList(b.Binary+" unresolved", b.Missing, "")
	}
	if c := r.Closure; c != nil {
		doc.AddList("closure", c.Libraries, "none")
		doc.AddList("excluded", c.Excluded, "")
		rows := make([][]string, len(c.Unresolved))
		for i, u := range c.Unresolved {
			rows[i] = []string{u.Binary, u.Name}
		}
		doc.AddTable("unresolved in closure", []string{"binary", "library"}, rows, "")
	}
	doc.AddTable("errors", []string{"file", "error"}, errorRows(r.Errors), "")

	missing := 0
	for _, b := range r.Binaries {
		missing += len(b.Missing)
	}
	if missing > 0 {
		doc.Footer = fmt.Sprintf("%d unresolved", missing)
		doc.Failed = true
	}
	return doc
}

// ModuleImport is one module reference found in a file.
type ModuleImport struct {
	File string      `json:"file" yaml:"file"`
	Ref  modules.Ref `json:"ref" yaml:"ref"`
}

// ModulesResult is the output of the modules command.
type ModulesResult struct {
	Files   int            `json:"files" yaml:"files"`
	Imports []ModuleImport `json:"imports" yaml:"imports"`
	Errors  []FileError    `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Document implements display.Documenter.
func (r *ModulesResult) Document() *display.Document {
	doc := &display.Document{Title: "modules"}
	rows := make([][]string, len(r.Imports))
	for i, imp := range r.Imports {
		rows[i] = []string{imp.File, string(imp.Ref.Kind), strings.TrimSpace(imp.Ref.Name + " " + imp.Ref.Version), imp.Ref.Path}
	}
	doc.AddTable("imports", []string{"file", "kind", "module", "path"}, rows, "none")
	doc.AddTable("errors", []string{"file", "error"}, errorRows(r.Errors), "")
	doc.Footer = fmt.Sprintf("%d files scanned", r.Files)
	return doc
}
