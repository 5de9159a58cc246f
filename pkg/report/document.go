package report

import (
	"fmt"

	"github.com/arthur-debert/depbundle/pkg/ui/display"
)

// Document implements display.Documenter.
func (r *Report) Document() *display.Document {
	doc := &display.Document{
		Title:  fmt.Sprintf("%s %s", r.Program, r.Version),
		DryRun: r.DryRun,
	}
	if r.Program == "" {
		doc.Title = "bundle " + r.InstallDir
	}

	doc.AddList("modules", r.Modules.Copied, "none")
	doc.AddTable("unresolved modules", []string{"file", "module"}, unresolvedRows(r.Modules.Unresolved), "")
	doc.AddList("plugin categories", r.Plugins.Categories, "none")
	doc.AddList("missing plugin categories", r.Plugins.Missing, "")
	doc.AddList("libraries", r.Libraries.Copied, "none")
	doc.AddList("excluded libraries", r.Libraries.Excluded, "")
	doc.AddTable("unresolved libraries", []string{"binary", "library"}, unresolvedRows(r.Libraries.Unresolved), "")

	var failures [][]string
	for _, f := range r.Failures {
		failures = append(failures, []string{f.Dest, f.Error})
	}
	doc.AddTable("failures", []string{"destination", "error"}, failures, "")

	s := r.Summary
	doc.Footer = fmt.Sprintf("%d copied, %d linked, %d skipped, %d failed", s.Copied, s.Linked, s.Skipped, s.Failed)
	doc.Failed = !r.OK()
	return doc
}

func unresolvedRows(us []Unresolved) [][]string {
	rows := make([][]string, 0, len(us))
	for _, u := range us {
		rows = append(rows, []string{u.From, u.Name})
	}
	return rows
}
