// Package display holds the format-neutral shape of command output. Results
// that want rich rendering convert themselves to a Document; renderers only
// know about Documents.
package display

// Document is a titled list of sections.
type Document struct {
	Title    string    `json:"title"`
	DryRun   bool      `json:"dry_run,omitempty"`
	Sections []Section `json:"sections"`
	// Footer is a closing line such as a summary count.
	Footer string `json:"footer,omitempty"`
	// Failed marks the footer as an error.
	Failed bool `json:"failed,omitempty"`
}

// Section is either a table (Columns and Rows) or a plain list (Items).
type Section struct {
	Title   string     `json:"title"`
	Columns []string   `json:"columns,omitempty"`
	Rows    [][]string `json:"rows,omitempty"`
	Items   []string   `json:"items,omitempty"`
	// Empty is shown when the section has no rows and no items.
	Empty string `json:"empty,omitempty"`
}

// IsTable reports whether the section renders as a table.
func (s Section) IsTable() bool {
	return len(s.Columns) > 0
}

// IsEmpty reports whether the section has nothing to show.
func (s Section) IsEmpty() bool {
	return len(s.Rows) == 0 && len(s.Items) == 0
}

// Documenter is implemented by results with a rich representation.
type Documenter interface {
	Document() *Document
}

// AddList appends a list section, skipping it when items is empty and no
// placeholder is given.
func (d *Document) AddList(title string, items []string, empty string) {
	if len(items) == 0 && empty == "" {
		return
	}
	d.Sections = append(d.Sections, Section{Title: title, Items: items, Empty: empty})
}

// AddTable appends a table section under the same rule as AddList.
func (d *Document) AddTable(title string, columns []string, rows [][]string, empty string) {
	if len(rows) == 0 && empty == "" {
		return
	}
	d.Sections = append(d.Sections, Section{Title: title, Columns: columns, Rows: rows, Empty: empty})
}
