// Package terminal provides rich terminal output with colors and styling
package terminal

import (
	"fmt"
	"io"
	"sort"

	"github.com/arthur-debert/depbundle/pkg/errors"
	"github.com/arthur-debert/depbundle/pkg/ui/display"
	"github.com/arthur-debert/depbundle/pkg/ui/styles"
)

// Renderer writes styled documents.
type Renderer struct {
	output io.Writer
}

// New creates a new terminal renderer
func New(w io.Writer) (*Renderer, error) {
	return &Renderer{output: w}, nil
}

// RenderResult renders a Documenter with styling; other values are printed
// as is.
func (r *Renderer) RenderResult(result interface{}) error {
	d, ok := result.(display.Documenter)
	if !ok {
		_, err := fmt.Fprintf(r.output, "%+v\n", result)
		return err
	}
	return r.render(d.Document())
}

func (r *Renderer) render(doc *display.Document) error {
	if doc == nil {
		return nil
	}
	header := styles.Render("Header", doc.Title)
	if doc.DryRun {
		header += " " + styles.Render("DryRunBanner", "DRY RUN")
	}
	if _, err := fmt.Fprintln(r.output, header); err != nil {
		return err
	}

	for _, s := range doc.Sections {
		if _, err := fmt.Fprintln(r.output, styles.Render("SectionTitle", s.Title)); err != nil {
			return err
		}
		switch {
		case s.IsEmpty():
			if _, err := fmt.Fprintln(r.output, styles.Render("Item", styles.Render("Muted", s.Empty))); err != nil {
				return err
			}
		case s.IsTable():
			if err := display.WriteTable(r.output, s.Columns, s.Rows); err != nil {
				return err
			}
		default:
			for _, item := range s.Items {
				if _, err := fmt.Fprintln(r.output, styles.Render("Item", styles.Render("FilePath", item))); err != nil {
					return err
				}
			}
		}
	}

	if doc.Footer != "" {
		style := "Success"
		if doc.Failed {
			style = "Error"
		}
		if _, err := fmt.Fprintln(r.output, styles.Render("Footer", styles.Render(style, doc.Footer))); err != nil {
			return err
		}
	}
	return nil
}

// RenderError renders an error with its code and details
func (r *Renderer) RenderError(err error) error {
	if _, werr := fmt.Fprintln(r.output, styles.Render("Error", "Error: ")+err.Error()); werr != nil {
		return werr
	}
	details := errors.GetErrorDetails(err)
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		line := fmt.Sprintf("%s: %v", k, details[k])
		if _, werr := fmt.Fprintln(r.output, styles.Render("Item", styles.Render("Muted", line))); werr != nil {
			return werr
		}
	}
	return nil
}

// RenderMessage renders a simple message
func (r *Renderer) RenderMessage(msg string) error {
	_, err := fmt.Fprintln(r.output, styles.Render("Info", msg))
	return err
}
