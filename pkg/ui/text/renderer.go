// Package text provides plain text output without any styling
package text

import (
	"fmt"
	"io"

	"github.com/arthur-debert/depbundle/pkg/ui/display"
)

// Renderer provides plain text output without colors or styling
type Renderer struct {
	output io.Writer
}

// New creates a new text renderer
func New(output io.Writer) (*Renderer, error) {
	return &Renderer{output: output}, nil
}

// RenderResult renders any result type as plain text
func (r *Renderer) RenderResult(result interface{}) error {
	d, ok := result.(display.Documenter)
	if !ok {
		_, err := fmt.Fprintf(r.output, "%+v\n", result)
		return err
	}
	doc := d.Document()
	if doc == nil {
		return nil
	}

	title := doc.Title
	if doc.DryRun {
		title += " (dry run)"
	}
	if _, err := fmt.Fprintln(r.output, title); err != nil {
		return err
	}

	for _, s := range doc.Sections {
		if _, err := fmt.Fprintf(r.output, "\n%s:\n", s.Title); err != nil {
			return err
		}
		switch {
		case s.IsEmpty():
			if _, err := fmt.Fprintf(r.output, "    %s\n", s.Empty); err != nil {
				return err
			}
		case s.IsTable():
			if err := display.WriteTable(r.output, s.Columns, s.Rows); err != nil {
				return err
			}
		default:
			for _, item := range s.Items {
				if _, err := fmt.Fprintf(r.output, "    %s\n", item); err != nil {
					return err
				}
			}
		}
	}

	if doc.Footer != "" {
		if _, err := fmt.Fprintf(r.output, "\n%s\n", doc.Footer); err != nil {
			return err
		}
	}
	return nil
}

// RenderError renders an error as plain text
func (r *Renderer) RenderError(err error) error {
	_, err2 := fmt.Fprintf(r.output, "Error: %v\n", err)
	return err2
}

// RenderMessage renders a simple message
func (r *Renderer) RenderMessage(msg string) error {
	_, err := fmt.Fprintln(r.output, msg)
	return err
}
