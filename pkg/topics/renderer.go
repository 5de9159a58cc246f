package topics

import "github.com/charmbracelet/glamour"

// Renderer formats topic content for the terminal.
type Renderer interface {
	// Render formats content; ext is the topic file extension.
	Render(content string, ext string) string
}

// PlainRenderer returns content unchanged.
type PlainRenderer struct{}

// Render implements Renderer.
func (PlainRenderer) Render(content string, _ string) string {
	return content
}

// GlamourRenderer renders markdown topics with glamour.
type GlamourRenderer struct {
	// Style is "auto" or a glamour style path.
	Style string
	// Width wraps at this column; 0 keeps glamour's default.
	Width int
}

// NewGlamourRenderer returns a renderer that detects the terminal style.
func NewGlamourRenderer() *GlamourRenderer {
	return &GlamourRenderer{Style: "auto"}
}

// Render implements Renderer. Non-markdown content and rendering failures
// fall back to the raw text.
func (r *GlamourRenderer) Render(content string, ext string) string {
	if ext != ".md" {
		return content
	}

	var options []glamour.TermRendererOption
	if r.Style != "" && r.Style != "auto" {
		options = append(options, glamour.WithStylePath(r.Style))
	} else {
		options = append(options, glamour.WithAutoStyle())
	}
	if r.Width > 0 {
		options = append(options, glamour.WithWordWrap(r.Width))
	}

	renderer, err := glamour.NewTermRenderer(options...)
	if err != nil {
		return content
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}
