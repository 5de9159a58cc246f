package report

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/arthur-debert/depbundle/pkg/errors"
)

// Format is a report serialization.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatXML  Format = "xml"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJSON, FormatYAML, FormatTOML, FormatXML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	}
	return "", errors.Newf(errors.ErrInvalidInput, "unknown report format: %s", s)
}

// FormatForPath guesses the format from a file extension, falling back to
// def.
func FormatForPath(path string, def Format) Format {
	if f, err := ParseFormat(trimDot(filepath.Ext(path))); err == nil {
		return f
	}
	return def
}

func trimDot(ext string) string {
	if len(ext) > 0 && ext[0] == '.' {
		return ext[1:]
	}
	return ext
}

// Marshal encodes r in format f.
func (r *Report) Marshal(f Format) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch f {
	case FormatJSON:
		data, err = json.MarshalIndent(r, "", "  ")
		data = append(data, '\n')
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err = enc.Encode(r); err == nil {
			err = enc.Close()
		}
		data = buf.Bytes()
	case FormatTOML:
		data, err = toml.Marshal(r)
	case FormatXML:
		data, err = r.xml()
	default:
		return nil, errors.Newf(errors.ErrInvalidInput, "unknown report format: %s", f)
	}
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrReportWrite, "cannot encode report as %s", f)
	}
	return data, nil
}

// Write encodes r to w.
func (r *Report) Write(w io.Writer, f Format) error {
	data, err := r.Marshal(f)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, errors.ErrReportWrite, "cannot write report")
	}
	return nil
}

// Save writes r to path, creating parent directories.
func (r *Report) Save(path string, f Format) error {
	data, err := r.Marshal(f)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrReportWrite, "cannot create %s", filepath.Dir(path))
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, errors.ErrReportWrite, "cannot write %s", path).
			WithDetail("path", path)
	}
	return nil
}

func (r *Report) xml() ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("report")
	root.CreateAttr("program", r.Program)
	root.CreateAttr("version", r.Version)
	root.CreateAttr("dry-run", strconv.FormatBool(r.DryRun))
	if !r.GeneratedAt.IsZero() {
		root.CreateAttr("generated-at", r.GeneratedAt.Format(time.RFC3339))
	}
	root.CreateElement("root-dir").SetText(r.RootDir)
	root.CreateElement("install-dir").SetText(r.InstallDir)

	mods := root.CreateElement("modules")
	list(mods, "module", r.Modules.Copied)
	unresolved(mods, r.Modules.Unresolved)

	plugins := root.CreateElement("plugins")
	list(plugins.CreateElement("categories"), "category", r.Plugins.Categories)
	list(plugins.CreateElement("missing"), "category", r.Plugins.Missing)
	list(plugins.CreateElement("libraries"), "library", r.Plugins.Libraries)

	libs := root.CreateElement("libraries")
	list(libs, "library", r.Libraries.Copied)
	list(libs.CreateElement("excluded"), "library", r.Libraries.Excluded)
	unresolved(libs, r.Libraries.Unresolved)

	sum := root.CreateElement("summary")
	sum.CreateAttr("copied", strconv.Itoa(r.Summary.Copied))
	sum.CreateAttr("linked", strconv.Itoa(r.Summary.Linked))
	sum.CreateAttr("skipped", strconv.Itoa(r.Summary.Skipped))
	sum.CreateAttr("failed", strconv.Itoa(r.Summary.Failed))

	failures := root.CreateElement("failures")
	for _, f := range r.Failures {
		e := failures.CreateElement("failure")
		e.CreateAttr("source", f.Source)
		e.CreateAttr("dest", f.Dest)
		e.SetText(f.Error)
	}

	list(root.CreateElement("sources"), "source", r.Sources)

	doc.Indent(2)
	return doc.WriteToBytes()
}

func list(parent *etree.Element, tag string, values []string) {
	for _, v := range values {
		parent.CreateElement(tag).SetText(v)
	}
}

func unresolved(parent *etree.Element, values []Unresolved) {
	el := parent.CreateElement("unresolved")
	for _, u := range values {
		e := el.CreateElement("dependency")
		e.CreateAttr("from", u.From)
		e.SetText(u.Name)
	}
}
