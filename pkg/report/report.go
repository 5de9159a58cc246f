// Package report describes the outcome of a deploy run and writes it as
// JSON, YAML, TOML or XML. The Sources list is the input for an external
// package-owner lookup.
package report

import (
	"sort"
	"time"

	"github.com/arthur-debert/depbundle/pkg/stage"
)

// Unresolved is a dependency nothing could satisfy.
type Unresolved struct {
	From string `json:"from" yaml:"from" toml:"from"`
	Name string `json:"name" yaml:"name" toml:"name"`
}

// Plugins summarizes the plugin run.
type Plugins struct {
	Categories []string `json:"categories" yaml:"categories" toml:"categories"`
	Missing    []string `json:"missing" yaml:"missing" toml:"missing"`
	Libraries  []string `json:"libraries" yaml:"libraries" toml:"libraries"`
}

// Modules summarizes the module run.
type Modules struct {
	Copied     []string     `json:"copied" yaml:"copied" toml:"copied"`
	Unresolved []Unresolved `json:"unresolved" yaml:"unresolved" toml:"unresolved"`
}

// Libraries summarizes the library closure.
type Libraries struct {
	Copied     []string     `json:"copied" yaml:"copied" toml:"copied"`
	Excluded   []string     `json:"excluded" yaml:"excluded" toml:"excluded"`
	Unresolved []Unresolved `json:"unresolved" yaml:"unresolved" toml:"unresolved"`
}

// Report is the outcome of one run.
type Report struct {
	Program     string    `json:"program" yaml:"program" toml:"program"`
	Version     string    `json:"version" yaml:"version" toml:"version"`
	RootDir     string    `json:"root_dir" yaml:"root_dir" toml:"root_dir"`
	InstallDir  string    `json:"install_dir" yaml:"install_dir" toml:"install_dir"`
	DryRun      bool      `json:"dry_run" yaml:"dry_run" toml:"dry_run"`
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at" toml:"generated_at"`

	Modules   Modules   `json:"modules" yaml:"modules" toml:"modules"`
	Plugins   Plugins   `json:"plugins" yaml:"plugins" toml:"plugins"`
	Libraries Libraries `json:"libraries" yaml:"libraries" toml:"libraries"`

	Summary  stage.Summary  `json:"summary" yaml:"summary" toml:"summary"`
	Failures []stage.Result `json:"failures" yaml:"failures" toml:"failures"`
	// Sources are the system files the bundle was assembled from.
	Sources []string `json:"sources" yaml:"sources" toml:"sources"`
}

// AddStage folds staging results into the summary and failure list.
func (r *Report) AddStage(results []stage.Result) {
	s := stage.Summarize(results)
	r.Summary.Copied += s.Copied
	r.Summary.Linked += s.Linked
	r.Summary.Skipped += s.Skipped
	r.Summary.Failed += s.Failed
	r.Failures = append(r.Failures, stage.Failures(results)...)
}

// AddSources records provenance paths, keeping the list sorted and unique.
func (r *Report) AddSources(paths ...string) {
	seen := make(map[string]bool, len(r.Sources)+len(paths))
	out := make([]string, 0, len(r.Sources)+len(paths))
	for _, p := range append(append([]string(nil), r.Sources...), paths...) {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Strings(out)
	r.Sources = out
}

// OK reports whether the run staged everything it attempted.
func (r *Report) OK() bool {
	return r.Summary.Failed == 0
}
