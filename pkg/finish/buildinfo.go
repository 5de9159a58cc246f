package finish

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arthur-debert/depbundle/pkg/stage"
)

// DefaultReleaseGlob matches the distribution description files.
const DefaultReleaseGlob = "/etc/*-release"

// BuildInfoPath is where BuildInfo writes, relative to the install root.
const BuildInfoPath = "usr/share/build-info.txt"

// BuildInfo records the build host and the system files the bundle was
// assembled from.
type BuildInfo struct {
	Program string
	Version string
	// ReleaseGlob defaults to DefaultReleaseGlob.
	ReleaseGlob string
	Sources     []string
}

// Name implements Finisher.
func (BuildInfo) Name() string { return "build-info" }

// Finish implements Finisher. An existing file is left alone.
func (b BuildInfo) Finish(_ context.Context, layout Layout, stager *stage.Stager) ([]stage.Result, error) {
	res := stager.WriteFile(filepath.Join(layout.InstallDir, BuildInfoPath), b.Render(), 0644)
	if res.Status == stage.StatusFailed {
		return []stage.Result{res}, res.Err
	}
	return []stage.Result{res}, nil
}

// Render returns the file content: the non-empty lines of every release
// file, a blank line, then the program and its sorted sources.
func (b BuildInfo) Render() []byte {
	var out strings.Builder

	pattern := b.ReleaseGlob
	if pattern == "" {
		pattern = DefaultReleaseGlob
	}
	files, _ := filepath.Glob(pattern)
	sort.Strings(files)
	for _, f := range files {
		for _, line := range readLines(f) {
			out.WriteString(line)
			out.WriteByte('\n')
		}
	}
	out.WriteByte('\n')

	if b.Program != "" {
		fmt.Fprintf(&out, "%s %s\n", b.Program, b.Version)
	}
	sources := append([]string(nil), b.Sources...)
	sort.Strings(sources)
	for _, s := range sources {
		out.WriteString(s)
		out.WriteByte('\n')
	}
	return []byte(out.String())
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r"); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
