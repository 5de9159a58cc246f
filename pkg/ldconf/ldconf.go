// Package ldconf reads the system dynamic linker configuration
// (ld.so.conf) into an ordered list of default library directories.
package ldconf

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/arthur-debert/depbundle/pkg/errors"
	"github.com/arthur-debert/depbundle/pkg/logging"
)

// DefaultPath is the conventional location of the linker configuration.
const DefaultPath = "/etc/ld.so.conf"

// DefaultFallbackDirs are searched after every configured directory.
var DefaultFallbackDirs = []string{"/usr/lib", "/lib"}

// Read parses the configuration at path. Lines are directories, '#' starts
// a comment, and "include PATTERN..." pulls in every file matching the glob
// patterns, in lexical order. Relative patterns are taken relative to the
// directory of the including file. A missing top-level file yields no
// directories and no error.
func Read(path string) ([]string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger := logging.GetLogger("ldconf")
		logger.Debug().Str("path", path).Msg("linker configuration not found")
		return nil, nil
	}

	r := &reader{seen: map[string]bool{}}
	if err := r.read(path); err != nil {
		return nil, err
	}
	return r.dirs, nil
}

// SearchDirs returns the configured directories followed by fallback, with
// duplicates removed and the first occurrence kept.
func SearchDirs(path string, fallback []string) ([]string, error) {
	dirs, err := Read(path)
	if err != nil {
		return nil, err
	}
	return dedupe(append(dirs, fallback...)), nil
}

type reader struct {
	dirs []string
	seen map[string]bool
}

func (r *reader) read(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if r.seen[abs] {
		return nil
	}
	r.seen[abs] = true

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, errors.ErrLdConf, "cannot read linker configuration %s", path).
			WithDetail("path", path)
	}
	defer func() { _ = f.Close() }()

	logger := logging.GetLogger("ldconf")
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if fields[0] == "include" {
			for _, pattern := range fields[1:] {
				if !filepath.IsAbs(pattern) {
					pattern = filepath.Join(filepath.Dir(path), pattern)
				}
				logger.Trace().Str("pattern", pattern).Msg("following include")
				if err := r.include(pattern); err != nil {
					return err
				}
			}
			continue
		}
		if fields[0] == "hwcap" {
			continue
		}

		r.dirs = append(r.dirs, filepath.Clean(line))
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, errors.ErrLdConf, "cannot read linker configuration %s", path).
			WithDetail("path", path)
	}
	return nil
}

func (r *reader) include(pattern string) error {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return errors.Wrapf(err, errors.ErrLdConf, "invalid include pattern %q", pattern).
			WithDetail("pattern", pattern)
	}

	dir := filepath.Dir(pattern)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, errors.ErrLdConf, "cannot list include directory %s", dir).
			WithDetail("path", dir)
	}

	var matches []string
	for _, e := range entries {
		candidate := filepath.Join(dir, e.Name())
		if e.IsDir() || !g.Match(candidate) {
			continue
		}
		matches = append(matches, candidate)
	}
	sort.Strings(matches)

	for _, m := range matches {
		if err := r.read(m); err != nil {
			return err
		}
	}
	return nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
