// Package exclude holds the rules deciding which libraries stay out of the
// bundle because the target system is expected to provide them.
package exclude

import (
	"bufio"
	"os"
	"regexp"
	"strings"

	"github.com/arthur-debert/depbundle/pkg/errors"
	"github.com/arthur-debert/depbundle/pkg/logging"
)

// Rule is one compiled exclusion pattern.
type Rule struct {
	Pattern string
	Line    int
	re      *regexp.Regexp
}

// Set is an ordered list of rules. The zero value excludes nothing.
type Set struct {
	rules []Rule
}

// New compiles patterns into a Set. An invalid pattern is an error.
func New(patterns ...string) (*Set, error) {
	s := &Set{}
	for i, p := range patterns {
		if err := s.add(p, i+1); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Load reads one pattern per line from path. Blank lines and lines
// starting with '#' are skipped, and a '#' later in a line starts a
// comment. A missing file yields an empty Set.
func Load(path string) (*Set, error) {
	logger := logging.GetLogger("exclude")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug().Str("path", path).Msg("no exclusion file")
			return &Set{}, nil
		}
		return nil, errors.Wrapf(err, errors.ErrConfigLoad, "cannot read exclusion file %s", path).
			WithDetail("path", path)
	}
	defer func() { _ = f.Close() }()

	s := &Set{}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}
		if err := s.add(line, lineNo); err != nil {
			return nil, err.WithDetail("path", path)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, errors.ErrConfigLoad, "cannot read exclusion file %s", path).
			WithDetail("path", path)
	}

	logger.Debug().Str("path", path).Int("rules", len(s.rules)).Msg("loaded exclusion rules")
	return s, nil
}

func (s *Set) add(pattern string, line int) *errors.BundleError {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return errors.Wrapf(err, errors.ErrExcludePattern, "invalid exclusion pattern %q", pattern).
			WithDetail("line", line)
	}
	s.rules = append(s.rules, Rule{Pattern: pattern, Line: line, re: re})
	return nil
}

// Match returns the first rule found anywhere in path.
func (s *Set) Match(path string) (Rule, bool) {
	if s == nil {
		return Rule{}, false
	}
	for _, r := range s.rules {
		if r.re.MatchString(path) {
			return r, true
		}
	}
	return Rule{}, false
}

// Excluded reports whether any rule matches path.
func (s *Set) Excluded(path string) bool {
	_, ok := s.Match(path)
	return ok
}

// Len returns the number of rules.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Patterns returns the rule sources in load order.
func (s *Set) Patterns() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.Pattern
	}
	return out
}
