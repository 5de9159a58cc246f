// Package stage copies files into the install root. Every operation is
// copy-if-absent: existing destinations are never overwritten, so a run
// interrupted half way can simply be repeated. Each touched entry yields a
// Result instead of failing the whole operation.
package stage

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/synthfs/pkg/synthfs"
	"github.com/rs/zerolog"

	"github.com/arthur-debert/depbundle/pkg/errors"
	"github.com/arthur-debert/depbundle/pkg/logging"
	"github.com/arthur-debert/depbundle/pkg/types"
)

// Status is the outcome of staging one entry.
type Status string

const (
	StatusCopied  Status = "copied"
	StatusLinked  Status = "linked"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Result records what happened to one destination entry.
type Result struct {
	Source string `json:"source" yaml:"source" toml:"source"`
	Dest   string `json:"dest" yaml:"dest" toml:"dest"`
	Status Status `json:"status" yaml:"status" toml:"status"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
	Err    error  `json:"-" yaml:"-" toml:"-"`
}

// Stager writes into a single install root.
type Stager struct {
	fs     types.FS
	sfs    synthFS
	ops    *synthfs.SynthFS
	root   string
	dryRun bool
	logger zerolog.Logger
}

// New creates a Stager confined to installRoot. With dryRun set, results
// are computed as usual but nothing is written.
func New(fsys types.FS, installRoot string, dryRun bool) *Stager {
	return &Stager{
		fs:     fsys,
		sfs:    synthFS{fs: fsys},
		ops:    synthfs.New(),
		root:   filepath.Clean(installRoot),
		dryRun: dryRun,
		logger: logging.GetLogger("stage"),
	}
}

// Root returns the install root.
func (s *Stager) Root() string {
	return s.root
}

// DryRun reports whether writes are suppressed.
func (s *Stager) DryRun() bool {
	return s.dryRun
}

// CopyFile stages src into dstDir under its base name. When src is a
// symlink, the file it resolves to is copied under its own base name and
// the link name becomes a relative "./<real name>" symlink next to it, so
// several versioned names share one physical copy.
func (s *Stager) CopyFile(src, dstDir string) []Result {
	base := filepath.Base(src)
	dst := filepath.Join(dstDir, base)

	if err := s.confine(dst); err != nil {
		return []Result{s.failed(src, dst, err)}
	}

	info, err := s.fs.Lstat(src)
	if err != nil {
		return []Result{s.failed(src, dst, errors.Wrapf(err, errors.ErrNotFound, "cannot stat %s", src))}
	}

	if info.Mode()&os.ModeSymlink == 0 {
		return []Result{s.copyRegular(src, dst)}
	}

	real, err := s.fs.EvalSymlinks(src)
	if err != nil {
		return []Result{s.failed(src, dst, errors.Wrapf(err, errors.ErrNotFound, "cannot resolve symlink %s", src))}
	}
	realBase := filepath.Base(real)
	realDst := filepath.Join(dstDir, realBase)

	results := []Result{s.copyRegular(real, realDst)}
	if realBase != base {
		results = append(results, s.link("./"+realBase, src, dst))
	}
	return results
}

// CopyTree mirrors src into dst. Directories are created, symlinks are
// recreated with their original target text and regular files are copied
// when absent.
func (s *Stager) CopyTree(src, dst string) []Result {
	if err := s.confine(dst); err != nil {
		return []Result{s.failed(src, dst, err)}
	}

	walkRoot := src
	if real, err := s.fs.EvalSymlinks(src); err == nil {
		walkRoot = real
	}

	var results []Result
	err := s.fs.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		rel, relErr := filepath.Rel(walkRoot, path)
		if relErr != nil {
			return relErr
		}
		target := filepath.Join(dst, rel)

		if err != nil {
			results = append(results, s.failed(path, target, errors.Wrapf(err, errors.ErrCopyFailed, "cannot read %s", path)))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		switch {
		case d.IsDir():
			if !s.dryRun {
				if err := s.createDir(target); err != nil {
					results = append(results, s.failed(path, target, err))
					return fs.SkipDir
				}
			}
		case d.Type()&fs.ModeSymlink != 0:
			linkTarget, err := s.fs.Readlink(path)
			if err != nil {
				results = append(results, s.failed(path, target, errors.Wrapf(err, errors.ErrCopyFailed, "cannot read link %s", path)))
				return nil
			}
			results = append(results, s.link(linkTarget, path, target))
		case d.Type().IsRegular():
			results = append(results, s.copyRegular(path, target))
		default:
			s.logger.Debug().Str("path", path).Msg("skipping special file")
		}
		return nil
	})
	if err != nil {
		results = append(results, s.failed(src, dst, errors.Wrapf(err, errors.ErrCopyFailed, "cannot walk %s", src)))
	}
	return results
}

// WriteFile stages generated content at dst when dst is absent.
func (s *Stager) WriteFile(dst string, data []byte, perm fs.FileMode) Result {
	if err := s.confine(dst); err != nil {
		return s.failed("", dst, err)
	}
	if s.exists(dst) {
		return s.skipped("", dst)
	}
	if !s.dryRun {
		if err := s.createFile(dst, data, perm); err != nil {
			return s.failed("", dst, err)
		}
	}
	s.logger.Info().Str("dest", dst).Msg("written")
	return Result{Dest: dst, Status: StatusCopied}
}

func (s *Stager) copyRegular(src, dst string) Result {
	if err := s.confine(dst); err != nil {
		return s.failed(src, dst, err)
	}
	if s.exists(dst) {
		return s.skipped(src, dst)
	}

	if _, err := s.fs.Stat(src); err != nil {
		return s.failed(src, dst, errors.Wrapf(err, errors.ErrNotFound, "cannot stat %s", src))
	}

	if !s.dryRun {
		if err := s.copyEntry(src, dst); err != nil {
			return s.failed(src, dst, err)
		}
	}

	s.logger.Info().Msgf("%s -> %s", src, dst)
	return Result{Source: src, Dest: dst, Status: StatusCopied}
}

func (s *Stager) link(linkTarget, src, dst string) Result {
	if err := s.confine(dst); err != nil {
		return s.failed(src, dst, err)
	}
	if s.exists(dst) {
		return s.skipped(src, dst)
	}
	if !s.dryRun {
		if err := s.createSymlink(linkTarget, dst); err != nil {
			return s.failed(src, dst, err)
		}
	}
	s.logger.Info().Msgf("%s -> %s", dst, linkTarget)
	return Result{Source: src, Dest: dst, Status: StatusLinked}
}

// exists uses Lstat so a dangling link still counts as present.
func (s *Stager) exists(path string) bool {
	_, err := s.fs.Lstat(path)
	return err == nil
}

func (s *Stager) skipped(src, dst string) Result {
	s.logger.Debug().Str("dest", dst).Msg("already present")
	return Result{Source: src, Dest: dst, Status: StatusSkipped}
}

func (s *Stager) failed(src, dst string, err error) Result {
	s.logger.Warn().Err(err).Str("source", src).Str("dest", dst).Msg("staging failed")
	return Result{Source: src, Dest: dst, Status: StatusFailed, Error: err.Error(), Err: err}
}

func (s *Stager) confine(dst string) error {
	abs, err := filepath.Abs(dst)
	if err != nil {
		return errors.Wrapf(err, errors.ErrInvalidInput, "failed to normalize path: %s", dst)
	}
	root, err := filepath.Abs(s.root)
	if err != nil {
		return errors.Wrapf(err, errors.ErrInvalidInput, "failed to normalize path: %s", s.root)
	}
	if !isPathWithin(abs, root) {
		return errors.Newf(errors.ErrOutsideInstallRoot, "destination is outside the install root: %s", dst).
			WithDetail("root", s.root)
	}
	return nil
}

// isPathWithin checks if a path is within a parent directory
func isPathWithin(path, parent string) bool {
	rel, err := filepath.Rel(filepath.Clean(parent), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
