package stage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/arthur-debert/synthfs/pkg/synthfs"
	"github.com/arthur-debert/synthfs/pkg/synthfs/filesystem"

	"github.com/arthur-debert/depbundle/pkg/errors"
	"github.com/arthur-debert/depbundle/pkg/types"
)

// synthFS exposes a types.FS to synthfs operations. synthfs addresses
// entries by slash-separated names relative to its root, which here is "/".
type synthFS struct {
	fs types.FS
}

var _ filesystem.FullFileSystem = synthFS{}

func (f synthFS) path(name string) string {
	return filepath.Join("/", filepath.FromSlash(name))
}

func (f synthFS) Open(name string) (fs.File, error) {
	p := f.path(name)
	info, err := f.fs.Stat(p)
	if err != nil {
		return nil, err
	}
	rc, err := f.fs.Open(p)
	if err != nil {
		return nil, err
	}
	return &openFile{ReadCloser: rc, info: info}, nil
}

func (f synthFS) Stat(name string) (fs.FileInfo, error) {
	return f.fs.Stat(f.path(name))
}

// WriteFile writes through a temporary sibling and renames it into place,
// so the destination either holds the full content or does not exist.
func (f synthFS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	dst := f.path(name)
	tmp := filepath.Join(filepath.Dir(dst), fmt.Sprintf(".%s.partial", filepath.Base(dst)))

	out, err := f.fs.Create(tmp, perm.Perm())
	if err != nil {
		return err
	}
	if _, err := out.Write(data); err != nil {
		_ = out.Close()
		_ = f.fs.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = f.fs.Remove(tmp)
		return err
	}
	if err := f.fs.Rename(tmp, dst); err != nil {
		_ = f.fs.Remove(tmp)
		return err
	}
	return nil
}

func (f synthFS) MkdirAll(name string, perm fs.FileMode) error {
	return f.fs.MkdirAll(f.path(name), perm)
}

func (f synthFS) Remove(name string) error {
	return f.fs.Remove(f.path(name))
}

func (f synthFS) RemoveAll(name string) error {
	return f.fs.RemoveAll(f.path(name))
}

// Symlink keeps oldname as given: it is the link text, not an entry.
func (f synthFS) Symlink(oldname, newname string) error {
	return f.fs.Symlink(oldname, f.path(newname))
}

func (f synthFS) Readlink(name string) (string, error) {
	return f.fs.Readlink(f.path(name))
}

func (f synthFS) Rename(oldpath, newpath string) error {
	return f.fs.Rename(f.path(oldpath), f.path(newpath))
}

type openFile struct {
	io.ReadCloser
	info fs.FileInfo
}

func (o *openFile) Stat() (fs.FileInfo, error) {
	return o.info, nil
}

// relPath converts an absolute or working-directory relative path into the
// root-relative name synthfs expects.
func relPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrInvalidInput, "failed to normalize path: %s", path)
	}
	rel, err := filepath.Rel("/", abs)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrInvalidInput, "failed to convert path: %s", path)
	}
	return filepath.ToSlash(rel), nil
}

// apply runs one synthfs operation against the staging filesystem.
func (s *Stager) apply(op synthfs.Operation) error {
	result, err := synthfs.Run(context.Background(), s.sfs, op)
	if err != nil {
		return err
	}
	if result != nil && !result.IsSuccess() {
		return result.GetError()
	}
	return nil
}

func (s *Stager) createDir(dir string) error {
	rel, err := relPath(dir)
	if err != nil {
		return err
	}
	if err := s.apply(s.ops.CreateDir(rel, 0755)); err != nil {
		return errors.Wrapf(err, errors.ErrCopyFailed, "cannot create %s", dir)
	}
	return nil
}

func (s *Stager) createFile(dst string, data []byte, perm fs.FileMode) error {
	rel, err := relPath(dst)
	if err != nil {
		return err
	}
	if err := s.apply(s.ops.CreateFile(rel, data, perm)); err != nil {
		return errors.Wrapf(err, errors.ErrCopyFailed, "cannot write %s", dst)
	}
	return nil
}

func (s *Stager) copyEntry(src, dst string) error {
	relSrc, err := relPath(src)
	if err != nil {
		return err
	}
	relDst, err := relPath(dst)
	if err != nil {
		return err
	}
	if err := s.apply(s.ops.Copy(relSrc, relDst)); err != nil {
		return errors.Wrapf(err, errors.ErrCopyFailed, "cannot copy %s", src)
	}
	return nil
}

func (s *Stager) createSymlink(linkTarget, dst string) error {
	rel, err := relPath(dst)
	if err != nil {
		return err
	}
	if err := s.apply(s.ops.CreateSymlink(linkTarget, rel)); err != nil {
		return errors.Wrapf(err, errors.ErrCopyFailed, "cannot link %s", dst)
	}
	return nil
}
