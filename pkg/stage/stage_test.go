// TEST TYPE: Integration Test
// DEPENDENCIES: real filesystem via t.TempDir
// PURPOSE: Verify copy-if-absent staging, symlink materialization and confinement

package stage

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/depbundle/pkg/errors"
	"github.com/arthur-debert/depbundle/pkg/filesystem"
	"github.com/arthur-debert/depbundle/pkg/testutil"
	"github.com/arthur-debert/depbundle/pkg/types"
)

func newStager(t *testing.T, dryRun bool) (*Stager, string, string) {
	t.Helper()
	root := testutil.TempDir(t)
	src := filepath.Join(root, "system")
	install := filepath.Join(root, "install")
	return New(filesystem.NewOS(), install, dryRun), src, install
}

func TestCopyFile_Regular(t *testing.T) {
	s, src, install := newStager(t, false)
	lib := testutil.CreateFileBytes(t, src, "libfoo.so", []byte("ELF"), 0755)
	dstDir := filepath.Join(install, "usr/lib")

	results := s.CopyFile(lib, dstDir)
	require.Len(t, results, 1)
	assert.Equal(t, StatusCopied, results[0].Status)
	assert.Equal(t, filepath.Join(dstDir, "libfoo.so"), results[0].Dest)
	testutil.AssertFileContent(t, filepath.Join(dstDir, "libfoo.so"), "ELF")

	info, err := os.Stat(filepath.Join(dstDir, "libfoo.so"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())

	// no partial file left behind
	testutil.AssertNoFile(t, filepath.Join(dstDir, ".libfoo.so.partial"))
}

func TestCopyFile_NeverOverwrites(t *testing.T) {
	s, src, install := newStager(t, false)
	lib := testutil.CreateFile(t, src, "libfoo.so", "new")
	dstDir := filepath.Join(install, "usr/lib")
	testutil.CreateFile(t, dstDir, "libfoo.so", "old")

	results := s.CopyFile(lib, dstDir)
	require.Len(t, results, 1)
	assert.Equal(t, StatusSkipped, results[0].Status)
	testutil.AssertFileContent(t, filepath.Join(dstDir, "libfoo.so"), "old")
}

func TestCopyFile_SymlinkMaterialization(t *testing.T) {
	s, src, install := newStager(t, false)
	testutil.CreateFile(t, src, "libfoo.so.1.2.3", "real")
	testutil.CreateSymlink(t, "libfoo.so.1.2.3", filepath.Join(src, "libfoo.so.1"))
	testutil.CreateSymlink(t, "libfoo.so.1", filepath.Join(src, "libfoo.so"))
	dstDir := filepath.Join(install, "usr/lib")

	first := s.CopyFile(filepath.Join(src, "libfoo.so.1"), dstDir)
	require.Len(t, first, 2)
	assert.Equal(t, StatusCopied, first[0].Status)
	assert.Equal(t, StatusLinked, first[1].Status)

	second := s.CopyFile(filepath.Join(src, "libfoo.so"), dstDir)
	require.Len(t, second, 2)
	assert.Equal(t, StatusSkipped, second[0].Status, "real file already staged")
	assert.Equal(t, StatusLinked, second[1].Status)

	testutil.AssertFileContent(t, filepath.Join(dstDir, "libfoo.so.1.2.3"), "real")
	testutil.AssertSymlink(t, filepath.Join(dstDir, "libfoo.so.1"), "./libfoo.so.1.2.3")
	testutil.AssertSymlink(t, filepath.Join(dstDir, "libfoo.so"), "./libfoo.so.1.2.3")
	assert.Equal(t, []string{"libfoo.so", "libfoo.so.1", "libfoo.so.1.2.3"}, testutil.ListTree(t, dstDir))
}

func TestCopyFile_MissingSource(t *testing.T) {
	s, src, install := newStager(t, false)

	results := s.CopyFile(filepath.Join(src, "libnope.so"), filepath.Join(install, "usr/lib"))
	require.Len(t, results, 1)
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.NotEmpty(t, results[0].Error)
	assert.True(t, errors.IsErrorCode(results[0].Err, errors.ErrNotFound))
}

func TestCopyFile_OutsideInstallRoot(t *testing.T) {
	s, src, install := newStager(t, false)
	lib := testutil.CreateFile(t, src, "libfoo.so", "x")

	results := s.CopyFile(lib, filepath.Join(install, "..", "escape"))
	require.Len(t, results, 1)
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.True(t, errors.IsErrorCode(results[0].Err, errors.ErrOutsideInstallRoot))
	testutil.AssertNoFile(t, filepath.Join(install, "..", "escape", "libfoo.so"))
}

func TestCopyFile_DryRun(t *testing.T) {
	s, src, install := newStager(t, true)
	lib := testutil.CreateFile(t, src, "libfoo.so", "x")

	results := s.CopyFile(lib, filepath.Join(install, "usr/lib"))
	require.Len(t, results, 1)
	assert.Equal(t, StatusCopied, results[0].Status)
	assert.True(t, s.DryRun())
	testutil.AssertNoFile(t, install)
}

func TestCopyTree(t *testing.T) {
	s, src, install := newStager(t, false)
	module := filepath.Join(src, "QtQuick.2")
	testutil.CreateFile(t, module, "qmldir", "module QtQuick\nplugin qtquick2plugin\n")
	testutil.CreateFile(t, module, "libqtquick2plugin.so", "plugin")
	testutil.CreateFile(t, module, "Controls/qmldir", "module QtQuick.Controls\n")
	testutil.CreateSymlink(t, "qmldir", filepath.Join(module, "qmldir.link"))
	dst := filepath.Join(install, "usr/lib/qt/qml/QtQuick.2")
	testutil.CreateFile(t, dst, "qmldir", "pre-existing")

	results := s.CopyTree(module, dst)
	sum := Summarize(results)
	assert.Equal(t, Summary{Copied: 2, Linked: 1, Skipped: 1}, sum)
	assert.False(t, HasFailures(results))

	testutil.AssertFileContent(t, filepath.Join(dst, "qmldir"), "pre-existing")
	testutil.AssertFileContent(t, filepath.Join(dst, "Controls/qmldir"), "module QtQuick.Controls\n")
	testutil.AssertSymlink(t, filepath.Join(dst, "qmldir.link"), "qmldir")

	again := Summarize(s.CopyTree(module, dst))
	assert.Equal(t, Summary{Skipped: 4}, again)
}

func TestCopyTree_SymlinkedRoot(t *testing.T) {
	s, src, install := newStager(t, false)
	testutil.CreateFile(t, src, "real/imageformats/libqjpeg.so", "jpeg")
	testutil.CreateSymlink(t, filepath.Join(src, "real/imageformats"), filepath.Join(src, "plugins/imageformats"))
	dst := filepath.Join(install, "plugins/imageformats")

	results := s.CopyTree(filepath.Join(src, "plugins/imageformats"), dst)
	assert.Equal(t, 1, Summarize(results).Copied)
	testutil.AssertFileContent(t, filepath.Join(dst, "libqjpeg.so"), "jpeg")
}

func TestCopyTree_MissingSource(t *testing.T) {
	s, src, install := newStager(t, false)

	results := s.CopyTree(filepath.Join(src, "nope"), filepath.Join(install, "x"))
	require.Len(t, results, 1)
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.Len(t, Failures(results), 1)
}

func TestWriteFile(t *testing.T) {
	s, _, install := newStager(t, false)
	dst := filepath.Join(install, "usr/bin/qt.conf")

	r := s.WriteFile(dst, []byte("[Paths]\n"), 0644)
	assert.Equal(t, StatusCopied, r.Status)
	testutil.AssertFileContent(t, dst, "[Paths]\n")

	r = s.WriteFile(dst, []byte("other"), 0644)
	assert.Equal(t, StatusSkipped, r.Status)
	testutil.AssertFileContent(t, dst, "[Paths]\n")
}

func TestIsPathWithin(t *testing.T) {
	tests := []struct {
		path, parent string
		want         bool
	}{
		{"/a/b/c", "/a/b", true},
		{"/a/b", "/a/b", true},
		{"/a/bc", "/a/b", false},
		{"/a", "/a/b", false},
		{"/a/b/../../x", "/a/b", false},
		{"/a/b/..data", "/a/b", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isPathWithin(tt.path, tt.parent), "%s in %s", tt.path, tt.parent)
	}
}

// recordingFS notes the walks and file creations that reach it.
type recordingFS struct {
	types.FS
	mu      sync.Mutex
	walked  []string
	created []string
}

func (r *recordingFS) WalkDir(root string, fn fs.WalkDirFunc) error {
	r.mu.Lock()
	r.walked = append(r.walked, root)
	r.mu.Unlock()
	return r.FS.WalkDir(root, fn)
}

func (r *recordingFS) Create(name string, perm fs.FileMode) (io.WriteCloser, error) {
	r.mu.Lock()
	r.created = append(r.created, name)
	r.mu.Unlock()
	return r.FS.Create(name, perm)
}

func TestCopyTree_UsesInjectedFS(t *testing.T) {
	root := testutil.TempDir(t)
	module := filepath.Join(root, "system", "QtQml.2")
	testutil.CreateFile(t, module, "qmldir", "module QtQml\n")
	install := filepath.Join(root, "install")
	dst := filepath.Join(install, "qml", "QtQml.2")

	rec := &recordingFS{FS: filesystem.NewOS()}
	s := New(rec, install, false)

	results := s.CopyTree(module, dst)
	assert.Equal(t, Summary{Copied: 1}, Summarize(results))
	testutil.AssertFileContent(t, filepath.Join(dst, "qmldir"), "module QtQml\n")

	real, err := filepath.EvalSymlinks(module)
	require.NoError(t, err)
	assert.Equal(t, []string{real}, rec.walked)
	require.Len(t, rec.created, 1)
	assert.Equal(t, filepath.Join(dst, ".qmldir.partial"), rec.created[0])
}

func TestWriteFile_ThroughSynthFS(t *testing.T) {
	rec := &recordingFS{FS: filesystem.NewOS()}
	root := testutil.TempDir(t)
	install := filepath.Join(root, "install")
	s := New(rec, install, false)
	dst := filepath.Join(install, "usr/bin/qt.conf")

	r := s.WriteFile(dst, []byte("[Paths]\n"), 0600)
	require.Equal(t, StatusCopied, r.Status, r.Error)
	assert.Equal(t, []string{filepath.Join(install, "usr/bin/.qt.conf.partial")}, rec.created)
	testutil.AssertNoFile(t, filepath.Join(install, "usr/bin/.qt.conf.partial"))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSynthFS_Names(t *testing.T) {
	dir := testutil.TempDir(t)
	sfs := synthFS{fs: filesystem.NewOS()}
	rel, err := relPath(filepath.Join(dir, "lib", "libfoo.so.1"))
	require.NoError(t, err)
	assert.False(t, filepath.IsAbs(rel))

	require.NoError(t, sfs.MkdirAll(filepath.ToSlash(filepath.Dir(rel)), 0755))
	require.NoError(t, sfs.WriteFile(rel, []byte("ELF"), 0644))
	testutil.AssertFileContent(t, filepath.Join(dir, "lib", "libfoo.so.1"), "ELF")

	link, err := relPath(filepath.Join(dir, "lib", "libfoo.so"))
	require.NoError(t, err)
	require.NoError(t, sfs.Symlink("./libfoo.so.1", link))
	got, err := sfs.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, "./libfoo.so.1", got)

	f, err := sfs.Open(rel)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Size())

	require.NoError(t, sfs.RemoveAll(filepath.ToSlash(filepath.Dir(rel))))
	testutil.AssertNoFile(t, filepath.Join(dir, "lib"))
}
