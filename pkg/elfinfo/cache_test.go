package elfinfo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/depbundle/pkg/testutil"
)

type countingIntrospector struct {
	calls map[string]int
}

func (c *countingIntrospector) Introspect(path string) (*Descriptor, error) {
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[path]++
	return Introspect(path)
}

func TestCachedIntrospector_ReusesDescriptor(t *testing.T) {
	dir := testutil.TempDir(t)
	path := testutil.WriteELF(t, dir, "libfoo.so", testutil.Amd64("libc.so.6"))

	counter := &countingIntrospector{}
	cached, err := NewCachedIntrospector(counter, 8)
	require.NoError(t, err)

	first, err := cached.Introspect(path)
	require.NoError(t, err)
	second, err := cached.Introspect(path)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, counter.calls[path])

	hits, misses := cached.Stats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
	assert.Equal(t, 1, cached.Len())
}

func TestCachedIntrospector_InvalidatesOnChange(t *testing.T) {
	dir := testutil.TempDir(t)
	path := testutil.WriteELF(t, dir, "libfoo.so", testutil.Amd64("libc.so.6"))

	counter := &countingIntrospector{}
	cached, err := NewCachedIntrospector(counter, 8)
	require.NoError(t, err)

	first, err := cached.Introspect(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"libc.so.6"}, first.Imports)

	testutil.WriteELFPath(t, path, testutil.Amd64("libc.so.6", "libdl.so.2"))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	second, err := cached.Introspect(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"libc.so.6", "libdl.so.2"}, second.Imports)
	assert.Equal(t, 2, counter.calls[path])

	// the first descriptor was not touched
	assert.Equal(t, []string{"libc.so.6"}, first.Imports)
}

func TestCachedIntrospector_CachesNegativeResults(t *testing.T) {
	dir := testutil.TempDir(t)
	path := testutil.CreateFile(t, dir, "README", "not a binary")

	counter := &countingIntrospector{}
	cached, err := NewCachedIntrospector(counter, 0)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := cached.Introspect(path)
		assert.ErrorIs(t, err, ErrNotELF)
	}
	assert.Equal(t, 1, counter.calls[path])

	_, err = cached.Introspect(filepath.Join(dir, "gone.so"))
	assert.Error(t, err)
}

func TestFindBinaries(t *testing.T) {
	dir := testutil.TempDir(t)
	app := testutil.WriteELF(t, dir, "bin/app", testutil.Amd64("libfoo.so"))
	lib := testutil.WriteELF(t, dir, "lib/libfoo.so.1.0", testutil.Amd64())
	testutil.CreateSymlink(t, "libfoo.so.1.0", filepath.Join(dir, "lib", "libfoo.so.1"))
	testutil.CreateFile(t, dir, "share/app/main.qml", "import QtQuick 2.0\n")
	testutil.CreateFile(t, dir, "bin/launcher.sh", "#!/bin/sh\n")

	got, err := FindBinaries(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{app, lib}, got)

	none, err := FindBinaries(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, none)
}
