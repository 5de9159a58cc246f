package sysquery

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/depbundle/pkg/buildexec"
	"github.com/arthur-debert/depbundle/pkg/errors"
	"github.com/arthur-debert/depbundle/pkg/testutil"
)

func fakeQmake(answers map[string]string, calls *[]string) buildexec.Runner {
	return buildexec.RunnerFunc(func(_ context.Context, cmd buildexec.Command) (buildexec.Output, error) {
		v := cmd.Args[len(cmd.Args)-1]
		*calls = append(*calls, v)
		a, ok := answers[v]
		if !ok {
			return buildexec.Output{}, stderrors.New("exit status 1")
		}
		return buildexec.Output{Stdout: a + "\n"}, nil
	})
}

func TestStatic(t *testing.T) {
	roots, err := Static{ModuleRoot: "/q", PluginRoot: "/p"}.Roots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Roots{ModuleRoot: "/q", PluginRoot: "/p"}, roots)
}

func TestQmake_Roots(t *testing.T) {
	var calls []string
	q := NewQmake("/usr/bin/qmake", fakeQmake(map[string]string{
		VarQml:     "/usr/lib/qt/qml",
		VarPlugins: "/usr/lib/qt/plugins",
	}, &calls), Roots{})

	roots, err := q.Roots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Roots{ModuleRoot: "/usr/lib/qt/qml", PluginRoot: "/usr/lib/qt/plugins"}, roots)
	assert.Equal(t, []string{VarQml, VarPlugins}, calls)
}

func TestQmake_FallbackSkipsQuery(t *testing.T) {
	var calls []string
	q := NewQmake("qmake", fakeQmake(map[string]string{VarPlugins: "/plugins"}, &calls), Roots{ModuleRoot: "/custom/qml"})

	roots, err := q.Roots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/custom/qml", roots.ModuleRoot)
	assert.Equal(t, []string{VarPlugins}, calls)
}

func TestQmake_Errors(t *testing.T) {
	var calls []string
	q := NewQmake("qmake", fakeQmake(map[string]string{VarQml: "**Unknown**"}, &calls), Roots{})

	_, err := q.Query(context.Background(), VarQml)
	assert.True(t, errors.IsErrorCode(err, errors.ErrSystemQuery))

	_, err = q.Query(context.Background(), VarPlugins)
	assert.True(t, errors.IsErrorCode(err, errors.ErrSystemQuery))

	_, err = NewQmake("", nil, Roots{}).Roots(context.Background())
	assert.True(t, errors.IsErrorCode(err, errors.ErrSystemQuery))
}

func TestDetectQmake(t *testing.T) {
	dir := testutil.TempDir(t)
	mk := testutil.CreateFile(t, dir, "Makefile", `# Generated by qmake
MAKEFILE      = Makefile
QMAKE_TARGET  = webcamoid
QMAKE         = /usr/lib/qt5/bin/qmake
COPY          = cp -f
`)

	got, err := DetectQmake(mk)
	require.NoError(t, err)
	assert.Equal(t, "/usr/lib/qt5/bin/qmake", got)

	got, err = DetectQmake(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, got)

	plain := testutil.CreateFile(t, dir, "plain.mk", "all:\n\techo hi\n")
	got, err = DetectQmake(plain)
	require.NoError(t, err)
	assert.Empty(t, got)
}
