package depbundle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/depbundle/pkg/errors"
	"github.com/arthur-debert/depbundle/pkg/locator"
	"github.com/arthur-debert/depbundle/pkg/report"
	"github.com/arthur-debert/depbundle/pkg/testutil"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// project writes a program root whose configuration needs neither qmake
// nor the host linker configuration.
func project(t *testing.T) (root, libDir string) {
	t.Helper()
	root = testutil.TempDir(t)
	sys := testutil.TempDir(t)
	libDir = testutil.CreateDir(t, sys, "lib")
	qml := testutil.CreateDir(t, sys, "qml")
	plugins := testutil.CreateDir(t, sys, "plugins")
	ldConf := testutil.CreateFile(t, sys, "ld.so.conf", "")

	testutil.WriteELF(t, libDir, "libfoo.so.1", testutil.Amd64())
	testutil.CreateFile(t, qml, "QtQuick.2/qmldir", "module QtQuick\n")
	testutil.CreateFile(t, root, "qml/main.qml", "import QtQuick 2.0\n")

	testutil.CreateFile(t, root, "depbundle.toml", fmt.Sprintf(`
install_dir = "stage"
scan_paths = ["qml"]

[system]
ld_conf = %q
fallback_dirs = [%q]
library_path = []
module_root = %q
plugin_root = %q

[build]
enabled = false

[finish]
commands = []
`, ldConf, libDir, qml, plugins))
	return root, libDir
}

func TestRootCmd_Structure(t *testing.T) {
	cmd := NewRootCmd()

	groups := map[string]string{}
	for _, c := range cmd.Commands() {
		groups[c.Name()] = c.GroupID
	}
	assert.Equal(t, "core", groups["deploy"])
	for _, name := range []string{"inspect", "resolve", "modules"} {
		assert.Equal(t, "query", groups[name], name)
	}
	for _, name := range []string{"genconfig", "topics", "version", "completion", "man"} {
		assert.Equal(t, "misc", groups[name], name)
	}

	for _, flag := range []string{"verbose", "config", "root", "format"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestRootCmd_NoCommand(t *testing.T) {
	out, err := execute(t)
	require.Error(t, err)
	assert.Equal(t, MsgErrNoCommand, err.Error())
	assert.Contains(t, out, "deploy")
}

func TestDeployCmd_DryRun(t *testing.T) {
	root, _ := project(t)
	reportPath := filepath.Join(root, "out", "report.yaml")

	out, err := execute(t, "--root", root, "--format", "json",
		"deploy", "--dry-run", "--report", reportPath)
	require.NoError(t, err)

	var rep report.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.True(t, rep.DryRun)
	assert.Equal(t, filepath.Join(root, "stage"), rep.InstallDir)
	assert.Equal(t, []string{"QtQuick.2"}, baseNames(rep.Modules.Copied))

	testutil.AssertNoFile(t, filepath.Join(root, "stage"))
	saved := testutil.ReadFile(t, reportPath)
	assert.Contains(t, saved, "dry_run: true")
}

func TestDeployCmd_Copies(t *testing.T) {
	root, _ := project(t)

	_, err := execute(t, "--root", root, "--format", "text", "deploy")
	require.NoError(t, err)

	assert.True(t, testutil.FileExists(t, filepath.Join(root, "stage/usr/lib/qt/qml/QtQuick.2/qmldir")))
	assert.True(t, testutil.FileExists(t, filepath.Join(root, "stage/usr/bin/qt.conf")))
}

func TestDeployCmd_BadConfig(t *testing.T) {
	root := testutil.TempDir(t)
	testutil.CreateFile(t, root, "depbundle.toml", "install_dir = [")

	_, err := execute(t, "--root", root, "deploy", "--dry-run")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrConfigParse))
}

func TestDeployCmd_BadReportFormat(t *testing.T) {
	root, _ := project(t)

	_, err := execute(t, "--root", root, "deploy", "--dry-run", "--report-format", "csv")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrConfigInvalid))
}

func TestInspectCmd(t *testing.T) {
	dir := testutil.TempDir(t)
	app := testutil.WriteELF(t, dir, "app", testutil.Amd64("libfoo.so.1", "libc.so.6"))
	text := testutil.CreateFile(t, dir, "notes.txt", "not a binary")

	out, err := execute(t, "--format", "json", "inspect", app, text)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))

	var res InspectResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Binaries, 1)
	assert.Equal(t, []string{"libc.so.6", "libfoo.so.1"}, res.Binaries[0].Imports)
	assert.Equal(t, "EM_X86_64", res.Binaries[0].Machine)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, text, res.Errors[0].Path)
}

func TestInspectCmd_Text(t *testing.T) {
	dir := testutil.TempDir(t)
	app := testutil.WriteELF(t, dir, "app", testutil.Amd64("libfoo.so.1"))

	out, err := execute(t, "--format", "text", "inspect", app)
	require.NoError(t, err)
	assert.Contains(t, out, app+" imports:")
	assert.Contains(t, out, "    libfoo.so.1")
}

func TestResolveCmd(t *testing.T) {
	root, libDir := project(t)
	bin := testutil.TempDir(t)
	app := testutil.WriteELF(t, bin, "app", testutil.Amd64("libfoo.so.1", "libmissing.so.2"))

	out, err := execute(t, "--root", root, "--format", "json", "resolve", app)
	require.NoError(t, err)

	var res ResolveResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Binaries, 1)
	assert.Equal(t, []locator.Match{{
		Name:   "libfoo.so.1",
		Path:   filepath.Join(libDir, "libfoo.so.1"),
		Source: locator.SourceSystem,
	}}, res.Binaries[0].Found)
	assert.Equal(t, []string{"libmissing.so.2"}, res.Binaries[0].Missing)
}

func TestResolveCmd_Closure(t *testing.T) {
	root, libDir := project(t)
	testutil.WriteELF(t, libDir, "libbar.so.3", testutil.Amd64("libfoo.so.1"))
	bin := testutil.TempDir(t)
	app := testutil.WriteELF(t, bin, "app", testutil.Amd64("libbar.so.3"))

	out, err := execute(t, "--root", root, "--format", "json", "resolve", "--closure", app)
	require.NoError(t, err)

	var res ResolveResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotNil(t, res.Closure)
	assert.Equal(t, []string{
		filepath.Join(libDir, "libbar.so.3"),
		filepath.Join(libDir, "libfoo.so.1"),
	}, res.Closure.Libraries)
	testutil.AssertNoFile(t, filepath.Join(root, "stage"))
}

func TestModulesCmd(t *testing.T) {
	dir := testutil.TempDir(t)
	testutil.CreateFile(t, dir, "main.qml", "import QtQuick 2.0\nimport QtQuick.Controls 2.15\nimport \"local\"\n")
	testutil.CreateFile(t, dir, "sub/qmldir", "module Sub\ndepends QtQml 2.0\n")
	testutil.CreateFile(t, dir, "README", "import Nothing 1.0\n")

	out, err := execute(t, "--format", "json", "modules", dir)
	require.NoError(t, err)

	var res ModulesResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 2, res.Files)
	var paths []string
	for _, imp := range res.Imports {
		paths = append(paths, imp.Ref.Path)
	}
	assert.ElementsMatch(t, []string{"QtQuick.2", "QtQuick/Controls.2", "QtQml.2"}, paths)
}

func TestGenConfigCmd(t *testing.T) {
	out, err := execute(t, "genconfig")
	require.NoError(t, err)
	assert.Contains(t, out, `# install_dir = "ports/deploy/temp_priv/root"`)
	assert.Contains(t, out, "[system]")
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "depbundle dev"))
}

func TestTopicsCmd(t *testing.T) {
	out, err := execute(t, "topics")
	require.NoError(t, err)
	assert.Contains(t, out, "search-order")
	assert.Contains(t, out, "depbundle help <topic>")
}

func TestCompletionCmd(t *testing.T) {
	out, err := execute(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "depbundle")

	_, err = execute(t, "completion", "tcsh")
	assert.Error(t, err)
}

func TestManHeader(t *testing.T) {
	h := ManHeader()
	assert.Equal(t, "DEPBUNDLE", h.Title)
	assert.Equal(t, "1", h.Section)
}

func TestCommands_HaveShortHelp(t *testing.T) {
	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		assert.NotEmpty(t, c.Short, c.CommandPath())
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(NewRootCmd())
}

func baseNames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}
