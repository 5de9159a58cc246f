// TEST TYPE: Unit Test
// DEPENDENCIES: real filesystem, process environment
// PURPOSE: Verify configuration layering, env mapping and validation

package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/depbundle/pkg/errors"
	"github.com/arthur-debert/depbundle/pkg/testutil"
)

func TestLoad_Defaults(t *testing.T) {
	root := testutil.TempDir(t)
	t.Setenv("LD_LIBRARY_PATH", "/opt/a::/opt/b")

	cfg, err := Load(LoadOptions{RootDir: root})
	require.NoError(t, err)

	assert.Equal(t, root, cfg.RootDir)
	assert.Equal(t, filepath.Join(root, "ports/deploy/temp_priv/root"), cfg.InstallPath())
	assert.Equal(t, "usr/lib", cfg.Layout.LibDir)
	assert.Equal(t, "usr/lib/qt/plugins", cfg.Layout.PluginDir)
	assert.Equal(t, "usr/lib/qt/qml", cfg.Layout.ModuleDir)
	assert.Equal(t, "/etc/ld.so.conf", cfg.System.LdConf)
	assert.Equal(t, []string{"/usr/lib", "/lib"}, cfg.System.FallbackDirs)
	assert.Equal(t, []string{"/opt/a", "/opt/b"}, cfg.System.LibraryPath)
	assert.Equal(t, 4096, cfg.Cache.Descriptors)
	assert.True(t, cfg.Build.Enabled)
	assert.Equal(t, []string{"make", "INSTALL_ROOT={install}", "install"}, cfg.Build.Command)
	assert.Equal(t, "json", cfg.Report.Format)
	assert.Equal(t, filepath.Join(root, "ports/deploy/exclude.posix."+runtime.GOOS+".txt"), cfg.ExcludePath())
}

func TestLoad_Layering(t *testing.T) {
	root := testutil.TempDir(t)
	testutil.CreateFile(t, root, "depbundle.toml", `
install_dir = "stage"
scan_paths = ["StandAlone/share/qml", "libAvKys/Plugins"]

[system]
module_root = "/usr/lib/qt/qml"
library_path = ["/from/file"]

[plugins.table]
Qt5Foo = ["foo"]

[report]
format = "yaml"
`)
	extra := testutil.CreateFile(t, root, "ci.toml", `
[report]
format = "toml"
path = "report.toml"
`)
	t.Setenv("DEPBUNDLE_SYSTEM_LD_CONF", "/custom/ld.so.conf")
	t.Setenv("DEPBUNDLE_LAYOUT_LIB_DIR", "lib")
	t.Setenv("DEPBUNDLE_CACHE_DESCRIPTORS", "16")
	t.Setenv("DEPBUNDLE_SYSTEM_FALLBACK_DIRS", "/a,/b")

	cfg, err := Load(LoadOptions{
		RootDir:    root,
		ConfigFile: extra,
		Overrides:  map[string]interface{}{"build.enabled": false},
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "stage"), cfg.InstallPath())
	assert.Equal(t, []string{
		filepath.Join(root, "StandAlone/share/qml"),
		filepath.Join(root, "libAvKys/Plugins"),
	}, cfg.ScanRoots())
	assert.Equal(t, "/usr/lib/qt/qml", cfg.System.ModuleRoot)
	assert.Equal(t, []string{"/from/file"}, cfg.System.LibraryPath)
	assert.Equal(t, "toml", cfg.Report.Format)
	assert.Equal(t, filepath.Join(root, "report.toml"), cfg.Resolve(cfg.Report.Path))
	assert.Equal(t, "/custom/ld.so.conf", cfg.System.LdConf)
	assert.Equal(t, "lib", cfg.Layout.LibDir)
	assert.Equal(t, 16, cfg.Cache.Descriptors)
	assert.Equal(t, []string{"/a", "/b"}, cfg.System.FallbackDirs)
	assert.False(t, cfg.Build.Enabled)

	table, err := cfg.PluginTable()
	require.NoError(t, err)
	assert.Equal(t, []string{"foo"}, categories(table.Categories("Qt5Foo")))
	assert.True(t, table.Has("Qt5Gui"))
}

func TestLoad_HiddenProjectFile(t *testing.T) {
	root := testutil.TempDir(t)
	testutil.CreateFile(t, root, ".depbundle.toml", "install_dir = \"hidden\"\n")

	cfg, err := Load(LoadOptions{RootDir: root})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "hidden"), cfg.InstallPath())
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing_config_file", func(t *testing.T) {
		root := testutil.TempDir(t)
		_, err := Load(LoadOptions{RootDir: root, ConfigFile: filepath.Join(root, "nope.toml")})
		assert.True(t, errors.IsErrorCode(err, errors.ErrConfigLoad))
	})

	t.Run("unparsable_project_file", func(t *testing.T) {
		root := testutil.TempDir(t)
		testutil.CreateFile(t, root, "depbundle.toml", "install_dir = [\n")
		_, err := Load(LoadOptions{RootDir: root})
		assert.True(t, errors.IsErrorCode(err, errors.ErrConfigParse))
	})

	t.Run("invalid_report_format", func(t *testing.T) {
		root := testutil.TempDir(t)
		_, err := Load(LoadOptions{RootDir: root, Overrides: map[string]interface{}{"report.format": "csv"}})
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrConfigInvalid))
		assert.Equal(t, "report.format", errors.GetErrorDetails(err)["key"])
	})

	t.Run("invalid_plugin_table", func(t *testing.T) {
		root := testutil.TempDir(t)
		testutil.CreateFile(t, root, "depbundle.toml", "[plugins.table]\nlibQt5Foo = [\"foo\"]\n")
		_, err := Load(LoadOptions{RootDir: root})
		assert.True(t, errors.IsErrorCode(err, errors.ErrConfigInvalid))
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			RootDir:    "/src",
			InstallDir: "stage",
			Layout:     Layout{BinDir: "usr/bin", LibDir: "usr/lib", PluginDir: "usr/plugins", ModuleDir: "usr/qml"},
			Build:      Build{Enabled: true, Command: []string{"make"}},
			Report:     Report{Format: "json"},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		key    string
	}{
		{"empty install dir", func(c *Config) { c.InstallDir = "" }, "install_dir"},
		{"install dir is root", func(c *Config) { c.InstallDir = "." }, "install_dir"},
		{"absolute lib dir", func(c *Config) { c.Layout.LibDir = "/usr/lib" }, "layout.lib_dir"},
		{"escaping module dir", func(c *Config) { c.Layout.ModuleDir = "../qml" }, "layout.module_dir"},
		{"negative cache", func(c *Config) { c.Cache.Descriptors = -1 }, "cache.descriptors"},
		{"empty build command", func(c *Config) { c.Build.Command = nil }, "build.command"},
		{"empty finish command", func(c *Config) { c.Finish.Commands = [][]string{{}} }, "finish.commands"},
		{"bad plugin category", func(c *Config) { c.Plugins.Table = map[string][]string{"Qt5Foo": {"a/b"}} }, "plugins.table"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Equal(t, tt.key, errors.GetErrorDetails(err)["key"])
		})
	}
}

func TestPluginTable_ReplaceDefaults(t *testing.T) {
	c := &Config{Plugins: Plugins{ReplaceDefaults: true, Table: map[string][]string{"Qt6Gui": {"platforms"}}}}
	table, err := c.PluginTable()
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.False(t, table.Has("Qt5Gui"))
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "system.ld_conf", envKey("DEPBUNDLE_SYSTEM_LD_CONF"))
	assert.Equal(t, "layout.plugin_dir", envKey("DEPBUNDLE_LAYOUT_PLUGIN_DIR"))
	assert.Equal(t, "install_dir", envKey("DEPBUNDLE_INSTALL_DIR"))
	assert.Equal(t, "report.format", envKey("DEPBUNDLE_REPORT_FORMAT"))
}

func TestSplitPathList(t *testing.T) {
	assert.Equal(t, []string{"/a", "/b"}, SplitPathList("/a: :/b:"))
	assert.Nil(t, SplitPathList(""))
}

func TestGenerateConfigContent(t *testing.T) {
	content := GenerateConfigContent()
	assert.Contains(t, content, "# install_dir = \"ports/deploy/temp_priv/root\"")
	assert.Contains(t, content, "\n[system]\n")
	assert.NotContains(t, content, "\nroot_dir =")

	// the generated file loads to the defaults
	root := testutil.TempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "depbundle.toml"), []byte(content), 0644))
	_, err := Load(LoadOptions{RootDir: root})
	require.NoError(t, err)
}

func categories[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, c := range in {
		out[i] = string(c)
	}
	return out
}
