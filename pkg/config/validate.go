package config

import (
	"path/filepath"
	"strings"

	"github.com/arthur-debert/depbundle/pkg/errors"
	"github.com/arthur-debert/depbundle/pkg/plugins"
)

// ReportFormats are the accepted values of report.format.
var ReportFormats = []string{"json", "yaml", "toml", "xml"}

// Validate checks the configuration for values the run cannot work with.
func (c *Config) Validate() error {
	if c.InstallDir == "" {
		return invalid("install_dir", "install_dir must not be empty")
	}
	if filepath.Clean(c.Resolve(c.InstallDir)) == filepath.Clean(c.RootDir) {
		return invalid("install_dir", "install_dir must not be the root directory")
	}

	for key, dir := range map[string]string{
		"layout.bin_dir":    c.Layout.BinDir,
		"layout.lib_dir":    c.Layout.LibDir,
		"layout.plugin_dir": c.Layout.PluginDir,
		"layout.module_dir": c.Layout.ModuleDir,
	} {
		if err := validateArea(key, dir); err != nil {
			return err
		}
	}

	if c.Cache.Descriptors < 0 {
		return invalid("cache.descriptors", "cache.descriptors must not be negative")
	}
	if c.Build.Enabled && len(c.Build.Command) == 0 {
		return invalid("build.command", "build.command must not be empty when the build is enabled")
	}
	for _, cmd := range c.Finish.Commands {
		if len(cmd) == 0 || cmd[0] == "" {
			return invalid("finish.commands", "finish.commands entries must name a program")
		}
	}
	if !isReportFormat(c.Report.Format) {
		return invalid("report.format", "report.format must be one of "+strings.Join(ReportFormats, ", ")).
			WithDetail("value", c.Report.Format)
	}

	if _, err := c.PluginTable(); err != nil {
		return errors.Wrap(err, errors.ErrConfigInvalid, "invalid plugins.table").
			WithDetail("key", "plugins.table")
	}
	return nil
}

// PluginTable builds the association table: the defaults with the
// configured entries layered on top, or the configured entries alone when
// replace_defaults is set.
func (c *Config) PluginTable() (*plugins.Table, error) {
	entries := map[string][]string{}
	if !c.Plugins.ReplaceDefaults {
		entries = plugins.DefaultEntries()
	}
	for k, v := range c.Plugins.Table {
		entries[k] = v
	}
	return plugins.NewTable(entries)
}

func validateArea(key, dir string) error {
	switch {
	case dir == "":
		return invalid(key, key+" must not be empty")
	case filepath.IsAbs(dir):
		return invalid(key, key+" must be relative to install_dir").WithDetail("value", dir)
	}
	clean := filepath.Clean(dir)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return invalid(key, key+" must stay inside install_dir").WithDetail("value", dir)
	}
	return nil
}

func isReportFormat(f string) bool {
	for _, known := range ReportFormats {
		if f == known {
			return true
		}
	}
	return false
}

func invalid(key, msg string) *errors.BundleError {
	return errors.New(errors.ErrConfigInvalid, msg).WithDetail("key", key)
}
