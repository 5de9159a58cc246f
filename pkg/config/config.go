package config

import (
	"path/filepath"
	"runtime"
)

// Config is the complete depbundle configuration.
type Config struct {
	RootDir     string   `koanf:"root_dir" json:"root_dir" yaml:"root_dir"`
	InstallDir  string   `koanf:"install_dir" json:"install_dir" yaml:"install_dir"`
	ScanPaths   []string `koanf:"scan_paths" json:"scan_paths" yaml:"scan_paths"`
	ExcludeFile string   `koanf:"exclude_file" json:"exclude_file" yaml:"exclude_file"`

	Layout  Layout  `koanf:"layout" json:"layout" yaml:"layout"`
	System  System  `koanf:"system" json:"system" yaml:"system"`
	Plugins Plugins `koanf:"plugins" json:"plugins" yaml:"plugins"`
	Cache   Cache   `koanf:"cache" json:"cache" yaml:"cache"`
	Build   Build   `koanf:"build" json:"build" yaml:"build"`
	Version Version `koanf:"version" json:"version" yaml:"version"`
	Finish  Finish  `koanf:"finish" json:"finish" yaml:"finish"`
	Report  Report  `koanf:"report" json:"report" yaml:"report"`
}

// Layout holds the areas of the install root, relative to it.
type Layout struct {
	BinDir    string `koanf:"bin_dir" json:"bin_dir" yaml:"bin_dir"`
	LibDir    string `koanf:"lib_dir" json:"lib_dir" yaml:"lib_dir"`
	PluginDir string `koanf:"plugin_dir" json:"plugin_dir" yaml:"plugin_dir"`
	ModuleDir string `koanf:"module_dir" json:"module_dir" yaml:"module_dir"`
}

// System describes the host the dependencies are taken from.
type System struct {
	LdConf       string   `koanf:"ld_conf" json:"ld_conf" yaml:"ld_conf"`
	FallbackDirs []string `koanf:"fallback_dirs" json:"fallback_dirs" yaml:"fallback_dirs"`
	LibraryPath  []string `koanf:"library_path" json:"library_path" yaml:"library_path"`
	ModuleRoot   string   `koanf:"module_root" json:"module_root" yaml:"module_root"`
	PluginRoot   string   `koanf:"plugin_root" json:"plugin_root" yaml:"plugin_root"`
	Qmake        string   `koanf:"qmake" json:"qmake" yaml:"qmake"`
	Makefile     string   `koanf:"makefile" json:"makefile" yaml:"makefile"`
}

// Plugins customizes the plugin association table.
type Plugins struct {
	ReplaceDefaults bool                `koanf:"replace_defaults" json:"replace_defaults" yaml:"replace_defaults"`
	Table           map[string][]string `koanf:"table" json:"table" yaml:"table"`
}

// Cache sizes the descriptor cache.
type Cache struct {
	Descriptors int `koanf:"descriptors" json:"descriptors" yaml:"descriptors"`
}

// Build configures the optional build step.
type Build struct {
	Enabled bool     `koanf:"enabled" json:"enabled" yaml:"enabled"`
	Command []string `koanf:"command" json:"command" yaml:"command"`
}

// Version configures the program version probe.
type Version struct {
	Program     string   `koanf:"program" json:"program" yaml:"program"`
	LibraryPath []string `koanf:"library_path" json:"library_path" yaml:"library_path"`
}

// Finish selects the post-resolution steps.
type Finish struct {
	QtConf    bool       `koanf:"qt_conf" json:"qt_conf" yaml:"qt_conf"`
	BuildInfo bool       `koanf:"build_info" json:"build_info" yaml:"build_info"`
	Commands  [][]string `koanf:"commands" json:"commands" yaml:"commands"`
}

// Report configures the run report.
type Report struct {
	Path   string `koanf:"path" json:"path" yaml:"path"`
	Format string `koanf:"format" json:"format" yaml:"format"`
}

// Resolve makes path absolute against the root directory.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.RootDir, path)
}

// InstallPath returns the absolute install root.
func (c *Config) InstallPath() string {
	return c.Resolve(c.InstallDir)
}

// InstallArea returns an area of the install root as an absolute path.
func (c *Config) InstallArea(rel string) string {
	return filepath.Join(c.InstallPath(), rel)
}

// ExcludePath returns the exclusion file to read.
func (c *Config) ExcludePath() string {
	if c.ExcludeFile != "" {
		return c.Resolve(c.ExcludeFile)
	}
	return c.Resolve(DefaultExcludeFile())
}

// DefaultExcludeFile is the per-platform exclusion file under the root.
func DefaultExcludeFile() string {
	return filepath.Join("ports", "deploy", "exclude.posix."+runtime.GOOS+".txt")
}

// ScanRoots returns the module scan paths as absolute paths.
func (c *Config) ScanRoots() []string {
	out := make([]string, 0, len(c.ScanPaths))
	for _, p := range c.ScanPaths {
		out = append(out, c.Resolve(p))
	}
	return out
}

// MakefilePath returns the makefile qmake is detected from.
func (c *Config) MakefilePath() string {
	return c.Resolve(c.System.Makefile)
}
