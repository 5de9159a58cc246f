package deploy

import (
	"github.com/arthur-debert/depbundle/pkg/buildexec"
	"github.com/arthur-debert/depbundle/pkg/config"
	"github.com/arthur-debert/depbundle/pkg/elfinfo"
	"github.com/arthur-debert/depbundle/pkg/ldconf"
	"github.com/arthur-debert/depbundle/pkg/locator"
	"github.com/arthur-debert/depbundle/pkg/sysquery"
)

// NewIntrospector returns the descriptor source sized by the cache
// setting. A size of zero disables caching.
func NewIntrospector(cfg *config.Config) (elfinfo.Introspector, error) {
	if cfg.Cache.Descriptors <= 0 {
		return elfinfo.Default, nil
	}
	cached, err := elfinfo.NewCachedIntrospector(elfinfo.Default, cfg.Cache.Descriptors)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

// NewLocator builds the library locator for cfg: the environment library
// path, then ld.so.conf directories, then the fallback directories.
func NewLocator(cfg *config.Config, in elfinfo.Introspector) (*locator.Locator, error) {
	dirs, err := ldconf.SearchDirs(cfg.System.LdConf, cfg.System.FallbackDirs)
	if err != nil {
		return nil, err
	}
	return locator.New(locator.Options{
		Introspector: in,
		LibraryPath:  cfg.System.LibraryPath,
		SystemDirs:   dirs,
	}), nil
}

// NewQuerier answers the system roots from configuration when both are
// set, otherwise through qmake. The qmake binary comes from configuration
// or from the QMAKE line of the root makefile.
func NewQuerier(cfg *config.Config, runner buildexec.Runner) (sysquery.Querier, error) {
	known := sysquery.Roots{ModuleRoot: cfg.System.ModuleRoot, PluginRoot: cfg.System.PluginRoot}
	if known.ModuleRoot != "" && known.PluginRoot != "" {
		return sysquery.Static(known), nil
	}

	binary := cfg.System.Qmake
	if binary == "" {
		detected, err := sysquery.DetectQmake(cfg.MakefilePath())
		if err != nil {
			return nil, err
		}
		binary = detected
	}
	return sysquery.NewQmake(binary, runner, known), nil
}
