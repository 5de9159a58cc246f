package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/arthur-debert/depbundle/pkg/errors"
	"github.com/arthur-debert/depbundle/pkg/logging"
)

// EnvPrefix prefixes every configuration environment variable.
const EnvPrefix = "DEPBUNDLE_"

// ProjectFiles are looked up in the root directory, first match wins.
var ProjectFiles = []string{"depbundle.toml", ".depbundle.toml"}

// sections are the table names environment keys may start with.
var sections = []string{"layout", "system", "plugins", "cache", "build", "version", "finish", "report"}

// LoadOptions selects the sources layered over the embedded defaults.
type LoadOptions struct {
	// RootDir overrides root_dir and is where project files are looked up.
	RootDir string
	// ConfigFile is an explicit file loaded after the project file.
	ConfigFile string
	// Overrides are dotted keys applied last, typically from flags.
	Overrides map[string]interface{}
}

// Load builds the configuration from, in increasing priority: embedded
// defaults, the project file, the explicit config file, DEPBUNDLE_*
// environment variables and overrides. The result is validated.
func Load(opts LoadOptions) (*Config, error) {
	logger := logging.GetLogger("config")
	k := koanf.New(".")

	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "failed to load defaults")
	}

	root := opts.RootDir
	if root == "" {
		root = os.Getenv(EnvPrefix + "ROOT_DIR")
	}
	if root == "" {
		root = "."
	}

	for _, name := range ProjectFiles {
		path := filepath.Join(root, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigParse, "failed to load project config from %s", path).
				WithDetail("path", path)
		}
		logger.Debug().Str("path", path).Msg("loaded project config")
		break
	}

	if opts.ConfigFile != "" {
		if _, err := os.Stat(opts.ConfigFile); err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigLoad, "config file not found: %s", opts.ConfigFile).
				WithDetail("path", opts.ConfigFile)
		}
		if err := k.Load(file.Provider(opts.ConfigFile), toml.Parser()); err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigParse, "failed to load config from %s", opts.ConfigFile).
				WithDetail("path", opts.ConfigFile)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load environment variables")
	}

	overrides := map[string]interface{}{}
	for key, v := range opts.Overrides {
		overrides[key] = v
	}
	if opts.RootDir != "" {
		overrides["root_dir"] = opts.RootDir
	}
	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to apply overrides")
		}
	}

	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToSliceHookFunc(","),
				trimStringsHookFunc(),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "failed to unmarshal configuration")
	}

	if err := postProcess(&cfg, k.Exists("system.library_path")); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps DEPBUNDLE_SYSTEM_LD_CONF to system.ld_conf. Only the first
// underscore after a known section name becomes a separator, so keys
// containing underscores survive.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, sec := range sections {
		if rest, ok := strings.CutPrefix(key, sec+"_"); ok {
			return sec + "." + rest
		}
	}
	return key
}

// postProcess fills values derived from the process environment and makes
// the root directory absolute.
func postProcess(cfg *Config, libraryPathSet bool) error {
	root, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return errors.Wrapf(err, errors.ErrConfigInvalid, "invalid root_dir %q", cfg.RootDir)
	}
	cfg.RootDir = root

	if !libraryPathSet {
		cfg.System.LibraryPath = SplitPathList(os.Getenv("LD_LIBRARY_PATH"))
	}
	return nil
}

// SplitPathList splits a colon separated list, dropping empty entries.
func SplitPathList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ":") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func trimStringsHookFunc() mapstructure.DecodeHookFuncKind {
	return func(f, t reflect.Kind, data interface{}) (interface{}, error) {
		if s, ok := data.(string); ok && f == reflect.String && t == reflect.String {
			return strings.TrimSpace(s), nil
		}
		return data, nil
	}
}
