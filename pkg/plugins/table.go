package plugins

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/arthur-debert/depbundle/pkg/errors"
)

// LibraryKey is a library name reduced to its stem: "libQt5Gui.so.5"
// becomes "Qt5Gui".
type LibraryKey string

// Category is a plugin directory name under the system plugin root.
type Category string

// DebugSuffix is appended to every key to cover debug builds of a library.
const DebugSuffix = "d"

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_+-]+$`)

// Normalize reduces a library file name or path to its LibraryKey: the
// base name without a leading "lib" and without anything from the first
// '.' onwards.
func Normalize(library string) LibraryKey {
	name := filepath.Base(library)
	name = strings.TrimPrefix(name, "lib")
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	return LibraryKey(name)
}

// Table maps library keys to the plugin categories they load at runtime.
type Table struct {
	entries map[LibraryKey][]Category
}

// NewTable validates raw and builds a Table. Keys must already be
// normalized stems and categories must be single directory names. Every
// key is also registered with DebugSuffix appended.
func NewTable(raw map[string][]string) (*Table, error) {
	t := &Table{entries: make(map[LibraryKey][]Category, len(raw)*2)}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := validateKey(k); err != nil {
			return nil, err
		}
		cats := raw[k]
		if len(cats) == 0 {
			return nil, errors.Newf(errors.ErrPluginTable, "plugin table key %q has no categories", k).
				WithDetail("key", k)
		}
		for _, c := range cats {
			if err := validateCategory(k, c); err != nil {
				return nil, err
			}
			t.add(LibraryKey(k), Category(c))
			t.add(LibraryKey(k+DebugSuffix), Category(c))
		}
	}
	return t, nil
}

func validateKey(k string) error {
	switch {
	case !keyPattern.MatchString(k):
		return errors.Newf(errors.ErrPluginTable, "plugin table key %q is not a library stem", k).
			WithDetail("key", k)
	case strings.HasPrefix(k, "lib"):
		return errors.Newf(errors.ErrPluginTable, "plugin table key %q must not carry the lib prefix", k).
			WithDetail("key", k)
	}
	return nil
}

func validateCategory(key, c string) error {
	if c == "" || c == "." || c == ".." || strings.ContainsAny(c, `/\`) || strings.TrimSpace(c) != c {
		return errors.Newf(errors.ErrPluginTable, "plugin category %q for key %q is not a directory name", c, key).
			WithDetail("key", key).
			WithDetail("category", c)
	}
	return nil
}

func (t *Table) add(k LibraryKey, c Category) {
	for _, existing := range t.entries[k] {
		if existing == c {
			return
		}
	}
	t.entries[k] = append(t.entries[k], c)
}

// Categories returns the categories for key in declaration order.
func (t *Table) Categories(key LibraryKey) []Category {
	if t == nil {
		return nil
	}
	return t.entries[key]
}

// Has reports whether key carries plugins.
func (t *Table) Has(key LibraryKey) bool {
	if t == nil {
		return false
	}
	_, ok := t.entries[key]
	return ok
}

// Keys returns every key, debug variants included, sorted.
func (t *Table) Keys() []LibraryKey {
	if t == nil {
		return nil
	}
	out := make([]LibraryKey, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len is the number of keys including debug variants.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// DefaultEntries is the Qt 5 association between libraries and the plugin
// categories they load.
func DefaultEntries() map[string][]string {
	return map[string][]string{
		"Qt53DRenderer":             {"sceneparsers"},
		"Qt5Declarative":            {"qml1tooling"},
		"Qt5EglFSDeviceIntegration": {"egldeviceintegrations"},
		"Qt5Gui":                    {"accessible", "generic", "iconengines", "imageformats", "platforms", "platforminputcontexts"},
		"Qt5Location":               {"geoservices"},
		"Qt5Multimedia":             {"audio", "mediaservice", "playlistformats"},
		"Qt5Network":                {"bearer"},
		"Qt5Positioning":            {"position"},
		"Qt5PrintSupport":           {"printsupport"},
		"Qt5QmlTooling":             {"qmltooling"},
		"Qt5Quick":                  {"scenegraph", "qmltooling"},
		"Qt5Sensors":                {"sensors", "sensorgestures"},
		"Qt5SerialBus":              {"canbus"},
		"Qt5Sql":                    {"sqldrivers"},
		"Qt5TextToSpeech":           {"texttospeech"},
		"Qt5WebEngine":              {"qtwebengine"},
		"Qt5WebEngineCore":          {"qtwebengine"},
		"Qt5WebEngineWidgets":       {"qtwebengine"},
		"Qt5XcbQpa":                 {"xcbglintegrations"},
	}
}

// DefaultTable builds the Table for DefaultEntries.
func DefaultTable() *Table {
	t, err := NewTable(DefaultEntries())
	if err != nil {
		panic(err)
	}
	return t
}
