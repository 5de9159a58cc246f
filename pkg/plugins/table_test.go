package plugins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/depbundle/pkg/errors"
)

func TestNormalize(t *testing.T) {
	tests := map[string]LibraryKey{
		"libQt5Gui.so.5":                  "Qt5Gui",
		"/usr/lib/libQt5Gui.so.5.15.2":    "Qt5Gui",
		"libQt5Guid.so":                   "Qt5Guid",
		"libQt53DRenderer.so.5":           "Qt53DRenderer",
		"libstdc++.so.6":                  "stdc++",
		"ld-linux-x86-64.so.2":            "ld-linux-x86-64",
		"/opt/qt/lib/libQt5WebEngineCore": "Qt5WebEngineCore",
	}
	for in, want := range tests {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestNewTable_DebugVariants(t *testing.T) {
	table, err := NewTable(map[string][]string{
		"Qt5Quick": {"scenegraph", "qmltooling", "scenegraph"},
	})
	require.NoError(t, err)

	assert.Equal(t, []Category{"scenegraph", "qmltooling"}, table.Categories("Qt5Quick"))
	assert.Equal(t, []Category{"scenegraph", "qmltooling"}, table.Categories("Qt5Quickd"))
	assert.Equal(t, []LibraryKey{"Qt5Quick", "Qt5Quickd"}, table.Keys())
	assert.True(t, table.Has(Normalize("libQt5Quickd.so.5")))
	assert.False(t, table.Has("Qt5Core"))
}

func TestNewTable_Validation(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string][]string
	}{
		{"dotted key", map[string][]string{"Qt5Gui.so": {"platforms"}}},
		{"lib prefix", map[string][]string{"libQt5Gui": {"platforms"}}},
		{"empty key", map[string][]string{"": {"platforms"}}},
		{"no categories", map[string][]string{"Qt5Gui": {}}},
		{"nested category", map[string][]string{"Qt5Gui": {"platforms/xcb"}}},
		{"parent category", map[string][]string{"Qt5Gui": {".."}}},
		{"blank category", map[string][]string{"Qt5Gui": {" "}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.IsErrorCode(err, errors.ErrPluginTable))
		})
	}
}

func TestDefaultTable(t *testing.T) {
	table := DefaultTable()

	assert.Equal(t, 2*len(DefaultEntries()), table.Len())
	assert.Equal(t,
		[]Category{"accessible", "generic", "iconengines", "imageformats", "platforms", "platforminputcontexts"},
		table.Categories("Qt5Gui"))
	assert.Equal(t, []Category{"qtwebengine"}, table.Categories("Qt5WebEngineWidgetsd"))
	assert.Equal(t, []Category{"xcbglintegrations"}, table.Categories(Normalize("libQt5XcbQpa.so.5")))
}

func TestNilTable(t *testing.T) {
	var table *Table
	assert.False(t, table.Has("Qt5Gui"))
	assert.Nil(t, table.Categories("Qt5Gui"))
	assert.Equal(t, 0, table.Len())
}
