package report_test

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/google/go-cmp/cmp"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/arthur-debert/depbundle/pkg/errors"
	"github.com/arthur-debert/depbundle/pkg/report"
	"github.com/arthur-debert/depbundle/pkg/stage"
	"github.com/arthur-debert/depbundle/pkg/testutil"
)

func sampleReport() *report.Report {
	r := &report.Report{
		Program:     "app",
		Version:     "1.2.0",
		RootDir:     "/src",
		InstallDir:  "/src/root",
		GeneratedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Modules: report.Modules{
			Copied:     []string{"QtQuick.2"},
			Unresolved: []report.Unresolved{{From: "/src/qml/main.qml", Name: "Missing"}},
		},
		Plugins: report.Plugins{
			Categories: []string{"platforms"},
			Missing:    []string{"iconengines"},
			Libraries:  []string{"/usr/lib/libQt5Gui.so.5"},
		},
		Libraries: report.Libraries{
			Copied:     []string{"/usr/lib/libQt5Core.so.5"},
			Excluded:   []string{"libc.so.6"},
			Unresolved: []report.Unresolved{{From: "/src/root/usr/bin/app", Name: "libgone.so.1"}},
		},
	}
	r.AddStage([]stage.Result{
		{Dest: "a", Status: stage.StatusCopied},
		{Dest: "b", Status: stage.StatusLinked},
		{Dest: "c", Status: stage.StatusSkipped},
		{Dest: "d", Status: stage.StatusFailed, Error: "disk full"},
	})
	r.AddSources("/usr/lib/libQt5Core.so.5", "/usr/lib/libQt5Gui.so.5", "/usr/lib/libQt5Core.so.5", "")
	return r
}

func TestAddStageAndSources(t *testing.T) {
	r := sampleReport()
	assert.Equal(t, stage.Summary{Copied: 1, Linked: 1, Skipped: 1, Failed: 1}, r.Summary)
	require.Len(t, r.Failures, 1)
	assert.Equal(t, "d", r.Failures[0].Dest)
	assert.False(t, r.OK())

	r.AddSources("/usr/lib/libA.so")
	if diff := cmp.Diff([]string{"/usr/lib/libA.so", "/usr/lib/libQt5Core.so.5", "/usr/lib/libQt5Gui.so.5"}, r.Sources); diff != "" {
		t.Errorf("Sources mismatch (-want +got):\n%s", diff)
	}
}

func TestMarshalFormats(t *testing.T) {
	r := sampleReport()

	t.Run("json", func(t *testing.T) {
		data, err := r.Marshal(report.FormatJSON)
		require.NoError(t, err)
		var got report.Report
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, r.Libraries, got.Libraries)
		assert.Equal(t, r.Sources, got.Sources)
	})

	t.Run("yaml", func(t *testing.T) {
		data, err := r.Marshal(report.FormatYAML)
		require.NoError(t, err)
		var got map[string]interface{}
		require.NoError(t, yaml.Unmarshal(data, &got))
		assert.Equal(t, "app", got["program"])
		assert.Contains(t, string(data), "libgone.so.1")
	})

	t.Run("toml", func(t *testing.T) {
		data, err := r.Marshal(report.FormatTOML)
		require.NoError(t, err)
		var got map[string]interface{}
		require.NoError(t, toml.Unmarshal(data, &got))
		assert.Equal(t, "1.2.0", got["version"])
	})

	t.Run("xml", func(t *testing.T) {
		data, err := r.Marshal(report.FormatXML)
		require.NoError(t, err)
		doc := etree.NewDocument()
		require.NoError(t, doc.ReadFromBytes(data))

		root := doc.SelectElement("report")
		require.NotNil(t, root)
		assert.Equal(t, "app", root.SelectAttrValue("program", ""))
		assert.Equal(t, "2024-03-01T12:00:00Z", root.SelectAttrValue("generated-at", ""))

		dep := doc.FindElement("//libraries/unresolved/dependency")
		require.NotNil(t, dep)
		assert.Equal(t, "libgone.so.1", dep.Text())
		assert.Equal(t, "/src/root/usr/bin/app", dep.SelectAttrValue("from", ""))

		sum := doc.FindElement("//summary")
		require.NotNil(t, sum)
		assert.Equal(t, "1", sum.SelectAttrValue("failed", ""))
		assert.Len(t, doc.FindElements("//sources/source"), 2)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := r.Marshal(report.Format("ini"))
		assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
	})
}

func TestParseFormat(t *testing.T) {
	f, err := report.ParseFormat("yml")
	require.NoError(t, err)
	assert.Equal(t, report.FormatYAML, f)

	_, err = report.ParseFormat("csv")
	assert.Error(t, err)

	assert.Equal(t, report.FormatTOML, report.FormatForPath("out/report.toml", report.FormatJSON))
	assert.Equal(t, report.FormatJSON, report.FormatForPath("out/report.txt", report.FormatJSON))
}

func TestSaveCreatesParents(t *testing.T) {
	dir := testutil.TempDir(t)
	path := filepath.Join(dir, "nested", "report.json")

	require.NoError(t, sampleReport().Save(path, report.FormatJSON))
	assert.Contains(t, testutil.ReadFile(t, path), `"program": "app"`)
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleReport().Write(&buf, report.FormatYAML))
	assert.Contains(t, buf.String(), "program: app")
}

func TestDocument(t *testing.T) {
	doc := sampleReport().Document()
	assert.Equal(t, "app 1.2.0", doc.Title)
	assert.True(t, doc.Failed)
	assert.Equal(t, "1 copied, 1 linked, 1 skipped, 1 failed", doc.Footer)

	titles := make([]string, 0, len(doc.Sections))
	for _, s := range doc.Sections {
		titles = append(titles, s.Title)
	}
	want := []string{
		"modules", "unresolved modules", "plugin categories", "missing plugin categories",
		"libraries", "excluded libraries", "unresolved libraries", "failures",
	}
	if diff := cmp.Diff(want, titles); diff != "" {
		t.Errorf("section titles mismatch (-want +got):\n%s", diff)
	}

	empty := (&report.Report{InstallDir: "/x"}).Document()
	assert.Equal(t, "bundle /x", empty.Title)
	assert.False(t, empty.Failed)
}
