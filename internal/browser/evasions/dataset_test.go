package evasions_test

import (
	"os"
	"path/filepath"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-mimic/api/schemas"
	"github.com/xkilldash9x/scalpel-mimic/internal/browser/evasions"
	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm"
	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm/memory"
)

func TestProfiles(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"chrome", "chrome-legacy"}, evasions.Profiles())

	for _, name := range evasions.Profiles() {
		ds, err := evasions.LoadProfile(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, ds.Name)
		assert.Empty(t, ds.Lint(), "embedded profile %s must be clean", name)
	}

	_, err := evasions.LoadProfile("netscape")
	assert.ErrorContains(t, err, "available: chrome, chrome-legacy")
}

func TestLoadDatasetFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	want := &schemas.Dataset{
		Name: "tiny",
		MimeTypes: []schemas.MimeTypeRecord{
			{Type: "application/pdf", Description: "Portable Document Format", Suffixes: "pdf"},
		},
		Plugins: []schemas.PluginRecord{
			{Name: "PDF Viewer", Filename: "internal-pdf-viewer", MimeTypes: []schemas.MimeTypeRef{{Type: "application/pdf", Index: 0}}},
		},
	}

	jsonFile := filepath.Join(dir, "tiny.json")
	require.NoError(t, os.WriteFile(jsonFile, []byte(`{
		"name": "tiny",
		"mimeTypes": [{"type": "application/pdf", "description": "Portable Document Format", "suffixes": "pdf"}],
		"plugins": [{"name": "PDF Viewer", "description": "", "filename": "internal-pdf-viewer",
			"mimeTypes": [{"type": "application/pdf", "index": 0}]}]
	}`), 0o600))

	yamlFile := filepath.Join(dir, "tiny.yaml")
	require.NoError(t, os.WriteFile(yamlFile, []byte(`
mimeTypes:
  - {type: application/pdf, description: Portable Document Format, suffixes: pdf}
plugins:
  - name: PDF Viewer
    filename: internal-pdf-viewer
    mimeTypes: [{type: application/pdf, index: 0}]
`), 0o600))

	for _, file := range []string{jsonFile, yamlFile} {
		got, err := evasions.LoadDatasetFile(file)
		require.NoError(t, err, file)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", filepath.Base(file), diff)
		}
	}

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("plugins:\n  - nmae: typo\n"), 0o600))
	_, err := evasions.LoadDatasetFile(bad)
	assert.Error(t, err, "unknown fields are rejected")

	_, err = evasions.LoadDatasetFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "reading dataset")
}

// FuzzInstall feeds arbitrary datasets through the installer. Installation
// must never panic, and every placed mime type must be reachable by index and
// by key as the same object.
func FuzzInstall(f *testing.F) {
	f.Add([]byte("seed"))
	f.Fuzz(func(t *testing.T, data []byte) {
		var ds schemas.Dataset
		if err := fuzz.NewConsumer(data).GenerateStruct(&ds); err != nil {
			return
		}
		r := memory.New(realm.ChromeSurface())
		ps := evasions.NewInstaller(r, nil, evasions.Options{}).Install(&ds)
		if ps.Graph == nil {
			return
		}
		for _, c := range ps.Graph.PluginEntries {
			for i, e := range c.All() {
				byKey, ok := c.Lookup(e.Key)
				if !ok || byKey.Handle != e.Handle || byKey.Index != i {
					t.Fatalf("%s: entry %d (%q) is not reachable by key", c.Name(), i, e.Key)
				}
				v, err := r.Get(c.Handle(), e.Key)
				if err != nil || v != realm.Value(e.Handle) {
					t.Fatalf("%s[%q] = %v, %v; want %v", c.Name(), e.Key, v, err, e.Handle)
				}
			}
		}
	})
}
