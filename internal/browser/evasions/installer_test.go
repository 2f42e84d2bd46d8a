package evasions_test

import (
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/scalpel-mimic/api/schemas"
	"github.com/xkilldash9x/scalpel-mimic/internal/browser/evasions"
	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm"
)

func install(t *testing.T, tg target, ds *schemas.Dataset, opts evasions.Options) *evasions.PatchSet {
	t.Helper()
	ps := evasions.NewInstaller(tg, zaptest.NewLogger(t), opts).Install(ds)
	require.NotNil(t, ps)
	return ps
}

func TestInstall_SharedMimeTypeAcrossPlugins(t *testing.T) {
	t.Parallel()
	eachRealm(t, func(t *testing.T, tg target) {
		ds := profile(t, "chrome")
		ps := install(t, tg, ds, evasions.Options{})
		require.NoError(t, ps.Err())

		plugins := getObject(t, tg, navigator(t, tg), "plugins")
		mimeTypes := getObject(t, tg, navigator(t, tg), "mimeTypes")
		assert.Equal(t, 5, get(t, tg, plugins, "length"))
		assert.Equal(t, 2, get(t, tg, mimeTypes, "length"), "one object per distinct mime type")

		pdf := getObject(t, tg, mimeTypes, "application/pdf")
		first := getObject(t, tg, plugins, "0")
		for i := range ds.Plugins {
			p := getObject(t, tg, plugins, strconv.Itoa(i))
			assert.Equal(t, pdf, getObject(t, tg, p, "application/pdf"), "plugin %d", i)
			assert.Equal(t, pdf, getObject(t, tg, p, "0"), "plugin %d", i)
		}
		assert.Equal(t, first, getObject(t, tg, pdf, "enabledPlugin"), "the first plugin is canonical")
		assert.Equal(t, "PDF Viewer", get(t, tg, first, "name"))
	})
}

func TestInstall_IndexAndKeyIdentity(t *testing.T) {
	t.Parallel()
	for _, name := range evasions.Profiles() {
		name := name
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			eachRealm(t, func(t *testing.T, tg target) {
				ds := profile(t, name)
				install(t, tg, ds, evasions.Options{})
				plugins := getObject(t, tg, navigator(t, tg), "plugins")
				for _, rec := range ds.Plugins {
					p := getObject(t, tg, plugins, rec.Name)
					for _, ref := range rec.MimeTypes {
						byIndex := getObject(t, tg, p, strconv.Itoa(ref.Index))
						byKey := getObject(t, tg, p, ref.Type)
						assert.Equal(t, byIndex, byKey, "%s %s", rec.Name, ref.Type)
					}
				}
			})
		})
	}
}

func TestInstall_AliasesShareEnabledPlugin(t *testing.T) {
	t.Parallel()
	for _, mode := range []evasions.BackReference{evasions.BackReferenceIdentity, evasions.BackReferenceProxy} {
		mode := mode
		t.Run(mode.String(), func(t *testing.T) {
			t.Parallel()
			eachRealm(t, func(t *testing.T, tg target) {
				install(t, tg, profile(t, "chrome-legacy"), evasions.Options{BackReference: mode})
				nav := navigator(t, tg)
				mimeTypes := getObject(t, tg, nav, "mimeTypes")
				nacl := getObject(t, tg, getObject(t, tg, mimeTypes, "application/x-nacl"), "enabledPlugin")
				pnacl := getObject(t, tg, getObject(t, tg, mimeTypes, "application/x-pnacl"), "enabledPlugin")
				assert.Equal(t, nacl, pnacl)

				plugin := getObject(t, tg, getObject(t, tg, nav, "plugins"), "Native Client")
				if mode == evasions.BackReferenceIdentity {
					assert.Equal(t, plugin, nacl)
				} else {
					assert.NotEqual(t, plugin, nacl, "proxy mode hands out a wrapper")
				}
				assert.Equal(t, "Native Client", get(t, tg, nacl, "name"))

				// Unaliased types get their own wrapper in proxy mode.
				pdf := getObject(t, tg, getObject(t, tg, mimeTypes, "application/pdf"), "enabledPlugin")
				assert.NotEqual(t, nacl, pdf)
				assert.Equal(t, "Chrome PDF Viewer", get(t, tg, pdf, "name"))
			})
		})
	}
}

func TestInstall_Enumeration(t *testing.T) {
	t.Parallel()
	eachRealm(t, func(t *testing.T, tg target) {
		ds := profile(t, "chrome-legacy")
		ps := install(t, tg, ds, evasions.Options{})
		nav := navigator(t, tg)
		plugins := getObject(t, tg, nav, "plugins")

		keys, err := tg.EnumerableKeys(plugins)
		require.NoError(t, err)
		want := []string{"0", "1", "2", "Chrome PDF Plugin", "Chrome PDF Viewer", "Native Client"}
		if diff := cmp.Diff(want, keys); diff != "" {
			t.Errorf("enumerable keys mismatch (-want +got):\n%s", diff)
		}
		assert.Equal(t, []string{"Chrome PDF Plugin", "Chrome PDF Viewer", "Native Client"}, ps.Graph.Plugins.Keys())

		nacl, ok := ps.Graph.Plugin("Native Client")
		require.True(t, ok)
		assert.Equal(t, []string{"application/x-nacl", "application/x-pnacl"}, nacl.Keys())

		mt := getObject(t, tg, getObject(t, tg, nav, "mimeTypes"), "0")
		mtKeys, err := tg.EnumerableKeys(mt)
		require.NoError(t, err)
		assert.Empty(t, mtKeys, "record fields and enabledPlugin stay hidden")

		d, ok, err := tg.OwnProperty(mt, evasions.KeyEnabledPlugin)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, realm.Flags{Enumerable: false, Writable: false, Configurable: true}, d.Flags)

		d, ok, err = tg.OwnProperty(plugins, "Native Client")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, realm.Flags{Enumerable: true, Writable: false, Configurable: true}, d.Flags)
	})
}

func TestInstall_TypeIdentity(t *testing.T) {
	t.Parallel()
	eachRealm(t, func(t *testing.T, tg target) {
		install(t, tg, profile(t, "chrome"), evasions.Options{})
		nav := navigator(t, tg)
		objects := map[string]realm.Handle{
			"PluginArray":   getObject(t, tg, nav, "plugins"),
			"MimeTypeArray": getObject(t, tg, nav, "mimeTypes"),
		}
		objects["Plugin"] = getObject(t, tg, objects["PluginArray"], "0")
		objects["MimeType"] = getObject(t, tg, objects["MimeTypeArray"], "0")

		for iface, obj := range objects {
			proto, err := tg.Prototype(iface)
			require.NoError(t, err)
			got, err := tg.PrototypeOf(obj)
			require.NoError(t, err)
			assert.Equal(t, proto, got, iface)

			tag, err := tg.ClassString(obj)
			require.NoError(t, err)
			assert.Equal(t, "[object "+iface+"]", tag)
		}
	})
}

func TestInstall_SourceMatchesNativeTemplate(t *testing.T) {
	t.Parallel()
	eachRealm(t, func(t *testing.T, tg target) {
		ps := install(t, tg, profile(t, "chrome"), evasions.Options{Keyboard: schemas.KeyboardLayout{"KeyA": "q"}})
		require.NoError(t, ps.Err())

		for _, m := range evasions.ChromeFunctionMocks() {
			var fn realm.Handle
			if m.Kind == realm.Getter {
				fn = accessor(t, tg, m.Interface, m.Member)
			} else {
				proto, err := tg.Prototype(m.Interface)
				require.NoError(t, err)
				fn = getObject(t, tg, proto, m.Member)
			}
			for i := 0; i < 3; i++ {
				src, err := tg.Source(fn)
				require.NoError(t, err)
				assert.Equal(t, m.Source, src, "%s.%s call %d", m.Interface, m.Member, i)
			}
			assert.Equal(t, m.Name, get(t, tg, fn, "name"))
			assert.Equal(t, m.Length, get(t, tg, fn, "length"))
		}
	})
}

func TestInstall_CollectionMethods(t *testing.T) {
	t.Parallel()
	eachRealm(t, func(t *testing.T, tg target) {
		install(t, tg, profile(t, "chrome"), evasions.Options{})
		plugins := getObject(t, tg, navigator(t, tg), "plugins")
		first := getObject(t, tg, plugins, "0")
		second := getObject(t, tg, plugins, "1")

		tests := []struct {
			name string
			fn   string
			args []realm.Value
			want realm.Value
		}{
			{"item by number", "item", []realm.Value{1}, second},
			{"item by numeric string", "item", []realm.Value{"1"}, second},
			{"item out of range", "item", []realm.Value{99}, realm.Null},
			{"item negative wraps out of range", "item", []realm.Value{-1}, realm.Null},
			{"item wraps modulo 2^32", "item", []realm.Value{4294967296.0}, first},
			{"namedItem", "namedItem", []realm.Value{"Chrome PDF Viewer"}, second},
			{"namedItem unknown", "namedItem", []realm.Value{"Flash"}, realm.Null},
			{"refresh", "refresh", nil, realm.Undefined},
		}
		for _, tt := range tests {
			got, err := invoke(t, tg, plugins, tt.fn, tt.args...)
			require.NoError(t, err, tt.name)
			assert.Equal(t, tt.want, got, tt.name)
		}

		_, err := invoke(t, tg, plugins, "item")
		var jsErr *realm.JSError
		require.ErrorAs(t, err, &jsErr)
		assert.Equal(t, "TypeError", jsErr.Name)
		assert.Contains(t, jsErr.Message, "Failed to execute 'item' on 'PluginArray'")

		pdf, err := invoke(t, tg, first, "namedItem", "text/pdf")
		require.NoError(t, err)
		assert.Equal(t, getObject(t, tg, first, "1"), pdf)

		// A genuine receiver still reaches the native method.
		proto, err := tg.Prototype("PluginArray")
		require.NoError(t, err)
		genuine, err := tg.NewObject(proto)
		require.NoError(t, err)
		got, err := invoke(t, tg, genuine, "item", 0)
		require.NoError(t, err)
		assert.Equal(t, realm.Null, got)
	})
}

func TestInstall_KeyboardOverride(t *testing.T) {
	t.Parallel()
	eachRealm(t, func(t *testing.T, tg target) {
		ps := install(t, tg, nil, evasions.Options{Keyboard: schemas.KeyboardLayout{"KeyA": "a", "KeyQ": "a"}})
		require.NoError(t, ps.Err())
		require.True(t, ps.Applied("KeyboardLayoutMap", "get"))

		proto, err := tg.Prototype("KeyboardLayoutMap")
		require.NoError(t, err)
		layout, err := tg.NewObject(proto)
		require.NoError(t, err)

		got, err := invoke(t, tg, layout, "get")
		require.NoError(t, err)
		assert.Equal(t, "native-empty", got, "zero arguments fall through to the original")

		got, err = invoke(t, tg, layout, "get", "KeyA")
		require.NoError(t, err)
		assert.Equal(t, "a", got)

		got, err = invoke(t, tg, layout, "get", "KeyZ")
		require.NoError(t, err)
		assert.Equal(t, "native:KeyZ", got, "unconfigured codes fall through")
	})
}

func TestInstall_KeyboardDisabledWithoutLayout(t *testing.T) {
	t.Parallel()
	tg := newMemory()
	ps := install(t, tg, nil, evasions.Options{})
	assert.Empty(t, ps.Patches)
	assert.Empty(t, ps.Skipped)
}

func TestInstall_MissingMimeTypeLeavesHole(t *testing.T) {
	t.Parallel()
	ds := &schemas.Dataset{
		Name: "gap",
		MimeTypes: []schemas.MimeTypeRecord{
			{Type: "application/pdf", Description: "Portable Document Format", Suffixes: "pdf"},
		},
		Plugins: []schemas.PluginRecord{
			{Name: "PDF Viewer", Filename: "internal-pdf-viewer", MimeTypes: []schemas.MimeTypeRef{
				{Type: "application/pdf", Index: 0},
				{Type: "text/pdf", Index: 1},
			}},
			{Name: "Chrome PDF Viewer", Filename: "internal-pdf-viewer", MimeTypes: []schemas.MimeTypeRef{
				{Type: "application/pdf", Index: 0},
			}},
		},
	}
	eachRealm(t, func(t *testing.T, tg target) {
		ps := install(t, tg, ds, evasions.Options{})
		require.ErrorIs(t, ps.Err(), evasions.ErrMalformedData)
		require.Len(t, ps.Skipped, 1)
		assert.Equal(t, evasions.StageCrossRef, ps.Skipped[0].Stage)
		assert.True(t, ps.Applied("Navigator", "plugins"))

		plugins := getObject(t, tg, navigator(t, tg), "plugins")
		assert.Equal(t, 2, get(t, tg, plugins, "length"))
		viewer := getObject(t, tg, plugins, "PDF Viewer")
		assert.Equal(t, 2, get(t, tg, viewer, "length"), "declared slots count")
		assert.True(t, realm.IsUndefined(get(t, tg, viewer, "1")))
		assert.True(t, realm.IsUndefined(get(t, tg, viewer, "text/pdf")))

		got, err := invoke(t, tg, viewer, "item", 1)
		require.NoError(t, err)
		assert.Equal(t, realm.Null, got)

		pdf := getObject(t, tg, viewer, "application/pdf")
		assert.Equal(t, viewer, getObject(t, tg, pdf, "enabledPlugin"))
	})
}

// sharedAtDifferentIndices places one mime type at index 0 of the first
// plugin and index 1 of the second.
func sharedAtDifferentIndices() *schemas.Dataset {
	return &schemas.Dataset{
		Name: "shared-offset",
		MimeTypes: []schemas.MimeTypeRecord{
			{Type: "application/pdf", Description: "Portable Document Format", Suffixes: "pdf"},
			{Type: "application/x-test", Description: "Test", Suffixes: "tst"},
		},
		Plugins: []schemas.PluginRecord{
			{Name: "A", Filename: "a.so", MimeTypes: []schemas.MimeTypeRef{
				{Type: "application/pdf", Index: 0},
			}},
			{Name: "B", Filename: "b.so", MimeTypes: []schemas.MimeTypeRef{
				{Type: "application/x-test", Index: 0},
				{Type: "application/pdf", Index: 1},
			}},
		},
	}
}

func TestInstall_SharedMimeTypeAtDifferentIndices(t *testing.T) {
	t.Parallel()
	eachRealm(t, func(t *testing.T, tg target) {
		ps := install(t, tg, sharedAtDifferentIndices(), evasions.Options{})
		require.NoError(t, ps.Err())

		plugins := getObject(t, tg, navigator(t, tg), "plugins")
		mimeTypes := getObject(t, tg, navigator(t, tg), "mimeTypes")
		a := getObject(t, tg, plugins, "A")
		b := getObject(t, tg, plugins, "B")
		assert.Equal(t, 1, get(t, tg, a, "length"))
		assert.Equal(t, 2, get(t, tg, b, "length"))
		assert.Equal(t, 2, get(t, tg, mimeTypes, "length"))

		pdf := getObject(t, tg, mimeTypes, "application/pdf")
		assert.Equal(t, pdf, getObject(t, tg, a, "0"))
		assert.Equal(t, pdf, getObject(t, tg, b, "1"))
		assert.Equal(t, pdf, getObject(t, tg, a, "application/pdf"))
		assert.Equal(t, pdf, getObject(t, tg, b, "application/pdf"))
		got, err := invoke(t, tg, b, "item", 1)
		require.NoError(t, err)
		assert.Equal(t, pdf, got)
		assert.Equal(t, a, getObject(t, tg, pdf, "enabledPlugin"), "the first plugin to reference a type owns it")

		test := getObject(t, tg, mimeTypes, "application/x-test")
		assert.Equal(t, test, getObject(t, tg, b, "0"))
		assert.Equal(t, b, getObject(t, tg, test, "enabledPlugin"))
	})
}

func TestInstall_IndexBeyondBoundLeavesLength(t *testing.T) {
	t.Parallel()
	ds := &schemas.Dataset{
		Name: "far-index",
		MimeTypes: []schemas.MimeTypeRecord{
			{Type: "application/pdf", Description: "Portable Document Format", Suffixes: "pdf"},
			{Type: "text/pdf", Description: "Portable Document Format", Suffixes: "pdf"},
		},
		Plugins: []schemas.PluginRecord{
			{Name: "PDF Viewer", Filename: "internal-pdf-viewer", MimeTypes: []schemas.MimeTypeRef{
				{Type: "application/pdf", Index: 0},
				{Type: "text/pdf", Index: 5000},
			}},
		},
	}
	eachRealm(t, func(t *testing.T, tg target) {
		ps := install(t, tg, ds, evasions.Options{})
		require.ErrorIs(t, ps.Err(), evasions.ErrMalformedData)
		require.Len(t, ps.Skipped, 1)
		assert.ErrorContains(t, ps.Skipped[0], "index exceeds 1023")

		plugins := getObject(t, tg, navigator(t, tg), "plugins")
		viewer := getObject(t, tg, plugins, "PDF Viewer")
		assert.Equal(t, 1, get(t, tg, viewer, "length"), "a rejected index never stretches length")
		assert.True(t, realm.IsUndefined(get(t, tg, viewer, "text/pdf")))
		keys, err := tg.EnumerableKeys(viewer)
		require.NoError(t, err)
		assert.Equal(t, []string{"0", "application/pdf"}, keys)
	})
}

func TestInstall_AliasConflictKeepsFirstGroup(t *testing.T) {
	t.Parallel()
	ds := profile(t, "chrome-legacy")
	ds.Aliases = append(ds.Aliases, schemas.AliasGroup{"application/x-pnacl", "application/pdf"})

	tg := newMemory()
	ps := install(t, tg, ds, evasions.Options{})
	require.ErrorIs(t, ps.Err(), evasions.ErrAliasConflict)

	mimeTypes := getObject(t, tg, navigator(t, tg), "mimeTypes")
	nacl := getObject(t, tg, getObject(t, tg, mimeTypes, "application/x-nacl"), "enabledPlugin")
	pnacl := getObject(t, tg, getObject(t, tg, mimeTypes, "application/x-pnacl"), "enabledPlugin")
	assert.Equal(t, nacl, pnacl, "pnacl stays with its first group")
}

func TestInstall_MissingFeature(t *testing.T) {
	t.Parallel()

	t.Run("keyboard interface absent", func(t *testing.T) {
		t.Parallel()
		tg := newMemory("KeyboardLayoutMap")
		ps := install(t, tg, profile(t, "chrome"), evasions.Options{Keyboard: schemas.KeyboardLayout{"KeyA": "a"}})
		require.ErrorIs(t, ps.Err(), realm.ErrMissingFeature)
		assert.False(t, ps.Applied("KeyboardLayoutMap", "get"))
		assert.True(t, ps.Applied("Navigator", "plugins"))
	})

	t.Run("plugin interfaces absent", func(t *testing.T) {
		t.Parallel()
		tg := newGoja(t, "MimeTypeArray", "MimeType")
		ps := install(t, tg, profile(t, "chrome"), evasions.Options{})
		require.ErrorIs(t, ps.Err(), realm.ErrMissingFeature)
		assert.Nil(t, ps.Graph)
		assert.Empty(t, ps.Patches)
	})
}

func TestPatchSet_Revert(t *testing.T) {
	t.Parallel()
	eachRealm(t, func(t *testing.T, tg target) {
		getter := accessor(t, tg, "Navigator", "plugins")
		ps := install(t, tg, profile(t, "chrome"), evasions.Options{Keyboard: schemas.KeyboardLayout{"KeyA": "a"}})
		require.NotEmpty(t, ps.Patches)
		assert.NotEqual(t, getter, accessor(t, tg, "Navigator", "plugins"))

		require.NoError(t, ps.Revert())
		assert.Equal(t, getter, accessor(t, tg, "Navigator", "plugins"))
		plugins := getObject(t, tg, navigator(t, tg), "plugins")
		assert.Equal(t, 0, get(t, tg, plugins, "length"))

		require.NoError(t, ps.Revert(), "second revert is a no-op")
	})
}

func TestPatchSet_RevertIsIsolatedPerRealm(t *testing.T) {
	t.Parallel()
	a, b := newMemory(), newMemory()
	psA := install(t, a, profile(t, "chrome"), evasions.Options{})
	install(t, b, profile(t, "chrome-legacy"), evasions.Options{})
	require.NoError(t, psA.Revert())

	plugins := getObject(t, b, navigator(t, b), "plugins")
	assert.Equal(t, 3, get(t, b, plugins, "length"))
	assert.NotEqual(t, uuid.Nil, psA.ID)
}

func TestInstall_LogsSummary(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.DebugLevel)
	tg := newMemory("KeyboardLayoutMap")
	ps := evasions.NewInstaller(tg, zap.New(core), evasions.Options{Keyboard: schemas.KeyboardLayout{"KeyA": "a"}}).Install(profile(t, "chrome"))

	summary := logs.FilterMessage("Evasions installed.").All()
	require.Len(t, summary, 1)
	assert.Equal(t, "evasions", summary[0].LoggerName)
	fields := summary[0].ContextMap()
	assert.Equal(t, ps.ID.String(), fields["patch_set"])
	assert.Equal(t, "chrome", fields["dataset"])
	assert.EqualValues(t, len(ps.Skipped), fields["skipped"])
	assert.Equal(t, 1, logs.FilterMessage("Installation step skipped.").Len())
}
