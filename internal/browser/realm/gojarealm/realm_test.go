package gojarealm_test

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm"
	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm/gojarealm"
)

func newChrome(t *testing.T) *gojarealm.Realm {
	t.Helper()
	r, err := gojarealm.NewChrome()
	require.NoError(t, err)
	return r
}

func run(t *testing.T, r *gojarealm.Realm, expr string) interface{} {
	t.Helper()
	v, err := r.Runtime().RunString(expr)
	require.NoError(t, err, expr)
	return v.Export()
}

func mustProto(t *testing.T, r *gojarealm.Realm, iface string) realm.Handle {
	t.Helper()
	h, err := r.Prototype(iface)
	require.NoError(t, err)
	return h
}

func TestInstallSurface(t *testing.T) {
	t.Parallel()
	r := newChrome(t)

	tests := []struct {
		name string
		expr string
		want interface{}
	}{
		{"class tag", `Object.prototype.toString.call(navigator.mimeTypes)`, "[object MimeTypeArray]"},
		{"empty plugins", `navigator.plugins.length`, int64(0)},
		{"not constructible", `(() => { try { new Plugin(); return 'constructed'; } catch (e) { return e.constructor.name; } })()`, "TypeError"},
		{"method length", `PluginArray.prototype.item.length`, int64(1)},
		{"getter name", `Object.getOwnPropertyDescriptor(Navigator.prototype, 'plugins').get.name`, "get plugins"},
		{"native item arity", `(() => { try { navigator.plugins.item(); } catch (e) { return e.message; } })()`,
			"Failed to execute 'item': 1 argument required, but only 0 present."},
		{"us layout", `KeyboardLayoutMap.prototype.get.call(null, 'KeyQ')`, "q"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, run(t, r, tt.expr), tt.name)
	}
}

func TestHandle_MapsIdentity(t *testing.T) {
	t.Parallel()
	r := newChrome(t)
	vm := r.Runtime()
	nav := vm.Get("navigator").(*goja.Object)

	h1 := r.Handle(nav)
	h2 := r.Handle(nav)
	assert.Equal(t, h1, h2)

	g, err := r.Global("navigator")
	require.NoError(t, err)
	assert.Equal(t, h1, g)

	o, err := r.Object(h1)
	require.NoError(t, err)
	assert.Same(t, nav, o)

	_, err = r.Object(realm.NoHandle)
	assert.ErrorIs(t, err, realm.ErrInvalidHandle)

	_, err = r.Prototype("Bluetooth")
	assert.ErrorIs(t, err, realm.ErrMissingFeature)
}

func TestTrapGetter_VisibleToScripts(t *testing.T) {
	t.Parallel()
	r := newChrome(t)
	navProto := mustProto(t, r, "Navigator")

	fake, err := r.NewObject(mustProto(t, r, "PluginArray"))
	require.NoError(t, err)
	require.NoError(t, r.DefineProperty(fake, "length", realm.Descriptor{Value: 3}))

	_, err = r.TrapGetter(navProto, "plugins", realm.ReturnTrap(fake))
	require.NoError(t, err)

	assert.Equal(t, int64(3), run(t, r, `navigator.plugins.length`))
	assert.Equal(t, true, run(t, r, `Object.getPrototypeOf(navigator.plugins) === PluginArray.prototype`))
	assert.Equal(t, true, run(t, r, `Object.getOwnPropertyDescriptor(Navigator.prototype, 'plugins').enumerable`))
	assert.Equal(t, "function get plugins() { [native code] }",
		run(t, r, `Function.prototype.toString.call(Object.getOwnPropertyDescriptor(Navigator.prototype, 'plugins').get)`))

	require.NoError(t, r.Restore(navProto, "plugins"))
	assert.Equal(t, int64(0), run(t, r, `navigator.plugins.length`))
	assert.Error(t, r.Restore(navProto, "plugins"))
}

func TestTrapMethod_ItemRejectsMissingArgument(t *testing.T) {
	t.Parallel()
	r := newChrome(t)
	arrProto := mustProto(t, r, "MimeTypeArray")
	nav, err := r.Global("navigator")
	require.NoError(t, err)
	navHandle, _ := realm.AsHandle(nav)
	arr, err := r.Get(navHandle, "mimeTypes")
	require.NoError(t, err)
	owner, _ := realm.AsHandle(arr)

	entry, err := r.NewObject(mustProto(t, r, "MimeType"))
	require.NoError(t, err)
	trap := realm.ItemTrap("MimeTypeArray", []realm.Table{{Owner: owner, Entries: []realm.Handle{entry}}})
	_, err = r.TrapMethod(arrProto, "item", trap)
	require.NoError(t, err)

	assert.Equal(t, true, run(t, r, `Object.prototype.toString.call(navigator.mimeTypes.item(0)) === '[object MimeType]'`))
	assert.Equal(t, true, run(t, r, `navigator.mimeTypes.item(NaN) === navigator.mimeTypes.item('0')`))
	assert.Nil(t, run(t, r, `navigator.mimeTypes.item(1)`))
	assert.Equal(t, "TypeError: "+trap.ArityMessage(),
		run(t, r, `(() => { try { navigator.mimeTypes.item(); } catch (e) { return e.constructor.name + ': ' + e.message; } })()`))

	// The descriptor flags of the original method survive.
	assert.Equal(t, true, run(t, r, `Object.getOwnPropertyDescriptor(MimeTypeArray.prototype, 'item').writable`))
}

func TestToStringHook_MasksItself(t *testing.T) {
	t.Parallel()
	r := newChrome(t)
	proto := mustProto(t, r, "KeyboardLayoutMap")
	get, err := r.TrapMethod(proto, "get", realm.OverrideTrap(map[string]string{"KeyQ": "a"}))
	require.NoError(t, err)

	native := realm.NativeSource("toString")
	assert.Equal(t, native, run(t, r, `Function.prototype.toString.call(Function.prototype.toString)`))
	assert.Equal(t, native, run(t, r, `Function.prototype.toString.toString()`))
	assert.Equal(t, true, run(t, r, `Object.prototype.hasOwnProperty.call(Function.prototype, 'toString')`))

	// The hook is installed once no matter how many traps follow.
	_, err = r.TrapMethod(proto, "has", realm.ReturnTrap(true))
	require.NoError(t, err)
	assert.Equal(t, native, run(t, r, `Function.prototype.toString.call(Function.prototype.toString)`))

	src, err := r.Source(get)
	require.NoError(t, err)
	assert.Equal(t, realm.NativeSource("get"), src)

	assert.Equal(t, "a", run(t, r, `KeyboardLayoutMap.prototype.get.call(null, 'KeyQ')`))
	assert.Equal(t, "w", run(t, r, `KeyboardLayoutMap.prototype.get.call(null, 'KeyW')`))

	// Ordinary script functions keep their real source.
	assert.Equal(t, "function f() { return 1; }", run(t, r, `(function f() { return 1; }).toString()`))
}

func TestDisguise(t *testing.T) {
	t.Parallel()
	r := newChrome(t)
	v, err := r.Runtime().RunString(`(function helper(a, b) { return a + b; })`)
	require.NoError(t, err)
	fn := r.Handle(v.(*goja.Object))

	meta := realm.FunctionMeta{Name: "refresh", Length: 0, Source: realm.NativeSource("refresh")}
	require.NoError(t, r.Disguise(fn, meta))

	name, err := r.Get(fn, "name")
	require.NoError(t, err)
	assert.Equal(t, "refresh", name)
	length, err := r.Get(fn, "length")
	require.NoError(t, err)
	assert.Equal(t, 0, length)

	src, err := r.Source(fn)
	require.NoError(t, err)
	assert.Equal(t, meta.Source, src)

	plain, err := r.NewObject(mustProto(t, r, "Plugin"))
	require.NoError(t, err)
	var jsErr *realm.JSError
	require.ErrorAs(t, r.Disguise(plain, meta), &jsErr)
	assert.Equal(t, "TypeError", jsErr.Name)
}

func TestWrap_HasOwnIdentity(t *testing.T) {
	t.Parallel()
	r := newChrome(t)
	plugin, err := r.NewObject(mustProto(t, r, "Plugin"))
	require.NoError(t, err)
	require.NoError(t, r.DefineProperty(plugin, "name", realm.Descriptor{Value: "PDF Viewer"}))

	w, err := r.Wrap(plugin)
	require.NoError(t, err)
	assert.NotEqual(t, plugin, w)

	name, err := r.Get(w, "name")
	require.NoError(t, err)
	assert.Equal(t, "PDF Viewer", name)
	class, err := r.ClassString(w)
	require.NoError(t, err)
	assert.Equal(t, "[object Plugin]", class)

	d, ok, err := r.OwnProperty(plugin, "name")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, realm.Flags{}, d.Flags)
}

func TestDefineProperty_RejectsNonConfigurable(t *testing.T) {
	t.Parallel()
	r := newChrome(t)
	obj, err := r.NewObject(mustProto(t, r, "MimeType"))
	require.NoError(t, err)
	require.NoError(t, r.DefineProperty(obj, "type", realm.Descriptor{Value: "text/pdf"}))

	err = r.DefineProperty(obj, "type", realm.Descriptor{Value: "application/pdf", Flags: realm.Flags{Enumerable: true}})
	assert.Error(t, err)

	keys, err := r.OwnKeys(obj)
	require.NoError(t, err)
	assert.Equal(t, []string{"type"}, keys)
	enumerable, err := r.EnumerableKeys(obj)
	require.NoError(t, err)
	assert.Empty(t, enumerable)
}
