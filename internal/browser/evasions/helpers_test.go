package evasions_test

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-mimic/api/schemas"
	"github.com/xkilldash9x/scalpel-mimic/internal/browser/evasions"
	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm"
	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm/gojarealm"
	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm/memory"
)

// target is a realm under test together with its inspector.
type target struct {
	realm.Realm
	realm.Inspector
}

// nativeGetJS makes the stand-in KeyboardLayoutMap.get recognizable, so a
// fall-through to the original is observable.
const nativeGetJS = `
if (typeof KeyboardLayoutMap !== 'undefined') {
	Object.defineProperty(KeyboardLayoutMap.prototype, 'get', {
		value: function get(code) { return arguments.length ? 'native:' + code : 'native-empty'; },
		writable: true, enumerable: true, configurable: true,
	});
}
`

func nativeGet(_ realm.Value, args []realm.Value) (realm.Value, error) {
	if len(args) == 0 {
		return "native-empty", nil
	}
	return "native:" + realm.ToString(args[0]), nil
}

// newMemory builds a memory realm with the Chrome surface minus drop.
func newMemory(drop ...string) target {
	r := memory.New(realm.ChromeSurface().Without(drop...), memory.WithNative("KeyboardLayoutMap", "get", nativeGet))
	return target{r, r}
}

func newGoja(t *testing.T, drop ...string) target {
	t.Helper()
	vm := goja.New()
	require.NoError(t, gojarealm.InstallSurface(vm, realm.ChromeSurface().Without(drop...)))
	_, err := vm.RunString(nativeGetJS)
	require.NoError(t, err)
	r, err := gojarealm.New(vm)
	require.NoError(t, err)
	return target{r, r}
}

// eachRealm runs fn against a fresh memory realm and a fresh goja realm.
func eachRealm(t *testing.T, fn func(t *testing.T, tg target)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		fn(t, newMemory())
	})
	t.Run("goja", func(t *testing.T) {
		t.Parallel()
		fn(t, newGoja(t))
	})
}

func profile(t *testing.T, name string) *schemas.Dataset {
	t.Helper()
	ds, err := evasions.LoadProfile(name)
	require.NoError(t, err)
	return ds
}

func get(t *testing.T, in realm.Inspector, obj realm.Handle, key string) realm.Value {
	t.Helper()
	v, err := in.Get(obj, key)
	require.NoError(t, err)
	return v
}

func getObject(t *testing.T, in realm.Inspector, obj realm.Handle, key string) realm.Handle {
	t.Helper()
	v := get(t, in, obj, key)
	h, ok := realm.AsHandle(v)
	require.Truef(t, ok, "%s is %v, not an object", key, v)
	return h
}

func navigator(t *testing.T, in realm.Inspector) realm.Handle {
	t.Helper()
	v, err := in.Global("navigator")
	require.NoError(t, err)
	h, ok := realm.AsHandle(v)
	require.True(t, ok, "navigator is not an object")
	return h
}

// invoke calls obj[method](args...).
func invoke(t *testing.T, in realm.Inspector, obj realm.Handle, method string, args ...realm.Value) (realm.Value, error) {
	t.Helper()
	fn := getObject(t, in, obj, method)
	return in.Call(fn, obj, args...)
}

// accessor returns the getter currently installed for proto[key].
func accessor(t *testing.T, tg target, iface, key string) realm.Handle {
	t.Helper()
	proto, err := tg.Prototype(iface)
	require.NoError(t, err)
	d, ok, err := tg.OwnProperty(proto, key)
	require.NoError(t, err)
	require.True(t, ok)
	h, isObj := realm.AsHandle(d.Value)
	require.True(t, isObj)
	return h
}
