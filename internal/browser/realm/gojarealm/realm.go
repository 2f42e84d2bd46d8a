// Package gojarealm implements realm.Realm on top of a live goja runtime, so
// the evasions can be checked with genuine ECMAScript semantics (proxies,
// descriptor validation, Object.prototype.toString, JSON.stringify) without
// launching a browser.
package gojarealm

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm"
)

type mask struct {
	source string
	target *goja.Object
}

type patchKey struct {
	obj *goja.Object
	key string
}

type original struct {
	accessor     bool
	value        goja.Value
	getter       goja.Value
	setter       goja.Value
	writable     bool
	enumerable   bool
	configurable bool
}

// Realm drives a goja runtime through the realm capability set. Like the
// runtime itself it must only be used from one goroutine.
type Realm struct {
	vm        *goja.Runtime
	objects   []*goja.Object
	handles   map[*goja.Object]realm.Handle
	masks     map[*goja.Object]mask
	originals map[patchKey]original

	getOwnPropertyDescriptor goja.Callable
	objectToString           goja.Callable
	functionProto            *goja.Object
	nativeToString           *goja.Object
	hooked                   bool
}

var (
	_ realm.Realm     = (*Realm)(nil)
	_ realm.Inspector = (*Realm)(nil)
)

// New binds a realm to vm. It captures the pristine builtins it relies on,
// so it must run before any untrusted script touches vm.
func New(vm *goja.Runtime) (*Realm, error) {
	r := &Realm{
		vm:        vm,
		objects:   []*goja.Object{nil},
		handles:   make(map[*goja.Object]realm.Handle),
		masks:     make(map[*goja.Object]mask),
		originals: make(map[patchKey]original),
	}

	objectCtor := vm.Get("Object").ToObject(vm)
	gopd, ok := goja.AssertFunction(objectCtor.Get("getOwnPropertyDescriptor"))
	if !ok {
		return nil, fmt.Errorf("gojarealm: Object.getOwnPropertyDescriptor is not callable")
	}
	r.getOwnPropertyDescriptor = gopd

	objectProto := objectCtor.Get("prototype").ToObject(vm)
	ots, ok := goja.AssertFunction(objectProto.Get("toString"))
	if !ok {
		return nil, fmt.Errorf("gojarealm: Object.prototype.toString is not callable")
	}
	r.objectToString = ots

	r.functionProto = vm.Get("Function").ToObject(vm).Get("prototype").ToObject(vm)
	r.nativeToString = r.functionProto.Get("toString").ToObject(vm)
	return r, nil
}

// Runtime exposes the underlying goja runtime.
func (r *Realm) Runtime() *goja.Runtime { return r.vm }

// Object returns the goja object behind h.
func (r *Realm) Object(h realm.Handle) (*goja.Object, error) {
	if !h.Valid() || int(h) >= len(r.objects) {
		return nil, fmt.Errorf("%w: %v", realm.ErrInvalidHandle, h)
	}
	return r.objects[h], nil
}

// Handle registers o (or returns its existing handle). Object identity in
// the engine maps to handle equality.
func (r *Realm) Handle(o *goja.Object) realm.Handle {
	if h, ok := r.handles[o]; ok {
		return h
	}
	h := realm.Handle(len(r.objects))
	r.objects = append(r.objects, o)
	r.handles[o] = h
	return h
}

func (r *Realm) toJS(v realm.Value) goja.Value {
	switch x := v.(type) {
	case nil:
		return goja.Undefined()
	case realm.Handle:
		if o, err := r.Object(x); err == nil {
			return o
		}
		return goja.Undefined()
	}
	switch {
	case realm.IsUndefined(v):
		return goja.Undefined()
	case realm.IsNull(v):
		return goja.Null()
	}
	return r.vm.ToValue(v)
}

func (r *Realm) fromJS(v goja.Value) realm.Value {
	if v == nil || goja.IsUndefined(v) {
		return realm.Undefined
	}
	if goja.IsNull(v) {
		return realm.Null
	}
	if o, ok := v.(*goja.Object); ok {
		return r.Handle(o)
	}
	switch x := v.Export().(type) {
	case int64:
		return int(x)
	case float64, bool, string:
		return x
	default:
		return v.String()
	}
}

func flag(b bool) goja.Flag {
	if b {
		return goja.FLAG_TRUE
	}
	return goja.FLAG_FALSE
}

// jsError converts a goja failure into a realm error.
func jsError(err error) error {
	if err == nil {
		return nil
	}
	ex, ok := err.(*goja.Exception)
	if !ok {
		return err
	}
	return exceptionError(ex)
}

func exceptionError(ex *goja.Exception) *realm.JSError {
	if obj, ok := ex.Value().(*goja.Object); ok {
		name := obj.Get("name")
		msg := obj.Get("message")
		e := &realm.JSError{Name: "Error"}
		if name != nil && !goja.IsUndefined(name) {
			e.Name = name.String()
		}
		if msg != nil && !goja.IsUndefined(msg) {
			e.Message = msg.String()
		}
		return e
	}
	return &realm.JSError{Name: "Error", Message: ex.Value().String()}
}

// try runs f and converts a thrown JavaScript exception into an error.
func (r *Realm) try(f func()) error {
	if ex := r.vm.Try(f); ex != nil {
		return exceptionError(ex)
	}
	return nil
}

// -- realm.Realm --

// Prototype implements realm.Realm.
func (r *Realm) Prototype(iface string) (realm.Handle, error) {
	ctor := r.vm.GlobalObject().Get(iface)
	c, ok := ctor.(*goja.Object)
	if !ok {
		return realm.NoHandle, realm.MissingFeature(iface, "")
	}
	proto, ok := c.Get("prototype").(*goja.Object)
	if !ok {
		return realm.NoHandle, realm.MissingFeature(iface, "prototype")
	}
	return r.Handle(proto), nil
}

// NewObject implements realm.Realm.
func (r *Realm) NewObject(proto realm.Handle) (realm.Handle, error) {
	p, err := r.Object(proto)
	if err != nil {
		return realm.NoHandle, err
	}
	return r.Handle(r.vm.CreateObject(p)), nil
}

// DefineProperty implements realm.Realm.
func (r *Realm) DefineProperty(obj realm.Handle, key string, d realm.Descriptor) error {
	o, err := r.Object(obj)
	if err != nil {
		return err
	}
	return jsError(o.DefineDataProperty(key, r.toJS(d.Value), flag(d.Writable), flag(d.Configurable), flag(d.Enumerable)))
}

// Wrap implements realm.Realm.
func (r *Realm) Wrap(target realm.Handle) (realm.Handle, error) {
	t, err := r.Object(target)
	if err != nil {
		return realm.NoHandle, err
	}
	var p *goja.Object
	if err := r.try(func() {
		p = r.vm.ToValue(r.vm.NewProxy(t, &goja.ProxyTrapConfig{})).(*goja.Object)
	}); err != nil {
		return realm.NoHandle, err
	}
	return r.Handle(p), nil
}

// descriptor reads obj's own descriptor for key, or nil.
func (r *Realm) descriptor(o *goja.Object, key string) (*goja.Object, error) {
	v, err := r.getOwnPropertyDescriptor(goja.Undefined(), o, r.vm.ToValue(key))
	if err != nil {
		return nil, jsError(err)
	}
	d, _ := v.(*goja.Object)
	return d, nil
}

func (r *Realm) snapshot(d *goja.Object) original {
	orig := original{
		enumerable:   d.Get("enumerable").ToBoolean(),
		configurable: d.Get("configurable").ToBoolean(),
	}
	if get := d.Get("get"); get != nil {
		orig.accessor = true
		orig.getter = get
		orig.setter = d.Get("set")
		return orig
	}
	orig.value = d.Get("value")
	orig.writable = d.Get("writable").ToBoolean()
	return orig
}

// TrapGetter implements realm.Realm.
func (r *Realm) TrapGetter(obj realm.Handle, key string, trap realm.Trap) (realm.Handle, error) {
	o, err := r.Object(obj)
	if err != nil {
		return realm.NoHandle, err
	}
	d, err := r.descriptor(o, key)
	if err != nil {
		return realm.NoHandle, err
	}
	if d == nil {
		return realm.NoHandle, realm.MissingFeature(o.ClassName(), key)
	}
	orig := r.snapshot(d)
	getter, ok := orig.getter.(*goja.Object)
	if !orig.accessor || !ok {
		return realm.NoHandle, realm.MissingFeature(o.ClassName(), key)
	}
	p, err := r.trapProxy(getter, trap)
	if err != nil {
		return realm.NoHandle, err
	}
	if err := o.DefineAccessorProperty(key, p, orig.setter, flag(orig.configurable), flag(orig.enumerable)); err != nil {
		return realm.NoHandle, jsError(err)
	}
	r.remember(o, key, orig)
	return r.Handle(p), nil
}

// TrapMethod implements realm.Realm.
func (r *Realm) TrapMethod(obj realm.Handle, key string, trap realm.Trap) (realm.Handle, error) {
	o, err := r.Object(obj)
	if err != nil {
		return realm.NoHandle, err
	}
	d, err := r.descriptor(o, key)
	if err != nil {
		return realm.NoHandle, err
	}
	if d == nil {
		return realm.NoHandle, realm.MissingFeature(o.ClassName(), key)
	}
	orig := r.snapshot(d)
	fn, ok := orig.value.(*goja.Object)
	if orig.accessor || !ok {
		return realm.NoHandle, realm.MissingFeature(o.ClassName(), key)
	}
	if _, callable := goja.AssertFunction(fn); !callable {
		return realm.NoHandle, realm.MissingFeature(o.ClassName(), key)
	}
	p, err := r.trapProxy(fn, trap)
	if err != nil {
		return realm.NoHandle, err
	}
	if err := o.DefineDataProperty(key, p, flag(orig.writable), flag(orig.configurable), flag(orig.enumerable)); err != nil {
		return realm.NoHandle, jsError(err)
	}
	r.remember(o, key, orig)
	return r.Handle(p), nil
}

func (r *Realm) remember(o *goja.Object, key string, orig original) {
	k := patchKey{obj: o, key: key}
	if _, seen := r.originals[k]; !seen {
		r.originals[k] = orig
	}
}

// trapProxy builds the proxy for target and redirects its source to target.
func (r *Realm) trapProxy(target *goja.Object, trap realm.Trap) (*goja.Object, error) {
	if err := r.hookToString(); err != nil {
		return nil, err
	}
	var p *goja.Object
	if err := r.try(func() {
		p = r.vm.ToValue(r.vm.NewProxy(target, r.handler(trap))).(*goja.Object)
	}); err != nil {
		return nil, err
	}
	r.masks[p] = mask{target: target}
	return p, nil
}

// Disguise implements realm.Realm.
func (r *Realm) Disguise(fn realm.Handle, meta realm.FunctionMeta) error {
	o, err := r.Object(fn)
	if err != nil {
		return err
	}
	if _, ok := goja.AssertFunction(o); !ok {
		return realm.TypeError("cannot disguise a non-callable object")
	}
	if err := r.hookToString(); err != nil {
		return err
	}
	if meta.Name != "" && o.Get("name").String() != meta.Name {
		if err := o.DefineDataProperty("name", r.vm.ToValue(meta.Name), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
			return jsError(err)
		}
	}
	if o.Get("length").ToInteger() != int64(meta.Length) {
		if err := o.DefineDataProperty("length", r.vm.ToValue(meta.Length), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
			return jsError(err)
		}
	}
	if meta.Source != "" {
		r.masks[o] = mask{source: meta.Source}
	}
	return nil
}

// Restore implements realm.Realm.
func (r *Realm) Restore(obj realm.Handle, key string) error {
	o, err := r.Object(obj)
	if err != nil {
		return err
	}
	k := patchKey{obj: o, key: key}
	orig, ok := r.originals[k]
	if !ok {
		return fmt.Errorf("gojarealm: nothing to restore for %s", key)
	}
	if orig.accessor {
		err = o.DefineAccessorProperty(key, orig.getter, orig.setter, flag(orig.configurable), flag(orig.enumerable))
	} else {
		err = o.DefineDataProperty(key, orig.value, flag(orig.writable), flag(orig.configurable), flag(orig.enumerable))
	}
	if err != nil {
		return jsError(err)
	}
	delete(r.originals, k)
	return nil
}
