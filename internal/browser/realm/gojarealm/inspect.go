package gojarealm

import (
	"github.com/dop251/goja"

	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm"
)

// Global implements realm.Inspector.
func (r *Realm) Global(name string) (realm.Value, error) {
	var v goja.Value
	if err := r.try(func() { v = r.vm.GlobalObject().Get(name) }); err != nil {
		return nil, err
	}
	return r.fromJS(v), nil
}

// Get implements realm.Inspector.
func (r *Realm) Get(obj realm.Handle, key string) (realm.Value, error) {
	o, err := r.Object(obj)
	if err != nil {
		return nil, err
	}
	var v goja.Value
	if err := r.try(func() { v = o.Get(key) }); err != nil {
		return nil, err
	}
	return r.fromJS(v), nil
}

// Call implements realm.Inspector.
func (r *Realm) Call(fn realm.Handle, this realm.Value, args ...realm.Value) (realm.Value, error) {
	o, err := r.Object(fn)
	if err != nil {
		return nil, err
	}
	call, ok := goja.AssertFunction(o)
	if !ok {
		return nil, realm.TypeError("%v is not a function", fn)
	}
	jsArgs := make([]goja.Value, len(args))
	for i, a := range args {
		jsArgs[i] = r.toJS(a)
	}
	v, err := call(r.toJS(this), jsArgs...)
	if err != nil {
		return nil, jsError(err)
	}
	return r.fromJS(v), nil
}

// OwnKeys implements realm.Inspector.
func (r *Realm) OwnKeys(obj realm.Handle) ([]string, error) {
	o, err := r.Object(obj)
	if err != nil {
		return nil, err
	}
	var keys []string
	if err := r.try(func() { keys = o.GetOwnPropertyNames() }); err != nil {
		return nil, err
	}
	return keys, nil
}

// EnumerableKeys implements realm.Inspector.
func (r *Realm) EnumerableKeys(obj realm.Handle) ([]string, error) {
	o, err := r.Object(obj)
	if err != nil {
		return nil, err
	}
	keys := []string{}
	if err := r.try(func() { keys = append(keys, o.Keys()...) }); err != nil {
		return nil, err
	}
	return keys, nil
}

// OwnProperty implements realm.Inspector.
func (r *Realm) OwnProperty(obj realm.Handle, key string) (realm.Descriptor, bool, error) {
	o, err := r.Object(obj)
	if err != nil {
		return realm.Descriptor{}, false, err
	}
	d, err := r.descriptor(o, key)
	if err != nil || d == nil {
		return realm.Descriptor{}, false, err
	}
	orig := r.snapshot(d)
	desc := realm.Descriptor{Flags: realm.Flags{
		Enumerable:   orig.enumerable,
		Writable:     orig.writable,
		Configurable: orig.configurable,
	}}
	if orig.accessor {
		desc.Value = r.fromJS(orig.getter)
	} else {
		desc.Value = r.fromJS(orig.value)
	}
	return desc, true, nil
}

// PrototypeOf implements realm.Inspector.
func (r *Realm) PrototypeOf(obj realm.Handle) (realm.Handle, error) {
	o, err := r.Object(obj)
	if err != nil {
		return realm.NoHandle, err
	}
	var p *goja.Object
	if err := r.try(func() { p = o.Prototype() }); err != nil {
		return realm.NoHandle, err
	}
	if p == nil {
		return realm.NoHandle, nil
	}
	return r.Handle(p), nil
}

// ClassString implements realm.Inspector.
func (r *Realm) ClassString(obj realm.Handle) (string, error) {
	o, err := r.Object(obj)
	if err != nil {
		return "", err
	}
	v, err := r.objectToString(o)
	if err != nil {
		return "", jsError(err)
	}
	return v.String(), nil
}

// Source implements realm.Inspector. It goes through whatever
// Function.prototype.toString currently is, exactly as a page script would.
func (r *Realm) Source(fn realm.Handle) (string, error) {
	o, err := r.Object(fn)
	if err != nil {
		return "", err
	}
	toString, ok := goja.AssertFunction(r.functionProto.Get("toString"))
	if !ok {
		return "", realm.TypeError("Function.prototype.toString is not a function")
	}
	v, err := toString(o)
	if err != nil {
		return "", jsError(err)
	}
	return v.String(), nil
}
