package memory

import (
	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm"
)

// Global implements realm.Inspector.
func (r *Realm) Global(name string) (realm.Value, error) {
	if v, ok := r.globals[name]; ok {
		return v, nil
	}
	return realm.Undefined, nil
}

// Get implements realm.Inspector.
func (r *Realm) Get(obj realm.Handle, key string) (realm.Value, error) {
	o, err := r.lookup(obj)
	if err != nil {
		return nil, err
	}
	return r.get(o, key, obj)
}

func (r *Realm) get(o *object, key string, receiver realm.Value) (realm.Value, error) {
	for cur := o; cur != nil; cur = cur.target().proto {
		if p, ok := cur.own(key); ok {
			if p.accessor {
				if p.getter == nil {
					return realm.Undefined, nil
				}
				return r.call(p.getter, receiver, nil)
			}
			return p.value, nil
		}
		if cur.callable() {
			switch key {
			case "name":
				return cur.target().fn.name, nil
			case "length":
				return cur.target().fn.length, nil
			}
		}
	}
	return realm.Undefined, nil
}

// Call implements realm.Inspector.
func (r *Realm) Call(fn realm.Handle, this realm.Value, args ...realm.Value) (realm.Value, error) {
	o, err := r.lookup(fn)
	if err != nil {
		return nil, err
	}
	return r.call(o, this, args)
}

func (r *Realm) call(o *object, this realm.Value, args []realm.Value) (realm.Value, error) {
	if o.proxy != nil {
		return r.apply(o.proxy, this, args)
	}
	if o.fn == nil {
		return nil, realm.TypeError("%v is not a function", o.handle)
	}
	return o.fn.body(this, args)
}

// apply is the proxy [[Call]]. It reads only the immutable trap description,
// so nested invocations need no coordination.
func (r *Realm) apply(p *proxy, this realm.Value, args []realm.Value) (realm.Value, error) {
	t := p.trap
	switch t.Kind {
	case realm.TrapReturn:
		if t.Value == nil {
			return realm.Undefined, nil
		}
		return t.Value, nil

	case realm.TrapOverride:
		if len(args) > 0 {
			if v, ok := t.Overrides[realm.ToString(args[0])]; ok {
				return v, nil
			}
		}
		return r.call(p.target, this, args)

	case realm.TrapItem, realm.TrapNamedItem:
		recv, _ := realm.AsHandle(this)
		tbl, ok := t.Table(recv)
		if !ok {
			return r.call(p.target, this, args)
		}
		if len(args) == 0 {
			return nil, realm.TypeError("%s", t.ArityMessage())
		}
		if t.Kind == realm.TrapItem {
			i := realm.ToIndex(realm.ToNumber(args[0]))
			if uint64(i) < uint64(len(tbl.Entries)) && tbl.Entries[i].Valid() {
				return tbl.Entries[i], nil
			}
			return realm.Null, nil
		}
		if h, ok := tbl.Lookup(realm.ToString(args[0])); ok {
			return h, nil
		}
		return realm.Null, nil

	default:
		return r.call(p.target, this, args)
	}
}

// OwnKeys implements realm.Inspector.
func (r *Realm) OwnKeys(obj realm.Handle) ([]string, error) {
	o, err := r.lookup(obj)
	if err != nil {
		return nil, err
	}
	return o.keys(), nil
}

// EnumerableKeys implements realm.Inspector.
func (r *Realm) EnumerableKeys(obj realm.Handle) ([]string, error) {
	o, err := r.lookup(obj)
	if err != nil {
		return nil, err
	}
	keys := []string{}
	for _, k := range o.keys() {
		if p, _ := o.own(k); p.flags.Enumerable {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// OwnProperty implements realm.Inspector.
func (r *Realm) OwnProperty(obj realm.Handle, key string) (realm.Descriptor, bool, error) {
	o, err := r.lookup(obj)
	if err != nil {
		return realm.Descriptor{}, false, err
	}
	p, ok := o.own(key)
	if !ok {
		return realm.Descriptor{}, false, nil
	}
	if p.accessor {
		v := realm.Value(realm.Undefined)
		if p.getter != nil {
			v = p.getter.handle
		}
		return realm.Descriptor{Value: v, Flags: p.flags}, true, nil
	}
	return realm.Descriptor{Value: p.value, Flags: p.flags}, true, nil
}

// PrototypeOf implements realm.Inspector.
func (r *Realm) PrototypeOf(obj realm.Handle) (realm.Handle, error) {
	o, err := r.lookup(obj)
	if err != nil {
		return realm.NoHandle, err
	}
	if p := o.target().proto; p != nil {
		return p.handle, nil
	}
	return realm.NoHandle, nil
}

// ClassString implements realm.Inspector.
func (r *Realm) ClassString(obj realm.Handle) (string, error) {
	o, err := r.lookup(obj)
	if err != nil {
		return "", err
	}
	if o.callable() {
		return "[object Function]", nil
	}
	for cur := o.target(); cur != nil; cur = cur.proto {
		if cur.tag != "" {
			return "[object " + cur.tag + "]", nil
		}
	}
	return "[object Object]", nil
}

// Source implements realm.Inspector.
func (r *Realm) Source(fn realm.Handle) (string, error) {
	o, err := r.lookup(fn)
	if err != nil {
		return "", err
	}
	return r.source(o)
}

func (r *Realm) source(o *object) (string, error) {
	if src, ok := r.masks[o]; ok {
		return src, nil
	}
	if !o.callable() {
		return "", realm.TypeError("Function.prototype.toString requires that 'this' be a Function")
	}
	if o.proxy != nil {
		if o.proxy.redirect != nil {
			return r.source(o.proxy.redirect)
		}
		// Engines print an anonymous native function for bare proxies.
		return realm.NativeSource(""), nil
	}
	return realm.NativeSource(o.fn.name), nil
}
