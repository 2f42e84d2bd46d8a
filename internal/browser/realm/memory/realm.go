// Package memory implements realm.Realm with plain Go structures. It models
// just enough of ECMAScript object semantics (prototype chains, property
// descriptors, key ordering, proxies, Function.prototype.toString) to check
// the evasions without a browser engine.
package memory

import (
	"fmt"

	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm"
)

type patchKey struct {
	obj *object
	key string
}

// Realm is an in-memory stand-in for a browser realm.
type Realm struct {
	objects   []*object
	protos    map[string]*object
	globals   map[string]realm.Value
	masks     map[*object]string
	originals map[patchKey]*property

	objectProto *object
}

var (
	_ realm.Realm     = (*Realm)(nil)
	_ realm.Inspector = (*Realm)(nil)
)

// Option customizes the stand-in surface.
type Option func(*builder)

type builder struct {
	natives map[string]NativeFunc
}

// WithNative replaces the body of the stand-in built-in iface.member, e.g.
// to make an original method return a recognizable sentinel in tests.
func WithNative(iface, member string, fn NativeFunc) Option {
	return func(b *builder) { b.natives[iface+"."+member] = fn }
}

// New builds a realm exposing surface.
func New(surface realm.Surface, opts ...Option) *Realm {
	b := &builder{natives: make(map[string]NativeFunc)}
	for _, opt := range opts {
		opt(b)
	}

	r := &Realm{
		objects:   []*object{nil},
		protos:    make(map[string]*object),
		globals:   make(map[string]realm.Value),
		masks:     make(map[*object]string),
		originals: make(map[patchKey]*property),
	}
	r.objectProto = r.alloc(nil)
	r.objectProto.tag = "Object"

	for _, iface := range surface.Interfaces {
		proto := r.alloc(r.objectProto)
		proto.tag = iface.Name
		r.protos[iface.Name] = proto
	}
	// Second pass so getters can hand out instances of any interface.
	for _, iface := range surface.Interfaces {
		proto := r.protos[iface.Name]
		for _, g := range iface.Getters {
			body := b.natives[iface.Name+"."+g.Name]
			if body == nil {
				body = r.defaultGetter(g)
			}
			fn := r.newFunction("get "+g.Name, 0, body)
			proto.set(g.Name, &property{
				accessor: true,
				getter:   fn,
				flags:    realm.Flags{Enumerable: true, Configurable: true},
			})
		}
		for _, m := range iface.Methods {
			body := b.natives[iface.Name+"."+m.Name]
			if body == nil {
				body = defaultMethod(m)
			}
			fn := r.newFunction(m.Name, m.Length, body)
			proto.set(m.Name, &property{
				value: fn.handle,
				flags: realm.Flags{Enumerable: true, Writable: true, Configurable: true},
			})
		}
	}
	for _, inst := range surface.Instances {
		if proto, ok := r.protos[inst.Interface]; ok {
			r.globals[inst.Global] = r.alloc(proto).handle
		}
	}
	return r
}

func (r *Realm) alloc(proto *object) *object {
	o := newObject(realm.Handle(len(r.objects)), proto)
	r.objects = append(r.objects, o)
	return o
}

func (r *Realm) newFunction(name string, length int, body NativeFunc) *object {
	o := r.alloc(r.objectProto)
	o.fn = &function{name: name, length: length, body: body}
	return o
}

func (r *Realm) defaultGetter(g realm.GetterSpec) NativeFunc {
	if g.Returns != "" {
		var empty realm.Value = realm.Null
		if proto, ok := r.protos[g.Returns]; ok {
			inst := r.alloc(proto)
			empty = inst.handle
		}
		return func(realm.Value, []realm.Value) (realm.Value, error) { return empty, nil }
	}
	if g.Name == "length" || g.Name == "size" {
		return func(realm.Value, []realm.Value) (realm.Value, error) { return 0, nil }
	}
	return func(realm.Value, []realm.Value) (realm.Value, error) { return realm.Undefined, nil }
}

func defaultMethod(m realm.MethodSpec) NativeFunc {
	switch m.Name {
	case "item", "namedItem":
		return func(_ realm.Value, args []realm.Value) (realm.Value, error) {
			if len(args) == 0 {
				return nil, realm.TypeError("Failed to execute '%s': 1 argument required, but only 0 present.", m.Name)
			}
			return realm.Null, nil
		}
	case "get":
		return func(_ realm.Value, args []realm.Value) (realm.Value, error) {
			if len(args) == 0 {
				return realm.Undefined, nil
			}
			if v, ok := realm.USLayout[realm.ToString(args[0])]; ok {
				return v, nil
			}
			return realm.Undefined, nil
		}
	case "has":
		return func(_ realm.Value, args []realm.Value) (realm.Value, error) {
			if len(args) == 0 {
				return false, nil
			}
			_, ok := realm.USLayout[realm.ToString(args[0])]
			return ok, nil
		}
	default:
		return func(realm.Value, []realm.Value) (realm.Value, error) { return realm.Undefined, nil }
	}
}

func (r *Realm) lookup(h realm.Handle) (*object, error) {
	if !h.Valid() || int(h) >= len(r.objects) {
		return nil, fmt.Errorf("%w: %v", realm.ErrInvalidHandle, h)
	}
	return r.objects[h], nil
}

// -- realm.Realm --

// Prototype implements realm.Realm.
func (r *Realm) Prototype(iface string) (realm.Handle, error) {
	proto, ok := r.protos[iface]
	if !ok {
		return realm.NoHandle, realm.MissingFeature(iface, "")
	}
	return proto.handle, nil
}

// NewObject implements realm.Realm.
func (r *Realm) NewObject(proto realm.Handle) (realm.Handle, error) {
	p, err := r.lookup(proto)
	if err != nil {
		return realm.NoHandle, err
	}
	return r.alloc(p).handle, nil
}

// DefineProperty implements realm.Realm. Redefining a non-configurable
// property fails the way Object.defineProperty does.
func (r *Realm) DefineProperty(obj realm.Handle, key string, d realm.Descriptor) error {
	o, err := r.lookup(obj)
	if err != nil {
		return err
	}
	if existing, ok := o.own(key); ok && !existing.flags.Configurable {
		return realm.TypeError("Cannot redefine property: %s", key)
	}
	v := d.Value
	if v == nil {
		v = realm.Undefined
	}
	o.set(key, &property{value: v, flags: d.Flags})
	return nil
}

// Wrap implements realm.Realm.
func (r *Realm) Wrap(target realm.Handle) (realm.Handle, error) {
	t, err := r.lookup(target)
	if err != nil {
		return realm.NoHandle, err
	}
	p := r.alloc(nil)
	p.proxy = &proxy{target: t, trap: realm.Trap{Kind: realm.TrapPassthrough}}
	return p.handle, nil
}

// TrapGetter implements realm.Realm.
func (r *Realm) TrapGetter(obj realm.Handle, key string, trap realm.Trap) (realm.Handle, error) {
	o, err := r.lookup(obj)
	if err != nil {
		return realm.NoHandle, err
	}
	prop, ok := o.own(key)
	if !ok || !prop.accessor || prop.getter == nil {
		return realm.NoHandle, realm.MissingFeature(o.tag, key)
	}
	p := r.newProxy(prop.getter, trap)
	r.remember(o, key, prop)
	o.set(key, &property{accessor: true, getter: p, flags: prop.flags})
	return p.handle, nil
}

// TrapMethod implements realm.Realm.
func (r *Realm) TrapMethod(obj realm.Handle, key string, trap realm.Trap) (realm.Handle, error) {
	o, err := r.lookup(obj)
	if err != nil {
		return realm.NoHandle, err
	}
	prop, ok := o.own(key)
	if !ok || prop.accessor {
		return realm.NoHandle, realm.MissingFeature(o.tag, key)
	}
	h, isObj := realm.AsHandle(prop.value)
	if !isObj {
		return realm.NoHandle, realm.MissingFeature(o.tag, key)
	}
	fn, err := r.lookup(h)
	if err != nil || !fn.callable() {
		return realm.NoHandle, realm.MissingFeature(o.tag, key)
	}
	p := r.newProxy(fn, trap)
	r.remember(o, key, prop)
	o.set(key, &property{value: p.handle, flags: prop.flags})
	return p.handle, nil
}

func (r *Realm) newProxy(target *object, trap realm.Trap) *object {
	p := r.alloc(nil)
	p.proxy = &proxy{target: target, trap: trap, redirect: target}
	return p
}

// remember keeps the first original only, so stacked traps restore cleanly.
func (r *Realm) remember(o *object, key string, prop *property) {
	k := patchKey{obj: o.target(), key: key}
	if _, seen := r.originals[k]; !seen {
		r.originals[k] = prop
	}
}

// Disguise implements realm.Realm.
func (r *Realm) Disguise(fn realm.Handle, meta realm.FunctionMeta) error {
	o, err := r.lookup(fn)
	if err != nil {
		return err
	}
	if !o.callable() {
		return realm.TypeError("cannot disguise a non-callable object")
	}
	f := o.target().fn
	if meta.Name != "" && f.name != meta.Name {
		f.name = meta.Name
	}
	if f.length != meta.Length {
		f.length = meta.Length
	}
	if meta.Source != "" {
		r.masks[o] = meta.Source
	}
	return nil
}

// Restore implements realm.Realm.
func (r *Realm) Restore(obj realm.Handle, key string) error {
	o, err := r.lookup(obj)
	if err != nil {
		return err
	}
	k := patchKey{obj: o.target(), key: key}
	orig, ok := r.originals[k]
	if !ok {
		return fmt.Errorf("memory: nothing to restore for %s.%s", o.tag, key)
	}
	o.set(key, orig)
	delete(r.originals, k)
	return nil
}
