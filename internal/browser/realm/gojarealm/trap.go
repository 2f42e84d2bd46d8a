package gojarealm

import (
	"github.com/dop251/goja"

	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm"
)

// handler realizes a declarative trap as a goja proxy handler. The returned
// closures only read trap and the realm's immutable tables.
func (r *Realm) handler(trap realm.Trap) *goja.ProxyTrapConfig {
	cfg := &goja.ProxyTrapConfig{}
	if trap.Kind == realm.TrapPassthrough {
		return cfg
	}

	tables := make(map[*goja.Object]realm.Table, len(trap.Tables))
	for _, tbl := range trap.Tables {
		if o, err := r.Object(tbl.Owner); err == nil {
			tables[o] = tbl
		}
	}

	cfg.Apply = func(target *goja.Object, this goja.Value, args []goja.Value) goja.Value {
		switch trap.Kind {
		case realm.TrapReturn:
			return r.toJS(trap.Value)

		case realm.TrapOverride:
			if len(args) > 0 {
				if v, ok := trap.Overrides[args[0].String()]; ok {
					return r.vm.ToValue(v)
				}
			}
			return r.forward(target, this, args)

		case realm.TrapItem, realm.TrapNamedItem:
			recv, _ := this.(*goja.Object)
			tbl, ok := tables[recv]
			if recv == nil || !ok {
				return r.forward(target, this, args)
			}
			if len(args) == 0 {
				panic(r.vm.NewTypeError(trap.ArityMessage()))
			}
			if trap.Kind == realm.TrapItem {
				i := realm.ToIndex(args[0].ToFloat())
				if uint64(i) < uint64(len(tbl.Entries)) && tbl.Entries[i].Valid() {
					return r.toJS(tbl.Entries[i])
				}
				return goja.Null()
			}
			if h, ok := tbl.Lookup(args[0].String()); ok {
				return r.toJS(h)
			}
			return goja.Null()

		default:
			return r.forward(target, this, args)
		}
	}
	return cfg
}

// forward calls target, rethrowing any exception into the calling script.
func (r *Realm) forward(target *goja.Object, this goja.Value, args []goja.Value) goja.Value {
	fn, ok := goja.AssertFunction(target)
	if !ok {
		panic(r.vm.NewTypeError("%s is not a function", target.String()))
	}
	v, err := fn(this, args...)
	if err != nil {
		if ex, ok := err.(*goja.Exception); ok {
			panic(ex.Value())
		}
		panic(r.vm.NewGoError(err))
	}
	return v
}

// hookToString replaces Function.prototype.toString once per realm with a
// proxy that consults the mask table. The hook reports the native source.
func (r *Realm) hookToString() error {
	if r.hooked {
		return nil
	}
	native := r.nativeToString
	var hook *goja.Object
	err := r.try(func() {
		hook = r.vm.ToValue(r.vm.NewProxy(native, &goja.ProxyTrapConfig{
			Apply: func(target *goja.Object, this goja.Value, args []goja.Value) goja.Value {
				if o, ok := this.(*goja.Object); ok {
					if src, ok := r.maskedSource(o); ok {
						return r.vm.ToValue(src)
					}
					this = r.unmask(o)
				}
				return r.forward(target, this, args)
			},
		})).(*goja.Object)
	})
	if err != nil {
		return err
	}
	if err := r.functionProto.DefineDataProperty("toString", hook, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		return jsError(err)
	}
	r.masks[hook] = mask{source: realm.NativeSource("toString")}
	r.hooked = true
	return nil
}

// maskedSource follows redirects until it meets a pinned source.
func (r *Realm) maskedSource(o *goja.Object) (string, bool) {
	for depth := 0; depth < 64; depth++ {
		m, ok := r.masks[o]
		if !ok {
			return "", false
		}
		if m.source != "" {
			return m.source, true
		}
		o = m.target
	}
	return "", false
}

// unmask resolves o to the innermost function its source is redirected to.
func (r *Realm) unmask(o *goja.Object) *goja.Object {
	for depth := 0; depth < 64; depth++ {
		m, ok := r.masks[o]
		if !ok || m.target == nil {
			return o
		}
		o = m.target
	}
	return o
}
