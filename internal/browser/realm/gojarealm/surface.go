package gojarealm

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm"
)

// InstallSurface defines the interfaces and global instances of s on vm the
// way a browser does: an illegal constructor per interface whose prototype
// carries accessors, methods and a Symbol.toStringTag.
func InstallSurface(vm *goja.Runtime, s realm.Surface) error {
	b := &surfaceBuilder{vm: vm, protos: make(map[string]*goja.Object)}
	for _, iface := range s.Interfaces {
		if err := b.declare(iface.Name); err != nil {
			return err
		}
	}
	for _, iface := range s.Interfaces {
		if err := b.members(iface); err != nil {
			return err
		}
	}
	for _, inst := range s.Instances {
		proto, ok := b.protos[inst.Interface]
		if !ok {
			continue
		}
		obj := vm.CreateObject(proto)
		if err := vm.GlobalObject().DefineDataProperty(inst.Global, obj, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
			return fmt.Errorf("gojarealm: defining %s: %w", inst.Global, err)
		}
	}
	return nil
}

type surfaceBuilder struct {
	vm     *goja.Runtime
	protos map[string]*goja.Object
}

func (b *surfaceBuilder) declare(name string) error {
	vm := b.vm
	ctor := vm.ToValue(func(goja.FunctionCall) goja.Value {
		panic(vm.NewTypeError("Illegal constructor"))
	}).(*goja.Object)
	proto := vm.NewObject()

	if err := proto.DefineDataPropertySymbol(goja.SymToStringTag, vm.ToValue(name), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		return fmt.Errorf("gojarealm: tagging %s: %w", name, err)
	}
	if err := proto.DefineDataProperty("constructor", ctor, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		return fmt.Errorf("gojarealm: %s.constructor: %w", name, err)
	}
	if err := ctor.DefineDataProperty("prototype", proto, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
		return fmt.Errorf("gojarealm: %s.prototype: %w", name, err)
	}
	if err := setName(vm, ctor, name); err != nil {
		return err
	}
	if err := vm.GlobalObject().DefineDataProperty(name, ctor, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		return fmt.Errorf("gojarealm: defining %s: %w", name, err)
	}
	b.protos[name] = proto
	return nil
}

func (b *surfaceBuilder) members(iface realm.Interface) error {
	vm := b.vm
	proto := b.protos[iface.Name]
	for _, g := range iface.Getters {
		getter := vm.ToValue(b.getterBody(g)).(*goja.Object)
		if err := setName(vm, getter, "get "+g.Name); err != nil {
			return err
		}
		if err := proto.DefineAccessorProperty(g.Name, getter, nil, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
			return fmt.Errorf("gojarealm: %s.%s: %w", iface.Name, g.Name, err)
		}
	}
	for _, m := range iface.Methods {
		fn := vm.ToValue(methodBody(vm, m)).(*goja.Object)
		if err := setName(vm, fn, m.Name); err != nil {
			return err
		}
		if err := fn.DefineDataProperty("length", vm.ToValue(m.Length), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
			return fmt.Errorf("gojarealm: %s.%s.length: %w", iface.Name, m.Name, err)
		}
		if err := proto.DefineDataProperty(m.Name, fn, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
			return fmt.Errorf("gojarealm: %s.%s: %w", iface.Name, m.Name, err)
		}
	}
	return nil
}

func (b *surfaceBuilder) getterBody(g realm.GetterSpec) func(goja.FunctionCall) goja.Value {
	vm := b.vm
	if g.Returns != "" {
		var empty goja.Value = goja.Null()
		if proto, ok := b.protos[g.Returns]; ok {
			empty = vm.CreateObject(proto)
		}
		return func(goja.FunctionCall) goja.Value { return empty }
	}
	if g.Name == "length" || g.Name == "size" {
		return func(goja.FunctionCall) goja.Value { return vm.ToValue(0) }
	}
	return func(goja.FunctionCall) goja.Value { return goja.Undefined() }
}

func methodBody(vm *goja.Runtime, m realm.MethodSpec) func(goja.FunctionCall) goja.Value {
	switch m.Name {
	case "item", "namedItem":
		return func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) == 0 {
				panic(vm.NewTypeError("Failed to execute '%s': 1 argument required, but only 0 present.", m.Name))
			}
			return goja.Null()
		}
	case "get":
		return func(call goja.FunctionCall) goja.Value {
			if v, ok := realm.USLayout[call.Argument(0).String()]; ok {
				return vm.ToValue(v)
			}
			return goja.Undefined()
		}
	case "has":
		return func(call goja.FunctionCall) goja.Value {
			_, ok := realm.USLayout[call.Argument(0).String()]
			return vm.ToValue(ok)
		}
	default:
		return func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	}
}

func setName(vm *goja.Runtime, fn *goja.Object, name string) error {
	if err := fn.DefineDataProperty("name", vm.ToValue(name), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		return fmt.Errorf("gojarealm: naming %s: %w", name, err)
	}
	return nil
}

// NewChrome returns a fresh runtime carrying the headless Chrome surface and
// a realm bound to it.
func NewChrome() (*Realm, error) {
	vm := goja.New()
	if err := InstallSurface(vm, realm.ChromeSurface()); err != nil {
		return nil, err
	}
	return New(vm)
}
