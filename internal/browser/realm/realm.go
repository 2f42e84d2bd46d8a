// Package realm abstracts the JavaScript engine capabilities the evasions
// need: creating objects against genuine prototypes, setting property
// descriptors, and installing get/apply traps over native members.
//
// The evasion logic is written once against Realm. Implementations exist for
// a plain-structure stand-in (memory), a live goja engine (gojarealm) and a
// recorder that emits the equivalent JavaScript for a real browser (script).
package realm

import (
	"fmt"
)

// Handle addresses an object inside one Realm. Handles are arena indices and
// are only meaningful for the realm that issued them. Two handles from the
// same realm are equal if and only if they refer to the same object.
type Handle int

// NoHandle is the zero Handle; it never refers to an object.
const NoHandle Handle = 0

// Valid reports whether h can refer to an object.
func (h Handle) Valid() bool { return h > NoHandle }

func (h Handle) String() string { return fmt.Sprintf("$%d", int(h)) }

// Value is a JavaScript value crossing the realm boundary. It holds one of
// Undefined, Null, bool, int, float64, string or Handle.
type Value interface{}

type undefinedValue struct{}
type nullValue struct{}

func (undefinedValue) String() string { return "undefined" }
func (nullValue) String() string      { return "null" }

var (
	// Undefined is the JavaScript undefined value.
	Undefined Value = undefinedValue{}
	// Null is the JavaScript null value.
	Null Value = nullValue{}
)

// IsUndefined reports whether v is Undefined (a nil Value counts as undefined).
func IsUndefined(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(undefinedValue)
	return ok
}

// IsNull reports whether v is Null.
func IsNull(v Value) bool {
	_, ok := v.(nullValue)
	return ok
}

// AsHandle extracts an object handle from v.
func AsHandle(v Value) (Handle, bool) {
	h, ok := v.(Handle)
	return h, ok && h.Valid()
}

// Flags are the attribute bits of a property descriptor.
type Flags struct {
	Enumerable   bool
	Writable     bool
	Configurable bool
}

// Descriptor is a data property descriptor.
type Descriptor struct {
	Value Value
	Flags
}

// MemberKind distinguishes accessor members from method members.
type MemberKind int

const (
	// Getter is an accessor property whose get function is intercepted.
	Getter MemberKind = iota
	// Method is a data property holding a function.
	Method
)

func (k MemberKind) String() string {
	if k == Getter {
		return "getter"
	}
	return "method"
}

// FunctionMeta is the introspection surface of a function: what
// fn.name, fn.length and Function.prototype.toString.call(fn) report.
type FunctionMeta struct {
	Name   string
	Length int
	Source string
}

// NativeSource renders the source text a native built-in reports for name.
func NativeSource(name string) string {
	return "function " + name + "() { [native code] }"
}

// Realm is the capability set the installer runs against.
//
// Implementations are confined to a single goroutine. Trap behavior is fully
// described by the Trap value, so handlers keep no mutable state and may be
// re-entered (e.g. a detector calling toString from within another trap).
type Realm interface {
	// Prototype resolves the prototype object of a global interface such as
	// "PluginArray". It returns ErrMissingFeature when the interface does not
	// exist on this engine build.
	Prototype(iface string) (Handle, error)

	// NewObject creates an ordinary object whose [[Prototype]] is proto.
	NewObject(proto Handle) (Handle, error)

	// DefineProperty sets a data property with exact attribute flags.
	DefineProperty(obj Handle, key string, d Descriptor) error

	// Wrap creates a transparent proxy over target.
	Wrap(target Handle) (Handle, error)

	// TrapGetter replaces the getter of accessor obj[key] with a proxy that
	// runs trap when invoked, and returns the proxy. The original descriptor
	// flags are preserved and stringified source is redirected to the
	// original getter. It returns ErrMissingFeature if obj has no such accessor.
	TrapGetter(obj Handle, key string, trap Trap) (Handle, error)

	// TrapMethod is TrapGetter for a method-valued data property.
	TrapMethod(obj Handle, key string, trap Trap) (Handle, error)

	// Disguise pins the name, length and stringified source of fn.
	Disguise(fn Handle, meta FunctionMeta) error

	// Restore puts back the member replaced by TrapGetter or TrapMethod.
	// Realms that cannot undo their work return ErrIrreversible.
	Restore(obj Handle, key string) error
}

// Inspector is implemented by realms that can be observed from Go, which is
// what the tests and the verification command use to play detector.
type Inspector interface {
	// Global reads a property of the global object.
	Global(name string) (Value, error)
	// Get performs an ordinary [[Get]], invoking accessors.
	Get(obj Handle, key string) (Value, error)
	// Call invokes fn with the given receiver.
	Call(fn Handle, this Value, args ...Value) (Value, error)
	// OwnKeys lists own string keys in engine order.
	OwnKeys(obj Handle) ([]string, error)
	// EnumerableKeys is Object.keys(obj).
	EnumerableKeys(obj Handle) ([]string, error)
	// OwnProperty is Object.getOwnPropertyDescriptor restricted to the
	// attributes the evasions care about. Accessor properties report their
	// getter handle as the value.
	OwnProperty(obj Handle, key string) (Descriptor, bool, error)
	// PrototypeOf is Object.getPrototypeOf(obj).
	PrototypeOf(obj Handle) (Handle, error)
	// ClassString is Object.prototype.toString.call(obj).
	ClassString(obj Handle) (string, error)
	// Source is Function.prototype.toString.call(fn).
	Source(fn Handle) (string, error)
}
