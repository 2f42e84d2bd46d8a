// Package script implements realm.Realm as a recorder. Every capability call
// becomes one step of a self-contained JavaScript program that, evaluated in
// a page before any other script, reproduces the same object graph and
// traps there.
package script

import (
	"fmt"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Realm records capability calls as JavaScript.
type Realm struct {
	steps  []string
	next   realm.Handle
	protos map[string]realm.Handle
}

var _ realm.Realm = (*Realm)(nil)

// New returns an empty recorder.
func New() *Realm {
	return &Realm{next: 1, protos: make(map[string]realm.Handle)}
}

// Script renders the recorded program.
func (r *Realm) Script() string {
	var b strings.Builder
	b.WriteString(prelude)
	for _, s := range r.steps {
		b.WriteString("  step(() => { ")
		b.WriteString(s)
		b.WriteString(" });\n")
	}
	b.WriteString(epilogue)
	return b.String()
}

// Steps reports how many steps have been recorded.
func (r *Realm) Steps() int { return len(r.steps) }

func (r *Realm) record(format string, args ...interface{}) {
	r.steps = append(r.steps, fmt.Sprintf(format, args...))
}

func (r *Realm) alloc() realm.Handle {
	h := r.next
	r.next++
	return h
}

func (r *Realm) check(h realm.Handle) error {
	if !h.Valid() || h >= r.next {
		return fmt.Errorf("%w: %v", realm.ErrInvalidHandle, h)
	}
	return nil
}

func ref(h realm.Handle) string { return "$[" + strconv.Itoa(int(h)) + "]" }

// literal renders v as a JavaScript expression.
func literal(v realm.Value) (string, error) {
	switch x := v.(type) {
	case realm.Handle:
		return ref(x), nil
	}
	switch {
	case realm.IsUndefined(v):
		return "undefined", nil
	case realm.IsNull(v):
		return "null", nil
	}
	s, err := json.MarshalToString(v)
	if err != nil {
		return "", fmt.Errorf("script: encoding %v: %w", v, err)
	}
	return s, nil
}

func quote(s string) string {
	q, err := json.MarshalToString(s)
	if err != nil {
		// Strings always encode; this only guards against a broken encoder.
		return strconv.Quote(s)
	}
	return q
}

// Prototype implements realm.Realm. Existence is checked in the page; a
// missing interface makes every dependent step a no-op there.
func (r *Realm) Prototype(iface string) (realm.Handle, error) {
	if h, ok := r.protos[iface]; ok {
		return h, nil
	}
	h := r.alloc()
	r.protos[iface] = h
	r.record("%s = proto(%s);", ref(h), quote(iface))
	return h, nil
}

// NewObject implements realm.Realm.
func (r *Realm) NewObject(proto realm.Handle) (realm.Handle, error) {
	if err := r.check(proto); err != nil {
		return realm.NoHandle, err
	}
	h := r.alloc()
	r.record("%s = O.create(%s);", ref(h), ref(proto))
	return h, nil
}

// DefineProperty implements realm.Realm.
func (r *Realm) DefineProperty(obj realm.Handle, key string, d realm.Descriptor) error {
	if err := r.check(obj); err != nil {
		return err
	}
	v, err := literal(d.Value)
	if err != nil {
		return err
	}
	define := fmt.Sprintf("defineProperty(%s, %s, { value: %s, writable: %t, enumerable: %t, configurable: %t });",
		ref(obj), quote(key), v, d.Writable, d.Enumerable, d.Configurable)
	if h, ok := realm.AsHandle(d.Value); ok {
		// An object holding a value that failed to build is unavailable
		// too, so the failure reaches whatever trap would have served it.
		r.record("if (%s === undefined) { %s = undefined; throw new TE(%s); } %s",
			ref(h), ref(obj), quote(h.String()+" is unavailable"), define)
		return nil
	}
	r.record("%s", define)
	return nil
}

// Wrap implements realm.Realm.
func (r *Realm) Wrap(target realm.Handle) (realm.Handle, error) {
	if err := r.check(target); err != nil {
		return realm.NoHandle, err
	}
	h := r.alloc()
	r.record("%s = new P(%s, {});", ref(h), ref(target))
	return h, nil
}

// TrapGetter implements realm.Realm.
func (r *Realm) TrapGetter(obj realm.Handle, key string, trap realm.Trap) (realm.Handle, error) {
	return r.trap(obj, key, true, trap)
}

// TrapMethod implements realm.Realm.
func (r *Realm) TrapMethod(obj realm.Handle, key string, trap realm.Trap) (realm.Handle, error) {
	return r.trap(obj, key, false, trap)
}

func (r *Realm) trap(obj realm.Handle, key string, accessor bool, t realm.Trap) (realm.Handle, error) {
	if err := r.check(obj); err != nil {
		return realm.NoHandle, err
	}
	apply, err := r.applyHandler(t)
	if err != nil {
		return realm.NoHandle, err
	}
	h := r.alloc()
	r.record("%s = trap(%s, %s, %t, %s);", ref(h), ref(obj), quote(key), accessor, apply)
	return h, nil
}

// Disguise implements realm.Realm.
func (r *Realm) Disguise(fn realm.Handle, meta realm.FunctionMeta) error {
	if err := r.check(fn); err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "const f = %s; if (typeof f !== 'function') return;", ref(fn))
	if meta.Name != "" {
		fmt.Fprintf(&b, " if (f.name !== %[1]s) defineProperty(f, 'name', { value: %[1]s, configurable: true });", quote(meta.Name))
	}
	fmt.Fprintf(&b, " if (f.length !== %[1]d) defineProperty(f, 'length', { value: %[1]d, configurable: true });", meta.Length)
	if meta.Source != "" {
		fmt.Fprintf(&b, " hook(); masks.set(f, %s);", quote(meta.Source))
	}
	r.steps = append(r.steps, b.String())
	return nil
}

// Restore implements realm.Realm. A recorded program cannot be taken back.
func (r *Realm) Restore(realm.Handle, string) error {
	return realm.ErrIrreversible
}
