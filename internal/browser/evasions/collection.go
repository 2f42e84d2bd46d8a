package evasions

import (
	"fmt"
	"iter"
	"strconv"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm"
)

// MaxEntries bounds the index space of a fabricated collection. Genuine
// plugin collections hold a handful of entries; anything near this is bad data.
const MaxEntries = 1024

// Entry is one member of a fabricated collection.
type Entry struct {
	Index  int
	Key    string
	Handle realm.Handle
}

// Field is a record attribute defined on a fabricated object.
type Field struct {
	Key   string
	Value realm.Value
}

// Collection is the Go-side view of a fabricated array-like object. Entries
// are held by index, with realm.NoHandle marking a declared but empty slot,
// and are also addressable by natural key.
type Collection struct {
	kind   Kind
	name   string
	handle realm.Handle

	slots  []Entry
	byKey  map[string]int
	keys   []string
	length int
}

// Kind reports which browser type the collection mimics.
func (c *Collection) Kind() Kind { return c.kind }

// Name identifies the collection in logs (the plugin name, or the interface).
func (c *Collection) Name() string { return c.name }

// Handle is the realm object backing the collection.
func (c *Collection) Handle() realm.Handle { return c.handle }

// Len is the value of the collection's length property.
func (c *Collection) Len() int { return c.length }

// At returns the entry at index i. Out-of-range indices and empty slots
// report false.
func (c *Collection) At(i int) (Entry, bool) {
	if i < 0 || i >= len(c.slots) || !c.slots[i].Handle.Valid() {
		return Entry{}, false
	}
	return c.slots[i], true
}

// Lookup returns the entry registered under a natural key.
func (c *Collection) Lookup(key string) (Entry, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return Entry{}, false
	}
	return c.slots[i], true
}

// Keys returns the natural keys in input order.
func (c *Collection) Keys() []string {
	return append([]string(nil), c.keys...)
}

// All iterates the occupied entries in index order.
func (c *Collection) All() iter.Seq2[int, Entry] {
	return func(yield func(int, Entry) bool) {
		for i, e := range c.slots {
			if !e.Handle.Valid() {
				continue
			}
			if !yield(i, e) {
				return
			}
		}
	}
}

// put registers h at index and key. The first registration of an index or
// key wins; later ones are rejected as malformed.
func (c *Collection) put(index int, key string, h realm.Handle) *SkipError {
	target := c.name + "[" + strconv.Itoa(index) + "]"
	switch {
	case index < 0:
		return malformed(StageCollection, target, "negative index")
	case index >= MaxEntries:
		return malformed(StageCollection, target, "index exceeds %d", MaxEntries-1)
	case reserved(c.kind, key):
		return malformed(StageCollection, target, "key %q is reserved on %s", key, c.kind)
	case index < len(c.slots) && c.slots[index].Handle.Valid():
		return malformed(StageCollection, target, "index already holds %q", c.slots[index].Key)
	}
	if _, dup := c.byKey[key]; dup {
		return malformed(StageCollection, target, "duplicate key %q", key)
	}
	c.reserve(index + 1)
	c.slots[index] = Entry{Index: index, Key: key, Handle: h}
	c.byKey[key] = index
	c.keys = append(c.keys, key)
	return nil
}

// reserve grows the collection to at least n slots; new slots are holes.
func (c *Collection) reserve(n int) {
	if n > MaxEntries {
		n = MaxEntries
	}
	for len(c.slots) < n {
		c.slots = append(c.slots, Entry{Index: len(c.slots)})
	}
	if n > c.length {
		c.length = n
	}
}

// table is the lookup data the item and namedItem traps serve from.
func (c *Collection) table() realm.Table {
	t := realm.Table{
		Owner:   c.handle,
		Entries: make([]realm.Handle, len(c.slots)),
		Keys:    make([]string, len(c.slots)),
	}
	for i, e := range c.slots {
		t.Entries[i] = e.Handle
		t.Keys[i] = e.Key
	}
	return t
}

// Factory creates fabricated objects against the genuine prototypes of a
// realm and writes their properties with the descriptor policy.
type Factory struct {
	realm  realm.Realm
	logger *zap.Logger
	protos map[Kind]realm.Handle
}

// NewFactory returns a factory over r.
func NewFactory(r realm.Realm, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{realm: r, logger: logger, protos: make(map[Kind]realm.Handle)}
}

func (f *Factory) prototype(kind Kind) (realm.Handle, error) {
	if h, ok := f.protos[kind]; ok {
		return h, nil
	}
	h, err := f.realm.Prototype(kind.Interface())
	if err != nil {
		return realm.NoHandle, err
	}
	f.protos[kind] = h
	return h, nil
}

// Object creates a plain record object (a MimeType) and defines its fields.
func (f *Factory) Object(kind Kind, fields ...Field) (realm.Handle, error) {
	proto, err := f.prototype(kind)
	if err != nil {
		return realm.NoHandle, err
	}
	h, err := f.realm.NewObject(proto)
	if err != nil {
		return realm.NoHandle, err
	}
	if err := f.define(kind, h, fields); err != nil {
		return realm.NoHandle, err
	}
	return h, nil
}

// New creates an empty collection of kind. Entries are added with Put and
// written to the realm by Materialize.
func (f *Factory) New(kind Kind, name string) (*Collection, error) {
	proto, err := f.prototype(kind)
	if err != nil {
		return nil, err
	}
	h, err := f.realm.NewObject(proto)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = kind.Interface()
	}
	return &Collection{kind: kind, name: name, handle: h, byKey: make(map[string]int)}, nil
}

// Put registers an entry on c without touching the realm.
func (f *Factory) Put(c *Collection, index int, key string, h realm.Handle) error {
	if err := c.put(index, key, h); err != nil {
		f.logger.Debug("Collection entry skipped.", zap.String("collection", c.name), zap.Error(err))
		return err
	}
	return nil
}

// Reserve extends c to n slots, leaving new slots empty.
func (f *Factory) Reserve(c *Collection, n int) { c.reserve(n) }

// Materialize writes c to the realm: indices ascending, then natural keys in
// input order, then length and the given record fields. Fixing the write
// order keeps own-key order identical across engines.
func (f *Factory) Materialize(c *Collection, fields ...Field) error {
	for _, e := range c.slots {
		if !e.Handle.Valid() {
			continue
		}
		key := strconv.Itoa(e.Index)
		if err := f.realm.DefineProperty(c.handle, key, realm.Descriptor{Value: e.Handle, Flags: Policy(c.kind, key)}); err != nil {
			return fmt.Errorf("defining %s[%s]: %w", c.name, key, err)
		}
	}
	for _, k := range c.keys {
		e := c.slots[c.byKey[k]]
		if err := f.realm.DefineProperty(c.handle, k, realm.Descriptor{Value: e.Handle, Flags: Policy(c.kind, k)}); err != nil {
			return fmt.Errorf("defining %s[%q]: %w", c.name, k, err)
		}
	}
	all := append([]Field{{Key: KeyLength, Value: c.length}}, fields...)
	return f.define(c.kind, c.handle, all)
}

// Build is New, Put for each handle in order and Materialize in one step.
// Rejected entries are returned as skips and do not occupy an index.
func (f *Factory) Build(kind Kind, keys []string, handles []realm.Handle) (*Collection, []error, error) {
	c, err := f.New(kind, "")
	if err != nil {
		return nil, nil, err
	}
	var skips []error
	next := 0
	for i, key := range keys {
		if i >= len(handles) {
			break
		}
		if err := f.Put(c, next, key, handles[i]); err != nil {
			skips = append(skips, err)
			continue
		}
		next++
	}
	if err := f.Materialize(c); err != nil {
		return nil, skips, err
	}
	return c, skips, nil
}

func (f *Factory) define(kind Kind, h realm.Handle, fields []Field) error {
	for _, fl := range fields {
		if err := f.realm.DefineProperty(h, fl.Key, realm.Descriptor{Value: fl.Value, Flags: Policy(kind, fl.Key)}); err != nil {
			return fmt.Errorf("defining %s.%s: %w", kind, fl.Key, err)
		}
	}
	return nil
}
