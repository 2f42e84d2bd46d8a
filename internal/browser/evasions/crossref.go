package evasions

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-mimic/api/schemas"
	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm"
)

// BackReference selects what a mime type's enabledPlugin points at.
type BackReference int

const (
	// BackReferenceIdentity uses the plugin object itself.
	BackReferenceIdentity BackReference = iota
	// BackReferenceProxy uses a transparent proxy over the plugin, one per
	// canonical mime type; aliases reuse their canonical's proxy.
	BackReferenceProxy
)

func (b BackReference) String() string {
	if b == BackReferenceProxy {
		return "proxy"
	}
	return "identity"
}

// ParseBackReference parses the configuration spelling of a BackReference.
// The empty string selects identity.
func ParseBackReference(s string) (BackReference, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "identity":
		return BackReferenceIdentity, nil
	case "proxy":
		return BackReferenceProxy, nil
	default:
		return BackReferenceIdentity, fmt.Errorf("unknown back reference mode %q (want identity or proxy)", s)
	}
}

// CrossReferenceSet records which mime types already carry an enabledPlugin
// and what it is.
type CrossReferenceSet struct {
	refs  map[string]realm.Handle
	order []string
}

// NewCrossReferenceSet returns an empty set.
func NewCrossReferenceSet() *CrossReferenceSet {
	return &CrossReferenceSet{refs: make(map[string]realm.Handle)}
}

// Has reports whether typ is resolved.
func (s *CrossReferenceSet) Has(typ string) bool {
	_, ok := s.refs[typ]
	return ok
}

// Reference returns the enabledPlugin value assigned to typ.
func (s *CrossReferenceSet) Reference(typ string) (realm.Handle, bool) {
	h, ok := s.refs[typ]
	return h, ok
}

// Mark records ref as the enabledPlugin of typ. Marking twice keeps the first.
func (s *CrossReferenceSet) Mark(typ string, ref realm.Handle) {
	if s.Has(typ) {
		return
	}
	s.refs[typ] = ref
	s.order = append(s.order, typ)
}

// Resolved lists resolved types in resolution order.
func (s *CrossReferenceSet) Resolved() []string {
	return append([]string(nil), s.order...)
}

// Len is the number of resolved types.
func (s *CrossReferenceSet) Len() int { return len(s.order) }

// aliases maps each aliased type to its group and tracks group canonicals.
type aliases struct {
	group     map[string]int
	canonical map[int]string
}

// indexAliases builds the alias index. A type listed in two groups stays in
// the first and is reported as a conflict.
func indexAliases(groups []schemas.AliasGroup) (*aliases, []error) {
	a := &aliases{group: make(map[string]int), canonical: make(map[int]string)}
	var skips []error
	for gi, g := range groups {
		for _, typ := range g {
			if prev, dup := a.group[typ]; dup {
				if prev != gi {
					skips = append(skips, skip(StageCrossRef, typ,
						fmt.Errorf("%w: %q is declared in alias groups %d and %d; keeping group %d", ErrAliasConflict, typ, prev, gi, prev)))
				}
				continue
			}
			a.group[typ] = gi
		}
	}
	return a, skips
}

// Resolver places mime types into plugins and wires enabledPlugin.
type Resolver struct {
	realm   realm.Realm
	factory *Factory
	mode    BackReference
	logger  *zap.Logger
}

// NewResolver returns a resolver writing through factory.
func NewResolver(r realm.Realm, factory *Factory, mode BackReference, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{realm: r, factory: factory, mode: mode, logger: logger}
}

// PluginSlot pairs a plugin's dataset record with its fabricated collection.
type PluginSlot struct {
	Record     schemas.PluginRecord
	Collection *Collection
}

// Resolve fills every plugin collection from its declared (type, index)
// pairs and assigns each referenced mime type its enabledPlugin. Plugins are
// visited in input order, so the first plugin to reference a type (or any
// member of its alias group) becomes its canonical owner.
//
// Plugin collections are only filled here; the caller materializes them.
func (res *Resolver) Resolve(plugins []PluginSlot, mimeTypes *Collection, groups []schemas.AliasGroup) (*CrossReferenceSet, []error) {
	set := NewCrossReferenceSet()
	al, skips := indexAliases(groups)

	for _, p := range plugins {
		// Declared slots count toward length even when they end up empty.
		res.factory.Reserve(p.Collection, declaredLength(p.Record))
		for _, ref := range p.Record.MimeTypes {
			mt, ok := mimeTypes.Lookup(ref.Type)
			if !ok {
				skips = append(skips, malformed(StageCrossRef, fmt.Sprintf("%s[%d]", p.Record.Name, ref.Index),
					"mime type %q is not defined", ref.Type))
				continue
			}
			if err := res.factory.Put(p.Collection, ref.Index, ref.Type, mt.Handle); err != nil {
				skips = append(skips, err)
				continue
			}
			if set.Has(ref.Type) {
				continue
			}
			backRef, err := res.backReference(set, al, ref.Type, p.Collection.Handle())
			if err != nil {
				skips = append(skips, skip(StageCrossRef, ref.Type, err))
				continue
			}
			if err := res.realm.DefineProperty(mt.Handle, KeyEnabledPlugin, realm.Descriptor{
				Value: backRef,
				Flags: Policy(KindMimeType, KeyEnabledPlugin),
			}); err != nil {
				skips = append(skips, skip(StageCrossRef, ref.Type, err))
				continue
			}
			set.Mark(ref.Type, backRef)
			res.logger.Debug("Resolved enabledPlugin.",
				zap.String("mime_type", ref.Type),
				zap.String("plugin", p.Record.Name))
		}
	}
	return set, skips
}

// declaredLength is the number of slots a plugin exposes, which is one past
// the highest declared index a collection can hold. Slots whose mime type
// cannot be resolved still count; indices Put rejects do not.
func declaredLength(rec schemas.PluginRecord) int {
	n := 0
	for _, ref := range rec.MimeTypes {
		if ref.Index >= n && ref.Index < MaxEntries {
			n = ref.Index + 1
		}
	}
	return n
}

// backReference picks the enabledPlugin value for typ, making typ its alias
// group's canonical member when the group has none yet.
func (res *Resolver) backReference(set *CrossReferenceSet, al *aliases, typ string, plugin realm.Handle) (realm.Handle, error) {
	gi, aliased := al.group[typ]
	if aliased {
		if canon, ok := al.canonical[gi]; ok {
			if h, ok := set.Reference(canon); ok {
				return h, nil
			}
		}
	}
	h := plugin
	if res.mode == BackReferenceProxy {
		w, err := res.realm.Wrap(plugin)
		if err != nil {
			return realm.NoHandle, err
		}
		h = w
	}
	if aliased {
		al.canonical[gi] = typ
	}
	return h, nil
}
