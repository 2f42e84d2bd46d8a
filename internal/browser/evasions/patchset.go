package evasions

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm"
)

// Patch is one native member that was replaced.
type Patch struct {
	Interface string
	Member    string
	Kind      realm.MemberKind
	// Owner is the prototype the member lives on, Trap the installed proxy.
	Owner realm.Handle
	Trap  realm.Handle
}

// Target names the member as Interface.prototype.member.
func (p Patch) Target() string { return p.Interface + ".prototype." + p.Member }

// PatchSet is the result of one installation. It is a value describing what
// changed in the realm, so teardown and assertions need no global state.
type PatchSet struct {
	ID      uuid.UUID
	Dataset string
	Patches []Patch
	Skipped []*SkipError

	// Graph is nil when the plugin graph could not be built at all.
	Graph *Graph

	realm realm.Realm
}

// Graph is the fabricated plugin and mime type object graph.
type Graph struct {
	Plugins   *Collection
	MimeTypes *Collection
	// PluginEntries holds each plugin's own mime type collection, in
	// navigator.plugins order.
	PluginEntries []*Collection
	CrossRefs     *CrossReferenceSet
}

// Plugin returns the collection for the named plugin.
func (g *Graph) Plugin(name string) (*Collection, bool) {
	for _, c := range g.PluginEntries {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

func newPatchSet(r realm.Realm, dataset string) *PatchSet {
	return &PatchSet{ID: uuid.New(), Dataset: dataset, realm: r}
}

func (ps *PatchSet) record(errs ...error) {
	for _, err := range errs {
		if err == nil {
			continue
		}
		var se *SkipError
		if !errors.As(err, &se) {
			se = skip(StageDataset, ps.Dataset, err)
		}
		ps.Skipped = append(ps.Skipped, se)
	}
}

// Applied reports whether iface.member was replaced.
func (ps *PatchSet) Applied(iface, member string) bool {
	for _, p := range ps.Patches {
		if p.Interface == iface && p.Member == member {
			return true
		}
	}
	return false
}

// Err joins every skip into one error, or returns nil for a clean install.
// Callers match causes with errors.Is against ErrMalformedData,
// ErrAliasConflict or realm.ErrMissingFeature.
func (ps *PatchSet) Err() error {
	if len(ps.Skipped) == 0 {
		return nil
	}
	errs := make([]error, len(ps.Skipped))
	for i, s := range ps.Skipped {
		errs[i] = s
	}
	return errors.Join(errs...)
}

// Revert restores the replaced members in reverse installation order. The
// fabricated objects stay in the realm but become unreachable from the
// navigator getters. Reverting an already reverted set is a no-op.
func (ps *PatchSet) Revert() error {
	var errs []error
	for i := len(ps.Patches) - 1; i >= 0; i-- {
		p := ps.Patches[i]
		if err := ps.realm.Restore(p.Owner, p.Member); err != nil {
			if errors.Is(err, realm.ErrIrreversible) {
				return err
			}
			errs = append(errs, fmt.Errorf("restoring %s: %w", p.Target(), err))
		}
	}
	ps.Patches = nil
	return errors.Join(errs...)
}
