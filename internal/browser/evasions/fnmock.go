package evasions

import (
	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm"
)

// FunctionMock is the declared introspection surface of one native member:
// what name, length and Function.prototype.toString must report once the
// member has been replaced.
type FunctionMock struct {
	Interface string
	Member    string
	Kind      realm.MemberKind
	Name      string
	Length    int
	Source    string
}

// Meta converts the mock into what realm.Disguise consumes.
func (m FunctionMock) Meta() realm.FunctionMeta {
	return realm.FunctionMeta{Name: m.Name, Length: m.Length, Source: m.Source}
}

func getterMock(iface, member string) FunctionMock {
	name := "get " + member
	return FunctionMock{Interface: iface, Member: member, Kind: realm.Getter, Name: name, Source: realm.NativeSource(name)}
}

func methodMock(iface, member string, length int) FunctionMock {
	return FunctionMock{Interface: iface, Member: member, Kind: realm.Method, Name: member, Length: length, Source: realm.NativeSource(member)}
}

// ChromeFunctionMocks is the metadata for every member the installer
// replaces, as Chrome reports it.
func ChromeFunctionMocks() []FunctionMock {
	return []FunctionMock{
		getterMock("Navigator", "plugins"),
		getterMock("Navigator", "mimeTypes"),
		methodMock("PluginArray", "item", 1),
		methodMock("PluginArray", "namedItem", 1),
		methodMock("PluginArray", "refresh", 0),
		methodMock("MimeTypeArray", "item", 1),
		methodMock("MimeTypeArray", "namedItem", 1),
		methodMock("Plugin", "item", 1),
		methodMock("Plugin", "namedItem", 1),
		methodMock("KeyboardLayoutMap", "get", 1),
	}
}

// Mock is a fully specified replacement: which member, how its trap behaves
// and how it must look under introspection.
type Mock struct {
	Interface string
	Member    string
	Kind      realm.MemberKind
	Trap      realm.Trap
	Meta      realm.FunctionMeta
	// Stage attributes skips to the patch family the mock belongs to.
	Stage Stage
}

// Target names the member as Interface.prototype.member.
func (m Mock) Target() string { return m.Interface + ".prototype." + m.Member }

// MockGenerator pairs traps with their declared function metadata.
type MockGenerator struct {
	mocks map[string]FunctionMock
}

// NewMockGenerator indexes mocks by interface and member. Later entries
// replace earlier ones, so callers can append overrides to the defaults.
func NewMockGenerator(mocks []FunctionMock) *MockGenerator {
	g := &MockGenerator{mocks: make(map[string]FunctionMock, len(mocks))}
	for _, m := range mocks {
		g.mocks[m.Interface+"."+m.Member] = m
	}
	return g
}

// Lookup returns the declared metadata for iface.member.
func (g *MockGenerator) Lookup(iface, member string) (FunctionMock, bool) {
	m, ok := g.mocks[iface+"."+member]
	return m, ok
}

// Dress builds the Mock for a trap. Without declared metadata the mock has a
// zero Meta and the trap only redirects its source to the original.
func (g *MockGenerator) Dress(stage Stage, iface, member string, kind realm.MemberKind, trap realm.Trap) Mock {
	m := Mock{Interface: iface, Member: member, Kind: kind, Trap: trap, Stage: stage}
	if fm, ok := g.Lookup(iface, member); ok && fm.Kind == kind {
		m.Meta = fm.Meta()
	}
	return m
}

// Graph produces the mocks that expose a fabricated plugin graph: the two
// navigator getters and the item/namedItem/refresh methods of the collections.
func (g *MockGenerator) Graph(plugins, mimeTypes *Collection, pluginColls []*Collection) []Mock {
	pluginTables := make([]realm.Table, 0, len(pluginColls))
	for _, c := range pluginColls {
		pluginTables = append(pluginTables, c.table())
	}
	pa := []realm.Table{plugins.table()}
	mta := []realm.Table{mimeTypes.table()}

	return []Mock{
		g.Dress(StageIntercept, "Navigator", "plugins", realm.Getter, realm.ReturnTrap(plugins.Handle())),
		g.Dress(StageIntercept, "Navigator", "mimeTypes", realm.Getter, realm.ReturnTrap(mimeTypes.Handle())),
		g.Dress(StageFunctionMock, "PluginArray", "item", realm.Method, realm.ItemTrap("PluginArray", pa)),
		g.Dress(StageFunctionMock, "PluginArray", "namedItem", realm.Method, realm.NamedItemTrap("PluginArray", pa)),
		g.Dress(StageFunctionMock, "PluginArray", "refresh", realm.Method, realm.ReturnTrap(realm.Undefined)),
		g.Dress(StageFunctionMock, "MimeTypeArray", "item", realm.Method, realm.ItemTrap("MimeTypeArray", mta)),
		g.Dress(StageFunctionMock, "MimeTypeArray", "namedItem", realm.Method, realm.NamedItemTrap("MimeTypeArray", mta)),
		g.Dress(StageFunctionMock, "Plugin", "item", realm.Method, realm.ItemTrap("Plugin", pluginTables)),
		g.Dress(StageFunctionMock, "Plugin", "namedItem", realm.Method, realm.NamedItemTrap("Plugin", pluginTables)),
	}
}
