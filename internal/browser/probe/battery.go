package probe

import (
	"fmt"
	"strconv"

	"github.com/xkilldash9x/scalpel-mimic/internal/browser/evasions"
	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm"
)

var pluginFields = []string{evasions.KeyLength, "name", "filename", "description"}

// Battery derives the expected page-side view of an installation. Only what
// ps reports as installed is probed, so a partial installation on an older
// engine yields a smaller battery rather than failures.
func Battery(ps *evasions.PatchSet, opts evasions.Options) []Probe {
	mocks := opts.Mocks
	if mocks == nil {
		mocks = evasions.ChromeFunctionMocks()
	}
	gen := evasions.NewMockGenerator(mocks)

	probes := []Probe{{
		Name: "toString masks itself",
		Expr: guarded("Function.prototype.toString.call(Function.prototype.toString)"),
		Want: realm.NativeSource("toString"),
	}}
	for _, p := range ps.Patches {
		if m, ok := gen.Lookup(p.Interface, p.Member); ok && m.Source != "" {
			probes = append(probes, Probe{
				Name: "source of " + p.Target(),
				Expr: sourceExpr(p.Interface, p.Member, p.Kind),
				Want: m.Source,
			})
		}
	}

	if ps.Graph != nil && ps.Applied("Navigator", "plugins") {
		probes = append(probes, pluginProbes(ps)...)
	}
	if ps.Graph != nil && ps.Applied("Navigator", "mimeTypes") {
		probes = append(probes, mimeTypeProbes(ps.Graph, ps.Applied("Navigator", "plugins"))...)
	}
	if ps.Applied("KeyboardLayoutMap", "get") {
		for _, code := range opts.Keyboard.Codes() {
			probes = append(probes, Probe{
				Name: "keyboard layout " + code,
				Expr: guarded("KeyboardLayoutMap.prototype.get.call(Object.create(KeyboardLayoutMap.prototype), " + quote(code) + ")"),
				Want: opts.Keyboard[code],
			})
		}
	}
	return probes
}

func pluginProbes(ps *evasions.PatchSet) []Probe {
	const arr = "navigator.plugins"
	g := ps.Graph
	item := ps.Applied("PluginArray", "item")
	named := ps.Applied("PluginArray", "namedItem")
	pluginItem := ps.Applied("Plugin", "item")
	probes := []Probe{
		{Name: "plugins length", Expr: guarded(arr + ".length"), Want: g.Plugins.Len()},
		{Name: "plugins class tag", Expr: guarded("Object.prototype.toString.call(" + arr + ")"), Want: "[object PluginArray]"},
		{Name: "plugins prototype", Expr: guarded("Object.getPrototypeOf(" + arr + ") === PluginArray.prototype"), Want: true},
		{Name: "plugins enumeration", Expr: guarded("Object.keys(" + arr + ")"), Want: keysOf(g.Plugins)},
		{Name: "plugins own keys", Expr: guarded("Object.getOwnPropertyNames(" + arr + ")"), Want: append(keysOf(g.Plugins), evasions.KeyLength)},
		{Name: "plugins length is hidden", Expr: guarded("Object.getOwnPropertyDescriptor(" + arr + ", 'length').enumerable"), Want: false},
		{Name: "plugins serialize", Expr: guarded("typeof JSON.stringify(" + arr + ")"), Want: "string"},
	}
	if item {
		probes = append(probes,
			Probe{Name: "plugins item arity", Expr: guarded(arr + ".item()"),
				Want: "threw TypeError: " + realm.ItemTrap("PluginArray", nil).ArityMessage()},
			Probe{Name: "plugins item out of range", Expr: guarded(arr + ".item(" + strconv.Itoa(g.Plugins.Len()) + ")"), Want: nil},
		)
	}

	for i, e := range g.Plugins.All() {
		c, ok := g.Plugin(e.Key)
		if !ok {
			continue
		}
		plugin := fmt.Sprintf("%s[%d]", arr, i)
		if named {
			probes = append(probes, Probe{Name: "plugin " + e.Key + " namedItem", Expr: guarded(arr + ".namedItem(" + quote(e.Key) + ") === " + plugin), Want: true})
		}
		if item {
			probes = append(probes, Probe{Name: "plugin " + e.Key + " item", Expr: guarded(arr + ".item(" + strconv.Itoa(i) + ") === " + plugin), Want: true})
		}
		probes = append(probes,
			Probe{Name: "plugin " + e.Key + " by name", Expr: guarded(plugin + " === " + arr + "[" + quote(e.Key) + "]"), Want: true},
			Probe{Name: "plugin " + e.Key + " name", Expr: guarded(plugin + ".name"), Want: e.Key},
			Probe{Name: "plugin " + e.Key + " length", Expr: guarded(plugin + ".length"), Want: c.Len()},
			Probe{Name: "plugin " + e.Key + " class tag", Expr: guarded("Object.prototype.toString.call(" + plugin + ")"), Want: "[object Plugin]"},
			Probe{Name: "plugin " + e.Key + " enumeration", Expr: guarded("Object.keys(" + plugin + ")"), Want: keysOf(c)},
			Probe{Name: "plugin " + e.Key + " own keys", Expr: guarded("Object.getOwnPropertyNames(" + plugin + ")"), Want: append(keysOf(c), pluginFields...)},
		)
		for j, m := range c.All() {
			entry := fmt.Sprintf("%s[%d]", plugin, j)
			probes = append(probes, Probe{Name: fmt.Sprintf("plugin %s entry %d by key", e.Key, j), Expr: guarded(entry + " === " + plugin + "[" + quote(m.Key) + "]"), Want: true})
			if pluginItem {
				probes = append(probes, Probe{Name: fmt.Sprintf("plugin %s entry %d item", e.Key, j), Expr: guarded(plugin + ".item(" + strconv.Itoa(j) + ") === " + entry), Want: true})
			}
		}
	}
	return probes
}

func mimeTypeProbes(g *evasions.Graph, withPlugins bool) []Probe {
	const arr = "navigator.mimeTypes"
	probes := []Probe{
		{Name: "mimeTypes length", Expr: guarded(arr + ".length"), Want: g.MimeTypes.Len()},
		{Name: "mimeTypes class tag", Expr: guarded("Object.prototype.toString.call(" + arr + ")"), Want: "[object MimeTypeArray]"},
		{Name: "mimeTypes enumeration", Expr: guarded("Object.keys(" + arr + ")"), Want: keysOf(g.MimeTypes)},
	}

	// Mime types sharing a back reference must expose the same object.
	pluginIndex := make(map[realm.Handle]int)
	for i, e := range g.Plugins.All() {
		pluginIndex[e.Handle] = i
	}
	firstByRef := make(map[realm.Handle]string)
	for i, e := range g.MimeTypes.All() {
		mime := fmt.Sprintf("%s[%d]", arr, i)
		probes = append(probes,
			Probe{Name: "mime type " + e.Key + " by key", Expr: guarded(mime + " === " + arr + "[" + quote(e.Key) + "]"), Want: true},
			Probe{Name: "mime type " + e.Key + " type", Expr: guarded(mime + ".type"), Want: e.Key},
			Probe{Name: "mime type " + e.Key + " class tag", Expr: guarded("Object.prototype.toString.call(" + mime + ")"), Want: "[object MimeType]"},
			Probe{Name: "mime type " + e.Key + " serializes", Expr: guarded("JSON.stringify(" + mime + ")"), Want: "{}"},
		)

		ref, ok := g.CrossRefs.Reference(e.Key)
		if !ok {
			continue
		}
		backRef := mime + ".enabledPlugin"
		if first, seen := firstByRef[ref]; seen {
			probes = append(probes, Probe{
				Name: "alias " + e.Key + " shares enabledPlugin with " + first,
				Expr: guarded(backRef + " === " + arr + "[" + quote(first) + "].enabledPlugin"),
				Want: true,
			})
		} else {
			firstByRef[ref] = e.Key
		}
		if idx, isPlugin := pluginIndex[ref]; isPlugin && withPlugins {
			probes = append(probes, Probe{
				Name: "mime type " + e.Key + " enabledPlugin",
				Expr: guarded(backRef + " === navigator.plugins[" + strconv.Itoa(idx) + "]"),
				Want: true,
			})
		} else {
			probes = append(probes, Probe{
				Name: "mime type " + e.Key + " enabledPlugin class tag",
				Expr: guarded("Object.prototype.toString.call(" + backRef + ")"),
				Want: "[object Plugin]",
			})
		}
	}
	return probes
}
