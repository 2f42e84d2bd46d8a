package realm

// Interface describes one WebIDL interface of the stand-in browser surface
// that harness realms build: its prototype carries the accessors and methods
// listed here and a Symbol.toStringTag equal to Name.
type Interface struct {
	Name    string
	Getters []GetterSpec
	Methods []MethodSpec
}

// GetterSpec is a prototype accessor. Returns names the interface of the
// (empty) object the stand-in getter hands back, if any.
type GetterSpec struct {
	Name    string
	Returns string
}

// MethodSpec is a prototype method.
type MethodSpec struct {
	Name   string
	Length int
}

// Instance is a global object created from an interface, e.g. navigator.
type Instance struct {
	Global    string
	Interface string
}

// Surface is the set of interfaces and global instances a harness realm
// exposes. It mirrors what headless Chrome ships: the plugin interfaces exist
// but navigator.plugins and navigator.mimeTypes are empty.
type Surface struct {
	Interfaces []Interface
	Instances  []Instance
}

// Without returns a copy of the surface lacking the named interfaces, which
// is how tests model older or stripped-down engine builds.
func (s Surface) Without(names ...string) Surface {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	out := Surface{}
	for _, iface := range s.Interfaces {
		if !drop[iface.Name] {
			out.Interfaces = append(out.Interfaces, iface)
		}
	}
	for _, inst := range s.Instances {
		if !drop[inst.Interface] {
			out.Instances = append(out.Instances, inst)
		}
	}
	return out
}

// ChromeSurface is the headless Chrome baseline.
func ChromeSurface() Surface {
	collection := []MethodSpec{{Name: "item", Length: 1}, {Name: "namedItem", Length: 1}}
	return Surface{
		Interfaces: []Interface{
			{
				Name: "Navigator",
				Getters: []GetterSpec{
					{Name: "plugins", Returns: "PluginArray"},
					{Name: "mimeTypes", Returns: "MimeTypeArray"},
				},
			},
			{
				Name:    "PluginArray",
				Getters: []GetterSpec{{Name: "length"}},
				Methods: append(append([]MethodSpec{}, collection...), MethodSpec{Name: "refresh", Length: 0}),
			},
			{
				Name:    "MimeTypeArray",
				Getters: []GetterSpec{{Name: "length"}},
				Methods: collection,
			},
			{
				Name: "Plugin",
				Getters: []GetterSpec{
					{Name: "name"}, {Name: "filename"}, {Name: "description"}, {Name: "length"},
				},
				Methods: collection,
			},
			{
				Name: "MimeType",
				Getters: []GetterSpec{
					{Name: "type"}, {Name: "suffixes"}, {Name: "description"}, {Name: "enabledPlugin"},
				},
			},
			{
				Name:    "KeyboardLayoutMap",
				Getters: []GetterSpec{{Name: "size"}},
				Methods: []MethodSpec{{Name: "get", Length: 1}, {Name: "has", Length: 1}},
			},
		},
		Instances: []Instance{{Global: "navigator", Interface: "Navigator"}},
	}
}

// USLayout is what a stand-in KeyboardLayoutMap reports for a few codes.
var USLayout = map[string]string{
	"KeyA": "a", "KeyQ": "q", "KeyW": "w", "KeyZ": "z", "KeyY": "y",
	"Digit1": "1", "Semicolon": ";", "Quote": "'", "BracketLeft": "[",
}
