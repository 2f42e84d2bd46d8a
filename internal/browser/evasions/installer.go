// Package evasions rebuilds navigator.plugins and navigator.mimeTypes inside
// a realm so that they survive scripted inspection, and installs the traps
// that expose them. It also carries the keyboard layout override.
package evasions

import (
	"errors"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-mimic/api/schemas"
	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm"
)

// Options tune an Installer.
type Options struct {
	// BackReference selects what mime types' enabledPlugin points at.
	BackReference BackReference
	// Keyboard enables the KeyboardLayoutMap.get override when non-empty.
	Keyboard schemas.KeyboardLayout
	// Mocks is the function metadata to dress traps with. Nil selects
	// ChromeFunctionMocks.
	Mocks []FunctionMock
}

// Installer sequences the collection factory, the cross-reference resolver,
// the mock generator and the interceptor against one realm.
type Installer struct {
	realm  realm.Realm
	logger *zap.Logger
	opts   Options
}

// NewInstaller returns an installer for r.
func NewInstaller(r realm.Realm, logger *zap.Logger, opts Options) *Installer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Mocks == nil {
		opts.Mocks = ChromeFunctionMocks()
	}
	return &Installer{realm: r, logger: logger.Named("evasions"), opts: opts}
}

// Install builds the plugin graph from ds and installs every patch. It never
// fails: anything it cannot do is recorded on the returned PatchSet and the
// rest of the installation proceeds. A nil dataset installs only the
// keyboard override.
func (in *Installer) Install(ds *schemas.Dataset) *PatchSet {
	name := ""
	if ds != nil {
		name = ds.Name
	}
	ps := newPatchSet(in.realm, name)
	gen := NewMockGenerator(in.opts.Mocks)
	interceptor := NewInterceptor(in.realm, in.logger)

	if ds != nil {
		graph, skips, err := in.build(ds)
		ps.record(skips...)
		if err != nil {
			in.logger.Info("Plugin emulation unavailable on this engine.", zap.Error(err))
			ps.record(skip(StageCollection, "navigator.plugins", err))
		} else {
			ps.Graph = graph
			patches, skips := interceptor.InstallAll(gen.Graph(graph.Plugins, graph.MimeTypes, graph.PluginEntries))
			ps.Patches = append(ps.Patches, patches...)
			ps.record(skips...)
		}
	}

	if m, ok := gen.KeyboardMock(in.opts.Keyboard); ok {
		p, err := interceptor.Install(m)
		if p.Trap.Valid() {
			ps.Patches = append(ps.Patches, p)
		}
		if err != nil {
			var se *SkipError
			if !errors.As(err, &se) {
				se = skip(StageKeyboard, m.Target(), err)
			}
			ps.record(se)
		}
	}

	in.logger.Info("Evasions installed.",
		zap.String("patch_set", ps.ID.String()),
		zap.String("dataset", ps.Dataset),
		zap.Int("patches", len(ps.Patches)),
		zap.Int("skipped", len(ps.Skipped)))
	for _, s := range ps.Skipped {
		in.logger.Debug("Installation step skipped.",
			zap.String("stage", string(s.Stage)),
			zap.String("target", s.Target),
			zap.Error(s.Err))
	}
	return ps
}

// build runs the collection factory and the cross-reference resolver. The
// returned error means the graph cannot exist on this engine at all (one of
// the plugin interfaces is missing); skips are per-entry problems.
func (in *Installer) build(ds *schemas.Dataset) (*Graph, []error, error) {
	factory := NewFactory(in.realm, in.logger)
	var skips []error

	// Mime type records first, so plugins can reference them by key.
	mimeKeys := make([]string, 0, len(ds.MimeTypes))
	mimeHandles := make([]realm.Handle, 0, len(ds.MimeTypes))
	seenMime := make(map[string]bool, len(ds.MimeTypes))
	for _, rec := range ds.MimeTypes {
		if seenMime[rec.Type] {
			skips = append(skips, malformed(StageDataset, rec.Type, "duplicate mime type"))
			continue
		}
		if reserved(KindMimeTypeArray, rec.Type) {
			skips = append(skips, malformed(StageDataset, rec.Type, "mime type is not a valid collection key"))
			continue
		}
		seenMime[rec.Type] = true
		h, err := factory.Object(KindMimeType,
			Field{Key: "type", Value: rec.Type},
			Field{Key: "suffixes", Value: rec.Suffixes},
			Field{Key: "description", Value: rec.Description},
		)
		if err != nil {
			return nil, skips, err
		}
		mimeKeys = append(mimeKeys, rec.Type)
		mimeHandles = append(mimeHandles, h)
	}
	mimeTypes, more, err := factory.Build(KindMimeTypeArray, mimeKeys, mimeHandles)
	skips = append(skips, more...)
	if err != nil {
		return nil, skips, err
	}

	// Plugin objects, each an (initially empty) collection of mime types.
	var slots []PluginSlot
	seenPlugin := make(map[string]bool, len(ds.Plugins))
	for _, rec := range ds.Plugins {
		if seenPlugin[rec.Name] {
			skips = append(skips, malformed(StageDataset, rec.Name, "duplicate plugin"))
			continue
		}
		if reserved(KindPluginArray, rec.Name) {
			skips = append(skips, malformed(StageDataset, rec.Name, "plugin name is not a valid collection key"))
			continue
		}
		seenPlugin[rec.Name] = true
		c, err := factory.New(KindPlugin, rec.Name)
		if err != nil {
			return nil, skips, err
		}
		slots = append(slots, PluginSlot{Record: rec, Collection: c})
	}

	resolver := NewResolver(in.realm, factory, in.opts.BackReference, in.logger)
	crossRefs, more := resolver.Resolve(slots, mimeTypes, ds.Aliases)
	skips = append(skips, more...)

	entries := make([]*Collection, 0, len(slots))
	keys := make([]string, 0, len(slots))
	handles := make([]realm.Handle, 0, len(slots))
	for _, s := range slots {
		if err := factory.Materialize(s.Collection,
			Field{Key: "name", Value: s.Record.Name},
			Field{Key: "filename", Value: s.Record.Filename},
			Field{Key: "description", Value: s.Record.Description},
		); err != nil {
			skips = append(skips, skip(StageCollection, s.Record.Name, err))
			continue
		}
		entries = append(entries, s.Collection)
		keys = append(keys, s.Record.Name)
		handles = append(handles, s.Collection.Handle())
	}
	plugins, more, err := factory.Build(KindPluginArray, keys, handles)
	skips = append(skips, more...)
	if err != nil {
		return nil, skips, err
	}

	in.logger.Debug("Plugin graph built.",
		zap.Int("plugins", plugins.Len()),
		zap.Int("mime_types", mimeTypes.Len()),
		zap.Int("cross_references", crossRefs.Len()))
	return &Graph{Plugins: plugins, MimeTypes: mimeTypes, PluginEntries: entries, CrossRefs: crossRefs}, skips, nil
}
