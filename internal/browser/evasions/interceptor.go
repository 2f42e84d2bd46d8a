package evasions

import (
	"errors"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm"
)

// Interceptor installs Mocks through a realm's trap capabilities.
type Interceptor struct {
	realm  realm.Realm
	logger *zap.Logger
}

// NewInterceptor returns an interceptor over r.
func NewInterceptor(r realm.Realm, logger *zap.Logger) *Interceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interceptor{realm: r, logger: logger}
}

// Install replaces the member m targets and dresses the replacement. A member
// missing from this engine build yields an error wrapping
// realm.ErrMissingFeature, which callers treat as a silent skip.
func (i *Interceptor) Install(m Mock) (Patch, error) {
	owner, err := i.realm.Prototype(m.Interface)
	if err != nil {
		return Patch{}, err
	}

	var trap realm.Handle
	if m.Kind == realm.Getter {
		trap, err = i.realm.TrapGetter(owner, m.Member, m.Trap)
	} else {
		trap, err = i.realm.TrapMethod(owner, m.Member, m.Trap)
	}
	if err != nil {
		return Patch{}, err
	}

	p := Patch{Interface: m.Interface, Member: m.Member, Kind: m.Kind, Owner: owner, Trap: trap}
	if m.Meta != (realm.FunctionMeta{}) {
		if err := i.realm.Disguise(trap, m.Meta); err != nil {
			// The trap works; only its disguise is incomplete.
			i.logger.Warn("Failed to disguise trapped member.", zap.String("target", m.Target()), zap.Error(err))
			return p, skip(StageFunctionMock, m.Target(), err)
		}
	}
	i.logger.Debug("Member intercepted.",
		zap.String("target", m.Target()),
		zap.Stringer("kind", m.Kind),
		zap.Stringer("trap", m.Trap.Kind))
	return p, nil
}

// InstallAll installs every mock, collecting applied patches and skips.
func (i *Interceptor) InstallAll(mocks []Mock) ([]Patch, []error) {
	var patches []Patch
	var skips []error
	for _, m := range mocks {
		p, err := i.Install(m)
		if p.Trap.Valid() {
			patches = append(patches, p)
		}
		if err == nil {
			continue
		}
		var se *SkipError
		if !errors.As(err, &se) {
			se = skip(m.Stage, m.Target(), err)
		}
		if errors.Is(err, realm.ErrMissingFeature) {
			i.logger.Debug("Member not present on this engine, skipping.", zap.String("target", m.Target()))
		}
		skips = append(skips, se)
	}
	return patches, skips
}
