package evasions

import (
	"github.com/xkilldash9x/scalpel-mimic/api/schemas"
	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm"
)

// KeyboardMock builds the KeyboardLayoutMap.prototype.get override. Calls
// with a configured code answer from layout; calls without an argument or
// for an unconfigured code reach the native method. An empty layout means
// the patch is disabled and ok is false.
func (g *MockGenerator) KeyboardMock(layout schemas.KeyboardLayout) (m Mock, ok bool) {
	if len(layout) == 0 {
		return Mock{}, false
	}
	overrides := make(map[string]string, len(layout))
	for code, char := range layout {
		overrides[code] = char
	}
	return g.Dress(StageKeyboard, "KeyboardLayoutMap", "get", realm.Method, realm.OverrideTrap(overrides)), true
}
