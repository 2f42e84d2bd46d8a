package evasions

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-mimic/api/schemas"
	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm/script"
)

// Render records an installation of ds and returns it as a self-contained
// script to be evaluated in a page before any page script runs. Existence
// checks happen in the page, so the returned PatchSet only reports
// dataset-level skips.
func Render(ds *schemas.Dataset, logger *zap.Logger, opts Options) (string, *PatchSet) {
	rec := script.New()
	ps := NewInstaller(rec, logger, opts).Install(ds)
	return rec.Script(), ps
}
