// Package probe expresses the checks a fingerprinting script runs against
// navigator.plugins and navigator.mimeTypes as plain JavaScript expressions,
// and evaluates them against any engine that can run an expression.
package probe

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/go-cmp/cmp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-mimic/internal/browser/evasions"
	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Probe is one page-side check. Want is compared against the JSON form of
// what Expr evaluates to, so numbers of any Go type compare by value.
type Probe struct {
	Name string
	Expr string
	Want interface{}
}

// Evaluator runs a JavaScript expression and returns its exported value.
type Evaluator interface {
	Evaluate(ctx context.Context, expr string) (interface{}, error)
}

// Result is the outcome of one probe.
type Result struct {
	Probe Probe
	Got   interface{}
	Err   error
	// Diff is empty when the probe passed.
	Diff string
}

// Passed reports whether the engine returned the expected value.
func (r Result) Passed() bool { return r.Err == nil && r.Diff == "" }

// Report collects the results of one battery run.
type Report struct {
	Results []Result
	Passed  int
	Failed  int
}

// Failures returns the results that did not pass.
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Passed() {
			out = append(out, res)
		}
	}
	return out
}

// Run evaluates every probe in order. Evaluation errors fail the probe but
// never stop the run; only ctx cancellation does.
func Run(ctx context.Context, eval Evaluator, probes []Probe, logger *zap.Logger) (*Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("probe")
	report := &Report{Results: make([]Result, 0, len(probes))}

	for _, p := range probes {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("probe run aborted after %d of %d probes: %w", len(report.Results), len(probes), err)
		}
		res := Result{Probe: p}
		got, err := eval.Evaluate(ctx, p.Expr)
		if err != nil {
			res.Err = err
		} else {
			res.Got = got
			res.Diff, res.Err = compare(p.Want, got)
		}

		if res.Passed() {
			report.Passed++
		} else {
			report.Failed++
			logger.Debug("Probe failed.",
				zap.String("probe", p.Name),
				zap.String("diff", res.Diff),
				zap.Error(res.Err),
			)
		}
		report.Results = append(report.Results, res)
	}

	logger.Info("Probe battery complete.", zap.Int("passed", report.Passed), zap.Int("failed", report.Failed))
	return report, nil
}

// compare normalizes both sides through JSON before diffing them.
func compare(want, got interface{}) (string, error) {
	w, err := normalize(want)
	if err != nil {
		return "", fmt.Errorf("normalizing expectation: %w", err)
	}
	g, err := normalize(got)
	if err != nil {
		return "", fmt.Errorf("normalizing result: %w", err)
	}
	return cmp.Diff(w, g), nil
}

func normalize(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// quote renders s as a JavaScript string literal.
func quote(s string) string {
	data, err := json.Marshal(s)
	if err != nil {
		return strconv.Quote(s)
	}
	return string(data)
}

// guarded wraps expr so that a throw becomes a string result rather than an
// evaluation error, which keeps the diff readable.
func guarded(expr string) string {
	return "(() => { try { return " + expr + "; } catch (e) { return 'threw ' + e; } })()"
}

func sourceExpr(iface, member string, kind realm.MemberKind) string {
	fn := iface + ".prototype." + member
	if kind == realm.Getter {
		fn = "Object.getOwnPropertyDescriptor(" + iface + ".prototype, " + quote(member) + ").get"
	}
	return guarded("Function.prototype.toString.call(" + fn + ")")
}

func keysOf(c *evasions.Collection) []string {
	keys := make([]string, 0, c.Len())
	for i := range c.All() {
		keys = append(keys, strconv.Itoa(i))
	}
	return append(keys, c.Keys()...)
}
