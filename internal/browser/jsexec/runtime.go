// internal/browser/jsexec/runtime.go
package jsexec

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm"
	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm/gojarealm"
)

// Runtime is a persistent goja environment carrying a stand-in browser
// surface. Rendered evasion scripts and detection probes run in it exactly
// as they would in a page, without a browser.
type Runtime struct {
	vm        *goja.Runtime
	realm     *gojarealm.Realm
	logger    *zap.Logger
	execMutex sync.Mutex // -- serializes all access to the VM --
}

// DefaultTimeout is the fallback execution timeout if the context has no deadline.
const DefaultTimeout = 30 * time.Second

// ErrPendingPromise is returned when a script evaluates to a promise that has
// not settled once the script's synchronous work and microtasks are done.
var ErrPendingPromise = errors.New("javascript promise did not settle")

// NewRuntime creates a runtime exposing surface.
func NewRuntime(logger *zap.Logger, surface realm.Surface) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	vm := goja.New()
	if err := gojarealm.InstallSurface(vm, surface); err != nil {
		return nil, fmt.Errorf("failed to install browser surface: %w", err)
	}
	rl, err := gojarealm.New(vm)
	if err != nil {
		return nil, fmt.Errorf("failed to bind realm: %w", err)
	}
	return &Runtime{vm: vm, realm: rl, logger: logger.Named("jsexec")}, nil
}

// Do runs fn against the runtime's realm under the execution lock. Scripts
// started by fn are interrupted when ctx ends.
func (r *Runtime) Do(ctx context.Context, fn func(rl *gojarealm.Realm) error) error {
	r.execMutex.Lock()
	defer r.execMutex.Unlock()

	ctx, stop := r.guard(ctx)
	defer stop()

	if err := fn(r.realm); err != nil {
		return r.mapError(ctx, err)
	}
	return nil
}

// ExecuteScript runs a JavaScript snippet within the persistent VM environment.
// Args can be passed if the script is structured as a function wrapper.
func (r *Runtime) ExecuteScript(ctx context.Context, script string, args []interface{}) (interface{}, error) {
	r.execMutex.Lock()
	defer r.execMutex.Unlock()

	ctx, stop := r.guard(ctx)
	defer stop()

	var result goja.Value
	var err error
	if r.isFunctionWrapper(script) {
		result, err = r.executeFunctionWrapper(script, args)
	} else {
		if len(args) > 0 {
			r.logger.Debug("Arguments provided to ExecuteScript in snippet mode are ignored.")
		}
		result, err = r.vm.RunString(script)
	}
	if err != nil {
		return nil, r.mapError(ctx, err)
	}

	// goja drains the microtask queue before returning, so anything still
	// pending here would need a timer and will never settle.
	if promise, ok := result.Export().(*goja.Promise); ok {
		switch promise.State() {
		case goja.PromiseStateFulfilled:
			return promise.Result().Export(), nil
		case goja.PromiseStateRejected:
			return nil, fmt.Errorf("javascript promise rejected: %v", promise.Result().Export())
		default:
			return nil, ErrPendingPromise
		}
	}
	return result.Export(), nil
}

// Evaluate runs a single expression. It lets the runtime serve as a probe
// evaluator.
func (r *Runtime) Evaluate(ctx context.Context, expr string) (interface{}, error) {
	return r.ExecuteScript(ctx, expr, nil)
}

// guard applies DefaultTimeout when ctx has no deadline and interrupts the
// VM when ctx ends. The returned stop func must be called before the lock is
// released.
func (r *Runtime) guard(ctx context.Context) (context.Context, func()) {
	cancel := func() {}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			r.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()
	return ctx, func() {
		close(done)
		wg.Wait()
		r.vm.ClearInterrupt()
		cancel()
	}
}

func (r *Runtime) mapError(ctx context.Context, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Errorf("javascript execution interrupted by context: %w", ctx.Err())
	}
	var jsErr *goja.Exception
	if errors.As(err, &jsErr) {
		return fmt.Errorf("javascript exception: %s", jsErr.Error())
	}
	return err
}

// isFunctionWrapper uses heuristics to detect common function wrappers.
func (r *Runtime) isFunctionWrapper(script string) bool {
	s := strings.TrimSpace(script)
	if len(s) < 5 {
		return false
	}
	// An immediately invoked wrapper is a snippet, not a callable.
	if strings.HasSuffix(strings.TrimSuffix(s, ";"), ")()") {
		return false
	}
	return strings.HasPrefix(s, "(function") || strings.HasPrefix(s, "function") ||
		strings.HasPrefix(s, "(()=>") || strings.HasPrefix(s, "(() =>")
}

// executeFunctionWrapper evaluates the script and calls it as a function.
func (r *Runtime) executeFunctionWrapper(script string, args []interface{}) (goja.Value, error) {
	prog, err := goja.Compile("", script, false)
	if err != nil {
		return nil, fmt.Errorf("failed to compile function wrapper script: %w", err)
	}
	val, err := r.vm.RunProgram(prog)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(val)
	if !ok {
		return nil, fmt.Errorf("script did not evaluate to a callable function wrapper")
	}
	gojaArgs := make([]goja.Value, len(args))
	for i, arg := range args {
		gojaArgs[i] = r.vm.ToValue(arg)
	}
	return fn(r.vm.GlobalObject(), gojaArgs...)
}
