package interp

import (
	"context"
	"fmt"
	"strings"

	wasminterp "github.com/wippyai/wasm-interp"
	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/resolve"
	"github.com/wippyai/wasm-interp/wasm"
	"github.com/wippyai/wasm-interp/wast"
)

// spectestText is the host module scripts import from, expressed in the
// repo's own text format and compiled through its own pipeline. Globals,
// table and memory carry the values the reference scripts expect; the print
// functions are no-ops.
const spectestText = `(module
  (func (export "print"))
  (func (export "print_i32") (param i32))
  (func (export "print_i64") (param i64))
  (func (export "print_f32") (param f32))
  (func (export "print_f64") (param f64))
  (func (export "print_i32_f32") (param i32 f32))
  (func (export "print_f64_f64") (param f64 f64))
  (global (export "global_i32") i32 (i32.const 666))
  (global (export "global_i64") i64 (i64.const 666))
  (global (export "global_f32") f32 (f32.const 666.6))
  (global (export "global_f64") f64 (f64.const 666.6))
  (table (export "table") 10 20 funcref)
  (memory (export "memory") 1 2))
`

// Summary counts command outcomes for one script run.
type Summary struct {
	Passed int
	Failed int
}

// Runner executes resolved scripts against a Store. One runner owns one
// environment plus one executor and pre-loads the spectest host module into
// it; every script run through the same runner shares that namespace.
type Runner struct {
	store *Store
	env   EnvironmentHandle
	exec  ExecutorHandle

	// per-run state, reset by Run
	modules []ModuleHandle // by module-command ordinal; 0 marks a failed build
	last    ModuleHandle
	wire    map[uint32]string
	passed  int
	failed  int
}

// NewRunner creates an environment under cfg, binds an executor, and
// instantiates the spectest host module under the wire name "spectest".
func NewRunner(ctx context.Context, store *Store, cfg *EnvironmentConfig) (*Runner, error) {
	env := store.CreateEnvironment(ctx, cfg)

	exec, err := store.CreateExecutor(env)
	if err != nil {
		_ = store.DestroyEnvironment(ctx, env)
		return nil, err
	}

	var sink errors.Sink
	if res, _ := store.ReadText(ctx, env, spectestText, ReadBinaryOptions{Name: "spectest"}, &sink); !res.Ok() {
		_ = store.DestroyEnvironment(ctx, env)
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInstantiation, nil,
			"spectest host module: "+sink.String())
	}

	return &Runner{store: store, env: env, exec: exec}, nil
}

// Close releases the runner's executor and environment.
func (r *Runner) Close(ctx context.Context) error {
	_ = r.store.DestroyExecutor(r.exec)
	return r.store.DestroyEnvironment(ctx, r.env)
}

// Run walks a script the caller has already passed through resolve.Script,
// instantiating modules, running actions, and checking assertions. Failures
// append diagnostics to sink; the summary counts every command.
func (r *Runner) Run(ctx context.Context, script *wast.Script, sink *errors.Sink) Summary {
	r.modules = nil
	r.last = 0
	r.passed = 0
	r.failed = 0
	r.wire = prescanRegisters(script)

	for _, cmd := range script.Commands {
		r.runCommand(ctx, cmd, sink)
	}
	return Summary{Passed: r.passed, Failed: r.failed}
}

// prescanRegisters maps module-command ordinals to the wire names later
// register commands assign, so each module can be instantiated under its
// final name. The first name for a module wins; extra registers are
// diagnosed when the walk reaches them.
func prescanRegisters(script *wast.Script) map[uint32]string {
	wire := make(map[uint32]string)
	ordinal := uint32(0)
	for _, cmd := range script.Commands {
		switch c := cmd.(type) {
		case *wast.ModuleCommand:
			ordinal++
		case *wast.RegisterCommand:
			target, ok := registerTarget(c, ordinal)
			if !ok {
				continue
			}
			if _, dup := wire[target]; !dup {
				wire[target] = c.As
			}
		}
	}
	return wire
}

// registerTarget resolves which module-command ordinal a register refers
// to: its explicit reference, or the most recent module when absent.
func registerTarget(c *wast.RegisterCommand, defined uint32) (uint32, bool) {
	if c.Module != nil {
		idx := c.Module.Index
		return idx, idx < defined
	}
	if defined == 0 {
		return 0, false
	}
	return defined - 1, true
}

func (r *Runner) runCommand(ctx context.Context, cmd wast.Command, sink *errors.Sink) {
	switch c := cmd.(type) {
	case *wast.ModuleCommand:
		r.runModule(ctx, c, sink)

	case *wast.RegisterCommand:
		r.runRegister(c, sink)

	case *wast.ActionCommand:
		res := r.runAction(ctx, &c.Action)
		if r.store.ResultStatus(res) != wasminterp.ResultOk {
			r.fail(sink, c.Action.Line, "%s failed: %s",
				actionString(&c.Action), r.store.ResultMessage(res))
		} else {
			r.passed++
		}
		_ = r.store.DestroyExecResult(res)

	case *wast.AssertReturnCommand:
		r.runAssertReturn(ctx, c, sink)

	case *wast.AssertTrapCommand:
		r.runAssertTrap(ctx, c, sink)

	case *wast.AssertExhaustionCommand:
		res := r.runAction(ctx, &c.Action)
		r.checkTrap(sink, c.Line, actionString(&c.Action), res, c.Failure)
		_ = r.store.DestroyExecResult(res)

	case *wast.AssertMalformedCommand:
		r.expectBuildFailure(ctx, &c.Module, c.Line, "malformed", sink)

	case *wast.AssertInvalidCommand:
		r.expectBuildFailure(ctx, &c.Module, c.Line, "invalid", sink)

	case *wast.AssertUnlinkableCommand:
		r.expectLoadFailure(ctx, &c.Module, c.Line, "unlinkable", sink)

	case *wast.AssertUninstantiableCommand:
		r.expectLoadFailure(ctx, &c.Module, c.Line, "uninstantiable", sink)

	default:
		r.fail(sink, cmd.Pos(), "unsupported script command %T", cmd)
	}
}

// runModule builds and instantiates a module command. The module becomes
// the target of later unqualified actions even when it fails, so those
// actions fail too instead of landing on an older module.
func (r *Runner) runModule(ctx context.Context, c *wast.ModuleCommand, sink *errors.Sink) {
	ordinal := uint32(len(r.modules))
	r.last = 0
	r.modules = append(r.modules, 0)

	bin, err := r.buildModule(&c.Module, false)
	if err != nil {
		r.fail(sink, c.Module.Line, "module: %v", err)
		return
	}

	opts := ReadBinaryOptions{ReadDebugNames: true, Name: r.wire[ordinal]}
	res, h := r.store.ReadBinary(ctx, r.env, bin, opts, sink)
	if !res.Ok() {
		r.failed++
		return
	}

	r.modules[ordinal] = h
	r.last = h
	r.passed++
}

func (r *Runner) runRegister(c *wast.RegisterCommand, sink *errors.Sink) {
	target, ok := registerTarget(c, uint32(len(r.modules)))
	if !ok {
		r.fail(sink, c.Line, "register %q: no module to register", c.As)
		return
	}
	if r.modules[target] == 0 {
		r.fail(sink, c.Line, "register %q: module failed to instantiate", c.As)
		return
	}
	if got := r.wire[target]; got != c.As {
		r.fail(sink, c.Line, "register %q: module already registered as %q", c.As, got)
		return
	}
	// Instantiation already happened under the prescanned name.
	r.passed++
}

func (r *Runner) runAssertReturn(ctx context.Context, c *wast.AssertReturnCommand, sink *errors.Sink) {
	desc := actionString(&c.Action)
	res := r.runAction(ctx, &c.Action)
	defer r.store.DestroyExecResult(res)

	if r.store.ResultStatus(res) != wasminterp.ResultOk {
		r.fail(sink, c.Line, "%s: expected return, got failure: %s",
			desc, r.store.ResultMessage(res))
		return
	}

	count := r.store.ResultCount(res)
	if count != len(c.Expected) {
		r.fail(sink, c.Line, "%s: %d results, want %d", desc, count, len(c.Expected))
		return
	}

	for i, want := range c.Expected {
		got, err := r.store.ResultValue(res, i)
		if err != nil {
			r.fail(sink, c.Line, "%s: result %d: %v", desc, i, err)
			return
		}
		ok, err := matchConst(want, got)
		if err != nil {
			r.fail(sink, c.Line, "%s: result %d: %v", desc, i, err)
			return
		}
		if !ok {
			r.fail(sink, c.Line, "%s: result %d = %s, want %s", desc, i, got, constString(want))
			return
		}
	}
	r.passed++
}

func (r *Runner) runAssertTrap(ctx context.Context, c *wast.AssertTrapCommand, sink *errors.Sink) {
	// Module form: instantiation itself must trap in the start function.
	if c.Module != nil {
		bin, err := r.buildModule(c.Module, false)
		if err != nil {
			r.fail(sink, c.Line, "assert_trap module: %v", err)
			return
		}
		var local errors.Sink
		res, _ := r.store.ReadBinary(ctx, r.env, bin, ReadBinaryOptions{}, &local)
		if res.Ok() {
			r.fail(sink, c.Line, "assert_trap: module instantiated without trapping")
			return
		}
		if !matchTrap(c.Failure, local.String()) {
			r.fail(sink, c.Line, "assert_trap: failure %q does not mention %q",
				local.String(), c.Failure)
			return
		}
		r.passed++
		return
	}

	res := r.runAction(ctx, &c.Action)
	r.checkTrap(sink, c.Line, actionString(&c.Action), res, c.Failure)
	_ = r.store.DestroyExecResult(res)
}

// checkTrap passes when the action failed with a message matching the
// expected failure text.
func (r *Runner) checkTrap(sink *errors.Sink, line int, desc string, res ExecResultHandle, failure string) {
	if r.store.ResultStatus(res) == wasminterp.ResultOk {
		r.fail(sink, line, "%s: expected trap %q, call succeeded", desc, failure)
		return
	}
	msg := r.store.ResultMessage(res)
	if !matchTrap(failure, msg) {
		r.fail(sink, line, "%s: trap %q does not mention %q", desc, msg, failure)
		return
	}
	r.passed++
}

// expectBuildFailure covers assert_malformed and assert_invalid: the module
// must fail somewhere between parsing and instantiation. The two assertions
// differ in which stage the reference interpreter rejects them at; here both
// accept a failure at any stage, and the stage reached is recorded on
// mismatch.
func (r *Runner) expectBuildFailure(ctx context.Context, sm *wast.ScriptModule, line int, what string, sink *errors.Sink) {
	bin, err := r.buildModule(sm, true)
	if err != nil {
		r.passed++
		return
	}

	var local errors.Sink
	res, _ := r.store.ReadBinary(ctx, r.env, bin, ReadBinaryOptions{}, &local)
	if res.Ok() {
		r.fail(sink, line, "assert_%s: module built and loaded cleanly", what)
		return
	}
	r.passed++
}

// expectLoadFailure covers assert_unlinkable and assert_uninstantiable: the
// module must build but fail to instantiate.
func (r *Runner) expectLoadFailure(ctx context.Context, sm *wast.ScriptModule, line int, what string, sink *errors.Sink) {
	bin, err := r.buildModule(sm, true)
	if err != nil {
		r.fail(sink, line, "assert_%s: module did not build: %v", what, err)
		return
	}

	var local errors.Sink
	res, _ := r.store.ReadBinary(ctx, r.env, bin, ReadBinaryOptions{}, &local)
	if res.Ok() {
		r.fail(sink, line, "assert_%s: module instantiated cleanly", what)
		return
	}
	r.passed++
}

// buildModule turns a script module into binary form. wrapped marks modules
// inside assertion commands, which script resolution leaves untouched and
// the runner must resolve itself.
func (r *Runner) buildModule(sm *wast.ScriptModule, wrapped bool) ([]byte, error) {
	switch {
	case sm.IsBinary():
		return sm.Binary, nil

	case sm.IsQuote():
		mod, err := parseQuoted(string(sm.Quote))
		if err != nil {
			return nil, err
		}
		return resolveAndEncode(mod)

	default:
		if wrapped {
			return resolveAndEncode(sm.Text)
		}
		return wasm.EncodeModule(sm.Text)
	}
}

// parseQuoted parses quoted module text, accepting both a full (module ...)
// form and the bare-fields abbreviation.
func parseQuoted(src string) (*wast.Module, error) {
	mod, err := wast.ParseModule(src)
	if err == nil {
		return mod, nil
	}
	// Bare fields only get retried wrapped when the source balances on its
	// own. Wrapping unbalanced text would paper over the very malformation
	// the quote is asserting.
	if !balanced(src) {
		return nil, err
	}
	if wrapped, werr := wast.ParseModule("(module " + src + ")"); werr == nil {
		return wrapped, nil
	}
	return nil, err
}

func balanced(src string) bool {
	tokens, err := wast.Tokenize(src)
	if err != nil {
		return false
	}
	depth := 0
	for _, tok := range tokens {
		switch tok.Kind {
		case wast.LParen:
			depth++
		case wast.RParen:
			depth--
		}
		if depth < 0 {
			return false
		}
	}
	return depth == 0
}

func resolveAndEncode(mod *wast.Module) ([]byte, error) {
	var sink errors.Sink
	if res := resolve.Module(mod, &sink); !res.Ok() {
		return nil, errors.Wrap(errors.PhaseResolve, errors.KindUnresolvedName, nil, sink.String())
	}
	return wasm.EncodeModule(mod)
}

// runAction resolves the action's target module and performs the invoke or
// global read. It always returns a live result handle.
func (r *Runner) runAction(ctx context.Context, a *wast.Action) ExecResultHandle {
	mod, err := r.actionModule(a)
	if err != nil {
		return r.store.errorResult(err.Error())
	}

	switch a.Kind {
	case wast.ActionGet:
		return r.store.GetGlobal(mod, a.Field)
	default:
		args := make([]wasminterp.TypedValue, len(a.Args))
		for i, c := range a.Args {
			v, err := constValue(c)
			if err != nil {
				return r.store.errorResult(fmt.Sprintf("argument %d: %v", i, err))
			}
			args[i] = v
		}
		return r.store.RunExport(ctx, r.exec, mod, a.Field, args)
	}
}

func (r *Runner) actionModule(a *wast.Action) (ModuleHandle, error) {
	if a.Module == nil {
		if r.last == 0 {
			return 0, errors.InvalidInput(errors.PhaseRuntime, "no module to run action against")
		}
		return r.last, nil
	}

	idx := a.Module.Index
	if idx >= uint32(len(r.modules)) {
		return 0, errors.OutOfBounds(errors.PhaseRuntime, int(idx), len(r.modules))
	}
	h := r.modules[idx]
	if h == 0 {
		return 0, errors.InvalidInput(errors.PhaseRuntime, "target module failed to instantiate")
	}
	return h, nil
}

func (r *Runner) fail(sink *errors.Sink, line int, format string, args ...any) {
	r.failed++
	if sink != nil {
		sink.Appendf(line, format, args...)
	}
}

// constValue converts a script constant into a boundary value. NaN patterns
// and reference constants only make sense as expectations, never arguments.
func constValue(c wast.Const) (wasminterp.TypedValue, error) {
	if c.NaN != wast.NaNNone {
		return wasminterp.TypedValue{}, errors.InvalidInput(errors.PhaseRuntime,
			"NaN pattern constant outside expected results")
	}
	switch c.Type {
	case wast.ValTypeI32:
		return wasminterp.I32(int32(c.Bits)), nil
	case wast.ValTypeI64:
		return wasminterp.I64(int64(c.Bits)), nil
	case wast.ValTypeF32:
		return wasminterp.F32Bits(uint32(c.Bits)), nil
	case wast.ValTypeF64:
		return wasminterp.F64Bits(c.Bits), nil
	}
	return wasminterp.TypedValue{}, errors.Unsupported(errors.PhaseRuntime,
		"reference-typed constant")
}

// NaN class masks: canonical is the exact quiet NaN payload (either sign),
// arithmetic is any NaN with the payload's most significant bit set.
const (
	f32NaNCanonical = 0x7FC0_0000
	f64NaNCanonical = 0x7FF8_0000_0000_0000
)

// matchConst compares one returned value against a script expectation,
// bit-exact except where a NaN pattern widens the match.
func matchConst(c wast.Const, v wasminterp.TypedValue) (bool, error) {
	switch c.Type {
	case wast.ValTypeI32:
		return v.Kind == wasminterp.KindI32 && uint32(v.Bits) == uint32(c.Bits), nil

	case wast.ValTypeI64:
		return v.Kind == wasminterp.KindI64 && v.Bits == c.Bits, nil

	case wast.ValTypeF32:
		if v.Kind != wasminterp.KindF32 {
			return false, nil
		}
		bits := uint32(v.Bits)
		switch c.NaN {
		case wast.NaNCanonical:
			return bits&0x7FFF_FFFF == f32NaNCanonical, nil
		case wast.NaNArithmetic:
			return bits&f32NaNCanonical == f32NaNCanonical, nil
		}
		return bits == uint32(c.Bits), nil

	case wast.ValTypeF64:
		if v.Kind != wasminterp.KindF64 {
			return false, nil
		}
		switch c.NaN {
		case wast.NaNCanonical:
			return v.Bits&0x7FFF_FFFF_FFFF_FFFF == f64NaNCanonical, nil
		case wast.NaNArithmetic:
			return v.Bits&f64NaNCanonical == f64NaNCanonical, nil
		}
		return v.Bits == c.Bits, nil
	}

	return false, errors.Unsupported(errors.PhaseRuntime, "reference-typed expectation")
}

func constString(c wast.Const) string {
	switch c.Type {
	case wast.ValTypeI32:
		return fmt.Sprintf("i32:%d", int32(c.Bits))
	case wast.ValTypeI64:
		return fmt.Sprintf("i64:%d", int64(c.Bits))
	case wast.ValTypeF32:
		switch c.NaN {
		case wast.NaNCanonical:
			return "f32:nan:canonical"
		case wast.NaNArithmetic:
			return "f32:nan:arithmetic"
		}
		return wasminterp.F32Bits(uint32(c.Bits)).String()
	case wast.ValTypeF64:
		switch c.NaN {
		case wast.NaNCanonical:
			return "f64:nan:canonical"
		case wast.NaNArithmetic:
			return "f64:nan:arithmetic"
		}
		return wasminterp.F64Bits(c.Bits).String()
	}
	return "ref"
}

func actionString(a *wast.Action) string {
	if a.Kind == wast.ActionGet {
		return fmt.Sprintf("get %q", a.Field)
	}
	return fmt.Sprintf("invoke %q", a.Field)
}

// trapAliases maps the historical failure strings scripts carry onto the
// texts the wazero runtime actually produces.
var trapAliases = map[string][]string{
	"call stack exhausted":       {"stack overflow"},
	"undefined element":          {"invalid table access"},
	"uninitialized element":      {"invalid table access"},
	"out of bounds table access": {"invalid table access"},
}

func matchTrap(expected, actual string) bool {
	if expected == "" {
		return true
	}
	if strings.Contains(actual, expected) {
		return true
	}
	for _, alias := range trapAliases[expected] {
		if strings.Contains(actual, alias) {
			return true
		}
	}
	return false
}
