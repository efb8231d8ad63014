package resolve

import (
	wasminterp "github.com/wippyai/wasm-interp"
	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/wast"
)

// scriptScope tracks module bindings as a script resolution walks the
// command list. A $name refers to the nearest earlier module carrying it;
// rebinding a name shadows the previous module.
type scriptScope struct {
	sink   *errors.Sink
	byName map[string]uint32
	count  uint32
	failed bool
}

// Script resolves every text module in s and every module reference held
// by register commands and actions. Modules wrapped in malformedness or
// validity assertions are left untouched; resolving those is part of the
// assertion check itself and happens when the script runs.
func Script(s *wast.Script, sink *errors.Sink) wasminterp.Result {
	sc := &scriptScope{sink: sink, byName: make(map[string]uint32)}

	for _, cmd := range s.Commands {
		switch c := cmd.(type) {
		case *wast.ModuleCommand:
			if c.Module.Text != nil && !Module(c.Module.Text, sink).Ok() {
				sc.failed = true
			}
			sc.define(c.Module.Name)

		case *wast.RegisterCommand:
			if c.Module != nil {
				sc.ref(c.Module)
			}

		case *wast.ActionCommand:
			sc.action(&c.Action)

		case *wast.AssertReturnCommand:
			sc.action(&c.Action)

		case *wast.AssertTrapCommand:
			if c.Module != nil {
				// Module form: instantiation is expected to trap. The
				// module must still resolve, but it never becomes
				// addressable by later commands.
				if c.Module.Text != nil && !Module(c.Module.Text, sink).Ok() {
					sc.failed = true
				}
			} else {
				sc.action(&c.Action)
			}

		case *wast.AssertExhaustionCommand:
			sc.action(&c.Action)
		}
	}

	if sc.failed {
		return wasminterp.ResultError
	}
	return wasminterp.ResultOk
}

func (sc *scriptScope) define(name string) {
	if name != "" {
		sc.byName[name] = sc.count
	}
	sc.count++
}

func (sc *scriptScope) action(a *wast.Action) {
	if a.Module != nil {
		sc.ref(a.Module)
	}
}

// ref rewrites a script-level module reference to the ordinal of the
// module it names.
func (sc *scriptScope) ref(v *wast.Var) {
	if v.Symbolic() {
		idx, ok := sc.byName[v.Name]
		if !ok {
			sc.sink.AppendError(errors.Unresolved(errors.PhaseResolve, v.Name, v.Line))
			sc.failed = true
			return
		}
		v.Index = idx
		v.Name = ""
		return
	}
	if v.Index >= sc.count {
		sc.sink.AppendError(errors.New(errors.PhaseResolve, errors.KindOutOfBounds).
			Line(v.Line).
			Value(v.Index).
			Detail("module index %d exceeds count %d", v.Index, sc.count).
			Build())
		sc.failed = true
	}
}
