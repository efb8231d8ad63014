package resolve

import (
	wasminterp "github.com/wippyai/wasm-interp"
	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/wast"
)

// space is one index space: its name bindings, the total number of items
// it holds, and the noun used in diagnostics.
type space struct {
	byName map[string]uint32
	count  uint32
	kind   string
}

func newSpace(kind string) space {
	return space{byName: make(map[string]uint32), kind: kind}
}

// scope holds the binding tables of a module's index spaces.
type scope struct {
	types   space
	funcs   space
	tables  space
	mems    space
	globals space
	elems   space
	datas   space
}

type resolver struct {
	sink   *errors.Sink
	mod    *wast.Module
	scope  scope
	failed bool
}

// Module resolves every symbolic reference in mod to its numeric index.
// Diagnostics are appended to sink, one per problem, and resolution
// continues past failures so a single pass reports them all. On
// ResultError the module is partially rewritten and should be discarded.
func Module(mod *wast.Module, sink *errors.Sink) wasminterp.Result {
	r := &resolver{sink: sink, mod: mod}
	r.module()
	if r.failed {
		return wasminterp.ResultError
	}
	return wasminterp.ResultOk
}

func (r *resolver) report(err *errors.Error) {
	r.sink.AppendError(err)
	r.failed = true
}

func (r *resolver) module() {
	r.buildScope()

	for i := range r.mod.Imports {
		if r.mod.Imports[i].Kind == wast.KindFunc {
			r.typeUse(&r.mod.Imports[i].Func)
		}
	}
	for i := range r.mod.Funcs {
		r.function(&r.mod.Funcs[i])
	}
	for i := range r.mod.Globals {
		r.constExpr(r.mod.Globals[i].Init)
	}
	for i := range r.mod.Exports {
		r.export(&r.mod.Exports[i])
	}
	if r.mod.Start != nil {
		r.resolveVar(r.mod.Start, r.scope.funcs)
	}
	for i := range r.mod.Elems {
		r.elem(&r.mod.Elems[i])
	}
	for i := range r.mod.Data {
		if !r.mod.Data[i].Passive {
			r.resolveVar(&r.mod.Data[i].Mem, r.scope.mems)
			r.constExpr(r.mod.Data[i].Offset)
		}
	}
}

// buildScope binds every named item to its index space slot. Imports occupy
// the leading slots of their space, in import order, ahead of definitions.
func (r *resolver) buildScope() {
	r.scope = scope{
		types:   newSpace("type"),
		funcs:   newSpace("function"),
		tables:  newSpace("table"),
		mems:    newSpace("memory"),
		globals: newSpace("global"),
		elems:   newSpace("element segment"),
		datas:   newSpace("data segment"),
	}

	for _, td := range r.mod.Types {
		r.bind(&r.scope.types, td.Name, td.Line)
	}
	for _, imp := range r.mod.Imports {
		switch imp.Kind {
		case wast.KindFunc:
			r.bind(&r.scope.funcs, imp.Name, imp.Line)
		case wast.KindTable:
			r.bind(&r.scope.tables, imp.Name, imp.Line)
		case wast.KindMemory:
			r.bind(&r.scope.mems, imp.Name, imp.Line)
		case wast.KindGlobal:
			r.bind(&r.scope.globals, imp.Name, imp.Line)
		}
	}
	for _, fn := range r.mod.Funcs {
		r.bind(&r.scope.funcs, fn.Name, fn.Line)
	}
	for _, t := range r.mod.Tables {
		r.bind(&r.scope.tables, t.Name, t.Line)
	}
	for _, m := range r.mod.Memories {
		r.bind(&r.scope.mems, m.Name, m.Line)
	}
	for _, g := range r.mod.Globals {
		r.bind(&r.scope.globals, g.Name, g.Line)
	}
	for _, e := range r.mod.Elems {
		r.bind(&r.scope.elems, e.Name, e.Line)
	}
	for _, d := range r.mod.Data {
		r.bind(&r.scope.datas, d.Name, d.Line)
	}
}

// bind claims the next slot of a space and records the name when present.
func (r *resolver) bind(sp *space, name string, line int) {
	idx := sp.count
	sp.count++
	if name == "" {
		return
	}
	if _, dup := sp.byName[name]; dup {
		r.report(errors.Duplicate(errors.PhaseResolve, name, line))
		return
	}
	sp.byName[name] = idx
}

// resolveVar rewrites one reference against an index space. Unbound names
// and out-of-range numeric indices are reported and leave the reference
// unusable.
func (r *resolver) resolveVar(v *wast.Var, sp space) bool {
	if v.Symbolic() {
		idx, ok := sp.byName[v.Name]
		if !ok {
			r.report(errors.Unresolved(errors.PhaseResolve, v.Name, v.Line))
			return false
		}
		v.Index = idx
		v.Name = ""
		return true
	}
	if v.Index >= sp.count {
		r.report(errors.New(errors.PhaseResolve, errors.KindOutOfBounds).
			Line(v.Line).
			Value(v.Index).
			Detail("%s index %d exceeds count %d", sp.kind, v.Index, sp.count).
			Build())
		return false
	}
	return true
}

// typeUse settles a (type $t) reference. When the use also spells out an
// inline signature, it must match the referenced definition exactly.
func (r *resolver) typeUse(tu *wast.TypeUse) {
	if tu.Type == nil {
		return
	}
	if !r.resolveVar(tu.Type, r.scope.types) {
		return
	}
	idx := tu.Type.Index
	if len(tu.Params) > 0 || len(tu.Results) > 0 {
		want := r.mod.Types[idx].Type
		got := wast.FuncType{Params: tu.Params, Results: tu.Results}
		if !want.Equal(got) {
			r.report(errors.New(errors.PhaseResolve, errors.KindSignatureMismatch).
				Line(tu.Type.Line).
				Detail("inline signature does not match type %d", idx).
				Build())
		}
	}
	tu.Index = idx
}

func (r *resolver) function(fn *wast.Func) {
	r.typeUse(&fn.Type)
	locals := r.localSpace(fn)
	r.instrs(fn.Body, locals, true)
}

// localSpace builds the local index space of one function: parameters
// first, then declared locals. Parameter names only exist when the source
// spelled out an inline signature; a bare (type $t) use contributes
// unnamed slots sized from the referenced signature.
func (r *resolver) localSpace(fn *wast.Func) space {
	sp := newSpace("local")
	for _, name := range fn.ParamNames {
		r.bind(&sp, name, fn.Line)
	}
	if fn.Type.Type != nil && len(fn.ParamNames) == 0 {
		if int(fn.Type.Index) < len(r.mod.Types) {
			sp.count = uint32(len(r.mod.Types[fn.Type.Index].Type.Params))
		}
	}
	for _, l := range fn.Locals {
		r.bind(&sp, l.Name, fn.Line)
	}
	return sp
}

func (r *resolver) export(e *wast.Export) {
	switch e.Kind {
	case wast.KindFunc:
		r.resolveVar(&e.Target, r.scope.funcs)
	case wast.KindTable:
		r.resolveVar(&e.Target, r.scope.tables)
	case wast.KindMemory:
		r.resolveVar(&e.Target, r.scope.mems)
	case wast.KindGlobal:
		r.resolveVar(&e.Target, r.scope.globals)
	}
}

func (r *resolver) elem(e *wast.Elem) {
	if e.Mode == wast.ElemModeActive {
		r.resolveVar(&e.Table, r.scope.tables)
		r.constExpr(e.Offset)
	}
	for i := range e.Items {
		if e.Items[i].Expr != nil {
			r.constExpr(e.Items[i].Expr)
		} else {
			r.resolveVar(&e.Items[i].Func, r.scope.funcs)
		}
	}
}
