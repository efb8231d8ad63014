// Package engine runs WebAssembly modules on an embedded wazero runtime.
// Each Engine owns one runtime; modules loaded into the same engine share
// its namespace, so a module registered under a name can satisfy imports of
// modules loaded after it.
package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"

	wasminterp "github.com/wippyai/wasm-interp"
	"github.com/wippyai/wasm-interp/errors"
)

// Config holds configuration for engine creation.
type Config struct {
	// Features selects the WebAssembly proposals the runtime accepts.
	// The zero value is MVP-only; most callers want
	// wasminterp.DefaultFeatures().
	Features wasminterp.Features

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32
}

// Engine wraps one wazero runtime. Distinct engines share no state.
type Engine struct {
	runtime wazero.Runtime
}

// New creates an engine backed by a fresh runtime. A nil cfg uses
// wasminterp.DefaultFeatures() and no memory limit.
func New(ctx context.Context, cfg *Config) *Engine {
	features := wasminterp.DefaultFeatures()
	var memLimit uint32
	if cfg != nil {
		features = cfg.Features
		memLimit = cfg.MemoryLimitPages
	}

	runtimeCfg := wazero.NewRuntimeConfig().WithCoreFeatures(coreFeatures(features))
	if memLimit > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(memLimit)
	}

	return &Engine{runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg)}
}

// coreFeatures maps boundary feature toggles onto wazero's flag set.
func coreFeatures(f wasminterp.Features) api.CoreFeatures {
	var cf api.CoreFeatures
	if f.MutableGlobals {
		cf |= api.CoreFeatureMutableGlobal
	}
	if f.SaturatingFloatToInt {
		cf |= api.CoreFeatureNonTrappingFloatToIntConversion
	}
	if f.SignExtension {
		cf |= api.CoreFeatureSignExtensionOps
	}
	if f.MultiValue {
		cf |= api.CoreFeatureMultiValue
	}
	if f.BulkMemory {
		cf |= api.CoreFeatureBulkMemoryOperations
	}
	if f.ReferenceTypes {
		cf |= api.CoreFeatureReferenceTypes
	}
	if f.SIMD {
		cf |= api.CoreFeatureSIMD
	}
	if f.Threads {
		cf |= experimental.CoreFeaturesThreads
	}
	return cf
}

// Load compiles and instantiates a binary module. A non-empty name registers
// the instance in the runtime's namespace so later modules can import from
// it; an empty name keeps the instance anonymous. The module's start
// function, if any, runs during instantiation and may trap.
func (e *Engine) Load(ctx context.Context, binary []byte, name string) (*Module, error) {
	compiled, err := e.runtime.CompileModule(ctx, binary)
	if err != nil {
		return nil, errors.Load("compile module", err)
	}

	// No WASI-style entry point convention here: only the wasm start
	// section runs at instantiation.
	modCfg := wazero.NewModuleConfig().WithName(name).WithStartFunctions()

	instance, err := e.runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, errors.Instantiation(err)
	}

	return &Module{
		name:      name,
		compiled:  compiled,
		instance:  instance,
		funcCache: make(map[string]api.Function),
		stackBuf:  make([]uint64, 16),
	}, nil
}

// Close releases the runtime and every module instantiated through it.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// Module is an instantiated module ready for export calls.
// It is NOT safe for concurrent use from multiple goroutines; one call runs
// at a time.
type Module struct {
	name      string
	compiled  wazero.CompiledModule
	instance  api.Module
	funcCache map[string]api.Function
	stackBuf  []uint64
	cacheMu   sync.RWMutex
}

// Name returns the wire name the module was registered under, or "".
func (m *Module) Name() string { return m.name }

// Invoke calls an exported function with boundary values and returns its
// results in declaration order. Lookup is exact; a missing export, an
// argument list that does not match the declared signature, and a trap
// during execution are all reported as errors.
func (m *Module) Invoke(ctx context.Context, name string, args []wasminterp.TypedValue) ([]wasminterp.TypedValue, error) {
	fn := m.exportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "export", name)
	}

	def := fn.Definition()
	slots, serr := lowerArgs(name, def.ParamTypes(), args)
	if serr != nil {
		return nil, serr
	}

	resultTypes := def.ResultTypes()
	raw, err := m.call(ctx, fn, slots, len(resultTypes))
	if err != nil {
		Logger().Debug("export call failed",
			zap.String("export", name),
			zap.Error(err))
		if _, ok := err.(*errors.Error); ok {
			return nil, err
		}
		return nil, errors.Trap(name, err)
	}

	return liftResults(name, resultTypes, raw), nil
}

// call drives the function through the reusable stack buffer. A panic out of
// the runtime is converted to an error so it never crosses the boundary.
func (m *Module) call(ctx context.Context, fn api.Function, params []uint64, resultCount int) (results []uint64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.PhaseRuntime, errors.KindTrap).
				Detail("engine panic: %v", r).
				Build()
		}
	}()

	need := len(params)
	if resultCount > need {
		need = resultCount
	}
	stack := m.stackBuf
	if need > len(stack) {
		stack = make([]uint64, need)
	}
	copy(stack, params)

	if err := fn.CallWithStack(ctx, stack[:need]); err != nil {
		return nil, err
	}
	return stack[:resultCount], nil
}

// Global reads the current value of an exported global.
func (m *Module) Global(name string) (wasminterp.TypedValue, error) {
	g := m.instance.ExportedGlobal(name)
	if g == nil {
		return wasminterp.TypedValue{}, errors.NotFound(errors.PhaseRuntime, "global", name)
	}
	return valueFromSlot(name, g.Type(), g.Get()), nil
}

// ExportedFunction describes one function export.
type ExportedFunction struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// ExportedFunctions lists the module's function exports sorted by name.
func (m *Module) ExportedFunctions() []ExportedFunction {
	defs := m.instance.ExportedFunctionDefinitions()
	out := make([]ExportedFunction, 0, len(defs))
	for name, def := range defs {
		out = append(out, ExportedFunction{
			Name:    name,
			Params:  def.ParamTypes(),
			Results: def.ResultTypes(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// HasExport reports whether the module exports anything under name.
func (m *Module) HasExport(name string) bool {
	if m.instance.ExportedFunction(name) != nil {
		return true
	}
	return m.instance.ExportedGlobal(name) != nil
}

func (m *Module) exportedFunction(name string) api.Function {
	m.cacheMu.RLock()
	fn, ok := m.funcCache[name]
	m.cacheMu.RUnlock()
	if ok {
		return fn
	}

	fn = m.instance.ExportedFunction(name)
	if fn == nil {
		return nil
	}

	m.cacheMu.Lock()
	m.funcCache[name] = fn
	m.cacheMu.Unlock()
	return fn
}

// Close releases the instance early. Closing the engine reaches every module
// anyway.
func (m *Module) Close(ctx context.Context) error {
	var firstErr error
	if m.instance != nil {
		if err := m.instance.Close(ctx); err != nil {
			firstErr = err
		}
		m.instance = nil
	}
	if m.compiled != nil {
		if err := m.compiled.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		m.compiled = nil
	}
	// Clear references to help GC
	m.funcCache = nil
	m.stackBuf = nil
	return firstErr
}
