// Package interp is the boundary surface of the interpreter: caller-owned
// handles over environments, modules, executors and execution results, and
// the operations that move modules and values across that line. Handles are
// branded uint32 types so one kind cannot stand in for another; handle 0 is
// always invalid.
//
// At most one goroutine may drive a given environment and its executors at a
// time. The handle tables themselves are synchronized, so distinct
// environments are safe to drive from distinct goroutines.
package interp

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	wasminterp "github.com/wippyai/wasm-interp"
	"github.com/wippyai/wasm-interp/engine"
	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/wasm"
)

// Branded handle types. The brands exist so the compiler rejects a module
// handle where an executor handle is expected.
type (
	// EnvironmentHandle names a loaded-module namespace with its own runtime.
	EnvironmentHandle uint32
	// ModuleHandle names a module instantiated inside an environment. The
	// environment owns it; destroying the environment releases it.
	ModuleHandle uint32
	// ExecutorHandle names an executor bound to one environment.
	ExecutorHandle uint32
	// ExecResultHandle names the stored outcome of one export call.
	ExecResultHandle uint32
)

// EnvironmentConfig carries per-environment runtime settings.
type EnvironmentConfig struct {
	// Features selects the accepted WebAssembly proposals. The zero value
	// is MVP-only.
	Features wasminterp.Features
	// MemoryLimitPages caps linear memory per instance in 64KB pages;
	// 0 means the runtime default.
	MemoryLimitPages uint32
}

// ReadBinaryOptions adjusts how ReadBinary treats a module.
type ReadBinaryOptions struct {
	// ReadDebugNames decodes the "name" custom section and keeps it for
	// diagnostics. No semantic effect on execution.
	ReadDebugNames bool
	// Name registers the module under a wire name that modules loaded later
	// into the same environment can import from.
	Name string
}

// Store owns the four handle tables. Every boundary operation validates its
// handles and reports misuse as an error or an Error-status result rather
// than corrupting neighboring entries.
type Store struct {
	envs    *table[*environment]
	mods    *table[*moduleEntry]
	execs   *table[*executor]
	results *table[*execResult]
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		envs:    newTable[*environment](),
		mods:    newTable[*moduleEntry](),
		execs:   newTable[*executor](),
		results: newTable[*execResult](),
	}
}

type environment struct {
	engine  *engine.Engine
	mu      sync.Mutex
	modules []ModuleHandle
}

func (e *environment) addModule(h ModuleHandle) {
	e.mu.Lock()
	e.modules = append(e.modules, h)
	e.mu.Unlock()
}

func (e *environment) takeModules() []ModuleHandle {
	e.mu.Lock()
	ms := e.modules
	e.modules = nil
	e.mu.Unlock()
	return ms
}

type moduleEntry struct {
	env      EnvironmentHandle
	mod      *engine.Module
	names    wasm.Names
	hasNames bool
}

// describe renders a call failure, prefixed with the module's debug name
// when one was retained at load.
func (m *moduleEntry) describe(err error) string {
	if m.hasNames && m.names.Module != "" {
		return fmt.Sprintf("module %q: %v", m.names.Module, err)
	}
	return err.Error()
}

// Executor call states: Idle until the first call, Running while an export
// executes, then Completed or Trapped. Only the Running state is load
// bearing; it backs the reentry guard.
const (
	execIdle int32 = iota
	execRunning
	execCompleted
	execTrapped
)

type executor struct {
	env   EnvironmentHandle
	state atomic.Int32
}

// begin moves the executor into Running unless it is already there.
func (x *executor) begin() bool {
	for {
		s := x.state.Load()
		if s == execRunning {
			return false
		}
		if x.state.CompareAndSwap(s, execRunning) {
			return true
		}
	}
}

func (x *executor) finish(state int32) {
	x.state.Store(state)
}

type execResult struct {
	status wasminterp.Result
	values []wasminterp.TypedValue
	msg    string
}

// CreateEnvironment allocates an environment backed by a private runtime.
// It never fails; a nil cfg selects wasminterp.DefaultFeatures().
func (s *Store) CreateEnvironment(ctx context.Context, cfg *EnvironmentConfig) EnvironmentHandle {
	var ecfg *engine.Config
	if cfg != nil {
		ecfg = &engine.Config{
			Features:         cfg.Features,
			MemoryLimitPages: cfg.MemoryLimitPages,
		}
	}

	h := EnvironmentHandle(s.envs.add(&environment{engine: engine.New(ctx, ecfg)}))
	Logger().Debug("environment created", zap.Uint32("env", uint32(h)))
	return h
}

// DestroyEnvironment closes the environment's runtime and transitively drops
// every module it owns. Executors bound to it stay allocated; using them
// afterwards is a caller error and is reported per call.
func (s *Store) DestroyEnvironment(ctx context.Context, env EnvironmentHandle) error {
	e, ok := s.envs.drop(uint32(env))
	if !ok {
		return errors.InvalidHandle("environment")
	}

	for _, mh := range e.takeModules() {
		s.mods.drop(uint32(mh))
	}

	err := e.engine.Close(ctx)
	Logger().Debug("environment destroyed",
		zap.Uint32("env", uint32(env)),
		zap.Error(err))
	return err
}

// CreateExecutor allocates an executor bound to env.
func (s *Store) CreateExecutor(env EnvironmentHandle) (ExecutorHandle, error) {
	if _, ok := s.envs.get(uint32(env)); !ok {
		return 0, errors.InvalidHandle("environment")
	}
	return ExecutorHandle(s.execs.add(&executor{env: env})), nil
}

// DestroyExecutor releases executor-local state only.
func (s *Store) DestroyExecutor(exec ExecutorHandle) error {
	if _, ok := s.execs.drop(uint32(exec)); !ok {
		return errors.InvalidHandle("executor")
	}
	return nil
}

// DestroyExecResult releases the stored return values of one call. A second
// destroy of the same handle is reported and leaves every other entry
// intact.
func (s *Store) DestroyExecResult(res ExecResultHandle) error {
	if _, ok := s.results.drop(uint32(res)); !ok {
		return errors.InvalidHandle("exec result")
	}
	return nil
}

// ReadBinary decodes and instantiates a binary module inside the
// environment's namespace. On failure the environment is unchanged: the
// result is ResultError, a diagnostic lands in sink, and no module handle is
// allocated.
func (s *Store) ReadBinary(ctx context.Context, env EnvironmentHandle, data []byte, opts ReadBinaryOptions, sink *errors.Sink) (wasminterp.Result, ModuleHandle) {
	e, ok := s.envs.get(uint32(env))
	if !ok {
		sinkError(sink, errors.InvalidHandle("environment"))
		return wasminterp.ResultError, 0
	}

	mod, err := e.engine.Load(ctx, data, opts.Name)
	if err != nil {
		sinkError(sink, err)
		return wasminterp.ResultError, 0
	}

	entry := &moduleEntry{env: env, mod: mod}
	if opts.ReadDebugNames {
		// A malformed name section never fails the load.
		if names, nerr := wasm.DecodeNames(data); nerr == nil {
			entry.names = names
			entry.hasNames = true
		}
	}

	h := ModuleHandle(s.mods.add(entry))
	e.addModule(h)
	Logger().Debug("module loaded",
		zap.Uint32("env", uint32(env)),
		zap.Uint32("module", uint32(h)),
		zap.String("name", opts.Name),
		zap.Int("bytes", len(data)))
	return wasminterp.ResultOk, h
}

// RunExport invokes an exported function and always returns a live result
// handle: Ok with the ordered return values, or Error carrying a message
// for traps, unknown exports, signature mismatches, and handle misuse.
// Export lookup is exact, byte for byte.
func (s *Store) RunExport(ctx context.Context, exec ExecutorHandle, mod ModuleHandle, name string, args []wasminterp.TypedValue) ExecResultHandle {
	ex, ok := s.execs.get(uint32(exec))
	if !ok {
		return s.errorResult(errors.InvalidHandle("executor").Error())
	}
	me, ok := s.mods.get(uint32(mod))
	if !ok {
		return s.errorResult(errors.InvalidHandle("module").Error())
	}
	if ex.env != me.env {
		return s.errorResult("executor and module belong to different environments")
	}
	if !ex.begin() {
		return s.errorResult("executor is already running a call")
	}

	values, err := me.mod.Invoke(ctx, name, args)
	if err != nil {
		ex.finish(execTrapped)
		return s.errorResult(me.describe(err))
	}

	ex.finish(execCompleted)
	return ExecResultHandle(s.results.add(&execResult{
		status: wasminterp.ResultOk,
		values: values,
	}))
}

// GetGlobal reads an exported global and returns it as a one-value result.
// Globals execute nothing, so no executor is involved.
func (s *Store) GetGlobal(mod ModuleHandle, name string) ExecResultHandle {
	me, ok := s.mods.get(uint32(mod))
	if !ok {
		return s.errorResult(errors.InvalidHandle("module").Error())
	}

	v, err := me.mod.Global(name)
	if err != nil {
		return s.errorResult(me.describe(err))
	}
	return ExecResultHandle(s.results.add(&execResult{
		status: wasminterp.ResultOk,
		values: []wasminterp.TypedValue{v},
	}))
}

// ResultStatus reports Ok iff the call completed without trap and with a
// matching signature. An invalid handle reads as Error.
func (s *Store) ResultStatus(res ExecResultHandle) wasminterp.Result {
	r, ok := s.results.get(uint32(res))
	if !ok {
		return wasminterp.ResultError
	}
	return r.status
}

// ResultCount returns the number of return values, 0 for an invalid handle.
func (s *Store) ResultCount(res ExecResultHandle) int {
	r, ok := s.results.get(uint32(res))
	if !ok {
		return 0
	}
	return len(r.values)
}

// ResultValue returns the index-th return value in declaration order.
func (s *Store) ResultValue(res ExecResultHandle, index int) (wasminterp.TypedValue, error) {
	r, ok := s.results.get(uint32(res))
	if !ok {
		return wasminterp.TypedValue{}, errors.InvalidHandle("exec result")
	}
	if index < 0 || index >= len(r.values) {
		return wasminterp.TypedValue{}, errors.OutOfBounds(errors.PhaseRuntime, index, len(r.values))
	}
	return r.values[index], nil
}

// ResultMessage returns the trap or denial text of a non-Ok result. It is
// empty for Ok results and invalid handles.
func (s *Store) ResultMessage(res ExecResultHandle) string {
	r, ok := s.results.get(uint32(res))
	if !ok {
		return ""
	}
	return r.msg
}

// Exports lists the module's function exports sorted by name.
func (s *Store) Exports(mod ModuleHandle) ([]engine.ExportedFunction, error) {
	me, ok := s.mods.get(uint32(mod))
	if !ok {
		return nil, errors.InvalidHandle("module")
	}
	return me.mod.ExportedFunctions(), nil
}

// DebugNames returns the module's decoded "name" section when ReadBinary
// was asked to retain it.
func (s *Store) DebugNames(mod ModuleHandle) (wasm.Names, bool) {
	me, ok := s.mods.get(uint32(mod))
	if !ok || !me.hasNames {
		return wasm.Names{}, false
	}
	return me.names, true
}

// Close destroys every environment still alive. Teardown convenience;
// fine-grained lifetimes go through DestroyEnvironment.
func (s *Store) Close(ctx context.Context) error {
	var handles []EnvironmentHandle
	s.envs.each(func(h uint32, _ *environment) bool {
		handles = append(handles, EnvironmentHandle(h))
		return true
	})

	var firstErr error
	for _, h := range handles {
		if err := s.DestroyEnvironment(ctx, h); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Store) errorResult(msg string) ExecResultHandle {
	return ExecResultHandle(s.results.add(&execResult{
		status: wasminterp.ResultError,
		msg:    msg,
	}))
}

func sinkError(sink *errors.Sink, err error) {
	if sink != nil {
		sink.AppendError(err)
	}
}
