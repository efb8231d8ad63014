package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"golang.org/x/term"

	wasminterp "github.com/wippyai/wasm-interp"
	"github.com/wippyai/wasm-interp/engine"
	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/interp"
	"github.com/wippyai/wasm-interp/resolve"
	"github.com/wippyai/wasm-interp/wasm"
	"github.com/wippyai/wasm-interp/wast"
)

func main() {
	var (
		file        = flag.String("wasm", "", "Path to a .wasm, .wat or .wast file")
		funcName    = flag.String("func", "", "Function to call (optional)")
		argList     = flag.String("args", "", "Call arguments (comma-separated)")
		featureSet  = flag.String("features", "default", "Feature set: mvp, default, or all")
		memoryPages = flag.Uint("memory-pages", 0, "Memory limit in 64KiB pages (0 = engine default)")
		list        = flag.Bool("list", false, "List exported functions and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		verbose     = flag.Bool("v", false, "Verbose engine logging")
	)
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Usage: wasm-interp -wasm <file> [-func name] [-args v1,v2,...]")
		fmt.Fprintln(os.Stderr, "       wasm-interp -wasm <file> -list")
		fmt.Fprintln(os.Stderr, "       wasm-interp -wasm <file> -i  (interactive mode)")
		fmt.Fprintln(os.Stderr, "       wasm-interp -wasm <file.wast>  (run a test script)")
		os.Exit(1)
	}

	if *verbose {
		logger, err := zap.NewDevelopment()
		if err == nil {
			engine.SetLogger(logger)
			interp.SetLogger(logger)
			defer logger.Sync()
		}
	}

	cfg, err := environmentConfig(*featureSet, uint32(*memoryPages))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch {
	case strings.HasSuffix(*file, ".wast"):
		err = runScript(*file, cfg)
	case *interactive:
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		err = runInteractive(*file, cfg)
	default:
		err = run(*file, cfg, *funcName, *argList, *list)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func environmentConfig(featureSet string, pages uint32) (*interp.EnvironmentConfig, error) {
	cfg := &interp.EnvironmentConfig{MemoryLimitPages: pages}
	switch featureSet {
	case "mvp":
		cfg.Features = wasminterp.Features{}
	case "default", "":
		cfg.Features = wasminterp.DefaultFeatures()
	case "all":
		cfg.Features = wasminterp.EnableAll()
	default:
		return nil, fmt.Errorf("unknown feature set %q (want mvp, default, or all)", featureSet)
	}
	return cfg, nil
}

func run(path string, cfg *interp.EnvironmentConfig, funcName, argList string, listOnly bool) error {
	ctx := context.Background()

	store := interp.NewStore()
	defer store.Close(ctx)
	env := store.CreateEnvironment(ctx, cfg)

	mod, err := loadFile(ctx, store, env, path)
	if err != nil {
		return err
	}

	exports, err := store.Exports(mod)
	if err != nil {
		return err
	}

	fmt.Printf("Module: %s\n", path)
	if names, ok := store.DebugNames(mod); ok && names.Module != "" {
		fmt.Printf("Name: %s\n", names.Module)
	}
	fmt.Printf("\nExported functions:\n")
	for _, f := range exports {
		fmt.Printf("  %s\n", formatSignature(f))
	}

	if listOnly {
		return nil
	}

	// Without -func fall back to a conventional entry point, then to the
	// sole export.
	if funcName == "" {
		funcName = pickEntryPoint(exports)
		if funcName == "" {
			fmt.Printf("\nNo function specified and no obvious entry point found.\n")
			fmt.Printf("Use -func to specify a function to call.\n")
			return nil
		}
	}

	target, ok := findExport(exports, funcName)
	if !ok {
		return fmt.Errorf("function %q is not exported", funcName)
	}

	args, err := parseArgs(argList, target.Params)
	if err != nil {
		return err
	}

	exec, err := store.CreateExecutor(env)
	if err != nil {
		return err
	}
	defer store.DestroyExecutor(exec)

	fmt.Printf("\nCalling %s(%s)...\n", funcName, argList)
	res := store.RunExport(ctx, exec, mod, funcName, args)
	defer store.DestroyExecResult(res)

	if store.ResultStatus(res) != wasminterp.ResultOk {
		return fmt.Errorf("call %s: %s", funcName, store.ResultMessage(res))
	}

	n := store.ResultCount(res)
	if n == 0 {
		fmt.Println("Result: (none)")
		return nil
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		v, err := store.ResultValue(res, i)
		if err != nil {
			return err
		}
		parts[i] = v.String()
	}
	fmt.Printf("Result: %s\n", strings.Join(parts, ", "))
	return nil
}

// loadFile reads a module in binary or text form, keyed off the wasm magic.
func loadFile(ctx context.Context, store *interp.Store, env interp.EnvironmentHandle, path string) (interp.ModuleHandle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read file: %w", err)
	}

	opts := interp.ReadBinaryOptions{ReadDebugNames: true}
	var sink errors.Sink
	var res wasminterp.Result
	var mod interp.ModuleHandle
	if len(data) >= 4 && bytes.Equal(data[:4], wasm.Header[:4]) {
		res, mod = store.ReadBinary(ctx, env, data, opts, &sink)
	} else {
		res, mod = store.ReadText(ctx, env, string(data), opts, &sink)
	}
	if !res.Ok() {
		return 0, fmt.Errorf("load %s:\n%s", path, sink.String())
	}
	return mod, nil
}

func runScript(path string, cfg *interp.EnvironmentConfig) error {
	ctx := context.Background()

	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	script, err := wast.ParseScript(string(src))
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	var resolveSink errors.Sink
	if res := resolve.Script(script, &resolveSink); !res.Ok() {
		for _, msg := range resolveSink.Messages() {
			fmt.Fprintln(os.Stderr, msg)
		}
		return fmt.Errorf("resolve %s: %d problems", path, resolveSink.Len())
	}

	store := interp.NewStore()
	defer store.Close(ctx)

	runner, err := interp.NewRunner(ctx, store, cfg)
	if err != nil {
		return err
	}
	defer runner.Close(ctx)

	var sink errors.Sink
	sum := runner.Run(ctx, script, &sink)
	for _, msg := range sink.Messages() {
		fmt.Fprintln(os.Stderr, errorStyle.Render(msg))
	}

	passed := resultStyle.Render(fmt.Sprintf("%d passed", sum.Passed))
	failed := fmt.Sprintf("%d failed", sum.Failed)
	if sum.Failed > 0 {
		failed = errorStyle.Render(failed)
	}
	fmt.Printf("%s: %s, %s\n", path, passed, failed)
	if sum.Failed > 0 {
		return fmt.Errorf("%d commands failed", sum.Failed)
	}
	return nil
}

func pickEntryPoint(exports []engine.ExportedFunction) string {
	for _, name := range []string{"_start", "run", "main"} {
		if _, ok := findExport(exports, name); ok {
			return name
		}
	}
	if len(exports) == 1 {
		return exports[0].Name
	}
	return ""
}

func findExport(exports []engine.ExportedFunction, name string) (engine.ExportedFunction, bool) {
	for _, f := range exports {
		if f.Name == name {
			return f, true
		}
	}
	return engine.ExportedFunction{}, false
}

func formatSignature(f engine.ExportedFunction) string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = api.ValueTypeName(p)
	}
	sig := fmt.Sprintf("%s(%s)", f.Name, strings.Join(params, ", "))
	if len(f.Results) > 0 {
		results := make([]string, len(f.Results))
		for i, r := range f.Results {
			results[i] = api.ValueTypeName(r)
		}
		sig += " -> " + strings.Join(results, ", ")
	}
	return sig
}

// parseArgs splits a comma-separated argument list and converts each item
// to the matching parameter's type.
func parseArgs(argList string, params []api.ValueType) ([]wasminterp.TypedValue, error) {
	if argList == "" {
		return nil, nil
	}
	parts := strings.Split(argList, ",")
	if len(parts) != len(params) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(params), len(parts))
	}
	args := make([]wasminterp.TypedValue, len(parts))
	for i, raw := range parts {
		v, err := parseValue(strings.TrimSpace(raw), params[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = v
	}
	return args, nil
}

// parseValue converts one textual argument. Integers accept decimal, hex
// and negative forms; unsigned spellings above the signed range still fit.
func parseValue(s string, t api.ValueType) (wasminterp.TypedValue, error) {
	switch t {
	case api.ValueTypeI32:
		if v, err := strconv.ParseInt(s, 0, 32); err == nil {
			return wasminterp.I32(int32(v)), nil
		}
		v, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return wasminterp.TypedValue{}, fmt.Errorf("invalid i32 %q", s)
		}
		return wasminterp.I32(int32(uint32(v))), nil

	case api.ValueTypeI64:
		if v, err := strconv.ParseInt(s, 0, 64); err == nil {
			return wasminterp.I64(v), nil
		}
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return wasminterp.TypedValue{}, fmt.Errorf("invalid i64 %q", s)
		}
		return wasminterp.I64(int64(v)), nil

	case api.ValueTypeF32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return wasminterp.TypedValue{}, fmt.Errorf("invalid f32 %q", s)
		}
		return wasminterp.F32(float32(v)), nil

	case api.ValueTypeF64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return wasminterp.TypedValue{}, fmt.Errorf("invalid f64 %q", s)
		}
		return wasminterp.F64(v), nil
	}
	return wasminterp.TypedValue{}, fmt.Errorf("parameter type %s is not callable from the command line", api.ValueTypeName(t))
}
