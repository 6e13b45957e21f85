package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"regexp"
	"strconv"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"github.com/yuin/gluamapper"
)

const (
	TypeEngineGo = "go"

	// goSymbolsPath is the import path registered functions live under:
	// scripts `import "gos"` and call gos.LoadData(...).
	goSymbolsPath = "gos/gos"
)

// goLocation matches yaegi's "file:line:col: message" errors.
var goLocation = regexp.MustCompile(`(?s)^(?:(.*?):)?(\d+):\d+: (.*)$`)

// goPanicFrame matches the "line:col: panic" lines yaegi writes to stderr
// for each frame a panic unwinds, innermost first.
var goPanicFrame = regexp.MustCompile(`(?m)^(?:[^:\n]*:)?(\d+):\d+: panic\r?$`)

// traceBuffer is the interpreter's stderr.
type traceBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *traceBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *traceBuffer) take() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.buf.String()
	b.buf.Reset()
	return s
}

type GoEngine struct {
	i       *interp.Interpreter
	ctx     context.Context
	trace   *traceBuffer
	symbols map[string]reflect.Value
	fn      map[string]reflect.Value
	ready   bool
}

func (e *GoEngine) New(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	e.ctx = ctx
	e.trace = &traceBuffer{}
	e.i = interp.New(interp.Options{Stderr: e.trace})
	e.symbols = make(map[string]reflect.Value)
	e.fn = make(map[string]reflect.Value)
	err := e.i.Use(stdlib.Symbols)
	if err != nil {
		panic(err)
	}
	e.symbols["TimeOp"] = reflect.ValueOf(timeOp)
	e.ready = false
}

func (e *GoEngine) IsReady() bool {
	return e.ready
}

func (e *GoEngine) SetReady() {
	symbols := map[string]map[string]reflect.Value{
		goSymbolsPath: e.symbols,
	}
	if err := e.i.Use(symbols); err != nil {
		panic(err)
	}
	e.ready = true
}

func (e *GoEngine) ParseString(source, unit string, line int) error {
	if e.ctx.Err() != nil {
		return cancelled(e.ctx.Err())
	}
	e.trace.take()
	_, err := e.i.EvalWithContext(e.ctx, offsetSource(source, line))
	return e.fault(unit, line, err)
}

func (e *GoEngine) ParseReader(r io.Reader, unit string) error {
	src, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return e.ParseString(string(src), unit, 1)
}

func (e *GoEngine) ParseImage(img *Image) error {
	return ErrImageUnsupported
}

// fault converts an interpreter error. A runtime panic takes the line of
// the innermost frame yaegi traced, no earlier than the unit's first line.
func (e *GoEngine) fault(unit string, line int, err error) error {
	trace := e.trace.take()
	if err == nil {
		return nil
	}
	if e.ctx.Err() != nil {
		return cancelled(err)
	}
	f := &Fault{Class: "Error", File: unit, Message: err.Error(), Err: err}
	var p interp.Panic
	if errors.As(err, &p) {
		f.Class = "RuntimeError"
		if m := goPanicFrame.FindStringSubmatch(trace); m != nil {
			f.Line, _ = strconv.Atoi(m[1])
		}
		f.Line = max(f.Line, line)
		return f
	}
	if m := goLocation.FindStringSubmatch(err.Error()); m != nil {
		f.Line, _ = strconv.Atoi(m[2])
		f.Message = m[3]
	}
	return f
}

// exportName makes a registered name visible to interpreted Go code.
func exportName(name string) string {
	return gluamapper.ToUpperCamelCase(name)
}

func (e *GoEngine) RegisterObject(objectName string, objectPtr interface{}) {
	e.symbols[exportName(objectName)] = reflect.ValueOf(objectPtr)
}

func (e *GoEngine) RegisterFunction(goFuncName string, goFuncPtr interface{}) {
	e.symbols[exportName(goFuncName)] = reflect.ValueOf(goFuncPtr)
}

func (e *GoEngine) RegisterModule(moduleName string, moduleFuncPtr map[string]interface{}) {
	modFuncSymbols := make(map[string]reflect.Value)
	for k, v := range moduleFuncPtr {
		modFuncSymbols[exportName(k)] = reflect.ValueOf(v)
	}
	symbols := map[string]map[string]reflect.Value{
		moduleName + "/" + moduleName: modFuncSymbols,
	}
	if err := e.i.Use(symbols); err != nil {
		panic(err)
	}
}

func (e *GoEngine) IsFunction(scriptFuncName string) bool {
	if _, ok := e.fn[scriptFuncName]; ok {
		return true
	}
	v, err := e.i.Eval(scriptFuncName)
	return err == nil && v.Kind() == reflect.Func
}

func (e *GoEngine) Call(scriptFuncName string, retNum int, args ...interface{}) (rets []interface{}, err error) {
	e.trace.take()
	f, ok := e.fn[scriptFuncName]
	if !ok {
		f, err = e.i.EvalWithContext(e.ctx, scriptFuncName)
		if err != nil {
			return nil, e.fault(scriptFuncName, 0, err)
		}
		e.fn[scriptFuncName] = f
	}
	defer func() {
		if r := recover(); r != nil {
			rets, err = nil, e.fault(scriptFuncName, 0, interp.Panic{Value: r})
		}
	}()
	return callGo(f, args)
}

func (e *GoEngine) Close() {
	e.fn = nil
}
