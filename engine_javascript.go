package engine

import (
	"context"
	"errors"
	"io"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/robertkrimen/otto"
	"github.com/robertkrimen/otto/parser"
)

const (
	TypeEngineJs = "js"
)

var errHalt = errors.New("engine: halt")

// jsLocation matches a stack frame line such as "    at foo (unit:3:7)".
var jsLocation = regexp.MustCompile(`(?m)^\s*at (?:[^\n(]*\()?([^\n()]+):(\d+):\d+\)?\s*$`)

type JsEngine struct {
	vm    *otto.Otto
	ctx   context.Context
	stop  chan struct{}
	ready bool
}

func (e *JsEngine) New(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	e.ctx = ctx
	e.vm = otto.New()
	e.vm.Interrupt = make(chan func(), 1)
	e.stop = make(chan struct{})
	go func(interrupt chan func(), stop <-chan struct{}) {
		select {
		case <-ctx.Done():
			interrupt <- func() { panic(errHalt) }
		case <-stop:
		}
	}(e.vm.Interrupt, e.stop)
	e.vm.Set("time_op", e.timeOp)
	e.ready = false
}

func (e *JsEngine) IsReady() bool {
	return e.ready
}

func (e *JsEngine) SetReady() {
	e.ready = true
}

func (e *JsEngine) ParseString(source, unit string, line int) error {
	return e.ParseReader(strings.NewReader(offsetSource(source, line)), unit)
}

func (e *JsEngine) ParseReader(r io.Reader, unit string) error {
	return e.run(unit, func() error {
		script, err := e.vm.Compile(unit, r)
		if err != nil {
			return err
		}
		_, err = e.vm.Run(script)
		return err
	})
}

func (e *JsEngine) ParseImage(img *Image) error {
	return ErrImageUnsupported
}

// run executes f, converting an interrupt into ErrCancelled and errors into
// Faults.
func (e *JsEngine) run(unit string, f func() error) (err error) {
	defer func() {
		if caught := recover(); caught != nil {
			if caught == errHalt {
				err = cancelled(e.ctx.Err())
				return
			}
			panic(caught)
		}
	}()
	if e.ctx.Err() != nil {
		return cancelled(e.ctx.Err())
	}
	return jsFault(unit, f())
}

func jsFault(unit string, err error) error {
	if err == nil {
		return nil
	}
	f := &Fault{Class: "Error", File: unit, Message: err.Error(), Err: err}

	var syntax parser.ErrorList
	if errors.As(err, &syntax) && len(syntax) > 0 {
		f.Class = "SyntaxError"
		f.Message = syntax[0].Message
		f.Line = syntax[0].Position.Line
		return f
	}

	var trace string
	var oerr *otto.Error
	if errors.As(err, &oerr) {
		trace = oerr.String()
	}
	if i := strings.Index(f.Message, ": "); i > 0 && !strings.ContainsAny(f.Message[:i], " \n") {
		f.Class, f.Message = f.Message[:i], f.Message[i+2:]
	}
	if m := jsLocation.FindStringSubmatch(trace); m != nil {
		f.File = m[1]
		f.Line, _ = strconv.Atoi(m[2])
	}
	return f
}

// time_op([iterations,] [name,] fn)
func (e *JsEngine) timeOp(call otto.FunctionCall) otto.Value {
	args := call.ArgumentList
	if len(args) == 0 || !args[len(args)-1].IsFunction() {
		panic(e.vm.MakeTypeError("time_op: block expected"))
	}
	fn := args[len(args)-1]
	iterations, name := 1, ""
	if len(args) >= 2 {
		n, _ := args[0].ToInteger()
		iterations = int(n)
	}
	if len(args) >= 3 {
		name = args[1].String()
	}
	ms := timeOp(iterations, name, func() {
		if _, err := fn.Call(otto.UndefinedValue()); err != nil {
			panic(e.vm.MakeCustomError("RuntimeError", err.Error()))
		}
	})
	v, _ := e.vm.ToValue(ms)
	return v
}

func (e *JsEngine) RegisterObject(objectName string, objectPtr interface{}) {
	e.vm.Set(objectName, objectPtr)
}

func (e *JsEngine) wrap(goFuncPtr interface{}) func(call otto.FunctionCall) otto.Value {
	goFuncVal := reflect.ValueOf(goFuncPtr)
	if goFuncVal.Kind() != reflect.Func {
		panic("register not invalid function")
	}

	return func(call otto.FunctionCall) otto.Value {
		args := make([]interface{}, len(call.ArgumentList))
		for i, jsParam := range call.ArgumentList {
			val, err := jsParam.Export()
			if err != nil {
				panic(e.vm.MakeTypeError(err.Error()))
			}
			args[i] = val
		}
		goRets, err := callGo(goFuncVal, args)
		if err != nil {
			panic(e.vm.MakeCustomError("RuntimeError", err.Error()))
		}
		if len(goRets) == 0 {
			return otto.NullValue()
		}
		result, _ := e.vm.ToValue(goRets[0])
		return result
	}
}

func (e *JsEngine) RegisterFunction(goFuncName string, goFuncPtr interface{}) {
	e.vm.Set(goFuncName, e.wrap(goFuncPtr))
}

func (e *JsEngine) RegisterModule(moduleName string, moduleFuncPtr map[string]interface{}) {
	mod, err := e.vm.Object(`({})`)
	if err != nil {
		panic(err)
	}
	for goFuncName, goFuncPtr := range moduleFuncPtr {
		mod.Set(goFuncName, e.wrap(goFuncPtr))
	}
	e.vm.Set(moduleName, mod)
}

func (e *JsEngine) IsFunction(scriptFuncName string) bool {
	v, err := e.vm.Get(scriptFuncName)
	return err == nil && v.IsFunction()
}

func (e *JsEngine) Call(scriptFuncName string, retNum int, args ...interface{}) (rets []interface{}, err error) {
	err = e.run(scriptFuncName, func() error {
		value, err := e.vm.Call(scriptFuncName, nil, args...)
		if err != nil {
			return err
		}
		data, err := value.Export()
		if err != nil {
			return err
		}
		rets = []interface{}{data}
		return nil
	})
	return rets, err
}

func (e *JsEngine) Close() {
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
}
