package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/ailncode/gluaxmlpath"
	"github.com/ciaos/gluahttp"
	"github.com/cjoudrey/gluaurl"
	"github.com/yuin/gluamapper"
	"github.com/yuin/gluare"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
	luajson "layeh.com/gopher-json"
	luar "layeh.com/gopher-luar"
)

const (
	TypeEngineLua = "lua"

	luaFaultTypeName = "Fault"
)

type LuaEngine struct {
	vm    *lua.LState
	ctx   context.Context
	ready bool
}

func (e *LuaEngine) New(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	e.ctx = ctx
	e.vm = lua.NewState()
	e.vm.SetContext(ctx)
	luajson.Preload(e.vm)
	e.vm.PreloadModule("url", gluaurl.Loader)
	e.vm.PreloadModule("re", gluare.Loader)
	e.vm.PreloadModule("http", gluahttp.NewHttpModule(&http.Client{
		Timeout: 30 * time.Second,
	}).Loader)
	e.vm.PreloadModule("xmlpath", gluaxmlpath.Loader)

	mt := e.vm.NewTypeMetatable(luaFaultTypeName)
	e.vm.SetField(mt, "__tostring", e.vm.NewFunction(luaFaultString))
	e.vm.SetField(mt, "__index", e.vm.NewFunction(luaFaultIndex))
	e.vm.SetGlobal("raise", e.vm.NewFunction(luaRaise))
	e.vm.SetGlobal("time_op", e.vm.NewFunction(luaTimeOp))
	e.ready = false
}

func (e *LuaEngine) IsReady() bool {
	return e.ready
}

func (e *LuaEngine) SetReady() {
	e.ready = true
}

func (e *LuaEngine) ParseString(source, unit string, line int) error {
	return e.ParseReader(strings.NewReader(offsetSource(source, line)), unit)
}

func (e *LuaEngine) ParseReader(r io.Reader, unit string) error {
	fn, err := e.vm.Load(r, unit)
	if err != nil {
		return e.fault(err)
	}
	return e.run(fn)
}

func (e *LuaEngine) ParseImage(img *Image) error {
	if img.Language != "" && img.Language != TypeEngineLua {
		return fmt.Errorf("%w: image built for %q", ErrImageUnsupported, img.Language)
	}
	if img.Entry < 0 || img.Entry >= len(img.Units) {
		return ErrInvalidUnit
	}
	protos := make([]*lua.FunctionProto, len(img.Units))
	for i, u := range img.Units {
		chunk, err := parse.Parse(strings.NewReader(u.Source), u.Name)
		if err != nil {
			return syntaxFault(u.Name, err)
		}
		if protos[i], err = lua.Compile(chunk, u.Name); err != nil {
			return syntaxFault(u.Name, err)
		}
	}

	preload := e.vm.GetField(e.vm.GetGlobal("package"), "preload")
	for i, proto := range protos {
		if i == img.Entry {
			continue
		}
		e.vm.SetField(preload, img.Units[i].Name, e.vm.NewFunctionFromProto(proto))
	}
	return e.run(e.vm.NewFunctionFromProto(protos[img.Entry]))
}

func (e *LuaEngine) run(fn *lua.LFunction) error {
	top := e.vm.GetTop()
	defer e.vm.SetTop(top)
	e.vm.Push(fn)
	return e.fault(e.vm.PCall(0, lua.MultRet, nil))
}

// fault turns a gopher-lua error into a Fault, or into ErrCancelled when
// the engine's context is done.
func (e *LuaEngine) fault(err error) error {
	if err == nil {
		return nil
	}
	if e.ctx.Err() != nil {
		return cancelled(err)
	}
	var apiErr *lua.ApiError
	if !errors.As(err, &apiErr) || apiErr.Object == nil {
		return &Fault{Class: "RuntimeError", Message: err.Error(), Err: err}
	}
	if ud, ok := apiErr.Object.(*lua.LUserData); ok {
		if f, ok := ud.Value.(*Fault); ok {
			return f
		}
	}
	if apiErr.Type == lua.ApiErrorSyntax {
		return syntaxFault("", err)
	}
	f := &Fault{Class: "RuntimeError", Err: err}
	f.File, f.Line, f.Message = splitWhere(apiErr.Object.String())
	return f
}

func syntaxFault(unit string, err error) *Fault {
	f := &Fault{Class: "SyntaxError", File: unit, Message: err.Error(), Err: err}
	var perr *parse.Error
	if errors.As(err, &perr) {
		f.File, f.Line, f.Message = perr.Pos.Source, perr.Pos.Line, perr.Message
	} else {
		var apiErr *lua.ApiError
		if errors.As(err, &apiErr) && errors.As(apiErr.Cause, &perr) {
			f.File, f.Line, f.Message = perr.Pos.Source, perr.Pos.Line, perr.Message
		}
	}
	return f
}

// raise([class,] message) raises a Fault located at the caller.
func luaRaise(L *lua.LState) int {
	f := &Fault{Class: "RuntimeError", Message: "unhandled exception"}
	switch L.GetTop() {
	case 0:
	case 1:
		f.Message = L.CheckString(1)
	default:
		f.Class = L.CheckString(1)
		f.Message = L.CheckString(2)
	}
	f.File, f.Line, _ = splitWhere(L.Where(1))
	ud := L.NewUserData()
	ud.Value = f
	ud.Metatable = L.GetTypeMetatable(luaFaultTypeName)
	L.Error(ud, 0)
	return 0
}

func checkFault(L *lua.LState) *Fault {
	ud := L.CheckUserData(1)
	if f, ok := ud.Value.(*Fault); ok {
		return f
	}
	L.ArgError(1, "fault expected")
	return nil
}

func luaFaultString(L *lua.LState) int {
	L.Push(lua.LString(checkFault(L).Error()))
	return 1
}

func luaFaultIndex(L *lua.LState) int {
	f := checkFault(L)
	switch L.CheckString(2) {
	case "class":
		L.Push(lua.LString(f.Class))
	case "message":
		L.Push(lua.LString(f.Message))
	case "file":
		L.Push(lua.LString(f.File))
	case "line":
		L.Push(lua.LNumber(f.Line))
	default:
		L.Push(lua.LNil)
	}
	return 1
}

// time_op([iterations,] [name,] fn)
func luaTimeOp(L *lua.LState) int {
	top := L.GetTop()
	fn := L.CheckFunction(top)
	iterations, name := 1, ""
	if top >= 2 {
		iterations = L.CheckInt(1)
	}
	if top >= 3 {
		name = L.CheckString(2)
	}
	ms := timeOp(iterations, name, func() {
		L.Push(fn)
		L.Call(0, 0)
	})
	L.Push(lua.LNumber(ms))
	return 1
}

// refID identifies a Go map or slice, so a value reachable along several
// paths becomes one shared table.
type refID struct {
	p uintptr
	n int
}

func (e *LuaEngine) toLuaValue(src interface{}) lua.LValue {
	return e.toLua(src, make(map[refID]lua.LValue))
}

func (e *LuaEngine) toLua(src interface{}, seen map[refID]lua.LValue) lua.LValue {
	if src == nil {
		return lua.LNil
	}
	srcVal := reflect.ValueOf(src)
	switch srcVal.Kind() {
	case reflect.Map:
		id := refID{srcVal.Pointer(), -1}
		if t, ok := seen[id]; ok {
			return t
		}
		dst := e.vm.NewTable()
		seen[id] = dst
		for _, key := range srcVal.MapKeys() {
			dst.RawSet(luar.New(e.vm, key.Interface()), e.toLua(srcVal.MapIndex(key).Interface(), seen))
		}
		return dst
	case reflect.Slice:
		if b, ok := src.([]byte); ok {
			return lua.LString(b)
		}
		id := refID{srcVal.Pointer(), srcVal.Len()}
		if t, ok := seen[id]; ok && id.n > 0 {
			return t
		}
		dst := e.vm.NewTable()
		seen[id] = dst
		for i := 0; i < srcVal.Len(); i++ {
			dst.Append(e.toLua(srcVal.Index(i).Interface(), seen))
		}
		return dst
	}
	return luar.New(e.vm, src)
}

func (e *LuaEngine) toGoValue(src lua.LValue) interface{} {
	switch v := src.(type) {
	case *lua.LTable:
		maxn := v.MaxN()
		if maxn == 0 { // table
			ret := make(map[string]interface{})
			v.ForEach(func(key, value lua.LValue) {
				keyStr := fmt.Sprint(e.toGoValue(key))
				if keyStr != "" && unicode.IsLower(rune(keyStr[0])) {
					ret[gluamapper.ToUpperCamelCase(keyStr)] = e.toGoValue(value)
				} else {
					ret[keyStr] = e.toGoValue(value)
				}
			})
			return ret
		} else { // array
			ret := make([]interface{}, 0, maxn)
			for i := 1; i <= maxn; i++ {
				ret = append(ret, e.toGoValue(v.RawGetInt(i)))
			}
			return ret
		}
	case *lua.LUserData:
		return v.Value
	default:
		return gluamapper.ToGoValue(src, gluamapper.Option{NameFunc: gluamapper.ToUpperCamelCase})
	}
}

func (e *LuaEngine) RegisterObject(objectName string, objectPtr interface{}) {
	dst := e.toLuaValue(objectPtr)
	e.vm.SetGlobal(objectName, dst)
}

func (e *LuaEngine) wrap(goFuncPtr interface{}) lua.LGFunction {
	goFuncVal := reflect.ValueOf(goFuncPtr)
	if goFuncVal.Kind() != reflect.Func {
		panic("register not invalid function")
	}

	return func(L *lua.LState) int {
		args := make([]interface{}, L.GetTop())
		for i := range args {
			args[i] = e.toGoValue(L.Get(i + 1))
		}

		goRet, err := callGo(goFuncVal, args)
		if err != nil {
			L.RaiseError("%s", err.Error())
		}
		for i := 0; i < len(goRet); i++ {
			L.Push(e.toLuaValue(goRet[i]))
		}
		return len(goRet)
	}
}

func (e *LuaEngine) RegisterFunction(goFuncName string, goFuncPtr interface{}) {
	e.vm.SetGlobal(goFuncName, e.vm.NewFunction(e.wrap(goFuncPtr)))
}

// RegisterModule makes the functions loadable with require(moduleName).
func (e *LuaEngine) RegisterModule(moduleName string, moduleFuncPtr map[string]interface{}) {
	funcs := make(map[string]lua.LGFunction, len(moduleFuncPtr))
	for name, fn := range moduleFuncPtr {
		funcs[name] = e.wrap(fn)
	}
	e.vm.PreloadModule(moduleName, func(L *lua.LState) int {
		L.Push(L.SetFuncs(L.NewTable(), funcs))
		return 1
	})
}

func (e *LuaEngine) IsFunction(scriptFuncName string) bool {
	val := e.vm.GetGlobal(scriptFuncName)
	return val.Type() == lua.LTFunction
}

func (e *LuaEngine) Call(scriptFuncName string, retNum int, args ...interface{}) ([]interface{}, error) {
	luaArgs := make([]lua.LValue, len(args))
	for i := 0; i < len(args); i++ {
		luaArgs[i] = e.toLuaValue(args[i])
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      e.vm.GetGlobal(scriptFuncName),
		NRet:    retNum,
		Protect: true,
		Handler: nil,
	}, luaArgs...); err != nil {
		return nil, e.fault(err)
	}

	rets := make([]interface{}, 0)
	for i := 0; i < retNum; i++ {
		luaRet := e.vm.Get(-1)
		e.vm.Pop(1)

		res := e.toGoValue(luaRet)
		rets = append([]interface{}{res}, rets...)
	}

	return rets, nil
}

func (e *LuaEngine) Close() {
	e.vm.Close()
}

func (e *LuaEngine) GetVM() *lua.LState {
	return e.vm
}
