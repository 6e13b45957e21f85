package engine

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/icyseptember2237/rgss-engine/marshal"
)

// Env is what the script bindings reach into.
type Env struct {
	MessageBox MessageBox
	FileSystem FileSystem
	// GlobalConst is defined as true in every engine so scripts can
	// detect this runtime.
	GlobalConst string
}

// KernelModule is the module the kernel functions are also published
// under: require("rgss") in Lua, the rgss object in JavaScript and
// import "rgss" in Go.
const KernelModule = "rgss"

// ErrReady is returned by Bind for an engine that has already run
// SetReady. The Go backend publishes its symbols at that point, so later
// registrations would be lost.
var ErrReady = errors.New("engine: bind after SetReady")

// Bind registers the runtime's kernel functions on e, as globals and as
// KernelModule:
//
//	p(value)           show value in an info message box
//	msgbox(text)       show text in an info message box
//	load_data(path)    read a marshalled data file from the game filesystem
//
// time_op is built into each engine since it has to call back into script
// code.
func Bind(e Engine, env Env) error {
	if e.IsReady() {
		return ErrReady
	}
	if env.GlobalConst != "" {
		e.RegisterObject(env.GlobalConst, true)
	}
	kernel := make(map[string]interface{})
	if env.MessageBox != nil {
		box := env.MessageBox
		kernel["p"] = func(v interface{}) {
			box.ShowMessageBox(inspect(v), SeverityInfo)
		}
		kernel["msgbox"] = func(text string) {
			box.ShowMessageBox(text, SeverityInfo)
		}
	}
	if env.FileSystem != nil {
		fs := env.FileSystem
		kernel["load_data"] = func(path string) (interface{}, error) {
			return LoadData(fs, path)
		}
	}
	if len(kernel) == 0 {
		return nil
	}
	for name, fn := range kernel {
		e.RegisterFunction(name, fn)
	}
	e.RegisterModule(KernelModule, kernel)
	return nil
}

// LoadData reads a marshalled file and converts it to plain values.
func LoadData(fs FileSystem, path string) (interface{}, error) {
	f, err := fs.OpenRead(path)
	if err != nil {
		return nil, fmt.Errorf("load_data: %w", err)
	}
	defer f.Close()

	dec := marshal.NewDecoder(f)
	defer dec.Release()
	v, err := dec.Decode()
	if err != nil {
		return nil, fmt.Errorf("load_data %s: %w", path, err)
	}
	return marshal.Plain(v), nil
}

func inspect(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return "nil"
	case string:
		return fmt.Sprintf("%q", v)
	}
	return fmt.Sprint(v)
}

// timeOp runs block iterations times and returns the average duration in
// milliseconds.
func timeOp(iterations int, name string, block func()) float64 {
	if iterations < 1 {
		iterations = 1
	}
	start := time.Now()
	for i := 0; i < iterations; i++ {
		block()
	}
	avg := time.Since(start).Seconds() / float64(iterations)
	ms := avg * 1000
	log.Infof("<%s> [%f ms]", name, ms)
	return ms
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// callGo calls fn with script-supplied args converted to its parameter
// types. A trailing error result is split off and returned.
func callGo(fn reflect.Value, args []interface{}) ([]interface{}, error) {
	ft := fn.Type()
	in := make([]reflect.Value, 0, ft.NumIn())
	for i := 0; i < ft.NumIn(); i++ {
		if ft.IsVariadic() && i == ft.NumIn()-1 {
			et := ft.In(i).Elem()
			for j := i; j < len(args); j++ {
				in = append(in, convertArg(args[j], et))
			}
			break
		}
		var arg interface{}
		if i < len(args) {
			arg = args[i]
		}
		in = append(in, convertArg(arg, ft.In(i)))
	}

	out := fn.Call(in)
	var err error
	if n := len(out); n > 0 && ft.Out(n-1) == errorType {
		if e, ok := out[n-1].Interface().(error); ok {
			err = e
		}
		out = out[:n-1]
	}
	rets := make([]interface{}, len(out))
	for i, v := range out {
		rets[i] = v.Interface()
	}
	return rets, err
}

func convertArg(v interface{}, t reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(t)
	}
	rv := reflect.ValueOf(v)
	switch {
	case rv.Type().AssignableTo(t):
		return rv
	case t.Kind() == reflect.String:
		return reflect.ValueOf(fmt.Sprint(v)).Convert(t)
	case rv.Type().ConvertibleTo(t):
		return rv.Convert(t)
	}
	return reflect.Zero(t)
}
