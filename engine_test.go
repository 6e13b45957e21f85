package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/icyseptember2237/rgss-engine/marshal"
)

type recordingBox struct {
	texts      []string
	severities []Severity
}

func (b *recordingBox) ShowMessageBox(text string, severity Severity) {
	b.texts = append(b.texts, text)
	b.severities = append(b.severities, severity)
}

type mapFS struct{ fstest.MapFS }

func (m mapFS) Exists(path string) bool {
	_, ok := m.MapFS[path]
	return ok
}

func (m mapFS) OpenRead(path string) (io.ReadCloser, error) {
	return m.MapFS.Open(path)
}

func newLua(t *testing.T) *LuaEngine {
	t.Helper()
	e := &LuaEngine{}
	e.New(context.Background())
	t.Cleanup(e.Close)
	return e
}

func TestNewEngine(t *testing.T) {
	for _, kind := range Kinds {
		if _, err := NewEngine(kind); err != nil {
			t.Errorf("NewEngine(%q) failed: %v", kind, err)
		}
	}
	if _, err := NewEngine("ruby"); err == nil {
		t.Error("NewEngine(ruby) succeeded, want error")
	}
}

func TestLuaUnitsShareState(t *testing.T) {
	e := newLua(t)
	if err := e.ParseString("function add(a, b) return a + b end", "Defs", 1); err != nil {
		t.Fatalf("first unit failed: %v", err)
	}
	if err := e.ParseString("total = add(2, 3)", "Main", 1); err != nil {
		t.Fatalf("second unit failed: %v", err)
	}
	if got := e.GetVM().GetGlobal("total").String(); got != "5" {
		t.Errorf("total = %s, want 5", got)
	}
}

func TestLuaRuntimeFault(t *testing.T) {
	e := newLua(t)
	err := e.ParseString("local x = 1\nerror('boom')", "Scene_Map", 1)
	var f *Fault
	if !errors.As(err, &f) {
		t.Fatalf("err = %v, want *Fault", err)
	}
	if f.Class != "RuntimeError" || f.File != "Scene_Map" || f.Line != 2 || f.Message != "boom" {
		t.Errorf("fault = %+v", f)
	}
}

func TestLuaRaise(t *testing.T) {
	e := newLua(t)
	err := e.ParseString("\n\nraise('TypeError', 'no implicit conversion')", "Window_Base", 1)
	var f *Fault
	if !errors.As(err, &f) {
		t.Fatalf("err = %v, want *Fault", err)
	}
	if f.Class != "TypeError" || f.Message != "no implicit conversion" {
		t.Errorf("fault = %+v", f)
	}
	if f.File != "Window_Base" || f.Line != 3 {
		t.Errorf("location = %s:%d, want Window_Base:3", f.File, f.Line)
	}
}

func TestLuaLineOffset(t *testing.T) {
	e := newLua(t)
	err := e.ParseString("error('late')", "Unit", 10)
	var f *Fault
	if !errors.As(err, &f) || f.Line != 10 {
		t.Errorf("err = %v, want fault on line 10", err)
	}
}

func TestLuaSyntaxFault(t *testing.T) {
	e := newLua(t)
	err := e.ParseString("x = = 1", "Broken", 1)
	var f *Fault
	if !errors.As(err, &f) {
		t.Fatalf("err = %v, want *Fault", err)
	}
	if f.Class != "SyntaxError" {
		t.Errorf("class = %q, want SyntaxError", f.Class)
	}
	if f.Line != 1 {
		t.Errorf("line = %d, want 1", f.Line)
	}
}

func TestLuaCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := &LuaEngine{}
	e.New(ctx)
	defer e.Close()

	time.AfterFunc(20*time.Millisecond, cancel)
	err := e.ParseString("while true do end", "Loop", 1)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	var f *Fault
	if errors.As(err, &f) {
		t.Errorf("cancellation reported as fault %+v", f)
	}
}

func TestLuaTimeOp(t *testing.T) {
	e := newLua(t)
	if err := e.ParseString("n = 0\nms = time_op(3, 'count', function() n = n + 1 end)", "Timing", 1); err != nil {
		t.Fatalf("time_op failed: %v", err)
	}
	if got := e.GetVM().GetGlobal("n").String(); got != "3" {
		t.Errorf("n = %s, want 3", got)
	}
}

func TestLuaImage(t *testing.T) {
	e := newLua(t)
	img := &Image{
		Language: TypeEngineLua,
		Entry:    1,
		Units: []Unit{
			{Name: "helpers", Source: "return { twice = function(x) return x * 2 end }"},
			{Name: "main", Source: "result = require('helpers').twice(21)"},
		},
	}
	if err := e.ParseImage(img); err != nil {
		t.Fatalf("ParseImage failed: %v", err)
	}
	if got := e.GetVM().GetGlobal("result").String(); got != "42" {
		t.Errorf("result = %s, want 42", got)
	}
}

func TestLuaImageWrongLanguage(t *testing.T) {
	e := newLua(t)
	err := e.ParseImage(&Image{Language: TypeEngineJs, Units: []Unit{{Name: "a"}}})
	if !errors.Is(err, ErrImageUnsupported) {
		t.Errorf("err = %v, want ErrImageUnsupported", err)
	}
}

func TestLuaCall(t *testing.T) {
	e := newLua(t)
	if err := e.ParseString("function greet(name) return 'hello ' .. name end", "Defs", 1); err != nil {
		t.Fatal(err)
	}
	if !e.IsFunction("greet") {
		t.Fatal("greet is not a function")
	}
	rets, err := e.Call("greet", 1, "Aluxes")
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if len(rets) != 1 || rets[0] != "hello Aluxes" {
		t.Errorf("Call = %v, want [hello Aluxes]", rets)
	}
}

func TestBind(t *testing.T) {
	data, err := marshal.Marshal([]interface{}{"Potion", int64(50)})
	if err != nil {
		t.Fatal(err)
	}
	box := &recordingBox{}
	fs := mapFS{fstest.MapFS{"Data/Items.rxdata": {Data: data}}}

	e := newLua(t)
	if err := Bind(e, Env{MessageBox: box, FileSystem: fs, GlobalConst: "RGSS_ENGINE"}); err != nil {
		t.Fatal(err)
	}
	src := `
items = load_data("Data/Items.rxdata")
msgbox(items[1] .. " costs " .. items[2])
detected = RGSS_ENGINE
`
	if err := e.ParseString(src, "Main", 1); err != nil {
		t.Fatalf("script failed: %v", err)
	}
	if len(box.texts) != 1 || box.texts[0] != "Potion costs 50" {
		t.Errorf("message boxes = %q", box.texts)
	}
	if box.severities[0] != SeverityInfo {
		t.Errorf("severity = %v, want info", box.severities[0])
	}
	if got := e.GetVM().GetGlobal("detected").String(); got != "true" {
		t.Errorf("RGSS_ENGINE = %s, want true", got)
	}
}

func TestBindLoadDataMissing(t *testing.T) {
	e := newLua(t)
	if err := Bind(e, Env{FileSystem: mapFS{fstest.MapFS{}}}); err != nil {
		t.Fatal(err)
	}
	err := e.ParseString("load_data('Data/Nope.rxdata')", "Main", 1)
	var f *Fault
	if !errors.As(err, &f) || !strings.Contains(f.Message, "load_data") {
		t.Errorf("err = %v, want load_data fault", err)
	}
}

func TestJsFault(t *testing.T) {
	e := &JsEngine{}
	e.New(context.Background())
	defer e.Close()

	err := e.ParseString("var a = 1;\nthrow new TypeError('boom');", "Main", 1)
	var f *Fault
	if !errors.As(err, &f) {
		t.Fatalf("err = %v, want *Fault", err)
	}
	if f.Class != "TypeError" || f.Message != "boom" {
		t.Errorf("fault = %+v", f)
	}
}

func TestJsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := &JsEngine{}
	e.New(ctx)
	defer e.Close()

	time.AfterFunc(20*time.Millisecond, cancel)
	err := e.ParseString("var x = 0; while (true) { x++; }", "Loop", 1)
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("err = %v, want ErrCancelled", err)
	}
}

func TestJsBind(t *testing.T) {
	box := &recordingBox{}
	e := &JsEngine{}
	e.New(context.Background())
	defer e.Close()
	if err := Bind(e, Env{MessageBox: box}); err != nil {
		t.Fatal(err)
	}
	e.SetReady()

	if err := e.ParseString("msgbox('hi ' + 2);\nrgss.msgbox('from module');", "Main", 1); err != nil {
		t.Fatalf("script failed: %v", err)
	}
	want := []string{"hi 2", "from module"}
	if fmt.Sprint(box.texts) != fmt.Sprint(want) {
		t.Errorf("message boxes = %q, want %q", box.texts, want)
	}
}

func TestJsCall(t *testing.T) {
	e := &JsEngine{}
	e.New(context.Background())
	defer e.Close()

	if err := e.ParseString("function greet(name) { return 'hello ' + name; }", "Defs", 1); err != nil {
		t.Fatal(err)
	}
	if !e.IsFunction("greet") || e.IsFunction("missing") {
		t.Fatal("IsFunction does not tell greet from missing")
	}
	rets, err := e.Call("greet", 1, "Aluxes")
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if len(rets) != 1 || rets[0] != "hello Aluxes" {
		t.Errorf("Call = %v, want [hello Aluxes]", rets)
	}
}

func newGo(t *testing.T, ctx context.Context) *GoEngine {
	t.Helper()
	e := &GoEngine{}
	e.New(ctx)
	t.Cleanup(e.Close)
	return e
}

func TestGoFault(t *testing.T) {
	e := newGo(t, context.Background())
	err := e.ParseString("var y = undefinedThing", "Main", 3)
	var f *Fault
	if !errors.As(err, &f) {
		t.Fatalf("err = %v, want *Fault", err)
	}
	if f.File != "Main" || f.Line != 3 || !strings.Contains(f.Message, "undefined") {
		t.Errorf("fault = %+v", f)
	}
}

func TestGoRuntimePanic(t *testing.T) {
	e := newGo(t, context.Background())
	err := e.ParseString("i := 3\ns := []int{1}\nprintln(s[i])", "Crash", 1)
	var f *Fault
	if !errors.As(err, &f) {
		t.Fatalf("err = %v, want *Fault", err)
	}
	if f.Class != "RuntimeError" || f.File != "Crash" || f.Line < 1 {
		t.Errorf("fault = %+v", f)
	}
	if !strings.Contains(f.Message, "out of range") {
		t.Errorf("message = %q, want index out of range", f.Message)
	}
}

func TestGoCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := newGo(t, ctx)

	time.AfterFunc(20*time.Millisecond, cancel)
	err := e.ParseString("for {\n}", "Loop", 1)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if err := e.ParseString("x := 1\n_ = x", "After", 1); !errors.Is(err, ErrCancelled) {
		t.Errorf("after cancel: err = %v, want ErrCancelled", err)
	}
}

func TestGoBind(t *testing.T) {
	box := &recordingBox{}
	e := newGo(t, context.Background())
	if err := Bind(e, Env{MessageBox: box, GlobalConst: "RGSS_ENGINE"}); err != nil {
		t.Fatal(err)
	}
	e.SetReady()
	if !e.IsReady() {
		t.Fatal("IsReady = false after SetReady")
	}

	units := []string{
		`import "gos"`,
		`gos.Msgbox("hi")`,
		`if gos.RGSS_ENGINE { gos.Msgbox("detected") }`,
		`import "rgss"`,
		`rgss.Msgbox("from module")`,
	}
	for i, src := range units {
		if err := e.ParseString(src, "Main", 1); err != nil {
			t.Fatalf("unit %d (%s) failed: %v", i, src, err)
		}
	}
	want := []string{"hi", "detected", "from module"}
	if fmt.Sprint(box.texts) != fmt.Sprint(want) {
		t.Errorf("message boxes = %q, want %q", box.texts, want)
	}
}

func TestGoCall(t *testing.T) {
	e := newGo(t, context.Background())
	src := "func Greet(name string) string { return \"hello \" + name }"
	if err := e.ParseString(src, "Defs", 1); err != nil {
		t.Fatal(err)
	}
	if !e.IsFunction("Greet") {
		t.Fatal("Greet is not a function")
	}
	rets, err := e.Call("Greet", 1, "Aluxes")
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if len(rets) != 1 || rets[0] != "hello Aluxes" {
		t.Errorf("Call = %v, want [hello Aluxes]", rets)
	}
}

func TestBindAfterReady(t *testing.T) {
	e := newLua(t)
	e.SetReady()
	if err := Bind(e, Env{MessageBox: &recordingBox{}}); !errors.Is(err, ErrReady) {
		t.Errorf("err = %v, want ErrReady", err)
	}
}

func TestLuaKernelModule(t *testing.T) {
	box := &recordingBox{}
	e := newLua(t)
	if err := Bind(e, Env{MessageBox: box}); err != nil {
		t.Fatal(err)
	}
	if err := e.ParseString("local rgss = require('rgss')\nrgss.msgbox('from module')\nrgss.p('x')", "Main", 1); err != nil {
		t.Fatalf("script failed: %v", err)
	}
	want := []string{"from module", `"x"`}
	if fmt.Sprint(box.texts) != fmt.Sprint(want) {
		t.Errorf("message boxes = %q, want %q", box.texts, want)
	}
}

func TestLuaSharedValues(t *testing.T) {
	row := []interface{}{"Potion"}
	var chain interface{} = row
	for i := 0; i < 100; i++ {
		chain = map[string]interface{}{"a": chain, "b": chain}
	}
	e := newLua(t)
	e.RegisterObject("data", map[string]interface{}{"x": row, "y": row, "chain": chain})
	if err := e.ParseString("same = data.x == data.y and data.chain.a == data.chain.b", "Main", 1); err != nil {
		t.Fatal(err)
	}
	if got := e.GetVM().GetGlobal("same").String(); got != "true" {
		t.Errorf("same = %s, want true", got)
	}
}

func TestImageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := &Image{Language: TypeEngineLua, Entry: 0, Units: []Unit{{Name: "main", Source: "x = 1"}}}
	if err := WriteImage(&buf, in); err != nil {
		t.Fatalf("WriteImage failed: %v", err)
	}
	got, err := ReadImage(&buf)
	if err != nil {
		t.Fatalf("ReadImage failed: %v", err)
	}
	if got.Magic != ImageMagic || got.Version != ImageVersion || got.Units[0].Source != "x = 1" {
		t.Errorf("ReadImage = %+v", got)
	}
}

func TestReadImageInvalidEntry(t *testing.T) {
	for _, entry := range []int{-1, 1} {
		var buf bytes.Buffer
		img := &Image{Entry: entry, Units: []Unit{{Name: "main"}}}
		if err := WriteImage(&buf, img); err != nil {
			t.Fatal(err)
		}
		if _, err := ReadImage(&buf); !errors.Is(err, ErrInvalidUnit) {
			t.Errorf("entry %d: err = %v, want ErrInvalidUnit", entry, err)
		}
	}
}

func TestFaultReport(t *testing.T) {
	f := &Fault{Class: "NameError", Message: "undefined local variable", File: "Game_Map", Line: 42}
	want := "Script 'Game_Map' line 42: NameError occurred.\n\nundefined local variable"
	if got := f.Report(); got != want {
		t.Errorf("Report = %q, want %q", got, want)
	}

	long := &Fault{Class: "RuntimeError", Message: strings.Repeat("é", 400), File: "X", Line: 1}
	if got := long.Report(); len(got) >= maxReportSize {
		t.Errorf("len(Report) = %d, want < %d", len(got), maxReportSize)
	}
}

func TestSplitWhere(t *testing.T) {
	tests := []struct {
		in   string
		file string
		line int
		msg  string
	}{
		{"Main:12: attempt to index a nil value", "Main", 12, "attempt to index a nil value"},
		{"Scene_Title:3:", "Scene_Title", 3, ""},
		{"no location here", "", 0, "no location here"},
	}
	for _, tt := range tests {
		file, line, msg := splitWhere(tt.in)
		if file != tt.file || line != tt.line || msg != tt.msg {
			t.Errorf("splitWhere(%q) = %q, %d, %q", tt.in, file, line, msg)
		}
	}
}
