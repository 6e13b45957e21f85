package engine

import (
	"context"
	"io"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("rgss.engine")

// Engine is one interpreter state. All methods except those documented
// otherwise must be called from the goroutine that called New.
type Engine interface {
	// New opens the state. Cancelling ctx aborts running script code at
	// the next safe point; the aborted call returns an error wrapping
	// ErrCancelled.
	New(ctx context.Context)

	IsReady() bool
	SetReady()

	// ParseString compiles and runs source, tagging faults with unit and
	// line numbers starting at line.
	ParseString(source string, unit string, line int) error
	ParseReader(r io.Reader, unit string) error
	// ParseImage runs the entry unit of a precompiled image once.
	ParseImage(img *Image) error

	RegisterObject(objectName string, objectPtr interface{})
	RegisterFunction(goFuncName string, goFuncPtr interface{})
	RegisterModule(moduleName string, moduleFuncPtr map[string]interface{})

	IsFunction(scriptFuncName string) bool
	Call(scriptFuncName string, retNum int, args ...interface{}) ([]interface{}, error)

	Close()
}

// Severity of a message box.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "info"
}

// MessageBox shows text to the player. Calls are fire-and-forget.
type MessageBox interface {
	ShowMessageBox(text string, severity Severity)
}

// FileSystem is the game's virtual filesystem.
type FileSystem interface {
	Exists(path string) bool
	OpenRead(path string) (io.ReadCloser, error)
}
