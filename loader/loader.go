// Package loader selects the game's script source and runs it on an
// engine: a plain script, a precompiled image, or a packed bundle of
// zlib-compressed scripts.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/tliron/commonlog"

	engine "github.com/icyseptember2237/rgss-engine"
	"github.com/icyseptember2237/rgss-engine/shared"
)

var log = commonlog.GetLogger("rgss.loader")

// maxMessageSize bounds the text handed to the message box.
const maxMessageSize = 512

// Options are the three script sources, checked in field order. The first
// non-empty one is used.
type Options struct {
	// CustomScript is a host path to a single plain script.
	CustomScript string
	// BytecodeFile is a host path to a precompiled image.
	BytecodeFile string
	// Scripts is the packed bundle, a path inside the game filesystem.
	Scripts string
}

// TexturePool is the part of the texture pool the loader shuts down.
type TexturePool interface {
	Disable()
}

// Loader runs game scripts once. Run must be called at most once;
// Terminate may be called from any goroutine at any time.
type Loader struct {
	engine  engine.Engine
	env     engine.Env
	runtime *shared.RuntimeData
	pool    TexturePool
	opts    Options

	term      context.Context
	terminate context.CancelFunc
}

// New returns a loader for e. e must not have been opened; Run opens it and
// closes it when done.
func New(e engine.Engine, env engine.Env, rt *shared.RuntimeData, pool TexturePool, opts Options) *Loader {
	term, terminate := context.WithCancel(context.Background())
	return &Loader{
		engine:    e,
		env:       env,
		runtime:   rt,
		pool:      pool,
		opts:      opts,
		term:      term,
		terminate: terminate,
	}
}

// Terminate aborts script execution at the next safe point. The run ends
// with an error wrapping engine.ErrCancelled and nothing is reported.
func (l *Loader) Terminate() {
	l.terminate()
}

// Run executes the selected source to completion or to the first error,
// shows any error other than cancellation in a message box and returns it.
// However it ends, Run acknowledges termination, disables the texture pool
// and closes the engine, in that order.
func (l *Loader) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(l.term)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	l.engine.New(runCtx)
	defer l.epilogue()

	if err := engine.Bind(l.engine, l.env); err != nil {
		l.report(err)
		return err
	}
	l.engine.SetReady()

	err := l.execute(runCtx)
	l.report(err)
	return err
}

func (l *Loader) execute(ctx context.Context) error {
	switch {
	case l.opts.CustomScript != "":
		return l.runCustomScript(l.opts.CustomScript)
	case l.opts.BytecodeFile != "":
		return l.runImage(l.opts.BytecodeFile)
	default:
		return l.runBundle(ctx, l.opts.Scripts)
	}
}

func (l *Loader) runCustomScript(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return newError(KindIO, err, fmt.Sprintf("Unable to open script '%s'", path))
	}
	defer f.Close()

	log.Infof("running script %s", path)
	return l.engine.ParseReader(f, path)
}

func (l *Loader) runImage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return newError(KindIO, err, fmt.Sprintf("Unable to open compiled script '%s'", path))
	}
	defer f.Close()

	img, err := engine.ReadImage(f)
	if err != nil {
		return newError(KindFormat, err, fmt.Sprintf("Unable to read compiled script '%s'", path))
	}
	log.Infof("running compiled script %s (%d units)", path, len(img.Units))
	err = l.engine.ParseImage(img)
	if errors.Is(err, engine.ErrImageUnsupported) || errors.Is(err, engine.ErrInvalidUnit) {
		return newError(KindFormat, err, fmt.Sprintf("Unable to read compiled script '%s'", path))
	}
	return err
}

func (l *Loader) runBundle(ctx context.Context, path string) error {
	if path == "" {
		return newError(KindConfig, nil, "No game scripts specified (missing game.scripts in config?)")
	}
	fs := l.env.FileSystem
	if fs == nil || !fs.Exists(path) {
		return newError(KindIO, nil, fmt.Sprintf("Unable to open '%s'", path))
	}
	r, err := fs.OpenRead(path)
	if err != nil {
		return newError(KindIO, err, fmt.Sprintf("Unable to open '%s'", path))
	}
	bundle, err := OpenBundle(r)
	r.Close()
	if err != nil {
		return newError(KindFormat, err, "Failed to read script data")
	}
	defer bundle.Close()

	buf := newDecodeBuffer()
	for i := 0; i < bundle.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", engine.ErrCancelled, err)
		}
		entry, err := bundle.Entry(i)
		if err != nil {
			return newError(KindFormat, err, fmt.Sprintf("Error decoding script %d: '%s'", i, entry.Name))
		}
		text, err := buf.inflate(entry.Payload)
		if err != nil {
			return newError(KindFormat, err, fmt.Sprintf("Error decoding script %d: '%s'", i, entry.Name))
		}

		log.Debugf("script %d: %s (%d bytes)", i, entry.Name, len(text))
		if err := l.engine.ParseString(string(text), entry.Name, 1); err != nil {
			return err
		}
	}
	return nil
}

// report shows err to the player. Cancellation is the shutdown path and is
// never shown.
func (l *Loader) report(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, engine.ErrCancelled) {
		log.Info("script execution terminated")
		return
	}

	var text string
	var fault *engine.Fault
	var lerr *Error
	switch {
	case errors.As(err, &fault):
		text = fault.Report()
	case errors.As(err, &lerr):
		text = engine.Truncate(lerr.Msg, maxMessageSize)
	default:
		text = engine.Truncate(err.Error(), maxMessageSize)
	}
	log.Errorf("%s", err)
	if l.env.MessageBox != nil {
		l.env.MessageBox.ShowMessageBox(text, engine.SeverityError)
	}
}

func (l *Loader) epilogue() {
	if l.runtime != nil {
		l.runtime.RqTermAck.Store(true)
	}
	if l.pool != nil {
		l.pool.Disable()
	}
	l.engine.Close()
}
