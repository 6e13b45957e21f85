// Package eventthread owns the game window and its event loop. Apart from
// the message box, everything here must run on the main goroutine.
package eventthread

import (
	"runtime"

	"github.com/go-gl/gl/v2.1/gl"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/icyseptember2237/rgss-engine/shared"
)

type Config struct {
	Title  string
	Width  int
	Height int
	VSync  bool
}

// EventThread is the window, its GL context and the loop pumping events.
type EventThread struct {
	*MessageBox

	win         *glfw.Window
	rt          *shared.RuntimeData
	onTerminate func()
}

// New opens the window and makes its fixed-function GL context current.
func New(cfg Config, rt *shared.RuntimeData) (*EventThread, error) {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		return nil, err
	}

	glfw.WindowHint(glfw.ContextVersionMajor, 2)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.Resizable, glfw.False)

	win, err := glfw.CreateWindow(cfg.Width, cfg.Height, cfg.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, err
	}
	win.MakeContextCurrent()
	if cfg.VSync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}

	if err := gl.Init(); err != nil {
		win.Destroy()
		glfw.Terminate()
		return nil, err
	}
	log.Infof("GL: %s", gl.GoStr(gl.GetString(gl.VERSION)))

	t := &EventThread{MessageBox: &MessageBox{}, win: win, rt: rt}
	win.SetCloseCallback(func(w *glfw.Window) {
		// The window stays up until the script goroutine acknowledges.
		w.SetShouldClose(false)
		t.requestTerminate()
	})
	return t, nil
}

// OnTerminate sets the function called once when the player closes the
// window.
func (t *EventThread) OnTerminate(f func()) {
	t.onTerminate = f
}

func (t *EventThread) requestTerminate() {
	if !t.rt.RqTerm.CompareAndSwap(false, true) {
		return
	}
	log.Info("termination requested")
	if t.onTerminate != nil {
		t.onTerminate()
	}
}

// Run pumps events and calls frame once per iteration until the script
// goroutine acknowledges termination.
func (t *EventThread) Run(frame func()) {
	for !t.rt.RqTermAck.Load() {
		glfw.PollEvents()
		if frame != nil {
			frame()
		}
		t.win.SwapBuffers()
	}
}

// Close destroys the window.
func (t *EventThread) Close() {
	t.win.Destroy()
	glfw.Terminate()
}
