// rgss-player runs a game directory: it opens the window, mounts the game
// filesystem and runs the game scripts on their own goroutine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	engine "github.com/icyseptember2237/rgss-engine"
	"github.com/icyseptember2237/rgss-engine/config"
	"github.com/icyseptember2237/rgss-engine/eventthread"
	"github.com/icyseptember2237/rgss-engine/filesystem"
	"github.com/icyseptember2237/rgss-engine/glstate"
	"github.com/icyseptember2237/rgss-engine/loader"
	"github.com/icyseptember2237/rgss-engine/shared"
	"github.com/icyseptember2237/rgss-engine/texpool"
)

func main() {
	gameDir := flag.String("game", ".", "Game directory containing rgss.toml")
	language := flag.String("lang", "", "Script language, overrides binding.language (lua, js, go)")
	script := flag.String("script", "", "Run a single script instead of the game scripts")
	verbose := flag.Int("v", -1, "Log verbosity, overrides log.verbosity")
	flag.Parse()

	if err := run(*gameDir, *language, *script, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(gameDir, language, script string, verbose int) error {
	conf, err := config.Load(gameDir)
	if err != nil {
		return err
	}
	if language != "" {
		conf.Binding.Language = language
	}
	if script != "" {
		conf.Binding.CustomScript = script
	}
	if verbose >= 0 {
		conf.Log.Verbosity = verbose
	}
	var logPath *string
	if conf.Log.Path != "" {
		logPath = &conf.Log.Path
	}
	commonlog.Configure(conf.Log.Verbosity, logPath)

	e, err := engine.NewEngine(conf.Binding.Language)
	if err != nil {
		return err
	}

	fs, err := filesystem.New(conf.FileSystem.Paths...)
	if err != nil {
		return err
	}
	defer fs.Close()

	rt := shared.NewRuntimeData()
	title := conf.Game.Title
	if title == "" {
		title = "rgss-player"
	}
	win, err := eventthread.New(eventthread.Config{
		Title:  title,
		Width:  conf.Window.Width,
		Height: conf.Window.Height,
		VSync:  conf.Window.VSync,
	}, rt)
	if err != nil {
		return fmt.Errorf("cannot open window: %w", err)
	}
	defer win.Close()

	drv := glstate.GLDriver{}
	gs := glstate.New(drv)
	gs.SetViewport(int32(conf.Window.Width), int32(conf.Window.Height))
	pool := texpool.New(texpool.GLAllocator{}, gs.Caps().MaxTexSize, texpool.DefaultMaxPooled)
	defer pool.Close()

	l := loader.New(e, engine.Env{
		MessageBox:  win,
		FileSystem:  fs,
		GlobalConst: conf.Binding.GlobalConst,
	}, rt, pool, loader.Options{
		CustomScript: conf.Binding.CustomScript,
		BytecodeFile: conf.Binding.BytecodeFile,
		Scripts:      conf.Game.Scripts,
	})
	win.OnTerminate(l.Terminate)

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	win.Run(drv.Clear)

	err = <-done
	for _, m := range win.Take() {
		fmt.Fprintf(os.Stderr, "[%s] %s\n", m.Severity, m.Text)
	}
	if err == nil || errors.Is(err, engine.ErrCancelled) {
		return nil
	}
	return err
}
