// Package config handles rgss.toml game configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up in the game directory.
const FileName = "rgss.toml"

// Config represents an rgss.toml game configuration.
type Config struct {
	Game       Game       `toml:"game"`
	Binding    Binding    `toml:"binding"`
	Window     Window     `toml:"window"`
	FileSystem FileSystem `toml:"filesystem"`
	Log        Log        `toml:"log"`

	// Dir is the game directory (set at load time).
	Dir string `toml:"-"`
}

type Game struct {
	Title string `toml:"title"`
	// Scripts is the packed bundle, a path inside the game filesystem.
	Scripts string `toml:"scripts"`
}

// Binding selects the interpreter and the script source. CustomScript
// wins over BytecodeFile, which wins over Game.Scripts.
type Binding struct {
	Language     string `toml:"language"`
	CustomScript string `toml:"custom-script"`
	BytecodeFile string `toml:"bytecode-file"`
	GlobalConst  string `toml:"global-const"`
}

type Window struct {
	Width  int  `toml:"width"`
	Height int  `toml:"height"`
	VSync  bool `toml:"vsync"`
}

// FileSystem lists the directories and zip archives searched for game
// files, in order.
type FileSystem struct {
	Paths []string `toml:"paths"`
}

type Log struct {
	Verbosity int    `toml:"verbosity"`
	Path      string `toml:"path"`
}

// Default returns the configuration used when a game ships without an
// rgss.toml.
func Default() *Config {
	return &Config{
		Game:       Game{Scripts: "Data/Scripts.rxdata"},
		Binding:    Binding{Language: "lua", GlobalConst: "RGSS_ENGINE"},
		Window:     Window{Width: 640, Height: 480, VSync: true},
		FileSystem: FileSystem{Paths: []string{"."}},
		Log:        Log{Verbosity: 1},
	}
}

// Load parses rgss.toml from the given directory. A missing file yields
// the defaults.
func Load(dir string) (*Config, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	c := Default()
	path := filepath.Join(abs, FileName)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	default:
		if _, err := toml.Decode(string(data), c); err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
	}
	c.Dir = abs

	// Defaults for keys present but left empty.
	if c.Binding.Language == "" {
		c.Binding.Language = "lua"
	}
	if c.Window.Width <= 0 {
		c.Window.Width = 640
	}
	if c.Window.Height <= 0 {
		c.Window.Height = 480
	}
	if len(c.FileSystem.Paths) == 0 {
		c.FileSystem.Paths = []string{"."}
	}

	c.Game.Scripts = Slashed(c.Game.Scripts)
	c.Binding.CustomScript = c.resolve(c.Binding.CustomScript)
	c.Binding.BytecodeFile = c.resolve(c.Binding.BytecodeFile)
	c.Log.Path = c.resolve(c.Log.Path)
	for i, p := range c.FileSystem.Paths {
		c.FileSystem.Paths[i] = c.resolve(p)
	}
	return c, nil
}

// resolve makes a host path absolute against the game directory.
func (c *Config) resolve(p string) string {
	if p == "" {
		return ""
	}
	p = filepath.FromSlash(Slashed(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// Slashed converts Windows-style separators to forward slashes.
func Slashed(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}
