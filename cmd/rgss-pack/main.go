// rgss-pack builds a script bundle or a precompiled image from a directory
// of scripts, or unpacks a bundle back into one.
package main

import (
	"flag"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strings"

	engine "github.com/icyseptember2237/rgss-engine"
	"github.com/icyseptember2237/rgss-engine/loader"
)

func main() {
	dir := flag.String("dir", "Scripts", "Directory of script files")
	output := flag.String("o", "Data/Scripts.rxdata", "Output file")
	image := flag.Bool("image", false, "Write a precompiled image instead of a bundle")
	lang := flag.String("lang", engine.TypeEngineLua, "Image language")
	entry := flag.String("entry", "Main", "Image entry unit")
	unpack := flag.String("x", "", "Unpack this bundle into -dir instead of packing")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	var err error
	switch {
	case *unpack != "":
		err = unpackBundle(*unpack, *dir, *verbose)
	case *image:
		err = packImage(*dir, *output, *lang, *entry, *verbose)
	default:
		err = packBundle(*dir, *output, *verbose)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// readScripts returns the files of dir sorted by name. A leading number
// and underscore ("010_Vocab.lua") orders scripts and is not part of the
// name.
func readScripts(dir string) ([]loader.ScriptEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var scripts []loader.ScriptEntry
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		src, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, loader.ScriptEntry{
			Checksum: int64(crc32.ChecksumIEEE(src) >> 2),
			Name:     scriptName(e.Name()),
			Payload:  src,
		})
	}
	if len(scripts) == 0 {
		return nil, fmt.Errorf("no scripts found in %s", dir)
	}
	return scripts, nil
}

func scriptName(file string) string {
	name := strings.TrimSuffix(file, filepath.Ext(file))
	if i := strings.IndexByte(name, '_'); i > 0 && strings.Trim(name[:i], "0123456789") == "" {
		name = name[i+1:]
	}
	return name
}

func create(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.Create(path)
}

func packBundle(dir, output string, verbose bool) error {
	scripts, err := readScripts(dir)
	if err != nil {
		return err
	}
	f, err := create(output)
	if err != nil {
		return err
	}
	if err := loader.WriteBundle(f, scripts); err != nil {
		f.Close()
		return err
	}
	if verbose {
		fmt.Printf("Packed %d scripts into %s\n", len(scripts), output)
	}
	return f.Close()
}

func packImage(dir, output, lang, entry string, verbose bool) error {
	scripts, err := readScripts(dir)
	if err != nil {
		return err
	}
	img := &engine.Image{Language: lang, Entry: -1}
	for i, s := range scripts {
		if s.Name == entry {
			img.Entry = i
		}
		img.Units = append(img.Units, engine.Unit{Name: s.Name, Source: string(s.Payload)})
	}
	if img.Entry < 0 {
		return fmt.Errorf("entry unit %q not found in %s", entry, dir)
	}

	f, err := create(output)
	if err != nil {
		return err
	}
	if err := engine.WriteImage(f, img); err != nil {
		f.Close()
		return err
	}
	if verbose {
		fmt.Printf("Wrote %s image with %d units to %s\n", lang, len(img.Units), output)
	}
	return f.Close()
}

func unpackBundle(path, dir string, verbose bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	b, err := loader.OpenBundle(f)
	f.Close()
	if err != nil {
		return err
	}
	defer b.Close()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	width := len(fmt.Sprint(b.Len()))
	for i := 0; i < b.Len(); i++ {
		e, err := b.Entry(i)
		if err != nil {
			return err
		}
		text, err := loader.Inflate(e.Payload)
		if err != nil {
			return fmt.Errorf("script %d (%s): %w", i, e.Name, err)
		}
		name := fmt.Sprintf("%0*d_%s.rb", width, i, safeName(e.Name))
		if err := os.WriteFile(filepath.Join(dir, name), text, 0644); err != nil {
			return err
		}
		if verbose {
			fmt.Println(name)
		}
	}
	return nil
}

func safeName(name string) string {
	if name == "" {
		return "untitled"
	}
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(`/\:*?"<>|`, r) {
			return '_'
		}
		return r
	}, name)
}
