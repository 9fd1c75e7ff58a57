// Package manifest reads a project's story.toml and implements Use path
// resolution: a dotted path
// like "models.User" is normalized to a forward-slash file path and
// looked up first relative to the entry file's directory, then
// relative to each ancestor directory's "packages/" folder, mirroring
// Node-style nearest-ancestor package resolution. The process working
// directory is not searched, and resolution neither reads nor requires a
// story.toml.
package manifest

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/storylang/storylang/internal/ast"
	"github.com/storylang/storylang/internal/lexer"
	"github.com/storylang/storylang/internal/parser"
	"github.com/storylang/storylang/internal/runtime"
)

// Manifest is the decoded [package]/[dependencies] table of a
// story.toml file.
type Manifest struct {
	Package struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"package"`
	Dependencies map[string]string `toml:"dependencies"`
}

// Load decodes the story.toml at path.
func Load(path string) (*Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, runtime.NewError(runtime.KindSystem, "ManifestUnreadable", err.Error())
	}
	return &m, nil
}

// Resolver resolves dotted Use paths to parsed Programs, searching the
// entry file's directory and then its ancestors' "packages/"
// subdirectories, caching parsed files by their resolved absolute path.
// It does not look for or load a manifest.
type Resolver struct {
	root  string // directory containing the entry file
	cache map[string]*ast.Program
}

// NewResolver creates a Resolver rooted at the directory containing
// entryFile (the file passed to `storylang run`).
func NewResolver(entryFile string) *Resolver {
	return &Resolver{
		root:  filepath.Dir(entryFile),
		cache: make(map[string]*ast.Program),
	}
}

// Resolve implements interp.Resolver: it turns a dotted path such as
// ["models","User"] into "models/User.story" (always forward-slash,
// regardless of host OS Open Question on path portability)
// and searches, in order: the root directory, then each ancestor's
// packages/ directory, stopping at the first existing file.
func (r *Resolver) Resolve(path []string) (*ast.Program, error) {
	rel := strings.Join(path, "/") + ".story"

	for _, dir := range r.searchDirs() {
		candidate := filepath.Join(dir, filepath.FromSlash(rel))
		if prog, ok, err := r.loadFile(candidate); ok {
			return prog, err
		}
	}
	return nil, runtime.NewError(runtime.KindLookup, "ModuleNotFound", "could not resolve Use "+strings.Join(path, "."))
}

// searchDirs yields the root directory first, then each ancestor's
// packages/ subdirectory walking up to the filesystem root.
func (r *Resolver) searchDirs() []string {
	dirs := []string{r.root}
	dir := r.root
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dirs = append(dirs, filepath.Join(parent, "packages"))
		dir = parent
	}
	return dirs
}

func (r *Resolver) loadFile(path string) (*ast.Program, bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false, nil
	}
	if prog, ok := r.cache[abs]; ok {
		return prog, true, nil
	}
	src, err := os.ReadFile(abs)
	if err != nil {
		return nil, false, nil
	}
	p := parser.New(lexer.New(string(src)))
	prog := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		return nil, true, runtime.NewError(runtime.KindValidation, "ParseError", errs[0].Error())
	}
	r.cache[abs] = prog
	return prog, true, nil
}
