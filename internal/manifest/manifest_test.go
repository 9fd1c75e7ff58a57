package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "story.toml")
	write(t, path, `[package]
name = "demo"
version = "0.1.0"

[dependencies]
utils = "../utils"
`)
	m, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "demo", m.Package.Name)
	require.Equal(t, "0.1.0", m.Package.Version)
	require.Equal(t, "../utils", m.Dependencies["utils"])
}

func TestLoadMissingManifestErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "story.toml"))
	require.Error(t, err)
}

func TestResolveDottedPathAgainstEntryDirectory(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "models", "User.story"), `Concept: User
    Name
`)
	r := NewResolver(filepath.Join(dir, "main.story"))
	prog, err := r.Resolve([]string{"models", "User"})
	require.NoError(t, err)
	require.Len(t, prog.Concepts, 1)
	require.Equal(t, "User", prog.Concepts[0].Name)
}

func TestResolveFallsBackToPackagesDirectory(t *testing.T) {
	root := t.TempDir()
	project := filepath.Join(root, "app")
	write(t, filepath.Join(root, "packages", "utils", "Text.story"), `Concept: TextTools
    Dummy
`)
	write(t, filepath.Join(project, "main.story"), "Story:\n    Print 1\n")

	r := NewResolver(filepath.Join(project, "main.story"))
	prog, err := r.Resolve([]string{"utils", "Text"})
	require.NoError(t, err)
	require.Equal(t, "TextTools", prog.Concepts[0].Name)
}

func TestResolveUnknownModuleErrors(t *testing.T) {
	r := NewResolver(filepath.Join(t.TempDir(), "main.story"))
	_, err := r.Resolve([]string{"no", "such"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no.such")
}

func TestResolveCachesParsedModules(t *testing.T) {
	dir := t.TempDir()
	modPath := filepath.Join(dir, "mod.story")
	write(t, modPath, `Concept: A
    F
`)
	r := NewResolver(filepath.Join(dir, "main.story"))
	first, err := r.Resolve([]string{"mod"})
	require.NoError(t, err)

	// A rewrite after the first resolve is not observed: the parsed
	// program is cached by absolute path.
	write(t, modPath, `Concept: B
    F
`)
	second, err := r.Resolve([]string{"mod"})
	require.NoError(t, err)
	require.Same(t, first, second)
}

func TestResolveParseErrorSurfaces(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "bad.story"), "Concept\n")
	r := NewResolver(filepath.Join(dir, "main.story"))
	_, err := r.Resolve([]string{"bad"})
	require.Error(t, err)
}
