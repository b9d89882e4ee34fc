package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "lunar.toml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[store]
path = "data/snapshots.db"

[log]
verbosity = 2

[vm]
gc-every = 100
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if c.Store.Path != "data/snapshots.db" {
		t.Errorf("store path = %q", c.Store.Path)
	}
	if c.Log.Verbosity != 2 {
		t.Errorf("verbosity = %d", c.Log.Verbosity)
	}
	if c.VM.GCEvery != 100 {
		t.Errorf("gc-every = %d", c.VM.GCEvery)
	}
	want := filepath.Join(c.Dir, "data", "snapshots.db")
	if c.StorePath() != want {
		t.Errorf("StorePath = %q, want %q", c.StorePath(), want)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "")

	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if c.Store.Path != "lunar.db" {
		t.Errorf("default store path = %q", c.Store.Path)
	}
	if c.Log.Verbosity != 0 {
		t.Errorf("default verbosity = %d", c.Log.Verbosity)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("missing lunar.toml should fail")
	}
}

func TestLoadParseError(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "[store\npath=")
	if _, err := Load(dir); err == nil {
		t.Fatal("malformed TOML should fail")
	}
}

func TestFindAndLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `[store]
path = "found.db"
`)
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatal(err)
	}
	if c == nil {
		t.Fatal("config not found from nested directory")
	}
	if c.Store.Path != "found.db" {
		t.Errorf("store path = %q", c.Store.Path)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	c, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Fatal("expected nil when no lunar.toml exists")
	}
}

func TestDefault(t *testing.T) {
	c := Default("/tmp/project")
	if c.Store.Path != "lunar.db" {
		t.Errorf("default store path = %q", c.Store.Path)
	}
	if c.StorePath() != filepath.Join("/tmp/project", "lunar.db") {
		t.Errorf("StorePath = %q", c.StorePath())
	}
}

func TestAbsoluteStorePath(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `[store]
path = "/var/lib/lunar/snapshots.db"
`)
	c, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if c.StorePath() != "/var/lib/lunar/snapshots.db" {
		t.Errorf("absolute path mangled: %q", c.StorePath())
	}
}
