package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/kestrel/vm"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "test-app"
version = "0.1.0"

[vm]
recursion-limit = 250
max-operand-stack = 64

[gc]
threshold = 128
growth-factor = 1.5

[log]
verbosity = 2
file = "kestrel.log"

[entry]
image = "build/main.kbc"
module = "app"

[modules]
util = "build/util.kbc"
"net.http" = "/opt/kestrel/http.kbc"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if m.Log.Verbosity != 2 || m.Log.File != "kestrel.log" {
		t.Errorf("log = %+v, want verbosity 2, file kestrel.log", m.Log)
	}
	if m.Entry.Module != "app" {
		t.Errorf("entry module = %q, want app", m.Entry.Module)
	}

	want := vm.Config{RecursionLimit: 250, GCThreshold: 128, GCGrowthFactor: 1.5, MaxOperandStack: 64}
	if got := m.VMConfig(); got != want {
		t.Errorf("VMConfig() = %+v, want %+v", got, want)
	}

	abs, _ := filepath.Abs(dir)
	if got := m.EntryPath(); got != filepath.Join(abs, "build", "main.kbc") {
		t.Errorf("EntryPath() = %q", got)
	}
	mods := m.ModulePaths()
	if len(mods) != 2 {
		t.Fatalf("ModulePaths() = %v, want 2 entries", mods)
	}
	if mods[0].Name != "net.http" || mods[0].Path != "/opt/kestrel/http.kbc" {
		t.Errorf("mods[0] = %+v", mods[0])
	}
	if mods[1].Name != "util" || mods[1].Path != filepath.Join(abs, "build", "util.kbc") {
		t.Errorf("mods[1] = %+v", mods[1])
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := m.VMConfig(); got != vm.DefaultConfig() {
		t.Errorf("VMConfig() = %+v, want defaults %+v", got, vm.DefaultConfig())
	}
	if m.Entry.Module != "__main__" {
		t.Errorf("default entry module = %q, want __main__", m.Entry.Module)
	}
	if m.EntryPath() != "" {
		t.Errorf("EntryPath() = %q, want empty", m.EntryPath())
	}
	if len(m.ModulePaths()) != 0 {
		t.Errorf("ModulePaths() = %v, want none", m.ModulePaths())
	}
}

func TestLoadManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[vm\n", "parse error"},
		{"wrong type", "[vm]\nrecursion-limit = \"deep\"\n", "parse error"},
		{"negative limit", "[vm]\nrecursion-limit = -1\n", "recursion-limit"},
		{"negative stack", "[vm]\nmax-operand-stack = -3\n", "max-operand-stack"},
		{"negative threshold", "[gc]\nthreshold = -1\n", "gc.threshold"},
		{"shrinking growth", "[gc]\ngrowth-factor = 0.5\n", "growth-factor"},
		{"bad entry module", "[entry]\nmodule = \"1abc\"\n", "entry.module"},
		{"bad module name", "[modules]\n\"a-b\" = \"x.kbc\"\n", "not a valid module name"},
		{"reserved module", "[modules]\nbuiltins = \"x.kbc\"\n", "reserved"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tt.content)
			_, err := Load(dir)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected an error for a missing manifest")
	}
}

func TestLoadFileResolvesAgainstFileDir(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "conf")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(sub, "other.toml")
	if err := os.WriteFile(path, []byte("[entry]\nimage = \"../main.kbc\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	abs, _ := filepath.Abs(dir)
	if got := m.EntryPath(); got != filepath.Join(abs, "main.kbc") {
		t.Errorf("EntryPath() = %q, want %q", got, filepath.Join(abs, "main.kbc"))
	}
}

func TestFindAndLoad(t *testing.T) {
	// Create nested directory structure
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, "[project]\nname = \"found-project\"\n")

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no kestrel.toml exists")
	}
}
