// Package manifest handles kestrel.toml runtime configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"

	"github.com/chazu/kestrel/vm"
)

// FileName is the name of the manifest file looked up by Load.
const FileName = "kestrel.toml"

var log = commonlog.GetLogger("kestrel.manifest")

// Manifest represents a kestrel.toml configuration.
type Manifest struct {
	Project Project           `toml:"project"`
	VM      VMSection         `toml:"vm"`
	GC      GCSection         `toml:"gc"`
	Log     LogSection        `toml:"log"`
	Entry   Entry             `toml:"entry"`
	Modules map[string]string `toml:"modules"`

	// Dir is the directory containing the kestrel.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// VMSection configures the interpreter.
type VMSection struct {
	RecursionLimit  int `toml:"recursion-limit"`
	MaxOperandStack int `toml:"max-operand-stack"`
}

// GCSection configures the collector.
type GCSection struct {
	Threshold    int     `toml:"threshold"`
	GrowthFactor float64 `toml:"growth-factor"`
}

// LogSection configures logging for the driver.
type LogSection struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Entry names the code image to run and the module it runs in.
type Entry struct {
	Image  string `toml:"image"`
	Module string `toml:"module"`
}

// Load parses a kestrel.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses the manifest at path. Relative paths inside the
// manifest are resolved against the file's directory.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		log.Warningf("%s: unknown key %q", path, key.String())
	}

	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	// Defaults
	if m.Entry.Module == "" {
		m.Entry.Module = "__main__"
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a kestrel.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func (m *Manifest) validate() error {
	if m.VM.RecursionLimit < 0 {
		return fmt.Errorf("vm.recursion-limit must not be negative (got %d)", m.VM.RecursionLimit)
	}
	if m.VM.MaxOperandStack < 0 {
		return fmt.Errorf("vm.max-operand-stack must not be negative (got %d)", m.VM.MaxOperandStack)
	}
	if m.GC.Threshold < 0 {
		return fmt.Errorf("gc.threshold must not be negative (got %d)", m.GC.Threshold)
	}
	if m.GC.GrowthFactor != 0 && m.GC.GrowthFactor < 1 {
		return fmt.Errorf("gc.growth-factor must be at least 1 (got %g)", m.GC.GrowthFactor)
	}
	if m.Entry.Module != "" && !IsModuleName(m.Entry.Module) {
		return fmt.Errorf("entry.module %q is not a valid module name", m.Entry.Module)
	}
	for name := range m.Modules {
		if !IsModuleName(name) {
			return fmt.Errorf("modules: %q is not a valid module name", name)
		}
		if IsReservedModule(name) {
			return fmt.Errorf("modules: %q is reserved", name)
		}
	}
	return nil
}

// VMConfig returns the interpreter configuration. Unset fields take the
// VM defaults.
func (m *Manifest) VMConfig() vm.Config {
	cfg := vm.DefaultConfig()
	if m.VM.RecursionLimit > 0 {
		cfg.RecursionLimit = m.VM.RecursionLimit
	}
	if m.VM.MaxOperandStack > 0 {
		cfg.MaxOperandStack = m.VM.MaxOperandStack
	}
	if m.GC.Threshold > 0 {
		cfg.GCThreshold = m.GC.Threshold
	}
	if m.GC.GrowthFactor > 0 {
		cfg.GCGrowthFactor = m.GC.GrowthFactor
	}
	return cfg
}

// EntryPath returns the absolute path of the entry image, or "" if the
// manifest names none.
func (m *Manifest) EntryPath() string {
	if m.Entry.Image == "" {
		return ""
	}
	return m.resolve(m.Entry.Image)
}

// ModulePath pairs an importable module name with its image path.
type ModulePath struct {
	Name string
	Path string
}

// ModulePaths returns the configured module images sorted by name, with
// absolute paths.
func (m *Manifest) ModulePaths() []ModulePath {
	out := make([]ModulePath, 0, len(m.Modules))
	for name, p := range m.Modules {
		out = append(out, ModulePath{Name: name, Path: m.resolve(p)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
