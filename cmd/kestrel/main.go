// kestrel runs a compiled code image on the kestrel core.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/kestrel/manifest"
	"github.com/chazu/kestrel/vm"
	"github.com/chazu/kestrel/vm/wire"
)

// Exit codes.
const (
	exitOK        = 0
	exitException = 1
	exitUsage     = 2
)

var log = commonlog.GetLogger("kestrel")

// verbosity counts repeated -v flags.
type verbosity int

func (v *verbosity) String() string   { return fmt.Sprint(int(*v)) }
func (v *verbosity) IsBoolFlag() bool { return true }
func (v *verbosity) Set(string) error {
	*v++
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("kestrel", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var verbose verbosity
	fs.Var(&verbose, "v", "Increase log verbosity (repeatable)")
	configPath := fs.String("c", "", "Path to kestrel.toml (default: search upwards from the working directory)")
	moduleName := fs.String("m", "", "Name of the module the entry image runs in")
	disasm := fs.Bool("dis", false, "Print a disassembly of the image instead of running it")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: kestrel [options] [image]\n\n")
		fmt.Fprintf(stderr, "Runs a CBOR code image. Without an argument the image named by\n")
		fmt.Fprintf(stderr, "[entry] image in kestrel.toml is used.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	m, err := loadManifest(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	var logFile *string
	if m.Log.File != "" {
		logFile = &m.Log.File
	}
	commonlog.Configure(m.Log.Verbosity+int(verbose), logFile)

	entry := m.EntryPath()
	if fs.NArg() > 0 {
		entry = fs.Arg(0)
	}
	if entry == "" {
		fs.Usage()
		return exitUsage
	}
	if *moduleName != "" {
		if !manifest.IsModuleName(*moduleName) {
			fmt.Fprintf(stderr, "Error: %q is not a valid module name\n", *moduleName)
			return exitUsage
		}
		m.Entry.Module = *moduleName
	}

	code, err := readImage(entry)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	if *disasm {
		fmt.Fprint(stdout, code.Disassemble())
		return exitOK
	}

	machine := vm.New(vm.WithConfig(m.VMConfig()), vm.WithStdout(stdout))
	log.Infof("vm %s: running %s as %s", machine.ID(), entry, m.Entry.Module)

	if err := loadModules(machine, m); err != nil {
		return report(stderr, err)
	}

	mod := machine.NewModule(m.Entry.Module)
	machine.RegisterModule(m.Entry.Module, mod)
	result, err := machine.Run(code, mod)
	if err != nil {
		return report(stderr, err)
	}
	if result != vm.None {
		s, err := machine.Repr(result)
		if err != nil {
			return report(stderr, err)
		}
		fmt.Fprintln(stdout, s)
	}

	stats := machine.Stats()
	log.Debugf("vm %s: done; live=%d allocated=%d freed=%d collections=%d",
		machine.ID(), stats.Live, stats.Allocated, stats.Freed, stats.Collections)
	return exitOK
}

// loadManifest loads the manifest at path, or searches upwards from the
// working directory. A missing manifest yields the defaults.
func loadManifest(path string) (*manifest.Manifest, error) {
	if path != "" {
		return manifest.LoadFile(path)
	}
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = &manifest.Manifest{Entry: manifest.Entry{Module: "__main__"}}
	}
	return m, nil
}

// loadModules runs each configured module image in its own module and
// makes it importable. Modules are registered before their code runs.
func loadModules(machine *vm.VM, m *manifest.Manifest) error {
	for _, mp := range m.ModulePaths() {
		code, err := readImage(mp.Path)
		if err != nil {
			return err
		}
		mod := machine.NewModule(mp.Name)
		machine.RegisterModule(mp.Name, mod)
		if _, err := machine.Run(code, mod); err != nil {
			return fmt.Errorf("module %s: %w", mp.Name, err)
		}
		log.Debugf("loaded module %s from %s", mp.Name, mp.Path)
	}
	return nil
}

func readImage(path string) (*vm.Code, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read image: %w", err)
	}
	code, err := wire.UnmarshalCode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return code, nil
}

// report prints err, with a traceback for guest exceptions.
func report(stderr io.Writer, err error) int {
	var e *vm.Error
	if errors.As(err, &e) {
		fmt.Fprintln(stderr, e.Traceback())
		return exitException
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitUsage
}
