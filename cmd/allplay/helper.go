package main

import (
	"os"

	"github.com/llir/llvm/ir"
	"github.com/mewmew/allplay/internal/catalog"
	"github.com/mewmew/allplay/internal/module"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// parseModule parses the given LLVM IR assembly file into an LLVM IR module.
func (a *app) parseModule(llPath string) (*module.Module, error) {
	switch llPath {
	case "-":
		// Parse LLVM IR module from standard input.
		dbg.Printf("parsing standard input.")
		return module.Read("stdin", os.Stdin)
	default:
		dbg.Printf("parsing file %q.", llPath)
		buf, err := afero.ReadFile(a.fs, llPath)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return module.Parse(llPath, buf)
	}
}

// loadBundles catalogs the bundles found in the given directory tree.
func (a *app) loadBundles(dir string) (*catalog.Catalog, error) {
	dbg.Printf("loading bundles from %q.", dir)
	c, err := catalog.LoadBundles(a.fs, dir)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	dbg.Printf("bundles found: %d", len(c.Bundles))
	return c, nil
}

// loadModules catalogs the loose modules found in the given directory tree.
func (a *app) loadModules(dir string) (*catalog.Catalog, error) {
	dbg.Printf("loading modules from %q.", dir)
	c, err := catalog.LoadModules(a.fs, dir)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	dbg.Printf("modules found: %d", len(c.Modules))
	return c, nil
}

// createFile creates the given output file, unless the path is "-" in which
// case standard output is used.
func (a *app) createFile(path string) (afero.File, error) {
	if path == "-" {
		return os.Stdout, nil
	}
	f, err := a.fs.Create(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return f, nil
}

// findFunc locates and returns the function with the specified name in the
// given module.
func findFunc(m *ir.Module, funcName string) (*ir.Func, error) {
	for _, f := range m.Funcs {
		if f.Name() == funcName {
			return f, nil
		}
	}
	return nil, errors.Errorf("unable to locate function %q in LLVM IR module", funcName)
}

// findBlock locates and returns the basic block with the specified name in the
// given function.
func findBlock(f *ir.Func, blockName string) (*ir.Block, error) {
	for _, block := range f.Blocks {
		if block.Name() == blockName {
			return block, nil
		}
	}
	return nil, errors.Errorf("unable to locate basic block %q in function %q", blockName, f.Name())
}

// percent returns n as a percentage of total.
func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}
