package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/mewmew/allplay/internal/catalog"
	"github.com/mewmew/allplay/internal/export"
	"github.com/mewmew/allplay/internal/scan"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newAsmScanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "asmscan DIR",
		Short: "Search modules for module-level and inline asm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.asmScan(args[0])
		},
	}
}

// asmScan reports the modules of the bundles found in the given directory tree
// containing module-level or inline asm. Asm records are written as YAML to
// standard output.
func (a *app) asmScan(dir string) error {
	c, err := a.loadBundles(dir)
	if err != nil {
		return errors.WithStack(err)
	}
	dbg.Printf("starting asm scan...")
	var infos []*scan.AsmInfo
	withModuleAsm := make(map[uint32]bool)
	withInlineAsm := make(map[uint32]bool)
	for _, mi := range c.Modules {
		m, err := c.Open(mi)
		if err != nil {
			return errors.WithStack(err)
		}
		info := scan.ScanAsm(mi.Location(), m)
		if info == nil {
			continue
		}
		if info.HasModuleAsm() {
			withModuleAsm[mi.CRC] = true
		}
		if info.HasInlineAsm() {
			withInlineAsm[mi.CRC] = true
		}
		infos = append(infos, info)
	}
	if err := scan.WriteAsmInfos(os.Stdout, infos); err != nil {
		return errors.WithStack(err)
	}

	// Report bundles containing some form of asm.
	dbg.Printf("bundles containing some form of asm (module-level asm, inline asm, path):")
	modBundles, inlineBundles := 0, 0
	for _, bd := range c.Bundles {
		modAsm := containsAny(bd, withModuleAsm)
		inlineAsm := containsAny(bd, withInlineAsm)
		if modAsm {
			modBundles++
		}
		if inlineAsm {
			inlineBundles++
		}
		if modAsm || inlineAsm {
			fmt.Fprintf(os.Stderr, "%v,%v,%s\n", modAsm, inlineAsm, bd.Path)
		}
	}
	nmods, nbundles := len(c.Modules), len(c.Bundles)
	dbg.Printf("modules: %d", nmods)
	dbg.Printf("modules with module-level asm: %d (%.4g%%)", len(withModuleAsm), percent(len(withModuleAsm), nmods))
	dbg.Printf("modules with inline asm: %d (%.4g%%)", len(withInlineAsm), percent(len(withInlineAsm), nmods))
	dbg.Printf("bundles: %d", nbundles)
	dbg.Printf("bundles with module-level asm: %d (%.4g%%)", modBundles, percent(modBundles, nbundles))
	dbg.Printf("bundles with inline asm: %d (%.4g%%)", inlineBundles, percent(inlineBundles, nbundles))
	return nil
}

// containsAny reports whether the bundle contains any of the given modules.
func containsAny(bd *catalog.BundleDesc, crcs map[uint32]bool) bool {
	for _, crc := range bd.Modules {
		if crcs[crc] {
			return true
		}
	}
	return false
}

func newFindUsesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "finduses DIR FUNC",
		Short: "Search modules for direct calls of a function",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.findUses(args[0], args[1])
		},
	}
}

// findUses reports the direct calls of the given function in the modules of
// the bundles found in the given directory tree. Calls are written as TOML to
// standard output.
func (a *app) findUses(dir, funcName string) error {
	c, err := a.loadBundles(dir)
	if err != nil {
		return errors.WithStack(err)
	}
	dbg.Printf("finding uses of %q...", funcName)
	var reports []*scan.UseReport
	withRef := make(map[uint32]bool)
	for _, mi := range c.Modules {
		m, err := c.Open(mi)
		if err != nil {
			return errors.WithStack(err)
		}
		r := scan.FindDirectUses(mi.Location(), m, funcName)
		if !r.Declared {
			continue
		}
		if r.Other > 0 {
			warn.Printf("%d non-call uses of %q in %q", r.Other, funcName, mi.Location())
		}
		withRef[mi.CRC] = true
		reports = append(reports, r)
	}
	if err := export.WriteUsesTOML(os.Stdout, reports); err != nil {
		return errors.WithStack(err)
	}

	// Count containing bundles per module.
	bds := c.BundlesReferencing(withRef)
	dbg.Printf("bundles containing matched module:")
	useCount := make(map[uint32]int)
	for _, bd := range bds {
		fmt.Fprintln(os.Stderr, bd.Path)
		for _, crc := range bd.Modules {
			if withRef[crc] {
				useCount[crc]++
			}
		}
	}
	dbg.Printf("modules with uses, sorted by number of containing bundles:")
	var crcs []uint32
	for crc := range useCount {
		crcs = append(crcs, crc)
	}
	sort.Slice(crcs, func(i, j int) bool {
		if useCount[crcs[i]] != useCount[crcs[j]] {
			return useCount[crcs[i]] > useCount[crcs[j]]
		}
		return crcs[i] < crcs[j]
	})
	for _, crc := range crcs {
		fmt.Fprintf(os.Stderr, "%d %s\n", useCount[crc], c.Lookup(crc).Location())
	}
	nmods, nbundles := len(c.Modules), len(c.Bundles)
	dbg.Printf("modules: %d", nmods)
	dbg.Printf("modules with reference to %q: %d (%.4g%%)", funcName, len(withRef), percent(len(withRef), nmods))
	dbg.Printf("bundles: %d", nbundles)
	dbg.Printf("bundles with reference: %d (%.4g%%)", len(bds), percent(len(bds), nbundles))
	return nil
}

func newFunctionHashesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "functionhashes DIR",
		Short: "Analyze structural hashes of functions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.functionHashes(args[0])
		},
	}
}

// functionHashes groups the function definitions of the modules of the
// bundles found in the given directory tree by structural hash, and reports
// the share of possibly redundant instructions.
func (a *app) functionHashes(dir string) error {
	c, err := a.loadBundles(dir)
	if err != nil {
		return errors.WithStack(err)
	}
	dbg.Printf("computing function hashes...")
	var funcs []scan.FuncDesc
	total := 0
	for _, mi := range c.Modules {
		m, err := c.Open(mi)
		if err != nil {
			return errors.WithStack(err)
		}
		descs, n := scan.HashModule(mi.Source, m)
		funcs = append(funcs, descs...)
		total += n
	}
	dbg.Printf("hashes computed, grouping...")
	groups := scan.GroupByHash(funcs)
	redundant := 0
	for _, g := range groups {
		nfuncs, ninsts := len(g.Funcs), g.Insts()
		fmt.Printf("function group %v, count: %d\n", g.Hash, nfuncs)
		fmt.Printf("  insts: %d\n", ninsts)
		fmt.Printf("  insts per function: %d\n", ninsts/nfuncs)
		for _, f := range g.Funcs {
			fmt.Printf("  %s: %s\n", f.Source, f.Name)
		}
		redundant += g.Redundant()
	}
	dbg.Printf("total instructions: %d", total)
	dbg.Printf("possibly redundant instructions: %d", redundant)
	dbg.Printf("ratio: %.4g", scan.RedundantRatio(groups, total))
	return nil
}
