package scan

import (
	"github.com/llir/llvm/ir"
	"github.com/mewmew/allplay/internal/module"
)

// UseReport records the uses of a function within a module.
type UseReport struct {
	// Location of the module.
	Path string
	// The module declares or defines the function.
	Declared bool
	// The module defines the function.
	Defined bool
	// Direct call instructions of the function in LLVM IR assembly, by name of
	// the calling function.
	Calls map[string][]string
	// Number of references to the function other than as the callee of a call
	// instruction (e.g. address taken, or passed as an argument).
	Other int
}

// Used reports whether the function is used within the module.
func (r *UseReport) Used() bool {
	return len(r.Calls) > 0 || r.Other > 0
}

// FindDirectUses locates the uses of the function with the given name within
// the module at the given location.
func FindDirectUses(path string, m *module.Module, name string) *UseReport {
	r := &UseReport{Path: path, Calls: make(map[string][]string)}
	var target *ir.Func
	for _, f := range m.IR().Funcs {
		if f.Name() == name {
			target = f
			break
		}
	}
	if target == nil {
		return r
	}
	r.Declared = true
	r.Defined = len(target.Blocks) > 0
	ident := target.Ident()

	for _, f := range m.IR().Funcs {
		for _, block := range f.Blocks {
			for _, inst := range block.Insts {
				call, ok := inst.(*ir.InstCall)
				if ok && call.Callee == target {
					r.Calls[f.Name()] = append(r.Calls[f.Name()], call.LLString())
					// The callee may also be passed as an argument.
					for _, arg := range call.Args {
						if arg == target {
							r.Other++
						}
					}
					continue
				}
				r.Other += countRefs(llString(inst), ident)
			}
			if block.Term != nil {
				r.Other += countRefs(llString(block.Term), ident)
			}
		}
	}
	for _, g := range m.IR().Globals {
		if g.Init != nil {
			r.Other += countRefs(g.Init.Ident(), ident)
		}
	}
	for _, a := range m.IR().Aliases {
		if a.Aliasee == target {
			r.Other++
		}
	}
	return r
}

// countRefs returns 1 if the LLVM IR assembly s references the global
// identifier ident, and 0 otherwise.
func countRefs(s, ident string) int {
	for _, ref := range module.ScanIdents(s) {
		if ref == ident {
			return 1
		}
	}
	return 0
}

// llString returns the LLVM IR assembly of the instruction or terminator.
func llString(inst interface{}) string {
	if s, ok := inst.(interface{ LLString() string }); ok {
		return s.LLString()
	}
	return ""
}
