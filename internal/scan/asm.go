// Package scan implements analyses over the modules of a catalog: locating
// inline asm, finding direct uses of functions and hashing function bodies to
// spot redundant code.
package scan

import (
	"io"
	"strings"

	"github.com/llir/llvm/ir"
	"github.com/mewmew/allplay/internal/module"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// AsmEntry records the inline asm calls of a function.
type AsmEntry struct {
	// Function name.
	Function string `yaml:"function"`
	// Call instructions of inline asm values, in LLVM IR assembly.
	Instructions []string `yaml:"instructions"`
}

// AsmInfo records the asm of a module.
type AsmInfo struct {
	// Location of the module.
	Path string `yaml:"path"`
	// Functions containing inline asm.
	Inline []AsmEntry `yaml:"inline,omitempty"`
	// Module-level inline asm.
	Module string `yaml:"module,omitempty"`
}

// HasModuleAsm reports whether the module has module-level inline asm.
func (info *AsmInfo) HasModuleAsm() bool {
	return len(info.Module) > 0
}

// HasInlineAsm reports whether a function of the module calls inline asm.
func (info *AsmInfo) HasInlineAsm() bool {
	return len(info.Inline) > 0
}

// ScanAsm locates the module-level and inline asm of the module at the given
// location. It returns nil if the module contains no asm.
func ScanAsm(path string, m *module.Module) *AsmInfo {
	info := &AsmInfo{
		Path:   path,
		Module: strings.Join(m.ModuleAsm(), "\n"),
	}
	for _, f := range m.IR().Funcs {
		entry := AsmEntry{Function: f.Name()}
		for _, block := range f.Blocks {
			for _, inst := range block.Insts {
				if call, ok := inst.(*ir.InstCall); ok && isInlineAsm(call.Callee) {
					entry.Instructions = append(entry.Instructions, call.LLString())
				}
			}
			if invoke, ok := block.Term.(*ir.TermInvoke); ok && isInlineAsm(invoke.Invokee) {
				entry.Instructions = append(entry.Instructions, invoke.LLString())
			}
		}
		if len(entry.Instructions) > 0 {
			info.Inline = append(info.Inline, entry)
		}
	}
	if !info.HasModuleAsm() && !info.HasInlineAsm() {
		return nil
	}
	return info
}

// isInlineAsm reports whether the callee is an inline asm value.
func isInlineAsm(callee interface{}) bool {
	_, ok := callee.(*ir.InlineAsm)
	return ok
}

// WriteAsmInfos writes the asm records as a YAML document to w.
func WriteAsmInfos(w io.Writer, infos []*AsmInfo) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(infos); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(enc.Close())
}
