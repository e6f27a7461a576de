package module

import (
	"regexp"
	"strings"
)

// AsmSymbol is a symbol of the module-level inline asm symbol table.
type AsmSymbol struct {
	// Symbol name.
	Name string
	// Defined specifies whether the symbol is defined by the inline asm, as
	// opposed to only being referenced (e.g. by a .globl directive).
	Defined bool
}

var (
	// asmLabel matches a label at the start of an asm statement.
	asmLabel = regexp.MustCompile(`^([A-Za-z_.$][A-Za-z0-9_.$@]*|"[^"]+")\s*:`)
	// asmDirective matches a symbol directive of an asm statement.
	asmDirective = regexp.MustCompile(`^\.(globl|global|weak|set|equ|equiv|comm|lcomm)\s+([A-Za-z_.$][A-Za-z0-9_.$@]*|"[^"]+")`)
)

// AsmSymbols returns the symbol table of the module-level inline asm of the
// module, in order of first occurrence.
//
// Labels, .set/.equ/.equiv assignments and .comm/.lcomm allocations define
// symbols; names only mentioned by .globl or .weak directives are undefined.
// Assembler-local labels (.L prefix) are not part of the symbol table.
func (m *Module) AsmSymbols() []AsmSymbol {
	return scanAsmSymbols(m.m.ModuleAsms)
}

// scanAsmSymbols returns the symbol table of the given inline asm lines.
func scanAsmSymbols(asms []string) []AsmSymbol {
	var order []string
	defined := make(map[string]bool)
	noted := make(map[string]bool)
	note := func(name string, def bool) {
		name = strings.Trim(name, `"`)
		if strings.HasPrefix(name, ".L") {
			return
		}
		if !noted[name] {
			noted[name] = true
			order = append(order, name)
		}
		if def {
			defined[name] = true
		}
	}
	for _, asm := range asms {
		for _, line := range strings.Split(asm, "\n") {
			if i := strings.IndexByte(line, '#'); i != -1 {
				line = line[:i]
			}
			for _, stmt := range strings.Split(line, ";") {
				stmt = strings.TrimSpace(stmt)
				for {
					loc := asmLabel.FindStringSubmatchIndex(stmt)
					if loc == nil {
						break
					}
					note(stmt[loc[2]:loc[3]], true)
					stmt = strings.TrimSpace(stmt[loc[1]:])
				}
				sub := asmDirective.FindStringSubmatch(stmt)
				if sub == nil {
					continue
				}
				switch sub[1] {
				case "globl", "global", "weak":
					note(sub[2], false)
				default:
					note(sub[2], true)
				}
			}
		}
	}
	syms := make([]AsmSymbol, 0, len(order))
	for _, name := range order {
		syms = append(syms, AsmSymbol{Name: name, Defined: defined[name]})
	}
	return syms
}
