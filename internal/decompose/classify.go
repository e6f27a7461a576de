package decompose

import "github.com/mewmew/allplay/internal/module"

// HasUsefulContent reports whether the module defines anything by itself: a
// function with a body, an initialized global variable, an alias or an
// indirect function, or a symbol defined by module-level inline asm.
//
// Modules consisting solely of declarations are not useful.
func HasUsefulContent(m *module.Module) bool {
	return hasDefinition(m) || hasSymbolDefinition(m)
}

// hasDefinition reports whether the module contains at least one global value
// definition.
func hasDefinition(m *module.Module) bool {
	for _, gv := range m.GlobalValues() {
		if gv.IsDefinition() {
			return true
		}
	}
	return false
}

// hasSymbolDefinition reports whether the symbol table of the module-level
// inline asm contains at least one defined symbol.
func hasSymbolDefinition(m *module.Module) bool {
	for _, sym := range m.AsmSymbols() {
		if sym.Defined {
			return true
		}
	}
	return false
}
