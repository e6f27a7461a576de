package decompose

import "github.com/mewmew/allplay/internal/module"

// PruneDeadDeclarations erases the function and global variable declarations
// of the module which are no longer used, and returns the number of
// declarations erased.
//
// Uses are references from definitions and module-level metadata; a
// declaration only referenced by other (dead) declarations is dead itself.
// Splitting leaves such orphans behind whenever all users of a declaration
// were assigned to a sibling fragment.
func PruneDeadDeclarations(m *module.Module) int {
	used := m.References()
	dead := make(map[string]bool)
	for _, gv := range m.Declarations() {
		switch gv.Kind() {
		case module.KindFunc, module.KindGlobal:
			if !used[gv.Ident()] {
				dead[gv.Ident()] = true
			}
		}
	}
	if len(dead) == 0 {
		return 0
	}
	return m.Remove(dead)
}
