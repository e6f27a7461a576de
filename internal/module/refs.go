package module

import "strings"

// ScanIdents returns the global identifiers (e.g. "@foo", `@"foo bar"`)
// occurring in the given LLVM IR assembly, in order of first occurrence.
// Identifiers inside string literals (c"..." constants, metadata strings,
// section names, inline asm) are skipped.
func ScanIdents(s string) []string {
	var idents []string
	seen := make(map[string]bool)
	add := func(ident string) {
		if !seen[ident] {
			seen[ident] = true
			idents = append(idents, ident)
		}
	}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			// Skip string literal; LLVM escapes quotes as \22.
			end := strings.IndexByte(s[i+1:], '"')
			if end == -1 {
				return idents
			}
			i += end + 1
		case ';':
			// Skip comment.
			end := strings.IndexByte(s[i:], '\n')
			if end == -1 {
				return idents
			}
			i += end
		case '@':
			start := i
			j := i + 1
			if j < len(s) && s[j] == '"' {
				end := strings.IndexByte(s[j+1:], '"')
				if end == -1 {
					return idents
				}
				j += end + 2
			} else {
				for j < len(s) && isIdentChar(s[j]) {
					j++
				}
			}
			if j > start+1 {
				add(s[start:j])
			}
			i = j - 1
		}
	}
	return idents
}

// isIdentChar reports whether c may occur in an unquoted LLVM identifier.
func isIdentChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '$', c == '.', c == '_':
		return true
	}
	return false
}

// References returns the set of global identifiers referenced by the
// definitions and module-level metadata of the module. References made only by
// declarations are not included.
func (m *Module) References() map[string]bool {
	refs := make(map[string]bool)
	for _, gv := range m.Definitions() {
		for _, ref := range gv.Refs() {
			refs[ref] = true
		}
	}
	for _, md := range m.m.MetadataDefs {
		for _, ref := range ScanIdents(llString(md)) {
			refs[ref] = true
		}
	}
	for _, md := range m.m.NamedMetadataDefs {
		for _, ref := range ScanIdents(llString(md)) {
			refs[ref] = true
		}
	}
	return refs
}
