// Package module provides a thin capability layer over LLVM IR modules as
// modelled by llir/llvm: listing definitions and declarations, tracking a
// lineage identifier, scanning symbol references and encoding modules back to
// LLVM IR assembly.
package module

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"strings"

	"github.com/llir/llvm/asm"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/metadata"
	"github.com/llir/llvm/ir/types"
	"github.com/pkg/errors"
)

// moduleIDPrefix is the header line written in front of every encoded module,
// mirroring the comment LLVM prints for textual modules.
const moduleIDPrefix = "; ModuleID = '"

// Module is an LLVM IR module together with its mutable module identifier.
//
// The identifier is used purely for lineage tracking; it is written as the
// "; ModuleID" header line when the module is encoded.
type Module struct {
	// Module identifier.
	ID string
	// Underlying LLVM IR module.
	m *ir.Module
}

// New returns a module with the given identifier wrapping m. Unnamed global
// values of m are given stable names.
func New(id string, m *ir.Module) *Module {
	nameUnnamed(m)
	return &Module{ID: id, m: m}
}

// ParseFile parses the given LLVM IR assembly file into a module. The module
// identifier is read from the "; ModuleID" header when present and defaults to
// the file path.
func ParseFile(llPath string) (*Module, error) {
	buf, err := ioutil.ReadFile(llPath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return Parse(llPath, buf)
}

// Read parses LLVM IR assembly read from r. See Parse.
func Read(name string, r io.Reader) (*Module, error) {
	buf, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return Parse(name, buf)
}

// Parse parses the LLVM IR assembly content into a module. name identifies the
// input in error messages and is the default module identifier.
func Parse(name string, content []byte) (*Module, error) {
	m, err := asm.ParseString(name, string(content))
	if err != nil {
		return nil, errors.Wrapf(err, "unable to parse module %q", name)
	}
	id := name
	if hdr, ok := headerID(content); ok {
		id = hdr
	}
	return New(id, m), nil
}

// headerID returns the module identifier of the "; ModuleID" header line at
// the start of content.
func headerID(content []byte) (string, bool) {
	if !bytes.HasPrefix(content, []byte(moduleIDPrefix)) {
		return "", false
	}
	line := content[len(moduleIDPrefix):]
	if i := bytes.IndexByte(line, '\n'); i != -1 {
		line = line[:i]
	}
	line = bytes.TrimRight(line, "\r")
	if !bytes.HasSuffix(line, []byte("'")) {
		return "", false
	}
	return string(line[:len(line)-1]), true
}

// IR returns the underlying LLVM IR module.
func (m *Module) IR() *ir.Module {
	return m.m
}

// GlobalValues returns the top-level global values of the module, in the order
// global variables, functions, aliases and indirect functions.
func (m *Module) GlobalValues() []*GlobalValue {
	var gvs []*GlobalValue
	for _, g := range m.m.Globals {
		gvs = append(gvs, &GlobalValue{kind: KindGlobal, global: g})
	}
	for _, f := range m.m.Funcs {
		gvs = append(gvs, &GlobalValue{kind: KindFunc, fn: f})
	}
	for _, a := range m.m.Aliases {
		gvs = append(gvs, &GlobalValue{kind: KindAlias, alias: a})
	}
	for _, i := range m.m.IFuncs {
		gvs = append(gvs, &GlobalValue{kind: KindIFunc, ifunc: i})
	}
	return gvs
}

// Definitions returns the global values of the module which carry a body or
// initializer.
func (m *Module) Definitions() []*GlobalValue {
	var defs []*GlobalValue
	for _, gv := range m.GlobalValues() {
		if gv.IsDefinition() {
			defs = append(defs, gv)
		}
	}
	return defs
}

// Declarations returns the global values of the module which refer to symbols
// defined elsewhere.
func (m *Module) Declarations() []*GlobalValue {
	var decls []*GlobalValue
	for _, gv := range m.GlobalValues() {
		if !gv.IsDefinition() {
			decls = append(decls, gv)
		}
	}
	return decls
}

// Lookup returns the global value with the given identifier (e.g. "@foo"), or
// nil if not present.
func (m *Module) Lookup(ident string) *GlobalValue {
	for _, gv := range m.GlobalValues() {
		if gv.Ident() == ident {
			return gv
		}
	}
	return nil
}

// Add appends the global value to the module.
func (m *Module) Add(gv *GlobalValue) {
	switch gv.kind {
	case KindFunc:
		m.m.Funcs = append(m.m.Funcs, gv.fn)
	case KindGlobal:
		m.m.Globals = append(m.m.Globals, gv.global)
	case KindAlias:
		m.m.Aliases = append(m.m.Aliases, gv.alias)
	case KindIFunc:
		m.m.IFuncs = append(m.m.IFuncs, gv.ifunc)
	default:
		panic(fmt.Errorf("support for global value kind %v not yet implemented", gv.kind))
	}
}

// Remove erases the global values with the given identifiers from the module
// and returns the number of values erased.
func (m *Module) Remove(idents map[string]bool) int {
	n := 0
	funcs := m.m.Funcs[:0]
	for _, f := range m.m.Funcs {
		if idents[f.Ident()] {
			n++
			continue
		}
		funcs = append(funcs, f)
	}
	m.m.Funcs = funcs
	globals := m.m.Globals[:0]
	for _, g := range m.m.Globals {
		if idents[g.Ident()] {
			n++
			continue
		}
		globals = append(globals, g)
	}
	m.m.Globals = globals
	aliases := m.m.Aliases[:0]
	for _, a := range m.m.Aliases {
		if idents[a.Ident()] {
			n++
			continue
		}
		aliases = append(aliases, a)
	}
	m.m.Aliases = aliases
	ifuncs := m.m.IFuncs[:0]
	for _, i := range m.m.IFuncs {
		if idents[i.Ident()] {
			n++
			continue
		}
		ifuncs = append(ifuncs, i)
	}
	m.m.IFuncs = ifuncs
	return n
}

// Fragment returns an empty module with the given identifier sharing the
// module-level context of m (target, data layout, source filename, type
// definitions, comdats, attribute groups and metadata). Module-level inline asm
// is not carried over.
func (m *Module) Fragment(id string) *Module {
	src := m.m
	dst := ir.NewModule()
	dst.SourceFilename = src.SourceFilename
	dst.DataLayout = src.DataLayout
	dst.TargetTriple = src.TargetTriple
	dst.TypeDefs = append([]types.Type(nil), src.TypeDefs...)
	dst.ComdatDefs = append([]*ir.ComdatDef(nil), src.ComdatDefs...)
	dst.AttrGroupDefs = append([]*ir.AttrGroupDef(nil), src.AttrGroupDefs...)
	for name, def := range src.NamedMetadataDefs {
		dst.NamedMetadataDefs[name] = def
	}
	dst.MetadataDefs = append([]metadata.Definition(nil), src.MetadataDefs...)
	return &Module{ID: id, m: dst}
}

// ModuleAsm returns the module-level inline asm of the module.
func (m *Module) ModuleAsm() []string {
	return m.m.ModuleAsms
}

// SetModuleAsm sets the module-level inline asm of the module.
func (m *Module) SetModuleAsm(asms []string) {
	m.m.ModuleAsms = asms
}

// WriteTo writes the module in LLVM IR assembly, preceded by a module
// identifier header line, to w.
func (m *Module) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	n, err := fmt.Fprintf(bw, "%s%s'\n%s", moduleIDPrefix, m.ID, m.m.String())
	if err != nil {
		return int64(n), errors.WithStack(err)
	}
	if err := bw.Flush(); err != nil {
		return int64(n), errors.WithStack(err)
	}
	return int64(n), nil
}

// Bytes returns the module encoded in LLVM IR assembly.
func (m *Module) Bytes() []byte {
	buf := &bytes.Buffer{}
	// Writes to a bytes.Buffer never fail.
	m.WriteTo(buf)
	return buf.Bytes()
}

// String returns the LLVM IR assembly of the module.
func (m *Module) String() string {
	return string(m.Bytes())
}

// nameUnnamed gives the unnamed global values of m (e.g. @0) stable names, so
// that partitions of the module never depend on global numbering.
func nameUnnamed(m *ir.Module) {
	rename := func(gi *ir.GlobalIdent) {
		if gi.GlobalName == "" {
			gi.SetName(fmt.Sprintf("__unnamed_%d", gi.GlobalID))
		}
	}
	for _, g := range m.Globals {
		rename(&g.GlobalIdent)
	}
	for _, f := range m.Funcs {
		rename(&f.GlobalIdent)
	}
	for _, a := range m.Aliases {
		rename(&a.GlobalIdent)
	}
	for _, i := range m.IFuncs {
		rename(&i.GlobalIdent)
	}
}

// llString returns the LLVM IR assembly of v.
func llString(v interface{}) string {
	if s, ok := v.(interface{ LLString() string }); ok {
		return s.LLString()
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
