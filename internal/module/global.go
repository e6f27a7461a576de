package module

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
)

// Kind is the kind of a top-level global value.
type Kind uint8

// Global value kinds.
const (
	KindGlobal Kind = iota + 1
	KindFunc
	KindAlias
	KindIFunc
)

// String returns the string representation of the global value kind.
func (k Kind) String() string {
	switch k {
	case KindGlobal:
		return "global"
	case KindFunc:
		return "function"
	case KindAlias:
		return "alias"
	case KindIFunc:
		return "ifunc"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// GlobalValue is a top-level global value of a module: a function, a global
// variable, an alias or an indirect function.
type GlobalValue struct {
	kind   Kind
	fn     *ir.Func
	global *ir.Global
	alias  *ir.Alias
	ifunc  *ir.IFunc
}

// Kind returns the kind of the global value.
func (gv *GlobalValue) Kind() Kind {
	return gv.kind
}

// Func returns the underlying function, or nil if gv is not a function.
func (gv *GlobalValue) Func() *ir.Func {
	return gv.fn
}

// ident returns the global identifier of the global value.
func (gv *GlobalValue) ident() *ir.GlobalIdent {
	switch gv.kind {
	case KindFunc:
		return &gv.fn.GlobalIdent
	case KindGlobal:
		return &gv.global.GlobalIdent
	case KindAlias:
		return &gv.alias.GlobalIdent
	case KindIFunc:
		return &gv.ifunc.GlobalIdent
	}
	panic(fmt.Errorf("support for global value kind %v not yet implemented", gv.kind))
}

// Name returns the name of the global value (without "@" sigil).
func (gv *GlobalValue) Name() string {
	return gv.ident().Name()
}

// Ident returns the identifier of the global value as printed in LLVM IR
// assembly (e.g. "@foo" or `@"foo bar"`).
func (gv *GlobalValue) Ident() string {
	return gv.ident().Ident()
}

// IsDefinition reports whether the global value carries a body or
// initializer. Aliases and indirect functions are always definitions.
func (gv *GlobalValue) IsDefinition() bool {
	switch gv.kind {
	case KindFunc:
		return len(gv.fn.Blocks) > 0
	case KindGlobal:
		return gv.global.Init != nil
	}
	return true
}

// Linkage returns the linkage type of the global value.
func (gv *GlobalValue) Linkage() enum.Linkage {
	switch gv.kind {
	case KindFunc:
		return gv.fn.Linkage
	case KindGlobal:
		return gv.global.Linkage
	case KindAlias:
		return gv.alias.Linkage
	default:
		return gv.ifunc.Linkage
	}
}

// IsLocal reports whether the global value has local (internal or private)
// linkage.
func (gv *GlobalValue) IsLocal() bool {
	switch gv.Linkage() {
	case enum.LinkageInternal, enum.LinkagePrivate:
		return true
	}
	return false
}

// Externalize promotes a local global value to external linkage with hidden
// visibility. It is a no-op for global values which are not local.
func (gv *GlobalValue) Externalize() {
	if !gv.IsLocal() {
		return
	}
	switch gv.kind {
	case KindFunc:
		gv.fn.Linkage = enum.LinkageNone
		gv.fn.Visibility = enum.VisibilityHidden
	case KindGlobal:
		gv.global.Linkage = enum.LinkageNone
		gv.global.Visibility = enum.VisibilityHidden
	case KindAlias:
		gv.alias.Linkage = enum.LinkageNone
		gv.alias.Visibility = enum.VisibilityHidden
	case KindIFunc:
		gv.ifunc.Linkage = enum.LinkageNone
		gv.ifunc.Visibility = enum.VisibilityHidden
	}
}

// Comdat returns the name of the comdat of the global value, or the empty
// string if it is not part of a comdat.
func (gv *GlobalValue) Comdat() string {
	var comdat *ir.ComdatDef
	switch gv.kind {
	case KindFunc:
		comdat = gv.fn.Comdat
	case KindGlobal:
		comdat = gv.global.Comdat
	}
	if comdat == nil {
		return ""
	}
	return comdat.Name
}

// LLString returns the LLVM IR assembly of the global value.
func (gv *GlobalValue) LLString() string {
	switch gv.kind {
	case KindFunc:
		return gv.fn.LLString()
	case KindGlobal:
		return gv.global.LLString()
	case KindAlias:
		return gv.alias.LLString()
	default:
		return gv.ifunc.LLString()
	}
}

// Refs returns the identifiers of the other global values referenced by the
// global value, in order of first occurrence.
func (gv *GlobalValue) Refs() []string {
	self := gv.Ident()
	var refs []string
	for _, ident := range ScanIdents(gv.LLString()) {
		if ident != self {
			refs = append(refs, ident)
		}
	}
	return refs
}

// Declaration returns a body-less declaration with the same name and type as
// the global value, for use in modules referring to the global value defined
// elsewhere.
func (gv *GlobalValue) Declaration() *GlobalValue {
	name := gv.Name()
	switch gv.kind {
	case KindFunc:
		return declareFunc(name, gv.fn.Sig)
	case KindGlobal:
		decl := ir.NewGlobal(name, gv.global.ContentType)
		decl.Typ = gv.global.Typ
		decl.Immutable = gv.global.Immutable
		decl.AddrSpace = gv.global.AddrSpace
		decl.TLSModel = gv.global.TLSModel
		decl.ExternallyInitialized = gv.global.ExternallyInitialized
		decl.Linkage = enum.LinkageExternal
		return &GlobalValue{kind: KindGlobal, global: decl}
	case KindAlias:
		return declarePointee(name, gv.alias.Typ)
	default:
		return declarePointee(name, gv.ifunc.Typ)
	}
}

// declareFunc returns a function declaration of the given name and signature.
func declareFunc(name string, sig *types.FuncType) *GlobalValue {
	var params []*ir.Param
	for i, typ := range sig.Params {
		params = append(params, ir.NewParam(fmt.Sprintf("p%d", i), typ))
	}
	decl := ir.NewFunc(name, sig.RetType, params...)
	decl.Sig.Variadic = sig.Variadic
	return &GlobalValue{kind: KindFunc, fn: decl}
}

// declarePointee returns a declaration of the given name whose address has
// type typ; a function declaration if typ points to a function, and a global
// variable declaration otherwise.
func declarePointee(name string, typ *types.PointerType) *GlobalValue {
	if sig, ok := typ.ElemType.(*types.FuncType); ok {
		return declareFunc(name, sig)
	}
	decl := ir.NewGlobal(name, typ.ElemType)
	decl.Typ = typ
	decl.Linkage = enum.LinkageExternal
	return &GlobalValue{kind: KindGlobal, global: decl}
}
