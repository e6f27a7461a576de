package module

import (
	"sort"
	"strings"
	"testing"

	"github.com/kr/pretty"
)

const demoLL = `source_filename = "demo.c"

@counter = internal global i32 0
@msg = private unnamed_addr constant [6 x i8] c"hi@you"
@ext = external global i32

declare i32 @puts(i8*)

define internal i32 @helper(i32 %x) {
entry:
  %0 = load i32, i32* @counter
  %1 = add i32 %x, %0
  ret i32 %1
}

define i32 @main() {
entry:
  %0 = call i32 @helper(i32 1)
  %1 = call i32 @puts(i8* getelementptr ([6 x i8], [6 x i8]* @msg, i32 0, i32 0))
  ret i32 %0
}

@alias_main = alias i32 (), i32 ()* @main
`

func parseDemo(t *testing.T) *Module {
	t.Helper()
	m, err := Parse("demo.ll", []byte(demoLL))
	if err != nil {
		t.Fatalf("unable to parse demo module; %+v", err)
	}
	return m
}

func names(gvs []*GlobalValue) []string {
	var ns []string
	for _, gv := range gvs {
		ns = append(ns, gv.Name())
	}
	sort.Strings(ns)
	return ns
}

func TestDefinitionsDeclarations(t *testing.T) {
	m := parseDemo(t)
	if m.ID != "demo.ll" {
		t.Errorf("ID = %q, want %q", m.ID, "demo.ll")
	}
	gotDefs := names(m.Definitions())
	wantDefs := []string{"alias_main", "counter", "helper", "main", "msg"}
	if diff := pretty.Diff(gotDefs, wantDefs); len(diff) > 0 {
		t.Errorf("definitions mismatch: %v", diff)
	}
	gotDecls := names(m.Declarations())
	wantDecls := []string{"ext", "puts"}
	if diff := pretty.Diff(gotDecls, wantDecls); len(diff) > 0 {
		t.Errorf("declarations mismatch: %v", diff)
	}
}

func TestRefs(t *testing.T) {
	m := parseDemo(t)
	golden := []struct {
		ident string
		want  []string
	}{
		{ident: "@main", want: []string{"@helper", "@msg", "@puts"}},
		{ident: "@helper", want: []string{"@counter"}},
		{ident: "@msg", want: nil},
		{ident: "@alias_main", want: []string{"@main"}},
	}
	for _, g := range golden {
		gv := m.Lookup(g.ident)
		if gv == nil {
			t.Errorf("%s: unable to locate global value", g.ident)
			continue
		}
		got := gv.Refs()
		sort.Strings(got)
		if diff := pretty.Diff(got, g.want); len(diff) > 0 {
			t.Errorf("%s: refs mismatch: %v", g.ident, diff)
		}
	}
	refs := m.References()
	for _, ident := range []string{"@helper", "@counter", "@puts", "@msg", "@main"} {
		if !refs[ident] {
			t.Errorf("References() missing %s", ident)
		}
	}
	if refs["@ext"] {
		t.Errorf("References() unexpectedly contains unused declaration @ext")
	}
}

func TestIsLocal(t *testing.T) {
	m := parseDemo(t)
	golden := []struct {
		ident string
		want  bool
	}{
		{ident: "@counter", want: true},
		{ident: "@msg", want: true},
		{ident: "@helper", want: true},
		{ident: "@main", want: false},
		{ident: "@ext", want: false},
	}
	for _, g := range golden {
		if got := m.Lookup(g.ident).IsLocal(); got != g.want {
			t.Errorf("%s: IsLocal() = %v, want %v", g.ident, got, g.want)
		}
	}
	helper := m.Lookup("@helper")
	helper.Externalize()
	if helper.IsLocal() {
		t.Errorf("@helper still local after Externalize")
	}
	if !strings.Contains(helper.LLString(), "hidden") {
		t.Errorf("externalized @helper not hidden:\n%s", helper.LLString())
	}
}

func TestScanIdents(t *testing.T) {
	golden := []struct {
		in   string
		want []string
	}{
		{in: "", want: nil},
		{in: "call void @f(i32 1)", want: []string{"@f"}},
		{in: `@s = constant [3 x i8] c"a@b"`, want: []string{"@s"}},
		{in: `call void @"quoted name"() ; @comment`, want: []string{`@"quoted name"`}},
		{in: "store i32 0, i32* @g.1\nload i32, i32* @g.1", want: []string{"@g.1"}},
		{in: "@a @b @a", want: []string{"@a", "@b"}},
		{in: `!0 = !{!"x@y"}`, want: nil},
	}
	for _, g := range golden {
		got := ScanIdents(g.in)
		if diff := pretty.Diff(got, g.want); len(diff) > 0 {
			t.Errorf("ScanIdents(%q) mismatch: %v", g.in, diff)
		}
	}
}

func TestAsmSymbols(t *testing.T) {
	golden := []struct {
		asms []string
		want []AsmSymbol
	}{
		{asms: nil, want: []AsmSymbol{}},
		{
			asms: []string{".globl foo", "foo:", "  ret"},
			want: []AsmSymbol{{Name: "foo", Defined: true}},
		},
		{
			asms: []string{".globl bar", ".weak baz; .set baz, bar"},
			want: []AsmSymbol{{Name: "bar", Defined: false}, {Name: "baz", Defined: true}},
		},
		{
			asms: []string{".L_tmp: nop", "1: jmp 1b # local"},
			want: []AsmSymbol{},
		},
		{
			asms: []string{".comm buf,64,8", "movl %fs:0, %eax"},
			want: []AsmSymbol{{Name: "buf", Defined: true}},
		},
	}
	for _, g := range golden {
		got := scanAsmSymbols(g.asms)
		if diff := pretty.Diff(got, g.want); len(diff) > 0 {
			t.Errorf("scanAsmSymbols(%q) mismatch: %v", g.asms, diff)
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	m := parseDemo(t)
	m.ID = "base_3_1"
	buf := m.Bytes()
	if !strings.HasPrefix(string(buf), "; ModuleID = 'base_3_1'\n") {
		t.Fatalf("missing module ID header:\n%s", buf)
	}
	m2, err := Parse("other.ll", buf)
	if err != nil {
		t.Fatalf("unable to reparse module; %+v", err)
	}
	if m2.ID != "base_3_1" {
		t.Errorf("ID = %q, want %q", m2.ID, "base_3_1")
	}
	if diff := pretty.Diff(names(m2.Definitions()), names(m.Definitions())); len(diff) > 0 {
		t.Errorf("definitions mismatch after round trip: %v", diff)
	}
}

func TestDeclaration(t *testing.T) {
	m := parseDemo(t)
	frag := m.Fragment("frag")
	for _, ident := range []string{"@main", "@counter", "@alias_main"} {
		frag.Add(m.Lookup(ident).Declaration())
	}
	if n := len(frag.Definitions()); n != 0 {
		t.Errorf("fragment of declaration stubs has %d definitions", n)
	}
	got, err := Parse("frag.ll", frag.Bytes())
	if err != nil {
		t.Fatalf("unable to reparse fragment of declaration stubs; %+v\n%s", err, frag.Bytes())
	}
	want := []string{"alias_main", "counter", "main"}
	if diff := pretty.Diff(names(got.Declarations()), want); len(diff) > 0 {
		t.Errorf("declarations mismatch: %v", diff)
	}
}

func TestDeclarationGlobalAttrs(t *testing.T) {
	const src = `@tls = thread_local(initialexec) addrspace(1) externally_initialized global i32 0
`
	m, err := Parse("tls.ll", []byte(src))
	if err != nil {
		t.Fatalf("unable to parse module; %+v", err)
	}
	frag := m.Fragment("frag")
	frag.Add(m.Lookup("@tls").Declaration())
	got, err := Parse("frag.ll", frag.Bytes())
	if err != nil {
		t.Fatalf("unable to reparse fragment; %+v\n%s", err, frag.Bytes())
	}
	decl := got.Lookup("@tls")
	if decl == nil || decl.IsDefinition() {
		t.Fatalf("declaration @tls missing from fragment:\n%s", frag.Bytes())
	}
	want, g := m.Lookup("@tls").global, decl.global
	if g.TLSModel != want.TLSModel {
		t.Errorf("TLS model mismatch; expected %v, got %v", want.TLSModel, g.TLSModel)
	}
	if g.AddrSpace != want.AddrSpace {
		t.Errorf("address space mismatch; expected %v, got %v", want.AddrSpace, g.AddrSpace)
	}
	if !g.ExternallyInitialized {
		t.Errorf("externally_initialized dropped from declaration")
	}
}

func TestFragmentOwnsContext(t *testing.T) {
	const src = `%T = type { i32 }

!llvm.ident = !{!0}
!0 = !{!"demo"}
`
	m, err := Parse("ctx.ll", []byte(src))
	if err != nil {
		t.Fatalf("unable to parse module; %+v", err)
	}
	frag := m.Fragment("frag")
	if len(frag.IR().TypeDefs) != 1 || len(frag.IR().MetadataDefs) != 1 {
		t.Fatalf("fragment context mismatch; %d type definitions, %d metadata definitions", len(frag.IR().TypeDefs), len(frag.IR().MetadataDefs))
	}
	frag.IR().TypeDefs[0] = nil
	frag.IR().MetadataDefs[0] = nil
	delete(frag.IR().NamedMetadataDefs, "llvm.ident")
	parent := m.IR()
	if parent.TypeDefs[0] == nil {
		t.Errorf("type definitions of parent shared with fragment")
	}
	if parent.MetadataDefs[0] == nil {
		t.Errorf("metadata definitions of parent shared with fragment")
	}
	if _, ok := parent.NamedMetadataDefs["llvm.ident"]; !ok {
		t.Errorf("named metadata of parent shared with fragment")
	}
}

func TestRemove(t *testing.T) {
	m := parseDemo(t)
	n := m.Remove(map[string]bool{"@ext": true, "@puts": true, "@missing": true})
	if n != 2 {
		t.Errorf("Remove() = %d, want 2", n)
	}
	if decls := m.Declarations(); len(decls) != 0 {
		t.Errorf("declarations left after Remove: %v", names(decls))
	}
}

func TestUnnamedGlobals(t *testing.T) {
	const src = `@0 = global i32 1

define i32* @get() {
entry:
  ret i32* @0
}
`
	m, err := Parse("unnamed.ll", []byte(src))
	if err != nil {
		t.Fatalf("unable to parse module; %+v", err)
	}
	if gv := m.Lookup("@__unnamed_0"); gv == nil {
		t.Fatalf("unnamed global not renamed; have %v", names(m.GlobalValues()))
	}
	refs := m.Lookup("@get").Refs()
	if diff := pretty.Diff(refs, []string{"@__unnamed_0"}); len(diff) > 0 {
		t.Errorf("refs mismatch: %v", diff)
	}
}
