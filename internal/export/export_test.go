package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/kr/pretty"
	"github.com/mewmew/allplay/internal/bundle"
	"github.com/mewmew/allplay/internal/catalog"
	"github.com/mewmew/allplay/internal/scan"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

const (
	libLL = `source_filename = "/nix/store/abc-libc/libc.c"

@errno = global i32 0
@ext = external global i32

define i32 @puts(i8* %s) {
entry:
  ret i32 0
}

@put = alias i32 (i8*), i32 (i8*)* @puts
`
	mainLL = `source_filename = "hello.c"

declare i32 @puts(i8*)

define i32 @main() {
entry:
  ret i32 0
}
`
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	fs := afero.NewMemMapFs()
	w, err := bundle.Create(fs, "/scan/hello.allexe")
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Add("main.ll", []byte(mainLL)); err != nil {
		t.Fatal(err)
	}
	if err := w.Add("libc.ll", []byte(libLL)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	c, err := catalog.LoadBundles(fs, "/scan")
	if err != nil {
		t.Fatalf("unable to load catalog; %+v", err)
	}
	return c
}

func TestTrimPath(t *testing.T) {
	golden := []struct {
		in, prefix, want string
	}{
		{in: "/scan/bin/ls.allexe", prefix: "/scan", want: "bin/ls.allexe"},
		{in: "/nix/store/abc-hello/bin/hello", prefix: "/scan", want: "abc-hello/bin/hello"},
		{in: "rel/path", prefix: "", want: "rel/path"},
	}
	for _, g := range golden {
		if got := TrimPath(g.in, g.prefix); got != g.want {
			t.Errorf("TrimPath(%q, %q) = %q, want %q", g.in, g.prefix, got, g.want)
		}
	}
}

func TestGraph(t *testing.T) {
	c := testCatalog(t)
	g, err := BuildGraph(c, "/scan")
	if err != nil {
		t.Fatalf("unable to build graph; %+v", err)
	}
	buf := &bytes.Buffer{}
	if err := g.WriteDOT(buf); err != nil {
		t.Fatal(err)
	}
	dot := buf.String()
	for _, want := range []string{"digraph G {\n", "rankdir=LR;", "node [shape=record];", "Node 0 [label=\"hello.allexe\"];", "Node 0 -> Node 1;", "Node 0 -> Node 2;"} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output lacks %q:\n%s", want, dot)
		}
	}
	if err := g.AddEdge("missing", "hello.allexe"); err == nil {
		t.Errorf("expected error on edge from unknown node")
	}
}

func TestWriteCypher(t *testing.T) {
	c := testCatalog(t)
	buf := &bytes.Buffer{}
	if err := WriteCypher(buf, c, "/scan"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	wants := []string{
		`MERGE (:Module {Name:"libc.c", Path:"abc-libc/libc.c", CRC:`,
		`MERGE (:Bundle {Name:"hello.allexe", Path:"hello.allexe"});`,
		"MERGE (b)-[:CONTAINS {index:1}]->(m);",
	}
	for _, want := range wants {
		if !strings.Contains(out, want) {
			t.Errorf("Cypher output lacks %q:\n%s", want, out)
		}
	}
}

func TestWriteNeoCSV(t *testing.T) {
	c := testCatalog(t)
	var mods, funcs, globals, aliases, modGlobals bytes.Buffer
	files := NeoFiles{Modules: &mods, Funcs: &funcs, Globals: &globals, Aliases: &aliases, ModGlobals: &modGlobals}
	if err := WriteNeoCSV(files, c, "/scan", nil); err != nil {
		t.Fatalf("unable to write CSV files; %+v", err)
	}
	read := func(buf *bytes.Buffer) [][]string {
		records, err := csv.NewReader(buf).ReadAll()
		if err != nil {
			t.Fatalf("unable to parse CSV; %v", err)
		}
		return records
	}
	modRecs := read(&mods)
	if len(modRecs) != 3 {
		t.Errorf("%d module rows, want 3", len(modRecs))
	}
	funcRecs := read(&funcs)
	wantFuncs := [][]string{
		{":ID(Global)", "Name", "Insts:int", "Hash:long", ":LABEL"},
		{"0", "puts", "0", "0", "Declaration"},
	}
	if len(funcRecs) != 4 {
		t.Fatalf("%d function rows, want 4", len(funcRecs))
	}
	if diff := pretty.Diff(funcRecs[:2], wantFuncs); len(diff) > 0 {
		t.Errorf("function rows mismatch: %v", diff)
	}
	if got := funcRecs[2][4]; got != "Definition" {
		t.Errorf("label of %s = %q, want Definition", funcRecs[2][1], got)
	}
	globalRecs := read(&globals)
	wantGlobals := [][]string{
		{":ID(Global)", "Name", ":LABEL"},
		{"3", "errno", "Definition"},
		{"4", "ext", "Declaration"},
	}
	if diff := pretty.Diff(globalRecs, wantGlobals); len(diff) > 0 {
		t.Errorf("global rows mismatch: %v", diff)
	}
	aliasRecs := read(&aliases)
	wantAliases := [][]string{
		{":ID(Global)", "Name", "Aliasee"},
		{"5", "put", "puts"},
	}
	if diff := pretty.Diff(aliasRecs, wantAliases); len(diff) > 0 {
		t.Errorf("alias rows mismatch: %v", diff)
	}
	if n := len(read(&modGlobals)); n != 7 {
		t.Errorf("%d module-global rows, want 7", n)
	}
}

func TestWriteTOML(t *testing.T) {
	c := testCatalog(t)
	buf := &bytes.Buffer{}
	if err := WriteTOML(buf, c); err != nil {
		t.Fatal(err)
	}
	var got map[string][]string
	if err := toml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unable to parse TOML output; %v\n%s", err, buf)
	}
	want := map[string][]string{
		"/scan/hello.allexe": {"hello.c", "/nix/store/abc-libc/libc.c"},
	}
	if diff := pretty.Diff(got, want); len(diff) > 0 {
		t.Errorf("TOML mismatch: %v", diff)
	}
}

func TestWriteUsesTOML(t *testing.T) {
	reports := []*scan.UseReport{
		{Path: "a.ll", Calls: map[string][]string{"main": {"%0 = call i32 @puts(i8* null)"}}},
		{Path: "b.ll", Calls: map[string][]string{}},
	}
	buf := &bytes.Buffer{}
	if err := WriteUsesTOML(buf, reports); err != nil {
		t.Fatal(err)
	}
	var got map[string]map[string][]string
	if err := toml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unable to parse TOML output; %v\n%s", err, buf)
	}
	want := map[string]map[string][]string{
		"a.ll": {"main": {"%0 = call i32 @puts(i8* null)"}},
	}
	if diff := pretty.Diff(got, want); len(diff) > 0 {
		t.Errorf("TOML mismatch: %v", diff)
	}
}
