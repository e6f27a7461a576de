package bundle

import (
	stderrors "errors"
	"hash/crc32"
	"testing"

	"github.com/kr/pretty"
	"github.com/mewmew/allplay/internal/module"
	"github.com/spf13/afero"
)

const mainLL = `source_filename = "main.c"

declare i32 @lib()

define i32 @main() {
entry:
  %0 = call i32 @lib()
  ret i32 %0
}
`

const libLL = `define i32 @lib() {
entry:
  ret i32 42
}
`

func TestRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	w, err := Create(fs, "prog.allexe")
	if err != nil {
		t.Fatalf("unable to create bundle; %+v", err)
	}
	m, err := module.Parse("main.ll", []byte(mainLL))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.AddModule(m); err != nil {
		t.Fatalf("unable to add module; %+v", err)
	}
	if err := w.Add("libfoo.ll", []byte(libLL)); err != nil {
		t.Fatalf("unable to add module; %+v", err)
	}
	if err := w.Add("libfoo.ll", []byte(libLL)); err == nil {
		t.Errorf("expected error on duplicate entry")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("unable to close bundle; %+v", err)
	}

	b, err := Open(fs, "prog.allexe")
	if err != nil {
		t.Fatalf("unable to open bundle; %+v", err)
	}
	defer b.Close()
	if n := b.NumModules(); n != 2 {
		t.Fatalf("NumModules() = %d, want 2", n)
	}
	var names []string
	for i := 0; i < b.NumModules(); i++ {
		names = append(names, b.ModuleName(i))
	}
	if diff := pretty.Diff(names, []string{"main.ll", "libfoo.ll"}); len(diff) > 0 {
		t.Errorf("module names mismatch: %v", diff)
	}
	if got, want := b.ModuleCRC(1), crc32.ChecksumIEEE([]byte(libLL)); got != want {
		t.Errorf("ModuleCRC(1) = %08x, want %08x", got, want)
	}
	lib, err := b.LoadModule(1)
	if err != nil {
		t.Fatalf("unable to load module; %+v", err)
	}
	if lib.ID != "prog.allexe!libfoo.ll" {
		t.Errorf("ID = %q, want %q", lib.ID, "prog.allexe!libfoo.ll")
	}
	main, err := b.LoadModule(0)
	if err != nil {
		t.Fatalf("unable to load module; %+v", err)
	}
	// Encoded modules carry their own identifier.
	if main.ID != "main.ll" {
		t.Errorf("ID = %q, want %q", main.ID, "main.ll")
	}
	if main.Lookup("@main") == nil {
		t.Errorf("@main missing from main module")
	}
}

func TestOpenNotBundle(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "main.ll", []byte(libLL), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(fs, "main.ll")
	if !stderrors.Is(err, ErrNotBundle) {
		t.Errorf("Open() error = %v, want %v", err, ErrNotBundle)
	}
	if _, err := Open(fs, "missing.allexe"); err == nil || stderrors.Is(err, ErrNotBundle) {
		t.Errorf("Open() of missing file: error = %v", err)
	}
}
