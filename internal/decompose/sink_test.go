package decompose

import (
	"archive/tar"
	"io"
	"io/ioutil"
	"sort"
	"testing"

	"github.com/kr/pretty"
	"github.com/mewmew/allplay/internal/module"
	"github.com/spf13/afero"
)

func TestDirSink(t *testing.T) {
	fs := afero.NewMemMapFs()
	// Stale output from a previous run.
	if err := afero.WriteFile(fs, "out/stale.ll", []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewDirSink(fs, "out", false); err != nil {
		t.Fatalf("unable to create sink; %+v", err)
	}
	if ok, _ := afero.Exists(fs, "out/stale.ll"); !ok {
		t.Errorf("output directory removed without force")
	}
	sink, err := NewDirSink(fs, "out", true)
	if err != nil {
		t.Fatalf("unable to create sink; %+v", err)
	}
	if ok, _ := afero.Exists(fs, "out/stale.ll"); ok {
		t.Errorf("stale output kept with force")
	}
	m := parse(t, "chain.ll", chainLL(8))
	stats, err := Decompose(m, sink, Options{Factor: 3})
	if err != nil {
		t.Fatalf("unable to decompose module; %+v", err)
	}
	infos, err := afero.ReadDir(fs, "out")
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != stats.Emitted {
		t.Errorf("%d files in output directory, want %d", len(infos), stats.Emitted)
	}
	buf, err := afero.ReadFile(fs, "out/0.ll")
	if err != nil {
		t.Fatalf("unable to read first partition; %+v", err)
	}
	if _, err := module.Parse("0.ll", buf); err != nil {
		t.Errorf("unable to reparse first partition; %+v", err)
	}
	// Names are unique within a directory.
	if err := sink.Emit(m, "0"); err == nil {
		t.Errorf("expected error on duplicate partition name")
	}
}

func TestTarSink(t *testing.T) {
	fs := afero.NewMemMapFs()
	sink, err := NewTarSink(fs, "out/parts.tar")
	if err != nil {
		t.Fatalf("unable to create sink; %+v", err)
	}
	m := parse(t, "chain.ll", chainLL(6))
	stats, err := Decompose(m, sink, Options{Factor: 4})
	if err != nil {
		t.Fatalf("unable to decompose module; %+v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("unable to close sink; %+v", err)
	}

	f, err := fs.Open("out/parts.tar")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	tr := tar.NewReader(f)
	var entries []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unable to read tar entry; %v", err)
		}
		entries = append(entries, hdr.Name)
		buf, err := ioutil.ReadAll(tr)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := module.Parse(hdr.Name, buf); err != nil {
			t.Errorf("unable to reparse %q; %+v", hdr.Name, err)
		}
	}
	if len(entries) != stats.Emitted {
		t.Errorf("%d tar entries, want %d", len(entries), stats.Emitted)
	}
	sort.Strings(entries)
	if len(entries) > 0 {
		if diff := pretty.Diff(entries[0], "bits/0.ll"); len(diff) > 0 {
			t.Errorf("first entry mismatch: %v", diff)
		}
	}
}

func TestCreateOutputDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "out/old.ll", []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := CreateOutputDir(fs, "out", false); err != nil {
		t.Fatalf("unable to create output directory; %+v", err)
	}
	if ok, _ := afero.Exists(fs, "out/old.ll"); !ok {
		t.Errorf("existing file removed without force")
	}
	if err := CreateOutputDir(fs, "out", true); err != nil {
		t.Fatalf("unable to create output directory; %+v", err)
	}
	if ok, _ := afero.Exists(fs, "out/old.ll"); ok {
		t.Errorf("existing file kept with force")
	}
	if ok, _ := afero.DirExists(fs, "out"); !ok {
		t.Errorf("output directory missing after force")
	}
}
