// Package bundle reads and writes bundles of LLVM IR modules.
//
// A bundle (allexe) is a zip archive holding an ordered list of modules; the
// first module is the main module of the program. The CRC-32 checksum of each
// archive entry identifies its module.
package bundle

import (
	"archive/zip"
	"bytes"
	"io/ioutil"
	"strconv"

	"github.com/mewmew/allplay/internal/module"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Ext is the file extension of bundles.
const Ext = ".allexe"

// ErrNotBundle is returned when opening a file which is not a bundle.
var ErrNotBundle = errors.New("not a bundle")

// Bundle is a bundle opened for reading.
type Bundle struct {
	// File path of the bundle.
	Path string
	f    afero.File
	r    *zip.Reader
}

// Open opens the bundle at the given path for reading. ErrNotBundle is
// returned (possibly wrapped) if the file is not a zip archive.
func Open(fs afero.Fs, path string) (*Bundle, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.WithStack(err)
	}
	r, err := zip.NewReader(f, fi.Size())
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(ErrNotBundle, "unable to open %q (%v)", path, err)
	}
	return &Bundle{Path: path, f: f, r: r}, nil
}

// NumModules returns the number of modules in the bundle.
func (b *Bundle) NumModules() int {
	return len(b.r.File)
}

// ModuleName returns the entry name of the i:th module.
func (b *Bundle) ModuleName(i int) string {
	return b.r.File[i].Name
}

// ModuleCRC returns the CRC-32 checksum of the i:th module.
func (b *Bundle) ModuleCRC(i int) uint32 {
	return b.r.File[i].CRC32
}

// ModuleBytes returns the contents of the i:th module.
func (b *Bundle) ModuleBytes(i int) ([]byte, error) {
	zf := b.r.File[i]
	rc, err := zf.Open()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rc.Close()
	buf, err := ioutil.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read %q of bundle %q", zf.Name, b.Path)
	}
	return buf, nil
}

// LoadModule parses the i:th module. The module identifier is
// "<bundle path>!<entry name>" unless the module carries its own.
func (b *Bundle) LoadModule(i int) (*module.Module, error) {
	buf, err := b.ModuleBytes(i)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return module.Parse(b.Path+"!"+b.ModuleName(i), buf)
}

// Close closes the bundle.
func (b *Bundle) Close() error {
	return errors.WithStack(b.f.Close())
}

// Writer creates a bundle.
type Writer struct {
	f  afero.File
	zw *zip.Writer
	// Entry names already written.
	names map[string]bool
}

// Create creates a bundle at the given path. Modules are added in order, the
// first one being the main module.
func Create(fs afero.Fs, path string) (*Writer, error) {
	f, err := fs.Create(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	w := &Writer{
		f:     f,
		zw:    zip.NewWriter(f),
		names: make(map[string]bool),
	}
	return w, nil
}

// Add appends a module with the given entry name and contents.
func (w *Writer) Add(name string, content []byte) error {
	if w.names[name] {
		return errors.Errorf("duplicate bundle entry %q", name)
	}
	zf, err := w.zw.Create(name)
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err := bytes.NewReader(content).WriteTo(zf); err != nil {
		return errors.WithStack(err)
	}
	w.names[name] = true
	return nil
}

// AddModule appends the module m, named after its position in the bundle
// (e.g. "main.ll", "lib1.ll").
func (w *Writer) AddModule(m *module.Module) error {
	name := "main.ll"
	if n := len(w.names); n > 0 {
		name = "lib" + strconv.Itoa(n) + ".ll"
	}
	return w.Add(name, m.Bytes())
}

// Close finishes the bundle and closes the underlying file.
func (w *Writer) Close() error {
	if err := w.zw.Close(); err != nil {
		w.f.Close()
		return errors.WithStack(err)
	}
	return errors.WithStack(w.f.Close())
}
