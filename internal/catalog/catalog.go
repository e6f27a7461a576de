// Package catalog implements a deduplicating database of the LLVM IR modules
// found in a directory tree, either within bundles or as loose files.
package catalog

import (
	stderrors "errors"
	"hash/crc32"
	"os"
	"strconv"
	"strings"

	"github.com/mewkiz/pkg/jsonutil"
	"github.com/mewmew/allplay/internal/bundle"
	"github.com/mewmew/allplay/internal/module"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// ModuleInfo describes a unique module of the catalog.
type ModuleInfo struct {
	// CRC-32 checksum of the module contents.
	CRC uint32 `json:"crc"`
	// Source of the module; its source filename if present, and its location
	// otherwise.
	Source string `json:"source"`
	// Path of the bundle or loose file containing the module.
	Path string `json:"path"`
	// Index of the module within its bundle; -1 for loose files.
	Index int `json:"index"`
}

// Loose reports whether the module is stored as a loose file.
func (mi *ModuleInfo) Loose() bool {
	return mi.Index < 0
}

// Location returns "<bundle>!<entry index>" for bundled modules and the file
// path of loose modules.
func (mi *ModuleInfo) Location() string {
	if mi.Loose() {
		return mi.Path
	}
	return mi.Path + "!" + strconv.Itoa(mi.Index)
}

// BundleDesc describes a bundle of the catalog.
type BundleDesc struct {
	// File path of the bundle.
	Path string `json:"path"`
	// Checksums of the modules of the bundle, in order.
	Modules []uint32 `json:"modules"`
}

// Catalog is a deduplicating database of modules.
type Catalog struct {
	// Unique modules in discovery order.
	Modules []*ModuleInfo `json:"modules"`
	// Bundles in discovery order.
	Bundles []*BundleDesc `json:"bundles"`

	fs afero.Fs
	// Modules indexed by checksum.
	byCRC map[uint32]*ModuleInfo
}

// New returns an empty catalog over the given file system.
func New(fs afero.Fs) *Catalog {
	return &Catalog{fs: fs, byCRC: make(map[uint32]*ModuleInfo)}
}

// LoadBundles catalogs the bundles found in the directory tree rooted at dir.
// Files which are not bundles are silently skipped. Modules are deduplicated
// by checksum; the first occurrence wins.
func LoadBundles(fs afero.Fs, dir string) (*Catalog, error) {
	c := New(fs)
	walk := func(path string, fi os.FileInfo) error {
		b, err := bundle.Open(fs, path)
		if err != nil {
			if stderrors.Is(err, bundle.ErrNotBundle) {
				return nil
			}
			return errors.WithStack(err)
		}
		defer b.Close()
		return c.addBundle(b)
	}
	if err := walkFiles(fs, dir, walk); err != nil {
		return nil, errors.WithStack(err)
	}
	return c, nil
}

// addBundle adds the modules of b to the catalog.
func (c *Catalog) addBundle(b *bundle.Bundle) error {
	bd := &BundleDesc{Path: b.Path}
	for i := 0; i < b.NumModules(); i++ {
		crc := b.ModuleCRC(i)
		if _, ok := c.byCRC[crc]; !ok {
			// TODO: compare module contents on checksum collision.
			m, err := b.LoadModule(i)
			if err != nil {
				return errors.WithStack(err)
			}
			mi := &ModuleInfo{
				CRC:    crc,
				Source: source(m, b.Path+"!"+b.ModuleName(i)),
				Path:   b.Path,
				Index:  i,
			}
			c.add(mi)
		}
		bd.Modules = append(bd.Modules, crc)
	}
	c.Bundles = append(c.Bundles, bd)
	return nil
}

// LoadModules catalogs the loose LLVM IR assembly files (*.ll) found in the
// directory tree rooted at dir. Files with identical contents are catalogued
// once.
func LoadModules(fs afero.Fs, dir string) (*Catalog, error) {
	c := New(fs)
	walk := func(path string, fi os.FileInfo) error {
		if !strings.HasSuffix(path, ".ll") {
			return nil
		}
		buf, err := afero.ReadFile(fs, path)
		if err != nil {
			return errors.WithStack(err)
		}
		crc := crc32.ChecksumIEEE(buf)
		if _, ok := c.byCRC[crc]; ok {
			return nil
		}
		m, err := module.Parse(path, buf)
		if err != nil {
			return errors.WithStack(err)
		}
		c.add(&ModuleInfo{CRC: crc, Source: source(m, path), Path: path, Index: -1})
		return nil
	}
	if err := walkFiles(fs, dir, walk); err != nil {
		return nil, errors.WithStack(err)
	}
	return c, nil
}

// walkFiles calls fn for each non-empty regular file in the directory tree
// rooted at dir, in lexical order.
func walkFiles(fs afero.Fs, dir string, fn func(path string, fi os.FileInfo) error) error {
	return afero.Walk(fs, dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return errors.WithStack(err)
		}
		if !fi.Mode().IsRegular() || fi.Size() == 0 {
			return nil
		}
		return fn(path, fi)
	})
}

// source returns the source filename of m, or def if absent.
func source(m *module.Module, def string) string {
	if src := m.IR().SourceFilename; len(src) > 0 {
		return src
	}
	return def
}

// add records a unique module.
func (c *Catalog) add(mi *ModuleInfo) {
	c.Modules = append(c.Modules, mi)
	c.byCRC[mi.CRC] = mi
}

// Lookup returns the module with the given checksum, or nil if not present.
func (c *Catalog) Lookup(crc uint32) *ModuleInfo {
	return c.byCRC[crc]
}

// BundleModules returns the modules of the bundle bd, in order.
func (c *Catalog) BundleModules(bd *BundleDesc) []*ModuleInfo {
	mis := make([]*ModuleInfo, 0, len(bd.Modules))
	for _, crc := range bd.Modules {
		mis = append(mis, c.byCRC[crc])
	}
	return mis
}

// BundlesReferencing returns the bundles containing at least one of the
// modules with the given checksums.
func (c *Catalog) BundlesReferencing(crcs map[uint32]bool) []*BundleDesc {
	var bds []*BundleDesc
	for _, bd := range c.Bundles {
		for _, crc := range bd.Modules {
			if crcs[crc] {
				bds = append(bds, bd)
				break
			}
		}
	}
	return bds
}

// Open parses the given catalogued module.
func (c *Catalog) Open(mi *ModuleInfo) (*module.Module, error) {
	if mi.Loose() {
		buf, err := afero.ReadFile(c.fs, mi.Path)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return module.Parse(mi.Path, buf)
	}
	b, err := bundle.Open(c.fs, mi.Path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer b.Close()
	if mi.Index >= b.NumModules() {
		return nil, errors.Errorf("module %d of bundle %q out of range", mi.Index, mi.Path)
	}
	return b.LoadModule(mi.Index)
}

// Save stores the catalog as JSON at the given path.
func (c *Catalog) Save(jsonPath string) error {
	if err := jsonutil.WriteFile(jsonPath, c); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// LoadFile loads a catalog stored by Save. Catalogued modules are opened from
// fs.
func LoadFile(fs afero.Fs, jsonPath string) (*Catalog, error) {
	c := New(fs)
	if err := jsonutil.ParseFile(jsonPath, c); err != nil {
		return nil, errors.WithStack(err)
	}
	for _, mi := range c.Modules {
		c.byCRC[mi.CRC] = mi
	}
	for _, bd := range c.Bundles {
		for _, crc := range bd.Modules {
			if c.byCRC[crc] == nil {
				return nil, errors.Errorf("bundle %q references unknown module %08x", bd.Path, crc)
			}
		}
	}
	return c, nil
}
