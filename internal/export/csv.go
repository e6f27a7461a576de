package export

import (
	"encoding/csv"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/mewmew/allplay/internal/catalog"
	"github.com/mewmew/allplay/internal/module"
	"github.com/mewmew/allplay/internal/scan"
	"github.com/pkg/errors"
)

// NeoFiles holds the destinations of the neo4j-admin import CSV files.
type NeoFiles struct {
	// Module nodes.
	Modules io.Writer
	// Function nodes.
	Funcs io.Writer
	// Global variable nodes.
	Globals io.Writer
	// Alias nodes.
	Aliases io.Writer
	// Module to global value relationships.
	ModGlobals io.Writer
}

// neoWriter writes the CSV tables of a neo4j import.
type neoWriter struct {
	mods, funcs, globals, aliases, modGlobals *csv.Writer
	// Next global value node ID.
	globalID int
	prefix   string
}

// WriteNeoCSV writes the modules of the catalog and their global values as
// CSV files for import by neo4j-admin. Paths are trimmed of the given prefix.
// Progress is reported to logger, if non-nil.
func WriteNeoCSV(files NeoFiles, c *catalog.Catalog, prefix string, logger *log.Logger) error {
	w := &neoWriter{
		mods:       csv.NewWriter(files.Modules),
		funcs:      csv.NewWriter(files.Funcs),
		globals:    csv.NewWriter(files.Globals),
		aliases:    csv.NewWriter(files.Aliases),
		modGlobals: csv.NewWriter(files.ModGlobals),
		prefix:     prefix,
	}
	w.mods.Write([]string{":ID(Module)", "Name", "Path", "Source"})
	w.funcs.Write([]string{":ID(Global)", "Name", "Insts:int", "Hash:long", ":LABEL"})
	w.globals.Write([]string{":ID(Global)", "Name", ":LABEL"})
	w.aliases.Write([]string{":ID(Global)", "Name", "Aliasee"})
	w.modGlobals.Write([]string{":START_ID(Module)", ":END_ID(Global)", ":TYPE"})
	for modID, mi := range c.Modules {
		m, err := c.Open(mi)
		if err != nil {
			return errors.WithStack(err)
		}
		w.writeModule(modID, mi, m)
		if logger != nil {
			logger.Printf("module %d of %d: %s", modID+1, len(c.Modules), mi.Location())
		}
	}
	for _, cw := range []*csv.Writer{w.mods, w.funcs, w.globals, w.aliases, w.modGlobals} {
		cw.Flush()
		if err := cw.Error(); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// writeModule writes the rows of module m with the given node ID.
func (w *neoWriter) writeModule(modID int, mi *catalog.ModuleInfo, m *module.Module) {
	id := strconv.Itoa(modID)
	name := basename(mi.Source) + "-" + basename(mi.Location())
	w.mods.Write([]string{id, name, TrimPath(mi.Location(), w.prefix), TrimPath(mi.Source, w.prefix)})
	rel := func(def bool) string {
		if def {
			return "DEFINES"
		}
		return "DECLARES"
	}
	label := func(def bool) string {
		if def {
			return "Definition"
		}
		return "Declaration"
	}
	for _, f := range m.IR().Funcs {
		gid := w.nextID()
		if len(f.Blocks) == 0 {
			w.funcs.Write([]string{gid, f.Name(), "0", "0", label(false)})
		} else {
			// neo4j longs are signed.
			hash := strconv.FormatInt(int64(scan.HashFunction(f)), 10)
			w.funcs.Write([]string{gid, f.Name(), strconv.Itoa(scan.CountInsts(f)), hash, label(true)})
		}
		w.modGlobals.Write([]string{id, gid, rel(len(f.Blocks) > 0)})
	}
	for _, g := range m.IR().Globals {
		gid := w.nextID()
		def := g.Init != nil
		w.globals.Write([]string{gid, g.Name(), label(def)})
		w.modGlobals.Write([]string{id, gid, rel(def)})
	}
	for _, a := range m.IR().Aliases {
		gid := w.nextID()
		aliasee := ""
		if refs := module.ScanIdents(a.Aliasee.Ident()); len(refs) > 0 {
			aliasee = strings.TrimPrefix(refs[0], "@")
		}
		w.aliases.Write([]string{gid, a.Name(), aliasee})
		w.modGlobals.Write([]string{id, gid, rel(true)})
	}
}

// nextID returns the next global value node ID.
func (w *neoWriter) nextID() string {
	id := strconv.Itoa(w.globalID)
	w.globalID++
	return id
}

// NeoImportCommand returns the neo4j-admin command importing the given CSV
// files.
func NeoImportCommand(mods, funcs, globals, aliases, modGlobals string) string {
	lines := []string{
		"neo4j-admin import",
		"\t--mode=csv",
		"\t--id-type=INTEGER",
		"\t--nodes:Module:Decomposed=" + mods,
		"\t--nodes:Function=" + funcs,
		"\t--nodes:Global=" + globals,
		"\t--nodes:Alias=" + aliases,
		"\t--relationships=" + modGlobals,
	}
	return strings.Join(lines, " \\\n")
}
