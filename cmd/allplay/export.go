package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mewmew/allplay/internal/catalog"
	"github.com/mewmew/allplay/internal/export"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newGraphCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "graph DIR",
		Short: "Produce graph of bundles and the modules they contain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.graph(args[0], output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "name of file to write graph")
	cmd.MarkFlagRequired("output")
	return cmd
}

// graph writes the graph of the bundles found in the given directory tree in
// Graphviz DOT format.
func (a *app) graph(dir, output string) error {
	c, err := a.loadBundles(dir)
	if err != nil {
		return errors.WithStack(err)
	}
	dbg.Printf("building bundle graph...")
	g, err := export.BuildGraph(c, dir)
	if err != nil {
		return errors.WithStack(err)
	}
	dbg.Printf("writing graph to %q...", output)
	return a.writeOutput(output, g.WriteDOT)
}

func newCypherCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "cypher DIR",
		Short: "Create Cypher queries for bundle data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.loadBundles(args[0])
			if err != nil {
				return errors.WithStack(err)
			}
			return a.writeOutput(output, func(w io.Writer) error {
				return export.WriteCypher(w, c, args[0])
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "name of file to write Cypher queries")
	cmd.MarkFlagRequired("output")
	return cmd
}

func newNeoCSVCmd(a *app) *cobra.Command {
	var (
		modOut        string
		funcOut       string
		globalOut     string
		aliasOut      string
		modGlobalsOut string
	)
	cmd := &cobra.Command{
		Use:   "neocsv DIR",
		Short: "Create CSV files from loose modules for importing into neo4j",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.loadModules(args[0])
			if err != nil {
				return errors.WithStack(err)
			}
			paths := []string{modOut, funcOut, globalOut, aliasOut, modGlobalsOut}
			var files []afero.File
			for _, path := range paths {
				f, err := a.fs.Create(path)
				if err != nil {
					return errors.WithStack(err)
				}
				defer f.Close()
				files = append(files, f)
			}
			neo := export.NeoFiles{
				Modules:    files[0],
				Funcs:      files[1],
				Globals:    files[2],
				Aliases:    files[3],
				ModGlobals: files[4],
			}
			if err := export.WriteNeoCSV(neo, c, args[0], dbg); err != nil {
				return errors.WithStack(err)
			}
			for _, f := range files {
				if err := f.Close(); err != nil {
					return errors.WithStack(err)
				}
			}
			dbg.Printf("import using 'neo4j-admin' command, something like:")
			fmt.Fprintf(os.Stderr, "\n%s\n\n", export.NeoImportCommand(modOut, funcOut, globalOut, aliasOut, modGlobalsOut))
			dbg.Printf("be sure to stop the database and remove it beforehand.")
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&modOut, "modules", "modules.csv", "name of file to write module node data")
	flags.StringVar(&funcOut, "funcs", "funcs.csv", "name of file to write function node data")
	flags.StringVar(&globalOut, "globals", "globals.csv", "name of file to write globals node data")
	flags.StringVar(&aliasOut, "aliases", "aliases.csv", "name of file to write aliases node data")
	flags.StringVar(&modGlobalsOut, "modglobals", "modglobals.csv", "name of file to write module to global relationship data")
	return cmd
}

func newTOMLCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "toml DIR",
		Short: "Print bundle contents as TOML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.loadBundles(args[0])
			if err != nil {
				return errors.WithStack(err)
			}
			return export.WriteTOML(os.Stdout, c)
		},
	}
}

func newCatalogCmd(a *app) *cobra.Command {
	var (
		// Path of JSON file to store the catalog.
		save string
		// Catalog loose modules instead of bundles.
		loose bool
	)
	cmd := &cobra.Command{
		Use:   "catalog DIR",
		Short: "Catalog the modules found in a directory tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				c   *catalog.Catalog
				err error
			)
			if loose {
				c, err = a.loadModules(args[0])
			} else {
				c, err = a.loadBundles(args[0])
			}
			if err != nil {
				return errors.WithStack(err)
			}
			for _, mi := range c.Modules {
				fmt.Printf("%08x %s %s\n", mi.CRC, mi.Location(), mi.Source)
			}
			dbg.Printf("unique modules: %d", len(c.Modules))
			if len(save) > 0 {
				dbg.Printf("creating %q", save)
				if err := c.Save(save); err != nil {
					return errors.WithStack(err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&save, "save", "", "store the catalog as JSON in the given file")
	cmd.Flags().BoolVar(&loose, "bc-scanner", false, "catalog loose modules (*.ll) instead of bundles")
	return cmd
}

// writeOutput creates the given output file and writes its contents using
// write.
func (a *app) writeOutput(output string, write func(w io.Writer) error) error {
	f, err := a.createFile(output)
	if err != nil {
		return errors.WithStack(err)
	}
	if f == os.Stdout {
		return write(f)
	}
	if err := write(f); err != nil {
		f.Close()
		return errors.WithStack(err)
	}
	return errors.WithStack(f.Close())
}
