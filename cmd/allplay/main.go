// The allplay tool decomposes and analyses LLVM IR modules and bundles of
// modules (*.ll, *.allexe).
//
// The decompose command recursively partitions an LLVM IR module into small,
// linkable fragments. For an input module "foo.ll" decomposed into the output
// directory "foo_bits" the following files are generated.
//
//    * foo_bits/0.ll
//    * foo_bits/1.ll
//    * ...
//
// The remaining commands scan a directory tree for bundles, deduplicate the
// modules they contain and report on or export the result.
//
// Usage:
//
//     allplay COMMAND [OPTION]... ARG...
//
// Commands:
//
//   asmscan         search modules for module-level and inline asm
//   catalog         catalog the modules found in a directory tree
//   collect         copy the unique loose modules of a directory tree
//   cypher          create Cypher queries for bundle data
//   decompose       decompose a module into linkable partitions
//   decompose-all   decompose every module of a directory tree
//   finduses        search modules for direct calls of a function
//   functionhashes  analyze structural hashes of functions
//   graph           produce graph of bundles and modules
//   neocsv          create CSV files for importing into neo4j
//   pack            create a bundle of modules
//   printsource     print source information of a module
//   toml            print bundle contents as TOML
//
// Flags:
//
//   --config string
//         config file (default is ./allplay.yaml)
//   -q    suppress non-error messages
package main

import (
	"io/ioutil"
	"log"
	"os"

	"github.com/mewkiz/pkg/term"
	"github.com/mewmew/allplay/internal/config"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// dbg represents a logger with the "allplay:" prefix, which logs debug
	// messages to standard error.
	dbg = log.New(os.Stderr, term.YellowBold("allplay:")+" ", 0)
	// warn represents a logger with the "allplay:" prefix, which logs warning
	// messages to standard error.
	warn = log.New(os.Stderr, term.RedBold("allplay:")+" ", 0)
)

func main() {
	root := newRootCmd(newApp(afero.NewOsFs()))
	if err := root.Execute(); err != nil {
		log.Fatalf("%+v", err)
	}
}

// command is an entry of the command table.
type command struct {
	// Command name.
	name string
	// new returns the command bound to the given application state.
	new func(a *app) *cobra.Command
}

// commands returns the command table of allplay.
func commands() []command {
	return []command{
		{name: "asmscan", new: newAsmScanCmd},
		{name: "catalog", new: newCatalogCmd},
		{name: "collect", new: newCollectCmd},
		{name: "cypher", new: newCypherCmd},
		{name: "decompose", new: newDecomposeCmd},
		{name: "decompose-all", new: newDecomposeAllCmd},
		{name: "finduses", new: newFindUsesCmd},
		{name: "functionhashes", new: newFunctionHashesCmd},
		{name: "graph", new: newGraphCmd},
		{name: "neocsv", new: newNeoCSVCmd},
		{name: "pack", new: newPackCmd},
		{name: "printsource", new: newPrintSourceCmd},
		{name: "toml", new: newTOMLCmd},
	}
}

// app holds the state shared by the commands of allplay.
type app struct {
	// File system of inputs and outputs.
	fs afero.Fs
	// Path of the config file; empty for the default.
	cfgFile string
	// Configuration registry.
	v *viper.Viper
	// Configuration, loaded before a command runs.
	cfg *config.Config
	// Flags bound to configuration keys.
	bindings []binding
}

// binding binds a command line flag to a configuration key.
type binding struct {
	cmd  *cobra.Command
	flag string
	key  string
}

// newApp returns the application state of allplay operating on fs.
func newApp(fs afero.Fs) *app {
	return &app{fs: fs}
}

// bind makes the flag of cmd override the given configuration key.
func (a *app) bind(cmd *cobra.Command, flag, key string) {
	a.bindings = append(a.bindings, binding{cmd: cmd, flag: flag, key: key})
}

// newRootCmd returns the root command of allplay with every command of the
// command table attached.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "allplay",
		Short:         "Decompose and analyse LLVM IR modules and bundles",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ./allplay.yaml)")
	root.PersistentFlags().BoolP("quiet", "q", false, "suppress non-error messages")
	a.bind(root, "quiet", "quiet")
	for _, c := range commands() {
		cmd := c.new(a)
		if cmd.Name() != c.name {
			panic(errors.Errorf("command table entry %q creates command %q", c.name, cmd.Name()))
		}
		root.AddCommand(cmd)
	}
	return root
}

// loadConfig loads the configuration of the command about to run, with flags
// of the command overriding configuration keys.
func (a *app) loadConfig(cmd *cobra.Command) error {
	v, err := config.New(a.cfgFile)
	if err != nil {
		return errors.WithStack(err)
	}
	for _, b := range a.bindings {
		if b.cmd != cmd && b.cmd != cmd.Root() {
			continue
		}
		f := b.cmd.Flags().Lookup(b.flag)
		if f == nil {
			f = b.cmd.PersistentFlags().Lookup(b.flag)
		}
		if f == nil {
			panic(errors.Errorf("unable to locate flag %q of command %q", b.flag, b.cmd.Name()))
		}
		if err := v.BindPFlag(b.key, f); err != nil {
			return errors.WithStack(err)
		}
	}
	cfg, err := config.Load(v)
	if err != nil {
		return errors.WithStack(err)
	}
	a.v, a.cfg = v, cfg
	if cfg.Quiet {
		// Mute debug messages if `-q` is set.
		dbg.SetOutput(ioutil.Discard)
	}
	return nil
}
