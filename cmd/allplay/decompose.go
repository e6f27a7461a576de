package main

import (
	"context"
	"io"
	"path/filepath"
	"strconv"

	"github.com/mewkiz/pkg/pathutil"
	"github.com/mewmew/allplay/internal/bundle"
	"github.com/mewmew/allplay/internal/config"
	"github.com/mewmew/allplay/internal/decompose"
	"github.com/mewmew/allplay/internal/module"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// addDecomposeFlags adds the flags shared by the decompose commands to cmd.
func addDecomposeFlags(a *app, cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Int("factor", 11, "partition factor; number of fragments of each split")
	flags.Bool("adaptive", false, "derive partition factor from the definition count of each module")
	flags.Bool("verify", false, "reparse each partition before writing it")
	flags.Bool("dump", false, "print each partition before writing it")
	flags.Bool("strip-source-info", false, "remove information identifying the original module")
	a.bind(cmd, "factor", "decompose.factor")
	a.bind(cmd, "adaptive", "decompose.adaptive")
	a.bind(cmd, "verify", "decompose.verify")
	a.bind(cmd, "dump", "decompose.dump")
	a.bind(cmd, "strip-source-info", "decompose.strip_source_info")
}

// decomposeOptions returns the decomposition options of the configuration.
func decomposeOptions(cfg config.DecomposeConfig) decompose.Options {
	return decompose.Options{
		Factor:      cfg.Factor,
		Adaptive:    cfg.Adaptive,
		Verify:      cfg.Verify,
		Dump:        cfg.Dump,
		StripSource: cfg.StripSourceInfo,
		Logger:      dbg,
	}
}

func newDecomposeCmd(a *app) *cobra.Command {
	var (
		// Output directory or tar archive.
		output string
		// Write partitions to a tar archive.
		writeTar bool
		// Force overwrite existing output directory.
		force bool
	)
	cmd := &cobra.Command{
		Use:   "decompose FILE.ll",
		Short: "Decompose a module into linkable partitions",
		Long: `Decompose a module into linkable partitions.

For an input module "foo.ll" the partitions are written to the output
directory "foo_bits" unless -o is set ("-" reads from standard input).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.decompose(args[0], output, writeTar, force)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output directory, or tar archive with --write-tar")
	cmd.Flags().BoolVar(&writeTar, "write-tar", false, "write partitions to a tar archive")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "force overwrite existing output directory")
	addDecomposeFlags(a, cmd)
	return cmd
}

// decompose decomposes the given LLVM IR module into partitions written to
// the output directory or tar archive.
//
// - writeTar specifies whether to write partitions to a tar archive.
//
// - force specifies whether to force overwrite an existing output directory.
func (a *app) decompose(llPath, output string, writeTar, force bool) error {
	m, err := a.parseModule(llPath)
	if err != nil {
		return errors.WithStack(err)
	}
	if !decompose.HasUsefulContent(m) {
		return errors.Errorf("module %q has no definitions to decompose", llPath)
	}
	if len(output) == 0 {
		output = outputPath(llPath, writeTar)
	}
	var sink interface {
		decompose.Sink
		io.Closer
	}
	if writeTar {
		sink, err = decompose.NewTarSink(a.fs, output)
	} else {
		sink, err = decompose.NewDirSink(a.fs, output, force)
	}
	if err != nil {
		return errors.WithStack(err)
	}
	dbg.Printf("decomposing %q into %q.", llPath, output)
	stats, err := decompose.Decompose(m, sink, decomposeOptions(a.cfg.Decompose))
	if cerr := sink.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.WithStack(err)
	}
	dbg.Printf("splits: %d, empty fragments: %d, partitions: %d", stats.Splits, stats.Empty, stats.Emitted)
	return nil
}

// outputPath returns the default output path of the partitions of the given
// LLVM IR module.
//
// For a source file "foo.ll" the output directory "foo_bits" (or archive
// "foo_bits.tar") is returned.
func outputPath(llPath string, writeTar bool) string {
	base := "stdin"
	if llPath != "-" {
		base = pathutil.TrimExt(llPath)
	}
	if writeTar {
		return base + "_bits.tar"
	}
	return base + "_bits"
}

func newDecomposeAllCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decompose-all DIR",
		Short: "Decompose every module of a directory tree",
		Long: `Decompose every unique module of the bundles found in a directory tree.

The partitions of the i:th module are written to the tar archive
"<output>/<i>.tar".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.decomposeAll(cmd.Context(), args[0])
		},
	}
	flags := cmd.Flags()
	flags.IntP("jobs", "j", 0, "number of concurrent decompositions; 0 to auto-detect")
	flags.Bool("extract-from-bundles", false, "decompose the main module of each bundle")
	flags.StringP("output", "o", "bits", "output directory of partition archives")
	a.bind(cmd, "jobs", "batch.jobs")
	a.bind(cmd, "extract-from-bundles", "batch.extract_from_bundles")
	a.bind(cmd, "output", "batch.out_dir")
	addDecomposeFlags(a, cmd)
	return cmd
}

// decomposeAll decomposes the modules of the bundles found in the given
// directory tree.
func (a *app) decomposeAll(ctx context.Context, dir string) error {
	c, err := a.loadBundles(dir)
	if err != nil {
		return errors.WithStack(err)
	}
	outDir := a.cfg.Batch.OutDir
	if err := a.fs.MkdirAll(outDir, 0755); err != nil {
		return errors.WithStack(err)
	}
	var jobs []decompose.Job
	addJob := func(name string, load func() (*module.Module, error)) {
		tarPath := filepath.Join(outDir, strconv.Itoa(len(jobs))+".tar")
		jobs = append(jobs, decompose.Job{
			Name: name,
			Load: load,
			Open: func() (decompose.Sink, error) {
				return decompose.NewTarSink(a.fs, tarPath)
			},
		})
	}
	if a.cfg.Batch.ExtractFromBundles {
		for _, bd := range c.Bundles {
			bundlePath := bd.Path
			addJob(bundlePath, func() (*module.Module, error) {
				b, err := bundle.Open(a.fs, bundlePath)
				if err != nil {
					return nil, errors.WithStack(err)
				}
				defer b.Close()
				return b.LoadModule(0)
			})
		}
	} else {
		for _, mi := range c.Modules {
			mi := mi
			addJob(mi.Location(), func() (*module.Module, error) {
				return c.Open(mi)
			})
		}
	}
	bopts := decompose.BatchOptions{
		Workers: a.cfg.Batch.Jobs,
		Progress: func(done, total int) {
			dbg.Printf("decomposed %d/%d", done, total)
		},
	}
	dbg.Printf("decomposing %d modules into %q.", len(jobs), outDir)
	opts := decomposeOptions(a.cfg.Decompose)
	// Concurrent runs would interleave their progress messages.
	opts.Logger = nil
	if err := decompose.DecomposeAll(ctx, jobs, opts, bopts); err != nil {
		return errors.WithStack(err)
	}
	return nil
}
