package main

import (
	"path/filepath"
	"strconv"

	"github.com/mewmew/allplay/internal/bundle"
	"github.com/mewmew/allplay/internal/decompose"
	dircopy "github.com/otiai10/copy"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newPackCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pack OUT FILE.ll...",
		Short: "Create a bundle of modules",
		Long: `Create a bundle of modules. The first module is the main module
of the bundle.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.pack(args[0], args[1:])
		},
	}
}

// pack creates a bundle containing the given LLVM IR modules.
func (a *app) pack(bundlePath string, llPaths []string) error {
	if filepath.Ext(bundlePath) != bundle.Ext {
		warn.Printf("bundle %q lacks the %q extension and will not be cataloged", bundlePath, bundle.Ext)
	}
	w, err := bundle.Create(a.fs, bundlePath)
	if err != nil {
		return errors.WithStack(err)
	}
	for _, llPath := range llPaths {
		m, err := a.parseModule(llPath)
		if err != nil {
			w.Close()
			return errors.WithStack(err)
		}
		if err := w.AddModule(m); err != nil {
			w.Close()
			return errors.WithStack(err)
		}
	}
	dbg.Printf("creating bundle %q of %d modules", bundlePath, len(llPaths))
	return errors.WithStack(w.Close())
}

func newCollectCmd(a *app) *cobra.Command {
	var (
		// Output directory.
		output string
		// Force overwrite existing output directory.
		force bool
	)
	cmd := &cobra.Command{
		Use:   "collect DIR",
		Short: "Copy the unique loose modules of a directory tree",
		Long: `Copy the unique loose modules (*.ll) of a directory tree. The i:th
module is copied to "<output>/<i>.ll".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.collect(args[0], output, force)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output directory")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "force overwrite existing output directory")
	cmd.MarkFlagRequired("output")
	return cmd
}

// collect copies the unique loose modules of the given directory tree to the
// output directory.
func (a *app) collect(dir, outputDir string, force bool) error {
	if _, ok := a.fs.(*afero.OsFs); !ok {
		return errors.Errorf("collect requires the operating system file system")
	}
	c, err := a.loadModules(dir)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := decompose.CreateOutputDir(a.fs, outputDir, force); err != nil {
		return errors.WithStack(err)
	}
	for i, mi := range c.Modules {
		dstPath := filepath.Join(outputDir, strconv.Itoa(i)+".ll")
		if err := dircopy.Copy(mi.Path, dstPath); err != nil {
			return errors.WithStack(err)
		}
	}
	dbg.Printf("copied %d unique modules to %q", len(c.Modules), outputDir)
	return nil
}
