package main

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/chroma"
	"github.com/alecthomas/chroma/formatters"
	"github.com/alecthomas/chroma/formatters/html"
	"github.com/alecthomas/chroma/lexers"
	"github.com/alecthomas/chroma/styles"
	"github.com/llir/llvm/ir"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// sourceTmpl is the HTML page of syntax highlighted LLVM IR assembly.
var sourceTmpl = template.Must(template.New("source").Parse(`<!DOCTYPE html>
<html>
	<head>
		<meta charset="utf-8">
		<title>{{ .Title }}</title>
		<style>
{{ .CSS }}
		</style>
	</head>
	<body>
		<h1>{{ .Title }}</h1>
		<p>source_filename: <code>{{ .SourceFilename }}</code></p>
		{{ .LLVMCode }}
	</body>
</html>
`))

func newPrintSourceCmd(a *app) *cobra.Command {
	var (
		// Only print the source filename of the module.
		onlyPrintSource bool
		// Function to print; all of the module if empty.
		funcName string
		// Basic block to highlight in the printed function.
		blockName string
		// Write an HTML page to the given path.
		htmlPath string
	)
	cmd := &cobra.Command{
		Use:   "printsource FILE.ll",
		Short: "Print source information of a module",
		Long: `Print the source filename of a module followed by its syntax highlighted
LLVM IR assembly ("-" reads from standard input).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(blockName) > 0 && len(funcName) == 0 {
				return errors.New("--block requires --func")
			}
			return a.printSource(args[0], onlyPrintSource, funcName, blockName, htmlPath)
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&onlyPrintSource, "only-print-source", false, "only print the source filename")
	flags.StringVar(&funcName, "func", "", "function to print")
	flags.StringVar(&blockName, "block", "", "basic block to highlight (requires --func)")
	flags.StringVar(&htmlPath, "html", "", "write HTML page to the given file")
	flags.String("style", "monokai", "style used for syntax highlighting")
	a.bind(cmd, "style", "source.style")
	return cmd
}

// printSource prints the source filename of the given LLVM IR module, followed
// by its LLVM IR assembly.
//
// - funcName specifies the function to print; all of the module if empty.
//
// - blockName specifies the basic block of the function to highlight.
//
// - htmlPath specifies the HTML page to write; standard output is used if
//   empty.
func (a *app) printSource(llPath string, onlyPrintSource bool, funcName, blockName, htmlPath string) error {
	m, err := a.parseModule(llPath)
	if err != nil {
		return errors.WithStack(err)
	}
	srcName := m.IR().SourceFilename
	if len(srcName) == 0 {
		return errors.Errorf("module %q has no source_filename", llPath)
	}
	fmt.Println(srcName)
	if onlyPrintSource {
		return nil
	}
	title := llPath
	llvmSource := m.String()
	var lines [][2]int
	if len(funcName) > 0 {
		f, err := findFunc(m.IR(), funcName)
		if err != nil {
			return errors.WithStack(err)
		}
		title = f.Ident()
		llvmSource = f.LLString()
		if len(blockName) > 0 {
			block, err := findBlock(f, blockName)
			if err != nil {
				return errors.WithStack(err)
			}
			lines = append(lines, findBlockLineRange(f, block))
		}
	}
	iterator, err := llvmLexer().Tokenise(nil, llvmSource)
	if err != nil {
		return errors.WithStack(err)
	}
	style := chromaStyle(a.cfg.Source.Style)
	if len(htmlPath) == 0 {
		formatter := formatters.Get("terminal256")
		if formatter == nil {
			formatter = formatters.Fallback
		}
		return errors.WithStack(formatter.Format(os.Stdout, style, iterator))
	}
	htmlContent := &bytes.Buffer{}
	if err := a.writeSourceHTML(htmlContent, title, srcName, style, iterator, lines); err != nil {
		return errors.WithStack(err)
	}
	dbg.Printf("creating file %q", htmlPath)
	if err := afero.WriteFile(a.fs, htmlPath, htmlContent.Bytes(), 0644); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// writeSourceHTML writes an HTML page of the syntax highlighted LLVM IR
// assembly to w, highlighting the specified lines.
func (a *app) writeSourceHTML(w io.Writer, title, srcName string, style *chroma.Style, iterator chroma.Iterator, lines [][2]int) error {
	formatter := html.New(
		html.TabWidth(a.cfg.Source.TabWidth),
		html.WithLineNumbers(),
		html.WithClasses(),
		html.LineNumbersInTable(),
		html.HighlightLines(lines),
	)
	cssContent := &bytes.Buffer{}
	if err := formatter.WriteCSS(cssContent, style); err != nil {
		return errors.WithStack(err)
	}
	llvmCode := &bytes.Buffer{}
	if err := formatter.Format(llvmCode, style, iterator); err != nil {
		return errors.WithStack(err)
	}
	data := map[string]interface{}{
		"Title":          title,
		"SourceFilename": srcName,
		"CSS":            template.CSS(cssContent.String()),
		"LLVMCode":       template.HTML(llvmCode.String()),
	}
	if err := sourceTmpl.Execute(w, data); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// llvmLexer returns the Chroma LLVM IR lexer.
func llvmLexer() chroma.Lexer {
	lexer := lexers.Get("llvm")
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return lexer
}

// chromaStyle returns the Chroma style with the given name.
func chromaStyle(name string) *chroma.Style {
	style := styles.Get(name)
	if style == nil {
		style = styles.Fallback
	}
	return style
}

// findBlockLineRange returns the line range (1-based: [start, end]) of the
// basic block in the given function.
func findBlockLineRange(f *ir.Func, block *ir.Block) [2]int {
	funcStr := f.LLString()
	blockStr := block.LLString()
	pos := strings.Index(funcStr, blockStr)
	if pos == -1 {
		panic(fmt.Errorf("unable to locate contents of basic block %s in contents of function %s", block.Ident(), f.Ident()))
	}
	before := funcStr[:pos]
	start := 1 + strings.Count(before, "\n")
	n := strings.Count(blockStr, "\n")
	end := start + n
	return [2]int{start, end}
}
