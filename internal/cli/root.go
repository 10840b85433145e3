// Package cli implements the bulkdoc command line.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// ErrAllFailed is returned by generate when every selected record failed.
var ErrAllFailed = errors.New("every record failed")

type app struct {
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader
	// tty reports whether w is an interactive terminal.
	tty func(w io.Writer) bool
}

// Run executes the command named by args[0]. Output goes to stdout and
// diagnostics to stderr.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{stdout: stdout, stderr: stderr, stdin: os.Stdin, tty: isTerminal}
	return a.run(ctx, args)
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.printUsage()
		return nil
	}

	var err error
	switch args[0] {
	case "generate":
		err = a.runGenerate(ctx, args[1:])
	case "sample":
		err = a.runSample(args[1:])
	case "preview":
		err = a.runPreview(ctx, args[1:])
	case "kinds":
		err = a.runKinds(args[1:])
	case "merge":
		err = a.runMerge(args[1:])
	case "serve":
		err = a.runServe(ctx, args[1:])
	case "mcp":
		err = a.runMCP(ctx, args[1:])
	case "help", "-h", "--help":
		a.printUsage()
		return nil
	default:
		a.printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	return err
}

func (a *app) printUsage() {
	w := a.stderr
	fmt.Fprintln(w, "bulkdoc: generate one document per spreadsheet row")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  bulkdoc generate --kind result students.xlsx")
	fmt.Fprintln(w, "  bulkdoc sample --kind report-card")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  generate  render, export and archive every row of a spreadsheet")
	fmt.Fprintln(w, "  sample    write a sample spreadsheet for a document kind")
	fmt.Fprintln(w, "  preview   render one row as an HTML page")
	fmt.Fprintln(w, "  kinds     list document kinds and their columns")
	fmt.Fprintln(w, "  merge     combine PDF files into a numbered booklet")
	fmt.Fprintln(w, "  serve     run the HTTP API")
	fmt.Fprintln(w, "  mcp       run the MCP server on stdio")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  BULKDOC_WORKERS, BULKDOC_TIMEOUT, BULKDOC_LOG_LEVEL, BULKDOC_LOG_FORMAT, BULKDOC_ADDR")
}

func (a *app) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
