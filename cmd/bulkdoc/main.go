// Command bulkdoc generates one document per spreadsheet row and packs them
// into a ZIP archive.
//
//	bulkdoc sample --kind result
//	bulkdoc generate --kind result --workers 4 students.xlsx
//	bulkdoc serve --addr :8080
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lvillar/bulkdoc/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "bulkdoc:", err)
	if errors.Is(err, cli.ErrAllFailed) {
		os.Exit(2)
	}
	os.Exit(1)
}
