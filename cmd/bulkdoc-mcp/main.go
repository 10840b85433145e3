// Command bulkdoc-mcp is an MCP (Model Context Protocol) server that exposes
// bulk document generation to AI assistants.
//
// # Installation
//
//	go install github.com/lvillar/bulkdoc/cmd/bulkdoc-mcp@latest
//
// # Configuration for Claude Desktop
//
// Add to ~/.config/claude/claude_desktop_config.json:
//
//	{
//	  "mcpServers": {
//	    "bulkdoc": {
//	      "command": "bulkdoc-mcp",
//	      "args": ["--workers", "4"]
//	    }
//	  }
//	}
//
// # Available Tools
//
//   - generate_bulk: Generate and archive one document per row
//   - sample_template: Write a sample spreadsheet for a kind
//   - preview_record: Render one row as HTML
//   - list_kinds: List document kinds and columns
//   - merge_pdfs: Merge PDFs into a numbered booklet
//
// # Available Resources
//
//   - bulkdoc://kinds : Registered document kinds
//   - bulkdoc://schema?kind=... : Column layout and sample rows
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lvillar/bulkdoc/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := append([]string{"mcp"}, os.Args[1:]...)
	if err := cli.Run(ctx, args, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "bulkdoc-mcp: %v\n", err)
		os.Exit(1)
	}
}
