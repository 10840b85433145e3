package mcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lvillar/bulkdoc"
	"github.com/lvillar/bulkdoc/pageops"
	"github.com/lvillar/bulkdoc/pipeline"
	"github.com/lvillar/bulkdoc/preview"
	"github.com/lvillar/bulkdoc/sheet"
	"github.com/lvillar/bulkdoc/templates"
)

// RegisterDefaultTools adds the bulk generation tools to the server. Jobs run
// on runner.
func RegisterDefaultTools(s *Server, runner *pipeline.Runner) {
	ts := &toolset{runner: runner, preview: preview.New(), now: time.Now}
	s.AddTool(ts.generateTool())
	s.AddTool(sampleTool())
	s.AddTool(ts.previewTool())
	s.AddTool(listKindsTool())
	s.AddTool(mergePDFsTool())
}

type toolset struct {
	runner  *pipeline.Runner
	preview *preview.Previewer
	now     func() time.Time
}

var inputProperties = map[string]interface{}{
	"inputPath": map[string]interface{}{
		"type":        "string",
		"description": "Path to a .xlsx, .csv or .tsv file with one record per row",
	},
	"inputBase64": map[string]interface{}{
		"type":        "string",
		"description": "Spreadsheet content as base64, used when inputPath is omitted",
	},
	"fileName": map[string]interface{}{
		"type":        "string",
		"description": "Name of the base64 upload; its extension selects the parser",
	},
	"kind": map[string]interface{}{
		"type":        "string",
		"description": "Document kind: result, report-card or certificate",
	},
	"config": map[string]interface{}{
		"type":        "object",
		"description": "Template configuration (organization, styling, variant, archivePrefix, ...)",
	},
}

func withInput(extra map[string]interface{}) map[string]interface{} {
	props := make(map[string]interface{}, len(inputProperties)+len(extra))
	for k, v := range inputProperties {
		props[k] = v
	}
	for k, v := range extra {
		props[k] = v
	}
	return props
}

func (ts *toolset) generateTool() Tool {
	return Tool{
		Name:        "generate_bulk",
		Description: "Generate one document per spreadsheet row and package them into a ZIP archive. Returns a JSON report with per-row failures. The archive is written to outputPath or returned as base64.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": withInput(map[string]interface{}{
				"format": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"pdf", "png"},
					"description": "Output file format (default: pdf)",
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"raster", "vector"},
					"description": "raster draws a page image; vector writes native PDF text (pdf only)",
				},
				"select": map[string]interface{}{
					"type":        "string",
					"description": "1-based records to generate, e.g. \"1,3-5\"",
				},
				"booklet": map[string]interface{}{
					"type":        "boolean",
					"description": "Also combine all PDFs into a single booklet",
				},
				"outputPath": map[string]interface{}{
					"type":        "string",
					"description": "Optional path for the ZIP archive. If omitted, returns base64.",
				},
			}),
			"required": []string{"kind"},
		},
		Handler: ts.handleGenerate,
	}
}

func (ts *toolset) handleGenerate(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	name, data, err := readInput(args)
	if err != nil {
		return ToolResult{}, err
	}
	cfg, err := decodeConfig(args)
	if err != nil {
		return ToolResult{}, err
	}
	sel, err := pipeline.ParseSelect(getString(args, "select"))
	if err != nil {
		return ToolResult{}, err
	}
	booklet, _ := args["booklet"].(bool)

	out, err := ts.runner.Run(ctx, pipeline.Job{
		Source:  name,
		Input:   bytes.NewReader(data),
		Config:  cfg,
		Mode:    pipeline.Mode(getString(args, "mode")),
		Format:  getString(args, "format"),
		Select:  sel,
		Booklet: booklet,
	}, nil)
	if err != nil {
		return ToolResult{}, fmt.Errorf("generating: %w", err)
	}

	report, _ := json.MarshalIndent(out.Report(), "", "  ")
	result := ToolResult{Content: []ContentBlock{{Type: "text", Text: string(report)}}}
	if out.AllFailed() {
		result.IsError = true
		return result, nil
	}

	archive := out.Archive.File()
	if outputPath := getString(args, "outputPath"); outputPath != "" {
		if err := os.WriteFile(outputPath, archive.Data, 0o644); err != nil {
			return ToolResult{}, fmt.Errorf("writing archive: %w", err)
		}
		msg := fmt.Sprintf("Archive saved to %s (%d bytes)", outputPath, len(archive.Data))
		if out.Booklet != nil {
			bp := filepath.Join(filepath.Dir(outputPath), out.Booklet.Name)
			if err := os.WriteFile(bp, out.Booklet.Data, 0o644); err != nil {
				return ToolResult{}, fmt.Errorf("writing booklet: %w", err)
			}
			msg += fmt.Sprintf("\nBooklet saved to %s", bp)
		}
		result.Content = append(result.Content, ContentBlock{Type: "text", Text: msg})
		return result, nil
	}

	result.Content = append(result.Content, fileBlock(archive))
	if out.Booklet != nil {
		result.Content = append(result.Content, fileBlock(*out.Booklet))
	}
	return result, nil
}

func sampleTool() Tool {
	return Tool{
		Name:        "sample_template",
		Description: "Create a sample spreadsheet with the columns a document kind expects, filled with example rows.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"kind": map[string]interface{}{
					"type":        "string",
					"description": "Document kind: result, report-card or certificate",
				},
				"format": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"xlsx", "csv"},
					"description": "Spreadsheet format (default: xlsx)",
				},
				"outputPath": map[string]interface{}{
					"type":        "string",
					"description": "Optional file path to save the sample. If omitted, returns base64.",
				},
			},
			"required": []string{"kind"},
		},
		Handler: handleSample,
	}
}

func handleSample(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	rd, err := templates.Lookup(getString(args, "kind"))
	if err != nil {
		return ToolResult{}, err
	}
	format, err := sheet.ParseFormat(getString(args, "format"))
	if err != nil {
		return ToolResult{}, err
	}
	var buf bytes.Buffer
	if err := sheet.WriteSample(&buf, rd.Schema(), format); err != nil {
		return ToolResult{}, err
	}
	name := sheet.SampleFileName(rd.Kind(), format)

	if outputPath := getString(args, "outputPath"); outputPath != "" {
		if err := os.WriteFile(outputPath, buf.Bytes(), 0o644); err != nil {
			return ToolResult{}, fmt.Errorf("writing sample: %w", err)
		}
		return textResult(fmt.Sprintf("Sample saved to %s (%d bytes)", outputPath, buf.Len())), nil
	}
	if format == sheet.FormatCSV {
		return textResult(buf.String()), nil
	}
	return ToolResult{Content: []ContentBlock{
		{Type: "text", Text: name},
		{Type: "resource", MIMEType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", Data: base64.StdEncoding.EncodeToString(buf.Bytes())},
	}}, nil
}

func (ts *toolset) previewTool() Tool {
	return Tool{
		Name:        "preview_record",
		Description: "Render one spreadsheet record as an HTML page showing the document it would produce.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": withInput(map[string]interface{}{
				"row": map[string]interface{}{
					"type":        "integer",
					"description": "1-based record number (default: 1)",
				},
			}),
			"required": []string{"kind"},
		},
		Handler: ts.handlePreview,
	}
}

func (ts *toolset) handlePreview(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	name, data, err := readInput(args)
	if err != nil {
		return ToolResult{}, err
	}
	cfg, err := decodeConfig(args)
	if err != nil {
		return ToolResult{}, err
	}
	rd, cfg, err := pipeline.Prepare(cfg)
	if err != nil {
		return ToolResult{}, err
	}
	recs, err := sheet.Parse(name, bytes.NewReader(data))
	if err != nil {
		return ToolResult{}, err
	}
	n := 1
	if v, ok := args["row"].(float64); ok {
		n = int(v)
	}
	if n < 1 || n > len(recs) {
		return ToolResult{}, fmt.Errorf("row %d out of range, file has %d records", n, len(recs))
	}
	if cfg.ResultDate == "" {
		cfg.ResultDate = ts.now().Format(pipeline.ResultDateLayout)
	}
	var buf bytes.Buffer
	if err := ts.preview.Record(ctx, &buf, rd, recs[n-1], cfg); err != nil {
		return ToolResult{}, err
	}
	return ToolResult{Content: []ContentBlock{{Type: "text", MIMEType: "text/html", Text: buf.String()}}}, nil
}

func listKindsTool() Tool {
	return Tool{
		Name:        "list_kinds",
		Description: "List the document kinds and the spreadsheet columns each one reads.",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
			jsonBytes, _ := json.MarshalIndent(pipeline.Kinds(), "", "  ")
			return textResult(string(jsonBytes)), nil
		},
	}
}

func mergePDFsTool() Tool {
	return Tool{
		Name:        "merge_pdfs",
		Description: "Merge PDF files into a single booklet with page numbers and one bookmark per file.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"inputPaths": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Paths to PDF files to merge, in order",
				},
				"outputPath": map[string]interface{}{
					"type":        "string",
					"description": "Path for the merged output PDF",
				},
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Document title",
				},
				"watermark": map[string]interface{}{
					"type":        "string",
					"description": "Optional watermark text stamped on every page",
				},
				"pageNumbers": map[string]interface{}{
					"type":        "boolean",
					"description": "Number pages as \"Page N of M\" (default: true)",
				},
				"position": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"bottom-center", "bottom-left", "bottom-right", "top-left", "top-center", "top-right"},
					"description": "Page number position (default: bottom-center)",
				},
			},
			"required": []string{"inputPaths", "outputPath"},
		},
		Handler: handleMergePDFs,
	}
}

func handleMergePDFs(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	pathsRaw, ok := args["inputPaths"].([]interface{})
	if !ok {
		return ToolResult{}, fmt.Errorf("missing 'inputPaths' argument")
	}
	outputPath, ok := args["outputPath"].(string)
	if !ok {
		return ToolResult{}, fmt.Errorf("missing 'outputPath' argument")
	}

	paths := make([]string, len(pathsRaw))
	for i, p := range pathsRaw {
		paths[i], _ = p.(string)
	}

	opts := pageops.BookletOptions{Title: getString(args, "title"), Bookmarks: true}
	if numbered, ok := args["pageNumbers"].(bool); !ok || numbered {
		opts.PageNumbers = &pageops.PageNumberStyle{Position: parsePosition(getString(args, "position"))}
	}
	if text := getString(args, "watermark"); text != "" {
		opts.Watermark = &pageops.TextWatermark{Text: text}
	}

	if err := pageops.BookletFiles(outputPath, opts, paths...); err != nil {
		return ToolResult{}, fmt.Errorf("merging: %w", err)
	}
	return textResult(fmt.Sprintf("Merged %d PDFs into %s", len(paths), outputPath)), nil
}

// readInput returns the upload name and bytes from inputPath or inputBase64.
func readInput(args map[string]interface{}) (string, []byte, error) {
	if path := getString(args, "inputPath"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", nil, fmt.Errorf("reading input: %w", err)
		}
		return filepath.Base(path), data, nil
	}
	encoded := getString(args, "inputBase64")
	if encoded == "" {
		return "", nil, fmt.Errorf("missing 'inputPath' or 'inputBase64' argument")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("decoding inputBase64: %w", err)
	}
	name := getString(args, "fileName")
	if name == "" {
		name = "upload.csv"
	}
	return name, data, nil
}

// decodeConfig builds the template configuration from the kind and config
// arguments. The kind argument wins over a kind inside config.
func decodeConfig(args map[string]interface{}) (bulkdoc.TemplateConfig, error) {
	kind := getString(args, "kind")
	raw, ok := args["config"]
	if !ok || raw == nil {
		return bulkdoc.DefaultConfig(kind), nil
	}
	jsonBytes, err := json.Marshal(raw)
	if err != nil {
		return bulkdoc.TemplateConfig{}, fmt.Errorf("invalid config: %w", err)
	}
	return bulkdoc.DecodeConfigFor(kind, bytes.NewReader(jsonBytes))
}

func getString(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

func textResult(text string) ToolResult {
	return ToolResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

func fileBlock(f bulkdoc.ExportedFile) ContentBlock {
	return ContentBlock{
		Type:     "resource",
		Text:     f.Name,
		MIMEType: f.MIMEType,
		Data:     base64.StdEncoding.EncodeToString(f.Data),
	}
}

func parsePosition(s string) pageops.Position {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "")) {
	case "topleft":
		return pageops.TopLeft
	case "topcenter":
		return pageops.TopCenter
	case "topright":
		return pageops.TopRight
	case "bottomleft":
		return pageops.BottomLeft
	case "bottomright":
		return pageops.BottomRight
	default:
		return pageops.BottomCenter
	}
}
