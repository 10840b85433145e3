package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/lvillar/bulkdoc/pipeline"
	"github.com/lvillar/bulkdoc/sheet"
	"github.com/lvillar/bulkdoc/templates"
)

// RegisterDefaultResources adds the read-only bulkdoc:// resources.
func RegisterDefaultResources(s *Server) {
	s.AddResource(Resource{
		URI:         "bulkdoc://kinds",
		Name:        "Document Kinds",
		Description: "The registered document kinds with their identifying field and columns.",
		MIMEType:    "application/json",
		Handler:     handleKindsResource,
	})

	s.AddResource(Resource{
		URI:         "bulkdoc://schema",
		Name:        "Spreadsheet Schema",
		Description: "Column layout and example rows for one kind. Pass the kind as a query parameter: bulkdoc://schema?kind=result",
		MIMEType:    "application/json",
		Handler:     handleSchemaResource,
	})
}

func queryParam(uri, key string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return u.Query().Get(key)
}

func handleKindsResource(ctx context.Context, uri string) ([]ResourceContent, error) {
	jsonBytes, err := json.MarshalIndent(pipeline.Kinds(), "", "  ")
	if err != nil {
		return nil, err
	}
	return []ResourceContent{{URI: uri, MIMEType: "application/json", Text: string(jsonBytes)}}, nil
}

func handleSchemaResource(ctx context.Context, uri string) ([]ResourceContent, error) {
	kind := queryParam(uri, "kind")
	if kind == "" {
		return nil, fmt.Errorf("missing 'kind' parameter in URI")
	}
	rd, err := templates.Lookup(kind)
	if err != nil {
		return nil, err
	}
	schema := rd.Schema()
	rows := sheet.SampleRows(schema)

	info := map[string]interface{}{
		"kind":             rd.Kind(),
		"documentKind":     rd.DocumentKind(),
		"identifyingField": rd.IdentifyingField(),
		"sheetName":        schema.SheetName,
		"header":           rows[0],
		"samples":          rows[1:],
	}
	if se := schema.SubEntity; se != nil {
		info["repeated"] = map[string]interface{}{
			"prefix":    se.Prefix,
			"codeField": se.CodeField,
			"fields":    se.Fields,
			"pattern":   se.Prefix + "<n>_<field>",
		}
	}

	jsonBytes, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, err
	}
	return []ResourceContent{{URI: uri, MIMEType: "application/json", Text: string(jsonBytes)}}, nil
}
