package templates

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lvillar/bulkdoc"
	"github.com/lvillar/bulkdoc/doctpl"
)

// Certificate column names.
const (
	ColRecipientName  = "Recipient Name"
	ColTitle          = "Title"
	ColDescription    = "Description"
	ColIssuer         = "Issuer"
	ColDate           = "Date"
	ColSignatory      = "Signatory"
	ColSignatoryTitle = "Signatory Title"
)

// Palette is the colour scheme of a certificate variant.
type Palette struct {
	Border, Header, Background string
	Title                      string // default title
}

// CertificateVariants maps variant names to their palette.
var CertificateVariants = map[string]Palette{
	"classic":      {"#1e40af", "#1e3a8a", "#eff6ff", "CERTIFICATE OF EXCELLENCE"},
	"modern":       {"#9333ea", "#581c87", "#f3e8ff", "CERTIFICATE OF RECOGNITION"},
	"elegant":      {"#15803d", "#14532d", "#ecfdf5", "CERTIFICATE OF HONOR"},
	"achievement":  {"#ea580c", "#7c2d12", "#fff7ed", "CERTIFICATE OF ACHIEVEMENT"},
	"completion":   {"#0f766e", "#134e4a", "#f0fdfa", "CERTIFICATE OF COMPLETION"},
	"appreciation": {"#dc2626", "#7f1d1d", "#fef2f2", "CERTIFICATE OF APPRECIATION"},
}

// Certificate renders an award certificate in one of the palette variants.
type Certificate struct{}

func (Certificate) Kind() string             { return "certificate" }
func (Certificate) DocumentKind() string     { return "Certificate" }
func (Certificate) IdentifyingField() string { return ColRecipientName }

// Schema implements Renderer.
func (Certificate) Schema() bulkdoc.Schema {
	return bulkdoc.Schema{
		Kind:      "certificate",
		SheetName: "Recipients",
		Columns: []string{
			ColRecipientName, ColTitle, ColDescription, ColIssuer,
			ColDate, ColSignatory, ColSignatoryTitle,
		},
		Samples: []map[string]string{
			{
				ColRecipientName:  "John Doe",
				ColTitle:          "Completed the Advanced Go Workshop",
				ColDescription:    "For outstanding participation and dedication throughout the program.",
				ColIssuer:         "Tech Academy",
				ColDate:           "2024-06-15",
				ColSignatory:      "Dr. Sarah Johnson",
				ColSignatoryTitle: "Director",
			},
			{
				ColRecipientName:  "Jane Smith",
				ColTitle:          "Completed the Advanced Go Workshop",
				ColDescription:    "For exceptional project work and peer mentoring.",
				ColIssuer:         "Tech Academy",
				ColDate:           "2024-06-15",
				ColSignatory:      "Dr. Sarah Johnson",
				ColSignatoryTitle: "Director",
			},
		},
	}
}

// ValidateConfig rejects variants without a palette.
func (Certificate) ValidateConfig(cfg bulkdoc.TemplateConfig) error {
	v := variantName(cfg)
	if _, ok := CertificateVariants[v]; ok {
		return nil
	}
	known := make([]string, 0, len(CertificateVariants))
	for k := range CertificateVariants {
		known = append(known, k)
	}
	sort.Strings(known)
	return fmt.Errorf("%w: unknown certificate variant %q (known: %s)", bulkdoc.ErrInvalidConfig, cfg.Variant, strings.Join(known, ", "))
}

func variantName(cfg bulkdoc.TemplateConfig) string {
	v := strings.ToLower(strings.TrimSpace(cfg.Variant))
	if v == "" {
		return "classic"
	}
	return v
}

// FormatIssueDate turns an ISO date into "January 2, 2006"; other values are
// returned unchanged.
func FormatIssueDate(s string) string {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return s
	}
	return t.Format("January 2, 2006")
}

// Render implements Renderer.
func (c Certificate) Render(rec bulkdoc.Record, cfg bulkdoc.TemplateConfig) (*doctpl.Document, error) {
	if err := c.ValidateConfig(cfg); err != nil {
		return nil, renderError(c, rec, err)
	}
	pal := CertificateVariants[variantName(cfg)]
	border := accent(cfg, rgb(pal.Border))
	header := rgb(pal.Header)
	bg := rgb(pal.Background)
	grey := doctpl.Color{R: 75, G: 85, B: 99}

	recipient := rec.Value(ColRecipientName, "RECIPIENT NAME")
	issuer := rec.Value(ColIssuer, "")
	if issuer == "" && cfg.Organization != nil {
		issuer = cfg.Organization.Name
	}
	date := FormatIssueDate(rec.Value(ColDate, cfg.ResultDate))

	signer := doctpl.Field{Label: "Authorized Signatory", Value: "Title"}
	if cfg.Signatory != nil {
		if cfg.Signatory.Name != "" {
			signer.Label = cfg.Signatory.Name
		}
		if cfg.Signatory.Title != "" {
			signer.Value = cfg.Signatory.Title
		}
	}
	signer.Label = rec.Value(ColSignatory, signer.Label)
	signer.Value = rec.Value(ColSignatoryTitle, signer.Value)

	blocks := logoBlock(cfg, 80)
	blocks = append(blocks,
		doctpl.Block{Type: doctpl.TypeSpacer, Height: 24},
		doctpl.Block{Type: doctpl.TypeHeading, Text: pal.Title, Level: 1, Align: "C", Color: &header},
		doctpl.Block{Type: doctpl.TypeRule, Color: &border, LineWidth: 3, Width: 128, Align: "C"},
		doctpl.Block{Type: doctpl.TypeSpacer, Height: 16},
		doctpl.Block{Type: doctpl.TypeText, Text: "This is to certify that", Align: "C", Color: &grey, Font: &doctpl.Font{Size: 18}},
		doctpl.Block{Type: doctpl.TypeHeading, Text: recipient, Level: 1, Align: "C", Color: &header, Font: &doctpl.Font{Family: "serif", Style: "BI", Size: 30}},
		doctpl.Block{Type: doctpl.TypeText, Text: "has successfully", Align: "C", Color: &grey, Font: &doctpl.Font{Size: 18}},
		doctpl.Block{Type: doctpl.TypeHeading, Text: rec.Value(ColTitle, "CERTIFICATE TITLE"), Level: 2, Align: "C", Color: &header},
	)
	if d := rec.Value(ColDescription, ""); d != "" {
		blocks = append(blocks, doctpl.Block{Type: doctpl.TypeText, Text: d, Align: "C", Color: &grey})
	}
	blocks = append(blocks,
		doctpl.Block{Type: doctpl.TypeSpacer, Height: 32},
		doctpl.Block{Type: doctpl.TypeFields, GridColumns: 2, Fields: []doctpl.Field{
			{Label: "Date of Issue", Value: date},
			{Label: "Issued by", Value: issuer},
		}},
		doctpl.Block{Type: doctpl.TypeSignature, Fields: []doctpl.Field{signer}, Align: "C"},
	)
	if code := strings.Trim(issuer+"|"+rec.Value(ColRecipientName, "")+"|"+date, "|"); code != "" {
		blocks = append(blocks, doctpl.Block{
			Type:    doctpl.TypeBarcode,
			Barcode: &doctpl.Barcode{Kind: doctpl.BarcodePDF417, Data: issuer + "|" + rec.Value(ColRecipientName, "") + "|" + date},
			Align:   "C",
		})
	}

	return &doctpl.Document{
		Title:      recipient + " Certificate",
		Author:     issuer,
		Width:      doctpl.A4Width,
		MinHeight:  1123,
		Padding:    48,
		Font:       &doctpl.Font{Family: "serif", Size: 16},
		Background: &bg,
		Border:     &doctpl.Border{Color: border, Width: 6, Double: true},
		Blocks:     blocks,
	}, nil
}
