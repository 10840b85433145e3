package bulkdoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// Organization identifies the issuing body printed in document headers.
type Organization struct {
	Name      string `json:"name,omitempty"`
	ShortName string `json:"shortName,omitempty"` // SPPU, MU, DU, ...
	City      string `json:"city,omitempty"`
	Subtitle  string `json:"subtitle,omitempty"`
	Address   string `json:"address,omitempty"`
}

// Signatory is printed under the signature line of certificates and report cards.
type Signatory struct {
	Name  string `json:"name,omitempty"`
	Title string `json:"title,omitempty"`
}

// TemplateConfig is the set of style and branding choices shared by every
// record of one batch. The orchestrator works on a frozen copy, so edits made
// by the caller after a run has started never reach the documents.
type TemplateConfig struct {
	Kind          string            `json:"kind"`              // result, report-card, certificate
	Variant       string            `json:"variant,omitempty"` // layout variant, e.g. classic, modern
	AccentColor   string            `json:"accentColor,omitempty"`
	Organization  *Organization     `json:"organization,omitempty"`
	Signatory     *Signatory        `json:"signatory,omitempty"`
	ExamMonth     string            `json:"examMonth,omitempty"`
	ExamYear      string            `json:"examYear,omitempty"`
	ResultDate    string            `json:"resultDate,omitempty"` // printed as is, e.g. "17 Oct 2026"
	Term          string            `json:"term,omitempty"`
	Watermark     string            `json:"watermark,omitempty"`
	LogoPath      string            `json:"logoPath,omitempty"`
	ArchivePrefix string            `json:"archivePrefix,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// DefaultConfig returns the configuration used when the caller supplies none.
func DefaultConfig(kind string) TemplateConfig {
	return TemplateConfig{
		Kind:      kind,
		Variant:   "classic",
		ExamMonth: "APR/MAY",
		ExamYear:  "2024",
	}
}

// LoadConfig reads a JSON template configuration from path. Unknown fields are
// rejected so that typos surface instead of silently falling back to defaults.
func LoadConfig(path string) (TemplateConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return TemplateConfig{}, fmt.Errorf("bulkdoc: loading config: %w", err)
	}
	defer f.Close()
	return DecodeConfig(f)
}

// DecodeConfig decodes a JSON template configuration, applies defaults and validates it.
func DecodeConfig(r io.Reader) (TemplateConfig, error) {
	return DecodeConfigFor("", r)
}

// DecodeConfigFor is DecodeConfig with the kind chosen by the caller, e.g.
// from a command-line flag. A non-empty kind replaces the one in the JSON.
func DecodeConfigFor(kind string, r io.Reader) (TemplateConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return TemplateConfig{}, fmt.Errorf("bulkdoc: reading config: %w", err)
	}
	var cfg TemplateConfig
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return TemplateConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if kind != "" {
		cfg.Kind = kind
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return TemplateConfig{}, err
	}
	return cfg, nil
}

// WithDefaults fills unset fields from DefaultConfig.
func (c TemplateConfig) WithDefaults() TemplateConfig {
	def := DefaultConfig(c.Kind)
	if c.Variant == "" {
		c.Variant = def.Variant
	}
	if c.ExamMonth == "" {
		c.ExamMonth = def.ExamMonth
	}
	if c.ExamYear == "" {
		c.ExamYear = def.ExamYear
	}
	return c
}

// Validate checks the fields that renderers rely on.
func (c TemplateConfig) Validate() error {
	if strings.TrimSpace(c.Kind) == "" {
		return fmt.Errorf("%w: kind is required", ErrInvalidConfig)
	}
	if c.AccentColor != "" && !hexColor.MatchString(c.AccentColor) {
		return fmt.Errorf("%w: accentColor %q is not #rrggbb", ErrInvalidConfig, c.AccentColor)
	}
	return nil
}

// Freeze returns a deep copy of c that shares no mutable state with it.
func (c TemplateConfig) Freeze() TemplateConfig {
	out := c
	if c.Organization != nil {
		org := *c.Organization
		out.Organization = &org
	}
	if c.Signatory != nil {
		sig := *c.Signatory
		out.Signatory = &sig
	}
	if c.Extra != nil {
		out.Extra = make(map[string]string, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// OrgShortName returns the organization short name in upper case, or "".
func (c TemplateConfig) OrgShortName() string {
	if c.Organization == nil {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(c.Organization.ShortName))
}
