package bulkdoc

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDecodeConfigDefaults(t *testing.T) {
	cfg, err := DecodeConfig(strings.NewReader(`{"kind":"result","organization":{"shortName":"mu"}}`))
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	if cfg.Variant != "classic" || cfg.ExamYear != "2024" || cfg.ExamMonth != "APR/MAY" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.OrgShortName() != "MU" {
		t.Errorf("OrgShortName = %q", cfg.OrgShortName())
	}
}

func TestDecodeConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"unknown field", `{"kind":"result","colour":"red"}`},
		{"missing kind", `{"variant":"modern"}`},
		{"bad accent", `{"kind":"certificate","accentColor":"blue"}`},
		{"not json", `kind=result`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeConfig(strings.NewReader(tt.in))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	if err := os.WriteFile(path, []byte(`{"kind":"certificate","variant":"elegant","accentColor":"#1f4e79"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Variant != "elegant" {
		t.Errorf("Variant = %q", cfg.Variant)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDecodeConfigFor(t *testing.T) {
	cfg, err := DecodeConfigFor("certificate", strings.NewReader(`{"variant":"modern"}`))
	if err != nil {
		t.Fatalf("DecodeConfigFor: %v", err)
	}
	if cfg.Kind != "certificate" || cfg.Variant != "modern" {
		t.Errorf("cfg = %+v", cfg)
	}
	cfg, err = DecodeConfigFor("result", strings.NewReader(`{"kind":"certificate"}`))
	if err != nil || cfg.Kind != "result" {
		t.Errorf("kind override: %q, %v", cfg.Kind, err)
	}
	if _, err := DecodeConfigFor("", strings.NewReader(`{}`)); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("missing kind: %v", err)
	}
}

func TestFreezeIsDeepCopy(t *testing.T) {
	cfg := TemplateConfig{
		Kind:         "result",
		Organization: &Organization{Name: "Original"},
		Signatory:    &Signatory{Name: "Registrar"},
		Extra:        map[string]string{"k": "v"},
	}
	frozen := cfg.Freeze()

	cfg.Organization.Name = "Changed"
	cfg.Signatory.Name = "Changed"
	cfg.Extra["k"] = "changed"

	if frozen.Organization.Name != "Original" {
		t.Error("organization shared with frozen copy")
	}
	if frozen.Signatory.Name != "Registrar" {
		t.Error("signatory shared with frozen copy")
	}
	if frozen.Extra["k"] != "v" {
		t.Error("extra map shared with frozen copy")
	}
}
