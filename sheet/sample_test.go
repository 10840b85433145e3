package sheet

import (
	"bytes"
	"testing"
)

func TestSampleFileName(t *testing.T) {
	if got := SampleFileName("result", FormatXLSX); got != "bulk_result_sample.xlsx" {
		t.Errorf("SampleFileName = %q", got)
	}
	if got := SampleFileName("report-card", FormatCSV); got != "bulk_report_card_sample.csv" {
		t.Errorf("SampleFileName = %q", got)
	}
}

func TestSampleHeader(t *testing.T) {
	want := []string{
		"Student Name", "Seat No",
		"Subject1_Code", "Subject1_Name", "Subject1_Credits",
		"Subject2_Code", "Subject2_Name", "Subject2_Credits",
	}
	got := testSchema.Header()
	if len(got) != len(want) {
		t.Fatalf("Header = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("column %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWriteSampleRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatXLSX, FormatCSV} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteSample(&buf, testSchema, format); err != nil {
				t.Fatalf("WriteSample: %v", err)
			}
			t.Logf("%s sample: %d bytes", format, buf.Len())

			recs, err := Parse(SampleFileName("result", format), &buf)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if len(recs) != len(testSchema.Samples) {
				t.Fatalf("expected %d records, got %d", len(testSchema.Samples), len(recs))
			}
			if unknown := UnknownColumns(recs, testSchema); len(unknown) != 0 {
				t.Errorf("sample has unrecognized columns: %v", unknown)
			}
			if n := recs[0].SubEntityCount("Subject", "Code"); n != 1 {
				t.Errorf("SubEntityCount = %d, want 1", n)
			}
			if v, _ := recs[0].Get("Subject1_Name"); v != "DATA STRUCTURES" {
				t.Errorf("Subject1_Name = %q", v)
			}
		})
	}
}

func TestWriteSampleHeaderOnly(t *testing.T) {
	schema := testSchema
	schema.Samples = nil

	var buf bytes.Buffer
	if err := WriteSample(&buf, schema, FormatCSV); err != nil {
		t.Fatal(err)
	}
	recs, err := Parse("a.csv", &buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("expected header only, got %d records", len(recs))
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatXLSX, "xlsx": FormatXLSX, ".CSV": FormatCSV} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("ods"); err == nil {
		t.Error("expected error for ods")
	}
}
