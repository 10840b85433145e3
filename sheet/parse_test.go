package sheet

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/lvillar/bulkdoc"
)

var testSchema = bulkdoc.Schema{
	Kind:      "result",
	SheetName: "Students",
	Columns:   []string{"Student Name", "Seat No"},
	SubEntity: &bulkdoc.SubEntity{
		Prefix:      "Subject",
		CodeField:   "Code",
		Fields:      []string{"Code", "Name", "Credits"},
		SampleCount: 2,
	},
	Samples: []map[string]string{
		{"Student Name": "JOHN DOE", "Seat No": "S001", "Subject1_Code": "CS-101", "Subject1_Name": "DATA STRUCTURES", "Subject1_Credits": "4"},
		{"Student Name": "ALICE SMITH", "Seat No": "S002"},
	},
}

func TestParseCSV(t *testing.T) {
	in := "\ufeffStudent Name,Seat No,Subject1_Code\n" +
		"JOHN DOE,S001,CS-101\n" +
		",,\n" +
		"ALICE SMITH,S002\n" +
		"BOB,S003,CS-102,extra\n"

	recs, err := Parse("students.csv", strings.NewReader(in))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}

	if v, _ := recs[0].Get("Student Name"); v != "JOHN DOE" {
		t.Errorf("BOM not stripped from first header: %v", recs[0].Keys())
	}
	if _, ok := recs[1].Get("Subject1_Code"); ok {
		t.Error("short row should leave missing cells absent")
	}
	if recs[1].Index != 1 || recs[1].Row != 4 {
		t.Errorf("record 1 index/row = %d/%d, want 1/4", recs[1].Index, recs[1].Row)
	}
	if len(recs[2].Keys()) != 3 {
		t.Errorf("extra cells should be ignored: %v", recs[2].Keys())
	}
}

func TestParseDelimiterSniffing(t *testing.T) {
	tests := []struct {
		name string
		file string
		in   string
	}{
		{"semicolon", "a.csv", "Student Name;Seat No\nJOHN DOE;S001\n"},
		{"tab", "a.csv", "Student Name\tSeat No\nJOHN DOE\tS001\n"},
		{"tsv extension", "a.tsv", "Student Name\tSeat No\nJOHN DOE\tS001\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := Parse(tt.file, strings.NewReader(tt.in))
			if err != nil {
				t.Fatal(err)
			}
			if v, _ := recs[0].Get("Seat No"); v != "S001" {
				t.Errorf("Seat No = %q", v)
			}
		})
	}
}

func TestParseDuplicateHeaderKeepsFirst(t *testing.T) {
	recs, err := Parse("a.csv", strings.NewReader("Name,Name\nfirst,second\n"))
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := recs[0].Get("Name"); v != "first" {
		t.Errorf("Name = %q, want first", v)
	}
}

func TestParseHeaderOnly(t *testing.T) {
	recs, err := Parse("a.csv", strings.NewReader("Student Name,Seat No\n"))
	if err != nil {
		t.Fatalf("header-only file should parse: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected no records, got %d", len(recs))
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		in     []byte
		target error
	}{
		{"empty", "a.csv", nil, bulkdoc.ErrNoHeader},
		{"blank rows only", "a.csv", []byte(",,\n , \n"), bulkdoc.ErrNoHeader},
		{"legacy xls", "a.xls", []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1}, bulkdoc.ErrUnsupportedFormat},
		{"unknown extension", "a.pdf", []byte("%PDF-1.4"), bulkdoc.ErrUnsupportedFormat},
		{"corrupt xlsx", "a.xlsx", []byte("PK\x03\x04garbage"), nil},
		{"png named .csv", "students.csv", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bulkdoc.ErrUnsupportedFormat},
		{"latin-1 csv", "a.csv", []byte("Student Name\nJos\xe9\n"), bulkdoc.ErrUnsupportedFormat},
		{"utf-16 csv", "a.csv", []byte("\xff\xfeN\x00a\x00\n\x00"), bulkdoc.ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := Parse(tt.file, bytes.NewReader(tt.in))
			if recs != nil {
				t.Error("failed parse must not return partial records")
			}
			var pe *bulkdoc.ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %v", err)
			}
			if pe.Source != tt.file {
				t.Errorf("Source = %q", pe.Source)
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("expected %v, got %v", tt.target, err)
			}
		})
	}
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", "Students"); err != nil {
		t.Fatal(err)
	}
	rows := [][]interface{}{
		{"Student Name", "Seat No", "Subject1_Internal"},
		{"JOHN DOE", "S001", 18},
		{},
		{"ALICE SMITH", "S002", 25},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		r := row
		if err := f.SetSheetRow("Students", cell, &r); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}

	// content signature wins over a misleading extension
	recs, err := Parse("upload.bin.csv", &buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if v, _ := recs[1].Get("Subject1_Internal"); v != "25" {
		t.Errorf("Subject1_Internal = %q", v)
	}
	if recs[1].Row != 4 {
		t.Errorf("Row = %d, want 4", recs[1].Row)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "students.csv")
	if err := os.WriteFile(path, []byte("Student Name\nJOHN DOE\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	recs, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.csv"))
	var pe *bulkdoc.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
}

func TestUnknownColumns(t *testing.T) {
	recs, err := Parse("a.csv", strings.NewReader("Student Name,Subject3_Name,Subject1_Grade,Colour\nA,B,C,D\n"))
	if err != nil {
		t.Fatal(err)
	}
	got := UnknownColumns(recs, testSchema)
	if strings.Join(got, ",") != "Colour,Subject1_Grade" {
		t.Errorf("UnknownColumns = %v", got)
	}
}
