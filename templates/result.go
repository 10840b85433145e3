package templates

import (
	"strconv"
	"strings"

	"github.com/lvillar/bulkdoc"
	"github.com/lvillar/bulkdoc/doctpl"
)

// Result column names.
const (
	ColStudentName = "Student Name"
	ColMotherName  = "Mother Name"
	ColCollegeName = "College Name"
	ColSeatNo      = "Seat No"
	ColCentre      = "Centre"
	ColPRN         = "PRN"
	ColExamYear    = "Exam Year"
	ColExamMonth   = "Exam Month"
	ColBranch      = "Branch"

	SubjectPrefix = "Subject"
)

// Result renders a university statement of grades with one row per subject.
type Result struct{}

func (Result) Kind() string             { return "result" }
func (Result) DocumentKind() string     { return "Result" }
func (Result) IdentifyingField() string { return ColStudentName }

// Schema implements Renderer.
func (Result) Schema() bulkdoc.Schema {
	return bulkdoc.Schema{
		Kind:      "result",
		SheetName: "Students",
		Columns: []string{
			ColStudentName, ColMotherName, ColSeatNo, ColPRN, ColCollegeName,
			ColCentre, ColBranch, ColExamMonth, ColExamYear,
		},
		SubEntity: &bulkdoc.SubEntity{
			Prefix:      SubjectPrefix,
			CodeField:   "Code",
			Fields:      []string{"Code", "Name", "Internal", "External", "Credits"},
			SampleCount: 3,
		},
		Samples: resultSamples(),
	}
}

type universityHeader struct {
	title, subtitle, location string
}

var (
	mumbaiHeader = universityHeader{"UNIVERSITY OF MUMBAI", "Established in 1857", "MUMBAI 400032"}
	puneHeader   = universityHeader{"SAVITRIBAI PHULE PUNE UNIVERSITY", "(formerly University of Pune)", "GANESHKHIND, PUNE 411007"}
)

func headerFor(cfg bulkdoc.TemplateConfig) universityHeader {
	if cfg.OrgShortName() == "MU" {
		return mumbaiHeader
	}
	if org := cfg.Organization; org != nil && strings.TrimSpace(org.Name) != "" {
		loc := org.Address
		if loc == "" {
			loc = org.City
		}
		return universityHeader{strings.ToUpper(org.Name), org.Subtitle, strings.ToUpper(loc)}
	}
	return puneHeader
}

// SubjectResult is one computed table row of a statement of grades.
type SubjectResult struct {
	Code, Name         string
	Internal, External float64
	Credits            float64
	Grade              Grade
}

// Total returns internal plus external marks.
func (s SubjectResult) Total() float64 { return s.Internal + s.External }

// Subjects reads and grades the subject blocks of rec.
func Subjects(rec bulkdoc.Record) ([]SubjectResult, error) {
	fr := &fieldReader{rec: rec}
	n := rec.SubEntityCount(SubjectPrefix, "Code")
	out := make([]SubjectResult, 0, n)
	for i := 1; i <= n; i++ {
		key := func(f string) string { return bulkdoc.IndexedKey(SubjectPrefix, i, f) }
		s := SubjectResult{
			Code:     rec.Value(key("Code"), ""),
			Name:     rec.Value(key("Name"), ""),
			Internal: fr.number(key("Internal")),
			External: fr.number(key("External")),
			Credits:  fr.number(key("Credits")),
		}
		s.Grade = ResultGrade(s.Total())
		out = append(out, s)
	}
	if fr.err != nil {
		return nil, fr.err
	}
	return out, nil
}

// Render implements Renderer.
func (r Result) Render(rec bulkdoc.Record, cfg bulkdoc.TemplateConfig) (*doctpl.Document, error) {
	subjects, err := Subjects(rec)
	if err != nil {
		return nil, renderError(r, rec, err)
	}

	name := strings.ToUpper(rec.Value(ColStudentName, ""))
	seat := rec.Value(ColSeatNo, "")
	prn := rec.Value(ColPRN, "")
	hdr := headerFor(cfg)

	rows := make([][]string, len(subjects))
	var points, credits []float64
	var grandTotal, totalCredits float64
	for i, s := range subjects {
		rows[i] = []string{
			strconv.Itoa(i + 1), s.Code, s.Name,
			formatNumber(s.Internal), formatNumber(s.External), formatNumber(s.Total()),
			formatNumber(s.Credits), s.Grade.Letter, strconv.Itoa(s.Grade.Points),
		}
		points = append(points, float64(s.Grade.Points))
		credits = append(credits, s.Credits)
		grandTotal += s.Total()
		totalCredits += s.Credits
	}

	black := doctpl.Color{}
	ink := accent(cfg, black)
	blocks := logoBlock(cfg, 64)
	blocks = append(blocks,
		doctpl.Block{Type: doctpl.TypeHeading, Text: hdr.title, Level: 2, Align: "C", Color: &ink},
		doctpl.Block{Type: doctpl.TypeText, Text: hdr.subtitle, Align: "C"},
		doctpl.Block{Type: doctpl.TypeText, Text: hdr.location + ".", Align: "C"},
		doctpl.Block{Type: doctpl.TypeRule, LineWidth: 2, Color: &black},
		doctpl.Block{
			Type:      doctpl.TypeBanner,
			Text:      "Branch: " + rec.Value(ColBranch, "BACHELOR OF ENGINEERING") + " - " + rec.Value(ColExamMonth, cfg.ExamMonth) + " " + rec.Value(ColExamYear, cfg.ExamYear),
			FillColor: &doctpl.Color{R: 235, G: 235, B: 235},
			Color:     &black,
		},
		doctpl.Block{Type: doctpl.TypeFields, GridColumns: 3, Fields: []doctpl.Field{
			{Label: "SeatNo", Value: seat},
			{Label: "Centre", Value: rec.Value(ColCentre, "001")},
			{Label: "Perm Reg No(PRN)", Value: prn},
		}},
		doctpl.Block{Type: doctpl.TypeFields, GridColumns: 2, Fields: []doctpl.Field{
			{Label: "Student Name", Value: name},
			{Label: "Mother Name", Value: strings.ToUpper(rec.Value(ColMotherName, ""))},
		}},
		doctpl.Block{Type: doctpl.TypeFields, GridColumns: 1, Fields: []doctpl.Field{
			{Label: "Col/Inst Name", Value: strings.ToUpper(rec.Value(ColCollegeName, ""))},
		}},
		doctpl.Block{
			Type: doctpl.TypeTable,
			Columns: []doctpl.Column{
				{Header: "Sr No.", Align: "C", Weight: 0.7},
				{Header: "Subject Code", Align: "C", Weight: 1.3},
				{Header: "Subject Name", Weight: 3},
				{Header: "Internal", Align: "C"},
				{Header: "External", Align: "C"},
				{Header: "Total", Align: "C"},
				{Header: "Credits", Align: "C"},
				{Header: "Grade", Align: "C"},
				{Header: "Grade Points", Align: "C", Weight: 1.2},
			},
			Rows: rows,
		},
		doctpl.Block{Type: doctpl.TypeFields, GridColumns: 3, Fields: []doctpl.Field{
			{Label: "Total Credits", Value: formatNumber(totalCredits)},
			{Label: "Grand Total", Value: formatNumber(grandTotal)},
			{Label: "SGPA", Value: SGPA(points, credits)},
		}},
	)
	if cfg.ResultDate != "" {
		blocks = append(blocks, doctpl.Block{Type: doctpl.TypeText, Text: "Result Date: " + cfg.ResultDate})
	}
	if code := strings.Trim(seat+"|"+prn, "|"); code != "" {
		blocks = append(blocks, doctpl.Block{
			Type:    doctpl.TypeBarcode,
			Barcode: &doctpl.Barcode{Kind: doctpl.BarcodeQR, Data: code},
			Width:   88,
			Align:   "R",
		})
	}

	return &doctpl.Document{
		Title:   name + " Result",
		Author:  hdr.title,
		Width:   800,
		Padding: 24,
		Font:    &doctpl.Font{Family: "mono", Style: "B", Size: 12},
		Border:  &doctpl.Border{Color: black, Width: 2, Double: true},
		Blocks:  blocks,
	}, nil
}

func resultSamples() []map[string]string {
	students := []struct {
		name, mother, seat, prn string
		marks                   [6]int
	}{
		{"JOHN DOE", "JANE DOE", "12345", "21012345678", [6]int{18, 52, 16, 48, 19, 55}},
		{"ALICE SMITH", "MARY SMITH", "12346", "21012345679", [6]int{20, 58, 18, 52, 17, 49}},
		{"ROBERT JOHNSON", "SARAH JOHNSON", "12347", "21012345680", [6]int{22, 60, 19, 54, 21, 59}},
		{"EMMA WILSON", "LISA WILSON", "12348", "21012345681", [6]int{15, 45, 14, 42, 16, 46}},
		{"MICHAEL BROWN", "PATRICIA BROWN", "12349", "21012345682", [6]int{21, 57, 20, 56, 22, 61}},
		{"SOPHIA DAVIS", "JENNIFER DAVIS", "12350", "21012345683", [6]int{19, 53, 17, 49, 18, 51}},
		{"DANIEL MARTINEZ", "MARIA MARTINEZ", "12351", "21012345684", [6]int{23, 62, 21, 58, 24, 64}},
		{"ISABELLA GARCIA", "ANA GARCIA", "12352", "21012345685", [6]int{16, 47, 15, 44, 17, 48}},
		{"CHRISTOPHER LEE", "MICHELLE LEE", "12353", "21012345686", [6]int{20, 55, 19, 53, 20, 56}},
		{"MADISON TAYLOR", "RACHEL TAYLOR", "12354", "21012345687", [6]int{17, 50, 16, 46, 18, 52}},
	}
	subjects := []struct {
		code, name string
		credits    int
	}{
		{"CS-101", "DATA STRUCTURES", 4},
		{"CS-102", "ALGORITHMS", 3},
		{"CS-103", "DATABASE SYSTEMS", 4},
	}

	out := make([]map[string]string, 0, len(students))
	for _, s := range students {
		row := map[string]string{
			ColStudentName: s.name,
			ColMotherName:  s.mother,
			ColSeatNo:      s.seat,
			ColPRN:         s.prn,
			ColCollegeName: "SAMPLE COLLEGE OF ENGINEERING",
			ColCentre:      "001",
			ColBranch:      "BACHELOR OF ENGINEERING",
		}
		for i, sub := range subjects {
			n := i + 1
			row[bulkdoc.IndexedKey(SubjectPrefix, n, "Code")] = sub.code
			row[bulkdoc.IndexedKey(SubjectPrefix, n, "Name")] = sub.name
			row[bulkdoc.IndexedKey(SubjectPrefix, n, "Internal")] = strconv.Itoa(s.marks[2*i])
			row[bulkdoc.IndexedKey(SubjectPrefix, n, "External")] = strconv.Itoa(s.marks[2*i+1])
			row[bulkdoc.IndexedKey(SubjectPrefix, n, "Credits")] = strconv.Itoa(sub.credits)
		}
		out = append(out, row)
	}
	return out
}
