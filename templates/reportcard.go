package templates

import (
	"fmt"
	"strings"

	"github.com/lvillar/bulkdoc"
	"github.com/lvillar/bulkdoc/doctpl"
)

// Report card column names.
const (
	ColClass        = "Class"
	ColSection      = "Section"
	ColRollNo       = "Roll No"
	ColAdmissionNo  = "Admission No"
	ColDateOfBirth  = "Date of Birth"
	ColParentName   = "Parent Name"
	ColAttendance   = "Attendance"
	ColComments     = "Comments"
	ColTeacher      = "Teacher"
	defaultMaxMarks = 100
)

// ReportCard renders a school term report with a per-subject percentage grade.
type ReportCard struct{}

func (ReportCard) Kind() string             { return "report-card" }
func (ReportCard) DocumentKind() string     { return "report_card" }
func (ReportCard) IdentifyingField() string { return ColStudentName }

// Schema implements Renderer.
func (ReportCard) Schema() bulkdoc.Schema {
	return bulkdoc.Schema{
		Kind:      "report-card",
		SheetName: "Students",
		Columns: []string{
			ColStudentName, ColClass, ColSection, ColRollNo, ColAdmissionNo,
			ColDateOfBirth, ColParentName, ColAttendance, ColComments, ColTeacher,
		},
		SubEntity: &bulkdoc.SubEntity{
			Prefix:      SubjectPrefix,
			CodeField:   "Code",
			Fields:      []string{"Code", "Name", "Marks", "MaxMarks"},
			SampleCount: 4,
		},
		Samples: []map[string]string{
			reportCardSample("John Doe", "10", "A", "12", "ADM-2024-001", "2010-05-14", "Richard Doe", "94%",
				"Consistent effort throughout the term.", "Mrs. Sharma", 88, 92, 79, 85),
			reportCardSample("Jane Smith", "10", "B", "7", "ADM-2024-002", "2010-09-02", "Laura Smith", "97%",
				"Outstanding performance in sciences.", "Mr. Iyer", 95, 90, 93, 89),
		},
	}
}

var reportCardSubjects = [][2]string{
	{"ENG", "English"},
	{"MATH", "Mathematics"},
	{"SCI", "Science"},
	{"SST", "Social Studies"},
}

func reportCardSample(name, class, section, roll, adm, dob, parent, attendance, comments, teacher string, marks ...int) map[string]string {
	row := map[string]string{
		ColStudentName: name,
		ColClass:       class,
		ColSection:     section,
		ColRollNo:      roll,
		ColAdmissionNo: adm,
		ColDateOfBirth: dob,
		ColParentName:  parent,
		ColAttendance:  attendance,
		ColComments:    comments,
		ColTeacher:     teacher,
	}
	for i, m := range marks {
		n := i + 1
		row[bulkdoc.IndexedKey(SubjectPrefix, n, "Code")] = reportCardSubjects[i][0]
		row[bulkdoc.IndexedKey(SubjectPrefix, n, "Name")] = reportCardSubjects[i][1]
		row[bulkdoc.IndexedKey(SubjectPrefix, n, "Marks")] = fmt.Sprint(m)
		row[bulkdoc.IndexedKey(SubjectPrefix, n, "MaxMarks")] = fmt.Sprint(defaultMaxMarks)
	}
	return row
}

// SubjectMark is one report card subject row.
type SubjectMark struct {
	Code, Name string
	Marks, Max float64
}

// Percentage returns Marks/Max as a percentage.
func (s SubjectMark) Percentage() float64 { return Percentage(s.Marks, s.Max) }

// SubjectMarks reads the subject blocks of rec. A missing or zero MaxMarks
// defaults to 100.
func SubjectMarks(rec bulkdoc.Record) ([]SubjectMark, error) {
	fr := &fieldReader{rec: rec}
	n := rec.SubEntityCount(SubjectPrefix, "Code")
	out := make([]SubjectMark, 0, n)
	for i := 1; i <= n; i++ {
		key := func(f string) string { return bulkdoc.IndexedKey(SubjectPrefix, i, f) }
		s := SubjectMark{
			Code:  rec.Value(key("Code"), ""),
			Name:  rec.Value(key("Name"), ""),
			Marks: fr.number(key("Marks")),
			Max:   fr.number(key("MaxMarks")),
		}
		if s.Max == 0 {
			s.Max = defaultMaxMarks
		}
		if s.Name == "" {
			s.Name = s.Code
		}
		out = append(out, s)
	}
	if fr.err != nil {
		return nil, fr.err
	}
	return out, nil
}

// Render implements Renderer.
func (r ReportCard) Render(rec bulkdoc.Record, cfg bulkdoc.TemplateConfig) (*doctpl.Document, error) {
	subjects, err := SubjectMarks(rec)
	if err != nil {
		return nil, renderError(r, rec, err)
	}

	school := "School"
	if cfg.Organization != nil && cfg.Organization.Name != "" {
		school = cfg.Organization.Name
	}
	term := cfg.Term
	if term == "" {
		term = "First Term"
	}
	ink := accent(cfg, rgb("#1e3a8a"))
	white := doctpl.Color{R: 255, G: 255, B: 255}

	rows := make([][]string, len(subjects))
	var total, maxTotal float64
	for i, s := range subjects {
		pct := s.Percentage()
		rows[i] = []string{s.Name, formatNumber(s.Marks), formatNumber(s.Max), fmt.Sprintf("%.1f%%", pct), PercentGrade(pct)}
		total += s.Marks
		maxTotal += s.Max
	}
	overall := Percentage(total, maxTotal)

	blocks := logoBlock(cfg, 72)
	blocks = append(blocks,
		doctpl.Block{Type: doctpl.TypeHeading, Text: school, Level: 1, Align: "C", Color: &ink},
		doctpl.Block{Type: doctpl.TypeHeading, Text: "Report Card - " + term, Level: 3, Align: "C"},
		doctpl.Block{Type: doctpl.TypeRule, Color: &ink, LineWidth: 2},
		doctpl.Block{Type: doctpl.TypeFields, GridColumns: 2, Fields: []doctpl.Field{
			{Label: "Student Name", Value: rec.Value(ColStudentName, "")},
			{Label: "Class", Value: strings.TrimSpace(rec.Value(ColClass, "") + " " + rec.Value(ColSection, ""))},
			{Label: "Roll No", Value: rec.Value(ColRollNo, "")},
			{Label: "Admission No", Value: rec.Value(ColAdmissionNo, "")},
			{Label: "Date of Birth", Value: rec.Value(ColDateOfBirth, "")},
			{Label: "Parent Name", Value: rec.Value(ColParentName, "")},
		}},
		doctpl.Block{
			Type: doctpl.TypeTable,
			Columns: []doctpl.Column{
				{Header: "Subject", Weight: 3},
				{Header: "Marks", Align: "C"},
				{Header: "Max", Align: "C"},
				{Header: "Percentage", Align: "C", Weight: 1.4},
				{Header: "Grade", Align: "C"},
			},
			Rows:        rows,
			FooterRow:   []string{"Total", formatNumber(total), formatNumber(maxTotal), fmt.Sprintf("%.1f%%", overall), PercentGrade(overall)},
			HeaderStyle: &doctpl.CellStyle{FillColor: &ink, TextColor: &white},
		},
		doctpl.Block{Type: doctpl.TypeFields, GridColumns: 2, Fields: []doctpl.Field{
			{Label: "Attendance", Value: rec.Value(ColAttendance, "-")},
			{Label: "Remarks", Value: Remark(overall)},
		}},
	)
	if c := rec.Value(ColComments, ""); c != "" {
		blocks = append(blocks, doctpl.Block{Type: doctpl.TypeText, Text: "Teacher's comments: " + c})
	}

	principal := doctpl.Field{Label: "", Value: "Principal"}
	if cfg.Signatory != nil {
		principal.Label = cfg.Signatory.Name
		if cfg.Signatory.Title != "" {
			principal.Value = cfg.Signatory.Title
		}
	}
	blocks = append(blocks, doctpl.Block{Type: doctpl.TypeSignature, Fields: []doctpl.Field{
		{Label: rec.Value(ColTeacher, ""), Value: "Class Teacher"},
		principal,
	}})

	return &doctpl.Document{
		Title:   rec.Value(ColStudentName, "") + " Report Card",
		Author:  school,
		Width:   doctpl.A4Width,
		Padding: 40,
		Font:    &doctpl.Font{Family: "sans", Size: 14},
		Border:  &doctpl.Border{Color: ink, Width: 3},
		Blocks:  blocks,
	}, nil
}
