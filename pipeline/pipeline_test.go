package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/lvillar/bulkdoc"
	"github.com/lvillar/bulkdoc/batch"
	"github.com/lvillar/bulkdoc/pageops"
	"github.com/lvillar/bulkdoc/templates"
)

var fixedNow = time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

func newRunner(opts ...Option) *Runner {
	base := []Option{
		WithScale(1),
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return New(append(base, opts...)...)
}

type student struct {
	name     string
	internal string // Subject1_Internal, lets a test corrupt the block
}

// resultCSV builds a results sheet with three subjects per student.
func resultCSV(students ...student) string {
	header := []string{"Student Name", "Seat No", "PRN", "Branch"}
	for n := 1; n <= 3; n++ {
		for _, f := range []string{"Code", "Name", "Internal", "External", "Credits"} {
			header = append(header, fmt.Sprintf("Subject%d_%s", n, f))
		}
	}
	var b strings.Builder
	b.WriteString(strings.Join(header, ",") + "\n")
	for i, s := range students {
		row := []string{s.name, fmt.Sprint(12345 + i), fmt.Sprint(21012345678 + i), "COMPUTER ENGINEERING"}
		for n := 1; n <= 3; n++ {
			internal := "18"
			if n == 1 && s.internal != "" {
				internal = s.internal
			}
			row = append(row, fmt.Sprintf("CS-10%d", n), fmt.Sprintf("SUBJECT %d", n), internal, "52", "4")
		}
		b.WriteString(strings.Join(row, ",") + "\n")
	}
	return b.String()
}

func resultJob(csv string) Job {
	return Job{
		Source: "students.csv",
		Input:  strings.NewReader(csv),
		Config: bulkdoc.TemplateConfig{Kind: "result"},
	}
}

func entryNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("archive is not a valid zip: %v", err)
	}
	names := make([]string, len(zr.File))
	for i, f := range zr.File {
		names[i] = f.Name
	}
	return names
}

func TestTwoCompleteRows(t *testing.T) {
	out, err := newRunner().Run(context.Background(), resultJob(resultCSV(student{name: "JOHN DOE"}, student{name: "ALICE SMITH"})), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s := out.Summary(); s != (batch.Summary{Succeeded: 2, Failed: 0, Total: 2}) {
		t.Errorf("summary = %+v", s)
	}
	names := entryNames(t, out.Archive.Data)
	if got := strings.Join(names, ","); got != "JOHN_DOE_Result.pdf,ALICE_SMITH_Result.pdf" {
		t.Errorf("entries = %s", got)
	}
	if out.Archive.Name != "Student_Results_2026-10-17.zip" {
		t.Errorf("archive name = %s", out.Archive.Name)
	}
	for _, f := range out.Batch.Files() {
		if !bytes.HasPrefix(f.Data, []byte("%PDF")) {
			t.Errorf("%s is not a PDF", f.Name)
		}
	}
}

func TestCorruptRowFailsAlone(t *testing.T) {
	csv := resultCSV(
		student{name: "A ONE"},
		student{name: "B TWO"},
		student{name: "C THREE", internal: "eighteen"},
		student{name: "D FOUR"},
		student{name: "E FIVE"},
	)
	var last [2]int
	calls := 0
	out, err := newRunner().Run(context.Background(), resultJob(csv), func(done, total int) {
		calls++
		last = [2]int{done, total}
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 5 || last != [2]int{5, 5} {
		t.Errorf("progress calls=%d last=%v", calls, last)
	}
	if s := out.Summary(); s.Succeeded != 4 || s.Failed != 1 {
		t.Errorf("summary = %+v", s)
	}
	if n := len(entryNames(t, out.Archive.Data)); n != 4 {
		t.Errorf("archive has %d files, want 4", n)
	}
	fail := out.Batch.Failures()[0]
	if fail.Index != 2 || fail.Label != "C THREE" || !errors.Is(fail.Err, bulkdoc.ErrRender) {
		t.Errorf("failure = %+v", fail)
	}
	if out.AllFailed() {
		t.Error("AllFailed with 4 successes")
	}
}

func TestDuplicateNames(t *testing.T) {
	out, err := newRunner().Run(context.Background(), resultJob(resultCSV(student{name: "JOHN DOE"}, student{name: "JOHN DOE"})), nil)
	if err != nil {
		t.Fatal(err)
	}
	names := entryNames(t, out.Archive.Data)
	if got := strings.Join(names, ","); got != "JOHN_DOE_Result.pdf,JOHN_DOE_Result_1.pdf" {
		t.Errorf("entries = %s", got)
	}
}

func TestHeaderOnly(t *testing.T) {
	out, err := newRunner().Run(context.Background(), resultJob(resultCSV()), nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Batch.Total != 0 || out.Batch.State != batch.Completed {
		t.Errorf("total=%d state=%s", out.Batch.Total, out.Batch.State)
	}
	if n := len(entryNames(t, out.Archive.Data)); n != 0 {
		t.Errorf("archive has %d entries", n)
	}
	if out.AllFailed() {
		t.Error("an empty batch is not all-failed")
	}
}

func TestCancelAfterTwo(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	csv := resultCSV(student{name: "A"}, student{name: "B"}, student{name: "C"}, student{name: "D"}, student{name: "E"})
	out, err := newRunner().Run(ctx, resultJob(csv), func(done, total int) {
		if done == 2 {
			cancel()
		}
	})
	if !errors.Is(err, bulkdoc.ErrAborted) || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if out.Batch.State != batch.Aborted || len(out.Batch.Entries) != 2 {
		t.Errorf("state=%s entries=%d", out.Batch.State, len(out.Batch.Entries))
	}
	if out.Archive != nil {
		t.Error("an aborted batch must not be packed")
	}
}

func TestAllFailed(t *testing.T) {
	csv := resultCSV(student{name: "A", internal: "x"}, student{name: "B", internal: "-3"})
	out, err := newRunner().Run(context.Background(), resultJob(csv), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !out.AllFailed() {
		t.Errorf("AllFailed = false, summary %+v", out.Summary())
	}
	if n := len(entryNames(t, out.Archive.Data)); n != 0 {
		t.Errorf("archive has %d entries", n)
	}
}

func TestJobErrors(t *testing.T) {
	tests := []struct {
		name string
		job  Job
		want error
	}{
		{"unknown kind", Job{Config: bulkdoc.TemplateConfig{Kind: "invoice"}}, bulkdoc.ErrUnknownKind},
		{"bad accent", Job{Config: bulkdoc.TemplateConfig{Kind: "result", AccentColor: "red"}}, bulkdoc.ErrInvalidConfig},
		{"unknown variant", Job{Config: bulkdoc.TemplateConfig{Kind: "certificate", Variant: "neon"}}, bulkdoc.ErrInvalidConfig},
		{"vector png", Job{Config: bulkdoc.TemplateConfig{Kind: "result"}, Mode: ModeVector, Format: "png"}, bulkdoc.ErrUnsupportedFormat},
		{"bad format", Job{Config: bulkdoc.TemplateConfig{Kind: "result"}, Format: "tiff"}, bulkdoc.ErrUnsupportedFormat},
		{"bad mode", Job{Config: bulkdoc.TemplateConfig{Kind: "result"}, Mode: "ink"}, bulkdoc.ErrInvalidConfig},
		{"legacy xls", Job{Source: "old.xls", Input: bytes.NewReader([]byte{0xD0, 0xCF, 0x11, 0xE0, 0, 0}), Config: bulkdoc.TemplateConfig{Kind: "result"}}, bulkdoc.ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := newRunner().Run(context.Background(), tt.job, nil)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if out != nil {
				t.Error("batch-fatal errors return no outcome")
			}
		})
	}

	_, err := newRunner().Run(context.Background(), Job{Source: "old.xls", Input: bytes.NewReader([]byte{0xD0, 0xCF, 0x11, 0xE0}), Config: bulkdoc.TemplateConfig{Kind: "result"}}, nil)
	var pe *bulkdoc.ParseError
	if !errors.As(err, &pe) || pe.Source != "old.xls" {
		t.Errorf("expected *ParseError for old.xls, got %v", err)
	}
}

func TestPNGAndUnknownColumns(t *testing.T) {
	csv := "Recipient Name,Title,Hobby\nJane Smith,Go Workshop,chess\n"
	job := Job{
		Source: "recipients.csv",
		Input:  strings.NewReader(csv),
		Config: bulkdoc.TemplateConfig{Kind: "certificate", Variant: "modern"},
		Format: "PNG",
	}
	out, err := newRunner().Run(context.Background(), job, nil)
	if err != nil {
		t.Fatal(err)
	}
	files := out.Batch.Files()
	if len(files) != 1 || files[0].Name != "Jane_Smith_Certificate.png" || files[0].MIMEType != bulkdoc.MIMEPNG {
		t.Errorf("files = %+v", files)
	}
	if strings.Join(out.UnknownColumns, ",") != "Hobby" {
		t.Errorf("unknown columns = %v", out.UnknownColumns)
	}
	if out.Archive.Name != "Certificates_2026-10-17.zip" {
		t.Errorf("archive name = %s", out.Archive.Name)
	}
}

func TestVectorBooklet(t *testing.T) {
	job := resultJob(resultCSV(student{name: "JOHN DOE"}, student{name: "ALICE SMITH"}, student{name: "ROBERT JOHNSON"}))
	job.Mode = ModeVector
	job.Booklet = true
	job.Select = []batch.Span{{First: 0, Last: 0}, {First: 2, Last: 2}}
	out, err := newRunner().Run(context.Background(), job, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Batch.Total != 2 || out.Batch.Succeeded != 2 {
		t.Fatalf("summary = %+v", out.Summary())
	}
	if out.Booklet == nil {
		t.Fatal("no booklet")
	}
	if out.Booklet.Name != "Student_Results_2026-10-17_booklet.pdf" {
		t.Errorf("booklet name = %s", out.Booklet.Name)
	}
	n, err := pageops.PageCount(bytes.NewReader(out.Booklet.Data))
	if err != nil {
		t.Fatal(err)
	}
	if n < 2 {
		t.Errorf("booklet has %d pages", n)
	}
}

func TestResultDateDefaultsToClock(t *testing.T) {
	var seen []string
	r := newRunner(WithObserver(func(ev batch.Event) {
		if ev.Step == batch.Succeeded {
			seen = append(seen, fmt.Sprint(ev.Index))
		}
	}))
	job := Job{
		Records: []bulkdoc.Record{bulkdoc.NewRecord(0, 2, map[string]string{"Student Name": "JOHN DOE", "Subject1_Code": "CS-101"})},
		Config:  bulkdoc.TemplateConfig{Kind: "result"},
		Format:  "png",
	}
	out, err := r.Run(context.Background(), job, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Batch.Succeeded != 1 || strings.Join(seen, ",") != "0" {
		t.Errorf("succeeded=%d observed=%v", out.Batch.Succeeded, seen)
	}
}

func TestPrepare(t *testing.T) {
	r, cfg, err := Prepare(bulkdoc.TemplateConfig{Kind: " Report-Card "})
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind() != "report-card" || cfg.Variant != "classic" || cfg.ExamYear == "" {
		t.Errorf("renderer=%s cfg=%+v", r.Kind(), cfg)
	}
}

func TestArchivePrefix(t *testing.T) {
	org := &bulkdoc.Organization{Name: "Springfield High"}
	tests := []struct {
		kind string
		cfg  bulkdoc.TemplateConfig
		want string
	}{
		{"result", bulkdoc.TemplateConfig{}, "Student_Results"},
		{"result", bulkdoc.TemplateConfig{ArchivePrefix: "MU"}, "MU"},
		{"report-card", bulkdoc.TemplateConfig{Organization: org}, "Springfield High_report_cards"},
		{"report-card", bulkdoc.TemplateConfig{}, "report_cards"},
		{"certificate", bulkdoc.TemplateConfig{}, "Certificates"},
	}
	for _, tt := range tests {
		if got := ArchivePrefix(tt.kind, tt.cfg); got != tt.want {
			t.Errorf("ArchivePrefix(%s) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestParseSelect(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "[]"},
		{"1,3-5", "[{0 0} {2 4}]"},
		{" 2 , 7 - 7 ", "[{1 1} {6 6}]"},
		{"1-2000000000", "[{0 1999999999}]"},
	}
	for _, tt := range tests {
		got, err := ParseSelect(tt.in)
		if err != nil {
			t.Errorf("ParseSelect(%q): %v", tt.in, err)
			continue
		}
		if fmt.Sprint(got) != tt.want {
			t.Errorf("ParseSelect(%q) = %v, want %s", tt.in, got, tt.want)
		}
	}
	for _, bad := range []string{"0", "x", "5-2", "1-", "-3"} {
		if _, err := ParseSelect(bad); err == nil {
			t.Errorf("ParseSelect(%q) accepted", bad)
		}
	}
}

func TestRunHugeSelectRange(t *testing.T) {
	job := resultJob(resultCSV(student{name: "JOHN DOE"}, student{name: "ALICE SMITH"}))
	sel, err := ParseSelect("2-2000000000")
	if err != nil {
		t.Fatal(err)
	}
	job.Select = sel
	out, err := newRunner().Run(context.Background(), job, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Batch.Total != 1 || out.Batch.Entries[0].Index != 1 {
		t.Errorf("summary = %+v", out.Summary())
	}
}

func TestPackBookletFailureAbortsBatch(t *testing.T) {
	broken := &bulkdoc.ExportedFile{Name: "JOHN_DOE_Result.pdf", Data: []byte("%PDF-1.4 truncated"), MIMEType: bulkdoc.MIMEPDF}
	out := &Outcome{Batch: &batch.Result{
		State:     batch.Completed,
		Total:     1,
		Attempted: 1,
		Succeeded: 1,
		Entries:   []batch.Entry{{Index: 0, Row: 2, Label: "JOHN DOE", File: broken}},
	}}
	err := pack(out, templates.Result{}, bulkdoc.DefaultConfig("result"), fixedNow, true)
	var pe *bulkdoc.PackagingError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v", err)
	}
	if out.Batch.State != batch.Aborted {
		t.Errorf("state = %s", out.Batch.State)
	}
	if out.Archive == nil || out.Booklet != nil {
		t.Errorf("archive = %v, booklet = %v", out.Archive != nil, out.Booklet != nil)
	}
}
