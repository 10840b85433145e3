package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-pdf/fpdf"

	"github.com/lvillar/bulkdoc"
	"github.com/lvillar/bulkdoc/pageops"
	"github.com/lvillar/bulkdoc/pipeline"
)

const resultsCSV = `Student Name,Seat No,PRN,Subject1_Code,Subject1_Name,Subject1_Internal,Subject1_External,Subject1_Credits
JOHN DOE,12345,21012345678,CS-101,DATA STRUCTURES,18,52,4
ALICE SMITH,12346,21012345679,CS-101,DATA STRUCTURES,20,58,4
`

type testApp struct {
	*app
	stdout, stderr *bytes.Buffer
}

func newTestApp(stdin string) testApp {
	var stdout, stderr bytes.Buffer
	return testApp{
		app: &app{
			stdout: &stdout,
			stderr: &stderr,
			stdin:  strings.NewReader(stdin),
			tty:    func(io.Writer) bool { return false },
		},
		stdout: &stdout,
		stderr: &stderr,
	}
}

func writeInput(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "students.csv")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestGenerateWritesArchive(t *testing.T) {
	a := newTestApp("")
	in := writeInput(t, resultsCSV)
	out := t.TempDir()

	err := a.run(context.Background(), []string{"generate", "--kind", "result", "--scale", "1", "--out", out, in})
	if err != nil {
		t.Fatalf("generate: %v\n%s", err, a.stderr)
	}
	if !strings.Contains(a.stdout.String(), "2 generated") {
		t.Errorf("summary = %q", a.stdout)
	}
	if !strings.Contains(a.stderr.String(), "[2/2] processed, 0 failed") {
		t.Errorf("progress lines = %q", a.stderr)
	}
	zips, _ := filepath.Glob(filepath.Join(out, "Student_Results_*.zip"))
	if len(zips) != 1 {
		t.Errorf("archives in %s = %v", out, zips)
	}
}

func TestGenerateJSONBooklet(t *testing.T) {
	a := newTestApp("")
	in := writeInput(t, resultsCSV)
	out := t.TempDir()

	err := a.run(context.Background(), []string{"generate", "--kind", "result", "--mode", "vector", "--booklet", "--json", "--select", "2", "--out", out, in})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	var rep pipeline.Report
	if err := json.Unmarshal(a.stdout.Bytes(), &rep); err != nil {
		t.Fatalf("report: %v\n%s", err, a.stdout)
	}
	if rep.Summary.Total != 1 || len(rep.Files) != 1 || rep.Files[0] != "ALICE_SMITH_Result.pdf" {
		t.Errorf("report = %+v", rep)
	}
	if _, err := os.Stat(filepath.Join(out, rep.Booklet)); err != nil {
		t.Errorf("booklet not written: %v", err)
	}
	if strings.Contains(a.stderr.String(), "processed") {
		t.Error("--json must not print progress")
	}
}

func TestGenerateAllFailed(t *testing.T) {
	a := newTestApp("")
	in := writeInput(t, "Student Name,Subject1_Code,Subject1_Internal\nJOHN DOE,CS-101,abc\n")

	err := a.run(context.Background(), []string{"generate", "--kind", "result", "--progress=false", "--out", t.TempDir(), in})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(a.stdout.String(), "row 2 JOHN DOE: render:") {
		t.Errorf("summary = %q", a.stdout)
	}
}

func TestGenerateErrors(t *testing.T) {
	in := writeInput(t, resultsCSV)
	badConfig := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(badConfig, []byte(`{"colour":"red"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"no kind", []string{in}, bulkdoc.ErrInvalidConfig},
		{"unknown kind", []string{"--kind", "invoice", in}, bulkdoc.ErrUnknownKind},
		{"bad config", []string{"--kind", "result", "--config", badConfig, in}, bulkdoc.ErrInvalidConfig},
		{"bad format", []string{"--kind", "result", "--format", "gif", in}, bulkdoc.ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestApp("")
			args := append([]string{"generate", "--out", t.TempDir()}, tt.args...)
			if err := a.run(context.Background(), args); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	a := newTestApp("")
	if err := a.run(context.Background(), []string{"generate", "--kind", "result"}); err == nil {
		t.Error("missing input accepted")
	}
}

func TestSampleAndPreview(t *testing.T) {
	a := newTestApp("")
	if err := a.run(context.Background(), []string{"sample", "--kind", "certificate", "--format", "csv", "--out", "-"}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(a.stdout.String(), "Recipient Name,") {
		t.Errorf("sample = %.40q", a.stdout)
	}

	xlsx := filepath.Join(t.TempDir(), "sample.xlsx")
	a = newTestApp("")
	if err := a.run(context.Background(), []string{"sample", "--kind", "report-card", "--out", xlsx}); err != nil {
		t.Fatal(err)
	}
	if st, err := os.Stat(xlsx); err != nil || st.Size() == 0 {
		t.Errorf("xlsx sample: %v", err)
	}

	a = newTestApp("")
	in := writeInput(t, resultsCSV)
	if err := a.run(context.Background(), []string{"preview", "--kind", "result", "--row", "2", in}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(a.stdout.String(), "ALICE SMITH") {
		t.Error("preview lacks the second record")
	}
	if err := a.run(context.Background(), []string{"preview", "--kind", "result", "--row", "5", in}); err == nil {
		t.Error("out of range row accepted")
	}
}

func TestKinds(t *testing.T) {
	a := newTestApp("")
	if err := a.run(context.Background(), []string{"kinds"}); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"result", "report-card", "certificate", "Student Name"} {
		if !strings.Contains(a.stdout.String(), k) {
			t.Errorf("kinds table lacks %q", k)
		}
	}

	a = newTestApp("")
	if err := a.run(context.Background(), []string{"kinds", "--json"}); err != nil {
		t.Fatal(err)
	}
	var kinds []pipeline.KindInfo
	if err := json.Unmarshal(a.stdout.Bytes(), &kinds); err != nil || len(kinds) != 3 {
		t.Errorf("kinds = %v, %v", kinds, err)
	}
}

func TestMerge(t *testing.T) {
	dir := t.TempDir()
	var inputs []string
	for i, pages := range []int{2, 1} {
		p := filepath.Join(dir, string(rune('a'+i))+".pdf")
		pdf := fpdf.New("P", "pt", "A4", "")
		pdf.SetFont("Helvetica", "", 12)
		for n := 0; n < pages; n++ {
			pdf.AddPage()
			pdf.Text(40, 40, "x")
		}
		if err := pdf.OutputFileAndClose(p); err != nil {
			t.Fatal(err)
		}
		inputs = append(inputs, p)
	}
	out := filepath.Join(dir, "booklet.pdf")

	a := newTestApp("")
	if err := a.run(context.Background(), append([]string{"merge", "--out", out, "--watermark", "COPY"}, inputs...)); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if n, err := pageops.PageCount(f); err != nil || n != 3 {
		t.Errorf("pages = %d, %v", n, err)
	}

	if err := newTestApp("").run(context.Background(), []string{"merge"}); err == nil {
		t.Error("merge without inputs accepted")
	}
}

func TestMCPCommand(t *testing.T) {
	a := newTestApp(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"list_kinds"}}` + "\n")
	if err := a.run(context.Background(), []string{"mcp"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(a.stdout.String(), "report-card") {
		t.Errorf("mcp output = %.200q", a.stdout)
	}
}

func TestUnknownCommandAndHelp(t *testing.T) {
	a := newTestApp("")
	if err := a.run(context.Background(), []string{"frobnicate"}); err == nil {
		t.Error("unknown command accepted")
	}
	a = newTestApp("")
	if err := a.run(context.Background(), []string{"generate", "-h"}); err != nil {
		t.Errorf("-h: %v", err)
	}
	if !strings.Contains(a.stderr.String(), "-workers") {
		t.Errorf("generate usage = %q", a.stderr)
	}
	if strings.Contains(a.stderr.String(), ".xls,") {
		t.Error("generate usage advertises legacy .xls input")
	}
}

func TestRunFlagsFromEnv(t *testing.T) {
	t.Setenv("BULKDOC_WORKERS", "3")
	t.Setenv("BULKDOC_TIMEOUT", "5s")
	t.Setenv("BULKDOC_LOG_LEVEL", "not-a-level")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	rf := addRunFlags(fs)
	if err := fs.Parse([]string{"--workers", "2"}); err != nil {
		t.Fatal(err)
	}
	if *rf.workers != 2 || rf.timeout.String() != "5s" {
		t.Errorf("workers = %d, timeout = %s", *rf.workers, *rf.timeout)
	}
	if _, err := rf.logger(&bytes.Buffer{}); err == nil {
		t.Error("invalid level accepted")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn", "json")
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("record failed", "row", 3)
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line %q: %v", buf.String(), err)
	}
	if entry["msg"] != "record failed" || entry["row"] != float64(3) {
		t.Errorf("entry = %v", entry)
	}
	if _, err := newLogger(&buf, "info", "xml"); err == nil {
		t.Error("unknown format accepted")
	}
}

func TestProgressModel(t *testing.T) {
	cancelled := false
	var m tea.Model = newProgressModel("Generating result documents", func() { cancelled = true })

	m, _ = m.Update(progressMsg{done: 1, total: 4})
	m, _ = m.Update(failedMsg{})
	view := m.View()
	if !strings.Contains(view, "1/4 records") || !strings.Contains(view, "1 failed") {
		t.Errorf("view = %q", view)
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if !cancelled || !strings.Contains(m.View(), "stopping") {
		t.Errorf("ctrl+c did not cancel: %q", m.View())
	}

	m, cmd := m.Update(finishedMsg{})
	if cmd == nil || m.View() != "" {
		t.Error("finished model did not quit")
	}
}
