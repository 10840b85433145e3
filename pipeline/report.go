package pipeline

import (
	"errors"

	"github.com/lvillar/bulkdoc"
	"github.com/lvillar/bulkdoc/batch"
)

// Failure is the user-facing description of one failed record.
type Failure struct {
	Index int    `json:"index"`
	Row   int    `json:"row"`
	Label string `json:"label,omitempty"`
	Stage string `json:"stage,omitempty"`
	Error string `json:"error"`
}

// Report is the JSON summary of a job, shared by the CLI, HTTP and MCP
// front ends.
type Report struct {
	BatchID        string        `json:"batchId,omitempty"`
	State          string        `json:"state"`
	Summary        batch.Summary `json:"summary"`
	Archive        string        `json:"archive,omitempty"`
	Files          []string      `json:"files"`
	Failures       []Failure     `json:"failures"`
	UnknownColumns []string      `json:"unknownColumns,omitempty"`
	Booklet        string        `json:"booklet,omitempty"`
}

// Report builds the summary of o. Files lists the names inside the archive.
func (o *Outcome) Report() Report {
	rep := Report{
		State:          batch.Idle.String(),
		Files:          []string{},
		Failures:       Failures(o.Batch),
		UnknownColumns: o.UnknownColumns,
	}
	if o.Batch != nil {
		rep.BatchID = o.Batch.ID
		rep.State = o.Batch.State.String()
		rep.Summary = o.Batch.Summary()
	}
	if o.Archive != nil {
		rep.Archive = o.Archive.Name
		rep.Files = append(rep.Files, o.Archive.Entries...)
	}
	if o.Booklet != nil {
		rep.Booklet = o.Booklet.Name
	}
	return rep
}

// Failures lists the failed entries of res in input order.
func Failures(res *batch.Result) []Failure {
	out := []Failure{}
	if res == nil {
		return out
	}
	for _, e := range res.Failures() {
		f := Failure{Index: e.Index, Row: e.Row, Label: e.Label}
		if e.Err != nil {
			f.Error = e.Err.Error()
		}
		var re *bulkdoc.RecordError
		if errors.As(e.Err, &re) {
			f.Stage = string(re.Stage)
			if re.Err != nil {
				f.Error = re.Err.Error()
			}
		}
		out = append(out, f)
	}
	return out
}
