package batch

import (
	"time"

	"github.com/lvillar/bulkdoc"
)

// State is the lifecycle state of an Orchestrator.
type State int

const (
	Idle State = iota
	Running
	Completed
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	}
	return "unknown"
}

// Step is the per-record sub-state reported to observers.
type Step int

const (
	Rendering Step = iota
	Rasterizing
	Exporting
	Succeeded
	Failed
)

func (s Step) String() string {
	switch s {
	case Rendering:
		return "rendering"
	case Rasterizing:
		return "rasterizing"
	case Exporting:
		return "exporting"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Entry is the outcome of one record. Exactly one of File and Err is set.
type Entry struct {
	Index int
	Row   int
	Label string
	File  *bulkdoc.ExportedFile
	Err   error
}

// OK reports whether the record produced a file.
func (e Entry) OK() bool { return e.Err == nil && e.File != nil }

// Summary is the final tally shown to users.
type Summary struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// Result is the ordered outcome of a run.
type Result struct {
	ID        string
	State     State
	Total     int // records selected for the run
	Attempted int
	Succeeded int
	Failed    int
	Entries   []Entry // input order
	Started   time.Time
	Finished  time.Time
}

// Files returns the exported files of succeeded entries in input order.
func (r *Result) Files() []bulkdoc.ExportedFile {
	out := make([]bulkdoc.ExportedFile, 0, r.Succeeded)
	for _, e := range r.Entries {
		if e.OK() {
			out = append(out, *e.File)
		}
	}
	return out
}

// Failures returns the failed entries in input order.
func (r *Result) Failures() []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if !e.OK() {
			out = append(out, e)
		}
	}
	return out
}

// Summary returns the succeeded/failed/total tally.
func (r *Result) Summary() Summary {
	return Summary{Succeeded: r.Succeeded, Failed: r.Failed, Total: r.Total}
}

func (r *Result) add(e Entry) {
	r.Entries = append(r.Entries, e)
	r.Attempted++
	if e.OK() {
		r.Succeeded++
	} else {
		r.Failed++
	}
}
