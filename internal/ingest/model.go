// Package ingest folds an ordered sequence of tagged log events into
// Execution trees and anonymizes filenames on the way in.
package ingest

import "encoding/json"

// Run result tags.
const (
	ResultUnknown = "unknown"
	ResultSat     = "sat"
	ResultUnsat   = "unsat"
)

// Execution is one logged session of running the tool on a file. It owns
// every record built from the events that follow its execution event, up to
// the next execution event or the end of the batch.
type Execution struct {
	User     string
	Filename string // already normalized
	Project  string
	Time     int64
	Raw      string
	Mode     string
	Error    *string

	Runs        []*Run
	Tests       []*Test
	CheckExSpec *CheckExSpec

	// Notifications would hold top-level notifications that precede any
	// run. No event path populates it: notification events always attach
	// to the latest instance of the latest run, and arriving earlier is a
	// translation error. The field documents the gap in the input format.
	Notifications []*Notification
}

// Run is one model-finding command within an execution.
type Run struct {
	Raw             string
	Spec            json.RawMessage
	Result          string
	Core            *string // set when the result is unsat
	Instances       []*Instance
	NoMoreInstances bool
}

// Instance is one satisfying model found by a run.
type Instance struct {
	Model         json.RawMessage
	Notifications []*Notification
}

// Notification is a message attached to an instance.
type Notification struct {
	Message string
	Data    json.RawMessage // nil when absent or JSON null
	Time    int64
}

// Test is one test command within an execution.
type Test struct {
	Raw      string
	Spec     json.RawMessage
	Expected string
	Passed   bool
	Data     json.RawMessage // nil when absent or JSON null
}

// CheckExSpec holds wheat/chaff evaluation results. At most one per
// execution; a later event overwrites an earlier one.
type CheckExSpec struct {
	WheatResults json.RawMessage
	ChaffResults json.RawMessage
}

// optionalData collapses absent and JSON null payloads to nil so the
// persistence layer can map both to SQL NULL.
func optionalData(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}
