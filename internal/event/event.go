// Package event decodes raw webhook payloads into tagged Forge log events.
//
// A payload is a JSON array of objects, each discriminated by a "log-type"
// field. Decoding only validates the shape needed to dispatch; the opaque
// parts of each event (specs, instance models, notification data) stay as
// raw JSON for downstream components to carry through unchanged.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Known log-type discriminators.
const (
	TypeExecution    = "execution"
	TypeRun          = "run"
	TypeInstance     = "instance"
	TypeTest         = "test"
	TypeCheckExSpec  = "check-ex-spec"
	TypeError        = "error"
	TypeNotification = "notification"
)

// Labels carried by instance events.
const (
	LabelSat             = "sat"
	LabelNoMoreInstances = "no-more-instances"
	LabelUnsat           = "unsat"
)

var (
	// ErrInvalidJSON means the request body is not valid JSON at all.
	// This is the only decode failure that maps to a plain 400 with no
	// dead-letter record.
	ErrInvalidJSON = errors.New("invalid JSON payload")

	// ErrNotEventArray means the payload is valid JSON but not an array
	// of objects.
	ErrNotEventArray = errors.New("payload is not an array of event objects")

	// ErrMissingField means a required event field is absent.
	ErrMissingField = errors.New("missing required field")
)

// Envelope is one decoded event: its discriminator plus the raw object,
// kept for typed extraction by the builder.
type Envelope struct {
	Type string
	Raw  json.RawMessage
}

// Decode parses a request body into an ordered event sequence.
// ErrInvalidJSON is returned only for malformed JSON; every other failure
// is a translation-tier error and should be dead-lettered by the caller.
func Decode(body []byte) ([]Envelope, error) {
	if !json.Valid(body) {
		return nil, ErrInvalidJSON
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, ErrNotEventArray
	}

	events := make([]Envelope, 0, len(raws))
	for i, raw := range raws {
		var tag struct {
			LogType *string `json:"log-type"`
		}
		if err := json.Unmarshal(raw, &tag); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, ErrNotEventArray)
		}
		if tag.LogType == nil {
			return nil, fmt.Errorf("event %d: %w %q", i, ErrMissingField, "log-type")
		}
		events = append(events, Envelope{Type: *tag.LogType, Raw: raw})
	}
	return events, nil
}

// Execution is a session start: one logged run of the tool on a file.
type Execution struct {
	User     string
	Filename string
	Project  string
	Time     int64
	Raw      string
	Mode     string
}

// Run is one model-finding command within an execution.
type Run struct {
	Raw  string
	Spec json.RawMessage
}

// Instance reports a solver result for a prior run, addressed by its
// zero-based index within the current execution.
type Instance struct {
	RunID     int
	Label     string
	Instances json.RawMessage // present when label is "sat"
	Core      *string         // present when label is "unsat"
}

// Test is one test command within an execution.
type Test struct {
	Raw      string
	Spec     json.RawMessage
	Expected string
	Passed   bool
	Data     json.RawMessage // optional
}

// CheckExSpec carries wheat/chaff evaluation results.
type CheckExSpec struct {
	WheatResults json.RawMessage
	ChaffResults json.RawMessage
}

// ErrorEvent records a tool-level error message for the current execution.
type ErrorEvent struct {
	Message string
}

// Notification is a message attached to the most recent instance.
type Notification struct {
	Message string
	Data    json.RawMessage // optional
	Time    int64
}

func missing(eventType, field string) error {
	return fmt.Errorf("%s event: %w %q", eventType, ErrMissingField, field)
}

// Execution extracts a typed execution event.
func (e Envelope) Execution() (*Execution, error) {
	var raw struct {
		User     *string `json:"user"`
		Filename *string `json:"filename"`
		Project  *string `json:"project"`
		Time     *int64  `json:"time"`
		Raw      *string `json:"raw"`
		Mode     *string `json:"mode"`
	}
	if err := json.Unmarshal(e.Raw, &raw); err != nil {
		return nil, fmt.Errorf("execution event: %w", err)
	}
	switch {
	case raw.User == nil:
		return nil, missing(TypeExecution, "user")
	case raw.Filename == nil:
		return nil, missing(TypeExecution, "filename")
	case raw.Project == nil:
		return nil, missing(TypeExecution, "project")
	case raw.Time == nil:
		return nil, missing(TypeExecution, "time")
	case raw.Raw == nil:
		return nil, missing(TypeExecution, "raw")
	case raw.Mode == nil:
		return nil, missing(TypeExecution, "mode")
	}
	return &Execution{
		User:     *raw.User,
		Filename: *raw.Filename,
		Project:  *raw.Project,
		Time:     *raw.Time,
		Raw:      *raw.Raw,
		Mode:     *raw.Mode,
	}, nil
}

// Run extracts a typed run event.
func (e Envelope) Run() (*Run, error) {
	var raw struct {
		Raw  *string         `json:"raw"`
		Spec json.RawMessage `json:"spec"`
	}
	if err := json.Unmarshal(e.Raw, &raw); err != nil {
		return nil, fmt.Errorf("run event: %w", err)
	}
	if raw.Raw == nil {
		return nil, missing(TypeRun, "raw")
	}
	if raw.Spec == nil {
		return nil, missing(TypeRun, "spec")
	}
	return &Run{Raw: *raw.Raw, Spec: raw.Spec}, nil
}

// Instance extracts a typed instance event. Label-dependent fields
// (instances, core) are validated by the builder, which knows the label
// semantics.
func (e Envelope) Instance() (*Instance, error) {
	var raw struct {
		RunID     *int            `json:"run-id"`
		Label     *string         `json:"label"`
		Instances json.RawMessage `json:"instances"`
		Core      *string         `json:"core"`
	}
	if err := json.Unmarshal(e.Raw, &raw); err != nil {
		return nil, fmt.Errorf("instance event: %w", err)
	}
	if raw.RunID == nil {
		return nil, missing(TypeInstance, "run-id")
	}
	if raw.Label == nil {
		return nil, missing(TypeInstance, "label")
	}
	return &Instance{
		RunID:     *raw.RunID,
		Label:     *raw.Label,
		Instances: raw.Instances,
		Core:      raw.Core,
	}, nil
}

// Test extracts a typed test event. The data field is optional and may be
// absent, JSON null, or a structured payload; absent and null are
// indistinguishable from the caller's point of view (both persist as NULL).
func (e Envelope) Test() (*Test, error) {
	var raw struct {
		Raw      *string         `json:"raw"`
		Spec     json.RawMessage `json:"spec"`
		Expected *string         `json:"expected"`
		Passed   *bool           `json:"passed"`
		Data     json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(e.Raw, &raw); err != nil {
		return nil, fmt.Errorf("test event: %w", err)
	}
	switch {
	case raw.Raw == nil:
		return nil, missing(TypeTest, "raw")
	case raw.Spec == nil:
		return nil, missing(TypeTest, "spec")
	case raw.Expected == nil:
		return nil, missing(TypeTest, "expected")
	case raw.Passed == nil:
		return nil, missing(TypeTest, "passed")
	}
	return &Test{
		Raw:      *raw.Raw,
		Spec:     raw.Spec,
		Expected: *raw.Expected,
		Passed:   *raw.Passed,
		Data:     raw.Data,
	}, nil
}

// CheckExSpec extracts a typed check-ex-spec event.
func (e Envelope) CheckExSpec() (*CheckExSpec, error) {
	var raw struct {
		WheatResults json.RawMessage `json:"wheat-results"`
		ChaffResults json.RawMessage `json:"chaff-results"`
	}
	if err := json.Unmarshal(e.Raw, &raw); err != nil {
		return nil, fmt.Errorf("check-ex-spec event: %w", err)
	}
	if raw.WheatResults == nil {
		return nil, missing(TypeCheckExSpec, "wheat-results")
	}
	if raw.ChaffResults == nil {
		return nil, missing(TypeCheckExSpec, "chaff-results")
	}
	return &CheckExSpec{WheatResults: raw.WheatResults, ChaffResults: raw.ChaffResults}, nil
}

// Error extracts a typed error event.
func (e Envelope) Error() (*ErrorEvent, error) {
	var raw struct {
		Message *string `json:"message"`
	}
	if err := json.Unmarshal(e.Raw, &raw); err != nil {
		return nil, fmt.Errorf("error event: %w", err)
	}
	if raw.Message == nil {
		return nil, missing(TypeError, "message")
	}
	return &ErrorEvent{Message: *raw.Message}, nil
}

// Notification extracts a typed notification event.
func (e Envelope) Notification() (*Notification, error) {
	var raw struct {
		Message *string         `json:"message"`
		Data    json.RawMessage `json:"data"`
		Time    *int64          `json:"time"`
	}
	if err := json.Unmarshal(e.Raw, &raw); err != nil {
		return nil, fmt.Errorf("notification event: %w", err)
	}
	if raw.Message == nil {
		return nil, missing(TypeNotification, "message")
	}
	if raw.Time == nil {
		return nil, missing(TypeNotification, "time")
	}
	return &Notification{Message: *raw.Message, Data: raw.Data, Time: *raw.Time}, nil
}
