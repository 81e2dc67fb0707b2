package event

import (
	"errors"
	"testing"
)

func TestDecode_InvalidJSON(t *testing.T) {
	_, err := Decode([]byte(`{"log-type": "execution"`))
	if !errors.Is(err, ErrInvalidJSON) {
		t.Errorf("Decode() error = %v, want ErrInvalidJSON", err)
	}
}

func TestDecode_NotAnArray(t *testing.T) {
	_, err := Decode([]byte(`{"log-type": "execution"}`))
	if errors.Is(err, ErrInvalidJSON) {
		t.Error("valid JSON must not map to ErrInvalidJSON")
	}
	if !errors.Is(err, ErrNotEventArray) {
		t.Errorf("Decode() error = %v, want ErrNotEventArray", err)
	}
}

func TestDecode_MissingLogType(t *testing.T) {
	_, err := Decode([]byte(`[{"user": "a@b.edu"}]`))
	if !errors.Is(err, ErrMissingField) {
		t.Errorf("Decode() error = %v, want ErrMissingField", err)
	}
}

func TestDecode_OrderPreserved(t *testing.T) {
	events, err := Decode([]byte(`[
		{"log-type": "execution"},
		{"log-type": "run"},
		{"log-type": "instance"}
	]`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []string{TypeExecution, TypeRun, TypeInstance}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, w := range want {
		if events[i].Type != w {
			t.Errorf("events[%d].Type = %q, want %q", i, events[i].Type, w)
		}
	}
}

func TestDecode_EmptyArray(t *testing.T) {
	events, err := Decode([]byte(`[]`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events, want 0", len(events))
	}
}

func TestEnvelope_Execution(t *testing.T) {
	events, err := Decode([]byte(`[{
		"log-type": "execution",
		"user": "a@b.edu",
		"filename": "forge1.rkt.bak",
		"project": "p1",
		"time": 12345,
		"raw": "#lang forge",
		"mode": "forge/core"
	}]`))
	if err != nil {
		t.Fatal(err)
	}

	exec, err := events[0].Execution()
	if err != nil {
		t.Fatalf("Execution: %v", err)
	}
	if exec.User != "a@b.edu" {
		t.Errorf("User = %q, want %q", exec.User, "a@b.edu")
	}
	if exec.Time != 12345 {
		t.Errorf("Time = %d, want 12345", exec.Time)
	}
	if exec.Mode != "forge/core" {
		t.Errorf("Mode = %q, want %q", exec.Mode, "forge/core")
	}
}

func TestEnvelope_Execution_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing user", `{"log-type":"execution","filename":"a.rkt","project":"p","time":1,"raw":"","mode":"m"}`},
		{"missing filename", `{"log-type":"execution","user":"u","project":"p","time":1,"raw":"","mode":"m"}`},
		{"missing time", `{"log-type":"execution","user":"u","filename":"a.rkt","project":"p","raw":"","mode":"m"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := Envelope{Type: TypeExecution, Raw: []byte(tt.raw)}
			if _, err := env.Execution(); !errors.Is(err, ErrMissingField) {
				t.Errorf("Execution() error = %v, want ErrMissingField", err)
			}
		})
	}
}

func TestEnvelope_Instance(t *testing.T) {
	env := Envelope{Type: TypeInstance, Raw: []byte(
		`{"log-type":"instance","run-id":0,"label":"sat","instances":[{"sig":"A"}]}`)}

	inst, err := env.Instance()
	if err != nil {
		t.Fatalf("Instance: %v", err)
	}
	if inst.RunID != 0 {
		t.Errorf("RunID = %d, want 0", inst.RunID)
	}
	if inst.Label != LabelSat {
		t.Errorf("Label = %q, want %q", inst.Label, LabelSat)
	}
	if inst.Instances == nil {
		t.Error("Instances = nil, want payload")
	}
	if inst.Core != nil {
		t.Errorf("Core = %v, want nil", *inst.Core)
	}
}

func TestEnvelope_Instance_MissingRunID(t *testing.T) {
	env := Envelope{Type: TypeInstance, Raw: []byte(`{"log-type":"instance","label":"sat"}`)}
	if _, err := env.Instance(); !errors.Is(err, ErrMissingField) {
		t.Errorf("Instance() error = %v, want ErrMissingField", err)
	}
}

func TestEnvelope_Test_OptionalData(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantData bool
	}{
		{"absent", `{"raw":"(test t)","spec":{},"expected":"sat","passed":true}`, false},
		{"null", `{"raw":"(test t)","spec":{},"expected":"sat","passed":true,"data":null}`, true},
		{"present", `{"raw":"(test t)","spec":{},"expected":"sat","passed":true,"data":{"k":1}}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := Envelope{Type: TypeTest, Raw: []byte(tt.raw)}
			ev, err := env.Test()
			if err != nil {
				t.Fatalf("Test: %v", err)
			}
			if got := ev.Data != nil; got != tt.wantData {
				t.Errorf("Data present = %v, want %v", got, tt.wantData)
			}
		})
	}
}

func TestEnvelope_Notification(t *testing.T) {
	env := Envelope{Type: TypeNotification, Raw: []byte(
		`{"log-type":"notification","message":"hint shown","time":99}`)}

	n, err := env.Notification()
	if err != nil {
		t.Fatalf("Notification: %v", err)
	}
	if n.Message != "hint shown" {
		t.Errorf("Message = %q, want %q", n.Message, "hint shown")
	}
	if n.Time != 99 {
		t.Errorf("Time = %d, want 99", n.Time)
	}
	if n.Data != nil {
		t.Errorf("Data = %s, want nil", n.Data)
	}
}

func TestEnvelope_CheckExSpec_MissingResults(t *testing.T) {
	env := Envelope{Type: TypeCheckExSpec, Raw: []byte(`{"log-type":"check-ex-spec","wheat-results":[1]}`)}
	if _, err := env.CheckExSpec(); !errors.Is(err, ErrMissingField) {
		t.Errorf("CheckExSpec() error = %v, want ErrMissingField", err)
	}
}
