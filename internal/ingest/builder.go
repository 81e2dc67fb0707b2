package ingest

import (
	"fmt"

	"forge-logd/internal/event"
)

// builder threads the fold state through event processing: the list of
// completed trees plus the execution currently accepting child events.
type builder struct {
	executions []*Execution
	current    *Execution
}

// Build folds an ordered event sequence into Execution trees. Events are
// processed strictly in input order; every non-execution event attaches to
// the most recently started execution. Any failure aborts the whole batch
// and no partial result is returned.
func Build(events []event.Envelope) ([]*Execution, error) {
	var b builder
	for i, env := range events {
		if err := b.apply(env); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
	}
	return b.executions, nil
}

func (b *builder) apply(env event.Envelope) error {
	switch env.Type {
	case event.TypeExecution:
		return b.applyExecution(env)
	case event.TypeRun:
		return b.applyRun(env)
	case event.TypeInstance:
		return b.applyInstance(env)
	case event.TypeTest:
		return b.applyTest(env)
	case event.TypeCheckExSpec:
		return b.applyCheckExSpec(env)
	case event.TypeError:
		return b.applyError(env)
	case event.TypeNotification:
		return b.applyNotification(env)
	default:
		return fmt.Errorf("%w: %q", ErrUnrecognizedLogType, env.Type)
	}
}

func (b *builder) applyExecution(env event.Envelope) error {
	ev, err := env.Execution()
	if err != nil {
		return err
	}
	name, err := NormalizeFilename(ev.Filename)
	if err != nil {
		return err
	}
	exec := &Execution{
		User:     ev.User,
		Filename: name,
		Project:  ev.Project,
		Time:     ev.Time,
		Raw:      ev.Raw,
		Mode:     ev.Mode,
	}
	b.executions = append(b.executions, exec)
	b.current = exec
	return nil
}

func (b *builder) applyRun(env event.Envelope) error {
	if b.current == nil {
		return fmt.Errorf("run: %w", ErrNoCurrentExecution)
	}
	ev, err := env.Run()
	if err != nil {
		return err
	}
	b.current.Runs = append(b.current.Runs, &Run{
		Raw:    ev.Raw,
		Spec:   ev.Spec,
		Result: ResultUnknown,
	})
	return nil
}

func (b *builder) applyInstance(env event.Envelope) error {
	if b.current == nil {
		return fmt.Errorf("instance: %w", ErrNoCurrentExecution)
	}
	ev, err := env.Instance()
	if err != nil {
		return err
	}
	if ev.RunID < 0 || ev.RunID >= len(b.current.Runs) {
		return fmt.Errorf("%w: run-id %d with %d runs", ErrRunIndexOutOfRange, ev.RunID, len(b.current.Runs))
	}
	run := b.current.Runs[ev.RunID]

	switch ev.Label {
	case event.LabelSat:
		if ev.Instances == nil {
			return fmt.Errorf("instance event: %w %q", event.ErrMissingField, "instances")
		}
		run.Result = ResultSat
		run.Instances = append(run.Instances, &Instance{Model: ev.Instances})
		run.NoMoreInstances = false
	case event.LabelNoMoreInstances:
		run.NoMoreInstances = true
	case event.LabelUnsat:
		if ev.Core == nil {
			return fmt.Errorf("instance event: %w %q", event.ErrMissingField, "core")
		}
		run.Result = ResultUnsat
		run.Core = ev.Core
	}
	// Unknown labels are ignored: the run keeps its current result.
	return nil
}

func (b *builder) applyTest(env event.Envelope) error {
	if b.current == nil {
		return fmt.Errorf("test: %w", ErrNoCurrentExecution)
	}
	ev, err := env.Test()
	if err != nil {
		return err
	}
	b.current.Tests = append(b.current.Tests, &Test{
		Raw:      ev.Raw,
		Spec:     ev.Spec,
		Expected: ev.Expected,
		Passed:   ev.Passed,
		Data:     optionalData(ev.Data),
	})
	return nil
}

func (b *builder) applyCheckExSpec(env event.Envelope) error {
	if b.current == nil {
		return fmt.Errorf("check-ex-spec: %w", ErrNoCurrentExecution)
	}
	ev, err := env.CheckExSpec()
	if err != nil {
		return err
	}
	b.current.CheckExSpec = &CheckExSpec{
		WheatResults: ev.WheatResults,
		ChaffResults: ev.ChaffResults,
	}
	return nil
}

func (b *builder) applyError(env event.Envelope) error {
	if b.current == nil {
		return fmt.Errorf("error: %w", ErrNoCurrentExecution)
	}
	ev, err := env.Error()
	if err != nil {
		return err
	}
	b.current.Error = &ev.Message
	return nil
}

func (b *builder) applyNotification(env event.Envelope) error {
	if b.current == nil {
		return fmt.Errorf("notification: %w", ErrNoCurrentExecution)
	}
	ev, err := env.Notification()
	if err != nil {
		return err
	}
	if len(b.current.Runs) == 0 {
		return fmt.Errorf("notification: %w", ErrNoInstanceContext)
	}
	run := b.current.Runs[len(b.current.Runs)-1]
	if len(run.Instances) == 0 {
		return fmt.Errorf("notification: %w", ErrNoInstanceContext)
	}
	inst := run.Instances[len(run.Instances)-1]
	inst.Notifications = append(inst.Notifications, &Notification{
		Message: ev.Message,
		Data:    optionalData(ev.Data),
		Time:    ev.Time,
	})
	return nil
}
