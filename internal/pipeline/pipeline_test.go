package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/nao1215/icapscan/internal/model"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, job *Job) error
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, job *Job) error {
	m.callCount++
	if m.doFunc != nil {
		return m.doFunc(ctx, job)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestPipelineNew tests the Pipeline constructor.
func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New()
		if p.StepCount() != 0 {
			t.Errorf("expected 0 steps, got %d", p.StepCount())
		}
		if p.logger == nil {
			t.Error("expected default logger")
		}
	})

	t.Run("applies WithContinueOnError option", func(t *testing.T) {
		t.Parallel()

		if p := New(WithContinueOnError(true)); !p.continueOnError {
			t.Error("expected continueOnError to be true")
		}
	})
}

// TestPipelineStepNames tests step bookkeeping.
func TestPipelineStepNames(t *testing.T) {
	t.Parallel()

	p := New()
	p.AddStep(&mockStep{name: "read"})
	p.AddDeferredStep(&mockStep{name: "record"})
	p.AddSteps(&mockStep{name: "icap_scan"})

	if p.StepCount() != 3 {
		t.Errorf("expected 3 steps, got %d", p.StepCount())
	}
	want := []string{"read", "icap_scan", "record"}
	if got := p.StepNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("StepNames() = %v, want %v", got, want)
	}
}

// TestPipelineExecute tests step execution order and error handling.
func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("runs steps in order then deferred steps", func(t *testing.T) {
		t.Parallel()

		var order []string
		record := func(name string) *mockStep {
			return &mockStep{name: name, doFunc: func(context.Context, *Job) error {
				order = append(order, name)
				return nil
			}}
		}

		p := New(WithLogger(quietLogger()))
		p.AddDeferredStep(record("record"))
		p.AddSteps(record("read"), record("icap_scan"))

		job := NewJob("a.txt")
		if err := p.Execute(context.Background(), job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(order, []string{"read", "icap_scan", "record"}) {
			t.Errorf("unexpected order %v", order)
		}
	})

	t.Run("stops on error but still runs deferred steps", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		failing := &mockStep{name: "read", doFunc: func(context.Context, *Job) error { return boom }}
		skipped := &mockStep{name: "icap_scan"}
		deferred := &mockStep{name: "record", doFunc: func(_ context.Context, job *Job) error {
			if job.Scan.Duration <= 0 {
				return errors.New("duration not set before deferred step")
			}
			return nil
		}}

		p := New(WithLogger(quietLogger()))
		p.AddSteps(failing, skipped)
		p.AddDeferredStep(deferred)

		err := p.Execute(context.Background(), NewJob("a.txt"))
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if skipped.callCount != 0 {
			t.Error("expected second step to be skipped")
		}
		if deferred.callCount != 1 {
			t.Error("expected deferred step to run")
		}
	})

	t.Run("continues on error when configured", func(t *testing.T) {
		t.Parallel()

		first := errors.New("first")
		a := &mockStep{name: "a", doFunc: func(context.Context, *Job) error { return first }}
		b := &mockStep{name: "b", doFunc: func(context.Context, *Job) error { return errors.New("second") }}

		p := New(WithLogger(quietLogger()), WithContinueOnError(true))
		p.AddSteps(a, b)

		if err := p.Execute(context.Background(), NewJob("a.txt")); !errors.Is(err, first) {
			t.Fatalf("expected first error, got %v", err)
		}
		if b.callCount != 1 {
			t.Error("expected second step to run")
		}
	})

	t.Run("deferred error is returned when steps succeed", func(t *testing.T) {
		t.Parallel()

		saveErr := errors.New("disk full")
		p := New(WithLogger(quietLogger()))
		p.AddStep(&mockStep{name: "read"})
		p.AddDeferredStep(&mockStep{name: "record", doFunc: func(context.Context, *Job) error { return saveErr }})

		if err := p.Execute(context.Background(), NewJob("a.txt")); !errors.Is(err, saveErr) {
			t.Fatalf("expected deferred error, got %v", err)
		}
	})

	t.Run("cancelled context marks the scan and runs deferred steps", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		step := &mockStep{name: "read"}
		var deferredCtxErr error
		deferred := &mockStep{name: "record", doFunc: func(ctx context.Context, _ *Job) error {
			deferredCtxErr = ctx.Err()
			return nil
		}}

		p := New(WithLogger(quietLogger()))
		p.AddStep(step)
		p.AddDeferredStep(deferred)

		job := NewJob("a.txt")
		err := p.Execute(ctx, job)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if step.callCount != 0 {
			t.Error("expected step to be skipped")
		}
		if job.Scan.Verdict != model.VerdictError || job.Scan.ErrorKind != "canceled" {
			t.Errorf("unexpected scan: %+v", job.Scan)
		}
		if deferred.callCount != 1 || deferredCtxErr != nil {
			t.Errorf("expected deferred step to run with a live context, got err %v", deferredCtxErr)
		}
	})
}
