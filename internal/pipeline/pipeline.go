package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/icapscan/internal/model"
)

// Job carries one file through the pipeline.
type Job struct {
	// Scan is the record being built. Steps fill it in as they run.
	Scan *model.FileScan

	// Payload is the file content, set by ReadStep.
	Payload []byte
}

// NewJob creates a Job for the file at path.
func NewJob(path string) *Job {
	return &Job{Scan: model.NewFileScan(path)}
}

// Step defines the interface that all pipeline steps must implement.
type Step interface {
	// Do executes the step. A returned error stops the remaining regular
	// steps; the step should also record the failure in job.Scan.
	Do(ctx context.Context, job *Job) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline orchestrates the execution of multiple steps.
type Pipeline struct {
	steps    []Step
	deferred []Step
	logger   *slog.Logger

	// continueOnError keeps running regular steps after one fails.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to keep executing regular
// steps after one fails.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// AddDeferredStep appends a step that runs after the regular steps whatever
// their outcome, with the scan duration already set.
func (p *Pipeline) AddDeferredStep(step Step) {
	p.deferred = append(p.deferred, step)
}

// Execute runs the regular steps in sequence, then the deferred steps.
// It returns the first error encountered, regular or deferred.
func (p *Pipeline) Execute(ctx context.Context, job *Job) error {
	firstErr := p.runSteps(ctx, job)
	job.Scan.Finish()

	// Deferred steps must run after cancellation too.
	dctx := context.WithoutCancel(ctx)
	for _, step := range p.deferred {
		if err := p.runStep(dctx, step, job); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *Pipeline) runSteps(ctx context.Context, job *Job) error {
	var firstErr error
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"path", job.Scan.Path,
				"reason", err,
			)
			job.Scan.MarkFailed(err, "canceled", job.Scan.StatusCode)
			return err
		}

		if err := p.runStep(ctx, step, job); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if !p.continueOnError {
				return err
			}
		}
	}
	return firstErr
}

func (p *Pipeline) runStep(ctx context.Context, step Step, job *Job) error {
	p.logger.Info("executing step",
		"step", step.Name(),
		"path", job.Scan.Path,
	)
	if err := step.Do(ctx, job); err != nil {
		p.logger.Error("step failed",
			"step", step.Name(),
			"path", job.Scan.Path,
			"error", err,
		)
		return err
	}
	p.logger.Debug("step completed",
		"step", step.Name(),
		"path", job.Scan.Path,
	)
	return nil
}

// StepCount returns the number of regular and deferred steps.
func (p *Pipeline) StepCount() int {
	return len(p.steps) + len(p.deferred)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, 0, p.StepCount())
	for _, step := range p.steps {
		names = append(names, step.Name())
	}
	for _, step := range p.deferred {
		names = append(names, step.Name())
	}
	return names
}
