// Package pipeline runs the packaging stages in dependency order.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"packager/internal/apperrors"
	"packager/internal/config"
	"packager/internal/observability"
	"packager/internal/stage"
	"slices"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/google/uuid"
)

// DefaultTask is the task run when none is named.
const DefaultTask = "default"

// Task is a named entry point that runs a stage together with everything it
// depends on.
type Task struct {
	Name    string
	Usage   string
	Depends string // Task that must finish first, empty for the first stage
}

// Pipeline owns the stage chain for one project root.
type Pipeline struct {
	fsys      billy.Filesystem
	stages    []stage.Stage
	listeners []Listener
	metrics   *observability.Metrics
}

// Option is a functional option for New.
type Option func(*Pipeline)

// WithListener adds a listener that receives every stage and run event.
func WithListener(l Listener) Option {
	return func(p *Pipeline) {
		p.listeners = append(p.listeners, l)
	}
}

// WithMetrics records stage metrics on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// New creates a pipeline over fsys, which must be rooted at the project root.
func New(fsys billy.Filesystem, cfg *config.PackConfig, opts ...Option) *Pipeline {
	p := &Pipeline{
		fsys:   fsys,
		stages: newStages(cfg),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func newStages(cfg *config.PackConfig) []stage.Stage {
	return []stage.Stage{
		&stage.Clean{Dir: cfg.OutputDir},
		&stage.Copy{Dir: cfg.OutputDir, SkipHidden: cfg.SkipHidden},
		&stage.Thin{Dir: cfg.OutputDir, Excludes: cfg.EffectiveExcludes()},
		&stage.Compress{Dir: cfg.OutputDir, Archive: cfg.Archive, Level: cfg.CompressionLevel},
	}
}

// Tasks returns the tasks every pipeline registers, in chain order, ending
// with the default task.
func Tasks() []Task {
	return tasksOf(newStages(&config.PackConfig{}))
}

// Tasks returns the tasks registered on p.
func (p *Pipeline) Tasks() []Task {
	return tasksOf(p.stages)
}

func tasksOf(stages []stage.Stage) []Task {
	tasks := make([]Task, 0, len(stages)+1)
	for _, s := range stages {
		tasks = append(tasks, Task{
			Name:    s.StageName(),
			Usage:   taskUsage[s.StageName()],
			Depends: s.DependsOn(),
		})
	}
	return append(tasks, Task{
		Name:    DefaultTask,
		Usage:   taskUsage[DefaultTask],
		Depends: stage.NameCompress,
	})
}

var taskUsage = map[string]string{
	stage.NameClean:    "Remove the output directory",
	stage.NameCopy:     "Copy the project tree into the output directory",
	stage.NameThin:     "Strip the exclusion list from the output directory",
	stage.NameCompress: "Zip the output directory into the archive",
	DefaultTask:        "Run the full chain (clean, copy, thin, compress)",
}

// Resolve returns the stages a task runs, in execution order.
func (p *Pipeline) Resolve(target string) ([]stage.Stage, error) {
	return Resolve(p.stages, target)
}

// Resolve walks the dependency chain back from target and returns it in
// execution order. An empty target and DefaultTask both resolve to the
// compress stage.
func Resolve(stages []stage.Stage, target string) ([]stage.Stage, error) {
	if target == "" || target == DefaultTask {
		target = stage.NameCompress
	}

	byName := make(map[string]stage.Stage, len(stages))
	for _, s := range stages {
		byName[s.StageName()] = s
	}

	current, ok := byName[target]
	if !ok {
		return nil, apperrors.UnknownTask(target)
	}

	var chain []stage.Stage
	seen := make(map[string]bool)
	for current != nil {
		name := current.StageName()
		if seen[name] {
			return nil, apperrors.Validation("task", fmt.Sprintf("dependency cycle at stage %q", name))
		}
		seen[name] = true
		chain = append(chain, current)

		dep := current.DependsOn()
		if dep == "" {
			break
		}
		next, ok := byName[dep]
		if !ok {
			return nil, apperrors.Validation("task", fmt.Sprintf("stage %q depends on undefined stage %q", name, dep))
		}
		current = next
	}

	slices.Reverse(chain)
	return chain, nil
}

// Run executes the chain for target. Stages run strictly one after another;
// the context is only consulted between stages, so a stage that has started
// always runs to completion. The first failure stops the run and is returned
// together with the report.
func (p *Pipeline) Run(ctx context.Context, target string) (*Report, error) {
	chain, err := p.Resolve(target)
	if err != nil {
		return nil, err
	}
	if target == "" {
		target = DefaultTask
	}

	report := &Report{
		RunID:     uuid.NewString(),
		Target:    target,
		State:     StatePending,
		StartedAt: time.Now(),
	}
	logger := slog.With("runId", report.RunID, "target", target)
	logger.Info("Run starting", "stages", len(chain))

	var runErr error
	for _, s := range chain {
		name := s.StageName()

		if err := ctx.Err(); err != nil {
			runErr = apperrors.Cancelled(name, err)
			logger.Warn("Run cancelled", "before", name, "error", err)
			break
		}

		p.emit(ctx, Event{
			Kind:   EventStageStarted,
			RunID:  report.RunID,
			Target: target,
			Stage:  name,
			State:  report.State,
		})

		start := time.Now()
		result := <-p.apply(ctx, s)
		duration := time.Since(start)

		stageReport := &StageReport{
			Name:     name,
			Status:   result.Status,
			Duration: duration,
			Content:  result.Content,
		}
		if result.Error != nil {
			stageReport.Error = result.Error.Error()
		}
		report.Stages = append(report.Stages, stageReport)

		p.metrics.RecordStage(ctx, name, result.Error == nil, duration.Seconds())
		p.recordContent(ctx, result.Content)

		next := stateAfter(name)
		if result.Error != nil {
			next = StateFailed
		}
		if report.State, err = report.State.advance(next); err != nil {
			// Unreachable with a chain produced by Resolve
			runErr = err
			break
		}

		p.emit(ctx, Event{
			Kind:     EventStageFinished,
			RunID:    report.RunID,
			Target:   target,
			Stage:    name,
			Status:   result.Status,
			State:    report.State,
			Duration: duration,
			Content:  result.Content,
			Err:      result.Error,
		})

		stageLogger := logger.With("stage", name, "status", result.Status, "durationMs", duration.Milliseconds())
		if result.Content != nil {
			stageLogger = stageLogger.With("content", result.Content)
		}
		if result.Error != nil {
			stageLogger.Error("Stage failed", "error", result.Error)
			runErr = result.Error
			break
		}
		stageLogger.Info("Stage finished")
	}

	if runErr != nil {
		report.State = StateFailed
	} else {
		report.State = StateDone
	}
	report.Duration = time.Since(report.StartedAt)

	status := stage.StatusSuccess
	if runErr != nil {
		status = stage.StatusFailed
	}
	p.emit(ctx, Event{
		Kind:     EventRunFinished,
		RunID:    report.RunID,
		Target:   target,
		Status:   status,
		State:    report.State,
		Duration: report.Duration,
		Err:      runErr,
	})

	if runErr != nil {
		logger.Error("Run failed", "state", report.State, "durationMs", report.Duration.Milliseconds(), "error", runErr)
		return report, runErr
	}
	logger.Info("Run finished", "state", report.State, "durationMs", report.Duration.Milliseconds())
	return report, nil
}

// apply runs s on its own goroutine. The returned channel delivers exactly
// one result. Cancellation is not propagated into the stage.
func (p *Pipeline) apply(ctx context.Context, s stage.Stage) <-chan *stage.Result {
	done := make(chan *stage.Result, 1)
	go func() {
		done <- s.Apply(context.WithoutCancel(ctx), p.fsys)
	}()
	return done
}

// emit notifies listeners even after ctx is cancelled, so the final events
// of an interrupted run are still delivered.
func (p *Pipeline) emit(ctx context.Context, event Event) {
	ctx = context.WithoutCancel(ctx)
	for _, l := range p.listeners {
		l.OnEvent(ctx, event)
	}
}

func (p *Pipeline) recordContent(ctx context.Context, content any) {
	switch c := content.(type) {
	case *stage.CopySummary:
		p.metrics.RecordFilesCopied(ctx, c.Files)
	case *stage.ThinSummary:
		p.metrics.RecordPathsThinned(ctx, len(c.Removed))
	case *stage.CompressSummary:
		p.metrics.RecordArchiveBytes(ctx, c.Archive, c.Bytes)
	}
}
