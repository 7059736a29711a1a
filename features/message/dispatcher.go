package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"ragfinance/features/run"
	"ragfinance/internal/answerlog"
	"ragfinance/internal/config"
	"ragfinance/internal/domain"
	"ragfinance/internal/middleware"
	"ragfinance/internal/pipeline"
	"ragfinance/internal/worker"
)

type Runner interface {
	Execute(ctx context.Context, question string) (*pipeline.Run, error)
}

type AnswerLog interface {
	Log(ctx context.Context, entry answerlog.Entry)
}

type RunRepo interface {
	Save(ctx context.Context, r *run.Record) error
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Option func(*Dispatcher)

// WithPublisher hands questions to NSQ instead of running them in this process.
func WithPublisher(p EventPublisher) Option {
	return func(d *Dispatcher) { d.publisher = p }
}

func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// Dispatcher accepts questions and runs each one in the background.
type Dispatcher struct {
	runner    Runner
	answers   AnswerLog
	runs      RunRepo
	publisher EventPublisher
	timeout   time.Duration
	wg        sync.WaitGroup
}

func NewDispatcher(runner Runner, answers AnswerLog, runs RunRepo, opts ...Option) *Dispatcher {
	d := &Dispatcher{runner: runner, answers: answers, runs: runs}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit returns a task id as soon as the run is scheduled. The answer is
// only logged, never returned.
func (d *Dispatcher) Submit(ctx context.Context, question string) (string, error) {
	taskID := uuid.New().String()
	runCtx := middleware.WithTaskID(context.WithoutCancel(ctx), taskID)

	if d.publisher != nil {
		payload, err := json.Marshal(worker.QuestionPayload{
			TaskID:        taskID,
			Question:      question,
			CorrelationID: middleware.GetCorrelationID(ctx),
		})
		if err == nil {
			err = d.publisher.Publish(config.TopicQuestionTask, payload)
		}
		if err == nil {
			slog.InfoContext(runCtx, "question published", "topic", config.TopicQuestionTask)
			return taskID, nil
		}
		slog.WarnContext(runCtx, "publish failed, running in process", "error", err)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Process(runCtx, taskID, question)
	}()

	slog.InfoContext(runCtx, "question scheduled")
	return taskID, nil
}

// Process runs the pipeline synchronously and records the outcome.
func (d *Dispatcher) Process(ctx context.Context, taskID, question string) {
	ctx = middleware.WithTaskID(ctx, taskID)
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("pipeline panic: %v", rec)
			slog.ErrorContext(ctx, "pipeline run panicked", "error", err)
			d.record(ctx, taskID, question, nil, err, 0)
		}
	}()

	start := time.Now()
	r, err := d.runner.Execute(ctx, question)
	elapsed := time.Since(start)

	if err != nil {
		slog.ErrorContext(ctx, "pipeline run failed", "question", question, "error", err, "kind", errorKind(err))
	} else {
		slog.InfoContext(ctx, "answer generated", "question", question, "answer", r.Answer, "duration_ms", elapsed.Milliseconds())
	}
	d.record(ctx, taskID, question, r, err, elapsed)
}

func (d *Dispatcher) record(ctx context.Context, taskID, question string, r *pipeline.Run, err error, elapsed time.Duration) {
	entry := answerlog.Entry{TaskID: taskID, Question: question, LatencyMs: elapsed.Milliseconds()}
	rec := &run.Record{TaskID: taskID, Question: question, DurationMs: elapsed.Milliseconds()}

	if err != nil {
		entry.Error = err.Error()
		entry.Status = answerlog.StatusFailed
		rec.Error = err.Error()
		rec.Status = run.StatusFailed
	} else {
		entry.Answer = r.Answer
		entry.Status = answerlog.StatusCompleted
		for _, s := range r.Context {
			entry.Pages = append(entry.Pages, s.Metadata.PageNumber)
		}
		rec.Answer = r.Answer
		rec.Status = run.StatusCompleted
	}

	if d.answers != nil {
		d.answers.Log(ctx, entry)
	}
	if d.runs != nil {
		// the run's own deadline may already be spent
		if err := d.runs.Save(context.WithoutCancel(ctx), rec); err != nil {
			slog.ErrorContext(ctx, "failed to save run record", "error", err)
		}
	}
}

// Wait blocks until every in-process run has finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrSourceNotFound):
		return "source_not_found"
	case errors.Is(err, domain.ErrParse):
		return "parse"
	case errors.Is(err, domain.ErrEmbeddingProvider):
		return "embedding_provider"
	case errors.Is(err, domain.ErrGenerationProvider):
		return "generation_provider"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}
