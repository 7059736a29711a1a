package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nsqio/go-nsq"

	"ragfinance/internal/middleware"
)

type QuestionConsumer struct {
	processor Processor
}

func NewQuestionConsumer(p Processor) *QuestionConsumer {
	return &QuestionConsumer{processor: p}
}

// HandleMessage never asks NSQ to requeue: a failed run is already recorded,
// and running it again would log a second answer for the same task.
func (h *QuestionConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload QuestionPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}
	if payload.TaskID == "" {
		slog.Error("poison pill: incomplete question payload", "task_id", payload.TaskID)
		return nil
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}
	ctx = middleware.WithTaskID(ctx, payload.TaskID)

	slog.InfoContext(ctx, "question task received", "attempts", m.Attempts)
	h.processor.Process(ctx, payload.TaskID, payload.Question)
	return nil
}
