package worker

import "context"

// QuestionPayload is the body of a question.task message.
type QuestionPayload struct {
	TaskID        string `json:"task_id"`
	Question      string `json:"question"`
	CorrelationID string `json:"correlation_id"`
}

// Processor runs one question to completion and records its outcome.
type Processor interface {
	Process(ctx context.Context, taskID, question string)
}
