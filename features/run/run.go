package run

import "time"

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Record is the outcome of one finished question run.
type Record struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"task_id"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Error      string    `json:"error"`
	Status     string    `json:"status"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

type Stats struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
